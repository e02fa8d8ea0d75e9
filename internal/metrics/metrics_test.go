package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func TestRecordPhaseSuccessAndFailure(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordPhase("jobA", "fit", nil, 2*time.Second)
	RecordPhase("jobB", "apply", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("calls = %d counters, %d histograms; want 2 each", len(fb.counters), len(fb.histograms))
	}

	c0 := fb.counters[0]
	if c0.name != "tf_phase_total" || c0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=tf_phase_total, delta=1", c0)
	}
	if c0.labels["job"] != "jobA" || c0.labels["phase"] != "fit" || c0.labels["status"] != "success" {
		t.Fatalf("counter[0] labels = %v", c0.labels)
	}

	h0 := fb.histograms[0]
	if h0.name != "tf_phase_duration_seconds" {
		t.Fatalf("hist[0].name = %q; want tf_phase_duration_seconds", h0.name)
	}
	if h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0].value = %v; want ~2.0", h0.value)
	}

	c1 := fb.counters[1]
	if c1.labels["phase"] != "apply" || c1.labels["status"] != "failure" {
		t.Fatalf("counter[1] labels = %v", c1.labels)
	}
	h1 := fb.histograms[1]
	if h1.value < 1.499 || h1.value > 1.501 {
		t.Fatalf("hist[1].value = %v; want ~1.5", h1.value)
	}
}

func TestRecordRows(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordRows("jobX", "fit", 3)
	RecordRows("jobX", "fit", 0) // ignored
	RecordRows("jobY", "inserted", 5)

	if len(fb.counters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.counters))
	}
	c0 := fb.counters[0]
	if c0.name != "tf_rows_total" || c0.delta != 3 {
		t.Fatalf("counter[0] = %#v; want name=tf_rows_total, delta=3", c0)
	}
	if c0.labels["job"] != "jobX" || c0.labels["kind"] != "fit" {
		t.Fatalf("counter[0] labels = %v", c0.labels)
	}
	c1 := fb.counters[1]
	if c1.delta != 5 || c1.labels["kind"] != "inserted" {
		t.Fatalf("counter[1] = %#v", c1)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount = %d, want 1", fb.flushCount)
	}

	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
