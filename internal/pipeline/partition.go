package pipeline

import (
	"fmt"
	"time"

	"tfengine/internal/config"
	"tfengine/internal/datasource"
	"tfengine/internal/datasource/file"
	"tfengine/internal/datasource/httpds"
	"tfengine/internal/parser/csv"
)

// Partition is one ordered slice of the input row stream. A partition either
// owns a whole source (a part file) or an interleaved subset of a shared
// source selected by Stride/Offset.
type Partition struct {
	Index  int
	Source datasource.Source
	Stride int
	Offset int
}

// partitionsFor derives the partition layout from the pipeline config. A
// directory source yields one partition per part file in sorted order, and
// the file count overrides runtime.partitions. A single file or an HTTP
// source is split into runtime.partitions interleaved subsets.
func partitionsFor(cfg config.Pipeline) ([]Partition, error) {
	n := cfg.Runtime.Partitions
	if n < 1 {
		n = 1
	}
	switch cfg.Source.Kind {
	case "", "file":
		paths, err := file.Parts(cfg.Source.File.Path)
		if err != nil {
			return nil, err
		}
		if len(paths) > 1 {
			parts := make([]Partition, len(paths))
			for i, p := range paths {
				parts[i] = Partition{Index: i, Source: file.NewLocal(p)}
			}
			return parts, nil
		}
		return interleave(file.NewLocal(paths[0]), n), nil
	case "http":
		h := cfg.Source.HTTP
		client := httpds.NewClient(httpds.Config{
			Timeout:            time.Duration(h.TimeoutSeconds) * time.Second,
			MaxRetries:         h.MaxRetries,
			InsecureSkipVerify: h.InsecureSkipVerify,
		})
		// The cache file makes re-opening the source for the apply pass
		// (and for every interleaved partition) a local read.
		return interleave(httpds.NewRemote(client, h.URL, ""), n), nil
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", cfg.Source.Kind)
	}
}

// interleave splits one source into n partitions reading disjoint row
// subsets: partition i takes data rows whose index i mod n matches.
func interleave(src datasource.Source, n int) []Partition {
	if n <= 1 {
		return []Partition{{Index: 0, Source: src}}
	}
	parts := make([]Partition, n)
	for i := 0; i < n; i++ {
		parts[i] = Partition{Index: i, Source: src, Stride: n, Offset: i}
	}
	return parts
}

// streamOptions builds the row-reader options for one partition. The header
// line lives in the shared source for interleaved partitions and in the
// first part file for a directory source.
func streamOptions(cfg config.CSVOptions, p Partition) csv.Options {
	return csv.Options{
		Comma:      delimRune(cfg.DelimiterOrDefault()),
		TrimSpace:  cfg.TrimSpace,
		SkipHeader: sourceHasHeader(cfg, p),
		Stride:     p.Stride,
		Offset:     p.Offset,
	}
}

// sourceHasHeader reports whether the stream this partition opens starts
// with a header line.
func sourceHasHeader(cfg config.CSVOptions, p Partition) bool {
	if !cfg.Header {
		return false
	}
	return p.Stride > 1 || p.Index == 0
}

func delimRune(delim string) rune {
	for _, r := range delim {
		return r
	}
	return ','
}
