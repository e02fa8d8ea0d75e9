package pipeline

import (
	"errors"
	"fmt"

	"tfengine/internal/agent"
)

// Phase names one stage of a run, as reported in errors, logs, and metrics.
type Phase string

const (
	PhaseResolveColumns Phase = "resolve_columns"
	PhaseCompileSpec    Phase = "compile_spec"
	PhaseFit            Phase = "fit"
	PhasePublish        Phase = "publish"
	PhaseLoadMetadata   Phase = "load_metadata"
	PhaseApply          Phase = "apply"
	PhaseWriteOutput    Phase = "write_output"
)

// PhaseError wraps a failure with the phase it occurred in and, when the
// underlying error identifies one, the column involved.
type PhaseError struct {
	Phase  Phase
	Column string
	Err    error
}

func (e *PhaseError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("phase %s: column %q: %v", e.Phase, e.Column, e.Err)
	}
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// columnOf extracts the column name from the typed agent errors.
func columnOf(err error) string {
	var uc *agent.UnknownCategoryError
	if errors.As(err, &uc) {
		return uc.Column
	}
	var dz *agent.DivideByZeroError
	if errors.As(err, &dz) {
		return dz.Column
	}
	var ve *agent.ValueError
	if errors.As(err, &ve) {
		return ve.Column
	}
	return ""
}
