package pipeline

import "fmt"

// Step names, as reported in StepError and metrics.
const (
	StepReset   = "reset"
	StepSchema  = "schema"
	StepZones   = "zones"
	StepFetch   = "fetch"
	StepLoad    = "load_batch"
	StepViews   = "views"
	StepExport  = "export"
	StepPublish = "publish"
)

// StepError is returned by Run for the step that aborted the run. Batch is
// set for per-batch steps.
type StepError struct {
	Step  string
	Batch string
	Err   error
}

func (e *StepError) Error() string {
	if e.Batch != "" {
		return fmt.Sprintf("pipeline: step %s (batch %s): %v", e.Step, e.Batch, e.Err)
	}
	return fmt.Sprintf("pipeline: step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
