package pipeline

import (
	"time"
)

// Outcome is the terminal state of a migration run
type Outcome string

const (
	// OutcomeSuccess means every enabled stage completed
	OutcomeSuccess Outcome = "success"
	// OutcomeExtractionEmpty means the query returned no rows; nothing was
	// staged, loaded or transformed. It is not a failure.
	OutcomeExtractionEmpty Outcome = "extraction-empty"
	// OutcomeValidationFailed means configuration was rejected before any
	// connection was attempted
	OutcomeValidationFailed Outcome = "validation-failed"
	// OutcomeExtractionFailed means the source could not be reached or queried
	OutcomeExtractionFailed Outcome = "extraction-failed"
	// OutcomeLoadFailed covers staging, warehouse connection and bulk load failures
	OutcomeLoadFailed Outcome = "load-failed"
	// OutcomeTransformFailed means data was loaded but the transformation
	// command failed. The load is not undone.
	OutcomeTransformFailed Outcome = "transform-failed"
)

// Failed reports whether the outcome should be surfaced as a failure
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess && o != OutcomeExtractionEmpty
}

// Stage names one step of a run
type Stage string

const (
	StageValidate  Stage = "validate"
	StageExtract   Stage = "extract"
	StageStage     Stage = "stage"
	StageLoad      Stage = "load"
	StageTransform Stage = "transform"
)

// Stages lists every stage in execution order
var Stages = []Stage{StageValidate, StageExtract, StageStage, StageLoad, StageTransform}

// failureOutcome maps the stage that failed onto the run outcome
func failureOutcome(s Stage) Outcome {
	switch s {
	case StageValidate:
		return OutcomeValidationFailed
	case StageExtract:
		return OutcomeExtractionFailed
	case StageStage, StageLoad:
		return OutcomeLoadFailed
	case StageTransform:
		return OutcomeTransformFailed
	default:
		return OutcomeLoadFailed
	}
}

// Report describes what a run did. It is the only thing Run returns.
type Report struct {
	RunID   string  `json:"run_id"`
	Outcome Outcome `json:"outcome"`

	// FailedStage and Err are set only when Outcome.Failed()
	FailedStage Stage `json:"failed_stage,omitempty"`
	Err         error `json:"-"`

	RowsExtracted int    `json:"rows_extracted"`
	StagedBytes   int64  `json:"staged_bytes"`
	StagePath     string `json:"stage_path,omitempty"`
	RowsLoaded    int64  `json:"rows_loaded"`
	// TransformStderr is the captured error stream of a failed transformation
	TransformStderr string `json:"transform_stderr,omitempty"`

	Durations map[Stage]time.Duration `json:"durations"`
	Started   time.Time               `json:"started"`
	Finished  time.Time               `json:"finished"`
}

// ExitCode is the process exit status for the report: 0 for success and an
// empty extraction, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Outcome.Failed() {
		return 1
	}
	return 0
}

// Attempted reports whether stage ran, successfully or not
func (r *Report) Attempted(s Stage) bool {
	_, ok := r.Durations[s]
	return ok
}

func (r *Report) fail(stage Stage, err error) *Report {
	r.Outcome = failureOutcome(stage)
	r.FailedStage = stage
	r.Err = err
	return r
}
