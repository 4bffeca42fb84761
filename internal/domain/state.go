package domain

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle position of an evaluation run.
// The lifecycle is linear, with failed reachable from any status.
type RunStatus string

const (
	// StatusCreated is the initial status of a run that has not loaded a dataset.
	StatusCreated RunStatus = "created"
	// StatusDatasetLoaded is reached when ingestion persisted the dataset and template.
	StatusDatasetLoaded RunStatus = "dataset_loaded"
	// StatusTemplatesProcessed is reached when every case has a rendered prompt.
	StatusTemplatesProcessed RunStatus = "templates_processed"
	// StatusExecutionCompleted is reached when every case was sent to the model.
	StatusExecutionCompleted RunStatus = "execution_completed"
	// StatusComparisonCompleted is reached when every execution has a verdict.
	StatusComparisonCompleted RunStatus = "comparison_completed"
	// StatusFailed marks a run whose last stage hit an unrecoverable error.
	StatusFailed RunStatus = "failed"
)

// lifecycle lists the non-failed statuses in order.
var lifecycle = [...]RunStatus{
	StatusCreated,
	StatusDatasetLoaded,
	StatusTemplatesProcessed,
	StatusExecutionCompleted,
	StatusComparisonCompleted,
}

// rank returns the lifecycle position of s, or -1 for failed and unknown values.
func (s RunStatus) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	return s == StatusFailed || s.rank() >= 0
}

// CanAdvanceTo is the single transition rule for run status.
//
// A stage may complete when the run sits at the stage's predecessor status or
// at any later status; the latter is a re-run that overwrites the stage's
// namespace. Moving to failed is always legal. Moving back to created is not.
func (s RunStatus) CanAdvanceTo(next RunStatus) bool {
	if next == StatusFailed {
		return true
	}
	nr := next.rank()
	if nr <= 0 {
		return false
	}
	sr := s.rank()
	if sr < 0 {
		return false
	}
	return sr >= nr-1
}

// Stage names one of the four pipeline stages.
type Stage string

const (
	StageIngestion  Stage = "ingestion"
	StageProcessing Stage = "processing"
	StageExecution  Stage = "execution"
	StageJudging    Stage = "judging"
)

// Next returns the stage to invoke after s, or the empty stage after judging.
func (s Stage) Next() Stage {
	switch s {
	case StageIngestion:
		return StageProcessing
	case StageProcessing:
		return StageExecution
	case StageExecution:
		return StageJudging
	default:
		return ""
	}
}

// CompletedStatus returns the run status a successful run of s produces.
func (s Stage) CompletedStatus() RunStatus {
	switch s {
	case StageIngestion:
		return StatusDatasetLoaded
	case StageProcessing:
		return StatusTemplatesProcessed
	case StageExecution:
		return StatusExecutionCompleted
	case StageJudging:
		return StatusComparisonCompleted
	default:
		return ""
	}
}

// FailureInfo records why a run entered the failed status.
type FailureInfo struct {
	Stage          Stage     `json:"stage" validate:"required"`
	Reason         string    `json:"reason"`
	PreviousStatus RunStatus `json:"previous_status" validate:"required"`
	At             time.Time `json:"at" validate:"required"`
}

// RunMetadata is the evaluation run record. Every stage stamps its summary
// fields here through a read-modify-write, never a blind overwrite.
type RunMetadata struct {
	EvaluationID      string             `json:"evaluation_id" validate:"required"`
	Status            RunStatus          `json:"status" validate:"required"`
	Fingerprint       string             `json:"fingerprint,omitempty"`
	Format            DatasetFormat      `json:"format,omitempty"`
	Source            *SourceDescriptor  `json:"source,omitempty"`
	TemplateVariables []string           `json:"template_variables,omitempty"`
	TotalCases        int                `json:"total_cases" validate:"min=0"`
	ProcessedCases    int                `json:"processed_cases" validate:"min=0"`
	Execution         *ExecutionSummary  `json:"execution_summary,omitempty"`
	Comparison        *ComparisonSummary `json:"comparison_summary,omitempty"`
	Failure           *FailureInfo       `json:"failure,omitempty"`
	CreatedAt         time.Time          `json:"created_at" validate:"required"`
	UpdatedAt         time.Time          `json:"updated_at" validate:"required"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// NewRunMetadata returns the record for a freshly created run.
func NewRunMetadata(evaluationID string, now time.Time) *RunMetadata {
	return &RunMetadata{
		EvaluationID: evaluationID,
		Status:       StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks required fields and that the status is known.
func (m *RunMetadata) Validate() error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	if !m.Status.Valid() {
		return fmt.Errorf("unknown run status %q", m.Status)
	}
	return nil
}

// Advance moves the run to the status produced by a completed stage.
// A failed run resumes from the status it held before failing.
// Summary fields owned by later stages are cleared since they no longer
// describe the data upstream of them.
func (m *RunMetadata) Advance(to RunStatus, now time.Time) error {
	current := m.Status
	if current == StatusFailed {
		if m.Failure == nil {
			return fmt.Errorf("%w: run %s is failed without failure info", ErrIllegalTransition, m.EvaluationID)
		}
		current = m.Failure.PreviousStatus
	}
	if !current.CanAdvanceTo(to) || to == StatusFailed {
		return fmt.Errorf("%w: run %s cannot move from %s to %s",
			ErrIllegalTransition, m.EvaluationID, m.Status, to)
	}

	m.Status = to
	m.Failure = nil
	m.UpdatedAt = now

	r := to.rank()
	if r < StatusTemplatesProcessed.rank() {
		m.ProcessedCases = 0
	}
	if r < StatusExecutionCompleted.rank() {
		m.Execution = nil
	}
	if r < StatusComparisonCompleted.rank() {
		m.Comparison = nil
		m.CompletedAt = nil
	} else {
		completed := now
		m.CompletedAt = &completed
	}
	return nil
}

// MarkFailed moves the run to failed, remembering the status to resume from.
func (m *RunMetadata) MarkFailed(stage Stage, reason string, now time.Time) {
	previous := m.Status
	if previous == StatusFailed && m.Failure != nil {
		previous = m.Failure.PreviousStatus
	}
	m.Status = StatusFailed
	m.UpdatedAt = now
	m.Failure = &FailureInfo{
		Stage:          stage,
		Reason:         reason,
		PreviousStatus: previous,
		At:             now,
	}
}

// RequireAtLeast returns ErrIllegalTransition unless the run has reached want.
// Stages use it to assert that their predecessor's output exists.
func (m *RunMetadata) RequireAtLeast(want RunStatus) error {
	current := m.Status
	if current == StatusFailed && m.Failure != nil {
		current = m.Failure.PreviousStatus
	}
	if current.rank() < want.rank() {
		return fmt.Errorf("%w: run %s is %s, stage requires %s",
			ErrIllegalTransition, m.EvaluationID, m.Status, want)
	}
	return nil
}
