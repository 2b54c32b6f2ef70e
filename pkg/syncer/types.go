package syncer

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// State is the position of a run in its state machine.
type State string

const (
	StateAwaitingCredentials State = "AWAITING_CREDENTIALS"
	StateFetchingPage        State = "FETCHING_PAGE"
	StateProcessingItems     State = "PROCESSING_ITEMS"
	StateCompleted           State = "COMPLETED"
	StateFailed              State = "FAILED"
)

// Status is the terminal outcome reported to the trigger.
type Status string

const (
	StatusComplete Status = "RUN_COMPLETE"
	StatusFailed   Status = "RUN_FAILED"
	// StatusRunning is only observed on results recorded while a run is in flight.
	StatusRunning Status = "RUN_RUNNING"
)

// StopReason explains why a completed run stopped paging.
type StopReason string

const (
	StopExhausted       StopReason = "exhausted"
	StopDuplicateStreak StopReason = "duplicate_streak"
)

// ErrInvalidRequest is returned for run requests that fail validation.
var ErrInvalidRequest = errors.New("invalid run request")

// RunRequest triggers one run.
type RunRequest struct {
	RunID    string `json:"run_id" validate:"required"`
	Platform string `json:"platform" validate:"required"`
	Tenant   string `json:"tenant" validate:"required"`
	Subject  string `json:"subject" validate:"required"`

	// OnSite is true when the hosting session already sits on the target site.
	OnSite bool `json:"on_site"`

	// Progress, if set, receives a snapshot of the result on every state
	// change. It is called from the run's goroutine and must not block.
	Progress func(Result) `json:"-"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      string     `json:"run_id"`
	Status     Status     `json:"status"`
	State      State      `json:"state"`
	Pages      int        `json:"pages"`
	Inspected  int        `json:"inspected"`
	Appended   int        `json:"appended"`
	Duplicates int        `json:"duplicates"`
	Skipped    int        `json:"skipped"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every identifier is present.
func (r RunRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
