package domain

import "time"

// RunStatus is the terminal state of an import run.
type RunStatus string

// Run statuses. A run with per-record errors still completes; only adapter failures are fatal.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusFailed    RunStatus = "failed"
)

// RecordError is a non-fatal, per-record failure kept in the run report.
type RecordError struct {
	ID      string `json:"id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// RunReport aggregates the outcome of one import run.
type RunReport struct {
	RunID         string        `json:"run_id"`
	Source        string        `json:"source"`
	Status        RunStatus     `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Fetched       int           `json:"fetched"`
	Imported      int           `json:"imported"`
	Updated       int           `json:"updated"`
	Duplicates    int           `json:"duplicates"`
	FailedImports int           `json:"failed_imports"`
	NewAvatars    int           `json:"new_avatars"` // Records that gained their first avatar
	MappingsSaved int           `json:"mappings_saved"`
	FatalError    string        `json:"fatal_error,omitempty"`
	Errors        []RecordError `json:"errors"`
}

// AddError records a per-record failure.
func (r *RunReport) AddError(id, stage, message string) {
	r.Errors = append(r.Errors, RecordError{ID: id, Stage: stage, Message: message})
}

// Duration returns how long the run took, or zero while it is still running.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
