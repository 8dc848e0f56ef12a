// Package models defines the data structures shared across the sym job core.
package models

import "time"

// JobStatus represents the lifecycle state of a generation job. A job moves
// strictly forward through queued -> processing -> {completed|failed}.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// AIJob is the durable, client-visible counterpart of a queue job. It is
// owned by the record store; the core mutates it only through Create,
// UpdateStatus, and UpdateResult.
type AIJob struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	CreatedBy   string         `json:"created_by"`
	Type        string         `json:"job_type"`
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	Status      JobStatus      `json:"status"`
	Input       map[string]any `json:"input"`
	Output      any            `json:"output,omitempty"`
	Duration    int64          `json:"duration,omitempty"` // wall-clock ms
	Cost        *float64       `json:"cost,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// JobResult carries the terminal outcome written back to a record. Output
// and Error are mutually exclusive.
type JobResult struct {
	Output      any
	Error       *string
	Duration    int64
	CompletedAt time.Time
}
