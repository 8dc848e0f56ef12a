// Package db provides SurrealDB query functions for AI job records.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/sym-studio/sym-go/internal/models"
)

// jobRecord is the storage-side shape of an AI job. The id is a SurrealDB
// record id; everything else mirrors models.AIJob.
type jobRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	ProjectID string                 `json:"project_id"`
	CreatedBy string                 `json:"created_by"`
	JobType   string                 `json:"job_type"`
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	Status    string                 `json:"status"`
	Input     map[string]any         `json:"input"`
	Output    any                    `json:"output,omitempty"`
	Duration  *int64                 `json:"duration,omitempty"`
	Cost      *float64               `json:"cost,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Created   time.Time              `json:"created"`
	Completed *time.Time             `json:"completed,omitempty"`
}

func (r jobRecord) toModel() models.AIJob {
	job := models.AIJob{
		ID:          models.MustRecordIDString(r.ID),
		ProjectID:   r.ProjectID,
		CreatedBy:   r.CreatedBy,
		Type:        r.JobType,
		Provider:    r.Provider,
		Model:       r.Model,
		Status:      models.JobStatus(r.Status),
		Input:       r.Input,
		Output:      r.Output,
		Cost:        r.Cost,
		Error:       r.Error,
		CreatedAt:   r.Created,
		CompletedAt: r.Completed,
	}
	if r.Duration != nil {
		job.Duration = *r.Duration
	}
	return job
}

// StatusCount pairs a job status with the number of records in it.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// CreateJob persists a new job record. A missing id is generated. Returns
// the stored job with server-side defaults (created timestamp) applied.
func (c *Client) CreateJob(ctx context.Context, job models.AIJob) (models.AIJob, error) {
	id := job.ID
	if id == "" {
		id = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	input := job.Input
	if input == nil {
		input = map[string]any{}
	}

	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		CREATE type::record("ai_job", $id) CONTENT {
			project_id: $project_id,
			created_by: $created_by,
			job_type: $job_type,
			provider: $provider,
			model: $model,
			status: $status,
			input: $input
		}
	`, map[string]any{
		"id":         id,
		"project_id": job.ProjectID,
		"created_by": job.CreatedBy,
		"job_type":   job.Type,
		"provider":   job.Provider,
		"model":      job.Model,
		"status":     string(job.Status),
		"input":      input,
	})
	if err != nil {
		return models.AIJob{}, fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.AIJob{}, fmt.Errorf("create job: empty result")
	}
	return (*results)[0].Result[0].toModel(), nil
}

// UpdateJobStatus moves a job record to a new lifecycle status.
func (c *Client) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ai_job", $id) SET status = $status
	`, map[string]any{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("update job status: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateJobResult writes the terminal outcome of a job: status plus output
// or error, duration, and completion time.
func (c *Client) UpdateJobResult(ctx context.Context, id string, status models.JobStatus, result models.JobResult) error {
	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ai_job", $id) SET
			status = $status,
			output = $output,
			duration = $duration,
			error = $error,
			completed = $completed
	`, map[string]any{
		"id":        id,
		"status":    string(status),
		"output":    result.Output,
		"duration":  result.Duration,
		"error":     result.Error,
		"completed": completed,
	})
	if err != nil {
		return fmt.Errorf("update job result: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob retrieves a job record by id. Returns nil when not found.
func (c *Client) GetJob(ctx context.Context, id string) (*models.AIJob, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM type::record("ai_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0].toModel()
	return &job, nil
}

// ListJobsByOwner returns the newest jobs created by a user.
func (c *Client) ListJobsByOwner(ctx context.Context, userID string, limit int) ([]models.AIJob, error) {
	if limit <= 0 {
		limit = 50
	}

	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM ai_job WHERE created_by = $user ORDER BY created DESC LIMIT $limit
	`, map[string]any{"user": userID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}

	jobs := []models.AIJob{}
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			jobs = append(jobs, rec.toModel())
		}
	}
	return jobs, nil
}

// CountJobsByStatus returns record counts grouped by status.
func (c *Client) CountJobsByStatus(ctx context.Context) ([]StatusCount, error) {
	results, err := surrealdb.Query[[]StatusCount](ctx, c.db, `
		SELECT status, count() AS count FROM ai_job GROUP BY status ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []StatusCount{}, nil
	}
	return (*results)[0].Result, nil
}
