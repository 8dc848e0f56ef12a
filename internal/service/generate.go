// Package service contains the generation orchestrator: it bridges queue
// jobs to durable records and pushes lifecycle events to the realtime hub.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sym-studio/sym-go/internal/apperr"
	"github.com/sym-studio/sym-go/internal/metrics"
	"github.com/sym-studio/sym-go/internal/models"
	"github.com/sym-studio/sym-go/internal/provider"
	"github.com/sym-studio/sym-go/internal/queue"
)

// JobTypeGenerate is the queue job type handled by this service.
const JobTypeGenerate = "ai-generate"

// RecordStore is the durable side of job bookkeeping. The SurrealDB client
// implements it; tests use an in-memory fake.
type RecordStore interface {
	CreateJob(ctx context.Context, job models.AIJob) (models.AIJob, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error
	UpdateJobResult(ctx context.Context, id string, status models.JobStatus, result models.JobResult) error
	GetJob(ctx context.Context, id string) (*models.AIJob, error)
	ListJobsByOwner(ctx context.Context, userID string, limit int) ([]models.AIJob, error)
}

// Notifier pushes job lifecycle events to interested clients.
type Notifier interface {
	EmitToJob(jobID, event string, payload any)
	EmitToUser(userID, event string, payload any)
}

// GenerateRequest is one generation submission.
type GenerateRequest struct {
	ProjectID string         `json:"projectId"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Input     map[string]any `json:"input"`
}

// GenerateResponse acknowledges an accepted submission.
type GenerateResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

// GenerateService accepts generation requests, runs them through the queue,
// and keeps the durable record in sync with the queue-side lifecycle.
type GenerateService struct {
	store    RecordStore
	queue    *queue.Queue
	registry *provider.Registry
	notify   Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewGenerateService wires the orchestrator and registers its queue handler.
func NewGenerateService(
	store RecordStore,
	q *queue.Queue,
	registry *provider.Registry,
	notify Notifier,
	collector *metrics.Collector,
	logger *slog.Logger,
) *GenerateService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GenerateService{
		store:    store,
		queue:    q,
		registry: registry,
		notify:   notify,
		metrics:  collector,
		logger:   logger,
	}
	q.RegisterHandler(JobTypeGenerate, s.processJob)
	return s
}

// Submit validates the request, creates the durable record, and enqueues
// the work. It returns as soon as the job is queued.
func (s *GenerateService) Submit(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	switch {
	case req.Provider == "":
		return GenerateResponse{}, apperr.Validation("provider is required")
	case req.Model == "":
		return GenerateResponse{}, apperr.Validation("model is required")
	case req.UserID == "":
		return GenerateResponse{}, apperr.Validation("userId is required")
	case len(req.Input) == 0:
		return GenerateResponse{}, apperr.Validation("input is required")
	}

	jobType := req.Type
	if jobType == "" {
		jobType = "generation"
	}

	createStart := time.Now()
	record, err := s.store.CreateJob(ctx, models.AIJob{
		ProjectID: req.ProjectID,
		CreatedBy: req.UserID,
		Type:      jobType,
		Provider:  req.Provider,
		Model:     req.Model,
		Status:    models.JobStatusQueued,
		Input:     req.Input,
	})
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpDBQuery, time.Since(createStart))
	}
	if err != nil {
		return GenerateResponse{}, err
	}

	queueID := s.queue.Submit(ctx, JobTypeGenerate, map[string]any{
		"jobId":     record.ID,
		"projectId": req.ProjectID,
		"userId":    req.UserID,
		"provider":  req.Provider,
		"model":     req.Model,
		"input":     req.Input,
	})

	s.logger.Info("generation job accepted",
		"job_id", record.ID, "queue_id", queueID,
		"provider", req.Provider, "model", req.Model, "user_id", req.UserID)

	return GenerateResponse{JobID: record.ID, Status: models.JobStatusQueued}, nil
}

// processJob runs one queued generation. The record is marked processing,
// the provider invoked, and the terminal outcome written back. Failures are
// returned so the queue-side job fails too.
func (s *GenerateService) processJob(ctx context.Context, job queue.Job) (any, error) {
	dispatchStart := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordTiming(metrics.OpQueueDispatch, time.Since(dispatchStart))
		}
	}()

	jobID, _ := job.Payload["jobId"].(string)
	userID, _ := job.Payload["userId"].(string)
	providerName, _ := job.Payload["provider"].(string)
	model, _ := job.Payload["model"].(string)
	input, _ := job.Payload["input"].(map[string]any)

	if jobID == "" {
		return nil, apperr.Internal("generation payload missing jobId")
	}

	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
		// The record lags behind but the work still runs.
		s.logger.Warn("failed to mark job processing", "job_id", jobID, "error", err)
	}

	start := time.Now()

	p, err := s.registry.Get(providerName)
	if err != nil {
		s.failJob(ctx, jobID, userID, start, err)
		return nil, err
	}

	res, err := p.Invoke(ctx, model, provider.Input(input))
	elapsed := time.Since(start)

	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderUsage(providerName, elapsed, 0, 0)
		}
		s.failJob(ctx, jobID, userID, start, err)
		return nil, err
	}

	if s.metrics != nil {
		in, out := usageTokens(res.Usage)
		s.metrics.RecordProviderUsage(providerName, elapsed, in, out)
	}

	result := models.JobResult{
		Output:      res.Output,
		Duration:    elapsed.Milliseconds(),
		CompletedAt: time.Now(),
	}
	if err := s.store.UpdateJobResult(ctx, jobID, models.JobStatusCompleted, result); err != nil {
		s.logger.Error("failed to persist job result", "job_id", jobID, "error", err)
	}

	payload := map[string]any{
		"jobId":  jobID,
		"status": models.JobStatusCompleted,
		"output": res.Output,
	}
	s.notify.EmitToJob(jobID, "job:completed", payload)
	s.notify.EmitToUser(userID, "job:completed", payload)

	s.logger.Info("generation job completed",
		"job_id", jobID, "provider", providerName, "model", model,
		"duration_ms", elapsed.Milliseconds())

	return res.Output, nil
}

// failJob records a terminal failure and notifies subscribers.
func (s *GenerateService) failJob(ctx context.Context, jobID, userID string, start time.Time, cause error) {
	msg := cause.Error()
	result := models.JobResult{
		Error:       &msg,
		Duration:    time.Since(start).Milliseconds(),
		CompletedAt: time.Now(),
	}
	if err := s.store.UpdateJobResult(ctx, jobID, models.JobStatusFailed, result); err != nil {
		s.logger.Error("failed to persist job failure", "job_id", jobID, "error", err)
	}

	payload := map[string]any{
		"jobId":  jobID,
		"status": models.JobStatusFailed,
		"error":  msg,
	}
	s.notify.EmitToJob(jobID, "job:failed", payload)
	s.notify.EmitToUser(userID, "job:failed", payload)

	s.logger.Error("generation job failed", "job_id", jobID, "error", cause)
}

// GetRecord returns the durable record for a job.
func (s *GenerateService) GetRecord(ctx context.Context, id string) (*models.AIJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("ai job", id)
	}
	return job, nil
}

// ListRecords returns the newest records created by a user.
func (s *GenerateService) ListRecords(ctx context.Context, userID string, limit int) ([]models.AIJob, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	return s.store.ListJobsByOwner(ctx, userID, limit)
}

// GetQueueJob exposes the ephemeral queue-side state of a submission.
func (s *GenerateService) GetQueueJob(id string) (queue.Job, error) {
	job, ok := s.queue.Get(id)
	if !ok {
		return queue.Job{}, apperr.NotFound("queue job", id)
	}
	return job, nil
}

// Models returns the aggregated model catalog.
func (s *GenerateService) Models() []provider.ModelInfo {
	return s.registry.Models()
}

// usageTokens extracts token counts from a provider usage map. Providers
// report numbers in whatever width their SDK uses.
func usageTokens(usage map[string]any) (int64, int64) {
	return asInt64(usage["input_tokens"]), asInt64(usage["output_tokens"])
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
