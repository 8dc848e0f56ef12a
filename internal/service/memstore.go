package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sym-studio/sym-go/internal/models"
)

// MemoryStore is an in-memory RecordStore. It backs the server when no
// database is configured and keeps tests hermetic. Records do not survive
// a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.AIJob
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.AIJob)}
}

func (m *MemoryStore) CreateJob(ctx context.Context, job models.AIJob) (models.AIJob, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return job, nil
}

func (m *MemoryStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	job.Status = status
	m.jobs[id] = job
	return nil
}

func (m *MemoryStore) UpdateJobResult(ctx context.Context, id string, status models.JobStatus, result models.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	job.Status = status
	job.Output = result.Output
	job.Error = result.Error
	job.Duration = result.Duration
	job.CompletedAt = &completed
	m.jobs[id] = job
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id string) (*models.AIJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (m *MemoryStore) ListJobsByOwner(ctx context.Context, userID string, limit int) ([]models.AIJob, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := []models.AIJob{}
	for _, job := range m.jobs {
		if job.CreatedBy == userID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
