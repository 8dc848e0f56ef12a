// Package queue provides the in-process job queue that decouples request
// submission from execution. Jobs are dispatched on their own goroutine;
// there is no bounded worker pool, no backpressure, and no cross-job
// ordering guarantee. Jobs do not survive a process restart.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sym-studio/sym-go/internal/apperr"
)

// Status is the lifecycle state of a queue job. Transitions are strictly
// forward: queued -> processing -> {completed|failed}.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the ephemeral queue-side record of one submission. Result and
// Error are mutually exclusive and immutable once set.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      Status         `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Handler processes one job and returns its result or failure.
type Handler func(ctx context.Context, job Job) (any, error)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventProcessing EventType = "job:processing"
	EventCompleted  EventType = "job:completed"
	EventFailed     EventType = "job:failed"
)

// Event is one lifecycle notification carrying a snapshot of the job at
// the moment of transition.
type Event struct {
	Type EventType
	Job  Job
}

// subscriberBuffer sizes each subscriber channel. Events are dropped (with
// a warning) for subscribers that fall this far behind.
const subscriberBuffer = 256

type jobEntry struct {
	mu  sync.Mutex
	job Job
}

// Queue accepts job submissions and invokes exactly one registered handler
// per job without blocking the submitter.
type Queue struct {
	name string

	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	handlers map[string]Handler

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	wg sync.WaitGroup

	// sem bounds concurrent dispatch when non-nil.
	sem chan struct{}
}

// New creates a named queue with unbounded dispatch.
func New(name string) *Queue {
	return &Queue{
		name:     name,
		jobs:     make(map[string]*jobEntry),
		handlers: make(map[string]Handler),
		subs:     make(map[int]chan Event),
	}
}

// NewBounded creates a queue that runs at most limit handlers at once.
// Submissions above the limit stay queued until a slot frees up.
func NewBounded(name string, limit int) *Queue {
	q := New(name)
	if limit > 0 {
		q.sem = make(chan struct{}, limit)
	}
	return q
}

// RegisterHandler associates a job type with a handler. Registration is
// last-write-wins; replacing an existing handler is flagged because it is
// almost always a startup wiring mistake.
func (q *Queue) RegisterHandler(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.handlers[jobType]; exists {
		slog.Warn("handler re-registered, replacing previous", "queue", q.name, "type", jobType)
	}
	q.handlers[jobType] = h
	slog.Info("handler registered", "queue", q.name, "type", jobType)
}

// Submit creates a queued job and schedules dispatch on a fresh goroutine.
// It returns the job id immediately and never waits for completion.
func (q *Queue) Submit(ctx context.Context, jobType string, payload map[string]any) string {
	entry := &jobEntry{job: Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}}

	q.mu.Lock()
	q.jobs[entry.job.ID] = entry
	q.mu.Unlock()

	slog.Info("job submitted", "queue", q.name, "job_id", entry.job.ID, "type", jobType)

	// Dispatch outlives the submitter's request context.
	dispatchCtx := context.WithoutCancel(ctx)

	q.wg.Add(1)
	go q.dispatch(dispatchCtx, entry)

	return entry.job.ID
}

// Get returns a snapshot of the job, or false if the id is unknown.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.RLock()
	entry, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job, true
}

// List returns a snapshot of every job, newest first.
func (q *Queue) List() []Job {
	q.mu.RLock()
	entries := make([]*jobEntry, 0, len(q.jobs))
	for _, entry := range q.jobs {
		entries = append(entries, entry)
	}
	q.mu.RUnlock()

	jobs := make([]Job, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		jobs = append(jobs, entry.job)
		entry.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Subscribe registers a lifecycle event channel. The returned function
// removes the subscription and closes the channel.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	q.subMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	q.subMu.Unlock()

	unsubscribe := func() {
		q.subMu.Lock()
		defer q.subMu.Unlock()
		if _, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Wait blocks until every dispatched job has reached a terminal state.
// Used for graceful shutdown and in tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) dispatch(ctx context.Context, entry *jobEntry) {
	defer q.wg.Done()

	if q.sem != nil {
		q.sem <- struct{}{}
		defer func() { <-q.sem }()
	}

	q.mu.RLock()
	handler, ok := q.handlers[entry.job.Type]
	q.mu.RUnlock()

	if !ok {
		err := apperr.Internal("no handler registered for type: %s", entry.job.Type)
		slog.Warn("no handler for job type", "queue", q.name, "job_id", entry.job.ID, "type", entry.job.Type)
		q.fail(entry, err)
		return
	}

	if !q.transition(entry, StatusQueued, StatusProcessing) {
		return
	}
	q.publish(EventProcessing, entry)
	slog.Info("processing job", "queue", q.name, "job_id", entry.job.ID, "type", entry.job.Type)

	result, err := q.invoke(ctx, handler, entry)
	if err != nil {
		q.fail(entry, err)
		return
	}
	q.complete(entry, result)
}

// invoke runs the handler, converting panics into internal errors so a
// broken handler never takes down the process or stalls other jobs.
func (q *Queue) invoke(ctx context.Context, handler Handler, entry *jobEntry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked", "queue", q.name, "job_id", entry.job.ID, "panic", r)
			err = apperr.Internal("handler panic: %v", r)
		}
	}()

	entry.mu.Lock()
	snapshot := entry.job
	entry.mu.Unlock()

	return handler(ctx, snapshot)
}

// transition advances the job status if it is currently in from. Returns
// false when the job has already moved on; terminal states never regress.
func (q *Queue) transition(entry *jobEntry, from, to Status) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Status != from {
		return false
	}
	entry.job.Status = to
	return true
}

func (q *Queue) complete(entry *jobEntry, result any) {
	entry.mu.Lock()
	if entry.job.Status.Terminal() {
		entry.mu.Unlock()
		return
	}
	now := time.Now()
	entry.job.Status = StatusCompleted
	entry.job.Result = result
	entry.job.CompletedAt = &now
	entry.mu.Unlock()

	q.publish(EventCompleted, entry)
	slog.Info("job completed", "queue", q.name, "job_id", entry.job.ID, "type", entry.job.Type)
}

func (q *Queue) fail(entry *jobEntry, err error) {
	entry.mu.Lock()
	if entry.job.Status.Terminal() {
		entry.mu.Unlock()
		return
	}
	now := time.Now()
	entry.job.Status = StatusFailed
	entry.job.Error = err.Error()
	entry.job.CompletedAt = &now
	entry.mu.Unlock()

	q.publish(EventFailed, entry)
	slog.Error("job failed", "queue", q.name, "job_id", entry.job.ID, "type", entry.job.Type, "error", err)
}

// publish fans a snapshot out to every subscriber without blocking the
// dispatch goroutine. Slow subscribers lose events rather than stall jobs.
func (q *Queue) publish(eventType EventType, entry *jobEntry) {
	entry.mu.Lock()
	snapshot := entry.job
	entry.mu.Unlock()

	event := Event{Type: eventType, Job: snapshot}

	q.subMu.Lock()
	defer q.subMu.Unlock()
	for id, ch := range q.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("subscriber lagging, dropping event",
				"queue", q.name, "subscriber", id, "event", string(eventType))
		}
	}
}

// String implements fmt.Stringer for log contexts.
func (q *Queue) String() string {
	return fmt.Sprintf("queue(%s)", q.name)
}
