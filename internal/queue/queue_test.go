package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sym-studio/sym-go/internal/queue"
)

func waitForTerminal(t *testing.T, q *queue.Queue, id string) queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := q.Get(id)
		require.True(t, ok, "job should exist")
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return queue.Job{}
}

func TestSubmitReturnsImmediately(t *testing.T) {
	q := queue.New("test")
	started := make(chan struct{})
	q.RegisterHandler("slow", func(ctx context.Context, job queue.Job) (any, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "done", nil
	})

	begin := time.Now()
	id := q.Submit(context.Background(), "slow", nil)
	assert.Less(t, time.Since(begin), 50*time.Millisecond, "submit must not wait for the handler")
	assert.NotEmpty(t, id)

	<-started
	job := waitForTerminal(t, q, id)
	assert.Equal(t, queue.StatusCompleted, job.Status)
	assert.Equal(t, "done", job.Result)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.CompletedAt)
}

func TestSubmitUnregisteredType(t *testing.T) {
	q := queue.New("test")

	id := q.Submit(context.Background(), "nobody-home", map[string]any{"x": 1})

	job := waitForTerminal(t, q, id)
	assert.Equal(t, queue.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "no handler registered for type: nobody-home")
	assert.Nil(t, job.Result)
}

func TestHandlerFailure(t *testing.T) {
	q := queue.New("test")
	q.RegisterHandler("boom", func(ctx context.Context, job queue.Job) (any, error) {
		return nil, errors.New("remote service melted")
	})

	id := q.Submit(context.Background(), "boom", nil)

	job := waitForTerminal(t, q, id)
	assert.Equal(t, queue.StatusFailed, job.Status)
	assert.Equal(t, "remote service melted", job.Error)
}

func TestHandlerPanicIsContained(t *testing.T) {
	q := queue.New("test")
	q.RegisterHandler("panic", func(ctx context.Context, job queue.Job) (any, error) {
		panic("should not escape")
	})
	q.RegisterHandler("ok", func(ctx context.Context, job queue.Job) (any, error) {
		return "fine", nil
	})

	panicID := q.Submit(context.Background(), "panic", nil)
	okID := q.Submit(context.Background(), "ok", nil)

	panicJob := waitForTerminal(t, q, panicID)
	assert.Equal(t, queue.StatusFailed, panicJob.Status)
	assert.Contains(t, panicJob.Error, "handler panic")

	okJob := waitForTerminal(t, q, okID)
	assert.Equal(t, queue.StatusCompleted, okJob.Status)
}

func TestGetUnknownJob(t *testing.T) {
	q := queue.New("test")
	_, ok := q.Get("nope")
	assert.False(t, ok)
}

func TestLifecycleEvents(t *testing.T) {
	q := queue.New("test")
	q.RegisterHandler("work", func(ctx context.Context, job queue.Job) (any, error) {
		return 42, nil
	})

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	id := q.Submit(context.Background(), "work", nil)
	q.Wait()

	var types []queue.EventType
	for len(types) < 2 {
		select {
		case ev := <-events:
			assert.Equal(t, id, ev.Job.ID)
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	assert.Equal(t, []queue.EventType{queue.EventProcessing, queue.EventCompleted}, types)
}

func TestFailedEventCarriesError(t *testing.T) {
	q := queue.New("test")

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	q.Submit(context.Background(), "missing", nil)
	q.Wait()

	select {
	case ev := <-events:
		assert.Equal(t, queue.EventFailed, ev.Type)
		assert.Contains(t, ev.Job.Error, "no handler")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job:failed event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	q := queue.New("test")
	q.RegisterHandler("work", func(ctx context.Context, job queue.Job) (any, error) {
		return nil, nil
	})

	events, unsubscribe := q.Subscribe()
	unsubscribe()

	q.Submit(context.Background(), "work", nil)
	q.Wait()

	_, open := <-events
	assert.False(t, open, "channel should be closed after unsubscribe")
}

func TestConcurrentSubmissions(t *testing.T) {
	q := queue.New("test")
	q.RegisterHandler("work", func(ctx context.Context, job queue.Job) (any, error) {
		if n, _ := job.Payload["n"].(int); n%5 == 0 {
			return nil, errors.New("multiple of five")
		}
		return "ok", nil
	})

	const n = 100
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = q.Submit(context.Background(), "work", map[string]any{"n": i})
		}(i)
	}
	wg.Wait()
	q.Wait()

	seen := make(map[string]queue.Status, n)
	for _, id := range ids {
		job, ok := q.Get(id)
		require.True(t, ok)
		require.True(t, job.Status.Terminal(), "job %s stuck in %s", id, job.Status)

		// A given id must have exactly one terminal state.
		if prev, dup := seen[job.ID]; dup {
			assert.Equal(t, prev, job.Status)
		}
		seen[job.ID] = job.Status

		if job.Status == queue.StatusCompleted {
			assert.NotNil(t, job.Result)
			assert.Empty(t, job.Error)
		} else {
			assert.Nil(t, job.Result)
			assert.NotEmpty(t, job.Error)
		}
	}
	assert.Len(t, seen, n, "ids must be unique")
}

func TestBoundedQueueRunsAllJobs(t *testing.T) {
	q := queue.NewBounded("test", 2)

	var mu sync.Mutex
	running, peak := 0, 0
	q.RegisterHandler("work", func(ctx context.Context, job queue.Job) (any, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	})

	for i := 0; i < 10; i++ {
		q.Submit(context.Background(), "work", nil)
	}
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "bounded queue must respect its limit")
}

func TestResultImmutableAfterTerminal(t *testing.T) {
	q := queue.New("test")
	q.RegisterHandler("work", func(ctx context.Context, job queue.Job) (any, error) {
		return "first", nil
	})

	id := q.Submit(context.Background(), "work", nil)
	job := waitForTerminal(t, q, id)
	require.Equal(t, queue.StatusCompleted, job.Status)

	// Snapshot again later: nothing about the terminal job may change.
	again, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, job.Status, again.Status)
	assert.Equal(t, job.Result, again.Result)
	assert.Equal(t, job.CompletedAt.Unix(), again.CompletedAt.Unix())
}
