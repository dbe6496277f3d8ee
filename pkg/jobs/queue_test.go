package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRequiresStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "a"})
	require.Error(t, err)
}

func TestQueueDispatchesByPriority(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if job.ID == "blocker" {
			<-gate
			return nil
		}
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	// Occupy the single worker so the remaining jobs accumulate in the
	// heap and dispatch order is decided purely by priority.
	require.NoError(t, q.Enqueue(Job{ID: "blocker"}))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, q.Enqueue(Job{ID: "low", Priority: 1}))
	require.NoError(t, q.Enqueue(Job{ID: "medium-1", Priority: 2}))
	require.NoError(t, q.Enqueue(Job{ID: "urgent", Priority: 4}))
	require.NoError(t, q.Enqueue(Job{ID: "medium-2", Priority: 2}))
	require.NoError(t, q.Enqueue(Job{ID: "high", Priority: 3}))

	require.Equal(t, 5, q.Depth())
	close(gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Highest priority first; equal priorities keep enqueue order.
	require.Equal(t, []string{"urgent", "high", "medium-1", "medium-2", "low"}, order)
}

func TestQueueRetriesUntilExhausted(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exhausted := make(chan Job, 1)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	}, QueueConfig{
		Workers:     1,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		RetryCap:    5 * time.Millisecond,
		OnExhausted: func(ctx context.Context, job Job, err error) {
			exhausted <- job
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "doomed"}))

	select {
	case job := <-exhausted:
		require.Equal(t, "doomed", job.ID)
		require.Equal(t, 3, job.Attempt)
	case <-time.After(time.Second):
		t.Fatal("job never exhausted")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, attempts)
}

func TestQueueRecoversAfterTransientFailure(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	done := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{
		Workers:     1,
		MaxAttempts: 5,
		RetryBase:   time.Millisecond,
		RetryCap:    5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	gate := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-gate
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "blocker"}))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))
	require.Error(t, q.Enqueue(Job{ID: "overflow"}))

	close(gate)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	q := NewQueue("test", nil, QueueConfig{
		RetryBase: 2 * time.Second,
		RetryCap:  10 * time.Second,
	})

	require.Equal(t, 2*time.Second, q.backoff(1))
	require.Equal(t, 4*time.Second, q.backoff(2))
	require.Equal(t, 8*time.Second, q.backoff(3))
	require.Equal(t, 10*time.Second, q.backoff(4))
	require.Equal(t, 10*time.Second, q.backoff(8))
}
