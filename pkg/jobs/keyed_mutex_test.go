package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	holders := 0
	maxHolders := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !m.Lock(ctx, "institution:inst-1") {
				t.Error("lock acquisition failed")
				return
			}
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			m.Unlock("institution:inst-1")
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxHolders)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	require.True(t, m.Lock(ctx, "career:c-1"))
	defer m.Unlock("career:c-1")

	// A different key must not be blocked by the held one.
	acquired := make(chan struct{})
	go func() {
		if m.Lock(ctx, "career:c-2") {
			close(acquired)
			m.Unlock("career:c-2")
		}
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
}

func TestKeyedMutexLockCancellation(t *testing.T) {
	m := NewKeyedMutex()

	require.True(t, m.Lock(context.Background(), "deadline:d-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.False(t, m.Lock(ctx, "deadline:d-1"))

	// The holder is unaffected by the cancelled waiter.
	m.Unlock("deadline:d-1")
	require.True(t, m.Lock(context.Background(), "deadline:d-1"))
	m.Unlock("deadline:d-1")
}
