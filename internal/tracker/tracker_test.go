package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_RegisterIDsDistinct(t *testing.T) {
	tr := New[string]()

	seen := make(map[uint64]bool)

	for i := 0; i < 1000; i++ {
		id, _ := tr.Register()
		require.False(t, seen[id], "id %d was reused", id)

		seen[id] = true
	}
}

func TestTracker_RegisterIDsDistinctConcurrent(t *testing.T) {
	tr := New[string]()

	var mu sync.Mutex

	seen := make(map[uint64]bool)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				id, _ := tr.Register()

				mu.Lock()

				require.False(t, seen[id])
				seen[id] = true

				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	require.Len(t, seen, 1000)
}

func TestTracker_CompleteDelivers(t *testing.T) {
	tr := New[string]()

	id, ch := tr.Register()

	require.True(t, tr.Complete(id, "response"))

	select {
	case got := <-ch:
		require.Equal(t, "response", got)
	case <-time.After(time.Second):
		t.Fatal("response not delivered")
	}

	require.Equal(t, 0, tr.Len())
}

func TestTracker_CompleteUnknownID(t *testing.T) {
	tr := New[string]()

	id, _ := tr.Register()

	require.False(t, tr.Complete(id+100, "nope"))
	require.Equal(t, 1, tr.Len())
}

func TestTracker_CompleteTwice(t *testing.T) {
	tr := New[string]()

	id, _ := tr.Register()

	require.True(t, tr.Complete(id, "first"))
	require.False(t, tr.Complete(id, "second"))
}

func TestTracker_AbandonedReceiver(t *testing.T) {
	tr := New[string]()

	// Register and never read the receiver. Complete must not block
	// and is treated as success.
	id, _ := tr.Register()

	done := make(chan struct{})

	go func() {
		defer close(done)

		require.True(t, tr.Complete(id, "into the void"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Complete blocked on abandoned receiver")
	}
}

func TestTracker_CleanupStale(t *testing.T) {
	tr := New[string]()

	current := time.Now()
	tr.now = func() time.Time { return current }

	oldA, _ := tr.Register()
	oldB, _ := tr.Register()

	current = current.Add(3 * time.Minute)

	fresh, _ := tr.Register()

	stale := tr.CleanupStale(time.Minute)
	require.ElementsMatch(t, []uint64{oldA, oldB}, stale)
	require.Equal(t, 1, tr.Len())

	// The fresh entry is still completable; the stale ones are gone.
	require.True(t, tr.Complete(fresh, "ok"))
	require.False(t, tr.Complete(oldA, "late"))
}

func TestTracker_CleanupStale_Empty(t *testing.T) {
	tr := New[int]()

	require.Empty(t, tr.CleanupStale(time.Minute))
}
