package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	q := New(8, 2, time.Second, func(_ context.Context, j Job) {
		mu.Lock()
		seen[j.ImageID]++
		mu.Unlock()
	})

	assert.True(t, q.Enqueue(Job{ImageID: "a"}))
	assert.True(t, q.Enqueue(Job{ImageID: "b"}))
	q.Close()

	assert.Equal(t, map[string]int{"a": 1, "b": 1}, seen)
}

func TestQueueDedupesInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	q := New(8, 1, time.Second, func(_ context.Context, j Job) {
		close(started)
		<-release
	})

	require.True(t, q.Enqueue(Job{ImageID: "a"}))
	<-started
	assert.False(t, q.Enqueue(Job{ImageID: "a"}), "in-flight job must not be queued again")
	close(release)
	q.Close()
}

func TestQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	q := New(1, 1, time.Second, func(_ context.Context, j Job) {
		if j.ImageID == "busy" {
			close(started)
			<-release
		}
	})

	require.True(t, q.Enqueue(Job{ImageID: "busy"}))
	<-started
	require.True(t, q.Enqueue(Job{ImageID: "queued"}))
	assert.False(t, q.Enqueue(Job{ImageID: "overflow"}))

	close(release)
	q.Close()

	// dropped job is forgotten, so a later offer could be accepted again
	_, held := q.inFly.Load("overflow")
	assert.False(t, held)
}

func TestQueueJobHasDeadline(t *testing.T) {
	got := make(chan bool, 1)
	q := New(1, 1, 50*time.Millisecond, func(ctx context.Context, _ Job) {
		_, ok := ctx.Deadline()
		got <- ok
	})
	q.Enqueue(Job{ImageID: "a"})
	q.Close()
	assert.True(t, <-got)
}
