package jobs

import (
	"context"
	"sync"
	"time"
)

type Job struct {
	ImageID string
}

// Queue runs image jobs on a fixed worker pool. An image already queued or
// in flight is not queued twice.
type Queue struct {
	ch      chan Job
	inFly   sync.Map // image id -> struct{}
	do      func(ctx context.Context, j Job)
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

func New(capacity int, workerCount int, timeout time.Duration, do func(ctx context.Context, j Job)) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	q := &Queue{ch: make(chan Job, capacity), do: do, timeout: timeout}
	q.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go q.worker()
	}
	return q
}

// Enqueue reports whether the job was accepted. Duplicates and jobs offered
// to a full queue are dropped; the sweeper picks those up later.
func (q *Queue) Enqueue(j Job) bool {
	if _, exists := q.inFly.LoadOrStore(j.ImageID, struct{}{}); exists {
		return false
	}
	select {
	case q.ch <- j:
		return true
	default:
		q.inFly.Delete(j.ImageID)
		return false
	}
}

// Close stops accepting work and waits for the workers to drain the queue.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.ch) })
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		func() {
			defer func() {
				q.inFly.Delete(j.ImageID)
				cancel()
			}()
			if q.do != nil {
				q.do(ctx, j)
			}
		}()
	}
}
