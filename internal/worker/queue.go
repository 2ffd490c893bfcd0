// Package worker hands generation jobs from the entry points to a fixed pool
// of goroutines running the generator.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/0x0BSoD/repofeed/internal/metrics"
	"github.com/0x0BSoD/repofeed/internal/model"
)

const (
	DefaultWorkers = 1
	DefaultSize    = 256
)

type Runner interface {
	Generate(ctx context.Context, id string) (model.Repository, error)
}

// Queue is a bounded queue of repository ids waiting for generation. An id
// is held at most once until a worker picks it up.
type Queue struct {
	runner  Runner
	workers int
	jobs    chan string

	mu     sync.Mutex
	queued map[string]struct{}
}

func New(runner Runner, workers, size int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{
		runner:  runner,
		workers: workers,
		jobs:    make(chan string, size),
		queued:  make(map[string]struct{}),
	}
}

// Enqueue schedules a generation for the repository and returns at once. It
// reports false when the id is already waiting or the queue is full.
func (q *Queue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; ok {
		return false
	}

	select {
	case q.jobs <- id:
		q.queued[id] = struct{}{}
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		slog.Warn("generation queue is full, dropping job", "id", id)
		return false
	}
}

// Len returns the number of jobs waiting for a worker.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Run starts the workers and blocks until ctx is done and every running
// generation has returned.
func (q *Queue) Run(ctx context.Context) error {
	slog.Info("generation workers started", "workers", q.workers)

	var wg sync.WaitGroup
	for range q.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()

	return ctx.Err()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.jobs:
			q.mu.Lock()
			delete(q.queued, id)
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			q.mu.Unlock()

			q.process(ctx, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	_, err := q.runner.Generate(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrGenerationInProgress):
		slog.Debug("generation already running", "id", id)
	case errors.Is(err, context.Canceled):
		slog.Info("generation cancelled", "id", id)
	default:
		slog.Error("generation failed", "id", id, "err", err)
	}
}
