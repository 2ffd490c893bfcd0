package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/0x0BSoD/repofeed/internal/model"
	"github.com/0x0BSoD/repofeed/internal/staleness"
)

const DefaultInterval = 5 * time.Minute

type RecordProvider interface {
	Due(ctx context.Context, staleBefore, leaseBefore time.Time) ([]model.Repository, error)
}

type Enqueuer interface {
	Enqueue(id string) bool
}

// Scheduler periodically queues every repository that is pending, errored,
// stale or stuck in an expired generation.
type Scheduler struct {
	records RecordProvider
	queue   Enqueuer
	policy  staleness.Policy

	interval time.Duration
	lease    time.Duration
	now      func() time.Time
}

func New(
	records RecordProvider,
	queue Enqueuer,
	policy staleness.Policy,
	interval time.Duration,
	lease time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		records:  records,
		queue:    queue,
		policy:   policy,
		interval: interval,
		lease:    lease,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.EnqueueDue(ctx)
	if err != nil {
		slog.Error("failed to list due repositories", "err", err)
		return
	}
	if n > 0 {
		slog.Info("queued repositories for generation", "count", n)
	}
}

// EnqueueDue queues every due repository and returns how many were accepted.
func (s *Scheduler) EnqueueDue(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.records.Due(ctx, s.policy.StaleBefore(now), now.Add(-s.lease))
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, r := range due {
		if s.queue.Enqueue(r.ID) {
			queued++
		}
	}
	return queued, nil
}
