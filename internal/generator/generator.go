// Package generator drives a repository through one feed generation pass:
// fetch every feed type, render it, publish it and commit the outcome.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0x0BSoD/repofeed/internal/feed"
	"github.com/0x0BSoD/repofeed/internal/metrics"
	"github.com/0x0BSoD/repofeed/internal/model"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultLease        = 15 * time.Minute
)

type RecordStore interface {
	StartGeneration(ctx context.Context, id string, now, leaseBefore time.Time) (model.Repository, error)
	CompleteGeneration(ctx context.Context, id string, feeds model.Feeds, now time.Time) (model.Repository, error)
	FailGeneration(ctx context.Context, id, message string, now time.Time) (model.Repository, error)
}

type Gateway interface {
	Fetch(ctx context.Context, id model.Identity, feedType model.FeedType) ([]model.Item, error)
}

type Publisher interface {
	Publish(ctx context.Context, id model.Identity, docs map[model.FeedType]string) model.Feeds
}

type Reporter interface {
	Notify(msg string)
}

type Generator struct {
	records   RecordStore
	gateway   Gateway
	publisher Publisher
	reporter  Reporter

	fetchTimeout time.Duration
	lease        time.Duration
	now          func() time.Time
}

func New(
	records RecordStore,
	gateway Gateway,
	publisher Publisher,
	reporter Reporter,
	fetchTimeout time.Duration,
	lease time.Duration,
) *Generator {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Generator{
		records:      records,
		gateway:      gateway,
		publisher:    publisher,
		reporter:     reporter,
		fetchTimeout: fetchTimeout,
		lease:        lease,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Generate runs one generation pass for the record with the given id. It
// returns model.ErrGenerationInProgress without touching the record when
// another pass holds it. Failures of single feed types leave those feeds
// unset; the pass still ends in ready.
func (g *Generator) Generate(ctx context.Context, id string) (model.Repository, error) {
	started := g.now()

	rec, err := g.records.StartGeneration(ctx, id, started, started.Add(-g.lease))
	if err != nil {
		if errors.Is(err, model.ErrGenerationInProgress) {
			metrics.GenerationsTotal.WithLabelValues("busy").Inc()
		}
		return model.Repository{}, err
	}

	repo := rec.Identity()
	slog.Info("generating feeds", "repository", repo.String())

	if g.publisher == nil {
		return g.fail(ctx, rec, started, fmt.Errorf("%w: no feed publisher configured", model.ErrConfiguration))
	}

	docs := g.renderAll(ctx, repo)
	if err := ctx.Err(); err != nil {
		return g.fail(context.WithoutCancel(ctx), rec, started, fmt.Errorf("generation interrupted: %w", err))
	}

	feeds := g.publisher.Publish(ctx, repo, docs)

	done, err := g.records.CompleteGeneration(ctx, rec.ID, feeds, g.now())
	if err != nil {
		return g.fail(context.WithoutCancel(ctx), rec, started, fmt.Errorf("commit feeds of %s: %w", repo, err))
	}

	metrics.RecordGeneration("ready", g.now().Sub(started).Seconds())
	slog.Info("feeds generated", "repository", repo.String(), "published", len(docs))

	return done, nil
}

// renderAll fetches and renders every feed type concurrently. Feed types
// that could not be fetched or rendered are missing from the result.
func (g *Generator) renderAll(ctx context.Context, repo model.Identity) map[model.FeedType]string {
	var (
		eg      errgroup.Group
		mu      sync.Mutex
		docs    = make(map[model.FeedType]string, len(model.FeedTypes))
		builtAt = g.now()
	)

	for _, feedType := range model.FeedTypes {
		eg.Go(func() error {
			doc, err := g.render(ctx, repo, feedType, builtAt)
			if err != nil {
				slog.Warn("feed unavailable", "repository", repo.String(), "feed_type", feedType, "err", err)
				return nil
			}

			mu.Lock()
			docs[feedType] = doc
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return docs
}

func (g *Generator) render(ctx context.Context, repo model.Identity, feedType model.FeedType, builtAt time.Time) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	items, err := g.gateway.Fetch(fetchCtx, repo, feedType)
	metrics.RecordFeed(string(feedType), "fetch", err)
	if err != nil {
		if feedType != model.FeedDiscussions {
			return "", err
		}
		// Discussions are best effort.
		slog.Debug("discussions unavailable, rendering empty feed", "repository", repo.String(), "err", err)
		items = nil
	}

	return feed.Render(repo, feedType, items, builtAt)
}

func (g *Generator) fail(ctx context.Context, rec model.Repository, started time.Time, cause error) (model.Repository, error) {
	metrics.RecordGeneration("error", g.now().Sub(started).Seconds())
	slog.Error("feed generation failed", "repository", rec.Identity().String(), "err", cause)

	if g.reporter != nil {
		g.reporter.Notify(fmt.Sprintf("feed generation for %s failed: %v", rec.Identity(), cause))
	}

	failed, err := g.records.FailGeneration(ctx, rec.ID, cause.Error(), g.now())
	if err != nil {
		return model.Repository{}, errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	return failed, cause
}
