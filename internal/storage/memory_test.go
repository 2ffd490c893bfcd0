package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/repofeed/internal/model"
)

var (
	octocat = model.Identity{Owner: "octocat", Repo: "hello-world"}
	t0      = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func TestMemoryStorage_Create(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r, err := s.Create(ctx, octocat, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, "https://github.com/octocat/hello-world", r.URL)
	assert.Equal(t, t0, r.CreatedAt)
	assert.Equal(t, model.Feeds{}, r.Feeds)

	_, err = s.Create(ctx, octocat, t0)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	byURL, err := s.ByURL(ctx, r.URL)
	require.NoError(t, err)
	assert.Equal(t, r.ID, byURL.ID)

	byIdentity, err := s.ByIdentity(ctx, octocat)
	require.NoError(t, err)
	assert.Equal(t, r.ID, byIdentity.ID)

	_, err = s.ByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestMemoryStorage_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	lease := 15 * time.Minute

	r, err := s.Create(ctx, octocat, t0)
	require.NoError(t, err)

	started, err := s.StartGeneration(ctx, r.ID, t0.Add(time.Second), t0.Add(time.Second-lease))
	require.NoError(t, err)
	assert.Equal(t, model.StatusGenerating, started.Status)

	_, err = s.StartGeneration(ctx, r.ID, t0.Add(2*time.Second), t0.Add(2*time.Second-lease))
	assert.ErrorIs(t, err, model.ErrGenerationInProgress)

	failed, err := s.FailGeneration(ctx, r.ID, "boom", t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, failed.Status)
	assert.Equal(t, "boom", failed.Error)

	_, err = s.StartGeneration(ctx, r.ID, t0.Add(4*time.Second), t0.Add(4*time.Second-lease))
	require.NoError(t, err)

	u := "https://cdn.example.com/rss/octocat-hello-world/issues.xml"
	ready, err := s.CompleteGeneration(ctx, r.ID, model.Feeds{Issues: &u}, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, ready.Status)
	assert.Empty(t, ready.Error)
	assert.Equal(t, &u, ready.Feeds.Issues)
	assert.Equal(t, t0.Add(5*time.Second), *ready.LastUpdate)
	assert.Equal(t, t0, ready.CreatedAt)
}

func TestMemoryStorage_StartGenerationTakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r, err := s.Create(ctx, octocat, t0)
	require.NoError(t, err)
	_, err = s.StartGeneration(ctx, r.ID, t0, t0.Add(-time.Minute))
	require.NoError(t, err)

	later := t0.Add(20 * time.Minute)
	_, err = s.StartGeneration(ctx, r.ID, later, later.Add(-15*time.Minute))
	assert.NoError(t, err)
}

func TestMemoryStorage_StartGenerationIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r, err := s.Create(ctx, octocat, t0)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.StartGeneration(ctx, r.ID, t0, t0.Add(-time.Minute)); err == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
}

func TestMemoryStorage_Due(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := t0.Add(time.Hour)

	mk := func(repo string) model.Repository {
		r, err := s.Create(ctx, model.Identity{Owner: "o", Repo: repo}, t0)
		require.NoError(t, err)
		return r
	}

	pending := mk("pending")
	fresh := mk("fresh")
	stale := mk("stale")
	errored := mk("errored")
	busy := mk("busy")

	_, err := s.CompleteGeneration(ctx, fresh.ID, model.Feeds{}, now.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = s.CompleteGeneration(ctx, stale.ID, model.Feeds{}, now.Add(-40*time.Minute))
	require.NoError(t, err)
	_, err = s.FailGeneration(ctx, errored.ID, "x", now)
	require.NoError(t, err)
	_, err = s.StartGeneration(ctx, busy.ID, now.Add(-time.Minute), now.Add(-time.Hour))
	require.NoError(t, err)

	due, err := s.Due(ctx, now.Add(-30*time.Minute), now.Add(-15*time.Minute))
	require.NoError(t, err)

	ids := lo.Map(due, func(r model.Repository, _ int) string { return r.Repo })
	assert.ElementsMatch(t, []string{pending.Repo, stale.Repo, errored.Repo}, ids)
}

func TestMemoryStorage_SetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r, err := s.Create(ctx, octocat, t0)
	require.NoError(t, err)

	r, err = s.SetStatus(ctx, r.ID, model.StatusError, "manual", t0)
	require.NoError(t, err)
	assert.Equal(t, "manual", r.Error)

	r, err = s.SetStatus(ctx, r.ID, model.StatusPending, "ignored", t0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Empty(t, r.Error)

	pending, err := s.ByStatus(ctx, model.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
