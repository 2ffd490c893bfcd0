package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/repofeed/internal/model"
	"github.com/0x0BSoD/repofeed/internal/staleness"
	"github.com/0x0BSoD/repofeed/internal/storage"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeQueue) Enqueue(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return true
}

type fakeUpstream struct {
	exists bool
	err    error
	calls  int
}

func (f *fakeUpstream) RepositoryExists(context.Context, model.Identity) (bool, error) {
	f.calls++
	return f.exists, f.err
}

// fakeGenerator marks the record ready with a single issues feed.
type fakeGenerator struct {
	store    *storage.MemoryStorage
	calls    int
	err      error
	ctxErr   error
	deadline bool
}

func (f *fakeGenerator) Generate(ctx context.Context, id string) (model.Repository, error) {
	f.calls++
	f.ctxErr = ctx.Err()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return model.Repository{}, f.err
	}
	if _, err := f.store.StartGeneration(ctx, id, t0, t0.Add(-time.Hour)); err != nil {
		return model.Repository{}, err
	}
	return f.store.CompleteGeneration(ctx, id, model.Feeds{Issues: lo.ToPtr("https://cdn.example.com/issues.xml")}, t0)
}

type fixture struct {
	svc       *Service
	store     *storage.MemoryStorage
	queue     *fakeQueue
	upstream  *fakeUpstream
	generator *fakeGenerator
}

func newFixture(verify bool) *fixture {
	store := storage.NewMemoryStorage()
	f := &fixture{
		store:     store,
		queue:     &fakeQueue{},
		upstream:  &fakeUpstream{exists: true},
		generator: &fakeGenerator{store: store},
	}
	f.svc = New(store, f.generator, f.queue, f.upstream, staleness.New(30*time.Minute), verify)
	f.svc.now = func() time.Time { return t0 }
	return f
}

func TestSearch_CreatesAndQueues(t *testing.T) {
	f := newFixture(true)

	res, err := f.svc.Search(context.Background(), "https://github.com/octocat/Hello-World.git")
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Equal(t, model.Identity{Owner: "octocat", Repo: "hello-world"}, res.Identity)
	assert.Equal(t, model.StatusPending, res.Repository.Status)
	assert.Equal(t, "https://github.com/octocat/hello-world", res.Repository.URL)
	assert.Equal(t, []string{res.Repository.ID}, f.queue.ids)
	assert.Equal(t, 1, f.upstream.calls)
	assert.Zero(t, f.generator.calls)
}

func TestSearch_InvalidURL(t *testing.T) {
	f := newFixture(true)

	_, err := f.svc.Search(context.Background(), "https://gitlab.com/octocat/hello-world")
	assert.ErrorIs(t, err, model.ErrInvalidURL)

	all, err := f.store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSearch_UpstreamMissing(t *testing.T) {
	f := newFixture(true)
	f.upstream.exists = false

	_, err := f.svc.Search(context.Background(), "github.com/octocat/nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	all, err := f.store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSearch_UpstreamCheckFails(t *testing.T) {
	f := newFixture(true)
	f.upstream.err = &model.GatewayError{StatusCode: 502}

	_, err := f.svc.Search(context.Background(), "github.com/octocat/hello-world")
	var gerr *model.GatewayError
	assert.ErrorAs(t, err, &gerr)
}

func TestSearch_WithoutUpstreamCheck(t *testing.T) {
	f := newFixture(false)
	f.upstream.exists = false

	res, err := f.svc.Search(context.Background(), "github.com/octocat/hello-world")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Repository.Status)
	assert.Zero(t, f.upstream.calls)
}

func TestSearch_ExistingRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	rec, err := f.store.Create(ctx, model.Identity{Owner: "octocat", Repo: "hello-world"}, t0.Add(-time.Hour))
	require.NoError(t, err)

	_, err = f.store.CompleteGeneration(ctx, rec.ID, model.Feeds{}, t0.Add(-10*time.Minute))
	require.NoError(t, err)

	res, err := f.svc.Search(ctx, "https://github.com/octocat/hello-world")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Empty(t, f.queue.ids, "fresh record must not be queued")

	_, err = f.store.CompleteGeneration(ctx, rec.ID, model.Feeds{}, t0.Add(-31*time.Minute))
	require.NoError(t, err)

	res, err = f.svc.Search(ctx, "https://github.com/octocat/hello-world")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []string{rec.ID}, f.queue.ids)
	assert.Zero(t, f.upstream.calls, "existing records are not checked upstream")
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	rec, err := f.svc.Create(ctx, "https://github.com/octocat/hello-world")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, model.Feeds{}, rec.Feeds)
	assert.Equal(t, []string{rec.ID}, f.queue.ids)

	_, err = f.svc.Create(ctx, "https://github.com/OctoCat/Hello-World")
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
	assert.Equal(t, 1, f.upstream.calls)
}

func TestGetFeeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	rec, err := f.svc.Create(ctx, "github.com/octocat/hello-world")
	require.NoError(t, err)

	feeds, err := f.svc.GetFeeds(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, feeds.Issues)
	assert.Equal(t, 1, f.generator.calls, "pending record is generated on read")

	feeds, err = f.svc.GetFeeds(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, feeds.Issues)
	assert.Equal(t, 1, f.generator.calls, "fresh record is served from cache")

	f.svc.now = func() time.Time { return t0.Add(31 * time.Minute) }
	_, err = f.svc.GetFeeds(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.generator.calls, "stale record is regenerated")
}

func TestGetFeeds_Generating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	rec, err := f.svc.Create(ctx, "github.com/octocat/hello-world")
	require.NoError(t, err)
	_, err = f.store.StartGeneration(ctx, rec.ID, t0, t0.Add(-time.Hour))
	require.NoError(t, err)

	_, err = f.svc.GetFeeds(ctx, rec.ID)
	assert.ErrorIs(t, err, model.ErrGenerationInProgress)
	assert.Zero(t, f.generator.calls)
}

func TestGetFeeds_GenerationFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	f.generator.err = errors.New("boom")

	rec, err := f.svc.Create(ctx, "github.com/octocat/hello-world")
	require.NoError(t, err)

	_, err = f.svc.GetFeeds(ctx, rec.ID)
	assert.EqualError(t, err, "boom")

	_, err = f.svc.GetFeeds(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestForceGenerate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	rec, err := f.svc.Create(ctx, "github.com/octocat/hello-world")
	require.NoError(t, err)

	for range 2 {
		rec, err = f.svc.ForceGenerate(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusReady, rec.Status)
	}
	assert.Equal(t, 2, f.generator.calls)
}

func TestForceGenerate_OutlivesCaller(t *testing.T) {
	f := newFixture(false)

	rec, err := f.svc.Create(context.Background(), "github.com/octocat/hello-world")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err = f.svc.ForceGenerate(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, rec.Status)
	assert.NoError(t, f.generator.ctxErr)
	assert.True(t, f.generator.deadline)
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	first, err := f.svc.Create(ctx, "github.com/octocat/one")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return t0.Add(time.Minute) }
	second, err := f.svc.Create(ctx, "github.com/octocat/two")
	require.NoError(t, err)

	_, err = f.svc.ForceGenerate(ctx, first.ID)
	require.NoError(t, err)

	pending, err := f.svc.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	got, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	rec, err := f.svc.Create(ctx, "github.com/octocat/hello-world")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, rec.ID, model.Status("done"), "")
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	rec, err = f.svc.UpdateStatus(ctx, rec.ID, model.StatusError, "disabled by admin")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, rec.Status)
	assert.Equal(t, "disabled by admin", rec.Error)

	rec, err = f.svc.UpdateStatus(ctx, rec.ID, model.StatusPending, "ignored")
	require.NoError(t, err)
	assert.Empty(t, rec.Error)

	_, err = f.svc.UpdateStatus(ctx, "missing", model.StatusPending, "")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}
