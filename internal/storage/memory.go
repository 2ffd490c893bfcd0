package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/0x0BSoD/repofeed/internal/model"
)

// MemoryStorage keeps repository records in process memory. It follows the
// same rules as RepositoryStorage, including the guarded generation start.
type MemoryStorage struct {
	mu      sync.Mutex
	records map[string]model.Repository
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]model.Repository)}
}

func (s *MemoryStorage) Create(_ context.Context, id model.Identity, now time.Time) (model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if (r.Owner == id.Owner && r.Repo == id.Repo) || r.URL == id.URL() {
			return model.Repository{}, fmt.Errorf("%w: %s", model.ErrAlreadyExists, id)
		}
	}

	now = now.UTC()
	r := model.Repository{
		ID:         uuid.NewString(),
		Owner:      id.Owner,
		Repo:       id.Repo,
		URL:        id.URL(),
		Status:     model.StatusPending,
		CreatedAt:  now,
		LastUpdate: lo.ToPtr(now),
	}
	s.records[r.ID] = r
	return r, nil
}

func (s *MemoryStorage) ByID(_ context.Context, id string) (model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrRecordNotFound, id)
	}
	return r, nil
}

func (s *MemoryStorage) ByIdentity(_ context.Context, id model.Identity) (model.Repository, error) {
	return s.find(func(r model.Repository) bool { return r.Owner == id.Owner && r.Repo == id.Repo })
}

func (s *MemoryStorage) ByURL(_ context.Context, url string) (model.Repository, error) {
	return s.find(func(r model.Repository) bool { return r.URL == url })
}

func (s *MemoryStorage) All(_ context.Context) ([]model.Repository, error) {
	out := s.filter(func(model.Repository) bool { return true })
	slices.Reverse(out)
	return out, nil
}

func (s *MemoryStorage) ByStatus(_ context.Context, status model.Status) ([]model.Repository, error) {
	return s.filter(func(r model.Repository) bool { return r.Status == status }), nil
}

func (s *MemoryStorage) Due(_ context.Context, staleBefore, leaseBefore time.Time) ([]model.Repository, error) {
	out := s.filter(func(r model.Repository) bool {
		switch r.Status {
		case model.StatusPending, model.StatusError:
			return true
		case model.StatusReady:
			return r.LastUpdate == nil || r.LastUpdate.Before(staleBefore)
		case model.StatusGenerating:
			return r.LastUpdate == nil || r.LastUpdate.Before(leaseBefore)
		}
		return false
	})
	slices.SortStableFunc(out, func(a, b model.Repository) int {
		return lo.FromPtr(a.LastUpdate).Compare(lo.FromPtr(b.LastUpdate))
	})
	return out, nil
}

func (s *MemoryStorage) StartGeneration(_ context.Context, id string, now, leaseBefore time.Time) (model.Repository, error) {
	return s.update(id, func(r *model.Repository) error {
		if r.Status == model.StatusGenerating && r.LastUpdate != nil && !r.LastUpdate.Before(leaseBefore) {
			return fmt.Errorf("%w: %q", model.ErrGenerationInProgress, id)
		}
		r.Status = model.StatusGenerating
		r.LastUpdate = lo.ToPtr(now.UTC())
		return nil
	})
}

func (s *MemoryStorage) CompleteGeneration(_ context.Context, id string, feeds model.Feeds, now time.Time) (model.Repository, error) {
	return s.update(id, func(r *model.Repository) error {
		r.Status = model.StatusReady
		r.Feeds = feeds
		r.Error = ""
		r.LastUpdate = lo.ToPtr(now.UTC())
		return nil
	})
}

func (s *MemoryStorage) FailGeneration(_ context.Context, id, message string, now time.Time) (model.Repository, error) {
	return s.update(id, func(r *model.Repository) error {
		r.Status = model.StatusError
		r.Error = message
		r.LastUpdate = lo.ToPtr(now.UTC())
		return nil
	})
}

func (s *MemoryStorage) SetStatus(_ context.Context, id string, status model.Status, message string, now time.Time) (model.Repository, error) {
	return s.update(id, func(r *model.Repository) error {
		r.Status = status
		r.Error = lo.Ternary(status == model.StatusError, message, "")
		r.LastUpdate = lo.ToPtr(now.UTC())
		return nil
	})
}

func (s *MemoryStorage) update(id string, fn func(r *model.Repository) error) (model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrRecordNotFound, id)
	}
	if err := fn(&r); err != nil {
		return model.Repository{}, err
	}
	s.records[id] = r
	return r, nil
}

func (s *MemoryStorage) find(match func(model.Repository) bool) (model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if match(r) {
			return r, nil
		}
	}
	return model.Repository{}, model.ErrRecordNotFound
}

// filter returns matching records ordered by creation time, oldest first.
func (s *MemoryStorage) filter(match func(model.Repository) bool) []model.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := lo.Filter(lo.Values(s.records), func(r model.Repository, _ int) bool { return match(r) })
	slices.SortStableFunc(out, func(a, b model.Repository) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}
