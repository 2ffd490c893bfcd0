// Package service implements the operations exposed to the HTTP API and the
// admin bot: repository lookup and creation, generation triggers and status
// administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0x0BSoD/repofeed/internal/model"
	"github.com/0x0BSoD/repofeed/internal/staleness"
)

// GenerateTimeout bounds a generation pass run on behalf of a caller.
const GenerateTimeout = 2 * time.Minute

type RecordStore interface {
	Create(ctx context.Context, id model.Identity, now time.Time) (model.Repository, error)
	ByID(ctx context.Context, id string) (model.Repository, error)
	ByIdentity(ctx context.Context, id model.Identity) (model.Repository, error)
	All(ctx context.Context) ([]model.Repository, error)
	ByStatus(ctx context.Context, status model.Status) ([]model.Repository, error)
	SetStatus(ctx context.Context, id string, status model.Status, message string, now time.Time) (model.Repository, error)
}

type Generator interface {
	Generate(ctx context.Context, id string) (model.Repository, error)
}

type Enqueuer interface {
	Enqueue(id string) bool
}

type UpstreamChecker interface {
	RepositoryExists(ctx context.Context, id model.Identity) (bool, error)
}

type SearchResult struct {
	Found      bool             `json:"found"`
	Repository model.Repository `json:"repository"`
	Identity   model.Identity   `json:"identity"`
}

type Service struct {
	records   RecordStore
	generator Generator
	queue     Enqueuer
	upstream  UpstreamChecker
	policy    staleness.Policy

	verifyUpstream  bool
	generateTimeout time.Duration
	now             func() time.Time
}

// New builds the service. When verifyUpstream is set, repositories are
// checked on GitHub before a record is created for them.
func New(
	records RecordStore,
	generator Generator,
	queue Enqueuer,
	upstream UpstreamChecker,
	policy staleness.Policy,
	verifyUpstream bool,
) *Service {
	return &Service{
		records:        records,
		generator:      generator,
		queue:          queue,
		upstream:       upstream,
		policy:         policy,
		verifyUpstream:  verifyUpstream && upstream != nil,
		generateTimeout: GenerateTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Search resolves a GitHub URL to its record, creating it on first sight.
// New and stale records are queued for generation; the record is returned
// as it is now, without waiting.
func (s *Service) Search(ctx context.Context, githubURL string) (SearchResult, error) {
	id, err := model.ParseGitHubURL(githubURL)
	if err != nil {
		return SearchResult{}, err
	}

	rec, err := s.records.ByIdentity(ctx, id)
	switch {
	case err == nil:
		if rec.Status != model.StatusGenerating && s.policy.NeedsRefresh(rec, s.now()) {
			s.enqueue(rec)
		}
		return SearchResult{Found: true, Repository: rec, Identity: id}, nil
	case !errors.Is(err, model.ErrRecordNotFound):
		return SearchResult{}, err
	}

	rec, err = s.create(ctx, id)
	if errors.Is(err, model.ErrAlreadyExists) {
		// Lost a race with a concurrent search for the same repository.
		rec, err = s.records.ByIdentity(ctx, id)
		if err != nil {
			return SearchResult{}, err
		}
		return SearchResult{Found: true, Repository: rec, Identity: id}, nil
	}
	if err != nil {
		return SearchResult{}, err
	}

	return SearchResult{Repository: rec, Identity: id}, nil
}

// Create adds a pending record for the repository and queues its first
// generation.
func (s *Service) Create(ctx context.Context, githubURL string) (model.Repository, error) {
	id, err := model.ParseGitHubURL(githubURL)
	if err != nil {
		return model.Repository{}, err
	}

	_, err = s.records.ByIdentity(ctx, id)
	switch {
	case err == nil:
		return model.Repository{}, fmt.Errorf("%w: %s", model.ErrAlreadyExists, id)
	case !errors.Is(err, model.ErrRecordNotFound):
		return model.Repository{}, err
	}

	return s.create(ctx, id)
}

func (s *Service) create(ctx context.Context, id model.Identity) (model.Repository, error) {
	if s.verifyUpstream {
		exists, err := s.upstream.RepositoryExists(ctx, id)
		if err != nil {
			return model.Repository{}, fmt.Errorf("check %s on github: %w", id, err)
		}
		if !exists {
			return model.Repository{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
	}

	rec, err := s.records.Create(ctx, id, s.now())
	if err != nil {
		return model.Repository{}, err
	}

	slog.Info("repository added", "repository", id.String(), "id", rec.ID)
	s.enqueue(rec)

	return rec, nil
}

// ForceGenerate regenerates the feeds right away regardless of staleness.
func (s *Service) ForceGenerate(ctx context.Context, id string) (model.Repository, error) {
	return s.generate(ctx, id)
}

// GetFeeds returns the feed URLs of a record, regenerating them first when
// the cached ones are stale.
func (s *Service) GetFeeds(ctx context.Context, id string) (model.Feeds, error) {
	rec, err := s.records.ByID(ctx, id)
	if err != nil {
		return model.Feeds{}, err
	}

	if rec.Status == model.StatusGenerating {
		return model.Feeds{}, fmt.Errorf("%w: %s", model.ErrGenerationInProgress, rec.Identity())
	}

	if s.policy.NeedsRefresh(rec, s.now()) {
		rec, err = s.generate(ctx, id)
		if err != nil {
			return model.Feeds{}, err
		}
	}

	return rec.Feeds, nil
}

// generate runs a pass detached from the caller's cancellation so that a
// dropped client does not leave the record in error.
func (s *Service) generate(ctx context.Context, id string) (model.Repository, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.generateTimeout)
	defer cancel()
	return s.generator.Generate(ctx, id)
}

func (s *Service) GetPending(ctx context.Context) ([]model.Repository, error) {
	return s.records.ByStatus(ctx, model.StatusPending)
}

// GetAll returns every record, newest first.
func (s *Service) GetAll(ctx context.Context) ([]model.Repository, error) {
	return s.records.All(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (model.Repository, error) {
	return s.records.ByID(ctx, id)
}

// UpdateStatus overrides the status of a record. message is kept only when
// status is error.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.Status, message string) (model.Repository, error) {
	if !status.Valid() {
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	return s.records.SetStatus(ctx, id, status, message, s.now())
}

func (s *Service) enqueue(rec model.Repository) {
	if s.queue == nil {
		return
	}
	if !s.queue.Enqueue(rec.ID) {
		slog.Debug("generation not queued", "repository", rec.Identity().String())
	}
}
