// Package source implements the GitHub gateway that fetches repository activity for each feed type.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/0x0BSoD/repofeed/internal/metrics"
	"github.com/0x0BSoD/repofeed/internal/model"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultPerPage = 50
	maxPerPage     = 100

	userAgent  = "repofeed"
	apiVersion = "2022-11-28"

	// maxErrorBody bounds how much of a failed response is kept in a GatewayError.
	maxErrorBody = 1 << 10
)

type Options struct {
	BaseURL  string
	Token    string
	PerPage  int
	Interval time.Duration
	Client   *http.Client
}

// GitHub fetches issues, pull requests, discussions and releases from the
// GitHub REST API. A GitHub is safe for concurrent use.
type GitHub struct {
	baseURL string
	token   string
	perPage int
	client  *http.Client
	limiter *rate.Limiter
}

func NewGitHub(opts Options) *GitHub {
	g := &GitHub{
		baseURL: strings.TrimRight(lo.Ternary(opts.BaseURL == "", DefaultBaseURL, opts.BaseURL), "/"),
		token:   opts.Token,
		perPage: clampPerPage(opts.PerPage),
		client:  opts.Client,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Interval > 0 {
		g.limiter = rate.NewLimiter(rate.Every(opts.Interval), 4)
	}
	return g
}

func clampPerPage(n int) int {
	if n <= 0 {
		return DefaultPerPage
	}
	return min(n, maxPerPage)
}

// Fetch returns the latest items of the given feed type. A 404 (repository
// missing or feature disabled) yields an empty list; other non-2xx statuses
// yield a *model.GatewayError.
func (g *GitHub) Fetch(ctx context.Context, id model.Identity, feedType model.FeedType) ([]model.Item, error) {
	endpoint, query, err := g.endpoint(feedType)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repos/%s/%s/%s?%s",
		g.baseURL, url.PathEscape(id.Owner), url.PathEscape(id.Repo), endpoint, query.Encode())

	status, body, err := g.get(ctx, endpoint, u)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNotFound:
		return []model.Item{}, nil
	case status < 200 || status > 299:
		return nil, &model.GatewayError{FeedType: feedType, StatusCode: status, Body: truncate(body)}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		slog.Warn("github returned a non-array payload", "repository", id.String(), "feed_type", feedType)
		return []model.Item{}, nil
	}

	var items []model.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode %s of %s: %w", feedType, id, err)
	}

	if feedType == model.FeedIssues {
		items = lo.Filter(items, func(it model.Item, _ int) bool { return it.PullRequest == nil })
	}

	return items, nil
}

// RepositoryExists reports whether the repository is visible on GitHub.
// Statuses other than 2xx and 404 are returned as a *model.GatewayError.
func (g *GitHub) RepositoryExists(ctx context.Context, id model.Identity) (bool, error) {
	u := fmt.Sprintf("%s/repos/%s/%s", g.baseURL, url.PathEscape(id.Owner), url.PathEscape(id.Repo))

	status, body, err := g.get(ctx, "repository", u)
	if err != nil {
		return false, err
	}

	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 200 && status <= 299:
		return true, nil
	default:
		return false, &model.GatewayError{StatusCode: status, Body: truncate(body)}
	}
}

func (g *GitHub) endpoint(feedType model.FeedType) (string, url.Values, error) {
	q := url.Values{}
	q.Set("per_page", fmt.Sprint(g.perPage))

	switch feedType {
	case model.FeedIssues:
		q.Set("state", "all")
		q.Set("sort", "created")
		q.Set("direction", "desc")
		return "issues", q, nil
	case model.FeedPullRequests:
		q.Set("state", "all")
		q.Set("sort", "created")
		q.Set("direction", "desc")
		return "pulls", q, nil
	case model.FeedDiscussions:
		return "discussions", q, nil
	case model.FeedReleases:
		return "releases", q, nil
	}
	return "", nil, fmt.Errorf("unknown feed type %q", feedType)
}

func (g *GitHub) get(ctx context.Context, endpoint, u string) (int, []byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, g.scrub(err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		metrics.RecordGitHubRequest(endpoint, 0)
		return 0, nil, g.scrub(err)
	}
	defer res.Body.Close()

	metrics.RecordGitHubRequest(endpoint, res.StatusCode)

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, g.scrub(err)
	}

	return res.StatusCode, b, nil
}

type scrubbedError struct {
	err   error
	token string
}

func (e *scrubbedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.token, "REDACTED")
}

func (e *scrubbedError) Unwrap() error { return e.err }

func (g *GitHub) scrub(err error) error {
	if g.token == "" {
		return err
	}
	return &scrubbedError{err: err, token: g.token}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
