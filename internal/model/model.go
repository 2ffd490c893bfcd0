// Package model defines the data structures used in the repofeed application: the persisted Repository record with its generation status and feed URLs, the GitHub items fetched per feed type, and the normalized FeedItem rendered into RSS.
package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusReady, StatusError:
		return true
	}
	return false
}

type FeedType string

const (
	FeedIssues       FeedType = "issues"
	FeedPullRequests FeedType = "pullRequests"
	FeedDiscussions  FeedType = "discussions"
	FeedReleases     FeedType = "releases"
)

// FeedTypes lists every feed type mirrored for a repository.
var FeedTypes = []FeedType{FeedIssues, FeedPullRequests, FeedDiscussions, FeedReleases}

// Title returns the feed type with its first letter upper-cased, e.g. "PullRequests".
func (t FeedType) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// Feeds maps each feed type to the URL its RSS document was published at.
// A nil entry means the feed is not available.
type Feeds struct {
	Issues       *string `json:"issues"`
	PullRequests *string `json:"pullRequests"`
	Discussions  *string `json:"discussions"`
	Releases     *string `json:"releases"`
}

func (f Feeds) Get(t FeedType) *string {
	switch t {
	case FeedIssues:
		return f.Issues
	case FeedPullRequests:
		return f.PullRequests
	case FeedDiscussions:
		return f.Discussions
	case FeedReleases:
		return f.Releases
	}
	return nil
}

func (f *Feeds) Set(t FeedType, url *string) {
	switch t {
	case FeedIssues:
		f.Issues = url
	case FeedPullRequests:
		f.PullRequests = url
	case FeedDiscussions:
		f.Discussions = url
	case FeedReleases:
		f.Releases = url
	}
}

// Repository is the persisted record tracking one GitHub repository.
type Repository struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	Repo       string     `json:"repo"`
	URL        string     `json:"url"`
	Status     Status     `json:"status"`
	Feeds      Feeds      `json:"feeds"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func (r Repository) Identity() Identity {
	return Identity{Owner: r.Owner, Repo: r.Repo}
}

// Item is a single GitHub issue, pull request, discussion or release as
// returned by the REST API. Only the fields used for rendering are decoded.
type Item struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	HTMLURL     string     `json:"html_url"`
	Body        string     `json:"body"`
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	CreatedAt   *time.Time `json:"created_at"`
	PublishedAt *time.Time `json:"published_at"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

// FeedItem is the normalized shape rendered into an RSS <item>.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	Date        time.Time
}
