package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Identity names a GitHub repository. Both parts are lower-cased.
type Identity struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// URL returns the canonical https://github.com/{owner}/{repo} form.
func (id Identity) URL() string {
	return "https://github.com/" + id.Owner + "/" + id.Repo
}

// PathKey is the storage path segment for the repository, "{owner}-{repo}".
func (id Identity) PathKey() string {
	return id.Owner + "-" + id.Repo
}

func (id Identity) String() string {
	return id.Owner + "/" + id.Repo
}

// ParseGitHubURL extracts the repository identity from a github.com URL.
// The scheme may be omitted, a trailing ".git" is dropped and anything after
// the repository segment (tree/main, issues, ...) is ignored.
func ParseGitHubURL(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return Identity{}, fmt.Errorf("%w: host %q is not github.com", ErrInvalidURL, u.Host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return Identity{}, fmt.Errorf("%w: want github.com/{owner}/{repo}, got %q", ErrInvalidURL, u.Path)
	}

	owner := strings.ToLower(parts[0])
	repo := strings.ToLower(strings.TrimSuffix(parts[1], ".git"))
	if owner == "" || repo == "" {
		return Identity{}, fmt.Errorf("%w: want github.com/{owner}/{repo}, got %q", ErrInvalidURL, u.Path)
	}

	return Identity{Owner: owner, Repo: repo}, nil
}
