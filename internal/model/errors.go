package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL           = errors.New("invalid github repository url")
	ErrAlreadyExists        = errors.New("repository already exists")
	ErrNotFound             = errors.New("repository not found on github")
	ErrRecordNotFound       = errors.New("repository record not found")
	ErrGenerationInProgress = errors.New("feed generation already in progress")
	ErrConfiguration        = errors.New("configuration error")
	ErrInvalidStatus        = errors.New("invalid repository status")
)

// GatewayError is a non-404 failure returned by the GitHub API.
type GatewayError struct {
	FeedType   FeedType
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if e.FeedType == "" {
		return fmt.Sprintf("github api: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("github api: fetch %s: status %d: %s", e.FeedType, e.StatusCode, e.Body)
}

// PublishError is a failure writing one rendered feed to storage.
type PublishError struct {
	FeedType FeedType
	Key      string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s to %q: %v", e.FeedType, e.Key, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
