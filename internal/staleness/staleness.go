// Package staleness decides whether a repository's cached feeds can be served.
package staleness

import (
	"time"

	"github.com/0x0BSoD/repofeed/internal/model"
)

const DefaultWindow = 30 * time.Minute

type Policy struct {
	Window time.Duration
}

func New(window time.Duration) Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	return Policy{Window: window}
}

// NeedsRefresh reports whether the record must be regenerated before its
// feeds are served. Only a ready record updated within the window is fresh.
func (p Policy) NeedsRefresh(r model.Repository, now time.Time) bool {
	if r.Status != model.StatusReady || r.LastUpdate == nil {
		return true
	}
	return now.Sub(*r.LastUpdate) > p.window()
}

// StaleBefore is the oldest lastUpdate a ready record may carry and still be
// considered fresh at now.
func (p Policy) StaleBefore(now time.Time) time.Time {
	return now.Add(-p.window())
}

func (p Policy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultWindow
	}
	return p.Window
}
