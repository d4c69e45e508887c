/*
Package memstate is the in-process fallback for the bridge state
repository, used when no redis URL is configured and in tests. The
seen-URL window lives only as long as the process, which is acceptable:
it only has to cover the gap between two browser event phases.
*/
package memstate

import (
	"context"
	"sync"
	"time"
)

type MemState struct {
	mu      sync.Mutex
	capture *bool
	seen    map[string]time.Time
	now     func() time.Time
}

func New() *MemState {
	return &MemState{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemState) LoadCapture(_ context.Context) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capture == nil {
		return false, false, nil
	}

	return *m.capture, true, nil
}

func (m *MemState) SaveCapture(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capture = &enabled

	return nil
}

// MarkSeen reports whether the url is seen for the first time within
// the window. The window is measured from the first sighting; a
// duplicate hit does not extend it, same as the redis repository's
// SETNX with TTL.
func (m *MemState) MarkSeen(_ context.Context, url string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.prune(now)

	if _, exists := m.seen[url]; exists {
		return false, nil
	}

	m.seen[url] = now.Add(window)

	return true, nil
}

func (m *MemState) prune(now time.Time) {
	for url, deadline := range m.seen {
		if deadline.Before(now) {
			delete(m.seen, url)
		}
	}
}
