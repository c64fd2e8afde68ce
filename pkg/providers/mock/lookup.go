package mock

import (
	"context"
	"sync"
)

// MovieLookup answers title searches from a fixed map.
type MovieLookup struct {
	Titles map[string]string
	Err    error

	mu      sync.Mutex
	queries []string
}

func (m *MovieLookup) SearchTitle(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	m.queries = append(m.queries, name)
	m.mu.Unlock()
	if m.Err != nil {
		return "", false, m.Err
	}
	title, ok := m.Titles[name]
	return title, ok, nil
}

func (m *MovieLookup) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}
