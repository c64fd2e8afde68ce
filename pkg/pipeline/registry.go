package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one live caller connection.
type Session struct {
	ID      string
	Cancel  context.CancelFunc
	Created time.Time

	state *stateMachine
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	if s.state == nil {
		return StateClosed
	}
	return s.state.State()
}

// SessionRegistry tracks live sessions for counting and draining.
type SessionRegistry struct {
	sessions sync.Map
	count    atomic.Int64
	draining atomic.Bool
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// Add registers a session. It returns false when the id is already taken.
func (r *SessionRegistry) Add(sess *Session) bool {
	if sess == nil || sess.ID == "" {
		return false
	}
	if _, loaded := r.sessions.LoadOrStore(sess.ID, sess); loaded {
		return false
	}
	r.count.Add(1)
	return true
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	if v, ok := r.sessions.Load(id); ok {
		return v.(*Session), true
	}
	return nil, false
}

func (r *SessionRegistry) Remove(id string) {
	if _, ok := r.sessions.LoadAndDelete(id); ok {
		r.count.Add(-1)
	}
}

// CloseAll cancels every live session. Sessions remove themselves as they
// finish.
func (r *SessionRegistry) CloseAll() {
	r.sessions.Range(func(_, value any) bool {
		if sess, ok := value.(*Session); ok && sess.Cancel != nil {
			sess.Cancel()
		}
		return true
	})
}

func (r *SessionRegistry) Count() int64 {
	return r.count.Load()
}

func (r *SessionRegistry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *SessionRegistry) Draining() bool {
	return r.draining.Load()
}

func (r *SessionRegistry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
