package llm

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

// CircuitBreakerBackend wraps a Backend with rate-limit circuit breaking. One
// breaker is shared by all sessions of a process.
type CircuitBreakerBackend struct {
	inner   Backend
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
	open    bool
	mu      sync.Mutex
}

func NewCircuitBreakerBackend(inner Backend, breaker *resilience.CircuitBreaker) *CircuitBreakerBackend {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerBackend{inner: inner, breaker: breaker}
}

func (a *CircuitBreakerBackend) Name() string { return a.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (a *CircuitBreakerBackend) SetObserver(obs metrics.Observer) { a.obs = obs }

func (a *CircuitBreakerBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if err := a.admit(); err != nil {
		return "", err
	}
	out, err := a.inner.Generate(ctx, prompt)
	a.result(err)
	return out, err
}

func (a *CircuitBreakerBackend) NewChat(ctx context.Context, systemInstruction string) (ChatSession, error) {
	chat, err := a.inner.NewChat(ctx, systemInstruction)
	if err != nil {
		return nil, err
	}
	return &breakerChat{inner: chat, parent: a}, nil
}

type breakerChat struct {
	inner  ChatSession
	parent *CircuitBreakerBackend
}

func (c *breakerChat) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := c.parent.admit(); err != nil {
			yield("", err)
			return
		}
		var streamErr error
		for frag, err := range c.inner.SendStream(ctx, message) {
			if err != nil {
				streamErr = err
				yield("", err)
				break
			}
			if !yield(frag, nil) {
				break
			}
		}
		c.parent.result(streamErr)
	}
}

func (a *CircuitBreakerBackend) admit() error {
	if !a.breaker.Allow() {
		a.setOpen(true)
		a.record(metrics.EventBreakerDenied)
		return resilience.RateLimitError{Provider: a.Name(), Message: "degraded"}
	}
	a.setOpen(false)
	return nil
}

func (a *CircuitBreakerBackend) result(err error) {
	if err == nil {
		a.breaker.OnSuccess()
		return
	}
	if resilience.IsRateLimit(err) {
		a.record(metrics.EventRateLimit)
	}
	a.breaker.OnError(err)
}

func (a *CircuitBreakerBackend) record(name string) {
	metrics.Record(a.obs, name, 1, map[string]string{
		metrics.TagProvider:  a.inner.Name(),
		metrics.TagComponent: "llm",
	})
}

func (a *CircuitBreakerBackend) setOpen(open bool) {
	a.mu.Lock()
	changed := a.open != open
	a.open = open
	a.mu.Unlock()
	if !changed {
		return
	}
	if open {
		a.record(metrics.EventBreakerOpen)
		return
	}
	a.record(metrics.EventBreakerClose)
}
