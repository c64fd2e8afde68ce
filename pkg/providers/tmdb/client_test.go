package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

func TestSearchTitleReturnsFirstResult(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":1,"title":"Lagaan"},{"id":2,"title":"Other"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "tmdb-key", BaseURL: srv.URL})
	title, ok, err := c.SearchTitle(context.Background(), "lagaan")
	if err != nil || !ok || title != "Lagaan" {
		t.Fatalf("unexpected result %q %v %v", title, ok, err)
	}
	for _, want := range []string{"api_key=tmdb-key", "query=lagaan", "language=hi-IN"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearchTitleNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()
	_, ok, err := New(Config{APIKey: "k", BaseURL: srv.URL}).SearchTitle(context.Background(), "zzz")
	if err != nil || ok {
		t.Fatalf("expected no match, got %v %v", ok, err)
	}
}

func TestSearchTitleWithoutKeyIsNoop(t *testing.T) {
	_, ok, err := New(Config{}).SearchTitle(context.Background(), "anything")
	if ok || err != nil {
		t.Fatalf("expected silent miss, got %v %v", ok, err)
	}
}

func TestSearchTitleRetriesServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"Don"}]}`))
	}))
	defer srv.Close()
	c := New(Config{APIKey: "k", BaseURL: srv.URL}, WithRetryPolicy(resilience.NewRetryPolicy(2, time.Millisecond)))
	title, ok, err := c.SearchTitle(context.Background(), "don")
	if err != nil || !ok || title != "Don" || calls.Load() != 2 {
		t.Fatalf("unexpected %q %v %v after %d calls", title, ok, err, calls.Load())
	}

	calls.Store(0)
	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()
	c = New(Config{APIKey: "bad", BaseURL: unauthorized.URL}, WithRetryPolicy(resilience.NewRetryPolicy(2, time.Millisecond)))
	_, _, err = c.SearchTitle(context.Background(), "don")
	if !errorsx.HasReason(err, errorsx.ReasonLookup) || calls.Load() != 1 {
		t.Fatalf("expected single failed lookup, got %v after %d calls", err, calls.Load())
	}
}

func TestSearchTitleBreakerOpensOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	breaker := resilience.NewCircuitBreaker(1, time.Hour)
	c := New(Config{APIKey: "k", BaseURL: srv.URL}, WithBreaker(breaker))
	if _, _, err := c.SearchTitle(context.Background(), "x"); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, _, err := c.SearchTitle(context.Background(), "x"); err == nil {
		t.Fatalf("expected breaker to deny")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}
}
