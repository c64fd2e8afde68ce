// Package tmdb looks up movie titles through The Movie Database search API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Timeout  time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBreaker shares a circuit breaker across clients.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(cl *Client) { cl.retry = p }
}

type searchResponse struct {
	Results []struct {
		ID            int    `json:"id"`
		Title         string `json:"title"`
		OriginalTitle string `json:"original_title"`
	} `json:"results"`
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "hi-IN"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: resilience.NewRetryPolicy(1, 200*time.Millisecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchTitle returns the title of the first search result for name.
func (c *Client) SearchTitle(ctx context.Context, name string) (string, bool, error) {
	if c.cfg.APIKey == "" {
		return "", false, nil
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return "", false, errorsx.Wrap(resilience.ErrCircuitOpen, errorsx.ReasonLookup)
	}
	var out searchResponse
	err := c.retry.Do(ctx, func() error {
		return c.search(ctx, name, &out)
	})
	if c.breaker != nil {
		if err != nil {
			c.breaker.OnError(err)
		} else {
			c.breaker.OnSuccess()
		}
	}
	if err != nil {
		return "", false, errorsx.Wrap(err, errorsx.ReasonLookup)
	}
	for _, r := range out.Results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = strings.TrimSpace(r.OriginalTitle)
		}
		return title, title != "", nil
	}
	return "", false, nil
}

func (c *Client) search(ctx context.Context, name string, out *searchResponse) error {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("query", name)
	q.Set("language", c.cfg.Language)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+"/search/movie?"+q.Encode(), nil)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return resilience.Permanent(ctx.Err())
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			// url.Error repeats the request URL, which carries the key.
			return fmt.Errorf("tmdb: request failed: %w", uerr.Err)
		}
		return fmt.Errorf("tmdb: request failed: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.RateLimitError{Provider: "tmdb", Message: resp.Status}
	case resp.StatusCode >= 500:
		return fmt.Errorf("tmdb: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return resilience.Permanent(fmt.Errorf("tmdb: %s", resp.Status))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("tmdb: read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resilience.Permanent(fmt.Errorf("tmdb: decode: %w", err))
	}
	return nil
}
