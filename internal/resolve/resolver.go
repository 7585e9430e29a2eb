// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/render"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/util"
)

// Resolver fetches the text value of one context source.
type Resolver interface {
	Resolve(ctx context.Context, src sources.Source) (string, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, src sources.Source) (string, error)

// Resolve calls f.
func (f Func) Resolve(ctx context.Context, src sources.Source) (string, error) {
	return f(ctx, src)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config tunes HTTPResolver.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	RatePerSec   float64
	Burst        int
	CacheTTL     time.Duration
	CacheEntries int
	UserAgent    string
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxBodyBytes: 1 << 20,
		RatePerSec:   5,
		Burst:        10,
		CacheTTL:     30 * time.Second,
		CacheEntries: 128,
		UserAgent:    "promptlab/1.0",
	}
}

// =============================================================================
// HTTP RESOLVER
// =============================================================================

// StatusError is returned when a source answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPResolver fetches source values over HTTP.
type HTTPResolver struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
	cache   *Cache
	group   singleflight.Group
	log     *logger.Logger
}

// NewHTTP creates an HTTP resolver. A nil log discards output.
func NewHTTP(cfg Config, log *logger.Logger) *HTTPResolver {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPResolver{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		cache:   NewCache(cfg.CacheEntries, cfg.CacheTTL),
		log:     log.With("component", "resolver"),
	}
}

// Cache exposes the value cache.
func (h *HTTPResolver) Cache() *Cache {
	return h.cache
}

// Resolve fetches src, serving from cache when fresh.
func (h *HTTPResolver) Resolve(ctx context.Context, src sources.Source) (string, error) {
	target, err := requestURL(src)
	if err != nil {
		return "", err
	}
	key := cacheKey(target, src.Headers)
	if v, ok := h.cache.Get(key); ok {
		return v, nil
	}

	// The shared fetch outlives any one caller: a caller that gives up only
	// abandons its own wait, and the fetch is bounded by the resolver timeout.
	ch := h.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.Timeout)
		defer cancel()
		body, err := h.fetch(fetchCtx, target, src.Headers)
		if err != nil {
			return "", err
		}
		h.cache.Put(key, body)
		return body, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			h.log.Warn("context fetch failed", "source", src.Name, "endpoint", src.Endpoint, "error", res.Err)
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *HTTPResolver) fetch(ctx context.Context, target string, headers map[string]string) (string, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: util.TruncateRunes(strings.TrimSpace(string(body)), 200)}
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return "", fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, h.cfg.MaxBodyBytes)
	}

	h.log.Debug("context fetched", "url", target, "bytes", len(body), "duration", time.Since(start))
	return strings.TrimSpace(string(body)), nil
}

// requestURL merges the source query parameters into its endpoint.
func requestURL(src sources.Source) (string, error) {
	u, err := url.Parse(src.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if len(src.QueryParams) > 0 {
		q := u.Query()
		for k, v := range src.QueryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func cacheKey(target string, headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	b.WriteString(target)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(http.CanonicalHeaderKey(k))
		b.WriteString(":")
		b.WriteString(headers[k])
	}
	return b.String()
}

// =============================================================================
// FAN-OUT
// =============================================================================

// ResolveAll resolves every source concurrently, at most concurrency at a
// time (unbounded when concurrency <= 0). Each source is fetched once. The
// first failure cancels the rest and is returned as an execution error.
func ResolveAll(ctx context.Context, r Resolver, srcs []sources.Source, concurrency int) (render.ContextValues, error) {
	values := make(render.ContextValues, len(srcs))
	if len(srcs) == 0 {
		return values, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	seen := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		if seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		g.Go(func() error {
			v, err := r.Resolve(gctx, src)
			if err != nil {
				return fmt.Errorf("source %q: %w", src.Name, err)
			}
			mu.Lock()
			values[src.ID] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Execution("resolve context", err)
	}
	return values, nil
}
