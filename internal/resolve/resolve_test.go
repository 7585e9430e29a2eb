// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/sources"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RatePerSec = 0
	cfg.CacheTTL = time.Minute
	return cfg
}

// =============================================================================
// HTTP RESOLVER TESTS
// =============================================================================

func TestHTTPResolver_SendsHeadersAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		assert.Equal(t, "leave policy", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("keep"))
		fmt.Fprint(w, "  policy text \n")
	}))
	defer srv.Close()

	r := NewHTTP(testConfig(), nil)
	got, err := r.Resolve(context.Background(), sources.Source{
		ID:          "S1",
		Name:        "rag",
		Endpoint:    srv.URL + "/query?keep=1",
		Headers:     map[string]string{"Authorization": "Bearer t"},
		QueryParams: map[string]string{"q": "leave policy"},
	})
	require.NoError(t, err)
	assert.Equal(t, "policy text", got)
}

func TestHTTPResolver_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(testConfig(), nil).Resolve(context.Background(), sources.Source{Endpoint: srv.URL})
	var se *StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "nope", se.Body)
}

func TestHTTPResolver_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	_, err := NewHTTP(cfg, nil).Resolve(context.Background(), sources.Source{Endpoint: srv.URL})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestHTTPResolver_CachesValues(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "v")
	}))
	defer srv.Close()

	r := NewHTTP(testConfig(), nil)
	src := sources.Source{Endpoint: srv.URL}
	for i := 0; i < 3; i++ {
		v, err := r.Resolve(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, r.Cache().Stats().Hits)

	// Different headers are a different request.
	src.Headers = map[string]string{"X-Tenant": "b"}
	_, err := r.Resolve(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPResolver_SharesInFlightFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		fmt.Fprint(w, "shared")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.CacheTTL = 0
	r := NewHTTP(cfg, nil)
	src := sources.Source{Endpoint: srv.URL}

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), src)
		}()
	}
	// Let the goroutines join the in-flight call before the server answers.
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, "shared", got)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPResolver_SharedFetchOutlivesCaller(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		fmt.Fprint(w, "value")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.CacheTTL = 0
	r := NewHTTP(cfg, nil)
	src := sources.Source{Name: "S", Endpoint: srv.URL}

	// A cancellable caller starts the fetch.
	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, src)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	// A second caller joins the same fetch, then the first gives up.
	second := make(chan string, 1)
	go func() {
		v, err := r.Resolve(context.Background(), src)
		assert.NoError(t, err)
		second <- v
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(release)
	select {
	case v := <-second:
		assert.Equal(t, "value", v)
	case <-time.After(5 * time.Second):
		t.Fatal("joined caller never answered")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPResolver_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.CacheTTL = 0
	cfg.RatePerSec = 0.001
	cfg.Burst = 1
	r := NewHTTP(cfg, nil)

	_, err := r.Resolve(context.Background(), sources.Source{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Resolve(ctx, sources.Source{Endpoint: srv.URL + "/other"})
	assert.Error(t, err)
}

// =============================================================================
// FAN-OUT TESTS
// =============================================================================

func TestResolveAll(t *testing.T) {
	var calls atomic.Int32
	r := Func(func(ctx context.Context, src sources.Source) (string, error) {
		calls.Add(1)
		return "value of " + src.Name, nil
	})
	srcs := []sources.Source{{ID: "S1", Name: "one"}, {ID: "S2", Name: "two"}, {ID: "S1", Name: "one"}}

	values, err := ResolveAll(context.Background(), r, srcs, 2)
	require.NoError(t, err)
	assert.Equal(t, "value of one", values["S1"])
	assert.Equal(t, "value of two", values["S2"])
	assert.Equal(t, int32(2), calls.Load(), "each source fetched once")
}

func TestResolveAll_FailureIsExecutionError(t *testing.T) {
	boom := errors.New("boom")
	r := Func(func(ctx context.Context, src sources.Source) (string, error) {
		if src.ID == "bad" {
			return "", boom
		}
		return "ok", nil
	})

	values, err := ResolveAll(context.Background(), r, []sources.Source{{ID: "good"}, {ID: "bad", Name: "broken"}}, 0)
	assert.Nil(t, values)
	assert.True(t, errs.IsExecution(err), "err = %v", err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestResolveAll_Empty(t *testing.T) {
	values, err := ResolveAll(context.Background(), nil, nil, 1)
	require.NoError(t, err)
	assert.Empty(t, values)
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := NewCache(4, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Get("a")
	c.Put("c", "3")

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB, "b was least recently used")
	assert.True(t, okC)
}

func TestCache_DisabledWithZeroTTL(t *testing.T) {
	c := NewCache(2, 0)
	c.Put("a", "1")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c := NewCache(4, time.Hour)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	c.Clear()
	assert.Equal(t, 0, c.Stats().EntryCount)
}
