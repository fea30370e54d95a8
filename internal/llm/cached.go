package llm

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/store"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Cache persists responses by request hash. *store.Store implements it.
type Cache interface {
	GetResponse(ctx context.Context, hash string) (*store.CachedResponse, error)
	PutResponse(ctx context.Context, hash, model, response string) error
	DeleteResponse(ctx context.Context, hash string) error
}

// Response is a submitted request's outcome.
type Response struct {
	Hash   string
	Text   string
	Cached bool
}

// Stats counts cache traffic.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Calls  int64 `json:"calls"`
}

// Cached fronts a Completer with a persistent response cache. Concurrent
// identical requests share one call, and calls that miss the cache are
// rate limited.
type Cached struct {
	inner   Completer
	cache   Cache
	limiter *rate.Limiter
	group   singleflight.Group

	hits, misses, calls atomic.Int64

	mu       sync.Mutex
	warnings []worlderr.Warning
}

// CachedOption configures a Cached.
type CachedOption func(*Cached)

// WithRateLimit allows perMinute calls to the inner completer; <= 0 is
// unlimited.
func WithRateLimit(perMinute int) CachedOption {
	return func(c *Cached) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	}
}

// NewCached wraps inner. A nil inner makes every cache miss fail with
// LLMUnavailable, which is how an offline run replays a warm cache.
func NewCached(inner Completer, cache Cache, opts ...CachedOption) *Cached {
	c := &Cached{inner: inner, cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit returns the response for req, from the cache when possible.
func (c *Cached) Submit(ctx context.Context, req Request) (Response, error) {
	hash := req.Hash()
	v, err, _ := c.group.Do(hash, func() (any, error) {
		return c.submit(ctx, hash, req)
	})
	if err != nil {
		return Response{Hash: hash}, err
	}
	return v.(Response), nil
}

func (c *Cached) submit(ctx context.Context, hash string, req Request) (Response, error) {
	if c.cache != nil {
		hit, err := c.cache.GetResponse(ctx, hash)
		switch {
		case err != nil:
			c.warn(hash, "read cached response: %v", err)
		case hit != nil:
			c.hits.Add(1)
			return Response{Hash: hash, Text: hit.Response, Cached: true}, nil
		}
	}
	c.misses.Add(1)

	if c.inner == nil {
		return Response{}, worlderr.Errorf(worlderr.KindLLMUnavailable, "llm.Submit", "no completer configured and no cached response")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, worlderr.New(worlderr.KindLLMUnavailable, "llm.Submit", err)
		}
	}

	c.calls.Add(1)
	logger.Debug("llm call", "hash", hash[:12], "model", req.Model)
	text, err := c.inner.Complete(ctx, req)
	if err != nil {
		return Response{}, worlderr.New(worlderr.KindLLMUnavailable, "llm.Submit", err)
	}
	if c.cache != nil {
		if err := c.cache.PutResponse(ctx, hash, req.Model, text); err != nil {
			c.warn(hash, "store response: %v", err)
		}
	}
	return Response{Hash: hash, Text: text}, nil
}

// Invalidate drops a cached response that failed validation so a retry
// reaches the model.
func (c *Cached) Invalidate(ctx context.Context, hash string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeleteResponse(ctx, hash); err != nil {
		c.warn(hash, "invalidate response: %v", err)
	}
}

func (c *Cached) warn(hash, format string, args ...any) {
	w := worlderr.Warnf(worlderr.KindLLMCacheCorrupt, "llm", hash, format, args...)
	logger.Warn("llm cache", "warning", w.String())
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
}

// Warnings returns and clears the accumulated cache warnings.
func (c *Cached) Warnings() []worlderr.Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.warnings
	c.warnings = nil
	return out
}

// Stats reports cache traffic so far.
func (c *Cached) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Calls: c.calls.Load()}
}
