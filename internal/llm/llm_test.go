package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/store"
	"github.com/julianshen/worldforge/internal/worlderr"
)

func newCache(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type countingCompleter struct {
	calls atomic.Int64
	reply string
	err   error
}

func (c *countingCompleter) Complete(_ context.Context, _ Request) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}

func TestRequestHashDeterministic(t *testing.T) {
	a := Request{Model: "m", System: "s", User: "u", SchemaName: "x", Schema: GenerateSchema(testShape{})}
	b := a
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	b.User = "u2"
	assert.NotEqual(t, a.Hash(), b.Hash())
	c := a
	c.Temperature = 0.5
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestCachedHitSkipsCompleter(t *testing.T) {
	ctx := context.Background()
	inner := &countingCompleter{reply: `{"entities": []}`}
	c := NewCached(inner, newCache(t))
	req := Request{Model: "m", User: "hello"}

	first, err := c.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Hash, second.Hash)

	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Calls: 1}, c.Stats())
}

func TestWarmCacheWithoutCompleter(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	req := Request{Model: "m", User: "hello"}
	require.NoError(t, cache.PutResponse(ctx, req.Hash(), "m", "cached"))

	c := NewCached(nil, cache)
	resp, err := c.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "cached", resp.Text)

	_, err = c.Submit(ctx, Request{Model: "m", User: "other"})
	require.Error(t, err)
	assert.True(t, worlderr.Has(err, worlderr.KindLLMUnavailable))
}

func TestCompleterFailureIsUnavailable(t *testing.T) {
	inner := &countingCompleter{err: errors.New("503")}
	c := NewCached(inner, newCache(t))
	_, err := c.Submit(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.True(t, worlderr.Has(err, worlderr.KindLLMUnavailable))
	assert.False(t, worlderr.IsFatal(err))
}

func TestConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	inner := CompleterFunc(func(ctx context.Context, _ Request) (string, error) {
		calls.Add(1)
		<-release
		return "ok", nil
	})
	c := NewCached(inner, newCache(t))
	req := Request{Model: "m", User: "same"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Submit(context.Background(), req)
			assert.NoError(t, err)
			assert.Equal(t, "ok", resp.Text)
		}()
	}
	close(release)
	wg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

type brokenCache struct{ puts int }

func (b *brokenCache) GetResponse(context.Context, string) (*store.CachedResponse, error) {
	return nil, errors.New("database disk image is malformed")
}

func (b *brokenCache) PutResponse(context.Context, string, string, string) error {
	b.puts++
	return nil
}

func (b *brokenCache) DeleteResponse(context.Context, string) error { return nil }

func TestCorruptCacheFallsThrough(t *testing.T) {
	inner := &countingCompleter{reply: "fresh"}
	cache := &brokenCache{}
	c := NewCached(inner, cache)
	resp, err := c.Submit(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Text)
	assert.Equal(t, 1, cache.puts)

	warnings := c.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, worlderr.KindLLMCacheCorrupt, warnings[0].Kind)
	assert.Empty(t, c.Warnings(), "warnings are drained")
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingCompleter{reply: "r"}
	c := NewCached(inner, newCache(t))
	req := Request{User: "x"}
	resp, err := c.Submit(ctx, req)
	require.NoError(t, err)
	c.Invalidate(ctx, resp.Hash)
	_, err = c.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

type testShape struct {
	Entities []struct {
		Name string `json:"name"`
	} `json:"entities"`
}

func TestUnmarshalFlexible(t *testing.T) {
	for name, input := range map[string]string{
		"plain":          `{"entities": [{"name": "a"}]}`,
		"double encoded": `"{\"entities\": [{\"name\": \"a\"}]}"`,
		"fenced":         "```json\n{\"entities\": [{\"name\": \"a\"}]}\n```",
		"trailing comma": `{"entities": [{"name": "a"},]}`,
	} {
		t.Run(name, func(t *testing.T) {
			var out testShape
			require.NoError(t, UnmarshalFlexible(input, &out))
			require.Len(t, out.Entities, 1)
			assert.Equal(t, "a", out.Entities[0].Name)
		})
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&testShape{})
	require.NotNil(t, schema)
	b, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"entities"`)
	assert.Contains(t, string(b), `"additionalProperties":false`)
}

func TestRetryWithContext(t *testing.T) {
	attempts := 0
	v, err := RetryWithContext(context.Background(), 2, func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("flaky")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	attempts = 0
	_, err = RetryWithContext(context.Background(), 2, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("always")
	})
	assert.EqualError(t, err, "always")
	assert.Equal(t, 2, attempts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RetryWithContext(ctx, 3, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIParams{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := NewOpenAI(OpenAIParams{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
