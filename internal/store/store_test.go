package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreInMemory(t *testing.T) {
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, s)

	err = s.Close()
	assert.NoError(t, err)
}

func TestResponseCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	// Miss before anything is stored.
	got, err := s.GetResponse(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.PutResponse(ctx, "abc", "gpt-4o-mini", `{"entities": []}`))

	got, err = s.GetResponse(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, `{"entities": []}`, got.Response)
	assert.False(t, got.CachedAt.IsZero())
}

func TestPutResponseOverwrites(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutResponse(ctx, "h", "m", "first"))
	require.NoError(t, s.PutResponse(ctx, "h", "m", "second"))

	n, err := s.CountResponses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetResponse(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Response)

	require.NoError(t, s.DeleteResponse(ctx, "h"))
	got, err = s.GetResponse(ctx, "h")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResponsesPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutResponse(ctx, "h", "m", "r"))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetResponse(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r", got.Response)
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := s.StartRun(ctx, "world.db", start)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	require.NoError(t, s.FinishRun(ctx, Run{ID: id, FinishedAt: start.Add(time.Minute), Verdict: "ready", Partial: true}))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "world.db", runs[0].Snapshot)
	assert.Equal(t, "ready", runs[0].Verdict)
	assert.True(t, runs[0].Partial)
	assert.True(t, runs[0].StartedAt.Equal(start))
	assert.True(t, runs[0].FinishedAt.Equal(start.Add(time.Minute)))

	err = s.FinishRun(ctx, Run{ID: "missing"})
	assert.Error(t, err)
}
