package snapshot_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/snapshot"
	"github.com/julianshen/worldforge/internal/snapshot/snapshottest"
	"github.com/julianshen/worldforge/internal/worlderr"
)

func TestOpenMissing(t *testing.T) {
	_, err := snapshot.Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.True(t, worlderr.Has(err, worlderr.KindSnapshotMissing))
}

func TestOpenSchemaMismatch(t *testing.T) {
	path := snapshottest.Write(t, t.TempDir(), snapshottest.Fixture{SkipRefs: true})
	_, err := snapshot.Open(context.Background(), path)
	require.Error(t, err)
	assert.True(t, worlderr.Has(err, worlderr.KindSchemaMismatch))
	assert.Contains(t, err.Error(), "Refs")
}

func TestStreamEntitiesInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	path := snapshottest.Write(t, t.TempDir(), snapshottest.Fixture{
		MapPayload: `{"map": []}`,
		Entities: [][2]string{
			{"zzz", "<p>last uuid, first row</p>"},
			{"aaa", `{"name": "second"}`},
			{"mmm", "third"},
		},
		Refs: []snapshottest.Ref{{Value: "Harad", UUID: "aaa", Type: "settlement"}},
	})

	r, err := snapshot.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	rows, err := snapshot.CollectEntities(r.Entities(ctx))
	require.NoError(t, err)
	require.Len(t, rows, 3, "map row must not be streamed")
	assert.Equal(t, []string{"zzz", "aaa", "mmm"}, []string{rows[0].UUID, rows[1].UUID, rows[2].UUID})

	refs, err := snapshot.CollectRefs(r.Refs(ctx))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "settlement", refs[0].Type)
	assert.Empty(t, refs[0].Icon)

	payload, err := r.MapPayload(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"map": []}`, string(payload))
}

func TestEntitiesEarlyBreak(t *testing.T) {
	ctx := context.Background()
	path := snapshottest.Write(t, t.TempDir(), snapshottest.Fixture{
		Entities: [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}},
	})
	r, err := snapshot.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	var seen []string
	for row, err := range r.Entities(ctx) {
		require.NoError(t, err)
		seen = append(seen, row.UUID)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestMapPayloadCorrupt(t *testing.T) {
	ctx := context.Background()
	path := snapshottest.Write(t, t.TempDir(), snapshottest.Fixture{MapPayload: `{"map": [`})
	r, err := snapshot.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.MapPayload(ctx)
	require.Error(t, err)
	assert.True(t, worlderr.Has(err, worlderr.KindSnapshotCorrupt))
}

func TestMapPayloadAbsent(t *testing.T) {
	ctx := context.Background()
	path := snapshottest.Write(t, t.TempDir(), snapshottest.Fixture{})
	r, err := snapshot.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.MapPayload(ctx)
	assert.True(t, worlderr.Has(err, worlderr.KindSnapshotCorrupt))
}

func TestTables(t *testing.T) {
	ctx := context.Background()
	path := snapshottest.Write(t, t.TempDir(), snapshottest.Fixture{})
	r, err := snapshot.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	names, err := r.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Entities", "Refs"}, names)
}
