package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/world"
)

func entities() []classify.RawEntity {
	return []classify.RawEntity{
		{UUID: "U", Value: "<p>Aurora Bushes W2S51</p>", Format: classify.FormatHTML, Category: classify.CategoryRegion, Kind: classify.KindRegion, Name: "Aurora Bushes"},
		{UUID: "A", Value: "<p>more Aurora Bushes</p>", Format: classify.FormatHTML, Category: classify.CategoryRegion, Kind: classify.KindRegion, Name: "Aurora Bushes"},
		{UUID: "S", Value: "<p>Village of Harad</p>", Format: classify.FormatHTML, Category: classify.CategorySettlement, Kind: classify.KindSettlement, Name: "Village of Harad", Refs: []string{"N"}},
		{UUID: "J", Value: `{"name":"x"}`, Format: classify.FormatJSON, Category: classify.CategoryJSON, Kind: classify.KindJSON},
		{UUID: "N", Value: "<p>old woman</p>", Format: classify.FormatHTML, Category: classify.CategoryUnknown, Kind: classify.KindNPC},
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "aurora_bushes", Slug("Aurora Bushes"))
	assert.Equal(t, "goldseeker_s_cliffs", Slug("Goldseeker's Cliffs"))
	assert.Equal(t, "the_red_snakes", Slug("  The Red -- Snakes! "))
	assert.Equal(t, "unnamed", Slug("???"))
}

func TestGroup(t *testing.T) {
	clusters, uncategorized := Group(entities())
	require.Len(t, clusters, 3)
	assert.Equal(t, Key{Category: classify.CategoryRegion, Name: "Aurora Bushes"}, clusters[0].Key)
	assert.Equal(t, []string{"A", "U"}, clusters[0].Members)
	assert.Equal(t, classify.CategorySettlement, clusters[1].Category)
	assert.Equal(t, Key{Category: classify.CategoryJSON, Name: JSONClusterName}, clusters[2].Key)
	assert.Equal(t, []string{"N"}, uncategorized)
}

func TestBuildWritesCanonicalLayout(t *testing.T) {
	root := t.TempDir()
	flat := filepath.Join(root, "json", "entity_J.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(flat), 0o755))
	require.NoError(t, os.WriteFile(flat, []byte("{}"), 0o644))

	res, err := Build(context.Background(), entities(), nil, nil, nil, Options{AnalysisDir: root})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "regions", "aurora_bushes", "entity_U.html"))
	assert.FileExists(t, filepath.Join(root, "settlements", "village_of_harad", "entity_S.html"))
	assert.FileExists(t, filepath.Join(root, "json", JSONClusterName, "entity_J.json"))
	assert.NoFileExists(t, flat, "every category uses <category>/<slug>/")
	assert.NoFileExists(t, filepath.Join(root, "unknown", "entity_N.html"))
	assert.Equal(t, 4, res.Layout.Written)
	assert.Equal(t, 1, res.Layout.Pruned)

	got, err := os.ReadFile(filepath.Join(root, "regions", "aurora_bushes", "entity_U.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Aurora Bushes W2S51</p>", string(got))

	edges := res.Graph.OfKind(world.NPCInSettlement)
	assert.Equal(t, []world.Edge{{Source: "N", Target: "S", Kind: world.NPCInSettlement, SourceField: world.FieldRefs}}, edges)
}

func TestBuildLeavesIdenticalFilesAlone(t *testing.T) {
	root := t.TempDir()
	_, err := Build(context.Background(), entities(), nil, nil, nil, Options{AnalysisDir: root})
	require.NoError(t, err)
	path := filepath.Join(root, "regions", "aurora_bushes", "entity_U.html")
	before, err := os.Stat(path)
	require.NoError(t, err)

	res, err := Build(context.Background(), entities(), nil, nil, nil, Options{AnalysisDir: root})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Layout.Written)
	assert.Equal(t, 4, res.Layout.Unchanged)
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestBuildPrunesStaleFiles(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "regions", "old_name", "entity_U.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	res, err := Build(context.Background(), entities(), nil, nil, nil, Options{AnalysisDir: root})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Layout.Pruned)
	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, filepath.Dir(stale))
}

func TestMergeSchemas(t *testing.T) {
	tables := []patterns.TableSchema{
		{Name: "entities", Columns: []patterns.Column{
			{Name: "uuid", Type: "TEXT", PrimaryKey: true},
			{Name: "name", Type: "TEXT"},
		}},
		{Name: "json_settlement", Columns: []patterns.Column{
			{Name: "entity_uuid", Type: "TEXT", NotNull: true},
			{Name: "population", Type: "TEXT"},
		}},
	}
	inventory := map[string][]aianalysis.Field{
		"region": {
			{Name: "name", Type: "string", Required: true},
			{Name: "uuid", Type: "uuid", Required: false},
			{Name: "climate", Type: "string"},
		},
	}
	got := MergeSchemas(tables, inventory)

	assert.Equal(t, []SchemaField{
		{Name: "climate", Type: "string", Source: SourceLLM},
		{Name: "name", Type: "string", Required: true, Source: SourceBoth},
		{Name: "uuid", Type: "text", Required: true, Source: SourceBoth},
	}, got[classify.CategoryRegion])
	assert.Equal(t, []SchemaField{{Name: "population", Type: "text", Source: SourcePattern}}, got[classify.CategoryJSON])
	assert.NotContains(t, got, classify.CategoryUnknown)
}
