package world

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/mapdata"
)

func coord(q, r int) hexgrid.Coord { return hexgrid.Coord{Q: q, R: r} }

func fixture() ([]classify.RawEntity, *mapdata.World) {
	direct := coord(5, 5)
	entities := []classify.RawEntity{
		{UUID: "set-1", Kind: classify.KindSettlement, Category: classify.CategorySettlement, Name: "Village of Harad", Refs: []string{"npc-2"}},
		{UUID: "npc-1", Kind: classify.KindNPC, Category: classify.CategoryUnknown, Refs: []string{"set-1"}},
		{UUID: "npc-2", Kind: classify.KindNPC, Category: classify.CategoryUnknown},
		{UUID: "dun-1", Kind: classify.KindDungeon, Category: classify.CategoryDungeon, Refs: []string{"mon-1", "tre-1", "nowhere"}},
		{UUID: "mon-1", Kind: classify.KindMonster, Category: classify.CategoryUnknown},
		{UUID: "tre-1", Kind: classify.KindTreasure, Category: classify.CategoryUnknown, Refs: []string{"dun-1"}},
		{UUID: "fac-1", Kind: classify.KindFaction, Category: classify.CategoryFaction, Refs: []string{"set-1", "reg-1"}},
		{UUID: "set-2", Kind: classify.KindSettlement, Category: classify.CategorySettlement, Hex: &direct},
	}
	m := mapdata.NewWorld([]mapdata.Tile{
		{Coord: coord(0, 0), Biome: "forest", Region: "reg-1", FeatureUUID: "set-1", Feature: "village"},
		{Coord: coord(1, 0), Biome: "forest", Region: "reg-1", FeatureUUID: "dun-1", Feature: "tomb"},
		{Coord: coord(0, 1), Biome: "swamp", Feature: "standing stones"},
		{Coord: coord(3, 3), Biome: "desert"},
	}, map[string]string{"reg-1": "Aurora Bushes"}, map[string]string{})
	return entities, m
}

func TestBuildGraphEdges(t *testing.T) {
	entities, m := fixture()
	g := BuildGraph(entities, m)

	want := []Edge{
		{Source: "dun-1", Target: "hex:" + hexgrid.EncodeToken(coord(1, 0)), Kind: DungeonInHex, SourceField: FieldFeatureUUID},
		{Source: "dun-1", Target: "mon-1", Kind: ContainsMonster, SourceField: FieldRefs},
		{Source: "dun-1", Target: "tre-1", Kind: HoldsTreasure, SourceField: FieldRefs},
	}
	assert.Equal(t, want, g.Out("dun-1"))

	assert.Equal(t, []Edge{{Source: "npc-1", Target: "set-1", Kind: NPCInSettlement, SourceField: FieldRefs}}, g.Out("npc-1"))
	// The settlement's reference to npc-2 is flipped so the npc is the source.
	assert.Equal(t, []Edge{{Source: "npc-2", Target: "set-1", Kind: NPCInSettlement, SourceField: FieldRefs}}, g.Out("npc-2"))
	assert.Len(t, g.InOfKind("set-1", NPCInSettlement), 2)

	assert.Equal(t, []Edge{
		{Source: "fac-1", Target: "reg-1", Kind: FactionInRegion, SourceField: FieldRefs},
		{Source: "fac-1", Target: "set-1", Kind: Other, SourceField: FieldRefs},
	}, g.Out("fac-1"))

	counts := g.CountByKind()
	// (0,0)-(1,0) and (0,0)-(0,1) are adjacent, both directions; (1,0)-(0,1) too.
	assert.Equal(t, 6, counts[Neighbor])
	assert.Equal(t, 1, counts[SettlementInHex])
}

func TestBuildGraphIsDeterministic(t *testing.T) {
	entities, m := fixture()
	a := BuildGraph(entities, m)

	reversed := make([]classify.RawEntity, len(entities))
	for i, e := range entities {
		reversed[len(entities)-1-i] = e
	}
	b := BuildGraph(reversed, m)
	if diff := cmp.Diff(a.Edges(), b.Edges()); diff != "" {
		t.Errorf("edge order depends on input order (-a +b):\n%s", diff)
	}
}

func TestGraphArena(t *testing.T) {
	g := NewGraph()
	assert.Equal(t, 0, g.AddNode(Node{UUID: "a", Kind: "npc"}))
	assert.Equal(t, 1, g.AddNode(Node{UUID: "b", Kind: "settlement"}))
	assert.Equal(t, 0, g.AddNode(Node{UUID: "a", Kind: "other"}))
	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "npc", n.Kind)

	assert.True(t, g.AddEdge(Edge{Source: "a", Target: "b", Kind: Other}))
	assert.False(t, g.AddEdge(Edge{Source: "a", Target: "b", Kind: Other}), "duplicate")
	assert.False(t, g.AddEdge(Edge{Source: "a", Target: "missing", Kind: Other}))
	assert.False(t, g.AddEdge(Edge{Source: "a", Target: "a", Kind: Other}))
	assert.Len(t, g.OfKind(Other), 1)
	assert.Len(t, g.NodesOfKind("settlement"), 1)
}

func TestPairKind(t *testing.T) {
	k, flip := PairKind(classify.KindArea, classify.KindTreasure)
	assert.Equal(t, HoldsTreasure, k)
	assert.False(t, flip)
	k, flip = PairKind(classify.KindMonster, classify.KindArea)
	assert.Equal(t, ContainsMonster, k)
	assert.True(t, flip)
	k, _ = PairKind(classify.KindSettlement, classify.KindFaction)
	assert.Equal(t, Other, k)
}

func TestBuildSpatialIndex(t *testing.T) {
	entities, m := fixture()
	g := BuildGraph(entities, m)
	ix := BuildSpatialIndex(g, m.Tiles)

	want := SpatialIndex{
		coord(0, 0): {
			Settlements: []string{"set-1"},
			Factions:    []string{"fac-1"},
			NPCs:        []string{"npc-1", "npc-2"},
		},
		coord(1, 0): {Dungeons: []string{"dun-1"}},
		coord(0, 1): {SpecialFeatures: []string{"standing stones"}},
		coord(5, 5): {Settlements: []string{"set-2"}},
	}
	if diff := cmp.Diff(want, ix); diff != "" {
		t.Errorf("spatial index mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []hexgrid.Coord{coord(0, 0), coord(0, 1), coord(1, 0), coord(5, 5)}, ix.Coords())
	assert.True(t, ix.At(coord(3, 3)).Empty())
}

func TestSpatialIndexIsPure(t *testing.T) {
	entities, m := fixture()
	g := BuildGraph(entities, m)
	a := BuildSpatialIndex(g, m.Tiles)
	b := BuildSpatialIndex(g, m.Tiles)
	assert.Empty(t, cmp.Diff(a, b))
}

func TestIndexBuilderNormalizes(t *testing.T) {
	b := NewIndexBuilder()
	b.AddNPC(coord(1, 1), "z")
	b.AddNPC(coord(1, 1), "a")
	b.AddNPC(coord(1, 1), "z")
	ix := b.Build()
	assert.Equal(t, []string{"a", "z"}, ix.At(coord(1, 1)).NPCs)
}

func TestDungeonAreasFromFields(t *testing.T) {
	g := NewGraph()
	fields := map[string]any{
		"rooms": []any{
			map[string]any{"name": "Gate", "monsters": []any{"Ghoul", map[string]any{"name": "Rat"}}, "connections": []any{1.0, 7.0, 0.0}},
			map[string]any{"title": "Vault", "treasure": "Gold idol", "doors": []any{0.0}},
			"junk",
		},
	}
	areas := g.DungeonAreas("d", fields)
	require.Len(t, areas, 3)
	assert.Equal(t, Area{Index: 0, Name: "Gate", Monsters: []string{"Ghoul", "Rat"}, Connections: []int{1}}, areas[0])
	assert.Equal(t, Area{Index: 1, Name: "Vault", Treasures: []string{"Gold idol"}, Connections: []int{0}}, areas[1])
	assert.Equal(t, Area{Index: 2, Name: "Area 3"}, areas[2])
}

func TestDungeonAreasKeepSourcePositions(t *testing.T) {
	g := NewGraph()
	fields := map[string]any{
		"areas": []any{
			map[string]any{"name": "Gate", "exits": []any{2.0, 1.5}},
			"collapsed passage",
			map[string]any{"name": "Shrine", "exits": []any{0.0, 2.9}},
		},
	}
	areas := g.DungeonAreas("d", fields)
	require.Len(t, areas, 3)
	assert.Equal(t, Area{Index: 0, Name: "Gate", Connections: []int{2}}, areas[0])
	assert.Equal(t, Area{Index: 1, Name: "Area 2"}, areas[1])
	assert.Equal(t, Area{Index: 2, Name: "Shrine", Connections: []int{0}}, areas[2])

	onlyJunk := map[string]any{"rooms": []any{"a", 3.0}}
	assert.Equal(t, []Area{{Index: 0, Name: "Entrance"}}, g.DungeonAreas("d", onlyJunk))
}

func TestDungeonAreasFromGraph(t *testing.T) {
	entities := []classify.RawEntity{
		{UUID: "d", Kind: classify.KindDungeon, Refs: []string{"a1", "a2", "m0"}},
		{UUID: "a1", Kind: classify.KindArea, Name: "Crypt", Refs: []string{"m1"}},
		{UUID: "a2", Kind: classify.KindArea, Refs: []string{"t1"}},
		{UUID: "m0", Kind: classify.KindMonster},
		{UUID: "m1", Kind: classify.KindMonster},
		{UUID: "t1", Kind: classify.KindTreasure},
	}
	g := BuildGraph(entities, nil)
	areas := g.DungeonAreas("d", nil)
	assert.Equal(t, []Area{
		{Index: 0, Name: "Crypt", Monsters: []string{"m1"}, Connections: []int{1}},
		{Index: 1, Name: "Area 2", Treasures: []string{"t1"}, Connections: []int{0}},
	}, areas)

	lone := BuildGraph([]classify.RawEntity{
		{UUID: "d", Kind: classify.KindDungeon, Refs: []string{"m0"}},
		{UUID: "m0", Kind: classify.KindMonster},
	}, nil)
	assert.Equal(t, []Area{{Index: 0, Name: "Entrance", Monsters: []string{"m0"}}}, lone.DungeonAreas("d", nil))
}
