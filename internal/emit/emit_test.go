package emit

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/manifest"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/seeds"
	"github.com/julianshen/worldforge/internal/world"
	"github.com/julianshen/worldforge/internal/worlderr"
)

func coord(q, r int) hexgrid.Coord { return hexgrid.Coord{Q: q, R: r} }

func fixtureTiles() []mapdata.Tile {
	return []mapdata.Tile{
		{Coord: coord(0, 0), Biome: "forest", Region: "reg-1", FeatureUUID: "set-1", Feature: "village", Rivers: []int{0, 3}},
		{Coord: coord(1, 0), Biome: "forest", Region: "reg-1", FeatureUUID: "dun-1", Feature: "tomb"},
		{Coord: coord(0, 1), Biome: "Swamp", Feature: "standing stones"},
		{Coord: coord(3, 3), Biome: "desert"},
	}
}

func fixtureInput(t *testing.T, tiles []mapdata.Tile) Input {
	t.Helper()
	entities := []classify.RawEntity{
		{UUID: "set-1", Kind: classify.KindSettlement, Category: classify.CategorySettlement, Name: "Village of Harad"},
		{UUID: "npc-1", Kind: classify.KindNPC, Category: classify.CategoryUnknown, Name: "Old Meg", Refs: []string{"set-1"}},
		{UUID: "npc-2", Kind: classify.KindNPC, Category: classify.CategoryUnknown, Refs: []string{"set-1"}},
		{UUID: "dun-1", Kind: classify.KindDungeon, Category: classify.CategoryDungeon, Name: "Tomb of the Grey Ogre",
			Format: classify.FormatJSON, Fields: map[string]any{
				"areas": []any{
					map[string]any{"name": "Gate", "monsters": []any{"ogre"}, "connections": []any{1.0}},
					map[string]any{"name": "Crypt", "treasure": "silver crown"},
				},
			}},
		{UUID: "fac-1", Kind: classify.KindFaction, Category: classify.CategoryFaction, Refs: []string{"set-1", "reg-1"}},
	}
	m := mapdata.NewWorld(tiles, map[string]string{"reg-1": "Aurora Bushes"}, map[string]string{})
	g := world.BuildGraph(entities, m)
	lib, err := seeds.Default()
	require.NoError(t, err)
	return Input{
		Map:      m,
		Graph:    g,
		Index:    world.BuildSpatialIndex(g, m.Tiles),
		Entities: entities,
		Seeds:    lib,
	}
}

func newEmitter(t *testing.T, out string) (*Emitter, *manifest.Manifest) {
	t.Helper()
	man, err := manifest.Load(filepath.Join(out, "manifest.json"))
	require.NoError(t, err)
	return New(man, out), man
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(filepath.Join(root, Root), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestEmitTree(t *testing.T) {
	out := t.TempDir()
	em, _ := newEmitter(t, out)
	res, err := em.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)

	files := readTree(t, out)
	for _, want := range []string{
		"worldgen/biomes/biomes.go",
		"worldgen/hexes/hexes.go",
		"worldgen/hexes/hex_q0_r0.go",
		"worldgen/hexes/hex_q0_r1.go",
		"worldgen/hexes/hex_q1_r0.go",
		"worldgen/hexes/hex_q3_r3.go",
		"worldgen/regions/regions.go",
		"worldgen/regions/region_reg_1_gen.go",
		"worldgen/dungeons/dungeons.go",
		"worldgen/dungeons/dungeon_dun_1_gen.go",
		"worldgen/dungeons/dungeon_dun_1_area_00.go",
		"worldgen/dungeons/dungeon_dun_1_area_01.go",
		"worldgen/dialogue/dialogue.go",
		"worldgen/dialogue/npc_npc_1_gen.go",
		"worldgen/dialogue/npc_npc_2_gen.go",
	} {
		assert.Contains(t, files, want)
	}
	assert.Len(t, files, 15)
	assert.Equal(t, 15, res.Written)
	assert.Len(t, res.Modules, 15)

	hex := files["worldgen/hexes/hex_q0_r0.go"]
	assert.Contains(t, hex, "// Code generated by worldforge. DO NOT EDIT.")
	assert.Regexp(t, `Settlements:\s+\[\]string\{"set-1"\}`, hex)
	assert.Regexp(t, `NPCs:\s+\[\]string\{"npc-1", "npc-2"\}`, hex)
	assert.Regexp(t, `Factions:\s+\[\]string\{"fac-1"\}`, hex)
	assert.Regexp(t, `Rivers:\s+\[\]int\{0, 3\}`, hex)
	assert.Regexp(t, `Region:\s+"reg-1"`, hex)
	p := seeds.PlacementFor("reg-1")
	assert.Regexp(t, `Band:\s+`+itoa(p.Dread)+`,`, hex)

	stones := files["worldgen/hexes/hex_q0_r1.go"]
	assert.Regexp(t, `SpecialFeatures:\s+\[\]string\{"standing stones"\}`, stones)
	assert.Regexp(t, `Settlements:\s+nil`, stones)

	biomes := files["worldgen/biomes/biomes.go"]
	assert.Regexp(t, `Swamp\s+Biome = "Swamp"`, biomes)
	assert.Regexp(t, `Forest\s+Biome = "forest"`, biomes)

	region := files["worldgen/regions/region_reg_1_gen.go"]
	assert.Regexp(t, `RegionType:\s+"forest"`, region)
	assert.Regexp(t, `Hexes:\s+\[\]string\{"`+hexgrid.EncodeToken(coord(0, 0))+`", "`+hexgrid.EncodeToken(coord(1, 0))+`"\}`, region)

	area := files["worldgen/dungeons/dungeon_dun_1_area_00.go"]
	assert.Regexp(t, `Name:\s+"Gate"`, area)
	assert.Regexp(t, `Monsters:\s+\[\]string\{"ogre"\}`, area)
	assert.Regexp(t, `Connections:\s+\[\]int\{1\}`, area)
	assert.Regexp(t, `AreaCount:\s+2`, files["worldgen/dungeons/dungeon_dun_1_gen.go"])
}

func itoa(n int) string { return string(rune('0' + n)) }

func TestEmitIsDeterministic(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	emA, _ := newEmitter(t, a)
	emB, _ := newEmitter(t, b)
	_, err := emA.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	_, err = emB.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	if diff := cmp.Diff(readTree(t, a), readTree(t, b)); diff != "" {
		t.Errorf("emit output differs between runs (-a +b):\n%s", diff)
	}
}

func TestEmitUnchangedRerunWritesNothing(t *testing.T) {
	out := t.TempDir()
	em, man := newEmitter(t, out)
	_, err := em.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	require.NoError(t, man.Save())

	em2, _ := newEmitter(t, out)
	res, err := em2.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	assert.Zero(t, res.Written)
	assert.Zero(t, res.Pruned)
	assert.Len(t, res.Modules, 15)
}

func TestEmitPrunesStaleModules(t *testing.T) {
	out := t.TempDir()
	em, man := newEmitter(t, out)
	_, err := em.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	require.NoError(t, man.Save())

	em2, man2 := newEmitter(t, out)
	res, err := em2.Emit(context.Background(), fixtureInput(t, fixtureTiles()[:3]))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)
	assert.NoFileExists(t, filepath.Join(out, "worldgen", "hexes", "hex_q3_r3.go"))
	assert.Equal(t, []string{filepath.Join(out, "worldgen", "hexes", "hex_q3_r3.go")}, man2.Stale())
}

func TestTemplateFailureSkipsOnlyThatModule(t *testing.T) {
	out := t.TempDir()
	em, _ := newEmitter(t, out)
	broken, err := em.tmpl.Clone()
	require.NoError(t, err)
	_, err = broken.New("area.go.tmpl").Parse("package dungeons\n\nfunc {{.Dungeon}}(")
	require.NoError(t, err)
	em.tmpl = broken

	res, err := em.Emit(context.Background(), fixtureInput(t, fixtureTiles()))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "worldgen/dungeons/dungeon_dun_1_area_00.go", res.Skipped[0].Module)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, worlderr.KindEmitterTemplateError, res.Warnings[0].Kind)

	files := readTree(t, out)
	assert.Contains(t, files, "worldgen/dungeons/dungeon_dun_1_gen.go")
	assert.NotContains(t, files, "worldgen/dungeons/dungeon_dun_1_area_00.go")
	assert.Len(t, files, 13)
}

func TestEmitCancelled(t *testing.T) {
	em, _ := newEmitter(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := em.Emit(ctx, fixtureInput(t, fixtureTiles()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDialogue(t *testing.T) {
	in := fixtureInput(t, fixtureTiles())
	r := &run{Emitter: New(nil, ""), in: in}
	n, ok := in.Graph.Node("npc-1")
	require.True(t, ok)

	a, err := r.dialogueFor(n)
	require.NoError(t, err)
	b, err := r.dialogueFor(n)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, "set-1", a.Settlement)
	assert.Equal(t, hexgrid.EncodeToken(coord(0, 0)), a.Hex)
	assert.Contains(t, []string{"hermit", "herbalist"}, a.Archetype)
	assert.Len(t, a.Lines, LineCount+2)
	assert.Equal(t, seeds.ToneForBand(seeds.PlacementFor("reg-1").Dread), a.Tone)
	assert.NotEmpty(t, a.Trait)
	if a.Quest != nil {
		assert.Contains(t, a.Quest.Text, "Village of Harad")
	}
}

func TestDrawLinesReach(t *testing.T) {
	frags := []string{"calm", "uneasy", "grim", "dark", "worst"}
	for range 20 {
		lines := drawLines(rngFor("x"), frags, 0, nil)
		require.Len(t, lines, LineCount)
		for _, l := range lines {
			assert.Equal(t, "Calm.", l)
		}
	}
	lines := drawLines(rngFor("y"), nil, 4, []string{"The Black Seep"})
	assert.Equal(t, []string{"...", "...", `Have you read "The Black Seep"? It tells of this place.`}, lines)
}

func TestRenderQuest(t *testing.T) {
	got, err := renderQuest(seeds.QuestPattern{Name: "q", Template: "Go to {{.Place}}."}, "Harad")
	require.NoError(t, err)
	assert.Equal(t, "Go to Harad.", got)

	_, err = renderQuest(seeds.QuestPattern{Name: "bad", Template: "{{.Nope}}"}, "Harad")
	assert.Error(t, err)
}

func TestIdent(t *testing.T) {
	assert.Equal(t, "DeepForest", Ident("deep forest"))
	assert.Equal(t, "SnowyMountains", Ident("snowy-mountains"))
	assert.Equal(t, "B3Hills", Ident("3 hills"))
	assert.Equal(t, "Unknown", Ident("--"))
}

func TestFileID(t *testing.T) {
	assert.Equal(t, "reg_1", FileID("Reg-1"))
	assert.Equal(t, "x", FileID(""))
}

func TestNamer(t *testing.T) {
	n := newNamer("_", []string{"ab", "ab", "ab_2"})
	assert.Equal(t, "ab", n.name("ab"))
	assert.Equal(t, "ab_3", n.name("ab"), "ab_2 belongs to another input")
	assert.Equal(t, "ab_2", n.name("ab_2"))
	assert.Equal(t, "ab_4", n.name("ab"))
}

func TestEmitKeepsCollidingNamesApart(t *testing.T) {
	tiles := []mapdata.Tile{
		{Coord: coord(0, 0), Biome: "forest", FeatureUUID: "DUN-1", Feature: "tomb"},
		{Coord: coord(1, 0), Biome: "Forest", FeatureUUID: "dun-1", Feature: "cave"},
		{Coord: coord(2, 0), Biome: "Forest2"},
	}
	entities := []classify.RawEntity{
		{UUID: "DUN-1", Kind: classify.KindDungeon, Category: classify.CategoryDungeon, Name: "Upper Tomb"},
		{UUID: "dun-1", Kind: classify.KindDungeon, Category: classify.CategoryDungeon, Name: "Lower Cave"},
	}
	m := mapdata.NewWorld(tiles, map[string]string{}, map[string]string{})
	g := world.BuildGraph(entities, m)
	lib, err := seeds.Default()
	require.NoError(t, err)
	in := Input{Map: m, Graph: g, Index: world.BuildSpatialIndex(g, m.Tiles), Entities: entities, Seeds: lib}

	out := t.TempDir()
	em, _ := newEmitter(t, out)
	res, err := em.Emit(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)

	tree := readTree(t, out)
	upper := tree["worldgen/dungeons/dungeon_dun_1_gen.go"]
	lower := tree["worldgen/dungeons/dungeon_dun_1_2_gen.go"]
	assert.Contains(t, upper, "Upper Tomb")
	assert.Contains(t, lower, "Lower Cave")

	biomes := tree["worldgen/biomes/biomes.go"]
	assert.Regexp(t, `Forest\s+Biome = "Forest"`, biomes)
	assert.Regexp(t, `Forest2\s+Biome = "Forest2"`, biomes)
	assert.Regexp(t, `Forest3\s+Biome = "forest"`, biomes)
}

func TestGoLiterals(t *testing.T) {
	assert.Equal(t, "nil", goStrings(nil))
	assert.Equal(t, `[]string{"a", "b\"c"}`, goStrings([]string{"a", `b"c`}))
	assert.Equal(t, "[]int{1, 2}", goInts([]int{1, 2}))
	assert.Equal(t, "0.0", goFloat(0))
	assert.Equal(t, "0.35", goFloat(0.35))
}
