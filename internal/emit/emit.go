// Package emit generates the worldgen Go package tree from the resolved
// world: a biome enum, one module per loaded hex, per-region aggregates,
// dungeons with their areas and per-NPC dialogue. Output is deterministic;
// every file goes through a Sink so unchanged modules are not rewritten.
package emit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/fsutil"
	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/seeds"
	"github.com/julianshen/worldforge/internal/world"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const component = "emit"

// Root is the directory under the output root that holds generated code.
const Root = "worldgen"

// Sink records a generated file. It reports whether data was written; an
// unchanged file is skipped. *manifest.Manifest satisfies it.
type Sink interface {
	SyncBytes(key, destination string, data []byte) (bool, error)
}

// Input is the resolved world handed to the emitter.
type Input struct {
	Map      *mapdata.World
	Graph    *world.Graph
	Index    world.SpatialIndex
	Entities []classify.RawEntity
	Seeds    *seeds.Library
}

// Skip records a module that could not be generated.
type Skip struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

// Result summarises an emit run. Modules are relative to the output root
// with forward slashes.
type Result struct {
	Modules  []string           `json:"modules"`
	Written  int                `json:"written"`
	Pruned   int                `json:"pruned"`
	Skipped  []Skip             `json:"skipped,omitempty"`
	Warnings []worlderr.Warning `json:"warnings,omitempty"`
}

// Emitter renders the worldgen tree under an output root.
type Emitter struct {
	sink   Sink
	outDir string
	tmpl   *template.Template
}

// New returns an emitter writing under outDir through sink.
func New(sink Sink, outDir string) *Emitter {
	return &Emitter{sink: sink, outDir: outDir, tmpl: defaultTemplates}
}

type run struct {
	*Emitter
	in       Input
	fields   map[string]map[string]any
	res      *Result
	produced map[string]bool
}

// Emit generates every module for in. A template or format failure skips
// that module only and is recorded as a warning; write failures and
// cancellation abort the run.
func (em *Emitter) Emit(ctx context.Context, in Input) (*Result, error) {
	if in.Map == nil || in.Graph == nil || in.Seeds == nil {
		return nil, worlderr.Errorf(worlderr.KindIO, "emit.Emit", "map, graph and seeds are required")
	}
	r := &run{
		Emitter:  em,
		in:       in,
		fields:   make(map[string]map[string]any, len(in.Entities)),
		res:      &Result{},
		produced: map[string]bool{},
	}
	for _, e := range in.Entities {
		if e.Fields != nil {
			r.fields[e.UUID] = e.Fields
		}
	}

	steps := []func(context.Context) error{
		r.emitBiomes,
		r.emitHexes,
		r.emitRegions,
		r.emitDungeons,
		r.emitDialogue,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return r.res, err
		}
	}
	if err := r.prune(); err != nil {
		return r.res, err
	}
	logger.Info("worldgen emitted",
		"modules", len(r.res.Modules),
		"written", r.res.Written,
		"pruned", r.res.Pruned,
		"skipped", len(r.res.Skipped))
	return r.res, nil
}

// module renders one file. rel is relative to the worldgen root.
func (r *run) module(ctx context.Context, rel, name string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := path.Join(Root, rel)
	src, err := render(r.tmpl, name, data)
	if err != nil {
		r.res.Skipped = append(r.res.Skipped, Skip{Module: key, Reason: err.Error()})
		r.res.Warnings = append(r.res.Warnings,
			worlderr.Warnf(worlderr.KindEmitterTemplateError, component, key, "%v", err))
		logger.Warn("module skipped", "module", key, "error", err)
		return nil
	}
	dest := filepath.Join(r.outDir, filepath.FromSlash(key))
	wrote, err := r.sink.SyncBytes(key, dest, src)
	if err != nil {
		return worlderr.New(worlderr.KindIO, "emit.module", err)
	}
	r.produced[dest] = true
	r.res.Modules = append(r.res.Modules, key)
	if wrote {
		r.res.Written++
	}
	return nil
}

type biomeConst struct {
	Ident string
	Value string
}

func (r *run) emitBiomes(ctx context.Context) error {
	biomes := r.in.Map.Biomes()
	idents := make([]string, len(biomes))
	for i, b := range biomes {
		idents[i] = Ident(b)
	}
	names := newNamer("", idents)
	consts := make([]biomeConst, 0, len(biomes))
	for i, b := range biomes {
		consts = append(consts, biomeConst{Ident: names.name(idents[i]), Value: b})
	}
	return r.module(ctx, "biomes/biomes.go", tmplBiomes, consts)
}

type hexData struct {
	Coord     hexgrid.Coord
	Token     string
	Tile      mapdata.Tile
	Set       world.HexEntitySet
	Placement seeds.Placement
}

func (r *run) emitHexes(ctx context.Context) error {
	if err := r.module(ctx, "hexes/hexes.go", tmplHexes, nil); err != nil {
		return err
	}
	for _, t := range r.in.Map.Tiles {
		d := hexData{
			Coord:     t.Coord,
			Token:     hexgrid.EncodeToken(t.Coord),
			Tile:      t,
			Set:       r.in.Index.At(t.Coord),
			Placement: seeds.PlacementFor(world.PlacementKey(t)),
		}
		if err := r.module(ctx, "hexes/hex_"+t.Coord.Key()+".go", tmplHex, d); err != nil {
			return err
		}
	}
	return nil
}

type regionData struct {
	UUID       string
	Name       string
	RegionType string
	Placement  seeds.Placement
	Weather    string
	Hexes      []string
}

func (r *run) emitRegions(ctx context.Context) error {
	if err := r.module(ctx, "regions/regions.go", tmplRegions, nil); err != nil {
		return err
	}
	ids := r.in.Map.SortedRegionUUIDs()
	files := fileNamer(ids)
	for _, id := range ids {
		tiles := r.in.Map.RegionTiles(id)
		d := regionData{
			UUID:       id,
			Name:       r.in.Map.Regions[id],
			RegionType: r.in.Seeds.RegionType(r.in.Map.RegionBiome(id)),
			Placement:  seeds.PlacementFor(id),
		}
		d.Weather = r.in.Seeds.WeatherFor(d.RegionType, d.Placement.Dread)
		for _, t := range tiles {
			d.Hexes = append(d.Hexes, hexgrid.EncodeToken(t.Coord))
		}
		if err := r.module(ctx, "regions/region_"+files.name(FileID(id))+"_gen.go", tmplRegion, d); err != nil {
			return err
		}
	}
	return nil
}

type dungeonData struct {
	UUID      string
	Name      string
	Hex       string
	Placement seeds.Placement
	Areas     []world.Area
}

type areaData struct {
	Dungeon string
	Area    world.Area
}

func (r *run) emitDungeons(ctx context.Context) error {
	if err := r.module(ctx, "dungeons/dungeons.go", tmplDungeons, nil); err != nil {
		return err
	}
	dungeons := r.in.Graph.NodesOfKind(classify.KindDungeon)
	files := fileNamer(nodeUUIDs(dungeons))
	for _, n := range dungeons {
		d := dungeonData{
			UUID:  n.UUID,
			Name:  n.Name,
			Areas: r.in.Graph.DungeonAreas(n.UUID, r.fields[n.UUID]),
		}
		d.Placement = seeds.PlacementFor(n.UUID)
		if c, ok := r.in.Graph.Location(n.UUID); ok {
			d.Hex = hexgrid.EncodeToken(c)
			if t, ok := r.in.Map.TileAt(c); ok {
				d.Placement = seeds.PlacementFor(world.PlacementKey(t))
			}
		}
		base := "dungeons/dungeon_" + files.name(FileID(n.UUID))
		if err := r.module(ctx, base+"_gen.go", tmplDungeon, d); err != nil {
			return err
		}
		for _, a := range d.Areas {
			rel := fmt.Sprintf("%s_area_%02d.go", base, a.Index)
			if err := r.module(ctx, rel, tmplArea, areaData{Dungeon: n.UUID, Area: a}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) emitDialogue(ctx context.Context) error {
	if err := r.module(ctx, "dialogue/dialogue.go", tmplDialogue, nil); err != nil {
		return err
	}
	npcs := r.in.Graph.NodesOfKind(classify.KindNPC)
	files := fileNamer(nodeUUIDs(npcs))
	for _, n := range npcs {
		rel := "dialogue/npc_" + files.name(FileID(n.UUID)) + "_gen.go"
		d, err := r.dialogueFor(n)
		if err != nil {
			key := path.Join(Root, rel)
			r.res.Skipped = append(r.res.Skipped, Skip{Module: key, Reason: err.Error()})
			r.res.Warnings = append(r.res.Warnings,
				worlderr.Warnf(worlderr.KindEmitterTemplateError, component, key, "%v", err))
			continue
		}
		if err := r.module(ctx, rel, tmplNPC, d); err != nil {
			return err
		}
	}
	return nil
}

// fileNamer keeps the file names of one module family unique when ids
// differ only in case or punctuation.
func fileNamer(ids []string) *namer {
	natural := make([]string, len(ids))
	for i, id := range ids {
		natural[i] = FileID(id)
	}
	return newNamer("_", natural)
}

func nodeUUIDs(nodes []world.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.UUID
	}
	return out
}

// prune removes generated files under the worldgen root that this run did
// not produce, then any directories left empty.
func (r *run) prune() error {
	root := filepath.Join(r.outDir, Root)
	var stale []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".go") || r.produced[p] {
			return nil
		}
		stale = append(stale, p)
		return nil
	})
	if err != nil {
		return worlderr.New(worlderr.KindIO, "emit.prune", err)
	}
	slices.Sort(stale)
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			return worlderr.New(worlderr.KindIO, "emit.prune", err)
		}
		r.res.Pruned++
	}
	if r.res.Pruned > 0 {
		if err := fsutil.RemoveEmptyDirs(root); err != nil {
			return worlderr.New(worlderr.KindIO, "emit.prune", err)
		}
	}
	return nil
}
