// Package mapdata decodes the snapshot's packed map payload into a hex grid
// of tiles plus the realm, region and border tables that describe it.
package mapdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const component = "mapdata"

// Tile is one decoded hex.
type Tile struct {
	Coord       hexgrid.Coord  `json:"coord"`
	Offset      hexgrid.Offset `json:"offset"`
	UUID        string         `json:"uuid,omitempty"`
	Biome       string         `json:"biome"`
	Feature     string         `json:"feature,omitempty"`
	FeatureUUID string         `json:"feature_uuid,omitempty"`
	Rivers      []int          `json:"rivers,omitempty"`
	Trails      []int          `json:"trails,omitempty"`
	Region      string         `json:"region,omitempty"`
	Realm       string         `json:"realm,omitempty"`
}

// Border is one hex on a realm's ownership border.
type Border struct {
	Coord hexgrid.Coord `json:"coord"`
	Edges []int         `json:"edges"`
}

// Mask folds the edge list into a 6-bit mask, bit i set for edge i.
func (b Border) Mask() uint8 {
	var m uint8
	for _, e := range b.Edges {
		m |= 1 << uint(e)
	}
	return m
}

// World is the decoded map.
type World struct {
	Tiles    []Tile
	Realms   map[string]string
	Regions  map[string]string
	Borders  map[string][]Border
	Warnings []worlderr.Warning

	index map[hexgrid.Coord]int
}

// TileAt returns the tile at c.
func (w *World) TileAt(c hexgrid.Coord) (Tile, bool) {
	i, ok := w.index[c]
	if !ok {
		return Tile{}, false
	}
	return w.Tiles[i], true
}

// Has reports whether c is a loaded tile.
func (w *World) Has(c hexgrid.Coord) bool {
	_, ok := w.index[c]
	return ok
}

// Biomes returns the distinct biome tags observed in the payload, sorted.
func (w *World) Biomes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range w.Tiles {
		if t.Biome == "" || seen[t.Biome] {
			continue
		}
		seen[t.Biome] = true
		out = append(out, t.Biome)
	}
	sort.Strings(out)
	return out
}

// RegionTiles returns the tiles owned by region, in coordinate order.
func (w *World) RegionTiles(region string) []Tile {
	var out []Tile
	for _, t := range w.Tiles {
		if t.Region == region {
			out = append(out, t)
		}
	}
	return out
}

// RegionBiome returns the most common biome among a region's tiles; ties
// go to the lexically smaller tag.
func (w *World) RegionBiome(region string) string {
	counts := map[string]int{}
	for _, t := range w.Tiles {
		if t.Region == region {
			counts[t.Biome]++
		}
	}
	best, bestN := "", 0
	for b, n := range counts {
		if n > bestN || (n == bestN && b < best) {
			best, bestN = b, n
		}
	}
	return best
}

// SortedRegionUUIDs returns region uuids in lexical order.
func (w *World) SortedRegionUUIDs() []string {
	return sortedKeys(w.Regions)
}

// SortedRealmUUIDs returns realm uuids in lexical order.
func (w *World) SortedRealmUUIDs() []string {
	return sortedKeys(w.Realms)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type payload struct {
	Map     json.RawMessage            `json:"map"`
	Realms  map[string]json.RawMessage `json:"realms"`
	Regions map[string]json.RawMessage `json:"regions"`
	Borders map[string]json.RawMessage `json:"borders"`
}

type rawTile struct {
	X           *int              `json:"x"`
	Y           *int              `json:"y"`
	Type        string            `json:"type"`
	UUID        string            `json:"uuid"`
	Feature     json.RawMessage   `json:"feature"`
	FeatureUUID string            `json:"feature_uuid"`
	Rivers      []json.RawMessage `json:"rivers"`
	Trails      []json.RawMessage `json:"trails"`
	Region      string            `json:"region"`
	Realm       string            `json:"realm"`
}

type rawBorder struct {
	X     *int              `json:"x"`
	Y     *int              `json:"y"`
	Edges []json.RawMessage `json:"edges"`
}

// Decode parses a map payload. Only a malformed top-level shape is an
// error; per-tile problems become warnings and the offending value is
// dropped.
func Decode(data []byte) (*World, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, worlderr.New(worlderr.KindMapPayloadMalformed, "mapdata.Decode", err)
	}
	var elems []json.RawMessage
	trimmed := bytes.TrimSpace(p.Map)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, worlderr.Errorf(worlderr.KindMapPayloadMalformed, "mapdata.Decode", "top-level map is not an array")
	}
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, worlderr.New(worlderr.KindMapPayloadMalformed, "mapdata.Decode", err)
	}

	w := &World{
		Realms:  make(map[string]string, len(p.Realms)),
		Regions: make(map[string]string, len(p.Regions)),
		Borders: make(map[string][]Border, len(p.Borders)),
		index:   make(map[hexgrid.Coord]int, len(elems)),
	}
	for id, raw := range p.Realms {
		w.Realms[id] = displayName(raw)
	}
	for id, raw := range p.Regions {
		w.Regions[id] = displayName(raw)
	}

	for i, elem := range elems {
		w.addTile(i, elem)
	}
	slices.SortFunc(w.Tiles, func(a, b Tile) int { return hexgrid.Compare(a.Coord, b.Coord) })
	for i, t := range w.Tiles {
		w.index[t.Coord] = i
	}

	for _, realm := range sortedRawKeys(p.Borders) {
		w.addBorders(realm, p.Borders[realm])
	}
	return w, nil
}

func (w *World) warn(subject, format string, args ...any) {
	w.Warnings = append(w.Warnings, worlderr.Warnf(worlderr.KindMapTileInvalid, component, subject, format, args...))
}

func (w *World) addTile(i int, elem json.RawMessage) {
	subject := fmt.Sprintf("map[%d]", i)
	var rt rawTile
	if err := json.Unmarshal(elem, &rt); err != nil {
		w.warn(subject, "tile is not an object: %v", err)
		return
	}
	if rt.X == nil || rt.Y == nil {
		w.warn(subject, "tile has no x/y")
		return
	}
	off := hexgrid.Offset{X: *rt.X, Y: *rt.Y}
	coord := hexgrid.FromOffset(off)
	subject = hexgrid.EncodeToken(coord)

	if _, dup := w.index[coord]; dup {
		w.warn(subject, "duplicate tile coordinate; keeping the first")
		return
	}
	w.index[coord] = len(w.Tiles)

	t := Tile{
		Coord:       coord,
		Offset:      off,
		UUID:        rt.UUID,
		Biome:       rt.Type,
		Feature:     featureTag(rt.Feature),
		FeatureUUID: rt.FeatureUUID,
		Rivers:      w.edgeBits(subject, "river", rt.Rivers),
		Trails:      w.edgeBits(subject, "trail", rt.Trails),
	}
	if rt.Region != "" {
		if _, ok := w.Regions[rt.Region]; ok {
			t.Region = rt.Region
		} else {
			w.warn(subject, "region %s is not in the regions table", rt.Region)
		}
	}
	if rt.Realm != "" {
		if _, ok := w.Realms[rt.Realm]; ok {
			t.Realm = rt.Realm
		} else {
			w.warn(subject, "realm %s is not in the realms table", rt.Realm)
		}
	}
	w.Tiles = append(w.Tiles, t)
}

// edgeBits keeps the in-range edge indices, deduplicated and sorted.
func (w *World) edgeBits(subject, what string, raw []json.RawMessage) []int {
	if len(raw) == 0 {
		return nil
	}
	var out []int
	for _, r := range raw {
		var bit int
		if err := json.Unmarshal(r, &bit); err != nil {
			w.warn(subject, "%s bit %s is not an integer", what, string(r))
			continue
		}
		if bit < 0 || bit >= hexgrid.EdgeCount {
			w.warn(subject, "%s bit %d out of range", what, bit)
			continue
		}
		if !slices.Contains(out, bit) {
			out = append(out, bit)
		}
	}
	slices.Sort(out)
	return out
}

func (w *World) addBorders(realm string, raw json.RawMessage) {
	if _, ok := w.Realms[realm]; !ok {
		w.warn("borders."+realm, "border realm is not in the realms table")
		return
	}
	var entries []rawBorder
	if err := json.Unmarshal(raw, &entries); err != nil {
		w.warn("borders."+realm, "borders are not a list of {x,y,edges}: %v", err)
		return
	}
	var out []Border
	for _, e := range entries {
		if e.X == nil || e.Y == nil {
			w.warn("borders."+realm, "border entry has no x/y")
			continue
		}
		coord := hexgrid.FromOffset(hexgrid.Offset{X: *e.X, Y: *e.Y})
		out = append(out, Border{Coord: coord, Edges: w.edgeBits(hexgrid.EncodeToken(coord), "border", e.Edges)})
	}
	slices.SortFunc(out, func(a, b Border) int { return hexgrid.Compare(a.Coord, b.Coord) })
	w.Borders[realm] = out
}

// displayName accepts either a bare string or an object with a name field.
func displayName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}

// featureTag accepts a feature as a string, or an object carrying type or name.
func featureTag(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Type != "" {
			return obj.Type
		}
		return obj.Name
	}
	return ""
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewWorld assembles a World from already decoded tiles, for example rows
// read back from the game-content store. Tiles are sorted and indexed; later
// duplicates are dropped.
func NewWorld(tiles []Tile, regions, realms map[string]string) *World {
	w := &World{
		Realms:  realms,
		Regions: regions,
		Borders: map[string][]Border{},
		index:   make(map[hexgrid.Coord]int, len(tiles)),
	}
	for _, t := range tiles {
		if _, dup := w.index[t.Coord]; dup {
			continue
		}
		w.index[t.Coord] = len(w.Tiles)
		w.Tiles = append(w.Tiles, t)
	}
	slices.SortFunc(w.Tiles, func(a, b Tile) int { return hexgrid.Compare(a.Coord, b.Coord) })
	for i, t := range w.Tiles {
		w.index[t.Coord] = i
	}
	return w
}
