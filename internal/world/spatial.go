package world

import (
	"slices"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/mapdata"
)

// HexEntitySet is everything located on one hex. Each bucket is sorted.
type HexEntitySet struct {
	Settlements     []string `json:"settlements,omitempty"`
	Factions        []string `json:"factions,omitempty"`
	NPCs            []string `json:"npcs,omitempty"`
	Dungeons        []string `json:"dungeons,omitempty"`
	SpecialFeatures []string `json:"special_features,omitempty"`
}

// Empty reports whether no bucket has members.
func (s HexEntitySet) Empty() bool {
	return len(s.Settlements)+len(s.Factions)+len(s.NPCs)+len(s.Dungeons)+len(s.SpecialFeatures) == 0
}

// SpatialIndex buckets entities by hex. Only non-empty hexes are present.
type SpatialIndex map[hexgrid.Coord]HexEntitySet

// At returns the set for c; the zero set when nothing is there.
func (ix SpatialIndex) At(c hexgrid.Coord) HexEntitySet {
	return ix[c]
}

// Coords returns the indexed coordinates in grid order.
func (ix SpatialIndex) Coords() []hexgrid.Coord {
	out := make([]hexgrid.Coord, 0, len(ix))
	for c := range ix {
		out = append(out, c)
	}
	slices.SortFunc(out, hexgrid.Compare)
	return out
}

// IndexBuilder accumulates bucket members and normalises them on Build.
// The game-content store uses it to rebuild an index from stored rows.
type IndexBuilder struct {
	cells map[hexgrid.Coord]*HexEntitySet
}

// NewIndexBuilder returns an empty builder.
func NewIndexBuilder() *IndexBuilder {
	return &IndexBuilder{cells: map[hexgrid.Coord]*HexEntitySet{}}
}

func (b *IndexBuilder) cell(c hexgrid.Coord) *HexEntitySet {
	s, ok := b.cells[c]
	if !ok {
		s = &HexEntitySet{}
		b.cells[c] = s
	}
	return s
}

func (b *IndexBuilder) AddSettlement(c hexgrid.Coord, id string) {
	b.cell(c).Settlements = append(b.cell(c).Settlements, id)
}

func (b *IndexBuilder) AddFaction(c hexgrid.Coord, id string) {
	b.cell(c).Factions = append(b.cell(c).Factions, id)
}

func (b *IndexBuilder) AddNPC(c hexgrid.Coord, id string) {
	b.cell(c).NPCs = append(b.cell(c).NPCs, id)
}

func (b *IndexBuilder) AddDungeon(c hexgrid.Coord, id string) {
	b.cell(c).Dungeons = append(b.cell(c).Dungeons, id)
}

func (b *IndexBuilder) AddSpecialFeature(c hexgrid.Coord, feature string) {
	b.cell(c).SpecialFeatures = append(b.cell(c).SpecialFeatures, feature)
}

// Build returns the index with every bucket sorted and deduplicated.
func (b *IndexBuilder) Build() SpatialIndex {
	ix := make(SpatialIndex, len(b.cells))
	for c, s := range b.cells {
		set := HexEntitySet{
			Settlements:     normalize(s.Settlements),
			Factions:        normalize(s.Factions),
			NPCs:            normalize(s.NPCs),
			Dungeons:        normalize(s.Dungeons),
			SpecialFeatures: normalize(s.SpecialFeatures),
		}
		if !set.Empty() {
			ix[c] = set
		}
	}
	return ix
}

func normalize(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// Location resolves the single hex a settlement, dungeon or npc sits on:
// through its hex edge, or its settlement for npcs, falling back to a
// coordinate named in the entity itself.
func (g *Graph) Location(id string) (hexgrid.Coord, bool) {
	n, ok := g.Node(id)
	if !ok {
		return hexgrid.Coord{}, false
	}
	switch n.Kind {
	case KindHex:
		return *n.Hex, true
	case classify.KindSettlement:
		if c, ok := g.firstHex(id, SettlementInHex); ok {
			return c, true
		}
	case classify.KindDungeon:
		if c, ok := g.firstHex(id, DungeonInHex); ok {
			return c, true
		}
	case classify.KindNPC:
		for _, e := range g.OutOfKind(id, NPCInSettlement) {
			if c, ok := g.Location(e.Target); ok {
				return c, true
			}
		}
	}
	if n.Hex != nil {
		return *n.Hex, true
	}
	return hexgrid.Coord{}, false
}

// firstHex returns the lowest coordinate among id's hex edges of kind.
func (g *Graph) firstHex(id string, kind EdgeKind) (hexgrid.Coord, bool) {
	var coords []hexgrid.Coord
	for _, e := range g.OutOfKind(id, kind) {
		if t, ok := g.Node(e.Target); ok && t.Hex != nil {
			coords = append(coords, *t.Hex)
		}
	}
	if len(coords) == 0 {
		return hexgrid.Coord{}, false
	}
	return slices.MinFunc(coords, hexgrid.Compare), true
}

// FactionHexes returns every hex a faction is present on: the hexes of the
// settlements it is linked to, plus a coordinate it names itself.
func (g *Graph) FactionHexes(id string) []hexgrid.Coord {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	var out []hexgrid.Coord
	if n.Hex != nil {
		out = append(out, *n.Hex)
	}
	linked := func(other string) {
		if o, ok := g.Node(other); ok && o.Kind == classify.KindSettlement {
			if c, ok := g.Location(other); ok {
				out = append(out, c)
			}
		}
	}
	for _, e := range g.Out(id) {
		linked(e.Target)
	}
	for _, e := range g.In(id) {
		linked(e.Source)
	}
	slices.SortFunc(out, hexgrid.Compare)
	return slices.Compact(out)
}

// IsSiteFeature reports whether a tile's feature is a settlement or dungeon
// entity rather than a special feature.
func (g *Graph) IsSiteFeature(t mapdata.Tile) bool {
	if t.FeatureUUID == "" {
		return false
	}
	n, ok := g.Node(t.FeatureUUID)
	return ok && (n.Kind == classify.KindSettlement || n.Kind == classify.KindDungeon)
}

// BuildSpatialIndex buckets every locatable entity by hex. It is a pure
// function of the graph and the tiles.
func BuildSpatialIndex(g *Graph, tiles []mapdata.Tile) SpatialIndex {
	b := NewIndexBuilder()
	for _, n := range g.Nodes() {
		switch n.Kind {
		case classify.KindSettlement:
			if c, ok := g.Location(n.UUID); ok {
				b.AddSettlement(c, n.UUID)
			}
		case classify.KindDungeon:
			if c, ok := g.Location(n.UUID); ok {
				b.AddDungeon(c, n.UUID)
			}
		case classify.KindNPC:
			if c, ok := g.Location(n.UUID); ok {
				b.AddNPC(c, n.UUID)
			}
		case classify.KindFaction:
			for _, c := range g.FactionHexes(n.UUID) {
				b.AddFaction(c, n.UUID)
			}
		}
	}
	for _, t := range tiles {
		if t.Feature != "" && !g.IsSiteFeature(t) {
			b.AddSpecialFeature(t.Coord, t.Feature)
		}
	}
	return b.Build()
}

// PlacementKey is the key a tile's corruption placement is derived from:
// its region, or the hex itself when it belongs to none.
func PlacementKey(t mapdata.Tile) string {
	if t.Region != "" {
		return t.Region
	}
	return HexID(t.Coord)
}
