package world

import (
	"cmp"
	"slices"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/mapdata"
)

// Source fields recorded on derived edges.
const (
	FieldFeatureUUID = "feature_uuid"
	FieldHexToken    = "hex_token"
	FieldRefs        = "refs"
	FieldMap         = "map"
)

// BuildGraph derives the entity graph from the classified entities and the
// decoded map, which may be nil. The result depends only on its inputs.
func BuildGraph(entities []classify.RawEntity, m *mapdata.World) *Graph {
	g := NewGraph()

	sorted := slices.Clone(entities)
	slices.SortFunc(sorted, func(a, b classify.RawEntity) int { return cmp.Compare(a.UUID, b.UUID) })
	for _, e := range sorted {
		g.AddNode(Node{UUID: e.UUID, Kind: e.Kind, Category: e.Category, Name: e.Name, Hex: entityHex(e)})
	}

	if m != nil {
		for _, id := range m.SortedRegionUUIDs() {
			g.AddNode(Node{UUID: id, Kind: classify.KindRegion, Category: classify.CategoryRegion, Name: m.Regions[id]})
		}
		for _, t := range m.Tiles {
			c := t.Coord
			g.AddNode(Node{UUID: HexID(c), Kind: KindHex, Name: hexgrid.EncodeToken(c), Hex: &c})
		}
		addTileEdges(g, m)
	}

	for _, e := range sorted {
		addRefEdges(g, e)
		addDirectHexEdge(g, e)
	}
	g.sort()
	return g
}

func entityHex(e classify.RawEntity) *hexgrid.Coord {
	if e.Hex != nil {
		c := *e.Hex
		return &c
	}
	if e.MapCoord != nil {
		c := hexgrid.FromOffset(*e.MapCoord)
		return &c
	}
	return nil
}

func addTileEdges(g *Graph, m *mapdata.World) {
	for _, t := range m.Tiles {
		hex := HexID(t.Coord)
		if t.FeatureUUID != "" {
			if n, ok := g.Node(t.FeatureUUID); ok {
				switch n.Kind {
				case classify.KindSettlement:
					g.AddEdge(Edge{Source: n.UUID, Target: hex, Kind: SettlementInHex, SourceField: FieldFeatureUUID})
				case classify.KindDungeon:
					g.AddEdge(Edge{Source: n.UUID, Target: hex, Kind: DungeonInHex, SourceField: FieldFeatureUUID})
				}
			}
		}
		for _, nb := range t.Coord.Neighbors() {
			if m.Has(nb) {
				g.AddEdge(Edge{Source: hex, Target: HexID(nb), Kind: Neighbor, SourceField: FieldMap})
			}
		}
	}
}

// addDirectHexEdge places a settlement or dungeon that names its own hex
// token on that hex, when the hex is loaded.
func addDirectHexEdge(g *Graph, e classify.RawEntity) {
	n, _ := g.Node(e.UUID)
	if n.Hex == nil {
		return
	}
	hex := HexID(*n.Hex)
	if _, ok := g.Node(hex); !ok {
		return
	}
	switch n.Kind {
	case classify.KindSettlement:
		g.AddEdge(Edge{Source: n.UUID, Target: hex, Kind: SettlementInHex, SourceField: FieldHexToken})
	case classify.KindDungeon:
		g.AddEdge(Edge{Source: n.UUID, Target: hex, Kind: DungeonInHex, SourceField: FieldHexToken})
	}
}

func addRefEdges(g *Graph, e classify.RawEntity) {
	src, _ := g.Node(e.UUID)
	for _, ref := range e.Refs {
		tgt, ok := g.Node(ref)
		if !ok {
			continue
		}
		kind, flip := PairKind(src.Kind, tgt.Kind)
		edge := Edge{Source: src.UUID, Target: tgt.UUID, Kind: kind, SourceField: FieldRefs}
		if flip {
			edge.Source, edge.Target = edge.Target, edge.Source
		}
		g.AddEdge(edge)
	}
}

func containsArea(kind string) bool {
	return kind == classify.KindDungeon || kind == classify.KindArea
}

// PairKind returns the edge kind for a reference from a node of kind src to
// one of kind tgt. flip is true when the edge runs against the reference,
// so that the contained entity is always the source.
func PairKind(src, tgt string) (kind EdgeKind, flip bool) {
	switch {
	case src == classify.KindNPC && tgt == classify.KindSettlement:
		return NPCInSettlement, false
	case src == classify.KindSettlement && tgt == classify.KindNPC:
		return NPCInSettlement, true
	case src == classify.KindFaction && tgt == classify.KindRegion:
		return FactionInRegion, false
	case src == classify.KindRegion && tgt == classify.KindFaction:
		return FactionInRegion, true
	case containsArea(src) && tgt == classify.KindMonster:
		return ContainsMonster, false
	case src == classify.KindMonster && containsArea(tgt):
		return ContainsMonster, true
	case containsArea(src) && tgt == classify.KindTreasure:
		return HoldsTreasure, false
	case src == classify.KindTreasure && containsArea(tgt):
		return HoldsTreasure, true
	default:
		return Other, false
	}
}
