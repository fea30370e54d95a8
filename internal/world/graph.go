// Package world holds the resolved world: the entity graph with its typed
// edges and the spatial index that buckets entities by hex.
package world

import (
	"cmp"
	"slices"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/hexgrid"
)

// EdgeKind names the relationship an edge expresses.
type EdgeKind string

const (
	SettlementInHex EdgeKind = "settlement_in_hex"
	FactionInRegion EdgeKind = "faction_in_region"
	NPCInSettlement EdgeKind = "npc_in_settlement"
	DungeonInHex    EdgeKind = "dungeon_in_hex"
	ContainsMonster EdgeKind = "contains_monster"
	HoldsTreasure   EdgeKind = "holds_treasure"
	Neighbor        EdgeKind = "neighbor"
	Other           EdgeKind = "other"
)

// KindHex is the node kind of map tiles.
const KindHex = "hex"

// Node is one vertex of the graph: an entity, a map region or a hex.
type Node struct {
	UUID     string            `json:"uuid"`
	Kind     string            `json:"kind"`
	Category classify.Category `json:"category,omitempty"`
	Name     string            `json:"name,omitempty"`
	Hex      *hexgrid.Coord    `json:"hex,omitempty"`
}

// Edge is a derived, typed relationship between two nodes.
type Edge struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Kind        EdgeKind `json:"kind"`
	SourceField string   `json:"source_field"`
}

func compareEdges(a, b Edge) int {
	return cmp.Or(
		cmp.Compare(a.Source, b.Source),
		cmp.Compare(a.Target, b.Target),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.SourceField, b.SourceField),
	)
}

// Graph is an arena of nodes addressed by uuid. Nodes never own each
// other; edges refer to nodes by uuid and adjacency is kept as indices into
// the edge slice.
type Graph struct {
	nodes []Node
	index map[string]int

	edges  []Edge
	seen   map[Edge]bool
	out    map[string][]int
	in     map[string][]int
	byKind map[EdgeKind][]int
	sorted bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:  map[string]int{},
		seen:   map[Edge]bool{},
		out:    map[string][]int{},
		in:     map[string][]int{},
		byKind: map[EdgeKind][]int{},
		sorted: true,
	}
}

// HexID is the node uuid of the tile at c.
func HexID(c hexgrid.Coord) string {
	return "hex:" + hexgrid.EncodeToken(c)
}

// AddNode inserts n unless a node with the same uuid exists, and returns
// its arena index.
func (g *Graph) AddNode(n Node) int {
	if i, ok := g.index[n.UUID]; ok {
		return i
	}
	g.index[n.UUID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return len(g.nodes) - 1
}

// Node returns the node with uuid id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes in uuid order.
func (g *Graph) Nodes() []Node {
	out := slices.Clone(g.nodes)
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.UUID, b.UUID) })
	return out
}

// NodesOfKind returns the nodes of kind in uuid order.
func (g *Graph) NodesOfKind(kind string) []Node {
	var out []Node
	for _, n := range g.Nodes() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// AddEdge records e if both endpoints exist and it is not already present.
func (g *Graph) AddEdge(e Edge) bool {
	if _, ok := g.index[e.Source]; !ok {
		return false
	}
	if _, ok := g.index[e.Target]; !ok {
		return false
	}
	if e.Source == e.Target || g.seen[e] {
		return false
	}
	g.seen[e] = true
	g.edges = append(g.edges, e)
	g.sorted = false
	return true
}

// sort puts the edges in canonical order and rebuilds adjacency, so edge
// order never depends on insertion order.
func (g *Graph) sort() {
	if g.sorted {
		return
	}
	slices.SortFunc(g.edges, compareEdges)
	clear(g.out)
	clear(g.in)
	clear(g.byKind)
	for i, e := range g.edges {
		g.out[e.Source] = append(g.out[e.Source], i)
		g.in[e.Target] = append(g.in[e.Target], i)
		g.byKind[e.Kind] = append(g.byKind[e.Kind], i)
	}
	g.sorted = true
}

// Edges returns every edge in canonical order.
func (g *Graph) Edges() []Edge {
	g.sort()
	return slices.Clone(g.edges)
}

// Out returns the edges leaving id.
func (g *Graph) Out(id string) []Edge {
	g.sort()
	return g.pick(g.out[id])
}

// In returns the edges arriving at id.
func (g *Graph) In(id string) []Edge {
	g.sort()
	return g.pick(g.in[id])
}

// OfKind returns the edges of kind.
func (g *Graph) OfKind(kind EdgeKind) []Edge {
	g.sort()
	return g.pick(g.byKind[kind])
}

// OutOfKind returns the edges of kind leaving id.
func (g *Graph) OutOfKind(id string, kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range g.Out(id) {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// InOfKind returns the edges of kind arriving at id.
func (g *Graph) InOfKind(id string, kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range g.In(id) {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) pick(idx []int) []Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// CountByKind tallies edges per kind.
func (g *Graph) CountByKind() map[EdgeKind]int {
	g.sort()
	out := make(map[EdgeKind]int, len(g.byKind))
	for k, idx := range g.byKind {
		out[k] = len(idx)
	}
	return out
}
