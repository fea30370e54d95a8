// Package hexgrid provides the global axial hex grid used by every pipeline
// stage: coordinates, distance, neighbours, the snapshot's offset grid and
// the "W2S51" grid-token codec.
package hexgrid

import (
	"cmp"
	"fmt"
)

// Coord is a position on the hex grid in axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (c Coord) S() int {
	return -c.Q - c.R
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Q, c.R)
}

// Add returns the component-wise sum.
func (c Coord) Add(o Coord) Coord {
	return Coord{Q: c.Q + o.Q, R: c.R + o.R}
}

// Directions are the six neighbour offsets, indexed by edge number 0..5.
// River, trail and border bits in the snapshot use the same numbering.
var Directions = [6]Coord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// EdgeCount is the number of edges of a hex.
const EdgeCount = len(Directions)

// Neighbors returns the six adjacent coordinates in edge order.
func (c Coord) Neighbors() [6]Coord {
	var out [6]Coord
	for i, d := range Directions {
		out[i] = c.Add(d)
	}
	return out
}

// Neighbor returns the adjacent coordinate across edge.
func (c Coord) Neighbor(edge int) Coord {
	return c.Add(Directions[((edge%EdgeCount)+EdgeCount)%EdgeCount])
}

// Distance returns the number of steps between a and b:
// (|dq| + |dr| + |ds|) / 2.
func Distance(a, b Coord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	return (dq + dr + ds) / 2
}

// Adjacent reports whether a and b share an edge.
func Adjacent(a, b Coord) bool {
	return Distance(a, b) == 1
}

// Compare orders coordinates by q, then r. It is the sort order used for
// every output that depends on coordinates.
func Compare(a, b Coord) int {
	if c := cmp.Compare(a.Q, b.Q); c != 0 {
		return c
	}
	return cmp.Compare(a.R, b.R)
}

// Key is a filesystem and identifier safe rendering of c, e.g. "qn3_r5".
func (c Coord) Key() string {
	return "q" + signed(c.Q) + "_r" + signed(c.R)
}

func signed(v int) string {
	if v < 0 {
		return fmt.Sprintf("n%d", -v)
	}
	return fmt.Sprintf("%d", v)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
