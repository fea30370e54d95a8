package hexgrid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Offset is a position in the snapshot's column/row grid. Map tiles carry it
// as x,y and grid tokens spell it as "W2S51" (x = -2, y = 51).
type Offset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// FromOffset converts the snapshot's odd-q offset grid to axial.
func FromOffset(o Offset) Coord {
	return Coord{Q: o.X, R: o.Y - (o.X-(o.X&1))/2}
}

// ToOffset converts axial back to the snapshot's offset grid.
func ToOffset(c Coord) Offset {
	return Offset{X: c.Q, Y: c.R + (c.Q-(c.Q&1))/2}
}

// TokenPattern matches a grid token inside free text. The first submatch
// pair is the east/west column, the second the north/south row.
var TokenPattern = regexp.MustCompile(`\b([EWew])(\d{1,5})([NSns])(\d{1,5})\b`)

var fullToken = regexp.MustCompile(`^` + TokenPattern.String() + `$`)

// DecodeToken maps a grid token such as "W2S51" to its axial coordinate.
func DecodeToken(token string) (Coord, error) {
	m := fullToken.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return Coord{}, fmt.Errorf("invalid grid token %q", token)
	}
	return decodeParts(m[1], m[2], m[3], m[4])
}

// FindToken returns the first grid token in text and its coordinate.
func FindToken(text string) (string, Coord, bool) {
	m := TokenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", Coord{}, false
	}
	c, err := decodeParts(m[1], m[2], m[3], m[4])
	if err != nil {
		return "", Coord{}, false
	}
	return m[0], c, true
}

func decodeParts(ew, xs, ns, ys string) (Coord, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Coord{}, fmt.Errorf("column %q: %w", xs, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Coord{}, fmt.Errorf("row %q: %w", ys, err)
	}
	if strings.EqualFold(ew, "W") {
		x = -x
	}
	if strings.EqualFold(ns, "N") {
		y = -y
	}
	return FromOffset(Offset{X: x, Y: y}), nil
}

// EncodeToken renders c as a canonical grid token. Zero components are
// written as E0 and S0.
func EncodeToken(c Coord) string {
	o := ToOffset(c)
	var b strings.Builder
	if o.X < 0 {
		fmt.Fprintf(&b, "W%d", -o.X)
	} else {
		fmt.Fprintf(&b, "E%d", o.X)
	}
	if o.Y < 0 {
		fmt.Fprintf(&b, "N%d", -o.Y)
	} else {
		fmt.Fprintf(&b, "S%d", o.Y)
	}
	return b.String()
}
