package world

import (
	"fmt"
	"math"
	"slices"

	"github.com/julianshen/worldforge/internal/classify"
)

// Area is a room-like subunit of a dungeon.
type Area struct {
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	Monsters    []string `json:"monsters,omitempty"`
	Treasures   []string `json:"treasures,omitempty"`
	Connections []int    `json:"connections,omitempty"`
}

// DungeonAreas derives the areas of dungeon id. When the dungeon's JSON
// fields carry an areas or rooms list it is used as is; otherwise areas are
// the area nodes the dungeon is linked to, chained in uuid order, and a
// dungeon with none gets a single entrance area holding its own monsters
// and treasure.
func (g *Graph) DungeonAreas(id string, fields map[string]any) []Area {
	if areas := areasFromFields(fields); len(areas) > 0 {
		return areas
	}

	var linked []string
	for _, e := range g.Out(id) {
		if n, ok := g.Node(e.Target); ok && n.Kind == classify.KindArea {
			linked = append(linked, n.UUID)
		}
	}
	for _, e := range g.In(id) {
		if n, ok := g.Node(e.Source); ok && n.Kind == classify.KindArea {
			linked = append(linked, n.UUID)
		}
	}
	slices.Sort(linked)
	linked = slices.Compact(linked)

	if len(linked) == 0 {
		return []Area{{
			Index:     0,
			Name:      "Entrance",
			Monsters:  g.targets(id, ContainsMonster),
			Treasures: g.targets(id, HoldsTreasure),
		}}
	}
	areas := make([]Area, len(linked))
	for i, aid := range linked {
		n, _ := g.Node(aid)
		name := n.Name
		if name == "" {
			name = fmt.Sprintf("Area %d", i+1)
		}
		areas[i] = Area{
			Index:     i,
			Name:      name,
			Monsters:  g.targets(aid, ContainsMonster),
			Treasures: g.targets(aid, HoldsTreasure),
		}
		if i > 0 {
			areas[i].Connections = append(areas[i].Connections, i-1)
		}
		if i < len(linked)-1 {
			areas[i].Connections = append(areas[i].Connections, i+1)
		}
	}
	return areas
}

func (g *Graph) targets(id string, kind EdgeKind) []string {
	var out []string
	for _, e := range g.OutOfKind(id, kind) {
		out = append(out, e.Target)
	}
	return out
}

// areasFromFields reads an areas or rooms list. Connections are list
// positions, so an item that is not an object keeps its slot as an empty
// area; a list with no object items yields nothing.
func areasFromFields(fields map[string]any) []Area {
	var list []any
	for _, key := range []string{"areas", "rooms"} {
		if l, ok := fields[key].([]any); ok {
			list = l
			break
		}
	}
	out := make([]Area, len(list))
	objects := 0
	for i, item := range list {
		a := Area{Index: i}
		if obj, ok := item.(map[string]any); ok {
			objects++
			a.Name = firstString(obj, "name", "title")
			a.Monsters = names(obj, "monsters", "monster")
			a.Treasures = names(obj, "treasures", "treasure")
			a.Connections = connections(obj)
		}
		if a.Name == "" {
			a.Name = fmt.Sprintf("Area %d", i+1)
		}
		out[i] = a
	}
	if objects == 0 {
		return nil
	}
	// Drop connections that point outside the list.
	for i := range out {
		out[i].Connections = slices.DeleteFunc(out[i].Connections, func(c int) bool {
			return c < 0 || c >= len(out) || c == i
		})
		slices.Sort(out[i].Connections)
		out[i].Connections = slices.Compact(out[i].Connections)
	}
	return out
}

// connections reads area indices. Values that are not whole numbers are
// ignored.
func connections(obj map[string]any) []int {
	for _, key := range []string{"connections", "doors", "exits"} {
		l, ok := obj[key].([]any)
		if !ok {
			continue
		}
		var out []int
		for _, v := range l {
			switch n := v.(type) {
			case float64:
				if n == math.Trunc(n) && !math.IsInf(n, 0) {
					out = append(out, int(n))
				}
			case int:
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// names reads a list of strings or of objects with a name.
func names(obj map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			return []string{v}
		case []any:
			var out []string
			for _, item := range v {
				switch x := item.(type) {
				case string:
					out = append(out, x)
				case map[string]any:
					if n := firstString(x, "name", "title"); n != "" {
						out = append(out, n)
					}
				}
			}
			return out
		}
	}
	return nil
}
