package gamedb

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/manifest"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/seeds"
	"github.com/julianshen/worldforge/internal/world"
)

// HexTile is a hex_tiles row. Hexes an entity names without a loaded tile
// are stored with Loaded false so every coordinate reference resolves.
type HexTile struct {
	Q          int     `db:"q" json:"q"`
	R          int     `db:"r" json:"r"`
	Token      string  `db:"token" json:"token"`
	Loaded     bool    `db:"loaded" json:"loaded"`
	Biome      string  `db:"biome" json:"biome"`
	Feature    string  `db:"feature" json:"feature"`
	Region     string  `db:"region_uuid" json:"region_uuid"`
	Realm      string  `db:"realm_uuid" json:"realm_uuid"`
	Rivers     string  `db:"rivers" json:"rivers"`
	Trails     string  `db:"trails" json:"trails"`
	Act        int     `db:"act" json:"act"`
	Band       int     `db:"band" json:"band"`
	Corruption float64 `db:"corruption" json:"corruption"`
}

// Named is a realms or factions row.
type Named struct {
	UUID string `db:"uuid" json:"uuid"`
	Name string `db:"name" json:"name"`
}

// Region is a regions row.
type Region struct {
	UUID       string  `db:"uuid" json:"uuid"`
	Name       string  `db:"name" json:"name"`
	RegionType string  `db:"region_type" json:"region_type"`
	Act        int     `db:"act" json:"act"`
	Band       int     `db:"band" json:"band"`
	Corruption float64 `db:"corruption" json:"corruption"`
}

// Site is a settlements or dungeons row; the hex is nil when the entity
// could not be located.
type Site struct {
	UUID string `db:"uuid" json:"uuid"`
	Name string `db:"name" json:"name"`
	HexQ *int   `db:"hex_q" json:"hex_q"`
	HexR *int   `db:"hex_r" json:"hex_r"`
}

// Presence is a faction_presence row.
type Presence struct {
	Faction string `db:"faction_uuid" json:"faction_uuid"`
	HexQ    int    `db:"hex_q" json:"hex_q"`
	HexR    int    `db:"hex_r" json:"hex_r"`
}

// Room is a dungeon_rooms row. Monsters and treasures are JSON arrays.
type Room struct {
	Dungeon   string `db:"dungeon_uuid" json:"dungeon_uuid"`
	Index     int    `db:"idx" json:"idx"`
	Name      string `db:"name" json:"name"`
	Monsters  string `db:"monsters" json:"monsters"`
	Treasures string `db:"treasures" json:"treasures"`
}

// Doorway is a dungeon_doorways row.
type Doorway struct {
	Dungeon string `db:"dungeon_uuid" json:"dungeon_uuid"`
	From    int    `db:"from_idx" json:"from_idx"`
	To      int    `db:"to_idx" json:"to_idx"`
}

// NPC is an npcs row.
type NPC struct {
	UUID       string  `db:"uuid" json:"uuid"`
	Name       string  `db:"name" json:"name"`
	Settlement *string `db:"settlement_uuid" json:"settlement_uuid"`
	HexQ       *int    `db:"hex_q" json:"hex_q"`
	HexR       *int    `db:"hex_r" json:"hex_r"`
}

// Feature is a special_features row.
type Feature struct {
	HexQ    int    `db:"hex_q" json:"hex_q"`
	HexR    int    `db:"hex_r" json:"hex_r"`
	Feature string `db:"feature" json:"feature"`
}

// Weather is a weather row.
type Weather struct {
	Region    string `db:"region_uuid" json:"region_uuid"`
	Condition string `db:"condition" json:"condition"`
	Dread     int    `db:"dread" json:"dread"`
}

// Content is every game-content row of one run, in insertion order.
type Content struct {
	HexTiles        []HexTile  `json:"hex_tiles"`
	Realms          []Named    `json:"realms"`
	Regions         []Region   `json:"regions"`
	Settlements     []Site     `json:"settlements"`
	Factions        []Named    `json:"factions"`
	FactionPresence []Presence `json:"faction_presence"`
	Dungeons        []Site     `json:"dungeons"`
	DungeonRooms    []Room     `json:"dungeon_rooms"`
	DungeonDoorways []Doorway  `json:"dungeon_doorways"`
	NPCs            []NPC      `json:"npcs"`
	SpecialFeatures []Feature  `json:"special_features"`
	Weather         []Weather  `json:"weather"`
}

// Hash is the sha256 of the content's JSON encoding. Rows are built in a
// canonical order so equal worlds hash equal.
func (c *Content) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return manifest.HashBytes(data)
}

// BuildContent derives the game-content rows from the resolved world.
// fields holds the JSON fields of entities by uuid, for dungeon areas.
func BuildContent(m *mapdata.World, g *world.Graph, ix world.SpatialIndex, lib *seeds.Library, fields map[string]map[string]any) *Content {
	c := &Content{}

	for _, t := range m.Tiles {
		p := seeds.PlacementFor(world.PlacementKey(t))
		c.HexTiles = append(c.HexTiles, HexTile{
			Q: t.Coord.Q, R: t.Coord.R, Token: hexgrid.EncodeToken(t.Coord), Loaded: true,
			Biome: t.Biome, Feature: t.Feature, Region: t.Region, Realm: t.Realm,
			Rivers: intsJSON(t.Rivers), Trails: intsJSON(t.Trails),
			Act: p.Act, Band: p.Dread, Corruption: p.Level,
		})
	}
	for _, coord := range ix.Coords() {
		if m.Has(coord) {
			continue
		}
		p := seeds.PlacementFor(world.HexID(coord))
		c.HexTiles = append(c.HexTiles, HexTile{
			Q: coord.Q, R: coord.R, Token: hexgrid.EncodeToken(coord),
			Rivers: "[]", Trails: "[]",
			Act: p.Act, Band: p.Dread, Corruption: p.Level,
		})
	}
	slices.SortFunc(c.HexTiles, func(a, b HexTile) int {
		return hexgrid.Compare(hexgrid.Coord{Q: a.Q, R: a.R}, hexgrid.Coord{Q: b.Q, R: b.R})
	})

	for _, id := range m.SortedRealmUUIDs() {
		c.Realms = append(c.Realms, Named{UUID: id, Name: m.Realms[id]})
	}
	for _, id := range m.SortedRegionUUIDs() {
		p := seeds.PlacementFor(id)
		regionType := lib.RegionType(m.RegionBiome(id))
		c.Regions = append(c.Regions, Region{
			UUID: id, Name: m.Regions[id], RegionType: regionType,
			Act: p.Act, Band: p.Dread, Corruption: p.Level,
		})
		c.Weather = append(c.Weather, Weather{Region: id, Condition: lib.WeatherFor(regionType, p.Dread), Dread: p.Dread})
	}

	for _, n := range g.NodesOfKind(classify.KindSettlement) {
		c.Settlements = append(c.Settlements, site(g, n))
	}
	for _, n := range g.NodesOfKind(classify.KindFaction) {
		c.Factions = append(c.Factions, Named{UUID: n.UUID, Name: n.Name})
		for _, coord := range g.FactionHexes(n.UUID) {
			c.FactionPresence = append(c.FactionPresence, Presence{Faction: n.UUID, HexQ: coord.Q, HexR: coord.R})
		}
	}
	for _, n := range g.NodesOfKind(classify.KindDungeon) {
		c.Dungeons = append(c.Dungeons, site(g, n))
		for _, a := range g.DungeonAreas(n.UUID, fields[n.UUID]) {
			c.DungeonRooms = append(c.DungeonRooms, Room{
				Dungeon: n.UUID, Index: a.Index, Name: a.Name,
				Monsters: stringsJSON(a.Monsters), Treasures: stringsJSON(a.Treasures),
			})
			for _, to := range a.Connections {
				c.DungeonDoorways = append(c.DungeonDoorways, Doorway{Dungeon: n.UUID, From: a.Index, To: to})
			}
		}
	}
	for _, n := range g.NodesOfKind(classify.KindNPC) {
		s := site(g, n)
		row := NPC{UUID: n.UUID, Name: n.Name, HexQ: s.HexQ, HexR: s.HexR}
		for _, e := range g.OutOfKind(n.UUID, world.NPCInSettlement) {
			if t, ok := g.Node(e.Target); ok && t.Kind == classify.KindSettlement {
				row.Settlement = &t.UUID
				break
			}
		}
		c.NPCs = append(c.NPCs, row)
	}

	for _, coord := range ix.Coords() {
		for _, f := range ix.At(coord).SpecialFeatures {
			c.SpecialFeatures = append(c.SpecialFeatures, Feature{HexQ: coord.Q, HexR: coord.R, Feature: f})
		}
	}
	return c
}

func site(g *world.Graph, n world.Node) Site {
	s := Site{UUID: n.UUID, Name: n.Name}
	if coord, ok := g.Location(n.UUID); ok {
		s.HexQ, s.HexR = &coord.Q, &coord.R
	}
	return s
}

func intsJSON(ns []int) string {
	if len(ns) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(ns)
	return string(data)
}

func stringsJSON(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(ss)
	return string(data)
}

func decodeInts(s string, dst *[]int) error {
	if s == "" || s == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("decode edge bits %q: %w", s, err)
	}
	return nil
}
