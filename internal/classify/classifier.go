// Package classify turns snapshot rows into RawEntity values: format
// detection, dictionary categorisation, grid and map coordinate extraction
// and outbound uuid references. Classification is pure: the same row and
// dictionaries always produce the same entity.
package classify

import (
	"encoding/json"
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/snapshot"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Format is the detected encoding of an entity value.
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// Category is the coarse classification of an entity.
type Category string

const (
	CategoryRegion     Category = "region"
	CategorySettlement Category = "settlement"
	CategoryFaction    Category = "faction"
	CategoryDungeon    Category = "dungeon"
	CategoryJSON       Category = "json"
	CategoryUnknown    Category = "unknown"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryRegion, CategorySettlement, CategoryFaction, CategoryDungeon, CategoryJSON, CategoryUnknown,
}

// Plural is the directory and report name of a category.
func (c Category) Plural() string {
	switch c {
	case CategoryJSON, CategoryUnknown:
		return string(c)
	default:
		return string(c) + "s"
	}
}

// Node kinds refine categories for graph building. JSON entities carry
// their kind in a type field; unknown entities may get one from Refs.
const (
	KindRegion     = "region"
	KindSettlement = "settlement"
	KindFaction    = "faction"
	KindDungeon    = "dungeon"
	KindNPC        = "npc"
	KindMonster    = "monster"
	KindTreasure   = "treasure"
	KindArea       = "area"
	KindJSON       = "json"
	KindUnknown    = "unknown"
)

// RawEntity is one classified snapshot row. It is never mutated after
// classification.
type RawEntity struct {
	UUID     string
	Value    string
	Format   Format
	Category Category
	Kind     string
	Name     string
	HexToken string
	Hex      *hexgrid.Coord
	MapCoord *hexgrid.Offset
	Refs     []string
	// Fields holds the top-level members of a JSON entity.
	Fields map[string]any
}

// Ext is the file extension used for the entity's canonical file.
func (e RawEntity) Ext() string {
	if e.Format == FormatJSON {
		return "json"
	}
	return "html"
}

var (
	uuidPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)

	mapCoordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bdata-x\s*=\s*["']?(-?\d+)["']?\s+data-y\s*=\s*["']?(-?\d+)`),
		regexp.MustCompile(`(?i)\bx\s*[:=]\s*(-?\d+)\s*[,;&]\s*y\s*[:=]\s*(-?\d+)`),
	}
)

// Classifier categorises entities against a fixed set of dictionaries.
type Classifier struct {
	dicts    []dictionary
	refTypes map[string]string
}

// New returns a classifier using dicts. refTypes maps uuid to the Refs.type
// column and may be nil.
func New(dicts Dictionaries, refTypes map[string]string) *Classifier {
	return &Classifier{dicts: dicts.ordered(), refTypes: refTypes}
}

// Classify builds the RawEntity for one row.
func (c *Classifier) Classify(row snapshot.EntityRow) RawEntity {
	e := RawEntity{UUID: row.UUID, Value: row.Value}

	if fields, ok := parseJSON(row.Value); ok {
		e.Format = FormatJSON
		e.Category = CategoryJSON
		e.Fields = fields
		e.Name = stringField(fields, "name", "title")
		e.Kind = jsonKind(fields)
	} else {
		e.Format = FormatHTML
		e.Category, e.Name = c.match(row.Value)
		e.Kind = string(e.Category)
	}

	if e.Category == CategoryUnknown {
		if k := NormalizeKind(c.refTypes[row.UUID]); k != "" {
			e.Kind = k
		}
	}

	if tok, coord, ok := hexgrid.FindToken(row.Value); ok {
		e.HexToken = tok
		e.Hex = &coord
	}
	e.MapCoord = findMapCoord(row.Value)
	e.Refs = ExtractUUIDs(row.Value, row.UUID)
	return e
}

// parseJSON reports whether value is a JSON document. Top-level objects are
// returned as fields; other JSON documents yield an empty field map.
func parseJSON(value string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return map[string]any{}, true
	}
	return fields, true
}

func (c *Classifier) match(value string) (Category, string) {
	unescaped := html.UnescapeString(value)
	for _, dict := range c.dicts {
		for _, name := range dict.names {
			if name == "" {
				continue
			}
			if strings.Contains(value, name) || strings.Contains(unescaped, name) {
				return dict.category, name
			}
		}
	}
	return CategoryUnknown, ""
}

func stringField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func jsonKind(fields map[string]any) string {
	if k := NormalizeKind(stringField(fields, "type", "kind", "entity_type")); k != "" {
		return k
	}
	return KindJSON
}

// NormalizeKind maps free-form type labels onto node kinds. Unrecognised
// labels return "".
func NormalizeKind(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer("-", "_", " ", "_").Replace(l)
	switch l {
	case "npc", "character", "person", "inhabitant", "villager":
		return KindNPC
	case "monster", "creature", "beast", "encounter":
		return KindMonster
	case "treasure", "loot", "item", "hoard":
		return KindTreasure
	case "area", "room", "dungeon_area", "dungeon_room", "cave_area", "chamber":
		return KindArea
	case "settlement", "village", "town", "city":
		return KindSettlement
	case "dungeon", "cave", "tomb", "crypt", "lair", "temple", "shrine", "hideout":
		return KindDungeon
	case "region", "biome":
		return KindRegion
	case "faction", "cult", "militia", "syndicate":
		return KindFaction
	default:
		return ""
	}
}

// ExtractUUIDs returns every canonical uuid token in text, deduplicated in
// discovery order. self is excluded.
func ExtractUUIDs(text, self string) []string {
	matches := uuidPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if m == self || seen[m] {
			continue
		}
		if _, err := uuid.Parse(m); err != nil {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// IsUUID reports whether s is a canonical uuid.
func IsUUID(s string) bool {
	return len(s) == 36 && uuidPattern.MatchString(s)
}

func findMapCoord(text string) *hexgrid.Offset {
	for _, p := range mapCoordPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		x, errX := strconv.Atoi(m[1])
		y, errY := strconv.Atoi(m[2])
		if errX != nil || errY != nil {
			continue
		}
		return &hexgrid.Offset{X: x, Y: y}
	}
	return nil
}

// ClassifyAll classifies a stream of rows. A repeated uuid is fatal.
func (c *Classifier) ClassifyAll(rows iter.Seq2[snapshot.EntityRow, error]) ([]RawEntity, error) {
	seen := make(map[string]bool)
	var out []RawEntity
	for row, err := range rows {
		if err != nil {
			return nil, worlderr.New(worlderr.KindIO, "classify.ClassifyAll", err)
		}
		if seen[row.UUID] {
			return nil, worlderr.Errorf(worlderr.KindDuplicateEntityUUID, "classify.ClassifyAll", "uuid %q appears more than once", row.UUID)
		}
		seen[row.UUID] = true
		out = append(out, c.Classify(row))
	}
	return out, nil
}

// RefTypes indexes Refs rows by uuid, keeping the first non-empty type.
func RefTypes(refs []snapshot.RefRow) map[string]string {
	out := make(map[string]string, len(refs))
	for _, r := range refs {
		if r.UUID == "" || r.Type == "" {
			continue
		}
		if _, ok := out[r.UUID]; !ok {
			out[r.UUID] = r.Type
		}
	}
	return out
}

// CountByCategory tallies entities per category.
func CountByCategory(entities []RawEntity) map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, e := range entities {
		out[e.Category]++
	}
	return out
}
