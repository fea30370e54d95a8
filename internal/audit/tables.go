package audit

import (
	"slices"
	"strconv"
	"strings"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/crossval"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Report topics.
const (
	TopicRegions       = "entities/regions"
	TopicSettlements   = "entities/settlements"
	TopicFactions      = "entities/factions"
	TopicDungeons      = "entities/dungeons"
	TopicUncategorized = "entities/uncategorized"
	TopicSummary       = "pipeline/summary"
	TopicRelationships = "analysis/relationships"
	TopicCrossVal      = "analysis/crossval"
	TopicWarnings      = "analysis/warnings"
)

var (
	entityColumns        = []string{"uuid", "name", "kind", "format", "hex", "map_x", "map_y", "refs"}
	uncategorizedColumns = []string{"uuid", "kind", "format", "refs", "preview"}
	summaryColumns       = []string{"metric", "value"}
	relationshipColumns  = []string{"from_table", "from_column", "to_table", "to_column", "cardinality", "match_count", "confidence", "band"}
	crossvalColumns      = []string{"pair", "status", "pattern_confidence", "ai_confidence", "promoted", "note"}
	warningColumns       = []string{"kind", "component", "subject", "message"}
)

// PreviewLen bounds the raw value excerpt of uncategorized entities.
const PreviewLen = 80

// Metric is one pipeline summary row.
type Metric struct {
	Name  string
	Value string
}

// Input is whatever run state exists when the audit runs. Any part may be
// missing after an upstream failure; its topics are then written empty.
type Input struct {
	Entities []classify.RawEntity
	Report   *patterns.Report
	CrossVal *crossval.Result
	Warnings []worlderr.Warning
	Summary  []Metric
}

// Tables builds every topic from in, in a fixed order.
func Tables(in Input) []Table {
	byCat := map[classify.Category][]classify.RawEntity{}
	for _, e := range in.Entities {
		byCat[e.Category] = append(byCat[e.Category], e)
	}
	for _, es := range byCat {
		slices.SortFunc(es, func(a, b classify.RawEntity) int { return strings.Compare(a.UUID, b.UUID) })
	}

	return []Table{
		entityTable(TopicRegions, byCat[classify.CategoryRegion]),
		entityTable(TopicSettlements, byCat[classify.CategorySettlement]),
		entityTable(TopicFactions, byCat[classify.CategoryFaction]),
		entityTable(TopicDungeons, byCat[classify.CategoryDungeon]),
		uncategorizedTable(byCat[classify.CategoryUnknown]),
		summaryTable(in.Summary),
		relationshipTable(in.Report),
		crossvalTable(in.CrossVal),
		warningTable(in.Warnings),
	}
}

func entityTable(topic string, es []classify.RawEntity) Table {
	t := Table{Topic: topic, Columns: entityColumns, Rows: [][]string{}}
	for _, e := range es {
		var x, y string
		if e.MapCoord != nil {
			x, y = strconv.Itoa(e.MapCoord.X), strconv.Itoa(e.MapCoord.Y)
		}
		t.Rows = append(t.Rows, []string{
			e.UUID, e.Name, e.Kind, string(e.Format), e.HexToken, x, y, strconv.Itoa(len(e.Refs)),
		})
	}
	return t
}

func uncategorizedTable(es []classify.RawEntity) Table {
	t := Table{Topic: TopicUncategorized, Columns: uncategorizedColumns, Rows: [][]string{}}
	for _, e := range es {
		t.Rows = append(t.Rows, []string{
			e.UUID, e.Kind, string(e.Format), strconv.Itoa(len(e.Refs)), preview(e.Value),
		})
	}
	return t
}

// preview collapses whitespace and clips to PreviewLen runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > PreviewLen {
		return string(r[:PreviewLen]) + "…"
	}
	return s
}

func summaryTable(metrics []Metric) Table {
	t := Table{Topic: TopicSummary, Columns: summaryColumns, Rows: [][]string{}}
	for _, m := range metrics {
		t.Rows = append(t.Rows, []string{m.Name, m.Value})
	}
	return t
}

func relationshipTable(r *patterns.Report) Table {
	t := Table{Topic: TopicRelationships, Columns: relationshipColumns, Rows: [][]string{}}
	if r == nil {
		return t
	}
	for _, rel := range r.Relationships {
		t.Rows = append(t.Rows, []string{
			rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn, string(rel.Cardinality),
			strconv.Itoa(rel.MatchCount), formatConfidence(rel.Confidence), string(patterns.BandFor(rel.Confidence)),
		})
	}
	return t
}

func crossvalTable(r *crossval.Result) Table {
	t := Table{Topic: TopicCrossVal, Columns: crossvalColumns, Rows: [][]string{}}
	if r == nil {
		return t
	}
	promoted := map[patterns.PairKey]bool{}
	for _, rel := range r.Promoted {
		promoted[rel.Key()] = true
	}
	conflicts := map[patterns.PairKey]string{}
	for _, c := range r.Conflicts {
		conflicts[c.Key] = c.Reason
	}
	add := func(status string, f crossval.Finding) {
		var pc, ac string
		if f.Pattern != nil {
			pc = formatConfidence(f.Pattern.Confidence)
		}
		if f.AI != nil {
			ac = formatConfidence(f.AI.Confidence)
		}
		note := conflicts[f.Key]
		if note != "" {
			status = "conflict"
		}
		t.Rows = append(t.Rows, []string{
			f.Key.String(), status, pc, ac, strconv.FormatBool(promoted[f.Key]), note,
		})
	}
	for _, f := range r.Reinforced {
		add("reinforced", f)
	}
	for _, f := range r.PatternOnly {
		add("pattern_only", f)
	}
	for _, f := range r.AIOnly {
		add("ai_only", f)
	}
	return t
}

func warningTable(ws []worlderr.Warning) Table {
	t := Table{Topic: TopicWarnings, Columns: warningColumns, Rows: [][]string{}}
	for _, w := range ws {
		t.Rows = append(t.Rows, []string{string(w.Kind), w.Component, w.Subject, w.Message})
	}
	return t
}

func formatConfidence(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
