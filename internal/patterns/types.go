package patterns

import (
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Band is a recommendation confidence band.
type Band string

const (
	BandHigh   Band = "HIGH"
	BandMedium Band = "MEDIUM"
	BandLow    Band = "LOW"
)

// Band thresholds, inclusive.
const (
	HighThreshold   = 0.8
	MediumThreshold = 0.5
)

// BandFor maps a confidence to its band.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= HighThreshold:
		return BandHigh
	case confidence >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// Markup pattern names detected in Pass B.
const (
	MarkupTable      = "html_table"
	MarkupDiv        = "html_div"
	MarkupHeaders    = "html_headers"
	MarkupLists      = "html_lists"
	MarkupStyled     = "html_styled"
	MarkupParagraphs = "html_paragraphs"
)

// Cardinality of an implicit relationship.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// RefKind classifies an embedded reference.
type RefKind string

const (
	RefUUID      RefKind = "uuid"
	RefHypertext RefKind = "hypertext_ref"
	RefHTMLLink  RefKind = "html_link"
)

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// IsText reports whether the column has text affinity.
func (c Column) IsText() bool {
	return textAffinity(c.Type)
}

// TableSchema is the Pass A result for one table.
type TableSchema struct {
	Name     string              `json:"name"`
	RowCount int                 `json:"row_count"`
	Columns  []Column            `json:"columns"`
	Samples  []map[string]string `json:"samples,omitempty"`
}

// Column returns the named column.
func (t TableSchema) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnMarkup is the Pass B result for one text column.
type ColumnMarkup struct {
	Table    string   `json:"table"`
	Column   string   `json:"column"`
	Sampled  int      `json:"sampled"`
	Patterns []string `json:"patterns"`
}

// ImplicitRelationship is a join discovered by value overlap. From is the
// referencing side.
type ImplicitRelationship struct {
	FromTable   string      `json:"from_table"`
	FromColumn  string      `json:"from_column"`
	ToTable     string      `json:"to_table"`
	ToColumn    string      `json:"to_column"`
	MatchCount  int         `json:"match_count"`
	Confidence  float64     `json:"confidence"`
	Cardinality Cardinality `json:"cardinality"`
}

// Key identifies the column pair independently of direction.
func (r ImplicitRelationship) Key() PairKey {
	return NewPairKey(r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
}

// PairKey is a direction-insensitive column pair.
type PairKey struct {
	A, B string
}

// NewPairKey orders the two table.column endpoints lexically.
func NewPairKey(fromTable, fromColumn, toTable, toColumn string) PairKey {
	a, b := fromTable+"."+fromColumn, toTable+"."+toColumn
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

func (k PairKey) String() string {
	return k.A + " <-> " + k.B
}

// EmbeddedReference lists the targets of one reference kind found in a text
// column. Dangling holds uuid targets that resolve to no known entity; they
// are kept for review and never synthesised into edges.
type EmbeddedReference struct {
	Table    string   `json:"table"`
	Column   string   `json:"column"`
	Kind     RefKind  `json:"kind"`
	Targets  []string `json:"targets"`
	Dangling []string `json:"dangling,omitempty"`
}

// Recommendation is one prose finding with its band.
type Recommendation struct {
	Band    Band   `json:"band"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Report is the output of Analyze.
type Report struct {
	Tables             []TableSchema          `json:"tables"`
	Markup             []ColumnMarkup         `json:"markup"`
	Relationships      []ImplicitRelationship `json:"relationships"`
	EmbeddedReferences []EmbeddedReference    `json:"embedded_references"`
	CategoryRefs       map[string]int         `json:"category_refs"`
	CriticalIssues     []string               `json:"critical_issues,omitempty"`
	Recommendations    []Recommendation       `json:"recommendations"`
	Warnings           []worlderr.Warning     `json:"warnings,omitempty"`
	Confidence         float64                `json:"confidence"`
}

// Table returns the schema for name.
func (r *Report) Table(name string) (TableSchema, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

// RecommendationsIn returns the recommendations in band.
func (r *Report) RecommendationsIn(b Band) []Recommendation {
	var out []Recommendation
	for _, rec := range r.Recommendations {
		if rec.Band == b {
			out = append(out, rec)
		}
	}
	return out
}

// DanglingCount totals unresolved uuid references.
func (r *Report) DanglingCount() int {
	n := 0
	for _, ref := range r.EmbeddedReferences {
		n += len(ref.Dangling)
	}
	return n
}
