package aianalysis

import (
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Field is one inventoried field of an entity category.
type Field struct {
	Name        string `json:"name" jsonschema:"description=field name as it appears in the samples"`
	Type        string `json:"type" jsonschema:"description=one of string integer number boolean uuid hex_coordinate list object"`
	Required    bool   `json:"required" jsonschema:"description=true when the field appears in every sample"`
	Description string `json:"description"`
}

// EntityInventory is the model's field inventory for one entity kind.
type EntityInventory struct {
	Kind   string  `json:"kind"`
	Fields []Field `json:"fields"`
}

// Relationship is a relationship the model discovered between two columns
// of the normalised view.
type Relationship struct {
	FromTable   string  `json:"from_table"`
	FromColumn  string  `json:"from_column"`
	ToTable     string  `json:"to_table"`
	ToColumn    string  `json:"to_column"`
	Cardinality string  `json:"cardinality" jsonschema:"enum=one_to_one,enum=one_to_many,enum=many_to_one,enum=many_to_many"`
	Confidence  float64 `json:"confidence"`
	Evidence    string  `json:"evidence"`
}

// Key identifies the column pair independently of direction.
func (r Relationship) Key() patterns.PairKey {
	return patterns.NewPairKey(r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
}

// Implicit converts r to the pattern analyzer's shape, normalised so a
// one_to_many statement reads from the referencing side.
func (r Relationship) Implicit() patterns.ImplicitRelationship {
	return patterns.ImplicitRelationship{
		FromTable:   r.FromTable,
		FromColumn:  r.FromColumn,
		ToTable:     r.ToTable,
		ToColumn:    r.ToColumn,
		Confidence:  r.Confidence,
		Cardinality: patterns.Cardinality(r.Cardinality),
	}.Normalize()
}

// modelResponse is the structured output requested from the model.
type modelResponse struct {
	Entities      []EntityInventory `json:"entities"`
	Relationships []Relationship    `json:"relationships"`
	Confidence    float64           `json:"confidence"`
	Warnings      []string          `json:"warnings"`
}

// CategoryResult is the analysis of one category.
type CategoryResult struct {
	Category      classify.Category `json:"category"`
	Samples       int               `json:"samples"`
	Inventory     []EntityInventory `json:"inventory,omitempty"`
	Relationships []Relationship    `json:"relationships,omitempty"`
	Confidence    float64           `json:"confidence"`
	Warnings      []string          `json:"warnings,omitempty"`
	Hash          string            `json:"hash,omitempty"`
	Cached        bool              `json:"cached"`
	// PatternOnly marks a category whose analysis failed; downstream
	// components rely on pattern evidence alone for it.
	PatternOnly bool          `json:"pattern_only"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   worlderr.Kind `json:"error_kind,omitempty"`
}

// Result is the merged AI analysis.
type Result struct {
	Categories []CategoryResult `json:"categories"`
	// FieldInventory maps category to its fields, merged across kinds.
	FieldInventory map[string][]Field `json:"field_inventory"`
	Relationships  []Relationship     `json:"discovered_relationships"`
	Confidence     float64            `json:"confidence"`
	Warnings       []worlderr.Warning `json:"warnings,omitempty"`
}

// PatternOnly lists the categories that fell back to pattern evidence.
func (r *Result) PatternOnly() []string {
	var out []string
	for _, c := range r.Categories {
		if c.PatternOnly {
			out = append(out, string(c.Category))
		}
	}
	return out
}

// Calls counts categories answered by the model rather than the cache.
func (r *Result) Calls() int {
	n := 0
	for _, c := range r.Categories {
		if !c.PatternOnly && !c.Cached {
			n++
		}
	}
	return n
}
