package cluster

import (
	"slices"
	"strings"

	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/patterns"
)

// Field sources.
const (
	SourcePattern = "pattern"
	SourceLLM     = "llm"
	SourceBoth    = "both"
)

// SchemaField is one field of a cluster schema.
type SchemaField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Source   string `json:"source"`
}

// MergeSchemas derives a schema per category from the normalised view's
// columns and the model's field inventory. The model's type wins when it
// marks the field required, meaning it appeared in every sample; otherwise
// the observed column type is kept.
func MergeSchemas(tables []patterns.TableSchema, inventory map[string][]aianalysis.Field) map[classify.Category][]SchemaField {
	out := map[classify.Category][]SchemaField{}
	for _, cat := range classify.Categories {
		if cat == classify.CategoryUnknown {
			continue
		}
		fields := map[string]SchemaField{}
		for _, col := range patternColumns(cat, tables) {
			fields[col.Name] = SchemaField{Name: col.Name, Type: strings.ToLower(col.Type), Required: col.NotNull || col.PrimaryKey, Source: SourcePattern}
		}
		for _, f := range inventory[string(cat)] {
			prev, ok := fields[f.Name]
			switch {
			case !ok:
				fields[f.Name] = SchemaField{Name: f.Name, Type: f.Type, Required: f.Required, Source: SourceLLM}
			case f.Required:
				fields[f.Name] = SchemaField{Name: f.Name, Type: f.Type, Required: true, Source: SourceBoth}
			default:
				prev.Source = SourceBoth
				fields[f.Name] = prev
			}
		}
		if len(fields) == 0 {
			continue
		}
		list := make([]SchemaField, 0, len(fields))
		for _, f := range fields {
			list = append(list, f)
		}
		slices.SortFunc(list, func(a, b SchemaField) int { return strings.Compare(a.Name, b.Name) })
		out[cat] = list
	}
	return out
}

// patternColumns picks the view columns describing a category: the json_*
// tables for JSON entities, the entities table for the rest.
func patternColumns(cat classify.Category, tables []patterns.TableSchema) []patterns.Column {
	var cols []patterns.Column
	for _, t := range tables {
		isJSON := strings.HasPrefix(t.Name, "json_")
		switch {
		case cat == classify.CategoryJSON && isJSON:
			for _, c := range t.Columns {
				if c.Name != "entity_uuid" {
					cols = append(cols, c)
				}
			}
		case cat != classify.CategoryJSON && t.Name == "entities":
			cols = append(cols, t.Columns...)
		}
	}
	return cols
}
