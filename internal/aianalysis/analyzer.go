// Package aianalysis asks a remote model for a field inventory and the
// relationships it sees in samples of each entity category. Its output is
// one evidence source among others and never dictates structure alone.
package aianalysis

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/sourcegraph/conc/pool"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/llm"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const component = "aianalysis"

// Categories are analysed in this order.
var Categories = []classify.Category{
	classify.CategoryRegion,
	classify.CategorySettlement,
	classify.CategoryFaction,
	classify.CategoryDungeon,
	classify.CategoryJSON,
}

// Submitter is the cached model surface; *llm.Cached implements it.
type Submitter interface {
	Submit(ctx context.Context, req llm.Request) (llm.Response, error)
	Invalidate(ctx context.Context, hash string)
}

// Options configures an analysis.
type Options struct {
	Model       string
	Samples     int // per format, per category
	Concurrency int
	// SampleChars truncates each sample value.
	SampleChars int
}

// DefaultOptions returns the defaults used by the CLI.
func DefaultOptions() Options {
	return Options{Model: "gpt-4o-mini", Samples: 3, Concurrency: 2, SampleChars: 1500}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.Samples <= 0 {
		o.Samples = d.Samples
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.SampleChars <= 0 {
		o.SampleChars = d.SampleChars
	}
	return o
}

const systemPrompt = `You analyse exports of a procedural tabletop world generator for a horror role-playing game.
Entities are hexes, regions, settlements, factions, dungeons, NPCs, monsters and treasure.
They are stored as HTML or JSON blobs in a single table and reference each other by uuid.
Answer only with JSON that matches the requested schema. Do not invent fields that are not in the samples.`

var userTmpl = template.Must(template.New("user").Parse(
	`Category: {{.Category}}

Normalised view schema:
{{range .Tables}}- {{.Name}}({{range $i, $c := .Columns}}{{if $i}}, {{end}}{{$c.Name}} {{$c.Type}}{{end}}) rows={{.RowCount}}
{{end}}
Samples:
{{range .Samples}}--- entity {{.UUID}} ({{.Format}})
{{.Value}}
{{end}}
Tasks:
1. List every field you can identify in the samples under "entities", grouped by entity kind, with a type and whether it is required.
2. List relationships between columns of the normalised view under "relationships", using the exact table and column names above.
3. Give an overall confidence between 0 and 1 and any warnings.`))

type sample struct {
	UUID   string
	Format classify.Format
	Value  string
}

type promptData struct {
	Category classify.Category
	Tables   []patterns.TableSchema
	Samples  []sample
}

var responseSchema = llm.GenerateSchema(modelResponse{})

// Analyze runs one model request per category with samples. A failed
// category is marked pattern-only; the others proceed.
func Analyze(ctx context.Context, entities []classify.RawEntity, tables []patterns.TableSchema, sub Submitter, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	byCategory := SelectSamples(entities, opts.Samples)

	results := make([]*CategoryResult, len(Categories))
	p := pool.New().WithMaxGoroutines(opts.Concurrency)
	for i, cat := range Categories {
		samples := byCategory[cat]
		if len(samples) == 0 {
			continue
		}
		p.Go(func() {
			results[i] = analyzeCategory(ctx, cat, samples, tables, sub, opts)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return merge(results), nil
}

// SelectSamples picks up to n HTML and n JSON entities per category, in
// uuid order.
func SelectSamples(entities []classify.RawEntity, n int) map[classify.Category][]classify.RawEntity {
	sorted := append([]classify.RawEntity(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UUID < sorted[j].UUID })

	type counts struct{ html, json int }
	seen := map[classify.Category]*counts{}
	out := map[classify.Category][]classify.RawEntity{}
	for _, e := range sorted {
		if e.Category == classify.CategoryUnknown {
			continue
		}
		c := seen[e.Category]
		if c == nil {
			c = &counts{}
			seen[e.Category] = c
		}
		switch e.Format {
		case classify.FormatJSON:
			if c.json >= n {
				continue
			}
			c.json++
		default:
			if c.html >= n {
				continue
			}
			c.html++
		}
		out[e.Category] = append(out[e.Category], e)
	}
	return out
}

// BuildRequest renders the deterministic request for one category.
func BuildRequest(cat classify.Category, samples []classify.RawEntity, tables []patterns.TableSchema, opts Options) (llm.Request, error) {
	opts = opts.withDefaults()
	data := promptData{Category: cat, Tables: tables}
	for _, e := range samples {
		data.Samples = append(data.Samples, sample{UUID: e.UUID, Format: e.Format, Value: clip(e.Value, opts.SampleChars)})
	}
	var buf bytes.Buffer
	if err := userTmpl.Execute(&buf, data); err != nil {
		return llm.Request{}, fmt.Errorf("render prompt: %w", err)
	}
	return llm.Request{
		Model:       opts.Model,
		Temperature: 0,
		System:      systemPrompt,
		User:        buf.String(),
		SchemaName:  "world_entity_analysis",
		Schema:      responseSchema,
	}, nil
}

func analyzeCategory(ctx context.Context, cat classify.Category, samples []classify.RawEntity, tables []patterns.TableSchema, sub Submitter, opts Options) *CategoryResult {
	res := &CategoryResult{Category: cat, Samples: len(samples)}
	req, err := BuildRequest(cat, samples, tables, opts)
	if err != nil {
		res.PatternOnly = true
		res.Error = err.Error()
		res.ErrorKind = worlderr.KindLLMSchemaViolation
		return res
	}
	res.Hash = req.Hash()

	type attempt struct {
		resp   llm.Response
		parsed modelResponse
	}
	got, err := llm.RetryWithContext(ctx, 2, func(ctx context.Context) (attempt, error) {
		resp, err := sub.Submit(ctx, req)
		if err != nil {
			return attempt{}, err
		}
		parsed, err := Validate(resp.Text)
		if err != nil {
			// Never keep a response that failed validation.
			sub.Invalidate(ctx, resp.Hash)
			return attempt{}, err
		}
		return attempt{resp: resp, parsed: parsed}, nil
	})
	if err != nil {
		res.PatternOnly = true
		res.Error = err.Error()
		res.ErrorKind = worlderr.KindLLMUnavailable
		if k, ok := worlderr.KindOf(err); ok {
			res.ErrorKind = k
		}
		logger.Warn("category analysis failed; falling back to pattern evidence", "category", cat, "err", err)
		return res
	}

	res.Cached = got.resp.Cached
	res.Inventory = got.parsed.Entities
	res.Relationships = got.parsed.Relationships
	res.Confidence = clamp01(got.parsed.Confidence)
	res.Warnings = got.parsed.Warnings
	return res
}

// Validate parses a model response and checks its shape: an entities array
// must be present, every field needs a name and type, and every
// relationship needs both endpoints.
func Validate(text string) (modelResponse, error) {
	var shape map[string]any
	if err := llm.UnmarshalFlexible(text, &shape); err != nil {
		return modelResponse{}, worlderr.New(worlderr.KindLLMSchemaViolation, "aianalysis.Validate", err)
	}
	if _, ok := shape["entities"].([]any); !ok {
		return modelResponse{}, worlderr.Errorf(worlderr.KindLLMSchemaViolation, "aianalysis.Validate", "response has no entities array")
	}
	var parsed modelResponse
	if err := llm.UnmarshalFlexible(text, &parsed); err != nil {
		return modelResponse{}, worlderr.New(worlderr.KindLLMSchemaViolation, "aianalysis.Validate", err)
	}
	var problems []string
	for _, inv := range parsed.Entities {
		for i, f := range inv.Fields {
			if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Type) == "" {
				problems = append(problems, fmt.Sprintf("entities[%s].fields[%d] lacks name or type", inv.Kind, i))
			}
		}
	}
	for i, r := range parsed.Relationships {
		if r.FromTable == "" || r.FromColumn == "" || r.ToTable == "" || r.ToColumn == "" {
			problems = append(problems, fmt.Sprintf("relationships[%d] lacks an endpoint", i))
		}
	}
	if len(problems) > 0 {
		return modelResponse{}, worlderr.Errorf(worlderr.KindLLMSchemaViolation, "aianalysis.Validate", "%s", strings.Join(problems, "; "))
	}
	return parsed, nil
}

func merge(results []*CategoryResult) *Result {
	out := &Result{FieldInventory: map[string][]Field{}}
	best := map[patterns.PairKey]Relationship{}
	var confSum float64
	var confN int
	for _, r := range results {
		if r == nil {
			continue
		}
		out.Categories = append(out.Categories, *r)
		if r.PatternOnly {
			out.Warnings = append(out.Warnings, worlderr.Warnf(r.ErrorKind, component, string(r.Category), "%s", r.Error))
			continue
		}
		confSum += r.Confidence
		confN++
		out.FieldInventory[string(r.Category)] = mergeFields(r.Inventory)
		for _, rel := range r.Relationships {
			if prev, ok := best[rel.Key()]; !ok || rel.Confidence > prev.Confidence {
				best[rel.Key()] = rel
			}
		}
		for _, w := range r.Warnings {
			out.Warnings = append(out.Warnings, worlderr.Warnf(worlderr.KindLLMSchemaViolation, component, string(r.Category), "model warning: %s", w))
		}
	}
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	keys := make([]patterns.PairKey, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
	for _, k := range keys {
		out.Relationships = append(out.Relationships, best[k])
	}
	return out
}

// mergeFields folds the per-kind inventories into one field list sorted by
// name. A field is required only if every kind that lists it requires it.
func mergeFields(invs []EntityInventory) []Field {
	byName := map[string]Field{}
	for _, inv := range invs {
		for _, f := range inv.Fields {
			prev, ok := byName[f.Name]
			if !ok {
				byName[f.Name] = f
				continue
			}
			prev.Required = prev.Required && f.Required
			if prev.Description == "" {
				prev.Description = f.Description
			}
			byName[f.Name] = prev
		}
	}
	out := make([]Field, 0, len(byName))
	for _, f := range byName {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !isRuneStart(s[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n[truncated]"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
