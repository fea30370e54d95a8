// Package patterns recovers the implicit relational schema of a SQLite
// database by evidence: table schemas and samples, markup patterns in text
// columns, value overlap between plausibly related columns, and references
// embedded in free text.
package patterns

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const component = "patterns"

// Options tunes an analysis run.
type Options struct {
	// SampleCap bounds the sample rows kept per table.
	SampleCap int
	// MarkupSampleCap bounds the values inspected per text column in Pass B.
	MarkupSampleCap int
	// KnownUUIDs resolves embedded uuid references. Nil disables dangling
	// detection.
	KnownUUIDs map[string]bool
	// Entities, when set, drives the per-category reference counts.
	Entities []classify.RawEntity
}

func (o Options) withDefaults() Options {
	if o.SampleCap <= 0 {
		o.SampleCap = 5
	}
	if o.MarkupSampleCap <= 0 {
		o.MarkupSampleCap = 200
	}
	return o
}

// Analyze runs Pass A, B and C over db. Only I/O failures that prevent
// reading the schema are returned as errors; anything else lowers the
// report's confidence and is recorded as a warning.
func Analyze(ctx context.Context, db *sql.DB, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	a := &analysis{db: db, opts: opts, report: &Report{CategoryRefs: map[string]int{}}}

	if err := a.inspectSchemas(ctx); err != nil {
		return nil, worlderr.New(worlderr.KindIO, "patterns.Analyze", err)
	}
	logger.Debug("schema inspected", "tables", len(a.report.Tables))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.detectMarkup(ctx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.discoverRelationships(ctx)
	a.extractReferences(ctx)
	a.countCategoryRefs()
	a.recommend()

	r := a.report
	r.Confidence = 1.0 - 0.1*float64(len(r.Warnings))
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	logger.Info("pattern analysis complete",
		"relationships", len(r.Relationships),
		"embedded", len(r.EmbeddedReferences),
		"warnings", len(r.Warnings))
	return r, nil
}

type analysis struct {
	db     *sql.DB
	opts   Options
	report *Report
}

func (a *analysis) warn(subject, format string, args ...any) {
	a.report.Warnings = append(a.report.Warnings,
		worlderr.Warnf(worlderr.KindPatternAnalysisPartial, component, subject, format, args...))
}

// countCategoryRefs tallies outbound and inbound uuid references per
// category. A categorised category with entities but no references at all
// is critical; the uncategorized bucket is only counted.
func (a *analysis) countCategoryRefs() {
	if len(a.opts.Entities) == 0 {
		return
	}
	categoryOf := make(map[string]classify.Category, len(a.opts.Entities))
	present := map[classify.Category]bool{}
	for _, e := range a.opts.Entities {
		categoryOf[e.UUID] = e.Category
		present[e.Category] = true
	}
	counts := map[classify.Category]int{}
	for _, e := range a.opts.Entities {
		counts[e.Category] += len(e.Refs)
		for _, ref := range e.Refs {
			if c, ok := categoryOf[ref]; ok {
				counts[c]++
			}
		}
	}
	for _, c := range classify.Categories {
		if !present[c] {
			continue
		}
		a.report.CategoryRefs[string(c)] = counts[c]
		if counts[c] == 0 && c != classify.CategoryUnknown {
			a.report.CriticalIssues = append(a.report.CriticalIssues,
				fmt.Sprintf("category %s has no discovered references", c))
		}
	}
}

func (a *analysis) recommend() {
	r := a.report
	rels := append([]ImplicitRelationship(nil), r.Relationships...)
	sort.SliceStable(rels, func(i, j int) bool {
		return rels[i].Confidence > rels[j].Confidence
	})
	for _, rel := range rels {
		band := BandFor(rel.Confidence)
		r.Recommendations = append(r.Recommendations, Recommendation{
			Band:    band,
			Subject: rel.Key().String(),
			Message: fmt.Sprintf("%s.%s references %s.%s (%s, %d matches, confidence %.2f)%s",
				rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn,
				rel.Cardinality, rel.MatchCount, rel.Confidence, advice(band)),
		})
	}
	if n := r.DanglingCount(); n > 0 {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Band:    BandLow,
			Subject: "embedded_references",
			Message: fmt.Sprintf("%d embedded uuid references resolve to no known entity; review before extraction", n),
		})
	}
	for _, issue := range r.CriticalIssues {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Band:    BandLow,
			Subject: "critical",
			Message: issue,
		})
	}
}

func advice(b Band) string {
	switch b {
	case BandHigh:
		return "; safe to extract as a join"
	case BandMedium:
		return "; confirm with the LLM inventory before extracting"
	default:
		return "; weak evidence"
	}
}
