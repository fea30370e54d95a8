// Package crossval reconciles the pattern analyzer's relationships with the
// model's and decides whether the evidence is good enough to extract from.
package crossval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Verdict is the extraction readiness verdict.
type Verdict string

const (
	Ready    Verdict = "ready"
	NotReady Verdict = "not_ready"
)

// DefaultReadyThreshold is the agreement rate needed for a ready verdict.
const DefaultReadyThreshold = 0.7

// Options tunes validation.
type Options struct {
	ReadyThreshold float64
	// PromoteThreshold is the confidence at which a pattern-only finding is
	// promoted without reinforcement.
	PromoteThreshold float64
}

func (o Options) withDefaults() Options {
	if o.ReadyThreshold <= 0 {
		o.ReadyThreshold = DefaultReadyThreshold
	}
	if o.PromoteThreshold <= 0 {
		o.PromoteThreshold = patterns.HighThreshold
	}
	return o
}

// Finding is one relationship and the sources that attest it.
type Finding struct {
	Key     patterns.PairKey               `json:"key"`
	Pattern *patterns.ImplicitRelationship `json:"pattern,omitempty"`
	AI      *patterns.ImplicitRelationship `json:"ai,omitempty"`
}

// Relationship returns the finding's preferred statement: the pattern
// analyzer's when present, else the model's.
func (f Finding) Relationship() patterns.ImplicitRelationship {
	if f.Pattern != nil {
		return *f.Pattern
	}
	return *f.AI
}

// Conflict is a column pair about which the two sources disagree.
type Conflict struct {
	Key     patterns.PairKey              `json:"key"`
	Pattern patterns.ImplicitRelationship `json:"pattern"`
	AI      patterns.ImplicitRelationship `json:"ai"`
	Reason  string                        `json:"reason"`
}

// Result is the cross-validation outcome.
type Result struct {
	Reinforced  []Finding  `json:"reinforced"`
	PatternOnly []Finding  `json:"pattern_only"`
	AIOnly      []Finding  `json:"ai_only"`
	Conflicts   []Conflict `json:"conflicts"`
	Agreement   float64    `json:"agreement_rate"`
	Threshold   float64    `json:"ready_threshold"`
	Verdict     Verdict    `json:"verdict"`
	Reasons     []string   `json:"reasons,omitempty"`
	Remedy      string     `json:"remedy,omitempty"`
	// Promoted are the relationships downstream extraction may rely on.
	Promoted []patterns.ImplicitRelationship `json:"promoted"`
	// FallbackCategories fell back to pattern evidence alone.
	FallbackCategories []string                  `json:"fallback_categories,omitempty"`
	Recommendations    []patterns.Recommendation `json:"recommendations,omitempty"`
}

// Union is the number of distinct column pairs either source reported.
func (r *Result) Union() int {
	return len(r.Reinforced) + len(r.PatternOnly) + len(r.AIOnly)
}

// Err returns a CrossValidationNotReady error when the verdict is not ready.
func (r *Result) Err() error {
	if r.Verdict == Ready {
		return nil
	}
	return worlderr.Errorf(worlderr.KindCrossValidationNotReady, "crossval", "%s", strings.Join(r.Reasons, "; "))
}

// Validate reconciles the two evidence sets. ai may be nil when the model
// was not consulted. It is a pure function of its inputs.
func Validate(report *patterns.Report, ai *aianalysis.Result, opts Options) *Result {
	opts = opts.withDefaults()
	res := &Result{Threshold: opts.ReadyThreshold}

	pat := bestByKey(patternRelationships(report))
	var aiRels []patterns.ImplicitRelationship
	if ai != nil {
		for _, r := range ai.Relationships {
			aiRels = append(aiRels, r.Implicit())
		}
		res.FallbackCategories = ai.PatternOnly()
	}
	model := bestByKey(aiRels)

	for _, key := range unionKeys(pat, model) {
		p, inPat := pat[key]
		a, inAI := model[key]
		switch {
		case inPat && inAI:
			res.Reinforced = append(res.Reinforced, Finding{Key: key, Pattern: &p, AI: &a})
			if reason := conflict(p, a); reason != "" {
				res.Conflicts = append(res.Conflicts, Conflict{Key: key, Pattern: p, AI: a, Reason: reason})
			}
			res.Promoted = append(res.Promoted, p)
		case inPat:
			res.PatternOnly = append(res.PatternOnly, Finding{Key: key, Pattern: &p})
			if p.Confidence >= opts.PromoteThreshold {
				res.Promoted = append(res.Promoted, p)
			}
		default:
			res.AIOnly = append(res.AIOnly, Finding{Key: key, AI: &a})
		}
	}

	if n := res.Union(); n > 0 {
		res.Agreement = float64(len(res.Reinforced)) / float64(n)
	}
	res.decide(report, opts)
	res.recommend()
	return res
}

func (r *Result) decide(report *patterns.Report, opts Options) {
	if r.Union() == 0 {
		r.Reasons = append(r.Reasons, "neither analyzer discovered any relationship")
	} else if r.Agreement < opts.ReadyThreshold {
		r.Reasons = append(r.Reasons, fmt.Sprintf("agreement rate %.2f is below %.2f", r.Agreement, opts.ReadyThreshold))
	}
	if report != nil {
		r.Reasons = append(r.Reasons, report.CriticalIssues...)
	}
	if len(r.Reasons) == 0 {
		r.Verdict = Ready
		return
	}
	r.Verdict = NotReady
	r.Remedy = remedy(r)
}

func remedy(r *Result) string {
	switch {
	case len(r.FallbackCategories) > 0:
		return "rerun with the model available for " + strings.Join(r.FallbackCategories, ", ")
	case r.Union() == 0 || len(r.Reinforced) == 0:
		return "enable model analysis or extend the name dictionaries so both analyzers see the same entities"
	case len(r.AIOnly) > len(r.PatternOnly):
		return "review ai-only relationships; the snapshot may lack the uuid links the model describes"
	default:
		return "review pattern-only relationships and increase samples per category"
	}
}

func (r *Result) recommend() {
	for _, c := range r.FallbackCategories {
		r.Recommendations = append(r.Recommendations, patterns.Recommendation{
			Band:    patterns.BandLow,
			Subject: "category:" + c,
			Message: fmt.Sprintf("category %s relies on pattern evidence only; model analysis failed", c),
		})
	}
	for _, c := range r.Conflicts {
		r.Recommendations = append(r.Recommendations, patterns.Recommendation{
			Band:    patterns.BandMedium,
			Subject: c.Key.String(),
			Message: "analyzers disagree: " + c.Reason,
		})
	}
	for _, f := range r.AIOnly {
		r.Recommendations = append(r.Recommendations, patterns.Recommendation{
			Band:    patterns.BandLow,
			Subject: f.Key.String(),
			Message: "reported by the model only; not promoted",
		})
	}
}

// conflict describes a cardinality or direction disagreement, or returns "".
func conflict(p, a patterns.ImplicitRelationship) string {
	var parts []string
	if a.Cardinality != "" && p.Cardinality != "" && a.Cardinality != p.Cardinality {
		parts = append(parts, fmt.Sprintf("cardinality %s vs %s", p.Cardinality, a.Cardinality))
	}
	if directed(p.Cardinality) && directed(a.Cardinality) &&
		(p.FromTable != a.FromTable || p.FromColumn != a.FromColumn) {
		parts = append(parts, fmt.Sprintf("direction %s.%s -> %s.%s vs %s.%s -> %s.%s",
			p.FromTable, p.FromColumn, p.ToTable, p.ToColumn,
			a.FromTable, a.FromColumn, a.ToTable, a.ToColumn))
	}
	return strings.Join(parts, "; ")
}

func directed(c patterns.Cardinality) bool {
	return c == patterns.ManyToOne || c == patterns.OneToMany
}

func patternRelationships(r *patterns.Report) []patterns.ImplicitRelationship {
	if r == nil {
		return nil
	}
	return r.Relationships
}

// bestByKey keeps the most confident statement per column pair.
func bestByKey(rels []patterns.ImplicitRelationship) map[patterns.PairKey]patterns.ImplicitRelationship {
	out := make(map[patterns.PairKey]patterns.ImplicitRelationship, len(rels))
	for _, r := range rels {
		r = r.Normalize()
		if prev, ok := out[r.Key()]; !ok || r.Confidence > prev.Confidence {
			out[r.Key()] = r
		}
	}
	return out
}

func unionKeys(a, b map[patterns.PairKey]patterns.ImplicitRelationship) []patterns.PairKey {
	seen := make(map[patterns.PairKey]bool, len(a)+len(b))
	var keys []patterns.PairKey
	for _, m := range []map[patterns.PairKey]patterns.ImplicitRelationship{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
	return keys
}
