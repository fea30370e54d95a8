package patterns

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/julianshen/worldforge/internal/classify"
)

var idTokens = []string{"uuid", "id", "ref", "key", "entity"}

// NameMightRelate reports whether two column names plausibly hold the same
// values: equal names, a shared id-like token, or one containing the other.
func NameMightRelate(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	for _, tok := range idTokens {
		if strings.Contains(a, tok) && strings.Contains(b, tok) {
			return true
		}
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// discoverRelationships is the join half of Pass C.
func (a *analysis) discoverRelationships(ctx context.Context) {
	tables := a.report.Tables
	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			ta, tb := tables[i], tables[j]
			if ta.RowCount == 0 || tb.RowCount == 0 {
				continue
			}
			for _, ca := range ta.Columns {
				for _, cb := range tb.Columns {
					if ctx.Err() != nil {
						return
					}
					if !NameMightRelate(ca.Name, cb.Name) {
						continue
					}
					rel, ok, err := a.measure(ctx, ta, ca, tb, cb)
					if err != nil {
						a.warn(NewPairKey(ta.Name, ca.Name, tb.Name, cb.Name).String(), "match count: %v", err)
						continue
					}
					if ok {
						a.report.Relationships = append(a.report.Relationships, rel)
					}
				}
			}
		}
	}
	sort.SliceStable(a.report.Relationships, func(i, j int) bool {
		x, y := a.report.Relationships[i], a.report.Relationships[j]
		if x.FromTable != y.FromTable {
			return x.FromTable < y.FromTable
		}
		if x.FromColumn != y.FromColumn {
			return x.FromColumn < y.FromColumn
		}
		if x.ToTable != y.ToTable {
			return x.ToTable < y.ToTable
		}
		return x.ToColumn < y.ToColumn
	})
}

// measure counts matching row pairs and, when there are any, orients the
// relationship from the referencing side.
func (a *analysis) measure(ctx context.Context, ta TableSchema, ca Column, tb TableSchema, cb Column) (ImplicitRelationship, bool, error) {
	var matches int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %q AS x JOIN %q AS y ON x.%q = y.%q WHERE x.%q IS NOT NULL`,
		ta.Name, tb.Name, ca.Name, cb.Name, ca.Name)
	if err := a.db.QueryRowContext(ctx, q).Scan(&matches); err != nil {
		return ImplicitRelationship{}, false, err
	}
	if matches == 0 {
		return ImplicitRelationship{}, false, nil
	}

	aMulti, err := a.repeats(ctx, ta.Name, ca.Name, tb.Name, cb.Name)
	if err != nil {
		return ImplicitRelationship{}, false, err
	}
	bMulti, err := a.repeats(ctx, tb.Name, cb.Name, ta.Name, ca.Name)
	if err != nil {
		return ImplicitRelationship{}, false, err
	}

	rel := ImplicitRelationship{
		FromTable: ta.Name, FromColumn: ca.Name,
		ToTable: tb.Name, ToColumn: cb.Name,
		MatchCount: matches,
		Confidence: Confidence(matches, ta.RowCount, tb.RowCount),
	}
	flip := false
	switch {
	case aMulti && bMulti:
		rel.Cardinality = ManyToMany
	case aMulti:
		rel.Cardinality = ManyToOne
	case bMulti:
		rel.Cardinality = ManyToOne
		flip = true
	default:
		rel.Cardinality = OneToOne
		switch {
		case ca.PrimaryKey && !cb.PrimaryKey:
			flip = true
		case ca.PrimaryKey == cb.PrimaryKey && tb.RowCount < ta.RowCount:
			flip = true
		}
	}
	if flip {
		rel.FromTable, rel.ToTable = rel.ToTable, rel.FromTable
		rel.FromColumn, rel.ToColumn = rel.ToColumn, rel.FromColumn
	}
	return rel, true, nil
}

// repeats reports whether any value of table.col that matches other.otherCol
// occurs on more than one row of table.
func (a *analysis) repeats(ctx context.Context, table, col, other, otherCol string) (bool, error) {
	q := fmt.Sprintf(`SELECT COALESCE(MAX(n), 0) FROM (
		SELECT COUNT(*) AS n FROM %q WHERE %q IN (SELECT %q FROM %q WHERE %q IS NOT NULL) GROUP BY %q)`,
		table, col, otherCol, other, otherCol, col)
	var n int
	if err := a.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return false, err
	}
	return n > 1, nil
}

// Confidence is matches / min(rowsA, rowsB), bounded to [0,1].
func Confidence(matches, rowsA, rowsB int) float64 {
	denom := min(rowsA, rowsB)
	if denom <= 0 || matches <= 0 {
		return 0
	}
	c := float64(matches) / float64(denom)
	if c > 1 {
		return 1
	}
	return c
}

// Normalize rewrites a one_to_many statement as the equivalent many_to_one
// from the other side, so statements from different sources compare.
func (r ImplicitRelationship) Normalize() ImplicitRelationship {
	if r.Cardinality != OneToMany {
		return r
	}
	r.FromTable, r.ToTable = r.ToTable, r.FromTable
	r.FromColumn, r.ToColumn = r.ToColumn, r.FromColumn
	r.Cardinality = ManyToOne
	return r
}

var hypertextPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s"'<>]+`)

// extractReferences is the embedded-reference half of Pass C. Every value
// of every text column is scanned.
func (a *analysis) extractReferences(ctx context.Context) {
	for _, t := range a.report.Tables {
		for _, c := range t.Columns {
			if !c.IsText() || t.RowCount == 0 {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			values, err := columnValues(ctx, a, t.Name, c.Name, 0)
			if err != nil {
				a.warn(t.Name+"."+c.Name, "scan references: %v", err)
				continue
			}
			uuids, hyper, links := map[string]bool{}, map[string]bool{}, map[string]bool{}
			for _, v := range values {
				for _, u := range classify.ExtractUUIDs(v, "") {
					uuids[u] = true
				}
				for _, h := range hypertextPattern.FindAllString(v, -1) {
					hyper[h] = true
				}
				for _, l := range Anchors(v) {
					links[l] = true
				}
			}
			a.addReference(t.Name, c.Name, RefUUID, uuids)
			a.addReference(t.Name, c.Name, RefHypertext, hyper)
			a.addReference(t.Name, c.Name, RefHTMLLink, links)
		}
	}
}

func (a *analysis) addReference(table, column string, kind RefKind, targets map[string]bool) {
	if len(targets) == 0 {
		return
	}
	ref := EmbeddedReference{Table: table, Column: column, Kind: kind, Targets: sortedSet(targets)}
	if kind == RefUUID && a.opts.KnownUUIDs != nil {
		for _, target := range ref.Targets {
			if !a.opts.KnownUUIDs[target] {
				ref.Dangling = append(ref.Dangling, target)
			}
		}
	}
	a.report.EmbeddedReferences = append(a.report.EmbeddedReferences, ref)
}
