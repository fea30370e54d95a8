package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// detectMarkup is Pass B: sample every text column and record the markup
// patterns present.
func (a *analysis) detectMarkup(ctx context.Context) {
	for _, t := range a.report.Tables {
		for _, c := range t.Columns {
			if !c.IsText() || t.RowCount == 0 {
				continue
			}
			values, err := columnValues(ctx, a, t.Name, c.Name, a.opts.MarkupSampleCap)
			if err != nil {
				a.warn(t.Name+"."+c.Name, "sample values: %v", err)
				continue
			}
			found := map[string]bool{}
			for _, v := range values {
				for p := range MarkupPatterns(v) {
					found[p] = true
				}
			}
			if len(found) == 0 {
				continue
			}
			a.report.Markup = append(a.report.Markup, ColumnMarkup{
				Table:    t.Name,
				Column:   c.Name,
				Sampled:  len(values),
				Patterns: sortedSet(found),
			})
		}
	}
}

// columnValues returns up to limit non-empty values of a column; limit <= 0
// reads them all.
func columnValues(ctx context.Context, a *analysis, table, column string, limit int) ([]string, error) {
	query := fmt.Sprintf(`SELECT %q FROM %q WHERE %q IS NOT NULL AND %q != ''`, column, table, column, column)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkupPatterns tokenizes value and returns the markup patterns it uses.
func MarkupPatterns(value string) map[string]bool {
	found := map[string]bool{}
	if !strings.Contains(value, "<") {
		return found
	}
	z := html.NewTokenizer(strings.NewReader(value))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a tokenizer error; either way the value is done.
			return found
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		switch tok.DataAtom {
		case atom.Table:
			found[MarkupTable] = true
		case atom.Div:
			found[MarkupDiv] = true
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			found[MarkupHeaders] = true
		case atom.Ul, atom.Ol, atom.Li, atom.Dl:
			found[MarkupLists] = true
		case atom.P:
			found[MarkupParagraphs] = true
		case atom.Strong, atom.Em, atom.B, atom.I, atom.Span:
			found[MarkupStyled] = true
		}
		for _, attr := range tok.Attr {
			if attr.Key == "style" || attr.Key == "class" {
				found[MarkupStyled] = true
			}
		}
	}
}

// Anchors returns the href of every anchor in value, in document order.
func Anchors(value string) []string {
	if !strings.Contains(value, "<") {
		return nil
	}
	var out []string
	z := html.NewTokenizer(strings.NewReader(value))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
					out = append(out, strings.TrimSpace(attr.Val))
				}
			}
		}
	}
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
