package patterns

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"
)

const sampleValueLimit = 160

// inspectSchemas is Pass A: columns, row counts and sample rows for every
// user table, in name order.
func (a *analysis) inspectSchemas(ctx context.Context) error {
	tables, err := Schemas(ctx, a.db)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t.RowCount == 0 {
			a.warn(t.Name, "table is empty; no evidence")
		}
		samples, err := sampleRows(ctx, a.db, t.Name, t.Columns, a.opts.SampleCap)
		if err != nil {
			a.warn(t.Name, "sample rows: %v", err)
		}
		t.Samples = samples
		a.report.Tables = append(a.report.Tables, t)
	}
	return nil
}

// Schemas lists every user table of db with its columns and row count, in
// name order. Samples are left empty.
func Schemas(ctx context.Context, db *sql.DB) ([]TableSchema, error) {
	names, err := listTables(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]TableSchema, 0, len(names))
	for _, name := range names {
		cols, err := tableColumns(ctx, db, name)
		if err != nil {
			return nil, err
		}
		t := TableSchema{Name: name, Columns: cols}
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&t.RowCount); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, Column{Name: name, Type: strings.ToUpper(typ.String), NotNull: notNull != 0, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

func sampleRows(ctx context.Context, db *sql.DB, table string, cols []Column, limit int) ([]map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT ?`, table), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return out, err
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			if vals[i].Valid {
				row[c.Name] = truncate(vals[i].String, sampleValueLimit)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "…"
}

// textAffinity applies SQLite's affinity rules; untyped columns count as text.
func textAffinity(declared string) bool {
	t := strings.ToUpper(declared)
	if t == "" {
		return true
	}
	if strings.Contains(t, "INT") {
		return false
	}
	return strings.Contains(t, "CHAR") || strings.Contains(t, "CLOB") || strings.Contains(t, "TEXT")
}
