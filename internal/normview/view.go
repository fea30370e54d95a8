// Package normview materialises classified entities, snapshot refs and the
// decoded map into an in-memory relational view. The pattern analyzer
// inspects this view the same way it would inspect any SQLite database.
package normview

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/snapshot"
)

// View is the normalised in-memory database.
type View struct {
	db *sql.DB
}

// DB exposes the view for read-only analysis.
func (v *View) DB() *sql.DB {
	return v.db
}

// Close drops the in-memory database.
func (v *View) Close() error {
	return v.db.Close()
}

var baseTables = []string{
	`CREATE TABLE entities (
		uuid     TEXT PRIMARY KEY,
		format   TEXT NOT NULL,
		category TEXT NOT NULL,
		kind     TEXT NOT NULL,
		name     TEXT,
		hex_q    INTEGER,
		hex_r    INTEGER,
		value    TEXT NOT NULL
	)`,
	`CREATE TABLE entity_refs (
		entity_uuid TEXT NOT NULL,
		ref_uuid    TEXT NOT NULL,
		position    INTEGER NOT NULL
	)`,
	`CREATE TABLE refs (
		value   TEXT,
		details TEXT,
		uuid    TEXT,
		type    TEXT,
		icon    TEXT,
		anchor  TEXT
	)`,
	`CREATE TABLE regions (
		uuid TEXT PRIMARY KEY,
		name TEXT
	)`,
	`CREATE TABLE realms (
		uuid TEXT PRIMARY KEY,
		name TEXT
	)`,
	`CREATE TABLE map_tiles (
		tile_uuid    TEXT,
		q            INTEGER NOT NULL,
		r            INTEGER NOT NULL,
		biome        TEXT,
		feature      TEXT,
		feature_uuid TEXT,
		region_uuid  TEXT,
		realm_uuid   TEXT
	)`,
}

// Build creates the view. The map world may be nil.
func Build(ctx context.Context, entities []classify.RawEntity, refs []snapshot.RefRow, world *mapdata.World) (*View, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open view: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	v := &View{db: db}
	if err := v.populate(ctx, entities, refs, world); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

func (v *View) populate(ctx context.Context, entities []classify.RawEntity, refs []snapshot.RefRow, world *mapdata.World) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range baseTables {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create view table: %w", err)
		}
	}
	if err := insertEntities(ctx, tx, entities); err != nil {
		return err
	}
	if err := insertRefs(ctx, tx, refs); err != nil {
		return err
	}
	if world != nil {
		if err := insertWorld(ctx, tx, world); err != nil {
			return err
		}
	}
	if err := insertJSONTables(ctx, tx, entities); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEntities(ctx context.Context, tx *sql.Tx, entities []classify.RawEntity) error {
	entStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (uuid, format, category, kind, name, hex_q, hex_r, value) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entities: %w", err)
	}
	defer entStmt.Close()
	refStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entity_refs (entity_uuid, ref_uuid, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entity_refs: %w", err)
	}
	defer refStmt.Close()

	for _, e := range entities {
		var q, r sql.NullInt64
		if e.Hex != nil {
			q = sql.NullInt64{Int64: int64(e.Hex.Q), Valid: true}
			r = sql.NullInt64{Int64: int64(e.Hex.R), Valid: true}
		}
		if _, err := entStmt.ExecContext(ctx, e.UUID, string(e.Format), string(e.Category), e.Kind, nullString(e.Name), q, r, e.Value); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.UUID, err)
		}
		for i, ref := range e.Refs {
			if _, err := refStmt.ExecContext(ctx, e.UUID, ref, i); err != nil {
				return fmt.Errorf("insert entity ref %s: %w", e.UUID, err)
			}
		}
	}
	return nil
}

func insertRefs(ctx context.Context, tx *sql.Tx, refs []snapshot.RefRow) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO refs (value, details, uuid, type, icon, anchor) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare refs: %w", err)
	}
	defer stmt.Close()
	for _, r := range refs {
		if _, err := stmt.ExecContext(ctx, nullString(r.Value), nullString(r.Details), nullString(r.UUID),
			nullString(r.Type), nullString(r.Icon), nullString(r.Anchor)); err != nil {
			return fmt.Errorf("insert ref: %w", err)
		}
	}
	return nil
}

func insertWorld(ctx context.Context, tx *sql.Tx, w *mapdata.World) error {
	for _, id := range w.SortedRegionUUIDs() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO regions (uuid, name) VALUES (?, ?)`, id, w.Regions[id]); err != nil {
			return fmt.Errorf("insert region %s: %w", id, err)
		}
	}
	for _, id := range w.SortedRealmUUIDs() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO realms (uuid, name) VALUES (?, ?)`, id, w.Realms[id]); err != nil {
			return fmt.Errorf("insert realm %s: %w", id, err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO map_tiles
		(tile_uuid, q, r, biome, feature, feature_uuid, region_uuid, realm_uuid) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare map_tiles: %w", err)
	}
	defer stmt.Close()
	for _, t := range w.Tiles {
		if _, err := stmt.ExecContext(ctx, nullString(t.UUID), t.Coord.Q, t.Coord.R, nullString(t.Biome), nullString(t.Feature),
			nullString(t.FeatureUUID), nullString(t.Region), nullString(t.Realm)); err != nil {
			return fmt.Errorf("insert tile %s: %w", t.Coord, err)
		}
	}
	return nil
}

// jsonTable collects JSON entities of one kind, flattened to their
// top-level fields.
type jsonTable struct {
	name    string
	columns map[string]string // column -> source field
	rows    []jsonRow
}

type jsonRow struct {
	uuid   string
	fields map[string]any
}

// JSONTableName returns the view table holding JSON entities of kind.
func JSONTableName(kind string) string {
	return "json_" + Identifier(kind)
}

func insertJSONTables(ctx context.Context, tx *sql.Tx, entities []classify.RawEntity) error {
	tables := map[string]*jsonTable{}
	for _, e := range entities {
		if e.Format != classify.FormatJSON {
			continue
		}
		name := JSONTableName(e.Kind)
		t, ok := tables[name]
		if !ok {
			t = &jsonTable{name: name, columns: map[string]string{}}
			tables[name] = t
		}
		fields := make([]string, 0, len(e.Fields))
		for field := range e.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			col := Identifier(field)
			if col == "entity_uuid" {
				continue
			}
			if _, taken := t.columns[col]; !taken {
				t.columns[col] = field
			}
		}
		t.rows = append(t.rows, jsonRow{uuid: e.UUID, fields: e.Fields})
	}

	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := tables[n].insert(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (t *jsonTable) insert(ctx context.Context, tx *sql.Tx) error {
	cols := make([]string, 0, len(t.columns))
	for c := range t.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	defs := []string{`"entity_uuid" TEXT NOT NULL`}
	names := []string{`"entity_uuid"`}
	for _, c := range cols {
		defs = append(defs, strconv.Quote(c)+" TEXT")
		names = append(names, strconv.Quote(c))
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (%s)`, t.name, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", t.name, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, t.name, strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", t.name, err)
	}
	defer stmt.Close()

	for _, row := range t.rows {
		args := make([]any, 0, len(names))
		args = append(args, row.uuid)
		for _, c := range cols {
			args = append(args, scalar(row.fields[t.columns[c]]))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %s: %w", t.name, row.uuid, err)
		}
	}
	return nil
}

// scalar renders a decoded JSON value as a column value. Nested values are
// stored as their JSON text.
func scalar(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	}
}

// Identifier lowercases s and replaces anything outside [a-z0-9_] with an
// underscore, so it is safe as a table or column name.
func Identifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "field"
	}
	if out[0] >= '0' && out[0] <= '9' {
		return "f_" + out
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
