// Package snapshot reads the exported world snapshot: a SQLite file with an
// Entities table (uuid, value), a Refs table and a singleton "map" row whose
// value is the packed map payload. The file is always opened read-only.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/julianshen/worldforge/internal/worlderr"
)

// MapUUID is the uuid of the Entities row carrying the map payload.
const MapUUID = "map"

// EntityRow is one row of the Entities table.
type EntityRow struct {
	UUID  string
	Value string
}

// RefRow is one row of the Refs table. Every column is nullable in the
// exporter's schema, so missing values come back as empty strings.
type RefRow struct {
	Value   string
	Details string
	UUID    string
	Type    string
	Icon    string
	Anchor  string
}

// Reader streams a snapshot.
type Reader struct {
	path string
	db   *sql.DB

	entitiesTable string
	refsTable     string
}

// Open opens the snapshot at path read-only and checks that both required
// tables exist.
func Open(ctx context.Context, path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, worlderr.New(worlderr.KindSnapshotMissing, "snapshot.Open", fmt.Errorf("%s: %w", path, err))
		}
		return nil, worlderr.New(worlderr.KindIO, "snapshot.Open", err)
	}

	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return nil, worlderr.New(worlderr.KindSnapshotCorrupt, "snapshot.Open", err)
	}

	r := &Reader{path: path, db: db}
	if err := r.resolveTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}
	return u.String()
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Path returns the snapshot location.
func (r *Reader) Path() string {
	return r.path
}

// DB exposes the read-only handle for schema inspection.
func (r *Reader) DB() *sql.DB {
	return r.db
}

func (r *Reader) resolveTables(ctx context.Context) error {
	names, err := r.Tables(ctx)
	if err != nil {
		return worlderr.New(worlderr.KindSnapshotCorrupt, "snapshot.Open", err)
	}
	for _, n := range names {
		switch strings.ToLower(n) {
		case "entities":
			r.entitiesTable = n
		case "refs":
			r.refsTable = n
		}
	}
	var missing []string
	if r.entitiesTable == "" {
		missing = append(missing, "Entities")
	}
	if r.refsTable == "" {
		missing = append(missing, "Refs")
	}
	if len(missing) > 0 {
		return worlderr.Errorf(worlderr.KindSchemaMismatch, "snapshot.Open", "missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Tables lists user tables in name order.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
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

// Entities streams every entity except the map payload, in insertion order.
// The sequence is single-pass; iteration stops at the first error.
func (r *Reader) Entities(ctx context.Context) iter.Seq2[EntityRow, error] {
	query := fmt.Sprintf(`SELECT uuid, value FROM %q WHERE uuid IS NOT ? ORDER BY rowid`, r.entitiesTable)
	return func(yield func(EntityRow, error) bool) {
		rows, err := r.db.QueryContext(ctx, query, MapUUID)
		if err != nil {
			yield(EntityRow{}, fmt.Errorf("query entities: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var uuid, value sql.NullString
			if err := rows.Scan(&uuid, &value); err != nil {
				yield(EntityRow{}, fmt.Errorf("scan entity: %w", err))
				return
			}
			if !yield(EntityRow{UUID: uuid.String, Value: value.String}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(EntityRow{}, fmt.Errorf("iterate entities: %w", err))
		}
	}
}

// Refs streams the Refs table in insertion order.
func (r *Reader) Refs(ctx context.Context) iter.Seq2[RefRow, error] {
	query := fmt.Sprintf(`SELECT value, details, uuid, type, icon, anchor FROM %q ORDER BY rowid`, r.refsTable)
	return func(yield func(RefRow, error) bool) {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			yield(RefRow{}, fmt.Errorf("query refs: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var cols [6]sql.NullString
			if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5]); err != nil {
				yield(RefRow{}, fmt.Errorf("scan ref: %w", err))
				return
			}
			ref := RefRow{
				Value:   cols[0].String,
				Details: cols[1].String,
				UUID:    cols[2].String,
				Type:    cols[3].String,
				Icon:    cols[4].String,
				Anchor:  cols[5].String,
			}
			if !yield(ref, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(RefRow{}, fmt.Errorf("iterate refs: %w", err))
		}
	}
}

// MapPayload loads the singleton map row in full and checks that it is a
// well-formed JSON document.
func (r *Reader) MapPayload(ctx context.Context) ([]byte, error) {
	var value sql.NullString
	query := fmt.Sprintf(`SELECT value FROM %q WHERE uuid = ?`, r.entitiesTable)
	err := r.db.QueryRowContext(ctx, query, MapUUID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, worlderr.Errorf(worlderr.KindSnapshotCorrupt, "snapshot.MapPayload", "no %q row in %s", MapUUID, r.entitiesTable)
	}
	if err != nil {
		return nil, worlderr.New(worlderr.KindIO, "snapshot.MapPayload", err)
	}
	payload := []byte(value.String)
	if !json.Valid(payload) {
		return nil, worlderr.Errorf(worlderr.KindSnapshotCorrupt, "snapshot.MapPayload", "map payload is not valid JSON")
	}
	return payload, nil
}

// CollectEntities drains Entities into a slice.
func CollectEntities(seq iter.Seq2[EntityRow, error]) ([]EntityRow, error) {
	var out []EntityRow
	for row, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// CollectRefs drains Refs into a slice.
func CollectRefs(seq iter.Seq2[RefRow, error]) ([]RefRow, error) {
	var out []RefRow
	for row, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
