// Package snapshottest builds small snapshot files for tests.
package snapshottest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Ref mirrors one Refs row.
type Ref struct {
	Value, Details, UUID, Type, Icon, Anchor string
}

// Fixture describes the snapshot content. Entities are inserted in slice
// order; MapPayload, when non-empty, is stored under uuid "map".
type Fixture struct {
	Entities   [][2]string
	Refs       []Ref
	MapPayload string
	SkipRefs   bool
}

// Write creates a snapshot database at dir/snapshot.db and returns its path.
func Write(t *testing.T, dir string, f Fixture) string {
	t.Helper()
	path := filepath.Join(dir, "snapshot.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE Entities (uuid TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	if !f.SkipRefs {
		_, err = db.Exec(`CREATE TABLE Refs (value TEXT, details TEXT, uuid TEXT, type TEXT, icon TEXT, anchor TEXT)`)
		require.NoError(t, err)
	}
	if f.MapPayload != "" {
		_, err = db.Exec(`INSERT INTO Entities (uuid, value) VALUES ('map', ?)`, f.MapPayload)
		require.NoError(t, err)
	}
	for _, e := range f.Entities {
		_, err = db.Exec(`INSERT INTO Entities (uuid, value) VALUES (?, ?)`, e[0], e[1])
		require.NoError(t, err)
	}
	for _, r := range f.Refs {
		_, err = db.Exec(`INSERT INTO Refs (value, details, uuid, type, icon, anchor) VALUES (?, ?, ?, ?, ?, ?)`,
			r.Value, r.Details, r.UUID, r.Type, r.Icon, r.Anchor)
		require.NoError(t, err)
	}
	return path
}
