// Package gamedb writes the game-content store and initialises the
// player-state store. Content tables are written in dependency order inside
// one transaction with foreign keys enforced. Each table is a savepoint: a
// failing table is reported and the rest still proceed, but a write with any
// failed table is rolled back as a whole so the previous content survives.
package gamedb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/manifest"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/world"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const component = "gamedb"

// ContentKey is the manifest key of the game-content write.
const ContentKey = "db:game-content"

// Store is an open game-content database.
type Store struct {
	db *sqlx.DB
}

func open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Open opens or creates the game-content store at path and ensures the
// schema exists. Use ":memory:" for an in-memory store.
func Open(path string) (*Store, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	for _, t := range contentTables {
		if _, err := db.Exec(t.ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitPlayerState creates the player-state schema at path. Existing data
// is left alone.
func InitPlayerState(path string) error {
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	for _, stmt := range playerStateTables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create player state: %w", err)
		}
	}
	return nil
}

// WriteResult reports a content write.
type WriteResult struct {
	Rows       map[string]int     `json:"rows"`
	Failed     []string           `json:"failed,omitempty"`
	Partial    bool               `json:"partial"`
	Skipped    bool               `json:"skipped"`
	RolledBack bool               `json:"rolled_back,omitempty"`
	Warnings   []worlderr.Warning `json:"warnings,omitempty"`
}

type batch struct {
	table string
	rows  []any
}

func rowsOf[T any](table string, rows []T) batch {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return batch{table: table, rows: out}
}

func (c *Content) batches() []batch {
	return []batch{
		rowsOf("hex_tiles", c.HexTiles),
		rowsOf("realms", c.Realms),
		rowsOf("regions", c.Regions),
		rowsOf("settlements", c.Settlements),
		rowsOf("factions", c.Factions),
		rowsOf("faction_presence", c.FactionPresence),
		rowsOf("dungeons", c.Dungeons),
		rowsOf("dungeon_rooms", c.DungeonRooms),
		rowsOf("dungeon_doorways", c.DungeonDoorways),
		rowsOf("npcs", c.NPCs),
		rowsOf("special_features", c.SpecialFeatures),
		rowsOf("weather", c.Weather),
	}
}

var insertColumns = map[string][]string{
	"hex_tiles":        {"q", "r", "token", "loaded", "biome", "feature", "region_uuid", "realm_uuid", "rivers", "trails", "act", "band", "corruption"},
	"realms":           {"uuid", "name"},
	"regions":          {"uuid", "name", "region_type", "act", "band", "corruption"},
	"settlements":      {"uuid", "name", "hex_q", "hex_r"},
	"factions":         {"uuid", "name"},
	"faction_presence": {"faction_uuid", "hex_q", "hex_r"},
	"dungeons":         {"uuid", "name", "hex_q", "hex_r"},
	"dungeon_rooms":    {"dungeon_uuid", "idx", "name", "monsters", "treasures"},
	"dungeon_doorways": {"dungeon_uuid", "from_idx", "to_idx"},
	"npcs":             {"uuid", "name", "settlement_uuid", "hex_q", "hex_r"},
	"special_features": {"hex_q", "hex_r", "feature"},
	"weather":          {"region_uuid", "condition", "dread"},
}

func insertQuery(table string) string {
	cols := insertColumns[table]
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)", table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
}

// Write replaces the store's content with c. Cancellation or a failure to
// clear the previous content is returned as an error. A table that fails to
// insert is rolled back to its savepoint, recorded, and marks the result
// partial; the remaining tables are still attempted so every failing table
// is reported. A partial or cancelled write commits nothing.
func (s *Store) Write(ctx context.Context, c *Content) (*WriteResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, worlderr.New(worlderr.KindDBTransactionFailed, "gamedb.Write", err)
	}
	defer tx.Rollback()

	if err := clearTables(ctx, tx); err != nil {
		return nil, worlderr.New(worlderr.KindDBTransactionFailed, "gamedb.Write", err)
	}
	res := &WriteResult{Rows: map[string]int{}}
	for _, b := range c.batches() {
		if err := ctx.Err(); err != nil {
			res.RolledBack = true
			return res, err
		}
		if err := insertBatch(ctx, tx, b); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				res.RolledBack = true
				return res, ctxErr
			}
			res.Partial = true
			res.Failed = append(res.Failed, b.table)
			res.Warnings = append(res.Warnings,
				worlderr.Warnf(worlderr.KindDBTransactionFailed, component, b.table, "%v", err))
			logger.Warn("table write failed", "table", b.table, "error", err)
			continue
		}
		res.Rows[b.table] = len(b.rows)
	}

	if res.Partial {
		res.RolledBack = true
		logger.Warn("game content rolled back, previous content kept", "failed", res.Failed)
		return res, nil
	}
	if err := tx.Commit(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.RolledBack = true
			return res, ctxErr
		}
		return nil, worlderr.New(worlderr.KindDBTransactionFailed, "gamedb.Write", err)
	}
	logger.Info("game content written", "tables", len(res.Rows))
	return res, nil
}

func clearTables(ctx context.Context, tx *sqlx.Tx) error {
	for i := len(contentTables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+contentTables[i].name); err != nil {
			return fmt.Errorf("clear %s: %w", contentTables[i].name, err)
		}
	}
	return nil
}

// insertBatch inserts one table's rows under a savepoint, undoing them all
// if any row fails.
func insertBatch(ctx context.Context, tx *sqlx.Tx, b batch) (err error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT batch"); err != nil {
		return fmt.Errorf("savepoint %s: %w", b.table, err)
	}
	defer func() {
		if err != nil {
			tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO batch")
		}
		tx.ExecContext(context.WithoutCancel(ctx), "RELEASE batch")
	}()
	if len(b.rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, insertQuery(b.table))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", b.table, err)
	}
	defer stmt.Close()
	for _, row := range b.rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("insert %s: %w", b.table, err)
		}
	}
	return nil
}

// Count returns the number of rows in a content table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if _, ok := insertColumns[table]; !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type locatedRow struct {
	ID   string `db:"id"`
	HexQ int    `db:"hex_q"`
	HexR int    `db:"hex_r"`
}

// LoadSpatialIndex rebuilds the spatial index from stored rows. For a
// store written from a world it equals the index that world produced.
func (s *Store) LoadSpatialIndex(ctx context.Context) (world.SpatialIndex, error) {
	b := world.NewIndexBuilder()
	queries := []struct {
		query string
		add   func(hexgrid.Coord, string)
	}{
		{`SELECT uuid AS id, hex_q, hex_r FROM settlements WHERE hex_q IS NOT NULL`, b.AddSettlement},
		{`SELECT faction_uuid AS id, hex_q, hex_r FROM faction_presence`, b.AddFaction},
		{`SELECT uuid AS id, hex_q, hex_r FROM npcs WHERE hex_q IS NOT NULL`, b.AddNPC},
		{`SELECT uuid AS id, hex_q, hex_r FROM dungeons WHERE hex_q IS NOT NULL`, b.AddDungeon},
		{`SELECT feature AS id, hex_q, hex_r FROM special_features`, b.AddSpecialFeature},
	}
	for _, q := range queries {
		var rows []locatedRow
		if err := s.db.SelectContext(ctx, &rows, q.query); err != nil {
			return nil, fmt.Errorf("load spatial index: %w", err)
		}
		for _, r := range rows {
			q.add(hexgrid.Coord{Q: r.HexQ, R: r.HexR}, r.ID)
		}
	}
	return b.Build(), nil
}

// LoadMap rebuilds the decoded map from stored loaded tiles, regions and
// realms. Borders are not stored.
func (s *Store) LoadMap(ctx context.Context) (*mapdata.World, error) {
	var tiles []HexTile
	if err := s.db.SelectContext(ctx, &tiles, `SELECT * FROM hex_tiles WHERE loaded = 1`); err != nil {
		return nil, fmt.Errorf("load tiles: %w", err)
	}
	var regions, realms []Named
	if err := s.db.SelectContext(ctx, &regions, `SELECT uuid, name FROM regions`); err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	if err := s.db.SelectContext(ctx, &realms, `SELECT uuid, name FROM realms`); err != nil {
		return nil, fmt.Errorf("load realms: %w", err)
	}

	out := make([]mapdata.Tile, 0, len(tiles))
	for _, t := range tiles {
		tile := mapdata.Tile{
			Coord:   hexgrid.Coord{Q: t.Q, R: t.R},
			Biome:   t.Biome,
			Feature: t.Feature,
			Region:  t.Region,
			Realm:   t.Realm,
		}
		if err := decodeInts(t.Rivers, &tile.Rivers); err != nil {
			return nil, err
		}
		if err := decodeInts(t.Trails, &tile.Trails); err != nil {
			return nil, err
		}
		out = append(out, tile)
	}
	return mapdata.NewWorld(out, namesByUUID(regions), namesByUUID(realms)), nil
}

func namesByUUID(rows []Named) map[string]string {
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.UUID] = r.Name
	}
	return m
}

var errPartial = errors.New("game content write was partial")

// Publish writes c to the store at path unless the manifest already
// records an identical write to an existing file. A partial write is not
// recorded, so the next run retries it.
func Publish(ctx context.Context, m *manifest.Manifest, path string, c *Content) (*WriteResult, error) {
	var res *WriteResult
	wrote, err := m.Sync(manifest.Candidate{Key: ContentKey, Hash: c.Hash(), Destination: path}, func(dst string) error {
		s, err := Open(dst)
		if err != nil {
			return worlderr.New(worlderr.KindIO, "gamedb.Open", err)
		}
		defer s.Close()
		res, err = s.Write(ctx, c)
		if err != nil {
			return err
		}
		if res.Partial {
			return errPartial
		}
		return nil
	})
	switch {
	case errors.Is(err, errPartial):
		return res, nil
	case err != nil:
		return res, err
	case !wrote:
		logger.Debug("game content unchanged", "path", path)
		return &WriteResult{Rows: map[string]int{}, Skipped: true}, nil
	}
	return res, nil
}
