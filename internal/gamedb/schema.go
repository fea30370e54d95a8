package gamedb

// contentTables lists the game-content tables in dependency order: a table
// only references tables before it.
var contentTables = []struct {
	name string
	ddl  string
}{
	{"hex_tiles", `CREATE TABLE IF NOT EXISTS hex_tiles (
		q           INTEGER NOT NULL,
		r           INTEGER NOT NULL,
		token       TEXT NOT NULL UNIQUE,
		loaded      INTEGER NOT NULL DEFAULT 1,
		biome       TEXT NOT NULL DEFAULT '',
		feature     TEXT NOT NULL DEFAULT '',
		region_uuid TEXT NOT NULL DEFAULT '',
		realm_uuid  TEXT NOT NULL DEFAULT '',
		rivers      TEXT NOT NULL DEFAULT '[]',
		trails      TEXT NOT NULL DEFAULT '[]',
		act         INTEGER NOT NULL,
		band        INTEGER NOT NULL,
		corruption  REAL NOT NULL,
		PRIMARY KEY (q, r)
	)`},
	{"realms", `CREATE TABLE IF NOT EXISTS realms (
		uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`},
	{"regions", `CREATE TABLE IF NOT EXISTS regions (
		uuid        TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		region_type TEXT NOT NULL,
		act         INTEGER NOT NULL,
		band        INTEGER NOT NULL,
		corruption  REAL NOT NULL
	)`},
	{"settlements", `CREATE TABLE IF NOT EXISTS settlements (
		uuid  TEXT PRIMARY KEY,
		name  TEXT NOT NULL,
		hex_q INTEGER,
		hex_r INTEGER,
		FOREIGN KEY (hex_q, hex_r) REFERENCES hex_tiles(q, r)
	)`},
	{"factions", `CREATE TABLE IF NOT EXISTS factions (
		uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`},
	{"faction_presence", `CREATE TABLE IF NOT EXISTS faction_presence (
		faction_uuid TEXT NOT NULL REFERENCES factions(uuid),
		hex_q        INTEGER NOT NULL,
		hex_r        INTEGER NOT NULL,
		PRIMARY KEY (faction_uuid, hex_q, hex_r),
		FOREIGN KEY (hex_q, hex_r) REFERENCES hex_tiles(q, r)
	)`},
	{"dungeons", `CREATE TABLE IF NOT EXISTS dungeons (
		uuid  TEXT PRIMARY KEY,
		name  TEXT NOT NULL,
		hex_q INTEGER,
		hex_r INTEGER,
		FOREIGN KEY (hex_q, hex_r) REFERENCES hex_tiles(q, r)
	)`},
	{"dungeon_rooms", `CREATE TABLE IF NOT EXISTS dungeon_rooms (
		dungeon_uuid TEXT NOT NULL REFERENCES dungeons(uuid),
		idx          INTEGER NOT NULL,
		name         TEXT NOT NULL,
		monsters     TEXT NOT NULL DEFAULT '[]',
		treasures    TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (dungeon_uuid, idx)
	)`},
	{"dungeon_doorways", `CREATE TABLE IF NOT EXISTS dungeon_doorways (
		dungeon_uuid TEXT NOT NULL,
		from_idx     INTEGER NOT NULL,
		to_idx       INTEGER NOT NULL,
		PRIMARY KEY (dungeon_uuid, from_idx, to_idx),
		FOREIGN KEY (dungeon_uuid, from_idx) REFERENCES dungeon_rooms(dungeon_uuid, idx),
		FOREIGN KEY (dungeon_uuid, to_idx) REFERENCES dungeon_rooms(dungeon_uuid, idx)
	)`},
	{"npcs", `CREATE TABLE IF NOT EXISTS npcs (
		uuid            TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		settlement_uuid TEXT REFERENCES settlements(uuid),
		hex_q           INTEGER,
		hex_r           INTEGER,
		FOREIGN KEY (hex_q, hex_r) REFERENCES hex_tiles(q, r)
	)`},
	{"special_features", `CREATE TABLE IF NOT EXISTS special_features (
		hex_q   INTEGER NOT NULL,
		hex_r   INTEGER NOT NULL,
		feature TEXT NOT NULL,
		PRIMARY KEY (hex_q, hex_r, feature),
		FOREIGN KEY (hex_q, hex_r) REFERENCES hex_tiles(q, r)
	)`},
	{"weather", `CREATE TABLE IF NOT EXISTS weather (
		region_uuid TEXT PRIMARY KEY REFERENCES regions(uuid),
		condition   TEXT NOT NULL,
		dread       INTEGER NOT NULL
	)`},
}

// playerStateTables is created empty; the pipeline never writes to it.
var playerStateTables = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS player_positions (
		player_id TEXT PRIMARY KEY REFERENCES players(id),
		hex_q     INTEGER NOT NULL,
		hex_r     INTEGER NOT NULL,
		moved_at  DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS discovered_hexes (
		player_id     TEXT NOT NULL REFERENCES players(id),
		hex_q         INTEGER NOT NULL,
		hex_r         INTEGER NOT NULL,
		discovered_at DATETIME NOT NULL,
		PRIMARY KEY (player_id, hex_q, hex_r)
	)`,
	`CREATE TABLE IF NOT EXISTS quest_log (
		player_id  TEXT NOT NULL REFERENCES players(id),
		npc_uuid   TEXT NOT NULL,
		quest      TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'open',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (player_id, npc_uuid, quest)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		player_id TEXT NOT NULL REFERENCES players(id),
		item      TEXT NOT NULL,
		quantity  INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (player_id, item)
	)`,
}
