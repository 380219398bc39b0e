package sqlitestore

// schema is applied on every [Open] call. CREATE TABLE/INDEX IF NOT EXISTS
// keeps it idempotent across restarts against the same file, matching the
// reference codebase's migration style in pkg/memory/postgres/schema.go
// (there run once via a Migrate method; here folded into Open since SQLite
// has no separate migration runner in this pack).
const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	properties  TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS relations (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	properties  TEXT NOT NULL DEFAULT '{}',
	weight      REAL NOT NULL DEFAULT 1.0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(type);
`
