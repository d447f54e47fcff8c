package storage

// ---------------------------------------------------------------------------
// Schema version
// ---------------------------------------------------------------------------

// SchemaVersion is the current database schema version.
const SchemaVersion = 2

// initialSchema creates the three core tables. The UNIQUE(from_id, to_id)
// constraint on connections is what makes matcher inserts idempotent even
// across concurrent scans — the application treats a conflict as "already
// exists", never as a hard error.
const initialSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id      TEXT PRIMARY KEY,
    name    TEXT NOT NULL UNIQUE,
    addr    TEXT NOT NULL DEFAULT '',
    type    TEXT NOT NULL DEFAULT 'app'
);

CREATE TABLE IF NOT EXISTS nodes (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    name           TEXT NOT NULL,
    project_id     TEXT NOT NULL,
    project_name   TEXT NOT NULL,
    branch         TEXT NOT NULL,
    relative_path  TEXT NOT NULL DEFAULT '',
    start_line     INTEGER NOT NULL DEFAULT 0,
    start_column   INTEGER NOT NULL DEFAULT 0,
    end_line       INTEGER NOT NULL DEFAULT 0,
    end_column     INTEGER NOT NULL DEFAULT 0,
    version        TEXT NOT NULL DEFAULT '',
    qls_version    TEXT NOT NULL DEFAULT '',
    meta           TEXT NOT NULL DEFAULT '{}',
    shallow        INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_nodes_type            ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_project_branch  ON nodes(project_id, branch);
CREATE INDEX IF NOT EXISTS idx_nodes_name            ON nodes(name);

CREATE TABLE IF NOT EXISTS connections (
    id          TEXT PRIMARY KEY,
    from_id     TEXT NOT NULL,
    to_id       TEXT NOT NULL,
    origin      TEXT NOT NULL DEFAULT 'manual',
    created_at  DATETIME NOT NULL,
    UNIQUE (from_id, to_id),
    FOREIGN KEY (from_id) REFERENCES nodes(id) ON DELETE CASCADE,
    FOREIGN KEY (to_id)   REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_connections_from ON connections(from_id);
CREATE INDEX IF NOT EXISTS idx_connections_to   ON connections(to_id);
`

// ---------------------------------------------------------------------------
// Migration support
// ---------------------------------------------------------------------------

// Migration describes a single schema migration that can be applied to the
// database. Migrations are ordered by Version and are idempotent.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the ordered list of all schema migrations.
// Apply them sequentially; skip any whose Version is already recorded
// in the schema_migrations table.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema — projects, nodes, connections, schema_migrations",
		SQL:         initialSchema,
	},
	{
		Version:     2,
		Description: "Index shallow flag for branch commit/rollback scans",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_nodes_shallow ON nodes(project_id, branch, shallow);
`,
	},
}
