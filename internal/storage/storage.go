package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crosslink/crosslink/internal/graph"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrConnectionExists is returned when a (from_id, to_id) pair is already
	// present. Callers treat it as "already exists", not as a failure.
	ErrConnectionExists = errors.New("storage: connection already exists")
)

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

// NodeFilter narrows ListNodes. Zero-value fields are ignored.
type NodeFilter struct {
	ProjectID      string
	ProjectName    string
	Branch         string
	Type           graph.NodeType
	IncludeShallow bool
}

// ConnectionFilter narrows ListConnections. Zero-value fields are ignored.
// Branch filters by the branch of the connection's from-node.
type ConnectionFilter struct {
	FromID string
	ToID   string
	Branch string
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

// Storage is a thread-safe wrapper around a SQLite database that persists
// projects, analysis nodes and their connections.
type Storage struct {
	db *sql.DB
	mu sync.RWMutex
}

// ============================= LIFECYCLE ==================================

// New opens (or creates) the SQLite database at dbPath, applies the
// recommended PRAGMAs, runs any pending migrations and returns a ready
// *Storage.
func New(dbPath string) (*Storage, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open db %q: %w", dbPath, err)
	}

	// Only one writer at a time for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage: set pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ============================ MIGRATIONS ==================================

// migrate ensures the schema_migrations table exists, then applies every
// unapplied Migration from the package-level Migrations slice.
func (s *Storage) migrate() error {
	const createMigTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`
	if _, err := s.db.Exec(createMigTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range Migrations {
		var exists int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration v%d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// ======================== PROJECT OPERATIONS ==============================

// SaveProject upserts a project by id.
func (s *Storage) SaveProject(ctx context.Context, p *graph.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `INSERT OR REPLACE INTO projects (id, name, addr, type) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, p.ID, p.Name, p.Addr, string(p.Type)); err != nil {
		return fmt.Errorf("storage: save project %q: %w", p.Name, err)
	}
	return nil
}

// GetProject retrieves a project by id.
func (s *Storage) GetProject(ctx context.Context, id string) (*graph.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT id, name, addr, type FROM projects WHERE id = ?`
	p := &graph.Project{}
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Name, &p.Addr, &p.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get project %q: %w", id, err)
	}
	return p, nil
}

// GetProjectByName retrieves a project by its globally-unique name.
func (s *Storage) GetProjectByName(ctx context.Context, name string) (*graph.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT id, name, addr, type FROM projects WHERE name = ?`
	p := &graph.Project{}
	err := s.db.QueryRowContext(ctx, q, name).Scan(&p.ID, &p.Name, &p.Addr, &p.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get project by name %q: %w", name, err)
	}
	return p, nil
}

// ListProjects returns every project, ordered by name.
func (s *Storage) ListProjects(ctx context.Context) ([]*graph.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT id, name, addr, type FROM projects ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	var result []*graph.Project
	for rows.Next() {
		p := &graph.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Addr, &p.Type); err != nil {
			return nil, fmt.Errorf("storage: scan project row: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeleteProject removes a project. Its nodes (and their connections) are
// cascade-deleted via foreign keys.
func (s *Storage) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete project %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	return nil
}

// ========================== NODE OPERATIONS ===============================

const nodeColumns = `id, type, name, project_id, project_name, branch,
	relative_path, start_line, start_column, end_line, end_column,
	version, qls_version, meta`

// SaveNodes batch-inserts nodes in chunks of 500 inside a transaction.
// When shallow is true the rows are staged for a later CommitBranch or
// RollbackBranch and are invisible to matcher and graph queries.
func (s *Storage) SaveNodes(ctx context.Context, nodes []*graph.Node, shallow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const chunkSize = 500
	for i := 0; i < len(nodes); i += chunkSize {
		end := i + chunkSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := s.saveNodesChunk(ctx, nodes[i:end], shallow); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) saveNodesChunk(ctx context.Context, nodes []*graph.Node, shallow bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx (save nodes): %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO nodes
		(`+nodeColumns+`, shallow)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare save-node stmt: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		meta, err := json.Marshal(n.Meta)
		if err != nil {
			return fmt.Errorf("storage: marshal node %q meta: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			n.ID, string(n.Type), n.Name, n.ProjectID, n.ProjectName, n.Branch,
			n.RelativePath, n.StartLine, n.StartColumn, n.EndLine, n.EndColumn,
			n.Version, n.QLSVersion, string(meta), boolToInt(shallow),
		); err != nil {
			return fmt.Errorf("storage: insert node %q: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// GetNode retrieves a single node by id.
func (s *Storage) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ?`
	row := s.db.QueryRowContext(ctx, q, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get node %q: %w", id, err)
	}
	return n, nil
}

// NodeExists reports whether a node with the given id exists.
func (s *Storage) NodeExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: node exists %q: %w", id, err)
	}
	return true, nil
}

// ListNodes returns nodes matching the filter. Shallow (staged) rows are
// excluded unless IncludeShallow is set.
func (s *Storage) ListNodes(ctx context.Context, f NodeFilter) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT ` + nodeColumns + ` FROM nodes WHERE 1=1`
	var args []any
	if !f.IncludeShallow {
		q += ` AND shallow = 0`
	}
	if f.ProjectID != "" {
		q += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.ProjectName != "" {
		q += ` AND project_name = ?`
		args = append(args, f.ProjectName)
	}
	if f.Branch != "" {
		q += ` AND branch = ?`
		args = append(args, f.Branch)
	}
	if f.Type != "" {
		q += ` AND type = ?`
		args = append(args, string(f.Type))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list nodes: %w", err)
	}
	return scanNodes(rows)
}

// ListUnconnectedNodes returns the matcher's candidate set: every committed
// node with no incoming and no outgoing connection.
func (s *Storage) ListUnconnectedNodes(ctx context.Context) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT ` + nodeColumns + ` FROM nodes n
		WHERE n.shallow = 0
		AND NOT EXISTS (SELECT 1 FROM connections c WHERE c.from_id = n.id)
		AND NOT EXISTS (SELECT 1 FROM connections c WHERE c.to_id = n.id)`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: list unconnected nodes: %w", err)
	}
	return scanNodes(rows)
}

// DeleteNodesByBranch removes every node of a project+branch combination.
// Connections touching the removed nodes are cascade-deleted.
func (s *Storage) DeleteNodesByBranch(ctx context.Context, projectID, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `DELETE FROM nodes WHERE project_id = ? AND branch = ?`
	if _, err := s.db.ExecContext(ctx, q, projectID, branch); err != nil {
		return fmt.Errorf("storage: delete nodes %q@%q: %w", projectID, branch, err)
	}
	return nil
}

// CommitBranch promotes a shallow upload: the branch's previous live rows are
// dropped and the staged rows take their place, atomically.
func (s *Storage) CommitBranch(ctx context.Context, projectID, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx (commit branch): %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE project_id = ? AND branch = ? AND shallow = 0`,
		projectID, branch,
	); err != nil {
		return fmt.Errorf("storage: drop live rows %q@%q: %w", projectID, branch, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE nodes SET shallow = 0 WHERE project_id = ? AND branch = ? AND shallow = 1`,
		projectID, branch,
	); err != nil {
		return fmt.Errorf("storage: promote staged rows %q@%q: %w", projectID, branch, err)
	}
	return tx.Commit()
}

// RollbackBranch discards a shallow upload without touching live rows.
func (s *Storage) RollbackBranch(ctx context.Context, projectID, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `DELETE FROM nodes WHERE project_id = ? AND branch = ? AND shallow = 1`
	if _, err := s.db.ExecContext(ctx, q, projectID, branch); err != nil {
		return fmt.Errorf("storage: rollback staged rows %q@%q: %w", projectID, branch, err)
	}
	return nil
}

// ------------------------------ scanning ----------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (*graph.Node, error) {
	n := &graph.Node{}
	var metaStr string
	if err := r.Scan(
		&n.ID, &n.Type, &n.Name, &n.ProjectID, &n.ProjectName, &n.Branch,
		&n.RelativePath, &n.StartLine, &n.StartColumn, &n.EndLine, &n.EndColumn,
		&n.Version, &n.QLSVersion, &metaStr,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaStr), &n.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal node %q meta: %w", n.ID, err)
	}
	return n, nil
}

// scanNodes is a shared helper that scans rows into []*graph.Node.
func scanNodes(rows *sql.Rows) ([]*graph.Node, error) {
	defer rows.Close()
	var result []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan node row: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ====================== CONNECTION OPERATIONS =============================

// CreateConnection inserts a directed edge. Both endpoints must exist.
// A duplicate (from_id, to_id) pair returns ErrConnectionExists — the
// UNIQUE constraint makes this safe even against concurrent scans.
func (s *Storage) CreateConnection(ctx context.Context, c *graph.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{c.FromID, c.ToID} {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("storage: connection endpoint %q: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("storage: check endpoint %q: %w", id, err)
		}
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT OR IGNORE INTO connections (id, from_id, to_id, origin, created_at)
		VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, c.ID, c.FromID, c.ToID, string(c.Origin), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: create connection %s -> %s: %w", c.FromID, c.ToID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConnectionExists
	}
	return nil
}

// ConnectionExists reports whether a (fromID, toID) pair is already present.
func (s *Storage) ConnectionExists(ctx context.Context, fromID, toID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM connections WHERE from_id = ? AND to_id = ?`, fromID, toID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: connection exists %s -> %s: %w", fromID, toID, err)
	}
	return true, nil
}

// ListConnections returns connections matching the filter. The Branch filter
// applies to the from-node's branch.
func (s *Storage) ListConnections(ctx context.Context, f ConnectionFilter) ([]*graph.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT c.id, c.from_id, c.to_id, c.origin, c.created_at FROM connections c`
	var args []any
	if f.Branch != "" {
		q += ` JOIN nodes n ON n.id = c.from_id WHERE n.branch = ?`
		args = append(args, f.Branch)
	} else {
		q += ` WHERE 1=1`
	}
	if f.FromID != "" {
		q += ` AND c.from_id = ?`
		args = append(args, f.FromID)
	}
	if f.ToID != "" {
		q += ` AND c.to_id = ?`
		args = append(args, f.ToID)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list connections: %w", err)
	}
	defer rows.Close()

	var result []*graph.Connection
	for rows.Next() {
		c := &graph.Connection{}
		if err := rows.Scan(&c.ID, &c.FromID, &c.ToID, &c.Origin, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan connection row: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// DeleteConnection removes a single connection by id.
func (s *Storage) DeleteConnection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete connection %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteConnectionsByFrom removes every connection originating from a node.
func (s *Storage) DeleteConnectionsByFrom(ctx context.Context, fromID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE from_id = ?`, fromID); err != nil {
		return fmt.Errorf("storage: delete connections from %q: %w", fromID, err)
	}
	return nil
}

// ============================== STATS ====================================

// TypeCount is a helper used inside Stats.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats summarises the current state of the graph database.
type Stats struct {
	NodesByType      []TypeCount `json:"nodes_by_type"`
	TotalNodes       int         `json:"total_nodes"`
	TotalConnections int         `json:"total_connections"`
	TotalProjects    int         `json:"total_projects"`
}

// GetStats returns aggregate counts summarising the graph database.
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM nodes WHERE shallow = 0 GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("storage: stats nodes by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("storage: scan node type count: %w", err)
		}
		stats.TotalNodes += tc.Count
		stats.NodesByType = append(stats.NodesByType, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections`).Scan(&stats.TotalConnections); err != nil {
		return nil, fmt.Errorf("storage: stats connections: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&stats.TotalProjects); err != nil {
		return nil, fmt.Errorf("storage: stats projects: %w", err)
	}
	return stats, nil
}
