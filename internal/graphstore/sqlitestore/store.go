// Package sqlitestore is the durable, single-file implementation of
// [graphstore.Store], built on database/sql and the pure-Go modernc.org/sqlite
// driver (no cgo). It satisfies spec.md §4.1's persistence contract: a
// durable single-file on-disk store with secondary access structures on
// entity type/name and relation source/target/type, and ON DELETE CASCADE
// from entities into incident relations.
//
// Query shapes (upsert via ON CONFLICT, dynamic WHERE-clause building,
// JSON-column encode/decode) are adapted from the reference codebase's
// Postgres-backed pkg/memory/postgres/knowledge_graph.go, rewritten against
// SQLite syntax and a single-writer connection pool instead of a pgx pool.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

// Store is a SQLite-backed [graphstore.Store].
type Store struct {
	db *sql.DB
}

var _ graphstore.Store = (*Store)(nil)

// Open creates or opens the single-file database at path, applies the
// schema, and returns a ready-to-use [Store].
//
// The connection pool is capped at one open connection: SQLite allows only a
// single writer at a time, and the reference codebase's "single writer,
// many readers" resource-model note (spec.md §5) is simplest to satisfy by
// serializing all access through one connection rather than juggling a
// read/write pool split.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close implements [graphstore.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

// AddEntity implements [graphstore.Store].
func (s *Store) AddEntity(ctx context.Context, e graphstore.Entity) (bool, error) {
	propsJSON, err := marshalProps(e.Properties)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: add entity %q: marshal properties: %w", e.ID, err)
	}

	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, type, name, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			properties = excluded.properties,
			updated_at = excluded.updated_at
	`, e.ID, e.Type, e.Name, propsJSON, createdAt.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("sqlitestore: add entity %q: %w", e.ID, err)
	}
	return true, nil
}

// GetEntity implements [graphstore.Store].
func (s *Store) GetEntity(ctx context.Context, id string) (*graphstore.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, properties, created_at, updated_at FROM entities WHERE id = ?
	`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get entity %q: %w", id, err)
	}
	return e, nil
}

// DeleteEntity implements [graphstore.Store]; relies on ON DELETE CASCADE to
// remove incident relations.
func (s *Store) DeleteEntity(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: delete entity %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlitestore: delete entity %q: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// AddRelation implements [graphstore.Store].
func (s *Store) AddRelation(ctx context.Context, r graphstore.Relation) (bool, error) {
	if r.SourceID == r.TargetID {
		return false, fmt.Errorf("sqlitestore: relation %q: self-loop rejected (source == target == %q)", r.ID, r.SourceID)
	}

	if e, err := s.GetEntity(ctx, r.SourceID); err != nil {
		return false, err
	} else if e == nil {
		return false, fmt.Errorf("sqlitestore: relation %q: source entity %q does not exist", r.ID, r.SourceID)
	}
	if e, err := s.GetEntity(ctx, r.TargetID); err != nil {
		return false, err
	} else if e == nil {
		return false, fmt.Errorf("sqlitestore: relation %q: target entity %q does not exist", r.ID, r.TargetID)
	}

	propsJSON, err := marshalProps(r.Properties)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: add relation %q: marshal properties: %w", r.ID, err)
	}

	weight := r.Weight
	if weight == 0 {
		weight = 1.0
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relations (id, source_id, target_id, type, properties, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			target_id = excluded.target_id,
			type = excluded.type,
			properties = excluded.properties,
			weight = excluded.weight
	`, r.ID, r.SourceID, r.TargetID, r.Type, propsJSON, weight, createdAt.Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("sqlitestore: add relation %q: %w", r.ID, err)
	}
	return true, nil
}

// GetRelation implements [graphstore.Store].
func (s *Store) GetRelation(ctx context.Context, id string) (*graphstore.Relation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, target_id, type, properties, weight, created_at FROM relations WHERE id = ?
	`, id)
	r, err := scanRelation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get relation %q: %w", id, err)
	}
	return r, nil
}

// DeleteRelation implements [graphstore.Store].
func (s *Store) DeleteRelation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: delete relation %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlitestore: delete relation %q: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// GetEntitiesByType implements [graphstore.Store].
func (s *Store) GetEntitiesByType(ctx context.Context, entityType string, limit int) ([]graphstore.Entity, error) {
	q := `SELECT id, type, name, properties, created_at, updated_at FROM entities WHERE type = ? ORDER BY id`
	args := []any{entityType}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntities(ctx, q, args...)
}

// SearchEntities implements [graphstore.Store].
func (s *Store) SearchEntities(ctx context.Context, query string, limit int) ([]graphstore.Entity, error) {
	q := `
		SELECT id, type, name, properties, created_at, updated_at FROM entities
		WHERE lower(name) LIKE ? ESCAPE '\' OR lower(type) LIKE ? ESCAPE '\'
		ORDER BY id
	`
	like := "%" + escapeLike(strings.ToLower(query)) + "%"
	args := []any{like, like}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntities(ctx, q, args...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// GetNeighbors implements [graphstore.Store].
func (s *Store) GetNeighbors(ctx context.Context, id string, relationType string, dir graphstore.Direction) ([]graphstore.Entity, error) {
	var clauses []string
	var args []any

	if dir == graphstore.DirectionOutgoing || dir == graphstore.DirectionBoth {
		c, a := neighborClause("source_id", "target_id", id, relationType)
		clauses = append(clauses, c)
		args = append(args, a...)
	}
	if dir == graphstore.DirectionIncoming || dir == graphstore.DirectionBoth {
		c, a := neighborClause("target_id", "source_id", id, relationType)
		clauses = append(clauses, c)
		args = append(args, a...)
	}

	q := fmt.Sprintf(`
		SELECT DISTINCT e.id, e.type, e.name, e.properties, e.created_at, e.updated_at
		FROM entities e
		WHERE e.id IN (%s)
		ORDER BY e.id
	`, strings.Join(clauses, " UNION "))

	return s.queryEntities(ctx, q, args...)
}

// neighborClause builds a "SELECT other FROM relations WHERE anchor = ? [AND type = ?]"
// sub-select used to find the other endpoint of relations incident to id.
func neighborClause(anchorCol, otherCol, id, relationType string) (string, []any) {
	q := fmt.Sprintf(`SELECT %s FROM relations WHERE %s = ?`, otherCol, anchorCol)
	args := []any{id}
	if relationType != "" {
		q += ` AND type = ?`
		args = append(args, relationType)
	}
	return q, args
}

// GetRelationsByEntity implements [graphstore.Store].
func (s *Store) GetRelationsByEntity(ctx context.Context, id string, dir graphstore.Direction) ([]graphstore.Relation, error) {
	var where string
	switch dir {
	case graphstore.DirectionOutgoing:
		where = `source_id = ?`
	case graphstore.DirectionIncoming:
		where = `target_id = ?`
	default:
		where = `source_id = ? OR target_id = ?`
	}

	q := fmt.Sprintf(`
		SELECT id, source_id, target_id, type, properties, weight, created_at
		FROM relations WHERE %s ORDER BY id
	`, where)

	args := []any{id}
	if dir == graphstore.DirectionBoth {
		args = append(args, id)
	}
	return s.queryRelations(ctx, q, args...)
}

// GetRelationsByType implements [graphstore.Store].
func (s *Store) GetRelationsByType(ctx context.Context, relationType string, limit int) ([]graphstore.Relation, error) {
	q := `SELECT id, source_id, target_id, type, properties, weight, created_at FROM relations WHERE type = ? ORDER BY id`
	args := []any{relationType}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRelations(ctx, q, args...)
}

// GetPath implements [graphstore.Store] via the shared [graphstore.Path] algorithm.
func (s *Store) GetPath(ctx context.Context, source, target string, maxHops int) ([][]string, error) {
	return graphstore.Path(ctx, s, source, target, maxHops)
}

// GetSubgraph implements [graphstore.Store] via the shared [graphstore.Subgraph] algorithm.
func (s *Store) GetSubgraph(ctx context.Context, seeds []string, maxDepth int) (graphstore.Snapshot, error) {
	return graphstore.Subgraph(ctx, s, seeds, maxDepth)
}

// GetStatistics implements [graphstore.Store].
func (s *Store) GetStatistics(ctx context.Context) (graphstore.Statistics, error) {
	stats := graphstore.Statistics{
		EntityTypes:   make(map[string]int),
		RelationTypes: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, count(*) FROM entities GROUP BY type`)
	if err != nil {
		return stats, fmt.Errorf("sqlitestore: get statistics: entity types: %w", err)
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("sqlitestore: get statistics: scan entity type: %w", err)
		}
		stats.EntityTypes[t] = n
		stats.TotalEntities += n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT type, count(*) FROM relations GROUP BY type`)
	if err != nil {
		return stats, fmt.Errorf("sqlitestore: get statistics: relation types: %w", err)
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("sqlitestore: get statistics: scan relation type: %w", err)
		}
		stats.RelationTypes[t] = n
		stats.TotalRelations += n
	}
	rows.Close()

	if stats.TotalEntities > 0 {
		stats.AvgRelationsPerEntity = float64(stats.TotalRelations) / float64(stats.TotalEntities)
	}
	return stats, nil
}

// ─── scanning helpers ───────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*graphstore.Entity, error) {
	var e graphstore.Entity
	var propsJSON, createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.Type, &e.Name, &propsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	props, err := unmarshalProps(propsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	e.Properties = props
	e.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	e.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &e, nil
}

func scanRelation(row rowScanner) (*graphstore.Relation, error) {
	var r graphstore.Relation
	var propsJSON, createdAt string
	if err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &propsJSON, &r.Weight, &createdAt); err != nil {
		return nil, err
	}
	props, err := unmarshalProps(propsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	r.Properties = props
	r.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &r, nil
}

func (s *Store) queryEntities(ctx context.Context, q string, args ...any) ([]graphstore.Entity, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graphstore.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) queryRelations(ctx context.Context, q string, args ...any) ([]graphstore.Relation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graphstore.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func marshalProps(props map[string]any) (string, error) {
	if props == nil {
		props = map[string]any{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalProps(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}
