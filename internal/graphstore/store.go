package graphstore

import "context"

// Store is the Graph Store contract (spec.md §4.1): durable CRUD and
// traversal over entities and relations, plus aggregate statistics.
//
// All operations may fail with a storage error; none use panics or sentinel
// zero-values as a substitute for an explicit error. Boolean "ok" returns of
// the Add* methods indicate idempotent-upsert success, not "found" — use the
// pointer-returning Get* methods to test presence.
type Store interface {
	// AddEntity idempotently upserts e by ID, refreshing UpdatedAt. Returns
	// true on success.
	AddEntity(ctx context.Context, e Entity) (bool, error)

	// GetEntity returns the entity with the given id, or nil if absent.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// DeleteEntity removes the entity and cascades to every relation where it
	// is either endpoint. Returns true if an entity was actually removed.
	DeleteEntity(ctx context.Context, id string) (bool, error)

	// AddRelation verifies both endpoints exist and that source != target,
	// then idempotently upserts r by ID. Returns true on success; returns an
	// error (not a false return) for invariant violations — self-loop or
	// dangling endpoint — since those are caller mistakes, not transient
	// storage conditions.
	AddRelation(ctx context.Context, r Relation) (bool, error)

	// GetRelation returns the relation with the given id, or nil if absent.
	GetRelation(ctx context.Context, id string) (*Relation, error)

	// DeleteRelation removes a single relation by id. Returns true if a
	// relation was actually removed.
	DeleteRelation(ctx context.Context, id string) (bool, error)

	// GetEntitiesByType returns up to limit entities of the given type.
	// limit <= 0 means no bound.
	GetEntitiesByType(ctx context.Context, entityType string, limit int) ([]Entity, error)

	// SearchEntities returns up to limit entities whose Name or Type contains
	// query as a case-insensitive substring.
	SearchEntities(ctx context.Context, query string, limit int) ([]Entity, error)

	// GetNeighbors returns the entities adjacent to id, deduplicated by
	// entity id, in unspecified order. relationType == "" matches any type.
	GetNeighbors(ctx context.Context, id string, relationType string, dir Direction) ([]Entity, error)

	// GetRelationsByEntity returns every relation incident to id in the given
	// direction.
	GetRelationsByEntity(ctx context.Context, id string, dir Direction) ([]Relation, error)

	// GetRelationsByType returns up to limit relations of the given type.
	GetRelationsByType(ctx context.Context, relationType string, limit int) ([]Relation, error)

	// GetPath enumerates simple paths from source to target, each expressed
	// as an ordered slice of entity ids, per the bounded-BFS algorithm in
	// spec.md §4.1 "Path enumeration". source == target returns [][]string{{source}}.
	GetPath(ctx context.Context, source, target string, maxHops int) ([][]string, error)

	// GetSubgraph expands outward from seeds up to maxDepth hops in either
	// direction (spec.md §4.1 "Subgraph expansion") and returns every entity
	// visited plus every relation incident to a visited entity, emitted
	// exactly once — including edges that reach beyond maxDepth.
	GetSubgraph(ctx context.Context, seeds []string, maxDepth int) (Snapshot, error)

	// GetStatistics reports aggregate entity/relation counts and per-type breakdowns.
	GetStatistics(ctx context.Context) (Statistics, error)

	// Close releases any resources held by the store (e.g. the underlying
	// database handle). Safe to call on an in-memory store as a no-op.
	Close() error
}
