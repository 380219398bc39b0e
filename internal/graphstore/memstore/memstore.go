// Package memstore is the in-memory reference implementation of
// [graphstore.Store], mandated by spec.md §4.1 ("An alternate in-memory
// implementation of the same contract MUST be provided for tests") and
// SPEC_FULL.md §9's "abstract graph store with two implementations" design
// note. It is the reference: [sqlitestore] must pass the identical contract
// test suite.
//
// Grounded on the mutex-guarded-map discipline the reference codebase uses
// throughout (internal/agent/orchestrator.Orchestrator, pkg/memory/mock
// doubles) — snapshot state under lock, release before any caller-visible
// work, never hold the lock across a caller callback.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

// Store is a mutex-guarded, in-memory [graphstore.Store]. The zero value is
// not usable; construct with [New].
type Store struct {
	mu        sync.RWMutex
	entities  map[string]graphstore.Entity
	relations map[string]graphstore.Relation

	// outgoing/incoming index relation ids by entity id, for O(neighbors)
	// traversal instead of a full relation scan.
	outgoing map[string][]string
	incoming map[string][]string
}

var _ graphstore.Store = (*Store)(nil)

// New returns an empty, ready-to-use [Store].
func New() *Store {
	return &Store{
		entities:  make(map[string]graphstore.Entity),
		relations: make(map[string]graphstore.Relation),
		outgoing:  make(map[string][]string),
		incoming:  make(map[string][]string),
	}
}

// AddEntity implements [graphstore.Store].
func (s *Store) AddEntity(_ context.Context, e graphstore.Entity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.entities[e.ID]
	e.UpdatedAt = now
	if ok {
		e.CreatedAt = existing.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	s.entities[e.ID] = e
	return true, nil
}

// GetEntity implements [graphstore.Store].
func (s *Store) GetEntity(_ context.Context, id string) (*graphstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	out := e
	return &out, nil
}

// DeleteEntity implements [graphstore.Store]; cascades to incident relations.
func (s *Store) DeleteEntity(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return false, nil
	}
	delete(s.entities, id)

	for _, relID := range append(append([]string{}, s.outgoing[id]...), s.incoming[id]...) {
		s.removeRelationLocked(relID)
	}
	delete(s.outgoing, id)
	delete(s.incoming, id)
	return true, nil
}

// removeRelationLocked removes a relation and its index entries. Caller must
// hold s.mu for writing.
func (s *Store) removeRelationLocked(id string) {
	r, ok := s.relations[id]
	if !ok {
		return
	}
	delete(s.relations, id)
	s.outgoing[r.SourceID] = removeString(s.outgoing[r.SourceID], id)
	s.incoming[r.TargetID] = removeString(s.incoming[r.TargetID], id)
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// AddRelation implements [graphstore.Store].
func (s *Store) AddRelation(_ context.Context, r graphstore.Relation) (bool, error) {
	if r.SourceID == r.TargetID {
		return false, fmt.Errorf("graphstore: relation %q: self-loop rejected (source == target == %q)", r.ID, r.SourceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[r.SourceID]; !ok {
		return false, fmt.Errorf("graphstore: relation %q: source entity %q does not exist", r.ID, r.SourceID)
	}
	if _, ok := s.entities[r.TargetID]; !ok {
		return false, fmt.Errorf("graphstore: relation %q: target entity %q does not exist", r.ID, r.TargetID)
	}

	if existing, ok := s.relations[r.ID]; ok {
		// Upsert: drop old index entries before re-indexing below.
		s.outgoing[existing.SourceID] = removeString(s.outgoing[existing.SourceID], r.ID)
		s.incoming[existing.TargetID] = removeString(s.incoming[existing.TargetID], r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.relations[r.ID] = r
	s.outgoing[r.SourceID] = append(s.outgoing[r.SourceID], r.ID)
	s.incoming[r.TargetID] = append(s.incoming[r.TargetID], r.ID)
	return true, nil
}

// GetRelation implements [graphstore.Store].
func (s *Store) GetRelation(_ context.Context, id string) (*graphstore.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.relations[id]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

// DeleteRelation implements [graphstore.Store].
func (s *Store) DeleteRelation(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relations[id]; !ok {
		return false, nil
	}
	s.removeRelationLocked(id)
	return true, nil
}

// GetEntitiesByType implements [graphstore.Store].
func (s *Store) GetEntitiesByType(_ context.Context, entityType string, limit int) ([]graphstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graphstore.Entity
	for _, e := range s.entities {
		if e.Type == entityType {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sortEntitiesByID(out)
	return out, nil
}

// SearchEntities implements [graphstore.Store].
func (s *Store) SearchEntities(_ context.Context, query string, limit int) ([]graphstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []graphstore.Entity
	for _, e := range s.entities {
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Type), q) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sortEntitiesByID(out)
	return out, nil
}

func sortEntitiesByID(es []graphstore.Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
}

// GetNeighbors implements [graphstore.Store].
func (s *Store) GetNeighbors(_ context.Context, id string, relationType string, dir graphstore.Direction) ([]graphstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []graphstore.Entity

	add := func(relIDs []string, other func(graphstore.Relation) string) {
		for _, relID := range relIDs {
			r, ok := s.relations[relID]
			if !ok {
				continue
			}
			if relationType != "" && r.Type != relationType {
				continue
			}
			otherID := other(r)
			if seen[otherID] {
				continue
			}
			if e, ok := s.entities[otherID]; ok {
				seen[otherID] = true
				out = append(out, e)
			}
		}
	}

	if dir == graphstore.DirectionOutgoing || dir == graphstore.DirectionBoth {
		add(s.outgoing[id], func(r graphstore.Relation) string { return r.TargetID })
	}
	if dir == graphstore.DirectionIncoming || dir == graphstore.DirectionBoth {
		add(s.incoming[id], func(r graphstore.Relation) string { return r.SourceID })
	}
	return out, nil
}

// GetRelationsByEntity implements [graphstore.Store].
func (s *Store) GetRelationsByEntity(_ context.Context, id string, dir graphstore.Direction) ([]graphstore.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []graphstore.Relation
	collect := func(relIDs []string) {
		for _, relID := range relIDs {
			if seen[relID] {
				continue
			}
			if r, ok := s.relations[relID]; ok {
				seen[relID] = true
				out = append(out, r)
			}
		}
	}
	if dir == graphstore.DirectionOutgoing || dir == graphstore.DirectionBoth {
		collect(s.outgoing[id])
	}
	if dir == graphstore.DirectionIncoming || dir == graphstore.DirectionBoth {
		collect(s.incoming[id])
	}
	return out, nil
}

// GetRelationsByType implements [graphstore.Store].
func (s *Store) GetRelationsByType(_ context.Context, relationType string, limit int) ([]graphstore.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graphstore.Relation
	for _, r := range s.relations {
		if r.Type == relationType {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
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
func (s *Store) GetStatistics(_ context.Context) (graphstore.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := graphstore.Statistics{
		EntityTypes:   make(map[string]int),
		RelationTypes: make(map[string]int),
	}
	for _, e := range s.entities {
		stats.TotalEntities++
		stats.EntityTypes[e.Type]++
	}
	for _, r := range s.relations {
		stats.TotalRelations++
		stats.RelationTypes[r.Type]++
	}
	if stats.TotalEntities > 0 {
		stats.AvgRelationsPerEntity = float64(stats.TotalRelations) / float64(stats.TotalEntities)
	}
	return stats, nil
}

// Close implements [graphstore.Store]. The in-memory store holds no external
// resources, so Close is a no-op.
func (s *Store) Close() error { return nil }
