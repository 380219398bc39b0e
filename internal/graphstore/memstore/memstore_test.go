package memstore

import (
	"context"
	"testing"

	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

func TestAddEntity_UpsertPreservesCreatedAt(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, err := s.AddEntity(ctx, graphstore.Entity{ID: "e1", Name: "A", Type: "Concept"}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	first, _ := s.GetEntity(ctx, "e1")

	if _, err := s.AddEntity(ctx, graphstore.Entity{ID: "e1", Name: "A updated", Type: "Concept"}); err != nil {
		t.Fatalf("AddEntity (upsert): %v", err)
	}
	second, _ := s.GetEntity(ctx, "e1")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed across upsert: %v != %v", second.CreatedAt, first.CreatedAt)
	}
	if second.Name != "A updated" {
		t.Errorf("Name = %q, want updated value", second.Name)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) && !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance across upsert")
	}
}

func TestAddRelation_RejectsSelfLoop(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.AddEntity(ctx, graphstore.Entity{ID: "e1", Name: "A", Type: "Concept"})

	_, err := s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "e1", TargetID: "e1", Type: "RELATED_TO"})
	if err == nil {
		t.Fatal("expected an error for a self-loop relation")
	}
}

func TestAddRelation_RejectsDanglingEndpoint(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.AddEntity(ctx, graphstore.Entity{ID: "e1", Name: "A", Type: "Concept"})

	_, err := s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "e1", TargetID: "missing", Type: "RELATED_TO"})
	if err == nil {
		t.Fatal("expected an error for a dangling target endpoint")
	}
}

func TestDeleteEntity_CascadesToIncidentRelations(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.AddEntity(ctx, graphstore.Entity{ID: "e1", Name: "A", Type: "Concept"})
	s.AddEntity(ctx, graphstore.Entity{ID: "e2", Name: "B", Type: "Concept"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "e1", TargetID: "e2", Type: "RELATED_TO"})

	if _, err := s.DeleteEntity(ctx, "e1"); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}

	if r, _ := s.GetRelation(ctx, "r1"); r != nil {
		t.Error("relation survived deletion of its source entity")
	}
}

func TestGetNeighbors_DirectionAndTypeFiltering(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.AddEntity(ctx, graphstore.Entity{ID: "e1", Name: "A", Type: "Concept"})
	s.AddEntity(ctx, graphstore.Entity{ID: "e2", Name: "B", Type: "Concept"})
	s.AddEntity(ctx, graphstore.Entity{ID: "e3", Name: "C", Type: "Concept"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "e1", TargetID: "e2", Type: "KNOWS"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r2", SourceID: "e3", TargetID: "e1", Type: "MANAGES"})

	out, err := s.GetNeighbors(ctx, "e1", "", graphstore.DirectionOutgoing)
	if err != nil {
		t.Fatalf("GetNeighbors: %v", err)
	}
	if len(out) != 1 || out[0].ID != "e2" {
		t.Fatalf("outgoing neighbors = %+v, want [e2]", out)
	}

	in, err := s.GetNeighbors(ctx, "e1", "", graphstore.DirectionIncoming)
	if err != nil {
		t.Fatalf("GetNeighbors: %v", err)
	}
	if len(in) != 1 || in[0].ID != "e3" {
		t.Fatalf("incoming neighbors = %+v, want [e3]", in)
	}

	none, err := s.GetNeighbors(ctx, "e1", "NONEXISTENT_TYPE", graphstore.DirectionBoth)
	if err != nil {
		t.Fatalf("GetNeighbors: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("filtered neighbors = %+v, want none", none)
	}
}

func TestGetPath_FindsShortestSimplePath(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.AddEntity(ctx, graphstore.Entity{ID: id, Name: id, Type: "Concept"})
	}
	s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "a", TargetID: "b", Type: "X"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r2", SourceID: "b", TargetID: "c", Type: "X"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r3", SourceID: "a", TargetID: "d", Type: "X"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r4", SourceID: "d", TargetID: "c", Type: "X"})

	paths, err := s.GetPath(ctx, "a", "c", 3)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2 (a-b-c and a-d-c)", len(paths))
	}
}

func TestGetPath_SameSourceAndTarget(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.AddEntity(ctx, graphstore.Entity{ID: "a", Name: "a", Type: "Concept"})

	paths, err := s.GetPath(ctx, "a", "a", 3)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if len(paths) != 1 || len(paths[0]) != 1 || paths[0][0] != "a" {
		t.Fatalf("paths = %+v, want [[a]]", paths)
	}
}

func TestGetSubgraph_IncludesBoundaryEdgesBeyondMaxDepth(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for _, id := range []string{"seed", "depth1", "depth2"} {
		s.AddEntity(ctx, graphstore.Entity{ID: id, Name: id, Type: "Concept"})
	}
	s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "seed", TargetID: "depth1", Type: "X"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r2", SourceID: "depth1", TargetID: "depth2", Type: "X"})

	snap, err := s.GetSubgraph(ctx, []string{"seed"}, 1)
	if err != nil {
		t.Fatalf("GetSubgraph: %v", err)
	}
	if len(snap.Entities) != 2 {
		t.Fatalf("got %d entities, want 2 (seed, depth1) at maxDepth=1", len(snap.Entities))
	}
	if len(snap.Relations) != 2 {
		t.Fatalf("got %d relations, want 2 (including the edge to depth2 beyond maxDepth)", len(snap.Relations))
	}
}

func TestGetStatistics_ComputesAverages(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.AddEntity(ctx, graphstore.Entity{ID: "a", Name: "a", Type: "Person"})
	s.AddEntity(ctx, graphstore.Entity{ID: "b", Name: "b", Type: "Person"})
	s.AddRelation(ctx, graphstore.Relation{ID: "r1", SourceID: "a", TargetID: "b", Type: "KNOWS"})

	stats, err := s.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalEntities != 2 || stats.TotalRelations != 1 {
		t.Fatalf("stats = %+v, want 2 entities, 1 relation", stats)
	}
	if stats.AvgRelationsPerEntity != 0.5 {
		t.Errorf("AvgRelationsPerEntity = %v, want 0.5", stats.AvgRelationsPerEntity)
	}
}

func TestGetStatistics_EmptyStoreHasNoDivideByZero(t *testing.T) {
	t.Parallel()

	s := New()
	stats, err := s.GetStatistics(context.Background())
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.AvgRelationsPerEntity != 0 {
		t.Errorf("AvgRelationsPerEntity = %v, want 0 for an empty store", stats.AvgRelationsPerEntity)
	}
}
