package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smlht2005/care-rag-api/internal/cache"
	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
	"github.com/smlht2005/care-rag-api/internal/graphstore/memstore"
	"github.com/smlht2005/care-rag-api/internal/retrieval"
	"github.com/smlht2005/care-rag-api/pkg/types"
)

// fakeIndex is a deterministic VectorIndex test double.
type fakeIndex struct {
	sources []types.Source
	err     error
}

func (f *fakeIndex) Search(context.Context, string, int) ([]types.Source, error) {
	return f.sources, f.err
}

func newTestOrchestrator(t *testing.T, store graphstore.Store, index retrieval.VectorIndex) *Orchestrator {
	t.Helper()
	gen := generator.NewStub()
	retrievalSvc := retrieval.New(index, gen, cache.New(64), time.Minute)
	return New(store, retrievalSvc, cache.New(64), time.Minute)
}

func TestQuery_CachesResult(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	index := &fakeIndex{sources: []types.Source{{ID: "s1", Content: "context", Score: 0.9}}}
	o := newTestOrchestrator(t, store, index)

	first, err := o.Query(context.Background(), "what is X?", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if first.FromCache {
		t.Error("first call reported FromCache = true")
	}

	second, err := o.Query(context.Background(), "what is X?", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !second.FromCache {
		t.Error("second identical call reported FromCache = false")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer = %q, want %q", second.Answer, first.Answer)
	}
}

func TestQuery_DegradesWhenGraphEnhancementFails(t *testing.T) {
	t.Parallel()

	store := &failingNeighborsStore{Store: memstore.New()}
	ctx := context.Background()
	if _, err := store.AddEntity(ctx, graphstore.Entity{ID: "e1", Type: "Concept", Name: "X"}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	index := &fakeIndex{sources: []types.Source{{ID: "s1", Content: "context"}}}
	o := newTestOrchestrator(t, store, index)

	result, err := o.Query(ctx, "X", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.Degraded {
		t.Error("expected Degraded = true when graph enhancement fails")
	}
	if result.Answer == "" {
		t.Error("degraded result must still carry the retrieval answer")
	}
}

func TestQuery_PropagatesRetrievalFailure(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	index := &fakeIndex{err: errors.New("vector backend down")}
	o := newTestOrchestrator(t, store, index)

	if _, err := o.Query(context.Background(), "X", 3); err == nil {
		t.Fatal("expected an error when the retrieval service fails")
	}
}

func TestScoreEntity_ExactNameMatchScoresHighest(t *testing.T) {
	t.Parallel()

	e := graphstore.Entity{Name: "insulin"}
	if got := scoreEntity(e, "insulin"); got != 0.95 {
		t.Errorf("score = %v, want 0.95 for exact match", got)
	}
}

func TestScoreEntity_DefaultScore(t *testing.T) {
	t.Parallel()

	e := graphstore.Entity{Name: "unrelated-entity", Type: "Concept"}
	if got := scoreEntity(e, "completely different query"); got != 0.55 {
		t.Errorf("score = %v, want 0.55 default", got)
	}
}

func TestFuseSources_DedupesAndSortsByScore(t *testing.T) {
	t.Parallel()

	retrievalSources := []types.Source{{ID: "a", Score: 0.5}, {ID: "b", Score: 0.9}}
	graphSources := []types.Source{{ID: "b", Score: 0.1}, {ID: "c", Score: 0.7}}

	fused := fuseSources(retrievalSources, graphSources, 0)

	if len(fused) != 3 {
		t.Fatalf("got %d sources, want 3 after dedup", len(fused))
	}
	if fused[0].ID != "b" || fused[0].Score != 0.9 {
		t.Errorf("fused[0] = %+v, want id=b score=0.9 (retrieval wins the dedup tie)", fused[0])
	}
	for i := 1; i < len(fused); i++ {
		if fused[i-1].Score < fused[i].Score {
			t.Fatalf("fused sources not sorted descending by score: %+v", fused)
		}
	}
}

func TestFuseSources_TruncatesToTopK(t *testing.T) {
	t.Parallel()

	retrievalSources := []types.Source{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}}
	graphSources := []types.Source{{ID: "c", Score: 0.7}}

	fused := fuseSources(retrievalSources, graphSources, 2)

	if len(fused) != 2 {
		t.Fatalf("got %d sources, want 2 after truncation to top_k=2", len(fused))
	}
	if fused[0].ID != "a" || fused[1].ID != "b" {
		t.Errorf("fused = %+v, want the two highest-scored sources", fused)
	}
}

func TestQuery_EnhancesViaDocumentIDsAndGathersRelations(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	ctx := context.Background()
	mustAddEntity(t, store, graphstore.Entity{ID: "d1", Type: graphstore.DocumentEntityType, Name: "doc"})
	mustAddEntity(t, store, graphstore.Entity{ID: "e1", Type: "Concept", Name: "X"})
	mustAddEntity(t, store, graphstore.Entity{ID: "e2", Type: "Concept", Name: "Y"})
	mustAddRelation(t, store, graphstore.Relation{ID: "r1", SourceID: "d1", TargetID: "e1", Type: graphstore.ContainsRelationType})
	mustAddRelation(t, store, graphstore.Relation{ID: "r2", SourceID: "e1", TargetID: "e2", Type: "RELATED_TO"})

	index := &fakeIndex{sources: []types.Source{{ID: "d1", Content: "context", Score: 0.9}}}
	o := newTestOrchestrator(t, store, index)

	result, err := o.Query(ctx, "X", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.GraphEnhanced {
		t.Error("expected GraphEnhanced = true when graph sources were produced")
	}

	foundY := false
	for _, e := range result.GraphEntities {
		if e.ID == "e2" {
			foundY = true
		}
	}
	if !foundY {
		t.Errorf("GraphEntities = %+v, want it to include e2 (discovered via e1's neighbors)", result.GraphEntities)
	}

	relIDs := make(map[string]bool, len(result.GraphRelations))
	for _, r := range result.GraphRelations {
		relIDs[r.ID] = true
	}
	if !relIDs["r1"] || !relIDs["r2"] {
		t.Errorf("GraphRelations = %+v, want both r1 and r2 (deduplicated across seeds)", result.GraphRelations)
	}
}

func mustAddEntity(t *testing.T, store graphstore.Store, e graphstore.Entity) {
	t.Helper()
	if _, err := store.AddEntity(context.Background(), e); err != nil {
		t.Fatalf("AddEntity(%q): %v", e.ID, err)
	}
}

func mustAddRelation(t *testing.T, store graphstore.Store, r graphstore.Relation) {
	t.Helper()
	if _, err := store.AddRelation(context.Background(), r); err != nil {
		t.Fatalf("AddRelation(%q): %v", r.ID, err)
	}
}

// failingNeighborsStore wraps a Store and fails GetNeighbors, to exercise
// the orchestrator's graph-enhancement degradation path.
type failingNeighborsStore struct {
	graphstore.Store
}

func (s *failingNeighborsStore) GetNeighbors(context.Context, string, string, graphstore.Direction) ([]graphstore.Entity, error) {
	return nil, errors.New("graph store unavailable")
}
