package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/smlht2005/care-rag-api/internal/extractor"
	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
	"github.com/smlht2005/care-rag-api/internal/graphstore/memstore"
)

func newTestBuilder() (*Builder, graphstore.Store) {
	store := memstore.New()
	ext := extractor.New(generator.NewStub())
	return New(store, ext), store
}

func TestBuildFromDocument_CreatesDocumentEntityAndContainsEdges(t *testing.T) {
	t.Parallel()

	b, store := newTestBuilder()
	doc := Document{Name: "Intro", Text: "台北醫院是一個服務機構，張三在台北醫院工作。"}

	result, err := b.BuildFromDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("BuildFromDocument: %v", err)
	}
	if result.DocumentID == "" {
		t.Fatal("DocumentID not assigned")
	}

	docEntity, err := store.GetEntity(context.Background(), result.DocumentID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if docEntity == nil || docEntity.Type != graphstore.DocumentEntityType {
		t.Fatalf("document entity = %+v, want type %q", docEntity, graphstore.DocumentEntityType)
	}

	rels, err := store.GetRelationsByEntity(context.Background(), result.DocumentID, graphstore.DirectionOutgoing)
	if err != nil {
		t.Fatalf("GetRelationsByEntity: %v", err)
	}
	if len(rels) == 0 {
		t.Fatal("expected at least one CONTAINS relation from the document")
	}
	for _, r := range rels {
		if r.Type != graphstore.ContainsRelationType {
			t.Errorf("relation type = %q, want %q", r.Type, graphstore.ContainsRelationType)
		}
	}
}

func TestUpdateDocument_RebuildsUnderSameDocumentID(t *testing.T) {
	t.Parallel()

	b, store := newTestBuilder()
	doc := Document{ID: "doc-1", Name: "V1", Text: "張三是醫生"}

	first, err := b.BuildFromDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("BuildFromDocument: %v", err)
	}

	doc.Text = "李四是護士"
	second, err := b.UpdateDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}

	if second.DocumentID != first.DocumentID {
		t.Fatalf("document ID changed across update: %q != %q", second.DocumentID, first.DocumentID)
	}

	docEntity, err := store.GetEntity(context.Background(), second.DocumentID)
	if err != nil || docEntity == nil {
		t.Fatalf("document entity missing after update: %v", err)
	}
}

func TestBuildBatch_ReturnsOneSuccessfulResultPerDocument(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder()
	docs := []Document{
		{Name: "A", Text: "甲機構管理乙部門。"},
		{Name: "B", Text: "丙服務由丁組成。"},
	}

	results := b.BuildBatch(context.Background(), docs)
	if len(results) != len(docs) {
		t.Fatalf("got %d results, want %d", len(results), len(docs))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("result %+v: expected success", r)
		}
	}
}

// flakyEntityStore fails AddRelation for every relation whose target entity
// is named failTargetName, to exercise BuildFromDocument's per-item failure
// isolation.
type flakyEntityStore struct {
	graphstore.Store
	failTargetName string
}

func (s *flakyEntityStore) AddRelation(ctx context.Context, r graphstore.Relation) (bool, error) {
	if target, err := s.Store.GetEntity(ctx, r.TargetID); err == nil && target != nil && target.Name == s.failTargetName {
		return false, errors.New("simulated relation persistence failure")
	}
	return s.Store.AddRelation(ctx, r)
}

func TestBuildFromDocument_IsolatesPerItemPersistenceFailures(t *testing.T) {
	t.Parallel()

	ext := extractor.New(generator.NewStub())
	base := memstore.New()
	doc := Document{Name: "Intro", Text: "台北醫院是一個服務機構，張三在台北醫院工作。"}

	// Extract once against a throwaway store so we know the name of a real
	// extracted entity to target (entity IDs are fresh UUIDs on every
	// extraction, names are not), then rebuild the document against the
	// flaky store.
	probe := New(base, ext)
	probeResult, err := probe.BuildFromDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("BuildFromDocument (probe): %v", err)
	}
	if len(probeResult.EntityIDs) < 2 {
		t.Fatal("probe extraction produced no non-document entities to target")
	}
	failTarget, err := base.GetEntity(context.Background(), probeResult.EntityIDs[1])
	if err != nil || failTarget == nil {
		t.Fatalf("probe entity %q missing: %v", probeResult.EntityIDs[1], err)
	}

	flaky := &flakyEntityStore{Store: memstore.New(), failTargetName: failTarget.Name}
	b := New(flaky, ext)

	result, err := b.BuildFromDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("BuildFromDocument: %v", err)
	}
	if result.RelationsFailed == 0 {
		t.Error("expected RelationsFailed > 0 when one CONTAINS relation fails to persist")
	}

	// The document entity itself, and every other entity, must still persist.
	docEntity, err := flaky.GetEntity(context.Background(), result.DocumentID)
	if err != nil || docEntity == nil {
		t.Fatalf("document entity missing despite an unrelated relation failure: %v", err)
	}
}
