// Package builder is the Graph Builder (spec.md §4.3, component C3): it
// turns a document's text into a Document entity, the entities and
// relations extracted from it, and CONTAINS edges from the document to each
// entity it mentions, then persists all of it through a graphstore.Store.
//
// Grounded on spec.md §4.3 and original_source/app/services/graph_builder.py's
// method shape (build_graph_from_text / build_graph_from_document /
// update_graph_from_text / build_graph_from_documents_batch).
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smlht2005/care-rag-api/internal/extractor"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
	"github.com/smlht2005/care-rag-api/internal/observe"
)

// Document is the input to a build operation.
type Document struct {
	ID         string
	Name       string
	Text       string
	Properties map[string]any
}

// Result reports what a single document's ingest produced. Per spec.md §4.3
// step 6, persistence failures for individual entities/relations are not
// fatal to the document: they are counted separately rather than aborting
// the ingest.
type Result struct {
	DocumentID      string
	EntityIDs       []string
	RelationID      []string
	EntitiesFailed  int
	RelationsFailed int
	Error           error
}

// BatchResult is the outcome of ingesting one document within a batch — the
// shape callers get per-document instead of a single all-or-nothing error,
// mirroring original_source/app/services/graph_builder.py's
// build_graph_from_documents_batch, which returns a
// {document_id, success, error} record per input document so a batch job
// keeps processing rather than aborting on one bad document.
type BatchResult struct {
	DocumentID string
	Success    bool
	Error      string
}

// Builder ingests documents into a Store via an Extractor.
type Builder struct {
	store graphstore.Store
	ext   *extractor.Extractor
}

// New returns a Builder that writes to store using ext for entity/relation
// extraction.
func New(store graphstore.Store, ext *extractor.Extractor) *Builder {
	return &Builder{store: store, ext: ext}
}

// BuildFromDocument synthesizes a Document entity for doc, extracts entities
// and relations from its text, links every extracted entity to the document
// with a CONTAINS edge, and persists all of it.
func (b *Builder) BuildFromDocument(ctx context.Context, doc Document) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "builder.build_from_document")
	defer span.End()
	logger := observe.Logger(ctx)

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	docEntity := graphstore.Entity{
		ID:         doc.ID,
		Type:       graphstore.DocumentEntityType,
		Name:       doc.Name,
		Properties: withDefault(doc.Properties),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if _, err := b.store.AddEntity(ctx, docEntity); err != nil {
		return Result{DocumentID: doc.ID}, fmt.Errorf("builder: add document entity %q: %w", doc.ID, err)
	}

	entities, err := b.ext.ExtractEntities(ctx, doc.Text, nil)
	if err != nil {
		return Result{DocumentID: doc.ID}, fmt.Errorf("builder: extract entities for document %q: %w", doc.ID, err)
	}

	result := Result{DocumentID: doc.ID, EntityIDs: []string{docEntity.ID}}
	for _, e := range entities {
		if _, err := b.store.AddEntity(ctx, e); err != nil {
			logger.Warn("builder: failed to persist extracted entity", "document", doc.ID, "entity", e.ID, "err", err)
			result.EntitiesFailed++
			continue
		}
		result.EntityIDs = append(result.EntityIDs, e.ID)

		contains := graphstore.Relation{
			ID:        docEntity.ID + "_contains_" + e.ID,
			SourceID:  docEntity.ID,
			TargetID:  e.ID,
			Type:      graphstore.ContainsRelationType,
			Weight:    1.0,
			CreatedAt: time.Now(),
		}
		if _, err := b.store.AddRelation(ctx, contains); err != nil {
			logger.Warn("builder: failed to persist CONTAINS relation", "document", doc.ID, "entity", e.ID, "err", err)
			result.RelationsFailed++
			continue
		}
		result.RelationID = append(result.RelationID, contains.ID)
	}

	relations, err := b.ext.ExtractRelations(ctx, doc.Text, entities)
	if err != nil {
		return result, fmt.Errorf("builder: extract relations for document %q: %w", doc.ID, err)
	}
	for _, r := range relations {
		if _, err := b.store.AddRelation(ctx, r); err != nil {
			logger.Warn("builder: failed to persist extracted relation", "document", doc.ID, "relation", r.ID, "err", err)
			result.RelationsFailed++
			continue
		}
		result.RelationID = append(result.RelationID, r.ID)
	}

	return result, nil
}

// UpdateDocument re-ingests doc: the prior Document entity (and everything
// cascading from it) is deleted, then the document is rebuilt from its
// current text, so callers never have to reconcile a stale extraction
// against a new one.
func (b *Builder) UpdateDocument(ctx context.Context, doc Document) (Result, error) {
	if doc.ID != "" {
		if _, err := b.store.DeleteEntity(ctx, doc.ID); err != nil {
			return Result{DocumentID: doc.ID}, fmt.Errorf("builder: delete prior document %q: %w", doc.ID, err)
		}
	}
	return b.BuildFromDocument(ctx, doc)
}

// BuildBatch ingests every document in docs independently: one document's
// failure is recorded in its own BatchResult and does not abort the rest.
func (b *Builder) BuildBatch(ctx context.Context, docs []Document) []BatchResult {
	results := make([]BatchResult, 0, len(docs))
	for _, doc := range docs {
		res, err := b.BuildFromDocument(ctx, doc)
		if err != nil {
			results = append(results, BatchResult{DocumentID: res.DocumentID, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, BatchResult{DocumentID: res.DocumentID, Success: true})
	}
	return results
}

func withDefault(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
