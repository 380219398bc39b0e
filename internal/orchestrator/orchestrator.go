// Package orchestrator is the GraphRAG Orchestrator (spec.md §4.6, component
// C6): the outer cache check, retrieval delegation, concurrent graph
// enhancement, fusion of retrieval and graph sources, and the streaming
// passthrough and failure-degradation policy that ties every other
// component together for a single query.
//
// Grounded on spec.md §4.6 and original_source/app/core/orchestrator.py
// (read in full, including _enhance_with_graph's document-id-driven seed
// expansion at lines 145-201): _calculate_entity_score's exact threshold
// ladder is carried over verbatim, and graph enhancement's two independent
// sub-query batches (step 3b: entity search plus per-document CONTAINS
// expansion; step 3d: per-seed neighbor and relation fan-out) are reframed
// from the original's sequential awaits into concurrent errgroup.Group
// fan-outs, grounded on the reference codebase's internal/hotctx assembler
// pattern (outer-variable capture, reassembled in deterministic order once
// every side completes).
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smlht2005/care-rag-api/internal/apperr"
	"github.com/smlht2005/care-rag-api/internal/cache"
	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
	"github.com/smlht2005/care-rag-api/internal/observe"
	"github.com/smlht2005/care-rag-api/internal/retrieval"
	"github.com/smlht2005/care-rag-api/pkg/types"
)

// maxEntitiesConsidered and maxNeighborsPerEntity bound the graph
// enhancement fan-out (spec.md §5 resource model: bounded work per query).
const (
	maxEntitiesConsidered = 5
	maxNeighborsPerEntity = 5
)

// Result is the final, fused answer to a query.
type Result struct {
	Answer    string
	Sources   []types.Source
	FromCache bool
	// Degraded is true when graph enhancement failed but the retrieval
	// answer still made it through (spec.md §7 "Cascaded-partial" policy:
	// prefer a degraded answer to none at all).
	Degraded bool

	// GraphEntities and GraphRelations are the serialized graph context
	// attached per spec.md §4.6 step 5. Empty when graph enhancement found
	// nothing, was skipped (no vector sources to seed from), or failed.
	GraphEntities  []graphstore.Entity
	GraphRelations []graphstore.Relation

	// GraphEnhanced is true when graph enhancement produced at least one
	// pseudo-source (spec.md §4.6 step 4).
	GraphEnhanced bool
}

// Orchestrator ties the Graph Store, Retrieval Service, and Cache together
// for a single query.
type Orchestrator struct {
	store     graphstore.Store
	retrieval *retrieval.Service
	cache     *cache.Cache
	ttl       time.Duration
}

// New returns an Orchestrator.
func New(store graphstore.Store, retrievalSvc *retrieval.Service, c *cache.Cache, ttl time.Duration) *Orchestrator {
	return &Orchestrator{store: store, retrieval: retrievalSvc, cache: c, ttl: ttl}
}

// Query answers query_text, checking the outer cache first, then delegating
// to retrieval and concurrently enhancing the result with graph context.
func (o *Orchestrator) Query(ctx context.Context, queryText string, topK int) (Result, error) {
	key := cache.Fingerprint("graphrag_query", map[string]any{"query": queryText, "top_k": topK})

	if v, ok := o.cache.Get(ctx, key); ok {
		result := v.(Result)
		result.FromCache = true
		return result, nil
	}

	result, err := o.answer(ctx, queryText, topK)
	if err != nil {
		return Result{}, err
	}

	o.cache.Set(ctx, key, result, o.ttl)
	return result, nil
}

func (o *Orchestrator) answer(ctx context.Context, queryText string, topK int) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.answer")
	defer span.End()

	retrievalResult, err := o.retrieval.Query(ctx, queryText, topK)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: retrieval: %w: %w", apperr.UpstreamUnavailable, err)
	}

	graphSources, graphEntities, graphRelations, graphErr := o.enhanceWithGraph(ctx, queryText, retrievalResult.Sources)
	if graphErr != nil {
		// Graph enhancement is an enrichment step: its failure degrades the
		// result, it does not fail the whole query (spec.md §7 Cascaded-partial).
		observe.Logger(ctx).Warn("graph enhancement failed, degrading to retrieval-only result", "err", graphErr)
		return Result{
			Answer:   retrievalResult.Answer,
			Sources:  retrievalResult.Sources,
			Degraded: true,
		}, nil
	}

	fused := fuseSources(retrievalResult.Sources, graphSources, topK)
	return Result{
		Answer:         retrievalResult.Answer,
		Sources:        fused,
		GraphEntities:  graphEntities,
		GraphRelations: graphRelations,
		GraphEnhanced:  len(graphSources) > 0,
	}, nil
}

// enhanceWithGraph implements spec.md §4.6 step 3 in full.
//
//	a. Extract document ids from vectorSources; an empty list skips graph
//	   enhancement entirely (matching original_source/app/core/orchestrator.py's
//	   early return on doc_ids == []).
//	b. In parallel: semantic entity search over queryText, and, for each of
//	   the first maxEntitiesConsidered document ids, get_entity(id) plus
//	   get_neighbors(id, type=CONTAINS, direction=outgoing).
//	c. Merge every entity returned by (b) into an ordered-unique seed set,
//	   preserving first-seen order.
//	d. In parallel, for each of the first maxEntitiesConsidered seeds:
//	   get_neighbors(id, direction=both) and get_relations_by_entity(id,
//	   direction=both).
//	e. For each neighbor (first maxNeighborsPerEntity per seed) not already
//	   in the entity set: add it and emit a scored pseudo-source.
//	f. Collect every relation fetched in (d), deduplicated by id.
func (o *Orchestrator) enhanceWithGraph(ctx context.Context, queryText string, vectorSources []types.Source) ([]types.Source, []graphstore.Entity, []graphstore.Relation, error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.enhance_with_graph")
	defer span.End()

	docIDs := documentIDs(vectorSources, maxEntitiesConsidered)
	if len(docIDs) == 0 {
		return nil, nil, nil, nil
	}

	var searchResults []graphstore.Entity
	docEntities := make([][]graphstore.Entity, len(docIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		es, err := o.store.SearchEntities(gctx, queryText, maxEntitiesConsidered)
		if err != nil {
			return fmt.Errorf("search entities: %w", err)
		}
		searchResults = es
		return nil
	})
	for i, id := range docIDs {
		i, id := i, id
		g.Go(func() error {
			var found []graphstore.Entity
			docEntity, err := o.store.GetEntity(gctx, id)
			if err != nil {
				return fmt.Errorf("get document entity %q: %w", id, err)
			}
			if docEntity != nil {
				found = append(found, *docEntity)
			}
			contained, err := o.store.GetNeighbors(gctx, id, graphstore.ContainsRelationType, graphstore.DirectionOutgoing)
			if err != nil {
				return fmt.Errorf("get CONTAINS neighbors of %q: %w", id, err)
			}
			found = append(found, contained...)
			docEntities[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	merged := append([]graphstore.Entity{}, searchResults...)
	for _, found := range docEntities {
		merged = append(merged, found...)
	}
	seeds := dedupeEntitiesOrdered(merged)
	if len(seeds) == 0 {
		return nil, nil, nil, nil
	}
	if len(seeds) > maxEntitiesConsidered {
		seeds = seeds[:maxEntitiesConsidered]
	}

	neighborsBySeed := make([][]graphstore.Entity, len(seeds))
	relationsBySeed := make([][]graphstore.Relation, len(seeds))
	g2, gctx2 := errgroup.WithContext(ctx)
	for i, e := range seeds {
		i, e := i, e
		g2.Go(func() error {
			neighbors, err := o.store.GetNeighbors(gctx2, e.ID, "", graphstore.DirectionBoth)
			if err != nil {
				return fmt.Errorf("get neighbors of %q: %w", e.ID, err)
			}
			neighborsBySeed[i] = neighbors

			rels, err := o.store.GetRelationsByEntity(gctx2, e.ID, graphstore.DirectionBoth)
			if err != nil {
				return fmt.Errorf("get relations of %q: %w", e.ID, err)
			}
			relationsBySeed[i] = rels
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return nil, nil, nil, err
	}

	entitySet := make(map[string]bool, len(seeds))
	entities := make([]graphstore.Entity, 0, len(seeds))
	for _, e := range seeds {
		entitySet[e.ID] = true
		entities = append(entities, e)
	}

	var sources []types.Source
	for i := range seeds {
		neighbors := neighborsBySeed[i]
		if len(neighbors) > maxNeighborsPerEntity {
			neighbors = neighbors[:maxNeighborsPerEntity]
		}
		for _, n := range neighbors {
			if entitySet[n.ID] {
				continue
			}
			entitySet[n.ID] = true
			entities = append(entities, n)
			sources = append(sources, entityToSource(n, scoreEntity(n, queryText)))
		}
	}

	relSeen := make(map[string]bool)
	var relations []graphstore.Relation
	for _, rels := range relationsBySeed {
		for _, r := range rels {
			if relSeen[r.ID] {
				continue
			}
			relSeen[r.ID] = true
			relations = append(relations, r)
		}
	}

	return sources, entities, relations, nil
}

// documentIDs extracts up to limit non-empty source ids from sources, in
// order (spec.md §4.6 step 3a).
func documentIDs(sources []types.Source, limit int) []string {
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.ID == "" {
			continue
		}
		ids = append(ids, s.ID)
		if len(ids) >= limit {
			break
		}
	}
	return ids
}

// dedupeEntitiesOrdered removes duplicate entities by id, preserving the
// first-seen order (spec.md §4.6 step 3c).
func dedupeEntitiesOrdered(entities []graphstore.Entity) []graphstore.Entity {
	seen := make(map[string]bool, len(entities))
	out := make([]graphstore.Entity, 0, len(entities))
	for _, e := range entities {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

func entityToSource(e graphstore.Entity, score float64) types.Source {
	return types.Source{
		ID:       e.ID,
		Content:  e.Name,
		Score:    score,
		Metadata: map[string]any{"type": e.Type, "origin": "graph"},
	}
}

// scoreEntity computes a relevance score in [0, 1] for entity against
// queryText. Ported verbatim from
// original_source/app/core/orchestrator.py::_calculate_entity_score: exact
// name match scores highest, then substring containment in either
// direction, then word-overlap ratio, then type match, then property
// substring match, with 0.55 as the base score for anything that reached
// the graph at all.
func scoreEntity(e graphstore.Entity, queryText string) float64 {
	query := strings.ToLower(queryText)
	name := strings.ToLower(e.Name)
	typ := strings.ToLower(e.Type)

	if query == name {
		return 0.95
	}
	if strings.Contains(name, query) {
		return 0.85
	}
	if strings.Contains(query, name) {
		return 0.80
	}

	queryWords := wordSet(query)
	nameWords := wordSet(name)
	common := 0
	for w := range queryWords {
		if nameWords[w] {
			common++
		}
	}
	if common > 0 {
		ratio := float64(common) / float64(max(len(queryWords), 1))
		return 0.6 + ratio*0.2
	}

	if strings.Contains(query, typ) || strings.Contains(typ, query) {
		return 0.65
	}

	for _, v := range e.Properties {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), query) {
			return 0.70
		}
	}

	return 0.55
}

func wordSet(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		words[w] = true
	}
	return words
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fuseSources merges retrieval and graph sources, deduplicating by ID
// (retrieval sources win ties since they carry the actual answer context),
// sorting by descending score, and truncating to topK (spec.md §4.6 step 4).
// topK <= 0 means no truncation.
func fuseSources(retrieval, graph []types.Source, topK int) []types.Source {
	seen := make(map[string]bool, len(retrieval)+len(graph))
	fused := make([]types.Source, 0, len(retrieval)+len(graph))

	for _, s := range retrieval {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		fused = append(fused, s)
	}
	for _, s := range graph {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		fused = append(fused, s)
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// StreamQuery answers query_text via the retrieval service's streaming path,
// bypassing the cache and skipping graph enhancement — a streamed answer has
// already started flowing to the caller by the time enhancement would
// finish, so fusing it in would mean buffering the whole stream, defeating
// the point of streaming. Matches
// original_source/app/core/orchestrator.py::stream_query, which likewise
// only calls the retrieval path.
func (o *Orchestrator) StreamQuery(ctx context.Context, queryText string, topK int) (<-chan generator.Chunk, []types.Source, error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.stream_query")
	defer span.End()

	stream, sources, err := o.retrieval.Stream(ctx, queryText, topK)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: stream query: %w: %w", apperr.UpstreamUnavailable, err)
	}
	return stream, sources, nil
}
