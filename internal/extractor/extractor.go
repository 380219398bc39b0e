// Package extractor implements entity and relation extraction from raw text
// (spec.md §4.2, component C2): an LLM-backed structured-output pass with a
// deterministic rule-based fallback when the LLM response can't be parsed
// or comes back empty.
//
// Grounded on original_source/app/core/entity_extractor.py, read in full:
// the prompt shapes, the three-tier JSON-extraction strategy, the fuzzy
// entity-name matching for relation endpoints, and the rule-based fallback
// patterns are all carried over in behavior. The original's
// ".cursor/debug.log" agent-debugging side channel is dropped entirely —
// that was scaffolding from the AI coding session that produced the
// original, not product behavior.
package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

// defaultEntityTypes is offered to the LLM when the caller does not
// restrict extraction to a specific set.
var defaultEntityTypes = []string{"Person", "Document", "Concept", "Location", "Organization", "Event"}

// entityExtractionMaxTokens and relationExtractionMaxTokens bound the
// Generator call for each extraction phase; extraction prompts are
// self-contained and need far less budget than a full RAG answer.
const (
	entityExtractionMaxTokens   = 1024
	relationExtractionMaxTokens = 1024
)

// Extractor turns raw text into entities and relations, ready to be
// persisted through a graphstore.Store by internal/builder.
type Extractor struct {
	gen generator.Generator
}

// New returns an Extractor backed by gen.
func New(gen generator.Generator) *Extractor {
	return &Extractor{gen: gen}
}

// ExtractEntities extracts entities from text, restricting to entityTypes
// when non-empty. It deduplicates by (name, type) and falls back to
// rule-based extraction when the LLM returns nothing usable.
func (x *Extractor) ExtractEntities(ctx context.Context, text string, entityTypes []string) ([]graphstore.Entity, error) {
	prompt := buildEntityExtractionPrompt(text, entityTypes)

	resp, err := x.gen.Generate(ctx, generator.Request{Prompt: prompt, MaxTokens: entityExtractionMaxTokens})
	if err != nil {
		return ruleBasedEntityExtraction(text), nil
	}

	entities := parseEntityResponse(resp)
	entities = deduplicateEntities(entities)

	if len(entities) == 0 {
		return ruleBasedEntityExtraction(text), nil
	}
	return entities, nil
}

// ExtractRelations extracts relations among the given entities from text,
// falling back to rule-based keyword and co-occurrence extraction when the
// LLM response can't be parsed into any relations.
func (x *Extractor) ExtractRelations(ctx context.Context, text string, entities []graphstore.Entity) ([]graphstore.Relation, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	prompt := buildRelationExtractionPrompt(text, entities)

	resp, err := x.gen.Generate(ctx, generator.Request{Prompt: prompt, MaxTokens: relationExtractionMaxTokens})
	if err != nil {
		return ruleBasedRelationExtraction(text, entities), nil
	}

	relations := parseRelationResponse(resp, entities)
	if len(relations) == 0 {
		return ruleBasedRelationExtraction(text, entities), nil
	}
	return relations, nil
}

func buildEntityExtractionPrompt(text string, entityTypes []string) string {
	types := defaultEntityTypes
	if len(entityTypes) > 0 {
		types = entityTypes
	}

	return fmt.Sprintf(`Extract every entity from the text below and return it as a JSON array.

Entity types: %s

Text:
%s

Return a JSON array where each entity has:
- name: the entity's name
- type: one of the entity types above
- properties: any other attributes, as an object

Example response:
[
  {"name": "Jane Doe", "type": "Person", "properties": {"role": "physician"}},
  {"name": "City Hospital", "type": "Organization", "properties": {"location": "Taipei"}}
]

Return only the JSON, nothing else:`, strings.Join(types, ", "), text)
}

func buildRelationExtractionPrompt(text string, entities []graphstore.Entity) string {
	var lines []string
	for _, e := range entities {
		lines = append(lines, fmt.Sprintf("- %s (%s)", e.Name, e.Type))
	}

	return fmt.Sprintf(`Extract relations between the identified entities in the text below, and return them as a JSON array.

Identified entities:
%s

Text:
%s

Return a JSON array where each relation has:
- source: the source entity's name
- target: the target entity's name
- type: a relation type (e.g. CONTAINS, RELATED_TO, MENTIONS, AUTHORED_BY, LOCATED_IN, PART_OF)
- properties: any other attributes, as an object

Example response:
[
  {"source": "Jane Doe", "target": "City Hospital", "type": "WORKS_AT", "properties": {"position": "physician"}},
  {"source": "Document", "target": "Jane Doe", "type": "AUTHORED_BY", "properties": {}}
]

Return only the JSON, nothing else:`, strings.Join(lines, "\n"), text)
}

func newEntity(entityType, name string, properties map[string]any) graphstore.Entity {
	if properties == nil {
		properties = map[string]any{}
	}
	now := time.Now()
	return graphstore.Entity{
		ID:         uuid.NewString(),
		Type:       entityType,
		Name:       name,
		Properties: properties,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newRelation(sourceID, targetID, relType string, weight float64, properties map[string]any) graphstore.Relation {
	if properties == nil {
		properties = map[string]any{}
	}
	return graphstore.Relation{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Properties: properties,
		Weight:     weight,
		CreatedAt:  time.Now(),
	}
}

// deduplicateEntities merges entities sharing a case-insensitive
// (name, type) key, last-write-wins on conflicting property values —
// matching original_source/app/core/entity_extractor.py::_deduplicate_entities.
func deduplicateEntities(entities []graphstore.Entity) []graphstore.Entity {
	type key struct {
		name string
		typ  string
	}
	seen := make(map[key]int) // index into result
	var result []graphstore.Entity

	for _, e := range entities {
		k := key{name: strings.ToLower(e.Name), typ: e.Type}
		if idx, ok := seen[k]; ok {
			for pk, pv := range e.Properties {
				result[idx].Properties[pk] = pv
			}
			continue
		}
		seen[k] = len(result)
		result = append(result, e)
	}
	return result
}
