package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/smlht2005/care-rag-api/internal/generator"
	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

// stubGenerator returns a fixed response (or error) regardless of request,
// for deterministic extraction tests.
type stubGenerator struct {
	response string
	err      error
}

func (g *stubGenerator) Name() string { return "stub-test" }
func (g *stubGenerator) Generate(context.Context, generator.Request) (string, error) {
	return g.response, g.err
}
func (g *stubGenerator) GenerateStream(context.Context, generator.Request) (<-chan generator.Chunk, error) {
	return nil, errors.New("not implemented")
}

func TestExtractEntities_ParsesFencedJSON(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: "```json\n[{\"name\": \"Jane Doe\", \"type\": \"Person\", \"properties\": {\"role\": \"physician\"}}]\n```"}
	x := New(gen)

	entities, err := x.ExtractEntities(context.Background(), "Jane Doe is a physician.", nil)
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(entities))
	}
	if entities[0].Name != "Jane Doe" || entities[0].Type != "Person" {
		t.Errorf("entity = %+v, want name=Jane Doe type=Person", entities[0])
	}
}

func TestExtractEntities_FallsBackOnGeneratorError(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("upstream unavailable")}
	x := New(gen)

	entities, err := x.ExtractEntities(context.Background(), "張三是醫生", nil)
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if len(entities) == 0 {
		t.Fatal("expected rule-based fallback to produce at least one entity")
	}
	for _, e := range entities {
		if e.Properties["extracted_by"] != "rule_based" {
			t.Errorf("entity %+v not marked extracted_by=rule_based", e)
		}
	}
}

func TestExtractEntities_FallsBackOnEmptyLLMResult(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: "I cannot find any entities."}
	x := New(gen)

	entities, err := x.ExtractEntities(context.Background(), "Taipei City Hospital", nil)
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if len(entities) == 0 {
		t.Fatal("expected rule-based fallback when LLM response has no parseable JSON")
	}
}

func TestExtractEntities_FallsBackOnTruncatedJSON(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: `[{"name": "A", "type": "Concept"`}
	x := New(gen)

	entities, err := x.ExtractEntities(context.Background(), "AAA Organization", nil)
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	for _, e := range entities {
		if e.Properties["extracted_by"] != "rule_based" {
			t.Fatal("truncated JSON (bracket mismatch) must trigger rule-based fallback")
		}
	}
}

func TestExtractRelations_FuzzyMatchesEntityNames(t *testing.T) {
	t.Parallel()

	entities := []graphstore.Entity{
		newEntity("Person", "Jane Doe", nil),
		newEntity("Organization", "City Hospital", nil),
	}
	gen := &stubGenerator{response: `[{"source": "Jane", "target": "City Hospital", "type": "WORKS_AT", "properties": {}}]`}
	x := New(gen)

	relations, err := x.ExtractRelations(context.Background(), "Jane works at City Hospital.", entities)
	if err != nil {
		t.Fatalf("ExtractRelations: %v", err)
	}
	if len(relations) != 1 {
		t.Fatalf("got %d relations, want 1", len(relations))
	}
	if relations[0].Type != "WORKS_AT" {
		t.Errorf("relation type = %q, want WORKS_AT", relations[0].Type)
	}
}

func TestExtractRelations_FewerThanTwoEntitiesShortCircuits(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: "should never be called"}
	x := New(gen)

	relations, err := x.ExtractRelations(context.Background(), "text", []graphstore.Entity{newEntity("Person", "Solo", nil)})
	if err != nil {
		t.Fatalf("ExtractRelations: %v", err)
	}
	if relations != nil {
		t.Errorf("got %v, want nil for fewer than two entities", relations)
	}
}

func TestRuleBasedRelationExtraction_CoOccurrenceFallback(t *testing.T) {
	t.Parallel()

	entities := []graphstore.Entity{
		newEntity("Person", "Alice", nil),
		newEntity("Person", "Bob", nil),
	}
	relations := ruleBasedRelationExtraction("Alice and Bob met at the office today for a long discussion.", entities)

	if len(relations) == 0 {
		t.Fatal("expected at least one co-occurrence relation")
	}
	for _, r := range relations {
		if r.Type != "RELATED_TO" || r.Weight != 0.3 {
			t.Errorf("co-occurrence relation = %+v, want type=RELATED_TO weight=0.3", r)
		}
	}
}

func TestRuleBasedEntityExtraction_ClassifiesLongSuffixedNames(t *testing.T) {
	t.Parallel()

	// 中央健康保險局政策 is 9 Han characters, past chinesePattern's {2,6}
	// bound — it must still classify as Policy via its own unbounded regex
	// rather than being cut down to a shorter, wrongly-typed Concept match.
	entities := ruleBasedEntityExtraction("中央健康保險局政策於今年實施。")

	var found *graphstore.Entity
	for i := range entities {
		if entities[i].Name == "中央健康保險局政策" {
			found = &entities[i]
		}
	}
	if found == nil {
		t.Fatalf("entities = %+v, want an entity named 中央健康保險局政策", entities)
	}
	if found.Type != "Policy" {
		t.Errorf("entity type = %q, want Policy", found.Type)
	}
}

func TestDeduplicateEntities_MergesByNameAndType(t *testing.T) {
	t.Parallel()

	entities := []graphstore.Entity{
		newEntity("Person", "Jane", map[string]any{"role": "physician"}),
		newEntity("Person", "jane", map[string]any{"department": "cardiology"}),
	}
	result := deduplicateEntities(entities)

	if len(result) != 1 {
		t.Fatalf("got %d entities, want 1 after dedup", len(result))
	}
	if result[0].Properties["role"] != "physician" || result[0].Properties["department"] != "cardiology" {
		t.Errorf("merged properties = %+v, want both role and department", result[0].Properties)
	}
}
