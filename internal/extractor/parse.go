package extractor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

// jsonArrayPatterns tries, in order, to locate a JSON array inside a model
// response: a fenced ```json block, a bare fenced code block, then a greedy
// scan for the outermost [ ... ]. Ported from
// original_source/app/core/entity_extractor.py's json_patterns list.
var jsonArrayPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(\\[.*\\])\\s*```"),
	regexp.MustCompile("(?s)```\\s*(\\[.*\\])\\s*```"),
	regexp.MustCompile(`(?s)(\[.*\])`),
}

// extractJSONArray finds a JSON array substring within response. It returns
// ok=false when nothing resembling a JSON array could be located, or when
// the candidate's bracket counts don't balance (a truncated response) — the
// same "bail out and let the caller fall back" behavior as the original.
func extractJSONArray(response string) (jsonStr string, ok bool) {
	for _, re := range jsonArrayPatterns {
		if m := re.FindStringSubmatch(response); m != nil {
			jsonStr = strings.TrimSpace(m[1])
			ok = true
			break
		}
	}

	if !ok {
		trimmed := strings.TrimSpace(response)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			jsonStr = trimmed
			ok = true
		} else if start, end := strings.Index(response, "["), strings.LastIndex(response, "]"); start != -1 && end > start {
			jsonStr = response[start : end+1]
			ok = true
		}
	}

	if !ok {
		return "", false
	}

	if strings.Count(jsonStr, "[") != strings.Count(jsonStr, "]") {
		return "", false
	}
	return jsonStr, true
}

type rawEntity struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// parseEntityResponse parses a structured entity-extraction response. It
// returns an empty slice (not an error) on any parse failure, a discriminant
// the caller uses to decide whether to fall back to rule-based extraction —
// matching the original's "return empty list, triggers fallback" discipline
// rather than treating a malformed LLM response as an exceptional condition.
func parseEntityResponse(response string) []graphstore.Entity {
	jsonStr, ok := extractJSONArray(response)
	if !ok {
		return nil
	}

	var items []rawEntity
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		return nil
	}

	var entities []graphstore.Entity
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		typ := item.Type
		if typ == "" {
			typ = "Concept"
		}
		entities = append(entities, newEntity(typ, item.Name, item.Properties))
	}
	return entities
}

type rawRelation struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// parseRelationResponse parses a structured relation-extraction response
// against the already-extracted entities, resolving each relation's source
// and target names to entity IDs. Exact name matches are tried first; when
// that fails, a fuzzy substring-both-ways match is attempted (the model
// frequently echoes a slightly different surface form of an entity name) —
// ported from _parse_relation_response's fuzzy-match fallback.
func parseRelationResponse(response string, entities []graphstore.Entity) []graphstore.Relation {
	if len(entities) == 0 {
		return nil
	}

	jsonStr, ok := extractJSONArray(response)
	if !ok {
		return nil
	}

	var items []rawRelation
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		return nil
	}

	byName := make(map[string]graphstore.Entity, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}

	var relations []graphstore.Relation
	for _, item := range items {
		if item.Source == "" || item.Target == "" {
			continue
		}
		src, ok := resolveEntity(byName, entities, item.Source)
		if !ok {
			continue
		}
		tgt, ok := resolveEntity(byName, entities, item.Target)
		if !ok {
			continue
		}
		if src.ID == tgt.ID {
			continue
		}

		typ := item.Type
		if typ == "" {
			typ = "RELATED_TO"
		}
		relations = append(relations, newRelation(src.ID, tgt.ID, typ, 1.0, item.Properties))
	}
	return relations
}

// resolveEntity finds the entity named name, exact match first, falling
// back to a substring match in either direction — the longest-matching
// candidate wins ties, since a longer shared substring is a stronger
// signal that the model meant that specific entity.
func resolveEntity(byName map[string]graphstore.Entity, entities []graphstore.Entity, name string) (graphstore.Entity, bool) {
	if e, ok := byName[name]; ok {
		return e, true
	}

	var best graphstore.Entity
	bestLen := -1
	found := false
	for _, e := range entities {
		if strings.Contains(name, e.Name) || strings.Contains(e.Name, name) {
			if len(e.Name) > bestLen {
				best, bestLen, found = e, len(e.Name), true
			}
		}
	}
	return best, found
}
