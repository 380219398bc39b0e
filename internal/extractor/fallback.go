package extractor

import (
	"regexp"
	"strings"

	"github.com/smlht2005/care-rag-api/internal/graphstore"
)

// maxRuleBasedEntities bounds rule-based extraction's output, ported
// verbatim from the original's entities[:50] truncation.
const maxRuleBasedEntities = 50

var chinesePattern = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,6}`)

// suffixPatterns maps a Han-character suffix to the entity type it implies
// and a regex that matches any unbounded run of Han characters ending in
// that suffix. Ported from the original's patterns list (政策→Policy,
// 制度→System, 服務→Service, ...), each compiled as its own independent
// regex over the full text rather than reusing chinesePattern's {2,6}-bounded
// matches — an entity name longer than 6 Han characters (e.g. a 9-character
// agency name ending in 政策) still needs to classify correctly.
var suffixPatterns = []struct {
	suffix string
	typ    string
	re     *regexp.Regexp
}{
	{"政策", "Policy", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+政策`)},
	{"制度", "System", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+制度`)},
	{"服務", "Service", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+服務`)},
	{"計畫", "Plan", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+計畫`)},
	{"方案", "Program", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+方案`)},
	{"機構", "Organization", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+機構`)},
	{"單位", "Organization", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+單位`)},
	{"部門", "Organization", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+部門`)},
	{"人員", "Person", regexp.MustCompile(`[\x{4e00}-\x{9fff}]+人員`)},
}

var latinCapitalizedPattern = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// ruleBasedEntityExtraction is the deterministic fallback used when LLM
// entity extraction is unavailable or returns nothing usable. Ported from
// original_source/app/core/entity_extractor.py::_rule_based_entity_extraction.
func ruleBasedEntityExtraction(text string) []graphstore.Entity {
	var entities []graphstore.Entity
	seen := make(map[string]bool)

	for _, match := range chinesePattern.FindAllString(text, -1) {
		if seen[match] {
			continue
		}
		seen[match] = true
		entities = append(entities, newEntity("Concept", match, map[string]any{
			"extracted_by": "rule_based",
			"language":     "chinese",
		}))
	}

	for _, sp := range suffixPatterns {
		for _, match := range sp.re.FindAllString(text, -1) {
			if seen[match] {
				continue
			}
			seen[match] = true
			entities = append(entities, newEntity(sp.typ, match, map[string]any{
				"extracted_by": "rule_based",
				"pattern":      sp.suffix,
			}))
		}
	}

	latinSeen := make(map[string]bool)
	for _, match := range latinCapitalizedPattern.FindAllString(text, -1) {
		if latinSeen[match] || seen[match] || len(match) <= 2 {
			continue
		}
		latinSeen[match] = true
		seen[match] = true
		entities = append(entities, newEntity("Concept", match, map[string]any{
			"extracted_by": "rule_based",
			"language":     "english",
		}))
	}

	if len(entities) > maxRuleBasedEntities {
		entities = entities[:maxRuleBasedEntities]
	}
	return entities
}

// relationPattern pairs a keyword regex (capturing source/target groups)
// with the relation type it implies. Ported from the original's Chinese and
// English pattern tables.
type relationPattern struct {
	re  *regexp.Regexp
	typ string
}

var relationPatterns = []relationPattern{
	{regexp.MustCompile(`([^，。\n、]+)在([^，。\n、]+)`), "LOCATED_IN"},
	{regexp.MustCompile(`([^，。\n、]+)屬於([^，。\n、]+)`), "BELONGS_TO"},
	{regexp.MustCompile(`([^，。\n、]+)是([^，。\n、]+)`), "IS_A"},
	{regexp.MustCompile(`([^，。\n、]+)包含([^，。\n、]+)`), "CONTAINS"},
	{regexp.MustCompile(`([^，。\n、]+)與([^，。\n、]+)相關`), "RELATED_TO"},
	{regexp.MustCompile(`([^，。\n、]+)由([^，。\n、]+)組成`), "CONSISTS_OF"},
	{regexp.MustCompile(`([^，。\n、]+)管理([^，。\n、]+)`), "MANAGES"},
	{regexp.MustCompile(`\b([A-Z][a-z]+)\s+in\s+([A-Z][a-z]+)\b`), "LOCATED_IN"},
	{regexp.MustCompile(`\b([A-Z][a-z]+)\s+belongs\s+to\s+([A-Z][a-z]+)\b`), "BELONGS_TO"},
	{regexp.MustCompile(`\b([A-Z][a-z]+)\s+is\s+a\s+([A-Z][a-z]+)\b`), "IS_A"},
	{regexp.MustCompile(`\b([A-Z][a-z]+)\s+contains\s+([A-Z][a-z]+)\b`), "CONTAINS"},
}

var sentenceSplitPattern = regexp.MustCompile(`[。！？\n]`)

// ruleBasedRelationExtraction is the deterministic fallback used when LLM
// relation extraction is unavailable or returns nothing usable: first a
// keyword-pattern pass, then — only if that finds nothing — a
// sentence-co-occurrence pass. Ported from
// original_source/app/core/entity_extractor.py::_rule_based_relation_extraction.
func ruleBasedRelationExtraction(text string, entities []graphstore.Entity) []graphstore.Relation {
	if len(entities) < 2 {
		return nil
	}

	var relations []graphstore.Relation
	seen := make(map[[3]string]bool)

	for _, rp := range relationPatterns {
		for _, m := range rp.re.FindAllStringSubmatch(text, -1) {
			sourceName := strings.TrimSpace(m[1])
			targetName := strings.TrimSpace(m[2])

			src, srcOK := fuzzyFindEntity(entities, sourceName)
			tgt, tgtOK := fuzzyFindEntity(entities, targetName)
			if !srcOK || !tgtOK || src.ID == tgt.ID {
				continue
			}

			key := [3]string{src.ID, tgt.ID, rp.typ}
			if seen[key] {
				continue
			}
			seen[key] = true
			relations = append(relations, newRelation(src.ID, tgt.ID, rp.typ, 0.5, map[string]any{
				"extracted_by": "rule_based",
				"source_text":  sourceName,
				"target_text":  targetName,
			}))
		}
	}

	if len(relations) > 0 {
		return relations
	}

	// Co-occurrence fallback: any two entities named within the same
	// sentence get a weak RELATED_TO edge.
	for _, sentence := range sentenceSplitPattern.Split(text, -1) {
		if len(strings.TrimSpace(sentence)) < 5 {
			continue
		}

		var inSentence []graphstore.Entity
		for _, e := range entities {
			if len(e.Name) > 1 && strings.Contains(sentence, e.Name) {
				inSentence = append(inSentence, e)
			}
		}
		if len(inSentence) < 2 {
			continue
		}

		for i := 0; i < len(inSentence); i++ {
			for j := i + 1; j < len(inSentence); j++ {
				src, tgt := inSentence[i], inSentence[j]
				key := [3]string{src.ID, tgt.ID, "RELATED_TO"}
				if seen[key] {
					continue
				}
				seen[key] = true

				preview := sentence
				if len(preview) > 100 {
					preview = preview[:100]
				}
				relations = append(relations, newRelation(src.ID, tgt.ID, "RELATED_TO", 0.3, map[string]any{
					"extracted_by": "rule_based",
					"method":       "co_occurrence",
					"sentence":     preview,
				}))
			}
		}
	}
	return relations
}

// fuzzyFindEntity resolves a matched text span to an entity: exact name
// match first, then a substring match in either direction.
func fuzzyFindEntity(entities []graphstore.Entity, name string) (graphstore.Entity, bool) {
	for _, e := range entities {
		if e.Name == name {
			return e, true
		}
	}
	for _, e := range entities {
		if strings.Contains(name, e.Name) || (name != "" && strings.Contains(e.Name, name)) {
			return e, true
		}
	}
	return graphstore.Entity{}, false
}
