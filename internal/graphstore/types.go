// Package graphstore defines the property-graph data model and the Store
// contract shared by the in-memory ([memstore]) and durable single-file
// ([sqlitestore]) implementations.
//
// Entities are named, typed nodes; relations are directed, typed, weighted
// edges between them. A distinguished Document entity represents an ingested
// text unit and is connected to everything extracted from it via CONTAINS
// edges. Every operation returns a structured result — implementations never
// let a storage failure escape as a bare panic or an untranslated error type;
// callers further up the stack (the orchestrator) decide how to degrade.
//
// Implementations must be safe for concurrent use: many concurrent readers,
// a single writer at a time enforced by the backend.
package graphstore

import "time"

// Entity is a named, typed node in the property graph.
type Entity struct {
	// ID is an opaque, globally unique, immutable identifier assigned on creation.
	ID string

	// Type is a short tag such as "Person", "Organization", "Document", "Concept".
	Type string

	// Name is a human-readable label. Together with Type it forms the
	// canonical deduplication key within one extraction batch, compared
	// case-insensitively.
	Name string

	// Properties is an open, JSON-encodable mapping of additional attributes.
	Properties map[string]any

	// CreatedAt is set once, on first insertion.
	CreatedAt time.Time

	// UpdatedAt is refreshed on every upsert.
	UpdatedAt time.Time
}

// Relation is a directed, typed, weighted edge between two entities.
type Relation struct {
	// ID is an opaque identifier, unique within the store.
	ID string

	// SourceID and TargetID reference existing entities. SourceID must not
	// equal TargetID (self-loops are rejected by [Store.AddRelation]).
	SourceID string
	TargetID string

	// Type is a short tag such as "CONTAINS", "LOCATED_IN", "RELATED_TO".
	Type string

	// Properties is an open, JSON-encodable mapping of additional attributes.
	Properties map[string]any

	// Weight is a real number in [0, 1]. Default 1.0 for model-extracted and
	// synthetic CONTAINS relations; rule-based fallback extractions MUST use
	// lower weights — 0.5 for pattern matches, 0.3 for pure co-occurrence.
	Weight float64

	CreatedAt time.Time
}

// Direction selects which edges a traversal follows relative to a node.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
	DirectionBoth
)

// Snapshot is an (entities, relations) pair: every relation in Relations has
// at least one endpoint in Entities. A GetSubgraph result also carries
// boundary edges whose far endpoint lies beyond maxDepth and is therefore not
// in Entities.
type Snapshot struct {
	Entities  []Entity
	Relations []Relation
}

// Statistics reports aggregate counts over the whole graph.
type Statistics struct {
	TotalEntities  int
	TotalRelations int
	EntityTypes    map[string]int
	RelationTypes  map[string]int

	// AvgRelationsPerEntity supplements spec.md's statistics shape per
	// SPEC_FULL.md §4 ("get_statistics detail"); 0 when TotalEntities == 0.
	AvgRelationsPerEntity float64
}

// DocumentEntityType is the distinguished entity type representing an
// ingested text unit (spec.md §3 "Document").
const DocumentEntityType = "Document"

// ContainsRelationType is the relation type connecting a Document entity to
// every entity extracted from it.
const ContainsRelationType = "CONTAINS"
