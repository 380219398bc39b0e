package graphstore

import "context"

// maxPathResults bounds the result count of [Path] (spec.md §4.1).
const maxPathResults = 100

// Path implements the bounded breadth-first path enumeration from spec.md
// §4.1 "Path enumeration", expressed generically over any [Store] via its
// GetNeighbors method so that both the in-memory and durable backends share
// one algorithm instead of reimplementing BFS twice.
func Path(ctx context.Context, s Store, source, target string, maxHops int) ([][]string, error) {
	if source == target {
		return [][]string{{source}}, nil
	}

	type queued struct {
		node string
		path []string
	}

	queue := []queued{{node: source, path: []string{source}}}
	visited := map[string]bool{source: true}
	var results [][]string

	for len(queue) > 0 && len(results) < maxPathResults {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.path) > maxHops+1 {
			continue
		}

		neighbors, err := s.GetNeighbors(ctx, cur.node, "", DirectionOutgoing)
		if err != nil {
			return nil, err
		}

		for _, n := range neighbors {
			if n.ID == target {
				next := append(append([]string{}, cur.path...), n.ID)
				results = append(results, next)
				if len(results) >= maxPathResults {
					break
				}
				continue
			}
			if containsNode(cur.path, n.ID) {
				continue
			}
			if visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			next := append(append([]string{}, cur.path...), n.ID)
			queue = append(queue, queued{node: n.ID, path: next})
		}
	}

	return results, nil
}

func containsNode(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

// Subgraph implements the bounded BFS subgraph expansion from spec.md §4.1
// "Subgraph expansion", expressed generically over any [Store]. Every entity
// visited (within maxDepth hops of any seed) is included; every relation
// incident to a visited entity is included exactly once, even when it
// reaches an entity beyond maxDepth.
func Subgraph(ctx context.Context, s Store, seeds []string, maxDepth int) (Snapshot, error) {
	visited := make(map[string]Entity)
	depthOf := make(map[string]int)
	relSeen := make(map[string]bool)
	var relations []Relation

	queue := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if depthOf[seed] == 0 {
			if _, ok := visited[seed]; !ok {
				e, err := s.GetEntity(ctx, seed)
				if err != nil {
					return Snapshot{}, err
				}
				if e == nil {
					continue
				}
				visited[seed] = *e
				depthOf[seed] = 0
				queue = append(queue, seed)
			}
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		depth := depthOf[id]

		rels, err := s.GetRelationsByEntity(ctx, id, DirectionBoth)
		if err != nil {
			return Snapshot{}, err
		}
		for _, r := range rels {
			if !relSeen[r.ID] {
				relSeen[r.ID] = true
				relations = append(relations, r)
			}
		}

		if depth >= maxDepth {
			continue
		}

		neighbors, err := s.GetNeighbors(ctx, id, "", DirectionBoth)
		if err != nil {
			return Snapshot{}, err
		}
		for _, n := range neighbors {
			if _, ok := visited[n.ID]; ok {
				continue
			}
			visited[n.ID] = n
			depthOf[n.ID] = depth + 1
			queue = append(queue, n.ID)
		}
	}

	entities := make([]Entity, 0, len(visited))
	for _, e := range visited {
		entities = append(entities, e)
	}

	return Snapshot{Entities: entities, Relations: relations}, nil
}
