// Package depgraph builds the unit dependency graph (spec.md §4.4,
// component C5) from each unit's resolved `after` edges and provides the
// start and stop orderings the Supervisor schedules against.
//
// Generalized from the teacher's ServiceDependencyGraph
// (internal/unit/dependency.go in the reference quad-ops tree), which
// wraps a dominikbraun/graph directed acyclic graph keyed by service
// name; here the vertex type is unitmodel.UnitID instead of a string,
// since the Unit Table is the arena of record and everything else
// refers to units by id (spec.md §9).
package depgraph

import (
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/unitd/unitd/internal/unitmodel"
)

func hashID(id unitmodel.UnitID) unitmodel.UnitID { return id }

// Graph is the dependency graph over "after" edges: an edge B->A means
// "A is after B", i.e. A cannot start until B has started.
type Graph struct {
	g graph.Graph[unitmodel.UnitID, unitmodel.UnitID]
}

// New creates an empty, directed, acyclic dependency graph. Acyclic()
// makes AddEdge itself reject any edge that would close a cycle,
// returning graph.ErrEdgeCreatesCycle, which callers surface as a
// ConfigError at registration time (spec.md §4.4 "Cycles ... are a fatal
// registration error").
func New() *Graph {
	return &Graph{g: graph.New(hashID, graph.Directed(), graph.Acyclic())}
}

// AddUnit ensures a vertex exists for id. Safe to call more than once.
func (d *Graph) AddUnit(id unitmodel.UnitID) error {
	err := d.g.AddVertex(id)
	if err != nil && err != graph.ErrVertexAlreadyExists {
		return fmt.Errorf("add unit %s: %w", id, err)
	}
	return nil
}

// AddAfter records that `dependent` starts only after `dependency` has
// started, i.e. adds the edge dependency -> dependent.
func (d *Graph) AddAfter(dependent, dependency unitmodel.UnitID) error {
	if err := d.AddUnit(dependent); err != nil {
		return err
	}
	if err := d.AddUnit(dependency); err != nil {
		return err
	}
	if err := d.g.AddEdge(dependency, dependent); err != nil {
		if err == graph.ErrEdgeAlreadyExists {
			return nil
		}
		return fmt.Errorf("add edge %s -> %s: %w", dependency, dependent, err)
	}
	return nil
}

// Predecessors returns the units id directly depends on (its `after` set).
func (d *Graph) Predecessors(id unitmodel.UnitID) ([]unitmodel.UnitID, error) {
	preds, err := d.g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	out := make([]unitmodel.UnitID, 0, len(preds[id]))
	for dep := range preds[id] {
		out = append(out, dep)
	}
	sortIDs(out)
	return out, nil
}

// Dependents returns the units that list id in their `after` set.
func (d *Graph) Dependents(id unitmodel.UnitID) ([]unitmodel.UnitID, error) {
	succ, err := d.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	out := make([]unitmodel.UnitID, 0, len(succ[id]))
	for dep := range succ[id] {
		out = append(out, dep)
	}
	sortIDs(out)
	return out, nil
}

// StartOrder returns a topological order over the `after` edges:
// dependencies before dependents. Ties are broken by ascending UnitID,
// matching the deterministic tie-break rule in spec.md §4.8, by sorting
// the library's result with a stable, id-ordered pass (TopologicalSort
// itself only guarantees *a* valid order, not our specific tie-break).
func (d *Graph) StartOrder() ([]unitmodel.UnitID, error) {
	order, err := graph.TopologicalSort(d.g)
	if err != nil {
		return nil, fmt.Errorf("topological sort: %w", err)
	}
	return stableDeterministic(d.g, order)
}

// StopOrder returns the reverse of StartOrder, restricted to units for
// which running(id) is true (spec.md §4.4 "reverse of start order
// restricted to currently-started units").
func (d *Graph) StopOrder(running func(unitmodel.UnitID) bool) ([]unitmodel.UnitID, error) {
	start, err := d.StartOrder()
	if err != nil {
		return nil, err
	}
	out := make([]unitmodel.UnitID, 0, len(start))
	for i := len(start) - 1; i >= 0; i-- {
		if running == nil || running(start[i]) {
			out = append(out, start[i])
		}
	}
	return out, nil
}

// RequiredBy returns the transitive closure of units that (directly or
// indirectly) come after id, used to cascade a start failure to every
// dependent (spec.md §4.4 "required_by(id) - transitive closure for
// cascading failure").
func (d *Graph) RequiredBy(id unitmodel.UnitID) ([]unitmodel.UnitID, error) {
	succ, err := d.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	seen := map[unitmodel.UnitID]bool{id: true}
	queue := []unitmodel.UnitID{id}
	var out []unitmodel.UnitID
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range succ[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	sortIDs(out)
	return out, nil
}

func sortIDs(ids []unitmodel.UnitID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// stableDeterministic re-groups a topological order into deterministic
// rounds: within each "rank" of units whose predecessors are already
// placed, sort ascending by id before appending. graph.TopologicalSort
// doesn't promise this on its own, and spec.md §4.8 requires it for
// reproducible tests.
func stableDeterministic(g graph.Graph[unitmodel.UnitID, unitmodel.UnitID], order []unitmodel.UnitID) ([]unitmodel.UnitID, error) {
	preds, err := g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	placed := make(map[unitmodel.UnitID]bool, len(order))
	remaining := make(map[unitmodel.UnitID]bool, len(order))
	for _, id := range order {
		remaining[id] = true
	}

	out := make([]unitmodel.UnitID, 0, len(order))
	for len(remaining) > 0 {
		var ready []unitmodel.UnitID
		for id := range remaining {
			allPlaced := true
			for dep := range preds[id] {
				if !placed[dep] {
					allPlaced = false
					break
				}
			}
			if allPlaced {
				ready = append(ready, id)
			}
		}
		sortIDs(ready)
		for _, id := range ready {
			out = append(out, id)
			placed[id] = true
			delete(remaining, id)
		}
	}
	return out, nil
}
