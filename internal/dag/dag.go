package dag

import (
	"fmt"
	"slices"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]int),
		dependents: make(map[string]int),
	}
	g.order = append(g.order, id)
}

// RemoveNode deletes id and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for depID := range n.deps {
		delete(g.nodes[depID].dependents, id)
	}
	for childID := range n.dependents {
		delete(g.nodes[childID].deps, id)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(s string) bool { return s == id })
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. Repeated calls
// add parallel edges. An error is returned if either node does not exist or
// if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID]++
	fromNode.dependents[toID]++

	return nil
}

// RemoveEdge drops one edge from `fromID` to `toID`. Removing an edge that
// does not exist is an error.
func (g *Graph) RemoveEdge(fromID, toID string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}
	if fromNode.dependents[toID] == 0 {
		return fmt.Errorf("edge not found: %s -> %s", fromID, toID)
	}

	fromNode.dependents[toID]--
	if fromNode.dependents[toID] == 0 {
		delete(fromNode.dependents, toID)
	}
	toNode.deps[fromID]--
	if toNode.deps[fromID] == 0 {
		delete(toNode.deps, fromID)
	}
	return nil
}

func (g *Graph) orderedLocked(set map[string]int) []string {
	out := make([]string, 0, len(set))
	for _, id := range g.order {
		if set[id] > 0 {
			out = append(out, id)
		}
	}
	return out
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.detectCyclesLocked()
}

func (g *Graph) detectCyclesLocked() error {
	// Use classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving node '%s'", n.id)
		}

		temporary[n.id] = true

		for _, childID := range g.orderedLocked(n.dependents) {
			if err := visit(g.nodes[childID]); err != nil {
				return err
			}
		}

		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}

	return nil
}

// TopologicalSort returns every node so that each one precedes all of its
// dependents. Ties are broken by insertion order, so the result is stable
// for a given sequence of graph edits.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if err := g.detectCyclesLocked(); err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.nodes[id].deps)
	}

	sorted := make([]string, 0, len(g.order))
	placed := make(map[string]bool, len(g.order))
	for len(sorted) < len(g.order) {
		progress := false
		for _, id := range g.order {
			if placed[id] || indegree[id] > 0 {
				continue
			}
			placed[id] = true
			sorted = append(sorted, id)
			for childID := range g.nodes[id].dependents {
				indegree[childID]--
			}
			progress = true
			break
		}
		if !progress {
			// Only reachable with corrupt edge counts.
			return nil, fmt.Errorf("cycle detected among %d unsorted nodes", len(g.order)-len(sorted))
		}
	}
	return sorted, nil
}
