package pipeline

import (
	"fmt"
	"slices"
	"sort"
)

// Graph is a directed acyclic graph of step dependencies.
type Graph struct {
	nodes   map[Step]bool
	edges   map[Step][]Step // parent -> children (dependents)
	parents map[Step][]Step // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[Step]bool),
		edges:   make(map[Step][]Step),
		parents: make(map[Step][]Step),
	}
}

// AddNode adds a step to the graph.
func (g *Graph) AddNode(s Step) {
	if !g.nodes[s] {
		g.nodes[s] = true
		g.edges[s] = []Step{}
		g.parents[s] = []Step{}
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parent, child Step) error {
	if !g.nodes[parent] {
		return fmt.Errorf("parent step %q does not exist", parent)
	}
	if !g.nodes[child] {
		return fmt.Errorf("child step %q does not exist", child)
	}
	if parent == child {
		return fmt.Errorf("self-loop detected: %s", parent)
	}

	if !slices.Contains(g.edges[parent], child) {
		g.edges[parent] = append(g.edges[parent], child)
	}
	if !slices.Contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Parents returns the direct dependencies of a step.
func (g *Graph) Parents(s Step) []Step {
	return sortSteps(g.parents[s])
}

// Children returns the direct dependents of a step.
func (g *Graph) Children(s Step) []Step {
	return sortSteps(g.edges[s])
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []Step) {
	visited := make(map[Step]bool)
	recStack := make(map[Step]bool)
	path := make(map[Step]Step)

	var cyclePath []Step

	var dfs func(s Step) bool
	dfs = func(s Step) bool {
		visited[s] = true
		recStack[s] = true

		for _, child := range g.edges[s] {
			if !visited[child] {
				path[child] = s
				if dfs(child) {
					return true
				}
			} else if recStack[child] {
				cyclePath = []Step{child}
				for curr := s; curr != child; curr = path[curr] {
					cyclePath = append([]Step{curr}, cyclePath...)
				}
				cyclePath = append([]Step{child}, cyclePath...)
				return true
			}
		}

		recStack[s] = false
		return false
	}

	for _, s := range g.sortedNodes() {
		if !visited[s] && dfs(s) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns steps with dependencies before dependents.
// Ties are broken by step number.
func (g *Graph) TopologicalSort() ([]Step, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[Step]bool)
	var result []Step

	var visit func(s Step)
	visit = func(s Step) {
		if visited[s] {
			return
		}
		visited[s] = true
		for _, parent := range g.Parents(s) {
			visit(parent)
		}
		result = append(result, s)
	}

	for _, s := range g.sortedNodes() {
		visit(s)
	}
	return result, nil
}

// Upstream returns every step s transitively depends on.
func (g *Graph) Upstream(s Step) []Step {
	return g.walk(s, g.parents)
}

// Downstream returns every step that transitively depends on s.
func (g *Graph) Downstream(s Step) []Step {
	return g.walk(s, g.edges)
}

func (g *Graph) walk(s Step, next map[Step][]Step) []Step {
	seen := make(map[Step]bool)
	var mark func(Step)
	mark = func(id Step) {
		for _, n := range next[id] {
			if !seen[n] {
				seen[n] = true
				mark(n)
			}
		}
	}
	mark(s)

	out := make([]Step, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return sortSteps(out)
}

// Roots returns steps with no dependencies.
func (g *Graph) Roots() []Step {
	var roots []Step
	for s := range g.nodes {
		if len(g.parents[s]) == 0 {
			roots = append(roots, s)
		}
	}
	return sortSteps(roots)
}

func (g *Graph) sortedNodes() []Step {
	out := make([]Step, 0, len(g.nodes))
	for s := range g.nodes {
		out = append(out, s)
	}
	return sortSteps(out)
}

func sortSteps(in []Step) []Step {
	out := append([]Step(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Number() < out[j].Number()
	})
	return out
}
