package lsm

import "sort"

// graphEdge aggregates every queued payment from one agent to another.
type graphEdge struct {
	To     string
	Amount int64
	TxIDs  []string
}

// graph is the deterministic directed snapshot described in §4.4: vertices
// are agent ids sorted lexicographically, edges are aggregated outstanding
// Queue 2 debts. Rebuilt fresh on every multilateral pass — unlike the
// bilateral pair index, the spec allows (requires) this to be a snapshot.
type graph struct {
	vertices []string
	adj      map[string][]graphEdge // sorted by To
}

func buildGraph(edgesBySenderReceiver map[string]map[string]*graphEdge) *graph {
	g := &graph{adj: make(map[string][]graphEdge)}
	seen := make(map[string]bool)
	for sender, byReceiver := range edgesBySenderReceiver {
		seen[sender] = true
		for receiver, e := range byReceiver {
			seen[receiver] = true
			g.adj[sender] = append(g.adj[sender], *e)
		}
	}
	for v := range seen {
		g.vertices = append(g.vertices, v)
	}
	sort.Strings(g.vertices)
	for v := range g.adj {
		sort.Slice(g.adj[v], func(i, j int) bool { return g.adj[v][i].To < g.adj[v][j].To })
	}
	return g
}

// tarjanSCC returns the graph's strongly connected components, each as a
// sorted slice of agent ids, restricted to components of size >= 2 (the
// only ones that can contain a cycle).
func (g *graph) tarjanSCC() [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.adj[v] {
			w := e.To
			if _, visited := indices[w]; !visited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) >= 2 {
				sort.Strings(scc)
				sccs = append(sccs, scc)
			}
		}
	}

	for _, v := range g.vertices {
		if _, visited := indices[v]; !visited {
			strongconnect(v)
		}
	}
	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}

// findCycle searches scc (restricted to its induced edges) for the
// lexicographically-earliest simple cycle of length in [3, maxLen] that
// passes through the smallest vertex in the component, so the result is
// deterministic. Cycles that avoid that vertex are not searched; returns nil
// if no qualifying cycle passes through it.
func (g *graph) findCycle(scc []string, maxLen int) []string {
	inSCC := make(map[string]bool, len(scc))
	for _, v := range scc {
		inSCC[v] = true
	}

	start := scc[0]
	var path []string
	onPath := make(map[string]bool)

	var dfs func(v string) []string
	dfs = func(v string) []string {
		path = append(path, v)
		onPath[v] = true
		defer func() {
			path = path[:len(path)-1]
			onPath[v] = false
		}()

		for _, e := range g.adj[v] {
			w := e.To
			if !inSCC[w] {
				continue
			}
			if w == start && len(path) >= 3 {
				found := make([]string, len(path))
				copy(found, path)
				return found
			}
			if onPath[w] || len(path) >= maxLen {
				continue
			}
			if found := dfs(w); found != nil {
				return found
			}
		}
		return nil
	}

	return dfs(start)
}

// cycleEdges returns, for each consecutive pair in cycle (wrapping around),
// the full aggregated edge between them.
func (g *graph) cycleEdges(cycle []string) []graphEdge {
	edges := make([]graphEdge, 0, len(cycle))
	for i, from := range cycle {
		to := cycle[(i+1)%len(cycle)]
		for _, e := range g.adj[from] {
			if e.To == to {
				edges = append(edges, e)
				break
			}
		}
	}
	return edges
}
