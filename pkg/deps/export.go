package deps

import "sort"

// GraphJSON is a flat, cycle-safe serialization of a dependency graph.
// Nodes are keyed by their display label; edges reference targets by label.
type GraphJSON struct {
	Root  string     `json:"root"`
	Nodes []NodeJSON `json:"nodes"`
	Edges []EdgeJSON `json:"edges"`
}

type NodeJSON struct {
	ID       string `json:"id"` // e.g. "requests[socks]==2.28.1"
	Name     string `json:"name"`
	Version  string `json:"version"`
	Extra    string `json:"extra,omitempty"`
	HasSdist bool   `json:"has_sdist"`
	HasBdist bool   `json:"has_bdist"`
}

type EdgeJSON struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Constraints string `json:"constraints,omitempty"`
	Markers     string `json:"markers,omitempty"`
}

// Export flattens the graph rooted at root. The node pointer graph can
// contain cycles, so traversal tracks visited nodes; output ordering is
// stable (nodes sorted by ID, edges by from/to).
func Export(root *DepNode) *GraphJSON {
	g := &GraphJSON{Root: root.Label()}
	seen := make(map[*DepNode]bool)

	var visit func(n *DepNode)
	visit = func(n *DepNode) {
		if seen[n] {
			return
		}
		seen[n] = true
		g.Nodes = append(g.Nodes, NodeJSON{
			ID:       n.Label(),
			Name:     n.Name,
			Version:  n.Version,
			Extra:    n.Extra,
			HasSdist: n.HasSdist,
			HasBdist: n.HasBdist,
		})
		for _, e := range n.Deps {
			g.Edges = append(g.Edges, EdgeJSON{
				From:        n.Label(),
				To:          e.Target.Label(),
				Constraints: e.Constraints,
				Markers:     e.Markers,
			})
			visit(e.Target)
		}
	}
	visit(root)

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}
