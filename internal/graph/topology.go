package graph

import (
	"math"
	"sort"

	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// Edge is a directed coupling from Source to Target. The target receives the
// source's previous-round tension scaled by CouplingWeight.
type Edge struct {
	Source         string  `koanf:"source" yaml:"source" json:"source"`
	Target         string  `koanf:"target" yaml:"target" json:"target"`
	CouplingWeight float64 `koanf:"coupling_weight" yaml:"coupling_weight" json:"coupling_weight"`
}

// Topology is the node/edge structure of a propagation graph. It holds ids
// only; engines live in the Graph.
type Topology struct {
	nodes    map[string]bool
	outgoing map[string][]Edge // source -> edges
	incoming map[string][]Edge // target -> edges
}

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{
		nodes:    make(map[string]bool),
		outgoing: make(map[string][]Edge),
		incoming: make(map[string][]Edge),
	}
}

// AddNode adds a node. Empty and duplicate ids are rejected.
func (t *Topology) AddNode(id string) error {
	if id == "" {
		return &core.TopologyError{Reason: "node id must not be empty"}
	}
	if t.nodes[id] {
		return &core.TopologyError{NodeID: id, Reason: "duplicate node id"}
	}
	t.nodes[id] = true
	t.outgoing[id] = []Edge{}
	t.incoming[id] = []Edge{}
	return nil
}

// AddEdge adds a directed edge. Both endpoints must exist, self-loops and
// duplicate edges are rejected, and the weight must lie in [0, 1].
func (t *Topology) AddEdge(e Edge) error {
	if !t.nodes[e.Source] {
		return &core.TopologyError{Source: e.Source, Target: e.Target, Reason: "unknown source node"}
	}
	if !t.nodes[e.Target] {
		return &core.TopologyError{Source: e.Source, Target: e.Target, Reason: "unknown target node"}
	}
	if e.Source == e.Target {
		return &core.TopologyError{Source: e.Source, Target: e.Target, Reason: "self-loop"}
	}
	if math.IsNaN(e.CouplingWeight) || e.CouplingWeight < 0 || e.CouplingWeight > 1 {
		return &core.TopologyError{Source: e.Source, Target: e.Target, Reason: "coupling_weight must be in [0, 1]"}
	}
	for _, existing := range t.outgoing[e.Source] {
		if existing.Target == e.Target {
			return &core.TopologyError{Source: e.Source, Target: e.Target, Reason: "duplicate edge"}
		}
	}

	t.outgoing[e.Source] = append(t.outgoing[e.Source], e)
	t.incoming[e.Target] = append(t.incoming[e.Target], e)
	return nil
}

// Has reports whether id is a node.
func (t *Topology) Has(id string) bool {
	return t.nodes[id]
}

// NodeIDs returns every node id in sorted order.
func (t *Topology) NodeIDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Incoming returns the edges that target id.
func (t *Topology) Incoming(id string) []Edge {
	return append([]Edge(nil), t.incoming[id]...)
}

// Outgoing returns the edges that leave id.
func (t *Topology) Outgoing(id string) []Edge {
	return append([]Edge(nil), t.outgoing[id]...)
}

// Neighbors returns the ids connected to id in either direction, sorted.
func (t *Topology) Neighbors(id string) []string {
	seen := make(map[string]bool)
	for _, e := range t.outgoing[id] {
		seen[e.Target] = true
	}
	for _, e := range t.incoming[id] {
		seen[e.Source] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Connected reports whether an edge joins a and b in either direction.
func (t *Topology) Connected(a, b string) bool {
	for _, e := range t.outgoing[a] {
		if e.Target == b {
			return true
		}
	}
	for _, e := range t.outgoing[b] {
		if e.Target == a {
			return true
		}
	}
	return false
}

// NodeCount returns the number of nodes.
func (t *Topology) NodeCount() int {
	return len(t.nodes)
}

// EdgeCount returns the number of edges.
func (t *Topology) EdgeCount() int {
	count := 0
	for _, edges := range t.outgoing {
		count += len(edges)
	}
	return count
}

// FeedbackLoop returns true if coupling can flow from a node back to itself,
// along with one such loop. Zero-weight edges carry no signal and are ignored.
func (t *Topology) FeedbackLoop() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var loop []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, e := range t.outgoing[id] {
			if e.CouplingWeight == 0 {
				continue
			}
			next := e.Target
			if !visited[next] {
				path[next] = id
				if dfs(next) {
					return true
				}
			} else if recStack[next] {
				loop = []string{next}
				for curr := id; curr != next; curr = path[curr] {
					loop = append([]string{curr}, loop...)
				}
				loop = append([]string{next}, loop...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range t.NodeIDs() {
		if !visited[id] {
			if dfs(id) {
				return true, loop
			}
		}
	}
	return false, nil
}

// Downstream returns the given nodes plus every node their coupling can
// reach over non-zero edges, sorted.
func (t *Topology) Downstream(ids []string) []string {
	reached := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if reached[id] {
			return
		}
		reached[id] = true
		for _, e := range t.outgoing[id] {
			if e.CouplingWeight > 0 {
				mark(e.Target)
			}
		}
	}

	for _, id := range ids {
		if t.nodes[id] {
			mark(id)
		}
	}

	out := make([]string, 0, len(reached))
	for id := range reached {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Isolated returns the nodes whose every incident edge has zero weight.
// Their trajectories match a standalone engine fed the same stimuli.
func (t *Topology) Isolated() []string {
	var out []string
	for _, id := range t.NodeIDs() {
		coupled := false
		for _, e := range t.incoming[id] {
			if e.CouplingWeight > 0 {
				coupled = true
				break
			}
		}
		if !coupled {
			for _, e := range t.outgoing[id] {
				if e.CouplingWeight > 0 {
					coupled = true
					break
				}
			}
		}
		if !coupled {
			out = append(out, id)
		}
	}
	return out
}
