// Package graph composes engines into a propagation graph.
//
// Each node owns a session (engine plus analysis pipeline). Rounds follow a
// bulk-synchronous model: every node proposes its next state from the
// previous round's immutable snapshot in parallel, a barrier waits for all of
// them, and only then are the proposals committed together. Incoming coupling
// is the weighted sum of the sources' previous-round tensions, broadcast onto
// the target's stimulus. Zero-weight edges are skipped entirely, so a node
// whose edges all have zero weight evolves exactly as a standalone engine.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/glyphcore/internal/engine"
	"github.com/leapstack-labs/glyphcore/internal/glyph"
	"github.com/leapstack-labs/glyphcore/internal/session"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// DefaultEntanglementWindow is used when Config.EntanglementWindow is zero.
const DefaultEntanglementWindow = 16

// NodeSpec describes one node. A nil InitialState starts at the origin.
type NodeSpec struct {
	ID           string      `koanf:"id" yaml:"id" json:"id"`
	Seed         uint64      `koanf:"seed" yaml:"seed" json:"seed"`
	InitialState core.Vector `koanf:"initial_state" yaml:"initial_state,omitempty" json:"initial_state,omitempty"`
}

// Config holds graph configuration. Engine and session options apply to
// every node.
type Config struct {
	Params    core.EngineConfig
	Nodes     []NodeSpec
	Edges     []Edge
	Transform engine.Transform

	// EntanglementWindow is the number of trailing rounds correlated.
	EntanglementWindow int
	// Parallelism caps concurrent proposals per round. Defaults to GOMAXPROCS.
	Parallelism int

	ReclusterEvery   int
	RetirementPasses int
	GlyphPhase       bool
	GlyphSignal      glyph.Signal
	// SinkFor returns the glyph sink for a node. Optional.
	SinkFor func(nodeID string) session.GlyphSink

	Clock  func() time.Time
	Logger *slog.Logger
}

// RoundResult is the outcome of one synchronous round.
type RoundResult struct {
	Round     int                                   `json:"round"`
	Snapshots map[string]core.ConsciousnessSnapshot `json:"snapshots"`
	// Entanglement is shared by every snapshot of the round and must not be
	// modified.
	Entanglement *core.EntanglementMatrix `json:"entanglement"`
	Coherence    float64                  `json:"coherence"`
	// Recovered lists nodes whose update was rejected as numerically
	// unstable; they kept their previous state.
	Recovered []string `json:"recovered,omitempty"`
}

// Graph is a propagation graph. Step calls are serialized; node engines must
// only be driven through Step.
type Graph struct {
	topo        *Topology
	ids         []string
	sessions    map[string]*session.Session
	dim         int
	window      int
	parallelism int
	logger      *slog.Logger

	mu           sync.Mutex
	round        int
	lastTension  map[string]float64
	traces       map[string][]float64
	entanglement *core.EntanglementMatrix
	coherence    float64
}

// New validates the topology and builds one session per node. Topology
// problems yield a *core.TopologyError and invalid options a
// *core.ConfigurationError; no graph exists in either case.
func New(cfg Config) (*Graph, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	window := cfg.EntanglementWindow
	if window == 0 {
		window = DefaultEntanglementWindow
	}
	if window < 2 {
		return nil, &core.ConfigurationError{Field: "entanglement_window", Value: window, Reason: "must be >= 2"}
	}
	parallelism := cfg.Parallelism
	if parallelism < 0 {
		return nil, &core.ConfigurationError{Field: "parallelism", Value: parallelism, Reason: "must be >= 0"}
	}
	if parallelism == 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	if len(cfg.Nodes) == 0 {
		return nil, &core.TopologyError{Reason: "graph has no nodes"}
	}
	topo := NewTopology()
	for _, n := range cfg.Nodes {
		if err := topo.AddNode(n.ID); err != nil {
			return nil, err
		}
	}
	for _, e := range cfg.Edges {
		if err := topo.AddEdge(e); err != nil {
			return nil, err
		}
	}

	g := &Graph{
		topo:        topo,
		ids:         topo.NodeIDs(),
		sessions:    make(map[string]*session.Session, len(cfg.Nodes)),
		dim:         cfg.Params.Dimension,
		window:      window,
		parallelism: parallelism,
		logger:      logger,
		lastTension: make(map[string]float64, len(cfg.Nodes)),
		traces:      make(map[string][]float64, len(cfg.Nodes)),
	}

	for _, n := range cfg.Nodes {
		var sink session.GlyphSink
		if cfg.SinkFor != nil {
			sink = cfg.SinkFor(n.ID)
		}
		sess, err := session.New(session.Config{
			Params:           cfg.Params,
			Seed:             n.Seed,
			InitialState:     n.InitialState,
			Transform:        cfg.Transform,
			ReclusterEvery:   cfg.ReclusterEvery,
			RetirementPasses: cfg.RetirementPasses,
			GlyphPhase:       cfg.GlyphPhase,
			GlyphSignal:      cfg.GlyphSignal,
			Sink:             sink,
			Clock:            cfg.Clock,
			Logger:           logger.With("node", n.ID),
		})
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		g.sessions[n.ID] = sess
	}

	if loop, path := topo.FeedbackLoop(); loop {
		logger.Debug("coupling feedback loop", "path", path)
	}
	logger.Info("propagation graph ready",
		"nodes", topo.NodeCount(),
		"edges", topo.EdgeCount(),
		"isolated", len(topo.Isolated()),
		"parallelism", parallelism)

	return g, nil
}

// Step runs one synchronous round. Nodes without an entry in stimuli receive
// a zero stimulus; entries for unknown nodes yield a *core.TopologyError.
// A stimulus of the wrong dimension or a cancelled ctx aborts the round
// before anything is committed.
func (g *Graph) Step(ctx context.Context, stimuli map[string]core.Vector) (RoundResult, error) {
	for id := range stimuli {
		if !g.topo.Has(id) {
			return RoundResult{}, &core.TopologyError{NodeID: id, Reason: "stimulus for unknown node"}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	proposals := make([]engine.Proposal, len(g.ids))
	rejected := make([]error, len(g.ids))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelism)
	for i, id := range g.ids {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			p, err := g.sessions[id].Engine().Propose(g.stimulus(id, stimuli[id]))
			if err != nil {
				var numErr *core.NumericInstabilityError
				if errors.As(err, &numErr) {
					rejected[i] = err
					return nil
				}
				return fmt.Errorf("node %q: %w", id, err)
			}
			proposals[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return RoundResult{}, err
	}

	// Barrier passed. Refuse the whole round if any engine moved underneath.
	for i, id := range g.ids {
		if rejected[i] == nil && proposals[i].Step() != g.sessions[id].Engine().Step()+1 {
			return RoundResult{}, fmt.Errorf("node %q: engine advanced outside the graph", id)
		}
	}

	result := RoundResult{
		Round:     g.round + 1,
		Snapshots: make(map[string]core.ConsciousnessSnapshot, len(g.ids)),
	}
	for i, id := range g.ids {
		sess := g.sessions[id]
		var snap core.ConsciousnessSnapshot
		if rejected[i] != nil {
			sess.Engine().Recover(rejected[i])
			snap = sess.Degraded()
			result.Recovered = append(result.Recovered, id)
		} else {
			sample, err := sess.Engine().Commit(proposals[i])
			if err != nil {
				return RoundResult{}, fmt.Errorf("node %q: %w", id, err)
			}
			snap = sess.Absorb(ctx, sample)
		}
		g.lastTension[id] = snap.Tension
		g.traces[id] = appendTrace(g.traces[id], snap.Tension, g.window)
		result.Snapshots[id] = snap
	}

	g.round = result.Round
	g.entanglement = entanglement(g.ids, g.traces, g.topo)
	g.coherence = coherence(g.ids, g.traces)

	for id, snap := range result.Snapshots {
		snap.EntanglementMatrix = g.entanglement
		result.Snapshots[id] = snap
	}
	result.Entanglement = g.entanglement
	result.Coherence = g.coherence

	g.logger.Debug("round committed",
		"round", result.Round,
		"coherence", result.Coherence,
		"recovered", len(result.Recovered))

	return result, nil
}

// stimulus adds the incoming coupling to a node's own stimulus. It reads
// only the previous round's tensions.
func (g *Graph) stimulus(id string, own core.Vector) core.Vector {
	if own == nil {
		own = core.NewVector(g.dim)
	}

	coupling := 0.0
	for _, e := range g.topo.incoming[id] {
		if e.CouplingWeight == 0 {
			continue
		}
		coupling += e.CouplingWeight * g.lastTension[e.Source]
	}
	if coupling == 0 {
		return own
	}

	out := own.Clone()
	for i := range out {
		out[i] += coupling
	}
	return out
}

func appendTrace(trace []float64, v float64, window int) []float64 {
	trace = append(trace, v)
	if len(trace) > window {
		trace = append(trace[:0], trace[len(trace)-window:]...)
	}
	return trace
}

// Round returns the number of committed rounds.
func (g *Graph) Round() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.round
}

// Entanglement returns the matrix computed after the latest round, or nil
// before the first round.
func (g *Graph) Entanglement() *core.EntanglementMatrix {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entanglement
}

// Coherence returns the coherence computed after the latest round.
func (g *Graph) Coherence() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.coherence
}

// Session returns the session owned by node id.
func (g *Graph) Session(id string) (*session.Session, bool) {
	s, ok := g.sessions[id]
	return s, ok
}

// Topology returns the graph's topology. It is immutable after New.
func (g *Graph) Topology() *Topology {
	return g.topo
}

// NodeIDs returns every node id in sorted order.
func (g *Graph) NodeIDs() []string {
	return append([]string(nil), g.ids...)
}

// Incoming returns the edges that target id.
func (g *Graph) Incoming(id string) []Edge { return g.topo.Incoming(id) }

// Outgoing returns the edges that leave id.
func (g *Graph) Outgoing(id string) []Edge { return g.topo.Outgoing(id) }

// Neighbors returns the ids connected to id in either direction.
func (g *Graph) Neighbors(id string) []string { return g.topo.Neighbors(id) }

// Reach returns the other nodes that id's tension eventually couples into,
// following non-zero edges, sorted.
func (g *Graph) Reach(id string) []string {
	var out []string
	for _, d := range g.topo.Downstream([]string{id}) {
		if d != id {
			out = append(out, d)
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return g.topo.NodeCount() }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.topo.EdgeCount() }
