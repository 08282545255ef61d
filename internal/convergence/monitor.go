// Package convergence decides whether an engine trajectory has settled.
package convergence

import (
	"math"

	"github.com/leapstack-labs/glyphcore/internal/vecmath"
	"github.com/leapstack-labs/glyphcore/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// History is the read side of a tension history.
type History interface {
	WindowStrict(n int) ([]core.TensionSample, error)
}

// Monitor evaluates the windowed mean tension against epsilon_threshold.
type Monitor struct {
	window    int
	epsilon   float64
	maxRadius float64
}

// New creates a monitor from the engine options.
func New(params core.EngineConfig) *Monitor {
	return &Monitor{
		window:    params.ConvergenceWindow,
		epsilon:   params.EpsilonThreshold,
		maxRadius: params.MaxAttractorRadius,
	}
}

// Window returns the number of samples a check needs.
func (m *Monitor) Window() int {
	return m.window
}

// Check computes the convergence status from the last convergence_window
// samples. When converged, the nearest attractor within max_attractor_radius
// of the newest state is reported; a nil MatchedAttractorID means "converged
// but no attractor has materialized there yet".
//
// It returns a *core.EmptyHistoryError while fewer than convergence_window
// samples exist. Callers treat that as "not converged".
func (m *Monitor) Check(h History, attractors []core.AttractorManifold) (core.ConvergenceStatus, error) {
	window, err := h.WindowStrict(m.window)
	if err != nil {
		return core.ConvergenceStatus{}, err
	}
	return m.Evaluate(window, attractors), nil
}

// Evaluate is Check over an explicit, non-empty window of samples.
func (m *Monitor) Evaluate(window []core.TensionSample, attractors []core.AttractorManifold) core.ConvergenceStatus {
	if len(window) == 0 {
		return core.ConvergenceStatus{}
	}

	mean := stat.Mean(core.Tensions(window), nil)
	latest := window[len(window)-1]

	status := core.ConvergenceStatus{
		Step:              latest.Step,
		WindowMeanTension: mean,
		IsConverged:       mean <= m.epsilon,
	}
	if status.IsConverged {
		status.MatchedAttractorID = Nearest(latest.State, attractors, m.maxRadius)
	}
	return status
}

// Nearest returns the id of the attractor whose centroid is closest to state
// and no farther than maxRadius, or nil. Equidistant attractors resolve to the
// lower id.
func Nearest(state core.Vector, attractors []core.AttractorManifold, maxRadius float64) *int {
	var match *int
	bestID := 0
	bestDist := math.Inf(1)
	for _, a := range attractors {
		dist, err := vecmath.Distance(state, a.Centroid)
		if err != nil || dist > maxRadius {
			continue
		}
		if dist < bestDist || (dist == bestDist && a.ID < bestID) {
			id := a.ID
			match, bestID, bestDist = &id, a.ID, dist
		}
	}
	return match
}
