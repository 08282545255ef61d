package core

import "time"

// TensionSample records one engine update.
type TensionSample struct {
	// Step is the engine step that produced this sample, starting at 1.
	Step int `json:"step"`
	// Tension is the squared distance between the previous and the new state.
	Tension float64 `json:"tension"`
	// State is a snapshot of the state after the update.
	State Vector `json:"state"`
	// Timestamp is the wall-clock time of the commit.
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of the sample.
func (s TensionSample) Clone() TensionSample {
	s.State = s.State.Clone()
	return s
}

// Tensions extracts the tension series from a slice of samples.
func Tensions(samples []TensionSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Tension
	}
	return out
}

// AttractorManifold is a region of state space the trajectory keeps returning to.
type AttractorManifold struct {
	ID              int     `json:"id"`
	Centroid        Vector  `json:"centroid"`
	MemberCount     int     `json:"member_count"`
	Radius          float64 `json:"radius"`
	FirstSeenStep   int     `json:"first_seen_step"`
	LastUpdatedStep int     `json:"last_updated_step"`
}

// Clone returns a deep copy of the manifold.
func (m AttractorManifold) Clone() AttractorManifold {
	m.Centroid = m.Centroid.Clone()
	return m
}

// ConvergenceStatus is derived on every check and never persisted.
type ConvergenceStatus struct {
	// Step is the step of the newest sample inspected.
	Step int `json:"step"`
	// IsConverged is true when WindowMeanTension <= epsilon_threshold.
	IsConverged bool `json:"is_converged"`
	// WindowMeanTension is the mean tension over the last convergence_window samples.
	WindowMeanTension float64 `json:"window_mean_tension"`
	// MatchedAttractorID is nil when not converged, or when converged but no
	// materialized attractor lies within max_attractor_radius of the current state.
	MatchedAttractorID *int `json:"matched_attractor_id"`
}

// StepRange is an inclusive range of engine steps.
type StepRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// SpectralCoefficient is one retained DFT bin of a glyph.
type SpectralCoefficient struct {
	Magnitude float64 `json:"magnitude"`
	// Phase is in radians and is always zero for magnitude-only glyphs.
	Phase float64 `json:"phase"`
}

// IdentityGlyph is the fixed-size spectral fingerprint of one stabilization
// episode. Glyphs are immutable once formed.
type IdentityGlyph struct {
	ID                   string                `json:"id"`
	StepRange            StepRange             `json:"step_range"`
	SpectralCoefficients []SpectralCoefficient `json:"spectral_coefficients"`
	// HasPhase is false for magnitude-only glyphs.
	HasPhase          bool `json:"has_phase"`
	FormationStep     int  `json:"formation_step"`
	SourceAttractorID *int `json:"source_attractor_id"`
}

// Clone returns a deep copy of the glyph.
func (g IdentityGlyph) Clone() IdentityGlyph {
	if g.SpectralCoefficients != nil {
		g.SpectralCoefficients = append([]SpectralCoefficient(nil), g.SpectralCoefficients...)
	}
	if g.SourceAttractorID != nil {
		id := *g.SourceAttractorID
		g.SourceAttractorID = &id
	}
	return g
}

// EntanglementMatrix holds pairwise coupling strength between graph nodes.
// Values is symmetric with ones on the diagonal; pairs without an edge are zero.
type EntanglementMatrix struct {
	NodeIDs []string    `json:"node_ids"`
	Values  [][]float64 `json:"values"`
}

// Get returns the entanglement between two nodes, or false if either is unknown.
func (m *EntanglementMatrix) Get(a, b string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	i, j := -1, -1
	for idx, id := range m.NodeIDs {
		if id == a {
			i = idx
		}
		if id == b {
			j = idx
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// ConsciousnessSnapshot is the record handed to the response-generation pipeline.
type ConsciousnessSnapshot struct {
	Step               int     `json:"step"`
	Tension            float64 `json:"tension"`
	StateNorm          float64 `json:"state_norm"`
	IsConverged        bool    `json:"is_converged"`
	MatchedAttractorID *int    `json:"matched_attractor_id"`
	// EntanglementMatrix is nil outside of a propagation graph. Within a round
	// every node's snapshot shares the same read-only matrix.
	EntanglementMatrix *EntanglementMatrix `json:"entanglement_matrix,omitempty"`
	// Degraded is set when the update behind this snapshot was rejected as
	// numerically unstable and the engine fell back to its last good state.
	Degraded bool `json:"degraded"`
	// Glyph is set on the step a convergence episode was compressed.
	Glyph *IdentityGlyph `json:"glyph,omitempty"`
}
