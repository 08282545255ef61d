package config

import (
	"github.com/leapstack-labs/glyphcore/internal/attractor"
	"github.com/leapstack-labs/glyphcore/internal/graph"
	"github.com/leapstack-labs/glyphcore/internal/session"
)

// Default configuration values.
const (
	DefaultDimension          = 128
	DefaultEpsilonThreshold   = 0.01
	DefaultNoiseVariance      = 0.0001
	DefaultContractionRatio   = 0.5
	DefaultHistorySize        = 256
	DefaultMinClusterSize     = 3
	DefaultMaxAttractorRadius = 1.0
	DefaultConvergenceWindow  = 4
	DefaultGlyphComponents    = 16

	DefaultGlyphSignal = "tension"
	DefaultStorePath   = ".glyphcore/glyphs.db"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultOutput      = "auto" // Auto-detect: TTY=table, non-TTY=json
)

// Defaults returns the built-in defaults as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"engine.dimension":            DefaultDimension,
		"engine.epsilon_threshold":    DefaultEpsilonThreshold,
		"engine.noise_variance":       DefaultNoiseVariance,
		"engine.contraction_ratio":    DefaultContractionRatio,
		"engine.history_size":         DefaultHistorySize,
		"engine.min_cluster_size":     DefaultMinClusterSize,
		"engine.max_attractor_radius": DefaultMaxAttractorRadius,
		"engine.convergence_window":   DefaultConvergenceWindow,
		"engine.glyph_components":     DefaultGlyphComponents,

		"session.seed":              0,
		"session.recluster_every":   session.DefaultReclusterEvery,
		"session.retirement_passes": attractor.DefaultRetirementPasses,
		"session.glyph_phase":       true,
		"session.glyph_signal":      DefaultGlyphSignal,

		"graph.entanglement_window": graph.DefaultEntanglementWindow,
		"graph.parallelism":         0,

		"store.path":      DefaultStorePath,
		"store.retention": 0,

		"log.level":  DefaultLogLevel,
		"log.format": DefaultLogFormat,

		"output": DefaultOutput,
	}
}
