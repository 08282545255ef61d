package core

import (
	"math"
	"strconv"
)

// EngineConfig enumerates every option recognized by a recursive state engine
// and its analysis pipeline.
type EngineConfig struct {
	// Dimension of the state vector. Must be >= 1.
	Dimension int `koanf:"dimension" yaml:"dimension" json:"dimension"`
	// EpsilonThreshold is the windowed mean tension at or below which the
	// trajectory counts as converged. Must be > 0.
	EpsilonThreshold float64 `koanf:"epsilon_threshold" yaml:"epsilon_threshold" json:"epsilon_threshold"`
	// NoiseVariance is the per-component variance of the bounded, zero-mean
	// update noise. Must be >= 0; zero disables noise.
	NoiseVariance float64 `koanf:"noise_variance" yaml:"noise_variance" json:"noise_variance"`
	// ContractionRatio is the Lipschitz bound L of the recursive transform.
	// Must satisfy 0 <= L < 1.
	ContractionRatio float64 `koanf:"contraction_ratio" yaml:"contraction_ratio" json:"contraction_ratio"`
	// HistorySize is the capacity of the tension ring buffer. Must be >= 1.
	HistorySize int `koanf:"history_size" yaml:"history_size" json:"history_size"`
	// MinClusterSize is the member count at which a provisional cluster is
	// promoted to an attractor. Must be >= 1.
	MinClusterSize int `koanf:"min_cluster_size" yaml:"min_cluster_size" json:"min_cluster_size"`
	// MaxAttractorRadius bounds every attractor's radius. Must be > 0.
	MaxAttractorRadius float64 `koanf:"max_attractor_radius" yaml:"max_attractor_radius" json:"max_attractor_radius"`
	// ConvergenceWindow is the number of trailing samples averaged by the
	// convergence check. Must satisfy 1 <= window <= HistorySize.
	ConvergenceWindow int `koanf:"convergence_window" yaml:"convergence_window" json:"convergence_window"`
	// GlyphComponents is the number of spectral coefficients kept per glyph.
	// Must be >= 1.
	GlyphComponents int `koanf:"glyph_components" yaml:"glyph_components" json:"glyph_components"`
}

// Validate checks every option against its documented range.
// It returns a *ConfigurationError naming the first offending field.
func (c EngineConfig) Validate() error {
	if c.Dimension < 1 {
		return &ConfigurationError{Field: "dimension", Value: c.Dimension, Reason: "must be >= 1"}
	}
	if !finite(c.EpsilonThreshold) || c.EpsilonThreshold <= 0 {
		return &ConfigurationError{Field: "epsilon_threshold", Value: c.EpsilonThreshold, Reason: "must be a finite value > 0"}
	}
	if !finite(c.NoiseVariance) || c.NoiseVariance < 0 {
		return &ConfigurationError{Field: "noise_variance", Value: c.NoiseVariance, Reason: "must be a finite value >= 0"}
	}
	if !finite(c.ContractionRatio) || c.ContractionRatio < 0 || c.ContractionRatio >= 1 {
		return &ConfigurationError{Field: "contraction_ratio", Value: c.ContractionRatio, Reason: "must satisfy 0 <= L < 1"}
	}
	if c.HistorySize < 1 {
		return &ConfigurationError{Field: "history_size", Value: c.HistorySize, Reason: "must be >= 1"}
	}
	if c.MinClusterSize < 1 {
		return &ConfigurationError{Field: "min_cluster_size", Value: c.MinClusterSize, Reason: "must be >= 1"}
	}
	if !finite(c.MaxAttractorRadius) || c.MaxAttractorRadius <= 0 {
		return &ConfigurationError{Field: "max_attractor_radius", Value: c.MaxAttractorRadius, Reason: "must be a finite value > 0"}
	}
	if c.ConvergenceWindow < 1 || c.ConvergenceWindow > c.HistorySize {
		return &ConfigurationError{Field: "convergence_window", Value: c.ConvergenceWindow, Reason: "must satisfy 1 <= window <= history_size"}
	}
	if c.GlyphComponents < 1 {
		return &ConfigurationError{Field: "glyph_components", Value: c.GlyphComponents, Reason: "must be >= 1"}
	}
	return nil
}

// CheckDimension returns a *ConfigurationError when v does not have the
// configured dimension.
func (c EngineConfig) CheckDimension(field string, v Vector) error {
	if len(v) != c.Dimension {
		return &ConfigurationError{Field: field, Value: len(v), Reason: "dimension mismatch, want " + strconv.Itoa(c.Dimension)}
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
