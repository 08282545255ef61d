package config

import (
	"log/slog"

	"github.com/leapstack-labs/glyphcore/internal/glyph"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// Validate checks every section. It returns the first problem as a
// *core.ConfigurationError; engine fields keep their bare names.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	s := c.Session
	if s.ReclusterEvery < 1 {
		return invalid("session.recluster_every", s.ReclusterEvery, "must be >= 1")
	}
	if s.RetirementPasses < 1 {
		return invalid("session.retirement_passes", s.RetirementPasses, "must be >= 1")
	}
	switch glyph.Signal(s.GlyphSignal) {
	case glyph.SignalTension, glyph.SignalStateNorm:
	default:
		return invalid("session.glyph_signal", s.GlyphSignal, "must be tension or state_norm")
	}

	g := c.Graph
	if g.EntanglementWindow < 2 {
		return invalid("graph.entanglement_window", g.EntanglementWindow, "must be >= 2")
	}
	if g.Parallelism < 0 {
		return invalid("graph.parallelism", g.Parallelism, "must be >= 0")
	}

	if c.Store.Path == "" {
		return invalid("store.path", c.Store.Path, "is required")
	}
	if c.Store.Retention < 0 {
		return invalid("store.retention", c.Store.Retention, "must be >= 0")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", c.Log.Format, "must be text or json")
	}

	switch c.Output {
	case "auto", "table", "json", "yaml":
	default:
		return invalid("output", c.Output, "must be auto, table, json or yaml")
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

func invalid(field string, value any, reason string) error {
	return &core.ConfigurationError{Field: field, Value: value, Reason: reason}
}
