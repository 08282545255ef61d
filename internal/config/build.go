package config

import (
	"log/slog"

	"github.com/leapstack-labs/glyphcore/internal/glyph"
	"github.com/leapstack-labs/glyphcore/internal/graph"
	"github.com/leapstack-labs/glyphcore/internal/session"
)

// SessionConfig returns the session configuration for a single engine.
func (c *Config) SessionConfig(sink session.GlyphSink, logger *slog.Logger) session.Config {
	return session.Config{
		Params:           c.Engine,
		Seed:             c.Session.Seed,
		ReclusterEvery:   c.Session.ReclusterEvery,
		RetirementPasses: c.Session.RetirementPasses,
		GlyphPhase:       c.Session.GlyphPhase,
		GlyphSignal:      glyph.Signal(c.Session.GlyphSignal),
		Sink:             sink,
		Logger:           logger,
	}
}

// GraphConfig returns the propagation graph configuration. sinkFor may be nil.
func (c *Config) GraphConfig(sinkFor func(nodeID string) session.GlyphSink, logger *slog.Logger) graph.Config {
	return graph.Config{
		Params:             c.Engine,
		Nodes:              c.Graph.Nodes,
		Edges:              c.Graph.Edges,
		EntanglementWindow: c.Graph.EntanglementWindow,
		Parallelism:        c.Graph.Parallelism,
		ReclusterEvery:     c.Session.ReclusterEvery,
		RetirementPasses:   c.Session.RetirementPasses,
		GlyphPhase:         c.Session.GlyphPhase,
		GlyphSignal:        glyph.Signal(c.Session.GlyphSignal),
		SinkFor:            sinkFor,
		Logger:             logger,
	}
}
