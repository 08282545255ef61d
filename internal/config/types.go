// Package config loads glyphcore configuration.
//
// Sources are layered with koanf, lowest precedence first: built-in defaults,
// a YAML file, GLYPHCORE_ environment variables, then explicitly set
// command-line flags. The result is validated before it is returned.
package config

import (
	"github.com/leapstack-labs/glyphcore/internal/graph"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// Config holds every configuration section.
type Config struct {
	Engine  core.EngineConfig `koanf:"engine" yaml:"engine" json:"engine"`
	Session SessionConfig     `koanf:"session" yaml:"session" json:"session"`
	Graph   GraphConfig       `koanf:"graph" yaml:"graph" json:"graph"`
	Store   StoreConfig       `koanf:"store" yaml:"store" json:"store"`
	Log     LogConfig         `koanf:"log" yaml:"log" json:"log"`
	// Output is the CLI output mode: auto, table, json or yaml.
	Output string `koanf:"output" yaml:"output" json:"output"`

	// FileUsed is the config file that was loaded, if any.
	FileUsed string `koanf:"-" yaml:"-" json:"-"`
}

// SessionConfig holds per-engine pipeline options.
type SessionConfig struct {
	Seed             uint64 `koanf:"seed" yaml:"seed" json:"seed"`
	ReclusterEvery   int    `koanf:"recluster_every" yaml:"recluster_every" json:"recluster_every"`
	RetirementPasses int    `koanf:"retirement_passes" yaml:"retirement_passes" json:"retirement_passes"`
	GlyphPhase       bool   `koanf:"glyph_phase" yaml:"glyph_phase" json:"glyph_phase"`
	GlyphSignal      string `koanf:"glyph_signal" yaml:"glyph_signal" json:"glyph_signal"`
}

// GraphConfig holds propagation graph topology and round options.
type GraphConfig struct {
	Nodes              []graph.NodeSpec `koanf:"nodes" yaml:"nodes" json:"nodes"`
	Edges              []graph.Edge     `koanf:"edges" yaml:"edges" json:"edges"`
	EntanglementWindow int              `koanf:"entanglement_window" yaml:"entanglement_window" json:"entanglement_window"`
	// Parallelism of 0 means GOMAXPROCS.
	Parallelism int `koanf:"parallelism" yaml:"parallelism" json:"parallelism"`
}

// StoreConfig holds glyph store options.
type StoreConfig struct {
	// Path is the SQLite file; ":memory:" keeps glyphs for the process only.
	Path string `koanf:"path" yaml:"path" json:"path"`
	// Retention caps stored glyphs, newest kept. 0 keeps everything.
	Retention int `koanf:"retention" yaml:"retention" json:"retention"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}
