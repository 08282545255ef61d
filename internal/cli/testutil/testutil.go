// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/glyphcore/internal/cli/commands"
	"github.com/leapstack-labs/glyphcore/internal/cli/output"
	"github.com/leapstack-labs/glyphcore/internal/config"
	itestutil "github.com/leapstack-labs/glyphcore/internal/testutil"
)

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererTable creates a new test renderer in table mode (simulated TTY).
func NewTestRendererTable() *TestRenderer {
	return NewTestRenderer(output.ModeTable, true)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// NewTestRendererYAML creates a new test renderer in YAML mode.
func NewTestRendererYAML() *TestRenderer {
	return NewTestRenderer(output.ModeYAML, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// SmallConfig returns a validated configuration sized for fast tests: a
// four-dimensional engine, no noise and an in-memory store.
func SmallConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Engine.Dimension = 4
	cfg.Engine.NoiseVariance = 0
	cfg.Engine.HistorySize = 64
	cfg.Engine.ConvergenceWindow = 4
	cfg.Engine.MinClusterSize = 2
	cfg.Engine.GlyphComponents = 4
	cfg.Session.ReclusterEvery = 1
	cfg.Store.Path = filepath.Join(t.TempDir(), "glyphs.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

// NewTestContext returns a context carrying a runtime built from cfg and tr.
// Logs go to t.Log.
func NewTestContext(t *testing.T, cfg *config.Config, tr *TestRenderer) context.Context {
	t.Helper()
	return commands.WithRuntime(context.Background(), &commands.Runtime{
		Config:   cfg,
		Logger:   itestutil.NewTestLogger(t),
		Renderer: tr.Renderer,
	})
}

// WriteConfigFile writes a glyphcore.yaml with content into dir and returns
// its path.
func WriteConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
