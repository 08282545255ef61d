package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/glyphcore/internal/cli/testutil"
	"github.com/leapstack-labs/glyphcore/internal/config"
)

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"version", "simulate", "observe", "graph", "glyphs", "config", "completion"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRootCmd_ConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteConfigFile(t, dir, `
engine:
  dimension: 6
  convergence_window: 4
session:
  seed: 11
log:
  level: warn
`)
	t.Setenv("GLYPHCORE_SESSION__SEED", "12")

	out, _, err := runRoot(t, "config", "--config", path, "--window", "5", "-o", "json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 6, cfg.Engine.Dimension, "file overrides default")
	assert.Equal(t, uint64(12), cfg.Session.Seed, "env overrides file")
	assert.Equal(t, 5, cfg.Engine.ConvergenceWindow, "flag overrides file")
	assert.Equal(t, config.DefaultHistorySize, cfg.Engine.HistorySize, "unset flags keep lower layers")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	_, _, err := runRoot(t, "config", "--contraction-ratio", "1.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contraction_ratio")
}

func TestRootCmd_InvalidLogFormat(t *testing.T) {
	_, _, err := runRoot(t, "config", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestRootCmd_SimulateEndToEnd(t *testing.T) {
	dir := t.TempDir()
	store := dir + "/glyphs.db"

	out, _, err := runRoot(t, "simulate",
		"--dimension", "4", "--noise-variance", "0", "--window", "4",
		"--glyph-components", "4", "--recluster-every", "1",
		"--store", store, "--log-level", "error",
		"--steps", "30", "--every", "30", "--persist", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"steps": 30`)

	out, _, err = runRoot(t, "glyphs", "list", "--store", store, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "formation_step:")
}

func TestRootCmd_Completion(t *testing.T) {
	out, _, err := runRoot(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "glyphcore")

	_, _, err = runRoot(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestRootCmd_Version(t *testing.T) {
	out, _, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "glyphcore v"+Version)
}
