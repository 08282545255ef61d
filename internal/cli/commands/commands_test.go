package commands_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/glyphcore/internal/cli/commands"
	"github.com/leapstack-labs/glyphcore/internal/cli/testutil"
	"github.com/leapstack-labs/glyphcore/internal/config"
	"github.com/leapstack-labs/glyphcore/internal/graph"
)

func execute(ctx context.Context, cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(ctx)
}

func TestSimulateCommand_JSON(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	tr := testutil.NewTestRendererJSON()
	ctx := testutil.NewTestContext(t, cfg, tr)

	err := execute(ctx, commands.NewSimulateCommand(), "--steps", "60", "--every", "10")
	require.NoError(t, err)

	var result commands.SimulateResult
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &result))
	assert.Equal(t, 60, result.Steps)
	assert.Zero(t, result.Recoveries)
	require.NotEmpty(t, result.Glyphs, "a constant stimulus should settle and form a glyph")
	assert.NotEmpty(t, result.Attractors)

	for _, s := range result.Snapshots {
		assert.True(t, s.Step%10 == 0 || s.Glyph != nil, "unexpected snapshot at step %d", s.Step)
	}
	testutil.AssertNoANSI(t, tr.Output())
}

func TestSimulateCommand_Deterministic(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	cfg.Engine.NoiseVariance = 0.0001
	cfg.Session.Seed = 9

	run := func() string {
		tr := testutil.NewTestRendererJSON()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewSimulateCommand(), "--steps", "40", "--shift-every", "20", "--stimulus-seed", "3"))
		// Timestamps differ between runs.
		var result commands.SimulateResult
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &result))
		ids := make([]string, 0, len(result.Glyphs))
		for _, g := range result.Glyphs {
			ids = append(ids, g.ID)
		}
		return strings.Join(ids, ",")
	}

	assert.Equal(t, run(), run())
}

func TestSimulateCommand_StimulusFile(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	tr := testutil.NewTestRendererJSON()
	ctx := testutil.NewTestContext(t, cfg, tr)

	cmd := commands.NewSimulateCommand()
	cmd.SetIn(strings.NewReader("[1,1,1,1]\n[1,1,1,1]\n[1,1,1,1]\n"))
	require.NoError(t, execute(ctx, cmd, "--stimulus-file", "-", "--steps", "10"))

	var result commands.SimulateResult
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &result))
	assert.Equal(t, 3, result.Steps, "the run stops when the stimulus stream ends")
}

func TestSimulateCommand_StimulusWrongDimension(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	tr := testutil.NewTestRendererJSON()
	ctx := testutil.NewTestContext(t, cfg, tr)

	cmd := commands.NewSimulateCommand()
	cmd.SetIn(strings.NewReader("[1,1]\n"))
	err := execute(ctx, cmd, "--stimulus-file", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestSimulateCommand_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "zero steps", args: []string{"--steps", "0"}, want: "--steps"},
		{name: "zero every", args: []string{"--every", "0"}, want: "--every"},
		{name: "missing file", args: []string{"--stimulus-file", "does-not-exist.jsonl"}, want: "stimulus file"},
		{name: "follow without file", args: []string{"--follow"}, want: "--follow requires"},
		{name: "follow stdin", args: []string{"--follow", "--stimulus-file", "-"}, want: "--follow requires"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutil.SmallConfig(t)
			tr := testutil.NewTestRendererJSON()
			ctx := testutil.NewTestContext(t, cfg, tr)

			err := execute(ctx, commands.NewSimulateCommand(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSimulateCommand_Table(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	tr := testutil.NewTestRendererTable()
	ctx := testutil.NewTestContext(t, cfg, tr)

	require.NoError(t, execute(ctx, commands.NewSimulateCommand(), "--steps", "20", "--every", "5"))

	testutil.AssertContains(t, tr.Output(), "STEP")
	testutil.AssertContains(t, tr.Output(), "TENSION")
	testutil.AssertContains(t, tr.ErrorOutput(), "20 steps")
}

func TestSimulateThenGlyphs(t *testing.T) {
	cfg := testutil.SmallConfig(t)

	tr := testutil.NewTestRendererJSON()
	ctx := testutil.NewTestContext(t, cfg, tr)
	require.NoError(t, execute(ctx, commands.NewSimulateCommand(), "--steps", "80", "--shift-every", "40", "--persist"))

	var sim commands.SimulateResult
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &sim))
	require.NotEmpty(t, sim.Glyphs)

	t.Run("list", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewGlyphsCommand(), "list"))

		var records []map[string]any
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &records))
		assert.Len(t, records, len(sim.Glyphs))
		assert.Equal(t, sim.Glyphs[len(sim.Glyphs)-1].ID, records[0]["id"], "newest first")
	})

	t.Run("show", func(t *testing.T) {
		tr := testutil.NewTestRendererTable()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewGlyphsCommand(), "show", sim.Glyphs[0].ID))

		testutil.AssertContains(t, tr.Output(), "MAGNITUDE")
		testutil.AssertContains(t, tr.ErrorOutput(), sim.Glyphs[0].ID)
	})

	t.Run("show unknown", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		ctx := testutil.NewTestContext(t, cfg, tr)
		err := execute(ctx, commands.NewGlyphsCommand(), "show", "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("nearest excludes the target", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewGlyphsCommand(), "nearest", sim.Glyphs[0].ID, "-k", "3"))

		var matches []map[string]any
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &matches))
		assert.LessOrEqual(t, len(matches), 3)
		for _, m := range matches {
			rec := m["record"].(map[string]any)
			assert.NotEqual(t, sim.Glyphs[0].ID, rec["id"])
		}
	})

	t.Run("prune", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewGlyphsCommand(), "prune", "--keep", "1"))

		var result commands.PruneResult
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &result))
		assert.Equal(t, 1, result.Remaining)
		assert.Equal(t, int64(len(sim.Glyphs)-1), result.Removed)
	})
}

func TestGlyphsList_EmptyStoreYAML(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	tr := testutil.NewTestRendererYAML()
	ctx := testutil.NewTestContext(t, cfg, tr)

	require.NoError(t, execute(ctx, commands.NewGlyphsCommand(), "list"))
	assert.Equal(t, "[]\n", tr.Output())
}

func TestGraphCommand(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	cfg.Graph.Nodes = []graph.NodeSpec{{ID: "alpha", Seed: 1}, {ID: "beta", Seed: 2}, {ID: "gamma", Seed: 3}}
	cfg.Graph.Edges = []graph.Edge{
		{Source: "alpha", Target: "beta", CouplingWeight: 0.1},
		{Source: "beta", Target: "gamma", CouplingWeight: 0.1},
	}
	cfg.Graph.EntanglementWindow = 4

	tr := testutil.NewTestRendererJSON()
	ctx := testutil.NewTestContext(t, cfg, tr)
	require.NoError(t, execute(ctx, commands.NewGraphCommand(), "--rounds", "30", "--persist"))

	var result commands.GraphResult
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &result))
	assert.Equal(t, 30, result.Rounds)
	require.Len(t, result.Nodes, 3)
	assert.Equal(t, "alpha", result.Nodes[0].ID)
	assert.Equal(t, []string{"beta", "gamma"}, result.Nodes[0].Reach, "coupling flows along the chain")
	assert.Empty(t, result.Nodes[2].Reach)
	assert.GreaterOrEqual(t, result.Coherence, 0.0)
	assert.LessOrEqual(t, result.Coherence, 1.0)

	require.NotNil(t, result.Entanglement)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, result.Entanglement.NodeIDs)
	assert.Zero(t, result.Entanglement.Values[0][2], "alpha and gamma are not connected")

	t.Run("glyphs are tagged by node", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewGlyphsCommand(), "list", "--source", "beta"))

		var records []map[string]any
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &records))
		for _, r := range records {
			assert.Equal(t, "beta", r["source"])
		}
	})
}

func TestGraphCommand_Table(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	cfg.Graph.Nodes = []graph.NodeSpec{{ID: "a"}, {ID: "b"}}
	cfg.Graph.Edges = []graph.Edge{{Source: "a", Target: "b", CouplingWeight: 0.2}}

	tr := testutil.NewTestRendererTable()
	ctx := testutil.NewTestContext(t, cfg, tr)
	require.NoError(t, execute(ctx, commands.NewGraphCommand(), "--rounds", "5"))

	testutil.AssertContains(t, tr.Output(), "NODE")
	testutil.AssertContains(t, tr.Output(), "RECOVERIES")
	testutil.AssertContains(t, tr.Output(), "REACH")
	testutil.AssertContains(t, tr.ErrorOutput(), "5 rounds")
}

func TestGraphCommand_NoNodes(t *testing.T) {
	cfg := testutil.SmallConfig(t)
	tr := testutil.NewTestRendererJSON()
	ctx := testutil.NewTestContext(t, cfg, tr)

	err := execute(ctx, commands.NewGraphCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no graph nodes")
}

func TestConfigCommand(t *testing.T) {
	cfg := testutil.SmallConfig(t)

	t.Run("table", func(t *testing.T) {
		tr := testutil.NewTestRendererTable()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewConfigCommand()))

		testutil.AssertContains(t, tr.Output(), "Engine")
		testutil.AssertContains(t, tr.Output(), "dimension")
		testutil.AssertContains(t, tr.Output(), "Session")
		testutil.AssertContains(t, tr.Output(), "glyph_signal")
		testutil.AssertContains(t, tr.ErrorOutput(), "config file: (none)")
	})

	t.Run("yaml", func(t *testing.T) {
		tr := testutil.NewTestRendererYAML()
		ctx := testutil.NewTestContext(t, cfg, tr)
		require.NoError(t, execute(ctx, commands.NewConfigCommand()))

		testutil.AssertContains(t, tr.Output(), "engine:\n  dimension: 4\n")
		testutil.AssertNotContains(t, tr.Output(), "{")
	})
}

func TestGetRuntime_Fallback(t *testing.T) {
	rt := commands.GetRuntime(context.Background())
	require.NotNil(t, rt)
	assert.Equal(t, config.DefaultDimension, rt.Config.Engine.Dimension)
	assert.NotNil(t, rt.Logger)
	assert.NotNil(t, rt.Renderer)
}
