package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/glyphcore/internal/cli/output"
	"github.com/leapstack-labs/glyphcore/internal/session"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

type simulateOptions struct {
	steps        int
	every        int
	shiftEvery   int
	amplitude    float64
	stimulusSeed uint64
	stimulusFile string
	follow       bool
	persist      bool
}

// SimulateResult is the JSON/YAML shape of a simulate run.
type SimulateResult struct {
	Steps      int                          `json:"steps"`
	Recoveries int                          `json:"recoveries"`
	Snapshots  []core.ConsciousnessSnapshot `json:"snapshots"`
	Glyphs     []core.IdentityGlyph         `json:"glyphs"`
	Attractors []core.AttractorManifold     `json:"attractors"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand() *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a single engine and report its snapshots",
		Long: `Drive one engine through its full pipeline: update, attractor detection,
convergence checks and glyph formation.

Stimuli are random plateaus that shift every --shift-every steps, or JSON
number arrays read from --stimulus-file ("-" for stdin).`,
		Example: `  glyphcore simulate --steps 200 --shift-every 50
  glyphcore simulate --dimension 4 --stimulus-file stimuli.jsonl -o json
  glyphcore simulate --steps 500 --persist --store glyphs.db
  glyphcore simulate --stimulus-file encoder.jsonl --follow --steps 100000 --persist`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd.Context(), cmd.InOrStdin(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.steps, "steps", 100, "Number of updates to run")
	cmd.Flags().IntVar(&opts.every, "every", 1, "Report every n-th snapshot (glyph-forming steps are always reported)")
	cmd.Flags().IntVar(&opts.shiftEvery, "shift-every", 0, "Redraw the random stimulus every n steps (0 = never)")
	cmd.Flags().Float64Var(&opts.amplitude, "amplitude", 1.0, "Maximum absolute stimulus component")
	cmd.Flags().Uint64Var(&opts.stimulusSeed, "stimulus-seed", 1, "Seed for generated stimuli")
	cmd.Flags().StringVar(&opts.stimulusFile, "stimulus-file", "", "Read stimuli as JSON arrays from a file, or - for stdin")
	cmd.Flags().BoolVar(&opts.follow, "follow", false, "Keep reading --stimulus-file as it grows, until interrupted")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "Save formed glyphs to the glyph store")

	return cmd
}

func runSimulate(ctx context.Context, stdin io.Reader, opts *simulateOptions) error {
	rt := GetRuntime(ctx)
	cfg := rt.Config
	if opts.steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}
	if opts.every < 1 {
		return fmt.Errorf("--every must be >= 1")
	}
	if opts.follow && (opts.stimulusFile == "" || opts.stimulusFile == "-") {
		return fmt.Errorf("--follow requires a --stimulus-file path")
	}

	var sink session.GlyphSink
	if opts.persist {
		store, err := openStore(cfg, rt.Logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		sink = store
	}

	sess, err := session.New(cfg.SessionConfig(sink, rt.Logger))
	if err != nil {
		return err
	}

	var source stimulusSource
	switch opts.stimulusFile {
	case "":
		source = newDriftSource(cfg.Engine.Dimension, opts.amplitude, opts.shiftEvery, opts.stimulusSeed)
	case "-":
		source = newJSONSource(stdin, cfg.Engine.Dimension)
	default:
		var r io.ReadCloser
		if opts.follow {
			fr, err := newFollowReader(ctx, opts.stimulusFile)
			if err != nil {
				return err
			}
			r = fr
		} else {
			f, err := os.Open(opts.stimulusFile) //nolint:gosec // G304: path comes from the user
			if err != nil {
				return fmt.Errorf("failed to open stimulus file: %w", err)
			}
			r = f
		}
		defer func() { _ = r.Close() }()
		source = newJSONSource(r, cfg.Engine.Dimension)
	}

	result := SimulateResult{}
	for i := 0; i < opts.steps; i++ {
		if err := ctx.Err(); err != nil {
			if opts.follow {
				break
			}
			return err
		}
		stimulus, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		snap, err := sess.Observe(ctx, stimulus)
		if err != nil {
			return err
		}
		result.Steps++
		if snap.Step%opts.every == 0 || snap.Glyph != nil || snap.Degraded {
			result.Snapshots = append(result.Snapshots, snap)
		}
	}

	result.Recoveries = sess.Engine().Recoveries()
	result.Glyphs = sess.Glyphs()
	result.Attractors = sess.Attractors()

	rt.Logger.Info("simulation finished",
		"steps", result.Steps,
		"glyphs", len(result.Glyphs),
		"attractors", len(result.Attractors),
		"recoveries", result.Recoveries)

	if err := rt.Renderer.Render(result, func(t table.Writer) {
		t.AppendHeader(table.Row{"Step", "Tension", "State Norm", "Converged", "Attractor", "Glyph"})
		for _, s := range result.Snapshots {
			glyphID := ""
			if s.Glyph != nil {
				glyphID = s.Glyph.ID
			}
			if s.Degraded {
				glyphID = "(degraded)"
			}
			t.AppendRow(table.Row{
				s.Step,
				output.FormatFloat(s.Tension),
				output.FormatFloat(s.StateNorm),
				s.IsConverged,
				output.FormatID(s.MatchedAttractorID),
				glyphID,
			})
		}
	}); err != nil {
		return err
	}

	if rt.Renderer.Mode() == output.ModeTable {
		rt.Renderer.Infof("%d steps, %d glyphs, %d attractors, %d recoveries",
			result.Steps, len(result.Glyphs), len(result.Attractors), result.Recoveries)
	}
	return nil
}
