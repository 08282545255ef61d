package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/glyphcore/internal/cli/output"
	"github.com/leapstack-labs/glyphcore/internal/state"
)

// NewGlyphsCommand creates the glyphs command and its subcommands.
func NewGlyphsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glyphs",
		Short: "Inspect the persisted glyph store",
		Long: `Inspect identity glyphs saved by simulate --persist and graph --persist.

The store location is taken from store.path (or --store).`,
	}

	cmd.AddCommand(newGlyphsListCommand())
	cmd.AddCommand(newGlyphsShowCommand())
	cmd.AddCommand(newGlyphsNearestCommand())
	cmd.AddCommand(newGlyphsPruneCommand())
	return cmd
}

func newGlyphsListCommand() *cobra.Command {
	var opts state.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored glyphs, newest first",
		Example: `  glyphcore glyphs list
  glyphcore glyphs list --source alpha --limit 10 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGlyphsList(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", "", "Only glyphs formed by this graph node")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of glyphs (0 = all)")
	return cmd
}

func runGlyphsList(ctx context.Context, opts state.ListOptions) error {
	rt := GetRuntime(ctx)
	store, err := openStore(rt.Config, rt.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListGlyphs(ctx, opts)
	if err != nil {
		return err
	}
	if records == nil {
		records = []state.GlyphRecord{}
	}

	return rt.Renderer.Render(records, func(t table.Writer) {
		t.AppendHeader(table.Row{"ID", "Source", "Steps", "Attractor", "Components", "Created"})
		for _, r := range records {
			t.AppendRow(table.Row{
				r.ID,
				sourceLabel(r.Source),
				fmt.Sprintf("%d-%d", r.StepRange.First, r.StepRange.Last),
				output.FormatID(r.SourceAttractorID),
				len(r.SpectralCoefficients),
				r.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
	})
}

func newGlyphsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one glyph and its spectral coefficients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGlyphsShow(cmd.Context(), args[0])
		},
	}
}

func runGlyphsShow(ctx context.Context, id string) error {
	rt := GetRuntime(ctx)
	store, err := openStore(rt.Config, rt.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rec, err := store.GetGlyph(ctx, id)
	if err != nil {
		return err
	}

	if err := rt.Renderer.Render(rec, func(t table.Writer) {
		t.AppendHeader(table.Row{"Bin", "Magnitude", "Phase"})
		for i, c := range rec.SpectralCoefficients {
			phase := "-"
			if rec.HasPhase {
				phase = output.FormatFloat(c.Phase)
			}
			t.AppendRow(table.Row{i, output.FormatFloat(c.Magnitude), phase})
		}
	}); err != nil {
		return err
	}

	if rt.Renderer.Mode() == output.ModeTable {
		rt.Renderer.Infof("glyph %s from %s, steps %d-%d, attractor %s",
			rec.ID, sourceLabel(rec.Source), rec.StepRange.First, rec.StepRange.Last, output.FormatID(rec.SourceAttractorID))
	}
	return nil
}

func newGlyphsNearestCommand() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:     "nearest <id>",
		Short:   "Find the stored glyphs spectrally closest to a glyph",
		Example: `  glyphcore glyphs nearest 6f1c... -k 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGlyphsNearest(cmd.Context(), args[0], k)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 5, "Number of neighbours")
	return cmd
}

func runGlyphsNearest(ctx context.Context, id string, k int) error {
	rt := GetRuntime(ctx)
	store, err := openStore(rt.Config, rt.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	target, err := store.GetGlyph(ctx, id)
	if err != nil {
		return err
	}
	// The target itself is always its own nearest match at distance 0.
	matches, err := store.Nearest(ctx, target.IdentityGlyph, k+1)
	if err != nil {
		return err
	}
	neighbours := make([]state.Match, 0, k)
	for _, m := range matches {
		if m.Record.ID == target.ID || len(neighbours) == k {
			continue
		}
		neighbours = append(neighbours, m)
	}

	return rt.Renderer.Render(neighbours, func(t table.Writer) {
		t.AppendHeader(table.Row{"ID", "Source", "Distance", "Steps"})
		for _, m := range neighbours {
			t.AppendRow(table.Row{
				m.Record.ID,
				sourceLabel(m.Record.Source),
				output.FormatFloat(m.Distance),
				fmt.Sprintf("%d-%d", m.Record.StepRange.First, m.Record.StepRange.Last),
			})
		}
	})
}

func newGlyphsPruneCommand() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest glyphs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGlyphsPrune(cmd.Context(), keep)
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Number of newest glyphs to keep (required)")
	_ = cmd.MarkFlagRequired("keep")
	return cmd
}

// PruneResult is the JSON/YAML shape of glyphs prune.
type PruneResult struct {
	Removed   int64 `json:"removed"`
	Remaining int   `json:"remaining"`
}

func runGlyphsPrune(ctx context.Context, keep int) error {
	rt := GetRuntime(ctx)
	if keep < 1 {
		return fmt.Errorf("--keep must be >= 1")
	}
	store, err := openStore(rt.Config, rt.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.Prune(ctx, keep)
	if err != nil {
		return err
	}
	remaining, err := store.Count(ctx)
	if err != nil {
		return err
	}

	result := PruneResult{Removed: removed, Remaining: remaining}
	return rt.Renderer.Render(result, func(t table.Writer) {
		t.AppendHeader(table.Row{"Removed", "Remaining"})
		t.AppendRow(table.Row{result.Removed, result.Remaining})
	})
}

func sourceLabel(source string) string {
	if strings.TrimSpace(source) == "" {
		return "(session)"
	}
	return source
}
