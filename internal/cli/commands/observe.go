package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/glyphcore/internal/cli/output"
	"github.com/leapstack-labs/glyphcore/internal/session"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

const (
	observePrompt = "glyphcore> "
	historyName   = "observe_history"
)

// NewObserveCommand creates the observe command.
func NewObserveCommand() *cobra.Command {
	var persist bool

	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Feed stimuli to a live engine interactively",
		Long: `Start an interactive loop around one engine session. Every line is a
stimulus: a JSON array, whitespace or comma separated numbers, or a single
number applied to every component. Each stimulus prints one snapshot line.

Type .help for commands, .quit to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runObserve(cmd, persist)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "Save formed glyphs to the glyph store")
	return cmd
}

func runObserve(cmd *cobra.Command, persist bool) error {
	ctx := cmd.Context()
	rt := GetRuntime(ctx)
	cfg := rt.Config

	var sink session.GlyphSink
	if persist {
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

	// History lives next to the glyph store.
	historyFile := ""
	if cfg.Store.Path != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(cfg.Store.Path), historyName)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          observePrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newObserveCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "glyphcore observe (dimension %d)\n", cfg.Engine.Dimension)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")

	loop := &observeLoop{
		session: sess,
		dim:     cfg.Engine.Dimension,
		styles:  rt.Renderer.Styles(),
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if quit := loop.handle(ctx, line); quit {
			break
		}
	}

	rt.Logger.Info("observe session finished", "steps", sess.Engine().Step(), "glyphs", len(sess.Glyphs()))
	return nil
}

// observeLoop interprets REPL lines against one session.
type observeLoop struct {
	session *session.Session
	dim     int
	styles  *output.Styles
	out     io.Writer
	errOut  io.Writer
}

// handle processes one line and reports whether the loop should stop.
func (l *observeLoop) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ".") {
		return l.dotCommand(line)
	}

	stimulus, err := parseStimulus(line, l.dim)
	if err != nil {
		l.printError(err)
		return false
	}
	snap, err := l.session.Observe(ctx, stimulus)
	if err != nil {
		l.printError(err)
		return false
	}
	_, _ = fmt.Fprintln(l.out, formatSnapshot(snap, l.styles))
	return false
}

func (l *observeLoop) printError(err error) {
	_, _ = fmt.Fprintf(l.errOut, "%s %v\n", l.styles.Error.Render("Error:"), err)
}

func (l *observeLoop) dotCommand(line string) bool {
	command := strings.ToLower(strings.Fields(line)[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printObserveHelp(l.out)

	case ".status":
		st := l.session.Status()
		_, _ = fmt.Fprintf(l.out, "step=%d converged=%t window_mean_tension=%s attractor=%s recoveries=%d\n",
			l.session.Engine().Step(), st.IsConverged, output.FormatFloat(st.WindowMeanTension),
			output.FormatID(st.MatchedAttractorID), l.session.Engine().Recoveries())

	case ".attractors":
		t := output.NewTable(l.out)
		t.AppendHeader(table.Row{"ID", "Members", "Radius", "First Seen", "Last Updated"})
		for _, m := range l.session.Attractors() {
			t.AppendRow(table.Row{m.ID, m.MemberCount, output.FormatFloat(m.Radius), m.FirstSeenStep, m.LastUpdatedStep})
		}
		t.Render()

	case ".glyphs":
		t := output.NewTable(l.out)
		t.AppendHeader(table.Row{"ID", "Steps", "Attractor"})
		for _, g := range l.session.Glyphs() {
			t.AppendRow(table.Row{g.ID, fmt.Sprintf("%d-%d", g.StepRange.First, g.StepRange.Last), output.FormatID(g.SourceAttractorID)})
		}
		t.Render()

	case ".recluster":
		_, _ = fmt.Fprintf(l.out, "%d attractors\n", len(l.session.Recluster()))

	default:
		_, _ = fmt.Fprintf(l.errOut, "Unknown command: %s %s\n", command, l.styles.Muted.Render("(type .help for commands)"))
	}
	return false
}

// parseStimulus reads a JSON array, a list of numbers separated by commas or
// whitespace, or a single number broadcast to every component.
func parseStimulus(line string, dim int) (core.Vector, error) {
	var v core.Vector
	if strings.HasPrefix(line, "[") {
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("invalid stimulus: %w", err)
		}
	} else {
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		for _, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid stimulus component %q", f)
			}
			v = append(v, x)
		}
	}

	if len(v) == 1 && dim > 1 {
		broadcast := core.NewVector(dim)
		for i := range broadcast {
			broadcast[i] = v[0]
		}
		return broadcast, nil
	}
	return v, nil
}

func formatSnapshot(s core.ConsciousnessSnapshot, styles *output.Styles) string {
	converged := fmt.Sprintf("converged=%t", s.IsConverged)
	if s.IsConverged {
		converged = styles.Success.Render(converged)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "step=%d tension=%s norm=%s %s attractor=%s",
		s.Step, output.FormatFloat(s.Tension), output.FormatFloat(s.StateNorm),
		converged, output.FormatID(s.MatchedAttractorID))
	if s.Degraded {
		b.WriteString(" " + styles.Warning.Render("degraded"))
	}
	if s.Glyph != nil {
		b.WriteString(" " + styles.Bold.Render("glyph="+s.Glyph.ID))
	}
	return b.String()
}

func printObserveHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .status         Show the latest convergence status
  .attractors     List attractor manifolds
  .glyphs         List glyphs formed in this session
  .recluster      Run an attractor pass now
  .quit / .exit   Exit

Stimuli:
  [0.1, 0.2, 0.3]   JSON array
  0.1 0.2 0.3       numbers separated by spaces or commas
  0.5               one number for every component
`
	_, _ = fmt.Fprintln(w, help)
}

func newObserveCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".status"),
		readline.PcItem(".attractors"),
		readline.PcItem(".glyphs"),
		readline.PcItem(".recluster"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
