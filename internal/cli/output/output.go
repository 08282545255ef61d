// Package output renders command results as tables, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// OutputMode selects how results are written.
type OutputMode string

// Output modes.
const (
	ModeAuto  OutputMode = "auto" // TTY=table, non-TTY=json
	ModeTable OutputMode = "table"
	ModeJSON  OutputMode = "json"
	ModeYAML  OutputMode = "yaml"
)

// Renderer writes results to out and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	styles *Styles
}

// NewRenderer creates a renderer, resolving ModeAuto from whether out is a
// terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == ModeAuto || mode == "" {
		mode = ModeJSON
		if isTTY {
			mode = ModeTable
		}
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		styles: NewStyles(errOut, isTTY && os.Getenv("NO_COLOR") == ""),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mode returns the resolved output mode; never ModeAuto.
func (r *Renderer) Mode() OutputMode {
	return r.mode
}

// Styles returns the diagnostic styles. They are plain unless output goes to
// a terminal.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Out returns the result writer.
func (r *Renderer) Out() io.Writer {
	return r.out
}

// Render writes v as JSON or YAML, or calls fill to build a table.
func (r *Renderer) Render(v any, fill func(t table.Writer)) error {
	switch r.mode {
	case ModeJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case ModeYAML:
		return writeYAML(r.out, v)
	default:
		t := NewTable(r.out)
		fill(t)
		t.Render()
		return nil
	}
}

// NewTable returns a table writer in the house style mirrored to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// Infof writes a diagnostic line to errOut.
func (r *Renderer) Infof(format string, args ...any) {
	_, _ = fmt.Fprintf(r.errOut, format+"\n", args...)
}

// writeYAML emits v as block YAML keyed by its JSON field names. JSON is a
// subset of YAML, so the JSON encoding is re-read as a node tree and
// re-emitted, which keeps field order.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	clearStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// clearStyle drops the flow and quoting styles inherited from JSON.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}

// FormatFloat renders a float compactly for tables.
func FormatFloat(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

// FormatID renders an optional attractor id for tables.
func FormatID(id *int) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
