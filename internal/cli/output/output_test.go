package output

import (
	"bytes"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Step    int     `json:"step"`
	Tension float64 `json:"tension"`
	Label   string  `json:"label"`
}

func TestNewRendererWithTTY_ResolvesAuto(t *testing.T) {
	tests := []struct {
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{ModeAuto, true, ModeTable},
		{ModeAuto, false, ModeJSON},
		{"", true, ModeTable},
		{ModeYAML, true, ModeYAML},
		{ModeTable, false, ModeTable},
	}
	for _, tt := range tests {
		r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
		assert.Equal(t, tt.want, r.Mode(), "mode %q tty %v", tt.mode, tt.isTTY)
	}
}

func TestNewRenderer_BufferIsNotATerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.Equal(t, ModeJSON, r.Mode())
}

func TestRender(t *testing.T) {
	v := []row{{Step: 1, Tension: 0.25, Label: "true"}}
	fill := func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Step", "Tension"})
		tw.AppendRow(table.Row{1, FormatFloat(0.25)})
	}

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeJSON).Render(v, fill))
		assert.JSONEq(t, `[{"step":1,"tension":0.25,"label":"true"}]`, out.String())
	})

	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeYAML).Render(v, fill))
		assert.Equal(t, "- step: 1\n  tension: 0.25\n  label: \"true\"\n", out.String())
	})

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, NewRendererWithTTY(&out, &bytes.Buffer{}, true, ModeTable).Render(v, fill))
		assert.Contains(t, out.String(), "STEP")
		assert.Contains(t, out.String(), "0.25")
	})
}

func TestInfof(t *testing.T) {
	var errOut bytes.Buffer
	r := NewRendererWithTTY(&bytes.Buffer{}, &errOut, false, ModeJSON)
	r.Infof("stored %d glyphs", 3)
	assert.Equal(t, "stored 3 glyphs\n", errOut.String())
}

func TestFormatID(t *testing.T) {
	id := 4
	assert.Equal(t, "4", FormatID(&id))
	assert.Equal(t, "-", FormatID(nil))
}
