package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after defaults, the config file, GLYPHCORE_
environment variables and flags have been merged.`,
		Example: `  glyphcore config
  GLYPHCORE_ENGINE__DIMENSION=8 glyphcore config -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfig(cmd.Context())
		},
	}
}

func runConfig(ctx context.Context) error {
	rt := GetRuntime(ctx)
	cfg := rt.Config

	rows, err := flattenConfig(cfg)
	if err != nil {
		return err
	}

	titleCaser := cases.Title(language.English)
	if err := rt.Renderer.Render(cfg, func(t table.Writer) {
		t.AppendHeader(table.Row{"Section", "Key", "Value"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
		for _, r := range rows {
			section, key, found := strings.Cut(r[0], ".")
			if !found {
				section, key = "", section
			}
			t.AppendRow(table.Row{titleCaser.String(section), key, r[1]})
		}
	}); err != nil {
		return err
	}

	file := cfg.FileUsed
	if file == "" {
		file = "(none)"
	}
	rt.Renderer.Infof("config file: %s", file)
	return nil
}

// flattenConfig returns dotted key/value pairs sorted by key. Lists such as
// graph.nodes are shown as compact JSON.
func flattenConfig(v any) ([][2]string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}

	var rows [][2]string
	var walk func(prefix string, m map[string]any) error
	walk = func(prefix string, m map[string]any) error {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			switch x := val.(type) {
			case map[string]any:
				if err := walk(key, x); err != nil {
					return err
				}
			case []any:
				b, err := json.Marshal(x)
				if err != nil {
					return err
				}
				rows = append(rows, [2]string{key, string(b)})
			default:
				rows = append(rows, [2]string{key, fmt.Sprint(x)})
			}
		}
		return nil
	}
	if err := walk("", tree); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows, nil
}
