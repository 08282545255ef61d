// Package commands implements the glyphcore subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/glyphcore/internal/cli/output"
	"github.com/leapstack-labs/glyphcore/internal/config"
	"github.com/leapstack-labs/glyphcore/internal/state"
)

// runtimeKey is used to store the Runtime in context.
type runtimeKey struct{}

// Runtime is what the root command prepares before a subcommand runs.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// WithRuntime returns ctx carrying rt.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// GetRuntime retrieves the Runtime from ctx, falling back to built-in
// defaults when a command runs outside the root command.
func GetRuntime(ctx context.Context) *Runtime {
	if ctx != nil {
		if rt, ok := ctx.Value(runtimeKey{}).(*Runtime); ok {
			return rt
		}
	}
	return &Runtime{
		Config:   config.Default(),
		Logger:   slog.New(slog.DiscardHandler),
		Renderer: output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto),
	}
}

// openStore opens the glyph store named by the configuration, creating its
// directory if needed.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	path := cfg.Store.Path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(state.Options{Retention: cfg.Store.Retention, Logger: logger})
	if err := store.Open(path); err != nil {
		return nil, err
	}
	return store, nil
}
