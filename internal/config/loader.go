package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "glyphcore.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "glyphcore.yml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// sections: GLYPHCORE_ENGINE__CONTRACTION_RATIO -> engine.contraction_ratio.
const EnvPrefix = "GLYPHCORE_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are command options, not configuration.
var flagKeys = map[string]string{
	"dimension":         "engine.dimension",
	"epsilon":           "engine.epsilon_threshold",
	"noise-variance":    "engine.noise_variance",
	"contraction-ratio": "engine.contraction_ratio",
	"history-size":      "engine.history_size",
	"window":            "engine.convergence_window",
	"glyph-components":  "engine.glyph_components",
	"seed":              "session.seed",
	"recluster-every":   "session.recluster_every",
	"glyph-signal":      "session.glyph_signal",
	"parallelism":       "graph.parallelism",
	"store":             "store.path",
	"retention":         "store.retention",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"output":            "output",
}

// Load loads configuration from defaults, cfgFile (or a glyphcore.yaml found
// by walking up from the working directory), the environment and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// Only flags that were explicitly set override anything. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfgFile = FindConfigFile(cwd)
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = cfgFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the validated built-in configuration.
func Default() *Config {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(Defaults(), "."), nil)
	var cfg Config
	_ = k.Unmarshal("", &cfg)
	return &cfg
}

// envKey turns GLYPHCORE_ENGINE__DIMENSION into engine.dimension.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// findConfigFileIn returns the config file in dir, or "".
func findConfigFileIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindConfigFile walks up from startDir looking for glyphcore.yaml or
// glyphcore.yml. Returns empty string if not found.
func FindConfigFile(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if path := findConfigFileIn(dir); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}
