// Package config loads runtime configuration for icaflow. Sources are
// layered with koanf: built-in defaults, then an optional icaflow.yaml,
// then ICAFLOW_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/calidata/icaflow/internal/source"
)

// Config file names probed in the working directory.
const (
	ConfigFileName    = "icaflow.yaml"
	ConfigFileNameAlt = "icaflow.yml"
)

// StoreConfig holds relational store connection settings.
type StoreConfig struct {
	// Type selects the backend: sqlite or postgres.
	Type string `koanf:"type"`

	// Path is the database file for the sqlite backend;
	// ":memory:" gives an in-memory store.
	Path string `koanf:"path"`

	// Network settings for the postgres backend.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`

	// ConnectTimeout bounds connect/ping; MaxRetries bounds how
	// often a failed connect is retried before the run fails.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	MaxRetries     int           `koanf:"max_retries"`

	// LockMode is advisory (runs serialize on a store-level lock)
	// or none (rely on last-committer-wins upserts).
	LockMode string `koanf:"lock_mode"`
}

// PipelineConfig holds transform-stage parameters.
type PipelineConfig struct {
	// MaxGapHours is the widest gap the imputer will fill.
	MaxGapHours int `koanf:"max_gap_hours"`

	// Priority is the pollutant tie-break order for the dominant
	// pollutant; empty means the built-in default.
	Priority []string `koanf:"priority"`

	// SourceLabel names the extraction source in the run log.
	SourceLabel string `koanf:"source_label"`

	// RunTimeout bounds one full pipeline pass.
	RunTimeout time.Duration `koanf:"run_timeout"`
}

// Config is the root configuration object handed to each component at
// construction; there is no global mutable configuration state.
type Config struct {
	Store           StoreConfig               `koanf:"store"`
	Pipeline        PipelineConfig            `koanf:"pipeline"`
	BreakpointsFile string                    `koanf:"breakpoints_file"`
	Sources         map[string]source.Mapping `koanf:"sources"`
	Verbose         bool                      `koanf:"verbose"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"store.type":             "sqlite",
		"store.path":             "icaflow.db",
		"store.port":             5432,
		"store.sslmode":          "disable",
		"store.connect_timeout":  "10s",
		"store.max_retries":      3,
		"store.lock_mode":        "advisory",
		"pipeline.max_gap_hours": 3,
		"pipeline.source_label":  "manual-csv",
		"pipeline.run_timeout":   "5m",
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"store-type":    "store.type",
	"store-path":    "store.path",
	"store-host":    "store.host",
	"store-port":    "store.port",
	"database":      "store.database",
	"lock-mode":     "store.lock_mode",
	"max-gap-hours": "pipeline.max_gap_hours",
	"source":        "pipeline.source_label",
	"breakpoints":   "breakpoints_file",
	"verbose":       "verbose",
}

// Load resolves the configuration. cfgFile may be empty, in which case
// icaflow.yaml/.yml in the working directory is used when present.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigFile()
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	// ICAFLOW_STORE__PATH=... ; double underscore separates levels so
	// keys like max_gap_hours survive.
	err := k.Load(env.Provider("ICAFLOW_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "ICAFLOW_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only flags that were explicitly set override the file/env.
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigFile() string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.Host == "" || c.Store.Database == "" {
			return fmt.Errorf("store.host and store.database are required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.type %q (sqlite or postgres)", c.Store.Type)
	}

	switch c.Store.LockMode {
	case "advisory", "none":
	default:
		return fmt.Errorf("unknown store.lock_mode %q (advisory or none)", c.Store.LockMode)
	}

	if c.Pipeline.MaxGapHours < 0 {
		return fmt.Errorf("pipeline.max_gap_hours must not be negative")
	}

	for label, m := range c.Sources {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", label, err)
		}
	}
	return nil
}

// Mappings merges the built-in source mappings with configured ones;
// configured labels override built-ins.
func (c *Config) Mappings() map[string]source.Mapping {
	out := source.BuiltinMappings()
	for label, m := range c.Sources {
		out[label] = m
	}
	return out
}
