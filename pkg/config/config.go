// Package config loads runtime settings from defaults, an optional
// YAML file, PRIMUS_-prefixed environment variables and --set command
// line overrides, in that order.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/primus-os/primus/pkg/errors"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Data      DataConfig      `koanf:"data"`
	Inference InferenceConfig `koanf:"inference"`
	Index     IndexConfig     `koanf:"index"`
	Sandbox   SandboxConfig   `koanf:"sandbox"`
	Approvals ApprovalConfig  `koanf:"approvals"`
	HTTP      HTTPConfig      `koanf:"http"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type DataConfig struct {
	Dir     string `koanf:"dir"`
	Backend string `koanf:"backend"` // sqlite, memory
}

type InferenceConfig struct {
	Provider    string  `koanf:"provider"` // ollama, mock
	Model       string  `koanf:"model"`
	URL         string  `koanf:"url"`
	Temperature float64 `koanf:"temperature"`
}

type IndexConfig struct {
	Enabled  bool           `koanf:"enabled"`
	Qdrant   string         `koanf:"qdrant"`
	Embedder EmbedderConfig `koanf:"embedder"`
}

type EmbedderConfig struct {
	URL   string `koanf:"url"`
	Model string `koanf:"model"`
}

type SandboxConfig struct {
	// Passphrase seals sandbox bytes and the journal. Empty means
	// sealed storage is disabled; the daemon warns loudly.
	Passphrase string `koanf:"passphrase"`
}

type ApprovalConfig struct {
	// Sweep is how often pending approvals are checked for retired
	// requesters.
	Sweep time.Duration `koanf:"sweep"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"` // OTLP gRPC; empty uses stdout
}

const envPrefix = "PRIMUS_"

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("data.dir", "primus-data")
	k.Set("data.backend", "sqlite")

	k.Set("inference.provider", "ollama")
	k.Set("inference.model", "qwen2.5:7b-instruct-q5_K_M")
	k.Set("inference.url", "http://localhost:11434")

	k.Set("index.enabled", false)
	k.Set("index.qdrant", "localhost:6334")
	k.Set("index.embedder.url", "http://localhost:11434")
	k.Set("index.embedder.model", "nomic-embed-text")

	k.Set("approvals.sweep", "1m")

	// Loopback only. The control surface is for the local user.
	k.Set("http.addr", "127.0.0.1:8787")

	k.Set("telemetry.enabled", false)
}

// Load reads configuration from defaults, then the file at path if
// given, then PRIMUS_ environment variables.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadWithCLI is Load plus command line overrides: --config selects the
// file, --set key=value wins over everything. Unrelated arguments are
// ignored so callers can pass the whole command line.
func LoadWithCLI(args []string) (*Config, error) {
	path, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(path, sets)
}

func load(path string, sets []override) (*Config, error) {
	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfig, "config file load failed", err).
				WithContext("path", path)
		}
	}

	// PRIMUS_LOG_LEVEL -> log.level. Key segments are single words so
	// the underscore mapping stays unambiguous.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, errors.New(errors.CodeConfig, "environment load failed", err)
	}

	for _, o := range sets {
		k.Set(o.key, o.value)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfig, "config unmarshal failed", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type override struct {
	key   string
	value string
}

func parseCLIOverrides(args []string) (string, []override, error) {
	var (
		path string
		sets []override
	)
	next := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", errors.New(errors.CodeConfig, "missing value for "+flag, nil)
		}
		return args[i+1], nil
	}
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			v, err := next(i, "--config")
			if err != nil {
				return "", nil, err
			}
			path = v
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--set":
			v, err := next(i, "--set")
			if err != nil {
				return "", nil, err
			}
			o, err := parseSet(v)
			if err != nil {
				return "", nil, err
			}
			sets = append(sets, o)
			i++
		case strings.HasPrefix(args[i], "--set="):
			o, err := parseSet(strings.TrimPrefix(args[i], "--set="))
			if err != nil {
				return "", nil, err
			}
			sets = append(sets, o)
		}
	}
	return path, sets, nil
}

func parseSet(s string) (override, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return override{}, errors.New(errors.CodeConfig, "--set expects key=value", nil).
			WithContext("arg", s)
	}
	return override{key: key, value: value}, nil
}

// Validate rejects values the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.New(errors.CodeConfig, "log.format must be json or text", nil).
			WithContext("format", c.Log.Format)
	}
	switch c.Data.Backend {
	case "sqlite", "memory":
	default:
		return errors.New(errors.CodeConfig, "data.backend must be sqlite or memory", nil).
			WithContext("backend", c.Data.Backend)
	}
	if c.Data.Backend == "sqlite" && c.Data.Dir == "" {
		return errors.New(errors.CodeConfig, "data.dir is required for the sqlite backend", nil)
	}
	if c.Approvals.Sweep <= 0 {
		return errors.New(errors.CodeConfig, "approvals.sweep must be positive", nil)
	}
	if c.HTTP.Addr == "" {
		return errors.New(errors.CodeConfig, "http.addr is required", nil)
	}
	return nil
}
