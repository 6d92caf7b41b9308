// Package config loads runtime settings.
//
// A shared library cannot receive command-line flags, so settings come from
// an optional YAML file named by MODELRT_CONFIG, then from MODELRT_*
// environment variables, which take precedence:
//
//	log:
//	  level: info        # debug, info, warn, error
//	  format: json       # json or console
//	learner:
//	  name: ols          # ols, sgd or wasm
//	  max_iter: 10000
//	params:
//	  capacity: 1024     # bytes get_params may write, NUL included
//	  codec: go-json
//	wasm:
//	  path: ./learner.wasm
//	  memory_limit_pages: 256
//	  fit_timeout: 30s
//	metrics:
//	  enabled: true
//	  namespace: modelrt
//	  listen: 127.0.0.1:9464
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/model-runtime/codec"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "MODELRT_CONFIG"

// DefaultParamsCapacity is the buffer size get_params assumes.
const DefaultParamsCapacity = 1024

// Config holds all runtime settings.
type Config struct {
	Log     LogConfig         `yaml:"log"`
	Learner model.Hyperparams `yaml:"learner"`
	Params  ParamsConfig      `yaml:"params"`
	Wasm    WasmConfig        `yaml:"wasm"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ParamsConfig controls parameter text encoding.
type ParamsConfig struct {
	Codec    string `yaml:"codec"`
	Capacity int    `yaml:"capacity"`
}

// WasmConfig enables the WebAssembly learner when Path is set.
type WasmConfig struct {
	Path             string        `yaml:"path"`
	FitTimeout       time.Duration `yaml:"fit_timeout"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages"`
}

// MetricsConfig enables metrics collection.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Listen    string `yaml:"listen"`
	Enabled   bool   `yaml:"enabled"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "json",
			Output: "stderr",
		},
		Learner: model.DefaultHyperparams(),
		Params: ParamsConfig{
			Codec:    codec.Default.Name(),
			Capacity: DefaultParamsCapacity,
		},
		Wasm: WasmConfig{
			MemoryLimitPages: 256,
		},
		Metrics: MetricsConfig{
			Namespace: "modelrt",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindParseError, err, "parse config file "+path)
	}
	return cfg, nil
}

// FromEnvironment loads the file named by MODELRT_CONFIG, if any, applies
// MODELRT_* overrides and validates the result.
func FromEnvironment() (Config, error) {
	cfg := Default()
	if path, ok := os.LookupEnv(EnvConfig); ok && path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type envVar struct {
	name  string
	apply func(*Config, string) error
}

var envVars = []envVar{
	{"MODELRT_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"MODELRT_LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"MODELRT_LOG_OUTPUT", func(c *Config, v string) error { c.Log.Output = v; return nil }},
	{"MODELRT_LEARNER", func(c *Config, v string) error { c.Learner.Learner = v; return nil }},
	{"MODELRT_LEARNER_ALPHA", floatVar(func(c *Config) *float64 { return &c.Learner.Alpha })},
	{"MODELRT_LEARNER_PENALTY", func(c *Config, v string) error { c.Learner.Penalty = v; return nil }},
	{"MODELRT_LEARNER_TOL", floatVar(func(c *Config) *float64 { return &c.Learner.Tol })},
	{"MODELRT_LEARNER_MAX_ITER", intVar(func(c *Config) *int { return &c.Learner.MaxIter })},
	{"MODELRT_LEARNER_SEED", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		c.Learner.Seed = n
		return err
	}},
	{"MODELRT_PARAMS_CODEC", func(c *Config, v string) error { c.Params.Codec = v; return nil }},
	{"MODELRT_PARAMS_CAPACITY", intVar(func(c *Config) *int { return &c.Params.Capacity })},
	{"MODELRT_WASM_PATH", func(c *Config, v string) error { c.Wasm.Path = v; return nil }},
	{"MODELRT_WASM_FIT_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.Wasm.FitTimeout = d
		return err
	}},
	{"MODELRT_WASM_MEMORY_LIMIT_PAGES", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		c.Wasm.MemoryLimitPages = uint32(n)
		return err
	}},
	{"MODELRT_METRICS_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Metrics.Enabled = b
		return err
	}},
	{"MODELRT_METRICS_NAMESPACE", func(c *Config, v string) error { c.Metrics.Namespace = v; return nil }},
	{"MODELRT_METRICS_LISTEN", func(c *Config, v string) error { c.Metrics.Listen = v; return nil }},
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		*field(c) = f
		return err
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		*field(c) = n
		return err
	}
}

// ApplyEnv applies MODELRT_* overrides found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.apply(c, strings.TrimSpace(v)); err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
				Path(ev.name).
				Value(v).
				Cause(err).
				Detail("cannot parse environment override").
				Build()
		}
	}
	return nil
}

// EnvNames lists the recognized environment variables.
func EnvNames() []string {
	names := []string{EnvConfig}
	for _, ev := range envVars {
		names = append(names, ev.name)
	}
	return names
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	invalid := func(path ...string) *errors.Builder {
		return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).Path(path...)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return invalid("log", "level").Cause(err).Build()
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log", "format").Detail("unknown format %q", c.Log.Format).Build()
	}
	if err := c.Learner.Validate(); err != nil {
		return err
	}
	if _, ok := codec.ByName(c.Params.Codec); !ok {
		return invalid("params", "codec").Detail("unknown codec %q, want one of %s",
			c.Params.Codec, strings.Join(codec.Names(), ", ")).Build()
	}
	if c.Params.Capacity < 2 {
		return invalid("params", "capacity").Detail("capacity must hold at least one byte and a NUL, got %d", c.Params.Capacity).Build()
	}
	if c.Wasm.FitTimeout < 0 {
		return invalid("wasm", "fit_timeout").Detail("negative timeout %s", c.Wasm.FitTimeout).Build()
	}
	if c.Wasm.Path != "" && c.Wasm.MemoryLimitPages == 0 {
		return invalid("wasm", "memory_limit_pages").Detail("must be positive").Build()
	}
	if c.Wasm.MemoryLimitPages > 65536 {
		return invalid("wasm", "memory_limit_pages").Detail("%d exceeds the 4GiB wasm32 limit", c.Wasm.MemoryLimitPages).Build()
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics", "namespace").Detail("namespace is required when metrics are enabled").Build()
	}
	return nil
}

// String renders the config as YAML.
func (c Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}
