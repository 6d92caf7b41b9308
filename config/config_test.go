package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/model-runtime/errors"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultParamsCapacity, cfg.Params.Capacity)
	assert.Equal(t, "go-json", cfg.Params.Codec)
	assert.Equal(t, "ols", cfg.Learner.Learner)
	assert.Equal(t, 10000, cfg.Learner.MaxIter)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelrt.yaml")
	yml := `
log:
  level: debug
  format: console
learner:
  name: ols
  penalty: none
params:
  capacity: 4096
wasm:
  path: /opt/learner.wasm
  fit_timeout: 30s
metrics:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ols", cfg.Learner.Learner)
	assert.Equal(t, "none", cfg.Learner.Penalty)
	assert.Equal(t, 1e-4, cfg.Learner.Alpha, "unset fields keep defaults")
	assert.Equal(t, 4096, cfg.Params.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Wasm.FitTimeout)
	assert.Equal(t, uint32(256), cfg.Wasm.MemoryLimitPages)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "modelrt", cfg.Metrics.Namespace)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, errors.ErrNotFound)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unterminated"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, errors.ErrParse)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"MODELRT_LOG_LEVEL":        "info",
		"MODELRT_LEARNER":          "ols",
		"MODELRT_LEARNER_ALPHA":    "0.5",
		"MODELRT_LEARNER_MAX_ITER": " 200 ",
		"MODELRT_LEARNER_SEED":     "42",
		"MODELRT_PARAMS_CAPACITY":  "2048",
		"MODELRT_PARAMS_CODEC":     "json",
		"MODELRT_WASM_FIT_TIMEOUT": "1m",
		"MODELRT_METRICS_ENABLED":  "true",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "ols", cfg.Learner.Learner)
	assert.Equal(t, 0.5, cfg.Learner.Alpha)
	assert.Equal(t, 200, cfg.Learner.MaxIter)
	assert.Equal(t, uint64(42), cfg.Learner.Seed)
	assert.Equal(t, 2048, cfg.Params.Capacity)
	assert.Equal(t, "json", cfg.Params.Codec)
	assert.Equal(t, time.Minute, cfg.Wasm.FitTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{"MODELRT_LEARNER_MAX_ITER": "many"}))
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "MODELRT_LEARNER_MAX_ITER")
}

func TestFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("params:\n  capacity: 512\n"), 0o644))

	t.Setenv(EnvConfig, path)
	t.Setenv("MODELRT_LOG_LEVEL", "error")

	cfg, err := FromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Params.Capacity)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"learner", func(c *Config) { c.Learner.MaxIter = 0 }},
		{"codec", func(c *Config) { c.Params.Codec = "msgpack" }},
		{"capacity", func(c *Config) { c.Params.Capacity = 1 }},
		{"timeout", func(c *Config) { c.Wasm.FitTimeout = -time.Second }},
		{"pages", func(c *Config) { c.Wasm.Path = "x.wasm"; c.Wasm.MemoryLimitPages = 0 }},
		{"pages limit", func(c *Config) { c.Wasm.MemoryLimitPages = 70000 }},
		{"namespace", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Namespace = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidArgument)
		})
	}
}

func TestBuildLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := Default()
		cfg.Log.Format = format
		cfg.Log.Level = "debug"
		logger, err := cfg.BuildLogger()
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1))
		_ = logger.Sync()
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, EnvConfig)
	assert.Contains(t, names, "MODELRT_WASM_PATH")
}
