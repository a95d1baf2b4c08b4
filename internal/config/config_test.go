package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/formsense/pkg/types"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 3, cfg.ProbeRetries)
	assert.Equal(t, 1.5, cfg.ProbeBackoff)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 0.7, cfg.LowConfidenceThreshold)
	assert.True(t, cfg.OnlyLowConfidence)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8192, cfg.MaxHTMLChars)
	assert.Equal(t, 4.0, cfg.BoostDivisor)
	assert.Equal(t, []int{11434}, cfg.OllamaPorts)
	assert.Equal(t, []int{8000}, cfg.LMStudioPorts)

	dc := cfg.DiscoveryConfig()
	assert.Equal(t, types.BackendLMStudio, dc.CustomKind)
	assert.Equal(t, cfg.ProbeOptions(), dc.Probe)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formsense.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
custom_host: gpu-box
custom_kind: ollama
probe_timeout: 800ms
batch_size: 4
ollama_ports: [11434, 11435]
cache_ttl: 1m
`), 0o644))

	t.Setenv(ConfigPathEnv, path)
	t.Setenv("BATCH_SIZE", "6")
	t.Setenv("PROBE_BACKOFF", "2")
	t.Setenv("ONLY_LOW_CONFIDENCE", "false")
	t.Setenv("FORMSENSE_LMSTUDIO_PORTS", "8000, 1234")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpu-box", cfg.CustomHost)
	assert.Equal(t, 800*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 6, cfg.BatchSize, "env overrides file")
	assert.Equal(t, 2.0, cfg.ProbeBackoff)
	assert.False(t, cfg.OnlyLowConfidence)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, []int{11434, 11435}, cfg.OllamaPorts)
	assert.Equal(t, []int{8000, 1234}, cfg.LMStudioPorts)
	assert.Equal(t, 3, cfg.ProbeRetries, "unset keys keep defaults")

	dc := cfg.DiscoveryConfig()
	assert.Equal(t, types.BackendOllama, dc.CustomKind)

	sets := cfg.CandidateSets()
	require.Len(t, sets, 2)
	assert.Len(t, sets[0].Endpoints, 2)
	assert.Len(t, sets[1].Endpoints, 2)

	opts := cfg.ClassifyOptions()
	assert.Equal(t, 6, opts.BatchSize)
	assert.False(t, opts.OnlyLowConfidence)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("batch_size: [oops"), 0o644))
		t.Setenv(ConfigPathEnv, path)
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("invalid kind", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "")
		t.Setenv("FORMSENSE_CUSTOM_KIND", "tgi")
		_, err := Load()
		require.ErrorContains(t, err, "custom_kind")
	})

	t.Run("invalid threshold", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "")
		t.Setenv("LOW_CONFIDENCE_THRESHOLD", "1.5")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "notanint")
	assert.Equal(t, 7, getEnvInt("X_INT", 7))

	t.Setenv("X_LIST", "1,two,3")
	assert.Equal(t, []int{9}, getEnvIntList("X_LIST", []int{9}))

	t.Setenv("X_BOOL", "YES")
	assert.True(t, getEnvBool("X_BOOL", false))

	t.Setenv("X_MS", "250")
	assert.Equal(t, 250*time.Millisecond, getEnvDurationMs("X_MS", time.Second))
}
