package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, testConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero base", func(c *Config) { c.BaseSize = 0 }},
		{"unaligned base", func(c *Config) { c.BaseSize = 6; c.MaxCapacity = 12 }},
		{"capacity not pow2 multiple", func(c *Config) { c.MaxCapacity = c.BaseSize * 3 }},
		{"capacity below base", func(c *Config) { c.MaxCapacity = c.BaseSize / 2 }},
		{"no instances", func(c *Config) { c.MaxInstances = 0 }},
		{"ratio zero", func(c *Config) { c.ShrinkRatio = 0 }},
		{"ratio one", func(c *Config) { c.ShrinkRatio = 1 }},
		{"no vertices", func(c *Config) { c.MaxVertices = 0 }},
		{"vertices exceed capacity", func(c *Config) { c.MaxVertices = c.MaxCapacity/4 + 1 }},
		{"negative idle", func(c *Config) { c.IdleFrames = -1 }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigValidateVertexBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVertices = cfg.MaxCapacity / 4
	assert.NoError(t, cfg.Validate())
	cfg.MaxVertices++
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "batch.toml", `
base_size = 1024
max_capacity = 8192
shrink_ratio = 0.25
transform_uniform = "model"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.BaseSize)
	assert.Equal(t, 8192, cfg.MaxCapacity)
	assert.Equal(t, 0.25, cfg.ShrinkRatio)
	assert.Equal(t, "model", cfg.TransformUniform)
	assert.Equal(t, DefaultMaxInstances, cfg.MaxInstances)
	assert.Equal(t, DefaultIdleFrames, cfg.IdleFrames)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "batch.yml", `
max_instances: 4096
max_vertices: 512
idle_frames: 0
workers: 3
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.MaxInstances)
	assert.Equal(t, 512, cfg.MaxVertices)
	assert.Zero(t, cfg.IdleFrames)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, DefaultBaseSize, cfg.BaseSize)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "batch.json", `{}`))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = LoadConfig(writeConfig(t, "batch.toml", `base_size = "big"`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "batch.yaml", "shrink_ratio: 2\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
