package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".py", cfg.Corpus.Extension)
	assert.Equal(t, 510, cfg.Window.ChunkSize)
	assert.Equal(t, 256, cfg.Window.Stride)
}

func TestLoadWithoutFiles(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default().Window, cfg.Window)
}

func TestLoadMissingEnvFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	assert.NoError(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "patternvec.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
encoder:
  provider: remote
  endpoint: http://yaml:8080
  hidden_size: 32
  timeout: 5s
window:
  chunk_size: 64
  stride: 32
corpus:
  extension: .go
  workers: 2
`), 0644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PATTERNVEC_STRIDE=16\nPATTERNVEC_MODEL=from-dotenv\n"), 0644))

	// Register cleanup, then unset so the .env file can populate them
	t.Setenv("PATTERNVEC_STRIDE", "")
	t.Setenv("PATTERNVEC_MODEL", "")
	require.NoError(t, os.Unsetenv("PATTERNVEC_STRIDE"))
	require.NoError(t, os.Unsetenv("PATTERNVEC_MODEL"))
	t.Setenv("PATTERNVEC_INFERENCE_URL", "http://env:9090")

	cfg, err := Load(envPath, yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "remote", cfg.Encoder.Provider)
	assert.Equal(t, "http://env:9090", cfg.Encoder.Endpoint, "env overrides yaml")
	assert.Equal(t, 32, cfg.Encoder.HiddenSize)
	assert.Equal(t, 5*time.Second, cfg.Encoder.Timeout)
	assert.Equal(t, 64, cfg.Window.ChunkSize)
	assert.Equal(t, 16, cfg.Window.Stride, ".env overrides yaml")
	assert.Equal(t, "from-dotenv", cfg.Encoder.Model)
	assert.Equal(t, ".go", cfg.Corpus.Extension)
	assert.Equal(t, 2, cfg.Corpus.Workers)
	assert.Equal(t, "info", cfg.Log.Level, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("PATTERNVEC_CHUNK_SIZE", "lots")

	_, err := Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PATTERNVEC_CHUNK_SIZE")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: [unclosed"), 0644))

	_, err := Load("", path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk", func(c *Config) { c.Window.ChunkSize = 0 }},
		{"zero stride", func(c *Config) { c.Window.Stride = 0 }},
		{"stride above chunk", func(c *Config) { c.Window.Stride = c.Window.ChunkSize + 1 }},
		{"negative cache", func(c *Config) { c.Window.CacheSize = -1 }},
		{"zero hidden", func(c *Config) { c.Encoder.HiddenSize = 0 }},
		{"remote without endpoint", func(c *Config) { c.Encoder.Provider = "remote" }},
		{"unknown provider", func(c *Config) { c.Encoder.Provider = "quantum" }},
		{"zero workers", func(c *Config) { c.Corpus.Workers = 0 }},
		{"no extension", func(c *Config) { c.Corpus.Extension = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
