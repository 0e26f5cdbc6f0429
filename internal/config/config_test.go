package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/vision-amp/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendNIM, cfg.Backend)
	assert.Equal(t, []string{"Llama-3.2-11b", "Llama-3.2-90b", "Llama-3.2-11b-vision-4xa10g"}, cfg.ModelNames())
	assert.Equal(t, 5*time.Minute, cfg.Request.Timeout)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "bedrock" }},
		{"unknown model", func(c *Config) { c.Model = "gpt-4" }},
		{"no models", func(c *Config) { c.Models = nil }},
		{"bad invoke url", func(c *Config) { c.Models[0].InvokeURL = "not a url" }},
		{"duplicate model", func(c *Config) { c.Models = append(c.Models, c.Models[0]) }},
		{"params out of range", func(c *Config) { c.Params.Temperature = 3 }},
		{"zero timeout", func(c *Config) { c.Request.Timeout = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad thumbnail format", func(c *Config) { c.Thumbnail.Format = "gif" }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"google without cx", func(c *Config) { c.Search.Provider = SearchGoogle }},
		{"unknown search provider", func(c *Config) { c.Search.Provider = "bing" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend: openai
model: Llama-3.2-90b
params:
  maxTokens: 512
  temperature: 0.2
request:
  timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, "Llama-3.2-90b", cfg.Model)
	assert.Equal(t, 512, cfg.Params.MaxTokens)
	assert.Equal(t, 0.2, cfg.Params.Temperature)
	assert.Equal(t, 1.0, cfg.Params.TopP)
	assert.Equal(t, 30*time.Second, cfg.Request.Timeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Len(t, cfg.Models, 3)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Model = "Llama-3.2-90b"
	cfg.Server.SessionTTL = 15 * time.Minute
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFindModel(t *testing.T) {
	cfg := Default()
	m, err := cfg.FindModel("Llama-3.2-11b-vision-4xa10g")
	require.NoError(t, err)
	assert.Equal(t, "CDP_TOKEN", m.TokenEnv)

	_, err = cfg.FindModel("nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestModelToken(t *testing.T) {
	t.Setenv("VISION_AMP_TEST_TOKEN", "abc")
	m := ModelConfig{Name: "m", TokenEnv: "VISION_AMP_TEST_TOKEN"}
	token, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	t.Setenv("VISION_AMP_TEST_TOKEN", "")
	_, err = m.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VISION_AMP_TEST_TOKEN")

	token, err = ModelConfig{Name: "local"}.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSearchAPIKey(t *testing.T) {
	t.Setenv("VISION_AMP_TEST_SERPER", "k")
	s := SearchConfig{Provider: SearchSerper, APIKeyEnv: "VISION_AMP_TEST_SERPER"}
	key, err := s.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "k", key)

	_, err = SearchConfig{Provider: SearchSerper}.APIKey()
	assert.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnv, "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", GetConfigPath())

	t.Setenv(ConfigPathEnv, "")
	assert.Contains(t, GetConfigPath(), filepath.Join("vision-amp", "config.yaml"))
}
