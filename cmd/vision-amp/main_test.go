package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/pkg/types"
)

func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		configPath, modelName, backend = "", "", ""
	})
}

func TestLoadConfigDefaultsWithOverrides(t *testing.T) {
	resetFlags(t)
	t.Setenv(config.ConfigPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	modelName = "Llama-3.2-90b"
	backend = config.BackendOpenAI

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "Llama-3.2-90b", c.Model)
	assert.Equal(t, config.BackendOpenAI, c.Backend)
}

func TestLoadConfigFromFile(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	def := config.Default()
	def.Server.Port = 9999
	require.NoError(t, def.SaveToFile(path))

	configPath = path
	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, c.Server.Port)
}

func TestLoadConfigRejectsUnknownModel(t *testing.T) {
	resetFlags(t)
	t.Setenv(config.ConfigPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	modelName = "no-such-model"

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	resetFlags(t)
	t.Setenv(config.ConfigPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	backend = "llamacpp"

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestCompleteModels(t *testing.T) {
	resetFlags(t)
	t.Setenv(config.ConfigPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	names, directive := completeModels(rootCmd, nil, "")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Equal(t, []string{"Llama-3.2-11b", "Llama-3.2-90b", "Llama-3.2-11b-vision-4xa10g"}, names)
}

func TestInitConfigWritesNewFile(t *testing.T) {
	resetFlags(t)
	t.Cleanup(func() { force = false })
	path := filepath.Join(t.TempDir(), "new.yaml")

	rootCmd.SetArgs([]string{"init-config", "--config", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	_, err := os.Stat(path)
	require.NoError(t, err)
	c, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Model, c.Model)

	rootCmd.SetArgs([]string{"init-config", "--config", path})
	assert.Error(t, rootCmd.Execute(), "existing file is kept without --force")
}

func TestPrintAnswer(t *testing.T) {
	tests := []struct {
		name     string
		resp     types.VisionResponse
		streamed bool
		expected string
	}{
		{"plain", types.VisionResponse{Text: "a map"}, false, "a map\n"},
		{"streamed text already shown", types.VisionResponse{Text: "a map"}, true, "\n"},
		{"streamed without content", types.VisionResponse{Text: types.NoResponseText, Fallback: true}, true, types.NoResponseText + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printAnswer(&buf, tt.resp, tt.streamed)
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}
