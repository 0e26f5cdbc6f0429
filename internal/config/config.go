package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/vision-amp/pkg/types"
)

// Backend names
const (
	BackendNIM    = "nim"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Search provider names
const (
	SearchSerper = "serper"
	SearchGoogle = "google"
	SearchNone   = "none"
)

// ConfigPathEnv overrides the default configuration file location
const ConfigPathEnv = "VISION_AMP_CONFIG"

// Config holds the application configuration
type Config struct {
	Backend   string            `yaml:"backend" validate:"oneof=nim openai ollama"`
	Model     string            `yaml:"model" validate:"required"`
	Models    []ModelConfig     `yaml:"models" validate:"required,min=1,dive"`
	Params    types.ModelParams `yaml:"params"`
	Search    SearchConfig      `yaml:"search"`
	Request   RequestConfig     `yaml:"request"`
	Server    ServerConfig      `yaml:"server"`
	Thumbnail ThumbnailConfig   `yaml:"thumbnail"`
	Log       LogConfig         `yaml:"log"`
}

// ModelConfig is one selectable model endpoint
type ModelConfig struct {
	Name      string `yaml:"name" json:"name" validate:"required"`
	InvokeURL string `yaml:"invokeURL" json:"invokeURL" validate:"required,url"`
	Model     string `yaml:"model" json:"model" validate:"required"`
	TokenEnv  string `yaml:"tokenEnv" json:"tokenEnv,omitempty"`
}

// SearchConfig selects the web-search backend used by enrichment
type SearchConfig struct {
	Provider   string `yaml:"provider" validate:"oneof=serper google none"`
	APIKeyEnv  string `yaml:"apiKeyEnv"`
	Endpoint   string `yaml:"endpoint" validate:"omitempty,url"`
	CX         string `yaml:"cx"`
	MaxResults int    `yaml:"maxResults" validate:"min=0,max=10"`
}

// RequestConfig bounds outgoing model calls
type RequestConfig struct {
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxInlineImageBytes int           `yaml:"maxInlineImageBytes" validate:"min=0"`
}

// ServerConfig holds HTTP host settings
type ServerConfig struct {
	Port       int           `yaml:"port" validate:"min=1,max=65535"`
	SessionTTL time.Duration `yaml:"sessionTTL" validate:"gt=0"`
}

// ThumbnailConfig controls gallery thumbnails
type ThumbnailConfig struct {
	Size    int    `yaml:"size" validate:"min=16,max=2048"`
	Format  string `yaml:"format" validate:"oneof=webp jpeg png"`
	Quality int    `yaml:"quality" validate:"min=1,max=100"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend: BackendNIM,
		Model:   "Llama-3.2-11b",
		Models: []ModelConfig{
			{
				Name:      "Llama-3.2-11b",
				InvokeURL: "https://ai.api.nvidia.com/v1/gr/meta/llama-3.2-11b-vision-instruct/chat/completions",
				Model:     "meta/llama-3.2-11b-vision-instruct",
				TokenEnv:  "NVIDIA_APIKEY",
			},
			{
				Name:      "Llama-3.2-90b",
				InvokeURL: "https://ai.api.nvidia.com/v1/gr/meta/llama-3.2-90b-vision-instruct/chat/completions",
				Model:     "meta/llama-3.2-90b-vision-instruct",
				TokenEnv:  "NVIDIA_APIKEY",
			},
			{
				Name:      "Llama-3.2-11b-vision-4xa10g",
				InvokeURL: "https://caii-prod-long-running.eng-ml-l.vnu8-sqze.cloudera.site/namespaces/serving-default/endpoints/llama-32-11b-vision-4xa10g/v1/chat/completions",
				Model:     "meta/llama-3.2-11b-vision-instruct",
				TokenEnv:  "CDP_TOKEN",
			},
		},
		Params: types.DefaultModelParams(),
		Search: SearchConfig{
			Provider:   SearchSerper,
			APIKeyEnv:  "SERPER_API_KEY",
			MaxResults: 5,
		},
		Request: RequestConfig{
			Timeout:             5 * time.Minute,
			MaxInlineImageBytes: 0,
		},
		Server: ServerConfig{
			Port:       8080,
			SessionTTL: 2 * time.Hour,
		},
		Thumbnail: ThumbnailConfig{
			Size:    256,
			Format:  "webp",
			Quality: 80,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Fields absent from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
	}
	if !seen[c.Model] {
		return fmt.Errorf("selected model %q is not configured", c.Model)
	}

	if c.Search.Provider == SearchGoogle && c.Search.CX == "" {
		return fmt.Errorf("search.cx is required for the google provider")
	}

	return nil
}

// FindModel returns the model configuration named name
func (c *Config) FindModel(name string) (ModelConfig, error) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, nil
		}
	}
	return ModelConfig{}, fmt.Errorf("%w: model %q", types.ErrNotFound, name)
}

// ModelNames lists configured model names in order
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		names = append(names, m.Name)
	}
	return names
}

// Token reads the bearer token from the environment. Models without a TokenEnv need no token.
func (m ModelConfig) Token() (string, error) {
	if m.TokenEnv == "" {
		return "", nil
	}
	token := os.Getenv(m.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is not set (needed by model %q)", m.TokenEnv, m.Name)
	}
	return token, nil
}

// APIKey reads the search API key from the environment
func (s SearchConfig) APIKey() (string, error) {
	if s.APIKeyEnv == "" {
		return "", fmt.Errorf("search.apiKeyEnv is not set")
	}
	key := os.Getenv(s.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set (needed by search provider %q)", s.APIKeyEnv, s.Provider)
	}
	return key, nil
}

// GetConfigPath returns the configuration file path
func GetConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "vision-amp", "config.yaml")
}
