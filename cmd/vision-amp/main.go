package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/internal/log"
	"github.com/menta2k/vision-amp/internal/utils"
)

var (
	configPath string
	modelName  string
	backend    string
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vision-amp",
	Short: "Ask hosted vision models about images",
	Long: `vision-amp sends an image and a prompt to a hosted vision-capable LLM and
prints the answer. The enrich command adds a second pass that looks up current
weather alerts for every location the model reports.

Tokens are read from the environment variable named by each model's tokenEnv
(NVIDIA_APIKEY or CDP_TOKEN by default); the search key from SERPER_API_KEY.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Log.Level
		if verbose {
			level = log.LevelDebug
		}
		log.SetLevel(level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

// readConfig reads the explicit --config file, else the default location when
// present, else the built-in defaults.
func readConfig() (*config.Config, error) {
	switch {
	case configPath != "":
		return config.LoadFromFile(configPath)
	case utils.FileExists(config.GetConfigPath()):
		return config.LoadFromFile(config.GetConfigPath())
	default:
		return config.Default(), nil
	}
}

// loadConfig applies flag overrides on top of readConfig and validates the result
func loadConfig() (*config.Config, error) {
	c, err := readConfig()
	if err != nil {
		return nil, err
	}
	if modelName != "" {
		c.Model = modelName
	}
	if backend != "" {
		c.Backend = backend
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// completeModels offers the configured model names for --model
func completeModels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	c, err := readConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return c.ModelNames(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $"+config.ConfigPathEnv+" or ~/.config/vision-amp/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "Configured model name to use")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Backend: nim, openai or ollama")
	_ = rootCmd.RegisterFlagCompletionFunc("model", completeModels)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.Version = visionamp.Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
