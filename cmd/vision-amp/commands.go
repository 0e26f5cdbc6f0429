package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/internal/console"
	"github.com/menta2k/vision-amp/internal/log"
	"github.com/menta2k/vision-amp/internal/server"
)

var (
	port        int
	historyFile string
	force       bool
)

// modelsCmd lists configured models
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, m := range cfg.Models {
			marker := " "
			if m.Name == cfg.Model {
				marker = "*"
			}
			fmt.Printf("%s %-30s %s\n  %s\n", marker, m.Name, m.Model, m.InvokeURL)
		}
		return nil
	},
}

// serveCmd runs the HTTP host
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API with per-session image stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		// Fail fast on missing credentials instead of on the first request
		if _, err := visionamp.NewSession(cmd.Context(), cfg); err != nil {
			return err
		}

		srv := server.New(cfg, func(ctx context.Context) (*visionamp.Session, error) {
			return visionamp.NewSession(ctx, cfg)
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-quit:
			log.Infof("shutdown signal received")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

// consoleCmd starts an interactive session
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive session: upload images and ask questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := visionamp.NewSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		rl, err := console.NewReadline(historyFile)
		if err != nil {
			return err
		}
		return console.New(session, rl.Stdout()).Run(cmd.Context(), rl)
	},
}

// initConfigCmd writes the default configuration
var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration file",
	// The target file usually does not exist yet, so skip the root config loading
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().SaveToFile(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (overrides server.port)")

	home, _ := os.UserHomeDir()
	consoleCmd.Flags().StringVar(&historyFile, "history", filepath.Join(home, ".vision-amp_history"), "Readline history file")

	initConfigCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
}
