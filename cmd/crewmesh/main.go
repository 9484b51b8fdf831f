// Package main provides the crewmesh binary entry point.
// Crewmesh keeps event-staff presence, attendance, and logistics state
// synchronized across peers over a replicated NATS key-value mesh.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewmesh/crewmesh/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "crewmesh"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		userID      string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "crewmesh",
		Short: "Event-staff presence mesh",
		Long: `Crewmesh is a peer-to-peer presence and coordination node for
event staff. Each peer publishes its own telemetry into a replicated
NATS key-value bucket and reconciles every peer's writes into a local
live view: who is online, who is inside the event zone, session
attendance, messages, work logs, and equipment state.

There is no central server; any peer can host the embedded NATS
instance the others connect to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel, userID, interactive)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Local user id from the roster")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run the interactive console")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	// Config commands
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(slog.Default()).EnsureUserConfig()
		},
	})
	cmd.AddCommand(configCmd)

	return cmd
}

func run(configPath, logLevel, userID string, interactive bool) error {
	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(logger)
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := NewApp(cfg, userID, logger)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Shutdown(10 * time.Second)

	if interactive {
		return app.RunConsole(ctx)
	}

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("received shutdown signal")
	return nil
}
