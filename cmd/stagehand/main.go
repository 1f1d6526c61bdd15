package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atelierhq/stagehand"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Console    bool
}

// PortsFlags holds flags for the ports command.
type PortsFlags struct {
	Base int
	APIFlags
}

// EventsFlags holds flags for the events command.
type EventsFlags struct {
	Limit int
	APIFlags
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}
	portsFlags := &PortsFlags{}
	eventsFlags := &EventsFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(apiFlags),
		createStopCommand(apiFlags),
		createRestartCommand(apiFlags),
		createStatusCommand(apiFlags),
		createPortsCommand(portsFlags),
		createEventsCommand(eventsFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "stagehand",
		Short: "Local service orchestrator for the Atelier desktop app",
		Long: `Stagehand starts, supervises and health-checks the Atelier core backend
and the optional SeaweedFS object store on behalf of the desktop shell.

Examples:
  stagehand serve --config=settings.toml   # Run the orchestrator daemon
  stagehand start                          # Ask the daemon to start services
  stagehand status                         # Print the live status snapshot`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML settings file")
	return root
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon control URL (default http://127.0.0.1:43209/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [settings.toml]",
		Short: "Run the orchestrator daemon",
		Long: `Run the orchestrator daemon in the foreground. The daemon exposes the
loopback control API, supervises the managed services and, when auto
restart is enabled, restarts a crashed core backend with backoff.

Examples:
  stagehand serve settings.toml
  stagehand serve --config=settings.toml --console`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Console, "console", false, "also log to stderr")
	return cmd
}

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("settings file required. Use --config=settings.toml or provide as argument")
	}

	settings, err := stagehand.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(settings.LogsDir(), 0o750); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	log := stagehand.NewLogger(stagehand.LogConfig{
		FilePath: filepath.Join(settings.LogsDir(), "stagehand.log"),
		Level:    slog.LevelInfo,
		Console:  flags.Console,
	})
	if err := stagehand.RegisterMetricsDefault(); err != nil {
		log.Warn("metrics registration failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := stagehand.NewWithHistory(ctx, settings, log)
	if err != nil {
		log.Warn("event history unavailable, continuing without it", "err", err)
		orch = stagehand.New(settings, log)
	}

	server := orch.NewServer(settings.Server.Listen, settings.Server.BasePath)
	log.Info("control API listening", "addr", settings.Server.Listen)

	// Blocks until the signal context is cancelled.
	orch.Run(ctx)

	log.Info("shutting down")
	orch.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("control API shutdown", "err", err)
	}
	return nil
}

func createStartCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the managed services",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			if err := client.Start(); err != nil {
				return err
			}
			fmt.Println("started")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStopCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the managed services",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			if err := client.Stop(); err != nil {
				return err
			}
			fmt.Println("stopped")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createRestartCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the managed services",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			if err := client.Restart(); err != nil {
				return err
			}
			fmt.Println("restarted")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStatusCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the live status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			st, err := client.Status()
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createPortsCommand(flags *PortsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Suggest a free loopback port",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			port, err := client.SuggestPort(flags.Base)
			if err != nil {
				return err
			}
			fmt.Println(port)
			return nil
		},
	}
	cmd.Flags().IntVar(&flags.Base, "base", 0, "first port to probe (default 43210)")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createEventsCommand(flags *EventsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(flags.APIUrl, flags.APITimeout)
			events, err := client.Events(flags.Limit)
			if err != nil {
				return err
			}
			return printJSON(events)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 50, "maximum events to return")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
