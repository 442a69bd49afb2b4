package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"FeedbackFlow/internal/app"
	"FeedbackFlow/internal/config"
	"FeedbackFlow/internal/logging"
	"FeedbackFlow/internal/watch"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "feedbackflow",
		Short:         "FeedbackFlow turns design review comments into development tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (defaults to $FEEDBACKFLOW_CONFIG)")

	load := func() config.Config {
		if configPath != "" {
			return config.LoadFile(configPath)
		}
		return config.Load()
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(processCmd(load))
	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(watchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		stop()
		os.Exit(1)
	}
}

func build(ctx context.Context, cfg config.Config) (*app.Application, *slog.Logger, error) {
	logger := logging.New(cfg.Logging)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

func serveCmd(load func() config.Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			if addr != "" {
				cfg.Server.Address = addr
			}

			application, logger, err := build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Serve(cmd.Context()); err != nil {
				logger.Error("application stopped", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.address)")
	return cmd
}

func processCmd(load func() config.Config) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process pending feedback for one owner and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := build(cmd.Context(), load())
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.ProcessOnce(cmd.Context(), owner)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose feedback should be processed")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func migrateCmd(load func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, logger, err := build(cmd.Context(), load())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema ready")
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var (
		server     string
		owner      string
		noColor    bool
		heartbeats bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live processing events for one owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := watch.NewPrinter(cmd.OutOrStdout(), !noColor, heartbeats)
			client := watch.NewClient(server, &http.Client{})

			err := client.Stream(cmd.Context(), owner, printer.Print)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "FeedbackFlow server URL")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose events should be shown")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&heartbeats, "heartbeats", false, "Show heartbeat events")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
