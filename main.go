package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"

	"noise-lab/config"
	"noise-lab/db"
	"noise-lab/utils"
)

const (
	serviceName    = "noise-lab"
	serviceVersion = "0.3.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Online acoustic identity discovery",
	Long: `noise-lab listens to streamed audio frames, clusters them into recurring
acoustic identities and lets an operator approve or reject what it finds.

Configuration is read from an optional YAML file (--config), then from the
environment (a .env file in the working directory is loaded first).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streaming and admin server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("proto") {
			cfg.Server.Protocol, _ = cmd.Flags().GetString("proto")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetString("port")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		utils.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events [identity-id]",
	Short: "Print journaled identity events",
	Long: `Print the most recent identity lifecycle events from the journal, or the
full history of one identity when an id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Journal.Path == "" {
			return fmt.Errorf("journal is disabled (JOURNAL_PATH is empty)")
		}

		client, err := db.NewSQLiteClient(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer client.Close()

		var entries []db.Entry
		if len(args) == 1 {
			entries, err = client.EventsForIdentity(cmd.Context(), args[0])
		} else {
			entries, err = client.RecentEvents(cmd.Context(), eventsLimit)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, serviceVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")

	serveCmd.Flags().String("proto", "http", "Protocol to use (http or https)")
	serveCmd.Flags().StringP("port", "p", "8000", "Port to use")

	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "number of recent events to print")

	rootCmd.AddCommand(serveCmd, eventsCmd, versionCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
