package main

import (
	"context"
	"delivery-estimate-service/internal/adapters/cache"
	"delivery-estimate-service/internal/adapters/repositories"
	"delivery-estimate-service/internal/app"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	seedFile string
	hours    int
)

var rootCmd = &cobra.Command{
	Use:           "dbtool",
	Short:         "Maintenance commands for the delivery estimate stores",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the SQLite schema, and the Postgres orders table when DATABASE_URL is set",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
		return nil
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo orders from a JSON file into SQLite",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
		path := seedFile
		if path == "" {
			path = a.Config.SeedPath
		}
		if err := repositories.SeedFromJSON(a.SQLite, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded orders from %s\n", path)
		return nil
	}),
}

var estimateCmd = &cobra.Command{
	Use:   "estimate ADDRESS",
	Short: "Print a delivery estimate for an address",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		est, err := a.Estimator.Estimate(cmd.Context(), strings.Join(args, " "), nil)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), est)
	}),
}

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Print estimate accuracy over completed deliveries",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
		if hours < 1 {
			return errors.New("--hours must be at least 1")
		}
		report, err := a.Monitor.AnalyzeAccuracy(cmd.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	}),
}

var purgeCmd = &cobra.Command{
	Use:   "purge-cache",
	Short: "Delete expired rows from the SQLite distance cache",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
		n, err := cache.NewSqliteDistanceCache(a.SQLite, nil).Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed file (default: SEED_PATH)")
	accuracyCmd.Flags().IntVar(&hours, "hours", 24, "analysis window in hours")

	rootCmd.AddCommand(migrateCmd, seedCmd, estimateCmd, accuracyCmd, purgeCmd)
}

// withApp loads config, builds the app and closes it after fn returns.
func withApp(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		obs.InitLogger(cfg.LogLevel, cfg.LogJSON)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
			cmd.SetContext(ctx)
		}

		a, err := app.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(cmd, a, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
