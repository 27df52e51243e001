// Package cli implements the pantryd command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pantrylab/pantryd/internal/app/refresh"
	"github.com/pantrylab/pantryd/internal/daemon"
	"github.com/pantrylab/pantryd/internal/habit"
	"github.com/pantrylab/pantryd/internal/scheduler"
)

// Version is stamped by the build.
var Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pantryd",
	Short: "Household pantry inventory predictor daemon",
	Long: `pantryd learns per-product consumption cycles from inventory events
and predicts how many days of supply each household product has left.
It serves the predictor HTTP API and runs the daily maintenance jobs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the pantryd.toml config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pantryd.toml"
	}
	return home + "/.pantryd/pantryd.toml"
}

func buildDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the predictor daemon",
	Long:  `Start the HTTP API, the background dispatch worker, and the two daily jobs. Stops cleanly on SIGINT/SIGTERM.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := buildDaemon()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// ─── refresh ────────────────────────────────────────────────────────────────

var refreshCmd = &cobra.Command{
	Use:   "refresh USER_ID",
	Short: "Recompute all forecasts for one user",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	d, err := buildDaemon()
	if err != nil {
		return err
	}
	defer d.DB().Close()

	resolver := habit.NewResolver(d.DB(), d.Logger())
	engine := refresh.New(d.DB(), resolver, d.Logger())
	if err := engine.RefreshUser(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "forecasts refreshed for user %s\n", args[0])
	return nil
}

// ─── decay ──────────────────────────────────────────────────────────────────

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one state-decay pass immediately",
	Long:  `Run the daily state-decay job once, outside its midnight schedule. Useful after downtime that skipped a tick.`,
	RunE:  runDecay,
}

func runDecay(cmd *cobra.Command, args []string) error {
	d, err := buildDaemon()
	if err != nil {
		return err
	}
	defer d.DB().Close()

	resolver := habit.NewResolver(d.DB(), d.Logger())
	jobs := scheduler.New(d.DB(), resolver, d.Logger())
	if err := jobs.RunStateDecay(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "state decay pass complete")
	return nil
}

// ─── version ────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pantryd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "pantryd %s\n", Version)
	},
}
