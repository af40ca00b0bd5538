// Command computed runs the compute backend: the broker, its workers and
// the maintenance jobs, together or as separate processes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "computed:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "computed",
		Short:         "Compute backend for the trading platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newServeCmd(flags),
		newBrokerCmd(flags),
		newWorkerCmd(flags),
		newCallCmd(flags),
		newStatsCmd(flags),
		newCleanupCmd(flags),
	)
	return root
}

// load resolves the config file, environment and flags, in that order.
func (f *rootFlags) load() (fileConfig, error) {
	cfg, err := loadConfig(f.configPath, os.Getenv)
	if err != nil {
		return cfg, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}
