package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shailesh-Murmu/AutoMpp/internal/config"
	"github.com/Shailesh-Murmu/AutoMpp/internal/logger"
)

type configLoader func() (*config.Config, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "autompp",
		Short: "Manage and run document-compliance automation tasks",
		Long: `Manage the task file and run single tasks interactively.

The headless loop (autompp-headless) runs every task on a schedule; this
command edits the same task file and runs one task on demand.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Log.Mode = logger.ModeInteractive
		return cfg, nil
	}
	root.AddCommand(
		newTasksCmd(load),
		newRunCmd(load),
		newLogCmd(load),
	)
	return root
}
