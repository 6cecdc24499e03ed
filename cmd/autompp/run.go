package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/console"
	"github.com/Shailesh-Murmu/AutoMpp/internal/interactive"
	"github.com/Shailesh-Murmu/AutoMpp/internal/logger"
	"github.com/Shailesh-Murmu/AutoMpp/internal/orchestrator"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
	"github.com/Shailesh-Murmu/AutoMpp/internal/wiring"
)

type runVerb struct {
	name     string
	category taskdef.Category
	short    string
	force    string
}

var runVerbs = []runVerb{
	{name: "sync", category: taskdef.CategorySync, short: "Download a Drive or object-storage folder"},
	{name: "send", category: taskdef.CategoryMessage, short: "Send a scheduled email task",
		force: "send now regardless of the scheduled date, without recording it"},
	{name: "reconcile", category: taskdef.CategoryReconcile, short: "Regenerate a compliance tracker",
		force: "regenerate even when the inputs are unchanged"},
	{name: "update-form", category: taskdef.CategorySchemaUpdate, short: "Push roster values into form dropdowns",
		force: "push even when the roster is unchanged"},
	{name: "remind", category: taskdef.CategoryFollowUp, short: "Send follow-up reminders for a tracker",
		force: "ignore the date range and frequency (recipients already reminded today are still skipped)"},
}

func newRunCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one task now with live progress",
	}
	for _, verb := range runVerbs {
		cmd.AddCommand(newRunVerbCmd(load, verb))
	}
	return cmd
}

func newRunVerbCmd(load configLoader, verb runVerb) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   verb.name + " <title>",
		Short: verb.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, err := logger.New(logger.ConfigParams{Cfg: cfg})
			if err != nil {
				return err
			}
			defer log.Sync()

			backend, closeBackend, err := wiring.OpenBackend(cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			orch := wiring.NewOrchestrator(cfg, log, wiring.NewTaskStore(cfg), backend, wiring.NewGatewayFactory(cfg))
			runner := interactive.NewRunner(log)
			title := args[0]
			log.Info("interactive run requested", zap.String("category", string(verb.category)), zap.String("task", title), zap.Bool("force", force))

			completion, err := console.Run(cmd.Context(), runner, fmt.Sprintf("%s %q", verb.name, title),
				func(ctx context.Context, progress func(current, total int)) (outcome.Result, error) {
					return orch.RunOne(ctx, verb.category, title, orchestrator.RunOptions{Force: force, Progress: progress})
				},
				console.Options{Input: cmd.InOrStdin(), Output: cmd.OutOrStdout()},
			)
			if err != nil {
				return err
			}
			return completionError(completion)
		},
	}
	if verb.force != "" {
		cmd.Flags().BoolVar(&force, "force", false, verb.force)
	}
	return cmd
}

// completionError turns a finished run into the command's exit status. A user
// stop is not an error.
func completionError(c interactive.Completion) error {
	switch {
	case c.Stopped:
		return nil
	case c.Err != nil:
		return c.Err
	case c.Result.Status == outcome.Failed:
		if c.Result.Err != nil {
			return c.Result.Err
		}
		return fmt.Errorf("%s failed", c.Name)
	}
	return nil
}
