package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

var ErrTaskNotFound = errors.New("task not found")

type RunOptions struct {
	// Force bypasses change and schedule gating: trackers regenerate, form
	// dropdowns are pushed, messages go out now, reminders ignore the
	// frequency rule.
	Force    bool
	Progress func(current, total int)
}

// RunOne executes a single task through the same engines and isolation as a
// cycle, then persists the run state.
func (o *Orchestrator) RunOne(ctx context.Context, category taskdef.Category, title string, opts RunOptions) (outcome.Result, error) {
	log := o.logger.With(zap.String("category", string(category)), zap.String("task", title))
	tasks, state, gw, err := o.prepare(ctx, log)
	if err != nil {
		return outcome.Result{}, err
	}
	task, ok := tasks.Find(category, title)
	if !ok {
		return outcome.Result{}, fmt.Errorf("%w: %s %q", ErrTaskNotFound, category, title)
	}

	env := o.newEnv(tasks, state, gw, opts.Progress)
	env.force = opts.Force
	result := o.runTask(ctx, env, task)
	logResult(log, result)

	if err := runstate.Save(o.backend, state); err != nil {
		return result, fmt.Errorf("persist run state: %w", err)
	}
	return result, nil
}
