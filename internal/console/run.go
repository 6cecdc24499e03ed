package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Shailesh-Murmu/AutoMpp/internal/interactive"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

// Operation is an interactive task body that reports progress.
type Operation func(ctx context.Context, progress func(current, total int)) (outcome.Result, error)

type Options struct {
	Input  io.Reader
	Output io.Writer
	// Grace bounds the wait for the operation after the view fails.
	Grace time.Duration
}

const defaultGrace = 5 * time.Second

// Run starts op on the runner and drives the terminal view until it
// completes. It returns the operation's completion.
func Run(ctx context.Context, runner *interactive.Runner, title string, op Operation, opts Options) (interactive.Completion, error) {
	model := NewModel(title, runner.Cancel)
	var programOpts []tea.ProgramOption
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	program := tea.NewProgram(model, programOpts...)

	done, err := runner.Start(ctx, title, func(ctx context.Context) (outcome.Result, error) {
		return op(ctx, func(current, total int) {
			program.Send(ProgressMsg{Current: current, Total: total})
		})
	})
	if err != nil {
		return interactive.Completion{}, err
	}

	finished := make(chan interactive.Completion, 1)
	go func() {
		c := <-done
		finished <- c
		program.Send(CompletionMsg(c))
	}()

	if _, err := program.Run(); err != nil {
		grace := opts.Grace
		if grace <= 0 {
			grace = defaultGrace
		}
		if shutdownErr := runner.Shutdown(grace); shutdownErr != nil {
			return interactive.Completion{}, errors.Join(fmt.Errorf("console: %w", err), shutdownErr)
		}
		return <-finished, fmt.Errorf("console: %w", err)
	}
	return <-finished, nil
}
