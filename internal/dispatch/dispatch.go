// Package dispatch sends scheduled messages and follow-up reminders without
// repeating a send on the same day.
package dispatch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

const (
	dateLayout       = "2006-01-02"
	defaultSendDelay = time.Second
)

// ProgressFunc reports recipients processed so far out of total.
type ProgressFunc func(current, total int)

type Options struct {
	Logger *zap.Logger
	Clock  gateway.Clock
	// Delay separates consecutive sends. Zero selects one second; a negative
	// value disables the delay.
	Delay    time.Duration
	Progress ProgressFunc
}

type Engine struct {
	tables   gateway.TabularSource
	mailer   gateway.Mailer
	logger   *zap.Logger
	clock    gateway.Clock
	delay    time.Duration
	progress ProgressFunc
}

func New(tables gateway.TabularSource, mailer gateway.Mailer, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := opts.Delay
	if delay == 0 {
		delay = defaultSendDelay
	}
	return &Engine{
		tables:   tables,
		mailer:   mailer,
		logger:   logger,
		clock:    opts.Clock,
		delay:    delay,
		progress: opts.Progress,
	}
}

func (e *Engine) today() (time.Time, string) {
	now := e.clock.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day, day.Format(dateLayout)
}

// send delivers one message after the inter-send delay. The first send of a
// run is not delayed.
func (e *Engine) send(ctx context.Context, first bool, msg gateway.Message) error {
	if !first {
		if err := waitWithContext(ctx, e.delay); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.mailer.Send(ctx, msg)
}

func (e *Engine) report(current, total int) {
	if e.progress != nil {
		e.progress(current, total)
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sendFailure classifies a recipient-level failure. Configuration and
// credential problems apply to every recipient, so they end the run.
func sendFailure(err error) (fatal bool) {
	return errors.Is(err, outcome.ErrConfiguration) || errors.Is(err, outcome.ErrCredential)
}
