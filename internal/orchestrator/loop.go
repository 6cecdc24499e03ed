package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Run repeats RunCycle until ctx is done, sleeping the jittered interval
// between cycles. A receive on wake ends the sleep early.
func (o *Orchestrator) Run(ctx context.Context, wake <-chan struct{}) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		o.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := jitteredIntervalWithSample(o.interval, o.jitter, rng.Float64())
		o.logger.Info("sleeping until next cycle", zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.setPhase(Idle)
			return ctx.Err()
		case <-wake:
			timer.Stop()
			o.logger.Info("task file changed, starting cycle early")
		case <-timer.C:
		}
	}
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
