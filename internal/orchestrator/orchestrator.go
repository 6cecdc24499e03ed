// Package orchestrator drives the periodic cycle: load tasks and state, run
// every task category in a fixed order with per-task isolation, persist, and
// sleep.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/dispatch"
	"github.com/Shailesh-Murmu/AutoMpp/internal/formupdate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/reconcile"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/syncer"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

const defaultInterval = 60 * time.Second

// TaskSource loads the task definitions. *taskdef.Store implements it.
type TaskSource interface {
	Load() (*taskdef.Set, error)
}

// GatewayFactory builds the external collaborators for one cycle. Errors
// wrapping outcome.ErrCredential or outcome.ErrConfiguration end the cycle
// before any task runs.
type GatewayFactory func(ctx context.Context, tasks *taskdef.Set) (gateway.Set, error)

type Options struct {
	Logger    *zap.Logger
	Clock     gateway.Clock
	Interval  time.Duration
	Jitter    float64
	SendDelay time.Duration
}

type Orchestrator struct {
	tasks    TaskSource
	backend  runstate.Backend
	gateways GatewayFactory
	logger   *zap.Logger
	clock    gateway.Clock
	interval time.Duration
	jitter   float64
	delay    time.Duration

	mu    sync.Mutex
	phase Phase
	hub   hub
}

func New(tasks TaskSource, backend runstate.Backend, gateways GatewayFactory, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Orchestrator{
		tasks:    tasks,
		backend:  backend,
		gateways: gateways,
		logger:   logger,
		clock:    opts.Clock,
		interval: interval,
		jitter:   clampJitterRatio(opts.Jitter),
		delay:    opts.SendDelay,
	}
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug("phase", zap.Stringer("phase", p))
}

// Latest returns the most recently published cycle report.
func (o *Orchestrator) Latest() (CycleReport, bool) {
	return o.hub.last()
}

// Subscribe streams future cycle reports until cancel is called.
func (o *Orchestrator) Subscribe() (<-chan CycleReport, func()) {
	return o.hub.subscribe(4)
}

// stage pairs a task category with the phase it runs in, in cycle order.
var stages = []struct {
	category taskdef.Category
	phase    Phase
}{
	{taskdef.CategorySync, RunningSync},
	{taskdef.CategoryMessage, RunningMessages},
	{taskdef.CategoryReconcile, RunningReconciliation},
	{taskdef.CategorySchemaUpdate, RunningSchemaUpdate},
	{taskdef.CategoryFollowUp, RunningFollowUp},
}

// cycleEnv is what every task of one cycle runs against.
type cycleEnv struct {
	tasks  *taskdef.Set
	state  *runstate.State
	force  bool
	sync   *syncer.Engine
	recon  *reconcile.Engine
	send   *dispatch.Engine
	update *formupdate.Engine
}

func (o *Orchestrator) newEnv(tasks *taskdef.Set, state *runstate.State, gw gateway.Set, progress func(current, total int)) *cycleEnv {
	return &cycleEnv{
		tasks: tasks,
		state: state,
		sync:  syncer.New(gw.Storage, syncer.Options{Logger: o.logger, Progress: progress}),
		recon: reconcile.New(gw.Tables, gw.Writer, reconcile.Options{Logger: o.logger, Clock: o.clock}),
		send: dispatch.New(gw.Tables, gw.Mailer, dispatch.Options{
			Logger:   o.logger,
			Clock:    o.clock,
			Delay:    o.delay,
			Progress: progress,
		}),
		update: formupdate.New(gw.Tables, gw.Forms, formupdate.Options{Logger: o.logger, Clock: o.clock}),
	}
}

// RunCycle performs one full pass and publishes its report.
func (o *Orchestrator) RunCycle(ctx context.Context) (report CycleReport) {
	report = CycleReport{ID: uuid.NewString(), StartedAt: o.clock.Now(), Counts: map[outcome.Status]int{}}
	log := o.logger.With(zap.String("cycle", report.ID))
	defer func() {
		report.FinishedAt = o.clock.Now()
		o.setPhase(Sleeping)
		o.hub.publish(report)
	}()
	finish := func(p Phase, err error) CycleReport {
		report.Phase = p
		if err != nil {
			report.Error = err.Error()
		}
		return report
	}

	log.Info("starting automation cycle")
	o.setPhase(LoadingConfig)
	tasks, state, gw, err := o.prepare(ctx, log)
	if err != nil {
		return finish(LoadingConfig, err)
	}
	if tasks.Empty() {
		log.Info("no tasks configured")
		return finish(LoadingConfig, nil)
	}

	env := o.newEnv(tasks, state, gw, nil)
	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		o.setPhase(stage.phase)
		report.Phase = stage.phase
		for _, task := range tasks.Tasks(stage.category) {
			if ctx.Err() != nil {
				break
			}
			result := o.runTask(ctx, env, task)
			logResult(log, result)
			report.add(result)
		}
	}

	o.setPhase(PersistingState)
	report.Phase = PersistingState
	if err := runstate.Save(o.backend, state); err != nil {
		log.Error("persisting run state failed", zap.Error(err))
		return finish(PersistingState, err)
	}
	report.Persisted = true
	log.Info("automation cycle finished", zap.Any("counts", report.Counts))
	return finish(PersistingState, ctx.Err())
}

// prepare loads the task set, the run state and the gateways. An empty task
// set is returned without touching state or gateways.
func (o *Orchestrator) prepare(ctx context.Context, log *zap.Logger) (*taskdef.Set, *runstate.State, gateway.Set, error) {
	tasks, err := o.tasks.Load()
	if err != nil {
		if tasks == nil || !errors.Is(err, taskdef.ErrCorrupt) {
			log.Error("loading tasks failed", zap.Error(err))
			return nil, nil, gateway.Set{}, err
		}
		log.Error("task file is corrupt, a backup was written", zap.Error(err))
	}
	if tasks.Empty() {
		return tasks, nil, gateway.Set{}, nil
	}

	state, err := runstate.Load(o.backend)
	if err != nil {
		if !errors.Is(err, runstate.ErrCorrupt) {
			log.Error("loading run state failed", zap.Error(err))
			return nil, nil, gateway.Set{}, err
		}
		log.Warn("run state is corrupt, starting from empty state", zap.Error(err))
	}

	gw, err := o.gateways(ctx, tasks)
	if err != nil {
		log.Error("gateways unavailable, skipping cycle", zap.Error(err))
		return nil, nil, gateway.Set{}, err
	}
	return tasks, state, gw, nil
}

// runTask executes one task in isolation. A panic or a failed result
// restores the task's state blob to its value before the task started.
func (o *Orchestrator) runTask(ctx context.Context, env *cycleEnv, task taskdef.Task) (result outcome.Result) {
	category := stateCategory(task.TaskCategory())
	title := task.TaskTitle()
	before, existed := env.state.Raw(category, title)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("task panicked",
				zap.String("task", title),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = outcome.Fail(string(task.TaskCategory()), title, fmt.Errorf("panic: %v", r))
		}
		if result.Status == outcome.Failed {
			if existed {
				env.state.SetRaw(category, title, before)
			} else {
				env.state.SetRaw(category, title, nil)
			}
		}
	}()
	return execute(ctx, env, task)
}

func execute(ctx context.Context, env *cycleEnv, task taskdef.Task) outcome.Result {
	switch t := task.(type) {
	case taskdef.SyncTask:
		return env.sync.Run(ctx, t, env.state)
	case taskdef.MessageTask:
		if env.force {
			return env.send.SendMessageNow(ctx, t)
		}
		return env.send.RunMessage(ctx, t, env.state)
	case taskdef.ReconcileTask:
		return env.recon.Run(ctx, t, env.state, env.force)
	case taskdef.SchemaUpdateTask:
		return env.update.Run(ctx, t, env.tasks, env.state, env.force)
	case taskdef.FollowUpTask:
		return env.send.RunFollowUp(ctx, t, env.tasks, env.state, env.force)
	default:
		panic(fmt.Sprintf("unhandled task type %T", task))
	}
}

func stateCategory(c taskdef.Category) string {
	switch c {
	case taskdef.CategorySync:
		return runstate.CategorySync
	case taskdef.CategoryMessage:
		return runstate.CategoryMessage
	case taskdef.CategoryReconcile:
		return runstate.CategoryReconcile
	case taskdef.CategorySchemaUpdate:
		return runstate.CategorySchemaUpdate
	case taskdef.CategoryFollowUp:
		return runstate.CategoryFollowUp
	default:
		return string(c)
	}
}

func logResult(log *zap.Logger, r outcome.Result) {
	fields := []zap.Field{
		zap.String("category", r.Category),
		zap.String("task", r.Task),
		zap.String("status", string(r.Status)),
	}
	if r.Detail != "" {
		fields = append(fields, zap.String("detail", r.Detail))
	}
	switch r.Status {
	case outcome.Failed:
		log.Error("task failed", append(fields, zap.Error(r.Err))...)
	case outcome.Partial:
		log.Warn("task partially completed", append(fields, zap.Error(r.Err))...)
	default:
		log.Info("task finished", fields...)
	}
}
