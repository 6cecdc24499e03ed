package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/config"
	"github.com/Shailesh-Murmu/AutoMpp/internal/httpapi"
	"github.com/Shailesh-Murmu/AutoMpp/internal/logger"
	"github.com/Shailesh-Murmu/AutoMpp/internal/orchestrator"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
	"github.com/Shailesh-Murmu/AutoMpp/internal/wiring"
)

// overrides holds flag values that take precedence over config. Zero values
// leave the config untouched.
type overrides struct {
	interval   time.Duration
	jitter     float64
	statusAddr string
	watch      bool
	once       bool
}

func main() {
	var ov overrides
	flag.DurationVar(&ov.interval, "interval", durationEnv("AUTOMPP_HEADLESS_INTERVAL", 0), "cycle interval (overrides config)")
	flag.Float64Var(&ov.jitter, "interval-jitter", floatEnv("AUTOMPP_HEADLESS_INTERVAL_JITTER", -1), "cycle interval jitter ratio 0.0-1.0 (overrides config)")
	flag.StringVar(&ov.statusAddr, "status-addr", envOrDefault("AUTOMPP_HEADLESS_STATUS_ADDR", ""), "status server listen address (overrides config)")
	flag.BoolVar(&ov.watch, "watch", false, "start a cycle early when the task file changes")
	flag.BoolVar(&ov.once, "once", false, "run one cycle and exit")
	flag.Parse()

	app := fx.New(
		config.Module,
		fx.Decorate(func(cfg *config.Config) *config.Config {
			applyOverrides(cfg, ov)
			return cfg
		}),
		logger.Module,
		wiring.Module,
		fx.Supply(ov),
		fx.Invoke(
			registerStatusServer,
			registerLoop,
		),
		fxLogger,
	)
	if err := app.Err(); err != nil {
		log.Fatalf("failed to initialize headless loop: %v", err)
	}
	app.Run()
}

var fxLogger = fx.WithLogger(func() fxevent.Logger {
	return fxevent.NopLogger
})

func applyOverrides(cfg *config.Config, ov overrides) {
	cfg.Log.Mode = "headless"
	if ov.interval > 0 {
		cfg.Interval = ov.interval
	}
	if ov.jitter >= 0 {
		cfg.IntervalJitter = ov.jitter
	}
	if ov.statusAddr != "" {
		cfg.Status.Addr = ov.statusAddr
	}
	if ov.watch {
		cfg.WatchTasks = true
	}
}

func registerLoop(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, ov overrides, orch *orchestrator.Orchestrator, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	var watcher *orchestrator.Watcher
	if cfg.WatchTasks && !ov.once {
		w, err := orchestrator.NewWatcher(cfg.TasksFile, log)
		if err != nil {
			cancel()
			return err
		}
		watcher = w
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("[Headless] automation started",
				zap.String("tasks_file", cfg.TasksFile),
				zap.Duration("interval", cfg.Interval),
				zap.Bool("once", ov.once),
			)
			if ov.once {
				go func() {
					defer close(done)
					report := orch.RunCycle(ctx)
					log.Info("[Headless] single cycle finished", zap.Any("counts", report.Counts), zap.Bool("persisted", report.Persisted))
					if err := shutdowner.Shutdown(); err != nil {
						log.Error("[Headless] shutdown failed", zap.Error(err))
					}
				}()
				return nil
			}
			var wake <-chan struct{}
			if watcher != nil {
				go watcher.Run(ctx)
				wake = watcher.Wake()
			}
			go func() {
				defer close(done)
				if err := orch.Run(ctx, wake); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("[Headless] loop stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			log.Info("[Headless] automation stopping")
			cancel()
			if watcher != nil {
				_ = watcher.Close()
			}
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
	return nil
}

func registerStatusServer(lc fx.Lifecycle, cfg *config.Config, orch *orchestrator.Orchestrator, tasks *taskdef.Store, log *zap.Logger) {
	if strings.TrimSpace(cfg.Status.Addr) == "" {
		return
	}
	handler := httpapi.NewServerWithConfig(orch, tasks, httpapi.ServerConfig{
		Token:  cfg.Status.Token,
		Logger: log,
	})
	server := &http.Server{
		Addr:              cfg.Status.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("[Status] server stopped", zap.Error(err))
				}
			}()
			log.Info("[Status] listening", zap.String("addr", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}

func floatEnv(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %f", name, raw, fallback)
		return fallback
	}
	return value
}
