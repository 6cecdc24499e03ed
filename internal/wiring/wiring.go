// Package wiring assembles the task store, run-state backend, gateways and
// orchestrator from configuration. Both binaries build on it.
package wiring

import (
	"context"
	"io"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/config"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway/google"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway/objectstore"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway/smtp"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway/xlsx"
	"github.com/Shailesh-Murmu/AutoMpp/internal/orchestrator"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

var Module = fx.Module("wiring",
	fx.Provide(
		NewTaskStore,
		provideBackend,
		NewGatewayFactory,
		NewOrchestrator,
	),
)

func NewTaskStore(cfg *config.Config) *taskdef.Store {
	return taskdef.NewStore(cfg.TasksFile)
}

// OpenBackend resolves state_dsn to a run-state backend. The returned close
// function is never nil.
func OpenBackend(cfg *config.Config) (runstate.Backend, func() error, error) {
	backend, err := runstate.BuildBackendFromDSN(cfg.StateDSN)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return nil }
	if c, ok := backend.(io.Closer); ok {
		closeFn = c.Close
	}
	return backend, closeFn, nil
}

func provideBackend(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (runstate.Backend, error) {
	backend, closeFn, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("[State] backend ready", zap.String("dsn_scheme", dsnScheme(cfg.StateDSN)))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeFn()
		},
	})
	return backend, nil
}

// NewGatewayFactory returns a factory that resolves credentials and builds
// fresh gateways once per cycle. A credential failure aborts the cycle.
func NewGatewayFactory(cfg *config.Config) orchestrator.GatewayFactory {
	return func(ctx context.Context, tasks *taskdef.Set) (gateway.Set, error) {
		creds := google.CredentialsProvider{
			CredentialsFile: cfg.Google.CredentialsFile,
			TokenFile:       cfg.Google.TokenFile,
		}
		ts, err := creds.TokenSource(ctx)
		if err != nil {
			return gateway.Set{}, err
		}
		client, err := google.NewClient(ctx, ts)
		if err != nil {
			return gateway.Set{}, outcome.Credential(err)
		}

		storage := gateway.StorageMux{Default: client}
		if cfg.S3.Endpoint != "" {
			store, err := objectstore.New(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Secure)
			if err != nil {
				return gateway.Set{}, outcome.Configuration("", "object storage %s: %v", cfg.S3.Endpoint, err)
			}
			storage.Object = store
		}

		user, password := tasks.SMTPCredentials(cfg.SMTP.Username, cfg.SMTP.Password)
		return gateway.Set{
			Storage: storage,
			Tables:  gateway.TableMux{Local: xlsx.NewReader(), Remote: client},
			Writer:  xlsx.NewWriter(),
			Forms:   client,
			Mailer: smtp.New(smtp.Config{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: user,
				Password: password,
			}),
		}, nil
	}
}

func NewOrchestrator(cfg *config.Config, logger *zap.Logger, tasks *taskdef.Store, backend runstate.Backend, gateways orchestrator.GatewayFactory) *orchestrator.Orchestrator {
	return orchestrator.New(tasks, backend, gateways, orchestrator.Options{
		Logger:    logger,
		Interval:  cfg.Interval,
		Jitter:    cfg.IntervalJitter,
		SendDelay: cfg.SendDelay,
	})
}

func dsnScheme(dsn string) string {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		return scheme
	}
	return "file"
}
