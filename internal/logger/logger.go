package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Shailesh-Murmu/AutoMpp/internal/config"
)

const serviceName = "autompp"

const (
	ModeHeadless    = "headless"
	ModeInteractive = "interactive"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

// New builds the process logger. Entries go to stdout and, when configured,
// are appended to the activity log file that the CLI log view reads.
func New(p ConfigParams) (*zap.Logger, error) {
	var zc zap.Config
	if p.Cfg != nil && p.Cfg.Log.Env == "production" {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.StacktraceKey = "stacktrace"
		zc.EncoderConfig.LevelKey = "severity"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.CallerKey = "caller"
		zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		zc.Encoding = "json"
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}
	zc.OutputPaths = []string{"stdout"}
	if p.Cfg != nil && p.Cfg.Log.Mode == ModeInteractive {
		// The terminal belongs to the console view.
		zc.OutputPaths = nil
	}
	zc.ErrorOutputPaths = []string{"stderr"}
	if p.Cfg != nil && p.Cfg.Log.File != "" {
		if dir := filepath.Dir(p.Cfg.Log.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		zc.OutputPaths = append(zc.OutputPaths, p.Cfg.Log.File)
	}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("service", serviceName)}
	if p.Cfg != nil {
		fields = append(fields, zap.String("env", p.Cfg.Log.Env), zap.String("mode", p.Cfg.Log.Mode))
	}
	log = log.With(fields...)

	zap.ReplaceGlobals(log)
	return log, nil
}
