package logger

import (
	"github.com/georgi-georgiev/dbgmesh/internal/shared/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide zap logger from the loaded configuration:
// a JSON production encoder outside "development", a colorized console
// encoder inside it, both honoring cfg.Level/cfg.OutputPath so an
// operator can redirect or quiet the control-loop's log stream without a
// rebuild.
func New(cfg config.LoggerConfig, environment string) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = "stdout"
	}

	var zapCfg zap.Config
	if environment == "development" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{outputPath}

	log, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
