// Package logging builds the process logger from LOG_LEVEL and LOG_FORMAT.
package logging

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/segyhp/rental-ledger/internal/config"
)

func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns a logger writing to w. It does not touch the zap globals.
func New(w io.Writer, cfg config.LoggingConfig) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), ParseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// ForService tags the logger built from cfg with the service name. Development
// environments get zap's development mode (DPanic panics, warn stack traces).
func ForService(w io.Writer, cfg *config.Config, service string) *zap.Logger {
	logger := New(w, cfg.Logging).With(zap.String("service", service))
	if cfg.IsDevelopment() {
		logger = logger.WithOptions(zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}
	return logger
}

// Setup builds the service logger and installs it as the zap global and the
// standard log package's output.
func Setup(w io.Writer, cfg *config.Config, service string) *zap.Logger {
	logger := ForService(w, cfg, service)
	zap.ReplaceGlobals(logger)
	zap.RedirectStdLog(logger)
	return logger
}
