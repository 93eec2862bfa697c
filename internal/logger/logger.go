package logger

import (
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	z *zap.Logger
	l *zap.SugaredLogger
}

func New(z *zap.Logger) *Logger {
	return &Logger{z: z, l: z.Sugar()}
}

// NewFromConfig builds a production JSON logger when production is set and a
// colored development logger otherwise.
func NewFromConfig(level string, production bool) (*Logger, error) {
	var cfg zap.Config

	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return New(z), nil
}

func Nop() *Logger {
	return New(zap.NewNop())
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{z: l.z, l: l.l.With(keysAndValues...)}
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.l.Errorf(format, v...)
}

func (l *Logger) LogWarnf(format string, v ...any) {
	l.l.Warnf(format, v...)
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.l.Infof(format, v...)
}

func (l *Logger) LogDebugf(format string, v ...any) {
	l.l.Debugf(format, v...)
}

// StdLog adapts the logger for http.Server.ErrorLog.
func (l *Logger) StdLog() *log.Logger {
	return zap.NewStdLog(l.z)
}

func (l *Logger) Sync() error {
	return l.z.Sync()
}
