// Package log provides the logging facade used throughout this module. It
// wraps zap the way drand's own log package does, so callers depend on a
// small interface instead of the concrete zap types.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface implemented by this package.
type Logger interface {
	Info(keyvals ...interface{})
	Debug(keyvals ...interface{})
	Warn(keyvals ...interface{})
	Error(keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Debugw(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	With(args ...interface{}) Logger
	Named(s string) Logger
}

type log struct {
	*zap.SugaredLogger
}

func (l *log) With(args ...interface{}) Logger {
	return &log{l.SugaredLogger.With(args...)}
}

func (l *log) Named(s string) Logger {
	return &log{l.SugaredLogger.Named(s)}
}

const (
	InfoLevel  = int(zapcore.InfoLevel)
	DebugLevel = int(zapcore.DebugLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
)

// DefaultLevel is the level new loggers default to. It is set to DebugLevel
// when the SYNCDKG_DEBUG environment variable is present at package
// initialization; the variable is not read again afterwards. Changing
// DefaultLevel takes effect only before the first call to DefaultLogger.
var DefaultLevel = InfoLevel

//nolint:gochecknoinits // mirrors drand's log package: env-driven default level
func init() {
	if _, isDebug := os.LookupEnv("SYNCDKG_DEBUG"); isDebug {
		DefaultLevel = DebugLevel
	}
}

var defaultOnce sync.Once
var defaultLogger Logger

// DefaultLogger returns the process-wide default logger.
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(nil, DefaultLevel, false)
	})
	return defaultLogger
}

// New returns a logger writing to output (stderr if nil) at the given level.
func New(output zapcore.WriteSyncer, level int, isJSON bool) Logger {
	if output == nil {
		output = zapcore.AddSync(os.Stderr)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if isJSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(encoder, output, zapcore.Level(level))
	zl := zap.New(core, zap.AddCaller())
	return &log{zl.Sugar()}
}
