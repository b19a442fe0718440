package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Debug flag to control debug logging
	debugEnabled = false
	// The root sugared logger; a no-op logger until Init is called
	base = zap.NewNop().Sugar()
)

// Init initializes the logger
func Init(debug bool) {
	InitTo(debug, "stdout")
}

// InitTo initializes the logger writing to the given zap output path. Commands
// that print results on stdout log to "stderr".
func InitTo(debug bool, output string) {
	debugEnabled = debug

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a plain stderr core rather than running silent.
		l = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			zap.DebugLevel,
		))
	}
	base = l.Sugar()

	if debugEnabled {
		Debug("Debug logging enabled")
	}
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = base.Sync()
}

// Named returns a child logger tagged with a component name, for callers
// that want structured key/value fields instead of printf formatting.
func Named(component string) *zap.SugaredLogger {
	return base.Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().Named(component)
}

// Debug logs a debug message if debug mode is enabled
func Debug(format string, v ...interface{}) {
	if debugEnabled {
		base.Debugf(format, v...)
	}
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	base.Infof(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}
