package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is installed once by Init during
// startup and never re-bound afterwards.
var Log *zap.Logger

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Init initializes the global logger. level is one of debug/info/warn/error
// (empty falls back to the HARBOR_LOG_LEVEL env var, then info). If path is
// non-empty, log output is appended to that file instead of stderr.
func Init(level, path string) error {
	if level == "" {
		level = os.Getenv("HARBOR_LOG_LEVEL")
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", path, err)
		}
		sink = zapcore.Lock(f)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), sink, parseLevel(level))
	Log = zap.New(core)
	return nil
}

// Sync flushes buffered log entries. Safe to call with a nil logger.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func init() {
	// A usable default so packages can log before Init runs (tests mostly).
	Log = zap.NewNop()
}
