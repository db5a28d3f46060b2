// Package logger provides the agent's structured operational log, built on
// log/slog the way the teacher's internal/logger does: a selectable
// text/json handler, a message prefix and a runtime-adjustable severity
// level. Rotation of the underlying file is delegated to lumberjack, named
// in the teacher's own go.mod.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/open-logtail/logtailcore/cfg"
)

var (
	mu            sync.Mutex
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	programLevel  = new(slog.LevelVar)
)

// handlerFactory builds the slog.Handler for a given writer/level/format.
type handlerFactory struct{}

func (handlerFactory) createJSONOrTextHandler(w io.Writer, level *slog.LevelVar, format, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(a.Value))
			}
			return a
		},
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var defaultLoggerFactory = handlerFactory{}

func severityName(v slog.Value) string {
	switch slog.Level(v.Any().(slog.Level)) {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	default:
		return "TRACE"
	}
}

func severityToSlogLevel(s cfg.LogSeverity) slog.Level {
	switch s {
	case cfg.TraceLogSeverity:
		return slog.LevelDebug - 4
	case cfg.DebugLogSeverity:
		return slog.LevelDebug
	case cfg.WarningLogSeverity:
		return slog.LevelWarn
	case cfg.ErrorLogSeverity:
		return slog.LevelError
	case cfg.OffLogSeverity:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// Init (re)configures the default logger from config. Call once at startup.
func Init(c cfg.LoggingConfig) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if c.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
	}

	programLevel.Set(severityToSlogLevel(c.Severity))
	defaultLogger = slog.New(defaultLoggerFactory.createJSONOrTextHandler(w, programLevel, c.Format, ""))
	return nil
}

// SetLevel adjusts the running severity threshold without a full Init.
func SetLevel(s cfg.LogSeverity) {
	programLevel.Set(severityToSlogLevel(s))
}

func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

func Tracef(format string, args ...any) { L().Log(nil, slog.LevelDebug-4, fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { L().Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { L().Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { L().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { L().Error(fmt.Sprintf(format, args...)) }

// Alarm emits a stable-category operational alarm, matching §7's
// "alarms carry a stable category and the (project, logstore, region)
// triple" requirement. Rate-limiting lives in internal/alarm.
func Alarm(category, project, logstore, region string, at time.Time, detail string) {
	L().Error("alarm",
		slog.String("category", category),
		slog.String("project", project),
		slog.String("logstore", logstore),
		slog.String("region", region),
		slog.Time("at", at),
		slog.String("detail", detail),
	)
}
