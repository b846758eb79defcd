// Package log wraps charmbracelet/log with the small call surface the
// rest of the module uses. It exists so that packages never reach for
// fmt.Print* or the stdlib log package directly.
package log

import (
	"os"

	charmlog "github.com/charmbracelet/log"
)

var logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
})

// SetLevel adjusts the minimum level that reaches the sink. Valid values
// are "debug", "info", "warn", "error".
func SetLevel(level string) {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return
	}
	logger.SetLevel(lvl)
}

func Debug(msg string, kv ...any)          { logger.Debug(msg, kv...) }
func Debugf(format string, a ...any)       { logger.Debugf(format, a...) }
func Info(msg string, kv ...any)           { logger.Info(msg, kv...) }
func Infof(format string, a ...any)        { logger.Infof(format, a...) }
func Warn(msg string, kv ...any)           { logger.Warn(msg, kv...) }
func Warnf(format string, a ...any)        { logger.Warnf(format, a...) }
func Error(msg string, kv ...any)          { logger.Error(msg, kv...) }
func Errorf(format string, a ...any)       { logger.Errorf(format, a...) }
func Fatal(msg string, kv ...any)          { logger.Fatal(msg, kv...) }
func Fatalf(format string, a ...any)       { logger.Fatalf(format, a...) }
