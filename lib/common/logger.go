// Package common provides the logging setup shared by the library and the CLI
package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Names of the loggers used in this module
var LoggerNames = []string{"sandclock", "dispatch", "cli"}

// --------------------------------------------------------------------------
// Text Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// textLogger writes one line per message: LEVEL | package | message
type textLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *textLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *textLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *textLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *textLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *textLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *textLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *textLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Zap Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zapLogger forwards to a named zap.SugaredLogger.
// The level is filtered here, the zap core itself accepts everything.
type zapLogger struct {
	level logger.LogLevel
	sugar *zap.SugaredLogger
}

func newZapLogger(pkgName string, base *zap.Logger) *zapLogger {
	return &zapLogger{
		level: logger.INFO,
		sugar: base.Named(pkgName).Sugar(),
	}
}

func (l *zapLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.sugar.Infof(format, args...)
	}
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.sugar.Warnf(format, args...)
	}
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.sugar.Errorf(format, args...)
	}
}

func (l *zapLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		l.sugar.Panicf(format, args...)
	}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// NewLoggerFactory returns a factory for the given format writing to w.
// Supported formats: text (default), console and json (both zap).
func NewLoggerFactory(format string, w io.Writer) (logger.Factory, error) {
	format = strings.ToLower(format)
	switch format {
	case "", "text":
		return func(pkgName string) logger.ILogger {
			return &textLogger{
				name:   pkgName,
				level:  logger.INFO,
				logger: log.New(w, "", log.Ldate|log.Ltime),
			}
		}, nil
	case "console", "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if format == "json" {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		base := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel))
		return func(pkgName string) logger.ILogger {
			return newZapLogger(pkgName, base)
		}, nil
	default:
		return nil, fmt.Errorf("invalid log format: %s. must be one of text, console, json", format)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the logger factory for format (writing to stdout)
// and sets level on all loggers of this module
func InitLoggers(level, format string) error {
	return InitLoggersTo(os.Stdout, level, format)
}

// InitLoggersTo is InitLoggers with a custom writer
func InitLoggersTo(w io.Writer, level, format string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	factory, err := NewLoggerFactory(format, w)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(factory)

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
