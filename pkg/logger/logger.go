package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockprophet/backend/pkg/config"
)

// Logger is a structured logger wrapper around zerolog
// ⭐ SSOT: 모든 로그는 이 패키지를 통해서만
type Logger struct {
	zlog zerolog.Logger
}

// New creates a logger from config. Everything goes to stderr so tables and
// JSON printed by commands on stdout stay clean.
func New(cfg *config.Config) *Logger {
	return newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel).withEnv(cfg.Env)
}

// NewWithWriter creates a JSON logger writing to w at the given level
func NewWithWriter(w io.Writer, level string) *Logger {
	return newLogger(w, "json", level)
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func newLogger(w io.Writer, format, level string) *Logger {
	out := w
	if format == "console" || format == "pretty" {
		// 크롤링은 몇 시간씩 돌기 때문에 콘솔에서는 시:분:초만
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	zlog := zerolog.New(out).Level(parseLogLevel(level)).With().Timestamp().Logger()
	return &Logger{zlog: zlog}
}

func (l *Logger) withEnv(env string) *Logger {
	if env == "" {
		return l
	}
	return l.WithField("env", env)
}

// parseLogLevel converts a config level to zerolog.Level, defaulting to info
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Level returns the minimum level written
func (l *Logger) Level() zerolog.Level {
	return l.zlog.GetLevel()
}

func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// WithField returns a child logger with one more field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields returns a child logger with several more fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithError returns a child logger carrying err
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

// WithStock tags every entry with a stock code
func (l *Logger) WithStock(code string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("code", code).Logger()}
}

// WithRunID tags every entry of one crawl run
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("run_id", id).Logger()}
}

// StdLogger adapts the logger for libraries that want a *log.Logger, such as
// http.Server.ErrorLog. Lines carry no level and a source=stdlog field.
func (l *Logger) StdLogger() *stdlog.Logger {
	return stdlog.New(l.zlog.With().Str("source", "stdlog").Logger(), "", 0)
}
