package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the structured logger used across jobloop.
type Logger interface {
	Debug(msg string, tags ...any)
	Info(msg string, tags ...any)
	Warn(msg string, tags ...any)
	Error(msg string, tags ...any)

	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)

	With(attrs ...any) Logger
}

var _ Logger = (*appLogger)(nil)

type appLogger struct {
	logger *slog.Logger
	debug  bool
}

type config struct {
	debug  bool
	format string
	writer io.Writer
	quiet  bool
}

// Option configures NewLogger.
type Option func(*config)

// WithDebug sets the level of the logger to debug.
func WithDebug() Option {
	return func(c *config) {
		c.debug = true
	}
}

// WithFormat sets the format of the logger (text or json).
func WithFormat(format string) Option {
	return func(c *config) {
		c.format = strings.ToLower(format)
	}
}

// WithWriter adds a second destination, typically a log file.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writer = w
	}
}

// WithQuiet suppresses output to stderr.
func WithQuiet() Option {
	return func(c *config) {
		c.quiet = true
	}
}

var defaultLogger = NewLogger(WithFormat("text"))

// NewLogger builds a Logger that fans records out to stderr and, if set,
// the writer given by WithWriter.
func NewLogger(opts ...Option) Logger {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.debug,
	}

	var handlers []slog.Handler
	if !cfg.quiet {
		handlers = append(handlers, newHandler(os.Stderr, cfg.format, handlerOpts))
	}
	if cfg.writer != nil {
		handlers = append(handlers, &guardedHandler{
			handler: newHandler(cfg.writer, cfg.format, handlerOpts),
			mu:      &sync.Mutex{},
		})
	}

	return &appLogger{
		logger: slog.New(slogmulti.Fanout(handlers...)),
		debug:  cfg.debug,
	}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var _ slog.Handler = (*guardedHandler)(nil)

// guardedHandler serializes writes to a shared writer so that records from
// the scheduler loop and its timer goroutines never interleave.
type guardedHandler struct {
	handler slog.Handler
	mu      *sync.Mutex
}

func (g *guardedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return g.handler.Enabled(ctx, level)
}

func (g *guardedHandler) Handle(ctx context.Context, record slog.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handler.Handle(ctx, record)
}

func (g *guardedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &guardedHandler{handler: g.handler.WithAttrs(attrs), mu: g.mu}
}

func (g *guardedHandler) WithGroup(name string) slog.Handler {
	return &guardedHandler{handler: g.handler.WithGroup(name), mu: g.mu}
}

func (a *appLogger) Debug(msg string, tags ...any) { a.logAt(3, slog.LevelDebug, msg, tags...) }
func (a *appLogger) Info(msg string, tags ...any)  { a.logAt(3, slog.LevelInfo, msg, tags...) }
func (a *appLogger) Warn(msg string, tags ...any)  { a.logAt(3, slog.LevelWarn, msg, tags...) }
func (a *appLogger) Error(msg string, tags ...any) { a.logAt(3, slog.LevelError, msg, tags...) }

func (a *appLogger) Debugf(format string, v ...any) {
	a.logAt(3, slog.LevelDebug, fmt.Sprintf(format, v...))
}

func (a *appLogger) Infof(format string, v ...any) {
	a.logAt(3, slog.LevelInfo, fmt.Sprintf(format, v...))
}

func (a *appLogger) Warnf(format string, v ...any) {
	a.logAt(3, slog.LevelWarn, fmt.Sprintf(format, v...))
}

func (a *appLogger) Errorf(format string, v ...any) {
	a.logAt(3, slog.LevelError, fmt.Sprintf(format, v...))
}

// With returns a logger carrying the given attributes on every record.
func (a *appLogger) With(attrs ...any) Logger {
	return &appLogger{logger: a.logger.With(attrs...), debug: a.debug}
}

// logAt records the message with the program counter of the frame skip
// levels up, so AddSource points at the call site rather than this package.
func (a *appLogger) logAt(skip int, level slog.Level, msg string, tags ...any) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}
	var pc uintptr
	if a.debug {
		var pcs [1]uintptr
		runtime.Callers(skip, pcs[:])
		pc = pcs[0]
	}
	record := slog.NewRecord(time.Now(), level, msg, pc)
	record.Add(tags...)
	_ = a.logger.Handler().Handle(ctx, record)
}
