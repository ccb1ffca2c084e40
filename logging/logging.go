// Package logging provides the two-sink logger used throughout the trainer:
// a colorized console sink that stays quiet below warning level, and a file
// sink that captures everything from debug up for post-run inspection.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	levelInfoColor  = lipgloss.Color("#06B6D4") // Cyan
	levelWarnColor  = lipgloss.Color("#F59E0B") // Amber
	levelErrorColor = lipgloss.Color("#EF4444") // Red
	levelDebugColor = lipgloss.Color("#6B7280") // Gray
	attrColor       = lipgloss.Color("#6B7280") // Gray

	// Styles
	debugStyle = lipgloss.NewStyle().
			Foreground(levelDebugColor)

	infoStyle = lipgloss.NewStyle().
			Foreground(levelInfoColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(levelWarnColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(levelErrorColor).
			Bold(true)

	attrStyle = lipgloss.NewStyle().
			Foreground(attrColor)
)

// Config controls the two sinks. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	ConsoleLevel slog.Level // minimum level echoed to the console
	FileLevel    slog.Level // minimum level written to the log file
	FilePath     string     // log file path; empty disables the file sink
	ConsoleOut   io.Writer  // defaults to os.Stderr
	NoColor      bool       // disable console styling
}

// DefaultConfig keeps the console quiet during long training runs while the
// file records the full story
func DefaultConfig() Config {
	return Config{
		ConsoleLevel: slog.LevelWarn,
		FileLevel:    slog.LevelDebug,
		FilePath:     "info_debug.log",
	}
}

// Logger is a slog.Logger bound to the two sinks plus the file handle so
// callers can flush and close it at shutdown
type Logger struct {
	*slog.Logger
	file *os.File
}

// New opens the file sink (if configured) and builds the combined logger
func New(cfg Config) (*Logger, error) {
	out := cfg.ConsoleOut
	if out == nil {
		out = os.Stderr
	}

	handlers := []slog.Handler{
		newConsoleHandler(out, cfg.ConsoleLevel, cfg.NoColor),
	}

	var file *os.File
	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %v", err)
		}
		file = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{
			Level: cfg.FileLevel,
		}))
	}

	return &Logger{
		Logger: slog.New(newTeeHandler(handlers...)),
		file:   file,
	}, nil
}

// Close releases the file sink. Safe to call on loggers without one.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Discard returns a logger that drops every record. Useful as a default for
// components whose caller did not supply one.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// teeHandler fans each record out to every sink that wants it
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) *teeHandler {
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: handlers}
}

// consoleHandler renders records as single styled lines. It skips
// timestamps: the console is for a human watching the run, the file sink
// keeps the full record.
type consoleHandler struct {
	out     io.Writer
	level   slog.Level
	noColor bool
	attrs   []slog.Attr
	groups  []string
	mu      *sync.Mutex
}

func newConsoleHandler(out io.Writer, level slog.Level, noColor bool) *consoleHandler {
	return &consoleHandler{
		out:     out,
		level:   level,
		noColor: noColor,
		mu:      &sync.Mutex{},
	}
}

func (c *consoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= c.level
}

func (c *consoleHandler) Handle(ctx context.Context, record slog.Record) error {
	var sb strings.Builder

	sb.WriteString(c.styleLevel(record.Level))
	sb.WriteByte(' ')
	sb.WriteString(record.Message)

	appendAttr := func(attr slog.Attr) {
		key := attr.Key
		if len(c.groups) > 0 {
			key = strings.Join(c.groups, ".") + "." + key
		}
		text := fmt.Sprintf("%s=%v", key, attr.Value.Resolve())
		sb.WriteByte(' ')
		if c.noColor {
			sb.WriteString(text)
		} else {
			sb.WriteString(attrStyle.Render(text))
		}
	}

	for _, attr := range c.attrs {
		appendAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})

	sb.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, sb.String())
	return err
}

func (c *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *c
	clone.attrs = append(append([]slog.Attr(nil), c.attrs...), attrs...)
	return &clone
}

func (c *consoleHandler) WithGroup(name string) slog.Handler {
	clone := *c
	clone.groups = append(append([]string(nil), c.groups...), name)
	return &clone
}

func (c *consoleHandler) styleLevel(level slog.Level) string {
	label := level.String()
	if c.noColor {
		return label
	}
	switch {
	case level >= slog.LevelError:
		return errorStyle.Render(label)
	case level >= slog.LevelWarn:
		return warnStyle.Render(label)
	case level >= slog.LevelInfo:
		return infoStyle.Render(label)
	default:
		return debugStyle.Render(label)
	}
}
