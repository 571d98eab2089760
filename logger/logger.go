// Package logger builds the process logger. Entries are structured logrus
// records written to a fan-out of outputs (stdout, the TUI log pane) that can
// change at runtime. Init must be called early; Get falls back to defaults.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options configures the process logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Stdout bool
}

// Logger is a logrus logger whose output is a mutable list of writers.
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer
	enabled bool
	log     *logrus.Logger
}

var (
	globalLogger *Logger
	once         sync.Once
)

// New creates a standalone logger, mostly for tests and embedded nodes.
func New(opts Options) *Logger {
	l := &Logger{enabled: true}
	if opts.Stdout {
		l.outputs = append(l.outputs, os.Stdout)
	}

	l.log = logrus.New()
	l.log.SetOutput(l)
	l.log.SetLevel(ParseLevel(opts.Level))
	if strings.EqualFold(opts.Format, "text") {
		l.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.log.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

// Init initializes the global logger once and returns it.
func Init(opts Options) *Logger {
	once.Do(func() {
		globalLogger = New(opts)
	})
	return globalLogger
}

// Get returns the global logger, initializing it with stdout JSON output at
// info level if Init was never called.
func Get() *Logger {
	return Init(Options{Level: "info", Format: "json", Stdout: true})
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Write fans a formatted entry out to every output.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return len(p), nil
	}
	for _, w := range l.outputs {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

// AddOutput adds an additional output writer.
func (l *Logger) AddOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, w)
}

// RemoveOutput removes an output writer.
func (l *Logger) RemoveOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.outputs[:0]
	for _, out := range l.outputs {
		if out != w {
			kept = append(kept, out)
		}
	}
	l.outputs = kept
}

// SetEnabled mutes or unmutes the writer outputs. Hooks such as the TUI
// buffer keep receiving entries.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// AttachBuffer mirrors every entry into buf.
func (l *Logger) AttachBuffer(buf *LogBuffer) {
	l.log.AddHook(NewBufferHook(buf))
}

func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

// ForNode scopes entries to one replica node.
func (l *Logger) ForNode(nodeID string) logrus.FieldLogger {
	return l.log.WithField(FieldNode, nodeID)
}

// Component adds the component field to a node-scoped logger.
func Component(base logrus.FieldLogger, name string) logrus.FieldLogger {
	return base.WithField(FieldComponent, name)
}

const (
	FieldNode      = "node"
	FieldComponent = "component"
)
