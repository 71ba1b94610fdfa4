// Package modrunlog provides the runtime's structured logging, built on
// go.uber.org/zap the way the teacher wires it
// (_examples/caddyserver-caddy/logging.go's package-level logger plus
// internal/logbuffer.go's pre-configuration buffering core).
package modrunlog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	logger  *zap.Logger
	buffer  *BufferedCore
)

func init() {
	buffer = NewBufferedCore()
	logger = zap.New(buffer)
}

// Set installs l as the active logger, flushing anything buffered before a
// real sink was attached. Mirrors logging.go's openLogs()/setupNewDefault()
// replacing the bootstrap default once real configuration is available.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	buffer.ReplayInto(l.Core())
	logger = l
}

// L returns the active logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// BufferedCore is a zapcore.Core that records every entry it sees so a
// freshly constructed ModuleManager can log before the caller has attached
// a real sink, then replay the backlog once one is attached. Adapted from
// _examples/caddyserver-caddy/internal/logbuffer.go's LogBufferCore.
type BufferedCore struct {
	mu      sync.Mutex
	entries []bufferedEntry
}

type bufferedEntry struct {
	entry  zapcore.Entry
	fields []zapcore.Field
}

// NewBufferedCore returns an empty BufferedCore logging at Debug and above.
func NewBufferedCore() *BufferedCore { return &BufferedCore{} }

func (c *BufferedCore) Enabled(zapcore.Level) bool { return true }

func (c *BufferedCore) With(fields []zapcore.Field) zapcore.Core {
	return c
}

func (c *BufferedCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(e, c)
}

func (c *BufferedCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, bufferedEntry{entry: e, fields: fields})
	return nil
}

func (c *BufferedCore) Sync() error { return nil }

// ReplayInto writes every buffered entry into dst and clears the backlog.
func (c *BufferedCore) ReplayInto(dst zapcore.Core) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if dst.Enabled(e.entry.Level) {
			_ = dst.Write(e.entry, e.fields)
		}
	}
	c.entries = nil
}
