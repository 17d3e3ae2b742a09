package statecc

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/statecc/internal/dirty"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
	"github.com/gogpu/statecc/internal/wm"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for statecc and all its sub-packages.
// By default, statecc produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by statecc:
//   - [slog.LevelDebug]: cache uploads, CURBE and URB relayouts, compile
//     statistics, unsupported shader opcodes
//   - [slog.LevelInfo]: context lifecycle, fragment kernel disassembly when
//     Config.DebugWM is set
//   - [slog.LevelWarn]: scheduler ordering problems, failed state updates
//
// Example:
//
//	statecc.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	pool.SetLogger(l)
	statecache.SetLogger(l)
	dirty.SetLogger(l)
	wm.SetLogger(l)
}

// Logger returns the current logger used by statecc.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }
