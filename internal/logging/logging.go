// Package logging builds the structured logger used by the server.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logr.Logger.V.
const (
	DEFAULT = 0
	DEBUG   = 1
)

// New returns a JSON logger on stderr. With debug set, V(DEBUG) messages are
// emitted too.
func New(debug bool) logr.Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer, debug bool) logr.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(Level(debug)),
	)
	return zapr.NewLogger(zap.New(core, zap.AddCaller()))
}

// Level maps the debug switch to a zap level. zapr logs V(n) at zap level -n.
func Level(debug bool) zapcore.Level {
	if debug {
		return zapcore.Level(-1 * DEBUG)
	}
	return zapcore.InfoLevel
}
