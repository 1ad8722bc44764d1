// Package logging builds the structured loggers used across blobget.
//
// Library code takes a logr.Logger and never constructs one itself. The CLI
// builds a zap-backed logger here and passes it down.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(...).
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger returns a zap-backed logger that emits V(n) messages for every
// n <= verbosity. Development mode switches to the console encoder.
func NewLogger(verbosity int, development bool) logr.Logger {
	if verbosity < 0 {
		verbosity = 0
	}
	level := zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		// Config is static; only an unwritable stderr gets here.
		zl = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level,
		))
	}
	return zapr.NewLogger(zl)
}

// NewTestLogger creates a development logger that emits every level.
func NewTestLogger() logr.Logger {
	return NewLogger(TRACE, true)
}
