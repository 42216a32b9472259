// Package logging builds structured loggers backed by zap.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DEFAULT logs progress of allocations
	DEFAULT = 0
	// DEBUG logs individual recursion indices and subsets
	DEBUG = 1
	// TRACE logs everything
	TRACE = 2
)

// New creates new logger which logs messages up to the given verbosity.
// Development loggers are human readable and log caller and stack traces.
func New(verbosity int, development bool) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}

	return zapr.NewLogger(z), nil
}

// NewTestLogger creates a new Zap logger using the dev mode.
func NewTestLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-1 * TRACE))

	z, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard()
	}

	return zapr.NewLogger(z)
}

// NewObserved creates new logger of the given core, e.g. zaptest/observer core.
func NewObserved(core zapcore.Core) logr.Logger {
	return zapr.NewLogger(zap.New(core))
}
