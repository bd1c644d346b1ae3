// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log provides the logging Helper used while walking a PE image.
// Parsing untrusted, possibly-malformed input produces a steady trickle of
// recoverable warnings (a bad forwarder, a truncated relocation block); this
// package gives every directory parser a cheap, leveled way to report them
// without turning a warning into a returned error.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Helper wraps a *zap.SugaredLogger with the Debugf/Warnf/Errorf surface the
// directory parsers call while they walk an image.
type Helper struct {
	s *zap.SugaredLogger
}

// NewHelper builds a Helper around the given zap logger. A nil logger
// produces a Helper whose calls are no-ops, so callers never need a nil
// check before logging.
func NewHelper(l *zap.Logger) *Helper {
	if l == nil {
		return &Helper{}
	}
	return &Helper{s: l.Sugar()}
}

// NewStdHelper returns a Helper writing warnings and errors to stderr, the
// default used when Options.Logger is left unset.
func NewStdHelper() *Helper {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		zap.WarnLevel,
	)
	return &Helper{s: zap.New(core).Sugar()}
}

// Debugf logs at debug level. Used for recoverable anomalies a caller would
// not normally want surfaced (e.g. a missing COFF debug record).
func (h *Helper) Debugf(format string, args ...interface{}) {
	if h == nil || h.s == nil {
		return
	}
	h.s.Debugf(format, args...)
}

// Debug logs a single message at debug level.
func (h *Helper) Debug(msg string) {
	if h == nil || h.s == nil {
		return
	}
	h.s.Debug(msg)
}

// Warnf logs at warn level. Used when a parser falls back to a degraded but
// still-useful behavior (an import thunk table truncated at its bounds, a
// data directory whose parser failed while parsing continues).
func (h *Helper) Warnf(format string, args ...interface{}) {
	if h == nil || h.s == nil {
		return
	}
	h.s.Warnf(format, args...)
}

// Warn logs a single message at warn level.
func (h *Helper) Warn(msg string) {
	if h == nil || h.s == nil {
		return
	}
	h.s.Warn(msg)
}

// Errorf logs at error level. Used when a data directory could not be
// parsed at all but the image as a whole is still usable.
func (h *Helper) Errorf(format string, args ...interface{}) {
	if h == nil || h.s == nil {
		return
	}
	h.s.Errorf(format, args...)
}
