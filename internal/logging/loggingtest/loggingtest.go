// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package loggingtest provides a logging.Logger for unit tests.
package loggingtest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.chromium.org/vogar/internal/logging"
)

// Logger forwards every message to t.Log and keeps those at or above a
// minimum level for later inspection.
type Logger struct {
	t   *testing.T
	min logging.Level

	mu   sync.Mutex
	kept []string
}

// NewLogger returns a Logger keeping messages at level or above.
func NewLogger(t *testing.T, level logging.Level) *Logger {
	return &Logger{t: t, min: level}
}

// Log implements logging.Logger.
func (l *Logger) Log(level logging.Level, ts time.Time, msg string) {
	l.t.Helper()
	l.t.Log(msg)
	if level < l.min {
		return
	}
	l.mu.Lock()
	l.kept = append(l.kept, msg)
	l.mu.Unlock()
}

// Logs returns a copy of the kept messages.
func (l *Logger) Logs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.kept...)
}

// String joins the kept messages with newlines.
func (l *Logger) String() string {
	return strings.Join(l.Logs(), "\n")
}

// Contains reports whether any kept message contains substr.
func (l *Logger) Contains(substr string) bool {
	for _, msg := range l.Logs() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
