// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging

import (
	"io"
	"sync"
	"time"
)

// Level is the severity of a log message. Higher is more important.
type Level int

const (
	// LevelDebug represents the DEBUG level.
	LevelDebug Level = iota
	// LevelInfo represents the INFO level.
	LevelInfo
)

// Logger receives messages logged through a context.
type Logger interface {
	Log(level Level, ts time.Time, msg string)
}

// MultiLogger fans messages out to a fixed set of loggers.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger writing to loggers in order.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: append([]Logger(nil), loggers...)}
}

// Log implements Logger.
func (ml *MultiLogger) Log(level Level, ts time.Time, msg string) {
	for _, l := range ml.loggers {
		l.Log(level, ts, msg)
	}
}

// SinkLogger writes messages at or above a minimum level to an io.Writer,
// one line each. It is safe for concurrent use.
type SinkLogger struct {
	min       Level
	timestamp bool

	mu sync.Mutex
	w  io.Writer
}

// NewSinkLogger returns a SinkLogger writing to w. If timestamp is set, each
// line starts with the UTC time of the message.
func NewSinkLogger(level Level, timestamp bool, w io.Writer) *SinkLogger {
	return &SinkLogger{min: level, timestamp: timestamp, w: w}
}

// Log implements Logger.
func (l *SinkLogger) Log(level Level, ts time.Time, msg string) {
	if level < l.min {
		return
	}
	var line []byte
	if l.timestamp {
		line = ts.UTC().AppendFormat(line, "2006-01-02T15:04:05.000000Z ")
	}
	line = append(append(line, msg...), '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(line)
}
