// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"io"
	"strings"
	"sync"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/monitor"
)

// reporter reports outcomes of an action, through a monitor if the action is
// monitored and to plain output otherwise.
//
// reporter is an io.Writer appending to the open outcome; output written
// while no outcome is open is logged instead.
type reporter struct {
	ctx    context.Context
	tgt    *monitor.Target // nil if unmonitored
	out    io.Writer
	runner string
	action string

	mu      sync.Mutex
	open    string
	started int
	err     error // first monitor failure
}

func newReporter(ctx context.Context, cfg *Config, out io.Writer) (*reporter, error) {
	r := &reporter{
		ctx:    ctx,
		out:    out,
		runner: cfg.MainClass,
		action: cfg.Action,
	}
	if cfg.MonitorPort < 0 {
		return r, nil
	}

	tgt := monitor.NewTarget()
	logging.Debugf(ctx, "Waiting for a monitor on port %d", cfg.MonitorPort)
	if err := tgt.Await(ctx, cfg.MonitorPort); err != nil {
		return nil, err
	}
	r.tgt = tgt
	return r, nil
}

// start opens an outcome named name.
func (r *reporter) start(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.open = name
	r.started++
	if r.tgt == nil {
		logging.Infof(r.ctx, "Started %s", name)
		return nil
	}
	return r.fail(r.tgt.OutcomeStarted(r.runner, name, r.action))
}

// output appends text to the open outcome.
func (r *reporter) output(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.open == "" || r.err != nil:
		if s := strings.TrimSuffix(text, "\n"); s != "" {
			logging.Info(r.ctx, s)
		}
	case r.tgt == nil:
		io.WriteString(r.out, text)
	default:
		r.fail(r.tgt.Output(text))
	}
}

func (r *reporter) Write(p []byte) (int, error) {
	r.output(string(p))
	return len(p), nil
}

// finish closes the open outcome with result.
func (r *reporter) finish(result monitor.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	name := r.open
	r.open = ""
	if r.tgt == nil {
		logging.Infof(r.ctx, "%s %s", name, result)
		return nil
	}
	return r.fail(r.tgt.OutcomeFinished(result))
}

// report records a complete outcome.
func (r *reporter) report(name string, result monitor.Result, text string) error {
	if err := r.start(name); err != nil {
		return err
	}
	r.output(text)
	return r.finish(result)
}

// isOpen reports whether an outcome is open.
func (r *reporter) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open != ""
}

// count returns the number of outcomes started.
func (r *reporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// failure returns the first monitor failure, if any.
func (r *reporter) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// close ends the monitor stream. It returns the first monitor failure, if
// any.
func (r *reporter) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tgt == nil {
		return r.err
	}
	err := r.tgt.Close()
	if r.err != nil {
		return r.err
	}
	if errors.Is(err, monitor.ErrClosed) {
		return nil
	}
	return err
}

// fail records err as the first monitor failure. r.mu must be held.
func (r *reporter) fail(err error) error {
	if err != nil && r.err == nil {
		logging.Infof(r.ctx, "Monitor failed: %v", err)
		r.err = err
	}
	return err
}
