// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package driver runs actions in an environment and collects their outcomes.
package driver

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/environment"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/mode"
	"go.chromium.org/vogar/internal/monitor"
	"go.chromium.org/vogar/internal/process"
)

const (
	defaultMonitorTimeout = 30 * time.Second
	defaultDialInterval   = 200 * time.Millisecond
	dialTimeout           = 5 * time.Second
)

// Params contains parameters of a Driver.
type Params struct {
	Env  environment.Environment
	Mode *mode.Mode

	// MonitorPort is the target-side port monitors listen on.
	MonitorPort int
	// MonitorTimeout bounds connecting to a monitor, and waiting for the
	// monitor stream to end after the target process exited.
	MonitorTimeout time.Duration
	// Timeout is the per-action timeout. Zero disables it.
	Timeout time.Duration
	// DialInterval is the time between attempts to connect to a monitor.
	DialInterval time.Duration

	// RunnerDir is the directory holding per-action directories in the
	// environment. It is created before running actions.
	RunnerDir   string
	CleanBefore bool
	CleanAfter  bool

	// ResDir is the local directory results are written to. Results are not
	// written if it is empty.
	ResDir string

	// Stream, if non-nil, receives target output as it arrives.
	Stream io.Writer

	// Clock is used for timeouts. The real clock is used if it is nil.
	Clock clock.Clock
}

// Driver runs actions.
type Driver struct {
	p Params
}

// New returns a Driver.
func New(p Params) *Driver {
	if p.MonitorTimeout <= 0 {
		p.MonitorTimeout = defaultMonitorTimeout
	}
	if p.DialInterval <= 0 {
		p.DialInterval = defaultDialInterval
	}
	if p.Clock == nil {
		p.Clock = clock.NewClock()
	}
	return &Driver{p: p}
}

// Run runs actions one at a time. Failures of individual actions are
// reported as outcomes; the returned error is only set when the run could
// not go on, in which case the results of the actions run so far are still
// returned.
func (d *Driver) Run(ctx context.Context, actions []*mode.Action) ([]*Result, error) {
	if d.p.CleanBefore {
		if err := environment.RemoveAll(ctx, d.p.Env, d.p.RunnerDir); err != nil {
			return nil, err
		}
	}
	if d.p.RunnerDir != "" {
		if err := environment.MakeDirs(ctx, d.p.Env, d.p.RunnerDir, d.p.RunnerDir+"/tmp"); err != nil {
			return nil, err
		}
	}

	rw, err := newResultsWriter(d.p.ResDir)
	if err != nil {
		return nil, err
	}
	defer rw.Close()

	var results []*Result
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "run interrupted")
		}
		res := d.runAction(ctx, action)
		results = append(results, res)
		if err := rw.Add(res); err != nil {
			return results, err
		}
	}

	if err := rw.Finish(results); err != nil {
		return results, err
	}
	logSummary(ctx, results)

	if d.p.CleanAfter {
		if err := environment.RemoveAll(ctx, d.p.Env, d.p.RunnerDir); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Driver) runAction(ctx context.Context, action *mode.Action) *Result {
	res := &Result{Action: action.Name, Start: d.p.Clock.Now()}
	defer func() { res.End = d.p.Clock.Now() }()

	ctx = logging.WithPrefix(ctx, action.Name+": ")
	logging.Infof(ctx, "Running %s", action.Name)

	monitored := d.p.Mode.Kind().Monitored()
	port := mode.NoMonitor
	if monitored {
		port = d.p.MonitorPort
		if err := environment.MakeDirs(ctx, d.p.Env, d.p.Mode.UserDir(action)); err != nil {
			res.add(actionOutcome(action, monitor.Error, err.Error()))
			return res
		}
	}

	inv := d.p.Mode.ActionCommand(action, port)
	h, err := d.p.Env.Start(ctx, inv)
	if err != nil {
		res.add(actionOutcome(action, monitor.Error, err.Error()))
		return res
	}

	rec := &recorder{ctx: ctx, stream: d.p.Stream}
	exited := make(chan struct{})
	readerDone := make(chan struct{})
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	var timerC <-chan time.Time
	if d.p.Timeout > 0 {
		t := d.p.Clock.NewTimer(d.p.Timeout)
		defer t.Stop()
		timerC = t.C()
	}

	var (
		waitErr  error
		watchErr error
		timedOut bool
	)

	var g errgroup.Group
	g.Go(func() error {
		waitErr = h.Wait()
		close(exited)

		// The stream may outlive the process when the connection is held
		// open by something else.
		t := d.p.Clock.NewTimer(d.p.MonitorTimeout)
		defer t.Stop()
		select {
		case <-readerDone:
		case <-t.C():
			cancelWatch()
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-timerC:
			logging.Infof(ctx, "Timed out after %v; killing the target", d.p.Timeout)
			timedOut = true
			h.Kill()
		case <-ctx.Done():
			h.Kill()
		case <-exited:
		}
		return nil
	})
	g.Go(func() error {
		defer close(readerDone)
		if !monitored {
			return nil
		}
		watchErr = d.watch(watchCtx, port, exited, rec)
		if watchErr != nil {
			select {
			case <-exited:
			default:
				h.Kill()
			}
		}
		return nil
	})
	g.Wait()

	output := h.Output()
	switch {
	case timedOut:
		rec.abort(action, monitor.ExecTimeout, fmt.Sprintf("timed out after %v", d.p.Timeout), output)
	case watchErr != nil:
		logging.Infof(ctx, "Monitor failed: %v", watchErr)
		rec.abort(action, monitor.Error, watchErr.Error(), output)
	case len(rec.finished) == 0:
		rec.finished = append(rec.finished, exitOutcome(action, waitErr, output))
	}
	for _, o := range rec.finished {
		res.add(o)
	}
	return res
}

// watch connects to the monitor at port and reports its events to rec.
// Connection attempts are retried until the monitor timeout expires or the
// target exits. A connection that ends before any byte was read is treated
// as a failed attempt, since port forwarders accept connections before the
// target listens.
func (d *Driver) watch(ctx context.Context, port int, exited <-chan struct{}, rec *recorder) error {
	addr, release, err := d.p.Env.MonitorAddr(ctx, port)
	if err != nil {
		return err
	}
	defer release()

	deadline := d.p.Clock.Now().Add(d.p.MonitorTimeout)
	dialer := &net.Dialer{Timeout: dialTimeout}
	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			cr := &countingReader{ReadCloser: conn}
			err = monitor.Watch(ctx, cr, rec)
			conn.Close()
			if err == nil || cr.n > 0 || ctx.Err() != nil {
				return err
			}
		}
		logging.Debugf(ctx, "Monitor connection attempt %d to %s failed: %v", attempt, addr, err)

		select {
		case <-exited:
			return errors.Wrapf(err, "target exited before its monitor at %s could be read", addr)
		default:
		}
		if !d.p.Clock.Now().Before(deadline) {
			return errors.Wrapf(err, "failed to connect to monitor at %s within %v", addr, d.p.MonitorTimeout)
		}

		t := d.p.Clock.NewTimer(d.p.DialInterval)
		select {
		case <-t.C():
		case <-exited:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		t.Stop()
	}
}

// exitOutcome derives the outcome of an action from its exit status.
func exitOutcome(action *mode.Action, waitErr error, output string) *monitor.Outcome {
	if waitErr == nil {
		return actionOutcome(action, monitor.Success, output)
	}
	if _, ok := process.ExitCode(waitErr); ok {
		return actionOutcome(action, monitor.ExecFailed, output)
	}
	return actionOutcome(action, monitor.Error, waitErr.Error()+"\n"+output)
}

func actionOutcome(action *mode.Action, result monitor.Result, output string) *monitor.Outcome {
	o := &monitor.Outcome{Name: action.Name, Action: action.Name, Result: result}
	if output != "" {
		o.Output = []string{output}
	}
	return o
}

type countingReader struct {
	io.ReadCloser
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}
