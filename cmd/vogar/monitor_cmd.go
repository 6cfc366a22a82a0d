// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/subcommands"

	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/monitor"
)

// monitorCmd implements subcommands.Command to observe a running target.
type monitorCmd struct {
	stdout      io.Writer
	dialTimeout time.Duration
}

var _ = subcommands.Command(&monitorCmd{})

func newMonitorCmd(stdout io.Writer) *monitorCmd {
	return &monitorCmd{stdout: stdout}
}

func (*monitorCmd) Name() string     { return "monitor" }
func (*monitorCmd) Synopsis() string { return "print the outcomes of a running target" }
func (*monitorCmd) Usage() string {
	return `Usage: monitor [flag]... <host:port>

Description:
    Connects to the monitor of a target started with --monitorPort and
    prints its outcomes as they are reported. Exits with 1 if the target
    stopped before finishing its report.

Flag:
`
}

func (m *monitorCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&m.dialTimeout, "dialtimeout", 10*time.Second, "timeout for connecting to the monitor")
}

func (m *monitorCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		logging.Info(ctx, "Missing monitor address.\n\n"+m.Usage())
		return subcommands.ExitUsageError
	}
	addr := f.Arg(0)

	d := &net.Dialer{Timeout: m.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logging.Infof(ctx, "Failed to connect to %s: %v", addr, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	p := &outcomePrinter{w: m.stdout}
	if err := monitor.Watch(ctx, conn, p); err != nil {
		logging.Infof(ctx, "Monitor failed after %d outcome(s): %v", p.finished, err)
		return subcommands.ExitFailure
	}
	logging.Infof(ctx, "Target finished with %d outcome(s)", p.finished)
	return subcommands.ExitSuccess
}

// outcomePrinter is a monitor.Handler printing events as they arrive.
type outcomePrinter struct {
	w        io.Writer
	finished int
}

func (p *outcomePrinter) OutcomeStarted(o *monitor.Outcome) {
	fmt.Fprintf(p.w, "Running %s\n", o.Name)
}

func (p *outcomePrinter) Output(o *monitor.Outcome, text string) {
	io.WriteString(p.w, text)
}

func (p *outcomePrinter) OutcomeFinished(o *monitor.Outcome) {
	p.finished++
	fmt.Fprintf(p.w, "%s %s\n", o.Result, o.Name)
}
