// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net"
	"testing"

	"github.com/google/subcommands"

	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/logging/loggingtest"
	"go.chromium.org/vogar/internal/monitor"
)

// serveTarget starts a monitor on a free port and runs script once a host
// connects. It returns the address to connect to.
func serveTarget(t *testing.T, script func(tgt *monitor.Target)) string {
	ctx := context.Background()
	tgt := monitor.NewTarget()
	if err := tgt.Listen(ctx, 0); err != nil {
		t.Fatal("Listen failed: ", err)
	}
	go func() {
		if err := tgt.Accept(ctx); err != nil {
			t.Error("Accept failed: ", err)
			return
		}
		script(tgt)
	}()
	return fmt.Sprintf("127.0.0.1:%d", tgt.Addr().(*net.TCPAddr).Port)
}

func executeMonitorCmd(t *testing.T, args []string) (subcommands.ExitStatus, string) {
	var stdout bytes.Buffer
	cmd := newMonitorCmd(&stdout)
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}
	ctx := logging.AttachLogger(context.Background(), loggingtest.NewLogger(t, logging.LevelDebug))
	return cmd.Execute(ctx, flags), stdout.String()
}

func TestMonitorPrintsOutcomes(t *testing.T) {
	addr := serveTarget(t, func(tgt *monitor.Target) {
		tgt.OutcomeStarted("main", "pkg.T", "act")
		tgt.Output("hello\n")
		tgt.OutcomeFinished(monitor.Success)
		tgt.Close()
	})

	status, out := executeMonitorCmd(t, []string{addr})
	if status != subcommands.ExitSuccess {
		t.Errorf("Execute returned %v; want %v", status, subcommands.ExitSuccess)
	}
	const want = "Running pkg.T\nhello\nSUCCESS pkg.T\n"
	if out != want {
		t.Errorf("Output = %q; want %q", out, want)
	}
}

func TestMonitorAborted(t *testing.T) {
	addr := serveTarget(t, func(tgt *monitor.Target) {
		tgt.OutcomeStarted("main", "pkg.T", "act")
		tgt.Close()
	})

	if status, _ := executeMonitorCmd(t, []string{addr}); status != subcommands.ExitFailure {
		t.Errorf("Execute returned %v; want %v", status, subcommands.ExitFailure)
	}
}

func TestMonitorUsage(t *testing.T) {
	if status, _ := executeMonitorCmd(t, nil); status != subcommands.ExitUsageError {
		t.Errorf("Execute returned %v; want %v", status, subcommands.ExitUsageError)
	}
}
