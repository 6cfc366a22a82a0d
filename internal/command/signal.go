// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// InstallSignalHandler arranges for the process to exit with status 1 on
// SIGINT or SIGTERM. Before exiting it calls callback, dumps goroutines on
// SIGTERM and terminates the targets this process started. Messages go to out.
func InstallSignalHandler(out io.Writer, callback func(sig os.Signal)) {
	self := filepath.Base(os.Args[0])
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig := <-ch
		fmt.Fprintf(out, "\n%s: caught %v; exiting\n", self, sig)
		callback(sig)
		// A driver timeout arrives as SIGTERM; the dump shows where the
		// target was stuck.
		if sig == unix.SIGTERM {
			fmt.Fprintf(out, "\n%s: goroutines:\n\n", self)
			if p := pprof.Lookup("goroutine"); p != nil {
				p.WriteTo(out, 2)
			}
		}
		terminateChildren(out)
		os.Exit(1)
	}()
}

// terminateChildren sends SIGTERM to every direct child of this process.
func terminateChildren(out io.Writer) {
	procs, err := process.Processes()
	if err != nil {
		fmt.Fprintf(out, "Failed to list processes: %v\n", err)
		return
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if ppid, err := p.Ppid(); err == nil && ppid == self {
			p.Terminate()
		}
	}
}
