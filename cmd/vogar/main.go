// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements the vogar executable, used to run actions on hosts
// and devices.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/term"

	"go.chromium.org/vogar/internal/command"
	"go.chromium.org/vogar/internal/logging"
)

// Version is the version info of this command. It is filled in during build.
var Version = "<unknown>"

// installSignalHandler makes sure the terminal is restored and target
// processes are terminated when vogar is killed by a signal, which prevents
// deferred functions from running.
func installSignalHandler(ctx context.Context) {
	var st *term.State
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		var err error
		if st, err = term.GetState(fd); err != nil {
			logging.Info(ctx, "Failed to get terminal state: ", err)
		}
	}
	command.InstallSignalHandler(os.Stderr, func(os.Signal) {
		if st != nil {
			term.Restore(fd, st)
		}
	})
}

// doMain implements the main body of the program. It's a separate function so
// that its deferred functions will run before os.Exit makes the program exit
// immediately.
func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(newRunCmd(os.Stdout), "")
	subcommands.Register(newMonitorCmd(os.Stdout), "")

	version := flag.Bool("version", false, "print version and exit")
	logTime := flag.Bool("logtime", term.IsTerminal(int(os.Stdout.Fd())), "include date/time headers in logs")
	flag.Parse()

	if *version {
		fmt.Printf("vogar version %s\n", Version)
		return 0
	}

	lg := logging.NewSinkLogger(logging.LevelInfo, *logTime, os.Stdout)
	ctx := logging.AttachLogger(context.Background(), lg)
	ctx = withLogTime(ctx, *logTime)

	installSignalHandler(ctx)

	return int(subcommands.Execute(ctx))
}

type logTimeKey struct{}

// withLogTime records whether console logs carry timestamps, so subcommands
// that replace the console logger keep the same format.
func withLogTime(ctx context.Context, logTime bool) context.Context {
	return context.WithValue(ctx, logTimeKey{}, logTime)
}

func logTimeFromContext(ctx context.Context) bool {
	v, ok := ctx.Value(logTimeKey{}).(bool)
	return !ok || v
}

func main() {
	os.Exit(doMain())
}
