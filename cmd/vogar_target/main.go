// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements vogar_target, the program started in place of a
// VM to run one action and report its outcomes.
package main

import (
	"context"
	"io"
	"os"

	"go.chromium.org/vogar/internal/command"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/runner"
)

// doMain runs the target with args, excluding the program name, and returns
// the exit status. Logs are written to stderr; unmonitored action output to
// stdout.
func doMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx = logging.AttachLogger(ctx, logging.NewSinkLogger(logging.LevelInfo, true, stderr))

	cfg, err := runner.ParseArgs(args)
	if err != nil {
		logging.Info(ctx, "Invalid arguments: ", err)
		return 2
	}
	if err := runner.Run(ctx, cfg, stdout); err != nil {
		logging.Info(ctx, "Failed to run ", cfg.Action, ": ", err)
		return 1
	}
	return 0
}

func main() {
	command.InstallSignalHandler(os.Stderr, func(os.Signal) {})
	os.Exit(doMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
