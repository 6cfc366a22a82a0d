// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"go.chromium.org/vogar/internal/config"
	"go.chromium.org/vogar/internal/logging"
)

const fullLogName = "full.txt" // file in the results dir containing full output

// runCmd implements subcommands.Command to support running actions.
type runCmd struct {
	cfg            *config.MutableConfig // shared config for running actions
	wrapper        runWrapper            // can be set by tests to stub out calls to the driver
	stdout         io.Writer             // console output
	failForActions bool                  // exit with 1 if any outcome did not succeed
}

var _ = subcommands.Command(&runCmd{})

func newRunCmd(stdout io.Writer) *runCmd {
	return &runCmd{
		cfg:     config.NewMutableConfig(""),
		wrapper: &realRunWrapper{},
		stdout:  stdout,
	}
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run actions" }
func (*runCmd) Usage() string {
	return `Usage: run [flag]... <action>... [-- <target arg>...]

Description:
    Runs each action in its own target process and reports its outcomes.
    Exits with 0 if all actions were executed, even if some of their outcomes
    failed. Callers should examine results.json or streamed_results.jsonl in
    the results directory. -failforactions can be supplied to override this
    behavior.

Action:
    The name of an executable found on the runtime classpath of the target
    runner, or "package/.Activity" in activity mode.

Flag:
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.failForActions, "failforactions", false, "exit with 1 if any outcome did not succeed")
	r.cfg.SetFlags(f)
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if r.cfg.ConfigFile != "" {
		if err := config.ApplyFile(f, r.cfg.ConfigFile); err != nil {
			logging.Info(ctx, "Failed to read config: ", err)
			return subcommands.ExitUsageError
		}
	}

	r.cfg.Actions, r.cfg.TargetArgs = splitArgs(f.Args())
	if len(r.cfg.Actions) == 0 {
		logging.Info(ctx, "Missing actions.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}

	updateLatest := r.cfg.ResDir == ""

	if err := r.cfg.DeriveDefaults(); err != nil {
		logging.Info(ctx, "Failed to derive defaults: ", err)
		return subcommands.ExitUsageError
	}

	if err := os.MkdirAll(r.cfg.ResDir, 0755); err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}

	// Update the "latest" symlink if the default result directory is used.
	if updateLatest {
		link := filepath.Join(filepath.Dir(r.cfg.ResDir), "latest")
		os.Remove(link)
		if err := os.Symlink(filepath.Base(r.cfg.ResDir), link); err != nil {
			logging.Info(ctx, "Failed to create results symlink: ", err)
		}
	}

	// Log the full output of the command to disk.
	fullLog, err := os.Create(filepath.Join(r.cfg.ResDir, fullLogName))
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}
	defer fullLog.Close()

	level := logging.LevelInfo
	if r.cfg.Verbose {
		level = logging.LevelDebug
	}
	ctx = logging.AttachLoggerNoPropagation(ctx, logging.NewMultiLogger(
		logging.NewSinkLogger(level, logTimeFromContext(ctx), r.stdout),
		logging.NewSinkLogger(logging.LevelDebug, true, fullLog),
	))

	logging.Info(ctx, "Command line: ", strings.Join(os.Args, " "))
	logging.Info(ctx, "Writing results to ", r.cfg.ResDir)

	runID := uuid.NewString()
	logging.Debug(ctx, "Run ID ", runID)

	results, runErr := r.wrapper.run(ctx, r.cfg.Freeze(), runID, r.stdout)
	if runErr != nil {
		logging.Infof(ctx, "Failed to run actions: %v", runErr)
		return subcommands.ExitFailure
	}

	if r.failForActions {
		for _, res := range results {
			if res.Failed() {
				return subcommands.ExitFailure
			}
		}
	}
	return subcommands.ExitSuccess
}

// splitArgs splits positional arguments into actions and the target
// arguments following "--".
func splitArgs(args []string) (actions, targetArgs []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}
