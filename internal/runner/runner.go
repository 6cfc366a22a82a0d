// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/classpath"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/monitor"
	"go.chromium.org/vogar/internal/process"
)

// Run executes the action described by cfg and reports its outcomes. If the
// action is not monitored, action output is written to out.
//
// Action failures are reported as outcomes and do not make Run fail; an
// error is returned if the monitor could not be served.
func Run(ctx context.Context, cfg *Config, out io.Writer) error {
	if cfg.DebugPort > 0 {
		logging.Infof(ctx, "Debugging is not supported; ignoring request for port %d", cfg.DebugPort)
	}
	for _, f := range cfg.VMFlags {
		logging.Debugf(ctx, "Ignoring VM flag %s", f)
	}

	rep, err := newReporter(ctx, cfg, out)
	if err != nil {
		return err
	}

	path, err := Resolve(cfg)
	if err != nil {
		if err := rep.report(cfg.Action, monitor.Error, err.Error()+"\n"); err != nil {
			rep.close()
			return err
		}
		return rep.close()
	}

	switch cfg.MainClass {
	case GoTestEntry:
		err = runGoTest(ctx, cfg, path, rep)
	default:
		err = runMain(ctx, cfg, path, rep)
	}
	if err != nil {
		rep.close()
		return err
	}
	return rep.close()
}

// Resolve finds the executable of the action: a file named after the
// action inside a directory element, or an element whose base name is the
// action. The boot classpath is searched before the classpath.
func Resolve(cfg *Config) (string, error) {
	for _, cp := range []*classpath.Classpath{cfg.BootClasspath, cfg.Classpath} {
		for _, elem := range cp.Elements() {
			fi, err := os.Stat(elem)
			if err != nil {
				continue
			}
			cand := elem
			if fi.IsDir() {
				cand = filepath.Join(elem, cfg.Action)
			} else if filepath.Base(elem) != filepath.Base(cfg.Action) {
				continue
			}
			if isExecutable(cand) {
				return filepath.Abs(cand)
			}
		}
	}
	return "", errors.Errorf("action %s not found on the classpath", cfg.Action)
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0111 != 0
}

// newInvocation returns an invocation of path with args whose output is
// teed to w. Properties of cfg set the working directory and temporary
// directory of the action.
func newInvocation(cfg *Config, w io.Writer, path string, args ...string) *process.Invocation {
	b := process.NewBuilder().Args(path).Args(args...).Tee(w).MaxLength(0)
	if dir := cfg.Props["user.dir"]; dir != "" {
		b.WorkingDir(dir)
	}
	if tmp := cfg.Props["java.io.tmpdir"]; tmp != "" {
		b.Env("TMPDIR", tmp)
	}
	return b.Build()
}

// execute runs inv to completion and returns the result derived from its
// exit status. It kills the process if ctx is canceled.
func execute(ctx context.Context, inv *process.Invocation, rep *reporter) monitor.Result {
	p, err := process.Start(ctx, inv)
	if err != nil {
		rep.output(err.Error() + "\n")
		return monitor.Error
	}
	stop := context.AfterFunc(ctx, func() { p.Kill() })
	defer stop()

	err = p.Wait()
	code, ok := process.ExitCode(err)
	switch {
	case ctx.Err() != nil:
		rep.output("interrupted: " + ctx.Err().Error() + "\n")
		return monitor.Error
	case !ok:
		rep.output(err.Error() + "\n")
		return monitor.Error
	case code == 0:
		return monitor.Success
	default:
		logging.Infof(ctx, "%s exited with status %d", inv.Args()[0], code)
		return monitor.ExecFailed
	}
}

// runMain reports a single outcome named after the action.
func runMain(ctx context.Context, cfg *Config, path string, rep *reporter) error {
	if err := rep.start(cfg.Action); err != nil {
		return err
	}
	res := execute(ctx, newInvocation(cfg, rep, path, cfg.Args...), rep)
	return rep.finish(res)
}
