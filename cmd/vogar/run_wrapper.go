// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"io"
	"os"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/config"
	"go.chromium.org/vogar/internal/driver"
	"go.chromium.org/vogar/internal/environment"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/mode"
)

// runWrapper is a wrapper that allows the driver to be stubbed out for testing.
type runWrapper interface {
	// run runs the actions of cfg. Target output is streamed to stdout if
	// requested by cfg.
	run(ctx context.Context, cfg *config.Config, runID string, stdout io.Writer) ([]*driver.Result, error)
}

// realRunWrapper is a runWrapper implementation that connects to the
// configured environment and runs the driver.
type realRunWrapper struct{}

func (realRunWrapper) run(ctx context.Context, cfg *config.Config, runID string, stdout io.Writer) ([]*driver.Result, error) {
	env, err := environment.New(ctx, cfg.Target(), cfg.EnvironmentOptions())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the environment")
	}
	defer env.Close(ctx)
	logging.Infof(ctx, "Running %d action(s) in %v mode on %v", len(cfg.Actions()), cfg.Mode(), env.Kind())

	var stream io.Writer
	if cfg.Stream() {
		stream = stdout
	}

	opts := cfg.ModeOptions(runID)
	// Unmonitored targets only report through their output.
	if !cfg.Mode().Monitored() {
		opts.Output = stream
	}
	m, err := mode.New(opts)
	if err != nil {
		return nil, err
	}

	d := driver.New(driver.Params{
		Env:            env,
		Mode:           m,
		MonitorPort:    cfg.MonitorPort(),
		MonitorTimeout: cfg.MonitorTimeout(),
		Timeout:        cfg.Timeout(),
		RunnerDir:      opts.RunnerDir,
		CleanBefore:    cfg.CleanBefore(),
		CleanAfter:     cfg.CleanAfter(),
		ResDir:         cfg.ResDir(),
		Stream:         stream,
	})

	var actions []*mode.Action
	for _, name := range cfg.Actions() {
		actions = append(actions, &mode.Action{Name: name})
	}
	results, err := d.Run(ctx, actions)

	if cfg.CleanAfter() && env.Kind() == environment.Local {
		os.RemoveAll(cfg.LocalTempDir(runID))
	}
	return results, err
}
