// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"regexp"
	"strings"

	"go.chromium.org/vogar/internal/monitor"
)

var (
	goTestRunRE    = regexp.MustCompile(`^=== RUN\s+(\S+)`)
	goTestResultRE = regexp.MustCompile(`^\s*--- (PASS|FAIL|SKIP): (\S+)`)
)

var goTestResults = map[string]monitor.Result{
	"PASS": monitor.Success,
	"FAIL": monitor.ExecFailed,
	"SKIP": monitor.Unsupported,
}

// goTestParser turns verbose Go test output into outcomes, one per
// top-level test. Subtests are reported as output of their parent.
//
// TODO: report parallel tests, whose output interleaves with later tests.
type goTestParser struct {
	rep    *reporter
	prefix string
	test   string // open top-level test
}

// Write consumes a line of test output.
func (p *goTestParser) Write(b []byte) (int, error) {
	line := string(b)
	if m := goTestRunRE.FindStringSubmatch(line); m != nil && p.test == "" && !strings.Contains(m[1], "/") {
		if p.rep.start(p.prefix+m[1]) == nil {
			p.test = m[1]
		}
		return len(b), nil
	}
	if m := goTestResultRE.FindStringSubmatch(line); m != nil && m[2] == p.test {
		p.rep.output(line)
		p.rep.finish(goTestResults[m[1]])
		p.test = ""
		return len(b), nil
	}
	p.rep.output(line)
	return len(b), nil
}

// runGoTest runs a Go test binary in verbose mode.
func runGoTest(ctx context.Context, cfg *Config, path string, rep *reporter) error {
	p := &goTestParser{rep: rep, prefix: cfg.Action + "#"}
	args := append([]string{"-test.v"}, cfg.Args...)
	res := execute(ctx, newInvocation(cfg, p, path, args...), rep)

	switch {
	case rep.isOpen():
		rep.output("test binary exited before the test finished\n")
		if res == monitor.Success {
			res = monitor.Error
		}
		return rep.finish(res)
	case rep.count() == 0:
		return rep.report(cfg.Action, res, "")
	default:
		return rep.failure()
	}
}
