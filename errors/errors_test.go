// Copyright 2018 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package errors

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
)

func check(t *testing.T, err error, msg string, traceRegexp *regexp.Regexp) {
	t.Helper()
	if s := err.Error(); s != msg {
		t.Errorf("Wrong error message %q; want %q", s, msg)
	}
	if s := fmt.Sprintf("%v", err); s != msg {
		t.Errorf("Wrong default value %q; want %q", s, msg)
	}
	if tr := fmt.Sprintf("%+v", err); !traceRegexp.MatchString(tr) {
		t.Errorf("Wrong trace %q; should match %q", tr, traceRegexp)
	}
}

func TestNew(t *testing.T) {
	traceRegexp := regexp.MustCompile(`^monitor closed
	at go\.chromium\.org/vogar/errors\.TestNew \(errors_test.go:\d+\)`)

	err := New("monitor closed")

	check(t, err, "monitor closed", traceRegexp)
}

func TestErrorf(t *testing.T) {
	traceRegexp := regexp.MustCompile(`^port 8788 in use
	at go\.chromium\.org/vogar/errors\.TestErrorf \(errors_test.go:\d+\)`)

	err := Errorf("port %d in use", 8788)

	check(t, err, "port 8788 in use", traceRegexp)
}

func TestWrap(t *testing.T) {
	traceRegexp := regexp.MustCompile(`(?s)^accept failed
	at go\.chromium\.org/vogar/errors\.TestWrap \(errors_test.go:\d+\)
.*
timeout
	at go\.chromium\.org/vogar/errors\.TestWrap \(errors_test.go:\d+\)`)

	err := Wrap(New("timeout"), "accept failed")

	check(t, err, "accept failed: timeout", traceRegexp)
}

func TestWrapForeignError(t *testing.T) {
	traceRegexp := regexp.MustCompile(`(?s)^accept failed
	at go\.chromium\.org/vogar/errors\.TestWrapForeignError \(errors_test.go:\d+\)
.*
timeout
	at \?\?\?$`)

	err := Wrap(stderrors.New("timeout"), "accept failed")

	check(t, err, "accept failed: timeout", traceRegexp)
}

func TestWrapNil(t *testing.T) {
	traceRegexp := regexp.MustCompile(`^accept failed
	at go\.chromium\.org/vogar/errors\.TestWrapNil \(errors_test.go:\d+\)`)

	err := Wrap(nil, "accept failed")

	check(t, err, "accept failed", traceRegexp)
}

func TestWrapf(t *testing.T) {
	traceRegexp := regexp.MustCompile(`(?s)^accept on 8787 failed
	at go\.chromium\.org/vogar/errors\.TestWrapf \(errors_test.go:\d+\)
.*
timeout
	at go\.chromium\.org/vogar/errors\.TestWrapf \(errors_test.go:\d+\)`)

	err := Wrapf(New("timeout"), "accept on %d failed", 8787)

	check(t, err, "accept on 8787 failed: timeout", traceRegexp)
}

func TestIsAs(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := Wrap(Wrap(sentinel, "inner"), "outer")
	if !Is(err, sentinel) {
		t.Errorf("Is(%q, sentinel) = false; want true", err)
	}
	if got := Unwrap(err); got == nil || got.Error() != "inner: sentinel" {
		t.Errorf("Unwrap(%q) = %v; want inner: sentinel", err, got)
	}

	type custom struct{ error }
	err = Wrap(custom{sentinel}, "outer")
	var c custom
	if !As(err, &c) {
		t.Errorf("As(%q, *custom) = false; want true", err)
	}
}

func getDeepStack(depth int) callStack {
	if depth == 0 {
		return newCallStack(0)
	}
	return getDeepStack(depth - 1)
}

func TestStackLong(t *testing.T) {
	lines := strings.Split(getDeepStack(maxStackDepth).String(), "\n")
	if len(lines) != maxStackDepth+1 {
		t.Fatalf("Stack trace has %d lines; want %d", len(lines), maxStackDepth+1)
	}
	re := regexp.MustCompile(`^\tat go\.chromium\.org/vogar/errors\.getDeepStack \(errors_test.go:\d+\)$`)
	for i, line := range lines[:len(lines)-1] {
		if !re.MatchString(line) {
			t.Errorf("Line %d of stack trace is %q; want match of %q", i, line, re)
		}
	}
	if last := lines[len(lines)-1]; last != stackEllipsis {
		t.Errorf("Stack trace ends with %q; want ellipsis", last)
	}
}
