// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package process

import (
	"fmt"

	"go.chromium.org/vogar/errors"
)

// Handle is a running process started from an Invocation.
type Handle interface {
	// Wait blocks until the process exits. It returns nil if the process
	// exited with status 0, and an error wrapping *ExitError if it exited
	// with a non-zero status.
	Wait() error
	// Output returns the captured output so far. It is empty for
	// invocations with native output.
	Output() string
	// Kill forcibly terminates the process and its descendants.
	Kill() error
}

// ExitError is returned by Handle.Wait when a process exits with a non-zero
// status.
type ExitError struct {
	// Code is the exit status, or -1 if the process was killed by a signal.
	Code int
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return "process terminated by signal"
	}
	return fmt.Sprintf("process exited with status %d", e.Code)
}

// ExitCode extracts the exit status from an error returned by Handle.Wait.
// ok is false if err does not describe a process exit.
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return 0, false
}
