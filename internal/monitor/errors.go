// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"fmt"

	"go.chromium.org/vogar/errors"
)

var (
	// ErrState is returned when an operation is not valid in the monitor's
	// current state.
	ErrState = errors.New("monitor operation invalid in current state")
	// ErrClosed is returned by operations on a closed monitor. It matches
	// ErrState with errors.Is.
	ErrClosed = errors.Wrap(ErrState, "monitor closed")
	// ErrAborted is reported by the host side when the stream ended before
	// the document was complete.
	ErrAborted = errors.New("execution aborted")
)

// SetupError is returned by Target.Await when the monitor could not be
// established. It is fatal to the target process.
type SetupError struct {
	Port int
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to accept a monitor on localhost:%d: %v", e.Port, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// StreamError is returned when writing to an established monitor connection
// fails. The monitor is closed afterwards.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("monitor %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
