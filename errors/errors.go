// Copyright 2018 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package errors constructs errors carrying the call site that created them.
//
// Code in this module uses this package instead of the standard errors.New
// and fmt.Errorf so that failures reported by the driver or a target can be
// traced back to where they originated.
//
//	errors.New("monitor closed")
//	errors.Errorf("port %d already in use", port)
//	errors.Wrap(err, "failed to start target process")
//	errors.Wrapf(err, "failed to accept a monitor on localhost:%d", port)
//
// Formatting an error with "%+v" prints every link of its chain followed by
// the stack recorded for it.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
)

// traced is an error annotated with the stack of its creation site.
type traced struct {
	msg   string
	where callStack
	cause error
}

func newTraced(cause error, msg string) *traced {
	// Skip newTraced and the exported constructor.
	return &traced{msg: msg, where: newCallStack(2), cause: cause}
}

func (e *traced) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *traced) Unwrap() error { return e.cause }

// Format implements fmt.Formatter. The "%+v" verb prints the chain with
// stack traces; any other verb prints Error().
func (e *traced) Format(s fmt.State, verb rune) {
	if verb != 'v' || !s.Flag('+') {
		io.WriteString(s, e.Error())
		return
	}
	var err error = e
	for first := true; err != nil; first = false {
		if !first {
			io.WriteString(s, "\n")
		}
		t, ok := err.(*traced)
		if !ok {
			// Errors from other packages carry no location.
			fmt.Fprintf(s, "%s\n\tat ???", err.Error())
			return
		}
		fmt.Fprintf(s, "%s\n%v", t.msg, t.where)
		err = t.cause
	}
}

// New returns an error with msg, recording the caller's location.
func New(msg string) error {
	return newTraced(nil, msg)
}

// Errorf is like New but formats the message with fmt.Sprintf.
func Errorf(format string, args ...interface{}) error {
	return newTraced(nil, fmt.Sprintf(format, args...))
}

// Wrap returns an error with msg that wraps cause. A nil cause makes it
// equivalent to New.
func Wrap(cause error, msg string) error {
	return newTraced(cause, msg)
}

// Wrapf is like Wrap but formats the message with fmt.Sprintf.
func Wrapf(cause error, format string, args ...interface{}) error {
	return newTraced(cause, fmt.Sprintf(format, args...))
}

// Is is the standard errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is the standard errors.As.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Unwrap is the standard errors.Unwrap.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
