// Copyright 2018 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// maxStackDepth bounds the frames kept per error. Deeper stacks end with
// stackEllipsis.
const (
	maxStackDepth = 8
	stackEllipsis = "\t..."
)

// callStack is a list of return program counters, innermost first.
type callStack []uintptr

// newCallStack records the stack of its caller, dropping skip more frames.
func newCallStack(skip int) callStack {
	pcs := make([]uintptr, maxStackDepth+1)
	n := runtime.Callers(skip+2, pcs)
	return callStack(pcs[:n])
}

// String renders one "\tat func (file:line)" line per frame.
func (s callStack) String() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(s)
	for i := 0; ; i++ {
		if i == maxStackDepth {
			sb.WriteString("\n" + stackEllipsis)
			break
		}
		f, more := frames.Next()
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "\tat %s (%s:%d)", f.Function, filepath.Base(f.File), f.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
