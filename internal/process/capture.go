// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package process

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"go.chromium.org/vogar/internal/logging"
)

// truncatedMarker is appended once to captured output that hit MaxLength.
const truncatedMarker = "\n[output truncated]\n"

// Capture is an io.Writer that line-buffers process output, copies each
// complete line to the invocation's tee and keeps up to MaxLength bytes.
//
// Capture is safe for concurrent writes, so stdout and stderr of the same
// process may share one Capture.
type Capture struct {
	ctx       context.Context
	tee       io.Writer
	maxLength int

	mu        sync.Mutex
	partial   []byte
	buf       strings.Builder
	truncated bool
}

// NewCapture returns a Capture configured from inv. A failing tee is logged
// to ctx and dropped; capturing continues.
func NewCapture(ctx context.Context, inv *Invocation) *Capture {
	return &Capture{ctx: ctx, tee: inv.tee, maxLength: inv.maxLength}
}

// Write consumes p, emitting every complete line.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.partial = append(c.partial, p...)
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		c.emit(c.partial[:i+1])
		c.partial = c.partial[i+1:]
	}
	return len(p), nil
}

// Flush emits any buffered partial line. It is called when the process exits.
func (c *Capture) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.partial) > 0 {
		c.emit(c.partial)
		c.partial = nil
	}
}

// String returns the captured output.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *Capture) emit(line []byte) {
	if c.tee != nil {
		if _, err := c.tee.Write(line); err != nil {
			logging.Debug(c.ctx, "Stopped copying process output: ", err)
			c.tee = nil
		}
	}
	if c.truncated {
		return
	}
	if c.maxLength != Unbounded && c.buf.Len()+len(line) > c.maxLength {
		c.buf.Write(line[:c.maxLength-c.buf.Len()])
		c.buf.WriteString(truncatedMarker)
		c.truncated = true
		return
	}
	c.buf.Write(line)
}
