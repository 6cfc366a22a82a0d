// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"fmt"
	"net"

	"go.chromium.org/vogar/internal/process"
)

// LocalEnv runs target processes on the local host.
type LocalEnv struct{}

var _ Environment = (*LocalEnv)(nil)

// NewLocal returns the local host environment.
func NewLocal() *LocalEnv { return &LocalEnv{} }

// Kind implements Environment.
func (e *LocalEnv) Kind() Kind { return Local }

// Start implements Environment.
func (e *LocalEnv) Start(ctx context.Context, inv *process.Invocation) (process.Handle, error) {
	return process.Start(ctx, inv)
}

// MonitorAddr implements Environment.
func (e *LocalEnv) MonitorAddr(ctx context.Context, port int) (string, func(), error) {
	return net.JoinHostPort("localhost", fmt.Sprint(port)), func() {}, nil
}

// Close implements Environment.
func (e *LocalEnv) Close(ctx context.Context) error { return nil }
