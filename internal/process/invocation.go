// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package process describes and spawns target processes.
//
// An Invocation is an immutable description of a process to spawn: its
// command tokens, environment overrides, working directory and output policy.
// Invocations are assembled with a Builder and executed by an environment;
// Start executes them on the local host.
package process

import (
	"io"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/shutil"
)

// Unbounded is the MaxLength value meaning captured output is never truncated.
const Unbounded = -1

// Invocation describes everything needed to spawn a process.
// Invocations are immutable; accessors return copies.
type Invocation struct {
	args         []string
	env          map[string]string
	dir          string
	tee          io.Writer
	maxLength    int
	nativeOutput bool
}

// Args returns the command tokens. Args()[0] is the executable.
func (inv *Invocation) Args() []string {
	return append([]string(nil), inv.args...)
}

// Env returns the environment variable overrides. They are merged into the
// ambient environment of the spawning process, never replacing it.
func (inv *Invocation) Env() map[string]string {
	env := make(map[string]string, len(inv.env))
	for k, v := range inv.env {
		env[k] = v
	}
	return env
}

// Dir returns the working directory, or an empty string to inherit the
// caller's.
func (inv *Invocation) Dir() string { return inv.dir }

// Tee returns the writer receiving a duplicate of captured output, or nil.
func (inv *Invocation) Tee() io.Writer { return inv.tee }

// MaxLength returns the maximum number of bytes of captured output to keep,
// or Unbounded.
func (inv *Invocation) MaxLength() int { return inv.maxLength }

// NativeOutput reports whether the process writes directly to the caller's
// stdout and stderr instead of having its output captured.
func (inv *Invocation) NativeOutput() bool { return inv.nativeOutput }

// String renders the command tokens as a shell command line for logging.
func (inv *Invocation) String() string {
	return shutil.EscapeSlice(inv.args)
}

// Validate checks that inv can be spawned. Builders never validate; spawners
// call this before starting a process.
func (inv *Invocation) Validate() error {
	if len(inv.args) == 0 {
		return errors.New("invocation has no command tokens")
	}
	if inv.args[0] == "" {
		return errors.New("invocation has an empty executable")
	}
	return nil
}

// Builder accumulates the configuration of an Invocation.
// Build copies the accumulated state, so a Builder may keep being modified
// after Build without affecting invocations it already produced.
type Builder struct {
	args         []string
	env          map[string]string
	dir          string
	tee          io.Writer
	maxLength    int
	nativeOutput bool
}

// NewBuilder returns an empty Builder with unbounded output.
func NewBuilder() *Builder {
	return &Builder{env: make(map[string]string), maxLength: Unbounded}
}

// Args appends command tokens.
func (b *Builder) Args(args ...string) *Builder {
	b.args = append(b.args, args...)
	return b
}

// Env sets an environment variable override.
func (b *Builder) Env(key, value string) *Builder {
	b.env[key] = value
	return b
}

// WorkingDir sets the working directory.
func (b *Builder) WorkingDir(dir string) *Builder {
	b.dir = dir
	return b
}

// Tee sets the writer receiving a duplicate of captured output.
func (b *Builder) Tee(w io.Writer) *Builder {
	b.tee = w
	return b
}

// MaxLength sets the truncation bound of captured output. Negative values
// mean Unbounded.
func (b *Builder) MaxLength(n int) *Builder {
	if n < 0 {
		n = Unbounded
	}
	b.maxLength = n
	return b
}

// NativeOutput selects passthrough output when native is true.
func (b *Builder) NativeOutput(native bool) *Builder {
	b.nativeOutput = native
	return b
}

// Build returns an Invocation holding a copy of the current configuration.
func (b *Builder) Build() *Invocation {
	env := make(map[string]string, len(b.env))
	for k, v := range b.env {
		env[k] = v
	}
	return &Invocation{
		args:         append([]string(nil), b.args...),
		env:          env,
		dir:          b.dir,
		tee:          b.tee,
		maxLength:    b.maxLength,
		nativeOutput: b.nativeOutput,
	}
}
