// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package environment provides the places target processes run in: the local
// host, an ADB-attached device, an SSH host or a Docker container.
package environment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/process"
)

// Kind identifies an environment implementation.
type Kind int

// Environment kinds.
const (
	Local Kind = iota
	ADB
	SSH
	Docker
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case ADB:
		return "adb"
	case SSH:
		return "ssh"
	case Docker:
		return "docker"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Environment runs target processes and exposes their monitor ports.
type Environment interface {
	// Kind returns the kind of the environment.
	Kind() Kind
	// Start spawns inv in the environment.
	Start(ctx context.Context, inv *process.Invocation) (process.Handle, error)
	// MonitorAddr returns a host-reachable address for the target port. The
	// caller must call release once it no longer needs the address.
	MonitorAddr(ctx context.Context, port int) (addr string, release func(), err error)
	// Close releases the connection to the environment.
	Close(ctx context.Context) error
}

// Options contains options used when connecting to an environment.
type Options struct {
	// TempDir is a writable directory in the environment used for
	// bookkeeping files of remote processes.
	TempDir string

	// KeyFile is an optional path to an unencrypted SSH private key.
	KeyFile string
	// KeyDir is an optional directory (typically $HOME/.ssh) containing
	// standard SSH keys.
	KeyDir string

	// ConnectTimeout bounds establishing a connection.
	ConnectTimeout time.Duration
	// ConnectRetries is the number of times to retry a failed connection.
	ConnectRetries int
	// ConnectRetryInterval is the minimum time between connection attempts.
	ConnectRetryInterval time.Duration
}

// ParseSpec splits an environment spec of the form "[kind:]target". An
// empty spec and "local" select the local host.
func ParseSpec(spec string) (Kind, string, error) {
	if spec == "" || spec == "local" {
		return Local, "", nil
	}
	prefix, target, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, "", errors.Errorf("environment %q is not of the form kind:target", spec)
	}
	switch prefix {
	case "adb":
		return ADB, target, nil
	case "ssh":
		if target == "" {
			return 0, "", errors.New("ssh environment needs a host")
		}
		return SSH, target, nil
	case "docker":
		if target == "" {
			return 0, "", errors.New("docker environment needs a container")
		}
		return Docker, target, nil
	default:
		return 0, "", errors.Errorf("unknown environment kind %q", prefix)
	}
}

// New connects to the environment described by spec. See ParseSpec.
func New(ctx context.Context, spec string, opts *Options) (Environment, error) {
	kind, target, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}
	if opts.TempDir == "" {
		opts.TempDir = "/tmp"
	}
	switch kind {
	case Local:
		return NewLocal(), nil
	case ADB:
		return newADB(ctx, target, opts)
	case SSH:
		return newSSH(ctx, target, opts)
	case Docker:
		return newDocker(ctx, target, opts)
	}
	return nil, errors.Errorf("unsupported environment %v", kind)
}

// Run starts inv in env and waits for it. The returned output is the
// captured output even on failure.
func Run(ctx context.Context, env Environment, inv *process.Invocation) (string, error) {
	h, err := env.Start(ctx, inv)
	if err != nil {
		return "", err
	}
	err = h.Wait()
	return h.Output(), err
}

// MakeDirs creates dirs and their parents in env.
func MakeDirs(ctx context.Context, env Environment, dirs ...string) error {
	if len(dirs) == 0 {
		return nil
	}
	inv := process.NewBuilder().Args("mkdir", "-p").Args(dirs...).Build()
	if out, err := Run(ctx, env, inv); err != nil {
		return errors.Wrapf(err, "failed to create %v: %s", dirs, out)
	}
	return nil
}

// RemoveAll deletes dir and everything under it in env.
func RemoveAll(ctx context.Context, env Environment, dir string) error {
	inv := process.NewBuilder().Args("rm", "-rf", dir).Build()
	if out, err := Run(ctx, env, inv); err != nil {
		return errors.Wrapf(err, "failed to remove %s: %s", dir, out)
	}
	return nil
}
