// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/process"
)

// DockerEnv runs target processes inside a running Docker container. The
// monitor is reached directly at the container's IP address.
type DockerEnv struct {
	cl        *client.Client
	container string
	ip        string
	pids      *pidFiles
}

var _ Environment = (*DockerEnv)(nil)

func newDocker(ctx context.Context, container string, opts *Options) (*DockerEnv, error) {
	cl, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Docker client")
	}
	info, err := cl.ContainerInspect(ctx, container)
	if err != nil {
		cl.Close()
		return nil, errors.Wrapf(err, "failed to inspect container %s", container)
	}
	if info.State == nil || !info.State.Running {
		cl.Close()
		return nil, errors.Errorf("container %s is not running", container)
	}

	ip := ""
	if info.NetworkSettings != nil {
		ip = info.NetworkSettings.IPAddress
		for name, n := range info.NetworkSettings.Networks {
			if ip != "" {
				break
			}
			if n != nil && n.IPAddress != "" {
				logging.Debugf(ctx, "Using address of network %s", name)
				ip = n.IPAddress
			}
		}
	}
	if ip == "" {
		cl.Close()
		return nil, errors.Errorf("container %s has no IP address", container)
	}
	logging.Infof(ctx, "Using container %s at %s", container, ip)
	return &DockerEnv{cl: cl, container: container, ip: ip, pids: newPIDFiles(opts.TempDir)}, nil
}

// Kind implements Environment.
func (e *DockerEnv) Kind() Kind { return Docker }

// Start implements Environment.
func (e *DockerEnv) Start(ctx context.Context, inv *process.Invocation) (process.Handle, error) {
	pidFile := e.pids.next()
	script, err := execScript(inv, pidFile)
	if err != nil {
		return nil, err
	}
	execID, attach, err := e.exec(ctx, script)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", inv.Args()[0])
	}

	// The process outlives ctx's cancellation only through Kill.
	bg := context.WithoutCancel(ctx)
	p := newRemoteProcess(ctx, inv, func() error {
		_, err := e.run(bg, killScript(pidFile))
		return err
	})
	logging.Debug(ctx, "Running in container: ", inv)
	go func() {
		defer attach.Close()
		w := p.writer()
		if _, err := stdcopy.StdCopy(w, w, attach.Reader); err != nil {
			p.finish(errors.Wrap(err, "failed to read exec output"))
			return
		}
		ins, err := e.cl.ContainerExecInspect(bg, execID)
		if err != nil {
			p.finish(errors.Wrap(err, "failed to inspect exec"))
			return
		}
		p.finish(exitError(ins.ExitCode))
	}()
	return p, nil
}

// exec starts script under /bin/sh in the container.
func (e *DockerEnv) exec(ctx context.Context, script string) (string, types.HijackedResponse, error) {
	cfg := types.ExecConfig{
		Cmd:          []string{"/bin/sh", "-c", script},
		AttachStdout: true,
		AttachStderr: true,
	}
	resp, err := e.cl.ContainerExecCreate(ctx, e.container, cfg)
	if err != nil {
		return "", types.HijackedResponse{}, err
	}
	attach, err := e.cl.ContainerExecAttach(ctx, resp.ID, types.ExecStartCheck{})
	if err != nil {
		return "", types.HijackedResponse{}, err
	}
	return resp.ID, attach, nil
}

// run runs script to completion and returns its combined output. A non-zero
// exit status is returned as a *process.ExitError.
func (e *DockerEnv) run(ctx context.Context, script string) (string, error) {
	execID, attach, err := e.exec(ctx, script)
	if err != nil {
		return "", err
	}
	defer attach.Close()
	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil && err != io.EOF {
		return out.String(), err
	}
	ins, err := e.cl.ContainerExecInspect(ctx, execID)
	if err != nil {
		return out.String(), errors.Wrap(err, "failed to inspect exec")
	}
	return out.String(), exitError(ins.ExitCode)
}

// MonitorAddr implements Environment.
func (e *DockerEnv) MonitorAddr(ctx context.Context, port int) (string, func(), error) {
	return net.JoinHostPort(e.ip, fmt.Sprint(port)), func() {}, nil
}

// Close implements Environment.
func (e *DockerEnv) Close(ctx context.Context) error {
	if _, err := e.run(ctx, e.pids.cleanupScript()); err != nil {
		logging.Debug(ctx, "Failed to remove PID files: ", err)
	}
	return e.cl.Close()
}
