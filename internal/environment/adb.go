// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/electricbubble/gadb"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/process"
)

// defaultADBPort is the port adbd listens on for network connections.
const defaultADBPort = 5555

// ADBEnv runs target processes on an Android device through the ADB server.
//
// The ADB shell service does not report exit statuses or stream output, so
// processes run in a wrapper script that prints the status at the end, and
// output becomes available when the process exits.
type ADBEnv struct {
	dev  *gadb.Device
	pids *pidFiles
}

var _ Environment = (*ADBEnv)(nil)

// newADB connects to the device named by target, which is a serial number,
// a "host:port" address of a networked device, or empty to select the only
// attached device.
func newADB(ctx context.Context, target string, opts *Options) (*ADBEnv, error) {
	dev, err := connectADB(ctx, target)
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "Connected to ADB device %s", dev.Serial())
	return &ADBEnv{dev: dev, pids: newPIDFiles(opts.TempDir)}, nil
}

func connectADB(ctx context.Context, target string) (*gadb.Device, error) {
	client, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ADB server")
	}

	if host, portStr, err := net.SplitHostPort(target); err == nil {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse adb port %q", portStr)
		}
		logging.Debugf(ctx, "Connecting ADB to %s", target)
		if err := client.Connect(host, port); err != nil {
			return nil, errors.Wrapf(err, "failed to connect to %q", target)
		}
	} else if ip := net.ParseIP(target); ip != nil {
		target = net.JoinHostPort(target, strconv.Itoa(defaultADBPort))
		if err := client.Connect(ip.String(), defaultADBPort); err != nil {
			return nil, errors.Wrapf(err, "failed to connect to %q", target)
		}
	}

	devices, err := client.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get ADB devices")
	}
	if target == "" {
		if len(devices) != 1 {
			return nil, errors.Errorf("found %d ADB devices; specify one with adb:<serial>", len(devices))
		}
		return &devices[0], nil
	}
	for _, d := range devices {
		if d.Serial() == target {
			return &d, nil
		}
	}
	return nil, errors.Errorf("failed to find ADB device %q in %v", target, devices)
}

// Kind implements Environment.
func (e *ADBEnv) Kind() Kind { return ADB }

// Start implements Environment.
func (e *ADBEnv) Start(ctx context.Context, inv *process.Invocation) (process.Handle, error) {
	pidFile := e.pids.next()
	script, err := backgroundScript(inv, pidFile)
	if err != nil {
		return nil, err
	}

	p := newRemoteProcess(ctx, inv, func() error {
		_, err := e.dev.RunShellCommand(killScript(pidFile))
		return err
	})
	logging.Debug(ctx, "Running on device: ", inv)
	go func() {
		out, err := e.dev.RunShellCommand(script)
		if err != nil {
			p.finish(errors.Wrap(err, "adb shell failed"))
			return
		}
		out, code, err := splitExitStatus(out)
		p.writer().Write([]byte(out))
		if err != nil {
			// The wrapper was killed along with the process.
			p.finish(&process.ExitError{Code: -1})
			return
		}
		p.finish(exitError(code))
	}()
	return p, nil
}

// MonitorAddr implements Environment by forwarding a free local port to the
// device port.
func (e *ADBEnv) MonitorAddr(ctx context.Context, port int) (string, func(), error) {
	local, err := freePort()
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to pick a local port")
	}
	if err := e.dev.Forward(local, port); err != nil {
		return "", nil, errors.Wrapf(err, "failed to forward local port %d to device port %d", local, port)
	}
	release := func() {
		if err := e.dev.ForwardKill(local); err != nil {
			logging.Infof(ctx, "Failed to remove forward of port %d: %v", local, err)
		}
	}
	return net.JoinHostPort("localhost", fmt.Sprint(local)), release, nil
}

// Close implements Environment.
func (e *ADBEnv) Close(ctx context.Context) error {
	_, err := e.dev.RunShellCommand(e.pids.cleanupScript())
	return err
}
