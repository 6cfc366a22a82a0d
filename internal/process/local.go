// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"

	ps "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
)

// Process is a process running on the local host.
type Process struct {
	cmd  *exec.Cmd
	out  *Capture      // nil for native output
	done chan struct{} // closed when output copying finishes

	waitOnce sync.Once
	waitErr  error
}

var _ Handle = (*Process)(nil)

// Start validates inv and spawns it on the local host in a new process group.
func Start(ctx context.Context, inv *Invocation) (*Process, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.Command(inv.args[0], inv.args[1:]...)
	cmd.Dir = inv.dir
	cmd.Env = mergeEnv(os.Environ(), inv.env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &Process{cmd: cmd, done: make(chan struct{})}

	var pw *os.File
	if inv.nativeOutput {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		close(p.done)
	} else {
		pr, w, err := os.Pipe()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create output pipe")
		}
		pw = w
		cmd.Stdout = pw
		cmd.Stderr = pw
		p.out = NewCapture(ctx, inv)
		go func() {
			defer close(p.done)
			defer pr.Close()
			io.Copy(p.out, pr)
			p.out.Flush()
		}()
	}

	logging.Debug(ctx, "Starting ", inv)
	err := cmd.Start()
	if pw != nil {
		// The child holds its own copy of the write end.
		pw.Close()
	}
	if err != nil {
		<-p.done
		return nil, errors.Wrapf(err, "failed to start %s", inv.args[0])
	}
	return p, nil
}

// Pid returns the process ID of the process.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait waits for the process to exit and for its output to be drained.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		<-p.done
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			p.waitErr = errors.Wrap(&ExitError{Code: ee.ExitCode()}, p.cmd.Path)
		} else if err != nil {
			p.waitErr = errors.Wrap(err, "failed to wait for process")
		}
	})
	return p.waitErr
}

// Output returns the output captured so far.
func (p *Process) Output() string {
	if p.out == nil {
		return ""
	}
	return p.out.String()
}

// Kill sends SIGKILL to the process, its descendants and its process group.
func (p *Process) Kill() error {
	pid := p.cmd.Process.Pid
	if proc, err := ps.NewProcess(int32(pid)); err == nil {
		killDescendants(proc)
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return errors.Wrapf(err, "failed to kill process group %d", pid)
	}
	return nil
}

// killDescendants kills all descendants of proc, deepest first. Descendants
// that moved to another process group are not reached by the group kill.
func killDescendants(proc *ps.Process) {
	children, err := proc.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		killDescendants(c)
		c.Kill()
	}
}

// mergeEnv returns base with overrides applied. Entries of base whose names
// are overridden are dropped; remaining overrides are appended in sorted
// order.
func mergeEnv(base []string, overrides map[string]string) []string {
	var env []string
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[name]; ok {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
