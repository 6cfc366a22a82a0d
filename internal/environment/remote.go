// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/process"
	"go.chromium.org/vogar/shutil"
)

// exitMarker precedes the exit status printed by backgroundScript.
const exitMarker = "vogar-exit-status:"

// pidFiles names the files remote processes record their PIDs in.
type pidFiles struct {
	dir    string
	prefix string
}

func newPIDFiles(dir string) *pidFiles {
	return &pidFiles{dir: dir, prefix: "vogar-" + uuid.NewString() + "-"}
}

// next returns a fresh PID file path.
func (f *pidFiles) next() string {
	return path.Join(f.dir, f.prefix+uuid.NewString()+".pid")
}

// cleanupScript removes every PID file created through f.
func (f *pidFiles) cleanupScript() string {
	return "rm -f " + shutil.Escape(f.dir) + "/" + shutil.Escape(f.prefix) + "*.pid"
}

// execScript returns a shell script that records its PID in pidFile and then
// replaces itself with inv.
func execScript(inv *process.Invocation, pidFile string) (string, error) {
	if err := inv.Validate(); err != nil {
		return "", err
	}
	line, err := shutil.CommandLine(inv.Dir(), inv.Env(), inv.Args())
	if err != nil {
		return "", err
	}
	return "echo $$ > " + shutil.Escape(pidFile) + " && " + line, nil
}

// backgroundScript is like execScript, but for transports that do not report
// exit statuses: it runs inv in a subshell and prints exitMarker followed by
// the status once it exits.
func backgroundScript(inv *process.Invocation, pidFile string) (string, error) {
	if err := inv.Validate(); err != nil {
		return "", err
	}
	line, err := shutil.CommandLine(inv.Dir(), inv.Env(), inv.Args())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s) & echo $! > %s; wait $!; echo %s$?", line, shutil.Escape(pidFile), exitMarker), nil
}

// splitExitStatus separates output produced by backgroundScript into the
// process output and its exit status.
func splitExitStatus(out string) (string, int, error) {
	i := strings.LastIndex(out, exitMarker)
	if i < 0 {
		return out, 0, errors.New("exit status not reported")
	}
	code, err := strconv.Atoi(strings.TrimSpace(out[i+len(exitMarker):]))
	if err != nil {
		return out[:i], 0, errors.Wrap(err, "malformed exit status")
	}
	return out[:i], code, nil
}

// killScript kills the process whose PID is recorded in pidFile.
func killScript(pidFile string) string {
	f := shutil.Escape(pidFile)
	return fmt.Sprintf("kill -9 $(cat %s) 2>/dev/null; rm -f %s", f, f)
}

// exitError converts a remote exit status to the error returned by Wait.
func exitError(code int) error {
	if code == 0 {
		return nil
	}
	return &process.ExitError{Code: code}
}

// remoteProcess is a process.Handle for processes driven through a remote
// transport.
type remoteProcess struct {
	ctx  context.Context
	out  *process.Capture // nil for native output
	kill func() error

	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

var _ process.Handle = (*remoteProcess)(nil)

func newRemoteProcess(ctx context.Context, inv *process.Invocation, kill func() error) *remoteProcess {
	ctx = context.WithoutCancel(ctx)
	p := &remoteProcess{ctx: ctx, kill: kill, done: make(chan struct{})}
	if !inv.NativeOutput() {
		p.out = process.NewCapture(ctx, inv)
	}
	return p
}

// writer returns the destination of the process's output.
func (p *remoteProcess) writer() io.Writer {
	if p.out == nil {
		return os.Stdout
	}
	return p.out
}

// finish records the result of the process. It must be called exactly once.
func (p *remoteProcess) finish(err error) {
	if p.out != nil {
		p.out.Flush()
	}
	p.err = err
	close(p.done)
}

func (p *remoteProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *remoteProcess) Output() string {
	if p.out == nil {
		return ""
	}
	return p.out.String()
}

func (p *remoteProcess) Kill() error {
	p.killOnce.Do(func() {
		if p.killErr = p.kill(); p.killErr != nil {
			logging.Debug(p.ctx, "Failed to kill remote process: ", p.killErr)
		}
	})
	return p.killErr
}

// freePort returns a local TCP port that is currently unused.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
