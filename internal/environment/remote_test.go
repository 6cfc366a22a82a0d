// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/logging/loggingtest"
	"go.chromium.org/vogar/internal/process"
	"go.chromium.org/vogar/testutil"
)

// runScript runs a shell script locally, as a remote shell would.
func runScript(t *testing.T, script string) (*process.Process, error) {
	t.Helper()
	return process.Start(context.Background(), process.NewBuilder().Args("/bin/sh", "-c", script).Build())
}

func TestExecScript(t *testing.T) {
	td := testutil.TempDir(t)
	pidFile := filepath.Join(td, "p.pid")
	inv := process.NewBuilder().
		Args("/bin/sh", "-c", `echo "$V $PWD"; exit 4`).
		Env("V", "val").
		WorkingDir(td).
		Build()

	script, err := execScript(inv, pidFile)
	if err != nil {
		t.Fatal("execScript failed: ", err)
	}
	p, err := runScript(t, script)
	if err != nil {
		t.Fatal("Start failed: ", err)
	}
	err = p.Wait()
	if code, ok := process.ExitCode(err); !ok || code != 4 {
		t.Errorf("Exit = %v; want status 4", err)
	}
	if got, want := p.Output(), "val "+td+"\n"; got != want {
		t.Errorf("Output = %q; want %q", got, want)
	}

	b, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatal("PID file not written: ", err)
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(b))); err != nil || pid != p.Pid() {
		t.Errorf("PID file contains %q; want %d", b, p.Pid())
	}
}

func TestBackgroundScript(t *testing.T) {
	td := testutil.TempDir(t)
	inv := process.NewBuilder().Args("/bin/sh", "-c", "printf partial; exit 3").Build()

	script, err := backgroundScript(inv, filepath.Join(td, "p.pid"))
	if err != nil {
		t.Fatal("backgroundScript failed: ", err)
	}
	p, err := runScript(t, script)
	if err != nil {
		t.Fatal("Start failed: ", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatal("Wrapper failed: ", err)
	}

	out, code, err := splitExitStatus(p.Output())
	if err != nil {
		t.Fatal("splitExitStatus failed: ", err)
	}
	if out != "partial" || code != 3 {
		t.Errorf("splitExitStatus = (%q, %d); want (%q, 3)", out, code, "partial")
	}
}

func TestKillScript(t *testing.T) {
	td := testutil.TempDir(t)
	pidFile := filepath.Join(td, "p.pid")
	script, err := execScript(process.NewBuilder().Args("sleep", "60").Build(), pidFile)
	if err != nil {
		t.Fatal("execScript failed: ", err)
	}
	p, err := runScript(t, script)
	if err != nil {
		t.Fatal("Start failed: ", err)
	}

	// Wait for the PID file to appear.
	for start := time.Now(); ; time.Sleep(10 * time.Millisecond) {
		if _, err := os.Stat(pidFile); err == nil {
			break
		}
		if time.Since(start) > 10*time.Second {
			p.Kill()
			t.Fatal("PID file never appeared")
		}
	}

	k, err := runScript(t, killScript(pidFile))
	if err != nil {
		t.Fatal("Start failed: ", err)
	}
	if err := k.Wait(); err != nil {
		t.Error("Kill script failed: ", err)
	}
	if code, ok := process.ExitCode(p.Wait()); !ok || code != -1 {
		t.Errorf("Killed process exit code = %d, %v; want -1", code, ok)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file not removed: ", err)
	}
}

func TestSplitExitStatus(t *testing.T) {
	for _, tc := range []struct {
		in       string
		wantOut  string
		wantCode int
		wantErr  bool
	}{
		{"hello\n" + exitMarker + "0\n", "hello\n", 0, false},
		{exitMarker + "127", "", 127, false},
		{"a" + exitMarker + "1\n" + "b" + exitMarker + "2\n", "a" + exitMarker + "1\nb", 2, false},
		{"no marker", "no marker", 0, true},
		{exitMarker + "x", "", 0, true},
	} {
		out, code, err := splitExitStatus(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("splitExitStatus(%q) error = %v; wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if out != tc.wantOut || (!tc.wantErr && code != tc.wantCode) {
			t.Errorf("splitExitStatus(%q) = (%q, %d); want (%q, %d)", tc.in, out, code, tc.wantOut, tc.wantCode)
		}
	}
}

func TestPIDFiles(t *testing.T) {
	f := newPIDFiles("/data/local/tmp")
	a, b := f.next(), f.next()
	if a == b {
		t.Errorf("next() returned %q twice", a)
	}
	for _, p := range []string{a, b} {
		if !strings.HasPrefix(p, "/data/local/tmp/"+f.prefix) || !strings.HasSuffix(p, ".pid") {
			t.Errorf("next() = %q; want a .pid file under /data/local/tmp with prefix %q", p, f.prefix)
		}
	}
}

func TestCleanupScript(t *testing.T) {
	td := testutil.TempDir(t)
	f := newPIDFiles(td)
	if err := testutil.WriteFiles(td, map[string]string{
		filepath.Base(f.next()): "1",
		filepath.Base(f.next()): "2",
		"other.pid":             "3",
	}); err != nil {
		t.Fatal(err)
	}
	p, err := runScript(t, f.cleanupScript())
	if err != nil {
		t.Fatal("Start failed: ", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatal("Cleanup failed: ", err)
	}
	files, err := testutil.ReadFiles(td)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files["other.pid"] != "3" {
		t.Errorf("Files after cleanup = %v; want only other.pid", files)
	}
}

func TestRemoteProcess(t *testing.T) {
	kills := 0
	p := newRemoteProcess(context.Background(), process.NewBuilder().Args("x").MaxLength(3).Build(), func() error {
		kills++
		return nil
	})
	p.writer().Write([]byte("abcdef"))
	p.Kill()
	p.Kill()
	p.finish(exitError(2))

	if kills != 1 {
		t.Errorf("kill called %d times; want 1", kills)
	}
	if code, ok := process.ExitCode(p.Wait()); !ok || code != 2 {
		t.Errorf("Wait() = %v; want status 2", p.Wait())
	}
	if got := p.Output(); !strings.HasPrefix(got, "abc") || strings.Contains(got, "def") {
		t.Errorf("Output() = %q; want truncated to abc", got)
	}
}

func TestRemoteProcessKillError(t *testing.T) {
	logger := loggingtest.NewLogger(t, logging.LevelDebug)
	ctx := logging.AttachLogger(context.Background(), logger)
	p := newRemoteProcess(ctx, process.NewBuilder().Args("x").Build(), func() error {
		return errors.New("no such process")
	})
	defer p.finish(nil)

	if err := p.Kill(); err == nil {
		t.Error("Kill succeeded; want error")
	}
	if !logger.Contains("no such process") {
		t.Errorf("Kill failure not logged:\n%s", logger.String())
	}
}
