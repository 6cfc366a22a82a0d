// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.chromium.org/vogar/internal/process"
	"go.chromium.org/vogar/testutil"
)

func TestParseSpec(t *testing.T) {
	for _, tc := range []struct {
		spec       string
		wantKind   Kind
		wantTarget string
		wantErr    bool
	}{
		{"", Local, "", false},
		{"local", Local, "", false},
		{"adb:", ADB, "", false},
		{"adb:emulator-5554", ADB, "emulator-5554", false},
		{"adb:192.168.0.2:5555", ADB, "192.168.0.2:5555", false},
		{"ssh:root@dut:2222", SSH, "root@dut:2222", false},
		{"docker:runner", Docker, "runner", false},
		{"ssh:", 0, "", true},
		{"docker:", 0, "", true},
		{"vm:foo", 0, "", true},
		{"dut", 0, "", true},
	} {
		kind, target, err := ParseSpec(tc.spec)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSpec(%q) succeeded; want error", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSpec(%q) failed: %v", tc.spec, err)
			continue
		}
		if kind != tc.wantKind || target != tc.wantTarget {
			t.Errorf("ParseSpec(%q) = (%v, %q); want (%v, %q)", tc.spec, kind, target, tc.wantKind, tc.wantTarget)
		}
	}
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	env, err := New(ctx, "local", nil)
	if err != nil {
		t.Fatal("New failed: ", err)
	}
	defer env.Close(ctx)

	if env.Kind() != Local {
		t.Errorf("Kind() = %v; want %v", env.Kind(), Local)
	}
	out, err := Run(ctx, env, process.NewBuilder().Args("echo", "hi").Build())
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	if out != "hi\n" {
		t.Errorf("Run output = %q; want %q", out, "hi\n")
	}

	addr, release, err := env.MonitorAddr(ctx, 8788)
	if err != nil {
		t.Fatal("MonitorAddr failed: ", err)
	}
	defer release()
	if addr != "localhost:8788" {
		t.Errorf("MonitorAddr = %q; want localhost:8788", addr)
	}
}

func TestMakeDirsRemoveAll(t *testing.T) {
	ctx := context.Background()
	td := testutil.TempDir(t)
	env := NewLocal()

	dirs := []string{filepath.Join(td, "a/b"), filepath.Join(td, "c")}
	if err := MakeDirs(ctx, env, dirs...); err != nil {
		t.Fatal("MakeDirs failed: ", err)
	}
	for _, d := range dirs {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("%s was not created: %v", d, err)
		}
	}

	if err := RemoveAll(ctx, env, filepath.Join(td, "a")); err != nil {
		t.Fatal("RemoveAll failed: ", err)
	}
	if _, err := os.Stat(filepath.Join(td, "a")); !os.IsNotExist(err) {
		t.Errorf("Stat after RemoveAll returned %v; want not-exist", err)
	}
}
