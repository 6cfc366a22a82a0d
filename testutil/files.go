// Copyright 2017 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testutil provides support code for unit tests.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TempDir returns a fresh directory named after the running test. It is
// removed when the test and its subtests finish.
func TempDir(t *testing.T) string {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	td, err := os.MkdirTemp("", "vogar_unittest_"+name+".")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(td) })
	return td
}

// WriteFiles writes files under dir, keyed by relative path. Missing parent
// directories are created.
func WriteFiles(dir string, files map[string]string) error {
	return writeAll(dir, files, "", 0644)
}

// WriteScripts writes executable /bin/sh scripts under dir, keyed by relative
// path. Values are script bodies without the interpreter line.
func WriteScripts(dir string, scripts map[string]string) error {
	return writeAll(dir, scripts, "#!/bin/sh\n", 0755)
}

func writeAll(dir string, files map[string]string, header string, perm fs.FileMode) error {
	for rel, body := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(header+body), perm); err != nil {
			return err
		}
	}
	return nil
}

// ReadFiles returns the contents of every regular file under dir, keyed by
// slash-separated relative path.
func ReadFiles(dir string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	return files, err
}
