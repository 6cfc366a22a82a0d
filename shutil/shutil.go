// Copyright 2021 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil provides shell-related utility functions.
//
// Invocations that run on a device or over SSH are executed by a remote
// shell, so their tokens, working directory and environment must be rendered
// into a single command line.
package shutil

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.chromium.org/vogar/errors"
)

const (
	// The character class \w is equivalent to [0-9A-Za-z_]. Leading equals sign is unsafe in zsh,
	// see http://zsh.sourceforge.net/Doc/Release/Expansion.html#g_t_0060_003d_0027-expansion.
	leadingSafeChars  = `-\w@%+:,./`
	trailingSafeChars = leadingSafeChars + "="
)

// safeRE matches an argument that can be literally included in a shell
// command line without requiring escaping.
var safeRE = regexp.MustCompile(fmt.Sprintf("^[%s][%s]*$", leadingSafeChars, trailingSafeChars))

// envNameRE matches a valid environment variable name.
var envNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Escape escapes a string so it can be safely included as an argument in a shell command line.
// The string is not modified if it can already be safely included.
func Escape(s string) string {
	if safeRE.MatchString(s) {
		return s
	}
	return "'" + strings.Replace(s, "'", `'"'"'`, -1) + "'"
}

// EscapeSlice escapes a slice of strings so each will be treated as a separate
// argument in the returned shell command line. See Escape for more information.
func EscapeSlice(args []string) string {
	escaped := make([]string, len(args))
	for i, arg := range args {
		escaped[i] = Escape(arg)
	}
	return strings.Join(escaped, " ")
}

// CommandLine renders args as a shell command line that first changes to dir
// (if non-empty) and runs args with env added to the shell's environment.
// Environment variables are emitted in sorted order so the result is stable.
// An error is returned if an environment variable name is not a valid shell
// identifier.
func CommandLine(dir string, env map[string]string, args []string) (string, error) {
	var parts []string
	if dir != "" {
		parts = append(parts, "cd "+Escape(dir)+" &&")
	}
	parts = append(parts, "exec")
	if len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			if !envNameRE.MatchString(k) {
				return "", errors.Errorf("invalid environment variable name %q", k)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, "env")
		for _, k := range keys {
			parts = append(parts, k+"="+Escape(env[k]))
		}
	}
	parts = append(parts, EscapeSlice(args))
	return strings.Join(parts, " "), nil
}
