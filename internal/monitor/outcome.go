// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Result is the terminal status of an outcome. The protocol carries it as an
// opaque string; the constants below are the tags used by this module.
type Result string

// Well-known results.
const (
	// Success means the outcome ran and passed.
	Success Result = "SUCCESS"
	// ExecFailed means the outcome ran and failed, or the action exited
	// with a non-zero status.
	ExecFailed Result = "EXEC_FAILED"
	// CompileFailed means the action could not be built.
	CompileFailed Result = "COMPILE_FAILED"
	// Error means the outcome could not be run or monitored.
	Error Result = "ERROR"
	// ExecTimeout means the action was killed after exceeding its timeout.
	ExecTimeout Result = "EXEC_TIMEOUT"
	// Unsupported means the outcome does not apply to this environment,
	// such as a skipped test.
	Unsupported Result = "UNSUPPORTED"
)

// Outcome is a single named result reported by a target, such as one test
// case of an action.
type Outcome struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	// Runner identifies the component that produced the outcome. It is empty
	// when unknown.
	Runner string   `json:"runner,omitempty"`
	Output []string `json:"output,omitempty"`
	Result Result   `json:"result"`
}

// OutputText returns all output fragments concatenated.
func (o *Outcome) OutputText() string {
	return strings.Join(o.Output, "")
}

// Sanitize makes text representable as XML 1.0 character data. Invalid UTF-8
// becomes U+FFFD and characters XML cannot carry become \uXXXX escapes.
func Sanitize(text string) string {
	if !needsSanitize(text) {
		return text
	}
	var sb strings.Builder
	for _, r := range strings.ToValidUTF8(text, string(utf8.RuneError)) {
		if isXMLChar(r) {
			sb.WriteRune(r)
		} else {
			fmt.Fprintf(&sb, `\u%04x`, r)
		}
	}
	return sb.String()
}

func needsSanitize(text string) bool {
	if !utf8.ValidString(text) {
		return true
	}
	for _, r := range text {
		if !isXMLChar(r) {
			return true
		}
	}
	return false
}

// isXMLChar reports whether r is in the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
