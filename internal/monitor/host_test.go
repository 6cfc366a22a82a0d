// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/vogar/errors"
)

// recorder is a Handler that logs events as strings.
type recorder struct {
	events []string
}

func (r *recorder) OutcomeStarted(o *Outcome) {
	r.events = append(r.events, "start "+o.Name+" "+o.Action+" "+o.Runner)
}

func (r *recorder) Output(o *Outcome, text string) {
	r.events = append(r.events, "output "+o.Name+" "+text)
}

func (r *recorder) OutcomeFinished(o *Outcome) {
	r.events = append(r.events, "finish "+o.Name+" "+string(o.Result))
}

func TestRead(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<vogar-monitor>
<outcome name="a.T#one" action="a.T" runner="junit">line 1&#xA;<result value="SUCCESS"/></outcome>
<outcome name="a.T#two" action="a.T">x<result value="CUSTOM"/></outcome>
</vogar-monitor>`

	var r recorder
	if err := Read(strings.NewReader(doc), &r); err != nil {
		t.Fatal("Read failed: ", err)
	}
	want := []string{
		"start a.T#one a.T junit",
		"output a.T#one line 1\n",
		"finish a.T#one SUCCESS",
		"start a.T#two a.T ",
		"output a.T#two x",
		"finish a.T#two CUSTOM",
	}
	if diff := cmp.Diff(r.events, want); diff != "" {
		t.Errorf("Events mismatch (-got +want):\n%s", diff)
	}
}

func TestReadAborted(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no root end", `<vogar-monitor><outcome name="a" action="b"><result value="SUCCESS"/></outcome>`},
		{"mid outcome", `<vogar-monitor><outcome name="a" action="b">partial`},
		{"mid tag", `<vogar-monitor><outco`},
		{"no result", `<vogar-monitor><outcome name="a" action="b">x</outcome></vogar-monitor>`},
		{"unknown element", `<vogar-monitor><bogus/></vogar-monitor>`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var c Collector
			if err := Read(strings.NewReader(tc.doc), &c); !errors.Is(err, ErrAborted) {
				t.Errorf("Read returned %v; want ErrAborted", err)
			}
		})
	}
}

func TestWatchCanceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, pr, &Collector{}) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch returned %v; want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestSanitize(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"plain\ttext\r\n", "plain\ttext\r\n"},
		{"bell\x07", `bell\u0007`},
		{"nul\x00", `nul\u0000`},
		{"bad\xffutf8", "bad�utf8"},
		{"emoji 😀", "emoji 😀"},
		{"\ufffe", `\ufffe`},
	} {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
