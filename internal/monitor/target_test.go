// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/vogar/errors"
)

// listenTarget returns a Target listening on a free port.
func listenTarget(t *testing.T) *Target {
	t.Helper()
	tg := NewTarget()
	if err := tg.Listen(context.Background(), 0); err != nil {
		t.Fatal("Listen failed: ", err)
	}
	t.Cleanup(func() { tg.Close() })
	return tg
}

// connect dials tg and accepts the connection, returning the host end.
func connect(t *testing.T, tg *Target) net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := net.Dial("tcp", tg.Addr().String())
		if err != nil {
			t.Error("Dial failed: ", err)
			ch <- nil
			return
		}
		ch <- conn
	}()
	if err := tg.Accept(context.Background()); err != nil {
		t.Fatal("Accept failed: ", err)
	}
	conn := <-ch
	if conn == nil {
		t.FailNow()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEndToEnd(t *testing.T) {
	tg := listenTarget(t)
	conn := connect(t, tg)

	var c Collector
	done := make(chan error, 1)
	go func() { done <- Read(conn, &c) }()

	if err := tg.OutcomeStarted("", "T1", "pkg.T"); err != nil {
		t.Fatal("OutcomeStarted failed: ", err)
	}
	if err := tg.Output("hello"); err != nil {
		t.Fatal("Output failed: ", err)
	}
	if err := tg.OutcomeFinished(Success); err != nil {
		t.Fatal("OutcomeFinished failed: ", err)
	}
	if err := tg.Close(); err != nil {
		t.Fatal("Close failed: ", err)
	}

	if err := <-done; err != nil {
		t.Fatal("Read failed: ", err)
	}
	want := []*Outcome{{Name: "T1", Action: "pkg.T", Output: []string{"hello"}, Result: Success}}
	if diff := cmp.Diff(c.Outcomes, want); diff != "" {
		t.Errorf("Outcomes mismatch (-got +want):\n%s", diff)
	}
}

func TestWireFormat(t *testing.T) {
	tg := listenTarget(t)
	conn := connect(t, tg)

	for _, f := range []func() error{
		func() error { return tg.OutcomeStarted("main", "T1", "pkg.T") },
		func() error { return tg.Output("a<b & \"c\"") },
		func() error { return tg.OutcomeFinished(ExecFailed) },
		func() error { return tg.OutcomeStarted("", "T2", "pkg.T") },
		func() error { return tg.OutcomeFinished(Success) },
		tg.Close,
	} {
		if err := f(); err != nil {
			t.Fatal(err)
		}
	}

	b, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal("ReadAll failed: ", err)
	}
	const want = `<?xml version="1.0" encoding="UTF-8"?>` +
		`<vogar-monitor>` +
		`<outcome name="T1" action="pkg.T" runner="main">a&lt;b &amp; &#34;c&#34;<result value="EXEC_FAILED"></result></outcome>` +
		`<outcome name="T2" action="pkg.T"><result value="SUCCESS"></result></outcome>` +
		`</vogar-monitor>`
	if got := string(b); got != want {
		t.Errorf("Stream mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestStateErrors(t *testing.T) {
	tg := NewTarget()
	if got := tg.State(); got != Idle {
		t.Errorf("Initial state = %v; want %v", got, Idle)
	}
	if err := tg.OutcomeStarted("", "n", "a"); !errors.Is(err, ErrState) {
		t.Errorf("OutcomeStarted in IDLE returned %v; want ErrState", err)
	}
	if err := tg.Accept(context.Background()); !errors.Is(err, ErrState) {
		t.Errorf("Accept in IDLE returned %v; want ErrState", err)
	}

	if err := tg.Listen(context.Background(), 0); err != nil {
		t.Fatal("Listen failed: ", err)
	}
	if err := tg.Output("x"); !errors.Is(err, ErrState) {
		t.Errorf("Output in AWAITING_CONNECTION returned %v; want ErrState", err)
	}
	if err := tg.Listen(context.Background(), 0); !errors.Is(err, ErrState) {
		t.Errorf("Second Listen returned %v; want ErrState", err)
	}

	if err := tg.Close(); err != nil {
		t.Fatal("Close failed: ", err)
	}
	for name, f := range map[string]func() error{
		"Await":           func() error { return tg.Await(context.Background(), 0) },
		"OutcomeStarted":  func() error { return tg.OutcomeStarted("", "n", "a") },
		"Output":          func() error { return tg.Output("x") },
		"OutcomeFinished": func() error { return tg.OutcomeFinished(Success) },
		"Close":           tg.Close,
	} {
		if err := f(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close returned %v; want ErrClosed", name, err)
		}
	}
}

func TestOutcomeNesting(t *testing.T) {
	tg := listenTarget(t)
	connect(t, tg)

	if err := tg.Output("x"); !errors.Is(err, ErrState) {
		t.Errorf("Output without an outcome returned %v; want ErrState", err)
	}
	if err := tg.OutcomeFinished(Success); !errors.Is(err, ErrState) {
		t.Errorf("OutcomeFinished without an outcome returned %v; want ErrState", err)
	}
	if err := tg.OutcomeStarted("", "a", "x"); err != nil {
		t.Fatal("OutcomeStarted failed: ", err)
	}
	if err := tg.OutcomeStarted("", "b", "x"); !errors.Is(err, ErrState) {
		t.Errorf("Nested OutcomeStarted returned %v; want ErrState", err)
	}
	if got := tg.State(); got != Streaming {
		t.Errorf("State after rejected calls = %v; want %v", got, Streaming)
	}
}

func TestAcceptTimeout(t *testing.T) {
	tg := NewTarget()
	tg.AcceptTimeout = 50 * time.Millisecond

	start := time.Now()
	err := tg.Await(context.Background(), 0)
	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("Await returned %v; want *SetupError", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Await took %v", elapsed)
	}
	if got := tg.State(); got != Closed {
		t.Errorf("State after timeout = %v; want %v", got, Closed)
	}
}

func TestConcurrentAccept(t *testing.T) {
	tg := listenTarget(t)
	tg.AcceptTimeout = 5 * time.Second

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- tg.Accept(context.Background()) }()
	}
	// The second caller is rejected without waiting for a connection.
	if err := <-errs; !errors.Is(err, ErrState) {
		t.Fatalf("Concurrent Accept returned %v; want ErrState", err)
	}

	conn, err := net.Dial("tcp", tg.Addr().String())
	if err != nil {
		t.Fatal("Dial failed: ", err)
	}
	defer conn.Close()
	if err := <-errs; err != nil {
		t.Fatal("Accept failed: ", err)
	}
	if got := tg.State(); got != Streaming {
		t.Errorf("State = %v; want %v", got, Streaming)
	}
	if err := tg.OutcomeStarted("", "T", "a"); err != nil {
		t.Errorf("OutcomeStarted failed: %v", err)
	}
}

func TestAcceptContextCanceled(t *testing.T) {
	tg := listenTarget(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := tg.Accept(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Accept returned %v; want context.Canceled", err)
	}
}

func TestListenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	tg := NewTarget()
	err = tg.Await(context.Background(), port)
	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("Await returned %v; want *SetupError", err)
	}
	if se.Port != port {
		t.Errorf("SetupError.Port = %d; want %d", se.Port, port)
	}
	if !strings.Contains(se.Error(), fmt.Sprintf("localhost:%d", port)) {
		t.Errorf("SetupError message %q does not mention the port", se.Error())
	}
}

func TestStreamError(t *testing.T) {
	tg := listenTarget(t)
	conn := connect(t, tg)
	if err := tg.OutcomeStarted("", "T", "a"); err != nil {
		t.Fatal("OutcomeStarted failed: ", err)
	}
	conn.Close()

	chunk := strings.Repeat("x", 64*1024)
	deadline := time.Now().Add(10 * time.Second)
	var err error
	for err == nil && time.Now().Before(deadline) {
		err = tg.Output(chunk)
	}
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("Output returned %v; want *StreamError", err)
	}
	if got := tg.State(); got != Closed {
		t.Errorf("State after stream error = %v; want %v", got, Closed)
	}
	if err := tg.Output("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Output after stream error returned %v; want ErrClosed", err)
	}
}

func TestCloseWithOpenOutcome(t *testing.T) {
	tg := listenTarget(t)
	conn := connect(t, tg)

	var c Collector
	done := make(chan error, 1)
	go func() { done <- Read(conn, &c) }()

	if err := tg.OutcomeStarted("", "T", "a"); err != nil {
		t.Fatal("OutcomeStarted failed: ", err)
	}
	if err := tg.Close(); !errors.Is(err, ErrState) {
		t.Errorf("Close returned %v; want ErrState", err)
	}
	if err := <-done; !errors.Is(err, ErrAborted) {
		t.Errorf("Read returned %v; want ErrAborted", err)
	}
	if len(c.Outcomes) != 0 {
		t.Errorf("Got %d finished outcomes; want 0", len(c.Outcomes))
	}
}

func TestConcurrentOutput(t *testing.T) {
	tg := listenTarget(t)
	conn := connect(t, tg)

	var c Collector
	done := make(chan error, 1)
	go func() { done <- Read(conn, &c) }()

	if err := tg.OutcomeStarted("", "T", "a"); err != nil {
		t.Fatal("OutcomeStarted failed: ", err)
	}
	const (
		writers = 8
		writes  = 50
	)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < writes; j++ {
				if err := tg.Output("ab"); err != nil {
					t.Error("Output failed: ", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if err := tg.OutcomeFinished(Success); err != nil {
		t.Fatal("OutcomeFinished failed: ", err)
	}
	if err := tg.Close(); err != nil {
		t.Fatal("Close failed: ", err)
	}
	if err := <-done; err != nil {
		t.Fatal("Read failed: ", err)
	}
	if len(c.Outcomes) != 1 {
		t.Fatalf("Got %d outcomes; want 1", len(c.Outcomes))
	}
	if got, want := c.Outcomes[0].OutputText(), strings.Repeat("ab", writers*writes); got != want {
		t.Errorf("Output has %d bytes; want %d", len(got), len(want))
	}
}

// outcomeText is the part of an outcome compared by TestRandomSequences.
type outcomeText struct {
	Name, Action, Runner, Text string
	Result                     Result
}

func TestRandomSequences(t *testing.T) {
	texts := []string{"", "plain", "a<b>", "&amp;", "\"q\" 'a'", "line\n", "\u00e9\u4e16", "]]>"}
	results := []Result{Success, ExecFailed, CompileFailed, Error, ExecTimeout, Unsupported, "CUSTOM"}
	runners := []string{"", "main", "gotest"}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		tg := listenTarget(t)
		conn := connect(t, tg)
		var c Collector
		done := make(chan error, 1)
		go func() { done <- Read(conn, &c) }()

		var want []outcomeText
		for n := r.Intn(5); n > 0; n-- {
			o := outcomeText{
				Name:   fmt.Sprintf("pkg.T#%d", len(want)),
				Action: "pkg.T",
				Runner: runners[r.Intn(len(runners))],
				Result: results[r.Intn(len(results))],
			}
			if err := tg.OutcomeStarted(o.Runner, o.Name, o.Action); err != nil {
				t.Fatalf("Sequence %d: OutcomeStarted failed: %v", i, err)
			}
			for m := r.Intn(4); m > 0; m-- {
				text := texts[r.Intn(len(texts))]
				if err := tg.Output(text); err != nil {
					t.Fatalf("Sequence %d: Output failed: %v", i, err)
				}
				o.Text += text
			}
			if r.Intn(3) == 0 {
				// Rejected calls must not disturb the stream.
				if err := tg.OutcomeStarted("", "nested", "x"); !errors.Is(err, ErrState) {
					t.Fatalf("Sequence %d: nested OutcomeStarted returned %v; want ErrState", i, err)
				}
			}
			if err := tg.OutcomeFinished(o.Result); err != nil {
				t.Fatalf("Sequence %d: OutcomeFinished failed: %v", i, err)
			}
			if r.Intn(3) == 0 {
				if err := tg.Output("stray"); !errors.Is(err, ErrState) {
					t.Fatalf("Sequence %d: Output outside an outcome returned %v; want ErrState", i, err)
				}
			}
			want = append(want, o)
		}
		if err := tg.Close(); err != nil {
			t.Fatalf("Sequence %d: Close failed: %v", i, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("Sequence %d: Read failed: %v", i, err)
		}

		var got []outcomeText
		for _, o := range c.Outcomes {
			got = append(got, outcomeText{o.Name, o.Action, o.Runner, o.OutputText(), o.Result})
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("Sequence %d: outcomes mismatch (-got +want):\n%s", i, diff)
		}
	}
}
