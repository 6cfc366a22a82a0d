// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package monitor implements the streaming XML channel through which a target
// process reports outcomes to the host that launched it.
//
// The target side (Target) listens on a TCP port and accepts exactly one
// connection. The host side (Read, Watch) parses the stream incrementally.
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<vogar-monitor>
//	  <outcome name="..." action="..." runner="...">
//	    text
//	    <result value="SUCCESS"/>
//	  </outcome>
//	</vogar-monitor>
package monitor

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
)

// DefaultAcceptTimeout is how long Await waits for the host to connect.
const DefaultAcceptTimeout = 10 * time.Second

// Element and attribute names of the wire protocol.
const (
	rootElem    = "vogar-monitor"
	outcomeElem = "outcome"
	resultElem  = "result"

	nameAttr   = "name"
	actionAttr = "action"
	runnerAttr = "runner"
	valueAttr  = "value"
)

// State is the lifecycle state of a Target.
type State int

// Target states. A Target moves through them in order, exactly once.
const (
	Idle State = iota
	AwaitingConnection
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case AwaitingConnection:
		return "AWAITING_CONNECTION"
	case Streaming:
		return "STREAMING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Target is the target-side end of the monitor channel. All methods are safe
// for concurrent use; writes are serialized.
//
// A Target is single-use: once closed it cannot be reopened.
type Target struct {
	// AcceptTimeout bounds the wait for the host connection. Zero means
	// DefaultAcceptTimeout. It must be set before Listen.
	AcceptTimeout time.Duration

	mu          sync.Mutex
	state       State
	port        int
	ln          net.Listener
	conn        net.Conn
	enc         *xml.Encoder
	outcomeOpen bool
	accepting   bool // an Accept call is waiting for the host
}

// NewTarget returns an idle Target.
func NewTarget() *Target {
	return &Target{}
}

// State returns the current state.
func (t *Target) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Await listens on port and blocks until the host connects, then opens the
// document. Errors are *SetupError, or ErrState if t is not idle.
func (t *Target) Await(ctx context.Context, port int) error {
	if err := t.Listen(ctx, port); err != nil {
		return err
	}
	return t.Accept(ctx)
}

// Listen binds the monitor port with SO_REUSEADDR. Port 0 picks a free port,
// which Addr reports.
func (t *Target) Listen(ctx context.Context, port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Idle {
		return t.stateErr()
	}

	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		t.state = Closed
		return &SetupError{Port: port, Err: err}
	}
	t.ln = ln
	t.port = port
	t.state = AwaitingConnection
	logging.Debugf(ctx, "Monitor listening on %v", ln.Addr())
	return nil
}

// Addr returns the listening address, or nil if t is not listening.
func (t *Target) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

// Accept waits for the single host connection and writes the document
// prologue. The wait is bounded by AcceptTimeout and ctx.
func (t *Target) Accept(ctx context.Context) error {
	t.mu.Lock()
	if t.state != AwaitingConnection || t.conn != nil || t.accepting {
		defer t.mu.Unlock()
		return t.stateErr()
	}
	t.accepting = true
	ln := t.ln.(*net.TCPListener)
	port := t.port
	timeout := t.AcceptTimeout
	if timeout <= 0 {
		timeout = DefaultAcceptTimeout
	}
	t.mu.Unlock()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ln.SetDeadline(deadline); err != nil {
		return t.failSetup(port, err)
	}
	stop := context.AfterFunc(ctx, func() { ln.SetDeadline(time.Unix(1, 0)) })
	conn, err := ln.Accept()
	stop()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return t.failSetup(port, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepting = false
	if t.state != AwaitingConnection {
		// Closed while accepting.
		conn.Close()
		return &SetupError{Port: port, Err: ErrClosed}
	}
	t.conn = conn
	t.enc = xml.NewEncoder(conn)
	if err := t.write("open", xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)},
		xml.StartElement{Name: xml.Name{Local: rootElem}}); err != nil {
		return &SetupError{Port: port, Err: err}
	}
	t.state = Streaming
	logging.Debugf(ctx, "Monitor connected to %v", conn.RemoteAddr())
	return nil
}

// OutcomeStarted opens an outcome. runner may be empty.
func (t *Target) OutcomeStarted(runner, name, action string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Streaming || t.outcomeOpen {
		return t.stateErr()
	}
	attrs := []xml.Attr{
		{Name: xml.Name{Local: nameAttr}, Value: Sanitize(name)},
		{Name: xml.Name{Local: actionAttr}, Value: Sanitize(action)},
	}
	if runner != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: runnerAttr}, Value: Sanitize(runner)})
	}
	if err := t.write("outcome start", xml.StartElement{Name: xml.Name{Local: outcomeElem}, Attr: attrs}); err != nil {
		return err
	}
	t.outcomeOpen = true
	return nil
}

// Output appends text to the open outcome.
func (t *Target) Output(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Streaming || !t.outcomeOpen {
		return t.stateErr()
	}
	if text == "" {
		return nil
	}
	return t.write("output", xml.CharData(Sanitize(text)))
}

// OutcomeFinished records result and closes the open outcome.
func (t *Target) OutcomeFinished(result Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Streaming || !t.outcomeOpen {
		return t.stateErr()
	}
	start := xml.StartElement{
		Name: xml.Name{Local: resultElem},
		Attr: []xml.Attr{{Name: xml.Name{Local: valueAttr}, Value: Sanitize(string(result))}},
	}
	if err := t.write("outcome finish", start, start.End(), xml.EndElement{Name: xml.Name{Local: outcomeElem}}); err != nil {
		return err
	}
	t.outcomeOpen = false
	return nil
}

// Close ends the document and releases the connection and listener.
//
// If an outcome is still open the document is left unterminated so the host
// reports the execution as aborted, and ErrState is returned.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Closed:
		return ErrClosed
	case Streaming:
		if t.outcomeOpen {
			t.release()
			return errors.Wrap(ErrState, "monitor closed with an unfinished outcome")
		}
		err := t.write("close", xml.EndElement{Name: xml.Name{Local: rootElem}})
		if err != nil {
			return err
		}
		cerr := t.conn.Close()
		t.release()
		if cerr != nil {
			return &StreamError{Op: "close", Err: cerr}
		}
		return nil
	default:
		t.release()
		return nil
	}
}

// write encodes toks and flushes. On failure the monitor is closed.
// t.mu must be held.
func (t *Target) write(op string, toks ...xml.Token) error {
	for _, tok := range toks {
		if err := t.enc.EncodeToken(tok); err != nil {
			t.release()
			return &StreamError{Op: op, Err: err}
		}
	}
	if err := t.enc.Flush(); err != nil {
		t.release()
		return &StreamError{Op: op, Err: err}
	}
	return nil
}

// release closes all sockets and enters Closed. t.mu must be held.
func (t *Target) release() {
	if t.conn != nil {
		t.conn.Close()
	}
	if t.ln != nil {
		t.ln.Close()
	}
	t.conn = nil
	t.ln = nil
	t.enc = nil
	t.outcomeOpen = false
	t.state = Closed
}

// failSetup ends a failed Accept. Only a monitor still waiting for its
// connection is released.
func (t *Target) failSetup(port int, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepting = false
	if t.state == AwaitingConnection {
		t.release()
	}
	return &SetupError{Port: port, Err: err}
}

// stateErr returns the error for an operation rejected in the current state.
// t.mu must be held.
func (t *Target) stateErr() error {
	if t.state == Closed {
		return ErrClosed
	}
	return errors.Wrapf(ErrState, "state %v", t.state)
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}
