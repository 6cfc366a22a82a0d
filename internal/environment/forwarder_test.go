// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"io"
	"net"
	"testing"

	"go.chromium.org/vogar/errors"
)

// startEchoServer starts a TCP server that echoes every connection.
func startEchoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln
}

func TestForwarder(t *testing.T) {
	srv := startEchoServer(t)
	f, err := newForwarder("localhost:0", func() (net.Conn, error) {
		return net.Dial("tcp", srv.Addr().String())
	}, func(err error) { t.Error("Forwarding error: ", err) })
	if err != nil {
		t.Fatal("newForwarder failed: ", err)
	}
	defer f.Close()

	conn, err := net.Dial("tcp", f.Addr().String())
	if err != nil {
		t.Fatal("Dial failed: ", err)
	}
	defer conn.Close()

	const msg = "<vogar-monitor>"
	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatal("Write failed: ", err)
	}
	conn.(*net.TCPConn).CloseWrite()

	b, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal("ReadAll failed: ", err)
	}
	if string(b) != msg {
		t.Errorf("Read %q; want %q", b, msg)
	}
}

func TestForwarderDialError(t *testing.T) {
	errCh := make(chan error, 1)
	dialErr := errors.New("remote unreachable")
	f, err := newForwarder("localhost:0", func() (net.Conn, error) {
		return nil, dialErr
	}, func(err error) { errCh <- err })
	if err != nil {
		t.Fatal("newForwarder failed: ", err)
	}
	defer f.Close()

	conn, err := net.Dial("tcp", f.Addr().String())
	if err != nil {
		t.Fatal("Dial failed: ", err)
	}
	defer conn.Close()

	if err := <-errCh; !errors.Is(err, dialErr) {
		t.Errorf("errFunc got %v; want %v", err, dialErr)
	}
	// The local side is closed when the remote cannot be reached.
	if _, err := io.ReadAll(conn); err != nil {
		t.Error("ReadAll failed: ", err)
	}
}

func TestForwarderClose(t *testing.T) {
	f, err := newForwarder("localhost:0", func() (net.Conn, error) {
		return nil, errors.New("unused")
	}, nil)
	if err != nil {
		t.Fatal("newForwarder failed: ", err)
	}
	addr := f.Addr().String()
	if err := f.Close(); err != nil {
		t.Fatal("Close failed: ", err)
	}
	if conn, err := net.Dial("tcp", addr); err == nil {
		conn.Close()
		t.Error("Dial succeeded after Close")
	}
}
