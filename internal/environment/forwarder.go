// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"io"
	"net"
	"sync"
)

// forwarder accepts local TCP connections and relays each one to a
// connection opened by dial, typically through an SSH client.
//
//	[monitor.Read] <- TCP -> [forwarder] <- SSH -> [sshd] <- TCP -> [monitor.Target]
type forwarder struct {
	dial func() (net.Conn, error)
	ln   net.Listener

	mu      sync.Mutex  // protects errFunc
	errFunc func(error) // may be nil
}

// newForwarder listens at localAddr and relays accepted connections.
// errFunc, if non-nil, is called asynchronously with relay errors.
func newForwarder(localAddr string, dial func() (net.Conn, error), errFunc func(error)) (*forwarder, error) {
	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, err
	}
	f := &forwarder{dial: dial, ln: ln, errFunc: errFunc}

	go func() {
		for {
			local, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				if err := f.relay(local); err != nil {
					f.mu.Lock()
					if f.errFunc != nil {
						f.errFunc(err)
					}
					f.mu.Unlock()
				}
			}()
		}
	}()
	return f, nil
}

// Addr returns the local listening address.
func (f *forwarder) Addr() net.Addr {
	return f.ln.Addr()
}

// Close stops accepting connections. Relays in progress continue until
// either side closes.
func (f *forwarder) Close() error {
	f.mu.Lock()
	f.errFunc = nil
	f.mu.Unlock()
	return f.ln.Close()
}

// relay copies data between local and a newly dialed remote connection
// until both directions finish. It closes local.
func (f *forwarder) relay(local net.Conn) error {
	defer local.Close()

	remote, err := f.dial()
	if err != nil {
		return err
	}
	defer remote.Close()

	ch := make(chan error, 2)
	cp := func(dst, src net.Conn) {
		_, err := io.Copy(dst, src)
		// Propagate EOF so the peer sees the stream end.
		if cw, ok := dst.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		} else {
			dst.Close()
		}
		ch <- err
	}
	go cp(local, remote)
	go cp(remote, local)

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-ch; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
