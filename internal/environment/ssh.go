// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package environment

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/net/proxy"
	"golang.org/x/term"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/process"
)

const (
	defaultSSHUser = "root"
	defaultSSHPort = 22
)

// sshTargetRegexp matches "[user@]host[:port]".
var sshTargetRegexp = regexp.MustCompile("^([^@]+@)?([^@]+)$")

// parseSSHTarget returns the user and "host:port" address of target, using
// defaults for unspecified parts.
func parseSSHTarget(target string) (user, hostPort string, err error) {
	m := sshTargetRegexp.FindStringSubmatch(target)
	if m == nil {
		return "", "", errors.Errorf("couldn't parse %q as \"[user@]hostname[:port]\"", target)
	}
	user = defaultSSHUser
	if m[1] != "" {
		user = m[1][:len(m[1])-1]
	}
	if _, _, err := net.SplitHostPort(m[2]); err != nil {
		return user, net.JoinHostPort(m[2], strconv.Itoa(defaultSSHPort)), nil
	}
	return user, m[2], nil
}

// SSHEnv runs target processes on a remote host over SSH.
type SSHEnv struct {
	cl   *ssh.Client
	pids *pidFiles
}

var _ Environment = (*SSHEnv)(nil)

func newSSH(ctx context.Context, target string, opts *Options) (*SSHEnv, error) {
	user, hostPort, err := parseSSHTarget(target)
	if err != nil {
		return nil, err
	}
	am, err := sshAuthMethods(ctx, opts, "["+hostPort+"] ")
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            am,
		Timeout:         opts.ConnectTimeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	for i := 0; ; i++ {
		start := time.Now()
		cl, err := connectSSH(ctx, hostPort, cfg)
		if err == nil {
			logging.Infof(ctx, "Connected to %s@%s", user, hostPort)
			return &SSHEnv{cl: cl, pids: newPIDFiles(opts.TempDir)}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i >= opts.ConnectRetries {
			return nil, errors.Wrapf(err, "failed to connect to %s", hostPort)
		}
		remaining := opts.ConnectRetryInterval - time.Since(start)
		logging.Infof(ctx, "Retrying SSH connection in %v: %v", remaining.Round(time.Millisecond), err)
		if remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// sshAuthMethods returns authentication methods to use when connecting to a
// remote server: private keys, then ssh-agent, then keyboard-interactive if
// stdin is a terminal.
func sshAuthMethods(ctx context.Context, opts *Options, questionPrefix string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	var signers []ssh.Signer
	if opts.KeyFile != "" {
		s, _, err := readPrivateKey(opts.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read private key %s", opts.KeyFile)
		}
		signers = append(signers, s)
	}
	if opts.KeyDir != "" {
		for _, fn := range []string{"id_ed25519", "id_ecdsa", "id_rsa", "id_dsa"} {
			p := filepath.Join(opts.KeyDir, fn)
			if p == opts.KeyFile {
				continue
			}
			if _, err := os.Stat(p); os.IsNotExist(err) {
				continue
			}
			if s, rok, err := readPrivateKey(p); err == nil {
				signers = append(signers, s)
			} else if !rok {
				logging.Infof(ctx, "Failed to read %v: %v", p, err)
			}
		}
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if s := os.Getenv("SSH_AUTH_SOCK"); s != "" {
		if a, err := net.Dial("unix", s); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(a).Signers))
		} else {
			logging.Infof(ctx, "Failed to connect to ssh-agent at %v: %v", s, err)
		}
	}

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		methods = append(methods, ssh.KeyboardInteractive(
			func(user, inst string, qs []string, es []bool) ([]string, error) {
				return presentChallenges(stdin, questionPrefix, qs)
			}))
	}
	return methods, nil
}

// readPrivateKey reads and decodes a passphraseless private SSH key from
// path. rok reports whether the file itself could be read.
func readPrivateKey(path string) (s ssh.Signer, rok bool, err error) {
	k, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	s, err = ssh.ParsePrivateKey(k)
	return s, true, err
}

// presentChallenges prompts for each question in qs on the terminal.
func presentChallenges(stdin int, prefix string, qs []string) ([]string, error) {
	as := make([]string, len(qs))
	for i, q := range qs {
		os.Stdout.WriteString(prefix + q)
		b, err := term.ReadPassword(stdin)
		os.Stdout.WriteString("\n")
		if err != nil {
			return nil, err
		}
		as[i] = string(b)
	}
	return as, nil
}

// connectSSH connects to hostPort, honoring proxy environment variables.
func connectSSH(ctx context.Context, hostPort string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	var cl *ssh.Client
	if err := doAsync(ctx, func() error {
		conn, err := proxy.FromEnvironment().Dial("tcp", hostPort)
		if err != nil {
			return err
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, hostPort, cfg)
		if err != nil {
			conn.Close()
			return err
		}
		cl = ssh.NewClient(c, chans, reqs)
		return nil
	}, func() {
		if cl != nil {
			cl.Close()
		}
	}); err != nil {
		return nil, err
	}
	return cl, nil
}

// Kind implements Environment.
func (e *SSHEnv) Kind() Kind { return SSH }

// Start implements Environment.
func (e *SSHEnv) Start(ctx context.Context, inv *process.Invocation) (process.Handle, error) {
	pidFile := e.pids.next()
	script, err := execScript(inv, pidFile)
	if err != nil {
		return nil, err
	}
	sess, err := e.cl.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SSH session")
	}

	p := newRemoteProcess(ctx, inv, func() error {
		defer sess.Close()
		return e.run(killScript(pidFile))
	})
	sess.Stdout = p.writer()
	sess.Stderr = p.writer()

	logging.Debug(ctx, "Running over SSH: ", inv)
	if err := sess.Start(script); err != nil {
		sess.Close()
		return nil, errors.Wrapf(err, "failed to start %s", inv.Args()[0])
	}
	go func() {
		err := sess.Wait()
		sess.Close()
		p.finish(sshExitError(err))
	}()
	return p, nil
}

// sshExitError converts an error from ssh.Session.Wait to the error returned
// by process.Handle.Wait.
func sshExitError(err error) error {
	var ee *ssh.ExitError
	var me *ssh.ExitMissingError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ee):
		if ee.Signal() != "" {
			return &process.ExitError{Code: -1}
		}
		return exitError(ee.ExitStatus())
	case errors.As(err, &me):
		return &process.ExitError{Code: -1}
	default:
		return errors.Wrap(err, "SSH session failed")
	}
}

// run runs a shell command in a new session.
func (e *SSHEnv) run(cmd string) error {
	sess, err := e.cl.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	return sess.Run(cmd)
}

// MonitorAddr implements Environment by forwarding a local port over the SSH
// connection to port on the remote host.
func (e *SSHEnv) MonitorAddr(ctx context.Context, port int) (string, func(), error) {
	remote := net.JoinHostPort("localhost", fmt.Sprint(port))
	f, err := newForwarder("localhost:0",
		func() (net.Conn, error) { return e.cl.Dial("tcp", remote) },
		func(err error) { logging.Debug(ctx, "Monitor forwarding error: ", err) })
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to forward monitor port")
	}
	return f.Addr().String(), func() { f.Close() }, nil
}

// Close implements Environment.
func (e *SSHEnv) Close(ctx context.Context) error {
	if err := e.run(e.pids.cleanupScript()); err != nil {
		logging.Debug(ctx, "Failed to remove PID files: ", err)
	}
	return doAsync(ctx, e.cl.Close, nil)
}

// doAsync runs body on a goroutine and waits for it or ctx. If ctx is done
// first, clean is called once body returns.
func doAsync(ctx context.Context, body func() error, clean func()) (retErr error) {
	bodyCh := make(chan error, 1)
	retCh := make(chan error, 1)
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		bodyCh <- body()
		if err := <-retCh; err != nil && clean != nil {
			clean()
		}
	}()

	defer func() {
		retCh <- retErr
		select {
		case <-doneCh:
		case <-ctx.Done():
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case err := <-bodyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
