// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport opens connections to CVS servers using the access
// method named by a CVSROOT.
package transport // import "cvs.io/transport"

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"

	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"cvs.io/config"
	"cvs.io/cvsroot"
	"cvs.io/errors"
	"cvs.io/log"
	"cvs.io/server"
)

// DefaultPort is the port of a cvsd server when the root names none.
const DefaultPort = 2401

// Dial returns a connection to the server for root. Reads return the
// server's responses and writes carry requests. Closing the connection
// ends the session and releases the process or network connection
// behind it.
func Dial(ctx context.Context, root *cvsroot.Root, cfg config.Config) (io.ReadWriteCloser, error) {
	const op errors.Op = "transport.Dial"
	var (
		rw  io.ReadWriteCloser
		err error
	)
	switch root.Method {
	case cvsroot.Local:
		rw, err = dialLocal(ctx, root, cfg)
	case cvsroot.Fork, cvsroot.Ext:
		var argv []string
		if argv, err = Command(root, cfg); err == nil {
			rw, err = start(argv)
		}
	case cvsroot.SSH:
		rw, err = dialSSH(ctx, root, cfg)
	case cvsroot.Server:
		var d net.Dialer
		rw, err = d.DialContext(ctx, "tcp", root.Addr(DefaultPort))
		if err != nil {
			err = errors.E(errors.IO, err)
		}
	default:
		err = errors.E(errors.Invalid, errors.Errorf("unknown access method %v", root.Method))
	}
	if err != nil {
		return nil, errors.E(op, errors.Path(root.String()), err)
	}
	log.Debug.Printf("transport: connected to %s", root)
	return rw, nil
}

// dialLocal runs a server for the repository in this process, connected
// to the client through a pipe.
func dialLocal(ctx context.Context, root *cvsroot.Root, cfg config.Config) (io.ReadWriteCloser, error) {
	c1, c2 := net.Pipe()
	s := server.NewSession(c2, c2, server.Config{
		Root:         root.Dir,
		LockInterval: cfg.LockWait(),
		LockStale:    cfg.LockStale(),
	})
	go func() {
		if err := s.Serve(ctx); err != nil {
			log.Debug.Printf("transport: local server: %v", err)
		}
		c2.Close()
	}()
	return c1, nil
}

// Command returns the command line that starts a server for a fork or
// ext root. For ext it is the remote shell, from $CVS_RSH or the rsh
// setting, then the user and host, then the server command.
func Command(root *cvsroot.Root, cfg config.Config) ([]string, error) {
	serverArgs, err := shellquote.Split(cfg.Server())
	if err != nil {
		return nil, errors.E(errors.Invalid, errors.Errorf("server command %q: %v", cfg.Server(), err))
	}
	if len(serverArgs) == 0 {
		return nil, errors.E(errors.Invalid, errors.Str("empty server command"))
	}
	if root.Method != cvsroot.Ext {
		return serverArgs, nil
	}
	argv, err := shellquote.Split(cfg.Rsh())
	if err != nil {
		return nil, errors.E(errors.Invalid, errors.Errorf("remote shell %q: %v", cfg.Rsh(), err))
	}
	if len(argv) == 0 {
		return nil, errors.E(errors.Invalid, errors.Str("empty remote shell command"))
	}
	if root.User != "" {
		argv = append(argv, "-l", root.User)
	}
	if root.Port != 0 {
		argv = append(argv, "-p", strconv.Itoa(root.Port))
	}
	argv = append(argv, root.Host)
	// The remote shell joins its arguments into one command line.
	return append(argv, shellquote.Join(serverArgs...)), nil
}

// cmdConn is a connection to the standard input and output of a process.
type cmdConn struct {
	cmd  *exec.Cmd
	in   io.WriteCloser
	out  io.ReadCloser
	once sync.Once
	err  error
}

func start(argv []string) (io.ReadWriteCloser, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.E(errors.IO, err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.E(errors.IO, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.E(errors.Path(argv[0]), errors.IO, err)
	}
	log.Debug.Printf("transport: started %s", shellquote.Join(argv...))
	return &cmdConn{cmd: cmd, in: in, out: out}, nil
}

func (c *cmdConn) Read(p []byte) (int, error)  { return c.out.Read(p) }
func (c *cmdConn) Write(p []byte) (int, error) { return c.in.Write(p) }

// Close closes the process's input and waits for it to exit.
func (c *cmdConn) Close() error {
	c.once.Do(func() {
		c.in.Close()
		if err := c.cmd.Wait(); err != nil {
			c.err = errors.E(errors.Path(c.cmd.Path), errors.IO, err)
		}
	})
	return c.err
}

// sshConn is a server command running in an SSH session.
type sshConn struct {
	client  *ssh.Client
	session *ssh.Session
	in      io.WriteCloser
	out     io.Reader
	once    sync.Once
}

func (c *sshConn) Read(p []byte) (int, error)  { return c.out.Read(p) }
func (c *sshConn) Write(p []byte) (int, error) { return c.in.Write(p) }

func (c *sshConn) Close() error {
	var err error
	c.once.Do(func() {
		c.in.Close()
		c.session.Wait()
		c.session.Close()
		if cerr := c.client.Close(); cerr != nil {
			err = errors.E(errors.IO, cerr)
		}
	})
	return err
}

func dialSSH(ctx context.Context, root *cvsroot.Root, cfg config.Config) (io.ReadWriteCloser, error) {
	sshCfg, err := clientConfig(root, cfg)
	if err != nil {
		return nil, err
	}
	port := root.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(root.Host, strconv.Itoa(port))
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.E(errors.IO, err)
	}
	conn, chans, reqs, err := ssh.NewClientConn(nc, addr, sshCfg)
	if err != nil {
		nc.Close()
		return nil, errors.E(errors.Permission, err)
	}
	client := ssh.NewClient(conn, chans, reqs)
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, errors.E(errors.IO, err)
	}
	session.Stderr = os.Stderr
	in, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, errors.E(errors.IO, err)
	}
	out, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, errors.E(errors.IO, err)
	}
	if err := session.Start(cfg.Server()); err != nil {
		client.Close()
		return nil, errors.E(errors.IO, err)
	}
	return &sshConn{client: client, session: session, in: in, out: out}, nil
}

// clientConfig returns the SSH settings for root: keys from the agent
// and the configured key file, and host keys checked against
// known_hosts.
func clientConfig(root *cvsroot.Root, cfg config.Config) (*ssh.ClientConfig, error) {
	home, _ := config.Homedir()
	name := root.User
	if name == "" {
		u, err := user.Current()
		if err != nil {
			return nil, errors.E(errors.Invalid, errors.Errorf("no user name: %v", err))
		}
		name = u.Username
	}
	var auth []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if c, err := net.Dial("unix", sock); err == nil {
			auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(c).Signers))
		} else {
			log.Debug.Printf("transport: ssh agent: %v", err)
		}
	}
	keyFiles := []string{cfg.SSHKey()}
	if cfg.SSHKey() == "" {
		keyFiles = []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		}
	}
	var signers []ssh.Signer
	for _, f := range keyFiles {
		s, err := readKey(f)
		if err != nil {
			if cfg.SSHKey() != "" {
				return nil, err
			}
			continue
		}
		signers = append(signers, s)
	}
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}
	if len(auth) == 0 {
		return nil, errors.E(errors.Permission, errors.Str("no ssh agent or private key available"))
	}
	hosts := cfg.KnownHosts()
	if hosts == "" {
		hosts = filepath.Join(home, ".ssh", "known_hosts")
	}
	check, err := knownhosts.New(hosts)
	if err != nil {
		return nil, errors.E(errors.Path(hosts), errors.IO, err)
	}
	return &ssh.ClientConfig{
		User:            name,
		Auth:            auth,
		HostKeyCallback: check,
	}, nil
}

func readKey(name string) (ssh.Signer, error) {
	buf, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.E(errors.Path(name), errors.IO, err)
	}
	s, err := ssh.ParsePrivateKey(buf)
	if err != nil {
		return nil, errors.E(errors.Path(name), errors.Invalid, err)
	}
	return s, nil
}
