// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client implements the client side of the CVS client/server
// protocol. A Session sends the state of a working copy to a server,
// runs a command, and applies the server's responses to the working
// files and their CVS administrative directories.
package client // import "cvs.io/client"

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cvs.io/cvsroot"
	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/ignore"
	"cvs.io/log"
	"cvs.io/protocol"
)

// ErrFailed is returned by a command that the server answered with an
// error response. The server's messages have already been written to
// the session's Stderr.
var ErrFailed = errors.Str("command failed")

// Failed reports whether err is or wraps ErrFailed.
func Failed(err error) bool {
	for err != nil {
		if err == ErrFailed {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Config holds the settings of a Session.
type Config struct {
	// Root is the repository the session works with.
	Root *cvsroot.Root

	// Dir is the local directory that paths in the protocol are
	// relative to. Empty means the current directory.
	Dir string

	// Stdout and Stderr receive the server's M and E responses.
	// Nil means os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Global options sent to the server.
	Quiet    bool // -q
	NoExec   bool // -n
	ReadOnly bool // -r
	NoLog    bool // -l

	// Umask clears permission bits of files the server sends.
	Umask os.FileMode

	// Ignore holds the patterns of files that are not reported as
	// unknown. Nil means the default list.
	Ignore *ignore.List

	// Trace, if not nil, receives every protocol line.
	Trace log.Logger
}

// Session is the client side of one connection.
type Session struct {
	cfg   Config
	conn  *protocol.Conn
	valid protocol.Set // nil until the handshake

	// State of the command in progress.
	lists    map[string]*entries.List
	modTime  time.Time
	checksum string
	modules  []string
}

// New returns a Session that talks to a server over rw. The caller
// must call Connect, or Init for a repository that does not exist yet,
// before running commands.
func New(rw io.ReadWriter, cfg Config) *Session {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Ignore == nil {
		cfg.Ignore = ignore.New()
	}
	s := &Session{
		cfg:   cfg,
		conn:  protocol.NewConn(rw, rw),
		lists: make(map[string]*entries.List),
	}
	s.conn.Trace = cfg.Trace
	return s
}

// Connect performs the handshake: it names the repository, declares the
// responses this client handles, and learns the requests the server
// handles. A server that lacks a request this client requires cannot be
// used.
func (s *Session) Connect() error {
	return s.handshake(true)
}

func (s *Session) handshake(root bool) error {
	const op errors.Op = "client.Connect"
	if root {
		s.request("Root", s.cfg.Root.Dir)
	}
	s.request("Valid-responses", protocol.Join(protocol.Responses))
	s.request("valid-requests", "")
	if err := s.wait(); err != nil {
		if err == ErrFailed {
			return errors.E(op, errors.Protocol, errors.Str("server rejected the connection"))
		}
		return errors.E(op, err)
	}
	if s.valid == nil {
		return errors.E(op, errors.Protocol, errors.Str("server sent no Valid-requests response"))
	}
	if missing := s.valid.Missing(protocol.Requests); len(missing) > 0 {
		return errors.E(op, errors.Protocol,
			errors.Errorf("server does not support required request(s): %s", strings.Join(missing, " ")))
	}
	if s.can("UseUnchanged") {
		s.request("UseUnchanged", "")
	}
	if s.can("Global_option") {
		for _, opt := range []struct {
			on   bool
			flag string
		}{
			{s.cfg.Quiet, "-q"},
			{s.cfg.NoExec, "-n"},
			{s.cfg.ReadOnly, "-r"},
			{s.cfg.NoLog, "-l"},
		} {
			if opt.on {
				s.request("Global_option", opt.flag)
			}
		}
	}
	return nil
}

// Close closes the connection, if it can be closed.
func (s *Session) Close() error {
	return s.conn.Close()
}

// can reports whether the server handles the request.
func (s *Session) can(request string) bool {
	return s.valid.Has(request)
}

// request writes a request line. Write errors are reported by the
// next Flush.
func (s *Session) request(name, args string) {
	line := name
	if args != "" {
		line += " " + args
	}
	s.conn.WriteLine(line)
}

// argument sends one command argument, continuing it with Argumentx for
// each line after the first.
func (s *Session) argument(arg string) {
	lines := strings.Split(arg, "\n")
	s.request("Argument", lines[0])
	for _, l := range lines[1:] {
		s.request("Argumentx", l)
	}
}

// wait flushes the requests and handles responses until ok or error.
func (s *Session) wait() error {
	const op errors.Op = "client.wait"
	if err := s.conn.Flush(); err != nil {
		return errors.E(op, err)
	}
	for {
		line, err := s.conn.ReadLine()
		if err == io.EOF {
			return errors.E(op, errors.Protocol, errors.Str("end of file from server"))
		}
		if err != nil {
			return errors.E(op, err)
		}
		name, args := protocol.Split(line)
		switch name {
		case "ok":
			return nil
		case "error":
			if msg := strings.TrimSpace(args); msg != "" {
				s.stderr("cvs: " + msg)
			}
			return ErrFailed
		}
		h, ok := handlers[name]
		if !ok {
			return errors.E(op, errors.Protocol, errors.Errorf("unrecognized response %q", name))
		}
		if err := h(s, args); err != nil {
			return errors.E(op, errors.Op("client."+name), err)
		}
	}
}

// finish writes the Entries files changed by the command.
func (s *Session) finish() error {
	var first error
	for local, l := range s.lists {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.lists, local)
	}
	s.modTime = time.Time{}
	s.checksum = ""
	return first
}

// run sends the command request and handles the responses.
func (s *Session) run(command string) error {
	s.request(command, "")
	err := s.wait()
	if ferr := s.finish(); err == nil {
		err = ferr
	}
	return err
}

func (s *Session) stdout(line string) {
	io.WriteString(s.cfg.Stdout, line+"\n")
}

func (s *Session) stderr(line string) {
	io.WriteString(s.cfg.Stderr, line+"\n")
}

// path returns the local file name of a slash-separated path relative
// to the session's directory.
func (s *Session) path(local string) string {
	return filepath.Join(s.cfg.Dir, filepath.FromSlash(local))
}

// repoPath returns the absolute repository path of a directory recorded
// relative to the root.
func (s *Session) repoPath(rel string) string {
	if rel == "." || rel == "" {
		return s.cfg.Root.Dir
	}
	return path.Join(s.cfg.Root.Dir, rel)
}

// relative returns the repository directory named by the absolute
// path p, relative to the root.
func (s *Session) relative(p string) (string, error) {
	root := path.Clean(s.cfg.Root.Dir)
	p = path.Clean(strings.TrimSuffix(p, "/"))
	switch {
	case p == root:
		return ".", nil
	case strings.HasPrefix(p, root+"/"):
		return strings.TrimPrefix(p, root+"/"), nil
	}
	return "", errors.E(errors.Path(p), errors.Protocol, errors.Errorf("repository path not within %s", root))
}
