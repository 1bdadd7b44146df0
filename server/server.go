// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server implements the server side of the CVS client/server
// protocol. A Session reads requests from a client, accumulating the
// state they describe, and runs a command against the repository when a
// command request arrives. Each Session has its own lock Manager, so
// sessions in one process exclude each other as separate processes do.
package server // import "cvs.io/server"

import (
	"context"
	"fmt"
	"io"
	"os/user"
	"strings"
	"time"

	"cvs.io/errors"
	"cvs.io/ignore"
	"cvs.io/lock"
	"cvs.io/log"
	"cvs.io/protocol"
	"cvs.io/repository"
)

// Config holds the settings of a Session.
type Config struct {
	// Root, if not empty, is the only repository the session may open.
	Root string

	// User is recorded as the author of revisions. If empty, the name
	// of the user running the process is used.
	User string

	// LockInterval and LockStale configure the lock Manager.
	LockInterval time.Duration
	LockStale    time.Duration

	// Trace, if not nil, receives every protocol line.
	Trace log.Logger
}

// Session is the server side of one connection.
type Session struct {
	conn   *protocol.Conn
	cfg    Config
	ctx    context.Context
	repo   *repository.Repository
	locks  *lock.Manager
	ignore *ignore.List

	responses protocol.Set // nil until Valid-responses

	// Global options.
	quiet    bool
	noexec   bool
	noLog    bool
	readOnly bool

	vars         map[string]string
	useUnchanged bool
	maxDotDot    int

	// State accumulated for the next command.
	dirs    []*dirState
	cur     *dirState
	args    []string
	kopt    string
	checkin time.Time
	command string
	failed  bool
	werr    error
}

// NewSession returns a Session reading requests from r and writing
// responses to w.
func NewSession(r io.Reader, w io.Writer, cfg Config) *Session {
	if cfg.User == "" {
		cfg.User = "nobody"
		if u, err := user.Current(); err == nil {
			cfg.User = u.Username
		}
	}
	s := &Session{
		conn:  protocol.NewConn(r, w),
		cfg:   cfg,
		ctx:   context.Background(),
		locks: lock.New(),
		vars:  make(map[string]string),
	}
	s.conn.Trace = cfg.Trace
	if cfg.LockInterval > 0 {
		s.locks.Interval = cfg.LockInterval
	}
	s.locks.Stale = cfg.LockStale
	s.locks.Notify = s.lockWait
	return s
}

// Handler handles a request. The args are the rest of the request line
// after the request name.
type Handler interface {
	Handle(s *Session, args string) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(s *Session, args string) error

// Handle calls f(s, args).
func (f HandlerFunc) Handle(s *Session, args string) error { return f(s, args) }

// request describes how a request is dispatched.
type request struct {
	Handler
	root    bool // requires a preceding Root request
	dir     bool // requires a preceding Directory request
	command bool // runs a command, answered by ok or error
}

var requests map[string]request

// unsupported are requests known to CVS that this server does not
// implement. Receiving one ends the session.
var unsupported = []string{
	"Gzip-stream",
	"Kerberos-encrypt",
	"Gssapi-encrypt",
	"Gssapi-authenticate",
	"admin",
	"annotate",
	"export",
	"history",
	"import",
	"rdiff",
	"release",
	"rtag",
	"watchers",
	"editors",
}

func init() {
	requests = map[string]request{
		"Root":             {Handler: HandlerFunc(rootRequest)},
		"Valid-responses":  {Handler: HandlerFunc(validResponses)},
		"valid-requests":   {Handler: HandlerFunc(validRequests), command: true},
		"Directory":        {Handler: HandlerFunc(directory), root: true},
		"Max-dotdot":       {Handler: HandlerFunc(maxDotDot)},
		"Static-directory": {Handler: HandlerFunc(staticDirectory), dir: true},
		"Sticky":           {Handler: HandlerFunc(sticky), dir: true},
		"Entry":            {Handler: HandlerFunc(entry), dir: true},
		"Kopt":             {Handler: HandlerFunc(kopt)},
		"Checkin-time":     {Handler: HandlerFunc(checkinTime)},
		"Modified":         {Handler: HandlerFunc(modified), dir: true},
		"Is-modified":      {Handler: HandlerFunc(isModified), dir: true},
		"Unchanged":        {Handler: HandlerFunc(unchanged), dir: true},
		"Questionable":     {Handler: HandlerFunc(questionable), dir: true},
		"Case":             {Handler: HandlerFunc(caseInsensitive)},
		"Argument":         {Handler: HandlerFunc(argument)},
		"Argumentx":        {Handler: HandlerFunc(argumentx)},
		"Global_option":    {Handler: HandlerFunc(globalOption)},
		"Set":              {Handler: HandlerFunc(set)},
		"UseUnchanged":     {Handler: HandlerFunc(useUnchanged)},
		"expand-modules":   {Handler: HandlerFunc(expandModules), root: true, command: true},
		"noop":             {Handler: HandlerFunc(noop), command: true},
		"version":          {Handler: HandlerFunc(versionRequest), command: true},
		"init":             {Handler: HandlerFunc(initRequest), command: true},
		"update":           {Handler: HandlerFunc(update), root: true, dir: true, command: true},
		"co":               {Handler: HandlerFunc(checkout), root: true, dir: true, command: true},
		"ci":               {Handler: HandlerFunc(commit), root: true, dir: true, command: true},
		"add":              {Handler: HandlerFunc(add), root: true, dir: true, command: true},
		"remove":           {Handler: HandlerFunc(remove), root: true, dir: true, command: true},
		"tag":              {Handler: HandlerFunc(tag), root: true, dir: true, command: true},
		"status":           {Handler: HandlerFunc(status), root: true, dir: true, command: true},
		"log":              {Handler: HandlerFunc(logRequest), root: true, dir: true, command: true},
		"diff":             {Handler: HandlerFunc(diff), root: true, dir: true, command: true},
	}
	for _, name := range unsupported {
		requests[name] = request{}
	}
}

// Serve reads and handles requests until the client closes the
// connection, ctx is done, or a protocol error occurs. A protocol error
// is reported to the client before the session ends. Any locks the
// session holds are released when Serve returns.
func (s *Session) Serve(ctx context.Context) error {
	const op errors.Op = "server.Serve"
	s.ctx = ctx
	sessionsActive.Inc()
	defer sessionsActive.Dec()
	defer s.locks.Cleanup()
	for {
		if err := ctx.Err(); err != nil {
			return errors.E(op, err)
		}
		line, err := s.conn.ReadLine()
		if err == io.EOF {
			return s.conn.Flush()
		}
		if err != nil {
			return s.abort(errors.E(op, err))
		}
		name, args := protocol.Split(line)
		req, ok := requests[name]
		if ok {
			requestsTotal.WithLabelValues(name).Inc()
		} else {
			requestsTotal.WithLabelValues("unknown").Inc()
		}
		switch {
		case !ok:
			return s.abort(errors.E(op, errors.Protocol, errors.Errorf("unrecognized request %q", name)))
		case req.Handler == nil:
			return s.abort(errors.E(op, errors.Protocol, errors.Errorf("request %q is not supported", name)))
		case req.root && s.repo == nil:
			return s.abort(errors.E(op, errors.Protocol, errors.Errorf("%s request without a preceding Root request", name)))
		case req.dir && s.cur == nil:
			return s.abort(errors.E(op, errors.Protocol, errors.Errorf("%s request without a preceding Directory request", name)))
		}
		if req.command {
			s.command = name
		}
		err = req.Handle(s, args)
		if !req.command {
			if err != nil {
				return s.abort(err)
			}
			continue
		}
		if err := s.finish(err); err != nil {
			return err
		}
	}
}

// finish completes a command: it reports err, answers ok or error, and
// resets the state accumulated for the command.
func (s *Session) finish(err error) error {
	if errors.Is(errors.Protocol, err) {
		return s.abort(err)
	}
	if err != nil {
		s.failed = true
		s.e("cvs %s: %s", commandName(s.command), message(err))
		log.Debug.Printf("server: %s: %v", s.command, err)
	}
	s.locks.Cleanup()
	if s.failed {
		s.send("error", " ")
	} else {
		s.send("ok", "")
	}
	s.reset()
	if s.werr != nil {
		return s.werr
	}
	return s.conn.Flush()
}

func (s *Session) reset() {
	s.dirs = nil
	s.cur = nil
	s.args = nil
	s.kopt = ""
	s.checkin = time.Time{}
	s.command = ""
	s.failed = false
}

// abort reports a fatal error to the client and returns it.
func (s *Session) abort(err error) error {
	protocolErrors.Inc()
	log.Error.Printf("server: session aborted: %v", err)
	s.e("cvs [server aborted]: %s", message(err))
	s.send("error", " ")
	s.conn.Flush()
	return err
}

// commandName returns the name of the cvs command run by a request.
func commandName(request string) string {
	switch request {
	case "co":
		return "checkout"
	case "ci":
		return "commit"
	}
	return request
}

// message returns the text of err for display to a user: the innermost
// message, preceded by the innermost path.
func message(err error) string {
	var p errors.Path
	kind := errors.Other
	for {
		e, ok := err.(*errors.Error)
		if !ok {
			break
		}
		if e.Path != "" {
			p = e.Path
		}
		if e.Kind != errors.Other {
			kind = e.Kind
		}
		if e.Err == nil {
			err = nil
			break
		}
		err = e.Err
	}
	var msg string
	if err != nil {
		msg = err.Error()
	} else {
		msg = kind.String()
	}
	if p != "" {
		msg = string(p) + ": " + msg
	}
	return msg
}

// can reports whether the client handles the response.
func (s *Session) can(response string) bool {
	return s.responses.Has(response)
}

// send writes a response line.
func (s *Session) send(response, args string) {
	responsesTotal.WithLabelValues(response).Inc()
	line := response
	if args != "" {
		line += " " + args
	}
	s.line(line)
}

// line writes a line that continues a response.
func (s *Session) line(l string) {
	if err := s.conn.WriteLine(l); err != nil && s.werr == nil {
		s.werr = err
	}
}

// text sends text as a series of responses of the given kind, one per
// line.
func (s *Session) text(response, text string) {
	text = strings.TrimSuffix(text, "\n")
	for _, l := range strings.Split(text, "\n") {
		s.send(response, l)
	}
}

// m sends a line of standard output to the client.
func (s *Session) m(format string, args ...interface{}) {
	s.text("M", fmt.Sprintf(format, args...))
}

// e sends a line of standard error to the client.
func (s *Session) e(format string, args ...interface{}) {
	s.text("E", fmt.Sprintf(format, args...))
}

// note sends a message to standard error unless the session is quiet.
func (s *Session) note(format string, args ...interface{}) {
	if !s.quiet {
		s.e(format, args...)
	}
}

// lockWait is the lock Manager's Notify function.
func (s *Session) lockWait(msg string) {
	s.e("cvs %s: %s", commandName(s.command), msg)
	if err := s.conn.Flush(); err != nil {
		log.Debug.Printf("server: lock notify: %v", err)
	}
}

// readLock obtains a read lock on the repository directory dir and
// returns a function that releases it.
func (s *Session) readLock(dir string) (func(), error) {
	d, err := s.repo.Dir(dir)
	if err != nil {
		return nil, err
	}
	if !s.repo.IsDir(dir) {
		return func() {}, nil
	}
	start := time.Now()
	if err := s.locks.ReadLock(s.ctx, d); err != nil {
		return nil, err
	}
	s.lockObtained("read", start)
	return s.locks.Cleanup, nil
}

// writeLock obtains write locks on the repository directories dirs, all
// or none, and returns a function that releases them.
func (s *Session) writeLock(dirs []string) (func(), error) {
	var paths []string
	for _, dir := range dirs {
		d, err := s.repo.Dir(dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, d)
	}
	start := time.Now()
	if err := s.locks.WriterLock(s.ctx, paths); err != nil {
		return nil, err
	}
	s.lockObtained("write", start)
	return s.locks.Cleanup, nil
}

func (s *Session) lockObtained(kind string, start time.Time) {
	d := time.Since(start)
	lockAcquired.WithLabelValues(kind).Inc()
	lockWaitSeconds.WithLabelValues(kind).Observe(d.Seconds())
	if s.locks.Interval > 0 && d >= s.locks.Interval {
		lockWaits.WithLabelValues(kind).Add(float64(d / s.locks.Interval))
		s.e("cvs %s: obtained lock in %s", commandName(s.command), s.lockDirName(kind))
	}
}

func (s *Session) lockDirName(kind string) string {
	read, write := s.locks.Held()
	list := write
	if kind == "read" {
		list = read
	}
	if len(list) == 0 {
		return s.repo.Root()
	}
	return strings.Join(list, " ")
}

// history appends a record to the repository's history file.
func (s *Session) history(kind byte, d *dirState, name, rev string) {
	if s.noLog {
		return
	}
	n, _ := parseRev(rev)
	if err := s.repo.AppendHistory(kind, s.cfg.User, d.local, d.repo, name, n); err != nil {
		log.Error.Printf("server: history: %v", err)
	}
}
