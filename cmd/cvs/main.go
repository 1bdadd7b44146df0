// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cvs is a client for CVS repositories. It speaks the CVS
// client/server protocol to a server reached through the access method
// of the CVSROOT, or, for a local repository, to a server running in
// the same process. Run as "cvs server" it is itself the server,
// talking over its standard input and output.
package main // import "cvs.io/cmd/cvs"

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cvs.io/client"
	"cvs.io/config"
	"cvs.io/cvsroot"
	"cvs.io/entries"
	"cvs.io/flags"
	"cvs.io/ignore"
	"cvs.io/log"
	"cvs.io/server"
	"cvs.io/subcmd"
	"cvs.io/transport"
	"cvs.io/version"
)

const intro = `
The cvs command manages working copies of files kept in a CVS
repository. A working copy is created with checkout; update merges
changes made by others; commit records local changes as new revisions.

The repository is named by the -d flag, by CVS/Root in the current
working directory, or by $CVSROOT, in that order. Roots have the form

	:local:/path           a repository on this machine
	:fork:/path            as local, with the server in a child process
	:ext:user@host:/path   a server started by $CVS_RSH (default ssh)
	:ssh:user@host:/path   a server started over SSH by this process
	:server:host:port/path a cvsd daemon

Global flags come before the command name and command options after it:

	cvs -q update -d -P
`

// State is the state of the cvs command.
type State struct {
	*subcmd.State
	root *cvsroot.Root
}

func main() {
	flag.Usage = usage
	flags.Parse(flags.Client)

	if flag.NArg() < 1 {
		fmt.Fprint(os.Stderr, intro, "\n")
		os.Exit(2)
	}
	s := newState(strings.ToLower(flag.Arg(0)))
	args := flag.Args()[1:]

	switch s.Name {
	case "server":
		s.server(args)
	case "init":
		s.init(args)
	case "help":
		usage()
	default:
		cmd, ok := client.Commands[s.Name]
		if !ok {
			s.Exitf("unknown command; run cvs -help for the list")
		}
		s.run(cmd, args)
	}
	s.ExitNow()
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage of cvs:\n")
	fmt.Fprintf(os.Stderr, "\tcvs [globalflags] <command> [options] [files...]\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	var names []string
	for name := range client.Commands {
		names = append(names, name)
	}
	names = append(names, "init", "server")
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "\t%s\n", strings.Join(names, " "))
	fmt.Fprintf(os.Stderr, "Global flags:\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func newState(name string) *State {
	s := &State{State: subcmd.NewState(name)}
	cfg, err := config.FromFile(subcmd.Tilde(flags.Config))
	if err != nil {
		s.Exit(err)
	}
	s.Init(cfg)
	if flags.Trace {
		log.SetLevel("debug")
	} else if lvl := cfg.LogLevel(); lvl != "" && flags.Log.String() == "info" {
		log.SetLevel(lvl)
	}
	return s
}

// cvsroot returns the repository to use: -d, then CVS/Root, then the
// configuration and $CVSROOT.
func (s *State) cvsroot() *cvsroot.Root {
	if s.root != nil {
		return s.root
	}
	str := flags.Root
	if str == "" && s.Name != "checkout" && s.Name != "co" && s.Name != "get" {
		if r, err := entries.ReadRoot("."); err == nil {
			str = r
		}
	}
	if str == "" {
		str = s.Config.Root()
	}
	if str == "" {
		s.Exitf("no CVSROOT specified; use -d or set $CVSROOT")
	}
	root, err := cvsroot.Parse(str)
	if err != nil {
		s.Exit(err)
	}
	s.root = root
	return root
}

// session dials the server and returns a session for it.
func (s *State) session(ctx context.Context) *client.Session {
	root := s.cvsroot()
	rw, err := transport.Dial(ctx, root, s.Config)
	if err != nil {
		s.Exit(err)
	}
	ign := ignore.New()
	for _, p := range s.Config.Ignore() {
		if err := ign.Add(p); err != nil {
			s.Exit(err)
		}
	}
	if home, err := config.Homedir(); err == nil {
		if err := ign.AddFile(filepath.Join(home, ignore.FileName)); err != nil {
			s.Exit(err)
		}
	}
	cfg := client.Config{
		Root:     root,
		Stdout:   s.Stdout,
		Stderr:   s.Stderr,
		Quiet:    flags.Quiet,
		NoExec:   flags.NoExec,
		ReadOnly: s.Config.ReadOnly(),
		Umask:    s.Config.Umask(),
		Ignore:   ign,
	}
	if flags.Trace {
		cfg.Trace = log.Debug
	}
	return client.New(rw, cfg)
}

// run connects to the server and runs a client command.
func (s *State) run(cmd client.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := s.session(ctx)
	defer sess.Close()
	if err := sess.Connect(); err != nil {
		s.Exit(err)
	}
	if err := cmd(sess, args); err != nil {
		if client.Failed(err) {
			// The server has printed its messages.
			s.ExitCode = 1
			return
		}
		s.Fail(err)
	}
}

// init creates the repository named by the root.
func (s *State) init(args []string) {
	const help = `
Init creates the administrative directory CVSROOT in the repository named
by -d or $CVSROOT, creating the repository directory if needed.
`
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	s.ParseFlags(fs, args, help, "-d root init")
	if fs.NArg() > 0 {
		fs.Usage()
		s.Exitf("unexpected arguments")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := s.session(ctx)
	defer sess.Close()
	if err := sess.Init(); err != nil {
		s.Exit(err)
	}
}

// server serves the protocol on the standard input and output.
func (s *State) server(args []string) {
	const help = `
Server speaks the server side of the client/server protocol on standard
input and output. It is started by a client using the fork, ext or ssh
access methods.
`
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	s.ParseFlags(fs, args, help, "server")
	if fs.NArg() > 0 {
		fs.Usage()
		s.Exitf("unexpected arguments")
	}
	cfg := server.Config{
		LockInterval: s.Config.LockWait(),
		LockStale:    s.Config.LockStale(),
	}
	if flags.Trace {
		cfg.Trace = log.Debug
	}
	log.Debug.Printf("cvs: server %s starting", version.Short())
	sess := server.NewSession(os.Stdin, os.Stdout, cfg)
	if err := sess.Serve(context.Background()); err != nil {
		log.Error.Printf("cvs server: %v", err)
		s.ExitCode = 1
	}
}
