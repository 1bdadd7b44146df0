// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package subcmd provides the state and helpers shared by the
// subcommands of the cvs command.
package subcmd // import "cvs.io/subcmd"

import (
	"fmt"
	"io"
	"os"

	"cvs.io/config"
	"cvs.io/shutdown"
)

// State describes the state of a subcommand.
// See the comments for Exitf to see how Interactive is used.
type State struct {
	Name        string        // Name of the subcommand we are running.
	Config      config.Config // Settings from the config file and environment.
	Interactive bool          // Whether exits should unwind instead of ending the process.
	Stdin       io.Reader     // Where to read standard input
	Stdout      io.Writer     // Where to write standard output.
	Stderr      io.Writer     // Where to write error output.
	ExitCode    int           // Exit with non-zero status for minor problems.
}

// NewState returns a new State for the named subcommand.
func NewState(name string) *State {
	s := &State{Name: name, Config: config.New()}
	s.DefaultIO()
	return s
}

// Init sets the configuration for the State.
func (s *State) Init(cfg config.Config) {
	s.Config = cfg
}

func (s *State) SetIO(stdin io.Reader, stdout, stderr io.Writer) {
	s.Stdin = stdin
	s.Stdout = stdout
	s.Stderr = stderr
}

func (s *State) DefaultIO() {
	s.SetIO(os.Stdin, os.Stdout, os.Stderr)
}

// Exitf prints the error and exits the program.
// If we are interactive, it calls panic("exit"), which is intended to be recovered
// from by the caller.
// We don't use log (although the packages we call do) because the errors
// are for regular people.
func (s *State) Exitf(format string, args ...interface{}) {
	format = fmt.Sprintf("cvs %s: %s\n", s.Name, format)
	fmt.Fprintf(s.Stderr, format, args...)
	if s.Interactive {
		panic("exit")
	}
	s.ExitCode = 1
	s.ExitNow()
}

// Exit calls s.Exitf with the error.
func (s *State) Exit(err error) {
	s.Exitf("%s", err)
}

// ExitNow terminates the process with the current ExitCode, running
// the registered shutdown handlers first.
func (s *State) ExitNow() {
	shutdown.Now(s.ExitCode)
}

// Failf logs the error and sets the exit code. It does not exit the program.
func (s *State) Failf(format string, args ...interface{}) {
	format = fmt.Sprintf("cvs %s: %s\n", s.Name, format)
	fmt.Fprintf(s.Stderr, format, args...)
	s.ExitCode = 1
}

// Fail calls s.Failf with the error.
func (s *State) Fail(err error) {
	s.Failf("%v", err)
}
