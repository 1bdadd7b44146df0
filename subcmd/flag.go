// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Flag helpers.

package subcmd

import (
	"flag"
	"fmt"
)

// ParseFlags parses the flags in the command line arguments,
// according to those set in the flag set.
func (s *State) ParseFlags(fs *flag.FlagSet, args []string, help, usage string) {
	helpFlag := fs.Bool("help", false, "print more information about the command")
	usageFn := func() {
		fmt.Fprintf(s.Stderr, "Usage: cvs %s\n", usage)
		if *helpFlag {
			fmt.Fprintln(s.Stderr, help)
		}
		// How many flags?
		n := 0
		fs.VisitAll(func(*flag.Flag) { n++ })
		if n > 0 {
			fmt.Fprintf(s.Stderr, "Flags:\n")
			fs.SetOutput(s.Stderr)
			fs.PrintDefaults()
		}
		if s.Interactive {
			panic("exit")
		}
	}
	fs.Usage = usageFn
	err := fs.Parse(args)
	if err != nil {
		s.Exit(err)
	}
	if *helpFlag {
		fs.Usage()
		s.ExitCode = 2
		s.ExitNow()
	}
}
