// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flags defines command-line flags to make them consistent between binaries.
// Not all flags make sense for all binaries.
package flags // import "cvs.io/flags"

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cvs.io/log"
)

// We define the flags in two steps so clients don't have to write *flags.Flag.
// It also makes the documentation easier to read.

var (
	// Addr is the network address on which cvsd listens.
	Addr = defaultAddr

	// Config names the cvs.io configuration file to use.
	Config = defaultConfig

	// Log sets the level of logging (implements flag.Value).
	Log logFlag

	// MaxConn is the maximum number of simultaneous connections cvsd serves.
	MaxConn = defaultMaxConn

	// Metrics is the address on which Prometheus metrics are served;
	// empty disables them.
	Metrics = ""

	// NoExec, if set, reports what would happen without changing the
	// repository or working files (the -n flag).
	NoExec = false

	// Quiet suppresses informational messages (the -q flag).
	Quiet = false

	// Root is the CVSROOT to use, overriding $CVSROOT and CVS/Root
	// (the -d flag).
	Root = ""

	// Trace logs every protocol line sent and received (the -t flag).
	Trace = false

	// LockWait is the interval between attempts to acquire a contended
	// repository lock.
	LockWait = defaultLockWait
)

// None is the set of no flags. It is rarely needed as most programs
// use either the Server or Client set.
var None = []string{}

// Server is the set of flags most useful in servers. It can be passed as the
// argument to Parse to set up the package for a server.
var Server = []string{
	"addr", "config", "log", "maxconn", "metrics", "lockwait", "trace",
}

// Client is the set of flags most useful in clients. It can be passed as the
// argument to Parse to set up the package for a client.
var Client = []string{
	"config", "log", "n", "q", "d", "t",
}

const (
	defaultAddr     = "localhost:2401"
	defaultMaxConn  = 64
	defaultLockWait = 30 * time.Second
)

var defaultConfig = filepath.Join(os.Getenv("HOME"), ".cvs", "config")

// flagVar represents a flag in this package.
type flagVar struct {
	set  func(fs *flag.FlagSet) // Set the value at parse time.
	arg  func() string          // Return the argument to set the flag.
	arg2 func() string          // Return the argument to set the second flag; usually nil.
}

const (
	defaultLogLevel     = "info"
	defaultLogLevelName = "log"
)

var flags = map[string]*flagVar{
	"addr":   strVar(&Addr, "addr", Addr, "listen `address` for incoming protocol connections"),
	"config": strVar(&Config, "config", Config, "configuration `file`"),
	"d":      strVar(&Root, "d", Root, "CVSROOT `root` to use"),
	"log": &flagVar{
		set: func(fs *flag.FlagSet) {
			Log.Set(defaultLogLevel)
			fs.Var(&Log, defaultLogLevelName, "`level` of logging: debug, info, error, disabled")
		},
		arg: func() string { return strArg(defaultLogLevelName, Log.String(), defaultLogLevel) },
	},
	"lockwait": &flagVar{
		set: func(fs *flag.FlagSet) {
			fs.DurationVar(&LockWait, "lockwait", LockWait, "`interval` between attempts on a contended lock")
		},
		arg: func() string {
			if LockWait == defaultLockWait {
				return ""
			}
			return fmt.Sprintf("-lockwait=%v", LockWait)
		},
	},
	"maxconn": &flagVar{
		set: func(fs *flag.FlagSet) {
			fs.IntVar(&MaxConn, "maxconn", MaxConn, "maximum `number` of simultaneous connections")
		},
		arg: func() string {
			if MaxConn == defaultMaxConn {
				return ""
			}
			return fmt.Sprintf("-maxconn=%d", MaxConn)
		},
	},
	"metrics": strVar(&Metrics, "metrics", Metrics, "serve Prometheus metrics on `address`"),
	"n":       boolVar(&NoExec, "n", NoExec, "do not change any files"),
	"q":       boolVar(&Quiet, "q", Quiet, "be quiet"),
	"t":       boolVar(&Trace, "t", Trace, "trace protocol traffic"),
	"trace":   boolVar(&Trace, "trace", Trace, "trace protocol traffic"),
}

// Parse registers the command-line flags for the given default flags list, plus
// any extra flag names, and calls flag.Parse. Passing no flag names in either
// list registers all flags. Passing an unknown name triggers panic.
// The Server and Client variables contain useful default sets.
//
// Examples:
//
//	flags.Parse(flags.Client) // Register all client flags.
//	flags.Parse(flags.Server, "t") // Register all server flags plus -t.
//	flags.Parse(nil) // Register all flags.
//	flags.Parse(flags.None, "log") // Register only -log.
func Parse(defaultList []string, extras ...string) {
	ParseArgs(defaultList, os.Args[1:], extras...)
}

// ParseArgs is the same as Parse but uses the provided argument list
// instead of those provided on the command line. For ParseArgs,
// the initial command name should not be provided.
func ParseArgs(defaultList, args []string, extras ...string) {
	ParseArgsInto(flag.CommandLine, args, defaultList, extras...)
}

// ParseArgsInto is the same as ParseArgs but accepts a FlagSet argument instead
// of using the default flag.CommandLine FlagSet.
func ParseArgsInto(fs *flag.FlagSet, args, defaultList []string, extras ...string) {
	if len(defaultList) == 0 && len(extras) == 0 {
		RegisterInto(fs)
	} else {
		if len(defaultList) > 0 {
			RegisterInto(fs, defaultList...)
		}
		if len(extras) > 0 {
			RegisterInto(fs, extras...)
		}
	}
	fs.Parse(args)
}

// Register registers the command-line flags for the given flag names.
// Unlike Parse, it may be called multiple times.
// Passing zero names install all flags.
// Passing an unknown name triggers panic.
func Register(names ...string) {
	RegisterInto(flag.CommandLine, names...)
}

// RegisterInto is the same as Register but accepts a FlagSet argument instead of
// using the default flag.CommandLine FlagSet.
func RegisterInto(fs *flag.FlagSet, names ...string) {
	if len(names) == 0 {
		// Register all flags if no names provided.
		for _, flag := range flags {
			flag.set(fs)
		}
	} else {
		for _, n := range names {
			flag, ok := flags[n]
			if !ok {
				panic(fmt.Sprintf("unknown flag %q", n))
			}
			flag.set(fs)
		}
	}
}

// Args returns a slice of -flag=value strings that will recreate
// the state of the flags. Flags set to their default value are elided.
func Args() []string {
	var args []string
	for _, f := range flags {
		arg := f.arg()
		if arg == "" {
			continue
		}
		args = append(args, arg)
		if f.arg2 != nil {
			args = append(args, f.arg2())
		}
	}
	return args
}

// strVar returns a flagVar for the given string flag.
func strVar(value *string, name, _default, usage string) *flagVar {
	return &flagVar{
		set: func(fs *flag.FlagSet) {
			fs.StringVar(value, name, _default, usage)
		},
		arg: func() string {
			return strArg(name, *value, _default)
		},
	}
}

// boolVar returns a flagVar for the given bool flag.
func boolVar(value *bool, name string, _default bool, usage string) *flagVar {
	return &flagVar{
		set: func(fs *flag.FlagSet) {
			fs.BoolVar(value, name, _default, usage)
		},
		arg: func() string {
			if *value == _default {
				return ""
			}
			return fmt.Sprintf("-%s=%t", name, *value)
		},
	}
}

// strArg returns a command-line argument that will recreate the flag,
// or the empty string if the value is the default.
func strArg(name, value, _default string) string {
	if value == _default {
		return ""
	}
	return "-" + name + "=" + value
}

type logFlag string

// String implements flag.Value.
func (f logFlag) String() string {
	return string(f)
}

// Set implements flag.Value.
func (f *logFlag) Set(level string) error {
	err := log.SetLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	*f = logFlag(log.GetLevel())
	return nil
}

// Get implements flag.Getter.
func (logFlag) Get() interface{} {
	return log.GetLevel()
}
