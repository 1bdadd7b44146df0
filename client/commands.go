// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"io/ioutil"
	"os"
	"path"
	"sort"

	"github.com/spf13/pflag"

	"cvs.io/entries"
	"cvs.io/errors"
)

// Command is a client command. Its arguments are those that follow the
// command name on the cvs command line.
type Command func(s *Session, args []string) error

// Commands maps each command name and its abbreviations to the command.
var Commands = map[string]Command{
	"checkout": (*Session).Checkout,
	"co":       (*Session).Checkout,
	"get":      (*Session).Checkout,
	"update":   (*Session).Update,
	"up":       (*Session).Update,
	"upd":      (*Session).Update,
	"commit":   (*Session).Commit,
	"ci":       (*Session).Commit,
	"com":      (*Session).Commit,
	"add":      (*Session).Add,
	"ad":       (*Session).Add,
	"new":      (*Session).Add,
	"remove":   (*Session).Remove,
	"rm":       (*Session).Remove,
	"delete":   (*Session).Remove,
	"tag":      (*Session).Tag,
	"ta":       (*Session).Tag,
	"freeze":   (*Session).Tag,
	"status":   (*Session).Status,
	"st":       (*Session).Status,
	"stat":     (*Session).Status,
	"log":      (*Session).Log,
	"lo":       (*Session).Log,
	"diff":     (*Session).Diff,
	"di":       (*Session).Diff,
	"dif":      (*Session).Diff,
	"version":  (*Session).Version,
	"ve":       (*Session).Version,
	"ver":      (*Session).Version,
}

func flagSet(command string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	fs.SetInterspersed(false)
	return fs
}

// parse parses the command's options, reporting errors as Invalid.
func parse(op errors.Op, fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	return fs.Args(), nil
}

// forward sends the options that were set as arguments, in the short
// form the server parses. Options named in skip are not sent.
func (s *Session) forward(fs *pflag.FlagSet, skip ...string) {
	omit := make(map[string]bool)
	for _, n := range skip {
		omit[n] = true
	}
	fs.Visit(func(f *pflag.Flag) {
		if omit[f.Name] {
			return
		}
		opt := "-" + f.Shorthand
		switch f.Value.Type() {
		case "bool":
			s.argument(opt)
		case "stringArray":
			vals, _ := fs.GetStringArray(f.Name)
			for _, v := range vals {
				s.argument(opt)
				s.argument(v)
			}
		default:
			s.argument(opt)
			s.argument(f.Value.String())
		}
	})
}

// Checkout creates working directories for modules.
func (s *Session) Checkout(args []string) error {
	const op errors.Op = "client.Checkout"
	fs := flagSet("checkout")
	fs.BoolP("reset", "A", false, "reset sticky tags")
	fs.BoolP("force", "f", false, "use the head revision if the tag is not found")
	fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	prune := fs.BoolP("prune", "P", false, "prune empty directories")
	fs.StringP("keywords", "k", "", "keyword expansion mode")
	fs.StringArrayP("join", "j", nil, "merge changes between revisions")
	into := fs.StringP("directory", "d", "", "check out into directory")
	fs.StringP("revision", "r", "", "use revision or tag")
	fs.StringP("date", "D", "", "use the latest revision no later than date")
	modules, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	if len(modules) == 0 {
		return errors.E(op, errors.Invalid, errors.Str("must specify at least one module or directory"))
	}
	if s.can("expand-modules") {
		s.modules = nil
		for _, m := range modules {
			s.argument(m)
		}
		s.request("expand-modules", "")
		if err := s.wait(); err != nil {
			return errors.E(op, err)
		}
	}
	s.forward(fs)
	s.sendArgs(modules)
	s.request("Directory", ".")
	s.conn.WriteLine(s.repoPath("."))
	err = s.run("co")
	if *prune && err == nil && !s.cfg.NoExec {
		tops := modules
		if *into != "" {
			tops = []string{*into}
		}
		for _, m := range tops {
			s.pruneTop(path.Clean(m))
		}
	}
	if err != nil {
		return errors.E(op, err)
	}
	return nil
}

// pruneTop prunes a checked out directory, removing it too if empty.
func (s *Session) pruneTop(local string) {
	if !s.prune(local) {
		return
	}
	if err := os.RemoveAll(s.path(local)); err == nil {
		if l, err := entries.Open(s.path(path.Dir(local))); err == nil {
			l.Remove(path.Base(local))
			l.Close()
		}
	}
}

// Update brings working files up to date with the repository.
func (s *Session) Update(args []string) error {
	const op errors.Op = "client.Update"
	fs := flagSet("update")
	fs.BoolP("reset", "A", false, "reset sticky tags")
	fs.BoolP("force", "f", false, "use the head revision if the tag is not found")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	prune := fs.BoolP("prune", "P", false, "prune empty directories")
	fs.StringP("keywords", "k", "", "keyword expansion mode")
	fs.StringArrayP("join", "j", nil, "merge changes between revisions")
	fs.BoolP("clean", "C", false, "overwrite locally modified files")
	fs.BoolP("dirs", "d", false, "create directories new in the repository")
	fs.StringP("revision", "r", "", "use revision or tag")
	fs.StringP("date", "D", "", "use the latest revision no later than date")
	files, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	s.forward(fs)
	files, err = s.sendFiles(files, *local)
	if err != nil {
		return errors.E(op, err)
	}
	s.sendArgs(files)
	if err := s.run("update"); err != nil {
		return errors.E(op, err)
	}
	if *prune && !s.cfg.NoExec {
		s.prune(".")
	}
	return nil
}

// Commit records the changes to working files in the repository.
func (s *Session) Commit(args []string) error {
	const op errors.Op = "client.Commit"
	fs := flagSet("commit")
	fs.StringP("message", "m", "", "log message")
	file := fs.StringP("file", "F", "", "read the log message from file")
	fs.StringP("revision", "r", "", "commit to this revision or branch")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	fs.BoolP("force", "f", false, "commit unmodified files")
	files, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	if *file != "" {
		data, err := ioutil.ReadFile(*file)
		if err != nil {
			return errors.E(op, errors.Path(*file), errors.IO, err)
		}
		fs.Set("message", string(data))
	}
	s.forward(fs, "file")
	files, err = s.sendFiles(files, *local)
	if err != nil {
		return errors.E(op, err)
	}
	s.sendArgs(files)
	if err := s.run("ci"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Add schedules files and creates directories in the repository.
func (s *Session) Add(args []string) error {
	const op errors.Op = "client.Add"
	fs := flagSet("add")
	fs.StringP("keywords", "k", "", "keyword expansion mode")
	fs.StringP("message", "m", "", "file description")
	files, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.E(op, errors.Invalid, errors.Str("no files specified"))
	}
	s.forward(fs)
	files, err = s.sendFiles(files, true)
	if err != nil {
		return errors.E(op, err)
	}
	var dirs []string
	for _, f := range files {
		fi, err := os.Stat(s.path(f))
		if err != nil || !fi.IsDir() || entries.IsWorkDir(s.path(f)) {
			continue
		}
		repo, err := s.repoDirOf(f)
		if err != nil {
			return errors.E(op, err)
		}
		s.request("Directory", f)
		s.conn.WriteLine(s.repoPath(repo))
		dirs = append(dirs, f)
	}
	s.sendArgs(files)
	if err := s.run("add"); err != nil {
		return errors.E(op, err)
	}
	if s.cfg.NoExec {
		return nil
	}
	for _, d := range dirs {
		repo, err := s.repoDirOf(d)
		if err != nil {
			return errors.E(op, err)
		}
		if err := entries.Create(s.path(d), s.cfg.Root.String(), repo); err != nil {
			return errors.E(op, err)
		}
		if tag, err := entries.ReadTag(s.path(path.Dir(d))); err == nil && tag != "" {
			entries.WriteTag(s.path(d), tag)
		}
		l, err := entries.Open(s.path(path.Dir(d)))
		if err != nil {
			return errors.E(op, err)
		}
		l.Add(&entries.Entry{Dir: true, Name: path.Base(d)})
		if err := l.Close(); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// Remove schedules files for removal from the repository.
func (s *Session) Remove(args []string) error {
	const op errors.Op = "client.Remove"
	fs := flagSet("remove")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	force := fs.BoolP("force", "f", false, "delete the file before removing it")
	files, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	if *force && !s.cfg.NoExec {
		for _, f := range files {
			name := s.path(f)
			if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
				if err := os.Remove(name); err != nil {
					return errors.E(op, errors.Path(name), errors.IO, err)
				}
			}
		}
	}
	s.forward(fs)
	files, err = s.sendFiles(files, *local)
	if err != nil {
		return errors.E(op, err)
	}
	s.sendArgs(files)
	if err := s.run("remove"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Tag attaches a symbolic name to the working revisions of files.
func (s *Session) Tag(args []string) error {
	const op errors.Op = "client.Tag"
	fs := flagSet("tag")
	fs.BoolP("delete", "d", false, "delete the tag")
	fs.BoolP("force-move", "F", false, "move the tag if it exists")
	fs.BoolP("branch", "b", false, "make a branch tag")
	fs.BoolP("check", "c", false, "check that files are unmodified")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	fs.BoolP("force", "f", false, "use the head revision if the tag is not found")
	fs.StringP("revision", "r", "", "use revision or tag")
	fs.StringP("date", "D", "", "use the latest revision no later than date")
	rest, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return errors.E(op, errors.Invalid, errors.Str("no tag specified"))
	}
	s.forward(fs)
	s.argument(rest[0])
	files, err := s.sendFiles(rest[1:], *local)
	if err != nil {
		return errors.E(op, err)
	}
	s.sendArgs(files)
	if err := s.run("tag"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Status reports the state of working files.
func (s *Session) Status(args []string) error {
	const op errors.Op = "client.Status"
	fs := flagSet("status")
	fs.BoolP("verbose", "v", false, "list tags")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	return s.simple(op, "status", fs, local, args)
}

// Log prints the revision history of files.
func (s *Session) Log(args []string) error {
	const op errors.Op = "client.Log"
	fs := flagSet("log")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	return s.simple(op, "log", fs, local, args)
}

// Diff prints the differences between working files and revisions.
func (s *Session) Diff(args []string) error {
	const op errors.Op = "client.Diff"
	fs := flagSet("diff")
	fs.StringArrayP("revision", "r", nil, "compare with revision")
	fs.StringArrayP("date", "D", nil, "compare with the revision at date")
	fs.BoolP("unified", "u", true, "unified output")
	fs.BoolP("context", "c", false, "context output, shown unified")
	fs.BoolP("new-file", "N", false, "include added and removed files")
	local := fs.BoolP("local", "l", false, "do not recurse into subdirectories")
	fs.StringP("keywords", "k", "", "keyword expansion mode")
	return s.simple(op, "diff", fs, local, args)
}

// simple runs a command that sends its options and the working copy
// state and changes nothing locally.
func (s *Session) simple(op errors.Op, command string, fs *pflag.FlagSet, local *bool, args []string) error {
	files, err := parse(op, fs, args)
	if err != nil {
		return err
	}
	s.forward(fs)
	files, err = s.sendFiles(files, *local)
	if err != nil {
		return errors.E(op, err)
	}
	s.sendArgs(files)
	if err := s.run(command); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Version prints the server's version.
func (s *Session) Version(args []string) error {
	const op errors.Op = "client.Version"
	if len(args) > 0 {
		return errors.E(op, errors.Invalid, errors.Str("too many arguments"))
	}
	if err := s.run("version"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Init creates a repository at the session's root. It replaces Connect,
// since no repository exists to name in a Root request.
func (s *Session) Init() error {
	const op errors.Op = "client.Init"
	if err := s.handshake(false); err != nil {
		return errors.E(op, err)
	}
	s.request("init", s.cfg.Root.Dir)
	if err := s.wait(); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Modules returns the module expansions reported by the last checkout.
func (s *Session) Modules() []string {
	m := append([]string(nil), s.modules...)
	sort.Strings(m)
	return m
}
