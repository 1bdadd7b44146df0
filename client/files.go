// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/ignore"
	"cvs.io/log"
)

// plan is a working directory whose state is to be sent.
type plan struct {
	local   string
	all     bool     // send every file and questionable names
	recurse bool     // also send the working subdirectories
	names   []string // files named on the command line, when !all
}

// sendFiles sends the state of the working copy that the file arguments
// name, or of the whole working copy if there are none. It returns the
// arguments as they should be sent to the server.
func (s *Session) sendFiles(args []string, local bool) ([]string, error) {
	const op errors.Op = "client.sendFiles"
	plans := make(map[string]*plan)
	get := func(local string) *plan {
		p, ok := plans[local]
		if !ok {
			p = &plan{local: local}
			plans[local] = p
		}
		return p
	}
	if len(args) == 0 {
		if !entries.IsWorkDir(s.path(".")) {
			return nil, errors.E(op, errors.Path(s.path(".")), errors.NotExist, errors.Str("no CVS directory"))
		}
		p := get(".")
		p.all, p.recurse = true, !local
	}
	var out []string
	for _, a := range args {
		a = path.Clean(filepath.ToSlash(a))
		if path.IsAbs(a) || a == ".." || strings.HasPrefix(a, "../") {
			return nil, errors.E(op, errors.Path(a), errors.Invalid, errors.Str("file is outside the working directory"))
		}
		out = append(out, a)
		if entries.IsWorkDir(s.path(a)) {
			p := get(a)
			p.all, p.recurse = true, !local
			continue
		}
		dir, name := path.Split(a)
		dir = path.Clean(dir)
		if !entries.IsWorkDir(s.path(dir)) {
			return nil, errors.E(op, errors.Path(a), errors.NotExist, errors.Str("no CVS directory"))
		}
		p := get(dir)
		p.names = append(p.names, name)
	}
	locals := make([]string, 0, len(plans))
	for l := range plans {
		locals = append(locals, l)
	}
	sort.Strings(locals)
	sent := make(map[string]bool)
	for _, l := range locals {
		if err := s.sendDir(plans[l], sent); err != nil {
			return nil, errors.E(op, err)
		}
	}
	return out, nil
}

// sendDir sends a Directory request for the plan's directory followed
// by the state of its files.
func (s *Session) sendDir(p *plan, sent map[string]bool) error {
	if sent[p.local] {
		return nil
	}
	sent[p.local] = true
	dir := s.path(p.local)
	rel, err := entries.ReadRepository(dir)
	if err != nil {
		return err
	}
	s.request("Directory", p.local)
	s.conn.WriteLine(s.repoPath(rel))
	if tag, err := entries.ReadTag(dir); err != nil {
		return err
	} else if tag != "" && s.can("Sticky") {
		s.request("Sticky", tag)
	}
	if entries.IsStatic(dir) && s.can("Static-directory") {
		s.request("Static-directory", "")
	}
	l, err := entries.Open(dir)
	if err != nil {
		return err
	}
	named := make(map[string]bool)
	for _, n := range p.names {
		named[n] = true
	}
	for _, e := range l.Entries() {
		if e.Dir || (!p.all && !named[e.Name]) {
			continue
		}
		if err := s.sendEntry(dir, e); err != nil {
			return err
		}
		delete(named, e.Name)
	}
	// Named files without entries, for add.
	for _, n := range p.names {
		if !named[n] {
			continue
		}
		if fi, err := os.Stat(filepath.Join(dir, n)); err == nil && !fi.IsDir() {
			s.isModified(n)
		}
	}
	if !p.all {
		return nil
	}
	ign, err := s.cfg.Ignore.ForDir(dir)
	if err != nil {
		return err
	}
	if s.can("Questionable") {
		s.questionable(dir, l, ign)
	}
	if !p.recurse {
		return nil
	}
	for _, sub := range subdirs(dir, l) {
		local := path.Join(p.local, sub)
		if err := s.sendDir(&plan{local: local, all: true, recurse: true}, sent); err != nil {
			return err
		}
	}
	return nil
}

// sendEntry sends a file's entry and, if the file exists, either its
// contents or a note that it is unchanged.
func (s *Session) sendEntry(dir string, e *entries.Entry) error {
	sent := *e
	sent.Timestamp = ""
	s.request("Entry", sent.String())
	if e.Removed() {
		return nil
	}
	name := filepath.Join(dir, e.Name)
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.E(errors.Path(name), errors.IO, err)
	}
	if fi.IsDir() {
		return nil
	}
	if !e.Added() && e.Timestamp == entries.FormatTime(fi.ModTime()) {
		if s.can("UseUnchanged") {
			s.request("Unchanged", e.Name)
		}
		return nil
	}
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return errors.E(errors.Path(name), errors.IO, err)
	}
	s.request("Modified", e.Name)
	return s.conn.SendFile(fi.Mode(), data)
}

func (s *Session) isModified(name string) {
	if s.can("Is-modified") {
		s.request("Is-modified", name)
		return
	}
	s.request("Modified", name)
	s.conn.SendFile(0644, nil)
}

// questionable names the files in dir that are neither known nor
// ignored.
func (s *Session) questionable(dir string, l *entries.List, ign *ignore.List) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		log.Debug.Printf("client: %v", err)
		return
	}
	known := make(map[string]bool)
	for _, e := range l.Entries() {
		known[e.Name] = true
	}
	for _, fi := range infos {
		n := fi.Name()
		if n == entries.AdminDir || known[n] || ign.Match(n) {
			continue
		}
		if fi.IsDir() && entries.IsWorkDir(filepath.Join(dir, n)) {
			continue
		}
		s.request("Questionable", n)
	}
}

// subdirs returns the working subdirectories of dir.
func subdirs(dir string, l *entries.List) []string {
	seen := make(map[string]bool)
	var names []string
	for _, n := range l.Dirs() {
		if entries.IsWorkDir(filepath.Join(dir, n)) {
			seen[n] = true
			names = append(names, n)
		}
	}
	infos, err := ioutil.ReadDir(dir)
	if err == nil {
		for _, fi := range infos {
			n := fi.Name()
			if fi.IsDir() && !seen[n] && n != entries.AdminDir && entries.IsWorkDir(filepath.Join(dir, n)) {
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

// sendArgs sends file arguments after the option arguments.
func (s *Session) sendArgs(files []string) {
	s.argument("--")
	for _, f := range files {
		s.argument(f)
	}
}

// prune removes the working subdirectories of local that hold no files.
// It reports whether local itself is empty.
func (s *Session) prune(local string) bool {
	dir := s.path(local)
	l, err := entries.Open(dir)
	if err != nil {
		return false
	}
	empty := len(l.Files()) == 0
	for _, sub := range subdirs(dir, l) {
		subLocal := path.Join(local, sub)
		if !s.prune(subLocal) {
			empty = false
			continue
		}
		if err := os.RemoveAll(s.path(subLocal)); err != nil {
			log.Error.Printf("client: %v", err)
			empty = false
			continue
		}
		if err := l.Remove(sub); err != nil && !errors.Is(errors.NotExist, err) {
			log.Error.Printf("client: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		log.Error.Printf("client: %v", err)
	}
	if !empty || local == "." {
		return false
	}
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, fi := range infos {
		if fi.Name() != entries.AdminDir {
			return false
		}
	}
	return true
}

// repoDirOf returns the repository path the server expects for a new
// directory local, from its parent's CVS/Repository.
func (s *Session) repoDirOf(local string) (string, error) {
	rel, err := entries.ReadRepository(s.path(path.Dir(local)))
	if err != nil {
		return "", err
	}
	if rel == "." || rel == "" {
		return path.Base(local), nil
	}
	return path.Join(rel, path.Base(local)), nil
}
