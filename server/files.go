// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
	"cvs.io/repository"
)

// dirState is what the client has told us about one working directory.
type dirState struct {
	local        string // slash-separated, relative to the client's top directory
	repo         string // relative to the repository root
	sticky       string // "Ttag", "Nname" or "Ddate"
	static       bool
	files        map[string]*fileState
	names        []string // files in the order first mentioned
	questionable []string
}

// fileState is what the client has told us about one file.
type fileState struct {
	name     string
	entry    *entries.Entry
	present  bool // the working file exists
	modified bool // the working file may differ from its revision
	haveData bool
	data     []byte
	mode     os.FileMode
	kopt     string
	checkin  time.Time

	same *bool // cached result of unmodified
}

// dir returns the state of the local directory, creating it if it is new.
func (s *Session) dir(local, repo string) *dirState {
	for _, d := range s.dirs {
		if d.local == local {
			d.repo = repo
			return d
		}
	}
	d := &dirState{local: local, repo: repo, files: make(map[string]*fileState)}
	s.dirs = append(s.dirs, d)
	return d
}

func (d *dirState) file(name string) *fileState {
	f, ok := d.files[name]
	if !ok {
		f = &fileState{name: name}
		d.files[name] = f
		d.names = append(d.names, name)
	}
	return f
}

// path returns the name of a file in the directory as the user sees it.
func (d *dirState) path(name string) string {
	if d.local == "." {
		return name
	}
	return d.local + "/" + name
}

// target is a directory and the files in it that a command processes.
type target struct {
	d     *dirState
	names []string // nil for every file in the directory
}

// targets returns the directories and files named by the command's file
// arguments. With no arguments, every directory sent is a target; an
// argument naming a directory includes its subdirectories unless local
// is set.
func (s *Session) targets(args []string, local bool) ([]target, error) {
	if len(args) == 0 {
		ts := make([]target, len(s.dirs))
		for i, d := range s.dirs {
			ts[i] = target{d: d}
		}
		if local && len(ts) > 0 {
			ts = ts[:1]
		}
		return ts, nil
	}
	whole := make(map[*dirState]bool)
	named := make(map[*dirState][]string)
	for _, a := range args {
		a = path.Clean(a)
		found := false
		for _, d := range s.dirs {
			if d.local == a || (!local && (a == "." || strings.HasPrefix(d.local, a+"/"))) {
				whole[d] = true
				found = true
			}
		}
		if found {
			continue
		}
		dir, name := path.Split(a)
		dir = path.Clean(dir)
		for _, d := range s.dirs {
			if d.local == dir {
				named[d] = append(named[d], name)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.E(errors.Path(a), errors.NotExist, errors.Str("nothing known about this file"))
		}
	}
	var ts []target
	for _, d := range s.dirs {
		switch {
		case whole[d]:
			ts = append(ts, target{d: d})
		case named[d] != nil:
			ts = append(ts, target{d: d, names: named[d]})
		}
	}
	return ts, nil
}

// files returns the names of the target's files: those named, or those
// the client sent, plus, if withRepo is set, those in the repository.
func (s *Session) files(t target, withRepo bool) []string {
	if t.names != nil {
		return t.names
	}
	seen := make(map[string]bool)
	var names []string
	for _, n := range t.d.names {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	if withRepo && !t.d.static && s.repo.IsDir(t.d.repo) {
		if list, err := s.repo.Files(t.d.repo); err == nil {
			for _, n := range list {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	sort.Strings(names)
	return names
}

// present reports whether the working file exists. Clients that do not
// send UseUnchanged only mention modified files, so any file with an
// entry is taken to exist.
func (s *Session) present(f *fileState) bool {
	return f.present || (!s.useUnchanged && f.entry != nil && !f.entry.Removed())
}

// unmodified reports whether a Modified file's contents equal the
// revision named by its entry, expanded as the entry says.
func (s *Session) unmodified(d *dirState, f *fileState) bool {
	if !f.modified {
		return true
	}
	if !f.haveData || f.entry == nil || f.entry.Added() || f.entry.Removed() {
		return false
	}
	if f.same != nil {
		return *f.same
	}
	same := false
	rev, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: f.entry.Rev}, expandMode(f.entry.Options))
	if err == nil && !rev.Dead {
		same = bytes.Equal(rev.Data, f.data)
	}
	f.same = &same
	return same
}

// hasConflictMarkers reports whether text holds an unresolved conflict.
func hasConflictMarkers(text []byte) bool {
	for _, l := range rcs.SplitLines(text) {
		if bytes.HasPrefix(l, []byte("<<<<<<< ")) || bytes.HasPrefix(l, []byte(">>>>>>> ")) {
			return true
		}
	}
	return false
}

// expandMode returns the keyword expansion mode given by an entry's
// options, such as "-kb".
func expandMode(options string) string {
	return strings.TrimPrefix(options, "-k")
}

// options returns the entry options for an expansion mode.
func options(expand string) string {
	if expand == "" || expand == "kv" {
		return ""
	}
	return "-k" + expand
}

// repoFile returns the repository path of a file as sent in responses:
// the absolute name of the RCS file without its ",v".
func (s *Session) repoFile(d *dirState, name string) string {
	return path.Join(filepath.ToSlash(s.repo.Root()), d.repo, name)
}

// repoDir returns the repository path of a directory as sent in
// responses, with a trailing slash.
func (s *Session) repoDir(dir string) string {
	return path.Join(filepath.ToSlash(s.repo.Root()), dir) + "/"
}

// sendPath writes a response naming a file, whose first two lines are
// the local directory and the repository file.
func (s *Session) sendPath(response string, d *dirState, name string) {
	s.send(response, d.local+"/")
	s.line(s.repoFile(d, name))
}

// sendFile writes a response that carries an entry and file contents:
// Updated, Created, Update-existing, Merged or Patched.
func (s *Session) sendFile(response string, d *dirState, e *entries.Entry, mode os.FileMode, data []byte) {
	if response == "Created" && !s.can("Created") {
		response = "Updated"
	}
	if s.readOnly {
		mode &^= 0222
	}
	s.sendPath(response, d, e.Name)
	s.line(e.String())
	if err := s.conn.SendFile(mode, data); err != nil && s.werr == nil {
		s.werr = err
	}
}

// sendEntry writes a response that carries only an entry: Checked-in or
// New-entry.
func (s *Session) sendEntry(response string, d *dirState, e *entries.Entry) {
	s.sendPath(response, d, e.Name)
	s.line(e.String())
}

// sendSticky writes Set-sticky or Clear-sticky for a directory.
func (s *Session) sendSticky(local, dir, tag string) {
	if tag == "" {
		if s.can("Clear-sticky") {
			s.send("Clear-sticky", local+"/")
			s.line(s.repoDir(dir))
		}
		return
	}
	if s.can("Set-sticky") {
		s.send("Set-sticky", local+"/")
		s.line(s.repoDir(dir))
		s.line(tag)
	}
}

// sendStatic writes Set-static-directory or Clear-static-directory.
func (s *Session) sendStatic(local, dir string, static bool) {
	response := "Clear-static-directory"
	if static {
		response = "Set-static-directory"
	}
	if s.can(response) {
		s.send(response, local+"/")
		s.line(s.repoDir(dir))
	}
}

// copyFile asks the client to save a copy of a working file before it
// is overwritten.
func (s *Session) copyFile(d *dirState, name, newName string) {
	if !s.can("Copy-file") {
		return
	}
	s.sendPath("Copy-file", d, name)
	s.line(newName)
}

// lookup finds the revision of a file chosen by sel. It reports
// whether the file exists in the repository and, if so, whether the
// revision is dead. A missing revision is reported as a dead one.
func (s *Session) lookup(dir, name string, sel repository.Selector) (rev rcsnum.Num, exists, dead bool, err error) {
	file, _, err := s.repo.Lookup(dir, name)
	if errors.Is(errors.NotExist, err) {
		return rcsnum.Num{}, false, false, nil
	}
	if err != nil {
		return rcsnum.Num{}, false, false, err
	}
	f, err := s.repo.File(file)
	if err != nil {
		return rcsnum.Num{}, false, false, err
	}
	defer f.Close()
	rev, err = repository.Resolve(f, sel)
	if errors.Is(errors.NotExist, err) {
		return rcsnum.Num{}, true, true, nil
	}
	if err != nil {
		return rcsnum.Num{}, true, false, err
	}
	return rev, true, f.IsDead(rev), nil
}

// stickyTag returns the selector for a sticky tag field ("Ttag",
// "Nname" or "Ddate").
func stickyTag(tag string) (repository.Selector, error) {
	if tag == "" {
		return repository.Selector{}, nil
	}
	switch tag[0] {
	case 'T', 'N':
		return repository.Selector{Tag: tag[1:]}, nil
	case 'D':
		t, err := parseDate(tag[1:])
		if err != nil {
			return repository.Selector{}, err
		}
		return repository.Selector{Date: t}, nil
	}
	return repository.Selector{}, errors.E(errors.Invalid, errors.Errorf("bad sticky tag %q", tag))
}

// stickyDate formats a sticky date field.
func stickyDate(t time.Time) string {
	return "D" + t.UTC().Format("2006.01.02.15.04.05")
}

var dateLayouts = []string{
	"2006.01.02.15.04.05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	time.RFC3339,
	time.RFC1123Z,
	"2 Jan 2006 15:04:05 -0700",
	entries.TimeFormat,
}

// parseDate parses a date as given to -D or in a sticky tag. Dates
// without a zone are UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.E(errors.Invalid, errors.Errorf("cannot parse date %q", s))
}

// parseRev parses the revision of an entry, ignoring the removal mark.
func parseRev(rev string) (rcsnum.Num, error) {
	return rcsnum.Parse(strings.TrimPrefix(rev, "-"))
}

// flagSet returns a flag set for a command's options.
func flagSet(command string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	fs.SetInterspersed(false)
	return fs
}

// parseFlags parses a command's arguments and returns the rest.
func parseFlags(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	return fs.Args(), nil
}

// selection holds the -r and -D options common to several commands.
type selection struct {
	tag  string
	date string
}

func (sel *selection) register(fs *pflag.FlagSet) {
	fs.StringVarP(&sel.tag, "revision", "r", "", "use revision or tag")
	fs.StringVarP(&sel.date, "date", "D", "", "use the latest revision no later than date")
}

// set reports whether -r or -D was given.
func (sel *selection) set() bool {
	return sel.tag != "" || sel.date != ""
}

// selector returns the selector and sticky tag field for the options.
func (sel *selection) selector() (repository.Selector, string, error) {
	if sel.date != "" {
		t, err := parseDate(sel.date)
		if err != nil {
			return repository.Selector{}, "", err
		}
		return repository.Selector{Tag: sel.tag, Date: t}, stickyDate(t), nil
	}
	if sel.tag == "" || sel.tag == "HEAD" {
		return repository.Selector{Tag: sel.tag}, "", nil
	}
	return repository.Selector{Tag: sel.tag}, "T" + sel.tag, nil
}
