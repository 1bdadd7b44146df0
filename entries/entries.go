// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package entries manages the administrative files of a CVS working
// directory: CVS/Entries and its journal CVS/Entries.Log, and the small
// files recording the repository, root, sticky tag and static state.
package entries // import "cvs.io/entries"

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"cvs.io/errors"
	"cvs.io/log"
)

// AdminDir is the name of the administrative subdirectory.
const AdminDir = "CVS"

// Names of the administrative files.
const (
	EntriesFile = "Entries"
	LogFile     = "Entries.Log"
	BackupFile  = "Entries.Backup"
	StaticFile  = "Entries.Static"
	RootFile    = "Root"
	RepoFile    = "Repository"
	TagFile     = "Tag"
)

// List is the in-memory form of a directory's Entries file. Changes are
// journaled to CVS/Entries.Log as they are made and folded into
// CVS/Entries by Close.
type List struct {
	dir      string
	entries  []*Entry
	subdirs  bool // Entries lists every subdirectory ("D" line).
	dirty    bool
	readOnly bool
}

func adminPath(dir, name string) string {
	return filepath.Join(dir, AdminDir, name)
}

// Open reads the Entries file of the working directory dir and applies
// any pending Entries.Log operations. A missing Entries file yields an
// empty list. If the CVS directory is not writable the list is read-only.
func Open(dir string) (*List, error) {
	const op errors.Op = "entries.Open"
	l := &List{dir: dir}
	data, err := ioutil.ReadFile(adminPath(dir, EntriesFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.E(op, errors.Path(dir), errors.IO, err)
	}
	if err := l.parse(data, false); err != nil {
		return nil, errors.E(op, errors.Path(adminPath(dir, EntriesFile)), err)
	}
	data, err = ioutil.ReadFile(adminPath(dir, LogFile))
	switch {
	case err == nil:
		if err := l.parse(data, true); err != nil {
			return nil, errors.E(op, errors.Path(adminPath(dir, LogFile)), err)
		}
		// The journal must be folded in before it is appended to again.
		l.dirty = true
	case !os.IsNotExist(err):
		return nil, errors.E(op, errors.Path(dir), errors.IO, err)
	}
	switch unix.Access(filepath.Join(dir, AdminDir), unix.W_OK) {
	case unix.EACCES, unix.EROFS:
		l.readOnly = true
	}
	return l, nil
}

func (l *List) parse(data []byte, journal bool) error {
	s := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; s.Scan(); n++ {
		line := s.Text()
		if line == "" {
			continue
		}
		remove := false
		if journal {
			if len(line) < 2 || line[1] != ' ' || (line[0] != 'A' && line[0] != 'R') {
				log.Debug.Printf("entries: %s: ignoring journal line %d: %q", l.dir, n, line)
				continue
			}
			remove = line[0] == 'R'
			line = line[2:]
		}
		if line == "D" {
			l.subdirs = !remove
			continue
		}
		e, err := Parse(line)
		if err != nil {
			if journal {
				log.Debug.Printf("entries: %s: ignoring journal line %d: %v", l.dir, n, err)
				continue
			}
			return errors.E(errors.Syntax, errors.Errorf("line %d: %v", n, err))
		}
		if remove {
			l.remove(e.Name)
		} else {
			l.add(e)
		}
	}
	return s.Err()
}

// Dir returns the working directory the list describes.
func (l *List) Dir() string { return l.dir }

// Get returns the entry with the given name.
func (l *List) Get(name string) (*Entry, error) {
	const op errors.Op = "entries.Get"
	if i := l.index(name); i >= 0 {
		e := *l.entries[i]
		return &e, nil
	}
	return nil, errors.E(op, errors.Path(filepath.Join(l.dir, name)), errors.NotExist)
}

// Entries returns a copy of the entries in order.
func (l *List) Entries() []*Entry {
	out := make([]*Entry, len(l.entries))
	for i, e := range l.entries {
		c := *e
		out[i] = &c
	}
	return out
}

// Files returns the names of the file entries in order.
func (l *List) Files() []string {
	var names []string
	for _, e := range l.entries {
		if !e.Dir {
			names = append(names, e.Name)
		}
	}
	return names
}

// Dirs returns the names of the directory entries in order.
func (l *List) Dirs() []string {
	var names []string
	for _, e := range l.entries {
		if e.Dir {
			names = append(names, e.Name)
		}
	}
	return names
}

// Add records e, replacing any entry with the same name, and journals
// the change.
func (l *List) Add(e *Entry) error {
	const op errors.Op = "entries.Add"
	if e.Name == "" || strings.ContainsRune(e.Name, '/') {
		return errors.E(op, errors.Invalid, errors.Errorf("bad entry name %q", e.Name))
	}
	c := *e
	l.add(&c)
	if err := l.journal("A " + c.String()); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Remove deletes the entry with the given name and journals the change.
func (l *List) Remove(name string) error {
	const op errors.Op = "entries.Remove"
	i := l.index(name)
	if i < 0 {
		return errors.E(op, errors.Path(filepath.Join(l.dir, name)), errors.NotExist)
	}
	e := l.entries[i]
	l.remove(name)
	if err := l.journal("R " + e.String()); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// SetSubdirs records whether the list names every subdirectory.
func (l *List) SetSubdirs(all bool) {
	if l.subdirs != all {
		l.subdirs = all
		l.dirty = true
	}
}

func (l *List) index(name string) int {
	for i, e := range l.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (l *List) add(e *Entry) {
	if i := l.index(e.Name); i >= 0 {
		l.entries[i] = e
		return
	}
	l.entries = append(l.entries, e)
}

func (l *List) remove(name string) {
	if i := l.index(name); i >= 0 {
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	}
}

// journal appends line to Entries.Log, or marks the list dirty if the
// journal cannot be used.
func (l *List) journal(line string) error {
	l.dirty = true
	if l.readOnly {
		return nil
	}
	f, err := os.OpenFile(adminPath(l.dir, LogFile), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0666)
	if os.IsNotExist(err) {
		// No CVS directory yet; Close will create Entries.
		return nil
	}
	if err != nil {
		return errors.E(errors.IO, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return errors.E(errors.IO, err)
	}
	return f.Close()
}

// Bytes returns the contents of the Entries file for the list.
func (l *List) Bytes() []byte {
	var buf bytes.Buffer
	for _, e := range l.entries {
		buf.WriteString(e.String())
		buf.WriteByte('\n')
	}
	if l.subdirs {
		buf.WriteString("D\n")
	}
	return buf.Bytes()
}

// Close writes the list to CVS/Entries, through CVS/Entries.Backup and a
// rename, and removes the journal. Close on an unchanged or read-only
// list writes nothing.
func (l *List) Close() error {
	const op errors.Op = "entries.Close"
	if !l.dirty || l.readOnly {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(l.dir, AdminDir), 0777); err != nil {
		return errors.E(op, errors.Path(l.dir), errors.IO, err)
	}
	backup := adminPath(l.dir, BackupFile)
	if err := writeFile(backup, l.Bytes()); err != nil {
		return errors.E(op, errors.Path(backup), err)
	}
	if err := os.Rename(backup, adminPath(l.dir, EntriesFile)); err != nil {
		return errors.E(op, errors.Path(l.dir), errors.IO, err)
	}
	if err := os.Remove(adminPath(l.dir, LogFile)); err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.Path(l.dir), errors.IO, err)
	}
	l.dirty = false
	return nil
}

func writeFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.E(errors.IO, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.E(errors.IO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.E(errors.IO, err)
	}
	if err := f.Close(); err != nil {
		return errors.E(errors.IO, err)
	}
	return nil
}
