// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"crypto/md5"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	shutil "github.com/termie/go-shutil"

	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/log"
	"cvs.io/protocol"
)

// handler handles a response. The args are the rest of the response
// line after its name.
type handler func(s *Session, args string) error

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"Valid-requests":         validRequests,
		"Checked-in":             checkedIn,
		"New-entry":              newEntry,
		"Checksum":               checksum,
		"Copy-file":              copyFile,
		"Updated":                updated,
		"Created":                updated,
		"Update-existing":        updated,
		"Merged":                 merged,
		"Patched":                patched,
		"Mod-time":               modTime,
		"Removed":                removed,
		"Remove-entry":           removeEntry,
		"Set-static-directory":   setStatic,
		"Clear-static-directory": clearStatic,
		"Set-sticky":             setSticky,
		"Clear-sticky":           clearSticky,
		"Module-expansion":       moduleExpansion,
		"M":                      message,
		"Mbinary":                messageBinary,
		"E":                      errorMessage,
	}
}

func validRequests(s *Session, args string) error {
	s.valid = protocol.ParseSet(args)
	return nil
}

// target is the file named by a response.
type target struct {
	local string // local directory, slash-separated
	repo  string // repository directory, relative to the root
	name  string
	list  *entries.List
}

// file returns the local file name of the target.
func (t *target) file(s *Session) string {
	return filepath.Join(s.path(t.local), t.name)
}

// readTarget reads the two lines that name a file in a response: args,
// the local directory, and the repository file on the next line.
func (s *Session) readTarget(args string) (*target, error) {
	repoFile, err := s.conn.ReadLine()
	if err != nil {
		return nil, eof(err)
	}
	local, err := localDir(args)
	if err != nil {
		return nil, err
	}
	dir, name := path.Split(repoFile)
	if name == "" || name == "." || name == ".." {
		return nil, errors.E(errors.Path(repoFile), errors.Protocol, errors.Str("bad repository file name"))
	}
	rel, err := s.relative(dir)
	if err != nil {
		return nil, err
	}
	l, err := s.list(local, rel)
	if err != nil {
		return nil, err
	}
	return &target{local: local, repo: rel, name: name, list: l}, nil
}

// readDir reads the two lines that name a directory in a response.
func (s *Session) readDir(args string) (local, rel string, err error) {
	repoDir, err := s.conn.ReadLine()
	if err != nil {
		return "", "", eof(err)
	}
	if local, err = localDir(args); err != nil {
		return "", "", err
	}
	if rel, err = s.relative(repoDir); err != nil {
		return "", "", err
	}
	if _, err := s.list(local, rel); err != nil {
		return "", "", err
	}
	return local, rel, nil
}

// localDir checks and cleans the local directory of a response.
func localDir(args string) (string, error) {
	local := path.Clean(strings.TrimSuffix(args, "/"))
	if local == "" || path.IsAbs(local) || local == ".." || strings.HasPrefix(local, "../") {
		return "", errors.E(errors.Path(args), errors.Protocol, errors.Str("bad local directory"))
	}
	return local, nil
}

func eof(err error) error {
	if err == io.EOF {
		return errors.E(errors.Protocol, errors.Str("end of file from server"))
	}
	return err
}

// list returns the entries of the local directory, creating the
// directory and its administrative files if they do not exist.
func (s *Session) list(local, rel string) (*entries.List, error) {
	if l, ok := s.lists[local]; ok {
		return l, nil
	}
	dir := s.path(local)
	if !entries.IsWorkDir(dir) {
		if s.cfg.NoExec {
			l, err := entries.Open(dir)
			if err != nil {
				return nil, err
			}
			s.lists[local] = l
			return l, nil
		}
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, errors.E(errors.Path(dir), errors.IO, err)
		}
		if err := entries.Create(dir, s.cfg.Root.String(), rel); err != nil {
			return nil, err
		}
		if err := s.addDirEntry(local); err != nil {
			return nil, err
		}
	}
	l, err := entries.Open(dir)
	if err != nil {
		return nil, err
	}
	s.lists[local] = l
	return l, nil
}

// addDirEntry records a new directory in its parent's Entries, if the
// parent is part of the working copy.
func (s *Session) addDirEntry(local string) error {
	if local == "." {
		return nil
	}
	parent := path.Dir(local)
	if !entries.IsWorkDir(s.path(parent)) {
		return nil
	}
	rel := ""
	if r, err := entries.ReadRepository(s.path(parent)); err == nil {
		rel = r
	}
	l, err := s.list(parent, rel)
	if err != nil {
		return err
	}
	return l.Add(&entries.Entry{Dir: true, Name: path.Base(local)})
}

// readEntry reads an entry line naming the target's file.
func (s *Session) readEntry(t *target) (*entries.Entry, error) {
	line, err := s.conn.ReadLine()
	if err != nil {
		return nil, eof(err)
	}
	e, err := entries.Parse(line)
	if err != nil {
		return nil, errors.E(errors.Protocol, err)
	}
	if e.Dir || e.Name != t.name {
		return nil, errors.E(errors.Path(line), errors.Protocol, errors.Errorf("entry does not name %s", t.name))
	}
	return e, nil
}

func checkedIn(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	e, err := s.readEntry(t)
	if err != nil {
		return err
	}
	if s.cfg.NoExec {
		return nil
	}
	if e.Timestamp == "" && !e.Added() && !e.Removed() {
		if fi, err := os.Stat(t.file(s)); err == nil {
			e.Timestamp = entries.FormatTime(fi.ModTime())
		}
	}
	return t.list.Add(e)
}

func newEntry(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	e, err := s.readEntry(t)
	if err != nil {
		return err
	}
	if s.cfg.NoExec {
		return nil
	}
	if e.Timestamp == "" {
		e.Timestamp = entries.DummyTimestamp
	}
	return t.list.Add(e)
}

func checksum(s *Session, args string) error {
	if len(args) != 2*md5.Size {
		return errors.E(errors.Protocol, errors.Errorf("bad checksum %q", args))
	}
	s.checksum = strings.ToLower(args)
	return nil
}

func copyFile(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	newName, err := s.conn.ReadLine()
	if err != nil {
		return eof(err)
	}
	if newName == "" || strings.ContainsRune(newName, '/') {
		return errors.E(errors.Path(newName), errors.Protocol, errors.Str("bad Copy-file name"))
	}
	if s.cfg.NoExec {
		return nil
	}
	dst := filepath.Join(s.path(t.local), newName)
	if err := shutil.CopyFile(t.file(s), dst, false); err != nil {
		return errors.E(errors.Path(dst), errors.IO, err)
	}
	return nil
}

// writeFile replaces the target's file with data and returns its
// modification time.
func (s *Session) writeFile(t *target, mode os.FileMode, data []byte) (time.Time, error) {
	name := t.file(s)
	tmp := filepath.Join(s.path(t.local), "_new_"+t.name)
	mode = mode.Perm() &^ s.cfg.Umask
	if s.cfg.ReadOnly {
		mode &^= 0222
	}
	os.Remove(tmp)
	if err := ioutil.WriteFile(tmp, data, mode); err != nil {
		return time.Time{}, errors.E(errors.Path(name), errors.IO, err)
	}
	if err := os.Chmod(tmp, mode); err != nil {
		os.Remove(tmp)
		return time.Time{}, errors.E(errors.Path(name), errors.IO, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return time.Time{}, errors.E(errors.Path(name), errors.IO, err)
	}
	if !s.modTime.IsZero() {
		if err := os.Chtimes(name, s.modTime, s.modTime); err != nil {
			log.Debug.Printf("client: %v", err)
		}
		s.modTime = time.Time{}
	}
	fi, err := os.Stat(name)
	if err != nil {
		return time.Time{}, errors.E(errors.Path(name), errors.IO, err)
	}
	return fi.ModTime(), nil
}

// updated handles Updated, Created and Update-existing, which carry the
// whole of a new revision.
func updated(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	e, err := s.readEntry(t)
	if err != nil {
		return err
	}
	mode, data, err := s.conn.ReceiveFile()
	if err != nil {
		return err
	}
	if s.cfg.NoExec {
		return nil
	}
	mtime, err := s.writeFile(t, mode, data)
	if err != nil {
		return err
	}
	e.Timestamp = entries.FormatTime(mtime)
	return t.list.Add(e)
}

func merged(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	e, err := s.readEntry(t)
	if err != nil {
		return err
	}
	mode, data, err := s.conn.ReceiveFile()
	if err != nil {
		return err
	}
	if s.cfg.NoExec {
		return nil
	}
	mtime, err := s.writeFile(t, mode, data)
	if err != nil {
		return err
	}
	if e.Timestamp == "" {
		e.Timestamp = entries.MergeTimestamp
	}
	if e.Conflict == "=" {
		e.Conflict = entries.FormatTime(mtime)
	}
	return t.list.Add(e)
}

func patched(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	e, err := s.readEntry(t)
	if err != nil {
		return err
	}
	mode, diff, err := s.conn.ReceiveFile()
	if err != nil {
		return err
	}
	sum := s.checksum
	s.checksum = ""
	if s.cfg.NoExec {
		return nil
	}
	name := t.file(s)
	old, err := ioutil.ReadFile(name)
	if err != nil {
		return errors.E(errors.Path(name), errors.IO, err)
	}
	data, err := applyPatch(old, diff)
	if err != nil {
		return errors.E(errors.Path(name), err)
	}
	if sum != "" && fmt.Sprintf("%x", md5.Sum(data)) != sum {
		return errors.E(errors.Path(name), errors.Invalid, errors.Str("checksum failure after patch"))
	}
	mtime, err := s.writeFile(t, mode, data)
	if err != nil {
		return err
	}
	e.Timestamp = entries.FormatTime(mtime)
	return t.list.Add(e)
}

// modTimeLayouts are the forms of the Mod-time date.
var modTimeLayouts = []string{
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	time.RFC1123Z,
}

func modTime(s *Session, args string) error {
	for _, layout := range modTimeLayouts {
		if t, err := time.Parse(layout, args); err == nil {
			s.modTime = t
			return nil
		}
	}
	return errors.E(errors.Protocol, errors.Errorf("bad Mod-time %q", args))
}

func removed(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	if s.cfg.NoExec {
		return nil
	}
	if err := os.Remove(t.file(s)); err != nil && !os.IsNotExist(err) {
		return errors.E(errors.Path(t.file(s)), errors.IO, err)
	}
	return t.remove()
}

func removeEntry(s *Session, args string) error {
	t, err := s.readTarget(args)
	if err != nil {
		return err
	}
	if s.cfg.NoExec {
		return nil
	}
	return t.remove()
}

// remove deletes the target's entry, if it has one.
func (t *target) remove() error {
	if err := t.list.Remove(t.name); err != nil && !errors.Is(errors.NotExist, err) {
		return err
	}
	return nil
}

func setStatic(s *Session, args string) error {
	local, _, err := s.readDir(args)
	if err != nil || s.cfg.NoExec {
		return err
	}
	return entries.SetStatic(s.path(local), true)
}

func clearStatic(s *Session, args string) error {
	local, _, err := s.readDir(args)
	if err != nil || s.cfg.NoExec {
		return err
	}
	return entries.SetStatic(s.path(local), false)
}

func setSticky(s *Session, args string) error {
	local, _, err := s.readDir(args)
	if err != nil {
		return err
	}
	tag, err := s.conn.ReadLine()
	if err != nil {
		return eof(err)
	}
	if s.cfg.NoExec {
		return nil
	}
	return entries.WriteTag(s.path(local), tag)
}

func clearSticky(s *Session, args string) error {
	local, _, err := s.readDir(args)
	if err != nil || s.cfg.NoExec {
		return err
	}
	return entries.WriteTag(s.path(local), "")
}

func moduleExpansion(s *Session, args string) error {
	s.modules = append(s.modules, args)
	return nil
}

func message(s *Session, args string) error {
	s.stdout(args)
	return nil
}

func messageBinary(s *Session, args string) error {
	data, err := s.conn.ReceiveSized()
	if err != nil {
		return err
	}
	_, err = s.cfg.Stdout.Write(data)
	return err
}

func errorMessage(s *Session, args string) error {
	s.stderr(args)
	return nil
}
