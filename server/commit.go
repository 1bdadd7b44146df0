// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"path"

	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
	"cvs.io/repository"
)

// pending is a file to be committed.
type pending struct {
	d      *dirState
	f      *fileState
	rev    rcsnum.Num // rcs.HeadRev, a branch, or an explicit revision
	old    string     // previous revision, "" for a new file
	remove bool
}

func commit(s *Session, args string) error {
	const op errors.Op = "server.commit"
	var msg, rev string
	var local, force bool
	fs := flagSet("commit")
	fs.StringVarP(&msg, "message", "m", "", "log message")
	fs.StringVarP(&rev, "revision", "r", "", "commit to this revision or branch")
	fs.BoolVarP(&local, "local", "l", false, "do not recurse into subdirectories")
	fs.BoolVarP(&force, "force", "f", false, "commit unmodified files")
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	if s.noexec {
		return errors.E(op, errors.Invalid, errors.Str("cannot commit with -n"))
	}
	ts, err := s.targets(files, local)
	if err != nil {
		return errors.E(op, err)
	}

	var dirs []string
	for _, t := range ts {
		if !s.repo.IsDir(t.d.repo) {
			for _, name := range s.files(t, false) {
				if t.d.file(name).entry != nil {
					s.e("cvs commit: there is no repository %s", s.repoDir(t.d.repo))
					return errors.E(op, errors.NotExist, errors.Str("correct above errors first!"))
				}
			}
			continue
		}
		dirs = append(dirs, t.d.repo)
	}
	if len(dirs) == 0 {
		return nil
	}
	unlock, err := s.writeLock(dirs)
	if err != nil {
		return errors.E(op, err)
	}
	defer unlock()

	var work []*pending
	bad := false
	for _, t := range ts {
		for _, name := range s.files(t, false) {
			p, ok, err := s.checkCommit(t.d, t.d.file(name), rev, force)
			if err != nil {
				return errors.E(op, err)
			}
			if !ok {
				bad = true
				continue
			}
			if p != nil {
				work = append(work, p)
			}
		}
	}
	if bad {
		s.e("cvs [commit aborted]: correct above errors first!")
		s.failed = true
		return nil
	}
	for _, p := range work {
		if err := s.commitFile(p, msg); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// checkCommit decides whether a file needs committing and whether it can
// be. It reports problems to the client and returns ok false for them.
func (s *Session) checkCommit(d *dirState, f *fileState, rev string, force bool) (p *pending, ok bool, err error) {
	fpath := d.path(f.name)
	e := f.entry
	if e == nil {
		if f.present {
			s.e("cvs commit: use `cvs add' to create an entry for %s", fpath)
			return nil, false, nil
		}
		return nil, true, nil
	}
	if !e.Removed() && !s.present(f) {
		s.e("cvs commit: Up-to-date check failed for `%s'", fpath)
		s.e("cvs commit: %s was lost", fpath)
		return nil, false, nil
	}
	changed := e.Added() || e.Removed() || !s.unmodified(d, f) || (force && f.haveData)
	if !changed {
		return nil, true, nil
	}
	if !e.Removed() && !f.haveData {
		return nil, false, errors.E(errors.Path(fpath), errors.Protocol, errors.Str("modified file sent without contents"))
	}
	if e.Conflict != "" && f.haveData && hasConflictMarkers(f.data) {
		s.e("cvs commit: file `%s' had a conflict and has not been modified", fpath)
		return nil, false, nil
	}

	p = &pending{d: d, f: f, rev: rcs.HeadRev, remove: e.Removed()}
	sel, err := stickyTag(e.Tag)
	if err != nil {
		return nil, false, err
	}
	if sel.Tag != "" || !sel.Date.IsZero() {
		if !sel.Date.IsZero() {
			s.e("cvs commit: cannot commit with sticky date for file `%s'", fpath)
			return nil, false, nil
		}
		branch, isBranch, err := s.branchOf(d, f.name, sel.Tag)
		if err != nil {
			return nil, false, err
		}
		if !isBranch && !e.Added() {
			s.e("cvs commit: sticky tag `%s' for file `%s' is not a branch", sel.Tag, fpath)
			return nil, false, nil
		}
		if isBranch {
			p.rev = branch
		}
	}
	if rev != "" {
		n, err := s.commitRev(d, f.name, rev)
		if err != nil {
			s.e("cvs commit: %s: %s", fpath, message(err))
			return nil, false, nil
		}
		p.rev = n
	}

	// Up-to-date check: the entry's revision must be the tip of the line
	// being committed to.
	tip, exists, dead, err := s.lookup(d.repo, f.name, tipSelector(p.rev))
	if err != nil {
		return nil, false, err
	}
	switch {
	case e.Added():
		if exists && !dead {
			s.e("cvs commit: file `%s' has been added, but already exists", fpath)
			return nil, false, nil
		}
	case !exists:
		s.e("cvs commit: Up-to-date check failed for `%s'", fpath)
		return nil, false, nil
	case rev == "" && !tip.Equal(mustNum(e)):
		s.e("cvs commit: Up-to-date check failed for `%s'", fpath)
		return nil, false, nil
	}
	if !e.Added() {
		p.old = mustNum(e).String()
	}
	return p, true, nil
}

// tipSelector returns the selector for the tip of the line a commit
// to rev extends.
func tipSelector(rev rcsnum.Num) repository.Selector {
	if rev.IsBranch() {
		return repository.Selector{Tag: rev.String()}
	}
	return repository.Selector{}
}

// mustNum returns the revision of an entry known to have one.
func mustNum(e *entries.Entry) rcsnum.Num {
	n, _ := e.Num()
	return n
}

// branchOf resolves a sticky tag of a file to the branch it names.
func (s *Session) branchOf(d *dirState, name, tag string) (rcsnum.Num, bool, error) {
	if n, err := rcsnum.Parse(tag); err == nil {
		return n, n.IsBranch(), nil
	}
	file, _, err := s.repo.Lookup(d.repo, name)
	if errors.Is(errors.NotExist, err) {
		return rcsnum.Num{}, true, nil
	}
	if err != nil {
		return rcsnum.Num{}, false, err
	}
	f, err := s.repo.File(file)
	if err != nil {
		return rcsnum.Num{}, false, err
	}
	defer f.Close()
	n, ok := f.Symbol(tag)
	if !ok {
		return rcsnum.Num{}, false, errors.E(errors.Path(d.path(name)), errors.NotExist, errors.Errorf("no tag %s", tag))
	}
	return n, n.IsBranch(), nil
}

// commitRev resolves the -r option of commit: a revision, a branch number
// or a branch tag.
func (s *Session) commitRev(d *dirState, name, rev string) (rcsnum.Num, error) {
	if n, err := rcsnum.Parse(rev); err == nil {
		return n, nil
	}
	n, isBranch, err := s.branchOf(d, name, rev)
	if err != nil {
		return rcsnum.Num{}, err
	}
	if !isBranch {
		return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("%s is not a branch", rev))
	}
	return n, nil
}

// commitFile records one file's new revision and tells the client.
func (s *Session) commitFile(p *pending, msg string) error {
	d, f, e := p.d, p.f, p.f.entry
	fpath := d.path(f.name)
	expand := expandMode(e.Options)
	if e.Added() && f.kopt != "" {
		expand = expandMode(f.kopt)
	}
	c := repository.Change{
		Rev:    p.rev,
		Data:   f.data,
		Log:    msg,
		Author: s.cfg.User,
		Date:   f.checkin,
		Expand: expand,
		Mode:   f.mode,
		Remove: p.remove,
	}
	rev, err := s.repo.Commit(d.repo, f.name, c)
	if err != nil {
		return err
	}
	file, _, err := s.repo.Lookup(d.repo, f.name)
	if err != nil {
		return err
	}
	if p.remove {
		s.m("Removing %s;", fpath)
	} else {
		s.m("Checking in %s;", fpath)
	}
	s.m("%s  <--  %s", file, f.name)
	switch {
	case p.remove:
		s.m("new revision: delete; previous revision: %s", p.old)
	case p.old == "":
		s.m("initial revision: %s", rev)
	default:
		s.m("new revision: %s; previous revision: %s", rev, p.old)
	}
	s.m("done")

	if p.remove {
		s.sendPath("Remove-entry", d, f.name)
		s.history(repository.HistoryRemove, d, f.name, rev.String())
		return nil
	}
	kind := byte(repository.HistoryCommit)
	if p.old == "" {
		kind = repository.HistoryAdd
	}
	s.history(kind, d, f.name, rev.String())

	ne := &entries.Entry{Name: f.name, Rev: rev.String(), Options: options(expand), Tag: e.Tag}
	r, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: rev.String()}, expand)
	if err != nil {
		return err
	}
	if !bytes.Equal(r.Data, f.data) {
		// Keywords were expanded; the client needs the new text.
		s.sendFile("Updated", d, ne, f.mode, r.Data)
		return nil
	}
	s.sendEntry("Checked-in", d, ne)
	return nil
}

func add(s *Session, args string) error {
	const op errors.Op = "server.add"
	var kflag, msg string
	fs := flagSet("add")
	fs.StringVarP(&kflag, "keywords", "k", "", "keyword expansion mode")
	fs.StringVarP(&msg, "message", "m", "", "file description")
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	if len(files) == 0 {
		return errors.E(op, errors.Invalid, errors.Str("no files specified"))
	}
	if kflag != "" && !rcs.ValidExpand(kflag) {
		return errors.E(op, errors.Invalid, errors.Errorf("bad keyword expansion mode %q", kflag))
	}
	added := 0
	for _, a := range files {
		a = path.Clean(a)
		if d := s.findDir(a); d != nil {
			if err := s.addDir(d); err != nil {
				return errors.E(op, err)
			}
			continue
		}
		dir, name := path.Split(a)
		d := s.findDir(path.Clean(dir))
		if d == nil {
			s.e("cvs add: nothing known about `%s'", a)
			s.failed = true
			continue
		}
		ok, err := s.addFile(d, d.file(name), kflag)
		if err != nil {
			return errors.E(op, err)
		}
		if ok {
			added++
		}
	}
	switch {
	case added == 1:
		s.e("cvs add: use 'cvs commit' to add this file permanently")
	case added > 1:
		s.e("cvs add: use 'cvs commit' to add these files permanently")
	}
	return nil
}

func (s *Session) findDir(local string) *dirState {
	for _, d := range s.dirs {
		if d.local == local {
			return d
		}
	}
	return nil
}

// addDir creates a directory in the repository.
func (s *Session) addDir(d *dirState) error {
	if s.repo.IsDir(d.repo) {
		s.e("cvs add: directory %s already exists in the repository", d.local)
		return nil
	}
	if s.noexec {
		return nil
	}
	if err := s.repo.MkDir(d.repo); err != nil {
		return err
	}
	s.m("Directory %s added to the repository", path.Join(s.repo.Root(), d.repo))
	if tag := d.sticky; tag != "" {
		s.m("--> Using per-directory sticky tag `%s'", tag[1:])
	}
	return nil
}

// addFile schedules a file for addition, or restores a removed one.
func (s *Session) addFile(d *dirState, f *fileState, kflag string) (bool, error) {
	p := d.path(f.name)
	e := f.entry
	switch {
	case e != nil && e.Removed():
		rev := e.Rev[1:]
		r, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: rev}, expandMode(e.Options))
		if err != nil {
			return false, err
		}
		ne := *e
		ne.Rev, ne.Timestamp = rev, ""
		if !s.noexec {
			s.sendFile("Updated", d, &ne, r.Mode, r.Data)
		}
		s.e("cvs add: %s, version %s, resurrected", p, rev)
		return false, nil
	case e != nil && e.Added():
		s.e("cvs add: %s has already been entered", p)
		s.failed = true
		return false, nil
	case e != nil:
		s.e("cvs add: %s already exists, with version number %s", p, e.Rev)
		s.failed = true
		return false, nil
	case !f.present:
		s.e("cvs add: nothing known about `%s'", p)
		s.failed = true
		return false, nil
	}
	sel, err := stickyTag(d.sticky)
	if err != nil {
		return false, err
	}
	rev, exists, dead, err := s.lookup(d.repo, f.name, sel)
	if err != nil {
		return false, err
	}
	switch {
	case exists && !dead:
		s.e("cvs add: %s added independently by second party", p)
		s.failed = true
		return false, nil
	case exists && !rev.IsZero():
		s.e("cvs add: re-adding file `%s' (in place of dead revision %s)", p, rev)
	case d.sticky != "" && d.sticky[0] == 'T':
		s.e("cvs add: scheduling %s `%s' for addition on branch `%s'", "file", p, d.sticky[1:])
	default:
		s.e("cvs add: scheduling file `%s' for addition", p)
	}
	if kflag == "" {
		kflag = expandMode(f.kopt)
	}
	tag := ""
	if d.sticky != "" && d.sticky[0] == 'T' {
		tag = d.sticky
	}
	ne := &entries.Entry{Name: f.name, Rev: "0", Timestamp: entries.InitialName + f.name, Options: options(kflag), Tag: tag}
	if !s.noexec {
		s.sendEntry("Checked-in", d, ne)
	}
	return true, nil
}

func remove(s *Session, args string) error {
	const op errors.Op = "server.remove"
	var local, force bool
	fs := flagSet("remove")
	fs.BoolVarP(&local, "local", "l", false, "do not recurse into subdirectories")
	fs.BoolVarP(&force, "force", "f", false, "delete the file before removing it")
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	ts, err := s.targets(files, local)
	if err != nil {
		return errors.E(op, err)
	}
	removed := 0
	for _, t := range ts {
		for _, name := range s.files(t, false) {
			if s.removeFile(t.d, t.d.file(name), t.names != nil) {
				removed++
			}
		}
	}
	switch {
	case removed == 1:
		s.e("cvs remove: use 'cvs commit' to remove this file permanently")
	case removed > 1:
		s.e("cvs remove: use 'cvs commit' to remove these files permanently")
	}
	return nil
}

// removeFile schedules a file for removal and reports whether it did.
func (s *Session) removeFile(d *dirState, f *fileState, named bool) bool {
	p := d.path(f.name)
	e := f.entry
	switch {
	case e == nil:
		if named {
			s.e("cvs remove: nothing known about `%s'", p)
			s.failed = true
		}
		return false
	case f.present:
		s.e("cvs remove: file `%s' still in working directory", p)
		s.failed = true
		return false
	case e.Removed():
		s.e("cvs remove: file `%s' already scheduled for removal", p)
		return false
	case e.Added():
		if !s.noexec {
			s.sendPath("Remove-entry", d, f.name)
		}
		s.e("cvs remove: removed `%s'", p)
		return false
	}
	ne := *e
	ne.Rev = "-" + e.Rev
	ne.Timestamp = entries.DummyTimestamp
	ne.Conflict = ""
	if !s.noexec {
		s.sendEntry("Checked-in", d, &ne)
	}
	s.e("cvs remove: scheduling `%s' for removal", p)
	return true
}
