// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"crypto/md5"
	"fmt"
	"path"

	"github.com/spf13/pflag"

	"cvs.io/diff3"
	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
	"cvs.io/repository"
)

// updateOptions are the options of update and checkout.
type updateOptions struct {
	selection
	reset  bool     // -A: clear sticky tags
	clean  bool     // -C: overwrite local modifications
	dirs   bool     // -d: create new directories
	force  bool     // -f: use the head if the tag is missing
	local  bool     // -l: do not recurse
	prune  bool     // -P: handled by the client
	expand string   // -k
	joins  []string // -j
	into   string   // -d for checkout
}

func (o *updateOptions) register(f *pflag.FlagSet, checkout bool) {
	o.selection.register(f)
	f.BoolVarP(&o.reset, "reset", "A", false, "reset sticky tags")
	f.BoolVarP(&o.force, "force", "f", false, "use the head revision if the tag is not found")
	f.BoolVarP(&o.local, "local", "l", false, "do not recurse into subdirectories")
	f.BoolVarP(&o.prune, "prune", "P", false, "prune empty directories")
	f.StringVarP(&o.expand, "keywords", "k", "", "keyword expansion mode")
	f.StringArrayVarP(&o.joins, "join", "j", nil, "merge changes between revisions")
	if checkout {
		f.StringVarP(&o.into, "directory", "d", "", "check out into directory")
		return
	}
	f.BoolVarP(&o.clean, "clean", "C", false, "overwrite locally modified files")
	f.BoolVarP(&o.dirs, "dirs", "d", false, "create directories new in the repository")
}

// want returns the selector and sticky field for a file, from the
// options if they set one and otherwise from the entry or directory.
func (o *updateOptions) want(d *dirState, e *entries.Entry) (repository.Selector, string, error) {
	switch {
	case o.reset && !o.set():
		return repository.Selector{}, "", nil
	case o.set():
		return o.selector()
	case e != nil && e.Tag != "":
		sel, err := stickyTag(e.Tag)
		return sel, e.Tag, err
	}
	sel, err := stickyTag(d.sticky)
	return sel, d.sticky, err
}

func (o *updateOptions) expandFor(e *entries.Entry) string {
	switch {
	case o.expand != "":
		return o.expand
	case e != nil:
		return expandMode(e.Options)
	}
	return ""
}

func update(s *Session, args string) error {
	const op errors.Op = "server.update"
	var o updateOptions
	fs := flagSet("update")
	o.register(fs, false)
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	if err := o.validate(); err != nil {
		return errors.E(op, err)
	}
	ts, err := s.targets(files, o.local)
	if err != nil {
		return errors.E(op, err)
	}
	for _, t := range ts {
		if err := s.updateDir(t, &o); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

func (o *updateOptions) validate() error {
	if o.expand != "" && !rcs.ValidExpand(o.expand) {
		return errors.E(errors.Invalid, errors.Errorf("bad keyword expansion mode %q", o.expand))
	}
	if len(o.joins) > 2 {
		return errors.E(errors.Invalid, errors.Str("only two -j options can be specified"))
	}
	return nil
}

func (s *Session) updateDir(t target, o *updateOptions) error {
	d := t.d
	unlock, err := s.readLock(d.repo)
	if err != nil {
		return err
	}
	defer unlock()
	if t.names == nil {
		s.note("cvs update: Updating %s", d.local)
	}
	for _, name := range s.files(t, true) {
		if err := s.updateFile(d, d.file(name), o); err != nil {
			return err
		}
	}
	if t.names == nil {
		for _, q := range d.questionable {
			if _, known := d.files[q]; !known && !s.ignore.Match(q) {
				s.m("? %s", d.path(q))
			}
		}
	}
	if o.set() || o.reset {
		_, tag, err := o.want(d, nil)
		if err != nil {
			return err
		}
		if !s.noexec {
			s.sendSticky(d.local, d.repo, tag)
		}
	}
	if !o.dirs || o.local || d.static || t.names != nil || !s.repo.IsDir(d.repo) {
		return nil
	}
	subdirs, err := s.repo.Dirs(d.repo)
	if err != nil {
		return err
	}
	unlock()
	for _, sub := range subdirs {
		local := path.Join(d.local, sub)
		if s.sent(local) {
			continue
		}
		if err := s.checkoutDir(local, path.Join(d.repo, sub), o); err != nil {
			return err
		}
	}
	return nil
}

// sent reports whether the client sent the local directory.
func (s *Session) sent(local string) bool {
	for _, d := range s.dirs {
		if d.local == local {
			return true
		}
	}
	return false
}

// updateFile brings one file up to date.
func (s *Session) updateFile(d *dirState, f *fileState, o *updateOptions) error {
	p := d.path(f.name)
	e := f.entry
	sel, tag, err := o.want(d, e)
	if err != nil {
		return err
	}
	rev, exists, dead, err := s.lookup(d.repo, f.name, sel)
	if err != nil {
		return err
	}
	if exists && dead && o.force && sel.Tag != "" {
		rev, exists, dead, err = s.lookup(d.repo, f.name, repository.Selector{})
		if err != nil {
			return err
		}
		tag = ""
	}
	present := s.present(f)
	switch {
	case !exists || dead:
		return s.updateGone(d, f, p, exists)
	case e == nil:
		for _, q := range d.questionable {
			if q == f.name {
				s.e("cvs update: move away %s; it is in the way", p)
				s.m("C %s", p)
				return nil
			}
		}
		return s.updateTo(d, f, p, rev, tag, o, "Created", "U")
	case e.Added():
		s.e("cvs update: conflict: %s created independently by second party", p)
		s.m("C %s", p)
		return nil
	case e.Removed():
		s.m("R %s", p)
		return nil
	}

	old, err := e.Num()
	if err != nil {
		return err
	}
	modified := present && !s.unmodified(d, f)
	conflict := modified && e.Conflict != "" && f.haveData && hasConflictMarkers(f.data)
	switch {
	case !present:
		if e.Rev == rev.String() {
			s.e("cvs update: warning: %s was lost", p)
		}
		return s.updateTo(d, f, p, rev, tag, o, "Updated", "U")
	case old.Equal(rev) && modified && o.clean:
		s.copyFile(d, f.name, ".#"+f.name+"."+e.Rev)
		s.e("(Locally modified %s moved to .#%s.%s)", f.name, f.name, e.Rev)
		return s.updateTo(d, f, p, rev, tag, o, "Updated", "U")
	case old.Equal(rev) && modified:
		if tag != e.Tag || (o.expand != "" && options(o.expand) != e.Options) {
			ne := *e
			ne.Tag = tag
			if o.expand != "" {
				ne.Options = options(o.expand)
			}
			s.sendEntry("Checked-in", d, &ne)
		}
		if conflict {
			s.m("C %s", p)
		} else {
			s.m("M %s", p)
		}
		return s.join(d, f, p, rev, tag, o, f.data)
	case old.Equal(rev):
		if tag != e.Tag || (o.expand != "" && options(o.expand) != e.Options) {
			return s.updateTo(d, f, p, rev, tag, o, "Updated", "U")
		}
		return s.join(d, f, p, rev, tag, o, nil)
	case !modified:
		return s.patch(d, f, p, old, rev, tag, o)
	case o.clean:
		s.copyFile(d, f.name, ".#"+f.name+"."+e.Rev)
		s.e("(Locally modified %s moved to .#%s.%s)", f.name, f.name, e.Rev)
		return s.updateTo(d, f, p, rev, tag, o, "Updated", "U")
	}
	return s.merge(d, f, p, old, rev, tag, o)
}

// updateGone handles a file that is not in the repository, or is dead
// in the revision wanted.
func (s *Session) updateGone(d *dirState, f *fileState, p string, exists bool) error {
	e := f.entry
	switch {
	case e == nil:
		return nil
	case e.Added():
		s.m("A %s", p)
		return nil
	case e.Removed():
		if !s.noexec {
			s.sendPath("Remove-entry", d, f.name)
		}
		return nil
	case s.present(f) && !s.unmodified(d, f):
		s.e("cvs update: conflict: %s is modified but no longer in the repository", p)
		s.m("C %s", p)
		return nil
	}
	if exists {
		s.e("cvs update: %s is no longer in the repository", p)
	} else {
		s.e("cvs update: warning: %s is not (any longer) pertinent", p)
	}
	if !s.noexec {
		s.sendPath("Removed", d, f.name)
	}
	return nil
}

// updateTo sends the whole of revision rev of a file.
func (s *Session) updateTo(d *dirState, f *fileState, p string, rev rcsnum.Num, tag string, o *updateOptions, response, status string) error {
	r, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: rev.String()}, o.expandFor(f.entry))
	if err != nil {
		return err
	}
	s.m("%s %s", status, p)
	if s.noexec {
		return nil
	}
	e := &entries.Entry{
		Name:    f.name,
		Rev:     rev.String(),
		Options: options(o.expandFor(f.entry)),
		Tag:     tag,
	}
	s.sendFile(response, d, e, r.Mode, r.Data)
	s.history(historyUpdate(response), d, f.name, rev.String())
	return s.join(d, f, p, rev, tag, o, r.Data)
}

func historyUpdate(response string) byte {
	if response == "Created" {
		return repository.HistoryCheckout
	}
	return repository.HistoryUpdate
}

// patch sends the differences between two revisions of an unmodified
// file, or the whole new revision if the client cannot apply them.
func (s *Session) patch(d *dirState, f *fileState, p string, old, rev rcsnum.Num, tag string, o *updateOptions) error {
	if !s.can("Patched") || !s.can("Checksum") || !f.present || tag != f.entry.Tag || o.expand != "" {
		return s.updateTo(d, f, p, rev, tag, o, "Updated", "U")
	}
	expand := expandMode(f.entry.Options)
	from, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: old.String()}, expand)
	if err != nil {
		return err
	}
	to, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: rev.String()}, expand)
	if err != nil {
		return err
	}
	diff := rcs.UnifiedDiff(f.name, f.name, from.Data, to.Data, 2)
	if len(diff) == 0 || len(diff) >= len(to.Data) || from.Expand == "b" {
		return s.updateTo(d, f, p, rev, tag, o, "Updated", "U")
	}
	s.m("P %s", p)
	if s.noexec {
		return nil
	}
	e := &entries.Entry{Name: f.name, Rev: rev.String(), Options: f.entry.Options, Tag: tag}
	s.send("Checksum", fmt.Sprintf("%x", md5.Sum(to.Data)))
	s.sendFile("Patched", d, e, to.Mode, diff)
	s.history(repository.HistoryUpdate, d, f.name, rev.String())
	return s.join(d, f, p, rev, tag, o, to.Data)
}

// merge merges the changes between the working file's revision and rev
// into the working file.
func (s *Session) merge(d *dirState, f *fileState, p string, old, rev rcsnum.Num, tag string, o *updateOptions) error {
	if !f.haveData {
		return errors.E(errors.Path(p), errors.Protocol, errors.Str("modified file sent without contents"))
	}
	expand := o.expandFor(f.entry)
	if expand == "b" {
		s.e("cvs update: nonmergeable file needs merge")
		s.e("cvs update: revision %s from repository is now in %s", rev, p)
		s.e("cvs update: file from working directory is now in .#%s.%s", f.name, old)
		s.copyFile(d, f.name, ".#"+f.name+"."+old.String())
		return s.updateTo(d, f, p, rev, tag, o, "Updated", "C")
	}
	older, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: old.String()}, expand)
	if err != nil {
		return err
	}
	yours, err := s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: rev.String()}, expand)
	if err != nil {
		return err
	}
	res, err := diff3.Merge(f.data, older.Data, yours.Data, diff3.Options{Mode: diff3.Markers, Label1: f.name, Label3: rev.String()})
	if err != nil {
		return err
	}
	file, _, _ := s.repo.Lookup(d.repo, f.name)
	s.m("RCS file: %s", file)
	s.m("retrieving revision %s", old)
	s.m("retrieving revision %s", rev)
	s.m("Merging differences between %s and %s into %s", old, rev, f.name)
	if s.noexec {
		return nil
	}
	e := &entries.Entry{Name: f.name, Rev: rev.String(), Timestamp: entries.MergeTimestamp, Options: f.entry.Options, Tag: tag}
	if res.Conflicts > 0 {
		e.Conflict = "="
	}
	s.copyFile(d, f.name, ".#"+f.name+"."+old.String())
	s.sendFile("Merged", d, e, f.mode, res.Text)
	if res.Conflicts > 0 {
		s.e("rcsmerge: warning: conflicts during merge")
		s.e("cvs update: conflicts found in %s", p)
		s.m("C %s", p)
	} else {
		s.m("M %s", p)
	}
	return s.join(d, f, p, rev, tag, o, res.Text)
}

// join merges the changes given by the -j options into a working file
// whose revision is rev and whose contents are working, or the contents
// of rev if working is nil.
func (s *Session) join(d *dirState, f *fileState, p string, rev rcsnum.Num, tag string, o *updateOptions, working []byte) error {
	if len(o.joins) == 0 || s.noexec {
		return nil
	}
	file, _, err := s.repo.Lookup(d.repo, f.name)
	if err != nil {
		return err
	}
	rf, err := s.repo.File(file)
	if err != nil {
		return err
	}
	defer rf.Close()
	j2, err := joinRev(rf, o.joins[len(o.joins)-1])
	if errors.Is(errors.NotExist, err) {
		s.e("cvs update: file %s does not exist in %s; not merging", p, o.joins[len(o.joins)-1])
		return nil
	}
	if err != nil {
		return err
	}
	var j1 rcsnum.Num
	if len(o.joins) == 2 {
		if j1, err = joinRev(rf, o.joins[0]); err != nil {
			s.e("cvs update: file %s does not exist in %s; not merging", p, o.joins[0])
			return nil
		}
	} else {
		j1 = ancestor(rev, j2)
	}
	if j1.Equal(j2) || rf.IsDead(j2) {
		return nil
	}
	if working == nil {
		if working, err = rf.Checkout(rev); err != nil {
			return err
		}
	}
	res, err := diff3.MergeRevisions(rf, j1, j2, working, f.name)
	if err != nil {
		return err
	}
	s.m("RCS file: %s", file)
	s.m("retrieving revision %s", j1)
	s.m("retrieving revision %s", j2)
	s.m("Merging differences between %s and %s into %s", j1, j2, f.name)
	opts := ""
	if f.entry != nil {
		opts = f.entry.Options
	}
	e := &entries.Entry{Name: f.name, Rev: rev.String(), Timestamp: entries.MergeTimestamp, Options: opts, Tag: tag}
	if res.Conflicts > 0 {
		e.Conflict = "="
	}
	mode := f.mode
	if mode == 0 {
		mode = 0644
	}
	s.sendFile("Merged", d, e, mode, res.Text)
	if res.Conflicts > 0 {
		s.e("rcsmerge: warning: conflicts during merge")
		s.m("C %s", p)
	}
	return nil
}

// joinRev resolves the argument of a -j option, which may be a tag,
// optionally followed by ":date".
func joinRev(f *rcs.File, spec string) (rcsnum.Num, error) {
	sel := repository.Selector{Tag: spec}
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == ':' {
			t, err := parseDate(spec[i+1:])
			if err != nil {
				return rcsnum.Num{}, err
			}
			sel = repository.Selector{Tag: spec[:i], Date: t}
			break
		}
	}
	return repository.Resolve(f, sel)
}

// ancestor returns the latest common ancestor of revisions a and b.
func ancestor(a, b rcsnum.Num) rcsnum.Num {
	for {
		switch {
		case a.Len() > b.Len():
			a = a.Prefix(a.Len() - 2)
		case b.Len() > a.Len():
			b = b.Prefix(b.Len() - 2)
		case a.Len() > 2 && !a.Prefix(a.Len()-1).Equal(b.Prefix(b.Len()-1)):
			a, b = a.Prefix(a.Len()-2), b.Prefix(b.Len()-2)
		default:
			if rcsnum.Cmp(a, b, 0) < 0 {
				return a
			}
			return b
		}
	}
}

func checkout(s *Session, args string) error {
	const op errors.Op = "server.checkout"
	var o updateOptions
	fs := flagSet("checkout")
	o.register(fs, true)
	modules, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	if err := o.validate(); err != nil {
		return errors.E(op, err)
	}
	if len(modules) == 0 {
		return errors.E(op, errors.Invalid, errors.Str("must specify at least one module or directory"))
	}
	if o.into != "" && len(modules) > 1 {
		return errors.E(op, errors.Invalid, errors.Str("-d can be used with only one module"))
	}
	for _, m := range modules {
		dir, err := s.repo.ExpandModule(m)
		if err != nil {
			s.e("cvs checkout: cannot find module `%s' - ignored", m)
			s.failed = true
			continue
		}
		local := path.Clean(m)
		if o.into != "" {
			local = path.Clean(o.into)
		}
		if err := s.checkoutDir(local, dir, &o); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// checkoutDir checks out the repository directory dir into the local
// directory, which the client does not have yet.
func (s *Session) checkoutDir(local, dir string, o *updateOptions) error {
	d := &dirState{local: local, repo: dir, files: make(map[string]*fileState)}
	unlock, err := s.readLock(dir)
	if err != nil {
		return err
	}
	s.note("cvs %s: Updating %s", commandName(s.command), local)
	_, tag, err := o.want(d, nil)
	if err != nil {
		unlock()
		return err
	}
	if !s.noexec {
		s.sendSticky(local, dir, tag)
		s.sendStatic(local, dir, false)
	}
	names, err := s.repo.Files(dir)
	if err != nil {
		unlock()
		return err
	}
	for _, name := range names {
		if err := s.updateFile(d, d.file(name), o); err != nil {
			unlock()
			return err
		}
	}
	var subdirs []string
	if !o.local {
		subdirs, err = s.repo.Dirs(dir)
	}
	unlock()
	if err != nil {
		return err
	}
	for _, sub := range subdirs {
		if err := s.checkoutDir(path.Join(local, sub), path.Join(dir, sub), o); err != nil {
			return err
		}
	}
	return nil
}
