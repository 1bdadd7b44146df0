// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"cvs.io/errors"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
	"cvs.io/repository"
)

func tag(s *Session, args string) error {
	const op errors.Op = "server.tag"
	var sel selection
	var del, force, branch, check, local, head bool
	fs := flagSet("tag")
	sel.register(fs)
	fs.BoolVarP(&del, "delete", "d", false, "delete the tag")
	fs.BoolVarP(&force, "force-move", "F", false, "move the tag if it exists")
	fs.BoolVarP(&branch, "branch", "b", false, "make a branch tag")
	fs.BoolVarP(&check, "check", "c", false, "check that files are unmodified")
	fs.BoolVarP(&local, "local", "l", false, "do not recurse into subdirectories")
	fs.BoolVarP(&head, "force", "f", false, "use the head revision if the tag is not found")
	rest, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	if len(rest) == 0 {
		return errors.E(op, errors.Invalid, errors.Str("usage: tag [-bcdFfl] [-r rev|-D date] tag [files...]"))
	}
	if s.noexec {
		return errors.E(op, errors.Invalid, errors.Str("cannot tag with -n"))
	}
	name, files := rest[0], rest[1:]
	if del && branch {
		return errors.E(op, errors.Invalid, errors.Str("-d makes no sense with -b"))
	}
	if err := rcs.ValidSymbol(name); err != nil || name == "HEAD" || name == "BASE" {
		return errors.E(op, errors.Invalid, errors.Errorf("tag `%s' must not contain the characters `$,.:;@'", name))
	}
	ts, err := s.targets(files, local)
	if err != nil {
		return errors.E(op, err)
	}
	if check {
		bad := false
		for _, t := range ts {
			for _, n := range s.files(t, false) {
				f := t.d.file(n)
				if f.entry != nil && (f.entry.Added() || f.entry.Removed() || !s.unmodified(t.d, f)) {
					s.e("cvs tag: %s is locally modified", t.d.path(n))
					bad = true
				}
			}
		}
		if bad {
			s.e("cvs [tag aborted]: correct the above errors first!")
			s.failed = true
			return nil
		}
	}
	for _, t := range ts {
		if !s.repo.IsDir(t.d.repo) {
			continue
		}
		unlock, err := s.writeLock([]string{t.d.repo})
		if err != nil {
			return errors.E(op, err)
		}
		s.note("cvs tag: Tagging %s", t.d.local)
		for _, n := range s.files(t, false) {
			opts := repository.TagOptions{Delete: del, Force: force, Branch: branch}
			if err := s.tagFile(t.d, t.d.file(n), name, sel, head, opts); err != nil {
				unlock()
				return errors.E(op, err)
			}
		}
		unlock()
	}
	return nil
}

// tagFile binds or deletes a tag on one file.
func (s *Session) tagFile(d *dirState, f *fileState, name string, sel selection, head bool, opts repository.TagOptions) error {
	p := d.path(f.name)
	e := f.entry
	switch {
	case e == nil:
		return nil
	case e.Added():
		s.e("cvs tag: couldn't tag added but un-commited file `%s'", p)
		return nil
	case e.Removed():
		s.e("cvs tag: skipping removed but un-commited file `%s'", p)
		return nil
	}
	if sel.set() {
		rs, _, err := sel.selector()
		if err != nil {
			return err
		}
		opts.Selector = rs
	} else {
		opts.Selector = repository.Selector{Tag: e.Rev}
	}
	num, err := s.repo.Tag(d.repo, f.name, name, opts)
	if errors.Is(errors.NotExist, err) && head && sel.set() && !opts.Delete {
		opts.Selector = repository.Selector{}
		num, err = s.repo.Tag(d.repo, f.name, name, opts)
	}
	switch {
	case errors.Is(errors.NotExist, err):
		if !opts.Delete && sel.set() {
			s.note("cvs tag: %s has no revision %s", p, sel.tag)
		}
		return nil
	case errors.Is(errors.Exist, err):
		old, _ := s.symbolOf(d, f.name, name)
		s.m("W %s : %s already exists on %s %s : NOT MOVING tag to %s", p, name, kindOf(old), old, e.Rev)
		return nil
	case err != nil:
		return err
	}
	if opts.Delete {
		s.m("D %s", p)
	} else {
		s.m("T %s", p)
	}
	s.history(repository.HistoryTag, d, f.name, num.String())
	return nil
}

func (s *Session) symbolOf(d *dirState, name, sym string) (rcsnum.Num, bool) {
	file, _, err := s.repo.Lookup(d.repo, name)
	if err != nil {
		return rcsnum.Num{}, false
	}
	f, err := s.repo.File(file)
	if err != nil {
		return rcsnum.Num{}, false
	}
	defer f.Close()
	return f.Symbol(sym)
}

func kindOf(n rcsnum.Num) string {
	if n.IsBranch() {
		return "branch"
	}
	return "version"
}

// Status values reported by status.
const (
	statusUpToDate    = "Up-to-date"
	statusModified    = "Locally Modified"
	statusAdded       = "Locally Added"
	statusRemoved     = "Locally Removed"
	statusCheckout    = "Needs Checkout"
	statusPatch       = "Needs Patch"
	statusMerge       = "Needs Merge"
	statusConflict    = "File had conflicts on merge"
	statusUnknown     = "Unknown"
	statusEntryFailed = "Entry Invalid"
)

func status(s *Session, args string) error {
	const op errors.Op = "server.status"
	var verbose, local bool
	fs := flagSet("status")
	fs.BoolVarP(&verbose, "verbose", "v", false, "list tags")
	fs.BoolVarP(&local, "local", "l", false, "do not recurse into subdirectories")
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	ts, err := s.targets(files, local)
	if err != nil {
		return errors.E(op, err)
	}
	for _, t := range ts {
		unlock, err := s.readLock(t.d.repo)
		if err != nil {
			return errors.E(op, err)
		}
		if t.names == nil {
			s.note("cvs status: Examining %s", t.d.local)
		}
		for _, n := range s.files(t, true) {
			if err := s.fileStatus(t.d, t.d.file(n), verbose); err != nil {
				unlock()
				return errors.E(op, err)
			}
		}
		unlock()
	}
	return nil
}

// fileStatus reports the status of one file.
func (s *Session) fileStatus(d *dirState, f *fileState, verbose bool) error {
	e := f.entry
	var sel repository.Selector
	var err error
	switch {
	case e != nil && e.Tag != "":
		sel, err = stickyTag(e.Tag)
	default:
		sel, err = stickyTag(d.sticky)
	}
	if err != nil {
		return err
	}
	rev, exists, dead, err := s.lookup(d.repo, f.name, sel)
	if err != nil {
		return err
	}
	present := s.present(f)
	var st string
	switch {
	case e == nil && exists && !dead:
		st = statusCheckout
	case e == nil && present:
		st = statusUnknown
	case e == nil:
		return nil
	case e.Added():
		st = statusAdded
		if exists && !dead {
			st = statusEntryFailed
		}
	case e.Removed():
		st = statusRemoved
	case !exists || dead:
		st = statusEntryFailed
	case !present:
		st = statusCheckout
	case e.Rev == rev.String():
		switch {
		case s.unmodified(d, f):
			st = statusUpToDate
		case e.Conflict != "" && f.haveData && hasConflictMarkers(f.data):
			st = statusConflict
		default:
			st = statusModified
		}
	case s.unmodified(d, f):
		st = statusPatch
	default:
		st = statusMerge
	}

	var b strings.Builder
	fmt.Fprintf(&b, "===================================================================\n")
	fmt.Fprintf(&b, "File: %-17s\tStatus: %s\n\n", fileLabel(f.name, present), st)
	switch {
	case e == nil:
		fmt.Fprintf(&b, "   Working revision:\tNo entry for %s\n", f.name)
	case e.Added():
		fmt.Fprintf(&b, "   Working revision:\tNew file!\n")
	default:
		fmt.Fprintf(&b, "   Working revision:\t%s\n", e.Rev)
	}
	file, _, lerr := s.repo.Lookup(d.repo, f.name)
	switch {
	case lerr != nil:
		fmt.Fprintf(&b, "   Repository revision:\tNo revision control file\n")
	case dead:
		fmt.Fprintf(&b, "   Repository revision:\tNo revision control file\n")
	default:
		fmt.Fprintf(&b, "   Repository revision:\t%s\t%s\n", rev, file)
	}
	var rf *rcs.File
	if lerr == nil {
		if rf, err = s.repo.File(file); err != nil {
			return err
		}
		defer rf.Close()
	}
	tagLine, dateLine, optLine := "(none)", "(none)", "(none)"
	if e != nil {
		if t := e.StickyTag(); t != "" {
			tagLine = t
			if rf != nil {
				tagLine = describeTag(rf, t)
			}
		}
		if t := e.StickyDate(); t != "" {
			dateLine = t
		}
		if e.Options != "" {
			optLine = e.Options
		}
	}
	fmt.Fprintf(&b, "   Sticky Tag:\t\t%s\n", tagLine)
	fmt.Fprintf(&b, "   Sticky Date:\t\t%s\n", dateLine)
	fmt.Fprintf(&b, "   Sticky Options:\t%s\n", optLine)
	if verbose && rf != nil {
		syms := rf.Symbols()
		fmt.Fprintf(&b, "\n   Existing Tags:\n")
		if len(syms) == 0 {
			fmt.Fprintf(&b, "\tNo Tags Exist\n")
		}
		for _, sym := range syms {
			fmt.Fprintf(&b, "\t%-25s\t(%s: %s)\n", sym.Name, kindOfTag(sym.Num), sym.Num)
		}
	}
	b.WriteString("\n")
	s.m("%s", b.String())
	return nil
}

func fileLabel(name string, present bool) string {
	if present {
		return name
	}
	return "no file " + name
}

func kindOfTag(n rcsnum.Num) string {
	if n.IsBranch() {
		return "branch"
	}
	return "revision"
}

// describeTag formats a sticky tag with the number it is bound to.
func describeTag(f *rcs.File, tag string) string {
	n, ok := f.Symbol(tag)
	if !ok {
		if num, err := rcsnum.Parse(tag); err == nil {
			return fmt.Sprintf("%s (%s: %s)", tag, kindOfTag(num), num)
		}
		return tag + " - MISSING from RCS file!"
	}
	return fmt.Sprintf("%s (%s: %s)", tag, kindOfTag(n), n)
}

func logRequest(s *Session, args string) error {
	const op errors.Op = "server.log"
	var local bool
	fs := flagSet("log")
	fs.BoolVarP(&local, "local", "l", false, "do not recurse into subdirectories")
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	ts, err := s.targets(files, local)
	if err != nil {
		return errors.E(op, err)
	}
	for _, t := range ts {
		unlock, err := s.readLock(t.d.repo)
		if err != nil {
			return errors.E(op, err)
		}
		if t.names == nil {
			s.note("cvs log: Logging %s", t.d.local)
		}
		for _, n := range s.files(t, false) {
			f := t.d.file(n)
			p := t.d.path(n)
			if f.entry != nil && f.entry.Added() {
				s.e("cvs log: %s has been added, but not committed", p)
				continue
			}
			if f.entry == nil && t.names == nil {
				continue
			}
			var buf bytes.Buffer
			err := s.repo.Log(&buf, t.d.repo, n)
			if errors.Is(errors.NotExist, err) {
				s.e("cvs log: nothing known about %s", p)
				continue
			}
			if err != nil {
				unlock()
				return errors.E(op, err)
			}
			s.m("%s", buf.String())
		}
		unlock()
	}
	return nil
}

func diff(s *Session, args string) error {
	const op errors.Op = "server.diff"
	var revs, dates []string
	var unified, context, newFiles, local bool
	var kflag string
	fs := flagSet("diff")
	fs.StringArrayVarP(&revs, "revision", "r", nil, "compare with revision")
	fs.StringArrayVarP(&dates, "date", "D", nil, "compare with the revision at date")
	fs.BoolVarP(&unified, "unified", "u", true, "unified output")
	fs.BoolVarP(&context, "context", "c", false, "context output, shown unified")
	fs.BoolVarP(&newFiles, "new-file", "N", false, "include added and removed files")
	fs.BoolVarP(&local, "local", "l", false, "do not recurse into subdirectories")
	fs.StringVarP(&kflag, "keywords", "k", "", "keyword expansion mode")
	files, err := parseFlags(fs, s.args)
	if err != nil {
		return errors.E(op, err)
	}
	var sels []repository.Selector
	for _, r := range revs {
		sels = append(sels, repository.Selector{Tag: r})
	}
	for _, d := range dates {
		t, err := parseDate(d)
		if err != nil {
			return errors.E(op, err)
		}
		sels = append(sels, repository.Selector{Date: t})
	}
	if len(sels) > 2 {
		return errors.E(op, errors.Invalid, errors.Str("at most two revisions can be compared"))
	}
	ts, err := s.targets(files, local)
	if err != nil {
		return errors.E(op, err)
	}
	differ := false
	for _, t := range ts {
		unlock, err := s.readLock(t.d.repo)
		if err != nil {
			return errors.E(op, err)
		}
		if t.names == nil {
			s.note("cvs diff: Diffing %s", t.d.local)
		}
		for _, n := range s.files(t, false) {
			d, err := s.diffFile(t.d, t.d.file(n), sels, kflag, newFiles)
			if err != nil {
				unlock()
				return errors.E(op, err)
			}
			differ = differ || d
		}
		unlock()
	}
	if differ {
		s.failed = true
	}
	return nil
}

// side is one side of a comparison.
type side struct {
	label string
	rev   string // empty for the working file
	data  []byte
}

// diffFile compares a file with revisions and reports whether they
// differ.
func (s *Session) diffFile(d *dirState, f *fileState, sels []repository.Selector, kflag string, newFiles bool) (bool, error) {
	p := d.path(f.name)
	e := f.entry
	switch {
	case e == nil:
		return false, nil
	case e.Added() && !newFiles:
		s.e("cvs diff: %s is a new entry, no comparison available", p)
		return false, nil
	case e.Removed() && !newFiles:
		s.e("cvs diff: %s was removed, no comparison available", p)
		return false, nil
	}
	expand := kflag
	if expand == "" {
		expand = expandMode(e.Options)
	}
	revSide := func(sel repository.Selector) (*side, error) {
		r, err := s.repo.Checkout(d.repo, f.name, sel, expand)
		if errors.Is(errors.NotExist, err) {
			return &side{label: "/dev/null\t" + epoch}, nil
		}
		if err != nil {
			return nil, err
		}
		if r.Dead {
			return &side{label: "/dev/null\t" + epoch, rev: r.Num.String()}, nil
		}
		return &side{label: f.name + "\t" + r.Date.UTC().Format(diffDate) + "\t" + r.Num.String(), rev: r.Num.String(), data: r.Data}, nil
	}

	var from, to *side
	var err error
	switch {
	case len(sels) > 0:
		from, err = revSide(sels[0])
	case e.Added():
		from = &side{label: "/dev/null\t" + epoch}
	default:
		from, err = revSide(repository.Selector{Tag: strings.TrimPrefix(e.Rev, "-")})
	}
	if err != nil {
		return false, err
	}
	switch {
	case len(sels) > 1:
		to, err = revSide(sels[1])
	case e.Removed():
		to = &side{label: "/dev/null\t" + epoch}
	case !s.present(f):
		s.e("cvs diff: cannot find %s", p)
		s.failed = true
		return false, nil
	case f.haveData:
		to = &side{label: f.name + "\t(working copy)", data: f.data}
	case f.modified:
		return false, errors.E(errors.Path(p), errors.Invalid, errors.Str("modified file sent without contents"))
	case len(sels) == 0:
		return false, nil
	default:
		var r *repository.Revision
		if r, err = s.repo.Checkout(d.repo, f.name, repository.Selector{Tag: e.Rev}, expand); err == nil {
			to = &side{label: f.name + "\t(working copy)", data: r.Data}
		}
	}
	if err != nil {
		return false, err
	}
	out := rcs.UnifiedDiff(from.label, to.label, from.data, to.data, 3)
	if len(out) == 0 {
		return false, nil
	}
	file, _, _ := s.repo.Lookup(d.repo, f.name)
	var b strings.Builder
	fmt.Fprintf(&b, "Index: %s\n", p)
	fmt.Fprintf(&b, "===================================================================\n")
	if file != "" {
		fmt.Fprintf(&b, "RCS file: %s\n", file)
	}
	cmd := "diff -u"
	for _, sd := range []*side{from, to} {
		if sd.rev != "" {
			fmt.Fprintf(&b, "retrieving revision %s\n", sd.rev)
			cmd += " -r" + sd.rev
		}
	}
	fmt.Fprintf(&b, "%s %s\n", cmd, f.name)
	b.Write(out)
	s.m("%s", b.String())
	return true, nil
}

const diffDate = "2 Jan 2006 15:04:05 -0000"

var epoch = time.Unix(0, 0).UTC().Format(diffDate)
