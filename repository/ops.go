// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repository

import (
	"os"
	"path"
	"path/filepath"
	"time"

	"cvs.io/errors"
	"cvs.io/log"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
)

// Selector chooses a revision of a file.
type Selector struct {
	Tag  string    // Revision, branch or symbol; empty for the head.
	Date time.Time // If set, the latest revision no later than Date.
}

// Resolve returns the revision of f chosen by sel.
func Resolve(f *rcs.File, sel Selector) (rcsnum.Num, error) {
	if sel.Date.IsZero() {
		return f.Resolve(sel.Tag)
	}
	var branch rcsnum.Num
	if sel.Tag != "" {
		n, ok := f.Symbol(sel.Tag)
		if !ok {
			var err error
			if n, err = rcsnum.Parse(sel.Tag); err != nil {
				return rcsnum.Num{}, errors.E(errors.Op("repository.Resolve"), errors.Path(f.Path()), errors.NotExist, errors.Errorf("no symbol %s", sel.Tag))
			}
		}
		if !n.IsBranch() {
			return f.Resolve(sel.Tag)
		}
		branch = n
	} else if b := f.Branch(); !b.IsZero() {
		branch = b
	}
	return f.RevisionAt(sel.Date, branch)
}

// Revision is a checked-out revision of a file.
type Revision struct {
	Num    rcsnum.Num
	Data   []byte
	Mode   os.FileMode
	Expand string
	Date   time.Time
	Dead   bool
}

// Checkout returns the revision of name in dir chosen by sel, with
// keywords expanded in mode expand, or in the file's own mode if expand
// is empty. A dead revision is returned with Dead set and no data.
func (r *Repository) Checkout(dir, name string, sel Selector, expand string) (*Revision, error) {
	const op errors.Op = "repository.Checkout"
	file, _, err := r.Lookup(dir, name)
	if err != nil {
		return nil, errors.E(op, err)
	}
	f, err := r.File(file)
	if err != nil {
		return nil, errors.E(op, err)
	}
	defer f.Close()
	rev, err := Resolve(f, sel)
	if err != nil {
		return nil, errors.E(op, err)
	}
	d, err := f.Delta(rev)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if expand == "" {
		expand = f.Expand()
	}
	out := &Revision{
		Num:    rev,
		Mode:   workingMode(file),
		Expand: expand,
		Date:   d.Date,
		Dead:   d.State == rcs.Dead,
	}
	if out.Dead {
		return out, nil
	}
	text, err := f.Checkout(rev)
	if err != nil {
		return nil, errors.E(op, err)
	}
	tag := ""
	if sel.Tag != "" && !isNumeric(sel.Tag) {
		tag = sel.Tag
	}
	kw, err := f.KeywordInfo(rev, tag)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if out.Data, err = rcs.ExpandKeywords(text, expand, kw); err != nil {
		return nil, errors.E(op, errors.Path(file), err)
	}
	return out, nil
}

func isNumeric(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// workingMode returns the mode of a working file checked out from the
// RCS file: writable, and executable if the RCS file is.
func workingMode(file string) os.FileMode {
	fi, err := os.Stat(file)
	if err != nil {
		return 0644
	}
	return 0644 | fi.Mode().Perm()&0111
}

// Change describes a new revision of a file.
type Change struct {
	// Rev is rcs.HeadRev for the next trunk revision, a branch number
	// for the next revision on that branch, or an explicit revision.
	Rev    rcsnum.Num
	Data   []byte
	Log    string
	Author string
	Date   time.Time
	// Expand is the keyword expansion mode of a new file.
	Expand string
	// Mode holds the permission bits of a new file's working copy; only
	// the execute bits are kept.
	Mode os.FileMode
	// Remove records a dead revision instead of Data.
	Remove bool
}

// Commit records a new revision of name in dir and returns its number.
// A file without an RCS file is created with revision 1.1. A trunk
// revision that removes the file moves the RCS file to the Attic, and
// one that restores it moves the file out.
func (r *Repository) Commit(dir, name string, c Change) (rcsnum.Num, error) {
	const op errors.Op = "repository.Commit"
	file, attic, err := r.Lookup(dir, name)
	var f *rcs.File
	switch {
	case errors.Is(errors.NotExist, err):
		if c.Remove {
			return rcsnum.Num{}, errors.E(op, err)
		}
		if file, err = r.RCSPath(dir, name); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
		if f, err = rcs.Open(file, rcs.Create); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
		if c.Expand != "" {
			if err := f.SetExpand(c.Expand); err != nil {
				return rcsnum.Num{}, errors.E(op, err)
			}
		}
	case err != nil:
		return rcsnum.Num{}, errors.E(op, err)
	default:
		if f, err = rcs.Open(file, rcs.ReadWrite); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
	}
	defer r.forget(file)

	data := c.Data
	if c.Remove {
		data = nil
	}
	date := c.Date
	if date.IsZero() {
		date = time.Now()
	}
	rev, err := f.Commit(c.Rev, data, c.Log, c.Author, date)
	if err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	if c.Remove {
		if err := f.SetState(rev, rcs.Dead); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
	}
	if err := f.Write(); err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	if c.Mode&0111 != 0 {
		if fi, err := os.Stat(file); err == nil {
			os.Chmod(file, fi.Mode().Perm()|c.Mode&0111)
		}
	}

	if rev.IsTrunk() {
		switch {
		case c.Remove && !attic:
			err = r.move(file, dir, name, true)
		case !c.Remove && attic:
			err = r.move(file, dir, name, false)
		}
		if err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
	}
	log.Debug.Printf("repository: committed %s revision %s", path.Join(dir, name), rev)
	return rev, nil
}

// move moves an RCS file into or out of the Attic.
func (r *Repository) move(file, dir, name string, toAttic bool) error {
	var dst string
	var err error
	if toAttic {
		dst, err = r.AtticPath(dir, name)
	} else {
		dst, err = r.RCSPath(dir, name)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0777); err != nil {
		return errors.E(errors.IO, err)
	}
	if err := os.Rename(file, dst); err != nil {
		return errors.E(errors.Path(file), errors.IO, err)
	}
	r.forget(dst)
	return nil
}

// TagOptions modify Tag.
type TagOptions struct {
	Selector
	Delete bool // Remove the tag.
	Force  bool // Move the tag if it exists.
	Branch bool // Make the tag a new branch sprouting from the revision.
}

// Tag binds tag to the revision of name in dir chosen by opts and
// returns the number bound. Dead revisions are not tagged; Tag returns a
// NotExist error for them.
func (r *Repository) Tag(dir, name, tag string, opts TagOptions) (rcsnum.Num, error) {
	const op errors.Op = "repository.Tag"
	if tag == "HEAD" || tag == "BASE" {
		return rcsnum.Num{}, errors.E(op, errors.Invalid, errors.Errorf("tag name %s is reserved", tag))
	}
	if err := rcs.ValidSymbol(tag); err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	file, _, err := r.Lookup(dir, name)
	if err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	f, err := rcs.Open(file, rcs.ReadWrite)
	if err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	defer r.forget(file)

	if opts.Delete {
		old, _ := f.Symbol(tag)
		if err := f.RemoveSymbol(tag); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
		if err := f.Write(); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
		return old, nil
	}

	rev, err := Resolve(f, opts.Selector)
	if err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	if f.IsDead(rev) {
		return rcsnum.Num{}, errors.E(op, errors.Path(path.Join(dir, name)), errors.NotExist, errors.Errorf("revision %s is dead", rev))
	}
	num := rev
	if opts.Branch {
		if num, err = newBranch(f, rev); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
	}
	if old, ok := f.Symbol(tag); ok {
		if old.Equal(num) || (opts.Branch && old.IsBranch() && old.BranchPoint().Equal(rev) && !opts.Force) {
			return old, nil
		}
		if !opts.Force {
			return rcsnum.Num{}, errors.E(op, errors.Path(path.Join(dir, name)), errors.Exist, errors.Errorf("tag %s already bound to %s", tag, old))
		}
		if err := f.RemoveSymbol(tag); err != nil {
			return rcsnum.Num{}, errors.E(op, err)
		}
	}
	if err := f.AddSymbol(tag, num); err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	if err := f.Write(); err != nil {
		return rcsnum.Num{}, errors.E(op, err)
	}
	return num, nil
}

// newBranch returns an unused branch number sprouting from rev. Branch
// numbers are even; odd ones are left for vendor branches.
func newBranch(f *rcs.File, rev rcsnum.Num) (rcsnum.Num, error) {
	d, err := f.Delta(rev)
	if err != nil {
		return rcsnum.Num{}, err
	}
	used := make(map[uint16]bool)
	for _, b := range d.Branches {
		used[b.Component(b.Len()-2)] = true
	}
	for _, s := range f.Symbols() {
		if s.Num.IsBranch() && s.Num.Len() == rev.Len()+1 && s.Num.BranchPoint().Equal(rev) {
			used[s.Num.Last()] = true
		}
	}
	for n := uint16(2); n != 0 && n <= rcsnum.MaxComponent-1; n += 2 {
		if !used[n] {
			return rev.Append(n), nil
		}
	}
	return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("no free branch number at %s", rev))
}
