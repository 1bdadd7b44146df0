// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"time"

	"cvs.io/errors"
	"cvs.io/rcsnum"
)

// Commit stores content as a new revision and returns its number.
//
// If rev is HeadRev the revision after the head is created. If rev is a
// branch number the revision after the tip of that branch is created,
// starting the branch if it has no revisions yet. Otherwise rev names the
// new revision exactly.
//
// A trunk commit stores content whole in the new head and replaces the
// text of the old head with a reverse delta. A branch commit stores a
// forward delta from its predecessor.
func (f *File) Commit(rev rcsnum.Num, content []byte, msg, author string, date time.Time) (rcsnum.Num, error) {
	const op errors.Op = "rcs.Commit"
	f.mu.Lock()
	defer f.mu.Unlock()

	if rev.IsBranch() && !rev.IsZero() {
		tip, err := f.branchTip(rev)
		if err != nil {
			return rcsnum.Num{}, errors.E(op, errors.Path(f.path), err)
		}
		if tip.Len() < rev.Len() {
			rev = rcsnum.New(componentsOf(rev)...).Append(1)
		} else if rev, err = tip.Inc(); err != nil {
			return rcsnum.Num{}, errors.E(op, errors.Path(f.path), err)
		}
	}

	oldHead := f.head
	var pred rcsnum.Num
	trunk := rev.IsZero() || rev.IsTrunk()
	if !trunk {
		if d := f.branchPrev(rev); d != nil {
			pred = d.Num
		} else {
			pred = rev.BranchPoint()
		}
	}

	var oldText []byte
	var err error
	switch {
	case trunk && !oldHead.IsZero():
		oldText = f.findRev(oldHead).Text
	case !trunk:
		if f.findRev(pred) == nil {
			return rcsnum.Num{}, errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", pred))
		}
		if oldText, err = f.checkoutLocked(pred); err != nil {
			return rcsnum.Num{}, errors.E(op, errors.Path(f.path), err)
		}
	}

	if rev, err = f.addRevision(rev, msg, date, author); err != nil {
		return rcsnum.Num{}, errors.E(op, errors.Path(f.path), err)
	}
	d := f.findRev(rev)
	if trunk {
		d.Text = append([]byte(nil), content...)
		if !oldHead.IsZero() {
			f.findRev(oldHead).Text = Diff(content, oldText)
		}
	} else {
		d.Text = Diff(oldText, content)
	}
	return rev.Clone(), nil
}

// BranchTip returns the latest revision on branch. A branch without
// revisions yields its branch point. The trunk branch, such as 1, yields
// the highest revision with that first component.
func (f *File) BranchTip(branch rcsnum.Num) (rcsnum.Num, error) {
	const op errors.Op = "rcs.BranchTip"
	f.mu.Lock()
	defer f.mu.Unlock()
	tip, err := f.branchTip(branch)
	if err != nil {
		return rcsnum.Num{}, errors.E(op, errors.Path(f.path), err)
	}
	return tip.Clone(), nil
}

func (f *File) branchTip(branch rcsnum.Num) (rcsnum.Num, error) {
	if !branch.IsBranch() || branch.IsZero() {
		return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("%s is not a branch", branch))
	}
	if branch.Len() == 1 {
		for d := f.findRev(f.head); d != nil; d = f.findRev(d.Next) {
			if d.Num.Component(0) == branch.Component(0) {
				return d.Num, nil
			}
		}
		return rcsnum.Num{}, errors.E(errors.NotExist, errors.Errorf("no revisions on branch %s", branch))
	}
	bp := f.findRev(branch.BranchPoint())
	if bp == nil {
		return rcsnum.Num{}, errors.E(errors.NotExist, errors.Errorf("branch point of %s does not exist", branch))
	}
	d := f.branchStart(bp, branch)
	if d == nil {
		return bp.Num, nil
	}
	for !d.Next.IsZero() {
		next := f.findRev(d.Next)
		if next == nil {
			break
		}
		d = next
	}
	return d.Num, nil
}

// Resolve translates a revision specification into a revision number.
// The empty string and HEAD name the head of the default branch, or the
// head revision if there is none. A branch, given by number or by a
// symbol bound to a branch, names its latest revision. A symbol bound to
// a revision names that revision.
func (f *File) Resolve(spec string) (rcsnum.Num, error) {
	const op errors.Op = "rcs.Resolve"
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, err := f.resolve(spec)
	if err != nil {
		return rcsnum.Num{}, errors.E(op, errors.Path(f.path), err)
	}
	return rev.Clone(), nil
}

func (f *File) resolve(spec string) (rcsnum.Num, error) {
	var n rcsnum.Num
	switch {
	case spec == "" || spec == "HEAD":
		if f.head.IsZero() {
			return rcsnum.Num{}, errors.E(errors.NotExist, errors.Str("file has no revisions"))
		}
		if f.branch.IsZero() {
			return f.head, nil
		}
		n = f.branch
	case spec[0] >= '0' && spec[0] <= '9':
		var err error
		if n, err = rcsnum.Parse(spec); err != nil {
			return rcsnum.Num{}, err
		}
	default:
		found := false
		for _, s := range f.symbols {
			if s.Name == spec {
				n, found = s.Num, true
				break
			}
		}
		if !found {
			return rcsnum.Num{}, errors.E(errors.NotExist, errors.Errorf("no symbol %s", spec))
		}
	}
	if n.IsBranch() {
		return f.branchTip(n)
	}
	if f.findRev(n) == nil {
		return rcsnum.Num{}, errors.E(errors.NotExist, errors.Errorf("no revision %s", n))
	}
	return n, nil
}

// RevisionAt returns the latest revision on branch committed no later
// than date. The zero branch means the trunk.
func (f *File) RevisionAt(date time.Time, branch rcsnum.Num) (rcsnum.Num, error) {
	const op errors.Op = "rcs.RevisionAt"
	f.mu.Lock()
	defer f.mu.Unlock()
	notFound := errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision on or before %s", date.UTC().Format(time.RFC3339)))
	if branch.IsZero() || branch.Len() == 1 {
		for d := f.findRev(f.head); d != nil; d = f.findRev(d.Next) {
			if !branch.IsZero() && d.Num.Component(0) != branch.Component(0) {
				continue
			}
			if !d.Date.After(date) {
				return d.Num.Clone(), nil
			}
		}
		return rcsnum.Num{}, notFound
	}
	if !branch.IsBranch() {
		return rcsnum.Num{}, errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("%s is not a branch", branch))
	}
	var best *Delta
	bp := f.findRev(branch.BranchPoint())
	if bp != nil && !bp.Date.After(date) {
		best = bp
	}
	for d := f.branchStart(bp, branch); d != nil; d = f.findRev(d.Next) {
		if d.Date.After(date) {
			break
		}
		best = d
	}
	if best == nil {
		return rcsnum.Num{}, notFound
	}
	return best.Num.Clone(), nil
}
