// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diff3

import (
	"cvs.io/errors"
	"cvs.io/log"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
)

// MergeRevisions merges the changes between revisions rev1 and rev2 of f
// into working, conflicts marked. The conflict markers are labelled with
// name and rev2.
func MergeRevisions(f *rcs.File, rev1, rev2 rcsnum.Num, working []byte, name string) (*Result, error) {
	const op errors.Op = "diff3.MergeRevisions"
	older, err := f.Checkout(rev1)
	if err != nil {
		return nil, errors.E(op, err)
	}
	yours, err := f.Checkout(rev2)
	if err != nil {
		return nil, errors.E(op, err)
	}
	res, err := Merge(working, older, yours, Options{Mode: Markers, Label1: name, Label3: rev2.String()})
	if err != nil {
		return nil, errors.E(op, err)
	}
	log.Debug.Printf("diff3: merged %s %s..%s into %s: %d conflicts", f.Path(), rev1, rev2, name, res.Conflicts)
	return res, nil
}
