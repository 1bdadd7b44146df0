// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cvs.io/errors"
	"cvs.io/rcs"
	"cvs.io/rcsnum"
)

const (
	revSeparator  = "----------------------------"
	fileSeparator = "============================================================================="
)

// Log writes the history of name in dir in the format of rlog.
func (r *Repository) Log(w io.Writer, dir, name string) error {
	const op errors.Op = "repository.Log"
	file, _, err := r.Lookup(dir, name)
	if err != nil {
		return errors.E(op, err)
	}
	f, err := r.File(file)
	if err != nil {
		return errors.E(op, err)
	}
	defer f.Close()

	order := f.Order()
	fmt.Fprintf(w, "\nRCS file: %s\n", file)
	fmt.Fprintf(w, "Working file: %s\n", name)
	fmt.Fprintf(w, "head: %s\n", f.Head())
	fmt.Fprint(w, "branch:")
	if b := f.Branch(); !b.IsZero() {
		fmt.Fprintf(w, " %s", b)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "locks:")
	if f.Strict() {
		fmt.Fprintf(w, " strict")
	}
	fmt.Fprintln(w)
	for _, l := range f.Locks() {
		fmt.Fprintf(w, "\t%s: %s\n", l.User, l.Num)
	}
	fmt.Fprintln(w, "access list:")
	for _, a := range f.Access() {
		fmt.Fprintf(w, "\t%s\n", a)
	}
	fmt.Fprintln(w, "symbolic names:")
	for _, s := range f.Symbols() {
		fmt.Fprintf(w, "\t%s: %s\n", s.Name, s.Num.MagicString())
	}
	fmt.Fprintf(w, "keyword substitution: %s\n", f.Expand())
	fmt.Fprintf(w, "total revisions: %d;\tselected revisions: %d\n", len(order), len(order))
	fmt.Fprintln(w, "description:")
	io.WriteString(w, f.Desc())
	for _, rev := range order {
		d, err := f.Delta(rev)
		if err != nil {
			return errors.E(op, err)
		}
		fmt.Fprintln(w, revSeparator)
		fmt.Fprintf(w, "revision %s", rev)
		if l := f.Locker(rev); l != "" {
			fmt.Fprintf(w, "\tlocked by: %s;", l)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "date: %s;  author: %s;  state: %s;", d.Date.UTC().Format("2006/01/02 15:04:05"), d.Author, d.State)
		if add, del, ok := lineStats(f, d); ok {
			fmt.Fprintf(w, "  lines: +%d -%d", add, del)
		}
		fmt.Fprintln(w)
		if len(d.Branches) > 0 {
			var bs []string
			for _, b := range d.Branches {
				bs = append(bs, b.Prefix(b.Len()-1).String())
			}
			fmt.Fprintf(w, "branches:  %s;\n", strings.Join(bs, ";  "))
		}
		msg := d.Log
		if msg == "" {
			msg = "*** empty log message ***\n"
		}
		io.WriteString(w, msg)
		if !strings.HasSuffix(msg, "\n") {
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w, fileSeparator)
	return nil
}

// lineStats returns the lines added and removed by revision d relative
// to its predecessor. The first revision of the file has no statistics.
func lineStats(f *rcs.File, d *rcs.Delta) (add, del int, ok bool) {
	var script []byte
	var err error
	if d.Num.IsTrunk() {
		// The predecessor's text turns this revision into it, so its
		// insertions are our deletions.
		if d.Next.IsZero() {
			return 0, 0, false
		}
		if script, err = f.DeltaText(d.Next); err != nil {
			return 0, 0, false
		}
		del, add, err = rcs.ScriptStats(script)
	} else {
		if script, err = f.DeltaText(d.Num); err != nil {
			return 0, 0, false
		}
		add, del, err = rcs.ScriptStats(script)
	}
	return add, del, err == nil
}

// HistoryRecord types, as used in CVSROOT/history.
const (
	HistoryCheckout = 'O'
	HistoryCommit   = 'M'
	HistoryAdd      = 'A'
	HistoryRemove   = 'R'
	HistoryTag      = 'T'
	HistoryUpdate   = 'U'
)

// AppendHistory appends a record to CVSROOT/history if the file exists.
func (r *Repository) AppendHistory(kind byte, user, workdir, dir, name string, rev rcsnum.Num) error {
	const op errors.Op = "repository.AppendHistory"
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(r.root, AdminDir, "history"), os.O_WRONLY|os.O_APPEND, 0)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	line := fmt.Sprintf("%c%08x|%s|%s|%s|%s|%s\n", kind, time.Now().Unix(), user, workdir, dir, rev, name)
	_, err = io.WriteString(f, line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}
