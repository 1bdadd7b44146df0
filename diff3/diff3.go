// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diff3 implements three-way merging of text files.
//
// The three inputs follow the diff3 convention: file1 is "mine", the
// locally modified text; file2 is "older", the common ancestor; file3 is
// "yours", the other descendant. The merge incorporates into file1 the
// changes that lead from file2 to file3.
package diff3 // import "cvs.io/diff3"

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/ianbruene/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"

	"cvs.io/errors"
	"cvs.io/rcs"
)

// Range is a half-open range [From, To) of zero-based line numbers.
// An empty range is an insertion point before line From.
type Range struct {
	From, To int
}

// Len returns the number of lines in r.
func (r Range) Len() int { return r.To - r.From }

// Change records that lines Old of one file correspond to lines New of
// another.
type Change struct {
	Old, New Range
}

// Mode selects how conflicts are rendered.
type Mode int

const (
	// Markers brackets each conflict with <<<<<<<, ======= and >>>>>>>
	// lines, keeping both versions.
	Markers Mode = iota
	// Count takes file3's text for each conflict and only counts them.
	Count
)

// Options control a merge.
type Options struct {
	Mode   Mode
	Label1 string // Follows <<<<<<<; "file1" if empty.
	Label3 string // Follows >>>>>>>; "file3" if empty.
}

// Result is the outcome of a merge.
type Result struct {
	Text      []byte // The merged text.
	Conflicts int    // Number of regions changed differently in file1 and file3.
	// Script is an ed script that turns file1 into Text.
	Script []byte
}

// edit replaces lines old of file1 with lines new of file3.
type edit struct {
	old, new Range
	conflict bool
}

// maxLines is the number of distinct lines Diff can number as runes,
// leaving out the surrogate range.
const maxLines = utf8.MaxRune - 0x800

// Diff returns a minimal list of changes that turn a into b.
func Diff(a, b [][]byte) []Change {
	ids := make(map[string]rune)
	runes := func(lines [][]byte) []rune {
		rs := make([]rune, len(lines))
		for i, l := range lines {
			r, ok := ids[string(l)]
			if !ok {
				r = rune(len(ids) + 1)
				if r >= 0xD800 {
					r += 0x800
				}
				ids[string(l)] = r
			}
			rs[i] = r
		}
		return rs
	}
	if len(a)+len(b) >= maxLines {
		return matcherDiff(a, b)
	}
	ra, rb := runes(a), runes(b)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	var changes []Change
	i, j := 0, 0
	open := false
	for _, d := range dmp.DiffMainRunes(ra, rb, false) {
		n := utf8.RuneCountInString(d.Text)
		if d.Type == diffmatchpatch.DiffEqual {
			i += n
			j += n
			open = false
			continue
		}
		if !open {
			changes = append(changes, Change{Old: Range{i, i}, New: Range{j, j}})
			open = true
		}
		if d.Type == diffmatchpatch.DiffDelete {
			i += n
		} else {
			j += n
		}
		c := &changes[len(changes)-1]
		c.Old.To, c.New.To = i, j
	}
	return changes
}

// matcherDiff is Diff for inputs too large to number their lines as runes.
// Its changes need not be minimal.
func matcherDiff(a, b [][]byte) []Change {
	as := make([]string, len(a))
	for i, l := range a {
		as[i] = string(l)
	}
	bs := make([]string, len(b))
	for i, l := range b {
		bs[i] = string(l)
	}
	m := difflib.NewMatcherWithJunk(as, bs, false, nil)
	var changes []Change
	for _, c := range m.GetOpCodes() {
		if c.Tag == 'e' {
			continue
		}
		changes = append(changes, Change{Old: Range{c.I1, c.I2}, New: Range{c.J1, c.J2}})
	}
	return changes
}

// ParseNormalDiff parses the output of diff in its default format, whose
// commands have the form range{a,c,d}range, into changes. Text lines
// following the commands are skipped.
func ParseNormalDiff(text []byte) ([]Change, error) {
	const op errors.Op = "diff3.ParseNormalDiff"
	var changes []Change
	for _, line := range rcs.SplitLines(text) {
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case '<', '>', '\\':
			continue
		case '-':
			if bytes.Equal(line, []byte("---")) {
				continue
			}
		}
		c, err := parseCommand(line)
		if err != nil {
			return nil, errors.E(op, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func parseCommand(line []byte) (Change, error) {
	bad := errors.E(errors.Syntax, errors.Errorf("bad diff command %q", line))
	i := bytes.IndexAny(line, "acd")
	if i <= 0 || i == len(line)-1 {
		return Change{}, bad
	}
	l1, l2, ok1 := parseRange(line[:i])
	r1, r2, ok2 := parseRange(line[i+1:])
	if !ok1 || !ok2 {
		return Change{}, bad
	}
	switch line[i] {
	case 'a':
		return Change{Old: Range{l1, l1}, New: Range{r1 - 1, r2}}, nil
	case 'c':
		return Change{Old: Range{l1 - 1, l2}, New: Range{r1 - 1, r2}}, nil
	}
	return Change{Old: Range{l1 - 1, l2}, New: Range{r1, r1}}, nil
}

// parseRange parses N or N,M.
func parseRange(s []byte) (from, to int, ok bool) {
	a, b := s, s
	if i := bytes.IndexByte(s, ','); i >= 0 {
		a, b = s[:i], s[i+1:]
	}
	from, err1 := strconv.Atoi(string(a))
	to, err2 := strconv.Atoi(string(b))
	return from, to, err1 == nil && err2 == nil && from >= 0 && to >= from
}

// Merge merges the changes from older to yours into mine.
func Merge(mine, older, yours []byte, opts Options) (*Result, error) {
	f1, f2, f3 := rcs.SplitLines(mine), rcs.SplitLines(older), rcs.SplitLines(yours)
	return Merge3(Diff(f1, f3), Diff(f2, f3), f1, f2, f3, opts)
}

// Merge3 performs the merge given the changes d13 from file1 to file3 and
// d23 from file2 to file3, both in increasing order.
//
// The changes are grouped into blocks: a block starts with the first
// unprocessed change in file3 order and absorbs every change from either
// list whose file3 range overlaps or touches it. A block with changes only
// from d13 is a change made in file1 and is kept. One with changes only
// from d23 is already in file1. A block with changes from both takes
// file3's text if file1 and file2 agree on it and is a conflict otherwise.
func Merge3(d13, d23 []Change, f1, f2, f3 [][]byte, opts Options) (*Result, error) {
	const op errors.Op = "diff3.Merge3"
	for _, c := range d13 {
		if !valid(c, len(f1), len(f3)) {
			return nil, errors.E(op, errors.Invalid, errors.Errorf("change %v out of range", c))
		}
	}
	for _, c := range d23 {
		if !valid(c, len(f2), len(f3)) {
			return nil, errors.E(op, errors.Invalid, errors.Errorf("change %v out of range", c))
		}
	}

	var edits []edit
	// delta1 and delta2 map a file3 line outside any change to file1 and
	// file2 respectively.
	delta1, delta2 := 0, 0
	i, j := 0, 0
	for i < len(d13) || j < len(d23) {
		var lo, hi int
		if j >= len(d23) || i < len(d13) && d13[i].New.From <= d23[j].New.From {
			lo, hi = d13[i].New.From, d13[i].New.To
		} else {
			lo, hi = d23[j].New.From, d23[j].New.To
		}
		i0, j0 := i, j
		for grown := true; grown; {
			grown = false
			for i < len(d13) && d13[i].New.From <= hi {
				if d13[i].New.To > hi {
					hi = d13[i].New.To
				}
				i++
				grown = true
			}
			for j < len(d23) && d23[j].New.From <= hi {
				if d23[j].New.To > hi {
					hi = d23[j].New.To
				}
				j++
				grown = true
			}
		}
		block := Range{lo, hi}
		r1 := side(d13[i0:i], block, delta1)
		r2 := side(d23[j0:j], block, delta2)
		if r1.From < 0 || r1.To > len(f1) || r2.From < 0 || r2.To > len(f2) {
			return nil, errors.E(op, errors.Internal, errors.Str("inconsistent change lists"))
		}
		if i > i0 {
			delta1 = d13[i-1].Old.To - d13[i-1].New.To
		}
		if j > j0 {
			delta2 = d23[j-1].Old.To - d23[j-1].New.To
		}
		if i == i0 || j == j0 {
			// Only one side differs from file3. Either file1 made the
			// change or it already has file3's text.
			continue
		}
		same := equalLines(f1[r1.From:r1.To], f2[r2.From:r2.To])
		edits = append(edits, edit{old: r1, new: block, conflict: !same})
	}
	return apply(edits, f1, f3, opts), nil
}

// side returns the lines of one file that correspond to the file3 lines
// of block, given that file's changes within the block. Lines outside the
// changes correspond one to one, offset by delta when there are none.
func side(changes []Change, block Range, delta int) Range {
	if len(changes) == 0 {
		return Range{block.From + delta, block.To + delta}
	}
	first, last := changes[0], changes[len(changes)-1]
	return Range{
		From: first.Old.From - (first.New.From - block.From),
		To:   last.Old.To + (block.To - last.New.To),
	}
}

func valid(c Change, oldLen, newLen int) bool {
	return 0 <= c.Old.From && c.Old.From <= c.Old.To && c.Old.To <= oldLen &&
		0 <= c.New.From && c.New.From <= c.New.To && c.New.To <= newLen
}

func equalLines(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func writeLines(buf *bytes.Buffer, lines [][]byte) {
	for _, l := range lines {
		buf.Write(l)
	}
}

// endLine terminates the last line in buf if it lacks a newline.
func endLine(buf *bytes.Buffer) {
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

func apply(edits []edit, f1, f3 [][]byte, opts Options) *Result {
	label1, label3 := opts.Label1, opts.Label3
	if label1 == "" {
		label1 = "file1"
	}
	if label3 == "" {
		label3 = "file3"
	}
	res := &Result{}
	var text bytes.Buffer
	pos := 0
	for _, e := range edits {
		writeLines(&text, f1[pos:e.old.From])
		if e.conflict {
			res.Conflicts++
		}
		if e.conflict && opts.Mode == Markers {
			endLine(&text)
			fmt.Fprintf(&text, "<<<<<<< %s\n", label1)
			writeLines(&text, f1[e.old.From:e.old.To])
			endLine(&text)
			text.WriteString("=======\n")
			writeLines(&text, f3[e.new.From:e.new.To])
			endLine(&text)
			fmt.Fprintf(&text, ">>>>>>> %s\n", label3)
		} else {
			writeLines(&text, f3[e.new.From:e.new.To])
		}
		pos = e.old.To
	}
	writeLines(&text, f1[pos:])
	res.Text = text.Bytes()

	var script bytes.Buffer
	for k := len(edits) - 1; k >= 0; k-- {
		e := edits[k]
		body := f3[e.new.From:e.new.To]
		switch {
		case e.conflict && opts.Mode == Markers:
			fmt.Fprintf(&script, "%da\n=======\n", e.old.To)
			writeLines(&script, body)
			endLine(&script)
			fmt.Fprintf(&script, ">>>>>>> %s\n.\n", label3)
			fmt.Fprintf(&script, "%da\n<<<<<<< %s\n.\n", e.old.From, label1)
		case e.old.Len() == 0:
			fmt.Fprintf(&script, "%da\n", e.old.From)
			writeLines(&script, body)
			endLine(&script)
			script.WriteString(".\n")
		case len(body) == 0:
			fmt.Fprintf(&script, "%sd\n", edRange(e.old))
		default:
			fmt.Fprintf(&script, "%sc\n", edRange(e.old))
			writeLines(&script, body)
			endLine(&script)
			script.WriteString(".\n")
		}
	}
	res.Script = script.Bytes()
	return res
}

// edRange formats a non-empty range as one-based ed line addresses.
func edRange(r Range) string {
	if r.Len() == 1 {
		return strconv.Itoa(r.From + 1)
	}
	return fmt.Sprintf("%d,%d", r.From+1, r.To)
}
