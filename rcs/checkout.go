// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"bytes"
	"strconv"

	"cvs.io/errors"
	"cvs.io/rcsnum"
)

// SplitLines splits text into lines, each keeping its newline. A final
// line without a newline is kept as is.
func SplitLines(text []byte) [][]byte {
	var lines [][]byte
	for len(text) > 0 {
		i := bytes.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			break
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
	}
	return lines
}

func joinLines(lines [][]byte) []byte {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	out := make([]byte, 0, n)
	for _, l := range lines {
		out = append(out, l...)
	}
	return out
}

// command is one parsed edit command.
type command struct {
	op    byte // 'a', 'c' or 'd'
	from  int  // first line, 1-based; for 'a' the line to append after
	to    int  // last line, 1-based, for ed-style ranges
	count int  // number of lines, for RCS-style commands
	text  [][]byte
}

// parseScript parses an edit script. Two forms are accepted: the RCS form
// produced by diff -n, whose commands are "aN COUNT" and "dN COUNT", and
// the ed form "N[,M]{a,c,d}" with text terminated by a "." line.
func parseScript(script []byte) (cmds []command, rcsForm bool, err error) {
	lines := SplitLines(script)
	for i := 0; i < len(lines); i++ {
		line := bytes.TrimRight(lines[i], "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == 'a' || line[0] == 'd' {
			fields := bytes.Fields(line[1:])
			if len(fields) != 2 {
				return nil, false, errors.E(errors.Syntax, errors.Errorf("bad edit command %q", line))
			}
			from, err1 := strconv.Atoi(string(fields[0]))
			count, err2 := strconv.Atoi(string(fields[1]))
			if err1 != nil || err2 != nil || from < 0 || count < 0 {
				return nil, false, errors.E(errors.Syntax, errors.Errorf("bad edit command %q", line))
			}
			c := command{op: line[0], from: from, count: count}
			if c.op == 'a' {
				if i+count > len(lines)-1 {
					return nil, false, errors.E(errors.Syntax, errors.Errorf("edit command %q: text truncated", line))
				}
				c.text = lines[i+1 : i+1+count]
				i += count
			}
			cmds = append(cmds, c)
			rcsForm = true
			continue
		}
		c, err := parseEdCommand(line)
		if err != nil {
			return nil, false, err
		}
		if c.op != 'd' {
			for i++; i < len(lines); i++ {
				if t := bytes.TrimRight(lines[i], "\r\n"); len(t) == 1 && t[0] == '.' {
					break
				}
				c.text = append(c.text, lines[i])
			}
		}
		cmds = append(cmds, c)
	}
	return cmds, rcsForm, nil
}

// parseEdCommand parses N[,M]{a,c,d}. Anything after the command letter,
// as in the normal diff form 2d1 or 3,4c3,5, is ignored.
func parseEdCommand(line []byte) (command, error) {
	bad := errors.E(errors.Syntax, errors.Errorf("bad edit command %q", line))
	i := 0
	num := func() (int, bool) {
		j := i
		for i < len(line) && '0' <= line[i] && line[i] <= '9' {
			i++
		}
		if i == j {
			return 0, false
		}
		n, err := strconv.Atoi(string(line[j:i]))
		return n, err == nil
	}
	from, ok := num()
	if !ok {
		return command{}, bad
	}
	to := from
	if i < len(line) && line[i] == ',' {
		i++
		if to, ok = num(); !ok || to < from {
			return command{}, bad
		}
	}
	if i >= len(line) {
		return command{}, bad
	}
	c := command{op: line[i], from: from, to: to}
	switch c.op {
	case 'a', 'c', 'd':
	default:
		return command{}, bad
	}
	return c, nil
}

// ApplyScript applies an edit script to text and returns the result.
//
// In the RCS form line numbers refer to the original text, and commands
// must appear in increasing order. In the ed form each command is applied
// in turn to the text as modified by the commands before it.
func ApplyScript(text, script []byte) ([]byte, error) {
	const op errors.Op = "rcs.ApplyScript"
	cmds, rcsForm, err := parseScript(script)
	if err != nil {
		return nil, errors.E(op, err)
	}
	lines := SplitLines(text)
	if rcsForm {
		lines, err = applyRCS(lines, cmds)
	} else {
		lines, err = applyEd(lines, cmds)
	}
	if err != nil {
		return nil, errors.E(op, err)
	}
	return joinLines(lines), nil
}

// ScriptStats returns the number of lines an edit script inserts and
// deletes.
func ScriptStats(script []byte) (added, deleted int, err error) {
	cmds, _, err := parseScript(script)
	if err != nil {
		return 0, 0, errors.E(errors.Op("rcs.ScriptStats"), err)
	}
	for _, c := range cmds {
		added += len(c.text)
		switch {
		case c.op == 'a':
		case c.count > 0:
			deleted += c.count
		default:
			deleted += c.to - c.from + 1
		}
	}
	return added, deleted, nil
}

func applyRCS(orig [][]byte, cmds []command) ([][]byte, error) {
	out := make([][]byte, 0, len(orig))
	pos := 0 // lines of orig consumed
	for _, c := range cmds {
		switch c.op {
		case 'd':
			start := c.from - 1
			if start < pos || start+c.count > len(orig) || c.from < 1 {
				return nil, errors.E(errors.Syntax, errors.Errorf("d%d %d: out of range", c.from, c.count))
			}
			out = append(out, orig[pos:start]...)
			pos = start + c.count
		case 'a':
			if c.from < pos || c.from > len(orig) {
				return nil, errors.E(errors.Syntax, errors.Errorf("a%d %d: out of range", c.from, c.count))
			}
			out = append(out, orig[pos:c.from]...)
			pos = c.from
			out = append(out, c.text...)
		default:
			return nil, errors.E(errors.Syntax, errors.Errorf("unexpected command %q", c.op))
		}
	}
	return append(out, orig[pos:]...), nil
}

func applyEd(lines [][]byte, cmds []command) ([][]byte, error) {
	for _, c := range cmds {
		switch c.op {
		case 'a':
			if c.from > len(lines) {
				return nil, errors.E(errors.Syntax, errors.Errorf("%da: out of range", c.from))
			}
			lines = splice(lines, c.from, c.from, c.text)
		case 'c', 'd':
			if c.from < 1 || c.to > len(lines) {
				return nil, errors.E(errors.Syntax, errors.Errorf("%d,%d%c: out of range", c.from, c.to, c.op))
			}
			lines = splice(lines, c.from-1, c.to, c.text)
		}
	}
	return lines, nil
}

// splice replaces lines[i:j] with repl.
func splice(lines [][]byte, i, j int, repl [][]byte) [][]byte {
	out := make([][]byte, 0, len(lines)-(j-i)+len(repl))
	out = append(out, lines[:i]...)
	out = append(out, repl...)
	return append(out, lines[j:]...)
}

// Checkout returns the contents of revision rev without keyword
// expansion. The head revision is stored whole; trunk revisions are
// rebuilt by applying reverse deltas down from the head and branch
// revisions by applying forward deltas out from their branch point.
func (f *File) Checkout(rev rcsnum.Num) ([]byte, error) {
	const op errors.Op = "rcs.Checkout"
	f.mu.Lock()
	defer f.mu.Unlock()
	text, err := f.checkoutLocked(rev)
	if err != nil {
		return nil, errors.E(op, errors.Path(f.path), err)
	}
	return text, nil
}

func (f *File) checkoutLocked(rev rcsnum.Num) ([]byte, error) {
	if !rev.IsRevision() {
		return nil, errors.E(errors.Invalid, errors.Errorf("%q is not a revision number", rev.String()))
	}
	if f.findRev(rev) == nil {
		return nil, errors.E(errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	d := f.findRev(f.head)
	if d == nil {
		return nil, errors.E(errors.Internal, errors.Str("no head revision"))
	}
	text := append([]byte(nil), d.Text...)
	trunk := rev.Prefix(2)
	for !d.Num.Equal(trunk) {
		if d.Next.IsZero() || rcsnum.Cmp(d.Num, trunk, 0) < 0 {
			return nil, errors.E(errors.NotExist, errors.Errorf("revision %s not reachable from head", trunk))
		}
		d = f.findRev(d.Next)
		if d == nil {
			return nil, errors.E(errors.Internal, errors.Str("broken next chain"))
		}
		var err error
		if text, err = ApplyScript(text, d.Text); err != nil {
			return nil, errors.E(errors.Errorf("revision %s", d.Num), err)
		}
	}
	for k := 4; k <= rev.Len(); k += 2 {
		first := f.branchStart(d, rev.Prefix(k-1))
		if first == nil {
			return nil, errors.E(errors.NotExist, errors.Errorf("branch %s not found at %s", rev.Prefix(k-1), d.Num))
		}
		target := rev.Prefix(k)
		d = first
		for {
			if d == nil {
				return nil, errors.E(errors.Internal, errors.Errorf("broken branch %s", rev.Prefix(k-1)))
			}
			var err error
			if text, err = ApplyScript(text, d.Text); err != nil {
				return nil, errors.E(errors.Errorf("revision %s", d.Num), err)
			}
			if d.Num.Equal(target) {
				break
			}
			if d.Next.IsZero() {
				return nil, errors.E(errors.NotExist, errors.Errorf("revision %s not on its branch", target))
			}
			d = f.findRev(d.Next)
		}
	}
	return text, nil
}
