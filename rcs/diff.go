// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"bytes"
	"fmt"

	"github.com/ianbruene/go-difflib/difflib"
)

func toStrings(lines [][]byte) []string {
	s := make([]string, len(lines))
	for i, l := range lines {
		s[i] = string(l)
	}
	return s
}

// opCodes returns the edit operations that turn a into b.
func opCodes(a, b [][]byte) []difflib.OpCode {
	m := difflib.NewMatcherWithJunk(toStrings(a), toStrings(b), false, nil)
	return m.GetOpCodes()
}

// Diff returns the RCS edit script that turns from into to, in the
// format of diff -n: "dN COUNT" deletes COUNT lines starting at line N
// and "aN COUNT" adds the COUNT lines that follow after line N. Line
// numbers refer to from.
func Diff(from, to []byte) []byte {
	a, b := SplitLines(from), SplitLines(to)
	var buf bytes.Buffer
	for _, c := range opCodes(a, b) {
		switch c.Tag {
		case 'd':
			fmt.Fprintf(&buf, "d%d %d\n", c.I1+1, c.I2-c.I1)
		case 'i':
			fmt.Fprintf(&buf, "a%d %d\n", c.I1, c.J2-c.J1)
			for _, l := range b[c.J1:c.J2] {
				buf.Write(l)
			}
		case 'r':
			fmt.Fprintf(&buf, "d%d %d\n", c.I1+1, c.I2-c.I1)
			fmt.Fprintf(&buf, "a%d %d\n", c.I2, c.J2-c.J1)
			for _, l := range b[c.J1:c.J2] {
				buf.Write(l)
			}
		}
	}
	return buf.Bytes()
}

// unifiedRange formats a hunk range the way diff -u does.
func unifiedRange(start, stop int) string {
	begin := start + 1
	length := stop - start
	switch length {
	case 1:
		return fmt.Sprintf("%d", begin)
	case 0:
		begin--
	}
	return fmt.Sprintf("%d,%d", begin, length)
}

// UnifiedDiff returns the differences between from and to in unified
// format with context lines around each change. The labels follow the
// --- and +++ markers. Identical inputs produce no output.
func UnifiedDiff(fromLabel, toLabel string, from, to []byte, context int) []byte {
	if bytes.Equal(from, to) {
		return nil
	}
	a, b := SplitLines(from), SplitLines(to)
	m := difflib.NewMatcherWithJunk(toStrings(a), toStrings(b), false, nil)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s\n+++ %s\n", fromLabel, toLabel)
	for _, group := range m.GetGroupedOpCodes(context) {
		first, last := group[0], group[len(group)-1]
		fmt.Fprintf(&buf, "@@ -%s +%s @@\n", unifiedRange(first.I1, last.I2), unifiedRange(first.J1, last.J2))
		for _, c := range group {
			if c.Tag == 'e' {
				writeUnified(&buf, ' ', a[c.I1:c.I2])
				continue
			}
			if c.Tag == 'r' || c.Tag == 'd' {
				writeUnified(&buf, '-', a[c.I1:c.I2])
			}
			if c.Tag == 'r' || c.Tag == 'i' {
				writeUnified(&buf, '+', b[c.J1:c.J2])
			}
		}
	}
	return buf.Bytes()
}

func writeUnified(buf *bytes.Buffer, prefix byte, lines [][]byte) {
	for _, l := range lines {
		buf.WriteByte(prefix)
		buf.Write(l)
		if len(l) == 0 || l[len(l)-1] != '\n' {
			buf.WriteString("\n\\ No newline at end of file\n")
		}
	}
}
