// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bytes"

	"github.com/sourcegraph/go-diff/diff"

	"cvs.io/errors"
	"cvs.io/rcs"
)

// applyPatch applies a unified diff, as sent in a Patched response, to
// the contents of a file.
func applyPatch(old, patch []byte) ([]byte, error) {
	const op errors.Op = "client.applyPatch"
	fd, err := diff.ParseFileDiff(patch)
	if err != nil {
		return nil, errors.E(op, errors.Protocol, err)
	}
	lines := rcs.SplitLines(old)
	var out bytes.Buffer
	next := 0 // Index of the first old line not yet copied.
	for _, h := range fd.Hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			start = int(h.OrigStartLine)
		}
		if start < next || start > len(lines) {
			return nil, errors.E(op, errors.Invalid, errors.Errorf("hunk at line %d out of order", h.OrigStartLine))
		}
		for _, l := range lines[next:start] {
			out.Write(l)
		}
		next = start
		for _, l := range rcs.SplitLines(h.Body) {
			if len(l) == 0 {
				continue
			}
			text := l[1:]
			switch l[0] {
			case ' ', '-':
				if next >= len(lines) || !sameLine(lines[next], text) {
					return nil, errors.E(op, errors.Invalid, errors.Errorf("hunk does not apply at line %d", next+1))
				}
				if l[0] == ' ' {
					out.Write(lines[next])
				}
				next++
			case '+':
				out.Write(text)
			default:
				return nil, errors.E(op, errors.Protocol, errors.Errorf("bad hunk line %q", l))
			}
		}
	}
	for _, l := range lines[next:] {
		out.Write(l)
	}
	return out.Bytes(), nil
}

// sameLine compares lines, ignoring a missing final newline.
func sameLine(a, b []byte) bool {
	return bytes.Equal(bytes.TrimSuffix(a, []byte("\n")), bytes.TrimSuffix(b, []byte("\n")))
}
