// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/transform"

	"cvs.io/errors"
	"cvs.io/rcsnum"
)

// Keyword describes the revision whose keywords are being expanded.
type Keyword struct {
	Path   string // Full path of the RCS file.
	Rev    rcsnum.Num
	Date   time.Time
	Author string
	State  string
	Locker string
	Log    string
	Name   string // Tag the revision was checked out by, if any.
}

// KeywordInfo returns the keyword values of revision rev.
func (f *File) KeywordInfo(rev rcsnum.Num, tag string) (*Keyword, error) {
	d, err := f.Delta(rev)
	if err != nil {
		return nil, err
	}
	return &Keyword{
		Path:   f.path,
		Rev:    d.Num,
		Date:   d.Date,
		Author: d.Author,
		State:  d.State,
		Locker: f.Locker(rev),
		Log:    d.Log,
		Name:   tag,
	}, nil
}

// Keyword names, in the order RCS documents them.
var keywordNames = []string{
	"Author",
	"Date",
	"Header",
	"Id",
	"Locker",
	"Log",
	"Name",
	"RCSfile",
	"Revision",
	"Source",
	"State",
}

func lookupKeyword(name []byte) string {
	for _, k := range keywordNames {
		if string(name) == k {
			return k
		}
	}
	return ""
}

// value returns the expansion of keyword name, without delimiters.
func (k *Keyword) value(name string) string {
	date := k.Date.UTC().Format("2006/01/02 15:04:05")
	rcsfile := filepath.Base(k.Path)
	switch name {
	case "Author":
		return k.Author
	case "Date":
		return date
	case "Header", "Id":
		file := rcsfile
		if name == "Header" {
			file = k.Path
		}
		v := fmt.Sprintf("%s %s %s %s %s", file, k.Rev, date, k.Author, k.State)
		if k.Locker != "" {
			v += " " + k.Locker
		}
		return v
	case "Locker":
		return k.Locker
	case "Log", "RCSfile":
		return rcsfile
	case "Name":
		return k.Name
	case "Revision":
		return k.Rev.String()
	case "Source":
		return k.Path
	case "State":
		return k.State
	}
	return ""
}

// maxKeyword bounds the length of a $...$ sequence that is treated as a
// keyword. Longer sequences are copied unchanged.
const maxKeyword = 1024

// expander is a transform.Transformer that expands RCS keywords.
type expander struct {
	mode string
	kw   *Keyword

	// line holds the bytes of the current line copied so far, up to the
	// first keyword, for use as the $Log$ comment leader.
	line []byte
	// pending is text to insert after the end of the current line.
	pending []byte
	// out is expansion output not yet copied to dst.
	out []byte
}

// NewExpander returns a transformer that expands the keywords in its
// input according to mode. Modes "o" and "b" leave the input unchanged.
func NewExpander(mode string, kw *Keyword) transform.Transformer {
	if mode == ExpandO || mode == ExpandB {
		return transform.Nop
	}
	return &expander{mode: mode, kw: kw}
}

// ExpandKeywords expands the keywords in text according to mode.
func ExpandKeywords(text []byte, mode string, kw *Keyword) ([]byte, error) {
	const op errors.Op = "rcs.ExpandKeywords"
	if !ValidExpand(mode) {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("bad expansion mode %q", mode))
	}
	out, _, err := transform.Bytes(NewExpander(mode, kw), text)
	if err != nil {
		return nil, errors.E(op, errors.Internal, err)
	}
	return out, nil
}

func (e *expander) Reset() {
	e.line = e.line[:0]
	e.pending = nil
	e.out = nil
}

// flush copies buffered output into dst.
func (e *expander) flush(dst []byte, nDst int) (int, bool) {
	n := copy(dst[nDst:], e.out)
	e.out = e.out[n:]
	return nDst + n, len(e.out) == 0
}

func (e *expander) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	var ok bool
	if nDst, ok = e.flush(dst, nDst); !ok {
		return nDst, nSrc, transform.ErrShortDst
	}
	for nSrc < len(src) {
		c := src[nSrc]
		if c != '$' {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			if c == '\n' {
				e.line = e.line[:0]
				if e.pending != nil {
					e.out, e.pending = e.pending, nil
					if nDst, ok = e.flush(dst, nDst); !ok {
						return nDst, nSrc, transform.ErrShortDst
					}
				}
			} else if len(e.line) < maxKeyword {
				e.line = append(e.line, c)
			}
			continue
		}
		rest := src[nSrc+1:]
		end := bytes.IndexAny(rest, "$\n")
		if end < 0 && !atEOF && len(rest) < maxKeyword {
			return nDst, nSrc, transform.ErrShortSrc
		}
		name, ok2 := e.keyword(rest, end)
		if !ok2 {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			if len(e.line) < maxKeyword {
				e.line = append(e.line, c)
			}
			continue
		}
		e.out = append(e.out[:0], e.expand(name)...)
		if name == "Log" && e.mode != ExpandK {
			e.pending = e.logText()
		}
		nSrc += end + 2
		if nDst, ok = e.flush(dst, nDst); !ok {
			return nDst, nSrc, transform.ErrShortDst
		}
	}
	if atEOF && e.pending != nil {
		e.out, e.pending = append([]byte{'\n'}, e.pending...), nil
		if nDst, ok = e.flush(dst, nDst); !ok {
			return nDst, nSrc, transform.ErrShortDst
		}
	}
	return nDst, nSrc, nil
}

// keyword reports whether rest[:end] is the body of a keyword, either
// bare as in $Id$ or already expanded as in $Id: ... $.
func (e *expander) keyword(rest []byte, end int) (string, bool) {
	if end < 0 || end > maxKeyword || rest[end] != '$' {
		return "", false
	}
	body := rest[:end]
	i := bytes.IndexByte(body, ':')
	if i < 0 {
		i = len(body)
	}
	name := lookupKeyword(body[:i])
	return name, name != ""
}

func (e *expander) expand(name string) []byte {
	switch e.mode {
	case ExpandK:
		return []byte("$" + name + "$")
	case ExpandV:
		return []byte(e.kw.value(name))
	}
	return []byte("$" + name + ": " + e.kw.value(name) + " $")
}

// logText returns the lines a $Log$ keyword inserts after its line: a
// revision header and the log message, each prefixed by the text that
// precedes the keyword on its line.
func (e *expander) logText() []byte {
	leader := string(e.line)
	var b strings.Builder
	fmt.Fprintf(&b, "%sRevision %s  %s  %s\n", leader, e.kw.Rev, e.kw.Date.UTC().Format("2006/01/02 15:04:05"), e.kw.Author)
	msg := strings.TrimSuffix(e.kw.Log, "\n")
	if msg != "" {
		for _, l := range strings.Split(msg, "\n") {
			if l == "" {
				b.WriteString(strings.TrimRight(leader, " \t"))
			} else {
				b.WriteString(leader + l)
			}
			b.WriteByte('\n')
		}
	}
	b.WriteString(strings.TrimRight(leader, " \t"))
	b.WriteByte('\n')
	return []byte(b.String())
}
