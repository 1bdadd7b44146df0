// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package entries

import (
	"strings"
	"time"

	"cvs.io/errors"
	"cvs.io/rcsnum"
)

// TimeFormat is the asctime layout of entry timestamps, always in UTC.
const TimeFormat = "Mon Jan _2 15:04:05 2006"

// Timestamps with special meaning.
const (
	DummyTimestamp = "dummy timestamp"
	MergeTimestamp = "Result of merge"
	InitialName    = "Initial "
)

// Entry is one line of a CVS/Entries file:
//
//	/name/rev/timestamp[+conflict]/options/tagdate
//	D/name////
type Entry struct {
	Dir       bool
	Name      string
	Rev       string // "0" when added, "-rev" when removed.
	Timestamp string
	Conflict  string
	Options   string // Keyword expansion, such as "-kb".
	Tag       string // Sticky tag or date, "Ttag" or "Ddate".
}

// Parse parses a single Entries line, without its trailing newline.
func Parse(line string) (*Entry, error) {
	const op errors.Op = "entries.Parse"
	e := new(Entry)
	if strings.HasPrefix(line, "D/") {
		e.Dir = true
		line = line[1:]
	}
	if !strings.HasPrefix(line, "/") {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("bad entry %q", line))
	}
	f := strings.Split(line[1:], "/")
	if len(f) != 5 {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("bad entry %q: %d fields", line, len(f)))
	}
	if f[0] == "" {
		return nil, errors.E(op, errors.Syntax, errors.Errorf("bad entry %q: empty name", line))
	}
	e.Name, e.Rev, e.Options, e.Tag = f[0], f[1], f[3], f[4]
	e.Timestamp = f[2]
	if i := strings.IndexByte(f[2], '+'); i >= 0 {
		e.Timestamp, e.Conflict = f[2][:i], f[2][i+1:]
	}
	if e.Dir {
		return e, nil
	}
	if e.Rev != "" && e.Rev != "0" {
		if _, err := rcsnum.Parse(strings.TrimPrefix(e.Rev, "-")); err != nil {
			return nil, errors.E(op, errors.Syntax, errors.Errorf("bad entry %q: revision %q", line, e.Rev))
		}
	}
	return e, nil
}

// String formats the entry as an Entries line, without a newline.
func (e *Entry) String() string {
	if e.Dir {
		return "D/" + e.Name + "////"
	}
	ts := e.Timestamp
	if e.Conflict != "" {
		ts += "+" + e.Conflict
	}
	return "/" + e.Name + "/" + e.Rev + "/" + ts + "/" + e.Options + "/" + e.Tag
}

// Num returns the entry's revision number, or an error if the entry is
// a directory or has been added but not committed.
func (e *Entry) Num() (rcsnum.Num, error) {
	const op errors.Op = "entries.Num"
	if e.Dir || e.Added() {
		return rcsnum.Num{}, errors.E(op, errors.Path(e.Name), errors.Invalid, errors.Str("no revision"))
	}
	n, err := rcsnum.Parse(strings.TrimPrefix(e.Rev, "-"))
	if err != nil {
		return rcsnum.Num{}, errors.E(op, errors.Path(e.Name), err)
	}
	return n, nil
}

// Added reports whether the entry records a file scheduled for addition.
func (e *Entry) Added() bool { return e.Rev == "0" }

// Removed reports whether the entry records a file scheduled for removal.
func (e *Entry) Removed() bool { return strings.HasPrefix(e.Rev, "-") }

// Time returns the modification time recorded in the entry. It reports
// false for the special timestamps that do not hold a time.
func (e *Entry) Time() (time.Time, bool) {
	t, err := ParseTime(e.Timestamp)
	return t, err == nil
}

// StickyTag returns the sticky tag name, if the entry has one.
func (e *Entry) StickyTag() string {
	if strings.HasPrefix(e.Tag, "T") {
		return e.Tag[1:]
	}
	return ""
}

// StickyDate returns the sticky date, if the entry has one.
func (e *Entry) StickyDate() string {
	if strings.HasPrefix(e.Tag, "D") {
		return e.Tag[1:]
	}
	return ""
}

// FormatTime formats t as an entry timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses an entry timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.E(errors.Op("entries.ParseTime"), errors.Syntax, err)
	}
	return t, nil
}
