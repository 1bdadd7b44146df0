// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ignore decides which files in a working directory cvs ignores.
package ignore // import "cvs.io/ignore"

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"cvs.io/errors"
)

// Default is the list of patterns ignored by default.
var Default = []string{
	"RCS", "SCCS", "CVS", "CVS.adm", "RCSLOG", "cvslog.*", "tags", "TAGS",
	".make.state", ".nse_depinfo", "*~", "#*", ".#*", ",*", "_$*", "*$",
	"*.old", "*.bak", "*.BAK", "*.orig", "*.rej", ".del-*", "*.a", "*.olb",
	"*.o", "*.obj", "*.so", "*.exe", "*.Z", "*.elc", "*.ln", "core",
}

// FileName is the name of per-directory and per-user ignore files.
const FileName = ".cvsignore"

// List is a set of ignore patterns.
type List struct {
	patterns []string
	globs    []glob.Glob
}

// New returns a List holding the default patterns.
func New() *List {
	l := new(List)
	for _, p := range Default {
		l.add(p)
	}
	return l
}

// Add adds whitespace-separated patterns. The pattern "!" clears the
// list, including the defaults.
func (l *List) Add(patterns string) error {
	const op errors.Op = "ignore.Add"
	for _, p := range strings.Fields(patterns) {
		if p == "!" {
			l.patterns, l.globs = nil, nil
			continue
		}
		if err := l.add(p); err != nil {
			return errors.E(op, errors.Invalid, err)
		}
	}
	return nil
}

func (l *List) add(pattern string) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return errors.Errorf("bad pattern %q: %v", pattern, err)
	}
	l.patterns = append(l.patterns, pattern)
	l.globs = append(l.globs, g)
	return nil
}

// AddFile adds the patterns in the named file. A missing file is not an
// error.
func (l *List) AddFile(name string) error {
	const op errors.Op = "ignore.AddFile"
	data, err := ioutil.ReadFile(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.E(op, errors.Path(name), errors.IO, err)
	}
	if err := l.Add(string(data)); err != nil {
		return errors.E(op, errors.Path(name), err)
	}
	return nil
}

// Clone returns a copy of l, to which patterns for a subdirectory may be
// added without affecting l.
func (l *List) Clone() *List {
	return &List{
		patterns: append([]string(nil), l.patterns...),
		globs:    append([]glob.Glob(nil), l.globs...),
	}
}

// ForDir returns a copy of l with the patterns of dir's .cvsignore added.
func (l *List) ForDir(dir string) (*List, error) {
	c := l.Clone()
	if err := c.AddFile(filepath.Join(dir, FileName)); err != nil {
		return nil, err
	}
	return c, nil
}

// Patterns returns the patterns in the list.
func (l *List) Patterns() []string {
	return append([]string(nil), l.patterns...)
}

// Match reports whether the file name, a base name, is ignored.
func (l *List) Match(name string) bool {
	name = filepath.Base(name)
	for _, g := range l.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
