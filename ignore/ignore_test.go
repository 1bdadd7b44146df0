// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ignore

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	l := New()
	for _, name := range []string{"CVS", "foo.o", "foo~", "#foo#", ".#foo.c.1.2", ",foo,", "core", "a/b/x.orig", "cvslog.123"} {
		if !l.Match(name) {
			t.Errorf("%q not ignored", name)
		}
	}
	for _, name := range []string{"foo.c", "Makefile", "corefile", "cvslog"} {
		if l.Match(name) {
			t.Errorf("%q ignored", name)
		}
	}
}

func TestAddAndReset(t *testing.T) {
	l := New()
	if err := l.Add("*.log  build\n"); err != nil {
		t.Fatal(err)
	}
	if !l.Match("x.log") || !l.Match("build") {
		t.Error("added patterns not matched")
	}
	if err := l.Add("! *.tmp"); err != nil {
		t.Fatal(err)
	}
	if l.Match("foo.o") || l.Match("x.log") {
		t.Error("! did not clear the list")
	}
	if !l.Match("a.tmp") {
		t.Error("pattern after ! not matched")
	}
	if got := l.Patterns(); len(got) != 1 || got[0] != "*.tmp" {
		t.Errorf("Patterns() = %v", got)
	}
}

func TestForDir(t *testing.T) {
	dir := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(dir, FileName), []byte("*.gen\n"), 0644); err != nil {
		t.Fatal(err)
	}
	base := New()
	l, err := base.ForDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Match("x.gen") {
		t.Error("per-directory pattern not matched")
	}
	if base.Match("x.gen") {
		t.Error("per-directory pattern leaked into parent list")
	}
	if _, err := base.ForDir(t.TempDir()); err != nil {
		t.Errorf("directory without %s: %v", FileName, err)
	}
}
