// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testutil includes utility functions for cvs.io tests.
package testutil // import "cvs.io/test/testutil"

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"cvs.io/repository"
)

// Base is the date of the revisions that Repository creates.
var Base = time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)

// Repository returns a new repository in a temporary directory. Each
// key of files is a slash-separated path in the repository; its file is
// committed by ann at Base with the value as its text, giving revision
// 1.1.
func Repository(t testing.TB, files map[string]string) *repository.Repository {
	t.Helper()
	r, err := repository.Init(filepath.Join(t.TempDir(), "cvsroot"))
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dir, file := path.Split(name)
		dir = path.Clean(dir)
		if dir != "." {
			if err := r.MkDir(dir); err != nil {
				t.Fatal(err)
			}
		}
		c := repository.Change{Data: []byte(files[name]), Log: "first\n", Author: "ann", Date: Base}
		if _, err := r.Commit(dir, file, c); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

// ReadFile returns the contents of the named file.
func ReadFile(t testing.TB, name string) string {
	t.Helper()
	data, err := ioutil.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// WriteFile writes text to the named file, creating its directory, and
// sets its modification time to when.
func WriteFile(t testing.TB, name, text string, when time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0777); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(name, []byte(text), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(name, when, when); err != nil {
		t.Fatal(err)
	}
}
