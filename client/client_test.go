// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cvs.io/cvsroot"
	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/rcs"
	"cvs.io/repository"
	"cvs.io/server"
	"cvs.io/test/testutil"
)

var base = testutil.Base

// scripted is a server that answers with fixed text and records what
// the client sends.
type scripted struct {
	r    io.Reader
	sent bytes.Buffer
}

func (s *scripted) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *scripted) Write(p []byte) (int, error) { return s.sent.Write(p) }

func newScripted(responses string) *scripted {
	return &scripted{r: strings.NewReader(responses)}
}

func TestHandshakeMissingRequest(t *testing.T) {
	fake := newScripted("Valid-requests Root Valid-responses valid-requests Directory Entry\nok\n")
	s := New(fake, Config{Root: &cvsroot.Root{Dir: "/cvsroot"}, Stdout: ioutil.Discard, Stderr: ioutil.Discard})
	err := s.Connect()
	if !errors.Is(errors.Protocol, err) {
		t.Fatalf("Connect error %v; want Protocol", err)
	}
	if !strings.Contains(err.Error(), "server does not support required request(s)") {
		t.Errorf("error %q does not name the failure", err)
	}
	if !strings.Contains(err.Error(), "Modified") {
		t.Errorf("error %q does not name the missing request", err)
	}
	if strings.Contains(fake.sent.String(), "UseUnchanged") {
		t.Errorf("client continued after a failed handshake: %q", fake.sent.String())
	}
	if !strings.HasPrefix(fake.sent.String(), "Root /cvsroot\nValid-responses ") {
		t.Errorf("client sent %q", fake.sent.String())
	}
}

func TestHandshakeErrors(t *testing.T) {
	tests := []struct {
		name      string
		responses string
	}{
		{"eof", ""},
		{"unknown response", "Bogus x\nok\n"},
		{"no Valid-requests", "ok\n"},
		{"rejected", "E no such root\nerror  \n"},
	}
	for _, test := range tests {
		s := New(newScripted(test.responses), Config{Root: &cvsroot.Root{Dir: "/cvsroot"}, Stdout: ioutil.Discard, Stderr: ioutil.Discard})
		if err := s.Connect(); !errors.Is(errors.Protocol, err) {
			t.Errorf("%s: error %v; want Protocol", test.name, err)
		}
	}
}

func TestApplyPatch(t *testing.T) {
	tests := []struct{ from, to string }{
		{"a\nb\nc\n", "a\nB\nc\n"},
		{"a\nb\nc\n", "x\na\nb\nc\ny\n"},
		{"a\nb\nc", "a\nb\nc\n"},
		{"a\nb\nc\n", "a\nb"},
		{strings.Repeat("line\n", 20) + "end\n", "start\n" + strings.Repeat("line\n", 20)},
	}
	for _, test := range tests {
		d := rcs.UnifiedDiff("f", "f", []byte(test.from), []byte(test.to), 2)
		got, err := applyPatch([]byte(test.from), d)
		if err != nil {
			t.Errorf("applyPatch(%q, %q): %v", test.from, d, err)
			continue
		}
		if string(got) != test.to {
			t.Errorf("applyPatch(%q, %q) = %q; want %q", test.from, d, got, test.to)
		}
	}
	d := rcs.UnifiedDiff("f", "f", []byte("a\nb\n"), []byte("a\nc\n"), 2)
	if _, err := applyPatch([]byte("x\ny\n"), d); !errors.Is(errors.Invalid, err) {
		t.Errorf("applying to the wrong file: error %v; want Invalid", err)
	}
}

func TestPatchedChecksum(t *testing.T) {
	work := t.TempDir()
	dir := filepath.Join(work, "mod")
	if err := os.Mkdir(dir, 0777); err != nil {
		t.Fatal(err)
	}
	if err := entries.Create(dir, ":local:/cvsroot", "mod"); err != nil {
		t.Fatal(err)
	}
	old := []byte("a\nb\nc\n")
	if err := ioutil.WriteFile(filepath.Join(dir, "a.txt"), old, 0644); err != nil {
		t.Fatal(err)
	}
	next := []byte("a\nB\nc\n")
	d := rcs.UnifiedDiff("a.txt", "a.txt", old, next, 2)
	body := func(sum string) string {
		return fmt.Sprintf("Checksum %s\nPatched mod/\n/cvsroot/mod/a.txt\n/a.txt/1.2///\nu=rw,g=r,o=r\n%d\n%sok\n", sum, len(d), d)
	}

	s := New(newScripted(body(fmt.Sprintf("%x", md5.Sum(next)))), Config{Root: &cvsroot.Root{Dir: "/cvsroot"}, Dir: work})
	if err := s.wait(); err != nil {
		t.Fatal(err)
	}
	if err := s.finish(); err != nil {
		t.Fatal(err)
	}
	got, _ := ioutil.ReadFile(filepath.Join(dir, "a.txt"))
	if !bytes.Equal(got, next) {
		t.Errorf("patched file %q; want %q", got, next)
	}
	e := entry(t, dir, "a.txt")
	if e.Rev != "1.2" {
		t.Errorf("entry revision %s; want 1.2", e.Rev)
	}

	ioutil.WriteFile(filepath.Join(dir, "a.txt"), old, 0644)
	s = New(newScripted(body(strings.Repeat("0", 32))), Config{Root: &cvsroot.Root{Dir: "/cvsroot"}, Dir: work})
	if err := s.wait(); !errors.Is(errors.Invalid, err) {
		t.Errorf("bad checksum: error %v; want Invalid", err)
	}
	got, _ = ioutil.ReadFile(filepath.Join(dir, "a.txt"))
	if !bytes.Equal(got, old) {
		t.Errorf("file changed despite bad checksum: %q", got)
	}
}

func TestModTime(t *testing.T) {
	s := New(newScripted(""), Config{Root: &cvsroot.Root{Dir: "/cvsroot"}})
	if err := modTime(s, "1 May 2020 12:00:00 -0000"); err != nil {
		t.Fatal(err)
	}
	if !s.modTime.Equal(base) {
		t.Errorf("mod time %v; want %v", s.modTime, base)
	}
	if err := modTime(s, "yesterday"); !errors.Is(errors.Protocol, err) {
		t.Errorf("bad date: error %v; want Protocol", err)
	}
}

// newRepo returns a repository holding mod/a.txt at revision 1.1.
func newRepo(t *testing.T) *repository.Repository {
	return testutil.Repository(t, map[string]string{"mod/a.txt": "one\n"})
}

// connect returns a connected session with an in-process server for r,
// working in dir.
func connect(t *testing.T, r *repository.Repository, dir string) (*Session, *bytes.Buffer) {
	t.Helper()
	c1, c2 := net.Pipe()
	srv := server.NewSession(c2, c2, server.Config{Root: r.Root(), User: "ann", LockInterval: 10 * time.Millisecond})
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(context.Background())
		c2.Close()
	}()
	var out bytes.Buffer
	s := New(c1, Config{
		Root:   &cvsroot.Root{Method: cvsroot.Local, Dir: r.Root()},
		Dir:    dir,
		Stdout: &out,
		Stderr: &out,
	})
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Close()
		<-done
	})
	return s, &out
}

func entry(t *testing.T, dir, name string) *entries.Entry {
	t.Helper()
	l, err := entries.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	e, err := l.Get(name)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return e
}

func TestRoundTrip(t *testing.T) {
	r := newRepo(t)
	work := t.TempDir()
	mod := filepath.Join(work, "mod")

	s, out := connect(t, r, work)
	if err := s.Checkout([]string{"mod"}); err != nil {
		t.Fatalf("checkout: %v\n%s", err, out)
	}
	if got := testutil.ReadFile(t, filepath.Join(mod, "a.txt")); got != "one\n" {
		t.Errorf("checked out %q", got)
	}
	if e := entry(t, mod, "a.txt"); e.Rev != "1.1" {
		t.Errorf("checked out revision %s", e.Rev)
	}
	if rel, err := entries.ReadRepository(mod); err != nil || rel != "mod" {
		t.Errorf("CVS/Repository = %q, %v; want mod", rel, err)
	}
	if !strings.Contains(out.String(), "U mod/a.txt") {
		t.Errorf("checkout output %q", out)
	}

	// Commit a change.
	testutil.WriteFile(t, filepath.Join(mod, "a.txt"), "one\ntwo\n", base)
	s, out = connect(t, r, mod)
	if err := s.Commit([]string{"-m", "second"}); err != nil {
		t.Fatalf("commit: %v\n%s", err, out)
	}
	if e := entry(t, mod, "a.txt"); e.Rev != "1.2" || e.Timestamp != entries.FormatTime(base) {
		t.Errorf("after commit entry is %s", e)
	}

	// A second working copy sees it and reports it up to date.
	work2 := t.TempDir()
	s, out = connect(t, r, work2)
	if err := s.Checkout([]string{"mod"}); err != nil {
		t.Fatalf("checkout: %v\n%s", err, out)
	}
	if got := testutil.ReadFile(t, filepath.Join(work2, "mod", "a.txt")); got != "one\ntwo\n" {
		t.Errorf("second checkout %q", got)
	}
	s, out = connect(t, r, filepath.Join(work2, "mod"))
	if err := s.Status(nil); err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out.String(), "Status: Up-to-date") {
		t.Errorf("status output %q", out)
	}

	// Add, commit, then remove a file.
	testutil.WriteFile(t, filepath.Join(mod, "b.txt"), "bee\n", base)
	s, out = connect(t, r, mod)
	if err := s.Add([]string{"b.txt"}); err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if e := entry(t, mod, "b.txt"); !e.Added() {
		t.Errorf("after add entry is %s", e)
	}
	s, out = connect(t, r, mod)
	if err := s.Commit([]string{"-m", "add b"}); err != nil {
		t.Fatalf("commit: %v\n%s", err, out)
	}
	if e := entry(t, mod, "b.txt"); e.Rev != "1.1" {
		t.Errorf("after commit entry is %s", e)
	}
	s, out = connect(t, r, mod)
	if err := s.Remove([]string{"-f", "b.txt"}); err != nil {
		t.Fatalf("remove: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(mod, "b.txt")); !os.IsNotExist(err) {
		t.Errorf("remove -f left the file: %v", err)
	}
	if e := entry(t, mod, "b.txt"); !e.Removed() {
		t.Errorf("after remove entry is %s", e)
	}
	s, out = connect(t, r, mod)
	if err := s.Commit([]string{"-m", "remove b"}); err != nil {
		t.Fatalf("commit: %v\n%s", err, out)
	}
	l, err := entries.Open(mod)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Get("b.txt"); !errors.Is(errors.NotExist, err) {
		t.Errorf("entry for b.txt remains after commit: %v", err)
	}

	// A later change reaches the second working copy by update.
	testutil.WriteFile(t, filepath.Join(mod, "a.txt"), "one\ntwo\nthree\n", base.Add(time.Hour))
	s, out = connect(t, r, mod)
	if err := s.Commit([]string{"-m", "third", "a.txt"}); err != nil {
		t.Fatalf("commit: %v\n%s", err, out)
	}
	mod2 := filepath.Join(work2, "mod")
	s, out = connect(t, r, mod2)
	if err := s.Update(nil); err != nil {
		t.Fatalf("update: %v\n%s", err, out)
	}
	if e := entry(t, mod2, "a.txt"); e.Rev != "1.3" {
		t.Errorf("after update entry is %s", e)
	}
	if got := testutil.ReadFile(t, filepath.Join(mod2, "a.txt")); got != "one\ntwo\nthree\n" {
		t.Errorf("after update file is %q", got)
	}
}

func TestUpdateNoExec(t *testing.T) {
	r := newRepo(t)
	work := t.TempDir()
	s, out := connect(t, r, work)
	if err := s.Checkout([]string{"mod"}); err != nil {
		t.Fatalf("checkout: %v\n%s", err, out)
	}
	mod := filepath.Join(work, "mod")
	if _, err := r.Commit("mod", "a.txt", repository.Change{Data: []byte("one\nmore\n"), Log: "x\n", Author: "bob", Date: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	before := testutil.ReadFile(t, filepath.Join(mod, "CVS", "Entries"))

	c1, c2 := net.Pipe()
	srv := server.NewSession(c2, c2, server.Config{Root: r.Root(), User: "ann"})
	go func() {
		srv.Serve(context.Background())
		c2.Close()
	}()
	var buf bytes.Buffer
	s = New(c1, Config{Root: &cvsroot.Root{Dir: r.Root()}, Dir: mod, Stdout: &buf, Stderr: &buf, NoExec: true})
	defer s.Close()
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(nil); err != nil {
		t.Fatalf("update -n: %v\n%s", err, &buf)
	}
	if !strings.Contains(buf.String(), "U a.txt") {
		t.Errorf("update -n output %q", &buf)
	}
	if got := testutil.ReadFile(t, filepath.Join(mod, "a.txt")); got != "one\n" {
		t.Errorf("update -n changed the file to %q", got)
	}
	if after := testutil.ReadFile(t, filepath.Join(mod, "CVS", "Entries")); after != before {
		t.Errorf("update -n changed Entries from %q to %q", before, after)
	}
}

func TestVersion(t *testing.T) {
	r := newRepo(t)
	s, out := connect(t, r, t.TempDir())
	if err := s.Version(nil); err != nil {
		t.Fatal(err)
	}
	if out.Len() == 0 {
		t.Error("no version printed")
	}
}

func TestInit(t *testing.T) {
	root := filepath.Join(t.TempDir(), "newroot")
	c1, c2 := net.Pipe()
	srv := server.NewSession(c2, c2, server.Config{User: "ann"})
	go func() {
		srv.Serve(context.Background())
		c2.Close()
	}()
	s := New(c1, Config{Root: &cvsroot.Root{Dir: root}, Stdout: ioutil.Discard, Stderr: ioutil.Discard})
	defer s.Close()
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := repository.Open(root); err != nil {
		t.Errorf("repository not created: %v", err)
	}
}
