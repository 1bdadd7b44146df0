// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"cvs.io/errors"
)

func TestMissing(t *testing.T) {
	s := ParseSet(Join(Requests))
	if m := s.Missing(Requests); len(m) != 0 {
		t.Errorf("full set missing %v", m)
	}
	s = ParseSet("Root Valid-responses valid-requests Directory Entry Modified Unchanged Argument")
	m := s.Missing(Requests)
	if len(m) != 1 || m[0] != "Argumentx" {
		t.Errorf("Missing = %v; want [Argumentx]", m)
	}
	if !s.Has("Entry") || s.Has("ci") {
		t.Error("Has wrong")
	}
}

func TestSplit(t *testing.T) {
	for _, test := range []struct{ line, name, args string }{
		{"Directory .", "Directory", "."},
		{"Argument -m a b", "Argument", "-m a b"},
		{"noop", "noop", ""},
		{"M ", "M", ""},
	} {
		name, args := Split(test.line)
		if name != test.name || args != test.args {
			t.Errorf("Split(%q) = %q, %q; want %q, %q", test.line, name, args, test.name, test.args)
		}
	}
}

func TestModes(t *testing.T) {
	for _, test := range []struct {
		mode os.FileMode
		str  string
	}{
		{0644, "u=rw,g=r,o=r"},
		{0755, "u=rwx,g=rx,o=rx"},
		{0600, "u=rw,g=,o="},
		{0444, "u=r,g=r,o=r"},
	} {
		if got := FormatMode(test.mode); got != test.str {
			t.Errorf("FormatMode(%o) = %q; want %q", test.mode, got, test.str)
		}
		m, err := ParseMode(test.str)
		if err != nil || m != test.mode {
			t.Errorf("ParseMode(%q) = %o, %v; want %o", test.str, m, err, test.mode)
		}
	}
	if m, err := ParseMode("o=r,u=w"); err != nil || m != 0204 {
		t.Errorf("ParseMode out of order = %o, %v", m, err)
	}
	for _, bad := range []string{"", "u", "q=r", "u=rq", "u:rw"} {
		if _, err := ParseMode(bad); !errors.Is(errors.Protocol, err) {
			t.Errorf("ParseMode(%q) error = %v; want Protocol", bad, err)
		}
	}
}

func TestLines(t *testing.T) {
	var out bytes.Buffer
	c := NewConn(strings.NewReader("ok\nerror  bad thing\n"), &out)
	for _, want := range []string{"ok", "error  bad thing"} {
		line, err := c.ReadLine()
		if err != nil || line != want {
			t.Fatalf("ReadLine = %q, %v; want %q", line, err, want)
		}
	}
	if _, err := c.ReadLine(); err != io.EOF {
		t.Errorf("ReadLine at end = %v; want io.EOF", err)
	}
	c.WriteLine("Root /cvs")
	c.Printf("Argument %s", "-q")
	if out.Len() != 0 {
		t.Error("output not buffered")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "Root /cvs\nArgument -q\n"; got != want {
		t.Errorf("output %q; want %q", got, want)
	}

	c = NewConn(strings.NewReader("partial"), &out)
	if _, err := c.ReadLine(); !errors.Is(errors.Protocol, err) {
		t.Errorf("partial line error = %v; want Protocol", err)
	}
}

func TestFileFraming(t *testing.T) {
	var buf bytes.Buffer
	w := NewConn(strings.NewReader(""), &buf)
	data := []byte("line 1\nno newline, and \x00 binary")
	if err := w.SendFile(0644, data); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteLine("ok"); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	want := "u=rw,g=r,o=r\n" + strconv.Itoa(len(data)) + "\n" + string(data) + "ok\n"
	if buf.String() != want {
		t.Fatalf("framed = %q; want %q", buf.String(), want)
	}

	r := NewConn(&buf, io.Discard)
	mode, got, err := r.ReceiveFile()
	if err != nil {
		t.Fatal(err)
	}
	if mode != 0644 || !bytes.Equal(got, data) {
		t.Errorf("ReceiveFile = %o %q", mode, got)
	}
	// The payload is not line framed; the next line follows it directly.
	if line, err := r.ReadLine(); err != nil || line != "ok" {
		t.Errorf("line after file = %q, %v", line, err)
	}
}

func TestReceiveHugeLength(t *testing.T) {
	in := "u=rw,g=r,o=r\n" + strconv.Itoa(MaxFileSize) + "\nonly a few bytes"
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	c := NewConn(strings.NewReader(in), io.Discard)
	_, _, err := c.ReceiveFile()
	runtime.ReadMemStats(&after)
	if !errors.Is(errors.Protocol, err) {
		t.Errorf("ReceiveFile error = %v; want Protocol", err)
	}
	if n := after.TotalAlloc - before.TotalAlloc; n > 16<<20 {
		t.Errorf("ReceiveFile allocated %d bytes for a short file", n)
	}
}

func TestReceiveErrors(t *testing.T) {
	for _, in := range []string{
		"u=rw,g=r,o=r\n10\nshort",
		"u=rw,g=r,o=r\n-1\n",
		"u=rw,g=r,o=r\nten\n",
		"u=rw,g=r,o=r\nz10\n",
		"u=rw,g=r,o=r\n",
		"bogus\n0\n",
	} {
		c := NewConn(strings.NewReader(in), io.Discard)
		if _, _, err := c.ReceiveFile(); !errors.Is(errors.Protocol, err) {
			t.Errorf("ReceiveFile(%q) error = %v; want Protocol", in, err)
		}
	}
}
