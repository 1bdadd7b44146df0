// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

import (
	"io"
	"testing"
)

func TestSeparator(t *testing.T) {
	defer func(prev string) {
		Separator = prev
	}(Separator)
	Separator = ":: "

	path := Path("src/foo.c,v")
	err := Str("unexpected EOF")

	e1 := E(Op("rcs.Open"), path, Syntax, err)
	e2 := E(Op("server.update"), Path("src"), Other, e1)

	want := "server.update: src: syntax error:: rcs.Open: src/foo.c,v: unexpected EOF"
	if e2.Error() != want {
		t.Errorf("expected %q; got %q", want, e2)
	}
}

func TestDoesNotChangePreviousError(t *testing.T) {
	err := E(Permission)
	err2 := E(Op("I will NOT modify err"), err)

	expected := "I will NOT modify err: permission denied"
	if err2.Error() != expected {
		t.Fatalf("Expected %q, got %q", expected, err2)
	}
	kind := err.(*Error).Kind
	if kind != Permission {
		t.Fatalf("Expected kind %v, got %v", Permission, kind)
	}
}

func TestNoArgs(t *testing.T) {
	defer func() {
		err := recover()
		if err == nil {
			t.Fatal("E() did not panic")
		}
	}()
	_ = E()
}

func TestIs(t *testing.T) {
	inner := E(Op("lock.WriteLock"), Busy)
	outer := E(Op("server.ci"), Path("src"), inner)
	if !Is(Busy, outer) {
		t.Errorf("Is(Busy, %q) = false; want true", outer)
	}
	if Is(NotExist, outer) {
		t.Errorf("Is(NotExist, %q) = true; want false", outer)
	}
	if Is(Busy, io.EOF) {
		t.Errorf("Is(Busy, io.EOF) = true; want false")
	}
	if Is(Busy, nil) {
		t.Errorf("Is(Busy, nil) = true; want false")
	}
}

type matchTest struct {
	err1, err2 error
	matched    bool
}

const (
	path1 = Path("src/a.c,v")
	path2 = Path("src/b.c,v")
	op    = Op("Op")
	op1   = Op("Op1")
	op2   = Op("Op2")
)

var matchTests = []matchTest{
	// Errors not of type *Error fail outright.
	{nil, nil, false},
	{io.EOF, io.EOF, false},
	{E(io.EOF), io.EOF, false},
	{io.EOF, E(io.EOF), false},
	// Success. We can drop fields from the first argument and still match.
	{E(io.EOF), E(io.EOF), true},
	{E(op, Syntax, io.EOF, path1), E(op, Syntax, io.EOF, path1), true},
	{E(op, Syntax, io.EOF), E(op, Syntax, io.EOF, path1), true},
	{E(op, Syntax), E(op, Syntax, io.EOF, path1), true},
	{E(op), E(op, Syntax, io.EOF, path1), true},
	// Failure.
	{E(io.EOF), E(io.ErrClosedPipe), false},
	{E(op1), E(op2), false},
	{E(Syntax), E(Permission), false},
	{E(path1), E(path2), false},
	{E(path1, Str("something")), E(path1), false}, // Test nil error on rhs.
	// Nested *Errors.
	{E(op1, E(path1)), E(op1, E(op2, path1)), true},
	{E(op1, path1), E(op1, E(op2, path1)), false},
	{E(op1, E(path1)), E(op1, Str(string(E(op2, path1).Error()))), false},
}

func TestMatch(t *testing.T) {
	for _, test := range matchTests {
		matched := Match(test.err1, test.err2)
		if matched != test.matched {
			t.Errorf("Match(%q, %q)=%t; want %t", test.err1, test.err2, matched, test.matched)
		}
	}
}

func TestStringArgument(t *testing.T) {
	err := E(Op("lock.ReadLock"), Path("/cvsroot/src"), IO, "cannot create read lock")
	want := "lock.ReadLock: /cvsroot/src: I/O error: cannot create read lock"
	if err.Error() != want {
		t.Errorf("got %q; want %q", err, want)
	}
}
