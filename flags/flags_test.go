// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flags

import (
	"flag"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestClientFlags(t *testing.T) {
	defer func() {
		Root, Trace, Quiet, NoExec = "", false, false, false
	}()
	fs := flag.NewFlagSet("cvs", flag.ContinueOnError)
	ParseArgsInto(fs, []string{"-d", ":ext:anoncvs@cvs.example.org:/cvs", "-t", "-q", "update", "-d"}, Client)

	if Root != ":ext:anoncvs@cvs.example.org:/cvs" {
		t.Errorf("Root = %q", Root)
	}
	if !Trace || !Quiet || NoExec {
		t.Errorf("Trace, Quiet, NoExec = %t, %t, %t; want true, true, false", Trace, Quiet, NoExec)
	}
	if got, want := fs.Args(), []string{"update", "-d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %q; want %q", got, want)
	}
}

func TestArgs(t *testing.T) {
	defer func() {
		LockWait = defaultLockWait
		Trace = false
	}()
	fs := flag.NewFlagSet("cvsd", flag.ContinueOnError)
	ParseArgsInto(fs, []string{"-lockwait=5s", "-trace"}, Server)
	if LockWait != 5*time.Second {
		t.Errorf("LockWait = %v; want 5s", LockWait)
	}
	args := Args()
	sort.Strings(args)
	want := []string{"-lockwait=5s", "-t=true", "-trace=true"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("Args() = %q; want %q", args, want)
	}
}

func TestUnknownFlag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("RegisterInto did not panic on an unknown flag")
		}
	}()
	RegisterInto(flag.NewFlagSet("x", flag.ContinueOnError), "bogus")
}
