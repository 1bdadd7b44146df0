// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"cvs.io/errors"
)

func clearEnv(t *testing.T) {
	for _, v := range []string{"CVSROOT", "CVS_RSH", "CVS_SERVER", "CVSUMASK", "CVSREAD", "CVSIGNORE"} {
		old, ok := os.LookupEnv(v)
		os.Unsetenv(v)
		if ok {
			t.Cleanup(func() { os.Setenv(v, old) })
		}
	}
}

func TestInitConfig(t *testing.T) {
	clearEnv(t)
	const data = `
cvsroot: ":ext:anoncvs@cvs.example.org:/cvs"
rsh: ssh -x
lockwait: 5s
lockstale: 1h
umask: 0022
ignore:
  - "*.tmp"
  - build
`
	cfg, err := InitConfig(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.Root(), ":ext:anoncvs@cvs.example.org:/cvs"; got != want {
		t.Errorf("Root = %q; want %q", got, want)
	}
	if got, want := cfg.Rsh(), "ssh -x"; got != want {
		t.Errorf("Rsh = %q; want %q", got, want)
	}
	if got, want := cfg.Server(), defaultServer; got != want {
		t.Errorf("Server = %q; want %q", got, want)
	}
	if got, want := cfg.LockWait(), 5*time.Second; got != want {
		t.Errorf("LockWait = %v; want %v", got, want)
	}
	if got, want := cfg.LockStale(), time.Hour; got != want {
		t.Errorf("LockStale = %v; want %v", got, want)
	}
	if got, want := cfg.Umask(), os.FileMode(022); got != want {
		t.Errorf("Umask = %o; want %o", got, want)
	}
	if got, want := cfg.Ignore(), []string{"*.tmp", "build"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Ignore = %q; want %q", got, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("CVSROOT", "/var/cvs")
	os.Setenv("CVS_RSH", "rsh")
	os.Setenv("CVSREAD", "")
	os.Setenv("CVSIGNORE", "*.log *.out")
	defer clearEnv(t)

	cfg, err := InitConfig(strings.NewReader("cvsroot: /somewhere/else\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Root() != "/var/cvs" {
		t.Errorf("Root = %q; want /var/cvs", cfg.Root())
	}
	if cfg.Rsh() != "rsh" {
		t.Errorf("Rsh = %q; want rsh", cfg.Rsh())
	}
	if !cfg.ReadOnly() {
		t.Error("ReadOnly = false with CVSREAD set")
	}
	if got, want := cfg.Ignore(), []string{"*.log", "*.out"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Ignore = %q; want %q", got, want)
	}
}

func TestBadKey(t *testing.T) {
	clearEnv(t)
	_, err := InitConfig(strings.NewReader("root: /var/cvs\n"))
	if !errors.Is(errors.Invalid, err) {
		t.Fatalf("err = %v; want Invalid", err)
	}
}

func TestBadDuration(t *testing.T) {
	clearEnv(t)
	_, err := InitConfig(strings.NewReader("lockwait: soon\n"))
	if !errors.Is(errors.Invalid, err) {
		t.Fatalf("err = %v; want Invalid", err)
	}
}

func TestSetters(t *testing.T) {
	base := New()
	c := base.SetRoot(":local:/cvs").SetLockWait(time.Second)
	if base.Root() != "" || base.LockWait() != defaultLockWait {
		t.Error("setters modified the original config")
	}
	if c.Root() != ":local:/cvs" || c.LockWait() != time.Second {
		t.Errorf("got root %q wait %v", c.Root(), c.LockWait())
	}
}
