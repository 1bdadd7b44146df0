// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cvsroot

import (
	"strings"
	"testing"
)

var parseTests = []struct {
	in   string
	want Root
	str  string
}{
	{"/var/cvs", Root{Method: Local, Dir: "/var/cvs"}, ":local:/var/cvs"},
	{":local:/var/cvs/", Root{Method: Local, Dir: "/var/cvs"}, ":local:/var/cvs"},
	{":fork:/var/cvs", Root{Method: Fork, Dir: "/var/cvs"}, ":fork:/var/cvs"},
	{"host:/var/cvs", Root{Method: Ext, Host: "host", Dir: "/var/cvs"}, ":ext:host:/var/cvs"},
	{"joe@host:/var/cvs", Root{Method: Ext, User: "joe", Host: "host", Dir: "/var/cvs"}, ":ext:joe@host:/var/cvs"},
	{":ext:joe@host.example.com:/var/cvs", Root{Method: Ext, User: "joe", Host: "host.example.com", Dir: "/var/cvs"}, ":ext:joe@host.example.com:/var/cvs"},
	{":ssh:joe:secret@host:2222/var/cvs", Root{Method: SSH, User: "joe", Password: "secret", Host: "host", Port: 2222, Dir: "/var/cvs"}, ":ssh:joe@host:2222/var/cvs"},
	{":server:host/var/cvs", Root{Method: Server, Host: "host", Dir: "/var/cvs"}, ":server:host:/var/cvs"},
	{":server:host:2401/var/cvs", Root{Method: Server, Host: "host", Port: 2401, Dir: "/var/cvs"}, ":server:host:2401/var/cvs"},
}

func TestParseAndString(t *testing.T) {
	for _, test := range parseTests {
		r, err := Parse(test.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", test.in, err)
			continue
		}
		if *r != test.want {
			t.Errorf("Parse(%q) = %+v; want %+v", test.in, *r, test.want)
		}
		if got := r.String(); got != test.str {
			t.Errorf("Parse(%q).String() = %q; want %q", test.in, got, test.str)
		}
		// The canonical form parses to the same root, less the password.
		r2, err := Parse(test.str)
		if err != nil {
			t.Errorf("Parse(%q): %v", test.str, err)
			continue
		}
		want := test.want
		want.Password = ""
		if *r2 != want {
			t.Errorf("Parse(%q) = %+v; want %+v", test.str, *r2, want)
		}
	}
}

func TestErrorCases(t *testing.T) {
	for _, test := range []struct{ in, msg string }{
		{":pserver:host:/cvs", "unknown method"},
		{":local", "unterminated method"},
		{":local:cvs", "absolute path"},
		{"host:", "no repository path"},
		{":ext:@:/cvs", "no host name"},
		{":ssh:host:99999/cvs", "bad port"},
		{"relative/path", "missing ':'"},
	} {
		_, err := Parse(test.in)
		if err == nil {
			t.Errorf("Parse(%q) succeeded", test.in)
			continue
		}
		if !strings.Contains(err.Error(), test.msg) {
			t.Errorf("Parse(%q) error %q; want %q", test.in, err, test.msg)
		}
	}
}

func TestAddr(t *testing.T) {
	r := &Root{Method: Server, Host: "h"}
	if got := r.Addr(2401); got != "h:2401" {
		t.Errorf("Addr = %q", got)
	}
	r.Port = 99
	if got := r.Addr(2401); got != "h:99" {
		t.Errorf("Addr = %q", got)
	}
}
