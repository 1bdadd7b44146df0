// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protocol holds the pieces of the CVS client/server protocol
// shared by both sides: the tables of request and response names, the
// line-oriented connection, and file transfer framing.
package protocol // import "cvs.io/protocol"

import (
	"sort"
	"strings"
)

// Name describes a request or response and whether the peer must
// support it for a session to proceed.
type Name struct {
	Name     string
	Required bool
}

// Requests are the requests this implementation knows. A server that
// does not list a Required request in Valid-requests cannot be used.
var Requests = []Name{
	{"Root", true},
	{"Valid-responses", true},
	{"valid-requests", true},
	{"Directory", true},
	{"Max-dotdot", false},
	{"Static-directory", false},
	{"Sticky", false},
	{"Entry", true},
	{"Kopt", false},
	{"Checkin-time", false},
	{"Modified", true},
	{"Is-modified", false},
	{"Unchanged", true},
	{"Questionable", false},
	{"Case", false},
	{"Argument", true},
	{"Argumentx", true},
	{"Global_option", false},
	{"Set", false},
	{"UseUnchanged", false},
	{"expand-modules", false},
	{"noop", false},
	{"version", false},
	{"init", false},
	{"update", false},
	{"co", false},
	{"ci", false},
	{"add", false},
	{"remove", false},
	{"tag", false},
	{"status", false},
	{"log", false},
	{"diff", false},
}

// Responses are the responses this implementation knows. A client that
// does not list a Required response in Valid-responses cannot be served.
var Responses = []Name{
	{"ok", true},
	{"error", true},
	{"Valid-requests", true},
	{"Checked-in", true},
	{"New-entry", false},
	{"Checksum", false},
	{"Copy-file", false},
	{"Updated", true},
	{"Created", false},
	{"Update-existing", false},
	{"Merged", true},
	{"Patched", false},
	{"Mod-time", false},
	{"Removed", true},
	{"Remove-entry", false},
	{"Set-static-directory", false},
	{"Clear-static-directory", false},
	{"Set-sticky", false},
	{"Clear-sticky", false},
	{"Module-expansion", false},
	{"M", true},
	{"Mbinary", false},
	{"E", true},
}

// Join returns the names in the table separated by spaces, the form used
// by Valid-requests and Valid-responses.
func Join(table []Name) string {
	names := make([]string, len(table))
	for i, n := range table {
		names[i] = n.Name
	}
	return strings.Join(names, " ")
}

// Set is a set of names declared by the peer.
type Set map[string]bool

// ParseSet parses a space-separated list of names.
func ParseSet(list string) Set {
	s := make(Set)
	for _, name := range strings.Fields(list) {
		s[name] = true
	}
	return s
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool { return s[name] }

// Missing returns, sorted, the Required names in table that are not in s.
func (s Set) Missing(table []Name) []string {
	var missing []string
	for _, n := range table {
		if n.Required && !s[n.Name] {
			missing = append(missing, n.Name)
		}
	}
	sort.Strings(missing)
	return missing
}
