// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cvsroot contains parsing and formatting of CVSROOT strings,
// which name a repository and the method used to reach it:
//
//	[:method:][[user][:password]@]hostname[:[port]]/path
package cvsroot // import "cvs.io/cvsroot"

import (
	"path"
	"strconv"
	"strings"

	"cvs.io/errors"
)

// Method identifies how the repository is reached.
type Method uint8

const (
	// Local accesses the repository directly in this process.
	Local Method = iota

	// Fork runs "cvs server" as a child process on this host.
	Fork

	// Ext runs the server through a remote shell command, $CVS_RSH.
	Ext

	// SSH runs the server over an SSH session opened in this process.
	SSH

	// Server connects to a cvsd daemon over TCP.
	Server
)

var methodNames = map[Method]string{
	Local:  "local",
	Fork:   "fork",
	Ext:    "ext",
	SSH:    "ssh",
	Server: "server",
}

// String returns the name of the method as it appears in a CVSROOT.
func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "Method(" + strconv.Itoa(int(m)) + ")"
}

// Remote reports whether the method requires a host.
func (m Method) Remote() bool {
	return m == Ext || m == SSH || m == Server
}

// Root is a parsed CVSROOT.
type Root struct {
	Method   Method
	User     string
	Password string
	Host     string
	Port     int // Zero means the method's default.
	Dir      string
}

// Parse parses a CVSROOT string. A root without a method is local if it
// is an absolute path and uses the ext method if it has the form
// host:/path.
func Parse(s string) (*Root, error) {
	const op errors.Op = "cvsroot.Parse"
	bad := func(msg string) error {
		return errors.E(op, errors.Invalid, errors.Errorf("bad CVSROOT %q: %s", s, msg))
	}
	r := new(Root)
	rest := s
	switch {
	case strings.HasPrefix(rest, ":"):
		i := strings.IndexByte(rest[1:], ':')
		if i < 0 {
			return nil, bad("unterminated method")
		}
		name := rest[1 : i+1]
		found := false
		for m, n := range methodNames {
			if n == name {
				r.Method, found = m, true
			}
		}
		if !found {
			return nil, bad("unknown method " + name)
		}
		rest = rest[i+2:]
	case strings.HasPrefix(rest, "/"):
		r.Method = Local
	default:
		r.Method = Ext
	}

	if !r.Method.Remote() {
		if !strings.HasPrefix(rest, "/") {
			return nil, bad("repository must be an absolute path")
		}
		r.Dir = path.Clean(rest)
		return r, nil
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return nil, bad("no repository path")
	}
	hostPart := rest[:slash]
	r.Dir = path.Clean(rest[slash:])
	if at := strings.LastIndexByte(hostPart, '@'); at >= 0 {
		r.User = hostPart[:at]
		hostPart = hostPart[at+1:]
		if c := strings.IndexByte(r.User, ':'); c >= 0 {
			r.User, r.Password = r.User[:c], r.User[c+1:]
		}
	}
	if c := strings.IndexByte(hostPart, ':'); c >= 0 {
		port := hostPart[c+1:]
		hostPart = hostPart[:c]
		if port != "" {
			n, err := strconv.Atoi(port)
			if err != nil || n <= 0 || n > 65535 {
				return nil, bad("bad port " + port)
			}
			r.Port = n
		}
	} else if !strings.HasPrefix(s, ":") {
		// host/path without a colon is not a root.
		return nil, bad("missing ':' after host name")
	}
	if hostPart == "" {
		return nil, bad("no host name")
	}
	r.Host = hostPart
	return r, nil
}

// String formats the root in canonical form, always with the method and
// never with the password.
func (r *Root) String() string {
	var b strings.Builder
	b.WriteString(":" + r.Method.String() + ":")
	if r.Method.Remote() {
		if r.User != "" {
			b.WriteString(r.User + "@")
		}
		b.WriteString(r.Host + ":")
		if r.Port != 0 {
			b.WriteString(strconv.Itoa(r.Port))
		}
	}
	b.WriteString(r.Dir)
	return b.String()
}

// Addr returns the host:port network address of a server root, using
// defaultPort when the root has none.
func (r *Root) Addr(defaultPort int) string {
	port := r.Port
	if port == 0 {
		port = defaultPort
	}
	return r.Host + ":" + strconv.Itoa(port)
}
