// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version reports the version of the build, for the cvs version
// command and the server's version request.
package version // import "cvs.io/version"

import (
	"fmt"
	"time"
)

// Protocol is the CVS release whose client/server protocol this
// implementation speaks.
const Protocol = "1.12.13"

// These are set with -ldflags "-X cvs.io/version.GitSHA=..." by release
// builds.
var (
	BuildTime = ""
	GitSHA    = ""
)

// Short returns a one-line description of the build, suitable for a
// protocol message.
func Short() string {
	s := "Concurrent Versions System (CVS) " + Protocol + " (cvs.io"
	if GitSHA != "" {
		sha := GitSHA
		if len(sha) > 12 {
			sha = sha[:12]
		}
		s += " " + sha
	}
	return s + ")"
}

// Version returns a newline-terminated string describing the current
// version of the build.
func Version() string {
	str := Short() + "\n"
	if GitSHA == "" {
		return str + "devel\n"
	}
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		str += fmt.Sprintf("Build time: %s\n", t.In(time.UTC).Format(time.Stamp+" 2006 UTC"))
	}
	str += fmt.Sprintf("Git hash:   %s\n", GitSHA)
	return str
}
