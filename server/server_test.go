// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"cvs.io/errors"
	"cvs.io/protocol"
	"cvs.io/repository"
	"cvs.io/test/testutil"
)

var base = testutil.Base

// newRepo returns a repository holding mod/a.txt at revision 1.1.
func newRepo(t *testing.T) *repository.Repository {
	return testutil.Repository(t, map[string]string{"mod/a.txt": "one\n"})
}

// run serves the requests in input and returns what the server wrote.
func run(t *testing.T, r *repository.Repository, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	s := NewSession(strings.NewReader(input), &out, Config{Root: r.Root(), User: "ann", LockInterval: 10 * time.Millisecond})
	err := s.Serve(context.Background())
	return out.String(), err
}

func preamble(r *repository.Repository) string {
	return fmt.Sprintf("Root %s\nValid-responses %s\nUseUnchanged\n", r.Root(), protocol.Join(protocol.Responses))
}

func TestValidRequests(t *testing.T) {
	r := newRepo(t)
	out, err := run(t, r, preamble(r)+"valid-requests\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Valid-requests Root Valid-responses valid-requests Directory ") {
		t.Errorf("output begins %q", out)
	}
	for _, name := range []string{"ci", "co", "update", "diff"} {
		if !strings.Contains(out, " "+name+" ") && !strings.HasSuffix(strings.SplitN(out, "\n", 2)[0], " "+name) {
			t.Errorf("Valid-requests lacks %s: %q", name, out)
		}
	}
	if strings.Contains(out, "Gzip-stream") {
		t.Errorf("Valid-requests lists an unsupported request: %q", out)
	}
	if !strings.HasSuffix(out, "\nok\n") {
		t.Errorf("output ends %q; want ok", out)
	}
}

func TestFatal(t *testing.T) {
	r := newRepo(t)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown", "Bogus-request x\n", "unrecognized request"},
		{"unsupported", "Gzip-stream 6\n", "not supported"},
		{"no root", "Directory .\n/x\n", "without a preceding Root"},
		{"no directory", preamble(r) + "Entry /a.txt/1.1///\n", "without a preceding Directory"},
		{"bad root", "Root relative/path\n", "not an absolute path"},
		{"responses", fmt.Sprintf("Root %s\nValid-responses ok error M E\n", r.Root()), "client does not support required responses"},
		{"outside", preamble(r) + "Directory .\n/elsewhere\n", "not within root"},
		{"dotdot", preamble(r) + "Directory ../x\n" + r.Root() + "\n", "leaves the working directory"},
	}
	for _, test := range tests {
		out, err := run(t, r, test.input+"noop\n")
		if !errors.Is(errors.Protocol, err) {
			t.Errorf("%s: error %v; want Protocol", test.name, err)
		}
		if !strings.Contains(out, "E cvs [server aborted]: ") || !strings.Contains(out, test.want) {
			t.Errorf("%s: output %q; want abort containing %q", test.name, out, test.want)
		}
		if !strings.HasSuffix(out, "error  \n") {
			t.Errorf("%s: output ends %q; want error", test.name, out)
		}
		if strings.Contains(out, "\nok\n") {
			t.Errorf("%s: session continued after fatal error: %q", test.name, out)
		}
	}
}

func TestCheckout(t *testing.T) {
	r := newRepo(t)
	out, err := run(t, r, preamble(r)+"Argument mod\nDirectory .\n"+r.Root()+"\nco\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"E cvs checkout: Updating mod\n",
		"M U mod/a.txt\n",
		"Created mod/\n" + r.Root() + "/mod/a.txt\n/a.txt/1.1///\nu=rw,g=r,o=r\n4\none\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "ok\n") {
		t.Errorf("output ends %q; want ok", out)
	}
}

func TestCheckoutQuietAndMissingModule(t *testing.T) {
	r := newRepo(t)
	out, err := run(t, r, preamble(r)+"Global_option -q\nArgument nosuch\nDirectory .\n"+r.Root()+"\nco\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "E cvs checkout: cannot find module `nosuch' - ignored\n") {
		t.Errorf("output %q lacks missing module message", out)
	}
	if !strings.HasSuffix(out, "error  \n") {
		t.Errorf("output ends %q; want error", out)
	}
}

func modifiedRequest(name, data string) string {
	return fmt.Sprintf("Modified %s\nu=rw,g=r,o=r\n%d\n%s", name, len(data), data)
}

func TestCommit(t *testing.T) {
	r := newRepo(t)
	in := preamble(r) +
		"Argument -m\nArgument second\nArgument a.txt\n" +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\n" +
		modifiedRequest("a.txt", "two\n") +
		"ci\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"M Checking in a.txt;\n",
		"M new revision: 1.2; previous revision: 1.1\n",
		"Checked-in ./\n" + r.Root() + "/mod/a.txt\n/a.txt/1.2///\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "ok\n") {
		t.Errorf("output ends %q; want ok", out)
	}
	rev, err := r.Checkout("mod", "a.txt", repository.Selector{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if rev.Num.String() != "1.2" || string(rev.Data) != "two\n" {
		t.Errorf("head is %s %q; want 1.2 %q", rev.Num, rev.Data, "two\n")
	}
}

func TestCommitUpToDateCheck(t *testing.T) {
	r := newRepo(t)
	if _, err := r.Commit("mod", "a.txt", repository.Change{Data: []byte("theirs\n"), Author: "bob", Date: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	in := preamble(r) +
		"Argument -m\nArgument mine\n" +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\n" +
		modifiedRequest("a.txt", "mine\n") +
		"ci\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "E cvs commit: Up-to-date check failed for `a.txt'\n") {
		t.Errorf("output %q lacks up-to-date failure", out)
	}
	if !strings.HasSuffix(out, "error  \n") {
		t.Errorf("output ends %q; want error", out)
	}
}

func TestCommitRefusedWithNoexec(t *testing.T) {
	r := newRepo(t)
	in := preamble(r) + "Global_option -n\n" +
		"Argument -m\nArgument x\n" +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\n" +
		modifiedRequest("a.txt", "two\n") +
		"ci\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "error  \n") {
		t.Errorf("output ends %q; want error", out)
	}
	rev, err := r.Checkout("mod", "a.txt", repository.Selector{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if rev.Num.String() != "1.1" {
		t.Errorf("head is %s after commit with -n", rev.Num)
	}
}

func TestUpdatePatch(t *testing.T) {
	r := newRepo(t)
	long := strings.Repeat("a line of text\n", 40)
	for i, data := range []string{long, long + "two\n"} {
		c := repository.Change{Data: []byte(data), Author: "bob", Date: base.Add(time.Duration(i+1) * time.Hour)}
		if _, err := r.Commit("mod", "a.txt", c); err != nil {
			t.Fatal(err)
		}
	}
	in := preamble(r) +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.2///\nUnchanged a.txt\n" +
		"update\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"M P a.txt\n",
		"Checksum ",
		"Patched ./\n" + r.Root() + "/mod/a.txt\n/a.txt/1.3///\n",
		"+two\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
}

func TestUpdateMerge(t *testing.T) {
	r := newRepo(t)
	if _, err := r.Commit("mod", "a.txt", repository.Change{Data: []byte("one\ntheirs\n"), Author: "bob", Date: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	in := preamble(r) +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\n" +
		modifiedRequest("a.txt", "mine\none\n") +
		"update\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Copy-file ./\n" + r.Root() + "/mod/a.txt\n.#a.txt.1.1\n",
		"Merged ./\n" + r.Root() + "/mod/a.txt\n/a.txt/1.2/Result of merge//\n",
		"mine\none\ntheirs\n",
		"M M a.txt\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
}

func TestStatus(t *testing.T) {
	r := newRepo(t)
	in := preamble(r) +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\n" +
		modifiedRequest("a.txt", "changed\n") +
		"Argument a.txt\nstatus\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Status: Locally Modified") {
		t.Errorf("output %q lacks Locally Modified", out)
	}
	if !strings.Contains(out, "M    Working revision:\t1.1\n") {
		t.Errorf("output %q lacks working revision", out)
	}
}

func TestDiffReportsDifferences(t *testing.T) {
	r := newRepo(t)
	in := preamble(r) +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\n" +
		modifiedRequest("a.txt", "uno\n") +
		"diff\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"M Index: a.txt\n", "M -one\n", "M +uno\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "error  \n") {
		t.Errorf("output ends %q; want error when files differ", out)
	}
}

func TestTag(t *testing.T) {
	r := newRepo(t)
	in := preamble(r) +
		"Directory .\n" + r.Root() + "/mod\n" +
		"Entry /a.txt/1.1///\nUnchanged a.txt\n" +
		"Argument REL_1\ntag\n"
	out, err := run(t, r, in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "M T a.txt\n") {
		t.Errorf("output %q lacks tag line", out)
	}
	rev, err := r.Checkout("mod", "a.txt", repository.Selector{Tag: "REL_1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if rev.Num.String() != "1.1" {
		t.Errorf("REL_1 is %s; want 1.1", rev.Num)
	}
}

func TestDaemon(t *testing.T) {
	r := newRepo(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDaemon(Config{Root: r.Root(), User: "ann"})
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, l) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	c := protocol.NewConn(conn, conn)
	c.Printf("Root %s", r.Root())
	c.Printf("Valid-responses %s", protocol.Join(protocol.Responses))
	c.WriteLine("version")
	c.Flush()
	line, err := c.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "M Concurrent Versions System (CVS) ") {
		t.Errorf("version response %q", line)
	}
	if line, _ := c.ReadLine(); line != "ok" {
		t.Errorf("got %q; want ok", line)
	}
	if n := d.Count(); n != 1 {
		t.Errorf("Count = %d; want 1", n)
	}
	d.Close()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve: %v", err)
	}
	conn.Close()
}
