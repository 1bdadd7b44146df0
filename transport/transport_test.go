// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"os/exec"
	"reflect"
	"testing"

	"cvs.io/client"
	"cvs.io/config"
	"cvs.io/cvsroot"
	"cvs.io/repository"
	"cvs.io/server"
	"cvs.io/test/testutil"
)

func TestCommand(t *testing.T) {
	cfg := config.New().SetRsh("ssh -x -o 'BatchMode yes'").SetServer("/usr/local/bin/cvs server")
	tests := []struct {
		root string
		want []string
	}{
		{":fork:/cvs", []string{"/usr/local/bin/cvs", "server"}},
		{":ext:cvs.example.org:/cvs", []string{"ssh", "-x", "-o", "BatchMode yes", "cvs.example.org", "/usr/local/bin/cvs server"}},
		{":ext:ann@cvs.example.org:2222/cvs", []string{"ssh", "-x", "-o", "BatchMode yes", "-l", "ann", "-p", "2222", "cvs.example.org", "/usr/local/bin/cvs server"}},
	}
	for _, test := range tests {
		root, err := cvsroot.Parse(test.root)
		if err != nil {
			t.Fatalf("%s: %v", test.root, err)
		}
		got, err := Command(root, cfg)
		if err != nil {
			t.Errorf("%s: %v", test.root, err)
			continue
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%s: command %q; want %q", test.root, got, test.want)
		}
	}
	if _, err := Command(&cvsroot.Root{Method: cvsroot.Fork, Dir: "/cvs"}, cfg.SetServer("'unterminated")); err == nil {
		t.Error("bad server command accepted")
	}
}

func newRepo(t *testing.T) *repository.Repository {
	return testutil.Repository(t, nil)
}

// version runs the version command over rw.
func version(t *testing.T, rw io.ReadWriteCloser, dir string) string {
	t.Helper()
	var out bytes.Buffer
	s := client.New(rw, client.Config{Root: &cvsroot.Root{Dir: dir}, Stdout: &out, Stderr: &out})
	defer s.Close()
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := s.Version(nil); err != nil {
		t.Fatal(err)
	}
	return out.String()
}

func TestDialLocal(t *testing.T) {
	r := newRepo(t)
	root := &cvsroot.Root{Method: cvsroot.Local, Dir: r.Root()}
	rw, err := Dial(context.Background(), root, config.New())
	if err != nil {
		t.Fatal(err)
	}
	if out := version(t, rw, r.Root()); out == "" {
		t.Error("no version from local server")
	}
}

func TestDialServer(t *testing.T) {
	r := newRepo(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := server.NewDaemon(server.Config{Root: r.Root()})
	go d.Serve(ctx, l)

	port := l.Addr().(*net.TCPAddr).Port
	root := &cvsroot.Root{Method: cvsroot.Server, Host: "127.0.0.1", Port: port, Dir: r.Root()}
	rw, err := Dial(ctx, root, config.New())
	if err != nil {
		t.Fatal(err)
	}
	if out := version(t, rw, r.Root()); out == "" {
		t.Error("no version from daemon")
	}
}

func TestFork(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("no cat command")
	}
	root := &cvsroot.Root{Method: cvsroot.Fork, Dir: "/cvs"}
	rw, err := Dial(context.Background(), root, config.New().SetServer("cat"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(rw, "noop\n"); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(rw, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "noop\n" {
		t.Errorf("read %q back from the process", buf)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestUnknownMethod(t *testing.T) {
	if _, err := Dial(context.Background(), &cvsroot.Root{Method: cvsroot.Method(99), Dir: "/cvs"}, config.New()); err == nil {
		t.Error("unknown method accepted")
	}
}
