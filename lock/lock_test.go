// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lock

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"cvs.io/errors"
)

const timeout = 10 * time.Second

func newManager() *Manager {
	m := New()
	m.Interval = 5 * time.Millisecond
	m.Notify = func(string) {}
	return m
}

func lockArtifacts(t *testing.T, repo string) []string {
	t.Helper()
	entries, err := os.ReadDir(repo)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "#cvs.") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestWriteLockExcludesWriter(t *testing.T) {
	repo := t.TempDir()
	m1, m2 := newManager(), newManager()
	if err := m1.WriteLock(repo); err != nil {
		t.Fatal(err)
	}
	if err := m2.WriteLock(repo); !errors.Is(errors.Busy, err) {
		t.Fatalf("second WriteLock: %v; want Busy", err)
	}
	if err := m2.LockDir(context.Background(), repo, false); !errors.Is(errors.Busy, err) {
		t.Fatalf("LockDir without wait: %v; want Busy", err)
	}
	m1.Cleanup()
	if err := m2.WriteLock(repo); err != nil {
		t.Fatalf("WriteLock after cleanup: %v", err)
	}
	if _, write := m2.Held(); len(write) != 1 || write[0] != repo {
		t.Errorf("Held write = %v; want [%s]", write, repo)
	}
	m2.Cleanup()
	m2.Cleanup()
	if got := lockArtifacts(t, repo); len(got) != 0 {
		t.Errorf("lock artifacts left after cleanup: %v", got)
	}
}

func TestReadersShare(t *testing.T) {
	repo := t.TempDir()
	ctx := context.Background()
	r1, r2, w := newManager(), newManager(), newManager()
	if err := r1.ReadLock(ctx, repo); err != nil {
		t.Fatal(err)
	}
	if err := r2.ReadLock(ctx, repo); err != nil {
		t.Fatal(err)
	}
	if err := r1.ReadLock(ctx, repo); !errors.Is(errors.Invalid, err) {
		t.Errorf("second ReadLock by one Manager: %v; want Invalid", err)
	}
	if err := w.WriteLock(repo); !errors.Is(errors.Busy, err) {
		t.Fatalf("WriteLock with readers: %v; want Busy", err)
	}
	r1.Cleanup()
	if err := w.WriteLock(repo); !errors.Is(errors.Busy, err) {
		t.Fatalf("WriteLock with one reader: %v; want Busy", err)
	}
	r2.Cleanup()
	if err := w.WriteLock(repo); err != nil {
		t.Fatalf("WriteLock without readers: %v", err)
	}
	w.Cleanup()
}

func TestReadLockWaitsForWriter(t *testing.T) {
	repo := t.TempDir()
	w, r := newManager(), newManager()
	if err := w.WriteLock(repo); err != nil {
		t.Fatal(err)
	}
	var waited int32
	r.Notify = func(msg string) {
		if strings.Contains(msg, "'s lock in "+repo) {
			atomic.StoreInt32(&waited, 1)
		}
	}
	done := make(chan error, 1)
	go func() { done <- r.ReadLock(context.Background(), repo) }()
	select {
	case err := <-done:
		t.Fatalf("ReadLock returned %v while write locked", err)
	case <-time.After(50 * time.Millisecond):
	}
	w.Cleanup()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(timeout):
		t.Fatal("ReadLock did not proceed after writer released")
	}
	if atomic.LoadInt32(&waited) == 0 {
		t.Error("no waiting message")
	}
	r.Cleanup()
}

func TestWriterLockAllOrNothing(t *testing.T) {
	root := t.TempDir()
	a, b := filepath.Join(root, "a"), filepath.Join(root, "b")
	for _, d := range []string{a, b} {
		if err := os.Mkdir(d, 0777); err != nil {
			t.Fatal(err)
		}
	}
	reader, writer := newManager(), newManager()
	if err := reader.ReadLock(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := writer.WriterLock(ctx, []string{b, a})
	if err == nil {
		t.Fatal("WriterLock succeeded while b was read locked")
	}
	if got := lockArtifacts(t, a); len(got) != 0 {
		t.Errorf("partial lock left in a: %v", got)
	}
	if _, write := writer.Held(); len(write) != 0 {
		t.Errorf("writer holds %v after failing", write)
	}
	reader.Cleanup()
	if err := writer.WriterLock(context.Background(), []string{b, a, a}); err != nil {
		t.Fatal(err)
	}
	if _, write := writer.Held(); len(write) != 2 {
		t.Errorf("writer holds %v; want a and b", write)
	}
	writer.Cleanup()
}

func TestPromote(t *testing.T) {
	repo := t.TempDir()
	ctx := context.Background()
	m := newManager()
	if err := m.Promote(ctx, repo); !errors.Is(errors.Invalid, err) {
		t.Errorf("Promote without read lock: %v; want Invalid", err)
	}
	if err := m.ReadLock(ctx, repo); err != nil {
		t.Fatal(err)
	}
	if err := m.Promote(ctx, repo); err != nil {
		t.Fatal(err)
	}
	read, write := m.Held()
	if len(read) != 0 || len(write) != 1 {
		t.Errorf("after Promote: read %v write %v", read, write)
	}
	for _, name := range lockArtifacts(t, repo) {
		if strings.HasPrefix(name, ReaderPrefix) {
			t.Errorf("reader file %s left after Promote", name)
		}
	}
	m.Cleanup()
}

func TestStaleLock(t *testing.T) {
	repo := t.TempDir()
	dir := filepath.Join(repo, DirName)
	if err := os.Mkdir(dir, 0777); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatal(err)
	}
	m := newManager()
	if err := m.WriteLock(repo); !errors.Is(errors.Busy, err) {
		t.Fatalf("WriteLock with fresh threshold disabled: %v; want Busy", err)
	}
	m.Stale = time.Minute
	if err := m.WriteLock(repo); err != nil {
		t.Fatalf("WriteLock over stale lock: %v", err)
	}
	m.Cleanup()
}

// TestConcurrentManagers runs readers and writers in parallel, each with
// its own Manager, and checks that a writer is never concurrent with
// another writer or any reader.
func TestConcurrentManagers(t *testing.T) {
	repo := t.TempDir()
	var readers, writers int32
	var violations int32
	check := func() {
		w, r := atomic.LoadInt32(&writers), atomic.LoadInt32(&readers)
		if w > 1 || (w == 1 && r > 0) {
			atomic.AddInt32(&violations, 1)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		write := i%2 == 0
		g.Go(func() error {
			m := newManager()
			for j := 0; j < 5; j++ {
				if write {
					if err := m.WriterLock(ctx, []string{repo}); err != nil {
						return err
					}
					atomic.AddInt32(&writers, 1)
					check()
					time.Sleep(time.Millisecond)
					check()
					atomic.AddInt32(&writers, -1)
				} else {
					if err := m.ReadLock(ctx, repo); err != nil {
						return err
					}
					atomic.AddInt32(&readers, 1)
					check()
					time.Sleep(time.Millisecond)
					check()
					atomic.AddInt32(&readers, -1)
				}
				m.Cleanup()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if violations != 0 {
		t.Errorf("%d exclusion violations", violations)
	}
	if got := lockArtifacts(t, repo); len(got) != 0 {
		t.Errorf("lock artifacts left: %v", got)
	}
}

const (
	childEnv     = "LOCK_CHILD_REPO"
	childModeEnv = "LOCK_CHILD_MODE"
)

// TestLockChildProcess is not a test; it is the body of the child
// process started by TestCrossProcess and TestSignalCleanup.
func TestLockChildProcess(t *testing.T) {
	repo := os.Getenv(childEnv)
	if repo == "" {
		return
	}
	m := New()
	if err := m.WriteLock(repo); err != nil {
		os.Stdout.WriteString("error: " + err.Error() + "\n")
		os.Exit(2)
	}
	os.Stdout.WriteString("locked\n")
	if os.Getenv(childModeEnv) == "signal" {
		time.Sleep(time.Hour)
	}
	io.Copy(io.Discard, os.Stdin)
	m.Cleanup()
	os.Exit(0)
}

func startChild(t *testing.T, repo, mode string) (*exec.Cmd, io.WriteCloser) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestLockChildProcess$")
	cmd.Env = append(os.Environ(), childEnv+"="+repo, childModeEnv+"="+mode)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	line := make(chan string, 1)
	go func() {
		s := bufio.NewScanner(stdout)
		s.Scan()
		line <- s.Text()
		io.Copy(io.Discard, stdout)
	}()
	select {
	case l := <-line:
		if l != "locked" {
			cmd.Process.Kill()
			t.Fatalf("child said %q", l)
		}
	case <-time.After(timeout):
		cmd.Process.Kill()
		t.Fatal("timed out waiting for child to lock")
	}
	return cmd, stdin
}

func TestCrossProcess(t *testing.T) {
	repo := t.TempDir()
	cmd, stdin := startChild(t, repo, "wait")
	m := newManager()
	if err := m.WriteLock(repo); !errors.Is(errors.Busy, err) {
		cmd.Process.Kill()
		t.Fatalf("WriteLock while child holds lock: %v; want Busy", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	err := m.ReadLock(ctx, repo)
	cancel()
	if err == nil {
		cmd.Process.Kill()
		t.Fatal("ReadLock succeeded while child holds write lock")
	}
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		t.Fatalf("child: %v", err)
	}
	if err := m.WriteLock(repo); err != nil {
		t.Fatalf("WriteLock after child exit: %v", err)
	}
	m.Cleanup()
}

func TestSignalCleanup(t *testing.T) {
	repo := t.TempDir()
	cmd, _ := startChild(t, repo, "signal")
	if got := lockArtifacts(t, repo); len(got) != 2 {
		t.Errorf("child lock artifacts = %v; want lock directory and writer file", got)
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Wait(); err == nil {
		t.Error("child exited cleanly after SIGTERM")
	}
	if got := lockArtifacts(t, repo); len(got) != 0 {
		t.Errorf("lock artifacts left after signal: %v", got)
	}
}
