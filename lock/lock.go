// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lock implements the CVS repository locking protocol.
//
// A repository directory is locked by creating the directory #cvs.lock
// inside it; mkdir is atomic, so the directory is the mutex. A reader
// holds the mutex only long enough to create a #cvs.rfl.<host>.<pid> file
// and then releases it, so readers share the repository. A writer takes
// the mutex, checks that no reader files exist, creates a
// #cvs.wfl.<host>.<pid> file and keeps the mutex until it is done.
//
// Because the protocol is implemented entirely in the file system it
// excludes other processes, on this host or others sharing the
// repository, as well as other Managers in this process.
package lock // import "cvs.io/lock"

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"cvs.io/errors"
	"cvs.io/log"
	"cvs.io/shutdown"
)

// Names of the lock artifacts inside a repository directory.
const (
	DirName      = "#cvs.lock"
	ReaderPrefix = "#cvs.rfl."
	WriterPrefix = "#cvs.wfl."
)

// DefaultInterval is the time to sleep between attempts to obtain a lock.
const DefaultInterval = 30 * time.Second

// managers numbers the Managers created in this process so each has its
// own lock file names.
var managers int32

// Manager holds the repository locks of one session. It releases them on
// Cleanup, or when the process is shut down by a signal.
//
// The zero Manager is not usable; call New.
type Manager struct {
	// Interval is the time to sleep between attempts to obtain a lock.
	Interval time.Duration

	// Stale, if positive, is the age after which a lock directory or
	// reader file is presumed abandoned and removed.
	Stale time.Duration

	// Notify receives progress messages while waiting for a lock.
	// If nil, they are logged at info level.
	Notify func(msg string)

	suffix string // <host>.<pid>[.<n>], the name suffix of lock files
	uid    int

	mu      sync.Mutex
	readers []string // reader lock files we created
	writers []string // writer lock files we created
	dirs    []string // lock directories we hold
	handler *shutdown.Handler
}

// New returns a Manager for a new session.
func New() *Manager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	suffix := host + "." + strconv.Itoa(os.Getpid())
	if n := atomic.AddInt32(&managers, 1) - 1; n > 0 {
		suffix += "." + strconv.Itoa(int(n))
	}
	return &Manager{
		Interval: DefaultInterval,
		suffix:   suffix,
		uid:      unix.Getuid(),
	}
}

func (m *Manager) readerName(repo string) string {
	return filepath.Join(repo, ReaderPrefix+m.suffix)
}

func (m *Manager) writerName(repo string) string {
	return filepath.Join(repo, WriterPrefix+m.suffix)
}

// record adds path to the list *list and makes sure the cleanup handler
// is registered. It must be called inside a shutdown critical section.
func (m *Manager) record(list *[]string, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*list = append(*list, path)
	if m.handler == nil {
		m.handler = shutdown.Handle(m.release)
	}
}

func (m *Manager) forget(list *[]string, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range *list {
		if p == path {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func (m *Manager) holds(list *[]string, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range *list {
		if p == path {
			return true
		}
	}
	return false
}

// LockDir obtains the lock directory of repo. If the directory exists
// and wait is false it returns a Busy error; if wait is true it retries
// every Interval until it succeeds or ctx is done.
func (m *Manager) LockDir(ctx context.Context, repo string, wait bool) error {
	const op errors.Op = "lock.LockDir"
	dir := filepath.Join(repo, DirName)
	for {
		shutdown.Block()
		err := os.Mkdir(dir, 0777)
		if err == nil {
			m.record(&m.dirs, dir)
		}
		shutdown.Unblock()
		if err == nil {
			log.Debug.Printf("lock: obtained %s", dir)
			return nil
		}
		if !os.IsExist(err) {
			return errors.E(op, errors.Path(repo), errors.IO, err)
		}
		if m.reclaim(dir) {
			continue
		}
		who := Owner(dir)
		if !wait {
			return errors.E(op, errors.Path(repo), errors.Busy, errors.Errorf("locked by %s", who))
		}
		if err := m.sleep(ctx, who, repo); err != nil {
			return errors.E(op, errors.Path(repo), err)
		}
	}
}

// unlockDir removes a lock directory we hold.
func (m *Manager) unlockDir(repo string) {
	dir := filepath.Join(repo, DirName)
	if !m.holds(&m.dirs, dir) {
		return
	}
	shutdown.Block()
	removeOwned(dir, m.uid)
	m.forget(&m.dirs, dir)
	shutdown.Unblock()
}

// ReadLock obtains a read lock on repo, waiting while a writer holds it.
// A Manager holds at most one read lock at a time.
func (m *Manager) ReadLock(ctx context.Context, repo string) error {
	const op errors.Op = "lock.ReadLock"
	m.mu.Lock()
	n := len(m.readers)
	m.mu.Unlock()
	if n > 0 {
		return errors.E(op, errors.Path(repo), errors.Invalid, errors.Str("read lock already held"))
	}
	if err := m.LockDir(ctx, repo, true); err != nil {
		return errors.E(op, err)
	}
	name := m.readerName(repo)
	shutdown.Block()
	err := createLockFile(name)
	if err == nil {
		m.record(&m.readers, name)
	}
	shutdown.Unblock()
	m.unlockDir(repo)
	if err != nil {
		return errors.E(op, errors.Path(repo), errors.IO, err)
	}
	return nil
}

// WriteLock makes one attempt to obtain a write lock on repo. If another
// process holds the lock directory, or any reader other than this Manager
// holds a read lock, it returns a Busy error. On success the lock
// directory is kept until Cleanup.
func (m *Manager) WriteLock(repo string) error {
	const op errors.Op = "lock.WriteLock"
	if err := m.LockDir(context.Background(), repo, false); err != nil {
		return errors.E(op, err)
	}
	if who, ok := m.readersExist(repo); ok {
		m.unlockDir(repo)
		return errors.E(op, errors.Path(repo), errors.Busy, errors.Errorf("read locked by %s", who))
	}
	name := m.writerName(repo)
	shutdown.Block()
	err := createLockFile(name)
	if err == nil {
		m.record(&m.writers, name)
	}
	shutdown.Unblock()
	if err != nil {
		m.unlockDir(repo)
		return errors.E(op, errors.Path(repo), errors.IO, err)
	}
	return nil
}

// writeUnlock releases a write lock obtained by WriteLock.
func (m *Manager) writeUnlock(repo string) {
	name := m.writerName(repo)
	shutdown.Block()
	os.Remove(name)
	m.forget(&m.writers, name)
	shutdown.Unblock()
	m.unlockDir(repo)
}

// WriterLock obtains write locks on all of repos. The directories are
// locked in sorted order, and if any of them is busy the locks obtained so
// far are released and the whole set is tried again after Interval. It
// never waits while holding some of the locks.
func (m *Manager) WriterLock(ctx context.Context, repos []string) error {
	const op errors.Op = "lock.WriterLock"
	sorted := append([]string(nil), repos...)
	sort.Strings(sorted)
	for {
		var done []string
		busyRepo := ""
		for _, r := range sorted {
			if len(done) > 0 && done[len(done)-1] == r {
				continue
			}
			err := m.WriteLock(r)
			if err == nil {
				done = append(done, r)
				continue
			}
			for i := len(done) - 1; i >= 0; i-- {
				m.writeUnlock(done[i])
			}
			if !errors.Is(errors.Busy, err) {
				return errors.E(op, err)
			}
			busyRepo = r
			break
		}
		if busyRepo == "" {
			return nil
		}
		who := Owner(filepath.Join(busyRepo, DirName))
		if w, ok := m.readersExist(busyRepo); ok {
			who = w
		}
		if err := m.sleep(ctx, who, busyRepo); err != nil {
			return errors.E(op, errors.Path(busyRepo), err)
		}
	}
}

// Promote turns the read lock this Manager holds on repo into a write
// lock, waiting while other readers hold it.
func (m *Manager) Promote(ctx context.Context, repo string) error {
	const op errors.Op = "lock.Promote"
	name := m.readerName(repo)
	if !m.holds(&m.readers, name) {
		return errors.E(op, errors.Path(repo), errors.Invalid, errors.Str("no read lock held"))
	}
	if err := m.WriterLock(ctx, []string{repo}); err != nil {
		return errors.E(op, err)
	}
	shutdown.Block()
	os.Remove(name)
	m.forget(&m.readers, name)
	shutdown.Unblock()
	return nil
}

// Cleanup releases every lock the Manager holds. It is safe to call more
// than once.
func (m *Manager) Cleanup() {
	shutdown.Block()
	m.release()
	m.mu.Lock()
	h := m.handler
	m.handler = nil
	m.mu.Unlock()
	shutdown.Unblock()
	h.Release()
}

// release removes the lock files and directories. It is also the
// shutdown handler, so it touches only state recorded in advance.
func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.readers {
		os.Remove(f)
	}
	for _, f := range m.writers {
		os.Remove(f)
	}
	for i := len(m.dirs) - 1; i >= 0; i-- {
		removeOwned(m.dirs[i], m.uid)
	}
	if len(m.readers)+len(m.writers)+len(m.dirs) > 0 {
		log.Debug.Printf("lock: released %d read, %d write, %d directory locks", len(m.readers), len(m.writers), len(m.dirs))
	}
	m.readers, m.writers, m.dirs = nil, nil, nil
}

// Held reports the repositories in which the Manager holds read and write
// locks.
func (m *Manager) Held() (read, write []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.readers {
		read = append(read, filepath.Dir(f))
	}
	for _, f := range m.writers {
		write = append(write, filepath.Dir(f))
	}
	return read, write
}

// readersExist reports whether a reader other than m holds a read lock on
// repo, and the owner of one such lock. Stale reader files are removed.
func (m *Manager) readersExist(repo string) (string, bool) {
	entries, err := os.ReadDir(repo)
	if err != nil {
		return "", false
	}
	mine := ReaderPrefix + m.suffix
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, ReaderPrefix) || name == mine {
			continue
		}
		path := filepath.Join(repo, name)
		if m.reclaim(path) {
			continue
		}
		return Owner(path), true
	}
	return "", false
}

// reclaim removes path if it is older than the staleness threshold and
// reports whether it did.
func (m *Manager) reclaim(path string) bool {
	if m.Stale <= 0 {
		return false
	}
	fi, err := os.Stat(path)
	if err != nil {
		// Vanished; try again.
		return os.IsNotExist(err)
	}
	if time.Since(fi.ModTime()) < m.Stale {
		return false
	}
	log.Info.Printf("lock: removing stale lock %s", path)
	return os.Remove(path) == nil
}

// sleep reports that it is waiting for who's lock in repo and sleeps for
// Interval.
func (m *Manager) sleep(ctx context.Context, who, repo string) error {
	msg := "[" + time.Now().Format("15:04:05") + "] waiting for " + who + "'s lock in " + repo
	if m.Notify != nil {
		m.Notify(msg)
	} else {
		log.Info.Print(msg)
	}
	d := m.Interval
	if d <= 0 {
		d = DefaultInterval
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func createLockFile(name string) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	return f.Close()
}

// removeOwned removes the lock directory dir if it belongs to uid.
func removeOwned(dir string, uid int) {
	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		return
	}
	if int(st.Uid) != uid {
		log.Error.Printf("lock: not removing %s: owned by uid %d", dir, st.Uid)
		return
	}
	os.Remove(dir)
}

// Owner returns the name of the user owning the file or directory at
// path, or its numeric user ID if the name is unknown.
func Owner(path string) string {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return "unknown"
	}
	id := strconv.FormatUint(uint64(st.Uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return "uid " + id
}
