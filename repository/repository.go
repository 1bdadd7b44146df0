// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package repository implements access to a CVS repository on the local
// file system: the mapping from working file names to RCS files, the
// Attic, and the operations the server performs on RCS files.
//
// The package does not lock. Callers hold a read lock on a directory
// while reading it, and a write lock from the moment they read a file they
// intend to change until the change is written.
package repository // import "cvs.io/repository"

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"cvs.io/errors"
	"cvs.io/lock"
	"cvs.io/log"
	"cvs.io/rcs"
)

// Names within a repository.
const (
	AdminDir  = "CVSROOT"
	AtticDir  = "Attic"
	RCSSuffix = ",v"
)

// adminFiles are created, empty unless noted, by Init.
var adminFiles = map[string]string{
	"modules":   "# Module definitions: name directory\n",
	"history":   "",
	"val-tags":  "",
	"cvsignore": "",
	"config":    "# cvs.io repository configuration\n",
}

// DefaultCacheSize is the number of parsed RCS files Open keeps.
const DefaultCacheSize = 128

// Repository is an open repository.
type Repository struct {
	root  string
	cache *lru.Cache[string, *cached]

	mu sync.Mutex // serializes history appends
}

// cached is a parsed RCS file with the size and modification time of the
// file it was read from.
type cached struct {
	file  *rcs.File
	size  int64
	mtime time.Time
}

// Open opens the repository rooted at the directory root, which must hold
// a CVSROOT directory.
func Open(root string) (*Repository, error) {
	const op errors.Op = "repository.Open"
	root = filepath.Clean(root)
	fi, err := os.Stat(filepath.Join(root, AdminDir))
	if os.IsNotExist(err) {
		return nil, errors.E(op, errors.Path(root), errors.NotExist, errors.Str("not a CVS repository: no CVSROOT directory"))
	}
	if err != nil {
		return nil, errors.E(op, errors.Path(root), errors.IO, err)
	}
	if !fi.IsDir() {
		return nil, errors.E(op, errors.Path(root), errors.NotDir, errors.Str("CVSROOT is not a directory"))
	}
	cache, err := lru.NewWithEvict[string, *cached](DefaultCacheSize, func(_ string, c *cached) {
		c.file.Close()
	})
	if err != nil {
		return nil, errors.E(op, errors.Internal, err)
	}
	return &Repository{root: root, cache: cache}, nil
}

// Init creates a repository at root, or completes the CVSROOT directory
// of an existing one, and opens it.
func Init(root string) (*Repository, error) {
	const op errors.Op = "repository.Init"
	admin := filepath.Join(filepath.Clean(root), AdminDir)
	if err := os.MkdirAll(admin, 0777); err != nil {
		return nil, errors.E(op, errors.Path(root), errors.IO, err)
	}
	for name, contents := range adminFiles {
		f, err := os.OpenFile(filepath.Join(admin, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.E(op, errors.Path(root), errors.IO, err)
		}
		_, err = f.WriteString(contents)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, errors.E(op, errors.Path(root), errors.IO, err)
		}
	}
	log.Info.Printf("repository: initialized %s", root)
	return Open(root)
}

// Root returns the directory holding the repository.
func (r *Repository) Root() string { return r.root }

// Dir returns the file system path of the repository directory dir, a
// slash-separated path relative to the root. The path may not leave the
// repository.
func (r *Repository) Dir(dir string) (string, error) {
	const op errors.Op = "repository.Dir"
	clean := path.Clean("/" + dir)
	for _, elem := range strings.Split(dir, "/") {
		if elem == ".." {
			return "", errors.E(op, errors.Path(dir), errors.Invalid, errors.Str("path leaves the repository"))
		}
	}
	return filepath.Join(r.root, filepath.FromSlash(clean)), nil
}

// RCSPath returns the path of the RCS file for name in directory dir.
func (r *Repository) RCSPath(dir, name string) (string, error) {
	d, err := r.Dir(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name+RCSSuffix), nil
}

// AtticPath returns the path of the RCS file for name in the Attic of
// directory dir.
func (r *Repository) AtticPath(dir, name string) (string, error) {
	d, err := r.Dir(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(d, AtticDir, name+RCSSuffix), nil
}

// Lookup returns the path of the RCS file for name in dir, looking in the
// Attic if it is not in dir itself, and reports whether it was found in
// the Attic.
func (r *Repository) Lookup(dir, name string) (file string, attic bool, err error) {
	const op errors.Op = "repository.Lookup"
	if name == "" || strings.ContainsAny(name, "/\x00") || name == "." || name == ".." {
		return "", false, errors.E(op, errors.Path(name), errors.Invalid, errors.Str("bad file name"))
	}
	p, err := r.RCSPath(dir, name)
	if err != nil {
		return "", false, errors.E(op, err)
	}
	if _, err := os.Stat(p); err == nil {
		return p, false, nil
	}
	a, _ := r.AtticPath(dir, name)
	if _, err := os.Stat(a); err == nil {
		return a, true, nil
	}
	return "", false, errors.E(op, errors.Path(path.Join(dir, name)), errors.NotExist)
}

// File returns the parsed RCS file at the given path. Files are cached
// and shared while unchanged on disk; the caller must Close the returned
// file, and must not modify it.
func (r *Repository) File(file string) (*rcs.File, error) {
	const op errors.Op = "repository.File"
	fi, err := os.Stat(file)
	if os.IsNotExist(err) {
		return nil, errors.E(op, errors.Path(file), errors.NotExist)
	}
	if err != nil {
		return nil, errors.E(op, errors.Path(file), errors.IO, err)
	}
	if c, ok := r.cache.Get(file); ok {
		if c.size == fi.Size() && c.mtime.Equal(fi.ModTime()) {
			return c.file.Ref(), nil
		}
		r.cache.Remove(file)
	}
	f, err := rcs.Open(file, rcs.ReadOnly)
	if err != nil {
		return nil, errors.E(op, err)
	}
	r.cache.Add(file, &cached{file: f, size: fi.Size(), mtime: fi.ModTime()})
	return f.Ref(), nil
}

// forget drops any cached copy of the file.
func (r *Repository) forget(file string) {
	r.cache.Remove(file)
}

// Files returns the sorted names of the files in dir that have RCS files,
// including those in the Attic.
func (r *Repository) Files(dir string) ([]string, error) {
	const op errors.Op = "repository.Files"
	d, err := r.Dir(dir)
	if err != nil {
		return nil, errors.E(op, err)
	}
	seen := make(map[string]bool)
	for _, sub := range []string{d, filepath.Join(d, AtticDir)} {
		infos, err := ioutil.ReadDir(sub)
		if os.IsNotExist(err) && sub != d {
			continue
		}
		if err != nil {
			return nil, errors.E(op, errors.Path(dir), errors.IO, err)
		}
		for _, fi := range infos {
			if fi.Mode().IsRegular() && strings.HasSuffix(fi.Name(), RCSSuffix) {
				seen[strings.TrimSuffix(fi.Name(), RCSSuffix)] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Dirs returns the sorted names of the subdirectories of dir, excluding
// the Attic, lock directories and, at the top level, CVSROOT.
func (r *Repository) Dirs(dir string) ([]string, error) {
	const op errors.Op = "repository.Dirs"
	d, err := r.Dir(dir)
	if err != nil {
		return nil, errors.E(op, err)
	}
	infos, err := ioutil.ReadDir(d)
	if err != nil {
		return nil, errors.E(op, errors.Path(dir), errors.IO, err)
	}
	top := path.Clean(dir) == "." || path.Clean("/"+dir) == "/"
	var names []string
	for _, fi := range infos {
		n := fi.Name()
		if !fi.IsDir() || n == AtticDir || n == lock.DirName || (top && n == AdminDir) {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

// MkDir creates the repository directory dir.
func (r *Repository) MkDir(dir string) error {
	const op errors.Op = "repository.MkDir"
	d, err := r.Dir(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if err := os.MkdirAll(d, 0777); err != nil {
		return errors.E(op, errors.Path(dir), errors.IO, err)
	}
	return nil
}

// IsDir reports whether dir is a directory of the repository.
func (r *Repository) IsDir(dir string) bool {
	d, err := r.Dir(dir)
	if err != nil {
		return false
	}
	fi, err := os.Stat(d)
	return err == nil && fi.IsDir()
}

// Modules returns the module definitions in CVSROOT/modules, mapping a
// module name to a repository directory.
func (r *Repository) Modules() (map[string]string, error) {
	const op errors.Op = "repository.Modules"
	data, err := ioutil.ReadFile(filepath.Join(r.root, AdminDir, "modules"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	mods := make(map[string]string)
	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		f := strings.Fields(s.Text())
		if len(f) < 2 || strings.HasPrefix(f[0], "#") {
			continue
		}
		dir := f[len(f)-1]
		if f[1] == "-a" && len(f) > 2 {
			dir = f[2]
		}
		mods[f[0]] = dir
	}
	return mods, nil
}

// ExpandModule returns the repository directory named by a module: its
// definition in CVSROOT/modules, or the module name itself.
func (r *Repository) ExpandModule(name string) (string, error) {
	const op errors.Op = "repository.ExpandModule"
	mods, err := r.Modules()
	if err != nil {
		return "", errors.E(op, err)
	}
	dir := name
	if d, ok := mods[name]; ok {
		dir = d
	}
	dir = path.Clean(dir)
	if !r.IsDir(dir) {
		return "", errors.E(op, errors.Path(name), errors.NotExist, errors.Errorf("cannot find module %q", name))
	}
	return dir, nil
}
