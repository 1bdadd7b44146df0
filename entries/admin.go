// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package entries

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"cvs.io/errors"
)

// Create makes the CVS administrative directory of the working directory
// dir, recording root and the repository directory repo. An existing
// directory is updated. The Entries file is created empty if missing.
func Create(dir, root, repo string) error {
	const op errors.Op = "entries.Create"
	if err := os.MkdirAll(filepath.Join(dir, AdminDir), 0777); err != nil {
		return errors.E(op, errors.Path(dir), errors.IO, err)
	}
	if err := WriteRoot(dir, root); err != nil {
		return errors.E(op, err)
	}
	if err := WriteRepository(dir, repo); err != nil {
		return errors.E(op, err)
	}
	name := adminPath(dir, EntriesFile)
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err == nil {
		err = f.Close()
	} else if os.IsExist(err) {
		err = nil
	}
	if err != nil {
		return errors.E(op, errors.Path(name), errors.IO, err)
	}
	return nil
}

// IsWorkDir reports whether dir has a CVS administrative directory.
func IsWorkDir(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, AdminDir))
	return err == nil && fi.IsDir()
}

func readLine(dir, name string) (string, error) {
	data, err := ioutil.ReadFile(adminPath(dir, name))
	if os.IsNotExist(err) {
		return "", errors.E(errors.Path(adminPath(dir, name)), errors.NotExist, err)
	}
	if err != nil {
		return "", errors.E(errors.Path(adminPath(dir, name)), errors.IO, err)
	}
	s := string(data)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s, nil
}

func writeLine(dir, name, line string) error {
	tmp := adminPath(dir, "."+name+".tmp")
	if err := writeFile(tmp, []byte(line+"\n")); err != nil {
		return errors.E(errors.Path(tmp), err)
	}
	if err := os.Rename(tmp, adminPath(dir, name)); err != nil {
		return errors.E(errors.Path(adminPath(dir, name)), errors.IO, err)
	}
	return nil
}

// ReadRoot returns the contents of CVS/Root.
func ReadRoot(dir string) (string, error) {
	s, err := readLine(dir, RootFile)
	if err != nil {
		return "", errors.E(errors.Op("entries.ReadRoot"), err)
	}
	return s, nil
}

// WriteRoot writes CVS/Root.
func WriteRoot(dir, root string) error {
	if err := writeLine(dir, RootFile, root); err != nil {
		return errors.E(errors.Op("entries.WriteRoot"), err)
	}
	return nil
}

// ReadRepository returns the repository directory recorded in
// CVS/Repository, relative to the root.
func ReadRepository(dir string) (string, error) {
	s, err := readLine(dir, RepoFile)
	if err != nil {
		return "", errors.E(errors.Op("entries.ReadRepository"), err)
	}
	return s, nil
}

// WriteRepository writes CVS/Repository.
func WriteRepository(dir, repo string) error {
	if err := writeLine(dir, RepoFile, repo); err != nil {
		return errors.E(errors.Op("entries.WriteRepository"), err)
	}
	return nil
}

// ReadTag returns the directory's sticky tag with its type prefix:
// "Ttag" for a branch or tag, "Nname" for a non-branch tag, or "Ddate".
// A directory without a sticky tag yields the empty string.
func ReadTag(dir string) (string, error) {
	s, err := readLine(dir, TagFile)
	if errors.Is(errors.NotExist, err) {
		return "", nil
	}
	if err != nil {
		return "", errors.E(errors.Op("entries.ReadTag"), err)
	}
	return s, nil
}

// WriteTag sets the directory's sticky tag. An empty tag clears it.
func WriteTag(dir, tag string) error {
	const op errors.Op = "entries.WriteTag"
	if tag == "" {
		if err := os.Remove(adminPath(dir, TagFile)); err != nil && !os.IsNotExist(err) {
			return errors.E(op, errors.Path(dir), errors.IO, err)
		}
		return nil
	}
	switch tag[0] {
	case 'T', 'N', 'D':
	default:
		return errors.E(op, errors.Path(dir), errors.Invalid, errors.Errorf("bad sticky tag %q", tag))
	}
	if err := writeLine(dir, TagFile, tag); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// SetStatic marks the directory static, so update does not create new
// files in it, or clears the mark.
func SetStatic(dir string, static bool) error {
	const op errors.Op = "entries.SetStatic"
	name := adminPath(dir, StaticFile)
	var err error
	if static {
		err = writeFile(name, nil)
	} else if err = os.Remove(name); os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		return errors.E(op, errors.Path(name), errors.IO, err)
	}
	return nil
}

// IsStatic reports whether the directory is marked static.
func IsStatic(dir string) bool {
	_, err := os.Stat(adminPath(dir, StaticFile))
	return err == nil
}
