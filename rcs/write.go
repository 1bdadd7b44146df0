// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	shutil "github.com/termie/go-shutil"

	"cvs.io/errors"
	"cvs.io/log"
)

// Bytes returns the file in RCS format.
func (f *File) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	f.format(&buf)
	return buf.Bytes()
}

// WriteTo writes the file in RCS format to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bw := bufio.NewWriter(w)
	cw := &countWriter{w: bw}
	f.format(cw)
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, cw.err
}

type countWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Write saves the file to its path. The new contents are written to a
// temporary file in the same directory, which then replaces the original
// and is made read-only.
func (f *File) Write() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked()
}

func (f *File) writeLocked() error {
	const op errors.Op = "rcs.Write"
	if f.flags&ReadWrite == 0 {
		return errors.E(op, errors.Path(f.path), errors.Permission, errors.Str("file opened read-only"))
	}
	dir, base := filepath.Split(f.path)
	if base == "" {
		return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Str("empty file name"))
	}
	tmp := filepath.Join(dir, ","+strings.TrimSuffix(base, ",v")+",")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return errors.E(op, errors.Path(f.path), errors.Busy, errors.Errorf("temporary file %s exists", tmp))
		}
		return errors.E(op, errors.Path(f.path), errors.IO, err)
	}
	bw := bufio.NewWriter(out)
	cw := &countWriter{w: bw}
	f.format(cw)
	err = cw.err
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, f.mode&^0222)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.E(op, errors.Path(f.path), errors.IO, err)
	}
	if err := replace(tmp, f.path); err != nil {
		os.Remove(tmp)
		return errors.E(op, errors.Path(f.path), errors.IO, err)
	}
	f.dirty = false
	log.Debug.Printf("rcs: wrote %s", f.path)
	return nil
}

// replace renames tmp over path. When the rename crosses devices the
// contents are copied instead.
func replace(tmp, path string) error {
	err := os.Rename(tmp, path)
	if err == nil {
		return nil
	}
	if le, ok := err.(*os.LinkError); !ok || le.Err != syscall.EXDEV {
		return err
	}
	log.Debug.Printf("rcs: rename %s: cross-device, copying", path)
	if fi, err := os.Stat(path); err == nil {
		if err := os.Chmod(path, fi.Mode().Perm()|0200); err != nil {
			return err
		}
	}
	if _, err := shutil.Copy(tmp, path, false); err != nil {
		return err
	}
	return os.Remove(tmp)
}

// format writes the file in the layout used by GNU RCS, which a file
// parsed from that layout reproduces byte for byte.
func (f *File) format(w io.Writer) {
	fmt.Fprint(w, "head")
	if !f.head.IsZero() {
		fmt.Fprintf(w, "\t%s", f.head)
	}
	fmt.Fprint(w, ";\n")
	if !f.branch.IsZero() {
		fmt.Fprintf(w, "branch\t%s;\n", f.branch)
	}
	fmt.Fprint(w, "access")
	for _, a := range f.access {
		fmt.Fprintf(w, "\n\t%s", a)
	}
	fmt.Fprint(w, ";\nsymbols")
	for _, s := range f.symbols {
		fmt.Fprintf(w, "\n\t%s:%s", s.Name, s.Num.MagicString())
	}
	fmt.Fprint(w, ";\nlocks")
	for _, l := range f.locks {
		fmt.Fprintf(w, "\n\t%s:%s", l.User, l.Num)
	}
	fmt.Fprint(w, ";")
	if f.strict {
		fmt.Fprint(w, " strict;")
	}
	fmt.Fprint(w, "\n")
	if f.comment != nil {
		fmt.Fprint(w, "comment\t")
		writeString(w, []byte(*f.comment))
		fmt.Fprint(w, ";\n")
	}
	if f.expand != "" {
		fmt.Fprint(w, "expand\t")
		writeString(w, []byte(f.expand))
		fmt.Fprint(w, ";\n")
	}
	writePhrases(w, f.phrases)
	fmt.Fprint(w, "\n")

	for _, d := range f.order {
		fmt.Fprintf(w, "\n%s\ndate\t%s;\tauthor %s;\tstate %s;\nbranches", d.Num, formatDate(d.Date), d.Author, d.State)
		for _, b := range d.Branches {
			fmt.Fprintf(w, "\n\t%s", b)
		}
		fmt.Fprintf(w, ";\nnext\t%s;\n", d.Next)
		writePhrases(w, d.phrases)
	}

	fmt.Fprint(w, "\n\ndesc\n")
	writeString(w, []byte(f.desc))
	fmt.Fprint(w, "\n")

	for _, d := range f.order {
		fmt.Fprintf(w, "\n\n%s\nlog\n", d.Num)
		writeString(w, []byte(d.Log))
		fmt.Fprint(w, "\n")
		writePhrases(w, d.textPhrases)
		fmt.Fprint(w, "text\n")
		writeString(w, d.Text)
		fmt.Fprint(w, "\n")
	}
}

func writePhrases(w io.Writer, phrases []phrase) {
	for _, ph := range phrases {
		fmt.Fprint(w, ph.name)
		for i, wd := range ph.words {
			sep := " "
			if i == 0 {
				sep = "\t"
			}
			if wd.text == ":" && !wd.quoted {
				sep = ""
			} else if i > 0 && ph.words[i-1].text == ":" && !ph.words[i-1].quoted {
				sep = ""
			}
			fmt.Fprint(w, sep)
			if wd.quoted {
				writeString(w, []byte(wd.text))
			} else {
				fmt.Fprint(w, wd.text)
			}
		}
		fmt.Fprint(w, ";\n")
	}
}

var at = []byte("@")

// writeString writes s as an @-quoted RCS string.
func writeString(w io.Writer, s []byte) {
	w.Write(at)
	for {
		i := bytes.IndexByte(s, '@')
		if i < 0 {
			w.Write(s)
			break
		}
		w.Write(s[:i+1])
		w.Write(at)
		s = s[i+1:]
	}
	w.Write(at)
}

// formatDate formats t as an RCS date. Years before 2000 use two digits.
func formatDate(t time.Time) string {
	t = t.UTC()
	year := t.Year()
	if year >= 1900 && year < 2000 {
		year -= 1900
	}
	return fmt.Sprintf("%02d.%02d.%02d.%02d.%02d.%02d", year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}
