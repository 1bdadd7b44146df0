// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"cvs.io/errors"
)

// MaxFileSize is the largest file ReceiveFile accepts.
const MaxFileSize = 1 << 30

// initialFileBuffer is the most ReceiveSized allocates before data arrives.
const initialFileBuffer = 64 << 10

// SendFile sends a file as its mode line, its length line and then
// exactly len(data) bytes.
func (c *Conn) SendFile(mode os.FileMode, data []byte) error {
	const op errors.Op = "protocol.SendFile"
	if err := c.WriteLine(FormatMode(mode)); err != nil {
		return errors.E(op, err)
	}
	if err := c.WriteLine(strconv.Itoa(len(data))); err != nil {
		return errors.E(op, err)
	}
	if _, err := c.w.Write(data); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// SendSized sends the length line and contents of a file, without a
// mode line, as the Modified request and Patched responses do after their
// own mode line.
func (c *Conn) SendSized(data []byte) error {
	const op errors.Op = "protocol.SendSized"
	if err := c.WriteLine(strconv.Itoa(len(data))); err != nil {
		return errors.E(op, err)
	}
	if _, err := c.w.Write(data); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// ReceiveFile reads a file sent by SendFile.
func (c *Conn) ReceiveFile() (os.FileMode, []byte, error) {
	const op errors.Op = "protocol.ReceiveFile"
	line, err := c.ReadLine()
	if err != nil {
		return 0, nil, errors.E(op, eof(err))
	}
	mode, err := ParseMode(line)
	if err != nil {
		return 0, nil, errors.E(op, err)
	}
	data, err := c.ReceiveSized()
	if err != nil {
		return 0, nil, errors.E(op, err)
	}
	return mode, data, nil
}

// ReceiveSized reads a length line and that many bytes.
func (c *Conn) ReceiveSized() ([]byte, error) {
	const op errors.Op = "protocol.ReceiveSized"
	line, err := c.ReadLine()
	if err != nil {
		return nil, errors.E(op, eof(err))
	}
	if strings.HasPrefix(line, "z") {
		return nil, errors.E(op, errors.Protocol, errors.Str("compressed file transfer not supported"))
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil || n < 0 {
		return nil, errors.E(op, errors.Protocol, errors.Errorf("bad file length %q", line))
	}
	if n > MaxFileSize {
		return nil, errors.E(op, errors.Protocol, errors.Errorf("file length %d too large", n))
	}
	// The buffer grows as data arrives rather than trusting the length.
	buf := bytes.NewBuffer(make([]byte, 0, min(n, initialFileBuffer)))
	if _, err := io.CopyN(buf, c.r, n); err != nil {
		return nil, errors.E(op, errors.Protocol, errors.Errorf("short file: %v", err))
	}
	data := buf.Bytes()
	if c.Trace != nil {
		c.Trace.Printf("< [%d bytes]", n)
	}
	return data, nil
}

// eof turns a clean end of input into a Protocol error, for places where
// more input is required.
func eof(err error) error {
	if err == io.EOF {
		return errors.E(errors.Protocol, errors.Str("unexpected end of input"))
	}
	return err
}

// FormatMode formats the permission bits of mode the way the protocol
// sends them, such as "u=rw,g=r,o=r".
func FormatMode(mode os.FileMode) string {
	perm := mode.Perm()
	var b strings.Builder
	for i, class := range []string{"u", "g", "o"} {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(class + "=")
		bits := perm >> uint(6-3*i)
		if bits&4 != 0 {
			b.WriteByte('r')
		}
		if bits&2 != 0 {
			b.WriteByte('w')
		}
		if bits&1 != 0 {
			b.WriteByte('x')
		}
	}
	return b.String()
}

// ParseMode parses a mode string such as "u=rw,g=r,o=r".
func ParseMode(s string) (os.FileMode, error) {
	const op errors.Op = "protocol.ParseMode"
	var mode os.FileMode
	for _, part := range strings.Split(s, ",") {
		if len(part) < 2 || part[1] != '=' {
			return 0, errors.E(op, errors.Protocol, errors.Errorf("bad mode %q", s))
		}
		var shift uint
		switch part[0] {
		case 'u':
			shift = 6
		case 'g':
			shift = 3
		case 'o':
			shift = 0
		default:
			return 0, errors.E(op, errors.Protocol, errors.Errorf("bad mode %q", s))
		}
		for _, r := range part[2:] {
			switch r {
			case 'r':
				mode |= 4 << shift
			case 'w':
				mode |= 2 << shift
			case 'x':
				mode |= 1 << shift
			default:
				return 0, errors.E(op, errors.Protocol, errors.Errorf("bad mode %q", s))
			}
		}
	}
	return mode, nil
}
