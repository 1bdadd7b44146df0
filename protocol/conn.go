// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"cvs.io/errors"
	"cvs.io/log"
)

// Conn is one side of a protocol connection: a stream of newline
// terminated lines, with files embedded as counted byte strings.
// A Conn is not safe for concurrent use.
type Conn struct {
	r *bufio.Reader
	w *bufio.Writer
	c io.Closer

	// Trace, if not nil, receives every line sent ("> ") and
	// received ("< ").
	Trace log.Logger
}

// NewConn returns a Conn reading from r and writing to w. If w is also
// an io.Closer, Close closes it.
func NewConn(r io.Reader, w io.Writer) *Conn {
	c := &Conn{
		r: bufio.NewReader(r),
		w: bufio.NewWriter(w),
	}
	if cl, ok := w.(io.Closer); ok {
		c.c = cl
	}
	return c
}

// ReadLine returns the next line without its newline. At the end of
// input it returns io.EOF; input ending in the middle of a line is a
// Protocol error.
func (c *Conn) ReadLine() (string, error) {
	const op errors.Op = "protocol.ReadLine"
	line, err := c.r.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", io.EOF
		}
		return "", errors.E(op, errors.Protocol, errors.Errorf("unexpected end of input after %q", line))
	}
	if err != nil {
		return "", errors.E(op, errors.IO, err)
	}
	line = strings.TrimSuffix(line, "\n")
	if c.Trace != nil {
		c.Trace.Printf("< %s", line)
	}
	return line, nil
}

// WriteLine buffers a line for sending; a newline is appended.
func (c *Conn) WriteLine(line string) error {
	if c.Trace != nil {
		c.Trace.Printf("> %s", line)
	}
	if _, err := c.w.WriteString(line); err != nil {
		return errors.E(errors.Op("protocol.WriteLine"), errors.IO, err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return errors.E(errors.Op("protocol.WriteLine"), errors.IO, err)
	}
	return nil
}

// Printf buffers a formatted line for sending.
func (c *Conn) Printf(format string, args ...interface{}) error {
	return c.WriteLine(fmt.Sprintf(format, args...))
}

// Flush sends any buffered output.
func (c *Conn) Flush() error {
	if err := c.w.Flush(); err != nil {
		return errors.E(errors.Op("protocol.Flush"), errors.IO, err)
	}
	return nil
}

// Close flushes the connection and closes its writer if it can be closed.
func (c *Conn) Close() error {
	err := c.Flush()
	if c.c != nil {
		if cerr := c.c.Close(); err == nil && cerr != nil {
			err = errors.E(errors.Op("protocol.Close"), errors.IO, cerr)
		}
	}
	return err
}

// Split splits a protocol line into its name and the rest of the line
// following the first space.
func Split(line string) (name, args string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}
