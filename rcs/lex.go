// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"bytes"
	"fmt"

	"cvs.io/errors"
)

// tokenType is the class of a lexical token in an RCS file.
type tokenType int

const (
	tokEOF     tokenType = iota
	tokNumber            // digits and dots: 1.4.2.3, 2004.03.11.10.20.30
	tokIdent             // any other word: author names, states, symbol names
	tokKeyword           // a reserved word such as head or desc
	tokString            // @-quoted string with @@ unescaped
	tokColon
	tokSemi
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "EOF"
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokKeyword:
		return "keyword"
	case tokString:
		return "string"
	case tokColon:
		return "':'"
	case tokSemi:
		return "';'"
	}
	return "unknown token"
}

// Reserved words of the RCS grammar.
var keywords = map[string]bool{
	"head":     true,
	"branch":   true,
	"access":   true,
	"symbols":  true,
	"locks":    true,
	"strict":   true,
	"comment":  true,
	"expand":   true,
	"date":     true,
	"author":   true,
	"state":    true,
	"branches": true,
	"next":     true,
	"desc":     true,
	"log":      true,
	"text":     true,
}

type token struct {
	typ  tokenType
	text []byte // for strings, the unescaped contents
	line int
}

func (t token) String() string {
	switch t.typ {
	case tokEOF, tokColon, tokSemi:
		return t.typ.String()
	case tokString:
		return "string"
	}
	return fmt.Sprintf("%s %q", t.typ, t.text)
}

// lexer splits the contents of an RCS file into tokens.
// It supports pushing back a single token.
type lexer struct {
	buf    []byte
	pos    int
	line   int
	pushed *token
}

func newLexer(buf []byte) *lexer {
	return &lexer{buf: buf, line: 1}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r', '\b':
		return true
	}
	return false
}

// isWordByte reports whether c may appear in a number or identifier.
func isWordByte(c byte) bool {
	return !isSpace(c) && c != ':' && c != ';' && c != '@' && c != '$' && c != ','
}

// unget pushes t back so the next call to next returns it again.
func (l *lexer) unget(t token) {
	if l.pushed != nil {
		panic("rcs: double token pushback")
	}
	l.pushed = &t
}

// peek returns the next token without consuming it.
func (l *lexer) peek() (token, error) {
	t, err := l.next()
	if err != nil {
		return t, err
	}
	l.unget(t)
	return t, nil
}

func (l *lexer) next() (token, error) {
	if l.pushed != nil {
		t := *l.pushed
		l.pushed = nil
		return t, nil
	}
	for l.pos < len(l.buf) && isSpace(l.buf[l.pos]) {
		if l.buf[l.pos] == '\n' {
			l.line++
		}
		l.pos++
	}
	if l.pos >= len(l.buf) {
		return token{typ: tokEOF, line: l.line}, nil
	}
	start := l.line
	switch c := l.buf[l.pos]; c {
	case ':':
		l.pos++
		return token{typ: tokColon, line: start}, nil
	case ';':
		l.pos++
		return token{typ: tokSemi, line: start}, nil
	case '@':
		return l.quoted()
	case '$', ',':
		return token{}, l.errorf("unexpected character %q", c)
	}
	end := l.pos
	digits := true
	for end < len(l.buf) && isWordByte(l.buf[end]) {
		if c := l.buf[end]; c != '.' && (c < '0' || c > '9') {
			digits = false
		}
		end++
	}
	word := l.buf[l.pos:end]
	l.pos = end
	switch {
	case digits:
		return token{typ: tokNumber, text: word, line: start}, nil
	case keywords[string(word)]:
		return token{typ: tokKeyword, text: word, line: start}, nil
	}
	return token{typ: tokIdent, text: word, line: start}, nil
}

// quoted scans an @-delimited string. Inside the string @@ stands for a
// single @. If the string contains no doubled @ the returned text shares
// storage with the input.
func (l *lexer) quoted() (token, error) {
	start := l.line
	l.pos++ // opening @
	begin := l.pos
	var out []byte
	for {
		i := bytes.IndexByte(l.buf[l.pos:], '@')
		if i < 0 {
			l.pos = len(l.buf)
			return token{}, l.errorf("unterminated string starting at line %d", start)
		}
		seg := l.buf[l.pos : l.pos+i]
		l.line += bytes.Count(seg, []byte{'\n'})
		at := l.pos + i
		if at+1 < len(l.buf) && l.buf[at+1] == '@' {
			if out == nil {
				out = make([]byte, 0, at-begin+64)
				out = append(out, l.buf[begin:l.pos]...)
			}
			out = append(out, seg...)
			out = append(out, '@')
			l.pos = at + 2
			continue
		}
		if out == nil {
			out = l.buf[begin:at]
		} else {
			out = append(out, seg...)
		}
		l.pos = at + 1
		return token{typ: tokString, text: out, line: start}, nil
	}
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return errors.E(errors.Syntax, errors.Errorf("line %d: %s", l.line, fmt.Sprintf(format, args...)))
}
