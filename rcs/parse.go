// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcs

import (
	"strconv"
	"strings"
	"time"

	"cvs.io/errors"
	"cvs.io/rcsnum"
)

// parser holds the state of parsing one RCS file.
type parser struct {
	lex *lexer
	f   *File
}

func (f *File) parse(buf []byte) error {
	p := &parser{lex: newLexer(buf), f: f}
	if err := p.admin(); err != nil {
		return err
	}
	if err := p.deltas(); err != nil {
		return err
	}
	if err := p.desc(); err != nil {
		return err
	}
	if err := p.deltaTexts(); err != nil {
		return err
	}
	return p.check()
}

func (p *parser) errorf(t token, format string, args ...interface{}) error {
	return errors.E(errors.Syntax, errors.Errorf("line %d: "+format, append([]interface{}{t.line}, args...)...))
}

// expect consumes a token of type typ.
func (p *parser) expect(typ tokenType) (token, error) {
	t, err := p.lex.next()
	if err != nil {
		return t, err
	}
	if t.typ != typ {
		return t, p.errorf(t, "expected %s, found %s", typ, t)
	}
	return t, nil
}

// keyword consumes the reserved word kw.
func (p *parser) keyword(kw string) error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	if t.typ != tokKeyword || string(t.text) != kw {
		return p.errorf(t, "expected %q, found %s", kw, t)
	}
	return nil
}

// optional consumes a token of type typ followed by a semicolon, or just
// the semicolon. It reports whether the token was present.
func (p *parser) optional(typ tokenType) (token, bool, error) {
	t, err := p.lex.next()
	if err != nil {
		return t, false, err
	}
	if t.typ == tokSemi {
		return t, false, nil
	}
	if t.typ != typ && !(typ == tokIdent && t.typ == tokKeyword) {
		return t, false, p.errorf(t, "expected %s, found %s", typ, t)
	}
	_, err = p.expect(tokSemi)
	return t, true, err
}

func (p *parser) num(t token) (rcsnum.Num, error) {
	n, err := rcsnum.Parse(string(t.text))
	if err != nil {
		return n, p.errorf(t, "%v", err)
	}
	return n, nil
}

// phrase parses the remainder of a newphrase whose name has been read.
func (p *parser) phrase(name token) (phrase, error) {
	ph := phrase{name: string(name.text)}
	for {
		t, err := p.lex.next()
		if err != nil {
			return ph, err
		}
		switch t.typ {
		case tokSemi:
			return ph, nil
		case tokEOF:
			return ph, p.errorf(t, "unterminated phrase %s", ph.name)
		case tokString:
			ph.words = append(ph.words, word{text: string(t.text), quoted: true})
		case tokColon:
			ph.words = append(ph.words, word{text: ":"})
		default:
			ph.words = append(ph.words, word{text: string(t.text)})
		}
	}
}

func (p *parser) admin() error {
	f := p.f
	if err := p.keyword("head"); err != nil {
		return err
	}
	t, ok, err := p.optional(tokNumber)
	if err != nil {
		return err
	}
	if ok {
		if f.head, err = p.num(t); err != nil {
			return err
		}
	}
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		switch t.typ {
		case tokNumber:
			p.lex.unget(t)
			return nil
		case tokIdent:
			ph, err := p.phrase(t)
			if err != nil {
				return err
			}
			f.phrases = append(f.phrases, ph)
			continue
		case tokKeyword:
		default:
			return p.errorf(t, "unexpected %s in admin section", t)
		}
		switch kw := string(t.text); kw {
		case "desc":
			p.lex.unget(t)
			return nil
		case "branch":
			t, ok, err := p.optional(tokNumber)
			if err != nil {
				return err
			}
			if ok {
				if f.branch, err = p.num(t); err != nil {
					return err
				}
			}
		case "access":
			for {
				t, err := p.lex.next()
				if err != nil {
					return err
				}
				if t.typ == tokSemi {
					break
				}
				if t.typ != tokIdent && t.typ != tokKeyword && t.typ != tokNumber {
					return p.errorf(t, "bad access list entry %s", t)
				}
				f.access = append(f.access, string(t.text))
			}
		case "symbols", "locks":
			for {
				t, err := p.lex.next()
				if err != nil {
					return err
				}
				if t.typ == tokSemi {
					break
				}
				if t.typ != tokIdent && t.typ != tokKeyword && t.typ != tokNumber {
					return p.errorf(t, "bad %s entry %s", kw, t)
				}
				if _, err := p.expect(tokColon); err != nil {
					return err
				}
				nt, err := p.expect(tokNumber)
				if err != nil {
					return err
				}
				n, err := p.num(nt)
				if err != nil {
					return err
				}
				if kw == "symbols" {
					f.symbols = append(f.symbols, Symbol{Name: string(t.text), Num: n})
				} else {
					f.locks = append(f.locks, Lock{User: string(t.text), Num: n})
				}
			}
			if kw == "locks" {
				f.strict = false
			}
		case "strict":
			if _, err := p.expect(tokSemi); err != nil {
				return err
			}
			f.strict = true
		case "comment":
			t, ok, err := p.optional(tokString)
			if err != nil {
				return err
			}
			if ok {
				c := string(t.text)
				f.comment = &c
			}
		case "expand":
			t, ok, err := p.optional(tokString)
			if err != nil {
				return err
			}
			if ok {
				f.expand = string(t.text)
				if !ValidExpand(f.expand) {
					return p.errorf(t, "bad expansion mode %q", f.expand)
				}
			}
		default:
			return p.errorf(t, "unexpected keyword %q in admin section", kw)
		}
	}
}

func (p *parser) deltas() error {
	f := p.f
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		if t.typ != tokNumber {
			p.lex.unget(t)
			return nil
		}
		d := &Delta{}
		if d.Num, err = p.num(t); err != nil {
			return err
		}
		if !d.Num.IsRevision() {
			return p.errorf(t, "%s is not a revision number", d.Num)
		}
		if f.findRev(d.Num) != nil {
			return p.errorf(t, "duplicate revision %s", d.Num)
		}
		if err := p.keyword("date"); err != nil {
			return err
		}
		dt, err := p.expect(tokNumber)
		if err != nil {
			return err
		}
		if d.Date, err = parseDate(string(dt.text)); err != nil {
			return p.errorf(dt, "%v", err)
		}
		if _, err := p.expect(tokSemi); err != nil {
			return err
		}
		if err := p.keyword("author"); err != nil {
			return err
		}
		at, ok, err := p.optional(tokIdent)
		if err != nil {
			return err
		}
		if ok {
			d.Author = string(at.text)
		}
		if err := p.keyword("state"); err != nil {
			return err
		}
		st, ok, err := p.optional(tokIdent)
		if err != nil {
			return err
		}
		if ok {
			d.State = string(st.text)
		}
		if err := p.keyword("branches"); err != nil {
			return err
		}
		for {
			bt, err := p.lex.next()
			if err != nil {
				return err
			}
			if bt.typ == tokSemi {
				break
			}
			if bt.typ != tokNumber {
				return p.errorf(bt, "expected branch number, found %s", bt)
			}
			b, err := p.num(bt)
			if err != nil {
				return err
			}
			d.Branches = append(d.Branches, b)
		}
		if err := p.keyword("next"); err != nil {
			return err
		}
		nt, ok, err := p.optional(tokNumber)
		if err != nil {
			return err
		}
		if ok {
			if d.Next, err = p.num(nt); err != nil {
				return err
			}
		}
		for {
			t, err := p.lex.peek()
			if err != nil {
				return err
			}
			if t.typ != tokIdent {
				break
			}
			p.lex.next()
			ph, err := p.phrase(t)
			if err != nil {
				return err
			}
			d.phrases = append(d.phrases, ph)
		}
		f.deltas.Put(d.Num, d)
		f.order = append(f.order, d)
	}
}

func (p *parser) desc() error {
	if err := p.keyword("desc"); err != nil {
		return err
	}
	t, err := p.expect(tokString)
	if err != nil {
		return err
	}
	p.f.desc = string(t.text)
	return nil
}

func (p *parser) deltaTexts() error {
	f := p.f
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		if t.typ == tokEOF {
			return nil
		}
		if t.typ != tokNumber {
			return p.errorf(t, "expected revision number, found %s", t)
		}
		n, err := p.num(t)
		if err != nil {
			return err
		}
		d := f.findRev(n)
		if d == nil {
			return p.errorf(t, "text for unknown revision %s", n)
		}
		if d.hasText {
			return p.errorf(t, "duplicate text for revision %s", n)
		}
		if err := p.keyword("log"); err != nil {
			return err
		}
		lt, err := p.expect(tokString)
		if err != nil {
			return err
		}
		d.Log = string(lt.text)
		for {
			t, err := p.lex.next()
			if err != nil {
				return err
			}
			if t.typ == tokKeyword && string(t.text) == "text" {
				break
			}
			if t.typ != tokIdent {
				return p.errorf(t, "expected \"text\", found %s", t)
			}
			ph, err := p.phrase(t)
			if err != nil {
				return err
			}
			d.textPhrases = append(d.textPhrases, ph)
		}
		tt, err := p.expect(tokString)
		if err != nil {
			return err
		}
		d.Text = tt.text
		d.hasText = true
	}
}

// check verifies the links between revisions.
func (p *parser) check() error {
	f := p.f
	if !f.head.IsZero() && f.findRev(f.head) == nil {
		return errors.E(errors.Syntax, errors.Errorf("head revision %s has no delta", f.head))
	}
	for _, d := range f.order {
		if !d.hasText {
			return errors.E(errors.Syntax, errors.Errorf("revision %s has no text", d.Num))
		}
		if !d.Next.IsZero() && f.findRev(d.Next) == nil {
			return errors.E(errors.Syntax, errors.Errorf("revision %s: next revision %s does not exist", d.Num, d.Next))
		}
		for _, b := range d.Branches {
			if f.findRev(b) == nil {
				return errors.E(errors.Syntax, errors.Errorf("revision %s: branch revision %s does not exist", d.Num, b))
			}
		}
	}
	return nil
}

// parseDate parses an RCS date: Y.mm.dd.hh.mm.ss in UTC, where a two
// digit year is in the twentieth century.
func parseDate(s string) (time.Time, error) {
	fields := strings.Split(s, ".")
	if len(fields) != 6 {
		return time.Time{}, errors.Errorf("bad date %q", s)
	}
	var v [6]int
	for i, fld := range fields {
		n, err := strconv.Atoi(fld)
		if err != nil {
			return time.Time{}, errors.Errorf("bad date %q", s)
		}
		v[i] = n
	}
	if v[0] < 100 {
		v[0] += 1900
	}
	if v[1] < 1 || v[1] > 12 || v[2] < 1 || v[2] > 31 || v[3] > 23 || v[4] > 59 || v[5] > 60 {
		return time.Time{}, errors.Errorf("date %q out of range", s)
	}
	return time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, time.UTC), nil
}
