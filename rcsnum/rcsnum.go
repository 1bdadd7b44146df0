// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rcsnum implements RCS revision and branch numbers such as
// "1.4" (a revision on the trunk), "1.4.2" (a branch sprouting from 1.4)
// and "1.4.2.3" (the third revision on that branch).
//
// A number with an even count of components is a revision; an odd count
// is a branch. The "magic" branch form 1.4.0.2, used in symbol tables to
// distinguish branch tags from revision tags, is normalized to 1.4.2 on
// parse and remembered so it can be written back unchanged.
package rcsnum // import "cvs.io/rcsnum"

import (
	"strconv"
	"strings"

	"cvs.io/errors"
)

// MaxComponent is the largest value of a single component.
const MaxComponent = 1<<16 - 1

// ErrOverflow reports a component larger than MaxComponent.
var ErrOverflow = errors.Str("revision number component out of range")

// Num is a dotted RCS number. The zero Num is empty and formats as "".
// Num values are immutable; operations return new values.
type Num struct {
	ids   []uint16
	magic bool
}

// New returns a Num with the given components.
func New(ids ...uint16) Num {
	n := Num{ids: make([]uint16, len(ids))}
	copy(n.ids, ids)
	return n
}

// Parse parses the dotted number s. Components must be unsigned decimal
// integers no larger than MaxComponent and none may be empty.
func Parse(s string) (Num, error) {
	const op errors.Op = "rcsnum.Parse"
	if s == "" {
		return Num{}, errors.E(op, errors.Syntax, errors.Str("empty revision number"))
	}
	parts := strings.Split(s, ".")
	n := Num{ids: make([]uint16, 0, len(parts))}
	for _, p := range parts {
		if p == "" {
			return Num{}, errors.E(op, errors.Syntax, errors.Errorf("empty component in %q", s))
		}
		var v uint32
		for _, c := range []byte(p) {
			if c < '0' || c > '9' {
				return Num{}, errors.E(op, errors.Syntax, errors.Errorf("invalid character %q in %q", c, s))
			}
			v = v*10 + uint32(c-'0')
			if v > MaxComponent {
				return Num{}, errors.E(op, errors.Syntax, errors.Errorf("%q", s), ErrOverflow)
			}
		}
		n.ids = append(n.ids, uint16(v))
	}

	// Handle magic branch numbers: x.y.0.z becomes x.y.z.
	l := len(n.ids)
	if l > 2 && l%2 == 0 && n.ids[l-2] == 0 {
		n.ids[l-2] = n.ids[l-1]
		n.ids = n.ids[:l-1]
		n.magic = true
	}
	return n, nil
}

// MustParse is like Parse but panics if s is not a valid number.
// It is intended for tests and constant tables.
func MustParse(s string) Num {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the canonical dotted form of n.
func (n Num) String() string {
	if len(n.ids) == 0 {
		return ""
	}
	var b strings.Builder
	for i, id := range n.ids {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// MagicString returns n in the form it was parsed from: a branch number
// that was read as x.y.0.z is formatted that way again.
func (n Num) MagicString() string {
	if !n.magic || len(n.ids) < 3 {
		return n.String()
	}
	l := len(n.ids)
	m := Num{ids: make([]uint16, 0, l+1)}
	m.ids = append(m.ids, n.ids[:l-1]...)
	m.ids = append(m.ids, 0, n.ids[l-1])
	return m.String()
}

// Magic reports whether n was parsed from the magic branch form.
func (n Num) Magic() bool { return n.magic }

// WithMagic returns a copy of the branch number n that formats in the
// magic form under MagicString.
func (n Num) WithMagic() Num {
	m := n.Clone()
	m.magic = n.IsBranch() && len(n.ids) >= 3
	return m
}

// Len returns the number of components.
func (n Num) Len() int { return len(n.ids) }

// IsZero reports whether n is the empty number.
func (n Num) IsZero() bool { return len(n.ids) == 0 }

// Component returns the i'th component.
func (n Num) Component(i int) uint16 { return n.ids[i] }

// Last returns the final component, or 0 for the empty number.
func (n Num) Last() uint16 {
	if len(n.ids) == 0 {
		return 0
	}
	return n.ids[len(n.ids)-1]
}

// Clone returns a copy of n that shares no storage with it.
func (n Num) Clone() Num {
	m := New(n.ids...)
	m.magic = n.magic
	return m
}

// IsRevision reports whether n names a revision (an even, non-zero
// number of components).
func (n Num) IsRevision() bool { return len(n.ids) > 0 && len(n.ids)%2 == 0 }

// IsBranch reports whether n names a branch (an odd number of components).
func (n Num) IsBranch() bool { return len(n.ids)%2 == 1 }

// IsTrunk reports whether n is a revision on the trunk, such as 1.4.
func (n Num) IsTrunk() bool { return len(n.ids) == 2 }

// Equal reports whether n and m have the same components.
func (n Num) Equal(m Num) bool {
	if len(n.ids) != len(m.ids) {
		return false
	}
	for i := range n.ids {
		if n.ids[i] != m.ids[i] {
			return false
		}
	}
	return true
}

// Cmp compares a and b component by component, looking at no more than
// depth components; depth 0 compares the full numbers. It returns -1 if
// a sorts before b, 0 if they are equal and +1 if a sorts after b.
//
// When one number is a proper prefix of the other and depth does not stop
// the comparison first, the longer number sorts first: 1.2.2.1 < 1.2.
// The revision tree search depends on this order.
func Cmp(a, b Num, depth int) int {
	l := len(a.ids)
	if len(b.ids) < l {
		l = len(b.ids)
	}
	if depth > 0 && l > depth {
		l = depth
	}
	for i := 0; i < l; i++ {
		switch {
		case a.ids[i] < b.ids[i]:
			return -1
		case a.ids[i] > b.ids[i]:
			return 1
		}
	}
	if depth > 0 && l == depth {
		return 0
	}
	switch {
	case len(a.ids) > len(b.ids):
		return -1
	case len(a.ids) < len(b.ids):
		return 1
	}
	return 0
}

// Inc returns n with its last component incremented.
func (n Num) Inc() (Num, error) {
	if len(n.ids) == 0 {
		return Num{}, errors.E(errors.Op("rcsnum.Inc"), errors.Invalid, errors.Str("empty revision number"))
	}
	if n.Last() == MaxComponent {
		return Num{}, errors.E(errors.Op("rcsnum.Inc"), errors.Syntax, errors.Errorf("%s", n), ErrOverflow)
	}
	m := n.Clone()
	m.ids[len(m.ids)-1]++
	return m, nil
}

// Dec returns n with its last component decremented. A last component of
// one (or zero) is left unchanged.
func (n Num) Dec() Num {
	m := n.Clone()
	if l := len(m.ids); l > 0 && m.ids[l-1] > 1 {
		m.ids[l-1]--
	}
	return m
}

// BranchToRev returns the number of the first revision on branch n:
// 1.4.2 becomes 1.4.2.1. It fails if n is not a branch number.
func (n Num) BranchToRev() (Num, error) {
	if !n.IsBranch() {
		return Num{}, errors.E(errors.Op("rcsnum.BranchToRev"), errors.Invalid, errors.Errorf("%s is not a branch", n))
	}
	m := New(append(append([]uint16{}, n.ids...), 1)...)
	return m, nil
}

// RevToBranch returns the branch that revision n is on: 1.4.2.1 becomes
// 1.4.2 and 1.4 becomes 1. It fails if n is not a revision number.
func (n Num) RevToBranch() (Num, error) {
	if !n.IsRevision() {
		return Num{}, errors.E(errors.Op("rcsnum.RevToBranch"), errors.Invalid, errors.Errorf("%s is not a revision", n))
	}
	return New(n.ids[:len(n.ids)-1]...), nil
}

// BranchPoint returns the revision a branch or branch revision sprouts
// from: both 1.4.2 and 1.4.2.7 yield 1.4. Trunk numbers have no branch
// point and yield the zero Num.
func (n Num) BranchPoint() Num {
	l := len(n.ids)
	if n.IsRevision() {
		l--
	}
	if l < 3 {
		return Num{}
	}
	return New(n.ids[:l-1]...)
}

// Prefix returns the first k components of n.
func (n Num) Prefix(k int) Num {
	if k > len(n.ids) {
		k = len(n.ids)
	}
	return New(n.ids[:k]...)
}

// Append returns n extended by the given components.
func (n Num) Append(ids ...uint16) Num {
	return New(append(append([]uint16{}, n.ids...), ids...)...)
}
