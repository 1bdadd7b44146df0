// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcsnum

import (
	"testing"

	"cvs.io/errors"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in, canon, magic string
	}{
		{"1.1", "1.1", "1.1"},
		{"1.4.2.3", "1.4.2.3", "1.4.2.3"},
		{"1.1.1", "1.1.1", "1.1.1"},
		{"1.4.0.2", "1.4.2", "1.4.0.2"},
		{"1.4.2.5.0.4", "1.4.2.5.4", "1.4.2.5.0.4"},
		{"65535.1", "65535.1", "65535.1"},
		{"2", "2", "2"},
	}
	for _, test := range tests {
		n, err := Parse(test.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", test.in, err)
			continue
		}
		if got := n.String(); got != test.canon {
			t.Errorf("Parse(%q).String() = %q; want %q", test.in, got, test.canon)
		}
		if got := n.MagicString(); got != test.magic {
			t.Errorf("Parse(%q).MagicString() = %q; want %q", test.in, got, test.magic)
		}
		// The canonical form is a fixed point.
		again, err := Parse(n.String())
		if err != nil {
			t.Errorf("Parse(%q): %v", n.String(), err)
			continue
		}
		if again.String() != n.String() {
			t.Errorf("round trip of %q gave %q", n, again)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", ".", "1.", ".1", "1..2", "1.a", "1.-2", "1 .2", "65536.1"} {
		_, err := Parse(in)
		if !errors.Is(errors.Syntax, err) {
			t.Errorf("Parse(%q) = %v; want syntax error", in, err)
		}
	}
	_, err := Parse("1.70000")
	if e, ok := err.(*errors.Error); !ok || e.Err != ErrOverflow {
		t.Errorf("Parse overflow error = %v; want ErrOverflow", err)
	}
}

func TestCmp(t *testing.T) {
	tests := []struct {
		a, b  string
		depth int
		want  int
	}{
		{"1.1", "1.1", 0, 0},
		{"1.1", "1.2", 0, -1},
		{"1.10", "1.9", 0, 1},
		{"2.1", "1.9", 0, 1},
		{"1.2.2.1", "1.2", 0, -1},
		{"1.2", "1.2.2.1", 0, 1},
		{"1.2", "1.2.2.1", 2, 0},
		{"1.2.2.1", "1.2.4.1", 3, -1},
		{"1.2.2.1", "1.2.2.9", 3, 0},
		{"1.3", "1.2.2.1", 2, 1},
	}
	for _, test := range tests {
		a, b := MustParse(test.a), MustParse(test.b)
		if got := Cmp(a, b, test.depth); got != test.want {
			t.Errorf("Cmp(%s, %s, %d) = %d; want %d", a, b, test.depth, got, test.want)
		}
	}
}

func TestCmpProperties(t *testing.T) {
	nums := []string{"1.1", "1.2", "1.2.2", "1.2.2.1", "1.2.2.2", "1.2.4.1", "1.10", "2.1", "1.1.1.1", "1"}
	for _, x := range nums {
		a := MustParse(x)
		if Cmp(a, a, 0) != 0 {
			t.Errorf("Cmp(%s, %s, 0) != 0", a, a)
		}
		for _, y := range nums {
			b := MustParse(y)
			if Cmp(a, b, 0) != -Cmp(b, a, 0) {
				t.Errorf("Cmp not antisymmetric for %s, %s", a, b)
			}
		}
	}
}

func TestIncDec(t *testing.T) {
	n := MustParse("1.4")
	inc, err := n.Inc()
	if err != nil {
		t.Fatal(err)
	}
	if inc.String() != "1.5" || n.String() != "1.4" {
		t.Errorf("Inc: got %s (from %s); want 1.5 (from 1.4)", inc, n)
	}
	if got := n.Dec().String(); got != "1.3" {
		t.Errorf("Dec(1.4) = %s; want 1.3", got)
	}
	if got := MustParse("1.1").Dec().String(); got != "1.1" {
		t.Errorf("Dec(1.1) = %s; want 1.1", got)
	}
	if _, err := MustParse("1.65535").Inc(); err == nil {
		t.Error("Inc(1.65535) did not overflow")
	}
}

func TestBranchConversions(t *testing.T) {
	br := MustParse("1.4.2")
	rev, err := br.BranchToRev()
	if err != nil {
		t.Fatal(err)
	}
	if rev.String() != "1.4.2.1" {
		t.Errorf("BranchToRev(1.4.2) = %s; want 1.4.2.1", rev)
	}
	back, err := rev.RevToBranch()
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(br) {
		t.Errorf("RevToBranch(1.4.2.1) = %s; want 1.4.2", back)
	}
	if _, err := rev.BranchToRev(); err == nil {
		t.Error("BranchToRev accepted a revision number")
	}
	if _, err := br.RevToBranch(); err == nil {
		t.Error("RevToBranch accepted a branch number")
	}
	if got := MustParse("1.4.2.7").BranchPoint().String(); got != "1.4" {
		t.Errorf("BranchPoint(1.4.2.7) = %s; want 1.4", got)
	}
	if got := br.BranchPoint().String(); got != "1.4" {
		t.Errorf("BranchPoint(1.4.2) = %s; want 1.4", got)
	}
	if !MustParse("1.9").BranchPoint().IsZero() {
		t.Error("trunk revision has a branch point")
	}
}

func TestMagic(t *testing.T) {
	n := MustParse("1.4.0.2")
	if !n.IsBranch() || !n.Magic() {
		t.Errorf("1.4.0.2: IsBranch %t Magic %t; want true, true", n.IsBranch(), n.Magic())
	}
	m := MustParse("1.4.2").WithMagic()
	if got := m.MagicString(); got != "1.4.0.2" {
		t.Errorf("WithMagic(1.4.2).MagicString() = %s; want 1.4.0.2", got)
	}
	// Vendor branches are written plainly.
	if got := MustParse("1.1.1").MagicString(); got != "1.1.1" {
		t.Errorf("MagicString(1.1.1) = %s", got)
	}
}

func TestZero(t *testing.T) {
	var n Num
	if n.String() != "" || !n.IsZero() || n.IsRevision() {
		t.Errorf("zero Num misbehaves: %q %t %t", n, n.IsZero(), n.IsRevision())
	}
}
