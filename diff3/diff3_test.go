// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diff3

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cvs.io/rcs"
	"cvs.io/rcsnum"
)

var mergeTests = []struct {
	name               string
	mine, older, yours string
	markers, count     string
	conflicts          int
}{
	{
		name:    "identical",
		mine:    "a\nb\nc\n",
		older:   "a\nb\nc\n",
		yours:   "a\nb\nc\n",
		markers: "a\nb\nc\n",
		count:   "a\nb\nc\n",
	},
	{
		name:    "only yours changed",
		mine:    "a\nb\nc\n",
		older:   "a\nb\nc\n",
		yours:   "a\nB\nc\nd\n",
		markers: "a\nB\nc\nd\n",
		count:   "a\nB\nc\nd\n",
	},
	{
		name:    "only mine changed",
		mine:    "x\na\nb\n",
		older:   "a\nb\nc\n",
		yours:   "a\nb\nc\n",
		markers: "x\na\nb\n",
		count:   "x\na\nb\n",
	},
	{
		name:    "disjoint changes",
		mine:    "a\nB\nc\nd\ne\n",
		older:   "a\nb\nc\nd\ne\n",
		yours:   "a\nb\nc\nD\ne\n",
		markers: "a\nB\nc\nD\ne\n",
		count:   "a\nB\nc\nD\ne\n",
	},
	{
		name:    "convergent change",
		mine:    "a\nZ\nc\n",
		older:   "a\nb\nc\n",
		yours:   "a\nZ\nc\n",
		markers: "a\nZ\nc\n",
		count:   "a\nZ\nc\n",
	},
	{
		name:      "conflict",
		mine:      "a\nX\nc\n",
		older:     "a\nb\nc\n",
		yours:     "a\nY\nc\n",
		markers:   "a\n<<<<<<< mine\nX\n=======\nY\n>>>>>>> yours\nc\n",
		count:     "a\nY\nc\n",
		conflicts: 1,
	},
	{
		name:      "adjacent changes conflict",
		mine:      "a\nB\nc\n",
		older:     "a\nb\nc\n",
		yours:     "a\nb\nC\n",
		markers:   "a\n<<<<<<< mine\nB\nc\n=======\nb\nC\n>>>>>>> yours\n",
		count:     "a\nb\nC\n",
		conflicts: 1,
	},
	{
		name:      "deletion against change",
		mine:      "a\nc\n",
		older:     "a\nb\nc\n",
		yours:     "a\nbb\nc\n",
		markers:   "a\n<<<<<<< mine\n=======\nbb\n>>>>>>> yours\nc\n",
		count:     "a\nbb\nc\n",
		conflicts: 1,
	},
	{
		name:    "insertions around a change",
		mine:    "c\nc\nd\nd\nax\na\nc\n",
		older:   "c\nc\nd\nd\na\na\nc\n",
		yours:   "c\ninsc\nd\ninsd\nd\na\na\ninsa\nc\ninsc\n",
		markers: "c\ninsc\nd\ninsd\nd\nax\na\ninsa\nc\ninsc\n",
		count:   "c\ninsc\nd\ninsd\nd\nax\na\ninsa\nc\ninsc\n",
	},
}

func TestMerge(t *testing.T) {
	for _, test := range mergeTests {
		for _, mode := range []Mode{Markers, Count} {
			res, err := Merge([]byte(test.mine), []byte(test.older), []byte(test.yours), Options{Mode: mode, Label1: "mine", Label3: "yours"})
			if err != nil {
				t.Fatalf("%s: %v", test.name, err)
			}
			want := test.markers
			if mode == Count {
				want = test.count
			}
			if string(res.Text) != want {
				t.Errorf("%s (mode %d): merged text\n%q\nwant\n%q", test.name, mode, res.Text, want)
			}
			if res.Conflicts != test.conflicts {
				t.Errorf("%s (mode %d): %d conflicts; want %d", test.name, mode, res.Conflicts, test.conflicts)
			}
			// The script must turn file1 into the merged text.
			got, err := rcs.ApplyScript([]byte(test.mine), res.Script)
			if err != nil {
				t.Errorf("%s (mode %d): script %q: %v", test.name, mode, res.Script, err)
				continue
			}
			if string(got) != want {
				t.Errorf("%s (mode %d): script %q yields %q; want %q", test.name, mode, res.Script, got, want)
			}
		}
	}
}

func TestDiff(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for n := 0; n < 500; n++ {
		a, b := randomLines(rnd, 20), randomLines(rnd, 20)
		al, bl := rcs.SplitLines([]byte(a)), rcs.SplitLines([]byte(b))
		changes := Diff(al, bl)
		var got [][]byte
		pos := 0
		for _, c := range changes {
			if c.Old.From < pos || c.Old.Len() == 0 && c.New.Len() == 0 {
				t.Fatalf("Diff(%q, %q): bad change %v in %v", a, b, c, changes)
			}
			got = append(got, al[pos:c.Old.From]...)
			got = append(got, bl[c.New.From:c.New.To]...)
			pos = c.Old.To
		}
		got = append(got, al[pos:]...)
		if !equalLines(got, bl) {
			t.Fatalf("Diff(%q, %q) = %v does not produce the second text", a, b, changes)
		}
	}
}

// randomLines returns up to n lines drawn from a small alphabet, so that
// texts share many lines.
func randomLines(rnd *rand.Rand, n int) string {
	var s string
	for k := rnd.Intn(n + 1); k > 0; k-- {
		s += string(rune('a'+rnd.Intn(4))) + "\n"
	}
	return s
}

// randomEdit deletes, replaces and inserts lines of base at random.
func randomEdit(rnd *rand.Rand, base string, tag string) string {
	var s string
	for i, l := range rcs.SplitLines([]byte(base)) {
		switch r := rnd.Intn(10); {
		case r == 0:
			continue
		case r == 1:
			s += fmt.Sprintf("%s%d\n", tag, i)
			continue
		case r == 2:
			s += fmt.Sprintf("%s+%d\n", tag, i)
		}
		s += string(l)
	}
	if rnd.Intn(5) == 0 {
		s += tag + "$\n"
	}
	return s
}

func TestMergeRandomEdits(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	merge := func(mine, older, yours string, mode Mode) *Result {
		t.Helper()
		res, err := Merge([]byte(mine), []byte(older), []byte(yours), Options{Mode: mode, Label1: "mine", Label3: "yours"})
		if err != nil {
			t.Fatalf("Merge(%q, %q, %q): %v", mine, older, yours, err)
		}
		got, err := rcs.ApplyScript([]byte(mine), res.Script)
		if err != nil {
			t.Fatalf("Merge(%q, %q, %q): script %q: %v", mine, older, yours, res.Script, err)
		}
		if string(got) != string(res.Text) {
			t.Fatalf("Merge(%q, %q, %q): script yields %q; merged text is %q", mine, older, yours, got, res.Text)
		}
		return res
	}
	for n := 0; n < 2000; n++ {
		older := randomLines(rnd, 12)
		mine := randomEdit(rnd, older, "m")
		yours := randomEdit(rnd, older, "y")
		for _, mode := range []Mode{Markers, Count} {
			merge(mine, older, yours, mode)
			if res := merge(older, older, yours, mode); string(res.Text) != yours || res.Conflicts != 0 {
				t.Fatalf("unchanged mine: Merge(%q, %q, %q) = %q, %d conflicts", older, older, yours, res.Text, res.Conflicts)
			}
			if res := merge(mine, older, older, mode); string(res.Text) != mine || res.Conflicts != 0 {
				t.Fatalf("unchanged yours: Merge(%q, %q, %q) = %q, %d conflicts", mine, older, older, res.Text, res.Conflicts)
			}
			if res := merge(mine, older, mine, mode); string(res.Text) != mine || res.Conflicts != 0 {
				t.Fatalf("same change: Merge(%q, %q, %q) = %q, %d conflicts", mine, older, mine, res.Text, res.Conflicts)
			}
		}
	}
}

func TestSelfMergeIdempotent(t *testing.T) {
	texts := []string{"", "one\n", "a\nb\nc\nd\n", "no newline"}
	for _, s := range texts {
		res, err := Merge([]byte(s), []byte(s), []byte(s), Options{})
		if err != nil {
			t.Fatal(err)
		}
		if string(res.Text) != s || res.Conflicts != 0 || len(res.Script) != 0 {
			t.Errorf("self merge of %q = %q, %d conflicts, script %q", s, res.Text, res.Conflicts, res.Script)
		}
	}
}

func TestParseNormalDiff(t *testing.T) {
	out := "2c2\n< b\n---\n> B\n4a5\n> new\n6,7d6\n< x\n< y\n"
	got, err := ParseNormalDiff([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	want := []Change{
		{Old: Range{1, 2}, New: Range{1, 2}},
		{Old: Range{4, 4}, New: Range{4, 5}},
		{Old: Range{5, 7}, New: Range{6, 6}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseNormalDiff = %v; want %v", got, want)
	}
	for _, bad := range []string{"2x3\n", "a\n", "3,1d2\n", "4c\n"} {
		if _, err := ParseNormalDiff([]byte(bad)); err == nil {
			t.Errorf("ParseNormalDiff(%q): no error", bad)
		}
	}
}

func TestMerge3WithParsedDiffs(t *testing.T) {
	mine := rcs.SplitLines([]byte("a\nB\nc\nd\ne\n"))
	older := rcs.SplitLines([]byte("a\nb\nc\nd\ne\n"))
	yours := rcs.SplitLines([]byte("a\nb\nc\nD\ne\n"))
	d13, err := ParseNormalDiff([]byte("2c2\n< B\n---\n> b\n4c4\n< d\n---\n> D\n"))
	if err != nil {
		t.Fatal(err)
	}
	d23, err := ParseNormalDiff([]byte("4c4\n< d\n---\n> D\n"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := Merge3(d13, d23, mine, older, yours, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "a\nB\nc\nD\ne\n"; string(res.Text) != want {
		t.Errorf("merged %q; want %q", res.Text, want)
	}
	if _, err := Merge3([]Change{{Old: Range{0, 9}, New: Range{0, 1}}}, nil, mine, older, yours, Options{}); err == nil {
		t.Error("out of range change accepted")
	}
}

func TestMergeRevisions(t *testing.T) {
	f, err := rcs.Open(filepath.Join(t.TempDir(), "m.c,v"), rcs.Create)
	if err != nil {
		t.Fatal(err)
	}
	date := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.Commit(rcs.HeadRev, []byte("a\nb\nc\n"), "one\n", "joe", date); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Commit(rcs.HeadRev, []byte("a\nb\nC\n"), "two\n", "joe", date.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	res, err := MergeRevisions(f, rcsnum.MustParse("1.1"), rcsnum.MustParse("1.2"), []byte("A\nb\nc\n"), "m.c")
	if err != nil {
		t.Fatal(err)
	}
	if want := "A\nb\nC\n"; string(res.Text) != want || res.Conflicts != 0 {
		t.Errorf("MergeRevisions = %q (%d conflicts); want %q", res.Text, res.Conflicts, want)
	}
	res, err = MergeRevisions(f, rcsnum.MustParse("1.1"), rcsnum.MustParse("1.2"), []byte("a\nb\nX\n"), "m.c")
	if err != nil {
		t.Fatal(err)
	}
	if want := "a\nb\n<<<<<<< m.c\nX\n=======\nC\n>>>>>>> 1.2\n"; string(res.Text) != want || res.Conflicts != 1 {
		t.Errorf("MergeRevisions = %q (%d conflicts); want %q", res.Text, res.Conflicts, want)
	}
}
