// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rcs reads, modifies and writes RCS ",v" files, the per-file
// history store of a CVS repository.
package rcs // import "cvs.io/rcs"

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"

	"cvs.io/errors"
	"cvs.io/log"
	"cvs.io/rcsnum"
)

// Flags for Open.
const (
	ReadOnly  = 0x0
	ReadWrite = 0x1
	Create    = 0x2 // Create the file; fails if it already exists.
)

// Keyword expansion modes, as stored in the expand field and used in
// the -k option.
const (
	ExpandKV  = "kv"
	ExpandKVL = "kvl"
	ExpandK   = "k"
	ExpandV   = "v"
	ExpandO   = "o"
	ExpandB   = "b"
)

// ValidExpand reports whether mode is a keyword expansion mode.
func ValidExpand(mode string) bool {
	switch mode {
	case ExpandKV, ExpandKVL, ExpandK, ExpandV, ExpandO, ExpandB:
		return true
	}
	return false
}

// Dead is the state of a revision that removes the file.
const Dead = "dead"

// Symbol is a symbolic name for a revision or branch.
type Symbol struct {
	Name string
	Num  rcsnum.Num
}

// Lock records that a user holds the RCS lock on a revision.
type Lock struct {
	User string
	Num  rcsnum.Num
}

// phrase is a newphrase of the RCS grammar: a keyword followed by words
// this package does not interpret, such as commitid. Phrases are kept so
// that a rewritten file retains them.
type phrase struct {
	name  string
	words []word
}

type word struct {
	text   string
	quoted bool
}

// Delta is one revision of the file.
type Delta struct {
	Num      rcsnum.Num
	Date     time.Time
	Author   string
	State    string
	Branches []rcsnum.Num
	Next     rcsnum.Num
	Log      string

	// Text is either the full contents (for the head revision) or the
	// edit script that reconstructs this revision from its neighbour.
	Text []byte

	hasText     bool // a deltatext was seen for this revision
	phrases     []phrase
	textPhrases []phrase
}

// File is an open RCS file. The methods of File are safe for concurrent
// use.
type File struct {
	mu    sync.Mutex
	path  string
	flags int
	mode  os.FileMode
	refs  int
	dirty bool

	head    rcsnum.Num
	branch  rcsnum.Num
	access  []string
	symbols []Symbol
	locks   []Lock
	strict  bool
	comment *string
	expand  string
	desc    string
	phrases []phrase

	// deltas indexes the revisions by number.
	deltas *treemap.Map
	// order holds the revisions in the order they appear in the file.
	order []*Delta
}

func numComparator(a, b interface{}) int {
	return rcsnum.Cmp(a.(rcsnum.Num), b.(rcsnum.Num), 0)
}

func newFile(path string, flags int) *File {
	return &File{
		path:   path,
		flags:  flags,
		mode:   0444,
		refs:   1,
		strict: true,
		deltas: treemap.NewWith(numComparator),
	}
}

// Open opens the RCS file at path. With the Create flag the file must not
// exist yet and an empty in-memory file is returned; it is written on the
// first call to Write or Close.
func Open(path string, flags int) (*File, error) {
	const op errors.Op = "rcs.Open"
	fi, err := os.Stat(path)
	if flags&Create != 0 {
		if err == nil {
			return nil, errors.E(op, errors.Path(path), errors.Exist)
		}
		if !os.IsNotExist(err) {
			return nil, errors.E(op, errors.Path(path), errors.IO, err)
		}
		f := newFile(path, flags|ReadWrite)
		f.dirty = true
		return f, nil
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(op, errors.Path(path), errors.NotExist)
		}
		return nil, errors.E(op, errors.Path(path), errors.IO, err)
	}
	if fi.IsDir() {
		return nil, errors.E(op, errors.Path(path), errors.IsDir)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(op, errors.Path(path), errors.IO, err)
	}
	f := newFile(path, flags)
	f.mode = fi.Mode().Perm()
	if err := f.parse(buf); err != nil {
		return nil, errors.E(op, errors.Path(path), err)
	}
	log.Debug.Printf("rcs: opened %s (%d revisions)", path, len(f.order))
	return f, nil
}

// Parse parses the contents of an RCS file held in memory. The returned
// File is read-only and is associated with name only for error messages.
func Parse(name string, buf []byte) (*File, error) {
	const op errors.Op = "rcs.Parse"
	f := newFile(name, ReadOnly)
	if err := f.parse(buf); err != nil {
		return nil, errors.E(op, errors.Path(name), err)
	}
	return f, nil
}

// Path returns the file name the File was opened with.
func (f *File) Path() string { return f.path }

// Name returns the base name of the file without the ",v" suffix.
func (f *File) Name() string {
	name := filepath.Base(f.path)
	if len(name) > 2 && name[len(name)-2:] == ",v" {
		name = name[:len(name)-2]
	}
	return name
}

// Ref records another user of f. Each call must be balanced by a Close.
func (f *File) Ref() *File {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
	return f
}

// Close releases a reference to f. When the last reference is released
// a modified, writable file is written back to disk.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs > 1 {
		f.refs--
		return nil
	}
	f.refs = 0
	if f.flags&ReadWrite != 0 && f.dirty {
		return f.writeLocked()
	}
	return nil
}

// Head returns the head revision, the zero Num for an empty file.
func (f *File) Head() rcsnum.Num {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head.Clone()
}

// SetHead makes rev the head revision.
func (f *File) SetHead(rev rcsnum.Num) error {
	const op errors.Op = "rcs.SetHead"
	f.mu.Lock()
	defer f.mu.Unlock()
	if !rev.IsTrunk() {
		return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("%s is not a trunk revision", rev))
	}
	f.head = rev.Clone()
	f.dirty = true
	return nil
}

// Branch returns the default branch, the zero Num if there is none.
func (f *File) Branch() rcsnum.Num {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branch.Clone()
}

// SetBranch sets the default branch. The zero Num clears it.
func (f *File) SetBranch(b rcsnum.Num) error {
	const op errors.Op = "rcs.SetBranch"
	f.mu.Lock()
	defer f.mu.Unlock()
	if !b.IsZero() && !b.IsBranch() {
		return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("%s is not a branch", b))
	}
	f.branch = b.Clone()
	f.dirty = true
	return nil
}

// Comment returns the comment leader.
func (f *File) Comment() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.comment == nil {
		return "# "
	}
	return *f.comment
}

// SetComment sets the comment leader.
func (f *File) SetComment(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comment = &c
	f.dirty = true
}

// Expand returns the default keyword expansion mode, "kv" if unset.
func (f *File) Expand() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expand == "" {
		return ExpandKV
	}
	return f.expand
}

// SetExpand sets the default keyword expansion mode. The mode "kv" is the
// default and clears the field.
func (f *File) SetExpand(mode string) error {
	const op errors.Op = "rcs.SetExpand"
	if !ValidExpand(mode) {
		return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("bad expansion mode %q", mode))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if mode == ExpandKV {
		mode = ""
	}
	f.expand = mode
	f.dirty = true
	return nil
}

// Desc returns the description text.
func (f *File) Desc() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desc
}

// SetDesc sets the description text.
func (f *File) SetDesc(desc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desc = desc
	f.dirty = true
}

// Strict reports whether strict locking is in effect.
func (f *File) Strict() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strict
}

// SetStrict turns strict locking on or off.
func (f *File) SetStrict(strict bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strict = strict
	f.dirty = true
}

// Access returns the access list.
func (f *File) Access() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.access...)
}

// AddAccess adds user to the access list.
func (f *File) AddAccess(user string) error {
	const op errors.Op = "rcs.AddAccess"
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.access {
		if a == user {
			return errors.E(op, errors.Path(f.path), errors.Exist, errors.Errorf("%s already in access list", user))
		}
	}
	f.access = append(f.access, user)
	f.dirty = true
	return nil
}

// RemoveAccess removes user from the access list.
func (f *File) RemoveAccess(user string) error {
	const op errors.Op = "rcs.RemoveAccess"
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.access {
		if a == user {
			f.access = append(f.access[:i], f.access[i+1:]...)
			f.dirty = true
			return nil
		}
	}
	return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("%s not in access list", user))
}

// Symbols returns the symbolic names in file order.
func (f *File) Symbols() []Symbol {
	f.mu.Lock()
	defer f.mu.Unlock()
	syms := make([]Symbol, len(f.symbols))
	for i, s := range f.symbols {
		syms[i] = Symbol{Name: s.Name, Num: s.Num.Clone()}
	}
	return syms
}

// Symbol returns the number a symbolic name is bound to.
func (f *File) Symbol(name string) (rcsnum.Num, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.symbols {
		if s.Name == name {
			return s.Num.Clone(), true
		}
	}
	return rcsnum.Num{}, false
}

// AddSymbol binds name to num. New symbols go first, as RCS does.
// A branch number is stored in the magic form.
func (f *File) AddSymbol(name string, num rcsnum.Num) error {
	const op errors.Op = "rcs.AddSymbol"
	if err := ValidSymbol(name); err != nil {
		return errors.E(op, errors.Path(f.path), err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.symbols {
		if s.Name == name {
			return errors.E(op, errors.Path(f.path), errors.Exist, errors.Errorf("symbol %s already bound to %s", name, s.Num))
		}
	}
	n := num.Clone()
	if n.IsBranch() {
		n = n.WithMagic()
	}
	f.symbols = append([]Symbol{{Name: name, Num: n}}, f.symbols...)
	f.dirty = true
	return nil
}

// RemoveSymbol removes the symbolic name.
func (f *File) RemoveSymbol(name string) error {
	const op errors.Op = "rcs.RemoveSymbol"
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.symbols {
		if s.Name == name {
			f.symbols = append(f.symbols[:i], f.symbols[i+1:]...)
			f.dirty = true
			return nil
		}
	}
	return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no symbol %s", name))
}

// ValidSymbol checks that name can be used as a symbolic name: it must
// start with a letter and contain no RCS special characters.
func ValidSymbol(name string) error {
	if name == "" {
		return errors.E(errors.Invalid, errors.Str("empty symbol name"))
	}
	if c := name[0]; !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
		return errors.E(errors.Invalid, errors.Errorf("symbol %q must start with a letter", name))
	}
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c <= ' ', c == '$', c == ',', c == '.', c == ':', c == ';', c == '@', c >= 0x7f:
			return errors.E(errors.Invalid, errors.Errorf("symbol %q contains invalid character %q", name, c))
		}
	}
	return nil
}

// Locks returns the RCS locks held on the file.
func (f *File) Locks() []Lock {
	f.mu.Lock()
	defer f.mu.Unlock()
	locks := make([]Lock, len(f.locks))
	for i, l := range f.locks {
		locks[i] = Lock{User: l.User, Num: l.Num.Clone()}
	}
	return locks
}

// Locker returns the user holding a lock on rev, or the empty string.
func (f *File) Locker(rev rcsnum.Num) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.locks {
		if l.Num.Equal(rev) {
			return l.User
		}
	}
	return ""
}

// AddLock records that user locks rev.
func (f *File) AddLock(user string, rev rcsnum.Num) error {
	const op errors.Op = "rcs.AddLock"
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.locks {
		if l.User == user && l.Num.Equal(rev) {
			return errors.E(op, errors.Path(f.path), errors.Exist, errors.Errorf("%s already locked by %s", rev, user))
		}
	}
	f.locks = append([]Lock{{User: user, Num: rev.Clone()}}, f.locks...)
	f.dirty = true
	return nil
}

// RemoveLock removes the lock user holds on rev.
func (f *File) RemoveLock(user string, rev rcsnum.Num) error {
	const op errors.Op = "rcs.RemoveLock"
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.locks {
		if l.User == user && l.Num.Equal(rev) {
			f.locks = append(f.locks[:i], f.locks[i+1:]...)
			f.dirty = true
			return nil
		}
	}
	return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("%s not locked by %s", rev, user))
}

// Delta returns a copy of the metadata of revision rev. The Text field is
// not copied.
func (f *File) Delta(rev rcsnum.Num) (*Delta, error) {
	const op errors.Op = "rcs.Delta"
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	if d == nil {
		return nil, errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	c := *d
	c.Num = d.Num.Clone()
	c.Next = d.Next.Clone()
	c.Branches = make([]rcsnum.Num, len(d.Branches))
	for i, b := range d.Branches {
		c.Branches[i] = b.Clone()
	}
	c.Text = nil
	c.phrases = nil
	c.textPhrases = nil
	return &c, nil
}

// Revisions returns all revision numbers, sorted by rcsnum.Cmp.
func (f *File) Revisions() []rcsnum.Num {
	f.mu.Lock()
	defer f.mu.Unlock()
	var revs []rcsnum.Num
	it := f.deltas.Iterator()
	for it.Next() {
		revs = append(revs, it.Key().(rcsnum.Num).Clone())
	}
	return revs
}

// Order returns the revision numbers in the order they appear in the
// file. Revisions added since the file was read follow the revision they
// were added after, and a new head comes first.
func (f *File) Order() []rcsnum.Num {
	f.mu.Lock()
	defer f.mu.Unlock()
	revs := make([]rcsnum.Num, len(f.order))
	for i, d := range f.order {
		revs[i] = d.Num.Clone()
	}
	return revs
}

// findRev returns the delta numbered rev, or nil. It must be called with
// f.mu held.
func (f *File) findRev(rev rcsnum.Num) *Delta {
	if rev.IsZero() {
		return nil
	}
	v, ok := f.deltas.Get(rev)
	if !ok {
		return nil
	}
	return v.(*Delta)
}

// insert adds d to the index and to the file order after prev, or first
// when prev is nil. It must be called with f.mu held.
func (f *File) insert(d *Delta, prev *Delta) {
	f.deltas.Put(d.Num, d)
	if prev == nil {
		f.order = append([]*Delta{d}, f.order...)
		return
	}
	for i, o := range f.order {
		if o == prev {
			f.order = append(f.order, nil)
			copy(f.order[i+2:], f.order[i+1:])
			f.order[i+1] = d
			return
		}
	}
	f.order = append(f.order, d)
}

// HeadRev passed to AddRevision selects the revision after the head.
var HeadRev = rcsnum.Num{}

// AddRevision adds a new revision rev with the given log message, date
// and author, and returns its number. If rev is HeadRev the revision
// after the current head (1.1 for an empty file) is created. The new
// revision has state "Exp" and no text; use SetDeltaText to supply it.
//
// A new trunk revision becomes the head and its next pointer refers to
// the previous head. The first revision of a branch is recorded in the
// branches list of its branch point; later branch revisions are linked
// from the highest revision below them on the branch, so a branch may
// skip numbers.
func (f *File) AddRevision(rev rcsnum.Num, msg string, date time.Time, author string) (rcsnum.Num, error) {
	const op errors.Op = "rcs.AddRevision"
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, err := f.addRevision(rev, msg, date, author)
	if err != nil {
		return rev, errors.E(op, errors.Path(f.path), err)
	}
	return rev.Clone(), nil
}

func (f *File) addRevision(rev rcsnum.Num, msg string, date time.Time, author string) (rcsnum.Num, error) {
	if rev.IsZero() {
		if f.head.IsZero() {
			rev = rcsnum.New(1, 1)
		} else {
			var err error
			if rev, err = f.head.Inc(); err != nil {
				return rcsnum.Num{}, err
			}
		}
	}
	if !rev.IsRevision() {
		return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("%s is not a revision number", rev))
	}
	rev = rcsnum.New(componentsOf(rev)...)
	if f.findRev(rev) != nil {
		return rcsnum.Num{}, errors.E(errors.Exist, errors.Errorf("revision %s already exists", rev))
	}
	if author == "" {
		return rcsnum.Num{}, errors.E(errors.Invalid, errors.Str("empty author"))
	}

	d := &Delta{
		Num:     rev,
		Date:    date.UTC().Truncate(time.Second),
		Author:  author,
		State:   "Exp",
		Log:     msg,
		hasText: true,
	}

	switch {
	case rev.IsTrunk():
		if !f.head.IsZero() && rcsnum.Cmp(rev, f.head, 0) <= 0 {
			return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("revision %s is not after head %s", rev, f.head))
		}
		d.Next = f.head
		f.head = rev
		f.insert(d, nil)
	default:
		if prev := f.branchPrev(rev); prev != nil {
			if !prev.Next.IsZero() {
				return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("%s is not the tip of its branch", prev.Num))
			}
			prev.Next = rev
			f.insert(d, prev)
			break
		}
		bp := f.findRev(rev.BranchPoint())
		if bp == nil {
			return rcsnum.Num{}, errors.E(errors.NotExist, errors.Errorf("branch point %s of %s does not exist", rev.BranchPoint(), rev))
		}
		if first := f.branchStart(bp, rev.Prefix(rev.Len()-1)); first != nil {
			return rcsnum.Num{}, errors.E(errors.Invalid, errors.Errorf("branch of %s already starts at %s", rev, first.Num))
		}
		bp.Branches = append(bp.Branches, rev)
		f.insert(d, bp)
	}
	f.dirty = true
	return rev, nil
}

// branchPrev returns the highest existing revision below rev on its
// branch, or nil if rev would be the first.
func (f *File) branchPrev(rev rcsnum.Num) *Delta {
	for p := rev; p.Last() > 1; {
		p = p.Dec()
		if d := f.findRev(p); d != nil {
			return d
		}
	}
	return nil
}

// branchStart returns the first revision of branch, which sprouts from
// bp, or nil if the branch has no revisions.
func (f *File) branchStart(bp *Delta, branch rcsnum.Num) *Delta {
	if bp == nil {
		return nil
	}
	for _, b := range bp.Branches {
		if b.Prefix(b.Len() - 1).Equal(branch) {
			return f.findRev(b)
		}
	}
	return nil
}

func componentsOf(n rcsnum.Num) []uint16 {
	ids := make([]uint16, n.Len())
	for i := range ids {
		ids[i] = n.Component(i)
	}
	return ids
}

// RemoveRevision removes rev, which must have no successor on its branch
// and sprout no branches. It is used to undo a failed commit.
func (f *File) RemoveRevision(rev rcsnum.Num) error {
	const op errors.Op = "rcs.RemoveRevision"
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	if d == nil {
		return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	if len(d.Branches) > 0 {
		return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("revision %s has branches", rev))
	}
	switch {
	case d.Num.IsTrunk():
		if !d.Num.Equal(f.head) {
			return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("revision %s is not the head", rev))
		}
		f.head = d.Next
	default:
		if !d.Next.IsZero() {
			return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("revision %s has a successor", rev))
		}
		linked := false
		for _, o := range f.order {
			if o.Next.Equal(d.Num) {
				o.Next = rcsnum.Num{}
				linked = true
				break
			}
		}
		if bp := f.findRev(d.Num.BranchPoint()); !linked && bp != nil {
			for i, b := range bp.Branches {
				if b.Equal(d.Num) {
					bp.Branches = append(bp.Branches[:i], bp.Branches[i+1:]...)
					break
				}
			}
		}
	}
	f.deltas.Remove(d.Num)
	for i, o := range f.order {
		if o == d {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.dirty = true
	return nil
}

// SetDeltaText sets the stored text of rev.
func (f *File) SetDeltaText(rev rcsnum.Num, text []byte) error {
	const op errors.Op = "rcs.SetDeltaText"
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	if d == nil {
		return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	d.Text = append([]byte(nil), text...)
	d.hasText = true
	f.dirty = true
	return nil
}

// DeltaText returns the stored text of rev: the contents of the head
// revision or an edit script for any other.
func (f *File) DeltaText(rev rcsnum.Num) ([]byte, error) {
	const op errors.Op = "rcs.DeltaText"
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	if d == nil {
		return nil, errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	return append([]byte(nil), d.Text...), nil
}

// SetLog replaces the log message of rev.
func (f *File) SetLog(rev rcsnum.Num, msg string) error {
	const op errors.Op = "rcs.SetLog"
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	if d == nil {
		return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	d.Log = msg
	f.dirty = true
	return nil
}

// SetState sets the state of rev, such as "Exp" or "dead".
func (f *File) SetState(rev rcsnum.Num, state string) error {
	const op errors.Op = "rcs.SetState"
	if state == "" {
		return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Str("empty state"))
	}
	for i := 0; i < len(state); i++ {
		if c := state[i]; c <= ' ' || c == ':' || c == ';' || c == '@' || c == '$' || c == ',' {
			return errors.E(op, errors.Path(f.path), errors.Invalid, errors.Errorf("invalid state %q", state))
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	if d == nil {
		return errors.E(op, errors.Path(f.path), errors.NotExist, errors.Errorf("no revision %s", rev))
	}
	d.State = state
	f.dirty = true
	return nil
}

// IsDead reports whether rev is in the dead state.
func (f *File) IsDead(rev rcsnum.Num) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.findRev(rev)
	return d != nil && d.State == Dead
}
