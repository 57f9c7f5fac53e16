package engine

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Record is a local copy of a term outside the heap. Its cells use local indices starting at 1.
// A record survives backtracking and collections and must be freed when no longer used.
type Record struct {
	cells  []Word
	root   Word
	consts *ConstTable
	ops    *Operators
	freed  bool
}

// Copy copies w into a new record. Shared subterms and variables stay shared, cycles are preserved.
func (m *Machine) Copy(w Word) *Record {
	r := Record{cells: []Word{0}, consts: m.consts, ops: m.ops}
	vars := map[int]int{}
	comps := map[int]int{}
	type job struct {
		src Word
		dst int
	}
	var jobs []job
	local := func(w Word) Word {
		w = m.deref(w)
		switch w.Tag() {
		case TagVariable:
			l, ok := vars[w.Index()]
			if !ok {
				l = len(r.cells)
				r.cells = append(r.cells, Variable(l))
				vars[w.Index()] = l
			}
			return Variable(l)
		case TagCompound:
			l, ok := comps[w.Index()]
			if !ok {
				f := m.functorOf(w)
				l = len(r.cells)
				comps[w.Index()] = l
				fc := m.heap[w.Index()]
				m.consts.Retain(fc.ConstID())
				r.cells = append(r.cells, fc)
				for i := 1; i <= f.Arity; i++ {
					r.cells = append(r.cells, 0)
					jobs = append(jobs, job{src: m.heap[w.Index()+i], dst: l + i})
				}
			}
			return Compound(l)
		case TagConstant:
			m.consts.Retain(w.ConstID())
			return w
		default:
			return w
		}
	}
	r.root = local(w)
	for len(jobs) > 0 {
		j := jobs[len(jobs)-1]
		jobs = jobs[:len(jobs)-1]
		r.cells[j.dst] = local(j.src)
	}
	return &r
}

func relocate(w Word, offset int) Word {
	switch w.Tag() {
	case TagVariable:
		return Variable(w.Index() + offset)
	case TagCompound:
		return Compound(w.Index() + offset)
	default:
		return w
	}
}

// Materialize builds a fresh instance of the record on the heap.
func (m *Machine) Materialize(r *Record) Word {
	if r.freed {
		panic(internalErrorf("materialize of a freed record"))
	}
	offset := len(m.heap) - 1
	for _, c := range r.cells[1:] {
		m.heap = append(m.heap, relocate(c, offset))
	}
	return relocate(r.root, offset)
}

// Free releases the constants the record refers to. It is safe to call more than once.
func (r *Record) Free() {
	if r == nil || r.freed {
		return
	}
	r.freed = true
	if r.root.Tag() == TagConstant {
		r.consts.Release(r.root.ConstID())
	}
	for _, c := range r.cells[1:] {
		if c.Tag() == TagConstant {
			r.consts.Release(c.ConstID())
		}
	}
}

// Size returns the number of cells of the record.
func (r *Record) Size() int {
	return len(r.cells) - 1
}

func (r *Record) String() string {
	f := Formatter{
		Term:      r.root,
		Cells:     r.cells,
		Consts:    r.consts,
		Ops:       r.ops,
		Quoted:    true,
		Precision: -1,
	}
	return f.String()
}

var errNotPortable = errors.New("term is not portable")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("engine: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type portableRecord struct {
	Root  portableWord   `cbor:"1,keyasint"`
	Cells []portableWord `cbor:"2,keyasint,omitempty"`
}

// portableWord carries constants by value so that a record can move between constant tables.
type portableWord struct {
	Tag   Tag       `cbor:"1,keyasint"`
	Index int       `cbor:"2,keyasint,omitempty"`
	Kind  ConstKind `cbor:"3,keyasint,omitempty"`
	Text  string    `cbor:"4,keyasint,omitempty"`
	Int   int64     `cbor:"5,keyasint,omitempty"`
	Float float64   `cbor:"6,keyasint,omitempty"`
	Arity int       `cbor:"7,keyasint,omitempty"`
}

func (r *Record) portable(w Word) (portableWord, error) {
	p := portableWord{Tag: w.Tag()}
	switch w.Tag() {
	case TagVariable, TagCompound:
		p.Index = w.Index()
		return p, nil
	case TagExternal:
		return p, fmt.Errorf("%w: external %d", errNotPortable, w.Index())
	}
	t := r.consts
	id := w.ConstID()
	p.Kind = t.Kind(id)
	switch p.Kind {
	case KindAtom:
		p.Text, _ = t.AtomText(id)
	case KindInteger:
		p.Int, _ = t.IntegerValue(id)
	case KindBigInteger:
		n, _ := t.BigIntegerValue(id)
		p.Text = n.String()
	case KindFloat:
		p.Float, _ = t.FloatValue(id)
	case KindRational:
		q, _ := t.RationalValue(id)
		p.Text = q.String()
	case KindFunctor:
		f, _ := t.FunctorOf(id)
		p.Text, _ = t.AtomText(f.Name)
		p.Arity = f.Arity
	default:
		return p, fmt.Errorf("%w: %s", errNotPortable, p.Kind)
	}
	return p, nil
}

// MarshalCBOR encodes the record in canonical CBOR. Blobs and externals are not portable.
func (r *Record) MarshalCBOR() ([]byte, error) {
	var pr portableRecord
	var err error
	if pr.Root, err = r.portable(r.root); err != nil {
		return nil, err
	}
	for _, c := range r.cells[1:] {
		p, err := r.portable(c)
		if err != nil {
			return nil, err
		}
		pr.Cells = append(pr.Cells, p)
	}
	return cborEncMode.Marshal(pr)
}

// UnmarshalRecord decodes a record encoded by MarshalCBOR, interning its constants in the machine's table.
func (m *Machine) UnmarshalRecord(data []byte) (*Record, error) {
	var pr portableRecord
	if err := cbor.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("engine: unmarshal record: %w", err)
	}
	r := Record{cells: make([]Word, 1, len(pr.Cells)+1), consts: m.consts, ops: m.ops}
	word := func(p portableWord) (Word, error) {
		switch p.Tag {
		case TagVariable:
			if p.Index < 1 || p.Index > len(pr.Cells) {
				return 0, fmt.Errorf("engine: unmarshal record: variable %d out of range", p.Index)
			}
			return Variable(p.Index), nil
		case TagCompound:
			if p.Index < 1 || p.Index > len(pr.Cells) {
				return 0, fmt.Errorf("engine: unmarshal record: compound %d out of range", p.Index)
			}
			return Compound(p.Index), nil
		case TagConstant:
		default:
			return 0, fmt.Errorf("%w: %s", errNotPortable, p.Tag)
		}
		t := m.consts
		var id ConstID
		switch p.Kind {
		case KindAtom:
			id = t.Atom(p.Text)
		case KindInteger:
			id = t.Integer(p.Int)
		case KindBigInteger:
			n, ok := new(big.Int).SetString(p.Text, 10)
			if !ok {
				return 0, fmt.Errorf("engine: unmarshal record: invalid integer %q", p.Text)
			}
			id = t.BigInteger(n)
		case KindFloat:
			id = t.Float(p.Float)
		case KindRational:
			q, ok := new(big.Rat).SetString(p.Text)
			if !ok {
				return 0, fmt.Errorf("engine: unmarshal record: invalid rational %q", p.Text)
			}
			id = t.Rational(q)
		case KindFunctor:
			id = t.Functor(t.Atom(p.Text), p.Arity)
		default:
			return 0, fmt.Errorf("%w: %s", errNotPortable, p.Kind)
		}
		t.Retain(id)
		return Constant(id), nil
	}
	for _, p := range pr.Cells {
		w, err := word(p)
		if err != nil {
			r.Free()
			return nil, err
		}
		r.cells = append(r.cells, w)
	}
	root, err := word(pr.Root)
	if err != nil {
		r.Free()
		return nil, err
	}
	r.root = root
	return &r, nil
}

type recordEntry struct {
	key    ConstID
	record *Record
	erased bool
	ref    ConstID // blob referring to the entry, once asked for.
}

// recordDB is the recorded database: records keyed by an atom, an integer or a functor.
type recordDB struct {
	keys map[ConstID][]*recordEntry
}

func (db *recordDB) add(key ConstID, r *Record, front bool) *recordEntry {
	if db.keys == nil {
		db.keys = map[ConstID][]*recordEntry{}
	}
	e := &recordEntry{key: key, record: r}
	es := db.keys[key]
	ns := make([]*recordEntry, 0, len(es)+1)
	if front {
		ns = append(ns, e)
		ns = append(ns, es...)
	} else {
		ns = append(ns, es...)
		ns = append(ns, e)
	}
	db.keys[key] = ns
	return e
}

// entries returns a snapshot of the live entries under key.
func (db *recordDB) entries(key ConstID) []*recordEntry {
	return db.keys[key]
}

// all returns the live entries of every key, ordered by key.
func (db *recordDB) all() []*recordEntry {
	keys := make([]ConstID, 0, len(db.keys))
	for k := range db.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var es []*recordEntry
	for _, k := range keys {
		es = append(es, db.keys[k]...)
	}
	return es
}

func (db *recordDB) erase(e *recordEntry) bool {
	if e.erased {
		return false
	}
	e.erased = true
	es := db.keys[e.key]
	ns := make([]*recordEntry, 0, len(es))
	for _, x := range es {
		if x != e {
			ns = append(ns, x)
		}
	}
	db.keys[e.key] = ns
	e.record.Free()
	return true
}

// recordRef returns the blob word referring to e.
func (m *Machine) recordRef(e *recordEntry) Word {
	if e.ref == 0 {
		e.ref = m.consts.Blob("record", e)
	}
	return Constant(e.ref)
}

// recordEntryOf returns the entry a reference blob refers to.
func (m *Machine) recordEntryOf(w Word) (*recordEntry, error) {
	w = m.deref(w)
	if w.Tag() == TagVariable {
		return nil, m.InstantiationError()
	}
	b, ok := m.Blob(w)
	if !ok || b.Type != "record" {
		return nil, m.TypeError(ValidTypeDBReference, w)
	}
	e, ok := b.Handle.(*recordEntry)
	if !ok {
		return nil, m.TypeError(ValidTypeDBReference, w)
	}
	return e, nil
}

// keyTerm returns a term with the key: the constant itself or a compound of fresh variables.
func (m *Machine) keyTerm(key ConstID) Word {
	f, ok := m.consts.FunctorOf(key)
	if !ok {
		return Constant(key)
	}
	h := m.alloc(f.Arity + 1)
	m.heap[h] = Constant(key)
	for i := 1; i <= f.Arity; i++ {
		m.heap[h+i] = Variable(h + i)
	}
	return Compound(h)
}

// recordKey returns the key constant of an atom, an integer or the functor of a compound.
func (m *Machine) recordKey(w Word) (ConstID, error) {
	w = m.deref(w)
	switch w.Tag() {
	case TagVariable:
		return 0, m.InstantiationError()
	case TagCompound:
		return m.heap[w.Index()].ConstID(), nil
	case TagConstant:
		switch m.consts.Kind(w.ConstID()) {
		case KindAtom, KindInteger:
			return w.ConstID(), nil
		}
	}
	return 0, m.TypeError(ValidTypeAtomic, w)
}
