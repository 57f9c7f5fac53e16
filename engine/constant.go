package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/zeebo/xxh3"
)

// ConstID is an index into a ConstTable.
type ConstID uint32

// ConstKind is the type of an interned constant.
type ConstKind uint8

const (
	KindInvalid ConstKind = iota
	KindAtom
	KindInteger
	KindBigInteger
	KindFloat
	KindFunctor
	KindRational
	KindBlob
)

func (k ConstKind) String() string {
	return [...]string{
		KindInvalid:    "invalid",
		KindAtom:       "atom",
		KindInteger:    "integer",
		KindBigInteger: "big_integer",
		KindFloat:      "float",
		KindFunctor:    "functor",
		KindRational:   "rational",
		KindBlob:       "blob",
	}[k]
}

// Functor is a name and arity pair.
type Functor struct {
	Name  ConstID
	Arity int
}

// Blob is a typed opaque handle stored in the constant table.
type Blob struct {
	Type   string
	Handle any
}

type constant struct {
	kind    ConstKind
	text    string
	integer int64
	big     *big.Int
	float   float64
	functor Functor
	rat     *big.Rat
	blob    Blob
	refs    int
}

type probe struct {
	hash uint64
	id   ConstID // id+1, 0 means empty.
}

const initialConstCap = 256

// ConstTable canonicalizes constants so that equal constants share one ConstID.
// Returned ids stay valid for the lifetime of the table.
type ConstTable struct {
	entries []constant
	probes  []probe
	used    int
}

// NewConstTable creates an empty constant table.
func NewConstTable() *ConstTable {
	t := ConstTable{
		entries: make([]constant, 1, initialConstCap), // id 0 is invalid.
		probes:  make([]probe, initialConstCap),
	}
	return &t
}

// Len returns the number of entries including the reserved one.
func (t *ConstTable) Len() int {
	return len(t.entries)
}

// intern looks up an entry for which eq holds or creates one with factory.
func (t *ConstTable) intern(kind ConstKind, hash uint64, eq func(*constant) bool, factory func() constant) (ConstID, bool) {
	mask := uint64(len(t.probes) - 1)
	for i := hash & mask; ; i = (i + 1) & mask {
		p := t.probes[i]
		if p.id == 0 {
			break
		}
		if p.hash != hash {
			continue
		}
		c := &t.entries[p.id-1]
		if c.kind == kind && eq(c) {
			return p.id - 1, false
		}
	}

	c := factory()
	c.kind = kind
	id := t.append(c)
	if (t.used+1)*4 > len(t.probes)*3 {
		t.rehash()
	}
	t.insert(hash, id)
	return id, true
}

func (t *ConstTable) append(c constant) ConstID {
	if len(t.entries) == cap(t.entries) {
		entries := make([]constant, len(t.entries), 2*cap(t.entries))
		copy(entries, t.entries)
		t.entries = entries
	}
	t.entries = append(t.entries, c)
	return ConstID(len(t.entries) - 1)
}

func (t *ConstTable) insert(hash uint64, id ConstID) {
	mask := uint64(len(t.probes) - 1)
	i := hash & mask
	for t.probes[i].id != 0 {
		i = (i + 1) & mask
	}
	t.probes[i] = probe{hash: hash, id: id + 1}
	t.used++
}

func (t *ConstTable) rehash() {
	old := t.probes
	t.probes = make([]probe, 2*len(old))
	t.used = 0
	for _, p := range old {
		if p.id != 0 {
			t.insert(p.hash, p.id-1)
		}
	}
}

func hashKind(kind ConstKind, b []byte) uint64 {
	return xxh3.Hash(append(b, byte(kind)))
}

// Atom interns an atom.
func (t *ConstTable) Atom(name string) ConstID {
	id, _ := t.intern(KindAtom, xxh3.HashString(name), func(c *constant) bool {
		return c.text == name
	}, func() constant {
		return constant{text: name}
	})
	return id
}

// Integer interns a small integer.
func (t *ConstTable) Integer(n int64) ConstID {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	id, _ := t.intern(KindInteger, hashKind(KindInteger, b[:]), func(c *constant) bool {
		return c.integer == n
	}, func() constant {
		return constant{integer: n}
	})
	return id
}

// BigInteger interns an arbitrary precision integer. Values in the int64 range are interned as integers.
func (t *ConstTable) BigInteger(n *big.Int) ConstID {
	if n.IsInt64() {
		return t.Integer(n.Int64())
	}
	b := n.Bytes()
	if n.Sign() < 0 {
		b = append(b, '-')
	}
	id, _ := t.intern(KindBigInteger, hashKind(KindBigInteger, b), func(c *constant) bool {
		return c.big.Cmp(n) == 0
	}, func() constant {
		return constant{big: new(big.Int).Set(n)}
	})
	return id
}

// Float interns a float. Floats are identified by their bits.
func (t *ConstTable) Float(f float64) ConstID {
	bits := math.Float64bits(f)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], bits)
	id, _ := t.intern(KindFloat, hashKind(KindFloat, b[:]), func(c *constant) bool {
		return math.Float64bits(c.float) == bits
	}, func() constant {
		return constant{float: f}
	})
	return id
}

// Functor interns a name/arity pair.
func (t *ConstTable) Functor(name ConstID, arity int) ConstID {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[:4], uint32(name))
	binary.LittleEndian.PutUint64(b[4:], uint64(arity))
	f := Functor{Name: name, Arity: arity}
	id, _ := t.intern(KindFunctor, hashKind(KindFunctor, b[:]), func(c *constant) bool {
		return c.functor == f
	}, func() constant {
		return constant{functor: f}
	})
	return id
}

// Rational interns a rational number. Integral values are interned as integers.
func (t *ConstTable) Rational(r *big.Rat) ConstID {
	if r.IsInt() {
		return t.BigInteger(r.Num())
	}
	b := []byte(r.String())
	id, _ := t.intern(KindRational, hashKind(KindRational, b), func(c *constant) bool {
		return c.rat.Cmp(r) == 0
	}, func() constant {
		return constant{rat: new(big.Rat).Set(r)}
	})
	return id
}

// Blob appends a blob. Blobs are never shared.
func (t *ConstTable) Blob(typ string, handle any) ConstID {
	return t.append(constant{kind: KindBlob, blob: Blob{Type: typ, Handle: handle}, refs: 1})
}

// Retain increments the reference count of the constant.
func (t *ConstTable) Retain(id ConstID) {
	t.entries[id].refs++
}

// Release decrements the reference count of the constant. A blob whose count reaches zero drops its handle.
func (t *ConstTable) Release(id ConstID) {
	c := &t.entries[id]
	if c.refs > 0 {
		c.refs--
	}
	if c.kind == KindBlob && c.refs == 0 {
		c.blob.Handle = nil
	}
}

// Refs returns the reference count of the constant.
func (t *ConstTable) Refs(id ConstID) int {
	return t.entries[id].refs
}

// Kind returns the kind of the constant.
func (t *ConstTable) Kind(id ConstID) ConstKind {
	if int(id) >= len(t.entries) {
		return KindInvalid
	}
	return t.entries[id].kind
}

// AtomText returns the name of an atom.
func (t *ConstTable) AtomText(id ConstID) (string, bool) {
	c := t.entries[id]
	return c.text, c.kind == KindAtom
}

// IntegerValue returns the value of a small integer.
func (t *ConstTable) IntegerValue(id ConstID) (int64, bool) {
	c := t.entries[id]
	return c.integer, c.kind == KindInteger
}

// BigIntegerValue returns the value of a big integer.
func (t *ConstTable) BigIntegerValue(id ConstID) (*big.Int, bool) {
	c := t.entries[id]
	return c.big, c.kind == KindBigInteger
}

// FloatValue returns the value of a float.
func (t *ConstTable) FloatValue(id ConstID) (float64, bool) {
	c := t.entries[id]
	return c.float, c.kind == KindFloat
}

// FunctorOf returns the name and arity of a functor.
func (t *ConstTable) FunctorOf(id ConstID) (Functor, bool) {
	c := t.entries[id]
	return c.functor, c.kind == KindFunctor
}

// RationalValue returns the value of a rational.
func (t *ConstTable) RationalValue(id ConstID) (*big.Rat, bool) {
	c := t.entries[id]
	return c.rat, c.kind == KindRational
}

// BlobOf returns the blob.
func (t *ConstTable) BlobOf(id ConstID) (Blob, bool) {
	c := t.entries[id]
	return c.blob, c.kind == KindBlob
}

// FunctorString returns name/arity for diagnostics.
func (t *ConstTable) FunctorString(id ConstID) string {
	f, ok := t.FunctorOf(id)
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	name, _ := t.AtomText(f.Name)
	return fmt.Sprintf("%s/%d", name, f.Arity)
}
