package engine

import (
	"math"
	"math/big"
	"strings"
)

func (m *Machine) deref(w Word) Word {
	for w.Tag() == TagVariable && !w.IsVoid() {
		v := m.heap[w.Index()]
		if v == w {
			return w
		}
		w = v
	}
	return w
}

// bind sets the unbound variable at addr to w, recording it on the trail if an older choicepoint needs to undo it.
func (m *Machine) bind(addr int, w Word) {
	m.heap[addr] = w
	if n := len(m.cps); n > 0 && addr < m.cps[n-1].heapMark {
		m.trail = append(m.trail, trailEntry{addr: addr})
	}
}

// undoTrail resets every variable recorded after mark, newest first.
func (m *Machine) undoTrail(mark int) {
	for i := len(m.trail) - 1; i >= mark; i-- {
		e := m.trail[i]
		if e.catch != 0 {
			m.reopenCatch(e.catch)
			continue
		}
		m.heap[e.addr] = Variable(e.addr)
	}
	m.trail = m.trail[:mark]
}

func (m *Machine) reopenCatch(id uint64) {
	for i := len(m.cps) - 1; i >= 0; i-- {
		if cp := &m.cps[i]; cp.id == id {
			cp.closed = false
			return
		}
	}
}

// Unify unifies a and b. On failure, bindings made so far stay until the trail is unwound.
func (m *Machine) Unify(a, b Word) bool {
	return m.unify(a, b)
}

func (m *Machine) unify(a, b Word) bool {
	stack := []Word{a, b}
	for len(stack) > 0 {
		a, b = m.deref(stack[len(stack)-2]), m.deref(stack[len(stack)-1])
		stack = stack[:len(stack)-2]
		if a == b {
			continue
		}
		switch {
		case a.Tag() == TagVariable && b.Tag() == TagVariable:
			// The younger variable points to the older one.
			if a.Index() < b.Index() {
				m.bind(b.Index(), a)
			} else {
				m.bind(a.Index(), b)
			}
		case a.Tag() == TagVariable:
			m.bind(a.Index(), b)
		case b.Tag() == TagVariable:
			m.bind(b.Index(), a)
		case a.Tag() == TagCompound && b.Tag() == TagCompound:
			i, j := a.Index(), b.Index()
			if m.heap[i] != m.heap[j] {
				return false
			}
			f := m.functorOf(a)
			for k := f.Arity; k >= 1; k-- {
				stack = append(stack, m.heap[i+k], m.heap[j+k])
			}
		default:
			return false
		}
	}
	return true
}

// unifyAtomically unifies a and b and undoes partial bindings on failure.
func (m *Machine) unifyAtomically(a, b Word) bool {
	cp := m.pushBarrier()
	ok := m.unify(a, b)
	if !ok {
		m.undoTrail(m.cps[cp].trailMark)
	}
	m.cps = m.cps[:cp]
	return ok
}

// unifiable reports whether a and b unify without leaving bindings.
func (m *Machine) unifiable(a, b Word) bool {
	cp := m.pushBarrier()
	ok := m.unify(a, b)
	m.undoTrail(m.cps[cp].trailMark)
	m.cps = m.cps[:cp]
	return ok
}

// Acyclic reports whether w is a finite tree.
func (m *Machine) Acyclic(w Word) bool {
	const (
		white = iota
		grey
		black
	)
	colour := map[int]int{}
	type item struct {
		index int
		exit  bool
	}
	var stack []item
	push := func(w Word) bool {
		w = m.deref(w)
		if w.Tag() != TagCompound {
			return true
		}
		switch colour[w.Index()] {
		case grey:
			return false
		case black:
			return true
		}
		stack = append(stack, item{index: w.Index()})
		return true
	}
	if !push(w) {
		return false
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.exit {
			colour[it.index] = black
			continue
		}
		if colour[it.index] != white {
			continue
		}
		colour[it.index] = grey
		stack = append(stack, item{index: it.index, exit: true})
		f := m.functorOf(Compound(it.index))
		for k := 1; k <= f.Arity; k++ {
			if !push(m.heap[it.index+k]) {
				return false
			}
		}
	}
	return true
}

// Ground reports whether w contains no unbound variables.
func (m *Machine) Ground(w Word) bool {
	ground := true
	m.walk(w, func(v Word) bool {
		if v.Tag() == TagVariable {
			ground = false
		}
		return ground
	})
	return ground
}

// walk visits every dereferenced subterm of w once, compounds before their arguments.
func (m *Machine) walk(w Word, visit func(Word) bool) {
	seen := map[int]bool{}
	stack := []Word{w}
	for len(stack) > 0 {
		w := m.deref(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		if w.Tag() == TagCompound {
			if seen[w.Index()] {
				continue
			}
			seen[w.Index()] = true
		}
		if !visit(w) {
			return
		}
		args := m.argsOf(w)
		for i := len(args) - 1; i >= 0; i-- {
			stack = append(stack, args[i])
		}
	}
}

// variables returns the distinct unbound variables of w in depth-first order.
func (m *Machine) variables(w Word) []Word {
	var vs []Word
	seen := map[Word]bool{}
	m.walk(w, func(v Word) bool {
		if v.Tag() == TagVariable && !seen[v] {
			seen[v] = true
			vs = append(vs, v)
		}
		return true
	})
	return vs
}

func (m *Machine) typeOrder(w Word) int {
	switch w.Tag() {
	case TagVariable:
		return 0
	case TagConstant:
		switch m.consts.Kind(w.ConstID()) {
		case KindFloat:
			return 1
		case KindInteger, KindBigInteger, KindRational:
			return 2
		case KindAtom:
			return 4
		default:
			return 5
		}
	case TagExternal:
		return 6
	default:
		return 7
	}
}

// Compare compares a and b in the standard order of terms.
func (m *Machine) Compare(a, b Word) int {
	stack := []Word{a, b}
	for len(stack) > 0 {
		a, b = m.deref(stack[len(stack)-2]), m.deref(stack[len(stack)-1])
		stack = stack[:len(stack)-2]
		if a == b {
			continue
		}
		oa, ob := m.typeOrder(a), m.typeOrder(b)
		if oa != ob {
			if (oa == 1 || oa == 2) && (ob == 1 || ob == 2) {
				if c := m.compareNumbers(a, b); c != 0 {
					return c
				}
			}
			return sign(oa - ob)
		}
		switch a.Tag() {
		case TagVariable, TagExternal:
			return sign(a.Index() - b.Index())
		case TagConstant:
			if c := m.compareConstants(a.ConstID(), b.ConstID()); c != 0 {
				return c
			}
		case TagCompound:
			fa, fb := m.functorOf(a), m.functorOf(b)
			if fa.Arity != fb.Arity {
				return sign(fa.Arity - fb.Arity)
			}
			if fa.Name != fb.Name {
				na, _ := m.consts.AtomText(fa.Name)
				nb, _ := m.consts.AtomText(fb.Name)
				return strings.Compare(na, nb)
			}
			for k := fa.Arity; k >= 1; k-- {
				stack = append(stack, m.heap[a.Index()+k], m.heap[b.Index()+k])
			}
		}
	}
	return 0
}

func (m *Machine) compareConstants(a, b ConstID) int {
	t := m.consts
	switch t.Kind(a) {
	case KindAtom:
		x, _ := t.AtomText(a)
		y, _ := t.AtomText(b)
		return strings.Compare(x, y)
	case KindFloat, KindInteger, KindBigInteger, KindRational:
		return m.compareNumbers(Constant(a), Constant(b))
	default:
		return sign(int(a) - int(b))
	}
}

// compareNumbers orders numbers by value; a float precedes an integer of equal value.
func (m *Machine) compareNumbers(a, b Word) int {
	x, y := m.rat(a), m.rat(b)
	if x == nil || y == nil {
		fx, fy := m.toFloat(a.ConstID()), m.toFloat(b.ConstID())
		switch {
		case math.IsNaN(fx) || math.IsNaN(fy):
			return sign(int(a.ConstID()) - int(b.ConstID()))
		case fx < fy:
			return -1
		case fx > fy:
			return 1
		}
		return 0
	}
	if c := x.Cmp(y); c != 0 {
		return c
	}
	return sign(m.typeOrder(a) - m.typeOrder(b))
}

func (m *Machine) rat(w Word) *big.Rat {
	t := m.consts
	id := w.ConstID()
	switch t.Kind(id) {
	case KindInteger:
		n, _ := t.IntegerValue(id)
		return new(big.Rat).SetInt64(n)
	case KindBigInteger:
		n, _ := t.BigIntegerValue(id)
		return new(big.Rat).SetInt(n)
	case KindRational:
		r, _ := t.RationalValue(id)
		return r
	case KindFloat:
		f, _ := t.FloatValue(id)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
		return new(big.Rat).SetFloat64(f)
	default:
		return nil
	}
}

func (m *Machine) toFloat(id ConstID) float64 {
	t := m.consts
	switch t.Kind(id) {
	case KindInteger:
		n, _ := t.IntegerValue(id)
		return float64(n)
	case KindBigInteger:
		n, _ := t.BigIntegerValue(id)
		f, _ := new(big.Float).SetInt(n).Float64()
		return f
	case KindRational:
		r, _ := t.RationalValue(id)
		f, _ := r.Float64()
		return f
	default:
		f, _ := t.FloatValue(id)
		return f
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
