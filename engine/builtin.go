package engine

import (
	"math"
	"sort"
)

func (m *Machine) registerBuiltins() {
	for _, b := range []struct {
		name  string
		arity int
		f     DetFunc
	}{
		{"var", 1, typeCheck(func(m *Machine, w Word) bool { return w.Tag() == TagVariable })},
		{"nonvar", 1, typeCheck(func(m *Machine, w Word) bool { return w.Tag() != TagVariable })},
		{"atom", 1, typeCheck((*Machine).isAtomWord)},
		{"number", 1, typeCheck((*Machine).isNumber)},
		{"integer", 1, typeCheck((*Machine).isIntegerWord)},
		{"float", 1, typeCheck(func(m *Machine, w Word) bool { k, ok := m.kind(w); return ok && k == KindFloat })},
		{"atomic", 1, typeCheck(func(m *Machine, w Word) bool { return w.Tag() == TagConstant || w.Tag() == TagExternal })},
		{"compound", 1, typeCheck(func(m *Machine, w Word) bool { return w.Tag() == TagCompound })},
		{"callable", 1, typeCheck(func(m *Machine, w Word) bool { return w.Tag() == TagCompound || m.isAtomWord(w) })},
		{"is_list", 1, typeCheck((*Machine).isList)},
		{"ground", 1, typeCheck((*Machine).Ground)},
		{"acyclic_term", 1, typeCheck((*Machine).Acyclic)},

		{"==", 2, compareWith(func(o int) bool { return o == 0 })},
		{`\==`, 2, compareWith(func(o int) bool { return o != 0 })},
		{"@<", 2, compareWith(func(o int) bool { return o < 0 })},
		{"@>", 2, compareWith(func(o int) bool { return o > 0 })},
		{"@=<", 2, compareWith(func(o int) bool { return o <= 0 })},
		{"@>=", 2, compareWith(func(o int) bool { return o >= 0 })},
		{"compare", 3, compareOrder},

		{"functor", 3, termFunctor},
		{"=..", 2, univ},
		{"copy_term", 2, copyTerm},
		{"term_variables", 2, termVariables},
		{"unify_with_occurs_check", 2, unifyWithOccursCheck},
		{"numbervars", 3, numberVars},

		{"is", 2, is},
		{"=:=", 2, arithCompare(func(o int) bool { return o == 0 })},
		{`=\=`, 2, arithCompare(func(o int) bool { return o != 0 })},
		{"<", 2, arithCompare(func(o int) bool { return o < 0 })},
		{">", 2, arithCompare(func(o int) bool { return o > 0 })},
		{"=<", 2, arithCompare(func(o int) bool { return o <= 0 })},
		{">=", 2, arithCompare(func(o int) bool { return o >= 0 })},
		{"succ", 2, successor},
		{"plus", 3, plus},

		{"msort", 2, msort},
		{"sort", 2, sortUnique},
		{"sort", 4, sortKeyed},
		{"keysort", 2, keysort},

		{"asserta", 1, assertClause(true)},
		{"assertz", 1, assertClause(false)},
		{"assert", 1, assertClause(false)},
		{"retractall", 1, retractAll},
		{"abolish", 1, abolish},
		{"dynamic", 1, dynamic},

		{"findall", 3, findall},
		{"findall", 4, findall},
		{"forall", 2, forall},
		{"aggregate_all", 3, aggregateAll},

		{"recorda", 2, record(true)},
		{"recorda", 3, record(true)},
		{"recordz", 2, record(false)},
		{"recordz", 3, record(false)},
		{"erase", 1, erase},
		{"instance", 2, instance},

		{"set_prolog_flag", 2, setPrologFlag},
		{"op", 3, op},
		{"garbage_collect", 0, func(m *Machine, _ []Word) (bool, error) { m.Collect(); return true, nil }},
	} {
		m.RegisterDet("system", b.name, b.arity, b.f)
	}

	for _, b := range []struct {
		name  string
		arity int
		f     NondetFunc
	}{
		{"arg", 3, termArg},
		{"between", 3, between},
		{"repeat", 0, func(_ *Machine, _ []Word, c *Control) (bool, error) { c.Retry(nil); return true, nil }},
		{"length", 2, length},
		{"clause", 2, clause},
		{"retract", 1, retract},
		{"recorded", 2, recorded},
		{"recorded", 3, recorded},
		{"current_prolog_flag", 2, currentPrologFlag},
		{"current_op", 3, currentOp},
	} {
		m.RegisterNondet("system", b.name, b.arity, b.f)
	}

	m.registerText()

	for _, d := range []struct {
		name  string
		arity int
		meta  string
	}{
		{"findall", 3, "?0-"},
		{"findall", 4, "?0--"},
		{"forall", 2, "00"},
		{"aggregate_all", 3, "?0-"},
		{"asserta", 1, ":"},
		{"assertz", 1, ":"},
		{"assert", 1, ":"},
		{"retract", 1, ":"},
		{"retractall", 1, ":"},
		{"clause", 2, ":?"},
		{"abolish", 1, ":"},
		{"dynamic", 1, ":"},
	} {
		m.Declare(m.atom.system, d.name, d.arity, d.meta, false)
	}
}

// callerModule returns the module of the clause that called the running foreign predicate.
func (m *Machine) callerModule() ConstID {
	if m.fr != nil && m.fr.parent != nil {
		return m.fr.parent.module
	}
	return m.atom.user
}

// strip removes module qualifications from w.
func (m *Machine) strip(w Word, module ConstID) (ConstID, Word, error) {
	w = m.deref(w)
	for m.isCompound(w, m.functor.colon) {
		mod := m.deref(m.heap[w.Index()+1])
		switch {
		case mod.Tag() == TagVariable:
			return 0, 0, m.InstantiationError()
		case !m.isAtomWord(mod):
			return 0, 0, m.TypeError(ValidTypeAtom, mod)
		}
		module = mod.ConstID()
		w = m.deref(m.heap[w.Index()+2])
	}
	return module, w, nil
}

func (m *Machine) kind(w Word) (ConstKind, bool) {
	w = m.deref(w)
	if w.Tag() != TagConstant {
		return 0, false
	}
	return m.consts.Kind(w.ConstID()), true
}

func (m *Machine) isAtomWord(w Word) bool {
	k, ok := m.kind(w)
	return ok && k == KindAtom
}

func (m *Machine) isIntegerWord(w Word) bool {
	k, ok := m.kind(w)
	return ok && (k == KindInteger || k == KindBigInteger)
}

func (m *Machine) isNumber(w Word) bool {
	k, ok := m.kind(w)
	return ok && (k == KindInteger || k == KindBigInteger || k == KindFloat || k == KindRational)
}

// intArg returns the value of an integer argument.
func (m *Machine) intArg(w Word) (int64, error) {
	w = m.deref(w)
	if w.Tag() == TagVariable {
		return 0, m.InstantiationError()
	}
	if n, ok := m.Integer(w); ok {
		return n, nil
	}
	if m.isIntegerWord(w) {
		return 0, m.RepresentationError(FlagMaxInteger)
	}
	return 0, m.TypeError(ValidTypeInteger, w)
}

// atomArg returns the constant of an atom argument.
func (m *Machine) atomArg(w Word) (ConstID, error) {
	w = m.deref(w)
	switch {
	case w.Tag() == TagVariable:
		return 0, m.InstantiationError()
	case !m.isAtomWord(w):
		return 0, m.TypeError(ValidTypeAtom, w)
	}
	return w.ConstID(), nil
}

// unifyEach unifies ws pairwise and undoes partial bindings unless all of them unify.
func (m *Machine) unifyEach(ws ...Word) bool {
	cp := m.pushBarrier()
	ok := true
	for i := 0; ok && i+1 < len(ws); i += 2 {
		ok = m.unify(ws[i], ws[i+1])
	}
	if !ok {
		m.undoTrail(m.cps[cp].trailMark)
	}
	m.cps = m.cps[:cp]
	return ok
}

func typeCheck(p func(m *Machine, w Word) bool) DetFunc {
	return func(m *Machine, args []Word) (bool, error) {
		return p(m, m.deref(args[0])), nil
	}
}

func compareWith(p func(int) bool) DetFunc {
	return func(m *Machine, args []Word) (bool, error) {
		return p(m.Compare(args[0], args[1])), nil
	}
}

func compareOrder(m *Machine, args []Word) (bool, error) {
	o := m.deref(args[0])
	switch {
	case o.Tag() == TagVariable:
	case !m.isAtomWord(o):
		return false, m.TypeError(ValidTypeAtom, o)
	default:
		switch name, _ := m.consts.AtomText(o.ConstID()); name {
		case "<", "=", ">":
		default:
			return false, m.DomainError(ValidDomainOrder, o)
		}
	}
	var name string
	switch m.Compare(args[1], args[2]) {
	case -1:
		name = "<"
	case 0:
		name = "="
	default:
		name = ">"
	}
	return m.unify(o, m.NewAtom(name)), nil
}

func termFunctor(m *Machine, args []Word) (bool, error) {
	t := m.deref(args[0])
	switch t.Tag() {
	case TagVariable:
		name, arity := m.deref(args[1]), m.deref(args[2])
		if name.Tag() == TagVariable || arity.Tag() == TagVariable {
			return false, m.InstantiationError()
		}
		n, err := m.intArg(arity)
		if err != nil {
			return false, err
		}
		switch {
		case n < 0:
			return false, m.DomainError(ValidDomainNotLessThanZero, arity)
		case name.Tag() == TagCompound:
			return false, m.TypeError(ValidTypeAtomic, name)
		case n == 0:
			return m.unify(t, name), nil
		case !m.isAtomWord(name):
			return false, m.TypeError(ValidTypeAtom, name)
		}
		h := m.alloc(int(n) + 1)
		m.heap[h] = Constant(m.consts.Functor(name.ConstID(), int(n)))
		for i := h + 1; i <= h+int(n); i++ {
			m.heap[i] = Variable(i)
		}
		return m.unify(t, Compound(h)), nil
	case TagCompound:
		f := m.functorOf(t)
		return m.unifyEach(args[1], Constant(f.Name), args[2], m.NewInteger(int64(f.Arity))), nil
	default:
		return m.unifyEach(args[1], t, args[2], m.NewInteger(0)), nil
	}
}

func termArg(m *Machine, args []Word, c *Control) (bool, error) {
	t := m.deref(args[1])
	switch t.Tag() {
	case TagVariable:
		return false, m.InstantiationError()
	case TagCompound:
	default:
		return false, m.TypeError(ValidTypeCompound, t)
	}
	n := m.deref(args[0])
	if n.Tag() != TagVariable {
		i, err := m.intArg(n)
		if err != nil {
			return false, err
		}
		a, ok := m.Arg(t, int(i))
		return ok && m.unify(args[2], a), nil
	}

	i := 1
	if c.Redo {
		i = c.State.(int)
	}
	arity := m.functorOf(t).Arity
	for ; i <= arity; i++ {
		if m.unifyEach(n, m.NewInteger(int64(i)), args[2], m.heap[t.Index()+i]) {
			if i < arity {
				c.Retry(i + 1)
			}
			return true, nil
		}
	}
	return false, nil
}

func univ(m *Machine, args []Word) (bool, error) {
	t := m.deref(args[0])
	switch t.Tag() {
	case TagVariable:
		elems, err := m.list(args[1])
		if err != nil {
			return false, err
		}
		if len(elems) == 0 {
			return false, m.DomainError(ValidDomainNonEmptyList, Constant(m.atom.nil))
		}
		h := m.deref(elems[0])
		switch {
		case h.Tag() == TagVariable:
			return false, m.InstantiationError()
		case h.Tag() == TagCompound:
			return false, m.TypeError(ValidTypeAtomic, h)
		case len(elems) == 1:
			return m.unify(t, h), nil
		case !m.isAtomWord(h):
			return false, m.TypeError(ValidTypeAtom, h)
		}
		return m.unify(t, m.newCompound(m.consts.Functor(h.ConstID(), len(elems)-1), elems[1:]...)), nil
	case TagCompound:
		f := m.functorOf(t)
		elems := append([]Word{Constant(f.Name)}, m.argsOf(t)...)
		return m.unify(args[1], m.NewList(elems...)), nil
	default:
		return m.unify(args[1], m.NewList(t)), nil
	}
}

func copyTerm(m *Machine, args []Word) (bool, error) {
	r := m.Copy(args[0])
	defer r.Free()
	return m.unify(args[1], m.Materialize(r)), nil
}

func termVariables(m *Machine, args []Word) (bool, error) {
	return m.unify(args[1], m.NewList(m.variables(args[0])...)), nil
}

func unifyWithOccursCheck(m *Machine, args []Word) (bool, error) {
	return m.unify(args[0], args[1]) && m.Acyclic(args[0]), nil
}

func numberVars(m *Machine, args []Word) (bool, error) {
	n, err := m.intArg(args[1])
	if err != nil {
		return false, err
	}
	f := m.consts.Functor(m.consts.Atom("$VAR"), 1)
	for _, v := range m.variables(args[0]) {
		m.bind(v.Index(), m.newCompound(f, m.NewInteger(n)))
		n++
	}
	return m.unify(args[2], m.NewInteger(n)), nil
}

func is(m *Machine, args []Word) (bool, error) {
	v, err := m.Eval(args[1])
	if err != nil {
		return false, err
	}
	return m.unify(args[0], v), nil
}

func arithCompare(p func(int) bool) DetFunc {
	return func(m *Machine, args []Word) (bool, error) {
		x, err := m.eval(args[0])
		if err != nil {
			return false, err
		}
		y, err := m.eval(args[1])
		if err != nil {
			return false, err
		}
		return p(compareNumbers(x, y)), nil
	}
}

// integerArg evaluates an integer argument.
func (m *Machine) integerArg(w Word) (number, error) {
	w = m.deref(w)
	switch {
	case w.Tag() == TagVariable:
		return nil, m.InstantiationError()
	case !m.isIntegerWord(w):
		return nil, m.TypeError(ValidTypeInteger, w)
	}
	return m.eval(w)
}

func successor(m *Machine, args []Word) (bool, error) {
	if x := m.deref(args[0]); x.Tag() != TagVariable {
		n, err := m.integerArg(x)
		if err != nil {
			return false, err
		}
		if compareNumbers(n, int64(0)) < 0 {
			return false, m.TypeError(ValidTypeNotLessThanZero, x)
		}
		s, err := add(m, n, int64(1))
		if err != nil {
			return false, err
		}
		return m.unify(args[1], m.numberWord(s)), nil
	}
	y := m.deref(args[1])
	if y.Tag() == TagVariable {
		return false, m.InstantiationError()
	}
	n, err := m.integerArg(y)
	if err != nil {
		return false, err
	}
	switch compareNumbers(n, int64(0)) {
	case -1:
		return false, m.TypeError(ValidTypeNotLessThanZero, y)
	case 0:
		return false, nil
	}
	p, err := sub(m, n, int64(1))
	if err != nil {
		return false, err
	}
	return m.unify(args[0], m.numberWord(p)), nil
}

func plus(m *Machine, args []Word) (bool, error) {
	x, y, z := m.deref(args[0]), m.deref(args[1]), m.deref(args[2])
	var (
		a, b   Word
		f      binaryFunc
		result Word
	)
	switch {
	case x.Tag() != TagVariable && y.Tag() != TagVariable:
		a, b, f, result = x, y, add, z
	case x.Tag() != TagVariable && z.Tag() != TagVariable:
		a, b, f, result = z, x, sub, y
	case y.Tag() != TagVariable && z.Tag() != TagVariable:
		a, b, f, result = z, y, sub, x
	default:
		return false, m.InstantiationError()
	}
	p, err := m.integerArg(a)
	if err != nil {
		return false, err
	}
	q, err := m.integerArg(b)
	if err != nil {
		return false, err
	}
	r, err := f(m, p, q)
	if err != nil {
		return false, err
	}
	return m.unify(result, m.numberWord(r)), nil
}

type betweenState struct {
	next, high int64
}

func between(m *Machine, args []Word, c *Control) (bool, error) {
	var s betweenState
	if c.Redo {
		s = c.State.(betweenState)
	} else {
		low, err := m.intArg(args[0])
		if err != nil {
			return false, err
		}
		high := int64(math.MaxInt64)
		if h := m.deref(args[1]); !m.isAtom(h, m.consts.Atom("inf")) && !m.isAtom(h, m.consts.Atom("infinite")) {
			if high, err = m.intArg(h); err != nil {
				return false, err
			}
		}
		if x := m.deref(args[2]); x.Tag() != TagVariable {
			n, err := m.intArg(x)
			if err != nil {
				return false, err
			}
			return low <= n && n <= high, nil
		}
		if low > high {
			return false, nil
		}
		s = betweenState{next: low, high: high}
	}
	if s.next < s.high {
		c.Retry(betweenState{next: s.next + 1, high: s.high})
	}
	return m.unify(args[2], m.NewInteger(s.next)), nil
}

func length(m *Machine, args []Word, c *Control) (bool, error) {
	n := m.deref(args[1])
	if n.Tag() != TagVariable {
		k, err := m.intArg(n)
		if err != nil {
			return false, err
		}
		if k < 0 {
			return false, m.DomainError(ValidDomainNotLessThanZero, n)
		}
	}

	var count int64
	l := m.deref(args[0])
	for m.isCompound(l, m.functor.list) {
		count++
		l = m.deref(m.heap[l.Index()+2])
	}
	switch {
	case m.isAtom(l, m.atom.nil):
		return m.unify(n, m.NewInteger(count)), nil
	case l.Tag() != TagVariable:
		return false, nil
	}

	fresh := func(k int64) Word {
		elems := make([]Word, k)
		return m.NewList(elems...)
	}
	if n.Tag() != TagVariable {
		k, _ := m.intArg(n)
		if k < count {
			return false, nil
		}
		return m.unify(l, fresh(k-count)), nil
	}
	var extra int64
	if c.Redo {
		extra = c.State.(int64)
	}
	c.Retry(extra + 1)
	return m.unifyEach(l, fresh(extra), n, m.NewInteger(count+extra)), nil
}

func (m *Machine) sortList(w Word, less func(a, b Word) bool) ([]Word, error) {
	elems, err := m.list(w)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(elems, func(i, j int) bool {
		return less(elems[i], elems[j])
	})
	return elems, nil
}

func (m *Machine) isList(w Word) bool {
	for {
		w = m.deref(w)
		switch {
		case m.isAtom(w, m.atom.nil):
			return true
		case m.isCompound(w, m.functor.list):
			w = m.heap[w.Index()+2]
		default:
			return false
		}
	}
}

// checkList reports an error if w is neither a partial nor a proper list.
func (m *Machine) checkList(w Word) error {
	for {
		w = m.deref(w)
		switch {
		case w.Tag() == TagVariable, m.isAtom(w, m.atom.nil):
			return nil
		case m.isCompound(w, m.functor.list):
			w = m.heap[w.Index()+2]
		default:
			return m.TypeError(ValidTypeList, w)
		}
	}
}

func msort(m *Machine, args []Word) (bool, error) {
	if err := m.checkList(args[1]); err != nil {
		return false, err
	}
	elems, err := m.sortList(args[0], func(a, b Word) bool { return m.Compare(a, b) < 0 })
	if err != nil {
		return false, err
	}
	return m.unify(args[1], m.NewList(elems...)), nil
}

func (m *Machine) dedupe(elems []Word, key func(Word) Word) []Word {
	var out []Word
	for i, e := range elems {
		if i > 0 && m.Compare(key(elems[i-1]), key(e)) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortUnique(m *Machine, args []Word) (bool, error) {
	if err := m.checkList(args[1]); err != nil {
		return false, err
	}
	elems, err := m.sortList(args[0], func(a, b Word) bool { return m.Compare(a, b) < 0 })
	if err != nil {
		return false, err
	}
	return m.unify(args[1], m.NewList(m.dedupe(elems, func(w Word) Word { return w })...)), nil
}

func sortKeyed(m *Machine, args []Word) (bool, error) {
	k, err := m.intArg(args[0])
	if err != nil {
		return false, err
	}
	if k < 0 {
		return false, m.DomainError(ValidDomainNotLessThanZero, args[0])
	}
	o, err := m.atomArg(args[1])
	if err != nil {
		return false, err
	}
	if err := m.checkList(args[3]); err != nil {
		return false, err
	}
	elems, err := m.list(args[2])
	if err != nil {
		return false, err
	}
	key := func(w Word) Word { return w }
	if k > 0 {
		for _, e := range elems {
			if _, ok := m.Arg(e, int(k)); !ok {
				return false, m.TypeError(ValidTypeCompound, m.deref(e))
			}
		}
		key = func(w Word) Word {
			a, _ := m.Arg(w, int(k))
			return a
		}
	}
	order, _ := m.consts.AtomText(o)
	var less func(a, b Word) bool
	switch order {
	case "@<", "@=<":
		less = func(a, b Word) bool { return m.Compare(key(a), key(b)) < 0 }
	case "@>", "@>=":
		less = func(a, b Word) bool { return m.Compare(key(a), key(b)) > 0 }
	default:
		return false, m.DomainError(ValidDomainOrder, args[1])
	}
	sort.SliceStable(elems, func(i, j int) bool { return less(elems[i], elems[j]) })
	if order == "@<" || order == "@>" {
		elems = m.dedupe(elems, key)
	}
	return m.unify(args[3], m.NewList(elems...)), nil
}

func keysort(m *Machine, args []Word) (bool, error) {
	if err := m.checkList(args[1]); err != nil {
		return false, err
	}
	elems, err := m.list(args[0])
	if err != nil {
		return false, err
	}
	pair := m.consts.Functor(m.consts.Atom("-"), 2)
	for _, e := range elems {
		switch e := m.deref(e); {
		case e.Tag() == TagVariable:
			return false, m.InstantiationError()
		case !m.isCompound(e, pair):
			return false, m.TypeError(ValidTypePair, e)
		}
	}
	key := func(w Word) Word { return m.heap[m.deref(w).Index()+1] }
	sort.SliceStable(elems, func(i, j int) bool { return m.Compare(key(elems[i]), key(elems[j])) < 0 })
	return m.unify(args[1], m.NewList(elems...)), nil
}

func assertClause(front bool) DetFunc {
	return func(m *Machine, args []Word) (bool, error) {
		module, t, err := m.strip(args[0], m.callerModule())
		if err != nil {
			return false, err
		}
		return true, m.addClause(module, t, front, true)
	}
}

// clauseHead returns the module, the head and the functor of a clause or head term.
func (m *Machine) clauseHead(w Word) (ConstID, Word, ConstID, error) {
	module, t, err := m.strip(w, m.callerModule())
	if err != nil {
		return 0, 0, 0, err
	}
	head := t
	if m.isCompound(t, m.functor.clause) {
		head = m.deref(m.heap[t.Index()+1])
	}
	if head.Tag() == TagVariable {
		return 0, 0, 0, m.InstantiationError()
	}
	f, ok := m.functorID(head)
	if !ok {
		return 0, 0, 0, m.TypeError(ValidTypeCallable, head)
	}
	return module, head, f, nil
}

type clauseIter struct {
	key     PredicateKey
	clauses []*Clause
	next    int
}

// clauses starts an iteration over the clauses of the predicate of head.
func (m *Machine) clauses(w Word, op Operation) (*clauseIter, error) {
	module, _, f, err := m.clauseHead(w)
	if err != nil {
		return nil, err
	}
	p, mod, ok := m.resolve(module, f)
	if !ok {
		return &clauseIter{}, nil
	}
	if p.Foreign {
		if op == OperationAccess {
			return nil, m.PermissionError(op, PermissionTypePrivateProcedure, m.indicator(f))
		}
		return nil, m.PermissionError(op, PermissionTypeStaticProcedure, m.indicator(f))
	}
	return &clauseIter{key: PredicateKey{Module: mod, Functor: f}, clauses: p.Clauses}, nil
}

// nextMatch advances it to the next clause whose source unifies with term.
func (m *Machine) nextMatch(it *clauseIter, term Word) (*Clause, bool) {
	for it.next < len(it.clauses) {
		cl := it.clauses[it.next]
		it.next++
		if cl.Source == nil {
			continue
		}
		if m.unifyAtomically(term, m.Materialize(cl.Source)) {
			return cl, true
		}
	}
	return nil, false
}

func clause(m *Machine, args []Word, c *Control) (bool, error) {
	var it *clauseIter
	if c.Redo {
		it = c.State.(*clauseIter)
	} else {
		var err error
		if it, err = m.clauses(args[0], OperationAccess); err != nil {
			return false, err
		}
		switch b := m.deref(args[1]); {
		case b.Tag() == TagVariable, b.Tag() == TagCompound, m.isAtomWord(b):
		default:
			return false, m.TypeError(ValidTypeCallable, b)
		}
	}
	_, head, _, _ := m.clauseHead(args[0])
	if _, ok := m.nextMatch(it, m.newCompound(m.functor.clause, head, args[1])); !ok {
		return false, nil
	}
	if it.next < len(it.clauses) {
		c.Retry(it)
	}
	return true, nil
}

func retract(m *Machine, args []Word, c *Control) (bool, error) {
	var it *clauseIter
	if c.Redo {
		it = c.State.(*clauseIter)
	} else {
		var err error
		if it, err = m.clauses(args[0], OperationModify); err != nil {
			return false, err
		}
	}
	_, t, _ := m.strip(args[0], m.callerModule())
	cl, ok := m.nextMatch(it, m.clauseTerm(t))
	if !ok {
		return false, nil
	}
	m.removeClause(it.key, cl)
	if it.next < len(it.clauses) {
		c.Retry(it)
	}
	return true, nil
}

func retractAll(m *Machine, args []Word) (bool, error) {
	module, head, f, err := m.clauseHead(args[0])
	if err != nil {
		return false, err
	}
	p, mod, ok := m.resolve(module, f)
	if !ok {
		name, arity := m.functorName(f)
		m.Declare(module, name, arity, "", true)
		return true, nil
	}
	if p.Foreign {
		return false, m.PermissionError(OperationModify, PermissionTypeStaticProcedure, m.indicator(f))
	}
	key := PredicateKey{Module: mod, Functor: f}
	for _, cl := range p.Clauses {
		if cl.Source == nil {
			continue
		}
		src := m.Materialize(cl.Source)
		if m.unifiable(head, m.heap[src.Index()+1]) {
			m.removeClause(key, cl)
		}
	}
	return true, nil
}

func (m *Machine) functorName(f ConstID) (string, int) {
	fn, _ := m.consts.FunctorOf(f)
	name, _ := m.consts.AtomText(fn.Name)
	return name, fn.Arity
}

// indicatorArg returns the functor of a Name/Arity argument.
func (m *Machine) indicatorArg(w Word) (ConstID, error) {
	w = m.deref(w)
	switch {
	case w.Tag() == TagVariable:
		return 0, m.InstantiationError()
	case !m.isCompound(w, m.functor.slash):
		return 0, m.TypeError(ValidTypePredicateIndicator, w)
	}
	name, err := m.atomArg(m.heap[w.Index()+1])
	if err != nil {
		return 0, err
	}
	arity, err := m.intArg(m.heap[w.Index()+2])
	if err != nil {
		return 0, err
	}
	if arity < 0 {
		return 0, m.DomainError(ValidDomainNotLessThanZero, m.heap[w.Index()+2])
	}
	return m.consts.Functor(name, int(arity)), nil
}

func abolish(m *Machine, args []Word) (bool, error) {
	module, pi, err := m.strip(args[0], m.callerModule())
	if err != nil {
		return false, err
	}
	f, err := m.indicatorArg(pi)
	if err != nil {
		return false, err
	}
	key := PredicateKey{Module: module, Functor: f}
	p, ok := m.db.Lookup(key)
	if sp, sok := m.db.Lookup(PredicateKey{Module: m.atom.system, Functor: f}); (ok && p.Foreign) || (sok && sp.Foreign) {
		return false, m.PermissionError(OperationModify, PermissionTypeStaticProcedure, m.indicator(f))
	}
	if ok {
		m.db.Install(key, &Predicate{})
	}
	return true, nil
}

func dynamic(m *Machine, args []Word) (bool, error) {
	module, w, err := m.strip(args[0], m.callerModule())
	if err != nil {
		return false, err
	}
	var decls []Word
	for {
		switch {
		case m.isCompound(w, m.functor.comma):
			decls = append(decls, m.heap[w.Index()+1])
			w = m.deref(m.heap[w.Index()+2])
			continue
		case m.isCompound(w, m.functor.list), m.isAtom(w, m.atom.nil):
			elems, err := m.list(w)
			if err != nil {
				return false, err
			}
			decls = append(decls, elems...)
		default:
			decls = append(decls, w)
		}
		break
	}
	for _, d := range decls {
		mod, pi, err := m.strip(d, module)
		if err != nil {
			return false, err
		}
		f, err := m.indicatorArg(pi)
		if err != nil {
			return false, err
		}
		if p, ok := m.db.Lookup(PredicateKey{Module: m.atom.system, Functor: f}); ok && p.Foreign {
			return false, m.PermissionError(OperationModify, PermissionTypeStaticProcedure, m.indicator(f))
		}
		name, arity := m.functorName(f)
		m.Declare(mod, name, arity, "", true)
	}
	return true, nil
}

func findall(m *Machine, args []Word) (bool, error) {
	tail := Constant(m.atom.nil)
	if len(args) == 4 {
		tail = args[3]
	}
	if err := m.checkList(args[2]); err != nil {
		return false, err
	}
	var results []*Record
	defer func() {
		for _, r := range results {
			r.Free()
		}
	}()
	if err := m.solve(args[1], m.callerModule(), func() bool {
		results = append(results, m.Copy(args[0]))
		return true
	}); err != nil {
		return false, err
	}
	elems := make([]Word, len(results))
	for i, r := range results {
		elems[i] = m.Materialize(r)
	}
	return m.unify(args[2], m.NewPartialList(tail, elems...)), nil
}

func forall(m *Machine, args []Word) (bool, error) {
	ok := true
	var inner error
	module := m.callerModule()
	err := m.solve(args[0], module, func() bool {
		found := false
		if inner = m.solve(args[1], module, func() bool {
			found = true
			return false
		}); inner != nil || !found {
			ok = false
			return false
		}
		return true
	})
	switch {
	case err != nil:
		return false, err
	case inner != nil:
		return false, inner
	}
	return ok, nil
}

func aggregateAll(m *Machine, args []Word) (bool, error) {
	spec := m.deref(args[0])
	name, arity, ok := m.Functor(spec)
	if spec.Tag() == TagVariable {
		return false, m.InstantiationError()
	}
	if !ok {
		return false, m.DomainError(ValidDomainAggregateSpec, spec)
	}
	var (
		template = Constant(m.atom.true)
		results  []*Record
	)
	defer func() {
		for _, r := range results {
			r.Free()
		}
	}()
	switch {
	case name == "count" && arity == 0:
	case (name == "count" || name == "bag" || name == "set" || name == "sum" || name == "max" || name == "min") && arity == 1:
		template = m.heap[spec.Index()+1]
	default:
		return false, m.DomainError(ValidDomainAggregateSpec, spec)
	}
	if err := m.solve(args[1], m.callerModule(), func() bool {
		results = append(results, m.Copy(template))
		return true
	}); err != nil {
		return false, err
	}
	elems := make([]Word, len(results))
	for i, r := range results {
		elems[i] = m.Materialize(r)
	}

	switch name {
	case "count":
		return m.unify(args[2], m.NewInteger(int64(len(elems)))), nil
	case "bag":
		return m.unify(args[2], m.NewList(elems...)), nil
	case "set":
		sort.SliceStable(elems, func(i, j int) bool { return m.Compare(elems[i], elems[j]) < 0 })
		return m.unify(args[2], m.NewList(m.dedupe(elems, func(w Word) Word { return w })...)), nil
	case "sum":
		var acc number = int64(0)
		for _, e := range elems {
			x, err := m.eval(e)
			if err != nil {
				return false, err
			}
			if acc, err = add(m, acc, x); err != nil {
				return false, err
			}
		}
		return m.unify(args[2], m.numberWord(acc)), nil
	default:
		if len(elems) == 0 {
			return false, nil
		}
		var acc number
		for i, e := range elems {
			x, err := m.eval(e)
			if err != nil {
				return false, err
			}
			if i == 0 {
				acc = x
				continue
			}
			if c := compareNumbers(x, acc); (name == "max" && c > 0) || (name == "min" && c < 0) {
				acc = x
			}
		}
		return m.unify(args[2], m.numberWord(acc)), nil
	}
}

func record(front bool) DetFunc {
	return func(m *Machine, args []Word) (bool, error) {
		key, err := m.recordKey(args[0])
		if err != nil {
			return false, err
		}
		if len(args) == 3 {
			if ref := m.deref(args[2]); ref.Tag() != TagVariable {
				return false, m.TypeError(ValidTypeDBReference, ref)
			}
		}
		e := m.records.add(key, m.Copy(args[1]), front)
		if len(args) == 3 {
			return m.unify(args[2], m.recordRef(e)), nil
		}
		return true, nil
	}
}

type recordIter struct {
	entries []*recordEntry
	next    int
}

func recorded(m *Machine, args []Word, c *Control) (bool, error) {
	var it *recordIter
	if c.Redo {
		it = c.State.(*recordIter)
	} else if k := m.deref(args[0]); k.Tag() == TagVariable {
		it = &recordIter{entries: m.records.all()}
	} else {
		key, err := m.recordKey(k)
		if err != nil {
			return false, err
		}
		it = &recordIter{entries: m.records.entries(key)}
	}
	for it.next < len(it.entries) {
		e := it.entries[it.next]
		it.next++
		if e.erased {
			continue
		}
		ws := []Word{args[0], m.keyTerm(e.key), args[1], m.Materialize(e.record)}
		if len(args) == 3 {
			ws = append(ws, args[2], m.recordRef(e))
		}
		if !m.unifyEach(ws...) {
			continue
		}
		if it.next < len(it.entries) {
			c.Retry(it)
		}
		return true, nil
	}
	return false, nil
}

func erase(m *Machine, args []Word) (bool, error) {
	e, err := m.recordEntryOf(args[0])
	if err != nil {
		return false, err
	}
	return m.records.erase(e), nil
}

func instance(m *Machine, args []Word) (bool, error) {
	e, err := m.recordEntryOf(args[0])
	if err != nil {
		return false, err
	}
	if e.erased {
		return false, nil
	}
	return m.unify(args[1], m.Materialize(e.record)), nil
}

type prologFlag struct {
	name     string
	value    func(m *Machine) Word
	set      func(m *Machine, v Word) error
	readOnly bool
}

var prologFlags = []prologFlag{
	{
		name:     "bounded",
		value:    func(m *Machine) Word { return Constant(m.atom.false) },
		readOnly: true,
	},
	{
		name:     "max_integer",
		value:    func(m *Machine) Word { return m.NewInteger(math.MaxInt64) },
		readOnly: true,
	},
	{
		name:     "min_integer",
		value:    func(m *Machine) Word { return m.NewInteger(math.MinInt64) },
		readOnly: true,
	},
	{
		name:     "integer_rounding_function",
		value:    func(m *Machine) Word { return m.NewAtom("toward_zero") },
		readOnly: true,
	},
	{
		name:  "unknown",
		value: func(m *Machine) Word { return m.NewAtom(m.unknown.String()) },
		set: func(m *Machine, v Word) error {
			name, _ := m.Atom(v)
			u, err := parseUnknown(name)
			if err != nil || name == "" {
				return m.DomainError(ValidDomainFlagValue, m.NewCompound("+", m.NewAtom("unknown"), v))
			}
			m.unknown = u
			return nil
		},
	},
	{
		name:  "debug",
		value: func(m *Machine) Word { return m.NewAtom(map[bool]string{true: "on", false: "off"}[m.cfg.Debug]) },
		set: func(m *Machine, v Word) error {
			switch name, _ := m.Atom(v); name {
			case "on":
				m.cfg.Debug = true
			case "off":
				m.cfg.Debug = false
			default:
				return m.DomainError(ValidDomainFlagValue, m.NewCompound("+", m.NewAtom("debug"), v))
			}
			return nil
		},
	},
}

func setPrologFlag(m *Machine, args []Word) (bool, error) {
	f, err := m.atomArg(args[0])
	if err != nil {
		return false, err
	}
	v := m.deref(args[1])
	if v.Tag() == TagVariable {
		return false, m.InstantiationError()
	}
	name, _ := m.consts.AtomText(f)
	for _, pf := range prologFlags {
		if pf.name != name {
			continue
		}
		if pf.readOnly {
			return false, m.PermissionError(OperationModify, PermissionTypeFlag, Constant(f))
		}
		return true, pf.set(m, v)
	}
	return false, m.DomainError(ValidDomainPrologFlag, Constant(f))
}

func currentPrologFlag(m *Machine, args []Word, c *Control) (bool, error) {
	i := 0
	if c.Redo {
		i = c.State.(int)
	} else {
		switch f := m.deref(args[0]); {
		case f.Tag() == TagVariable:
		case !m.isAtomWord(f):
			return false, m.TypeError(ValidTypeAtom, f)
		default:
			name, _ := m.consts.AtomText(f.ConstID())
			for _, pf := range prologFlags {
				if pf.name == name {
					return m.unify(args[1], pf.value(m)), nil
				}
			}
			return false, m.DomainError(ValidDomainPrologFlag, f)
		}
	}
	for ; i < len(prologFlags); i++ {
		pf := prologFlags[i]
		if m.unifyEach(args[0], m.NewAtom(pf.name), args[1], pf.value(m)) {
			if i+1 < len(prologFlags) {
				c.Retry(i + 1)
			}
			return true, nil
		}
	}
	return false, nil
}

func op(m *Machine, args []Word) (bool, error) {
	p, err := m.intArg(args[0])
	if err != nil {
		return false, err
	}
	if p < 0 || p > 1200 {
		return false, m.DomainError(ValidDomainOperatorPriority, args[0])
	}
	s, err := m.atomArg(args[1])
	if err != nil {
		return false, err
	}
	text, _ := m.consts.AtomText(s)
	spec, ok := ParseOperatorSpecifier(text)
	if !ok {
		return false, m.DomainError(ValidDomainOperatorSpecifier, args[1])
	}

	var names []Word
	switch w := m.deref(args[2]); {
	case m.isCompound(w, m.functor.list):
		if names, err = m.list(w); err != nil {
			return false, err
		}
	default:
		names = []Word{w}
	}
	for _, n := range names {
		id, err := m.atomArg(n)
		if err != nil {
			return false, err
		}
		name, _ := m.consts.AtomText(id)
		switch {
		case name == ",":
			return false, m.PermissionError(OperationModify, PermissionTypeOperator, Constant(id))
		case name == "|" && (spec.Class() != OperatorClassInfix || (p > 0 && p < 1001)):
			return false, m.PermissionError(OperationCreate, PermissionTypeOperator, Constant(id))
		case name == "[]" || name == "{}":
			return false, m.PermissionError(OperationCreate, PermissionTypeOperator, Constant(id))
		}
		m.ops.Define(int(p), spec, name)
	}
	return true, nil
}

func currentOp(m *Machine, args []Word, c *Control) (bool, error) {
	i := 0
	if c.Redo {
		i = c.State.(int)
	} else {
		if p := m.deref(args[0]); p.Tag() != TagVariable {
			if n, ok := m.Integer(p); !ok || n < 0 || n > 1200 {
				return false, m.DomainError(ValidDomainOperatorPriority, p)
			}
		}
		if s := m.deref(args[1]); s.Tag() != TagVariable {
			name, ok := m.Atom(s)
			if !ok {
				return false, m.DomainError(ValidDomainOperatorSpecifier, s)
			}
			if _, ok := ParseOperatorSpecifier(name); !ok {
				return false, m.DomainError(ValidDomainOperatorSpecifier, s)
			}
		}
		if n := m.deref(args[2]); n.Tag() != TagVariable && !m.isAtomWord(n) {
			return false, m.TypeError(ValidTypeAtom, n)
		}
	}
	ops := m.ops.All()
	for ; i < len(ops); i++ {
		o := ops[i]
		if m.unifyEach(
			args[0], m.NewInteger(int64(o.Priority)),
			args[1], m.NewAtom(o.Specifier.String()),
			args[2], m.NewAtom(o.Name),
		) {
			if i+1 < len(ops) {
				c.Retry(i + 1)
			}
			return true, nil
		}
	}
	return false, nil
}
