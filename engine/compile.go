package engine

import (
	"errors"
	"math"
)

var errNotCallable = errors.New("not callable")

type varInfo struct {
	slot  int
	count int
	safe  bool // first seen in the head.
	fresh bool // not yet emitted.
}

type cutKind uint8

const (
	cutClause cutKind = iota // cut to the clause's entry choicepoint.
	cutLocal                 // cut inside a condition that keeps the alternative of the construct.
	cutSlot                  // cut to the choicepoint depth saved in a slot.
)

type cutScope struct {
	kind cutKind
	slot int
}

type compiler struct {
	m      *Machine
	module ConstID
	b      *builder

	vars     map[int]*varInfo
	bySlot   []*varInfo
	reserved int
	next     int
}

// Compile compiles a fact or a Head :- Body term in the context of module.
func (m *Machine) Compile(term Word, module ConstID) (*Clause, error) {
	term = m.deref(term)
	head, body := term, Constant(m.atom.true)
	if m.isCompound(term, m.functor.clause) {
		head, body = m.heap[term.Index()+1], m.heap[term.Index()+2]
	}
	head = m.deref(head)
	switch head.Tag() {
	case TagVariable:
		return nil, m.InstantiationError()
	case TagCompound, TagConstant:
	default:
		return nil, m.TypeError(ValidTypeCallable, head)
	}
	f, ok := m.functorID(head)
	if !ok {
		return nil, m.TypeError(ValidTypeCallable, head)
	}
	if m.control[f] {
		return nil, m.PermissionError(OperationModify, PermissionTypeStaticProcedure, m.indicator(f))
	}
	if !m.Acyclic(term) {
		return nil, m.TypeError(ValidTypeCallable, term)
	}
	c, err := m.compileClause(f, m.argsOf(head), body, module)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// compileCall compiles '$call'(Vars...) :- Goal for a meta-call and returns the clause with the free variables
// to pass as its arguments.
func (m *Machine) compileCall(goal Word, module ConstID) (*Clause, []Word, error) {
	if !m.Acyclic(goal) {
		return nil, nil, m.TypeError(ValidTypeCallable, goal)
	}
	vars := m.variables(goal)
	c, err := m.compileClause(m.consts.Functor(m.atom.call, len(vars)), vars, goal, module)
	return c, vars, err
}

func (m *Machine) compileClause(f ConstID, args []Word, body Word, module ConstID) (*Clause, error) {
	c := compiler{
		m:      m,
		module: module,
		b:      newBuilder(),
		vars:   map[int]*varInfo{},
	}
	c.analyzeVariables(args, body)
	c.reserved = c.reservedSlots(body)
	c.next = len(c.bySlot)

	for _, a := range args {
		c.get(a)
	}
	if body = m.deref(body); m.isAtom(body, m.atom.true) {
		c.b.emit(opExitFact)
	} else {
		c.b.emit(opEnter)
		if err := c.body(body, true, cutScope{kind: cutClause}); err != nil {
			if errors.Is(err, errNotCallable) {
				return nil, m.TypeError(ValidTypeCallable, body)
			}
			return nil, err
		}
	}

	slots := len(c.bySlot) + c.reserved
	if slots > math.MaxUint16 || len(c.b.pool.words) > math.MaxUint16 {
		return nil, m.RepresentationError(FlagClauseSize)
	}
	code, consts := c.b.finish()
	return &Clause{
		Functor: f,
		Code:    code,
		Consts:  consts,
		Slots:   slots,
	}, nil
}

// analyzeVariables assigns slots in order of first sight, head first, and counts occurrences.
func (c *compiler) analyzeVariables(args []Word, body Word) {
	visit := func(w Word, head bool) {
		stack := []Word{w}
		for len(stack) > 0 {
			w := c.m.deref(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			switch w.Tag() {
			case TagVariable:
				v, ok := c.vars[w.Index()]
				if !ok {
					v = &varInfo{slot: len(c.bySlot), safe: head, fresh: true}
					c.vars[w.Index()] = v
					c.bySlot = append(c.bySlot, v)
				}
				v.count++
			case TagCompound:
				args := c.m.argsOf(w)
				for i := len(args) - 1; i >= 0; i-- {
					stack = append(stack, args[i])
				}
			}
		}
	}
	for _, a := range args {
		visit(a, true)
	}
	visit(body, false)
}

// reservedSlots counts the control slots the body needs: 1 per if-then, if-then-else, negation, once and
// ignore, 4 per catch/3 and 2 per setup_call_cleanup/3.
func (c *compiler) reservedSlots(g Word) int {
	m := c.m
	g = m.deref(g)
	if g.Tag() != TagCompound {
		return 0
	}
	args := m.argsOf(g)
	switch m.heap[g.Index()].ConstID() {
	case m.functor.comma:
		return c.reservedSlots(args[0]) + c.reservedSlots(args[1])
	case m.functor.semicolon:
		if l := m.deref(args[0]); m.isCompound(l, m.functor.arrow) {
			la := m.argsOf(l)
			return 1 + c.reservedSlots(la[0]) + c.reservedSlots(la[1]) + c.reservedSlots(args[1])
		}
		return c.reservedSlots(args[0]) + c.reservedSlots(args[1])
	case m.functor.arrow:
		return 1 + c.reservedSlots(args[0]) + c.reservedSlots(args[1])
	case m.functor.not, m.functor.not1, m.functor.once, m.functor.ignore:
		return 1 + c.reservedSlots(args[0])
	case m.functor.catch:
		return 4
	case m.functor.cleanup:
		return 2
	default:
		return 0
	}
}

func (c *compiler) reserve(n int) int {
	s := c.next
	c.next += n
	if c.next > len(c.bySlot)+c.reserved {
		panic(internalErrorf("reserved slots exhausted"))
	}
	return s
}

type varState []bool

func (c *compiler) snapshot() varState {
	s := make(varState, len(c.bySlot))
	for i, v := range c.bySlot {
		s[i] = v.fresh
	}
	return s
}

func (c *compiler) restore(s varState) {
	for i, v := range c.bySlot {
		v.fresh = s[i]
	}
}

// get compiles head matching of an argument.
func (c *compiler) get(w Word) {
	w = c.m.deref(w)
	switch w.Tag() {
	case TagVariable:
		v := c.vars[w.Index()]
		switch {
		case v.count == 1:
			c.b.emit(opGetVoid)
		case v.fresh:
			v.fresh = false
			c.b.emitSlot(opGetFirstVar, v.slot)
		default:
			c.b.emitSlot(opGetVar, v.slot)
		}
	case TagCompound:
		c.b.emitConst(opGetFunctor, c.m.heap[w.Index()])
		for _, a := range c.m.argsOf(w) {
			c.get(a)
		}
		c.b.emit(opGetPop)
	default:
		c.b.emitConst(opGetConst, w)
	}
}

// put compiles construction of a term. Nested is true inside a compound under construction.
func (c *compiler) put(w Word, nested bool) {
	w = c.m.deref(w)
	switch w.Tag() {
	case TagVariable:
		v := c.vars[w.Index()]
		switch {
		case v.count == 1:
			c.b.emit(opPutVoid)
		case v.fresh:
			v.fresh = false
			if nested {
				c.b.emitSlot(opPutArgFirstVar, v.slot)
			} else {
				c.b.emitSlot(opPutFirstVar, v.slot)
			}
		case v.safe:
			c.b.emitSlot(opPutVar, v.slot)
		default:
			c.b.emitSlot(opPutUnsafeVar, v.slot)
		}
	case TagCompound:
		c.b.emitConst(opPutFunctor, c.m.heap[w.Index()])
		for _, a := range c.m.argsOf(w) {
			c.put(a, true)
		}
		c.b.emit(opPutPop)
	default:
		c.b.emitConst(opPutConst, w)
	}
}

func (c *compiler) exit(tail bool) {
	if tail {
		c.b.emit(opExit)
	}
}

func (c *compiler) cut(scope cutScope) {
	switch scope.kind {
	case cutLocal:
		c.b.emitSlot(opLocalCut, scope.slot)
	case cutSlot:
		c.b.emitSlot(opCutTo, scope.slot)
	default:
		c.b.emit(opCut)
	}
}

// body compiles a goal. A goal in tail position ends the clause itself.
func (c *compiler) body(g Word, tail bool, scope cutScope) error {
	m := c.m
	g = m.deref(g)
	switch g.Tag() {
	case TagVariable:
		c.put(g, false)
		c.b.emitSlot(opUserCall, 0)
		c.exit(tail)
		return nil
	case TagConstant:
		switch id := g.ConstID(); id {
		case m.atom.true:
			c.exit(tail)
			return nil
		case m.atom.fail, m.atom.false:
			c.b.emit(opFail)
			return nil
		case m.atom.cut:
			c.cut(scope)
			c.exit(tail)
			return nil
		default:
			if m.consts.Kind(id) != KindAtom {
				return errNotCallable
			}
			c.call(c.module, m.consts.Functor(id, 0), nil, tail, false)
			return nil
		}
	case TagCompound:
	default:
		return errNotCallable
	}

	args := m.argsOf(g)
	f := m.heap[g.Index()].ConstID()
	switch f {
	case m.functor.comma:
		if err := c.body(args[0], false, scope); err != nil {
			return err
		}
		return c.body(args[1], tail, scope)
	case m.functor.semicolon:
		if l := m.deref(args[0]); m.isCompound(l, m.functor.arrow) {
			la := m.argsOf(l)
			return c.ifThenElse(la[0], la[1], args[1], tail, scope)
		}
		return c.disjunction(args[0], args[1], tail, scope)
	case m.functor.arrow:
		return c.ifThen(args[0], args[1], tail, scope)
	case m.functor.not, m.functor.not1:
		return c.negation(args[0], tail)
	case m.functor.once:
		return c.ifThen(args[0], Constant(m.atom.true), tail, scope)
	case m.functor.ignore:
		return c.ifThenElse(args[0], Constant(m.atom.true), Constant(m.atom.true), tail, scope)
	case m.functor.catch:
		c.catch(args, tail)
		return nil
	case m.functor.throw:
		c.put(args[0], false)
		c.b.emit(opThrow)
		return nil
	case m.functor.cleanup:
		c.setupCallCleanup(args, tail)
		return nil
	case m.functor.unify:
		c.put(args[0], false)
		c.put(args[1], false)
		c.b.emit(opUnify)
		c.exit(tail)
		return nil
	case m.functor.notUnify:
		c.put(args[0], false)
		c.put(args[1], false)
		c.b.emit(opNotUnify)
		c.exit(tail)
		return nil
	case m.functor.colon:
		mod, goal := m.deref(args[0]), m.deref(args[1])
		gf, ok := m.functorID(goal)
		if mod.Tag() != TagConstant || m.consts.Kind(mod.ConstID()) != KindAtom || !ok || m.control[gf] {
			c.metaCall(g, tail)
			return nil
		}
		c.call(mod.ConstID(), gf, m.argsOf(goal), tail, true)
		return nil
	}

	for n, cf := range m.functor.call {
		if f == cf {
			for _, a := range args {
				c.put(a, false)
			}
			c.b.emitSlot(opUserCall, n)
			c.exit(tail)
			return nil
		}
	}
	c.call(c.module, f, args, tail, false)
	return nil
}

func (c *compiler) metaCall(g Word, tail bool) {
	c.put(g, false)
	c.b.emitSlot(opUserCall, 0)
	c.exit(tail)
}

// call compiles a call to a user predicate. Arguments in meta-argument positions are qualified with the
// context module.
func (c *compiler) call(module, f ConstID, args []Word, tail, qualified bool) {
	m := c.m
	var meta string
	if p, _, ok := m.resolve(module, f); ok {
		meta = p.Meta
	}
	for i, a := range args {
		if i < len(meta) && isMetaMode(meta[i]) && !m.isCompound(m.deref(a), m.functor.colon) {
			c.b.emitConst(opPutFunctor, Constant(m.functor.colon))
			c.b.emitConst(opPutConst, Constant(c.module))
			c.put(a, true)
			c.b.emit(opPutPop)
			continue
		}
		c.put(a, false)
	}
	switch {
	case qualified && tail:
		c.b.emitConst2(opDepartModule, Constant(module), Constant(f))
	case qualified:
		c.b.emitConst2(opCallModule, Constant(module), Constant(f))
	case tail:
		c.b.emitConst(opDepart, Constant(f))
	default:
		c.b.emitConst(opCall, Constant(f))
	}
}

func isMetaMode(b byte) bool {
	return b >= '0' && b <= '9' || b == ':' || b == '^'
}

// branches compiles two alternatives from the same variable state and appends them, adding opDeclareVar
// instructions so that the state after either is the same.
func (c *compiler) branches(head func(b *builder, lelse label), left, right func() error, tail bool) error {
	lelse, lend := c.b.newLabel(), c.b.newLabel()
	head(c.b, lelse)
	outer := c.b
	before := c.snapshot()

	lb := outer.sub()
	c.b = lb
	if err := left(); err != nil {
		c.b = outer
		return err
	}
	afterLeft := c.snapshot()

	c.restore(before)
	rb := outer.sub()
	c.b = rb
	if err := right(); err != nil {
		c.b = outer
		return err
	}
	afterRight := c.snapshot()
	c.b = outer

	if !tail {
		for i, v := range c.bySlot {
			switch {
			case !afterLeft[i] && afterRight[i]:
				rb.emitSlot(opDeclareVar, v.slot)
			case afterLeft[i] && !afterRight[i]:
				lb.emitSlot(opDeclareVar, v.slot)
			}
			v.fresh = afterLeft[i] && afterRight[i]
		}
	}

	outer.append(lb)
	if !tail {
		outer.emitJump(opJump, 0, lend)
	}
	outer.mark(lelse)
	outer.append(rb)
	outer.mark(lend)
	return nil
}

func (c *compiler) disjunction(l, r Word, tail bool, scope cutScope) error {
	return c.branches(func(b *builder, lelse label) {
		b.emitJump(opOr, 0, lelse)
	}, func() error {
		return c.body(l, tail, scope)
	}, func() error {
		return c.body(r, tail, scope)
	}, tail)
}

func (c *compiler) ifThenElse(cond, then, els Word, tail bool, scope cutScope) error {
	s := c.reserve(1)
	return c.branches(func(b *builder, lelse label) {
		b.emitJump(opIfThenElse, s, lelse)
	}, func() error {
		if err := c.body(cond, false, cutScope{kind: cutLocal, slot: s}); err != nil {
			return err
		}
		c.b.emitSlot(opCutTo, s)
		return c.body(then, tail, scope)
	}, func() error {
		return c.body(els, tail, scope)
	}, tail)
}

func (c *compiler) ifThen(cond, then Word, tail bool, scope cutScope) error {
	s := c.reserve(1)
	c.b.emitSlot(opIfThen, s)
	if err := c.body(cond, false, cutScope{kind: cutSlot, slot: s}); err != nil {
		return err
	}
	c.b.emitSlot(opCutTo, s)
	return c.body(then, tail, scope)
}

func (c *compiler) negation(g Word, tail bool) error {
	s := c.reserve(1)
	ok := c.b.newLabel()
	c.b.emitJump(opNot, s, ok)
	before := c.snapshot()
	if err := c.body(g, false, cutScope{kind: cutLocal, slot: s}); err != nil {
		return err
	}
	c.b.emitSlot(opCutTo, s)
	c.b.emit(opFail)
	c.b.mark(ok)
	c.restore(before)
	c.exit(tail)
	return nil
}

// catch compiles catch(G, C, R) with 4 slots: the goal, the catcher, the recovery and the choicepoint depth.
func (c *compiler) catch(args []Word, tail bool) {
	s := c.reserve(4)
	recovery, end := c.b.newLabel(), c.b.newLabel()
	for _, a := range args {
		c.put(a, false)
	}
	c.b.emitJump(opCatch, s, recovery)
	c.b.emitSlot(opPutVar, s)
	c.b.emitSlot(opUserCall, 0)
	c.b.emitSlot(opExitCatch, s)
	if tail {
		c.b.emit(opExit)
	} else {
		c.b.emitJump(opJump, 0, end)
	}
	c.b.mark(recovery)
	c.b.emitSlot(opPutVar, s+2)
	c.b.emitSlot(opUserCall, 0)
	c.exit(tail)
	c.b.mark(end)
}

// setupCallCleanup compiles once(S), the registration of C and the call of G.
func (c *compiler) setupCallCleanup(args []Word, tail bool) {
	s := c.reserve(2)
	c.b.emitSlot(opIfThen, s)
	c.put(args[0], false)
	c.b.emitSlot(opUserCall, 0)
	c.b.emitSlot(opCutTo, s)
	c.put(args[2], false)
	c.b.emitSlot(opCallCleanup, s+1)
	c.put(args[1], false)
	c.b.emitSlot(opUserCall, 0)
	c.b.emitSlot(opExitCleanup, s+1)
	c.exit(tail)
}
