package engine

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var errFail = errors.New("fail")

func (m *Machine) pushChoicepoint(kind cpKind, pc int) *choicepoint {
	m.cpSeq++
	m.cps = append(m.cps, choicepoint{
		kind:      kind,
		id:        m.cpSeq,
		fr:        m.fr,
		pc:        pc,
		heapMark:  len(m.heap),
		trailMark: len(m.trail),
		argsMark:  len(m.args),
	})
	return &m.cps[len(m.cps)-1]
}

// pushBarrier pushes a choicepoint that stops backtracking and returns its depth.
func (m *Machine) pushBarrier() int {
	d := len(m.cps)
	m.pushChoicepoint(cpBarrier, 0)
	return d
}

// Execute runs goal in the user module until the first solution, a failure, an error or a yield.
// Choicepoints of a previous query are discarded. A query that fails or raises an error leaves goal unbound.
func (m *Machine) Execute(goal Word) (Status, error) {
	if m.nested > 0 {
		return StatusError, internalErrorf("execute while running")
	}
	m.discard()
	m.steps = 0
	if m.exception != nil {
		m.exception.Free()
		m.exception = nil
	}
	m.base = m.pushBarrier() + 1
	err := m.callGoal(0, m.atom.user, nil, 0, 0, goal)
	return m.top(m.run(err))
}

// Next backtracks into the last solution for another one.
func (m *Machine) Next() (Status, error) {
	if m.status != StatusSuccessWithChoices {
		return StatusFail, nil
	}
	return m.top(m.run(errFail))
}

// Resume continues a machine suspended by a foreign predicate.
func (m *Machine) Resume() (Status, error) {
	if m.status != StatusYield || m.cont == nil {
		return StatusError, errNotYielded
	}
	if m.cont.ctl != nil {
		m.cont.ctl.Resumed = true
		m.redo = m.cont.ctl
	}
	m.resuming = true
	m.cont = nil
	return m.top(m.run(nil))
}

// Cut discards the choicepoints left by the current query.
func (m *Machine) Cut() {
	m.discard()
	if m.status == StatusSuccessWithChoices {
		m.status = StatusSuccess
	}
}

func (m *Machine) discard() {
	m.base = 0
	if len(m.cps) > 0 {
		// The query's base barrier is at 0.
		m.cutTo(1)
		m.cps = m.cps[:0]
		m.runCleanups()
	}
	m.trail = m.trail[:0]
	m.cursors = m.cursors[:0]
	m.args = m.args[:0]
	m.regs = nil
	m.redo = nil
	m.cont = nil
	m.fr = nil
}

func (m *Machine) top(status Status, err error) (Status, error) {
	m.status = status
	switch status {
	case StatusFail, StatusError:
		if len(m.cps) > 0 && m.cps[0].kind == cpBarrier {
			m.undoTrail(m.cps[0].trailMark)
		}
	}
	if status == StatusError {
		var e *Exception
		if errors.As(err, &e) {
			if m.exception != nil {
				m.exception.Free()
			}
			m.exception = e.term
		}
	}
	return status, err
}

// run is the fetch, decode and dispatch loop. err is the outcome of the previous step.
func (m *Machine) run(err error) (status Status, rerr error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			m.log.WithError(ie).Error("abort")
			m.fr = nil
			status, rerr = StatusError, ie
		}
	}()

	for {
		switch {
		case err == nil:
		case err == errFail:
			if !m.backtrack() {
				m.runCleanups()
				return StatusFail, nil
			}
		case err == ErrYield:
			return StatusYield, nil
		default:
			var e *Exception
			if !errors.As(err, &e) {
				e = m.SystemError(err)
			}
			if !m.throw(e.term) {
				m.runCleanups()
				return StatusError, e
			}
			e.term.Free()
		}
		err = nil

		if len(m.pending) > 0 {
			m.runCleanups()
		}
		if m.fr == nil {
			if len(m.cps) > m.base {
				return StatusSuccessWithChoices, nil
			}
			return StatusSuccess, nil
		}
		if m.cfg.MaxSteps > 0 {
			m.steps++
			if m.steps > m.cfg.MaxSteps {
				m.steps = 0
				return StatusError, m.ResourceError("steps")
			}
		}

		pc := m.pc
		i, next := m.fr.clause.decode(pc)
		m.pc = next
		err = m.step(i, pc)
	}
}

func (m *Machine) topCursor() *cursor {
	return &m.cursors[len(m.cursors)-1]
}

// argument returns the next argument in read mode.
func (m *Machine) argument(c *cursor) Word {
	if c.reg {
		return m.regs[c.pos]
	}
	return m.heap[c.pos]
}

// emit pushes w as a call argument or stores it in the compound under construction.
func (m *Machine) emit(w Word) {
	if len(m.cursors) == 0 {
		m.args = append(m.args, w)
		return
	}
	c := m.topCursor()
	m.heap[c.pos] = w
	c.pos++
}

func (m *Machine) pop() Word {
	w := m.args[len(m.args)-1]
	m.args = m.args[:len(m.args)-1]
	return w
}

func (m *Machine) step(i Instruction, pc int) error {
	fr := m.fr
	cl := fr.clause
	switch i.Op {
	case opGetVoid:
		c := m.topCursor()
		if c.write {
			m.heap[c.pos] = Variable(c.pos)
		}
		c.pos++
	case opGetFirstVar:
		c := m.topCursor()
		if c.write {
			m.heap[c.pos] = Variable(c.pos)
			fr.slots[i.Slot] = Variable(c.pos)
		} else {
			fr.slots[i.Slot] = m.argument(c)
		}
		c.pos++
	case opGetVar:
		v := fr.slots[i.Slot]
		if v.IsVoid() {
			panic(internalErrorf("void slot %d in head", i.Slot))
		}
		c := m.topCursor()
		if c.write {
			m.heap[c.pos] = v
			c.pos++
			break
		}
		a := m.argument(c)
		c.pos++
		if !m.unify(v, a) {
			return errFail
		}
	case opGetConst:
		k := cl.Consts[i.Const]
		c := m.topCursor()
		if c.write {
			m.heap[c.pos] = k
			c.pos++
			break
		}
		a := m.deref(m.argument(c))
		c.pos++
		switch {
		case a == k:
		case a.Tag() == TagVariable:
			m.bind(a.Index(), k)
		default:
			return errFail
		}
	case opGetFunctor:
		k := cl.Consts[i.Const]
		f, _ := m.consts.FunctorOf(k.ConstID())
		c := m.topCursor()
		if c.write {
			h := m.alloc(1 + f.Arity)
			m.heap[h] = k
			m.heap[c.pos] = Compound(h)
			c.pos++
			m.cursors = append(m.cursors, cursor{pos: h + 1, write: true})
			break
		}
		a := m.deref(m.argument(c))
		c.pos++
		switch {
		case a.Tag() == TagVariable:
			h := m.alloc(1 + f.Arity)
			m.heap[h] = k
			m.bind(a.Index(), Compound(h))
			m.cursors = append(m.cursors, cursor{pos: h + 1, write: true})
		case a.Tag() == TagCompound && m.heap[a.Index()] == k:
			m.cursors = append(m.cursors, cursor{pos: a.Index() + 1})
		default:
			return errFail
		}
	case opGetPop, opPutPop:
		m.cursors = m.cursors[:len(m.cursors)-1]
	case opEnter:
		m.cursors = m.cursors[:0]
		m.regs = nil
	case opExitFact:
		m.cursors = m.cursors[:0]
		m.regs = nil
		m.exit()

	case opPutVoid:
		if len(m.cursors) == 0 {
			m.args = append(m.args, m.NewVariable())
			break
		}
		c := m.topCursor()
		m.heap[c.pos] = Variable(c.pos)
		c.pos++
	case opPutFirstVar, opPutArgFirstVar:
		m.putFirstVar(fr, i.Slot)
	case opPutVar:
		v := fr.slots[i.Slot]
		if v.IsVoid() {
			panic(internalErrorf("void slot %d", i.Slot))
		}
		m.emit(v)
	case opPutUnsafeVar:
		v := fr.slots[i.Slot]
		if v.IsVoid() {
			m.putFirstVar(fr, i.Slot)
			break
		}
		m.emit(m.deref(v))
	case opPutConst:
		m.emit(cl.Consts[i.Const])
	case opPutFunctor:
		k := cl.Consts[i.Const]
		f, _ := m.consts.FunctorOf(k.ConstID())
		h := m.alloc(1 + f.Arity)
		m.heap[h] = k
		m.emit(Compound(h))
		m.cursors = append(m.cursors, cursor{pos: h + 1, write: true})
	case opUnify:
		b, a := m.pop(), m.pop()
		if !m.unify(a, b) {
			return errFail
		}
	case opNotUnify:
		b, a := m.pop(), m.pop()
		if m.unifiable(a, b) {
			return errFail
		}
	case opThrow:
		ball := m.deref(m.pop())
		if ball.Tag() == TagVariable {
			return m.InstantiationError()
		}
		return m.NewException(ball)

	case opCall:
		m.maybeCollect()
		fr = m.fr
		return m.call(fr.module, cl.Consts[i.Const].ConstID(), fr, m.pc, fr.depth+1)
	case opDepart:
		m.maybeCollect()
		fr = m.fr
		return m.call(fr.module, cl.Consts[i.Const].ConstID(), fr.parent, fr.retPC, fr.depth)
	case opCallModule:
		m.maybeCollect()
		fr = m.fr
		return m.call(cl.Consts[i.Const].ConstID(), cl.Consts[i.Const2].ConstID(), fr, m.pc, fr.depth+1)
	case opDepartModule:
		m.maybeCollect()
		fr = m.fr
		return m.call(cl.Consts[i.Const].ConstID(), cl.Consts[i.Const2].ConstID(), fr.parent, fr.retPC, fr.depth)
	case opUserCall:
		m.maybeCollect()
		fr = m.fr
		extra := make([]Word, i.Slot)
		for k := len(extra) - 1; k >= 0; k-- {
			extra[k] = m.pop()
		}
		goal := m.pop()
		return m.callGoal(i.Slot, fr.module, fr, m.pc, fr.depth+1, goal, extra...)
	case opExit:
		m.exit()
	case opCut:
		m.cutTo(fr.cp)
	case opFail:
		return errFail
	case opTrue:
	case opForeign:
		return m.callForeign(cl.Consts[i.Const].Index(), pc)

	case opDeclareVar:
		fr.slots[i.Slot] = m.NewVariable()
	case opJump:
		m.pc = i.Addr
	case opOr:
		m.pushChoicepoint(cpRetry, i.Addr)
	case opIfThenElse, opNot:
		fr.slots[i.Slot] = External(len(m.cps))
		m.pushChoicepoint(cpRetry, i.Addr)
	case opIfThen:
		fr.slots[i.Slot] = External(len(m.cps))
	case opCutTo:
		m.cutTo(fr.slots[i.Slot].Index())
	case opLocalCut:
		m.cutTo(fr.slots[i.Slot].Index() + 1)
	case opCatch:
		r, c, g := m.pop(), m.pop(), m.pop()
		s := i.Slot
		fr.slots[s], fr.slots[s+1], fr.slots[s+2] = g, c, r
		fr.slots[s+3] = External(len(m.cps))
		cp := m.pushChoicepoint(cpCatch, i.Addr)
		cp.slot = s
	case opExitCatch:
		d := fr.slots[i.Slot+3].Index()
		if d >= len(m.cps) {
			break
		}
		cp := &m.cps[d]
		if cp.kind != cpCatch || cp.fr != fr || cp.slot != i.Slot {
			break
		}
		if d == len(m.cps)-1 {
			m.cps = m.cps[:d]
			break
		}
		if !cp.closed {
			cp.closed = true
			m.trail = append(m.trail, trailEntry{catch: cp.id})
		}
	case opCallCleanup:
		goal := m.pop()
		fr.slots[i.Slot] = External(len(m.cps))
		cp := m.pushChoicepoint(cpCleanup, 0)
		cp.goal = goal
	case opExitCleanup:
		d := fr.slots[i.Slot].Index()
		if d == len(m.cps)-1 && m.cps[d].kind == cpCleanup && m.cps[d].fr == fr {
			goal := m.cps[d].goal
			m.cps = m.cps[:d]
			m.schedule(goal, fr.module)
		}
	default:
		panic(internalErrorf("illegal instruction %s at %d", i.Op, pc))
	}
	return nil
}

func (m *Machine) putFirstVar(fr *Frame, slot int) {
	if len(m.cursors) == 0 {
		v := m.NewVariable()
		fr.slots[slot] = v
		m.args = append(m.args, v)
		return
	}
	c := m.topCursor()
	m.heap[c.pos] = Variable(c.pos)
	fr.slots[slot] = Variable(c.pos)
	c.pos++
}

func (m *Machine) exit() {
	fr := m.fr
	m.trace("exit", fr)
	m.fr = fr.parent
	m.pc = fr.retPC
}

// call pops the arguments of f and enters the first clause of its predicate.
func (m *Machine) call(module, f ConstID, parent *Frame, retPC, depth int) error {
	fn, ok := m.consts.FunctorOf(f)
	if !ok {
		panic(internalErrorf("call of non-functor %d", f))
	}
	regs := make([]Word, fn.Arity)
	copy(regs, m.args[len(m.args)-fn.Arity:])
	m.args = m.args[:len(m.args)-fn.Arity]

	p, mod, ok := m.resolve(module, f)
	if !ok || (len(p.Clauses) == 0 && !p.Dynamic) {
		return m.unknownProcedure(f)
	}
	clauses := p.Clauses
	if len(clauses) == 0 {
		return errFail
	}
	d := len(m.cps)
	if len(clauses) > 1 {
		cp := m.pushChoicepoint(cpClause, retPC)
		cp.fr = parent
		cp.regs = regs
		cp.clauses = clauses
		cp.next = 1
		cp.module = mod
		cp.depth = depth
	}
	m.enter(clauses[0], parent, retPC, depth, mod, regs, d)
	return nil
}

func (m *Machine) enter(c *Clause, parent *Frame, retPC, depth int, module ConstID, regs []Word, cp int) {
	m.fr = &Frame{
		parent: parent,
		depth:  depth,
		clause: c,
		module: module,
		retPC:  retPC,
		cp:     cp,
		slots:  make([]Word, c.Slots),
	}
	m.pc = 0
	m.regs = regs
	m.cursors = append(m.cursors[:0], cursor{reg: true})
	m.trace("call", m.fr)
}

func (m *Machine) unknownProcedure(f ConstID) error {
	switch m.unknown {
	case unknownError:
		return m.existenceErrorProcedure(f)
	case unknownWarning:
		m.log.WithField("procedure", m.consts.FunctorString(f)).Warn("unknown procedure")
		fallthrough
	default:
		return errFail
	}
}

// callGoal calls goal extended with extra arguments. Control constructs are compiled into a temporary clause.
func (m *Machine) callGoal(n int, module ConstID, parent *Frame, retPC, depth int, goal Word, extra ...Word) error {
	goal = m.deref(goal)
	for m.isCompound(goal, m.functor.colon) {
		mod := m.deref(m.heap[goal.Index()+1])
		switch {
		case mod.Tag() == TagVariable:
			return m.InstantiationError()
		case mod.Tag() != TagConstant || m.consts.Kind(mod.ConstID()) != KindAtom:
			return m.TypeError(ValidTypeAtom, mod)
		}
		module = mod.ConstID()
		goal = m.deref(m.heap[goal.Index()+2])
	}
	switch goal.Tag() {
	case TagVariable:
		return m.InstantiationError()
	case TagCompound:
	case TagConstant:
		if m.consts.Kind(goal.ConstID()) != KindAtom {
			return m.TypeError(ValidTypeCallable, goal)
		}
	default:
		return m.TypeError(ValidTypeCallable, goal)
	}
	if n > 0 {
		name := goal.ConstID()
		args := extra
		if goal.Tag() == TagCompound {
			name = m.functorOf(goal).Name
			args = append(append([]Word(nil), m.argsOf(goal)...), extra...)
		}
		goal = m.newCompound(m.consts.Functor(name, len(args)), args...)
	}

	f, _ := m.functorID(goal)
	if !m.control[f] {
		m.args = append(m.args, m.argsOf(goal)...)
		return m.call(module, f, parent, retPC, depth)
	}
	c, vars, err := m.compileCall(goal, module)
	if err != nil {
		return err
	}
	m.enter(c, parent, retPC, depth, module, vars, len(m.cps))
	return nil
}

func (m *Machine) backtrack() bool {
	for len(m.cps) > m.base {
		top := len(m.cps) - 1
		cp := &m.cps[top]
		m.undoTrail(cp.trailMark)
		m.heap = m.heap[:cp.heapMark]
		m.args = m.args[:cp.argsMark]
		m.cursors = m.cursors[:0]
		m.regs = nil
		switch cp.kind {
		case cpRetry:
			m.fr, m.pc = cp.fr, cp.pc
			m.cps = m.cps[:top]
			m.trace("redo", m.fr)
			return true
		case cpClause:
			c := cp.clauses[cp.next]
			cp.next++
			parent, retPC, depth, module, regs := cp.fr, cp.pc, cp.depth, cp.module, cp.regs
			if cp.next == len(cp.clauses) {
				m.cps = m.cps[:top]
			}
			m.enter(c, parent, retPC, depth, module, regs, top)
			return true
		case cpForeign:
			m.fr, m.pc = cp.fr, cp.pc
			m.regs = cp.regs
			cp.ctl.Redo = true
			m.redo = cp.ctl
			return true
		case cpCleanup:
			m.schedule(cp.goal, cp.fr.module)
		case cpBarrier:
			return false
		}
		m.cps = m.cps[:top]
	}
	return false
}

// cutTo discards the choicepoints at depth and above. Cleanup goals of discarded choicepoints are scheduled.
func (m *Machine) cutTo(depth int) {
	if depth < m.base {
		panic(internalErrorf("cut below the base %d < %d", depth, m.base))
	}
	for i := len(m.cps) - 1; i >= depth; i-- {
		cp := &m.cps[i]
		switch cp.kind {
		case cpCleanup:
			m.schedule(cp.goal, cp.fr.module)
		case cpBarrier:
			panic(internalErrorf("cut through a barrier at %d", i))
		}
	}
	if depth < len(m.cps) {
		m.cps = m.cps[:depth]
	}
}

// throw unwinds to the innermost open catch/3 whose catcher unifies with the ball.
func (m *Machine) throw(ball *Record) bool {
	for len(m.cps) > m.base {
		top := len(m.cps) - 1
		cp := &m.cps[top]
		m.undoTrail(cp.trailMark)
		m.heap = m.heap[:cp.heapMark]
		m.args = m.args[:cp.argsMark]
		switch cp.kind {
		case cpCleanup:
			m.schedule(cp.goal, cp.fr.module)
		case cpCatch:
			if cp.closed {
				break
			}
			fr, slot, pc := cp.fr, cp.slot, cp.pc
			if m.unify(fr.slots[slot+1], m.Materialize(ball)) {
				m.cps = m.cps[:top]
				m.fr, m.pc = fr, pc
				m.cursors = m.cursors[:0]
				m.regs = nil
				m.trace("catch", fr)
				return true
			}
			m.undoTrail(cp.trailMark)
			m.heap = m.heap[:cp.heapMark]
		case cpBarrier:
			return false
		}
		m.cps = m.cps[:top]
	}
	return false
}

type cleanup struct {
	goal   *Record
	module ConstID
}

func (m *Machine) schedule(goal Word, module ConstID) {
	m.pending = append(m.pending, cleanup{goal: m.Copy(goal), module: module})
}

// runCleanups runs scheduled cleanup goals once each. Their failures and errors are logged and ignored.
func (m *Machine) runCleanups() {
	for len(m.pending) > 0 {
		pending := m.pending
		m.pending = nil
		for _, c := range pending {
			goal := m.Materialize(c.goal)
			c.goal.Free()
			ok := false
			err := m.solve(goal, c.module, func() bool {
				ok = true
				return false
			})
			if err != nil || !ok {
				m.log.WithError(err).WithField("ok", ok).Debug("cleanup")
			}
		}
	}
}

// solve runs goal in a nested context and calls yield for each solution until it returns false.
// Bindings and heap cells of the nested run are discarded afterwards.
func (m *Machine) solve(goal Word, module ConstID, yield func() bool) error {
	var (
		fr       = m.fr
		pc       = m.pc
		args     = m.args
		regs     = m.regs
		cursors  = append([]cursor(nil), m.cursors...)
		base     = m.base
		redo     = m.redo
		resuming = m.resuming
	)
	d := m.pushBarrier()
	m.base = d + 1
	m.nested++
	m.fr, m.redo, m.resuming = nil, nil, false
	m.cursors = nil

	status, err := m.run(m.callGoal(0, module, nil, 0, 0, goal))
loop:
	for {
		switch status {
		case StatusSuccess:
			yield()
			break loop
		case StatusSuccessWithChoices:
			if !yield() {
				break loop
			}
			status, err = m.run(errFail)
		case StatusYield:
			err = m.SystemError(errors.New("yield in a nested call"))
			break loop
		default:
			break loop
		}
	}

	m.cutTo(d + 1)
	m.undoTrail(m.cps[d].trailMark)
	m.heap = m.heap[:m.cps[d].heapMark]
	m.cps = m.cps[:d]
	m.nested--
	m.fr, m.pc, m.args, m.regs, m.cursors, m.base, m.redo, m.resuming = fr, pc, args, regs, cursors, base, redo, resuming
	if status == StatusFail {
		err = nil
	}
	return err
}

func (m *Machine) trace(port string, fr *Frame) {
	if !m.cfg.Debug || fr == nil {
		return
	}
	m.log.WithFields(logrus.Fields{
		"port":      port,
		"depth":     fr.depth,
		"predicate": m.consts.FunctorString(fr.clause.Functor),
	}).Debug("trace")
}
