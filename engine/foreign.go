package engine

// DetFunc is a deterministic foreign predicate. It returns false to fail.
type DetFunc func(m *Machine, args []Word) (bool, error)

// NondetFunc is a nondeterministic foreign predicate. It calls c.Retry to be called again on backtracking.
type NondetFunc func(m *Machine, args []Word, c *Control) (bool, error)

// Control is the state of a nondeterministic foreign predicate across redos.
// State must not hold heap words; keep terms as records.
type Control struct {
	// Redo is true when the call is a retry on backtracking.
	Redo bool
	// Resumed is true when the call is repeated after the predicate returned ErrYield.
	Resumed bool
	State   any

	retry bool
}

// Retry asks to be called again with state on backtracking.
func (c *Control) Retry(state any) {
	c.State = state
	c.retry = true
}

type foreign struct {
	name   string
	det    DetFunc
	nondet NondetFunc
}

// Continuation describes a machine suspended by ErrYield.
type Continuation struct {
	PC           int
	Depth        int
	Predicate    string
	Choicepoints int
	TrailMark    int

	ctl *Control
}

// RegisterDet installs a deterministic foreign predicate module:name/arity.
func (m *Machine) RegisterDet(module, name string, arity int, f DetFunc) {
	m.register(module, name, arity, foreign{det: f})
}

// RegisterNondet installs a nondeterministic foreign predicate module:name/arity.
func (m *Machine) RegisterNondet(module, name string, arity int, f NondetFunc) {
	m.register(module, name, arity, foreign{nondet: f})
}

func (m *Machine) register(module, name string, arity int, f foreign) {
	fn := m.consts.Functor(m.consts.Atom(name), arity)
	f.name = m.consts.FunctorString(fn)
	k := len(m.foreign)
	m.foreign = append(m.foreign, f)

	b := newBuilder()
	b.emitConst(opForeign, External(k))
	b.emit(opExit)
	code, consts := b.finish()
	key := PredicateKey{Module: m.consts.Atom(module), Functor: fn}
	p, ok := m.db.Lookup(key)
	if !ok {
		p = &Predicate{}
		m.db.Install(key, p)
	}
	p.Clauses = []*Clause{{Functor: fn, Code: code, Consts: consts}}
	p.Foreign = true
}

// Resuming reports whether the running foreign predicate is called again after ErrYield.
func (m *Machine) Resuming() bool {
	return m.resuming
}

// Continuation returns the suspension point of a yielded machine.
func (m *Machine) Continuation() (*Continuation, bool) {
	if m.status != StatusYield || m.cont == nil {
		return nil, false
	}
	return m.cont, true
}

func (m *Machine) callForeign(k, pc int) error {
	f := m.foreign[k]
	m.cursors = m.cursors[:0]
	args := m.regs
	defer func() {
		m.resuming = false
	}()

	if f.det != nil {
		m.redo = nil
		ok, err := f.det(m, args)
		switch {
		case err == ErrYield:
			m.suspend(pc, nil)
			return err
		case err != nil:
			return err
		case !ok:
			return errFail
		}
		return nil
	}

	ctl := m.redo
	m.redo = nil
	var d int
	if ctl == nil {
		ctl = &Control{}
		d = len(m.cps)
		cp := m.pushChoicepoint(cpForeign, pc)
		cp.regs = args
		cp.ctl = ctl
	} else {
		d = len(m.cps) - 1
		if d < 0 || m.cps[d].ctl != ctl {
			panic(internalErrorf("redo of %s without its choicepoint", f.name))
		}
	}

	ctl.retry = false
	ok, err := f.nondet(m, args, ctl)
	if err == ErrYield {
		m.suspend(pc, ctl)
		return err
	}
	ctl.Resumed = false
	if err != nil || !ok || !ctl.retry {
		if d == len(m.cps)-1 {
			m.cps = m.cps[:d]
		}
	}
	switch {
	case err != nil:
		return err
	case !ok:
		return errFail
	}
	return nil
}

func (m *Machine) suspend(pc int, ctl *Control) {
	m.pc = pc
	m.cont = &Continuation{
		PC:           pc,
		Depth:        m.fr.depth,
		Predicate:    m.consts.FunctorString(m.fr.clause.Functor),
		Choicepoints: len(m.cps),
		TrailMark:    len(m.trail),
		ctl:          ctl,
	}
}
