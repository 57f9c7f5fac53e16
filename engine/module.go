package engine

// PredicateKey identifies a predicate in a module.
type PredicateKey struct {
	Module  ConstID
	Functor ConstID
}

// Predicate is the clause chain of a procedure.
type Predicate struct {
	// Clauses are tried in order. The slice is replaced, never mutated in place, so choicepoints keep
	// a logical view of the clauses at call time.
	Clauses []*Clause
	// Meta is the meta-argument mode string, one byte per argument: 0-9, ':' or '^' mark module sensitive
	// arguments, anything else is a normal argument.
	Meta    string
	Dynamic bool
	Foreign bool
}

// Database is the module and predicate store consulted by the machine.
type Database interface {
	Lookup(key PredicateKey) (*Predicate, bool)
	Install(key PredicateKey, p *Predicate)
}

// Modules is an in-memory Database.
type Modules struct {
	preds map[PredicateKey]*Predicate
}

// NewModules returns an empty in-memory database.
func NewModules() *Modules {
	return &Modules{preds: map[PredicateKey]*Predicate{}}
}

// Lookup returns the predicate for key.
func (ms *Modules) Lookup(key PredicateKey) (*Predicate, bool) {
	p, ok := ms.preds[key]
	return p, ok
}

// Install replaces the predicate for key.
func (ms *Modules) Install(key PredicateKey, p *Predicate) {
	ms.preds[key] = p
}

// resolve looks the functor up in the module, then in user, then in system.
func (m *Machine) resolve(module, f ConstID) (*Predicate, ConstID, bool) {
	for i, mod := range [...]ConstID{module, m.atom.user, m.atom.system} {
		if i > 0 && mod == module {
			continue
		}
		if p, ok := m.db.Lookup(PredicateKey{Module: mod, Functor: f}); ok {
			return p, mod, true
		}
	}
	return nil, 0, false
}

// AddClause compiles the clause term and appends it to its predicate in module, or prepends it if front.
func (m *Machine) AddClause(module ConstID, term Word, front bool) error {
	return m.addClause(module, term, front, false)
}

func (m *Machine) addClause(module ConstID, term Word, front, dynamic bool) error {
	c, err := m.Compile(term, module)
	if err != nil {
		return err
	}
	if module != m.atom.system {
		if sp, ok := m.db.Lookup(PredicateKey{Module: m.atom.system, Functor: c.Functor}); ok && sp.Foreign {
			return m.PermissionError(OperationModify, PermissionTypeStaticProcedure, m.indicator(c.Functor))
		}
	}
	key := PredicateKey{Module: module, Functor: c.Functor}
	p, ok := m.db.Lookup(key)
	if !ok {
		p = &Predicate{}
		m.db.Install(key, p)
	}
	if p.Foreign {
		return m.PermissionError(OperationModify, PermissionTypeStaticProcedure, m.indicator(c.Functor))
	}
	p.Dynamic = p.Dynamic || dynamic
	c.Source = m.Copy(m.clauseTerm(term))
	cs := make([]*Clause, 0, len(p.Clauses)+1)
	if front {
		cs = append(cs, c)
		cs = append(cs, p.Clauses...)
	} else {
		cs = append(cs, p.Clauses...)
		cs = append(cs, c)
	}
	p.Clauses = cs
	return nil
}

// clauseTerm returns term in the H :- B form, a fact having the body true.
func (m *Machine) clauseTerm(term Word) Word {
	term = m.deref(term)
	if m.isCompound(term, m.functor.clause) {
		return term
	}
	return m.newCompound(m.functor.clause, term, Constant(m.atom.true))
}

// Declare marks a predicate dynamic and sets its meta-argument modes so that it exists without clauses.
func (m *Machine) Declare(module ConstID, name string, arity int, meta string, dynamic bool) {
	key := PredicateKey{Module: module, Functor: m.consts.Functor(m.consts.Atom(name), arity)}
	p, ok := m.db.Lookup(key)
	if !ok {
		p = &Predicate{}
		m.db.Install(key, p)
	}
	if meta != "" {
		p.Meta = meta
	}
	p.Dynamic = p.Dynamic || dynamic
}

// removeClause drops c from the predicate at key.
func (m *Machine) removeClause(key PredicateKey, c *Clause) bool {
	p, ok := m.db.Lookup(key)
	if !ok {
		return false
	}
	for i, x := range p.Clauses {
		if x == c {
			cs := make([]*Clause, 0, len(p.Clauses)-1)
			cs = append(cs, p.Clauses[:i]...)
			cs = append(cs, p.Clauses[i+1:]...)
			p.Clauses = cs
			return true
		}
	}
	return false
}

// indicator returns Name/Arity for a functor constant.
func (m *Machine) indicator(f ConstID) Word {
	fn, _ := m.consts.FunctorOf(f)
	return m.newCompound(m.functor.slash, Constant(fn.Name), m.NewInteger(int64(fn.Arity)))
}
