package prolog

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ichiban/plvm/engine"
)

//go:embed libraries
var libraries embed.FS

const prelude = "libraries/prelude.pl"

// Interpreter is a Prolog interpreter on top of an abstract machine.
type Interpreter struct {
	m *engine.Machine

	// Out receives the output of write/1 and its family.
	Out io.Writer
	// FS is where consult/1 and ensure_loaded/1 look for files.
	FS fs.FS
	// DoubleQuotes decides the term for "text" in consulted text and queries.
	DoubleQuotes DoubleQuotes

	user    engine.ConstID
	system  engine.ConstID
	loaded  map[string]time.Time
	halted  *HaltError
	current *Solutions
}

// New creates a new Prolog interpreter with the builtin predicates and the prelude library.
func New(cfg Config) (*Interpreter, error) {
	m, err := engine.NewMachine(engine.NewModules(), cfg.Engine)
	if err != nil {
		return nil, err
	}
	dq, err := ParseDoubleQuotes(cfg.doubleQuotes())
	if err != nil {
		return nil, err
	}
	i := Interpreter{
		m:            m,
		Out:          os.Stdout,
		DoubleQuotes: dq,
		FS: Sources{
			Stamped{FS: libraries, At: time.Now()},
			OS{},
		},
		user:   m.Consts().Atom("user"),
		system: m.Consts().Atom("system"),
		loaded: map[string]time.Time{},
	}
	i.registerBuiltins()
	var errs firstError
	if _, err := i.load(i.system, prelude, false, func(err error) {
		errs.report(m, err)
	}); err != nil {
		return nil, fmt.Errorf("prelude: %w", err)
	}
	if errs.err != nil {
		return nil, fmt.Errorf("prelude: %w", errs.err)
	}
	for _, l := range cfg.Libraries {
		if err := i.ConsultFile(l); err != nil {
			return nil, fmt.Errorf("%s: %w", l, err)
		}
	}
	return &i, nil
}

// Machine returns the underlying abstract machine.
func (i *Interpreter) Machine() *engine.Machine {
	return i.m
}

// Register installs a deterministic Go predicate user:name/arity.
func (i *Interpreter) Register(name string, arity int, f engine.DetFunc) {
	i.m.RegisterDet("user", name, arity, f)
}

// RegisterNondet installs a nondeterministic Go predicate user:name/arity.
func (i *Interpreter) RegisterNondet(name string, arity int, f engine.NondetFunc) {
	i.m.RegisterNondet("user", name, arity, f)
}

// Consult adds the clauses in text to the user module and runs its directives.
// A clause or directive in error is skipped with a warning and the rest is loaded. The first such error is returned.
func (i *Interpreter) Consult(text string) error {
	i.closeOpen()
	m := i.m

	p := NewParser(m, strings.NewReader(text))
	p.DoubleQuotes = i.DoubleQuotes

	var (
		errs  firstError
		inits []*engine.Record
	)
	for {
		m.Reset()
		t, err := p.Term()
		switch {
		case err == io.EOF:
			for _, r := range inits {
				if err := i.directive(m.Materialize(r)); err != nil {
					if h, ok := halt(err); ok {
						return h
					}
					errs.report(m, err)
				}
			}
			return errs.err
		case err != nil:
			errs.report(m, m.SyntaxError(err))
			p.Skip()
			continue
		}

		d, ok := directive(m, t)
		if !ok {
			if err := i.addClause(i.user, t); err != nil {
				errs.report(m, err)
			}
			continue
		}
		if g, ok := initialization(m, d); ok {
			inits = append(inits, m.Copy(g))
			continue
		}
		if err := i.directive(d); err != nil {
			if h, ok := halt(err); ok {
				return h
			}
			errs.report(m, err)
		}
	}
}

// ConsultFile consults the file name found in FS. Like Consult, it loads past errors and returns the first one.
func (i *Interpreter) ConsultFile(name string) error {
	i.closeOpen()
	m := i.m
	m.Reset()
	var errs firstError
	ds, err := i.load(i.user, name, false, func(err error) {
		errs.report(m, err)
	})
	if err != nil {
		return err
	}
	for _, d := range ds {
		if err := i.directive(m.Materialize(d)); err != nil {
			if h, ok := halt(err); ok {
				return h
			}
			errs.report(m, err)
		}
	}
	return errs.err
}

// firstError logs every reported error and keeps the first one.
type firstError struct {
	err error
}

func (e *firstError) report(m *engine.Machine, err error) {
	m.Logger().WithError(err).Warn("consult")
	if e.err == nil {
		e.err = err
	}
}

func halt(err error) (*HaltError, bool) {
	var h *HaltError
	return h, errors.As(err, &h)
}

func (i *Interpreter) directive(goal engine.Word) error {
	m := i.m
	s, err := m.Execute(goal)
	for s == engine.StatusYield {
		if h := i.halted; h != nil {
			i.halted = nil
			m.Cut()
			return h
		}
		s, err = m.Resume()
	}
	switch s {
	case engine.StatusSuccessWithChoices:
		m.Cut()
	case engine.StatusFail:
		f := m.Formatter(goal)
		f.Quoted = true
		m.Logger().WithField("goal", f.String()).Warn("directive failed")
	case engine.StatusError:
		return err
	}
	return nil
}

func (i *Interpreter) addClause(module engine.ConstID, t engine.Word) error {
	m := i.m
	switch c, err := expandDCG(m, t); {
	case err == nil:
		t = c
	case !errors.Is(err, errDCGNotApplicable):
		return err
	}
	return m.AddClause(module, t, false)
}

// directive returns D of :- D.
func directive(m *engine.Machine, t engine.Word) (engine.Word, bool) {
	if name, arity, ok := m.Functor(t); !ok || name != ":-" || arity != 1 {
		return 0, false
	}
	return m.Arg(t, 1)
}

// initialization returns G of initialization(G).
func initialization(m *engine.Machine, d engine.Word) (engine.Word, bool) {
	if name, arity, ok := m.Functor(d); !ok || name != "initialization" || arity != 1 {
		return 0, false
	}
	return m.Arg(d, 1)
}

// load adds the clauses of the file name to module and returns its directives in order, initialization goals last.
// If ifChanged, a file loaded before is skipped unless its modification time has changed.
// Syntax errors and clauses that can't be added are passed to report and skipped.
func (i *Interpreter) load(module engine.ConstID, name string, ifChanged bool, report func(error)) ([]*engine.Record, error) {
	m := i.m
	f, err := i.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, m.SystemError(err)
	}
	if t, ok := i.loaded[name]; ok && ifChanged && !fi.ModTime().After(t) {
		return nil, nil
	}
	i.loaded[name] = fi.ModTime()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, m.SystemError(err)
	}

	p := NewParser(m, strings.NewReader(string(b)))
	p.DoubleQuotes = i.DoubleQuotes
	var ds, inits []*engine.Record
	for {
		t, err := p.Term()
		switch {
		case err == io.EOF:
			return append(ds, inits...), nil
		case err != nil:
			report(m.SyntaxError(fmt.Errorf("%s: %w", name, err)))
			p.Skip()
			continue
		}

		d, ok := directive(m, t)
		if !ok {
			if err := i.addClause(module, t); err != nil {
				report(err)
			}
			continue
		}
		if g, ok := initialization(m, d); ok {
			inits = append(inits, m.Copy(g))
			continue
		}
		ds = append(ds, m.Copy(d))
	}
}

func (i *Interpreter) open(name string) (fs.File, error) {
	for _, n := range []string{name, name + ".pl"} {
		f, err := i.FS.Open(n)
		switch {
		case err == nil:
			return f, nil
		case errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return nil, i.m.SystemError(err)
		}
	}
	return nil, i.m.ExistenceError(engine.ObjectTypeSourceSink, i.m.NewAtom(name))
}

// consult is '$consult'(+File, +IfChanged, -Directives).
func (i *Interpreter) consult(m *engine.Machine, args []engine.Word) (bool, error) {
	if m.Tag(args[0]) == engine.TagVariable {
		return false, m.InstantiationError()
	}
	name, ok := m.Atom(args[0])
	if !ok {
		return false, m.DomainError(engine.ValidDomainSourceSink, args[0])
	}
	ifChanged, _ := m.Atom(args[1])
	ds, err := i.load(i.user, strings.TrimPrefix(name, "./"), ifChanged == "true", func(err error) {
		m.Logger().WithError(err).WithField("file", name).Warn("consult")
	})
	if err != nil {
		return false, err
	}
	ws := make([]engine.Word, len(ds))
	for j, d := range ds {
		ws[j] = m.Materialize(d)
	}
	return m.Unify(args[2], m.NewList(ws...)), nil
}

func (i *Interpreter) closeOpen() {
	if i.current != nil {
		_ = i.current.Close()
		i.current = nil
	}
}

// Query parses a query and returns *Solutions. Every occurrence of ? in the query is replaced by the next argument.
// An open Solutions of the interpreter is closed first.
func (i *Interpreter) Query(query string, args ...any) (*Solutions, error) {
	i.closeOpen()
	m := i.m
	m.Reset()

	p := NewParser(m, strings.NewReader(query))
	p.DoubleQuotes = i.DoubleQuotes
	if err := p.SetPlaceholder("?", args...); err != nil {
		return nil, err
	}
	t, err := p.Term()
	if err != nil {
		return nil, err
	}

	sols := Solutions{i: i, goal: m.Pin(t)}
	for _, v := range p.Vars {
		if strings.HasPrefix(v.Name, "_") {
			continue
		}
		sols.vars = append(sols.vars, solutionVar{name: v.Name, pin: m.Pin(v.Variable)})
	}
	i.current = &sols
	return &sols, nil
}

// ErrNoSolutions indicates there's no solutions for the query.
var ErrNoSolutions = errors.New("no solutions")

// QuerySolution executes a Prolog query for the first solution.
func (i *Interpreter) QuerySolution(query string, args ...any) *Solution {
	sols, err := i.Query(query, args...)
	if err != nil {
		return &Solution{err: err}
	}
	defer func() { _ = sols.Close() }()

	if !sols.Next() {
		if err := sols.Err(); err != nil {
			return &Solution{err: err}
		}
		return &Solution{err: ErrNoSolutions}
	}
	return &Solution{m: i.m, names: sols.Vars(), values: sols.current()}
}
