package prolog

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ichiban/plvm/engine"
)

var (
	errClosed    = errors.New("solutions are closed")
	errNoCurrent = errors.New("no current solution")
	errScan      = errors.New("can't scan")
)

// Solutions is the result of a query. Everytime the Next method is called, it searches for the next solution.
// By calling the Scan method, you can retrieve the content of the solution.
// Solutions are valid until the next query or consult on the same interpreter.
type Solutions struct {
	i    *Interpreter
	goal int
	vars []solutionVar

	started bool
	closed  bool
	status  engine.Status
	err     error
}

type solutionVar struct {
	name string
	pin  int
}

// Next prepares the next solution for reading with the Scan method. It returns true if it finds another solution,
// or false if there's no further solutions or if there's an error.
func (s *Solutions) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	m := s.i.m

	var (
		st  engine.Status
		err error
	)
	switch {
	case !s.started:
		s.started = true
		st, err = m.Execute(m.Pinned(s.goal))
	case s.status == engine.StatusSuccessWithChoices:
		st, err = m.Next()
	default:
		s.status = engine.StatusFail
		return false
	}
	for st == engine.StatusYield {
		if h := s.i.halted; h != nil {
			s.i.halted = nil
			m.Cut()
			s.status, s.err = engine.StatusFail, h
			return false
		}
		m.Logger().Debug("resume after yield")
		st, err = m.Resume()
	}

	s.status = st
	switch st {
	case engine.StatusSuccess, engine.StatusSuccessWithChoices:
		return true
	case engine.StatusError:
		s.err = err
	}
	return false
}

// Close closes the Solutions and terminates the search for other solutions.
func (s *Solutions) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.status == engine.StatusSuccessWithChoices {
		s.i.m.Cut()
	}
	if s.i.current == s {
		s.i.current = nil
	}
	return nil
}

// Err returns the error if exists.
func (s *Solutions) Err() error {
	return s.err
}

// Vars returns variable names.
func (s *Solutions) Vars() []string {
	ns := make([]string, len(s.vars))
	for i, v := range s.vars {
		ns[i] = v.name
	}
	return ns
}

// Scan copies the variable values of the current solution into the specified map or struct.
// Supported destinations are maps with string keys and pointers to structs. A struct field is bound to the variable
// named by its `prolog` tag or, without the tag, to the variable of the field name.
func (s *Solutions) Scan(dest any) error {
	if s.closed {
		return errClosed
	}
	if s.status != engine.StatusSuccess && s.status != engine.StatusSuccessWithChoices {
		return errNoCurrent
	}
	m := s.i.m
	ws := make([]engine.Word, len(s.vars))
	for i, v := range s.vars {
		ws[i] = m.Deref(m.Pinned(v.pin))
	}
	return newScanner(m, s.Vars(), ws).scan(dest)
}

// current returns a local copy of the current values as a list.
func (s *Solutions) current() *engine.Record {
	m := s.i.m
	ws := make([]engine.Word, len(s.vars))
	for i, v := range s.vars {
		ws[i] = m.Pinned(v.pin)
	}
	return m.Copy(m.NewList(ws...))
}

type scanner struct {
	m        *engine.Machine
	names    []string
	words    []engine.Word
	varNames map[engine.Word]string
}

func newScanner(m *engine.Machine, names []string, words []engine.Word) *scanner {
	sc := scanner{m: m, names: names, words: words, varNames: map[engine.Word]string{}}
	for i, w := range words {
		if m.Tag(w) == engine.TagVariable {
			if _, ok := sc.varNames[m.Deref(w)]; !ok {
				sc.varNames[m.Deref(w)] = names[i]
			}
		}
	}
	return &sc
}

var (
	wordType   = reflect.TypeOf(engine.Word(0))
	bigIntType = reflect.TypeOf((*big.Int)(nil))
)

func (sc *scanner) scan(dest any) error {
	o := reflect.ValueOf(dest)
	switch o.Kind() {
	case reflect.Map:
		t := o.Type()
		if t.Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key %s", errScan, t.Key())
		}
		for i, n := range sc.names {
			v, err := sc.value(sc.words[i], t.Elem())
			if err != nil {
				return fmt.Errorf("%s: %w", n, err)
			}
			o.SetMapIndex(reflect.ValueOf(n).Convert(t.Key()), v)
		}
		return nil
	case reflect.Pointer:
		e := o.Elem()
		if e.Kind() != reflect.Struct {
			return fmt.Errorf("%w: %s", errScan, o.Type())
		}
		t := e.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, ok := f.Tag.Lookup("prolog")
			if !ok {
				name = f.Name
			}
			w, ok := sc.lookup(name)
			if !ok || !f.IsExported() {
				continue
			}
			v, err := sc.value(w, f.Type)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			e.Field(i).Set(v)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", errScan, o.Kind())
	}
}

func (sc *scanner) lookup(name string) (engine.Word, bool) {
	for i, n := range sc.names {
		if n == name {
			return sc.words[i], true
		}
	}
	return 0, false
}

func (sc *scanner) value(w engine.Word, t reflect.Type) (reflect.Value, error) {
	m := sc.m
	w = m.Deref(w)
	switch t {
	case wordType:
		return reflect.ValueOf(w), nil
	case bigIntType:
		if n, ok := m.BigInteger(w); ok {
			return reflect.ValueOf(n), nil
		}
		return reflect.Value{}, sc.mismatch(w, t)
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		if s, ok := m.Atom(w); ok {
			v.SetString(s)
			return v, nil
		}
		v.SetString(sc.format(w))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := m.Integer(w)
		if !ok || v.OverflowInt(n) {
			return reflect.Value{}, sc.mismatch(w, t)
		}
		v.SetInt(n)
	case reflect.Float32, reflect.Float64:
		if f, ok := m.Float(w); ok {
			v.SetFloat(f)
			break
		}
		n, ok := m.Integer(w)
		if !ok {
			return reflect.Value{}, sc.mismatch(w, t)
		}
		v.SetFloat(float64(n))
	case reflect.Bool:
		s, _ := m.Atom(w)
		if s != "true" && s != "false" {
			return reflect.Value{}, sc.mismatch(w, t)
		}
		v.SetBool(s == "true")
	case reflect.Slice:
		es, ok := sc.list(w)
		if !ok {
			return reflect.Value{}, sc.mismatch(w, t)
		}
		v = reflect.MakeSlice(t, len(es), len(es))
		for i, e := range es {
			ev, err := sc.value(e, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			v.Index(i).Set(ev)
		}
	case reflect.Interface:
		if g := sc.goValue(w); g != nil {
			v.Set(reflect.ValueOf(g))
		}
	default:
		return reflect.Value{}, sc.mismatch(w, t)
	}
	return v, nil
}

// goValue converts w to int64, *big.Int, float64, string, []any or nil for a variable.
// Other terms become their quoted text.
func (sc *scanner) goValue(w engine.Word) any {
	m := sc.m
	if m.Tag(w) == engine.TagVariable {
		return nil
	}
	if n, ok := m.Integer(w); ok {
		return n
	}
	if n, ok := m.BigInteger(w); ok {
		return n
	}
	if f, ok := m.Float(w); ok {
		return f
	}
	if s, ok := m.Atom(w); ok && s != "[]" {
		return s
	}
	if es, ok := sc.list(w); ok {
		vs := make([]any, len(es))
		for i, e := range es {
			vs[i] = sc.goValue(e)
		}
		return vs
	}
	return sc.format(w)
}

func (sc *scanner) list(w engine.Word) ([]engine.Word, bool) {
	m := sc.m
	var es []engine.Word
	for {
		if s, ok := m.Atom(w); ok && s == "[]" {
			return es, true
		}
		if name, arity, ok := m.Functor(w); !ok || name != "." || arity != 2 {
			return nil, false
		}
		e, _ := m.Arg(w, 1)
		es = append(es, e)
		w, _ = m.Arg(w, 2)
	}
}

func (sc *scanner) format(w engine.Word) string {
	f := sc.m.Formatter(w)
	f.Quoted = true
	f.NumberVars = true
	f.VariableName = sc.varNames
	return f.String()
}

func (sc *scanner) mismatch(w engine.Word, t reflect.Type) error {
	return fmt.Errorf("%w: %s to %s", errScan, sc.format(w), t)
}
