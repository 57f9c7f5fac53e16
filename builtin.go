package prolog

import (
	"fmt"
	"io"
	"strings"

	"github.com/ichiban/plvm/engine"
)

func (i *Interpreter) registerBuiltins() {
	m := i.m
	for _, b := range []struct {
		name  string
		arity int
		f     engine.DetFunc
	}{
		{"write", 1, i.write(engine.Formatter{NumberVars: true})},
		{"print", 1, i.write(engine.Formatter{Quoted: true, NumberVars: true})},
		{"writeq", 1, i.write(engine.Formatter{Quoted: true, NumberVars: true})},
		{"write_canonical", 1, i.write(engine.Formatter{Quoted: true, IgnoreOps: true})},
		{"write_term", 2, i.writeTerm},
		{"nl", 0, i.nl},
		{"tab", 1, i.tab},
		{"halt", 0, i.halt},
		{"halt", 1, i.halt},
		{"term_to_atom", 2, i.termToAtom},
		{"atom_to_term", 3, i.atomToTerm},
		{"$consult", 3, i.consult},
		{"$dcg_body", 4, dcgBody},
		{"$warn", 1, i.warn},
	} {
		m.RegisterDet("system", b.name, b.arity, b.f)
	}
}

func (i *Interpreter) write(opts engine.Formatter) engine.DetFunc {
	return func(m *engine.Machine, args []engine.Word) (bool, error) {
		f := m.Formatter(args[0])
		f.Quoted, f.IgnoreOps, f.NumberVars = opts.Quoted, opts.IgnoreOps, opts.NumberVars
		if _, err := f.WriteTo(i.Out); err != nil {
			return false, m.SystemError(err)
		}
		return true, nil
	}
}

func (i *Interpreter) writeTerm(m *engine.Machine, args []engine.Word) (bool, error) {
	f := m.Formatter(args[0])
	opts := args[1]
	for {
		if name, ok := m.Atom(opts); ok && name == "[]" {
			break
		}
		name, arity, ok := m.Functor(opts)
		switch {
		case m.Tag(opts) == engine.TagVariable:
			return false, m.InstantiationError()
		case !ok || name != "." || arity != 2:
			return false, m.TypeError(engine.ValidTypeList, opts)
		}
		opt, _ := m.Arg(opts, 1)
		if err := writeOption(m, f, opt); err != nil {
			return false, err
		}
		opts, _ = m.Arg(opts, 2)
	}
	if _, err := f.WriteTo(i.Out); err != nil {
		return false, m.SystemError(err)
	}
	return true, nil
}

func writeOption(m *engine.Machine, f *engine.Formatter, opt engine.Word) error {
	if m.Tag(opt) == engine.TagVariable {
		return m.InstantiationError()
	}
	name, arity, ok := m.Functor(opt)
	if !ok || arity != 1 {
		return m.DomainError(engine.ValidDomainWriteOption, opt)
	}
	v, _ := m.Arg(opt, 1)
	if m.Tag(v) == engine.TagVariable {
		return m.InstantiationError()
	}
	if name == "max_depth" {
		n, ok := m.Integer(v)
		if !ok {
			return m.DomainError(engine.ValidDomainWriteOption, opt)
		}
		f.MaxDepth = int(n)
		return nil
	}
	b, _ := m.Atom(v)
	if b != "true" && b != "false" {
		return m.DomainError(engine.ValidDomainWriteOption, opt)
	}
	switch name {
	case "quoted":
		f.Quoted = b == "true"
	case "ignore_ops":
		f.IgnoreOps = b == "true"
	case "numbervars":
		f.NumberVars = b == "true"
	default:
		return m.DomainError(engine.ValidDomainWriteOption, opt)
	}
	return nil
}

func (i *Interpreter) nl(m *engine.Machine, _ []engine.Word) (bool, error) {
	if _, err := io.WriteString(i.Out, "\n"); err != nil {
		return false, m.SystemError(err)
	}
	return true, nil
}

func (i *Interpreter) tab(m *engine.Machine, args []engine.Word) (bool, error) {
	v, err := m.Eval(args[0])
	if err != nil {
		return false, err
	}
	n, ok := m.Integer(v)
	if !ok {
		return false, m.TypeError(engine.ValidTypeInteger, v)
	}
	if _, err := io.WriteString(i.Out, strings.Repeat(" ", int(max(n, 0)))); err != nil {
		return false, m.SystemError(err)
	}
	return true, nil
}

// halt suspends the machine. The pending Solutions reports it as a *HaltError.
func (i *Interpreter) halt(m *engine.Machine, args []engine.Word) (bool, error) {
	code := int64(0)
	if len(args) == 1 {
		if m.Tag(args[0]) == engine.TagVariable {
			return false, m.InstantiationError()
		}
		n, ok := m.Integer(args[0])
		if !ok {
			return false, m.TypeError(engine.ValidTypeInteger, args[0])
		}
		code = n
	}
	i.halted = &HaltError{Code: int(code)}
	return false, engine.ErrYield
}

func (i *Interpreter) termToAtom(m *engine.Machine, args []engine.Word) (bool, error) {
	t, a := args[0], args[1]
	switch m.Tag(a) {
	case engine.TagVariable:
		if m.Tag(t) == engine.TagVariable {
			return false, m.InstantiationError()
		}
		f := m.Formatter(t)
		f.Quoted = true
		return m.Unify(a, m.NewAtom(f.String())), nil
	default:
		text, ok := m.Atom(a)
		if !ok {
			return false, m.TypeError(engine.ValidTypeAtom, a)
		}
		w, _, err := i.parseText(text)
		if err != nil {
			return false, err
		}
		return m.Unify(t, w), nil
	}
}

func (i *Interpreter) atomToTerm(m *engine.Machine, args []engine.Word) (bool, error) {
	if m.Tag(args[0]) == engine.TagVariable {
		return false, m.InstantiationError()
	}
	text, ok := m.Atom(args[0])
	if !ok {
		return false, m.TypeError(engine.ValidTypeAtom, args[0])
	}
	w, vars, err := i.parseText(text)
	if err != nil {
		return false, err
	}
	bindings := make([]engine.Word, len(vars))
	for j, v := range vars {
		bindings[j] = m.NewCompound("=", m.NewAtom(v.Name), v.Variable)
	}
	return m.Unify(args[1], w) && m.Unify(args[2], m.NewList(bindings...)), nil
}

// parseText reads a single term from text. The full stop is optional.
func (i *Interpreter) parseText(text string) (engine.Word, []ParsedVariable, error) {
	m := i.m
	if s := strings.TrimSpace(text); !strings.HasSuffix(s, ".") || strings.HasSuffix(s, "..") {
		text += " ."
	}
	p := NewParser(m, strings.NewReader(text))
	p.DoubleQuotes = i.DoubleQuotes
	w, err := p.Term()
	if err != nil {
		return 0, nil, m.SyntaxError(err)
	}
	return w, p.Vars, nil
}

func (i *Interpreter) warn(m *engine.Machine, args []engine.Word) (bool, error) {
	f := m.Formatter(args[0])
	f.Quoted = true
	m.Logger().WithField("goal", f.String()).Warn("directive")
	return true, nil
}

// HaltError is returned by Solutions when a goal called halt/0 or halt/1.
type HaltError struct {
	Code int
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("halt(%d)", e.Code)
}
