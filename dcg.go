package prolog

import (
	"errors"

	"github.com/ichiban/plvm/engine"
)

// based on: https://www.complang.tuwien.ac.at/ulrich/iso-prolog/dcgs/dcgsdin150408.pdf

var errDCGNotApplicable = errors.New("not applicable")

type dcgTranslator struct {
	m *engine.Machine
}

// expandDCG translates a grammar rule Head --> Body into a clause. It returns errDCGNotApplicable for other terms.
func expandDCG(m *engine.Machine, term engine.Word) (engine.Word, error) {
	name, arity, ok := m.Functor(term)
	if !ok || name != "-->" || arity != 2 {
		return 0, errDCGNotApplicable
	}
	d := dcgTranslator{m: m}
	head, _ := m.Arg(term, 1)
	body, _ := m.Arg(term, 2)

	s0, s1, s := m.NewVariable(), m.NewVariable(), m.NewVariable()
	if name, arity, _ := m.Functor(head); name == "," && arity == 2 {
		nt, _ := m.Arg(head, 1)
		pushback, _ := m.Arg(head, 2)
		h, err := d.nonTerminal(nt, s0, s)
		if err != nil {
			return 0, err
		}
		goal1, err := d.body(body, s0, s1)
		if err != nil {
			return 0, err
		}
		goal2, err := d.terminals(pushback, s, s1)
		if err != nil {
			return 0, err
		}
		return m.NewCompound(":-", h, m.NewCompound(",", goal1, goal2)), nil
	}

	h, err := d.nonTerminal(head, s0, s)
	if err != nil {
		return 0, err
	}
	b, err := d.body(body, s0, s)
	if err != nil {
		return 0, err
	}
	return m.NewCompound(":-", h, b), nil
}

func (d dcgTranslator) nonTerminal(nt, list, rest engine.Word) (engine.Word, error) {
	m := d.m
	switch m.Tag(nt) {
	case engine.TagVariable:
		return 0, m.InstantiationError()
	case engine.TagCompound:
	default:
		if _, ok := m.Atom(nt); !ok {
			return 0, m.TypeError(engine.ValidTypeCallable, nt)
		}
	}
	name, arity, _ := m.Functor(nt)
	args := make([]engine.Word, 0, arity+2)
	for i := 1; i <= arity; i++ {
		a, _ := m.Arg(nt, i)
		args = append(args, a)
	}
	return m.NewCompound(name, append(args, list, rest)...), nil
}

func (d dcgTranslator) terminals(ts, list, rest engine.Word) (engine.Word, error) {
	m := d.m
	var elems []engine.Word
	for {
		if name, ok := m.Atom(ts); ok && name == "[]" {
			break
		}
		name, arity, ok := m.Functor(ts)
		if m.Tag(ts) == engine.TagVariable {
			return 0, m.InstantiationError()
		}
		if !ok || name != "." || arity != 2 {
			return 0, m.TypeError(engine.ValidTypeList, ts)
		}
		e, _ := m.Arg(ts, 1)
		elems = append(elems, e)
		ts, _ = m.Arg(ts, 2)
	}
	return m.NewCompound("=", list, m.NewPartialList(rest, elems...)), nil
}

func (d dcgTranslator) body(term, list, rest engine.Word) (engine.Word, error) {
	m := d.m
	if m.Tag(term) == engine.TagVariable {
		return m.NewCompound("phrase", term, list, rest), nil
	}
	t, err := d.controlBody(term, list, rest)
	if errors.Is(err, errDCGNotApplicable) {
		return d.nonTerminal(term, list, rest)
	}
	return t, err
}

func (d dcgTranslator) controlBody(term, list, rest engine.Word) (engine.Word, error) {
	m := d.m
	name, arity, ok := m.Functor(term)
	if !ok {
		return 0, errDCGNotApplicable
	}
	arg := func(i int) engine.Word {
		a, _ := m.Arg(term, i+1)
		return a
	}
	switch {
	case name == "[]" && arity == 0:
		return m.NewCompound("=", list, rest), nil
	case name == "." && arity == 2:
		return d.terminals(term, list, rest)
	case name == "," && arity == 2:
		v := m.NewVariable()
		first, err := d.body(arg(0), list, v)
		if err != nil {
			return 0, err
		}
		second, err := d.body(arg(1), v, rest)
		if err != nil {
			return 0, err
		}
		return m.NewCompound(",", first, second), nil
	case (name == ";" || name == "|") && arity == 2:
		body := d.body
		if n, a, _ := m.Functor(arg(0)); n == "->" && a == 2 && name == ";" {
			body = d.controlBody
		}
		either, err := body(arg(0), list, rest)
		if err != nil {
			return 0, err
		}
		or, err := d.body(arg(1), list, rest)
		if err != nil {
			return 0, err
		}
		return m.NewCompound(";", either, or), nil
	case name == "{}" && arity == 1:
		return m.NewCompound(",", arg(0), m.NewCompound("=", list, rest)), nil
	case name == "call" && arity >= 1:
		args := make([]engine.Word, 0, arity+2)
		for i := 0; i < arity; i++ {
			args = append(args, arg(i))
		}
		return m.NewCompound("call", append(args, list, rest)...), nil
	case name == "!" && arity == 0:
		return m.NewCompound(",", m.NewAtom("!"), m.NewCompound("=", list, rest)), nil
	case name == `\+` && arity == 1:
		g, err := d.body(arg(0), list, m.NewVariable())
		if err != nil {
			return 0, err
		}
		return m.NewCompound(",", m.NewCompound(`\+`, g), m.NewCompound("=", list, rest)), nil
	case name == "->" && arity == 2:
		v := m.NewVariable()
		cond, err := d.body(arg(0), list, v)
		if err != nil {
			return 0, err
		}
		then, err := d.body(arg(1), v, rest)
		if err != nil {
			return 0, err
		}
		return m.NewCompound("->", cond, then), nil
	default:
		return 0, errDCGNotApplicable
	}
}

// dcgBody is '$dcg_body'(+Body, ?S0, ?S, -Goal), the translation used by phrase/2,3.
func dcgBody(m *engine.Machine, args []engine.Word) (bool, error) {
	if m.Tag(args[0]) == engine.TagVariable {
		return false, m.InstantiationError()
	}
	g, err := dcgTranslator{m: m}.body(args[0], args[1], args[2])
	if err != nil {
		return false, err
	}
	return m.Unify(args[3], g), nil
}
