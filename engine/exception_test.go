package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachine_errors(t *testing.T) {
	m := newTestMachine(t, Config{})
	tm := newTerms(m)

	tests := []struct {
		title string
		err   *Exception
		want  string
	}{
		{title: "instantiation", err: m.InstantiationError(), want: `error(instantiation_error,`},
		{title: "type", err: m.TypeError(ValidTypeInteger, tm.a("a")), want: `error(type_error(integer,a),`},
		{title: "type of compound", err: m.TypeError(ValidTypeCallable, tm.c("f", tm.i(1))), want: `error(type_error(callable,f(1)),`},
		{title: "domain", err: m.DomainError(ValidDomainWriteOption, tm.c("color", tm.a("true"))), want: `error(domain_error(write_option,color(true)),`},
		{title: "existence", err: m.ExistenceError(ObjectTypeSourceSink, tm.a("x.pl")), want: `error(existence_error(source_sink,'x.pl'),`},
		{title: "procedure", err: m.existenceErrorProcedure(m.consts.Functor(m.consts.Atom("foo"), 2)), want: `error(existence_error(procedure,foo/2),`},
		{title: "permission", err: m.PermissionError(OperationModify, PermissionTypeStaticProcedure, tm.c("/", tm.a("write"), tm.i(1))), want: `error(permission_error(modify,static_procedure,write/1),`},
		{title: "representation", err: m.RepresentationError(FlagMaxArity), want: `error(representation_error(max_arity),`},
		{title: "evaluation", err: m.EvaluationError(ExceptionalValueZeroDivisor), want: `error(evaluation_error(zero_divisor),`},
		{title: "syntax", err: m.SyntaxError(errors.New("unexpected token")), want: `error(syntax_error('unexpected token'),`},
		{title: "resource", err: m.ResourceError("memory"), want: `error(resource_error(memory),`},
		{title: "system", err: m.SystemError(errors.New("boom")), want: `error(system_error(boom),`},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.err.Error(), tt.want), tt.err.Error())
		})
	}
}

func TestException_outlivesHeap(t *testing.T) {
	m := newTestMachine(t, Config{})
	e := m.TypeError(ValidTypeAtom, m.NewInteger(1))
	m.Reset()

	w := m.Materialize(e.Term())
	name, arity, ok := m.Functor(w)
	assert.True(t, ok)
	assert.Equal(t, "error", name)
	assert.Equal(t, 2, arity)

	var err error = e
	var x *Exception
	assert.True(t, errors.As(err, &x))
}

func TestValidType_String(t *testing.T) {
	assert.Equal(t, "atom", ValidTypeAtom.String())
	assert.Equal(t, "predicate_indicator", ValidTypePredicateIndicator.String())
	assert.Equal(t, "source_sink", ValidDomainSourceSink.String())
	assert.Equal(t, "zero_divisor", ExceptionalValueZeroDivisor.Error())
}
