package prolog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func TestWrite(t *testing.T) {
	tests := []struct {
		query  string
		output string
		err    string
	}{
		{query: `write('hello world').`, output: `hello world`},
		{query: `print('hello world').`, output: `'hello world'`},
		{query: `writeq(['A', b, "c", 'don''t']).`, output: `['A',b,[99],'don\'t']`},
		{query: `writeq(- (1)).`, output: `- (1)`},
		{query: `writeq('$VAR'(1)).`, output: `B`},
		{query: `write_canonical(f('B', 1+2)).`, output: `f('B',+(1,2))`},
		{query: `write_canonical('$VAR'(1)).`, output: `'$VAR'(1)`},
		{query: `write_term(f('A', 1+2), []).`, output: `f(A,1+2)`},
		{query: `write_term(f('A', 1+2), [quoted(true), ignore_ops(true)]).`, output: `f('A',+(1,2))`},
		{query: `write_term(f('$VAR'(0)), [numbervars(true)]).`, output: `f(A)`},
		{query: `write_term(f(f(f(a))), [max_depth(1)]).`, output: `f(f(...))`},
		{query: `write_term(a, [color(true)]).`, err: `domain_error(write_option,color(true))`},
		{query: `write_term(a, [quoted(maybe)]).`, err: `domain_error(write_option,quoted(maybe))`},
		{query: `write_term(a, [_]).`, err: `instantiation_error`},
		{query: `write_term(a, foo).`, err: `type_error(list,foo)`},
		{query: `write(a), nl, tab(2 + 1), write(b).`, output: "a\n   b"},
		{query: `tab(a).`, err: `type_error(evaluable,a/0)`},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			i, out := newInterpreter(t)
			err := i.QuerySolution(tt.query).Err()
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.output, out.String())
		})
	}
}

func TestWrite_error(t *testing.T) {
	var w mockWriter
	w.On("Write", mock.Anything).Return(0, errors.New("disk full"))
	defer w.AssertExpectations(t)

	i, _ := newInterpreter(t)
	i.Out = &w

	for _, q := range []string{`write(a).`, `nl.`, `tab(1).`, `write_term(a, []).`} {
		t.Run(q, func(t *testing.T) {
			err := i.QuerySolution(q).Err()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "system_error('disk full')")
		})
	}
}

func TestTermToAtom(t *testing.T) {
	i, _ := newInterpreter(t)

	t.Run("term to atom", func(t *testing.T) {
		var s struct {
			A string
		}
		assert.NoError(t, i.QuerySolution(`term_to_atom(f(X, 'b c', [1]), A).`).Scan(&s))
		assert.Equal(t, `f(_1,'b c',[1])`, normalizeVars(s.A))
	})

	t.Run("atom to term", func(t *testing.T) {
		var s struct {
			T string
		}
		assert.NoError(t, i.QuerySolution(`term_to_atom(T, 'foo(bar, Baz)'), T = foo(bar, qux).`).Scan(&s))
		assert.Equal(t, `foo(bar,qux)`, s.T)
	})

	t.Run("without full stop", func(t *testing.T) {
		assert.NoError(t, i.QuerySolution(`term_to_atom(T, 'a + b'), T == a + b.`).Err())
		assert.NoError(t, i.QuerySolution(`term_to_atom(T, 'a + b.'), T == a + b.`).Err())
	})

	t.Run("syntax error", func(t *testing.T) {
		err := i.QuerySolution(`term_to_atom(_, 'foo(').`).Err()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax_error")
	})

	t.Run("instantiation error", func(t *testing.T) {
		err := i.QuerySolution(`term_to_atom(_, _).`).Err()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instantiation_error")
	})
}

func TestAtomToTerm(t *testing.T) {
	i, _ := newInterpreter(t)

	var s struct {
		Bindings string
	}
	assert.NoError(t, i.QuerySolution(`atom_to_term('f(X, Y, X)', T, Bs), T = f(1, 2, Z), Bindings = Bs.`).Scan(&s))
	assert.Equal(t, `['X'=1,'Y'=2]`, s.Bindings)

	err := i.QuerySolution(`atom_to_term(1, T, Bs).`).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type_error(atom,1)")
}

func TestHalt(t *testing.T) {
	i, _ := newInterpreter(t)

	for _, tt := range []struct {
		query string
		err   string
	}{
		{query: `halt(_).`, err: "instantiation_error"},
		{query: `halt(a).`, err: "type_error(integer,a)"},
	} {
		t.Run(tt.query, func(t *testing.T) {
			err := i.QuerySolution(tt.query).Err()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}

	t.Run("caught", func(t *testing.T) {
		sols, err := i.Query(`catch(halt, _, true).`)
		require.NoError(t, err)
		assert.False(t, sols.Next())
		assert.Equal(t, &HaltError{Code: 0}, sols.Err())
		assert.Equal(t, "halt(0)", sols.Err().Error())
	})
}
