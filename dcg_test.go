package prolog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichiban/plvm/engine"
)

func TestExpandDCG(t *testing.T) {
	tests := []struct {
		rule   string
		clause string
		err    string
	}{
		{rule: `s --> [].`, clause: `s(_1,_2):-_1=_2`},
		{rule: `s --> [a], b.`, clause: `s(_1,_2):-_1=[a|_3],b(_3,_2)`},
		{rule: `s --> "ab".`, clause: `s(_1,_2):-_1=[97,98|_2]`},
		{rule: `s(X) --> {X = 1}, !.`, clause: `s(_1,_2,_3):-(_1=1,_2=_4),!,_4=_3`},
		{rule: `s --> a ; b.`, clause: `s(_1,_2):-a(_1,_2);b(_1,_2)`},
		{rule: `s --> a | b.`, clause: `s(_1,_2):-a(_1,_2);b(_1,_2)`},
		{rule: `s --> (a -> b ; c).`, clause: `s(_1,_2):-a(_1,_3)->b(_3,_2);c(_1,_2)`},
		{rule: `s --> \+ a.`, clause: `s(_1,_2):- \+a(_1,_3),_1=_2`},
		{rule: `s, [x] --> a.`, clause: `s(_1,_2):-a(_1,_3),_2=[x|_3]`},
		{rule: `s --> call(g, x).`, clause: `s(_1,_2):-call(g,x,_1,_2)`},
		{rule: `s --> X.`, clause: `s(_1,_2):-phrase(_3,_1,_2)`},
		{rule: `X --> a.`, err: "instantiation_error"},
		{rule: `1 --> a.`, err: "type_error(callable,1)"},
		{rule: `s --> [a|_].`, err: "instantiation_error"},
		{rule: `s --> [a|b].`, err: "type_error(list,b)"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			m := newMachine(t)
			p := NewParser(m, strings.NewReader(tt.rule))
			w, err := p.Term()
			require.NoError(t, err)

			c, err := expandDCG(m, w)
			if tt.err != "" {
				var e *engine.Exception
				require.True(t, errors.As(err, &e))
				assert.Contains(t, e.Error(), tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.clause, normalizeVars(writeq(m, c)))
		})
	}

	t.Run("not a grammar rule", func(t *testing.T) {
		m := newMachine(t)
		_, err := expandDCG(m, m.NewCompound(":-", m.NewAtom("a"), m.NewAtom("b")))
		assert.Equal(t, errDCGNotApplicable, err)
	})
}

func TestPhrase(t *testing.T) {
	i, _ := newInterpreter(t)
	require.NoError(t, i.Consult(`
digits([D|T]) --> digit(D), digits(T).
digits([D]) --> digit(D).
digit(D) --> [D], { D >= 0'0, D =< 0'9 }.

ab --> [].
ab --> [a], ab, [b].

look, [X] --> [X].
`))

	t.Run("phrase/2", func(t *testing.T) {
		assert.NoError(t, i.QuerySolution(`phrase(ab, [a, a, b, b]).`).Err())
		assert.Equal(t, ErrNoSolutions, i.QuerySolution(`phrase(ab, [a, b, b]).`).Err())
	})

	t.Run("phrase/3", func(t *testing.T) {
		var s struct {
			Ds   string
			Rest string
		}
		sol := i.QuerySolution(`phrase(digits(Cs), ?, R), atom_codes(Ds, Cs), atom_codes(Rest, R).`, "42x")
		assert.NoError(t, sol.Scan(&s))
		assert.Equal(t, "42", s.Ds)
		assert.Equal(t, "x", s.Rest)
	})

	t.Run("body", func(t *testing.T) {
		var s struct {
			R []string
		}
		assert.NoError(t, i.QuerySolution(`phrase(([a], [b]), [a, b, c], R).`).Scan(&s))
		assert.Equal(t, []string{"c"}, s.R)
	})

	t.Run("pushback", func(t *testing.T) {
		var s struct {
			R []string
		}
		assert.NoError(t, i.QuerySolution(`phrase(look, [p, q], R).`).Scan(&s))
		assert.Equal(t, []string{"p", "q"}, s.R)
	})

	t.Run("variable body", func(t *testing.T) {
		err := i.QuerySolution(`phrase(_, [a]).`).Err()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instantiation_error")
	})
}
