package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryTest runs goal on a fresh machine and collects the values of X.
type queryTest struct {
	title string
	goal  func(tm *terms) Word
	want  []string // nil means failure.
	err   string
}

func runQueries(t *testing.T, setup func(tm *terms) []Word, tests []queryTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			m := newTestMachine(t, Config{})
			if setup != nil {
				consult(t, m, setup(newTerms(m))...)
			}
			tm := newTerms(m)
			got, s, err := solutions(t, m, tt.goal(tm), tm.v("X"))
			if tt.err != "" {
				assert.Equal(t, StatusError, s)
				assert.Equal(t, tt.err, formal(t, m, err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltin_TypeChecks(t *testing.T) {
	m := newTestMachine(t, Config{})
	tm := newTerms(m)
	huge, _ := new(big.Int).SetString("100000000000000000000", 10)

	for _, tt := range []struct {
		pred string
		arg  Word
		ok   bool
	}{
		{pred: "var", arg: m.NewVariable(), ok: true},
		{pred: "var", arg: tm.a("a")},
		{pred: "nonvar", arg: tm.a("a"), ok: true},
		{pred: "atom", arg: tm.a("a"), ok: true},
		{pred: "atom", arg: tm.l(), ok: true},
		{pred: "atom", arg: tm.i(1)},
		{pred: "number", arg: m.NewFloat(1), ok: true},
		{pred: "number", arg: tm.a("1")},
		{pred: "integer", arg: m.NewBigInteger(huge), ok: true},
		{pred: "integer", arg: m.NewFloat(1)},
		{pred: "float", arg: m.NewFloat(1), ok: true},
		{pred: "float", arg: tm.i(1)},
		{pred: "atomic", arg: tm.i(1), ok: true},
		{pred: "atomic", arg: tm.c("f", tm.a("a"))},
		{pred: "compound", arg: tm.c("f", tm.a("a")), ok: true},
		{pred: "compound", arg: tm.a("f")},
		{pred: "callable", arg: tm.a("f"), ok: true},
		{pred: "callable", arg: tm.i(1)},
		{pred: "is_list", arg: tm.l(tm.i(1)), ok: true},
		{pred: "is_list", arg: m.NewPartialList(m.NewVariable(), tm.i(1))},
		{pred: "ground", arg: tm.c("f", tm.a("a")), ok: true},
		{pred: "ground", arg: tm.c("f", m.NewVariable())},
	} {
		t.Run(tt.pred, func(t *testing.T) {
			s, err := m.Execute(m.NewCompound(tt.pred, tt.arg))
			assert.NoError(t, err)
			if tt.ok {
				assert.Equal(t, StatusSuccess, s)
			} else {
				assert.Equal(t, StatusFail, s)
			}
		})
	}
}

func TestBuiltin_Terms(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "compare",
			goal:  func(tm *terms) Word { return tm.c("compare", tm.v("X"), tm.i(1), tm.a("a")) },
			want:  []string{"<"},
		},
		{
			title: "compare with a bad order",
			goal:  func(tm *terms) Word { return tm.c("compare", tm.a("foo"), tm.i(1), tm.i(2)) },
			err:   "domain_error(order,foo)",
		},
		{
			title: "standard order",
			goal:  func(tm *terms) Word { return tm.and(tm.c("@<", tm.i(1), tm.a("a")), tm.c("@>", tm.c("f", tm.a("a")), tm.a("z")), tm.c("=", tm.v("X"), tm.a("ok"))) },
			want:  []string{"ok"},
		},
		{
			title: "functor of a compound",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("functor", tm.c("f", tm.a("a"), tm.a("b")), tm.v("N"), tm.v("A")), tm.c("=", tm.v("X"), tm.c("/", tm.v("N"), tm.v("A"))))
			},
			want: []string{"f/2"},
		},
		{
			title: "functor of an atomic",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("functor", tm.i(1), tm.v("N"), tm.v("A")), tm.c("=", tm.v("X"), tm.c("/", tm.v("N"), tm.v("A"))))
			},
			want: []string{"1/0"},
		},
		{
			title: "functor builds",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("functor", tm.v("T"), tm.a("g"), tm.i(2)), tm.c("=", tm.v("T"), tm.c("g", tm.i(1), tm.i(2))), tm.c("=", tm.v("X"), tm.v("T")))
			},
			want: []string{"g(1,2)"},
		},
		{
			title: "functor with a negative arity",
			goal:  func(tm *terms) Word { return tm.c("functor", tm.v("T"), tm.a("foo"), tm.i(-1)) },
			err:   "domain_error(not_less_than_zero,-1)",
		},
		{
			title: "functor with a compound name",
			goal:  func(tm *terms) Word { return tm.c("functor", tm.v("T"), tm.c("f", tm.a("a")), tm.i(1)) },
			err:   "type_error(atomic,f(a))",
		},
		{
			title: "functor uninstantiated",
			goal:  func(tm *terms) Word { return tm.c("functor", tm.v("T"), tm.v("N"), tm.i(1)) },
			err:   "instantiation_error",
		},
		{
			title: "arg",
			goal:  func(tm *terms) Word { return tm.c("arg", tm.i(2), tm.c("f", tm.a("a"), tm.a("b")), tm.v("X")) },
			want:  []string{"b"},
		},
		{
			title: "arg enumerates",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("arg", tm.v("N"), tm.c("f", tm.a("a"), tm.a("b")), tm.v("A")), tm.c("=", tm.v("X"), tm.c("-", tm.v("N"), tm.v("A"))))
			},
			want: []string{"1-a", "2-b"},
		},
		{
			title: "arg of an atom",
			goal:  func(tm *terms) Word { return tm.c("arg", tm.i(1), tm.a("a"), tm.v("X")) },
			err:   "type_error(compound,a)",
		},
		{
			title: "univ decomposes",
			goal:  func(tm *terms) Word { return tm.c("=..", tm.c("f", tm.a("a"), tm.a("b")), tm.v("X")) },
			want:  []string{"[f,a,b]"},
		},
		{
			title: "univ composes",
			goal:  func(tm *terms) Word { return tm.c("=..", tm.v("X"), tm.l(tm.a("g"), tm.i(1))) },
			want:  []string{"g(1)"},
		},
		{
			title: "univ of an empty list",
			goal:  func(tm *terms) Word { return tm.c("=..", tm.v("X"), tm.l()) },
			err:   "domain_error(non_empty_list,[])",
		},
		{
			title: "copy_term keeps sharing",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("copy_term", tm.c("f", tm.v("A"), tm.v("A"), tm.v("B")), tm.c("f", tm.v("C"), tm.v("D"), tm.v("E"))),
					tm.c("==", tm.v("C"), tm.v("D")),
					tm.c(`\==`, tm.v("C"), tm.v("A")),
					tm.c("=", tm.v("X"), tm.a("ok")),
				)
			},
			want: []string{"ok"},
		},
		{
			title: "term_variables",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("term_variables", tm.c("f", tm.v("A"), tm.c("g", tm.v("B"), tm.v("A"))), tm.v("Vs")), tm.c("length", tm.v("Vs"), tm.v("X")))
			},
			want: []string{"2"},
		},
		{
			title: "unify_with_occurs_check",
			goal:  func(tm *terms) Word { return tm.c("unify_with_occurs_check", tm.v("A"), tm.c("f", tm.v("A"))) },
		},
		{
			title: "numbervars",
			goal:  func(tm *terms) Word { return tm.c("numbervars", tm.c("f", tm.v("A"), tm.v("B")), tm.i(0), tm.v("X")) },
			want:  []string{"2"},
		},
	})
}

func TestBuiltin_Arithmetic(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "is",
			goal:  func(tm *terms) Word { return tm.c("is", tm.v("X"), tm.c("+", tm.i(2), tm.c("*", tm.i(3), tm.i(4)))) },
			want:  []string{"14"},
		},
		{
			title: "comparison",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("<", tm.i(1), tm.i(2)), tm.c("=:=", tm.m.NewFloat(1), tm.i(1)), tm.c(">=", tm.i(2), tm.i(2)), tm.c("=", tm.v("X"), tm.a("ok")))
			},
			want: []string{"ok"},
		},
		{
			title: "comparison fails",
			goal:  func(tm *terms) Word { return tm.c(`=\=`, tm.i(1), tm.m.NewFloat(1)) },
		},
		{
			title: "comparison of an unbound",
			goal:  func(tm *terms) Word { return tm.c("<", tm.v("A"), tm.i(1)) },
			err:   "instantiation_error",
		},
		{
			title: "succ forward",
			goal:  func(tm *terms) Word { return tm.c("succ", tm.i(3), tm.v("X")) },
			want:  []string{"4"},
		},
		{
			title: "succ backward",
			goal:  func(tm *terms) Word { return tm.c("succ", tm.v("X"), tm.i(4)) },
			want:  []string{"3"},
		},
		{
			title: "succ of zero",
			goal:  func(tm *terms) Word { return tm.c("succ", tm.v("X"), tm.i(0)) },
		},
		{
			title: "succ of a negative",
			goal:  func(tm *terms) Word { return tm.c("succ", tm.v("X"), tm.i(-1)) },
			err:   "type_error(not_less_than_zero,-1)",
		},
		{
			title: "plus",
			goal:  func(tm *terms) Word { return tm.c("plus", tm.i(1), tm.v("X"), tm.i(5)) },
			want:  []string{"4"},
		},
		{
			title: "between",
			goal:  func(tm *terms) Word { return tm.c("between", tm.i(1), tm.i(3), tm.v("X")) },
			want:  []string{"1", "2", "3"},
		},
		{
			title: "between checks",
			goal:  func(tm *terms) Word { return tm.and(tm.c("between", tm.i(1), tm.i(3), tm.i(3)), tm.c("=", tm.v("X"), tm.a("yes"))) },
			want:  []string{"yes"},
		},
		{
			title: "between an empty range",
			goal:  func(tm *terms) Word { return tm.c("between", tm.i(3), tm.i(1), tm.v("X")) },
		},
	})
}

func TestBuiltin_Generators(t *testing.T) {
	m := newTestMachine(t, Config{})
	tm := newTerms(m)

	t.Run("between to infinity", func(t *testing.T) {
		x := tm.v("X")
		s, err := m.Execute(tm.c("between", tm.i(1), tm.a("inf"), x))
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccessWithChoices, s)
		s, err = m.Next()
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccessWithChoices, s)
		assert.Equal(t, "2", show(m, x))
		m.Cut()
	})

	t.Run("repeat", func(t *testing.T) {
		s, err := m.Execute(tm.a("repeat"))
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccessWithChoices, s)
		s, err = m.Next()
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccessWithChoices, s)
		m.Cut()
	})

	t.Run("length enumerates", func(t *testing.T) {
		l, n := tm.v("L"), tm.v("N")
		pl, pn := m.Pin(l), m.Pin(n)
		s, err := m.Execute(tm.c("length", l, n))
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccessWithChoices, s)
		assert.Equal(t, "[]", show(m, m.Pinned(pl)))

		s, err = m.Next()
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccessWithChoices, s)
		assert.Equal(t, "1", show(m, m.Pinned(pn)))
		assert.Regexp(t, `^\[_\d+\]$`, show(m, m.Pinned(pl)))
		m.Cut()
	})

	t.Run("length", func(t *testing.T) {
		x := tm.v("Len")
		s, err := m.Execute(tm.c("length", tm.l(tm.a("a"), tm.a("b")), x))
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccess, s)
		assert.Equal(t, "2", show(m, x))

		l := tm.v("Fresh")
		s, err = m.Execute(tm.c("length", l, tm.i(2)))
		assert.NoError(t, err)
		assert.Equal(t, StatusSuccess, s)
		assert.Regexp(t, `^\[_\d+,_\d+\]$`, show(m, l))

		_, err = m.Execute(tm.c("length", tm.v("Any"), tm.i(-1)))
		assert.Equal(t, "domain_error(not_less_than_zero,-1)", formal(t, m, err))
	})
}

func TestBuiltin_Sorting(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "msort",
			goal:  func(tm *terms) Word { return tm.c("msort", tm.l(tm.a("b"), tm.a("a"), tm.a("c"), tm.a("a")), tm.v("X")) },
			want:  []string{"[a,a,b,c]"},
		},
		{
			title: "sort",
			goal:  func(tm *terms) Word { return tm.c("sort", tm.l(tm.a("b"), tm.a("a"), tm.a("c"), tm.a("a")), tm.v("X")) },
			want:  []string{"[a,b,c]"},
		},
		{
			title: "sort/4 descending with duplicates",
			goal: func(tm *terms) Word {
				return tm.c("sort", tm.i(0), tm.a("@>="), tm.l(tm.i(1), tm.i(3), tm.i(2), tm.i(3)), tm.v("X"))
			},
			want: []string{"[3,3,2,1]"},
		},
		{
			title: "sort/4 on a key",
			goal: func(tm *terms) Word {
				return tm.c("sort", tm.i(1), tm.a("@<"), tm.l(tm.c("f", tm.i(2), tm.a("a")), tm.c("f", tm.i(1), tm.a("b")), tm.c("f", tm.i(2), tm.a("c"))), tm.v("X"))
			},
			want: []string{"[f(1,b),f(2,a)]"},
		},
		{
			title: "sort/4 with a bad order",
			goal:  func(tm *terms) Word { return tm.c("sort", tm.i(0), tm.a("<"), tm.l(), tm.v("X")) },
			err:   "domain_error(order,<)",
		},
		{
			title: "keysort is stable",
			goal: func(tm *terms) Word {
				return tm.c("keysort", tm.l(tm.c("-", tm.a("b"), tm.i(1)), tm.c("-", tm.a("a"), tm.i(2)), tm.c("-", tm.a("b"), tm.i(0))), tm.v("X"))
			},
			want: []string{"[a-2,b-1,b-0]"},
		},
		{
			title: "keysort of a non pair",
			goal:  func(tm *terms) Word { return tm.c("keysort", tm.l(tm.a("a")), tm.v("X")) },
			err:   "type_error(pair,a)",
		},
		{
			title: "sort of a partial list",
			goal:  func(tm *terms) Word { return tm.c("sort", tm.m.NewPartialList(tm.v("T"), tm.a("a")), tm.v("X")) },
			err:   "instantiation_error",
		},
		{
			title: "sort into a non list",
			goal:  func(tm *terms) Word { return tm.c("sort", tm.l(tm.a("a")), tm.a("b")) },
			err:   "type_error(list,b)",
		},
	})
}

func TestBuiltin_Database(t *testing.T) {
	facts := func(tm *terms) []Word {
		return []Word{
			tm.clause(tm.a("init"), tm.c("assertz", tm.c("p", tm.i(1))), tm.c("assertz", tm.c("p", tm.i(2)))),
		}
	}

	runQueries(t, facts, []queryTest{
		{
			title: "asserta and assertz",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("asserta", tm.c("p", tm.i(0))), tm.c("p", tm.v("X")))
			},
			want: []string{"0", "1", "2"},
		},
		{
			title: "assert a rule",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("assertz", tm.clause(tm.c("q", tm.v("A")), tm.c("p", tm.v("A")), tm.c(">", tm.v("A"), tm.i(1)))), tm.c("q", tm.v("X")))
			},
			want: []string{"2"},
		},
		{
			title: "retract",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("retract", tm.c("p", tm.i(1))), tm.c("p", tm.v("X")))
			},
			want: []string{"2"},
		},
		{
			title: "retract enumerates",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("retract", tm.c("p", tm.v("X"))))
			},
			want: []string{"1", "2"},
		},
		{
			title: "retractall keeps the predicate",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("retractall", tm.c("p", tm.v("_"))), tm.c("p", tm.v("X")))
			},
		},
		{
			title: "retractall declares",
			goal:  func(tm *terms) Word { return tm.and(tm.c("retractall", tm.c("fresh", tm.v("_"))), tm.c("fresh", tm.v("X"))) },
		},
		{
			title: "clause",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("clause", tm.c("p", tm.v("A")), tm.v("B")), tm.c("=", tm.v("X"), tm.c("-", tm.v("A"), tm.v("B"))))
			},
			want: []string{"1-true", "2-true"},
		},
		{
			title: "clause of a rule",
			goal:  func(tm *terms) Word { return tm.c("clause", tm.a("init"), tm.v("X")) },
			want:  []string{"assertz(p(1)),assertz(p(2))"},
		},
		{
			title: "logical update view",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.a("init"),
					tm.or(tm.and(tm.c("p", tm.v("_")), tm.c("assertz", tm.c("p", tm.i(9))), tm.a("fail")), tm.a("true")),
					tm.c("aggregate_all", tm.a("count"), tm.c("p", tm.v("_")), tm.v("X")),
				)
			},
			want: []string{"4"},
		},
		{
			title: "abolish",
			goal: func(tm *terms) Word {
				return tm.and(tm.a("init"), tm.c("abolish", tm.c("/", tm.a("p"), tm.i(1))), tm.c("p", tm.v("X")))
			},
			err: "existence_error(procedure,p/1)",
		},
		{
			title: "dynamic",
			goal:  func(tm *terms) Word { return tm.and(tm.c("dynamic", tm.c("/", tm.a("d"), tm.i(1))), tm.c("d", tm.v("X"))) },
		},
		{
			title: "dynamic list",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("dynamic", tm.l(tm.c("/", tm.a("d"), tm.i(1)), tm.c("/", tm.a("e"), tm.i(0)))), tm.a("e"))
			},
		},
		{
			title: "assert into a builtin",
			goal:  func(tm *terms) Word { return tm.c("asserta", tm.c("atom_length", tm.a("a"), tm.i(1))) },
			err:   "permission_error(modify,static_procedure,atom_length/2)",
		},
		{
			title: "clause of a builtin",
			goal:  func(tm *terms) Word { return tm.c("clause", tm.c("atom_length", tm.v("A"), tm.v("B")), tm.v("X")) },
			err:   "permission_error(access,private_procedure,atom_length/2)",
		},
		{
			title: "assert a variable",
			goal:  func(tm *terms) Word { return tm.c("assertz", tm.v("A")) },
			err:   "instantiation_error",
		},
		{
			title: "module qualified assert",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("assertz", tm.c(":", tm.a("lists"), tm.c("r", tm.i(1)))), tm.c(":", tm.a("lists"), tm.c("r", tm.v("X"))))
			},
			want: []string{"1"},
		},
	})
}

func TestBuiltin_Solutions(t *testing.T) {
	facts := func(tm *terms) []Word {
		return []Word{
			tm.c("p", tm.i(1)), tm.c("p", tm.i(2)), tm.c("p", tm.i(2)),
			tm.c("age", tm.a("ann"), tm.i(30)), tm.c("age", tm.a("bob"), tm.i(25)),
		}
	}

	runQueries(t, facts, []queryTest{
		{
			title: "findall",
			goal:  func(tm *terms) Word { return tm.c("findall", tm.v("A"), tm.c("p", tm.v("A")), tm.v("X")) },
			want:  []string{"[1,2,2]"},
		},
		{
			title: "findall without solutions",
			goal:  func(tm *terms) Word { return tm.c("findall", tm.v("A"), tm.a("fail"), tm.v("X")) },
			want:  []string{"[]"},
		},
		{
			title: "findall with a tail",
			goal:  func(tm *terms) Word { return tm.c("findall", tm.v("A"), tm.c("p", tm.v("A")), tm.v("X"), tm.l(tm.a("end"))) },
			want:  []string{"[1,2,2,end]"},
		},
		{
			title: "findall into a non list",
			goal:  func(tm *terms) Word { return tm.c("findall", tm.v("A"), tm.c("p", tm.v("A")), tm.a("foo")) },
			err:   "type_error(list,foo)",
		},
		{
			title: "findall leaves the template unbound",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("findall", tm.v("A"), tm.c("p", tm.v("A")), tm.v("_")), tm.c("var", tm.v("A")), tm.c("=", tm.v("X"), tm.a("ok")))
			},
			want: []string{"ok"},
		},
		{
			title: "findall propagates errors",
			goal:  func(tm *terms) Word { return tm.c("findall", tm.v("A"), tm.c("throw", tm.a("oops")), tm.v("X")) },
			err:   "oops",
		},
		{
			title: "forall holds",
			goal:  func(tm *terms) Word { return tm.and(tm.c("forall", tm.c("p", tm.v("A")), tm.c(">", tm.v("A"), tm.i(0))), tm.c("=", tm.v("X"), tm.a("ok"))) },
			want:  []string{"ok"},
		},
		{
			title: "forall fails",
			goal:  func(tm *terms) Word { return tm.c("forall", tm.c("p", tm.v("A")), tm.c(">", tm.v("A"), tm.i(1))) },
		},
		{
			title: "count",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.a("count"), tm.c("p", tm.v("_")), tm.v("X")) },
			want:  []string{"3"},
		},
		{
			title: "bag",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.c("bag", tm.v("A")), tm.c("p", tm.v("A")), tm.v("X")) },
			want:  []string{"[1,2,2]"},
		},
		{
			title: "set",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.c("set", tm.v("A")), tm.c("p", tm.v("A")), tm.v("X")) },
			want:  []string{"[1,2]"},
		},
		{
			title: "sum",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.c("sum", tm.v("A")), tm.c("age", tm.v("_"), tm.v("A")), tm.v("X")) },
			want:  []string{"55"},
		},
		{
			title: "max",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.c("max", tm.v("A")), tm.c("age", tm.v("_"), tm.v("A")), tm.v("X")) },
			want:  []string{"30"},
		},
		{
			title: "min",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.c("min", tm.v("A")), tm.c("age", tm.v("_"), tm.v("A")), tm.v("X")) },
			want:  []string{"25"},
		},
		{
			title: "max of nothing",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.c("max", tm.v("A")), tm.a("fail"), tm.v("X")) },
		},
		{
			title: "unknown spec",
			goal:  func(tm *terms) Word { return tm.c("aggregate_all", tm.a("foo"), tm.a("true"), tm.v("X")) },
			err:   "domain_error(aggregate_spec,foo)",
		},
	})
}

func TestBuiltin_Records(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "recorded in order",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("recordz", tm.a("k"), tm.a("a")),
					tm.c("recordz", tm.a("k"), tm.a("b")),
					tm.c("recorda", tm.a("k"), tm.a("z")),
					tm.c("recorded", tm.a("k"), tm.v("X")),
				)
			},
			want: []string{"z", "a", "b"},
		},
		{
			title: "compound keys use the functor",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("recordz", tm.c("k", tm.i(1)), tm.a("a")),
					tm.c("recorded", tm.c("k", tm.i(2)), tm.v("X")),
				)
			},
			want: []string{"a"},
		},
		{
			title: "erase",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("recordz", tm.a("k"), tm.a("a"), tm.v("R1")),
					tm.c("recordz", tm.a("k"), tm.a("b")),
					tm.c("erase", tm.v("R1")),
					tm.c("findall", tm.v("V"), tm.c("recorded", tm.a("k"), tm.v("V")), tm.v("X")),
				)
			},
			want: []string{"[b]"},
		},
		{
			title: "instance of an erased record",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("recordz", tm.a("k"), tm.a("a"), tm.v("R")), tm.c("erase", tm.v("R")), tm.c("instance", tm.v("R"), tm.v("X")))
			},
		},
		{
			title: "any key",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("recordz", tm.a("k1"), tm.a("a")),
					tm.c("recordz", tm.a("k2"), tm.a("b")),
					tm.c("recorded", tm.v("K"), tm.v("V")),
					tm.c("=", tm.v("X"), tm.c("-", tm.v("K"), tm.v("V"))),
				)
			},
			want: []string{"k1-a", "k2-b"},
		},
		{
			title: "survive backtracking",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.or(tm.and(tm.c("recordz", tm.a("k"), tm.a("kept")), tm.a("fail")), tm.a("true")),
					tm.c("recorded", tm.a("k"), tm.v("X")),
				)
			},
			want: []string{"kept"},
		},
		{
			title: "erase of a non reference",
			goal:  func(tm *terms) Word { return tm.c("erase", tm.a("foo")) },
			err:   "type_error(db_reference,foo)",
		},
		{
			title: "record with a bound reference",
			goal:  func(tm *terms) Word { return tm.c("recordz", tm.a("k"), tm.a("a"), tm.a("r")) },
			err:   "type_error(db_reference,r)",
		},
	})
}

func TestBuiltin_Instance(t *testing.T) {
	m := newTestMachine(t, Config{})
	tm := newTerms(m)
	x := tm.v("X")
	s, err := m.Execute(tm.and(tm.c("recordz", tm.a("k"), tm.c("f", tm.v("A"), tm.v("A")), tm.v("R")), tm.c("instance", tm.v("R"), x)))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, s)
	a1, _ := m.Arg(x, 1)
	a2, _ := m.Arg(x, 2)
	assert.Equal(t, TagVariable, m.Tag(a1))
	assert.Equal(t, m.deref(a1), m.deref(a2))
}

func TestBuiltin_Flags(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "bounded",
			goal:  func(tm *terms) Word { return tm.c("current_prolog_flag", tm.a("bounded"), tm.v("X")) },
			want:  []string{"false"},
		},
		{
			title: "enumerate",
			goal:  func(tm *terms) Word { return tm.c("current_prolog_flag", tm.v("X"), tm.v("_")) },
			want:  []string{"bounded", "max_integer", "min_integer", "integer_rounding_function", "unknown", "debug"},
		},
		{
			title: "set unknown",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("set_prolog_flag", tm.a("unknown"), tm.a("fail")), tm.c("current_prolog_flag", tm.a("unknown"), tm.v("X")))
			},
			want: []string{"fail"},
		},
		{
			title: "unknown fail takes effect",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("set_prolog_flag", tm.a("unknown"), tm.a("fail")), tm.c("nowhere", tm.v("X")))
			},
		},
		{
			title: "read only",
			goal:  func(tm *terms) Word { return tm.c("set_prolog_flag", tm.a("bounded"), tm.a("true")) },
			err:   "permission_error(modify,flag,bounded)",
		},
		{
			title: "unknown flag",
			goal:  func(tm *terms) Word { return tm.c("set_prolog_flag", tm.a("nope"), tm.i(1)) },
			err:   "domain_error(prolog_flag,nope)",
		},
		{
			title: "bad value",
			goal:  func(tm *terms) Word { return tm.c("set_prolog_flag", tm.a("unknown"), tm.a("maybe")) },
			err:   "domain_error(flag_value,unknown+maybe)",
		},
	})
}

func TestBuiltin_Operators(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "define",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("op", tm.i(700), tm.a("xfx"), tm.a("===")),
					tm.c("current_op", tm.v("P"), tm.v("T"), tm.a("===")),
					tm.c("=", tm.v("X"), tm.c("-", tm.v("P"), tm.v("T"))),
				)
			},
			want: []string{"700-xfx"},
		},
		{
			title: "define several",
			goal: func(tm *terms) Word {
				return tm.and(
					tm.c("op", tm.i(200), tm.a("xfy"), tm.l(tm.a("~~"), tm.a("^^"))),
					tm.c("current_op", tm.v("X"), tm.a("xfy"), tm.a("~~")),
				)
			},
			want: []string{"200"},
		},
		{
			title: "remove",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("op", tm.i(0), tm.a("yfx"), tm.a("mod")), tm.c("current_op", tm.v("X"), tm.v("_"), tm.a("mod")))
			},
		},
		{
			title: "current infix minus",
			goal:  func(tm *terms) Word { return tm.c("current_op", tm.v("X"), tm.a("yfx"), tm.a("-")) },
			want:  []string{"500"},
		},
		{
			title: "priority out of range",
			goal:  func(tm *terms) Word { return tm.c("op", tm.i(1201), tm.a("xfx"), tm.a("foo")) },
			err:   "domain_error(operator_priority,1201)",
		},
		{
			title: "bad specifier",
			goal:  func(tm *terms) Word { return tm.c("op", tm.i(700), tm.a("abc"), tm.a("foo")) },
			err:   "domain_error(operator_specifier,abc)",
		},
		{
			title: "comma",
			goal:  func(tm *terms) Word { return tm.c("op", tm.i(1000), tm.a("xfy"), tm.a(",")) },
			err:   "permission_error(modify,operator,',')",
		},
		{
			title: "bar",
			goal:  func(tm *terms) Word { return tm.c("op", tm.i(700), tm.a("xfx"), tm.a("|")) },
			err:   "permission_error(create,operator,'|')",
		},
	})
}
