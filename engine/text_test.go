package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltin_Text(t *testing.T) {
	runQueries(t, nil, []queryTest{
		{
			title: "atom_length",
			goal:  func(tm *terms) Word { return tm.c("atom_length", tm.a("héllo"), tm.v("X")) },
			want:  []string{"5"},
		},
		{
			title: "atom_length of a number",
			goal:  func(tm *terms) Word { return tm.c("atom_length", tm.i(123), tm.v("X")) },
			want:  []string{"3"},
		},
		{
			title: "atom_length with a negative length",
			goal:  func(tm *terms) Word { return tm.c("atom_length", tm.a("abc"), tm.i(-1)) },
			err:   "domain_error(not_less_than_zero,-1)",
		},
		{
			title: "atom_length of a compound",
			goal:  func(tm *terms) Word { return tm.c("atom_length", tm.c("f", tm.a("a")), tm.v("X")) },
			err:   "type_error(atomic,f(a))",
		},
		{
			title: "atom_chars",
			goal:  func(tm *terms) Word { return tm.c("atom_chars", tm.a("abc"), tm.v("X")) },
			want:  []string{"[a,b,c]"},
		},
		{
			title: "atom_chars backward",
			goal:  func(tm *terms) Word { return tm.c("atom_chars", tm.v("X"), tm.l(tm.a("h"), tm.a("i"))) },
			want:  []string{"hi"},
		},
		{
			title: "atom_chars of a partial list",
			goal:  func(tm *terms) Word { return tm.c("atom_chars", tm.v("X"), tm.m.NewPartialList(tm.v("T"), tm.a("a"))) },
			err:   "instantiation_error",
		},
		{
			title: "atom_chars of a non character",
			goal:  func(tm *terms) Word { return tm.c("atom_chars", tm.v("X"), tm.l(tm.a("ab"))) },
			err:   "type_error(character,ab)",
		},
		{
			title: "atom_codes",
			goal:  func(tm *terms) Word { return tm.c("atom_codes", tm.a("ab"), tm.v("X")) },
			want:  []string{"[97,98]"},
		},
		{
			title: "atom_codes backward",
			goal:  func(tm *terms) Word { return tm.c("atom_codes", tm.v("X"), tm.l(tm.i(104), tm.i(105))) },
			want:  []string{"hi"},
		},
		{
			title: "atom_codes with an invalid code",
			goal:  func(tm *terms) Word { return tm.c("atom_codes", tm.v("X"), tm.l(tm.i(-1))) },
			err:   "representation_error(character_code)",
		},
		{
			title: "char_code",
			goal:  func(tm *terms) Word { return tm.c("char_code", tm.a("a"), tm.v("X")) },
			want:  []string{"97"},
		},
		{
			title: "char_code backward",
			goal:  func(tm *terms) Word { return tm.c("char_code", tm.v("X"), tm.i(0x61)) },
			want:  []string{"a"},
		},
		{
			title: "char_code uninstantiated",
			goal:  func(tm *terms) Word { return tm.c("char_code", tm.v("X"), tm.v("Y")) },
			err:   "instantiation_error",
		},
		{
			title: "number_chars",
			goal:  func(tm *terms) Word { return tm.c("number_chars", tm.i(12), tm.v("X")) },
			want:  []string{"['1','2']"},
		},
		{
			title: "number_chars backward",
			goal:  func(tm *terms) Word { return tm.c("number_chars", tm.v("X"), tm.l(tm.a(" "), tm.a("4"), tm.a("2"))) },
			want:  []string{"42"},
		},
		{
			title: "number_chars of garbage",
			goal:  func(tm *terms) Word { return tm.c("number_chars", tm.v("X"), tm.l(tm.a("1"), tm.a("a"))) },
			err:   "syntax_error(illegal_number)",
		},
		{
			title: "number_codes",
			goal:  func(tm *terms) Word { return tm.c("number_codes", tm.v("X"), tm.l(tm.i('1'), tm.i('.'), tm.i('5'))) },
			want:  []string{"1.5"},
		},
		{
			title: "number_codes of an atom",
			goal:  func(tm *terms) Word { return tm.c("number_codes", tm.a("a"), tm.v("X")) },
			err:   "type_error(number,a)",
		},
		{
			title: "atom_number",
			goal:  func(tm *terms) Word { return tm.c("atom_number", tm.a("0x1f"), tm.v("X")) },
			want:  []string{"31"},
		},
		{
			title: "atom_number of a non number",
			goal:  func(tm *terms) Word { return tm.c("atom_number", tm.a("foo"), tm.v("X")) },
		},
		{
			title: "atom_number backward",
			goal:  func(tm *terms) Word { return tm.c("atom_number", tm.v("X"), tm.i(7)) },
			want:  []string{"'7'"},
		},
		{
			title: "upcase_atom",
			goal:  func(tm *terms) Word { return tm.c("upcase_atom", tm.a("hello"), tm.v("X")) },
			want:  []string{"'HELLO'"},
		},
		{
			title: "downcase_atom",
			goal:  func(tm *terms) Word { return tm.c("downcase_atom", tm.a("HeLLo"), tm.v("X")) },
			want:  []string{"hello"},
		},
		{
			title: "atomic_list_concat",
			goal:  func(tm *terms) Word { return tm.c("atomic_list_concat", tm.l(tm.a("a"), tm.i(1), tm.a("b")), tm.v("X")) },
			want:  []string{"a1b"},
		},
		{
			title: "atomic_list_concat with a separator",
			goal: func(tm *terms) Word {
				return tm.c("atomic_list_concat", tm.l(tm.a("a"), tm.i(1), tm.a("b")), tm.a("-"), tm.v("X"))
			},
			want: []string{"'a-1-b'"},
		},
		{
			title: "atomic_list_concat splits",
			goal:  func(tm *terms) Word { return tm.c("atomic_list_concat", tm.v("X"), tm.a(","), tm.a("a,b,,c")) },
			want:  []string{"[a,b,'',c]"},
		},
		{
			title: "atomic_list_concat split without a separator",
			goal:  func(tm *terms) Word { return tm.c("atomic_list_concat", tm.v("X"), tm.a("abc")) },
			err:   "instantiation_error",
		},
		{
			title: "atomic_list_concat of a compound",
			goal:  func(tm *terms) Word { return tm.c("atomic_list_concat", tm.l(tm.c("f", tm.a("a"))), tm.v("X")) },
			err:   "type_error(atomic,f(a))",
		},
		{
			title: "atom_concat",
			goal:  func(tm *terms) Word { return tm.c("atom_concat", tm.a("ab"), tm.i(1), tm.v("X")) },
			want:  []string{"ab1"},
		},
		{
			title: "atom_concat enumerates",
			goal: func(tm *terms) Word {
				return tm.and(tm.c("atom_concat", tm.v("A"), tm.v("B"), tm.a("ab")), tm.c("=", tm.v("X"), tm.c("-", tm.v("A"), tm.v("B"))))
			},
			want: []string{"''-ab", "a-b", "ab-''"},
		},
		{
			title: "atom_concat with a known prefix",
			goal:  func(tm *terms) Word { return tm.c("atom_concat", tm.a("foo"), tm.v("X"), tm.a("foobar")) },
			want:  []string{"bar"},
		},
		{
			title: "atom_concat uninstantiated",
			goal:  func(tm *terms) Word { return tm.c("atom_concat", tm.v("A"), tm.v("B"), tm.v("X")) },
			err:   "instantiation_error",
		},
		{
			title: "sub_atom enumerates",
			goal:  func(tm *terms) Word { return tm.c("sub_atom", tm.a("ab"), tm.v("B"), tm.v("L"), tm.v("A"), tm.v("X")) },
			want:  []string{"''", "a", "ab", "''", "b", "''"},
		},
		{
			title: "sub_atom finds occurrences",
			goal:  func(tm *terms) Word { return tm.c("sub_atom", tm.a("abcab"), tm.v("X"), tm.i(2), tm.v("_"), tm.a("ab")) },
			want:  []string{"0", "3"},
		},
		{
			title: "sub_atom with a fixed length",
			goal:  func(tm *terms) Word { return tm.c("sub_atom", tm.a("hello"), tm.i(1), tm.i(3), tm.v("_"), tm.v("X")) },
			want:  []string{"ell"},
		},
		{
			title: "sub_atom with a negative length",
			goal:  func(tm *terms) Word { return tm.c("sub_atom", tm.a("abc"), tm.v("B"), tm.i(-1), tm.v("A"), tm.v("X")) },
			err:   "domain_error(not_less_than_zero,-1)",
		},
		{
			title: "sub_atom of a non atom",
			goal:  func(tm *terms) Word { return tm.c("sub_atom", tm.a("abc"), tm.v("B"), tm.v("L"), tm.v("A"), tm.i(1)) },
			err:   "type_error(atom,1)",
		},
	})
}

func TestMachine_ParseNumber(t *testing.T) {
	m := newTestMachine(t, Config{})

	for _, tt := range []struct {
		text string
		want string
	}{
		{text: "42", want: "42"},
		{text: "-12", want: "-12"},
		{text: "  7", want: "7"},
		{text: "0'a", want: "97"},
		{text: "0'''", want: "39"},
		{text: "0x1F", want: "31"},
		{text: "0o17", want: "15"},
		{text: "0b101", want: "5"},
		{text: "1.5", want: "1.5"},
		{text: "-2.5", want: "-2.5"},
		{text: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{text: "-9223372036854775808", want: "-9223372036854775808"},
	} {
		t.Run(tt.text, func(t *testing.T) {
			w, err := m.ParseNumber(tt.text)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, show(m, w))
		})
	}

	for _, text := range []string{"", "-", "abc", "1e10", "1.", ".5", "0xg", "0'ab", "12a"} {
		t.Run("illegal "+text, func(t *testing.T) {
			_, err := m.ParseNumber(text)
			assert.ErrorIs(t, err, errIllegalNumber)
		})
	}
}
