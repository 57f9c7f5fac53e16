package prolog

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichiban/plvm/engine"
)

func newMachine(t *testing.T) *engine.Machine {
	t.Helper()
	m, err := engine.NewMachine(nil, engine.Config{})
	require.NoError(t, err)
	return m
}

func canonical(m *engine.Machine, w engine.Word) string {
	f := m.Formatter(w)
	f.Quoted = true
	f.IgnoreOps = true
	return f.String()
}

func writeq(m *engine.Machine, w engine.Word) string {
	f := m.Formatter(w)
	f.Quoted = true
	return f.String()
}

func TestParser_Term(t *testing.T) {
	tests := []struct {
		input     string
		canonical string
		writeq    string
	}{
		{input: `foo.`, canonical: `foo`},
		{input: `f(a, b).`, canonical: `f(a,b)`},
		{input: `1 + 2 * 3.`, canonical: `+(1,*(2,3))`},
		{input: `(1 + 2) * 3.`, canonical: `*(+(1,2),3)`},
		{input: `1 - 2 - 3.`, canonical: `-(-(1,2),3)`},
		{input: `2 ^ 3 ^ 4.`, canonical: `^(2,^(3,4))`},
		{input: `a :- b, c ; d -> e.`, canonical: `:-(a,;(','(b,c),->(d,e)))`},
		{input: `p :- \+ q, r.`, canonical: `:-(p,','(\+(q),r))`},
		{input: `a | b.`, canonical: `;(a,b)`},
		{input: `f((a ; b)).`, canonical: `f(;(a,b))`},
		{input: `- 1.`, canonical: `-1`},
		{input: `f(- 1).`, canonical: `f(-1)`},
		{input: `- a.`, canonical: `-(a)`},
		{input: `-(1).`, canonical: `-(1)`},
		{input: `- (1).`, canonical: `-(1)`},
		{input: `1 - -1.`, canonical: `-(1,-1)`},
		{input: `f(:-, -).`, canonical: `f(:-,-)`},
		{input: `- .`, canonical: `-`},
		{input: `X = - .`, canonical: `=(_1,-)`},
		{input: `0'a.`, canonical: `97`},
		{input: `0' .`, canonical: `32`},
		{input: `0'\n.`, canonical: `10`},
		{input: `0x1F.`, canonical: `31`},
		{input: `1.5.`, canonical: `1.5`},
		{input: `123456789012345678901234567890.`, canonical: `123456789012345678901234567890`},
		{input: `'hello world'.`, canonical: `'hello world'`},
		{input: `'don''t'.`, canonical: `'don\'t'`},
		{input: `'\x41\\x42\'.`, canonical: `'AB'`},
		{input: `"ab".`, writeq: `[97,98]`},
		{input: "`ab`.", writeq: `[97,98]`},
		{input: `[1, 2 | [3]].`, writeq: `[1,2,3]`},
		{input: `[a|b].`, writeq: `[a|b]`},
		{input: `[].`, writeq: `[]`},
		{input: `{a, b}.`, writeq: `{a,b}`},
		{input: `{}.`, writeq: `{}`},
		{input: `:- dynamic foo/1.`, canonical: `:-(dynamic(/(foo,1)))`},
		{input: "% comment\nfoo(X) /* inline */ :- bar(X).", writeq: `foo(_1):-bar(_1)`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m := newMachine(t)
			p := NewParser(m, strings.NewReader(tt.input))
			w, err := p.Term()
			require.NoError(t, err)
			if tt.canonical != "" {
				assert.Equal(t, tt.canonical, normalizeVars(canonical(m, w)))
			}
			if tt.writeq != "" {
				assert.Equal(t, tt.writeq, normalizeVars(writeq(m, w)))
			}
		})
	}
}

// normalizeVars renames _N variables to _1, _2, ... in order of appearance.
func normalizeVars(s string) string {
	var (
		sb    strings.Builder
		names = map[string]string{}
	)
	for i := 0; i < len(s); i++ {
		if s[i] != '_' || i+1 == len(s) || s[i+1] < '0' || s[i+1] > '9' {
			_ = sb.WriteByte(s[i])
			continue
		}
		j := i + 1
		for j < len(s) && '0' <= s[j] && s[j] <= '9' {
			j++
		}
		n, ok := names[s[i:j]]
		if !ok {
			n = "_" + string(rune('0'+len(names)+1))
			names[s[i:j]] = n
		}
		_, _ = sb.WriteString(n)
		i = j - 1
	}
	return sb.String()
}

func TestParser_Term_vars(t *testing.T) {
	m := newMachine(t)
	p := NewParser(m, strings.NewReader(`foo(X, Y, X, _, _Z).`))
	w, err := p.Term()
	require.NoError(t, err)

	require.Len(t, p.Vars, 3)
	assert.Equal(t, "X", p.Vars[0].Name)
	assert.Equal(t, 2, p.Vars[0].Count)
	assert.Equal(t, "Y", p.Vars[1].Name)
	assert.Equal(t, 1, p.Vars[1].Count)
	assert.Equal(t, "_Z", p.Vars[2].Name)

	x, _ := m.Arg(w, 1)
	x2, _ := m.Arg(w, 3)
	assert.Equal(t, m.Deref(x), m.Deref(x2))
	a, _ := m.Arg(w, 4)
	assert.NotEqual(t, m.Deref(x), m.Deref(a))
}

func TestParser_Term_sequence(t *testing.T) {
	m := newMachine(t)
	p := NewParser(m, strings.NewReader("a. b.\nc."))
	for _, want := range []string{"a", "b", "c"} {
		w, err := p.Term()
		assert.NoError(t, err)
		assert.Equal(t, want, canonical(m, w))
	}
	_, err := p.Term()
	assert.Equal(t, io.EOF, err)
	assert.False(t, p.More())
}

func TestParser_Term_errors(t *testing.T) {
	tests := []struct {
		input string
		err   error
	}{
		{input: ``, err: io.EOF},
		{input: `   % nothing`, err: io.EOF},
		{input: `foo(`, err: ErrInsufficient},
		{input: `foo(a`, err: ErrInsufficient},
		{input: `foo`, err: ErrInsufficient},
		{input: `'abc`, err: ErrInsufficient},
		{input: `foo(a b).`, err: unexpectedTokenError{actual: Token{kind: tokenLetterDigit, val: "b"}}},
		{input: `foo bar.`, err: unexpectedTokenError{actual: Token{kind: tokenLetterDigit, val: "bar"}}},
		{input: `.`, err: unexpectedTokenError{actual: Token{kind: tokenEnd, val: "."}}},
		{input: `[a,].`, err: unexpectedTokenError{actual: Token{kind: tokenCloseList, val: "]"}}},
		{input: `f(a,).`, err: unexpectedTokenError{actual: Token{kind: tokenClose, val: ")"}}},
		{input: `'\q'.`, err: unexpectedTokenError{actual: Token{kind: tokenInvalid, val: `'\q'`}}},
		{input: `f(a ; b).`, err: unexpectedTokenError{actual: Token{kind: tokenSemicolon, val: ";"}}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := NewParser(newMachine(t), strings.NewReader(tt.input))
			_, err := p.Term()
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestParser_Skip(t *testing.T) {
	m := newMachine(t)
	p := NewParser(m, strings.NewReader(`foo(a. bar.`))
	_, err := p.Term()
	assert.Error(t, err)

	p.Skip()
	w, err := p.Term()
	assert.NoError(t, err)
	assert.Equal(t, "bar", canonical(m, w))

	t.Run("unterminated", func(t *testing.T) {
		p := NewParser(m, strings.NewReader(`foo. 'abc`))
		_, err := p.Term()
		assert.NoError(t, err)

		_, err = p.Term()
		assert.Equal(t, ErrInsufficient, err)
		_, err = p.Term()
		assert.Equal(t, ErrInsufficient, err)

		p.Skip()
		assert.False(t, p.More())
	})
}

func TestParser_SetPlaceholder(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		m := newMachine(t)
		p := NewParser(m, strings.NewReader(`f(?, ?, ?, ?).`))
		assert.NoError(t, p.SetPlaceholder("?", 1, "a", []int{1, 2}, 2.5))
		w, err := p.Term()
		assert.NoError(t, err)
		assert.Equal(t, `f(1,[97],[1,2],2.5)`, writeq(m, w))
	})

	t.Run("atom", func(t *testing.T) {
		m := newMachine(t)
		p := NewParser(m, strings.NewReader(`f(?).`))
		p.DoubleQuotes = DoubleQuotesAtom
		assert.NoError(t, p.SetPlaceholder("?", "a b"))
		w, err := p.Term()
		assert.NoError(t, err)
		assert.Equal(t, `f('a b')`, writeq(m, w))
	})

	t.Run("too few", func(t *testing.T) {
		p := NewParser(newMachine(t), strings.NewReader(`f(?, ?).`))
		assert.NoError(t, p.SetPlaceholder("?", 1))
		_, err := p.Term()
		assert.Equal(t, errPlaceholder, err)
	})

	t.Run("too many", func(t *testing.T) {
		p := NewParser(newMachine(t), strings.NewReader(`f(?).`))
		assert.NoError(t, p.SetPlaceholder("?", 1, 2))
		_, err := p.Term()
		assert.Equal(t, errPlaceholder, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		p := NewParser(newMachine(t), strings.NewReader(`f(?).`))
		assert.Error(t, p.SetPlaceholder("?", struct{}{}))
	})
}

func TestParser_DoubleQuotes(t *testing.T) {
	for _, tt := range []struct {
		dq   DoubleQuotes
		want string
	}{
		{dq: DoubleQuotesCodes, want: `[97,98]`},
		{dq: DoubleQuotesChars, want: `[a,b]`},
		{dq: DoubleQuotesAtom, want: `ab`},
	} {
		t.Run(tt.dq.String(), func(t *testing.T) {
			m := newMachine(t)
			p := NewParser(m, strings.NewReader(`"ab".`))
			p.DoubleQuotes = tt.dq
			w, err := p.Term()
			assert.NoError(t, err)
			assert.Equal(t, tt.want, writeq(m, w))
		})
	}

	_, err := ParseDoubleQuotes("bytes")
	assert.Error(t, err)
	dq, err := ParseDoubleQuotes("chars")
	assert.NoError(t, err)
	assert.Equal(t, DoubleQuotesChars, dq)
}

func TestParser_operators(t *testing.T) {
	m := newMachine(t)
	m.Operators().Define(700, engine.XFX, "===>")
	m.Operators().Define(100, engine.XF, "++")

	p := NewParser(m, strings.NewReader(`a ===> b. a ++ . f(x ++).`))
	for _, want := range []string{`===>(a,b)`, `++(a)`, `f(++(x))`} {
		w, err := p.Term()
		assert.NoError(t, err)
		assert.Equal(t, want, canonical(m, w))
	}
}

func TestUnquote(t *testing.T) {
	for _, tt := range []struct {
		in, out string
		ok      bool
	}{
		{in: `'abc'`, out: "abc", ok: true},
		{in: `'a''b'`, out: "a'b", ok: true},
		{in: `"a""b"`, out: `a"b`, ok: true},
		{in: `'\a\b\f\n\r\t\v\e'`, out: "\a\b\f\n\r\t\v\x1b", ok: true},
		{in: `'\\\'\"\` + "`'", out: "\\'\"`", ok: true},
		{in: "'a\\\nb'", out: "ab", ok: true},
		{in: `'\101\'`, out: "A", ok: true},
		{in: `'\x3042\'`, out: "あ", ok: true},
		{in: `'\q'`},
		{in: `'\x41'`},
	} {
		t.Run(tt.in, func(t *testing.T) {
			s, err := unquote(tt.in)
			if !tt.ok {
				assert.True(t, errors.Is(err, errInvalidEscape))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.out, s)
		})
	}
}
