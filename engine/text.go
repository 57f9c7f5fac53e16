package engine

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var errIllegalNumber = errors.New("illegal_number")

func (m *Machine) registerText() {
	for _, b := range []struct {
		name  string
		arity int
		f     DetFunc
	}{
		{"atom_length", 2, atomLength},
		{"atom_chars", 2, atomChars},
		{"atom_codes", 2, atomCodes},
		{"char_code", 2, charCode},
		{"number_chars", 2, numberChars},
		{"number_codes", 2, numberCodes},
		{"atom_number", 2, atomNumber},
		{"upcase_atom", 2, caseAtom(cases.Upper(language.Und))},
		{"downcase_atom", 2, caseAtom(cases.Lower(language.Und))},
		{"atomic_list_concat", 2, atomicListConcat},
		{"atomic_list_concat", 3, atomicListConcat},
	} {
		m.RegisterDet("system", b.name, b.arity, b.f)
	}
	m.RegisterNondet("system", "atom_concat", 3, atomConcat)
	m.RegisterNondet("system", "sub_atom", 5, subAtom)
}

// text returns the text of an atom or a number.
func (m *Machine) text(w Word) (string, bool) {
	w = m.deref(w)
	if name, ok := m.Atom(w); ok {
		return name, true
	}
	if m.isNumber(w) {
		f := m.Formatter(w)
		return f.String(), true
	}
	return "", false
}

// textArg returns the text of an atomic argument.
func (m *Machine) textArg(w Word) (string, error) {
	w = m.deref(w)
	if w.Tag() == TagVariable {
		return "", m.InstantiationError()
	}
	s, ok := m.text(w)
	if !ok {
		return "", m.TypeError(ValidTypeAtomic, w)
	}
	return s, nil
}

// chars collects a list of one-char atoms or of codes. It reports false if the list is partial.
func (m *Machine) chars(w Word, codes bool) (string, bool, error) {
	var sb strings.Builder
	for {
		w = m.deref(w)
		switch {
		case w.Tag() == TagVariable:
			return "", false, nil
		case m.isAtom(w, m.atom.nil):
			return sb.String(), true, nil
		case !m.isCompound(w, m.functor.list):
			return "", false, m.TypeError(ValidTypeList, w)
		}
		e := m.deref(m.heap[w.Index()+1])
		switch {
		case e.Tag() == TagVariable:
			return "", false, nil
		case codes:
			c, ok := m.Integer(e)
			if !ok {
				return "", false, m.RepresentationError(FlagCharacterCode)
			}
			if c < 0 || c > utf8.MaxRune || !utf8.ValidRune(rune(c)) {
				return "", false, m.RepresentationError(FlagCharacterCode)
			}
			sb.WriteRune(rune(c))
		default:
			name, ok := m.Atom(e)
			if !ok || utf8.RuneCountInString(name) != 1 {
				return "", false, m.TypeError(ValidTypeCharacter, e)
			}
			sb.WriteString(name)
		}
		w = m.heap[w.Index()+2]
	}
}

func (m *Machine) charList(s string) Word {
	elems := make([]Word, 0, len(s))
	for _, r := range s {
		elems = append(elems, m.NewAtom(string(r)))
	}
	return m.NewList(elems...)
}

func (m *Machine) codeList(s string) Word {
	elems := make([]Word, 0, len(s))
	for _, r := range s {
		elems = append(elems, m.NewInteger(int64(r)))
	}
	return m.NewList(elems...)
}

func atomLength(m *Machine, args []Word) (bool, error) {
	s, err := m.textArg(args[0])
	if err != nil {
		return false, err
	}
	if l := m.deref(args[1]); l.Tag() != TagVariable {
		n, err := m.intArg(l)
		if err != nil {
			return false, err
		}
		if n < 0 {
			return false, m.DomainError(ValidDomainNotLessThanZero, l)
		}
	}
	return m.unify(args[1], m.NewInteger(int64(utf8.RuneCountInString(s)))), nil
}

func atomChars(m *Machine, args []Word) (bool, error) {
	return m.atomText(args, false)
}

func atomCodes(m *Machine, args []Word) (bool, error) {
	return m.atomText(args, true)
}

func (m *Machine) atomText(args []Word, codes bool) (bool, error) {
	if a := m.deref(args[0]); a.Tag() != TagVariable {
		s, err := m.textArg(a)
		if err != nil {
			return false, err
		}
		if codes {
			return m.unify(args[1], m.codeList(s)), nil
		}
		return m.unify(args[1], m.charList(s)), nil
	}
	s, ok, err := m.chars(args[1], codes)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, m.InstantiationError()
	}
	return m.unify(args[0], m.NewAtom(s)), nil
}

func charCode(m *Machine, args []Word) (bool, error) {
	switch c := m.deref(args[0]); {
	case c.Tag() == TagVariable:
	default:
		name, ok := m.Atom(c)
		if !ok || utf8.RuneCountInString(name) != 1 {
			return false, m.TypeError(ValidTypeCharacter, c)
		}
		r, _ := utf8.DecodeRuneInString(name)
		return m.unify(args[1], m.NewInteger(int64(r))), nil
	}
	code := m.deref(args[1])
	if code.Tag() == TagVariable {
		return false, m.InstantiationError()
	}
	n, err := m.intArg(code)
	if err != nil {
		return false, err
	}
	if n < 0 || n > utf8.MaxRune || !utf8.ValidRune(rune(n)) {
		return false, m.RepresentationError(FlagCharacterCode)
	}
	return m.unify(args[0], m.NewAtom(string(rune(n)))), nil
}

func numberChars(m *Machine, args []Word) (bool, error) {
	return m.numberText(args, false)
}

func numberCodes(m *Machine, args []Word) (bool, error) {
	return m.numberText(args, true)
}

func (m *Machine) numberText(args []Word, codes bool) (bool, error) {
	s, ok, err := m.chars(args[1], codes)
	if err != nil {
		return false, err
	}
	n := m.deref(args[0])
	if !ok {
		if n.Tag() == TagVariable {
			return false, m.InstantiationError()
		}
		if !m.isNumber(n) {
			return false, m.TypeError(ValidTypeNumber, n)
		}
		t, _ := m.text(n)
		if codes {
			return m.unify(args[1], m.codeList(t)), nil
		}
		return m.unify(args[1], m.charList(t)), nil
	}
	if n.Tag() != TagVariable && !m.isNumber(n) {
		return false, m.TypeError(ValidTypeNumber, n)
	}
	v, err := m.ParseNumber(s)
	if err != nil {
		return false, m.SyntaxError(err)
	}
	return m.unify(n, v), nil
}

func atomNumber(m *Machine, args []Word) (bool, error) {
	a := m.deref(args[0])
	if a.Tag() == TagVariable {
		n := m.deref(args[1])
		if n.Tag() == TagVariable {
			return false, m.InstantiationError()
		}
		if !m.isNumber(n) {
			return false, m.TypeError(ValidTypeNumber, n)
		}
		s, _ := m.text(n)
		return m.unify(a, m.NewAtom(s)), nil
	}
	s, err := m.atomArg(a)
	if err != nil {
		return false, err
	}
	text, _ := m.consts.AtomText(s)
	v, err := m.ParseNumber(text)
	if err != nil {
		return false, nil
	}
	return m.unify(args[1], v), nil
}

// ParseNumber parses the text of a number, optionally negative and preceded by layout.
func (m *Machine) ParseNumber(s string) (Word, error) {
	s = strings.TrimLeft(s, " \t\n\r")
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if s == "" {
		return 0, errIllegalNumber
	}
	var n big.Int
	switch {
	case strings.HasPrefix(s, "0'"):
		rest := s[2:]
		if rest == "''" {
			rest = "'"
		}
		r, size := utf8.DecodeRuneInString(rest)
		if rest == "" || r == utf8.RuneError || size != len(rest) {
			return 0, errIllegalNumber
		}
		n.SetInt64(int64(r))
	case len(s) > 2 && s[0] == '0' && strings.ContainsRune("xob", rune(s[1])):
		base := map[byte]int{'x': 16, 'o': 8, 'b': 2}[s[1]]
		if _, ok := n.SetString(s[2:], base); !ok {
			return 0, errIllegalNumber
		}
	case strings.ContainsAny(s, ".eE"):
		if !strings.Contains(s, ".") || strings.HasSuffix(s, ".") || s[0] == '.' {
			return 0, errIllegalNumber
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errIllegalNumber
		}
		if neg {
			f = -f
		}
		return m.NewFloat(f), nil
	default:
		for _, c := range s {
			if c < '0' || c > '9' {
				return 0, errIllegalNumber
			}
		}
		n.SetString(s, 10)
	}
	if neg {
		n.Neg(&n)
	}
	if n.IsInt64() {
		return m.NewInteger(n.Int64()), nil
	}
	return m.NewBigInteger(&n), nil
}

func caseAtom(c cases.Caser) DetFunc {
	return func(m *Machine, args []Word) (bool, error) {
		s, err := m.textArg(args[0])
		if err != nil {
			return false, err
		}
		return m.unify(args[1], m.NewAtom(c.String(s))), nil
	}
}

func atomicListConcat(m *Machine, args []Word) (bool, error) {
	sep := ""
	if len(args) == 3 {
		var err error
		if sep, err = m.textArg(args[1]); err != nil {
			return false, err
		}
	}
	result := args[len(args)-1]

	elems, err := m.list(args[0])
	ground := err == nil
	var parts []string
	for _, e := range elems {
		s, ok := m.text(e)
		if !ok {
			if m.deref(e).Tag() != TagVariable {
				return false, m.TypeError(ValidTypeAtomic, m.deref(e))
			}
			ground = false
			break
		}
		parts = append(parts, s)
	}
	if ground {
		return m.unify(result, m.NewAtom(strings.Join(parts, sep))), nil
	}

	// Split mode.
	if sep == "" {
		return false, m.InstantiationError()
	}
	whole, err := m.textArg(result)
	if err != nil {
		return false, err
	}
	split := strings.Split(whole, sep)
	ws := make([]Word, len(split))
	for i, s := range split {
		ws[i] = m.NewAtom(s)
	}
	return m.unify(args[0], m.NewList(ws...)), nil
}

func atomConcat(m *Machine, args []Word, c *Control) (bool, error) {
	a, b := m.deref(args[0]), m.deref(args[1])
	if a.Tag() != TagVariable && b.Tag() != TagVariable {
		x, err := m.textArg(a)
		if err != nil {
			return false, err
		}
		y, err := m.textArg(b)
		if err != nil {
			return false, err
		}
		return m.unify(args[2], m.NewAtom(x+y)), nil
	}

	whole, err := m.textArg(args[2])
	if err != nil {
		return false, err
	}
	i := 0
	if c.Redo {
		i = c.State.(int)
	}
	for i <= len(whole) {
		j := i
		if i < len(whole) {
			_, size := utf8.DecodeRuneInString(whole[i:])
			j += size
		} else {
			j++
		}
		if m.unifyEach(a, m.NewAtom(whole[:i]), b, m.NewAtom(whole[i:])) {
			if j <= len(whole) {
				c.Retry(j)
			}
			return true, nil
		}
		i = j
	}
	return false, nil
}

type subAtomState struct {
	runes       []rune
	before, len int
}

func subAtom(m *Machine, args []Word, c *Control) (bool, error) {
	var s subAtomState
	if c.Redo {
		s = c.State.(subAtomState)
	} else {
		text, err := m.textArg(args[0])
		if err != nil {
			return false, err
		}
		for _, a := range args[1:4] {
			if a := m.deref(a); a.Tag() != TagVariable {
				n, err := m.intArg(a)
				if err != nil {
					return false, err
				}
				if n < 0 {
					return false, m.DomainError(ValidDomainNotLessThanZero, a)
				}
			}
		}
		if sub := m.deref(args[4]); sub.Tag() != TagVariable && !m.isAtomWord(sub) {
			return false, m.TypeError(ValidTypeAtom, sub)
		}
		s = subAtomState{runes: []rune(text)}
	}

	n := len(s.runes)
	for ; s.before <= n; s.before, s.len = s.before+1, 0 {
		for ; s.before+s.len <= n; s.len++ {
			after := n - s.before - s.len
			if !m.unifyEach(
				args[1], m.NewInteger(int64(s.before)),
				args[2], m.NewInteger(int64(s.len)),
				args[3], m.NewInteger(int64(after)),
				args[4], m.NewAtom(string(s.runes[s.before:s.before+s.len])),
			) {
				continue
			}
			next := s
			next.len++
			c.Retry(next)
			return true, nil
		}
	}
	return false, nil
}
