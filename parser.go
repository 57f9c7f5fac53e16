package prolog

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ichiban/plvm/engine"
)

var (
	// ErrInsufficient is returned when the input ends in the middle of a term.
	ErrInsufficient = errors.New("insufficient input")

	errPlaceholder = errors.New("wrong number of arguments for placeholders")
)

// Parser turns runes into terms on the heap of a machine.
type Parser struct {
	m     *engine.Machine
	lexer *Lexer

	// tokens of the current term so that the parser can back up to any of them.
	tokens []Token
	pos    int
	// err is the lexer error that ended the current term. It is cleared by Skip.
	err error

	// Vars are the named variables of the last term in order of appearance.
	Vars []ParsedVariable

	// DoubleQuotes decides the term for "text".
	DoubleQuotes DoubleQuotes

	placeholder string
	args        []engine.Word
}

// ParsedVariable is a named variable of a parsed term.
type ParsedVariable struct {
	Name     string
	Variable engine.Word
	Count    int
}

// NewParser creates a parser building terms on m from r.
func NewParser(m *engine.Machine, r io.RuneReader) *Parser {
	return &Parser{m: m, lexer: NewLexer(r)}
}

// SetPlaceholder registers placeholder and its arguments. Every occurrence of placeholder will be replaced by arguments.
// Mismatch of the number of occurrences of placeholder and the number of arguments raises an error.
func (p *Parser) SetPlaceholder(placeholder string, args ...any) error {
	p.placeholder = placeholder
	p.args = make([]engine.Word, len(args))
	for i, a := range args {
		var err error
		p.args[i], err = p.termOf(a)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) termOf(a any) (engine.Word, error) {
	switch a := a.(type) {
	case engine.Word:
		return a, nil
	case *big.Int:
		return p.m.NewBigInteger(a), nil
	}
	o := reflect.ValueOf(a)
	switch o.Kind() {
	case reflect.Float32, reflect.Float64:
		return p.m.NewFloat(o.Float()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return p.m.NewInteger(o.Int()), nil
	case reflect.String:
		return p.text(o.String()), nil
	case reflect.Array, reflect.Slice:
		es := make([]engine.Word, o.Len())
		for i := range es {
			var err error
			es[i], err = p.termOf(o.Index(i).Interface())
			if err != nil {
				return 0, err
			}
		}
		return p.m.NewList(es...), nil
	default:
		return 0, fmt.Errorf("can't convert to term: %v", a)
	}
}

func (p *Parser) next() (Token, error) {
	if p.pos == len(p.tokens) {
		if p.err != nil {
			return Token{}, p.err
		}
		t, err := p.lexer.Token()
		switch {
		case err == io.EOF && p.pos > 0, err == io.ErrUnexpectedEOF:
			p.err = ErrInsufficient
			return Token{}, p.err
		case err != nil:
			p.err = err
			return Token{}, err
		}
		p.tokens = append(p.tokens, t)
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, nil
}

func (p *Parser) backup() {
	p.pos--
}

// peek returns the kind of the next token or tokenInvalid.
func (p *Parser) peek() tokenKind {
	t, err := p.next()
	if err != nil {
		return tokenInvalid
	}
	p.backup()
	return t.kind
}

// Term parses a term followed by a full stop. It returns io.EOF if there's no more terms.
func (p *Parser) Term() (engine.Word, error) {
	p.tokens = p.tokens[p.pos:]
	p.pos = 0
	p.Vars = p.Vars[:0]

	t, err := p.term(1200)
	if err != nil {
		return 0, err
	}

	switch n, err := p.next(); {
	case err != nil:
		return 0, err
	case n.kind != tokenEnd:
		return 0, unexpectedTokenError{actual: n}
	}

	if len(p.args) != 0 {
		return 0, errPlaceholder
	}
	return t, nil
}

// Skip discards the tokens of the current term up to and including the next full stop.
func (p *Parser) Skip() {
	p.pos = 0
	if p.err != nil {
		p.err = nil
		p.pos = len(p.tokens)
		return
	}
	for {
		t, err := p.next()
		if err != nil || t.kind == tokenEnd {
			return
		}
	}
}

// More checks if the parser has more tokens to read.
func (p *Parser) More() bool {
	if _, err := p.next(); err != nil {
		return false
	}
	p.backup()
	return true
}

// Loosely based on Pratt parser explained in this article: https://matklad.github.io/2020/04/13/simple-but-powerful-pratt-parsing.html
func (p *Parser) term(maxPriority int) (engine.Word, error) {
	lhs, priority, err := p.prefixTerm(maxPriority)
	if err != nil {
		return 0, err
	}

	ops := p.m.Operators()
	for {
		start := p.pos
		name, ok := p.infixName()
		if !ok {
			p.pos = start
			return lhs, nil
		}
		if op, ok := ops.Lookup(name, engine.OperatorClassInfix); ok {
			if l, r := op.BindingPriorities(); op.Priority <= maxPriority && priority <= l {
				rhs, err := p.term(r)
				if err != nil {
					return 0, err
				}
				if name == "|" {
					name = ";"
				}
				lhs, priority = p.m.NewCompound(name, lhs, rhs), op.Priority
				continue
			}
		}
		if op, ok := ops.Lookup(name, engine.OperatorClassPostfix); ok {
			if l, _ := op.BindingPriorities(); op.Priority <= maxPriority && priority <= l {
				lhs, priority = p.m.NewCompound(name, lhs), op.Priority
				continue
			}
		}
		p.pos = start
		return lhs, nil
	}
}

func (p *Parser) infixName() (string, bool) {
	t, err := p.next()
	if err != nil {
		return "", false
	}
	switch t.kind {
	case tokenComma, tokenBar:
		return t.val, true
	}
	p.backup()
	return p.name()
}

// prefixTerm parses a prefix operator application or a primary term and returns its priority.
func (p *Parser) prefixTerm(maxPriority int) (engine.Word, int, error) {
	start := p.pos
	if op, ok := p.prefix(maxPriority); ok {
		_, r := op.BindingPriorities()
		t, err := p.term(r)
		if err == nil {
			return p.m.NewCompound(op.Name, t), op.Priority, nil
		}
		if errors.Is(err, ErrInsufficient) {
			return 0, 0, err
		}
		p.pos = start
	}
	t, err := p.primary()
	return t, 0, err
}

func (p *Parser) prefix(maxPriority int) (engine.Operator, bool) {
	start := p.pos
	name, ok := p.name()
	if !ok {
		return engine.Operator{}, false
	}
	ops := p.m.Operators()
	op, ok := ops.Lookup(name, engine.OperatorClassPrefix)
	if !ok || op.Priority > maxPriority {
		p.pos = start
		return engine.Operator{}, false
	}

	switch p.peek() {
	case tokenOpenCT:
		// functional notation
		ok = false
	case tokenInteger, tokenFloatNumber:
		// negative numbers
		ok = name != "-"
	case tokenEnd, tokenClose, tokenComma, tokenBar, tokenCloseList, tokenCloseCurly, tokenInvalid:
		// an atom
		ok = false
	default:
		// an atom followed by an infix operator
		before := p.pos
		if n, isName := p.name(); isName {
			_, infix := ops.Lookup(n, engine.OperatorClassInfix)
			_, prefix := ops.Lookup(n, engine.OperatorClassPrefix)
			ok = !infix || prefix || p.peek() == tokenOpenCT
		}
		p.pos = before
	}
	if !ok {
		p.pos = start
		return engine.Operator{}, false
	}
	return op, true
}

func (p *Parser) primary() (engine.Word, error) {
	t, err := p.next()
	if err != nil {
		return 0, err
	}
	switch t.kind {
	case tokenOpen, tokenOpenCT:
		t, err := p.term(1200)
		if err != nil {
			return 0, err
		}
		if err := p.expect(tokenClose); err != nil {
			return 0, err
		}
		return t, nil
	case tokenInteger, tokenFloatNumber:
		return p.number(t, false)
	case tokenVariable:
		return p.variable(t.val), nil
	case tokenOpenList:
		if p.peek() == tokenCloseList {
			p.backup()
			break
		}
		return p.list()
	case tokenOpenCurly:
		if p.peek() == tokenCloseCurly {
			p.backup()
			break
		}
		t, err := p.term(1200)
		if err != nil {
			return 0, err
		}
		if err := p.expect(tokenCloseCurly); err != nil {
			return 0, err
		}
		return p.m.NewCompound("{}", t), nil
	case tokenDoubleQuotedList:
		s, err := unquote(t.val)
		if err != nil {
			return 0, err
		}
		return p.text(s), nil
	case tokenBackQuotedString:
		s, err := unquote(t.val)
		if err != nil {
			return 0, err
		}
		return p.m.NewList(codes(p.m, s)...), nil
	default:
		p.backup()
	}
	return p.atomTerm()
}

func (p *Parser) atomTerm() (engine.Word, error) {
	name, ok := p.name()
	if !ok {
		t, err := p.next()
		if err != nil {
			return 0, err
		}
		return 0, unexpectedTokenError{actual: t}
	}

	if name == "-" {
		if t, err := p.next(); err == nil {
			switch t.kind {
			case tokenInteger, tokenFloatNumber:
				return p.number(t, true)
			}
			p.backup()
		}
	}

	if p.peek() == tokenOpenCT {
		_, _ = p.next()
		return p.arguments(name)
	}

	if p.placeholder != "" && name == p.placeholder {
		if len(p.args) == 0 {
			return 0, errPlaceholder
		}
		var t engine.Word
		t, p.args = p.args[0], p.args[1:]
		return t, nil
	}
	return p.m.NewAtom(name), nil
}

// name reads an atom name. [] and {} consist of 2 tokens.
func (p *Parser) name() (string, bool) {
	t, err := p.next()
	if err != nil {
		return "", false
	}
	switch t.kind {
	case tokenLetterDigit, tokenGraphic, tokenSemicolon, tokenCut:
		return t.val, true
	case tokenQuoted:
		s, err := unquote(t.val)
		if err != nil {
			p.backup()
			return "", false
		}
		return s, true
	case tokenOpenList:
		if p.peek() == tokenCloseList {
			_, _ = p.next()
			return "[]", true
		}
	case tokenOpenCurly:
		if p.peek() == tokenCloseCurly {
			_, _ = p.next()
			return "{}", true
		}
	case tokenDoubleQuotedList:
		if p.DoubleQuotes == DoubleQuotesAtom {
			if s, err := unquote(t.val); err == nil {
				return s, true
			}
		}
	}
	p.backup()
	return "", false
}

func (p *Parser) expect(k tokenKind) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	if t.kind != k {
		return unexpectedTokenError{actual: t}
	}
	return nil
}

func (p *Parser) variable(name string) engine.Word {
	if name == "_" {
		return p.m.NewVariable()
	}
	for i, pv := range p.Vars {
		if pv.Name == name {
			p.Vars[i].Count++
			return pv.Variable
		}
	}
	v := p.m.NewVariable()
	p.Vars = append(p.Vars, ParsedVariable{Name: name, Variable: v, Count: 1})
	return v
}

func (p *Parser) arguments(name string) (engine.Word, error) {
	var args []engine.Word
	for {
		arg, err := p.arg()
		if err != nil {
			return 0, err
		}
		args = append(args, arg)

		t, err := p.next()
		if err != nil {
			return 0, err
		}
		switch t.kind {
		case tokenComma:
		case tokenClose:
			return p.m.NewCompound(name, args...), nil
		default:
			return 0, unexpectedTokenError{actual: t}
		}
	}
}

func (p *Parser) list() (engine.Word, error) {
	var args []engine.Word
	for {
		arg, err := p.arg()
		if err != nil {
			return 0, err
		}
		args = append(args, arg)

		t, err := p.next()
		if err != nil {
			return 0, err
		}
		switch t.kind {
		case tokenComma:
		case tokenBar:
			rest, err := p.arg()
			if err != nil {
				return 0, err
			}
			if err := p.expect(tokenCloseList); err != nil {
				return 0, err
			}
			return p.m.NewPartialList(rest, args...), nil
		case tokenCloseList:
			return p.m.NewList(args...), nil
		default:
			return 0, unexpectedTokenError{actual: t}
		}
	}
}

// arg parses an argument. An operator atom can be an argument by itself.
func (p *Parser) arg() (engine.Word, error) {
	start := p.pos
	if name, ok := p.name(); ok && p.m.Operators().Defined(name) {
		switch p.peek() {
		case tokenComma, tokenClose, tokenBar, tokenCloseList:
			return p.m.NewAtom(name), nil
		}
	}
	p.pos = start
	return p.term(999)
}

func (p *Parser) number(t Token, negative bool) (engine.Word, error) {
	if strings.HasPrefix(t.val, "0'") {
		r, err := characterCode(t.val[2:])
		if err != nil {
			return 0, err
		}
		if negative {
			r = -r
		}
		return p.m.NewInteger(int64(r)), nil
	}
	s := t.val
	if negative {
		s = "-" + s
	}
	return p.m.ParseNumber(s)
}

func characterCode(s string) (rune, error) {
	switch {
	case s == "''":
		return '\'', nil
	case strings.HasPrefix(s, `\`):
		u, err := unescape(s)
		if err != nil {
			return 0, err
		}
		s = u
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func (p *Parser) text(s string) engine.Word {
	switch p.DoubleQuotes {
	case DoubleQuotesChars:
		es := make([]engine.Word, 0, len(s))
		for _, r := range s {
			es = append(es, p.m.NewAtom(string(r)))
		}
		return p.m.NewList(es...)
	case DoubleQuotesAtom:
		return p.m.NewAtom(s)
	default:
		return p.m.NewList(codes(p.m, s)...)
	}
}

func codes(m *engine.Machine, s string) []engine.Word {
	es := make([]engine.Word, 0, len(s))
	for _, r := range s {
		es = append(es, m.NewInteger(int64(r)))
	}
	return es
}

// DoubleQuotes is the interpretation of double-quoted text.
type DoubleQuotes int

const (
	DoubleQuotesCodes DoubleQuotes = iota
	DoubleQuotesChars
	DoubleQuotesAtom
)

func (d DoubleQuotes) String() string {
	return [...]string{
		DoubleQuotesCodes: "codes",
		DoubleQuotesChars: "chars",
		DoubleQuotesAtom:  "atom",
	}[d]
}

// ParseDoubleQuotes returns the DoubleQuotes named s.
func ParseDoubleQuotes(s string) (DoubleQuotes, error) {
	for _, d := range []DoubleQuotes{DoubleQuotesCodes, DoubleQuotesChars, DoubleQuotesAtom} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown double_quotes: %s", s)
}

// unquote removes the surrounding quotes and resolves doubled quotes and escape sequences.
func unquote(s string) (string, error) {
	q := s[:1]
	return unescape(strings.ReplaceAll(s[1:len(s)-1], q+q, q))
}

func unescape(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			_ = sb.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			return "", errInvalidEscape
		}
		switch c := s[i]; c {
		case '\n':
		case 'a':
			_ = sb.WriteByte('\a')
		case 'b':
			_ = sb.WriteByte('\b')
		case 'e':
			_ = sb.WriteByte(0x1b)
		case 'f':
			_ = sb.WriteByte('\f')
		case 'n':
			_ = sb.WriteByte('\n')
		case 'r':
			_ = sb.WriteByte('\r')
		case 't':
			_ = sb.WriteByte('\t')
		case 'v':
			_ = sb.WriteByte('\v')
		case '\\', '\'', '"', '`':
			_ = sb.WriteByte(c)
		default: // `\x23\` or `\23\`
			end := strings.IndexByte(s[i:], '\\')
			if end < 0 {
				return "", errInvalidEscape
			}
			digits, base := s[i:i+end], 8
			if c == 'x' {
				digits, base = digits[1:], 16
			}
			r, err := strconv.ParseInt(digits, base, 32)
			if err != nil || !utf8.ValidRune(rune(r)) {
				return "", errInvalidEscape
			}
			_, _ = sb.WriteRune(rune(r))
			i += end
		}
	}
	return sb.String(), nil
}

var errInvalidEscape = errors.New("invalid escape sequence")

type unexpectedTokenError struct {
	actual Token
}

func (e unexpectedTokenError) Error() string {
	return fmt.Sprintf("unexpected token: %s", e.actual)
}
