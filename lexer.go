package prolog

import (
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Lexer turns runes into tokens.
type Lexer struct {
	input io.RuneReader

	// runes read ahead of pos so that the lexer can back up any number of runes within a token.
	runes []rune
	pos   int

	buf strings.Builder
}

// NewLexer creates a lexer reading from r.
func NewLexer(r io.RuneReader) *Lexer {
	return &Lexer{input: r}
}

// Token returns the next token. It returns io.EOF at the end of input and io.ErrUnexpectedEOF if the input ends in
// the middle of a token.
func (l *Lexer) Token() (Token, error) {
	l.runes = l.runes[l.pos:]
	l.pos = 0
	l.buf.Reset()
	return l.layoutTextSequence(false)
}

func (l *Lexer) next() (rune, error) {
	if l.pos < len(l.runes) {
		r := l.runes[l.pos]
		l.pos++
		return r, nil
	}
	r, _, err := l.input.ReadRune()
	if err != nil {
		return 0, err
	}
	l.runes = append(l.runes, r)
	l.pos++
	return r, nil
}

func (l *Lexer) backup() {
	l.pos--
}

func (l *Lexer) accept(r rune) {
	_, _ = l.buf.WriteRune(r)
}

func (l *Lexer) token(k tokenKind) Token {
	return Token{kind: k, val: l.buf.String()}
}

// Token is a smallest meaningful unit of prolog program.
type Token struct {
	kind tokenKind
	val  string
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%s)", t.kind, t.val)
}

type tokenKind byte

const (
	tokenInvalid tokenKind = iota
	tokenLetterDigit
	tokenGraphic
	tokenQuoted
	tokenSemicolon
	tokenCut
	tokenVariable
	tokenInteger
	tokenFloatNumber
	tokenDoubleQuotedList
	tokenBackQuotedString
	tokenOpen
	tokenOpenCT
	tokenClose
	tokenOpenList
	tokenCloseList
	tokenOpenCurly
	tokenCloseCurly
	tokenBar
	tokenComma
	tokenEnd
)

func (k tokenKind) String() string {
	return [...]string{
		tokenInvalid:          "invalid",
		tokenLetterDigit:      "letter digit",
		tokenGraphic:          "graphic",
		tokenQuoted:           "quoted",
		tokenSemicolon:        "semicolon",
		tokenCut:              "cut",
		tokenVariable:         "variable",
		tokenInteger:          "integer",
		tokenFloatNumber:      "float number",
		tokenDoubleQuotedList: "double quoted list",
		tokenBackQuotedString: "back quoted string",
		tokenOpen:             "open",
		tokenOpenCT:           "open ct",
		tokenClose:            "close",
		tokenOpenList:         "open list",
		tokenCloseList:        "close list",
		tokenOpenCurly:        "open curly",
		tokenCloseCurly:       "close curly",
		tokenBar:              "bar",
		tokenComma:            "comma",
		tokenEnd:              "end",
	}[k]
}

var soloTokenKinds = map[rune]tokenKind{
	';': tokenSemicolon,
	'!': tokenCut,
	')': tokenClose,
	'[': tokenOpenList,
	']': tokenCloseList,
	'{': tokenOpenCurly,
	'}': tokenCloseCurly,
	'|': tokenBar,
	',': tokenComma,
}

// eof turns io.EOF in the middle of a token into io.ErrUnexpectedEOF.
func eof(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (l *Lexer) layoutTextSequence(afterLayout bool) (Token, error) {
	for {
		r, err := l.next()
		switch {
		case err != nil:
			return Token{}, err
		case isLayoutChar(r):
			afterLayout = true
		case r == '%':
			if err := l.singleLineComment(); err != nil {
				return Token{}, err
			}
			afterLayout = true
		case r == '/':
			switch r, err := l.next(); {
			case err == nil && r == '*':
				if err := l.bracketedComment(); err != nil {
					return Token{}, err
				}
				afterLayout = true
			case err == nil:
				l.backup()
				fallthrough
			case err == io.EOF:
				l.accept('/')
				return l.graphicToken()
			default:
				return Token{}, err
			}
		default:
			l.backup()
			return l.token0(afterLayout)
		}
	}
}

func (l *Lexer) singleLineComment() error {
	for {
		switch r, err := l.next(); {
		case err != nil:
			return err
		case r == '\n':
			return nil
		}
	}
}

func (l *Lexer) bracketedComment() error {
	for {
		r, err := l.next()
		if err != nil {
			return eof(err)
		}
		if r != '*' {
			continue
		}
		switch r, err := l.next(); {
		case err != nil:
			return eof(err)
		case r == '/':
			return nil
		default:
			l.backup()
		}
	}
}

func (l *Lexer) token0(afterLayout bool) (Token, error) {
	r, err := l.next()
	if err != nil {
		return Token{}, err
	}
	switch {
	case isSmallLetterChar(r):
		l.accept(r)
		return l.letterDigitToken()
	case r == '.':
		l.accept(r)
		switch r, err := l.next(); {
		case err == io.EOF:
			return l.token(tokenEnd), nil
		case err != nil:
			return Token{}, err
		case isLayoutChar(r) || r == '%':
			l.backup()
			return l.token(tokenEnd), nil
		default:
			l.backup()
			return l.graphicToken()
		}
	case isGraphicChar(r), r == '\\':
		l.accept(r)
		return l.graphicToken()
	case r == '\'':
		return l.quotedToken('\'', tokenQuoted)
	case r == '"':
		return l.quotedToken('"', tokenDoubleQuotedList)
	case r == '`':
		return l.quotedToken('`', tokenBackQuotedString)
	case r == '_', isCapitalLetterChar(r):
		l.accept(r)
		return l.variableToken()
	case isDecimalDigitChar(r):
		l.accept(r)
		if r == '0' {
			return l.integerZero()
		}
		return l.integerConstant()
	case r == '(':
		l.accept(r)
		if afterLayout {
			return l.token(tokenOpen), nil
		}
		return l.token(tokenOpenCT), nil
	default:
		l.accept(r)
		return l.token(soloTokenKinds[r]), nil
	}
}

func (l *Lexer) letterDigitToken() (Token, error) {
	return l.many(isAlphanumericChar, tokenLetterDigit)
}

func (l *Lexer) variableToken() (Token, error) {
	return l.many(isAlphanumericChar, tokenVariable)
}

func (l *Lexer) graphicToken() (Token, error) {
	return l.many(func(r rune) bool {
		return isGraphicChar(r) || r == '\\'
	}, tokenGraphic)
}

// many accepts runes while ok holds and returns a token of kind k.
func (l *Lexer) many(ok func(rune) bool, k tokenKind) (Token, error) {
	for {
		r, err := l.next()
		switch {
		case err == io.EOF:
			return l.token(k), nil
		case err != nil:
			return Token{}, err
		case ok(r):
			l.accept(r)
		default:
			l.backup()
			return l.token(k), nil
		}
	}
}

// quotedToken reads up to the closing quote q. The token value keeps the quotes and escapes as written.
func (l *Lexer) quotedToken(q rune, k tokenKind) (Token, error) {
	l.accept(q)
	for {
		r, err := l.next()
		if err != nil {
			return Token{}, eof(err)
		}
		l.accept(r)
		switch r {
		case q:
			switch r, err := l.next(); {
			case err == io.EOF:
				return l.token(k), nil
			case err != nil:
				return Token{}, err
			case r == q:
				l.accept(r)
			default:
				l.backup()
				s := l.buf.String()
				if _, err := unquote(s); err != nil {
					return Token{kind: tokenInvalid, val: s}, nil
				}
				return l.token(k), nil
			}
		case '\\':
			r, err := l.next()
			if err != nil {
				return Token{}, eof(err)
			}
			l.accept(r)
			if r == 'x' || isOctalDigitChar(r) {
				if err := l.numericEscape(); err != nil {
					return Token{}, err
				}
			}
		case '\n':
			return l.token(tokenInvalid), nil
		}
	}
}

// numericEscape reads the digits of \xHH\ or \OOO\ up to and including the closing backslash.
func (l *Lexer) numericEscape() error {
	for {
		r, err := l.next()
		switch {
		case err != nil:
			return eof(err)
		case r == '\\':
			l.accept(r)
			return nil
		case !isHexadecimalDigitChar(r):
			l.backup()
			return nil
		}
		l.accept(r)
	}
}

func (l *Lexer) integerZero() (Token, error) {
	r, err := l.next()
	switch {
	case err == io.EOF:
		return l.token(tokenInteger), nil
	case err != nil:
		return Token{}, err
	case r == '\'':
		return l.characterCode()
	case r == 'b', r == 'o', r == 'x':
		digit := map[rune]func(rune) bool{
			'b': isBinaryDigitChar,
			'o': isOctalDigitChar,
			'x': isHexadecimalDigitChar,
		}[r]
		switch d, err := l.next(); {
		case err == nil && digit(d):
			l.accept(r)
			l.accept(d)
			return l.many(digit, tokenInteger)
		case err == nil:
			l.backup()
			fallthrough
		case err == io.EOF:
			l.backup()
			return l.token(tokenInteger), nil
		default:
			return Token{}, err
		}
	default:
		l.backup()
		return l.integerConstant()
	}
}

// characterCode reads the rest of 0'c.
func (l *Lexer) characterCode() (Token, error) {
	l.accept('\'')
	r, err := l.next()
	if err != nil {
		return Token{}, eof(err)
	}
	switch {
	case r == '\\':
		l.accept(r)
		r, err := l.next()
		if err != nil {
			return Token{}, eof(err)
		}
		l.accept(r)
		switch {
		case isMetaChar(r), isSymbolicControlChar(r):
			return l.token(tokenInteger), nil
		case isOctalDigitChar(r), r == 'x':
			for {
				r, err := l.next()
				if err != nil {
					return Token{}, eof(err)
				}
				l.accept(r)
				switch {
				case r == '\\':
					return l.token(tokenInteger), nil
				case !isHexadecimalDigitChar(r):
					return l.token(tokenInvalid), nil
				}
			}
		default:
			return l.token(tokenInvalid), nil
		}
	case r == '\'':
		l.accept(r)
		switch r, err := l.next(); {
		case err == nil && r == '\'':
			l.accept(r)
			return l.token(tokenInteger), nil
		case err == nil:
			l.backup()
			return l.token(tokenInvalid), nil
		default:
			return Token{}, eof(err)
		}
	case isGraphicChar(r), isAlphanumericChar(r), isSoloChar(r), r == ' ', r == '"', r == '`':
		l.accept(r)
		return l.token(tokenInteger), nil
	default:
		l.accept(r)
		return l.token(tokenInvalid), nil
	}
}

func (l *Lexer) integerConstant() (Token, error) {
	for {
		r, err := l.next()
		switch {
		case err == io.EOF:
			return l.token(tokenInteger), nil
		case err != nil:
			return Token{}, err
		case isDecimalDigitChar(r):
			l.accept(r)
		case r == '.':
			switch d, err := l.next(); {
			case err == nil && isDecimalDigitChar(d):
				l.accept(r)
				l.accept(d)
				return l.fraction()
			case err == nil:
				l.backup()
				fallthrough
			case err == io.EOF:
				l.backup()
				return l.token(tokenInteger), nil
			default:
				return Token{}, err
			}
		default:
			l.backup()
			return l.token(tokenInteger), nil
		}
	}
}

func (l *Lexer) fraction() (Token, error) {
	for {
		r, err := l.next()
		switch {
		case err == io.EOF:
			return l.token(tokenFloatNumber), nil
		case err != nil:
			return Token{}, err
		case isDecimalDigitChar(r):
			l.accept(r)
		case isExponentChar(r):
			return l.exponent(r)
		default:
			l.backup()
			return l.token(tokenFloatNumber), nil
		}
	}
}

// exponent reads an exponent after e. Without digits, e is not a part of the number.
func (l *Lexer) exponent(e rune) (Token, error) {
	mark := l.pos - 1
	var sign rune
	r, err := l.next()
	if err == nil && isSignChar(r) {
		sign = r
		r, err = l.next()
	}
	switch {
	case err == io.EOF, err == nil && !isDecimalDigitChar(r):
		l.pos = mark
		return l.token(tokenFloatNumber), nil
	case err != nil:
		return Token{}, err
	}
	l.accept(e)
	if sign != 0 {
		l.accept(sign)
	}
	l.accept(r)
	return l.many(isDecimalDigitChar, tokenFloatNumber)
}

func isGraphicChar(r rune) bool {
	return strings.ContainsRune(`#$&*+-./:<=>?@^~`, r) || unicode.In(r, &unicode.RangeTable{
		R16: []unicode.Range16{
			{Lo: 0x2200, Hi: 0x22FF, Stride: 1},
			{Lo: 0x2A00, Hi: 0x2AFF, Stride: 1},
		},
	})
}

func isAlphanumericChar(r rune) bool {
	return r == '_' || isCapitalLetterChar(r) || isSmallLetterChar(r) || isDecimalDigitChar(r)
}

func isSmallLetterChar(r rune) bool {
	return unicode.In(r, unicode.Ll, unicode.Lo, unicode.Lm)
}

func isCapitalLetterChar(r rune) bool {
	return unicode.IsUpper(r)
}

func isDecimalDigitChar(r rune) bool {
	return '0' <= r && r <= '9'
}

func isBinaryDigitChar(r rune) bool {
	return r == '0' || r == '1'
}

func isOctalDigitChar(r rune) bool {
	return '0' <= r && r <= '7'
}

func isHexadecimalDigitChar(r rune) bool {
	return strings.ContainsRune("0123456789ABCDEF", unicode.ToUpper(r))
}

func isSoloChar(r rune) bool {
	return strings.ContainsRune(`!(),;[]{}|%`, r)
}

func isLayoutChar(r rune) bool {
	return unicode.IsSpace(r)
}

func isMetaChar(r rune) bool {
	return strings.ContainsRune("\\'\"`", r)
}

func isSymbolicControlChar(r rune) bool {
	return strings.ContainsRune(`abrftnve`, r)
}

func isExponentChar(r rune) bool {
	return r == 'e' || r == 'E'
}

func isSignChar(r rune) bool {
	return r == '-' || r == '+'
}
