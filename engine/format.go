package engine

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

type formatState struct {
	priority    int
	visited     map[int]struct{}
	left, right Operator
	depth       int
}

// Formatter writes a term stored in cells, either the heap of a machine or a record.
type Formatter struct {
	Term   Word
	Cells  []Word
	Consts *ConstTable

	IgnoreOps    bool
	Quoted       bool
	VariableName map[Word]string
	NumberVars   bool

	Ops       *Operators
	MaxDepth  int
	Precision int
}

// Formatter returns a formatter of w with the machine's operators.
func (m *Machine) Formatter(w Word) *Formatter {
	return &Formatter{
		Term:      w,
		Cells:     m.heap,
		Consts:    m.consts,
		Ops:       m.ops,
		Precision: -1,
	}
}

// Format implements fmt.Formatter. %q quotes atoms, the - flag ignores operators, the # flag writes
// '$VAR'(N) as a variable name, the width limits the depth and the precision applies to floats.
func (f *Formatter) Format(s fmt.State, verb rune) {
	c := *f
	c.Quoted = verb == 'q'
	c.IgnoreOps = s.Flag('-')
	c.NumberVars = s.Flag('#')

	if w, ok := s.Width(); ok {
		c.MaxDepth = w
	}

	if p, ok := s.Precision(); ok {
		c.Precision = p
	} else {
		c.Precision = -1
	}

	_, _ = c.WriteTo(s)
}

// WriteTo writes the term to w.
func (f *Formatter) WriteTo(w io.Writer) (int64, error) {
	state := formatState{
		priority: 1201,
	}
	return f.writeTerm(w, f.Term, state)
}

func (f *Formatter) String() string {
	var sb strings.Builder
	_, _ = f.WriteTo(&sb)
	return sb.String()
}

func (f *Formatter) deref(w Word) Word {
	for w.Tag() == TagVariable && !w.IsVoid() {
		v := f.Cells[w.Index()]
		if v == w {
			return w
		}
		w = v
	}
	return w
}

func (f *Formatter) writeTerm(w io.Writer, t Word, state formatState) (int64, error) {
	t = f.deref(t)

	if t.Tag() == TagCompound {
		if _, ok := state.visited[t.Index()]; ok || (f.MaxDepth > 0 && state.depth > f.MaxDepth) {
			return f.writeAtom(w, "...", state)
		}
	}

	switch t.Tag() {
	case TagVariable:
		return f.writeVariable(w, t, state)
	case TagExternal:
		return fprintf(w, "<external>(%d)", t.Index())
	case TagConstant:
		return f.writeConstant(w, t.ConstID(), state)
	}

	visited := make(map[int]struct{}, len(state.visited)+1)
	for k := range state.visited {
		visited[k] = struct{}{}
	}
	visited[t.Index()] = struct{}{}
	state.visited = visited
	return f.writeCompound(w, t, state)
}

func (f *Formatter) writeConstant(w io.Writer, id ConstID, state formatState) (int64, error) {
	t := f.Consts
	switch t.Kind(id) {
	case KindAtom:
		name, _ := t.AtomText(id)
		return f.writeAtom(w, name, state)
	case KindInteger:
		n, _ := t.IntegerValue(id)
		return f.writeInteger(w, big.NewInt(n), state)
	case KindBigInteger:
		n, _ := t.BigIntegerValue(id)
		return f.writeInteger(w, n, state)
	case KindFloat:
		x, _ := t.FloatValue(id)
		return f.writeFloat(w, x, state)
	case KindRational:
		r, _ := t.RationalValue(id)
		return fprintf(w, "%sr%s", r.Num(), r.Denom())
	case KindBlob:
		b, _ := t.BlobOf(id)
		return fprintf(w, "<%s>(%d)", b.Type, id)
	case KindFunctor:
		return fprint(w, t.FunctorString(id))
	default:
		return fprintf(w, "<invalid>(%d)", id)
	}
}

func (f *Formatter) writeVariable(w io.Writer, v Word, state formatState) (int64, error) {
	ew := errWriter{w: w}
	if letterDigit(state.left.Name) {
		_, _ = fmt.Fprint(&ew, " ")
	}
	if name, ok := f.VariableName[v]; ok {
		_, _ = fmt.Fprint(&ew, name)
	} else {
		_, _ = fmt.Fprintf(&ew, "_%d", v.Index())
	}
	if letterDigit(state.right.Name) {
		_, _ = fmt.Fprint(&ew, " ")
	}
	return ew.Result()
}

func (f *Formatter) writeAtom(w io.Writer, name string, state formatState) (int64, error) {
	ew := errWriter{w: w}
	openClose := (state.left != (Operator{}) || state.right != (Operator{})) && f.Ops.Defined(name)

	if openClose {
		if state.left.Name != "" && state.left.Specifier.Class() == OperatorClassPrefix {
			_, _ = fmt.Fprint(&ew, " ")
		}
		_, _ = fmt.Fprint(&ew, "(")
		state.left, state.right = Operator{}, Operator{}
	}

	if f.Quoted && needQuoted(name) {
		if state.left != (Operator{}) && needQuoted(state.left.Name) { // Avoid 'FOO''BAR'.
			_, _ = fmt.Fprint(&ew, " ")
		}
		_, _ = ew.Write([]byte(quote(name)))
		if state.right != (Operator{}) && needQuoted(state.right.Name) {
			_, _ = fmt.Fprint(&ew, " ")
		}
	} else {
		if (letterDigit(state.left.Name) && letterDigit(name)) || (graphic(state.left.Name) && graphic(name)) {
			_, _ = fmt.Fprint(&ew, " ")
		}
		_, _ = fmt.Fprint(&ew, name)
		if (letterDigit(state.right.Name) && letterDigit(name)) || (graphic(state.right.Name) && graphic(name)) {
			_, _ = fmt.Fprint(&ew, " ")
		}
	}

	if openClose {
		_, _ = fmt.Fprint(&ew, ")")
	}

	return ew.Result()
}

var (
	unquotedAtomPattern     = regexp.MustCompile(`\A[a-z][a-zA-Z0-9_]*\z`)
	graphicAtomPattern      = regexp.MustCompile(`\A[#$&*+\-./:<=>?@^~\\]+\z`)
	quotedAtomEscapePattern = regexp.MustCompile(`[[:cntrl:]]|\\|'`)
)

func needQuoted(name string) bool {
	switch name {
	case "[]", "{}", "!", ";":
		return false
	}
	return !unquotedAtomPattern.MatchString(name) && !graphicAtomPattern.MatchString(name)
}

func quotedIdentEscape(s string) string {
	switch s {
	case "\a":
		return `\a`
	case "\b":
		return `\b`
	case "\f":
		return `\f`
	case "\n":
		return `\n`
	case "\r":
		return `\r`
	case "\t":
		return `\t`
	case "\v":
		return `\v`
	case `\`:
		return `\\`
	case `'`:
		return `\'`
	default:
		var ret []string
		for _, r := range s {
			ret = append(ret, fmt.Sprintf(`\x%x\`, r))
		}
		return strings.Join(ret, "")
	}
}

func quote(s string) string {
	return fmt.Sprintf("'%s'", quotedAtomEscapePattern.ReplaceAllStringFunc(s, quotedIdentEscape))
}

func letterDigit(s string) bool {
	return len(s) > 0 && (s[0] >= 'a' && s[0] <= 'z' || s[0] >= 'A' && s[0] <= 'Z' || s[0] >= '0' && s[0] <= '9' || s[0] == '_')
}

func graphic(s string) bool {
	return len(s) > 0 && strings.ContainsRune(`#$&*+-./:<=>?@^~\`, rune(s[0]))
}

func (f *Formatter) writeInteger(w io.Writer, i *big.Int, state formatState) (int64, error) {
	ew := errWriter{w: w}
	openClose := state.left.Name == "-" && state.left.Specifier.Class() == OperatorClassPrefix && i.Sign() > 0

	if openClose {
		_, _ = ew.Write([]byte(" ("))
		state.left = Operator{}
		state.right = Operator{}
	} else {
		if state.left != (Operator{}) && (letterDigit(state.left.Name) || (i.Sign() < 0 && graphic(state.left.Name))) {
			_, _ = ew.Write([]byte(" "))
		}
	}

	_, _ = ew.Write([]byte(i.String()))

	if openClose {
		_, _ = ew.Write([]byte(")"))
	}

	// Avoid ambiguous 0b, 0o, 0x or 0'.
	if !openClose && state.right != (Operator{}) && (letterDigit(state.right.Name) || (needQuoted(state.right.Name) && state.right.Name != "," && state.right.Name != "|")) {
		_, _ = ew.Write([]byte(" "))
	}

	return ew.Result()
}

func (f *Formatter) writeFloat(w io.Writer, x float64, state formatState) (int64, error) {
	ew := errWriter{w: w}
	openClose := state.left.Name == "-" && state.left.Specifier.Class() == OperatorClassPrefix && x > 0

	if openClose || (x < 0 && state.left != Operator{}) {
		_, _ = ew.Write([]byte(" "))
	}

	if openClose {
		_, _ = ew.Write([]byte("("))
	}

	var s string
	switch {
	case math.IsInf(x, 1):
		s = "inf"
	case math.IsInf(x, -1):
		s = "-inf"
	case math.IsNaN(x):
		s = "nan"
	default:
		s = strconv.FormatFloat(x, 'g', f.Precision, 64)
		if !strings.ContainsRune(s, '.') {
			if strings.ContainsRune(s, 'e') {
				s = strings.Replace(s, "e", ".0e", 1)
			} else {
				s += ".0"
			}
		}
	}
	_, _ = ew.Write([]byte(s))

	if openClose {
		_, _ = ew.Write([]byte(")"))
	}

	if !openClose && state.right != (Operator{}) && (state.right.Name == "e" || state.right.Name == "E") {
		_, _ = ew.Write([]byte(" "))
	}

	return ew.Result()
}

func (f *Formatter) functor(c Word) (string, int) {
	fn, ok := f.Consts.FunctorOf(f.Cells[c.Index()].ConstID())
	if !ok {
		panic(internalErrorf("malformed compound at %d", c.Index()))
	}
	name, _ := f.Consts.AtomText(fn.Name)
	return name, fn.Arity
}

func (f *Formatter) arg(c Word, i int) Word {
	return f.Cells[c.Index()+1+i]
}

func (f *Formatter) writeCompound(w io.Writer, c Word, state formatState) (int64, error) {
	name, arity := f.functor(c)
	if name == "$VAR" && arity == 1 && f.NumberVars {
		if a := f.deref(f.arg(c, 0)); a.Tag() == TagConstant {
			if n, ok := f.Consts.IntegerValue(a.ConstID()); ok {
				return writeCompoundNumberVars(w, n)
			}
		}
	}

	if !f.IgnoreOps {
		switch {
		case name == "." && arity == 2:
			return f.writeCompoundList(w, c, state)
		case name == "{}" && arity == 1:
			return f.writeCompoundCurlyBracketed(w, c, state)
		}

		switch arity {
		case 1:
			if op, ok := f.Ops.Lookup(name, OperatorClassPrefix); ok {
				return f.writeCompoundOpPrefix(w, c, name, &op, state)
			}
			if op, ok := f.Ops.Lookup(name, OperatorClassPostfix); ok {
				return f.writeCompoundOpPostfix(w, c, name, &op, state)
			}
		case 2:
			if op, ok := f.Ops.Lookup(name, OperatorClassInfix); ok {
				return f.writeCompoundOpInfix(w, c, name, &op, state)
			}
		}
	}

	return f.writeCompoundFunctionalNotation(w, c, name, arity, state)
}

func writeCompoundNumberVars(w io.Writer, n int64) (int64, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	ew := errWriter{w: w}
	i, j := int(n)%len(letters), int(n)/len(letters)
	_, _ = fmt.Fprint(&ew, string(letters[i]))
	if j != 0 {
		_, _ = fmt.Fprint(&ew, strconv.Itoa(j))
	}
	return ew.Result()
}

func (f *Formatter) writeCompoundList(w io.Writer, c Word, state formatState) (int64, error) {
	ew := errWriter{w: w}
	state.priority = 999
	state.left = Operator{}
	state.right = Operator{}
	_, _ = fmt.Fprint(&ew, "[")
	_, _ = f.writeTerm(&ew, f.arg(c, 0), state)
	seen := map[int]struct{}{c.Index(): {}}
	for t := f.deref(f.arg(c, 1)); ; t = f.deref(f.arg(t, 1)) {
		if t.Tag() == TagConstant {
			if name, _ := f.Consts.AtomText(t.ConstID()); name == "[]" {
				break
			}
		}
		if t.Tag() != TagCompound {
			_, _ = fmt.Fprint(&ew, "|")
			_, _ = f.writeTerm(&ew, t, state)
			break
		}
		if name, arity := f.functor(t); name != "." || arity != 2 {
			_, _ = fmt.Fprint(&ew, "|")
			_, _ = f.writeTerm(&ew, t, state)
			break
		}
		if _, ok := seen[t.Index()]; ok || (f.MaxDepth > 0 && state.depth > f.MaxDepth) {
			_, _ = fmt.Fprint(&ew, "|")
			_, _ = f.writeAtom(&ew, "...", state)
			break
		}
		seen[t.Index()] = struct{}{}
		state.depth++
		_, _ = fmt.Fprint(&ew, ",")
		_, _ = f.writeTerm(&ew, f.arg(t, 0), state)
	}
	_, _ = fmt.Fprint(&ew, "]")
	return ew.Result()
}

func (f *Formatter) writeCompoundCurlyBracketed(w io.Writer, c Word, state formatState) (int64, error) {
	ew := errWriter{w: w}
	state.left = Operator{}
	_, _ = fmt.Fprint(&ew, "{")
	_, _ = f.writeTerm(&ew, f.arg(c, 0), state)
	_, _ = fmt.Fprint(&ew, "}")
	return ew.Result()
}

func (f *Formatter) writeCompoundOpPrefix(w io.Writer, c Word, name string, op *Operator, state formatState) (int64, error) {
	ew := errWriter{w: w}
	_, r := op.BindingPriorities()
	openClose := state.priority < op.Priority || (state.right != Operator{} && r >= state.right.Priority)

	if state.left != (Operator{}) {
		_, _ = fmt.Fprint(&ew, " ")
	}
	if openClose {
		_, _ = fmt.Fprint(&ew, "(")
		state.left = Operator{}
		state.right = Operator{}
	}
	{
		state := state
		state.left = Operator{}
		state.right = Operator{}
		_, _ = f.writeAtom(&ew, name, state)
	}
	{
		state := state
		state.priority = r
		state.left = *op
		state.depth++
		_, _ = f.writeTerm(&ew, f.arg(c, 0), state)
	}
	if openClose {
		_, _ = fmt.Fprint(&ew, ")")
	}
	return ew.Result()
}

func (f *Formatter) writeCompoundOpPostfix(w io.Writer, c Word, name string, op *Operator, state formatState) (int64, error) {
	ew := errWriter{w: w}
	l, _ := op.BindingPriorities()
	openClose := state.priority < op.Priority || (state.left.Name == "-" && state.left.Specifier.Class() == OperatorClassPrefix)

	if openClose {
		if state.left != (Operator{}) {
			_, _ = fmt.Fprint(&ew, " ")
		}
		_, _ = fmt.Fprint(&ew, "(")
		state.left = Operator{}
		state.right = Operator{}
	}
	{
		state := state
		state.priority = l
		state.right = *op
		state.depth++
		_, _ = f.writeTerm(&ew, f.arg(c, 0), state)
	}
	{
		state := state
		state.left = Operator{}
		state.right = Operator{}
		_, _ = f.writeAtom(&ew, name, state)
	}
	if openClose {
		_, _ = fmt.Fprint(&ew, ")")
	} else if state.right != (Operator{}) {
		_, _ = fmt.Fprint(&ew, " ")
	}
	return ew.Result()
}

func (f *Formatter) writeCompoundOpInfix(w io.Writer, c Word, name string, op *Operator, state formatState) (int64, error) {
	ew := errWriter{w: w}
	l, r := op.BindingPriorities()
	openClose := state.priority < op.Priority ||
		(state.left.Name == "-" && state.left.Specifier.Class() == OperatorClassPrefix) ||
		(state.right != Operator{} && r >= state.right.Priority)

	if openClose {
		if state.left != (Operator{}) && state.left.Specifier.Class() == OperatorClassPrefix {
			_, _ = fmt.Fprint(&ew, " ")
		}
		_, _ = fmt.Fprint(&ew, "(")
		state.left = Operator{}
		state.right = Operator{}
	}
	{
		state := state
		state.priority = l
		state.right = *op
		state.depth++
		_, _ = f.writeTerm(&ew, f.arg(c, 0), state)
	}
	switch name {
	case ",", "|":
		_, _ = fmt.Fprint(&ew, name)
	default:
		state := state
		state.left = Operator{}
		state.right = Operator{}
		_, _ = f.writeAtom(&ew, name, state)
	}
	{
		state := state
		state.priority = r
		state.left = *op
		state.depth++
		_, _ = f.writeTerm(&ew, f.arg(c, 1), state)
	}
	if openClose {
		_, _ = fmt.Fprint(&ew, ")")
	}
	return ew.Result()
}

func (f *Formatter) writeCompoundFunctionalNotation(w io.Writer, c Word, name string, arity int, state formatState) (int64, error) {
	ew := errWriter{w: w}
	state.right = Operator{}
	_, _ = f.writeAtom(&ew, name, state)
	_, _ = fmt.Fprint(&ew, "(")
	state.left = Operator{}
	state.priority = 999
	state.depth++
	for i := 0; i < arity; i++ {
		if i != 0 {
			_, _ = fmt.Fprint(&ew, ",")
		}
		_, _ = f.writeTerm(&ew, f.arg(c, i), state)
	}
	_, _ = fmt.Fprint(&ew, ")")
	return ew.Result()
}

func fprintf(w io.Writer, format string, args ...any) (int64, error) {
	n, err := fmt.Fprintf(w, format, args...)
	return int64(n), err
}

func fprint(w io.Writer, args ...any) (int64, error) {
	n, err := fmt.Fprint(w, args...)
	return int64(n), err
}

// https://go.dev/blog/errors-are-values
type errWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, nil
	}
	var n int
	n, ew.err = ew.w.Write(p)
	ew.n += int64(n)
	return n, nil
}

func (ew *errWriter) Result() (int64, error) {
	return ew.n, ew.err
}
