package engine

import (
	"math"
	"math/big"

	"github.com/cockroachdb/apd"
)

// Evaluation values are int64, *big.Int outside the int64 range, or float64.
type number any

type (
	unaryFunc  func(m *Machine, x number) (number, error)
	binaryFunc func(m *Machine, x, y number) (number, error)
)

var constantFuncs = map[string]number{
	"pi":                 math.Pi,
	"e":                  math.E,
	"inf":                math.Inf(1),
	"infinite":           math.Inf(1),
	"nan":                math.NaN(),
	"epsilon":            math.Nextafter(1, 2) - 1,
	"max_tagged_integer": int64(math.MaxInt64),
	"min_tagged_integer": int64(math.MinInt64),
}

var unaryFuncs map[string]unaryFunc

var binaryFuncs map[string]binaryFunc

func init() {
	unaryFuncs = map[string]unaryFunc{
		"-":                     neg,
		"+":                     pos,
		"abs":                   abs,
		"sign":                  signum,
		"sqrt":                  floatFunc(math.Sqrt, func(x float64) bool { return x < 0 }),
		"sin":                   floatFunc(math.Sin, nil),
		"cos":                   floatFunc(math.Cos, nil),
		"tan":                   floatFunc(math.Tan, nil),
		"asin":                  floatFunc(math.Asin, func(x float64) bool { return x < -1 || x > 1 }),
		"acos":                  floatFunc(math.Acos, func(x float64) bool { return x < -1 || x > 1 }),
		"atan":                  floatFunc(math.Atan, nil),
		"exp":                   floatFunc(math.Exp, nil),
		"log":                   floatFunc(math.Log, func(x float64) bool { return x <= 0 }),
		"log2":                  floatFunc(math.Log2, func(x float64) bool { return x <= 0 }),
		"float":                 toFloatFunc,
		"integer":               roundFunc(math.Round),
		"float_integer_part":    floatFunc(math.Trunc, nil),
		"float_fractional_part": floatFunc(func(x float64) float64 { return x - math.Trunc(x) }, nil),
		"truncate":              roundFunc(math.Trunc),
		"round":                 roundFunc(math.Round),
		"ceiling":               roundFunc(math.Ceil),
		"floor":                 roundFunc(math.Floor),
		`\`:                     bitNot,
		"msb":                   msb,
		"succ":                  succ,
	}

	binaryFuncs = map[string]binaryFunc{
		"+":        add,
		"-":        sub,
		"*":        mul,
		"/":        div,
		"//":       intDiv,
		"rem":      rem,
		"mod":      mod,
		"div":      floorDiv,
		"min":      minimum,
		"max":      maximum,
		"**":       power,
		"^":        intPower,
		">>":       shiftRight,
		"<<":       shiftLeft,
		`/\`:       bitAnd,
		`\/`:       bitOr,
		"xor":      bitXor,
		"atan2":    floatFunc2(math.Atan2),
		"atan":     floatFunc2(math.Atan2),
		"copysign": floatFunc2(math.Copysign),
		"gcd":      gcd,
	}
}

// Eval evaluates an arithmetic expression and returns the resulting number.
func (m *Machine) Eval(w Word) (Word, error) {
	v, err := m.eval(w)
	if err != nil {
		return 0, err
	}
	return m.numberWord(v), nil
}

func (m *Machine) numberWord(v number) Word {
	switch v := v.(type) {
	case int64:
		return m.NewInteger(v)
	case *big.Int:
		return m.NewBigInteger(v)
	default:
		return m.NewFloat(v.(float64))
	}
}

func (m *Machine) eval(w Word) (number, error) {
	w = m.deref(w)
	switch w.Tag() {
	case TagVariable:
		return nil, m.InstantiationError()
	case TagConstant:
		id := w.ConstID()
		t := m.consts
		switch t.Kind(id) {
		case KindInteger:
			n, _ := t.IntegerValue(id)
			return n, nil
		case KindBigInteger:
			n, _ := t.BigIntegerValue(id)
			return n, nil
		case KindFloat:
			f, _ := t.FloatValue(id)
			return f, nil
		case KindRational:
			r, _ := t.RationalValue(id)
			f, _ := r.Float64()
			return f, nil
		case KindAtom:
			name, _ := t.AtomText(id)
			if v, ok := constantFuncs[name]; ok {
				return v, nil
			}
			if name == "[]" {
				break
			}
			return nil, m.TypeError(ValidTypeEvaluable, m.indicator(t.Functor(id, 0)))
		}
		return nil, m.TypeError(ValidTypeEvaluable, w)
	case TagCompound:
		f := m.functorOf(w)
		name, _ := m.consts.AtomText(f.Name)
		args := m.argsOf(w)
		switch f.Arity {
		case 1:
			if name == "." {
				break
			}
			if fn, ok := unaryFuncs[name]; ok {
				x, err := m.eval(args[0])
				if err != nil {
					return nil, err
				}
				return fn(m, x)
			}
		case 2:
			if f.Name == m.consts.Atom(".") && m.isAtom(m.deref(args[1]), m.atom.nil) {
				return m.eval(args[0])
			}
			if fn, ok := binaryFuncs[name]; ok {
				x, err := m.eval(args[0])
				if err != nil {
					return nil, err
				}
				y, err := m.eval(args[1])
				if err != nil {
					return nil, err
				}
				return fn(m, x, y)
			}
		}
		return nil, m.TypeError(ValidTypeEvaluable, m.indicator(m.heap[w.Index()].ConstID()))
	}
	return nil, m.TypeError(ValidTypeEvaluable, w)
}

// compareNumbers compares two evaluated numbers. Mixed comparisons are done in floating point.
func compareNumbers(x, y number) int {
	switch x := x.(type) {
	case int64:
		switch y := y.(type) {
		case int64:
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		case *big.Int:
			return big.NewInt(x).Cmp(y)
		}
	case *big.Int:
		switch y := y.(type) {
		case int64:
			return x.Cmp(big.NewInt(y))
		case *big.Int:
			return x.Cmp(y)
		}
	}
	fx, fy := floatOf(x), floatOf(y)
	switch {
	case fx < fy:
		return -1
	case fx > fy:
		return 1
	default:
		return 0
	}
}

func sign64(n int64) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func floatOf(x number) float64 {
	switch x := x.(type) {
	case int64:
		return float64(x)
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	default:
		return x.(float64)
	}
}

func bigOf(x number) *big.Int {
	switch x := x.(type) {
	case int64:
		return big.NewInt(x)
	default:
		return x.(*big.Int)
	}
}

func isInteger(x number) bool {
	_, ok := x.(float64)
	return !ok
}

func normalize(n *big.Int) number {
	if n.IsInt64() {
		return n.Int64()
	}
	return n
}

func (m *Machine) checkFloat(f float64) (number, error) {
	switch {
	case math.IsInf(f, 0):
		return nil, m.EvaluationError(ExceptionalValueFloatOverflow)
	case math.IsNaN(f):
		return nil, m.EvaluationError(ExceptionalValueUndefined)
	}
	return f, nil
}

func (m *Machine) mustInteger(x number) error {
	if !isInteger(x) {
		return m.TypeError(ValidTypeInteger, m.numberWord(x))
	}
	return nil
}

// digits is an upper bound of the decimal digits of n.
func digits(n *big.Int) int {
	return n.BitLen()*3/10 + 2
}

type decimalOp func(c *apd.Context, d, x, y *apd.Decimal) (apd.Condition, error)

// exact computes op on integers with enough precision for the exact result.
func exact(op decimalOp, x, y *big.Int, precision int) (*big.Int, error) {
	c := apd.BaseContext.WithPrecision(uint32(precision))
	var d apd.Decimal
	if _, err := op(c, &d, apd.NewWithBigInt(x, 0), apd.NewWithBigInt(y, 0)); err != nil {
		return nil, err
	}
	n := new(big.Int).Set(&d.Coeff)
	if d.Exponent > 0 {
		n.Mul(n, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Exponent)), nil))
	}
	if d.Negative {
		n.Neg(n)
	}
	return n, nil
}

func (m *Machine) exact(op decimalOp, x, y number, precision func(x, y *big.Int) int) (number, error) {
	bx, by := bigOf(x), bigOf(y)
	n, err := exact(op, bx, by, precision(bx, by))
	if err != nil {
		return nil, m.SystemError(err)
	}
	return normalize(n), nil
}

func sumPrecision(x, y *big.Int) int {
	dx, dy := digits(x), digits(y)
	if dx > dy {
		return dx + 1
	}
	return dy + 1
}

func productPrecision(x, y *big.Int) int {
	return digits(x) + digits(y)
}

func neg(m *Machine, x number) (number, error) {
	switch x := x.(type) {
	case int64:
		if x == math.MinInt64 {
			return new(big.Int).Neg(big.NewInt(x)), nil
		}
		return -x, nil
	case *big.Int:
		return normalize(new(big.Int).Neg(x)), nil
	default:
		return -x.(float64), nil
	}
}

func pos(_ *Machine, x number) (number, error) {
	return x, nil
}

func abs(m *Machine, x number) (number, error) {
	switch x := x.(type) {
	case int64:
		if x < 0 {
			return neg(m, x)
		}
		return x, nil
	case *big.Int:
		return normalize(new(big.Int).Abs(x)), nil
	default:
		return math.Abs(x.(float64)), nil
	}
}

func signum(_ *Machine, x number) (number, error) {
	switch x := x.(type) {
	case int64:
		return int64(sign64(x)), nil
	case *big.Int:
		return int64(x.Sign()), nil
	default:
		f := x.(float64)
		switch {
		case f > 0:
			return 1.0, nil
		case f < 0:
			return -1.0, nil
		default:
			return 0.0, nil
		}
	}
}

func floatFunc(f func(float64) float64, undefined func(float64) bool) unaryFunc {
	return func(m *Machine, x number) (number, error) {
		fx := floatOf(x)
		if undefined != nil && undefined(fx) {
			return nil, m.EvaluationError(ExceptionalValueUndefined)
		}
		return m.checkFloat(f(fx))
	}
}

func floatFunc2(f func(float64, float64) float64) binaryFunc {
	return func(m *Machine, x, y number) (number, error) {
		return m.checkFloat(f(floatOf(x), floatOf(y)))
	}
}

func toFloatFunc(m *Machine, x number) (number, error) {
	return m.checkFloat(floatOf(x))
}

func roundFunc(f func(float64) float64) unaryFunc {
	return func(m *Machine, x number) (number, error) {
		fx, ok := x.(float64)
		if !ok {
			return x, nil
		}
		if math.IsInf(fx, 0) || math.IsNaN(fx) {
			return nil, m.EvaluationError(ExceptionalValueUndefined)
		}
		r := f(fx)
		if r >= math.MinInt64 && r < math.MaxInt64 {
			return int64(r), nil
		}
		n, _ := big.NewFloat(r).Int(nil)
		return normalize(n), nil
	}
}

func add(m *Machine, x, y number) (number, error) {
	if !isInteger(x) || !isInteger(y) {
		return m.checkFloat(floatOf(x) + floatOf(y))
	}
	if a, ok := x.(int64); ok {
		if b, ok := y.(int64); ok {
			if r := a + b; !(b > 0 && r < a) && !(b < 0 && r > a) {
				return r, nil
			}
		}
	}
	return m.exact((*apd.Context).Add, x, y, sumPrecision)
}

func sub(m *Machine, x, y number) (number, error) {
	if !isInteger(x) || !isInteger(y) {
		return m.checkFloat(floatOf(x) - floatOf(y))
	}
	if a, ok := x.(int64); ok {
		if b, ok := y.(int64); ok {
			if r := a - b; !(b > 0 && r > a) && !(b < 0 && r < a) {
				return r, nil
			}
		}
	}
	return m.exact((*apd.Context).Sub, x, y, sumPrecision)
}

func mul(m *Machine, x, y number) (number, error) {
	if !isInteger(x) || !isInteger(y) {
		return m.checkFloat(floatOf(x) * floatOf(y))
	}
	if a, ok := x.(int64); ok {
		if b, ok := y.(int64); ok {
			if a == 0 || b == 0 {
				return int64(0), nil
			}
			r := a * b
			if r/b == a && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64) {
				return r, nil
			}
		}
	}
	return m.exact((*apd.Context).Mul, x, y, productPrecision)
}

func isZero(x number) bool {
	switch x := x.(type) {
	case int64:
		return x == 0
	case *big.Int:
		return x.Sign() == 0
	default:
		return x.(float64) == 0
	}
}

// div is / : an exact integer quotient stays an integer, anything else is a float.
func div(m *Machine, x, y number) (number, error) {
	if isZero(y) && (isInteger(y) || isInteger(x)) {
		return nil, m.EvaluationError(ExceptionalValueZeroDivisor)
	}
	if isInteger(x) && isInteger(y) {
		r, err := rem(m, x, y)
		if err != nil {
			return nil, err
		}
		if isZero(r) {
			return intDiv(m, x, y)
		}
	}
	return m.checkFloat(floatOf(x) / floatOf(y))
}

func intDiv(m *Machine, x, y number) (number, error) {
	if err := m.mustIntegers(x, y); err != nil {
		return nil, err
	}
	if isZero(y) {
		return nil, m.EvaluationError(ExceptionalValueZeroDivisor)
	}
	if a, ok := x.(int64); ok {
		if b, ok := y.(int64); ok && !(a == math.MinInt64 && b == -1) {
			return a / b, nil
		}
	}
	return m.exact((*apd.Context).QuoInteger, x, y, sumPrecision)
}

func rem(m *Machine, x, y number) (number, error) {
	if err := m.mustIntegers(x, y); err != nil {
		return nil, err
	}
	if isZero(y) {
		return nil, m.EvaluationError(ExceptionalValueZeroDivisor)
	}
	if a, ok := x.(int64); ok {
		if b, ok := y.(int64); ok {
			return a % b, nil
		}
	}
	return m.exact((*apd.Context).Rem, x, y, sumPrecision)
}

func mod(m *Machine, x, y number) (number, error) {
	r, err := rem(m, x, y)
	if err != nil {
		return nil, err
	}
	if !isZero(r) && compareNumbers(r, int64(0)) != compareNumbers(y, int64(0)) {
		return add(m, r, y)
	}
	return r, nil
}

func floorDiv(m *Machine, x, y number) (number, error) {
	r, err := mod(m, x, y)
	if err != nil {
		return nil, err
	}
	d, err := sub(m, x, r)
	if err != nil {
		return nil, err
	}
	return intDiv(m, d, y)
}

func (m *Machine) mustIntegers(xs ...number) error {
	for _, x := range xs {
		if err := m.mustInteger(x); err != nil {
			return err
		}
	}
	return nil
}

func minimum(_ *Machine, x, y number) (number, error) {
	if compareNumbers(x, y) > 0 {
		return y, nil
	}
	return x, nil
}

func maximum(_ *Machine, x, y number) (number, error) {
	if compareNumbers(x, y) < 0 {
		return y, nil
	}
	return x, nil
}

func power(m *Machine, x, y number) (number, error) {
	if isInteger(x) && isInteger(y) && compareNumbers(y, int64(0)) >= 0 {
		return intPower(m, x, y)
	}
	fx, fy := floatOf(x), floatOf(y)
	if fx == 0 && fy < 0 {
		return nil, m.EvaluationError(ExceptionalValueUndefined)
	}
	return m.checkFloat(math.Pow(fx, fy))
}

func intPower(m *Machine, x, y number) (number, error) {
	if err := m.mustIntegers(x, y); err != nil {
		return nil, err
	}
	bx, by := bigOf(x), bigOf(y)
	if by.Sign() < 0 {
		switch {
		case bx.CmpAbs(big.NewInt(1)) == 0:
			if bx.Sign() > 0 || by.Bit(0) == 0 {
				return int64(1), nil
			}
			return int64(-1), nil
		case bx.Sign() == 0:
			return nil, m.EvaluationError(ExceptionalValueZeroDivisor)
		default:
			return nil, m.TypeError(ValidTypeFloat, m.numberWord(x))
		}
	}
	if !by.IsInt64() || by.Int64() > math.MaxUint32 {
		return nil, m.ResourceError("memory")
	}
	return normalize(new(big.Int).Exp(bx, by, nil)), nil
}

func shiftRight(m *Machine, x, y number) (number, error) {
	if err := m.mustIntegers(x, y); err != nil {
		return nil, err
	}
	n, ok := y.(int64)
	if !ok {
		return nil, m.ResourceError("memory")
	}
	if n < 0 {
		return shiftLeft(m, x, -n)
	}
	return normalize(new(big.Int).Rsh(bigOf(x), uint(n))), nil
}

func shiftLeft(m *Machine, x, y number) (number, error) {
	if err := m.mustIntegers(x, y); err != nil {
		return nil, err
	}
	n, ok := y.(int64)
	if !ok || n > math.MaxUint32 {
		return nil, m.ResourceError("memory")
	}
	if n < 0 {
		return shiftRight(m, x, -n)
	}
	return normalize(new(big.Int).Lsh(bigOf(x), uint(n))), nil
}

func bitwise(f func(z, x, y *big.Int) *big.Int) binaryFunc {
	return func(m *Machine, x, y number) (number, error) {
		if err := m.mustIntegers(x, y); err != nil {
			return nil, err
		}
		return normalize(f(new(big.Int), bigOf(x), bigOf(y))), nil
	}
}

var (
	bitAnd = bitwise((*big.Int).And)
	bitOr  = bitwise((*big.Int).Or)
	bitXor = bitwise((*big.Int).Xor)
)

func bitNot(m *Machine, x number) (number, error) {
	if err := m.mustInteger(x); err != nil {
		return nil, err
	}
	return normalize(new(big.Int).Not(bigOf(x))), nil
}

func msb(m *Machine, x number) (number, error) {
	if err := m.mustInteger(x); err != nil {
		return nil, err
	}
	b := bigOf(x)
	if b.Sign() <= 0 {
		return nil, m.EvaluationError(ExceptionalValueUndefined)
	}
	return int64(b.BitLen() - 1), nil
}

func succ(m *Machine, x number) (number, error) {
	return add(m, x, int64(1))
}

func gcd(m *Machine, x, y number) (number, error) {
	if err := m.mustIntegers(x, y); err != nil {
		return nil, err
	}
	bx, by := new(big.Int).Abs(bigOf(x)), new(big.Int).Abs(bigOf(y))
	return normalize(new(big.Int).GCD(nil, nil, bx, by)), nil
}
