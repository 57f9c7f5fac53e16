package engine

import (
	"math"
	"sort"
)

// Operators is a set of defined operators.
type Operators struct {
	ops map[opKey]Operator
}

// Operator is an operator definition.
type Operator struct {
	Priority  int // 1 ~ 1200
	Specifier OperatorSpecifier
	Name      string
}

type opKey struct {
	name    string
	opClass OperatorClass
}

// DefaultOperators returns the standard operator table.
func DefaultOperators() *Operators {
	var ops Operators
	for _, op := range []Operator{
		{1200, XFX, ":-"},
		{1200, XFX, "-->"},
		{1200, FX, ":-"},
		{1200, FX, "?-"},
		{1150, FX, "dynamic"},
		{1150, FX, "discontiguous"},
		{1150, FX, "initialization"},
		{1150, FX, "multifile"},
		{1100, XFY, ";"},
		{1100, XFY, "|"},
		{1050, XFY, "->"},
		{1000, XFY, ","},
		{900, FY, `\+`},
		{700, XFX, "="},
		{700, XFX, `\=`},
		{700, XFX, "=="},
		{700, XFX, `\==`},
		{700, XFX, "@<"},
		{700, XFX, "@=<"},
		{700, XFX, "@>"},
		{700, XFX, "@>="},
		{700, XFX, "is"},
		{700, XFX, "=:="},
		{700, XFX, `=\=`},
		{700, XFX, "<"},
		{700, XFX, "=<"},
		{700, XFX, ">"},
		{700, XFX, ">="},
		{700, XFX, "=.."},
		{500, YFX, "+"},
		{500, YFX, "-"},
		{500, YFX, `/\`},
		{500, YFX, `\/`},
		{500, YFX, "xor"},
		{400, YFX, "*"},
		{400, YFX, "/"},
		{400, YFX, "//"},
		{400, YFX, "rem"},
		{400, YFX, "mod"},
		{400, YFX, "div"},
		{400, YFX, "<<"},
		{400, YFX, ">>"},
		{200, XFX, "**"},
		{200, XFY, "^"},
		{200, FY, `\`},
		{200, FY, "+"},
		{200, FY, "-"},
		{100, XFX, "@"},
		{200, XFY, ":"},
	} {
		ops.Define(op.Priority, op.Specifier, op.Name)
	}
	return &ops
}

// Define defines an operator. Priority 0 removes it.
func (o *Operators) Define(priority int, spec OperatorSpecifier, name string) {
	if o.ops == nil {
		o.ops = map[opKey]Operator{}
	}
	k := opKey{name: name, opClass: spec.Class()}
	if priority == 0 {
		delete(o.ops, k)
		return
	}
	o.ops[k] = Operator{
		Priority:  priority,
		Specifier: spec,
		Name:      name,
	}
}

// Lookup returns the operator of name in the class.
func (o *Operators) Lookup(name string, opClass OperatorClass) (Operator, bool) {
	if o == nil {
		return Operator{}, false
	}
	op, ok := o.ops[opKey{name: name, opClass: opClass}]
	return op, ok
}

func (o *Operators) definedIn(name string, opClass OperatorClass) bool {
	_, ok := o.Lookup(name, opClass)
	return ok
}

// Defined reports whether name is an operator of any class.
func (o *Operators) Defined(name string) bool {
	return o.definedIn(name, OperatorClassPrefix) ||
		o.definedIn(name, OperatorClassPostfix) ||
		o.definedIn(name, OperatorClassInfix)
}

// All returns the operators sorted by name and class.
func (o *Operators) All() []Operator {
	var ops []Operator
	if o == nil {
		return nil
	}
	for _, op := range o.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Name != ops[j].Name {
			return ops[i].Name < ops[j].Name
		}
		return ops[i].Specifier.Class() < ops[j].Specifier.Class()
	})
	return ops
}

// OperatorClass is prefix, postfix or infix.
type OperatorClass int8

const (
	OperatorClassPrefix OperatorClass = iota
	OperatorClassPostfix
	OperatorClassInfix
)

// OperatorSpecifier specifies a class and associativity of an operator.
type OperatorSpecifier int8

const (
	FX OperatorSpecifier = iota
	FY
	XF
	YF
	XFX
	XFY
	YFX
)

var operatorSpecifiers = [...]struct {
	name       string
	opClass    OperatorClass
	priorities func(p int) (left int, right int)
}{
	FX: {
		name:    "fx",
		opClass: OperatorClassPrefix,
		priorities: func(p int) (left int, right int) {
			return math.MaxInt, p - 1
		},
	},
	FY: {
		name:    "fy",
		opClass: OperatorClassPrefix,
		priorities: func(p int) (left int, right int) {
			return math.MaxInt, p
		},
	},
	XF: {
		name:    "xf",
		opClass: OperatorClassPostfix,
		priorities: func(p int) (left int, right int) {
			return p - 1, math.MaxInt
		},
	},
	YF: {
		name:    "yf",
		opClass: OperatorClassPostfix,
		priorities: func(p int) (left int, right int) {
			return p, math.MaxInt
		},
	},
	XFX: {
		name:    "xfx",
		opClass: OperatorClassInfix,
		priorities: func(p int) (left int, right int) {
			return p - 1, p - 1
		},
	},
	XFY: {
		name:    "xfy",
		opClass: OperatorClassInfix,
		priorities: func(p int) (left int, right int) {
			return p - 1, p
		},
	},
	YFX: {
		name:    "yfx",
		opClass: OperatorClassInfix,
		priorities: func(p int) (left int, right int) {
			return p, p - 1
		},
	},
}

// ParseOperatorSpecifier returns the specifier named s such as xfx.
func ParseOperatorSpecifier(s string) (OperatorSpecifier, bool) {
	for i, spec := range operatorSpecifiers {
		if spec.name == s {
			return OperatorSpecifier(i), true
		}
	}
	return 0, false
}

// Class returns the class of the specifier.
func (s OperatorSpecifier) Class() OperatorClass {
	return operatorSpecifiers[s].opClass
}

func (s OperatorSpecifier) String() string {
	return operatorSpecifiers[s].name
}

// BindingPriorities returns the maximum priorities of the left and right operands, Pratt parser style.
func (o *Operator) BindingPriorities() (int, int) {
	return operatorSpecifiers[o.Specifier].priorities(o.Priority)
}
