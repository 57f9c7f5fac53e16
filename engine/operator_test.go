package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperators(t *testing.T) {
	ops := DefaultOperators()

	op, ok := ops.Lookup(":-", OperatorClassInfix)
	assert.True(t, ok)
	assert.Equal(t, Operator{Priority: 1200, Specifier: XFX, Name: ":-"}, op)

	op, ok = ops.Lookup("-", OperatorClassPrefix)
	assert.True(t, ok)
	assert.Equal(t, FY, op.Specifier)

	_, ok = ops.Lookup("-", OperatorClassPostfix)
	assert.False(t, ok)
	assert.True(t, ops.Defined("mod"))
	assert.False(t, ops.Defined("foo"))

	t.Run("define and remove", func(t *testing.T) {
		ops := DefaultOperators()
		ops.Define(700, XFX, "===")
		op, ok := ops.Lookup("===", OperatorClassInfix)
		assert.True(t, ok)
		assert.Equal(t, 700, op.Priority)

		ops.Define(0, XFX, "===")
		assert.False(t, ops.Defined("==="))
	})

	t.Run("all is sorted", func(t *testing.T) {
		all := ops.All()
		for i := 1; i < len(all); i++ {
			prev, cur := all[i-1], all[i]
			assert.True(t, prev.Name < cur.Name || (prev.Name == cur.Name && prev.Specifier.Class() < cur.Specifier.Class()))
		}
	})

	t.Run("nil", func(t *testing.T) {
		var ops *Operators
		_, ok := ops.Lookup("+", OperatorClassInfix)
		assert.False(t, ok)
		assert.Nil(t, ops.All())
	})
}

func TestOperatorSpecifier(t *testing.T) {
	for _, tt := range []struct {
		name        string
		spec        OperatorSpecifier
		class       OperatorClass
		left, right int
	}{
		{name: "fx", spec: FX, class: OperatorClassPrefix, right: 199},
		{name: "fy", spec: FY, class: OperatorClassPrefix, right: 200},
		{name: "xf", spec: XF, class: OperatorClassPostfix, left: 199},
		{name: "yf", spec: YF, class: OperatorClassPostfix, left: 200},
		{name: "xfx", spec: XFX, class: OperatorClassInfix, left: 199, right: 199},
		{name: "xfy", spec: XFY, class: OperatorClassInfix, left: 199, right: 200},
		{name: "yfx", spec: YFX, class: OperatorClassInfix, left: 200, right: 199},
	} {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := ParseOperatorSpecifier(tt.name)
			assert.True(t, ok)
			assert.Equal(t, tt.spec, spec)
			assert.Equal(t, tt.name, spec.String())
			assert.Equal(t, tt.class, spec.Class())

			op := Operator{Priority: 200, Specifier: spec}
			l, r := op.BindingPriorities()
			if tt.left != 0 {
				assert.Equal(t, tt.left, l)
			}
			if tt.right != 0 {
				assert.Equal(t, tt.right, r)
			}
		})
	}

	_, ok := ParseOperatorSpecifier("xyz")
	assert.False(t, ok)
}
