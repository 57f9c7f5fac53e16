package engine

import (
	"encoding/binary"
	"math"
)

// label is a symbolic jump target resolved at assembly. The zero label is none.
type label int

type pool struct {
	words []Word
	index map[Word]int
}

func (p *pool) add(w Word) int {
	if i, ok := p.index[w]; ok {
		return i
	}
	if p.index == nil {
		p.index = map[Word]int{}
	}
	i := len(p.words)
	p.words = append(p.words, w)
	p.index[w] = i
	return i
}

// builder collects instructions with symbolic targets. Sub-builders share labels and the constant pool
// so that a branch can be compiled aside and appended later.
type builder struct {
	code   []Instruction
	labels *int
	pool   *pool
}

func newBuilder() *builder {
	return &builder{labels: new(int), pool: &pool{}}
}

func (b *builder) sub() *builder {
	return &builder{labels: b.labels, pool: b.pool}
}

func (b *builder) newLabel() label {
	*b.labels++
	return label(*b.labels)
}

// mark places l at the current position.
func (b *builder) mark(l label) {
	b.code = append(b.code, Instruction{Op: opInvalid, target: l})
}

func (b *builder) emit(op Opcode) {
	b.code = append(b.code, Instruction{Op: op})
}

func (b *builder) emitSlot(op Opcode, slot int) {
	b.code = append(b.code, Instruction{Op: op, Slot: slot})
}

func (b *builder) emitConst(op Opcode, w Word) {
	b.code = append(b.code, Instruction{Op: op, Const: b.pool.add(w)})
}

func (b *builder) emitConst2(op Opcode, w1, w2 Word) {
	b.code = append(b.code, Instruction{Op: op, Const: b.pool.add(w1), Const2: b.pool.add(w2)})
}

func (b *builder) emitJump(op Opcode, slot int, target label) {
	b.code = append(b.code, Instruction{Op: op, Slot: slot, target: target})
}

func (b *builder) append(o *builder) {
	b.code = append(b.code, o.code...)
}

// finish lays the instructions out twice: once to size them and place labels, once to encode.
func (b *builder) finish() ([]byte, []Word) {
	addrs := map[label]int{}
	size := 0
	for _, i := range b.code {
		if i.Op == opInvalid {
			addrs[i.target] = size
			continue
		}
		size += i.Op.size()
	}

	code := make([]byte, size)
	p := 0
	for _, i := range b.code {
		if i.Op == opInvalid {
			continue
		}
		start := p
		code[p] = byte(i.Op)
		p += sizeOpcode
		ops := opcodeInfo[i.Op].operands
		if ops&operandSlot != 0 {
			putUint16(code[p:], i.Slot)
			p += sizeSlot
		}
		if ops&operandConst != 0 {
			putUint16(code[p:], i.Const)
			p += sizeConst
		}
		if ops&operandConst2 != 0 {
			putUint16(code[p:], i.Const2)
			p += sizeConst
		}
		if ops&operandAddr != 0 {
			target, ok := addrs[i.target]
			if !ok {
				panic(internalErrorf("unresolved label %d", i.target))
			}
			end := start + i.Op.size()
			binary.LittleEndian.PutUint64(code[p:], uint64(int64(target-end)))
			p += sizeAddr
		}
	}
	return code, b.pool.words
}

func putUint16(b []byte, n int) {
	if n < 0 || n > math.MaxUint16 {
		panic(internalErrorf("operand out of range: %d", n))
	}
	binary.LittleEndian.PutUint16(b, uint16(n))
}
