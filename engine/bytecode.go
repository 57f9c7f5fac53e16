package engine

import (
	"encoding/binary"
	"fmt"
)

// Opcode is an instruction of the abstract machine.
type Opcode byte

const (
	opInvalid Opcode = iota

	// Head unification.
	opGetVoid
	opGetFirstVar
	opGetVar
	opGetConst
	opGetFunctor
	opGetPop
	opEnter
	opExitFact

	// Term construction.
	opPutVoid
	opPutFirstVar
	opPutArgFirstVar
	opPutVar
	opPutUnsafeVar
	opPutConst
	opPutFunctor
	opPutPop
	opUnify
	opNotUnify
	opThrow

	// Calls.
	opCall
	opDepart
	opCallModule
	opDepartModule
	opUserCall
	opExit
	opCut
	opFail
	opTrue
	opForeign

	// Control.
	opDeclareVar
	opJump
	opOr
	opIfThenElse
	opIfThen
	opNot
	opCutTo
	opLocalCut
	opCatch
	opExitCatch
	opCallCleanup
	opExitCleanup

	opLast
)

type operands uint8

const (
	operandSlot operands = 1 << iota
	operandConst
	operandConst2
	operandAddr
)

const (
	sizeOpcode = 1
	sizeSlot   = 2
	sizeConst  = 2
	sizeAddr   = 8
)

var opcodeInfo = [opLast]struct {
	name     string
	operands operands
}{
	opInvalid: {name: "invalid"},

	opGetVoid:     {name: "h_void"},
	opGetFirstVar: {name: "h_firstvar", operands: operandSlot},
	opGetVar:      {name: "h_var", operands: operandSlot},
	opGetConst:    {name: "h_const", operands: operandConst},
	opGetFunctor:  {name: "h_functor", operands: operandConst},
	opGetPop:      {name: "h_pop"},
	opEnter:       {name: "i_enter"},
	opExitFact:    {name: "i_exitfact"},

	opPutVoid:        {name: "b_void"},
	opPutFirstVar:    {name: "b_firstvar", operands: operandSlot},
	opPutArgFirstVar: {name: "b_argfirstvar", operands: operandSlot},
	opPutVar:         {name: "b_var", operands: operandSlot},
	opPutUnsafeVar:   {name: "b_unsafevar", operands: operandSlot},
	opPutConst:       {name: "b_const", operands: operandConst},
	opPutFunctor:     {name: "b_functor", operands: operandConst},
	opPutPop:         {name: "b_pop"},
	opUnify:          {name: "b_unify"},
	opNotUnify:       {name: "b_notunify"},
	opThrow:          {name: "b_throw"},

	opCall:         {name: "i_call", operands: operandConst},
	opDepart:       {name: "i_depart", operands: operandConst},
	opCallModule:   {name: "i_callm", operands: operandConst | operandConst2},
	opDepartModule: {name: "i_departm", operands: operandConst | operandConst2},
	opUserCall:     {name: "i_usercall", operands: operandSlot},
	opExit:         {name: "i_exit"},
	opCut:          {name: "i_cut"},
	opFail:         {name: "i_fail"},
	opTrue:         {name: "i_true"},
	opForeign:      {name: "i_foreign", operands: operandConst},

	opDeclareVar:  {name: "c_var", operands: operandSlot},
	opJump:        {name: "c_jmp", operands: operandAddr},
	opOr:          {name: "c_or", operands: operandAddr},
	opIfThenElse:  {name: "c_ifthenelse", operands: operandSlot | operandAddr},
	opIfThen:      {name: "c_ifthen", operands: operandSlot},
	opNot:         {name: "c_not", operands: operandSlot | operandAddr},
	opCutTo:       {name: "c_cut", operands: operandSlot},
	opLocalCut:    {name: "c_lcut", operands: operandSlot},
	opCatch:       {name: "i_catch", operands: operandSlot | operandAddr},
	opExitCatch:   {name: "i_exitcatch", operands: operandSlot},
	opCallCleanup: {name: "i_callcleanup", operands: operandSlot},
	opExitCleanup: {name: "i_exitcleanup", operands: operandSlot},
}

func (o Opcode) String() string {
	if o >= opLast {
		return fmt.Sprintf("opcode(%d)", o)
	}
	return opcodeInfo[o].name
}

// size returns the byte width of an instruction with the opcode.
func (o Opcode) size() int {
	n := sizeOpcode
	ops := opcodeInfo[o].operands
	if ops&operandSlot != 0 {
		n += sizeSlot
	}
	if ops&operandConst != 0 {
		n += sizeConst
	}
	if ops&operandConst2 != 0 {
		n += sizeConst
	}
	if ops&operandAddr != 0 {
		n += sizeAddr
	}
	return n
}

// Instruction is a decoded instruction.
// Addr is an absolute position in the clause's code once assembled.
type Instruction struct {
	Op     Opcode
	Slot   int
	Const  int
	Const2 int
	Addr   int

	target label
}

func (i Instruction) String() string {
	s := i.Op.String()
	ops := opcodeInfo[i.Op].operands
	if ops&operandSlot != 0 {
		s += fmt.Sprintf(" s%d", i.Slot)
	}
	if ops&operandConst != 0 {
		s += fmt.Sprintf(" k%d", i.Const)
	}
	if ops&operandConst2 != 0 {
		s += fmt.Sprintf(" k%d", i.Const2)
	}
	if ops&operandAddr != 0 {
		s += fmt.Sprintf(" @%d", i.Addr)
	}
	return s
}

// Clause is an assembled clause.
type Clause struct {
	Functor ConstID
	Code    []byte
	Consts  []Word
	Slots   int

	// Source is a local copy of the clause term if kept.
	Source *Record
}

// decode reads the instruction at pc and returns it with the position of the next one.
func (c *Clause) decode(pc int) (Instruction, int) {
	op := Opcode(c.Code[pc])
	if op == opInvalid || op >= opLast {
		panic(internalErrorf("illegal opcode %d at %d", op, pc))
	}
	i := Instruction{Op: op}
	p := pc + sizeOpcode
	ops := opcodeInfo[op].operands
	if ops&operandSlot != 0 {
		i.Slot = int(binary.LittleEndian.Uint16(c.Code[p:]))
		p += sizeSlot
	}
	if ops&operandConst != 0 {
		i.Const = int(binary.LittleEndian.Uint16(c.Code[p:]))
		p += sizeConst
	}
	if ops&operandConst2 != 0 {
		i.Const2 = int(binary.LittleEndian.Uint16(c.Code[p:]))
		p += sizeConst
	}
	if ops&operandAddr != 0 {
		rel := int64(binary.LittleEndian.Uint64(c.Code[p:]))
		p += sizeAddr
		i.Addr = p + int(rel)
	}
	return i, p
}

// Disassemble decodes the whole clause.
func (c *Clause) Disassemble() []Instruction {
	var is []Instruction
	for pc := 0; pc < len(c.Code); {
		var i Instruction
		i, pc = c.decode(pc)
		is = append(is, i)
	}
	return is
}
