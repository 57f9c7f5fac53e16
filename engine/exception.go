package engine

import (
	"errors"
	"fmt"
)

// ErrYield is returned by a foreign predicate to suspend the machine until Resume is called.
var ErrYield = errors.New("yield")

var (
	errNotYielded = errors.New("machine is not suspended")
	errNoQuery    = errors.New("no query is running")
)

// Exception is an error represented by a prolog term. The term is a local copy so it outlives the heap.
type Exception struct {
	term *Record
}

// Term returns the local copy of the exception term.
func (e *Exception) Term() *Record {
	return e.term
}

func (e *Exception) Error() string {
	return e.term.String()
}

// InternalError is a broken invariant of the compiler or the machine. It is never visible to catch/3.
type InternalError struct {
	msg string
}

func internalErrorf(format string, args ...any) *InternalError {
	return &InternalError{msg: fmt.Sprintf(format, args...)}
}

func (e *InternalError) Error() string {
	return "internal error: " + e.msg
}

// NewException creates an exception from a copy of w.
func (m *Machine) NewException(w Word) *Exception {
	return &Exception{term: m.Copy(w)}
}

// newError creates error(Formal, _) where Formal is name(args...).
func (m *Machine) newError(name string, args ...Word) *Exception {
	return m.NewException(m.newCompound(m.functor.error, m.NewCompound(name, args...), m.NewVariable()))
}

// InstantiationError returns an instantiation error exception.
func (m *Machine) InstantiationError() *Exception {
	return m.newError("instantiation_error")
}

// ValidType is the correct type for an argument or one of its components.
type ValidType uint8

// ValidType is one of these values.
const (
	ValidTypeAtom ValidType = iota
	ValidTypeAtomic
	ValidTypeCallable
	ValidTypeCompound
	ValidTypeEvaluable
	ValidTypeInteger
	ValidTypeList
	ValidTypeNumber
	ValidTypePredicateIndicator
	ValidTypeFloat
	ValidTypeCharacter
	ValidTypePair
	ValidTypeDBReference
	ValidTypeNotLessThanZero
)

func (t ValidType) String() string {
	return [...]string{
		ValidTypeAtom:               "atom",
		ValidTypeAtomic:             "atomic",
		ValidTypeCallable:           "callable",
		ValidTypeCompound:           "compound",
		ValidTypeEvaluable:          "evaluable",
		ValidTypeInteger:            "integer",
		ValidTypeList:               "list",
		ValidTypeNumber:             "number",
		ValidTypePredicateIndicator: "predicate_indicator",
		ValidTypeFloat:              "float",
		ValidTypeCharacter:          "character",
		ValidTypePair:               "pair",
		ValidTypeDBReference:        "db_reference",
		ValidTypeNotLessThanZero:    "not_less_than_zero",
	}[t]
}

// TypeError creates a new type error exception.
func (m *Machine) TypeError(validType ValidType, culprit Word) *Exception {
	return m.newError("type_error", m.NewAtom(validType.String()), culprit)
}

// ValidDomain is the domain which the procedure defines.
type ValidDomain uint8

// ValidDomain is one of these values.
const (
	ValidDomainNotLessThanZero ValidDomain = iota
	ValidDomainNonEmptyList
	ValidDomainOrder
	ValidDomainPrologFlag
	ValidDomainFlagValue
	ValidDomainModule
	ValidDomainOperatorPriority
	ValidDomainOperatorSpecifier
	ValidDomainAggregateSpec
	ValidDomainWriteOption
	ValidDomainSourceSink
)

func (vd ValidDomain) String() string {
	return [...]string{
		ValidDomainNotLessThanZero:   "not_less_than_zero",
		ValidDomainNonEmptyList:      "non_empty_list",
		ValidDomainOrder:             "order",
		ValidDomainPrologFlag:        "prolog_flag",
		ValidDomainFlagValue:         "flag_value",
		ValidDomainModule:            "module",
		ValidDomainOperatorPriority:  "operator_priority",
		ValidDomainOperatorSpecifier: "operator_specifier",
		ValidDomainAggregateSpec:     "aggregate_spec",
		ValidDomainWriteOption:       "write_option",
		ValidDomainSourceSink:        "source_sink",
	}[vd]
}

// DomainError creates a new domain error exception.
func (m *Machine) DomainError(validDomain ValidDomain, culprit Word) *Exception {
	return m.newError("domain_error", m.NewAtom(validDomain.String()), culprit)
}

// ObjectType is the object on which an operation is to be performed.
type ObjectType uint8

// ObjectType is one of these values.
const (
	ObjectTypeProcedure ObjectType = iota
	ObjectTypeRecord
	ObjectTypeSourceSink
)

func (ot ObjectType) String() string {
	return [...]string{
		ObjectTypeProcedure:  "procedure",
		ObjectTypeRecord:     "record",
		ObjectTypeSourceSink: "source_sink",
	}[ot]
}

// ExistenceError creates a new existence error exception.
func (m *Machine) ExistenceError(objectType ObjectType, culprit Word) *Exception {
	return m.newError("existence_error", m.NewAtom(objectType.String()), culprit)
}

// Operation is the operation to be performed.
type Operation uint8

// Operation is one of these values.
const (
	OperationAccess Operation = iota
	OperationModify
	OperationCreate
)

func (o Operation) String() string {
	return [...]string{
		OperationAccess: "access",
		OperationModify: "modify",
		OperationCreate: "create",
	}[o]
}

// PermissionType is the type to which the operation is not permitted to perform.
type PermissionType uint8

// PermissionType is one of these values.
const (
	PermissionTypePrivateProcedure PermissionType = iota
	PermissionTypeStaticProcedure
	PermissionTypeOperator
	PermissionTypeFlag
)

func (pt PermissionType) String() string {
	return [...]string{
		PermissionTypePrivateProcedure: "private_procedure",
		PermissionTypeStaticProcedure:  "static_procedure",
		PermissionTypeOperator:         "operator",
		PermissionTypeFlag:             "flag",
	}[pt]
}

// PermissionError creates a new permission error exception.
func (m *Machine) PermissionError(operation Operation, permissionType PermissionType, culprit Word) *Exception {
	return m.newError("permission_error", m.NewAtom(operation.String()), m.NewAtom(permissionType.String()), culprit)
}

// Flag is an implementation defined limit.
type Flag uint8

// Flag is one of these values.
const (
	FlagMaxArity Flag = iota
	FlagMaxInteger
	FlagMinInteger
	FlagClauseSize
	FlagCharacterCode
)

func (f Flag) String() string {
	return [...]string{
		FlagMaxArity:      "max_arity",
		FlagMaxInteger:    "max_integer",
		FlagMinInteger:    "min_integer",
		FlagClauseSize:    "clause_size",
		FlagCharacterCode: "character_code",
	}[f]
}

// RepresentationError creates a new representation error exception.
func (m *Machine) RepresentationError(limit Flag) *Exception {
	return m.newError("representation_error", m.NewAtom(limit.String()))
}

// ExceptionalValue is an evaluable functor's result which is not a number.
type ExceptionalValue uint8

// ExceptionalValue is one of these values.
const (
	ExceptionalValueFloatOverflow ExceptionalValue = iota
	ExceptionalValueIntOverflow
	ExceptionalValueUnderflow
	ExceptionalValueZeroDivisor
	ExceptionalValueUndefined
)

func (ev ExceptionalValue) String() string {
	return [...]string{
		ExceptionalValueFloatOverflow: "float_overflow",
		ExceptionalValueIntOverflow:   "int_overflow",
		ExceptionalValueUnderflow:     "underflow",
		ExceptionalValueZeroDivisor:   "zero_divisor",
		ExceptionalValueUndefined:     "undefined",
	}[ev]
}

func (ev ExceptionalValue) Error() string {
	return ev.String()
}

// EvaluationError creates a new evaluation error exception.
func (m *Machine) EvaluationError(ev ExceptionalValue) *Exception {
	return m.newError("evaluation_error", m.NewAtom(ev.String()))
}

// SyntaxError creates a new syntax error exception.
func (m *Machine) SyntaxError(err error) *Exception {
	return m.newError("syntax_error", m.NewAtom(err.Error()))
}

// ResourceError creates a new resource error exception.
func (m *Machine) ResourceError(resource string) *Exception {
	return m.newError("resource_error", m.NewAtom(resource))
}

// SystemError creates a new system error exception.
func (m *Machine) SystemError(err error) *Exception {
	return m.newError("system_error", m.NewAtom(err.Error()))
}

func (m *Machine) existenceErrorProcedure(f ConstID) *Exception {
	return m.ExistenceError(ObjectTypeProcedure, m.indicator(f))
}
