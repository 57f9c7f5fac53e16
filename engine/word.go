package engine

import "fmt"

// Tag distinguishes the four kinds of cells.
type Tag uint8

const (
	// TagVariable is a reference to a heap cell. An unbound variable refers to itself.
	TagVariable Tag = iota
	// TagCompound is a reference to a functor cell followed by its arguments.
	TagCompound
	// TagConstant is an index into the constant table.
	TagConstant
	// TagExternal is an opaque handle. It is never traversed.
	TagExternal
)

func (t Tag) String() string {
	switch t {
	case TagVariable:
		return "variable"
	case TagCompound:
		return "compound"
	case TagConstant:
		return "constant"
	case TagExternal:
		return "external"
	default:
		return fmt.Sprintf("tag(%d)", t)
	}
}

const (
	tagBits = 2
	tagMask = 1<<tagBits - 1
)

// Word is a tagged cell value. The zero Word is a void slot.
type Word uint64

func newWord(tag Tag, index int) Word {
	return Word(uint64(index)<<tagBits | uint64(tag))
}

// Variable returns a reference to the heap cell at index.
func Variable(index int) Word {
	return newWord(TagVariable, index)
}

// Compound returns a reference to the compound whose functor cell is at index.
func Compound(index int) Word {
	return newWord(TagCompound, index)
}

// Constant returns a word for the interned constant id.
func Constant(id ConstID) Word {
	return newWord(TagConstant, int(id))
}

// External returns a word for an opaque handle.
func External(handle int) Word {
	return newWord(TagExternal, handle)
}

// Tag returns the tag of w.
func (w Word) Tag() Tag {
	return Tag(w & tagMask)
}

// Index returns the payload of w.
func (w Word) Index() int {
	return int(w >> tagBits)
}

// ConstID returns the constant id of a constant word.
func (w Word) ConstID() ConstID {
	return ConstID(w >> tagBits)
}

// IsVoid reports whether w is the zero word.
func (w Word) IsVoid() bool {
	return w == 0
}

func (w Word) String() string {
	if w.IsVoid() {
		return "void"
	}
	return fmt.Sprintf("%s(%d)", w.Tag(), w.Index())
}
