package engine

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status is the outcome of running a query.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusSuccessWithChoices
	StatusFail
	StatusError
	StatusYield
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuccessWithChoices:
		return "success_with_choices"
	case StatusFail:
		return "fail"
	case StatusError:
		return "error"
	case StatusYield:
		return "yield"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

const defaultGCThreshold = 1 << 16

// Config tunes a Machine. The zero value is usable.
type Config struct {
	// GCThreshold is the heap size in cells above which a collection runs at the next call.
	GCThreshold int `toml:"gc_threshold"`
	// MaxSteps bounds the number of executed instructions per query. Zero means no bound.
	MaxSteps int64 `toml:"max_steps"`
	// Unknown is the action for calls to undefined procedures: error, fail or warning.
	Unknown string `toml:"unknown"`
	// Debug traces call ports.
	Debug bool `toml:"debug"`

	Logger *logrus.Logger `toml:"-"`
}

type unknownAction int

const (
	unknownError unknownAction = iota
	unknownFail
	unknownWarning
)

func (u unknownAction) String() string {
	switch u {
	case unknownError:
		return "error"
	case unknownFail:
		return "fail"
	case unknownWarning:
		return "warning"
	default:
		return fmt.Sprintf("unknown(%d)", int(u))
	}
}

func parseUnknown(s string) (unknownAction, error) {
	switch s {
	case "", "error":
		return unknownError, nil
	case "fail":
		return unknownFail, nil
	case "warning":
		return unknownWarning, nil
	default:
		return 0, fmt.Errorf("invalid unknown flag: %s", s)
	}
}

// Frame is an activation of a clause.
type Frame struct {
	parent *Frame
	depth  int
	clause *Clause
	module ConstID
	retPC  int
	cp     int // choicepoint depth at entry, the cut barrier.
	slots  []Word
}

type cpKind uint8

const (
	cpRetry cpKind = iota
	cpClause
	cpCatch
	cpCleanup
	cpForeign
	cpBarrier
)

func (k cpKind) String() string {
	return [...]string{
		cpRetry:   "retry",
		cpClause:  "clause",
		cpCatch:   "catch",
		cpCleanup: "cleanup",
		cpForeign: "foreign",
		cpBarrier: "barrier",
	}[k]
}

type choicepoint struct {
	kind      cpKind
	id        uint64
	fr        *Frame // frame to resume in; the caller for cpClause.
	pc        int    // retry address; the return address for cpClause.
	heapMark  int
	trailMark int
	argsMark  int

	// cpClause and cpForeign
	regs    []Word
	clauses []*Clause
	next    int
	module  ConstID
	depth   int

	slot   int  // cpCatch
	closed bool // cpCatch

	goal Word // cpCleanup

	ctl *Control // cpForeign
}

type trailEntry struct {
	addr  int
	catch uint64 // if non-zero, the id of a catch choicepoint to reopen.
}

type cursor struct {
	pos   int
	reg   bool
	write bool
}

// Machine is a Prolog abstract machine. A Machine is not safe for concurrent use.
type Machine struct {
	id      uuid.UUID
	log     *logrus.Entry
	cfg     Config
	unknown unknownAction

	consts  *ConstTable
	db      Database
	foreign []foreign
	records recordDB
	ops     *Operators

	heap  []Word
	trail []trailEntry
	cps   []choicepoint
	cpSeq uint64

	fr      *Frame
	pc      int
	args    []Word
	regs    []Word
	cursors []cursor

	base      int
	nested    int
	steps     int64
	status    Status
	exception *Record
	pending   []cleanup
	pins      []Word
	redo      *Control
	resuming  bool
	cont      *Continuation

	gcThreshold int
	stats       GCStats

	atom    atoms
	functor functors
	control map[ConstID]bool
}

type atoms struct {
	nil, true, fail, false, cut, call, user, system, error, exit, end ConstID
}

type functors struct {
	comma, semicolon, arrow, not, not1, catch, throw, colon ConstID

	cleanup, once, ignore, unify, notUnify ConstID

	list, clause, error, slash, exception ConstID

	call [9]ConstID
}

// NewMachine creates a machine over db with the builtin predicates registered in the system module.
// A nil db is replaced with an empty Modules.
func NewMachine(db Database, cfg Config) (*Machine, error) {
	u, err := parseUnknown(cfg.Unknown)
	if err != nil {
		return nil, err
	}
	if db == nil {
		db = NewModules()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := Machine{
		id:          uuid.New(),
		cfg:         cfg,
		unknown:     u,
		consts:      NewConstTable(),
		db:          db,
		ops:         DefaultOperators(),
		gcThreshold: cfg.GCThreshold,
	}
	if m.gcThreshold <= 0 {
		m.gcThreshold = defaultGCThreshold
	}
	m.log = logger.WithField("machine", m.id.String())
	m.internAtoms()
	m.Reset()
	m.registerBuiltins()
	return &m, nil
}

func (m *Machine) internAtoms() {
	t := m.consts
	m.atom = atoms{
		nil:    t.Atom("[]"),
		true:   t.Atom("true"),
		fail:   t.Atom("fail"),
		false:  t.Atom("false"),
		cut:    t.Atom("!"),
		call:   t.Atom("$call"),
		user:   t.Atom("user"),
		system: t.Atom("system"),
		error:  t.Atom("error"),
		exit:   t.Atom("exit"),
		end:    t.Atom("end_of_file"),
	}
	f := func(name string, arity int) ConstID {
		return t.Functor(t.Atom(name), arity)
	}
	m.functor = functors{
		comma:     f(",", 2),
		semicolon: f(";", 2),
		arrow:     f("->", 2),
		not:       f(`\+`, 1),
		not1:      f("not", 1),
		catch:     f("catch", 3),
		throw:     f("throw", 1),
		colon:     f(":", 2),
		cleanup:   f("setup_call_cleanup", 3),
		once:      f("once", 1),
		ignore:    f("ignore", 1),
		unify:     f("=", 2),
		notUnify:  f(`\=`, 2),
		list:      f(".", 2),
		clause:    f(":-", 2),
		error:     f("error", 2),
		slash:     f("/", 2),
		exception: f("exception", 1),
	}
	for i := range m.functor.call {
		m.functor.call[i] = f("call", i+1)
	}

	m.control = map[ConstID]bool{
		f("true", 0):  true,
		f("fail", 0):  true,
		f("false", 0): true,
		f("!", 0):     true,
	}
	for _, c := range []ConstID{
		m.functor.comma, m.functor.semicolon, m.functor.arrow, m.functor.not, m.functor.not1,
		m.functor.catch, m.functor.throw, m.functor.colon, m.functor.cleanup, m.functor.once,
		m.functor.ignore, m.functor.unify, m.functor.notUnify,
	} {
		m.control[c] = true
	}
	for _, c := range m.functor.call {
		m.control[c] = true
	}
}

// Reset discards the heap, the trail, the choicepoints and the pinned words.
func (m *Machine) Reset() {
	m.heap = append(m.heap[:0], 0) // cell 0 is reserved.
	m.trail = m.trail[:0]
	m.cps = m.cps[:0]
	m.fr = nil
	m.pc = 0
	m.args = m.args[:0]
	m.regs = nil
	m.cursors = m.cursors[:0]
	m.base = 0
	m.pins = m.pins[:0]
	m.pending = nil
	m.redo = nil
	m.cont = nil
	m.status = StatusFail
	if m.exception != nil {
		m.exception.Free()
		m.exception = nil
	}
}

// Consts returns the constant table.
func (m *Machine) Consts() *ConstTable {
	return m.consts
}

// Database returns the clause database.
func (m *Machine) Database() Database {
	return m.db
}

// Operators returns the operator table shared by the reader and the writer.
func (m *Machine) Operators() *Operators {
	return m.ops
}

// Logger returns the machine's log entry.
func (m *Machine) Logger() *logrus.Entry {
	return m.log
}

// Pin registers w as a root that survives collections and returns a handle for Pinned.
func (m *Machine) Pin(w Word) int {
	m.pins = append(m.pins, w)
	return len(m.pins) - 1
}

// Pinned returns the current value of a pinned word.
func (m *Machine) Pinned(i int) Word {
	return m.pins[i]
}

// SetException sets the current exception to a copy of w.
func (m *Machine) SetException(w Word) {
	if m.exception != nil {
		m.exception.Free()
	}
	m.exception = m.Copy(w)
}

// Exception returns the pending exception materialized on the heap.
func (m *Machine) Exception() (Word, bool) {
	if m.exception == nil {
		return 0, false
	}
	return m.Materialize(m.exception), true
}

func (m *Machine) alloc(n int) int {
	h := len(m.heap)
	for i := 0; i < n; i++ {
		m.heap = append(m.heap, 0)
	}
	return h
}

// NewVariable allocates a fresh unbound variable.
func (m *Machine) NewVariable() Word {
	h := len(m.heap)
	m.heap = append(m.heap, Variable(h))
	return Variable(h)
}

// NewAtom returns an atom word.
func (m *Machine) NewAtom(name string) Word {
	return Constant(m.consts.Atom(name))
}

// NewInteger returns an integer word.
func (m *Machine) NewInteger(n int64) Word {
	return Constant(m.consts.Integer(n))
}

// NewBigInteger returns an integer word for an arbitrary precision integer.
func (m *Machine) NewBigInteger(n *big.Int) Word {
	return Constant(m.consts.BigInteger(n))
}

// NewFloat returns a float word.
func (m *Machine) NewFloat(f float64) Word {
	return Constant(m.consts.Float(f))
}

// NewRational returns a rational word.
func (m *Machine) NewRational(r *big.Rat) Word {
	return Constant(m.consts.Rational(r))
}

// NewBlob returns a word for a new blob.
func (m *Machine) NewBlob(typ string, handle any) Word {
	return Constant(m.consts.Blob(typ, handle))
}

// NewExternal returns a word for an opaque handle.
func (m *Machine) NewExternal(handle int) Word {
	return External(handle)
}

// NewCompound builds name(args...) on the heap. With no arguments it returns an atom.
func (m *Machine) NewCompound(name string, args ...Word) Word {
	if len(args) == 0 {
		return m.NewAtom(name)
	}
	return m.newCompound(m.consts.Functor(m.consts.Atom(name), len(args)), args...)
}

func (m *Machine) newCompound(f ConstID, args ...Word) Word {
	h := len(m.heap)
	m.heap = append(m.heap, Constant(f))
	for _, a := range args {
		m.heap = append(m.heap, m.cell(a, len(m.heap)))
	}
	return Compound(h)
}

// cell returns the content for an argument cell at pos holding w. A void word becomes a fresh variable.
func (m *Machine) cell(w Word, pos int) Word {
	if w.IsVoid() {
		return Variable(pos)
	}
	return w
}

// NewList builds a proper list of elems.
func (m *Machine) NewList(elems ...Word) Word {
	return m.NewPartialList(Constant(m.atom.nil), elems...)
}

// NewPartialList builds a list of elems ending in tail.
func (m *Machine) NewPartialList(tail Word, elems ...Word) Word {
	l := tail
	for i := len(elems) - 1; i >= 0; i-- {
		l = m.newCompound(m.functor.list, elems[i], l)
	}
	return l
}

// Deref follows variable bindings.
func (m *Machine) Deref(w Word) Word {
	return m.deref(w)
}

// Tag returns the tag of the dereferenced w.
func (m *Machine) Tag(w Word) Tag {
	return m.deref(w).Tag()
}

// Atom returns the name of w if it is an atom.
func (m *Machine) Atom(w Word) (string, bool) {
	w = m.deref(w)
	if w.Tag() != TagConstant {
		return "", false
	}
	return m.consts.AtomText(w.ConstID())
}

// Integer returns the value of w if it is a small integer.
func (m *Machine) Integer(w Word) (int64, bool) {
	w = m.deref(w)
	if w.Tag() != TagConstant {
		return 0, false
	}
	return m.consts.IntegerValue(w.ConstID())
}

// BigInteger returns the value of w if it is an integer of any size.
func (m *Machine) BigInteger(w Word) (*big.Int, bool) {
	w = m.deref(w)
	if w.Tag() != TagConstant {
		return nil, false
	}
	if n, ok := m.consts.IntegerValue(w.ConstID()); ok {
		return big.NewInt(n), true
	}
	return m.consts.BigIntegerValue(w.ConstID())
}

// Float returns the value of w if it is a float.
func (m *Machine) Float(w Word) (float64, bool) {
	w = m.deref(w)
	if w.Tag() != TagConstant {
		return 0, false
	}
	return m.consts.FloatValue(w.ConstID())
}

// Blob returns the blob of w.
func (m *Machine) Blob(w Word) (Blob, bool) {
	w = m.deref(w)
	if w.Tag() != TagConstant {
		return Blob{}, false
	}
	return m.consts.BlobOf(w.ConstID())
}

// Functor returns the name and arity of a compound, or of an atom with arity 0.
func (m *Machine) Functor(w Word) (string, int, bool) {
	w = m.deref(w)
	switch w.Tag() {
	case TagCompound:
		f := m.functorOf(w)
		name, _ := m.consts.AtomText(f.Name)
		return name, f.Arity, true
	case TagConstant:
		name, ok := m.consts.AtomText(w.ConstID())
		return name, 0, ok
	default:
		return "", 0, false
	}
}

// Arg returns the i-th (1-based) argument of a compound.
func (m *Machine) Arg(w Word, i int) (Word, bool) {
	w = m.deref(w)
	if w.Tag() != TagCompound {
		return 0, false
	}
	f := m.functorOf(w)
	if i < 1 || i > f.Arity {
		return 0, false
	}
	return m.heap[w.Index()+i], true
}

// functorOf returns the functor of a dereferenced compound word.
func (m *Machine) functorOf(w Word) Functor {
	f, ok := m.consts.FunctorOf(m.heap[w.Index()].ConstID())
	if !ok {
		panic(internalErrorf("malformed compound at %d", w.Index()))
	}
	return f
}

// functorID returns the functor constant of a callable word, an atom being name/0.
func (m *Machine) functorID(w Word) (ConstID, bool) {
	switch w.Tag() {
	case TagCompound:
		return m.heap[w.Index()].ConstID(), true
	case TagConstant:
		if m.consts.Kind(w.ConstID()) != KindAtom {
			return 0, false
		}
		return m.consts.Functor(w.ConstID(), 0), true
	default:
		return 0, false
	}
}

// args returns the argument cells of a dereferenced compound.
func (m *Machine) argsOf(w Word) []Word {
	if w.Tag() != TagCompound {
		return nil
	}
	f := m.functorOf(w)
	return m.heap[w.Index()+1 : w.Index()+1+f.Arity]
}

func (m *Machine) isAtom(w Word, id ConstID) bool {
	return w.Tag() == TagConstant && w.ConstID() == id
}

func (m *Machine) isCompound(w Word, f ConstID) bool {
	return w.Tag() == TagCompound && m.heap[w.Index()] == Constant(f)
}

// list collects the elements of a proper list.
func (m *Machine) list(w Word) ([]Word, error) {
	var elems []Word
	for {
		w = m.deref(w)
		switch {
		case w.Tag() == TagVariable:
			return nil, m.InstantiationError()
		case m.isAtom(w, m.atom.nil):
			return elems, nil
		case m.isCompound(w, m.functor.list):
			elems = append(elems, m.heap[w.Index()+1])
			w = m.heap[w.Index()+2]
		default:
			return nil, m.TypeError(ValidTypeList, w)
		}
	}
}
