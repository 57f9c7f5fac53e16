package prolog

import (
	"github.com/ichiban/plvm/engine"
)

// Solution is the single result of a query. It keeps a local copy of the bindings so it stays valid after
// other queries.
type Solution struct {
	m      *engine.Machine
	names  []string
	values *engine.Record
	err    error
}

// Scan copies the variable values of the solution into the specified map or struct.
func (s *Solution) Scan(dest any) error {
	if s.err != nil {
		return s.err
	}
	ws, _ := (&scanner{m: s.m}).list(s.m.Materialize(s.values))
	return newScanner(s.m, s.names, ws).scan(dest)
}

// Err returns an error that occurred while querying for the Solution, if any.
func (s *Solution) Err() error {
	return s.err
}

// Vars returns variable names.
func (s *Solution) Vars() []string {
	return s.names
}
