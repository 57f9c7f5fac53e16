package main

import (
	"fmt"
	"io"
	"os"

	prolog "github.com/ichiban/plvm"
	"github.com/ichiban/plvm/engine"
)

// New creates a prolog.Interpreter with some helper predicates.
func New(cfg prolog.Config, w io.Writer) (*prolog.Interpreter, error) {
	i, err := prolog.New(cfg)
	if err != nil {
		return nil, err
	}
	i.Out = w
	i.Register("version", 1, func(m *engine.Machine, args []engine.Word) (bool, error) {
		return m.Unify(args[0], m.NewAtom(Version)), nil
	})
	i.Register("cd", 1, func(m *engine.Machine, args []engine.Word) (bool, error) {
		if m.Tag(args[0]) == engine.TagVariable {
			return false, m.InstantiationError()
		}
		dir, ok := m.Atom(args[0])
		if !ok {
			return false, m.TypeError(engine.ValidTypeAtom, args[0])
		}
		if err := os.Chdir(dir); err != nil {
			return false, err
		}
		return true, nil
	})
	i.Register("go_string", 2, func(m *engine.Machine, args []engine.Word) (bool, error) {
		f := m.Formatter(args[0])
		f.Quoted = true
		return m.Unify(args[1], m.NewAtom(fmt.Sprintf("%#v", f.String()))), nil
	})
	return i, nil
}
