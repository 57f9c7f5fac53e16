package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh/terminal"

	prolog "github.com/ichiban/plvm"
	"github.com/ichiban/plvm/engine"
)

// Version is a version of this build.
var Version = "1pl/0.2"

type lineReader interface {
	ReadLine() (string, error)
}

type promptReader interface {
	lineReader
	SetPrompt(string)
}

func main() {
	var (
		verbose    bool
		configPath string
	)
	pflag.BoolVarP(&verbose, "verbose", "v", false, `verbose`)
	pflag.StringVarP(&configPath, "config", "c", "", `TOML configuration file`)
	pflag.Parse()

	log := logrus.New()

	var cfg prolog.Config
	if configPath != "" {
		var err error
		cfg, err = prolog.LoadConfig(configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
	}
	if verbose {
		cfg.Engine.Debug = true
		log.SetLevel(logrus.DebugLevel)
	}
	cfg.Engine.Logger = log

	var (
		out     io.Writer = os.Stdout
		lines   lineReader
		keys    *bufio.Reader
		restore = func() {}
	)
	if isatty.IsTerminal(os.Stdin.Fd()) {
		oldState, err := terminal.MakeRaw(0)
		if err != nil {
			log.WithError(err).Fatal("failed to enter raw mode")
		}
		restore = func() {
			_ = terminal.Restore(0, oldState)
		}
		t := terminal.NewTerminal(os.Stdin, "?- ")
		out, lines, keys = t, t, bufio.NewReader(os.Stdin)
		log.SetOutput(t)
		defer fmt.Printf("\r\n")
	} else {
		lines = scanLines{bufio.NewScanner(os.Stdin)}
	}
	defer restore()

	exit := func(code int) {
		restore()
		os.Exit(code)
	}

	i, err := New(cfg, out)
	if err != nil {
		log.WithError(err).Error("failed to create an interpreter")
		exit(1)
	}

	for _, a := range pflag.Args() {
		if err := i.ConsultFile(a); err != nil {
			var h *prolog.HaltError
			if errors.As(err, &h) {
				exit(h.Code)
			}
			log.WithError(err).WithField("file", a).Error("failed to consult")
			exit(1)
		}
	}

	var buf strings.Builder
	for {
		switch err := handleLine(&buf, i, out, lines, keys); {
		case err == nil:
		case errors.Is(err, io.EOF):
			return
		default:
			var h *prolog.HaltError
			if errors.As(err, &h) {
				exit(h.Code)
			}
			log.WithError(err).Error("failed")
			exit(1)
		}
	}
}

type scanLines struct {
	*bufio.Scanner
}

func (s scanLines) ReadLine() (string, error) {
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.Text(), nil
}

func handleLine(buf *strings.Builder, i *prolog.Interpreter, out io.Writer, lines lineReader, keys *bufio.Reader) error {
	log := i.Machine().Logger()
	if p, ok := lines.(promptReader); ok {
		if buf.Len() == 0 {
			p.SetPrompt("?- ")
		} else {
			p.SetPrompt("|  ")
		}
	}

	line, err := lines.ReadLine()
	if err != nil {
		if err == io.EOF {
			return err
		}
		log.WithError(err).Warn("failed to read line")
		buf.Reset()
		return nil
	}
	_, _ = buf.WriteString(line)
	if strings.TrimSpace(buf.String()) == "" {
		buf.Reset()
		return nil
	}

	c := 0
	sols, err := i.Query(buf.String())
	switch {
	case err == nil:
		break
	case errors.Is(err, prolog.ErrInsufficient):
		_, _ = buf.WriteRune('\n')
		// Returns without resetting buf.
		return nil
	default:
		log.WithError(err).Warn("failed to query")
		buf.Reset()
		return nil
	}
	buf.Reset()

	for sols.Next() {
		c++

		m := map[string]engine.Word{}
		if err := sols.Scan(m); err != nil {
			log.WithError(err).Warn("failed to scan")
			break
		}

		ls := bindings(i.Machine(), sols.Vars(), m)
		if len(ls) == 0 {
			if _, err := fmt.Fprintf(out, "%t.\n", true); err != nil {
				return err
			}
			break
		}

		if _, err := fmt.Fprintf(out, "%s ", strings.Join(ls, ",\n")); err != nil {
			return err
		}

		r := ';'
		if keys != nil {
			r, _, err = keys.ReadRune()
			if err != nil {
				log.WithError(err).Warn("failed to read rune")
				break
			}
			if r != ';' {
				r = '.'
			}
		}

		if _, err := fmt.Fprintf(out, "%s\n", string(r)); err != nil {
			return err
		}

		if r == '.' {
			break
		}
	}
	if err := sols.Close(); err != nil {
		return err
	}

	if err := sols.Err(); err != nil {
		var h *prolog.HaltError
		if errors.As(err, &h) {
			return h
		}
		log.WithError(err).Warn("failed")
		return nil
	}

	if c == 0 {
		if _, err := fmt.Fprintf(out, "%t.\n", false); err != nil {
			return err
		}
	}
	return nil
}

// bindings formats Name = Value for every variable bound to something other than itself.
func bindings(m *engine.Machine, vars []string, values map[string]engine.Word) []string {
	names := map[engine.Word]string{}
	for _, n := range vars {
		if w := m.Deref(values[n]); m.Tag(w) == engine.TagVariable {
			if _, ok := names[w]; !ok {
				names[w] = n
			}
		}
	}

	ls := make([]string, 0, len(vars))
	for _, n := range vars {
		w := m.Deref(values[n])
		if names[w] == n {
			continue
		}
		f := m.Formatter(w)
		f.Quoted = true
		f.NumberVars = true
		f.VariableName = names
		ls = append(ls, fmt.Sprintf("%s = %s", n, f.String()))
	}
	return ls
}
