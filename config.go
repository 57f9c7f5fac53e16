package prolog

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ichiban/plvm/engine"
)

// Config is the configuration of an Interpreter, usually read from a TOML file:
//
//	double_quotes = "codes"
//	libraries = ["lists.pl"]
//
//	[engine]
//	gc_threshold = 65536
//	max_steps = 0
//	unknown = "error"
//	debug = false
type Config struct {
	Engine       engine.Config `toml:"engine"`
	DoubleQuotes string        `toml:"double_quotes"`
	// Libraries are consulted in order when the interpreter is created.
	Libraries []string `toml:"libraries"`
}

// LoadConfig reads a TOML configuration file. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		ks := make([]string, len(keys))
		for i, k := range keys {
			ks[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(ks, ", "))
	}
	if _, err := ParseDoubleQuotes(cfg.doubleQuotes()); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) doubleQuotes() string {
	if c.DoubleQuotes == "" {
		return DoubleQuotesCodes.String()
	}
	return c.DoubleQuotes
}
