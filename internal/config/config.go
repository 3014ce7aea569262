// Package config loads and validates cobble.toml, the workspace-level
// configuration file naming root projects, worker concurrency, and
// output verbosity defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/workspace"
)

// Output controls when the console shows a job's buffered
// stdout/stderr: never ("none"), only when the job fails ("on_fail"),
// or always ("all").
type Output string

const (
	OutputNone   Output = "none"
	OutputOnFail Output = "on_fail"
	OutputAll    Output = "all"
)

// Config is the resolved contents of cobble.toml.
type Config struct {
	RootProjects []string                     `toml:"root_projects"`
	NumThreads   int                          `toml:"num_threads"`
	Output       Output                       `toml:"output"`
	Stdout       Output                       `toml:"stdout"`
	Stderr       Output                       `toml:"stderr"`
	Vars         map[string]any               `toml:"vars"`
}

// Default returns the configuration used when no cobble.toml exists.
func Default() *Config {
	return &Config{
		RootProjects: []string{"."},
		NumThreads:   0, // 0 means "use runtime.NumCPU()"
		Output:       OutputOnFail,
		Stdout:       OutputOnFail,
		Stderr:       OutputOnFail,
		Vars:         map[string]any{},
	}
}

// Load reads and validates cobble.toml at path. A missing file is not
// an error; Default() is returned instead.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, cobleerr.Wrap(cobleerr.Parse, op, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, cobleerr.Wrap(cobleerr.Parse, op,
			fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path))
	}

	if err := validate(cfg); err != nil {
		return nil, cobleerr.Wrap(cobleerr.Parse, op, err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	for _, o := range []Output{cfg.Output, cfg.Stdout, cfg.Stderr} {
		switch o {
		case OutputNone, OutputOnFail, OutputAll, "":
		default:
			return fmt.Errorf("invalid output setting %q", o)
		}
	}
	if cfg.NumThreads < 0 {
		return fmt.Errorf("num_threads must be >= 0, got %d", cfg.NumThreads)
	}
	return nil
}

// ResolveVars coerces the raw decoded vars table into workspace.VarValue
// entries.
func (c *Config) ResolveVars() (map[string]workspace.VarValue, error) {
	out := make(map[string]workspace.VarValue, len(c.Vars))
	for name, raw := range c.Vars {
		v, err := workspace.VarValueFromTOML(raw)
		if err != nil {
			return nil, fmt.Errorf("var %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
