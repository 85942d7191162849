// Package config handles pm0.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/akhildatla/pm0/pkg/trace"
	"github.com/akhildatla/pm0/pkg/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "pm0.toml"

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("invalid configuration")

// Trace formats accepted by [trace] format.
var TraceFormats = []string{"none", "text", "table", "json", "cbor"}

// Config represents a pm0.toml file.
type Config struct {
	VM    VM    `toml:"vm"`
	Trace Trace `toml:"trace"`
	Log   Log   `toml:"log"`

	// Path is the file the configuration was read from, empty for Default.
	Path string `toml:"-"`
}

// VM configures the machine.
type VM struct {
	StackCap int    `toml:"stack_cap"`
	MaxSteps int64  `toml:"max_steps"`
	Timeout  string `toml:"timeout"`

	timeout time.Duration
}

// Trace configures execution tracing.
type Trace struct {
	Format      string `toml:"format"`
	Output      string `toml:"output"`
	DB          string `toml:"db"`
	StackWindow int    `toml:"stack_window"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// Parse decodes configuration text and applies defaults.
func Parse(data string) (*Config, error) {
	var c Config
	md, err := toml.Decode(data, &c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a pm0.toml file, then loads
// it. Returns Default if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.VM.StackCap == 0 {
		c.VM.StackCap = vm.DefaultStackCap
	}
	if c.Trace.Format == "" {
		c.Trace.Format = "none"
	}
	if c.Trace.StackWindow == 0 {
		c.Trace.StackWindow = trace.DefaultWindow
	}
}

func (c *Config) validate() error {
	if c.VM.StackCap < vm.ARControlWords {
		return fmt.Errorf("%w: vm.stack_cap %d", ErrInvalid, c.VM.StackCap)
	}
	if c.VM.MaxSteps < 0 {
		return fmt.Errorf("%w: vm.max_steps %d", ErrInvalid, c.VM.MaxSteps)
	}
	if c.VM.Timeout != "" {
		d, err := time.ParseDuration(c.VM.Timeout)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: vm.timeout %q", ErrInvalid, c.VM.Timeout)
		}
		c.VM.timeout = d
	}

	c.Trace.Format = strings.ToLower(c.Trace.Format)
	if !validFormat(c.Trace.Format) {
		return fmt.Errorf("%w: trace.format %q (want one of %s)", ErrInvalid, c.Trace.Format, strings.Join(TraceFormats, ", "))
	}
	if c.Trace.StackWindow < 0 {
		return fmt.Errorf("%w: trace.stack_window %d", ErrInvalid, c.Trace.StackWindow)
	}
	return nil
}

// TimeoutDuration returns vm.timeout, zero when unset.
func (v VM) TimeoutDuration() time.Duration { return v.timeout }

func validFormat(f string) bool {
	for _, name := range TraceFormats {
		if f == name {
			return true
		}
	}
	return false
}
