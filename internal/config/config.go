// Package config loads the settings of the corun-echo server from a
// TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/webriots/corun"
)

// Config is the corun-echo configuration file.
type Config struct {
	Listen  string  `toml:"listen"`
	Workers Workers `toml:"workers"`
	Conn    Conn    `toml:"conn"`
}

// Workers configures the thread group driving the schedule.
type Workers struct {
	Count    int    `toml:"count"`          // 0 selects one per CPU
	Threads  string `toml:"threads"`        // "goroutine" or "os"
	Priority string `toml:"priority"`       // see corun.ParsePriority
	CPUs     []int  `toml:"cpus,omitempty"` // affinity, os threads only
	Detach   bool   `toml:"detach"`         // abandon workers on Close
}

// Conn configures each echo connection.
type Conn struct {
	BufferSize  int      `toml:"buffer_size"`
	IdleTimeout Duration `toml:"idle_timeout"`
	MaxConns    int      `toml:"max_conns"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:7007",
		Workers: Workers{
			Threads:  "goroutine",
			Priority: "inherit",
		},
		Conn: Conn{
			BufferSize:  4096,
			IdleTimeout: Duration(time.Minute),
			MaxConns:    1024,
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a TOML document over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var sme *toml.StrictMissingError
		if errors.As(err, &sme) {
			return nil, fmt.Errorf("failed to parse config file: %s", sme.String())
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings that decoding cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("workers.count %d is negative", c.Workers.Count))
	}
	switch c.Workers.Threads {
	case "goroutine":
		if c.Workers.Priority != "inherit" || len(c.Workers.CPUs) > 0 || c.Workers.Detach {
			errs = append(errs, errors.New("workers: tuning needs threads = \"os\""))
		}
	case "os":
	default:
		errs = append(errs, fmt.Errorf("workers.threads %q is not goroutine or os", c.Workers.Threads))
	}
	if _, err := corun.ParsePriority(c.Workers.Priority); err != nil {
		errs = append(errs, err)
	}
	if c.Conn.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("conn.buffer_size %d is not positive", c.Conn.BufferSize))
	}
	if c.Conn.MaxConns <= 0 {
		errs = append(errs, fmt.Errorf("conn.max_conns %d is not positive", c.Conn.MaxConns))
	}
	return errors.Join(errs...)
}

// WorkerCount resolves Workers.Count.
func (c *Config) WorkerCount() int {
	if c.Workers.Count == 0 {
		return corun.HardwareConcurrency()
	}
	return c.Workers.Count
}

// Launcher returns the thread backend and attributes for the workers.
func (c *Config) Launcher() (corun.Launcher, corun.Attributes) {
	if c.Workers.Threads != "os" {
		return corun.Goroutines, corun.Attributes{}
	}
	p, _ := corun.ParsePriority(c.Workers.Priority)
	attr := corun.Attributes{Priority: p}
	if len(c.Workers.CPUs) > 0 {
		attr.Affinity = corun.CPUSet(c.Workers.CPUs)
	}
	if c.Workers.Detach {
		attr.DtorAction = corun.DtorDetach
	}
	return corun.OSThreads, attr
}

// Marshal encodes c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
