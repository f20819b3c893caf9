// Package config holds the recording configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/maxgio92/xprof/internal/settings"
)

const (
	EnvSamplesDir = "XPROF_SAMPLES_DIR"
	EnvSession    = "XPROF_SESSION"
)

var (
	ErrNoCounters      = errors.New("at least one counter is required")
	ErrCounterEvent    = errors.New("counter event name is required")
	ErrCounterCount    = errors.New("counter count must be positive")
	ErrSyncInterval    = errors.New("sync_interval must be positive")
	ErrMaxOpenFiles    = errors.New("max_open_files must be positive")
	ErrSamplesDirEmpty = errors.New("samples_dir is required")
)

// Counter is a hardware or software event sampled every Count occurrences.
type Counter struct {
	Event    string `yaml:"event"`
	Count    uint32 `yaml:"count"`
	UnitMask uint32 `yaml:"unit_mask"`
}

// Separate selects the dimensions sample tables are split along.
type Separate struct {
	Lib    bool `yaml:"lib"`
	Kernel bool `yaml:"kernel"`
	Thread bool `yaml:"thread"`
	CPU    bool `yaml:"cpu"`
}

// Config describes a recording session.
type Config struct {
	SamplesDir   string        `yaml:"samples_dir"`
	Session      string        `yaml:"session"`
	Counters     []Counter     `yaml:"counters"`
	Separate     Separate      `yaml:"separate"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	MaxOpenFiles int           `yaml:"max_open_files"`
	CPUType      uint32        `yaml:"cpu_type"`
	CPUSpeed     float64       `yaml:"cpu_speed"`
}

// DefaultConfig samples CPU cycles every 100000 occurrences into the
// current session.
func DefaultConfig() *Config {
	return &Config{
		SamplesDir: settings.SamplesDir,
		Session:    settings.CurrentSession,
		Counters: []Counter{
			{Event: "CPU_CYCLES", Count: 100000},
		},
		SyncInterval: 10 * time.Second,
		MaxOpenFiles: 64,
	}
}

// Load reads a YAML file over the defaults. A missing file at the default
// location is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	case os.IsNotExist(err) && path == settings.ConfigFile:
	default:
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return cfg, nil
}

// ApplyEnvOverrides overrides the samples directory and session from the
// environment.
func (c *Config) ApplyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(EnvSamplesDir)); v != "" {
		c.SamplesDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSession)); v != "" {
		c.Session = v
	}
}

func (c *Config) Validate() error {
	if c.SamplesDir == "" {
		return ErrSamplesDirEmpty
	}
	if c.Session == "" {
		c.Session = settings.CurrentSession
	}
	if len(c.Counters) == 0 {
		return ErrNoCounters
	}
	for i, ctr := range c.Counters {
		if ctr.Event == "" || strings.ContainsAny(ctr.Event, "./") {
			return errors.Wrapf(ErrCounterEvent, "counter %d", i)
		}
		if ctr.Count == 0 {
			return errors.Wrapf(ErrCounterCount, "counter %d (%s)", i, ctr.Event)
		}
	}
	if c.SyncInterval <= 0 {
		return ErrSyncInterval
	}
	if c.MaxOpenFiles <= 0 {
		return ErrMaxOpenFiles
	}

	return nil
}

// ParseCounter parses EVENT:COUNT[:UNITMASK].
func ParseCounter(s string) (Counter, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Counter{}, fmt.Errorf("invalid counter %q, want EVENT:COUNT[:UNITMASK]", s)
	}
	count, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Counter{}, errors.Wrapf(err, "invalid count in counter %q", s)
	}
	c := Counter{Event: parts[0], Count: uint32(count)}
	if len(parts) == 3 {
		um, err := strconv.ParseUint(parts[2], 0, 32)
		if err != nil {
			return Counter{}, errors.Wrapf(err, "invalid unit mask in counter %q", s)
		}
		c.UnitMask = uint32(um)
	}

	return c, nil
}

// SessionDir returns the directory sample tables are written to.
func (c *Config) SessionDir() string {
	if strings.HasPrefix(c.Session, "/") {
		return c.Session
	}
	return strings.TrimSuffix(c.SamplesDir, "/") + "/" + c.Session
}
