// Package config loads the YAML file that describes which engine chains
// qpipe builds and how it logs.
package config

import (
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"qpipe/internal/qerr"
)

// Version is the qpipe release checked against Config.MinVersion.
const Version = "0.4.0"

// Backend names accepted in ChainConfig.Backend.
const (
	BackendClassical = "classical"
	BackendDrawer    = "drawer"
	BackendPrinter   = "printer"
	BackendResources = "resources"
)

type LoggerConfig struct {
	Level string `yaml:"level"`
	// File switches from console output on stderr to a rotating log file.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
	MaxAgeDays int    `yaml:"maxAgeDays,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// ChainConfig describes one chain: the stages in front of the backend are
// built in the order replacer, buffer, mapper, gate filter.
type ChainConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	// Mapping fixes logical to physical ids. A chain without it still gets
	// an identity mapper when Mapped is set.
	Mapping   map[int]int `yaml:"mapping,omitempty"`
	Mapped    bool        `yaml:"mapped,omitempty"`
	Buffer    int         `yaml:"buffer,omitempty"`
	Decompose bool        `yaml:"decompose,omitempty"`
	// Gates restricts the chain to these gate classes ("H", "CX", "Rz",
	// "C2X"). Empty allows everything the backend accepts.
	Gates []string `yaml:"gates,omitempty"`
	// Overflow is "reject" or "wrap"; classical backend only.
	Overflow string `yaml:"overflow,omitempty"`
	// DefaultMeasure is reported by drawer and printer backends.
	DefaultMeasure int `yaml:"defaultMeasure,omitempty"`
	// Locations assigns qubit ids to drawer lines.
	Locations map[int]int `yaml:"locations,omitempty"`
}

type Config struct {
	// MinVersion is a semver constraint the running qpipe must satisfy,
	// e.g. ">= 0.3".
	MinVersion string        `yaml:"minVersion,omitempty"`
	Logger     LoggerConfig  `yaml:"logger"`
	Chains     []ChainConfig `yaml:"chains"`
}

// Default is a single classical chain with an identity mapper.
func Default() *Config {
	return (&Config{}).WithDefaults()
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown keys, then applies defaults and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, qerr.InvalidArgument("decode config: %v", err)
	}
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithDefaults fills unset fields in place and returns cfg.
func (cfg *Config) WithDefaults() *Config {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.File != "" {
		if cfg.Logger.MaxSizeMB == 0 {
			cfg.Logger.MaxSizeMB = 50
		}
		if cfg.Logger.MaxBackups == 0 {
			cfg.Logger.MaxBackups = 5
		}
		if cfg.Logger.MaxAgeDays == 0 {
			cfg.Logger.MaxAgeDays = 14
		}
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = []ChainConfig{{Name: "main", Backend: BackendClassical, Mapped: true}}
	}
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.Name == "" && i == 0 {
			c.Name = "main"
		}
		if c.Backend == BackendClassical && c.Overflow == "" {
			c.Overflow = "reject"
		}
		if len(c.Mapping) > 0 {
			c.Mapped = true
		}
	}
	return cfg
}

// Validate checks the version constraint and every chain. Problems are
// reported as qerr.ErrInvalidArgument.
func (cfg *Config) Validate() error {
	if cfg.MinVersion != "" {
		constraint, err := semver.NewConstraint(cfg.MinVersion)
		if err != nil {
			return qerr.InvalidArgument("minVersion %q: %v", cfg.MinVersion, err)
		}
		if !constraint.Check(semver.MustParse(Version)) {
			return qerr.InvalidArgument("config requires qpipe %s, this is %s", cfg.MinVersion, Version)
		}
	}
	if _, err := zapcore.ParseLevel(cfg.Logger.Level); err != nil {
		return qerr.InvalidArgument("logger level: %v", err)
	}
	if len(cfg.Chains) == 0 {
		return qerr.InvalidArgument("at least one chain is required")
	}

	names := make(map[string]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if c.Name == "" {
			return qerr.InvalidArgument("chain without a name")
		}
		if names[c.Name] {
			return qerr.InvalidArgument("chain %q declared twice", c.Name)
		}
		names[c.Name] = true
		if err := c.validate(); err != nil {
			return errors.Wrapf(err, "chain %q", c.Name)
		}
	}
	return nil
}

func (c ChainConfig) validate() error {
	switch c.Backend {
	case BackendClassical, BackendDrawer, BackendPrinter, BackendResources:
	default:
		return qerr.InvalidArgument("unknown backend %q", c.Backend)
	}
	if c.Buffer < 0 {
		return qerr.InvalidArgument("buffer size %d is negative", c.Buffer)
	}
	if c.DefaultMeasure != 0 && c.DefaultMeasure != 1 {
		return qerr.InvalidArgument("defaultMeasure must be 0 or 1, got %d", c.DefaultMeasure)
	}
	if c.Overflow != "" {
		if c.Backend != BackendClassical {
			return qerr.InvalidArgument("overflow only applies to the classical backend")
		}
		if c.Overflow != "reject" && c.Overflow != "wrap" {
			return qerr.InvalidArgument("overflow must be reject or wrap, got %q", c.Overflow)
		}
	}
	seen := make(map[string]bool, len(c.Gates))
	for _, g := range c.Gates {
		if strings.TrimSpace(g) == "" {
			return qerr.InvalidArgument("empty gate class")
		}
		if seen[g] {
			return qerr.InvalidArgument("gate class %s listed twice", g)
		}
		seen[g] = true
	}
	if len(c.Locations) > 0 && c.Backend != BackendDrawer {
		return qerr.InvalidArgument("locations only apply to the drawer backend")
	}
	if err := injective("mapping", c.Mapping); err != nil {
		return err
	}
	return injective("locations", c.Locations)
}

func injective(field string, m map[int]int) error {
	seen := make(map[int]int, len(m))
	for k, v := range m {
		if k < 0 || v < 0 {
			return qerr.InvalidArgument("%s: negative id in %d: %d", field, k, v)
		}
		if other, ok := seen[v]; ok {
			return qerr.InvalidArgument("%s: %d and %d both map to %d", field, min(k, other), max(k, other), v)
		}
		seen[v] = k
	}
	return nil
}

// Marshal renders cfg as YAML.
func (cfg *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Chain returns the chain config named name.
func (cfg *Config) Chain(name string) (ChainConfig, bool) {
	for _, c := range cfg.Chains {
		if c.Name == name {
			return c, true
		}
	}
	return ChainConfig{}, false
}
