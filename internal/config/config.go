// Package config loads the fabric tool settings from defaults, an optional
// YAML file and FABRIC_* environment variables.
package config

import (
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/builder"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/route"
)

const (
	configName = "config"
	envPrefix  = "FABRIC"
)

// Config controls device loading and route reconstruction.
type Config struct {
	// Search settings
	SearchVisitLimit int      `mapstructure:"search_visit_limit" yaml:"search_visit_limit"`
	LongLinePatterns []string `mapstructure:"long_line_patterns" yaml:"long_line_patterns"`
	ClockRules       []string `mapstructure:"clock_rules" yaml:"clock_rules"`

	// Device building
	RepairVisitLimit int `mapstructure:"repair_visit_limit" yaml:"repair_visit_limit"`
	ReverseWorkers   int `mapstructure:"reverse_workers" yaml:"reverse_workers"`

	// Device repository
	RepositoryCapacity int    `mapstructure:"repository_capacity" yaml:"repository_capacity"`
	DeviceDir          string `mapstructure:"device_dir" yaml:"device_dir"`

	ImportConcurrency int `mapstructure:"import_concurrency" yaml:"import_concurrency"`

	// Compiled by Validate
	longLine   func(string) bool
	clockRules []route.ClockRule
}

// Dir is the directory searched for config.yaml.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "locating home directory")
	}
	return filepath.Join(home, ".config", "opentracefabric"), nil
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		SearchVisitLimit:   route.DefaultVisitLimit,
		LongLinePatterns:   route.DefaultLongLinePatterns,
		ClockRules:         route.DefaultClockRuleSpecs,
		RepairVisitLimit:   builder.DefaultRepairVisitLimit,
		ReverseWorkers:     runtime.NumCPU(),
		RepositoryCapacity: 4,
		DeviceDir:          "~/.config/opentracefabric/devices",
		ImportConcurrency:  runtime.NumCPU(),
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("search_visit_limit", def.SearchVisitLimit)
	v.SetDefault("long_line_patterns", def.LongLinePatterns)
	v.SetDefault("clock_rules", def.ClockRules)
	v.SetDefault("repair_visit_limit", def.RepairVisitLimit)
	v.SetDefault("reverse_workers", def.ReverseWorkers)
	v.SetDefault("repository_capacity", def.RepositoryCapacity)
	v.SetDefault("device_dir", def.DeviceDir)
	v.SetDefault("import_concurrency", def.ImportConcurrency)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	return v
}

// Load reads the settings. An explicit file must exist; with file empty
// config.yaml is looked up in Dir and its absence is not an error.
func Load(file string, log logrus.FieldLogger) (*Config, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	v := newViper()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, errors.Wrap(err, "reading configuration")
		}
		log.Debug("no configuration file, using defaults")
	} else {
		log.WithField("file", v.ConfigFileUsed()).Debug("configuration loaded")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration and compiles its patterns.
func (c *Config) Validate() error {
	if c.SearchVisitLimit < 1 {
		c.SearchVisitLimit = route.DefaultVisitLimit
	}
	if c.RepairVisitLimit < 1 {
		c.RepairVisitLimit = builder.DefaultRepairVisitLimit
	}
	if c.ReverseWorkers < 1 {
		c.ReverseWorkers = 1
	}
	if c.RepositoryCapacity < 1 {
		c.RepositoryCapacity = 1
	}
	if c.ImportConcurrency < 1 {
		c.ImportConcurrency = 1
	}

	dir, err := homedir.Expand(c.DeviceDir)
	if err != nil {
		return errors.Wrap(err, "device_dir")
	}
	c.DeviceDir = dir

	if c.longLine, err = route.LongLineMatcher(c.LongLinePatterns); err != nil {
		return err
	}
	if c.clockRules, err = route.ParseClockRules(c.ClockRules); err != nil {
		return err
	}
	return nil
}

// RouteOptions returns reconstructor options for these settings.
func (c *Config) RouteOptions(log logrus.FieldLogger) route.Options {
	return route.Options{
		VisitLimit: c.SearchVisitLimit,
		LongLine:   c.longLine,
		ClockRules: c.clockRules,
		Logger:     log,
	}
}

// BuilderOptions returns device builder options for these settings.
func (c *Config) BuilderOptions(log logrus.FieldLogger) builder.Options {
	return builder.Options{
		RepairVisitLimit: c.RepairVisitLimit,
		ReverseWorkers:   c.ReverseWorkers,
		Logger:           log,
	}
}

// Write dumps the effective settings as YAML.
func (c *Config) Write(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding configuration")
	}
	_, err = w.Write(data)
	return err
}
