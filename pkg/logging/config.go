package logging

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigKey is the root configuration key (in Viper) for this module.
var ConfigKey = "logging"

// Config holds the configuration for logging.
type Config struct {
	// Debug forces DEBUG level and the console encoder, regardless of Level.
	Debug bool `mapstructure:"debug"`

	// Level controls the logging level. Defaults to INFO.
	Level Level `mapstructure:"level"`

	// EncodeTimeAsRFC3339Nano serializes timestamps as RFC3339Nano.
	EncodeTimeAsRFC3339Nano bool `mapstructure:"encodeTimeAsRFC3339Nano"`

	// DisableConsoleOutput stops logs from being written to stderr.
	//
	// Console logs never go to stdout: `fastcopy read` streams object
	// contents there.
	DisableConsoleOutput bool `mapstructure:"disableConsoleOutput"`

	// Logger configures the rotating file sink. No file is written
	// unless Filename is set.
	lumberjack.Logger `mapstructure:",squash"`
}

// Option is a configuration option for logging.
type Option func(*Config) error

// Validate ensures the logging Config is valid.
func (c *Config) Validate() error {
	if c.MaxSize < 0 {
		return fmt.Errorf("maxsize must be >= 0, not %d", c.MaxSize)
	}
	if c.MaxBackups < 0 {
		return fmt.Errorf("maxbackups must be >= 0, not %d", c.MaxBackups)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("maxage days must be >= 0, not %d", c.MaxAge)
	}
	if err := c.Level.Validate(); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if c.DisableConsoleOutput && c.Filename == "" {
		return errors.New("console output is disabled and no log filename is set")
	}

	return nil
}

// WithViper reads the configuration under the "logging" key.
func WithViper(v *viper.Viper) Option {
	return WithViperKey(v, ConfigKey)
}

// WithViperKey reads the configuration under configKey.
func WithViperKey(v *viper.Viper, configKey string) Option {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil Viper")
		}

		return v.UnmarshalKey(configKey, c)
	}
}

// WithDebug turns on debug logging when enabled is true.
func WithDebug(enabled bool) Option {
	return func(c *Config) error {
		if enabled {
			c.Debug = true
		}
		return nil
	}
}

// Apply takes the supplied options and applies them to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}

		if err := o(c); err != nil {
			return err
		}
	}

	return nil
}

// NewConfig creates a new logging config with the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}

	return c, nil
}
