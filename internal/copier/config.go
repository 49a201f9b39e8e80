package copier

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/configutils"
	"github.com/sgl-project/fastcopy/pkg/logging"
)

const defaultFileMode = 0o644

type Config struct {
	// FileMode is applied to files written by read.
	FileMode uint32 `mapstructure:"file_mode" validate:"lte=0777"`
	// BufferSize of the stdin and stdout copy buffers in bytes.
	BufferSize int `mapstructure:"buffer_size" validate:"gte=0"`

	Logger logging.Interface `validate:"required"`
	Fs     afero.Fs          `validate:"required"`
	Stdin  io.Reader         `validate:"required"`
	Stdout io.Writer         `validate:"required"`
}

func defaultConfig() *Config {
	return &Config{
		FileMode:   defaultFileMode,
		BufferSize: 1 << 20,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
	}
}

// Option represents a configuration option for the copier.
type Option func(*Config) error

// NewConfig builds and returns a new configuration from the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply applies the given options to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o != nil {
			if err := o(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithViper loads the "copier" section of v on top of the defaults.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		if v == nil {
			return nil
		}
		settings := viperSettings{
			Copier: fileConfig{FileMode: c.FileMode, BufferSize: c.BufferSize},
		}
		if err := configutils.BindEnvsRecursive(v, &settings, ""); err != nil {
			return fmt.Errorf("error binding envs: %w", err)
		}
		if err := v.Unmarshal(&settings); err != nil {
			return fmt.Errorf("error unmarshalling config: %w", err)
		}
		c.FileMode = settings.Copier.FileMode
		c.BufferSize = settings.Copier.BufferSize
		return nil
	}
}

// fileConfig is the part of Config that can come from a file or the
// environment.
type fileConfig struct {
	FileMode   uint32 `mapstructure:"file_mode"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type viperSettings struct {
	Copier fileConfig `mapstructure:"copier"`
}

func WithLogger(logger logging.Interface) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

func WithFs(fs afero.Fs) Option {
	return func(c *Config) error {
		c.Fs = fs
		return nil
	}
}

// WithStdio replaces the process's standard input and output.
func WithStdio(stdin io.Reader, stdout io.Writer) Option {
	return func(c *Config) error {
		c.Stdin = stdin
		c.Stdout = stdout
		return nil
	}
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
