package fastcopy

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/fastcopy/pkg/configutils"
	"github.com/sgl-project/fastcopy/pkg/storage/providers/gcs"
)

// FetchMode selects how remote objects are downloaded.
type FetchMode string

const (
	// FetchModeCLI shells out to the fetch command.
	FetchModeCLI FetchMode = "cli"
	// FetchModeNative uses parallel ranged reads through the GCS client.
	FetchModeNative FetchMode = "native"
)

// DefaultFetchCommand is invoked as `gcloud storage cp <uri> <path>`.
var DefaultFetchCommand = []string{"gcloud", "storage"}

type Config struct {
	// Workers is the upload concurrency. Zero means the number of CPUs the
	// process may run on, evaluated per operation.
	Workers int `mapstructure:"workers" validate:"gte=0"`
	// ChunkSize in bytes. Zero lets the store choose.
	ChunkSize int64 `mapstructure:"chunk_size" validate:"gte=0"`
	// UserProject is billed for requests to requester-pays buckets.
	UserProject string `mapstructure:"user_project"`
	// ScratchDir is the parent of per-operation scratch directories.
	// Empty means the OS temp directory.
	ScratchDir string `mapstructure:"scratch_dir"`

	FetchCommand []string  `mapstructure:"fetch_command" validate:"min=1,dive,required"`
	FetchMode    FetchMode `mapstructure:"fetch_mode" validate:"oneof=cli native"`

	GCS gcs.Config `mapstructure:"gcs"`
}

type Option func(*Config) error

// Apply applies the given options to the configuration.
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

// defaultConfig returns a new configuration with default values.
func defaultConfig() *Config {
	return &Config{
		FetchCommand: append([]string(nil), DefaultFetchCommand...),
		FetchMode:    FetchModeCLI,
	}
}

// NewConfig builds and returns a new configuration from the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithViper loads the configuration from v, including environment
// variables for every field.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		*c = *defaultConfig()
		if err := configutils.BindEnvsRecursive(v, c, ""); err != nil {
			return fmt.Errorf("error occurred when binding environment variables: %+v", err)
		}

		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("error occurred when unmarshalling config: %+v", err)
		}

		return nil
	}
}

// WithDefaultWorkers sets Config.Workers.
func WithDefaultWorkers(n int) Option {
	return func(c *Config) error {
		c.Workers = n
		return nil
	}
}

// WithDefaultChunkSize sets Config.ChunkSize.
func WithDefaultChunkSize(bytes int64) Option {
	return func(c *Config) error {
		c.ChunkSize = bytes
		return nil
	}
}

// WithDefaultUserProject sets Config.UserProject.
func WithDefaultUserProject(project string) Option {
	return func(c *Config) error {
		c.UserProject = project
		return nil
	}
}

// WithScratchDir sets Config.ScratchDir.
func WithScratchDir(dir string) Option {
	return func(c *Config) error {
		c.ScratchDir = dir
		return nil
	}
}

// WithFetchMode sets Config.FetchMode.
func WithFetchMode(mode FetchMode) Option {
	return func(c *Config) error {
		c.FetchMode = mode
		return nil
	}
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}
