package gcs

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/fastcopy/pkg/configutils"
	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/utils"
)

// Config holds client settings read from the "gcs" configuration key.
type Config struct {
	// CredentialsFile is a service account key; empty uses application
	// default credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
	// Endpoint overrides the API endpoint, e.g. for an emulator.
	Endpoint string `mapstructure:"endpoint"`
	// AccessToken authenticates with a fixed OAuth2 token.
	AccessToken string `mapstructure:"access_token"`
	// Anonymous disables authentication.
	Anonymous bool `mapstructure:"anonymous"`
	// FetchWorkers bounds parallel ranged reads in native fetch mode.
	FetchWorkers int `mapstructure:"fetch_workers" validate:"gte=0"`
	// FetchChunkSize is the size of each ranged read in native fetch mode.
	FetchChunkSize int64 `mapstructure:"fetch_chunk_size" validate:"gte=0"`
}

// Options translates the config into provider options.
func (c Config) Options() []Option {
	var opts []Option
	if c.CredentialsFile != "" {
		opts = append(opts, WithCredentialsFile(c.CredentialsFile))
	}
	if c.Endpoint != "" {
		opts = append(opts, WithEndpoint(c.Endpoint))
	}
	if c.AccessToken != "" {
		opts = append(opts, WithAccessToken(c.AccessToken))
	}
	if c.Anonymous {
		opts = append(opts, WithoutAuthentication())
	}
	opts = append(opts, WithFetchWorkers(c.FetchWorkers), WithFetchChunkSize(c.FetchChunkSize))
	return opts
}

type viperSettings struct {
	GCS Config `mapstructure:"gcs"`
}

// ProvideProvider builds a Provider from the "gcs" key of v and the
// matching environment variables. Fetch workers default to the CPUs
// available to the process.
func ProvideProvider(v *viper.Viper, logger logging.Interface) (*Provider, error) {
	var settings viperSettings
	if err := configutils.BindEnvsRecursive(v, &settings, ""); err != nil {
		return nil, fmt.Errorf("error occurred when binding environment variables: %+v", err)
	}
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error occurred when unmarshalling gcs config: %+v", err)
	}
	cfg := settings.GCS
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid gcs config: %w", err)
	}

	opts := cfg.Options()
	if cfg.FetchWorkers == 0 {
		opts = append(opts, WithFetchWorkers(utils.AvailableCPUs()))
	}
	return New(logger, opts...), nil
}
