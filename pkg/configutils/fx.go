package configutils

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// ProvideViper provides a *viper.Viper that reads environment variables
// prefixed with envPrefix, binds the given flags, and merges
// configFilePath (with its imports) when one is given.
//
// Flag names are bound verbatim, so a "chunk-size" flag is read back as
// v.GetInt64("chunk-size").
func ProvideViper(envPrefix string, pflags *pflag.FlagSet, configFilePath string) fx.Option {
	return fx.Provide(func() (*viper.Viper, error) {
		return NewViper(envPrefix, pflags, configFilePath)
	})
}

// NewViper is the constructor behind ProvideViper.
func NewViper(envPrefix string, pflags *pflag.FlagSet, configFilePath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if pflags != nil {
		if err := v.BindPFlags(pflags); err != nil {
			return nil, fmt.Errorf("can't bind flags: %w", err)
		}
	}

	if configFilePath != "" {
		if err := ResolveAndMergeFile(v, configFilePath); err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
	}

	return v, nil
}
