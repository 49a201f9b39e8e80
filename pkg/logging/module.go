package logging

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module loads the "logging" section from Viper and provides both the
// *zap.Logger and the Interface facade.
//
// The top-level "debug" key (bound to the --debug flag) forces debug output.
var Module fx.Option = fx.Provide(
	provideZapLogger,
	provideInterface,
)

func provideZapLogger(v *viper.Viper) (*zap.Logger, error) {
	config, err := NewConfig(WithViper(v), WithDebug(v.GetBool("debug")))
	if err != nil {
		return nil, fmt.Errorf("error reading logging configuration: %w", err)
	}

	return NewLogger(config)
}

func provideInterface(l *zap.Logger) Interface { return ForZap(l) }
