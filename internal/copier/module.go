package copier

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/fastcopy"
	"github.com/sgl-project/fastcopy/pkg/logging"
)

type copierParams struct {
	fx.In

	Logger logging.Interface
	Fs     afero.Fs
	Client *fastcopy.Client
}

var Module = fx.Provide(
	func(v *viper.Viper, params copierParams) (*Copier, error) {
		config, err := NewConfig(
			WithViper(v),
			WithLogger(params.Logger),
			WithFs(params.Fs),
		)
		if err != nil {
			return nil, fmt.Errorf("error creating copier config: %+v", err)
		}
		return NewCopier(params.Client, config)
	})
