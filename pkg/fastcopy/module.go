package fastcopy

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/storage/providers/gcs"
)

type clientParams struct {
	fx.In

	Logger     logging.Interface
	Fs         afero.Fs              `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module provides a *Client configured from viper, together with the GCS
// provider it uploads through. The GCS client is closed when the
// application stops.
var Module = fx.Options(
	fx.Provide(
		func(v *viper.Viper) (*Config, error) {
			config, err := NewConfig(WithViper(v))
			if err != nil {
				return nil, fmt.Errorf("error creating fastcopy config: %+v", err)
			}
			return config, nil
		},
		func(params clientParams) *Metrics {
			return NewMetrics(params.Registerer)
		},
		gcs.ProvideProvider,
		func(lc fx.Lifecycle, config *Config, metrics *Metrics, provider *gcs.Provider, params clientParams) (*Client, error) {
			opts := []ClientOption{
				WithLogger(params.Logger),
				WithMetrics(metrics),
				WithGCSProvider(provider),
			}
			if params.Fs != nil {
				opts = append(opts, WithFs(params.Fs))
			}

			client, err := NewClient(config, opts...)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return client.Close()
				},
			})
			return client, nil
		},
	),
)
