package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sgl-project/fastcopy/internal/copier"
	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/configutils"
	"github.com/sgl-project/fastcopy/pkg/fastcopy"
	"github.com/sgl-project/fastcopy/pkg/logging"
)

const stopTimeout = 30 * time.Second

func fxModules(cmd *cobra.Command, opts *rootOptions, registry *prometheus.Registry) []fx.Option {
	return []fx.Option{
		configutils.ProvideViper(envPrefix, cmd.Flags(), opts.configFilePath),
		logging.Module,
		logging.UseLoggingInterface,
		afero.Module,
		fx.Provide(func() prometheus.Registerer { return registry }),
		fastcopy.Module,
		copier.Module,
	}
}

// runCommand builds the application, runs action with its Copier and
// stops it again. Metrics are written even when action fails.
func runCommand(cmd *cobra.Command, opts *rootOptions, action func(context.Context, *copier.Copier) error) error {
	registry := prometheus.NewRegistry()

	var c *copier.Copier
	app := fx.New(append(fxModules(cmd, opts, registry), fx.Populate(&c))...)
	if err := app.Err(); err != nil {
		return fmt.Errorf("initializing fastcopy: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting fastcopy: %w", err)
	}

	var result *multierror.Error
	if err := action(ctx, c); err != nil {
		result = multierror.Append(result, err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stopping fastcopy: %w", err))
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("writing metrics: %w", err))
		}
	}

	if result != nil && len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return result.ErrorOrNil()
}
