package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgl-project/fastcopy/pkg/version"
)

const envPrefix = "FASTCOPY"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configFilePath string
	debug          bool
	metricsFile    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fastcopy",
		Short:         "Copy single files to and from Google Cloud Storage",
		Long:          "fastcopy reads and writes single objects on Google Cloud Storage or the local filesystem, gzipping transparently when the target ends in .gz and uploading large files in parallel chunks.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFilePath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug mode")
	cmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(newReadCommand(opts))
	cmd.AddCommand(newWriteCommand(opts))
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
