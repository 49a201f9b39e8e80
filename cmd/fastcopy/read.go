package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sgl-project/fastcopy/internal/copier"
)

func newReadCommand(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "read <uri>",
		Short: "Download an object to standard output or a file",
		Long:  "Download gs://bucket/key or a local path. Targets ending in .gz are decompressed before being written out.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, root, func(ctx context.Context, c *copier.Copier) error {
				_, err := c.Download(ctx, args[0], output)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", copier.Stdio, "file to write the object to, - for standard output")
	return cmd
}
