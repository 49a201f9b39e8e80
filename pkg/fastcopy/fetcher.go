package fastcopy

import (
	"context"
	"fmt"

	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/runner"
	"github.com/sgl-project/fastcopy/pkg/storage"
)

// CLIFetcher downloads objects with an external copy tool invoked as
// `<command...> cp <uri> <path>`.
type CLIFetcher struct {
	runner  runner.Runner
	command []string
	logger  logging.Interface
}

var _ storage.Fetcher = (*CLIFetcher)(nil)

// NewCLIFetcher returns a fetcher running command; an empty command means
// DefaultFetchCommand.
func NewCLIFetcher(r runner.Runner, command []string, logger logging.Interface) *CLIFetcher {
	if len(command) == 0 {
		command = DefaultFetchCommand
	}
	return &CLIFetcher{
		runner:  r,
		command: append([]string(nil), command...),
		logger:  logging.OrDiscard(logger),
	}
}

func (f *CLIFetcher) Fetch(ctx context.Context, target storage.Target, localPath string) error {
	tool := f.command[0]
	args := append(append([]string(nil), f.command[1:]...), "cp", target.String(), localPath)

	f.logger.WithField("tool", tool).WithField("target", target.String()).Debug("Fetching object")

	res, err := f.runner.Run(ctx, tool, args...)
	if err != nil {
		return fmt.Errorf("start %s: %w", tool, err)
	}
	return res.Err(tool, args)
}
