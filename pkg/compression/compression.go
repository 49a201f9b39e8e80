// Package compression gzips and gunzips staging files in place with
// external tools, preferring the parallel pigz family when installed.
package compression

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/runner"
)

// Suffix marks a file holding gzip-compressed bytes.
const Suffix = ".gz"

const (
	ParallelCompressor     = "pigz"
	SequentialCompressor   = "gzip"
	ParallelDecompressor   = "unpigz"
	SequentialDecompressor = "gunzip"
)

var (
	// ErrSuffixConvention is returned when a tool exits zero but the file it
	// should have produced is missing.
	ErrSuffixConvention = errors.New("compression tool did not follow the suffix convention")
	// ErrNotCompressed is returned when asked to decompress a path without Suffix.
	ErrNotCompressed = errors.New("path does not carry the compressed suffix")
)

// Codec compresses and decompresses files in place.
type Codec interface {
	Compress(ctx context.Context, path string) (string, error)
	Decompress(ctx context.Context, path string) (string, error)
}

// Adapter runs the gzip tool family through a runner.Runner.
type Adapter struct {
	runner   runner.Runner
	lookPath func(string) bool
	stat     func(string) error
	logger   logging.Interface
}

var _ Codec = (*Adapter)(nil)

type Option func(*Adapter)

// WithLookPath replaces the PATH probe used to pick between tools.
func WithLookPath(fn func(string) bool) Option {
	return func(a *Adapter) {
		a.lookPath = fn
	}
}

// WithStat replaces the existence check run on the produced path.
func WithStat(fn func(string) error) Option {
	return func(a *Adapter) {
		a.stat = fn
	}
}

func New(r runner.Runner, logger logging.Interface, opts ...Option) *Adapter {
	a := &Adapter{
		runner:   r,
		lookPath: runner.LookPath,
		stat: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
		logger: logging.OrDiscard(logger),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compress replaces path with path+Suffix and returns the new path.
func (a *Adapter) Compress(ctx context.Context, path string) (string, error) {
	tool := a.pick(ParallelCompressor, SequentialCompressor)
	if err := a.run(ctx, tool, path); err != nil {
		return "", err
	}
	return a.verify(tool, path+Suffix)
}

// Decompress replaces path with path minus Suffix and returns the new path.
func (a *Adapter) Decompress(ctx context.Context, path string) (string, error) {
	if !strings.HasSuffix(path, Suffix) {
		return "", fmt.Errorf("%w: %s", ErrNotCompressed, path)
	}
	tool := a.pick(ParallelDecompressor, SequentialDecompressor)
	if err := a.run(ctx, tool, path); err != nil {
		return "", err
	}
	return a.verify(tool, path[:len(path)-len(Suffix)])
}

// pick is evaluated on every call; tool availability may change between
// operations.
func (a *Adapter) pick(parallel, sequential string) string {
	if a.lookPath(parallel) {
		return parallel
	}
	return sequential
}

func (a *Adapter) run(ctx context.Context, tool, path string) error {
	args := []string{path}
	a.logger.WithField("tool", tool).WithField("path", path).Debug("Running codec")

	res, err := a.runner.Run(ctx, tool, args...)
	if err != nil {
		return err
	}
	return res.Err(tool, args)
}

func (a *Adapter) verify(tool, path string) (string, error) {
	if err := a.stat(path); err != nil {
		return "", fmt.Errorf("%w: %s did not produce %s: %v", ErrSuffixConvention, tool, path, err)
	}
	return path, nil
}
