// Package copier moves bytes between a fastcopy target and the local
// process: standard streams or plain files.
package copier

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/fastcopy"
	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/storage"
)

// Stdio names standard input or output in place of a file path.
const Stdio = "-"

// Transferrer is the part of *fastcopy.Client the copier drives.
type Transferrer interface {
	Read(ctx context.Context, uri string, fn func(*os.File) error) error
	Write(ctx context.Context, uri string, fn func(*os.File) error, opts ...fastcopy.WriteOption) error
}

var _ Transferrer = (*fastcopy.Client)(nil)

type Copier struct {
	client Transferrer
	config Config
	logger logging.Interface
}

// NewCopier validates config and returns a Copier driving client.
func NewCopier(client Transferrer, config *Config) (*Copier, error) {
	if client == nil {
		return nil, fmt.Errorf("copier needs a fastcopy client")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid copier config: %w", err)
	}
	return &Copier{
		client: client,
		config: *config,
		logger: config.Logger,
	}, nil
}

// Download reads uri and writes its contents to output. An empty output
// or Stdio means standard output. Files are replaced atomically.
func (c *Copier) Download(ctx context.Context, uri, output string) (int64, error) {
	var n int64
	err := c.client.Read(ctx, uri, func(f *os.File) error {
		var err error
		if isStdio(output) {
			n, err = io.CopyBuffer(c.config.Stdout, f, c.buffer())
			return err
		}
		n, err = afero.AtomicWrite(c.config.Fs, output, f, os.FileMode(c.config.FileMode), c.logger)
		return err
	})
	if err != nil {
		return n, err
	}

	c.logger.WithField("target", uri).
		WithField("output", displayName(output, "stdout")).
		WithField("bytes", n).
		Info("Downloaded object")
	return n, nil
}

// Upload stores the contents of input at uri. An empty input or Stdio
// means standard input. Chunk progress is logged at debug level unless
// opts replace the progress callback.
func (c *Copier) Upload(ctx context.Context, uri, input string, opts ...fastcopy.WriteOption) (int64, error) {
	opts = append([]fastcopy.WriteOption{fastcopy.WithProgress(c.logProgress(uri))}, opts...)

	src := c.config.Stdin
	if !isStdio(input) {
		f, err := c.config.Fs.Open(input)
		if err != nil {
			return 0, fmt.Errorf("open input %s: %w", input, err)
		}
		defer func() { _ = f.Close() }()
		src = f
	}

	var n int64
	err := c.client.Write(ctx, uri, func(f *os.File) error {
		var err error
		n, err = io.CopyBuffer(f, src, c.buffer())
		return err
	}, opts...)
	if err != nil {
		return n, err
	}

	c.logger.WithField("target", uri).
		WithField("input", displayName(input, "stdin")).
		WithField("bytes", n).
		Info("Uploaded object")
	return n, nil
}

func (c *Copier) logProgress(uri string) storage.ProgressCallback {
	log := c.logger.WithField("target", uri)
	return func(p storage.Progress) {
		log.WithField("bytes", p.ProcessedBytes).
			WithField("total", p.TotalBytes).
			WithField("elapsed", p.ElapsedTime.String()).
			WithField("eta", p.EstimatedTime.String()).
			Debug("Upload progress")
	}
}

func (c *Copier) buffer() []byte {
	if c.config.BufferSize <= 0 {
		return nil
	}
	return make([]byte, c.config.BufferSize)
}

func isStdio(path string) bool {
	return path == "" || path == Stdio
}

func displayName(path, stdio string) string {
	if isStdio(path) {
		return stdio
	}
	return path
}
