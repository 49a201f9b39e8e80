// Package local serves plain filesystem paths so the same read and write
// pipelines work without a remote store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/storage"
)

// objectMode is the permission of stored objects.
const objectMode os.FileMode = 0644

// Provider copies files between the staging area and local paths.
type Provider struct {
	logger logging.Interface
	fs     afero.Fs
}

var (
	_ storage.BlobStore = (*Provider)(nil)
	_ storage.Fetcher   = (*Provider)(nil)
)

// Option configures a Provider.
type Option func(*Provider)

// WithFs sets the filesystem uploads are written through.
func WithFs(fs afero.Fs) Option {
	return func(p *Provider) {
		p.fs = fs
	}
}

func New(logger logging.Interface, opts ...Option) *Provider {
	p := &Provider{
		logger: logging.OrDiscard(logger).WithField("provider", storage.ProviderLocal),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Provider() storage.Provider {
	return storage.ProviderLocal
}

// Resolve returns the path as the object name. There is no billing on a
// local filesystem, but userProject is still carried.
func (p *Provider) Resolve(target storage.Target, userProject string) (storage.ObjectRef, error) {
	if !target.IsLocal() || target.Key == "" {
		return storage.ObjectRef{}, storage.NewError("resolve", target.String(), storage.ProviderLocal,
			fmt.Errorf("%w: not a local path", storage.ErrInvalidPath))
	}
	return storage.ObjectRef{Name: target.Key, UserProject: userProject}, nil
}

// Upload copies localPath to the referenced path, creating parent
// directories. The file is written to a sibling and renamed into place, so
// a failed upload leaves any previous content untouched. Workers and chunk
// size do not apply.
func (p *Provider) Upload(ctx context.Context, localPath string, ref storage.ObjectRef, _ storage.UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return storage.NewError("upload", ref.Name, storage.ProviderLocal, err)
	}
	if err := p.store(ctx, localPath, ref.Name); err != nil {
		return storage.NewError("upload", ref.Name, storage.ProviderLocal, err)
	}
	return nil
}

func (p *Provider) store(ctx context.Context, src, dst string) error {
	if err := p.checkSource(src); err != nil {
		return err
	}
	if err := p.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	in, err := p.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	_, err = afero.AtomicWrite(p.fs, dst, &contextReader{ctx: ctx, r: in}, objectMode, p.logger)
	return err
}

// Fetch copies the file at target into localPath.
func (p *Provider) Fetch(ctx context.Context, target storage.Target, localPath string) error {
	if err := ctx.Err(); err != nil {
		return storage.NewError("fetch", target.Key, storage.ProviderLocal, err)
	}
	if !target.IsLocal() {
		return storage.NewError("fetch", target.String(), storage.ProviderLocal,
			fmt.Errorf("%w: not a local path", storage.ErrInvalidPath))
	}
	if err := p.copyFile(target.Key, localPath); err != nil {
		_ = os.Remove(localPath)
		return storage.NewError("fetch", target.Key, storage.ProviderLocal, err)
	}
	return nil
}

func (p *Provider) checkSource(src string) error {
	info, err := p.fs.Stat(src)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, src)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", storage.ErrInvalidPath, src)
	}
	return nil
}

// copyFile copies into the scratch area, which is discarded on failure.
func (p *Provider) copyFile(src, dst string) error {
	if err := p.checkSource(src); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	p.logger.WithField("src", src).WithField("dst", dst).Debug("Copying file")
	return copy.Copy(src, dst, copy.Options{Sync: true})
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
