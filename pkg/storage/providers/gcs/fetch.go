package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/sgl-project/fastcopy/pkg/storage"
)

// Fetch downloads the whole object behind target into localPath with
// parallel ranged reads. Every read is pinned to the generation seen when
// the download started, so an object replaced mid-download fails the
// fetch. On failure localPath is removed.
func (p *Provider) Fetch(ctx context.Context, target storage.Target, localPath string) error {
	ref, err := p.Resolve(target, "")
	if err != nil {
		return err
	}
	if err := p.fetch(ctx, refID(ref), localPath); err != nil {
		_ = os.Remove(localPath)
		return storage.NewError("fetch", target.String(), storage.ProviderGCS, classify(err))
	}
	return nil
}

func (p *Provider) fetch(ctx context.Context, obj objectID, localPath string) error {
	api, err := p.client(ctx)
	if err != nil {
		return err
	}

	attrs, err := api.Attrs(ctx, obj)
	if err != nil {
		return fmt.Errorf("failed to get object attributes: %w", err)
	}
	size := attrs.size

	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer file.Close()

	if size == 0 {
		return file.Close()
	}

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to allocate file space: %w", err)
	}

	chunkSize := p.fetchChunkSize
	n := numChunks(size, chunkSize)

	p.logger.WithField("object", obj.name).
		WithField("size", size).
		WithField("generation", attrs.generation).
		WithField("chunks", n).
		WithField("workers", p.fetchWorkers).
		Debug("Starting parallel download")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fetchWorkers)

	for i := int64(0); i < n; i++ {
		offset := i * chunkSize
		length := min(chunkSize, size-offset)

		g.Go(func() error {
			if err := fetchRange(gctx, api, obj, attrs.generation, file, offset, length); err != nil {
				return fmt.Errorf("failed to download chunk %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return file.Close()
}

func fetchRange(ctx context.Context, api objectAPI, obj objectID, generation int64, file io.WriterAt, offset, length int64) error {
	r, err := api.NewRangeReader(ctx, obj, generation, offset, length)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("generation %d was replaced during download: %w", generation, err)
	}
	if err != nil {
		return err
	}
	defer r.Close()

	written, err := io.Copy(io.NewOffsetWriter(file, offset), r)
	if err != nil {
		return err
	}
	if written != length {
		return fmt.Errorf("%w: got %d of %d bytes at offset %d", storage.ErrPartialContent, written, length, offset)
	}
	return nil
}
