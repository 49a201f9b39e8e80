package gcs

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
)

// objectID addresses one object; userProject is billed for the request.
type objectID struct {
	bucket      string
	name        string
	userProject string
}

type writeOptions struct {
	// crc32c is sent with the upload when sendCRC is set; the server
	// rejects the object on mismatch.
	crc32c  uint32
	sendCRC bool
	// chunkSize of zero uploads in a single request without buffering.
	chunkSize int
}

// objectAttrs identifies one immutable version of an object.
type objectAttrs struct {
	size       int64
	generation int64
}

// objectAPI is the part of the GCS client the provider uses.
type objectAPI interface {
	NewWriter(ctx context.Context, obj objectID, opts writeOptions) io.WriteCloser
	Compose(ctx context.Context, dst objectID, srcs []objectID) error
	Delete(ctx context.Context, obj objectID) error
	Attrs(ctx context.Context, obj objectID) (objectAttrs, error)
	// NewRangeReader reads from the given generation only; it fails with
	// ErrObjectNotExist once that generation has been replaced.
	NewRangeReader(ctx context.Context, obj objectID, generation, offset, length int64) (io.ReadCloser, error)
	Close() error
}

// clientAPI adapts *storage.Client to objectAPI.
type clientAPI struct {
	client *gcs.Client
}

var _ objectAPI = (*clientAPI)(nil)

func (c *clientAPI) handle(obj objectID) *gcs.ObjectHandle {
	bucket := c.client.Bucket(obj.bucket)
	if obj.userProject != "" {
		bucket = bucket.UserProject(obj.userProject)
	}
	return bucket.Object(obj.name)
}

func (c *clientAPI) NewWriter(ctx context.Context, obj objectID, opts writeOptions) io.WriteCloser {
	w := c.handle(obj).NewWriter(ctx)
	w.ChunkSize = opts.chunkSize
	if opts.sendCRC {
		w.CRC32C = opts.crc32c
		w.SendCRC32C = true
	}
	return w
}

func (c *clientAPI) Compose(ctx context.Context, dst objectID, srcs []objectID) error {
	handles := make([]*gcs.ObjectHandle, 0, len(srcs))
	for _, src := range srcs {
		handles = append(handles, c.handle(src))
	}
	_, err := c.handle(dst).ComposerFrom(handles...).Run(ctx)
	return err
}

func (c *clientAPI) Delete(ctx context.Context, obj objectID) error {
	return c.handle(obj).Delete(ctx)
}

func (c *clientAPI) Attrs(ctx context.Context, obj objectID) (objectAttrs, error) {
	attrs, err := c.handle(obj).Attrs(ctx)
	if err != nil {
		return objectAttrs{}, err
	}
	return objectAttrs{size: attrs.Size, generation: attrs.Generation}, nil
}

func (c *clientAPI) NewRangeReader(ctx context.Context, obj objectID, generation, offset, length int64) (io.ReadCloser, error) {
	return c.handle(obj).Generation(generation).NewRangeReader(ctx, offset, length)
}

func (c *clientAPI) Close() error {
	return c.client.Close()
}
