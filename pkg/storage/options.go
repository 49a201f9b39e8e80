package storage

import (
	"fmt"
)

// DefaultChunkSize is used when UploadOptions.ChunkSize is unset.
const DefaultChunkSize int64 = 32 * 1024 * 1024

// UploadOptions is resolved once per operation and not changed afterwards.
type UploadOptions struct {
	// Workers bounds the number of chunks in flight.
	Workers int
	// ChunkSize in bytes; zero selects the store default.
	ChunkSize int64
	// Progress is notified as chunks complete. May be nil.
	Progress ProgressCallback
}

// UploadOption configures UploadOptions.
type UploadOption func(*UploadOptions) error

// WithWorkers sets the number of concurrent chunk transfers
func WithWorkers(n int) UploadOption {
	return func(opts *UploadOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, n)
		}
		opts.Workers = n
		return nil
	}
}

// WithChunkSize sets the chunk size in bytes
func WithChunkSize(bytes int64) UploadOption {
	return func(opts *UploadOptions) error {
		if bytes <= 0 {
			return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, bytes)
		}
		opts.ChunkSize = bytes
		return nil
	}
}

// WithProgress sets the progress callback
func WithProgress(cb ProgressCallback) UploadOption {
	return func(opts *UploadOptions) error {
		opts.Progress = cb
		return nil
	}
}

// BuildUploadOptions applies opts over a single worker and the default
// chunk size.
func BuildUploadOptions(opts ...UploadOption) (UploadOptions, error) {
	o := UploadOptions{Workers: 1}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return UploadOptions{}, err
		}
	}
	return o, nil
}

// EffectiveChunkSize returns ChunkSize or DefaultChunkSize.
func (o UploadOptions) EffectiveChunkSize() int64 {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

// EffectiveWorkers returns Workers, never less than one.
func (o UploadOptions) EffectiveWorkers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return 1
}
