package fastcopy

import (
	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/compression"
	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/runner"
	"github.com/sgl-project/fastcopy/pkg/storage"
	"github.com/sgl-project/fastcopy/pkg/storage/providers/gcs"
	"github.com/sgl-project/fastcopy/pkg/utils"
)

// ClientOption replaces one of the Client's collaborators.
type ClientOption func(*Client)

func WithLogger(logger logging.Interface) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrDiscard(logger)
	}
}

// WithRunner sets the process runner used by the default codec and fetcher.
func WithRunner(r runner.Runner) ClientOption {
	return func(c *Client) {
		c.runner = r
	}
}

func WithCodec(codec compression.Codec) ClientOption {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithStore registers store for its provider, replacing the default.
func WithStore(store storage.BlobStore) ClientOption {
	return func(c *Client) {
		c.stores = append(c.stores, store)
	}
}

// WithFetcher registers fetcher for provider, replacing the default.
func WithFetcher(provider storage.Provider, fetcher storage.Fetcher) ClientOption {
	return func(c *Client) {
		c.fetchers[provider] = fetcher
	}
}

// WithFs sets the filesystem scratch areas are created on. It must be
// backed by the OS, e.g. afero.NewOsFs or a read-only view of it; staging
// files on any other filesystem fail to open with ErrOpen.
func WithFs(fs afero.Fs) ClientOption {
	return func(c *Client) {
		c.fs = fs
	}
}

// WithCPUCounter sets the function queried for the default worker count.
func WithCPUCounter(counter utils.CPUCounter) ClientOption {
	return func(c *Client) {
		c.cpus = counter
	}
}

// WithStateObserver registers fn to receive every state transition.
func WithStateObserver(fn func(State)) ClientOption {
	return func(c *Client) {
		c.observer = fn
	}
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithGCSProvider replaces the GCS provider built from Config.GCS. The
// client takes ownership and closes it on Close.
func WithGCSProvider(p *gcs.Provider) ClientOption {
	return func(c *Client) {
		c.gcs = p
	}
}

// WriteOption overrides the configured upload settings for one write.
type WriteOption func(*writeSettings)

type writeSettings struct {
	workers     int
	chunkSize   int64
	userProject string
	progress    storage.ProgressCallback
}

// WithWorkers sets the number of concurrent chunk uploads.
func WithWorkers(n int) WriteOption {
	return func(s *writeSettings) {
		s.workers = n
	}
}

// WithChunkSize sets the upload chunk size in bytes.
func WithChunkSize(bytes int64) WriteOption {
	return func(s *writeSettings) {
		s.chunkSize = bytes
	}
}

// WithUserProject bills requests to project.
func WithUserProject(project string) WriteOption {
	return func(s *writeSettings) {
		s.userProject = project
	}
}

// WithProgress reports upload progress to cb. Stores that upload in a
// single step may never call it.
func WithProgress(cb storage.ProgressCallback) WriteOption {
	return func(s *writeSettings) {
		s.progress = cb
	}
}
