// Package fastcopy transfers single files between local scratch space and
// Google Cloud Storage, gzipping on the way when the target ends in .gz.
//
// Callers get a plain *os.File for the duration of a scoped operation:
//
//	err := client.Write(ctx, "gs://bucket/model.npz.gz", func(f *os.File) error {
//		return save(f)
//	})
//
// The scratch directory backing the file is always removed when the
// operation ends.
package fastcopy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/compression"
	"github.com/sgl-project/fastcopy/pkg/logging"
	"github.com/sgl-project/fastcopy/pkg/runner"
	"github.com/sgl-project/fastcopy/pkg/scratch"
	"github.com/sgl-project/fastcopy/pkg/storage"
	"github.com/sgl-project/fastcopy/pkg/storage/providers/gcs"
	"github.com/sgl-project/fastcopy/pkg/storage/providers/local"
	"github.com/sgl-project/fastcopy/pkg/utils"
)

const (
	downloadName = "download"
	uploadName   = "file_to_upload"
)

// Client runs read and write operations. It is safe for concurrent use;
// every operation gets its own scratch area.
type Client struct {
	cfg      Config
	logger   logging.Interface
	fs       afero.Fs
	runner   runner.Runner
	codec    compression.Codec
	stores   []storage.BlobStore
	fetchers map[storage.Provider]storage.Fetcher
	cpus     utils.CPUCounter
	observer func(State)
	metrics  *Metrics

	scratch  *scratch.Manager
	registry *storage.Registry
	gcs      *gcs.Provider
}

// NewClient builds a Client from cfg. A nil cfg uses the defaults.
// Collaborators not replaced through opts are built from cfg.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fastcopy config: %w", err)
	}

	c := &Client{
		cfg:      *cfg,
		logger:   logging.Discard(),
		fetchers: make(map[storage.Provider]storage.Fetcher),
		cpus:     utils.AvailableCPUs,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.runner == nil {
		c.runner = runner.New(c.logger)
	}
	if c.codec == nil {
		c.codec = compression.New(c.runner, c.logger)
	}
	c.scratch = scratch.NewManager(c.fs, c.cfg.ScratchDir, c.logger)

	if c.gcs == nil {
		gcsOpts := c.cfg.GCS.Options()
		if c.cfg.GCS.FetchWorkers == 0 {
			gcsOpts = append(gcsOpts, gcs.WithFetchWorkers(c.cpus()))
		}
		c.gcs = gcs.New(c.logger, gcsOpts...)
	}
	localProvider := local.New(c.logger, local.WithFs(c.fs))

	c.registry = storage.NewRegistry()
	c.registry.RegisterStore(c.gcs)
	c.registry.RegisterStore(localProvider)
	c.registry.RegisterFetcher(storage.ProviderLocal, localProvider)
	switch c.cfg.FetchMode {
	case FetchModeNative:
		c.registry.RegisterFetcher(storage.ProviderGCS, c.gcs)
	default:
		c.registry.RegisterFetcher(storage.ProviderGCS, NewCLIFetcher(c.runner, c.cfg.FetchCommand, c.logger))
	}

	for _, store := range c.stores {
		c.registry.RegisterStore(store)
	}
	for provider, fetcher := range c.fetchers {
		c.registry.RegisterFetcher(provider, fetcher)
	}

	return c, nil
}

// Close releases the GCS client if one was created.
func (c *Client) Close() error {
	return c.gcs.Close()
}

// Read fetches uri into a scratch area, decompressing it if uri ends in
// .gz, and passes the file to fn. The scratch area is removed when fn
// returns. fn's error is returned as is.
func (c *Client) Read(ctx context.Context, uri string, fn func(*os.File) error) error {
	r, err := c.Open(ctx, uri)
	if err != nil {
		return err
	}
	fnErr := fn(r.File())
	return appendErr(fnErr, r.Close())
}

// Write passes fn a fresh file in a scratch area. When fn returns nil the
// file is compressed if uri ends in .gz and stored at uri. When fn fails
// nothing is stored and fn's error is returned.
func (c *Client) Write(ctx context.Context, uri string, fn func(*os.File) error, opts ...WriteOption) error {
	w, err := c.Create(ctx, uri, opts...)
	if err != nil {
		return err
	}
	if fnErr := fn(w.File()); fnErr != nil {
		return appendErr(fnErr, w.Discard())
	}
	return w.Close()
}

// Open is the handle form of Read. The caller must Close the Reader.
func (c *Client) Open(ctx context.Context, uri string) (*Reader, error) {
	op := c.begin(DirectionRead, uri)

	target, err := storage.ParseTarget(uri)
	if err != nil {
		return nil, op.fail(StepTarget, err)
	}
	fetcher, err := c.registry.Fetcher(target)
	if err != nil {
		return nil, op.fail(StepTarget, err)
	}
	op.compressed = target.Compressed()

	name := downloadName
	if op.compressed {
		name += compression.Suffix
	}
	if err := op.acquire(name); err != nil {
		return nil, err
	}

	if err := fetcher.Fetch(ctx, target, op.area.File()); err != nil {
		return nil, op.fail(StepFetch, err)
	}
	op.enter(StateFetched)

	path := op.area.File()
	if op.compressed {
		path, err = c.codec.Decompress(ctx, path)
		if err != nil {
			return nil, op.fail(StepDecompress, err)
		}
		op.enter(StateDecompressed)
	}

	file, err := c.openStaged(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, op.fail(StepOpen, err)
	}
	op.enter(StateHandleOpen)

	return &Reader{op: op, file: file}, nil
}

// Create is the handle form of Write. The caller must either Close the
// Writer, which stores the file, or Discard it.
func (c *Client) Create(ctx context.Context, uri string, opts ...WriteOption) (*Writer, error) {
	settings := writeSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	op := c.begin(DirectionWrite, uri)

	uploadOpts, err := c.uploadOptions(settings)
	if err != nil {
		return nil, op.fail(StepTarget, err)
	}

	target, err := storage.ParseTarget(uri)
	if err != nil {
		return nil, op.fail(StepTarget, err)
	}
	store, err := c.registry.Store(target)
	if err != nil {
		return nil, op.fail(StepTarget, err)
	}
	ref, err := store.Resolve(target, c.userProject(settings))
	if err != nil {
		return nil, op.fail(StepTarget, err)
	}
	op.compressed = target.Compressed()

	op.log.WithField("workers", uploadOpts.Workers).
		WithField("chunkSize", uploadOpts.ChunkSize).
		WithField("userProject", ref.UserProject).
		Debug("Resolved upload settings")

	if err := op.acquire(uploadName); err != nil {
		return nil, err
	}

	file, err := c.openStaged(op.area.File(), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, op.fail(StepOpen, err)
	}
	op.enter(StateHandleOpen)

	return &Writer{
		ctx:   ctx,
		op:    op,
		file:  file,
		store: store,
		ref:   ref,
		opts:  uploadOpts,
	}, nil
}

// openStaged opens a staging file through the client's filesystem. The
// filesystem must be backed by the OS since callers get an *os.File.
func (c *Client) openStaged(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	file, ok := f.(*os.File)
	if !ok {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is not backed by the OS filesystem (%s)", storage.ErrInvalidConfig, path, c.fs.Name())
	}
	return file, nil
}

// uploadOptions resolves the settings of one write.
func (c *Client) uploadOptions(s writeSettings) (storage.UploadOptions, error) {
	if s.workers < 0 || s.chunkSize < 0 {
		return storage.UploadOptions{}, fmt.Errorf("%w: workers and chunk size must not be negative", storage.ErrInvalidConfig)
	}
	opts := []storage.UploadOption{
		storage.WithWorkers(c.workers(s)),
		storage.WithProgress(s.progress),
	}
	if size := c.chunkSize(s); size > 0 {
		opts = append(opts, storage.WithChunkSize(size))
	}
	return storage.BuildUploadOptions(opts...)
}

// workers resolves the per-call override, then the config, then the CPUs
// available at call time.
func (c *Client) workers(s writeSettings) int {
	if s.workers > 0 {
		return s.workers
	}
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return max(c.cpus(), 1)
}

func (c *Client) chunkSize(s writeSettings) int64 {
	if s.chunkSize > 0 {
		return s.chunkSize
	}
	return c.cfg.ChunkSize
}

func (c *Client) userProject(s writeSettings) string {
	if s.userProject != "" {
		return s.userProject
	}
	return c.cfg.UserProject
}

// operation carries one read or write through the state machine.
type operation struct {
	client     *Client
	direction  Direction
	uri        string
	compressed bool
	start      time.Time
	state      State
	area       *scratch.Area
	log        logging.Interface
}

func (c *Client) begin(direction Direction, uri string) *operation {
	op := &operation{
		client:    c,
		direction: direction,
		uri:       uri,
		start:     time.Now(),
		log:       c.logger.WithField("direction", direction).WithField("target", uri),
	}
	op.enter(StateIdle)
	return op
}

func (op *operation) enter(s State) {
	op.state = s
	op.log.WithField("state", s.String()).Debug("Transfer state changed")
	if op.client.observer != nil {
		op.client.observer(s)
	}
}

func (op *operation) acquire(name string) error {
	area, err := op.client.scratch.Acquire(name)
	if err != nil {
		return op.fail(StepScratch, err)
	}
	op.area = area
	op.enter(StateScratchAllocated)
	return nil
}

// release removes the scratch area and enters the terminal state.
func (op *operation) release() error {
	var err error
	if op.area != nil {
		if rerr := op.area.Release(); rerr != nil {
			err = newError(StepRelease, op.uri, rerr)
		}
	}
	op.enter(StateScratchReleased)
	return err
}

// fail releases the scratch area and returns the step's error, with any
// release error appended.
func (op *operation) fail(step Step, cause error) error {
	err := appendErr(newError(step, op.uri, cause), op.release())
	op.client.metrics.recordFailure(op.direction, step, time.Since(op.start))
	op.log.WithError(cause).WithField("step", step).Debug("Transfer failed")
	return err
}

func (op *operation) succeed(bytes int64) error {
	if err := op.release(); err != nil {
		op.client.metrics.recordFailure(op.direction, StepRelease, time.Since(op.start))
		return err
	}
	op.client.metrics.recordSuccess(op.direction, time.Since(op.start), bytes)
	op.log.WithField("bytes", bytes).
		WithField("duration", time.Since(op.start).String()).
		Info("Transfer completed")
	return nil
}

func (op *operation) discard() error {
	err := op.release()
	op.client.metrics.recordDiscard(op.direction, time.Since(op.start))
	return err
}
