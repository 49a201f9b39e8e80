package gcs

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/sgl-project/fastcopy/pkg/storage"
)

const (
	cleanupTimeout = 2 * time.Minute
	cleanupWorkers = 16
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Upload stores localPath as ref. Files larger than one chunk are uploaded
// as temporary part objects by up to opts.Workers goroutines and composed
// into ref once every part has landed, so ref is never partially written.
// Temporary objects are removed whatever the outcome.
func (p *Provider) Upload(ctx context.Context, localPath string, ref storage.ObjectRef, opts storage.UploadOptions) error {
	if err := p.upload(ctx, localPath, ref, opts); err != nil {
		return storage.NewError("upload", ref.String(), storage.ProviderGCS, classify(err))
	}
	return nil
}

func (p *Provider) upload(ctx context.Context, localPath string, ref storage.ObjectRef, opts storage.UploadOptions) error {
	api, err := p.client(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	chunkSize := opts.EffectiveChunkSize()
	workers := opts.EffectiveWorkers()
	tracker := storage.NewProgressTracker(size, opts.Progress)

	log := p.logger.WithField("object", ref.String()).
		WithField("size", size).
		WithField("chunkSize", chunkSize).
		WithField("workers", workers)

	if size <= chunkSize {
		log.Debug("Starting single-stream upload")
		if err := p.uploadSingle(ctx, api, file, refID(ref), tracker); err != nil {
			return err
		}
		tracker.Complete()
		return nil
	}

	s := &session{
		api:    api,
		dst:    refID(ref),
		prefix: ref.Name + tempInfix + uuid.New().String(),
	}
	log = log.WithField("session", s.prefix)
	log.WithField("parts", numChunks(size, chunkSize)).Debug("Starting parallel upload")

	defer func() {
		if err := s.cleanup(ctx); err != nil {
			log.WithError(err).Warn("Failed to delete temporary objects")
		}
	}()

	parts, err := s.uploadParts(ctx, file, size, chunkSize, workers, tracker)
	if err != nil {
		return err
	}
	if err := s.compose(ctx, s.dst, parts, 0, workers); err != nil {
		return fmt.Errorf("failed to compose %d parts: %w", len(parts), err)
	}

	tracker.Complete()
	log.Debug("Parallel upload completed")
	return nil
}

func (p *Provider) uploadSingle(ctx context.Context, api objectAPI, file *os.File, dst objectID, tracker *storage.ProgressTracker) error {
	// Cancelling the writer's context is the only way to abort it; Close
	// would commit whatever was written so far.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := api.NewWriter(wctx, dst, writeOptions{chunkSize: int(storage.DefaultChunkSize)})
	if _, err := io.Copy(w, storage.NewProgressReader(file, tracker)); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to upload file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// session tracks the temporary objects of one parallel upload.
type session struct {
	api    objectAPI
	dst    objectID
	prefix string

	mu   sync.Mutex
	temp []objectID
}

func (s *session) tempObject(name string) objectID {
	obj := objectID{bucket: s.dst.bucket, name: s.prefix + "/" + name, userProject: s.dst.userProject}
	s.mu.Lock()
	s.temp = append(s.temp, obj)
	s.mu.Unlock()
	return obj
}

func (s *session) uploadParts(
	ctx context.Context,
	file io.ReaderAt,
	size, chunkSize int64,
	workers int,
	tracker *storage.ProgressTracker,
) ([]objectID, error) {
	n := numChunks(size, chunkSize)
	parts := make([]objectID, n)
	for i := range parts {
		parts[i] = s.tempObject(fmt.Sprintf("part-%05d", i))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := int64(0); i < n; i++ {
		offset := i * chunkSize
		length := min(chunkSize, size-offset)
		part := parts[i]

		g.Go(func() error {
			if err := s.uploadPart(gctx, file, offset, length, part, tracker); err != nil {
				return fmt.Errorf("failed to upload part %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *session) uploadPart(
	ctx context.Context,
	file io.ReaderAt,
	offset, length int64,
	part objectID,
	tracker *storage.ProgressTracker,
) error {
	hasher := crc32.New(crc32cTable)
	if _, err := io.Copy(hasher, io.NewSectionReader(file, offset, length)); err != nil {
		return fmt.Errorf("checksum: %w", err)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.api.NewWriter(wctx, part, writeOptions{crc32c: hasher.Sum32(), sendCRC: true})
	section := storage.NewProgressReader(io.NewSectionReader(file, offset, length), tracker)
	if _, err := io.Copy(w, section); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

// compose joins srcs into dst. More than maxComposeSources sources are
// first composed in batches into intermediate objects, recursively, so
// dst is only written by the final call.
func (s *session) compose(ctx context.Context, dst objectID, srcs []objectID, level, workers int) error {
	if len(srcs) <= maxComposeSources {
		return s.api.Compose(ctx, dst, srcs)
	}

	batches := (len(srcs) + maxComposeSources - 1) / maxComposeSources
	next := make([]objectID, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for b := 0; b < batches; b++ {
		start := b * maxComposeSources
		end := min(start+maxComposeSources, len(srcs))
		next[b] = s.tempObject(fmt.Sprintf("compose-%d-%05d", level, b))
		inter := next[b]

		g.Go(func() error {
			return s.api.Compose(gctx, inter, srcs[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return s.compose(ctx, dst, next, level+1, workers)
}

// cleanup deletes every temporary object of the session. Objects that were
// never created are skipped. It runs even if ctx was cancelled.
func (s *session) cleanup(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	s.mu.Lock()
	temp := append([]objectID(nil), s.temp...)
	s.mu.Unlock()

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	g.SetLimit(cleanupWorkers)
	for _, obj := range temp {
		g.Go(func() error {
			err := s.api.Delete(cctx, obj)
			if err == nil || storage.IsNotFound(classify(err)) {
				return nil
			}
			mu.Lock()
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", obj.name, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}

func numChunks(size, chunkSize int64) int64 {
	return (size + chunkSize - 1) / chunkSize
}
