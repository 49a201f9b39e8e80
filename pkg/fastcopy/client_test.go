package fastcopy

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/fastcopy/pkg/runner"
	"github.com/sgl-project/fastcopy/pkg/storage"
	testutils "github.com/sgl-project/fastcopy/pkg/testing"
)

const testCPUs = 123

type harness struct {
	client  *Client
	store   *memStore
	scratch string
	states  []State
}

func newHarness(t *testing.T, cfgOpts []Option, opts ...ClientOption) *harness {
	t.Helper()

	h := &harness{
		store:   newMemStore(),
		scratch: t.TempDir(),
	}

	cfg, err := NewConfig(append([]Option{WithScratchDir(h.scratch)}, cfgOpts...)...)
	require.NoError(t, err)

	base := []ClientOption{
		WithStore(h.store),
		WithFetcher(storage.ProviderGCS, h.store),
		WithCodec(gzipCodec{}),
		WithCPUCounter(func() int { return testCPUs }),
		WithStateObserver(func(s State) { h.states = append(h.states, s) }),
	}
	h.client, err = NewClient(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func (h *harness) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := testutils.DirEntries(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch areas left behind")
}

func writeBytes(data []byte) func(*os.File) error {
	return func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}
}

func readAll(dst *[]byte) func(*os.File) error {
	return func(f *os.File) error {
		data, err := io.ReadAll(f)
		*dst = data
		return err
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestClient_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"json":   []byte(`{"A": 3}`),
		"empty":  {},
		"binary": randomBytes(t, 1<<20),
	}

	for _, uri := range []string{"gs://bucket/dir/my-file.json", "gs://bucket/dir/my-file.json.gz"} {
		for name, payload := range payloads {
			t.Run(filepath.Base(uri)+"/"+name, func(t *testing.T) {
				h := newHarness(t, nil)
				ctx := context.Background()

				require.NoError(t, h.client.Write(ctx, uri, writeBytes(payload)))

				var got []byte
				require.NoError(t, h.client.Read(ctx, uri, readAll(&got)))
				assert.Equal(t, payload, got)
				h.assertScratchEmpty(t)
			})
		}
	}
}

func TestClient_WriteCompressesGzipTargets(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	payload := []byte(`{"A": 3}`)

	require.NoError(t, h.client.Write(ctx, "gs://bucket/my-file.json.gz", writeBytes(payload)))

	stored, ok := h.store.object("gs://bucket/my-file.json.gz")
	require.True(t, ok)
	assert.NotEqual(t, payload, stored)

	raw, err := gunzip(stored)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)
}

func TestClient_WriteStoresPlainTargetsVerbatim(t *testing.T) {
	h := newHarness(t, nil)
	payload := []byte("plain bytes")

	require.NoError(t, h.client.Write(context.Background(), "gs://bucket/a.bin", writeBytes(payload)))

	stored, ok := h.store.object("gs://bucket/a.bin")
	require.True(t, ok)
	assert.Equal(t, payload, stored)
}

func TestClient_ReadDecompressesGzipTargets(t *testing.T) {
	h := newHarness(t, nil)
	payload := []byte("weights")
	h.store.put("gs://bucket/w.npz.gz", gzipBytes(payload))

	var got []byte
	require.NoError(t, h.client.Read(context.Background(), "gs://bucket/w.npz.gz", readAll(&got)))
	assert.Equal(t, payload, got)
}

func TestClient_ReadPassesCompressedBytesForPlainTargets(t *testing.T) {
	h := newHarness(t, nil)
	compressed := gzipBytes([]byte("weights"))
	h.store.put("gs://bucket/w.npz", compressed)

	var got []byte
	require.NoError(t, h.client.Read(context.Background(), "gs://bucket/w.npz", readAll(&got)))
	assert.Equal(t, compressed, got)
}

func TestClient_UploadSettings(t *testing.T) {
	tests := []struct {
		name        string
		cfgOpts     []Option
		writeOpts   []WriteOption
		wantWorkers int
		wantChunk   int64
		wantProject string
	}{
		{
			name:        "defaults to available CPUs",
			wantWorkers: testCPUs,
		},
		{
			name:        "per-call workers override",
			writeOpts:   []WriteOption{WithWorkers(16)},
			wantWorkers: 16,
		},
		{
			name:        "configured workers",
			cfgOpts:     []Option{WithDefaultWorkers(4)},
			wantWorkers: 4,
		},
		{
			name:        "per-call beats configured",
			cfgOpts:     []Option{WithDefaultWorkers(4), WithDefaultChunkSize(1 << 20)},
			writeOpts:   []WriteOption{WithWorkers(8), WithChunkSize(2 << 20)},
			wantWorkers: 8,
			wantChunk:   2 << 20,
		},
		{
			name:        "configured chunk size",
			cfgOpts:     []Option{WithDefaultChunkSize(8 << 20)},
			wantWorkers: testCPUs,
			wantChunk:   8 << 20,
		},
		{
			name:        "per-call user project",
			writeOpts:   []WriteOption{WithUserProject("billing-project")},
			wantWorkers: testCPUs,
			wantProject: "billing-project",
		},
		{
			name:        "configured user project",
			cfgOpts:     []Option{WithDefaultUserProject("team-project")},
			wantWorkers: testCPUs,
			wantProject: "team-project",
		},
		{
			name:        "per-call user project beats configured",
			cfgOpts:     []Option{WithDefaultUserProject("team-project")},
			writeOpts:   []WriteOption{WithUserProject("billing-project")},
			wantWorkers: testCPUs,
			wantProject: "billing-project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfgOpts)

			err := h.client.Write(context.Background(), "gs://bucket/key", writeBytes([]byte("x")), tt.writeOpts...)
			require.NoError(t, err)

			got := h.store.lastUpload()
			assert.Equal(t, tt.wantWorkers, got.opts.Workers)
			assert.Equal(t, tt.wantChunk, got.opts.ChunkSize)
			assert.Equal(t, storage.ObjectRef{Bucket: "bucket", Name: "key", UserProject: tt.wantProject}, got.ref)
		})
	}
}

func TestClient_WorkersFollowCPUCountPerCall(t *testing.T) {
	cpus := 2
	h := newHarness(t, nil, WithCPUCounter(func() int { return cpus }))
	ctx := context.Background()

	require.NoError(t, h.client.Write(ctx, "gs://bucket/a", writeBytes(nil)))
	assert.Equal(t, 2, h.store.lastUpload().opts.Workers)

	cpus = 6
	require.NoError(t, h.client.Write(ctx, "gs://bucket/a", writeBytes(nil)))
	assert.Equal(t, 6, h.store.lastUpload().opts.Workers)
}

func TestClient_NegativeWriteSettings(t *testing.T) {
	for _, opt := range []WriteOption{WithWorkers(-1), WithChunkSize(-1)} {
		h := newHarness(t, nil)

		called := false
		err := h.client.Write(context.Background(), "gs://bucket/a", func(*os.File) error {
			called = true
			return nil
		}, opt)
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrInvalidConfig)
		assert.ErrorIs(t, err, ErrInvalidTarget)

		var fcErr *Error
		require.ErrorAs(t, err, &fcErr)
		assert.Equal(t, StepTarget, fcErr.Step)
		assert.Equal(t, "gs://bucket/a", fcErr.Target)

		assert.False(t, called)
		assert.Equal(t, []State{StateIdle, StateScratchReleased}, h.states)
		assert.Zero(t, h.store.calls())
		h.assertScratchEmpty(t)
	}
}

func TestClient_ZeroCPUCountStillUploads(t *testing.T) {
	h := newHarness(t, nil, WithCPUCounter(func() int { return 0 }))

	require.NoError(t, h.client.Write(context.Background(), "gs://bucket/a", writeBytes([]byte("x"))))
	assert.Equal(t, 1, h.store.lastUpload().opts.Workers)
}

func TestClient_ProgressReachesStore(t *testing.T) {
	h := newHarness(t, nil)

	var reports []storage.Progress
	err := h.client.Write(context.Background(), "gs://bucket/a", writeBytes([]byte("payload")),
		WithProgress(func(p storage.Progress) { reports = append(reports, p) }))
	require.NoError(t, err)

	cb := h.store.lastUpload().opts.Progress
	require.NotNil(t, cb)
	cb(storage.Progress{TotalBytes: 7, ProcessedBytes: 7})
	require.Len(t, reports, 1)
	assert.Equal(t, int64(7), reports[0].ProcessedBytes)

	require.NoError(t, h.client.Write(context.Background(), "gs://bucket/a", writeBytes(nil)))
	assert.Nil(t, h.store.lastUpload().opts.Progress)
}

func TestClient_NonOSFilesystem(t *testing.T) {
	mem := afero.NewMemMapFs()
	h := newHarness(t, nil, WithFs(mem))

	called := false
	err := h.client.Write(context.Background(), "gs://bucket/a", func(*os.File) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
	assert.False(t, called)
	assert.Empty(t, h.store.uploads)
	assert.Equal(t, []State{StateIdle, StateScratchAllocated, StateScratchReleased}, h.states)

	entries, err := afero.ReadDir(mem, h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch areas left behind")
}

func TestClient_LocalPassthrough(t *testing.T) {
	dir := t.TempDir()
	payload := []byte(`{"A": 3}`)

	for _, name := range []string{"out.json", "out.json.gz"} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			path := filepath.Join(dir, "nested", name)

			require.NoError(t, h.client.Write(ctx, path, writeBytes(payload)))

			var got []byte
			require.NoError(t, h.client.Read(ctx, path, readAll(&got)))
			assert.Equal(t, payload, got)

			onDisk, err := os.ReadFile(path)
			require.NoError(t, err)
			if filepath.Ext(name) == ".gz" {
				onDisk, err = gunzip(onDisk)
				require.NoError(t, err)
			}
			assert.Equal(t, payload, onDisk)

			assert.Zero(t, h.store.calls(), "remote store used for a local path")
			h.assertScratchEmpty(t)
		})
	}
}

func TestClient_FailuresReleaseScratch(t *testing.T) {
	errCallback := errors.New("callback failed")
	errCodec := errors.New("codec failed")

	tests := []struct {
		name     string
		read     bool
		uri      string
		opts     []ClientOption
		prepare  func(h *harness)
		fn       func(*os.File) error
		sentinel error
		states   []State
	}{
		{
			name:     "read of unsupported scheme",
			read:     true,
			uri:      "s3://bucket/key",
			sentinel: ErrInvalidTarget,
			states:   []State{StateIdle, StateScratchReleased},
		},
		{
			name:     "read of missing object",
			read:     true,
			uri:      "gs://bucket/missing",
			sentinel: ErrFetch,
			states:   []State{StateIdle, StateScratchAllocated, StateScratchReleased},
		},
		{
			name:     "read with failing decompression",
			read:     true,
			uri:      "gs://bucket/a.gz",
			opts:     []ClientOption{WithCodec(gzipCodec{decompressErr: errCodec})},
			prepare:  func(h *harness) { h.store.put("gs://bucket/a.gz", gzipBytes([]byte("a"))) },
			sentinel: ErrDecompression,
			states:   []State{StateIdle, StateScratchAllocated, StateFetched, StateScratchReleased},
		},
		{
			name:     "read with failing callback",
			read:     true,
			uri:      "gs://bucket/a",
			prepare:  func(h *harness) { h.store.put("gs://bucket/a", []byte("a")) },
			fn:       func(*os.File) error { return errCallback },
			sentinel: errCallback,
			states:   []State{StateIdle, StateScratchAllocated, StateFetched, StateHandleOpen, StateScratchReleased},
		},
		{
			name:     "write to invalid target",
			uri:      "gs://bucket-only",
			sentinel: ErrInvalidTarget,
			states:   []State{StateIdle, StateScratchReleased},
		},
		{
			name:     "write with failing callback",
			uri:      "gs://bucket/a",
			fn:       func(*os.File) error { return errCallback },
			sentinel: errCallback,
			states:   []State{StateIdle, StateScratchAllocated, StateHandleOpen, StateScratchReleased},
		},
		{
			name:     "write with failing compression",
			uri:      "gs://bucket/a.gz",
			opts:     []ClientOption{WithCodec(gzipCodec{compressErr: errCodec})},
			sentinel: ErrCompression,
			states:   []State{StateIdle, StateScratchAllocated, StateHandleOpen, StateScratchReleased},
		},
		{
			name:     "write with failing store",
			uri:      "gs://bucket/a.gz",
			prepare:  func(h *harness) { h.store.uploadErr = storage.ErrAccessDenied },
			sentinel: ErrStore,
			states:   []State{StateIdle, StateScratchAllocated, StateHandleOpen, StateCompressed, StateScratchReleased},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, tt.opts...)
			if tt.prepare != nil {
				tt.prepare(h)
			}
			fn := tt.fn
			if fn == nil {
				fn = func(*os.File) error { return nil }
			}

			var err error
			if tt.read {
				err = h.client.Read(context.Background(), tt.uri, fn)
			} else {
				err = h.client.Write(context.Background(), tt.uri, fn)
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.states, h.states)
			h.assertScratchEmpty(t)
		})
	}
}

func TestClient_CallbackErrorStoresNothing(t *testing.T) {
	h := newHarness(t, nil)
	errBoom := errors.New("boom")

	err := h.client.Write(context.Background(), "gs://bucket/a", func(f *os.File) error {
		_, _ = f.Write([]byte("partial"))
		return errBoom
	})

	assert.Same(t, errBoom, err)
	assert.Empty(t, h.store.uploads)
	_, ok := h.store.object("gs://bucket/a")
	assert.False(t, ok)
}

func TestClient_SuccessfulStateSequences(t *testing.T) {
	tests := []struct {
		name   string
		read   bool
		uri    string
		states []State
	}{
		{
			name:   "plain write",
			uri:    "gs://bucket/a",
			states: []State{StateIdle, StateScratchAllocated, StateHandleOpen, StateStored, StateScratchReleased},
		},
		{
			name:   "gzip write",
			uri:    "gs://bucket/a.gz",
			states: []State{StateIdle, StateScratchAllocated, StateHandleOpen, StateCompressed, StateStored, StateScratchReleased},
		},
		{
			name:   "plain read",
			read:   true,
			uri:    "gs://bucket/a",
			states: []State{StateIdle, StateScratchAllocated, StateFetched, StateHandleOpen, StateScratchReleased},
		},
		{
			name:   "gzip read",
			read:   true,
			uri:    "gs://bucket/a.gz",
			states: []State{StateIdle, StateScratchAllocated, StateFetched, StateDecompressed, StateHandleOpen, StateScratchReleased},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.store.put("gs://bucket/a", []byte("a"))
			h.store.put("gs://bucket/a.gz", gzipBytes([]byte("a")))

			var err error
			if tt.read {
				err = h.client.Read(context.Background(), tt.uri, func(*os.File) error { return nil })
			} else {
				err = h.client.Write(context.Background(), tt.uri, writeBytes([]byte("a")))
			}
			require.NoError(t, err)
			assert.Equal(t, tt.states, h.states)
			assert.True(t, h.states[len(h.states)-1].Terminal())
		})
	}
}

func TestClient_CLIFetchFailureCarriesToolDetails(t *testing.T) {
	r := testutils.NewScriptedRunner().Exit("gcloud", 1, "ERROR: 404 No such object: bucket/missing\n")
	h := newHarness(t, nil, WithRunner(r))
	h.client.registry.RegisterFetcher(storage.ProviderGCS, NewCLIFetcher(r, nil, nil))

	err := h.client.Read(context.Background(), "gs://bucket/missing", func(*os.File) error {
		t.Fatal("callback invoked after failed fetch")
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)

	var stepErr *Error
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepFetch, stepErr.Step)
	assert.Equal(t, "gs://bucket/missing", stepErr.Target)

	var exitErr *runner.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Contains(t, exitErr.Stderr, "No such object")
	h.assertScratchEmpty(t)
}

func TestClient_StoreFailureCarriesStorageError(t *testing.T) {
	h := newHarness(t, nil)
	h.store.uploadErr = storage.ErrAccessDenied

	err := h.client.Write(context.Background(), "gs://bucket/a", writeBytes([]byte("a")))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, storage.ErrAccessDenied)

	var storageErr *storage.Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, string(storage.ProviderGCS), storageErr.Provider)
}

func TestClient_ScratchAllocationFailure(t *testing.T) {
	h := newHarness(t, nil, WithFs(afero.NewReadOnlyFs(afero.NewOsFs())))
	called := false

	err := h.client.Write(context.Background(), "gs://bucket/a", func(*os.File) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScratchAllocation)
	assert.False(t, called)
	assert.Equal(t, []State{StateIdle, StateScratchReleased}, h.states)
}

func TestClient_ScratchReleaseFailure(t *testing.T) {
	t.Run("after success", func(t *testing.T) {
		h := newHarness(t, nil, WithFs(stickyFs{afero.NewOsFs()}))

		err := h.client.Write(context.Background(), "gs://bucket/a", writeBytes([]byte("a")))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrScratchRelease)
		_, stored := h.store.object("gs://bucket/a")
		assert.True(t, stored)
		assert.Equal(t, StateScratchReleased, h.states[len(h.states)-1])
	})

	t.Run("keeps the primary error", func(t *testing.T) {
		h := newHarness(t, nil, WithFs(stickyFs{afero.NewOsFs()}))

		err := h.client.Read(context.Background(), "gs://bucket/missing", func(*os.File) error { return nil })

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFetch)
		assert.ErrorIs(t, err, ErrScratchRelease)

		var stepErr *Error
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, StepFetch, stepErr.Step)
	})
}

func TestClient_HandleForms(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	w, err := h.client.Create(ctx, "gs://bucket/h.gz")
	require.NoError(t, err)
	_, err = io.WriteString(w, "handle bytes")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Discard(), "discard after close is a no-op")
	assert.Len(t, h.store.uploads, 1)

	r, err := h.client.Open(ctx, "gs://bucket/h.gz")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "handle bytes", string(got))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	h.assertScratchEmpty(t)
}

func TestClient_DiscardStoresNothing(t *testing.T) {
	h := newHarness(t, nil)

	w, err := h.client.Create(context.Background(), "gs://bucket/d")
	require.NoError(t, err)
	_, err = w.Write([]byte("never stored"))
	require.NoError(t, err)

	require.NoError(t, w.Discard())
	require.NoError(t, w.Close())

	assert.Empty(t, h.store.uploads)
	assert.Equal(t, StateScratchReleased, h.states[len(h.states)-1])
	h.assertScratchEmpty(t)
}

func TestClient_ConcurrentOperationsUseSeparateAreas(t *testing.T) {
	h := newHarness(t, nil)
	h.client.observer = nil
	ctx := context.Background()

	w1, err := h.client.Create(ctx, "gs://bucket/one")
	require.NoError(t, err)
	w2, err := h.client.Create(ctx, "gs://bucket/two")
	require.NoError(t, err)
	assert.NotEqual(t, filepath.Dir(w1.File().Name()), filepath.Dir(w2.File().Name()))

	_, _ = w1.Write([]byte("1"))
	_, _ = w2.Write([]byte("2"))
	require.NoError(t, w2.Close())
	require.NoError(t, w1.Close())

	one, _ := h.store.object("gs://bucket/one")
	two, _ := h.store.object("gs://bucket/two")
	assert.Equal(t, "1", string(one))
	assert.Equal(t, "2", string(two))
	h.assertScratchEmpty(t)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(&Config{FetchMode: "carrier-pigeon", FetchCommand: DefaultFetchCommand})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fastcopy config")
}

func TestNewClient_NilConfigUsesDefaults(t *testing.T) {
	c, err := NewClient(nil)
	require.NoError(t, err)
	assert.Equal(t, FetchModeCLI, c.cfg.FetchMode)
	assert.Equal(t, DefaultFetchCommand, c.cfg.FetchCommand)
	assert.NoError(t, c.Close())
}

func TestClient_RoundTripWithSystemTools(t *testing.T) {
	if !runner.LookPath("gzip") {
		t.Skip("gzip not installed")
	}
	h := newHarness(t, nil, WithCodec(nil))
	ctx := context.Background()
	payload := []byte(`{"A": 3}`)

	require.NoError(t, h.client.Write(ctx, "gs://bucket/my-file.json.gz", writeBytes(payload)))

	stored, _ := h.store.object("gs://bucket/my-file.json.gz")
	raw, err := gunzip(stored)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)

	var got []byte
	require.NoError(t, h.client.Read(ctx, "gs://bucket/my-file.json.gz", readAll(&got)))
	assert.Equal(t, payload, got)
	h.assertScratchEmpty(t)
}
