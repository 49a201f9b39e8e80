package fastcopy

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/sgl-project/fastcopy/pkg/compression"
	"github.com/sgl-project/fastcopy/pkg/storage"
)

// memStore is a gs:// BlobStore and Fetcher backed by a map.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  []upload
	fetches  int
	resolves int

	uploadErr error
	fetchErr  error
}

type upload struct {
	ref  storage.ObjectRef
	opts storage.UploadOptions
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Provider() storage.Provider { return storage.ProviderGCS }

func (m *memStore) Resolve(target storage.Target, userProject string) (storage.ObjectRef, error) {
	m.mu.Lock()
	m.resolves++
	m.mu.Unlock()
	return storage.ObjectRef{Bucket: target.Bucket, Name: target.Key, UserProject: userProject}, nil
}

func (m *memStore) Upload(_ context.Context, localPath string, ref storage.ObjectRef, opts storage.UploadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads = append(m.uploads, upload{ref: ref, opts: opts})
	if m.uploadErr != nil {
		return storage.NewError("upload", ref.String(), storage.ProviderGCS, m.uploadErr)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.objects[ref.String()] = data
	return nil
}

func (m *memStore) Fetch(_ context.Context, target storage.Target, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches++
	if m.fetchErr != nil {
		return m.fetchErr
	}
	data, ok := m.objects[target.String()]
	if !ok {
		return storage.NewError("fetch", target.String(), storage.ProviderGCS, storage.ErrNotFound)
	}
	return os.WriteFile(localPath, data, 0644)
}

func (m *memStore) object(uri string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[uri]
	return data, ok
}

func (m *memStore) put(uri string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[uri] = data
}

func (m *memStore) lastUpload() upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[len(m.uploads)-1]
}

func (m *memStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads) + m.fetches + m.resolves
}

// gzipCodec follows the gzip tools' in-place rename convention using
// compress/gzip, so pipeline tests do not depend on installed binaries.
type gzipCodec struct {
	compressErr   error
	decompressErr error
}

var _ compression.Codec = gzipCodec{}

func (c gzipCodec) Compress(_ context.Context, path string) (string, error) {
	if c.compressErr != nil {
		return "", c.compressErr
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	out := path + compression.Suffix
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return out, os.Remove(path)
}

func (c gzipCodec) Decompress(_ context.Context, path string) (string, error) {
	if c.decompressErr != nil {
		return "", c.decompressErr
	}
	if !strings.HasSuffix(path, compression.Suffix) {
		return "", fmt.Errorf("%w: %s", compression.ErrNotCompressed, path)
	}
	raw, err := gunzip(mustRead(path))
	if err != nil {
		return "", err
	}
	out := strings.TrimSuffix(path, compression.Suffix)
	if err := os.WriteFile(out, raw, 0644); err != nil {
		return "", err
	}
	return out, os.Remove(path)
}

func mustRead(path string) []byte {
	data, _ := os.ReadFile(path)
	return data
}

func gzipBytes(data []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// stickyFs fails every RemoveAll so scratch release errors can be
// observed.
type stickyFs struct {
	afero.Fs
}

func (stickyFs) RemoveAll(string) error {
	return fmt.Errorf("device busy")
}
