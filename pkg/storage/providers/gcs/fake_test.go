package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	gcs "cloud.google.com/go/storage"
)

// memAPI is an in-memory objectAPI. Objects become visible only when a
// writer is closed with a live context, as in GCS.
type memAPI struct {
	mu       sync.Mutex
	objects  map[string][]byte
	gens     map[string]int64
	nextGen  int64
	projects map[string]struct{}
	composes [][]string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	failWrite   func(name string) error
	failCompose func(dst string) error
	failDelete  func(name string) error
	// afterRangeRead runs once a ranged reader has been opened.
	afterRangeRead func(obj objectID)
	closed         bool
}

func newMemAPI() *memAPI {
	return &memAPI{
		objects:  map[string][]byte{},
		gens:     map[string]int64{},
		projects: map[string]struct{}{},
	}
}

func key(obj objectID) string { return obj.bucket + "/" + obj.name }

func (m *memAPI) seen(obj objectID) {
	m.mu.Lock()
	m.projects[obj.userProject] = struct{}{}
	m.mu.Unlock()
}

func (m *memAPI) put(bucket, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(bucket+"/"+name, append([]byte(nil), data...))
}

// store replaces the object with a new generation; m.mu must be held.
func (m *memAPI) store(k string, data []byte) {
	m.nextGen++
	m.objects[k] = data
	m.gens[k] = m.nextGen
}

func (m *memAPI) get(bucket, name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+name]
	return data, ok
}

func (m *memAPI) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memAPI) tempNames() []string {
	var out []string
	for _, n := range m.names() {
		if strings.Contains(n, tempInfix) {
			out = append(out, n)
		}
	}
	return out
}

func (m *memAPI) userProjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.projects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type memWriter struct {
	ctx  context.Context
	api  *memAPI
	obj  objectID
	opts writeOptions
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	defer w.api.inFlight.Add(-1)

	if err := w.ctx.Err(); err != nil {
		return err
	}
	if w.api.failWrite != nil {
		if err := w.api.failWrite(w.obj.name); err != nil {
			return err
		}
	}
	if w.opts.sendCRC {
		if got := crc32.Checksum(w.buf.Bytes(), crc32cTable); got != w.opts.crc32c {
			return fmt.Errorf("crc32c mismatch: sent %d, got %d", w.opts.crc32c, got)
		}
	}
	w.api.put(w.obj.bucket, w.obj.name, w.buf.Bytes())
	return nil
}

func (m *memAPI) NewWriter(ctx context.Context, obj objectID, opts writeOptions) io.WriteCloser {
	m.seen(obj)
	n := m.inFlight.Add(1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return &memWriter{ctx: ctx, api: m, obj: obj, opts: opts}
}

func (m *memAPI) Compose(ctx context.Context, dst objectID, srcs []objectID) error {
	m.seen(dst)
	if len(srcs) > maxComposeSources {
		return fmt.Errorf("too many compose sources: %d", len(srcs))
	}
	if m.failCompose != nil {
		if err := m.failCompose(dst.name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []byte
	names := make([]string, 0, len(srcs))
	for _, src := range srcs {
		m.projects[src.userProject] = struct{}{}
		data, ok := m.objects[key(src)]
		if !ok {
			return gcs.ErrObjectNotExist
		}
		out = append(out, data...)
		names = append(names, src.name)
	}
	m.store(key(dst), out)
	m.composes = append(m.composes, names)
	return nil
}

func (m *memAPI) Delete(ctx context.Context, obj objectID) error {
	m.seen(obj)
	if m.failDelete != nil {
		if err := m.failDelete(obj.name); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key(obj)]; !ok {
		return gcs.ErrObjectNotExist
	}
	delete(m.objects, key(obj))
	delete(m.gens, key(obj))
	return nil
}

func (m *memAPI) Attrs(ctx context.Context, obj objectID) (objectAttrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key(obj)]
	if !ok {
		return objectAttrs{}, gcs.ErrObjectNotExist
	}
	return objectAttrs{size: int64(len(data)), generation: m.gens[key(obj)]}, nil
}

// NewRangeReader serves only the live generation, like GCS on a bucket
// without object versioning.
func (m *memAPI) NewRangeReader(ctx context.Context, obj objectID, generation, offset, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	data, ok := m.objects[key(obj)]
	live := m.gens[key(obj)]
	m.mu.Unlock()

	if !ok || live != generation {
		return nil, gcs.ErrObjectNotExist
	}
	if offset > int64(len(data)) {
		return nil, errors.New("range not satisfiable")
	}
	end := min(offset+length, int64(len(data)))
	if m.afterRangeRead != nil {
		m.afterRangeRead(obj)
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (m *memAPI) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
