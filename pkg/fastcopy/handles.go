package fastcopy

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/sgl-project/fastcopy/pkg/storage"
)

// Reader is an open, fully fetched and decompressed object.
type Reader struct {
	op   *operation
	file *os.File

	once sync.Once
	err  error
}

// File returns the staged file, positioned at its start.
func (r *Reader) File() *os.File {
	return r.file
}

// Read reads from the staged file.
func (r *Reader) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

// Close closes the file and removes the scratch area. It is safe to call
// more than once.
func (r *Reader) Close() error {
	r.once.Do(func() {
		var size int64
		if info, err := r.file.Stat(); err == nil {
			size = info.Size()
		}
		if err := r.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			r.err = r.op.fail(StepOpen, err)
			return
		}
		r.err = r.op.succeed(size)
	})
	return r.err
}

// Writer is a staging file that is stored on Close.
type Writer struct {
	ctx   context.Context
	op    *operation
	file  *os.File
	store storage.BlobStore
	ref   storage.ObjectRef
	opts  storage.UploadOptions

	once sync.Once
	err  error
}

// File returns the staging file.
func (w *Writer) File() *os.File {
	return w.file
}

// Write writes to the staging file.
func (w *Writer) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Close compresses the staged file if needed, stores it and removes the
// scratch area. Only the first call to Close or Discard has an effect.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.err = w.commit()
	})
	return w.err
}

// Discard removes the scratch area without storing anything.
func (w *Writer) Discard() error {
	w.once.Do(func() {
		_ = w.file.Close()
		w.err = w.op.discard()
	})
	return w.err
}

func (w *Writer) commit() error {
	op := w.op
	client := op.client

	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return op.fail(StepOpen, err)
	}

	path := op.area.File()
	if op.compressed {
		var err error
		path, err = client.codec.Compress(w.ctx, path)
		if err != nil {
			return op.fail(StepCompress, err)
		}
		op.enter(StateCompressed)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	if err := w.store.Upload(w.ctx, path, w.ref, w.opts); err != nil {
		return op.fail(StepStore, err)
	}
	op.enter(StateStored)

	return op.succeed(size)
}
