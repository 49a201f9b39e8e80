// Package scratch hands out private staging directories that are removed
// once the owning operation is done with them.
package scratch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sgl-project/fastcopy/pkg/afero"
	"github.com/sgl-project/fastcopy/pkg/logging"
)

// Prefix is prepended to every scratch directory name.
const Prefix = "fastcopy-"

// Manager allocates scratch areas under a parent directory.
type Manager struct {
	fs     afero.Fs
	parent string
	logger logging.Interface
}

// NewManager returns a Manager creating areas under parent. An empty parent
// means the OS temp directory.
func NewManager(fs afero.Fs, parent string, logger logging.Interface) *Manager {
	return &Manager{
		fs:     fs,
		parent: parent,
		logger: logging.OrDiscard(logger),
	}
}

// Acquire creates a fresh directory whose staging file is called name.
func (m *Manager) Acquire(name string) (*Area, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid staging file name %q", name)
	}

	dir, err := afero.TempDir(m.fs, m.parent, Prefix)
	if err != nil {
		return nil, fmt.Errorf("create scratch directory under %q: %w", m.parent, err)
	}

	m.logger.WithField("dir", dir).Debug("Scratch area allocated")
	return &Area{
		fs:     m.fs,
		dir:    dir,
		file:   filepath.Join(dir, name),
		logger: m.logger,
	}, nil
}

// Area is a directory owned by a single operation.
type Area struct {
	fs     afero.Fs
	dir    string
	file   string
	logger logging.Interface

	once sync.Once
	err  error
}

// Path is the scratch directory.
func (a *Area) Path() string {
	return a.dir
}

// File is the staging file path inside the directory.
func (a *Area) File() string {
	return a.file
}

// Release removes the directory tree. Only the first call does any work;
// later calls return its result.
func (a *Area) Release() error {
	a.once.Do(func() {
		if err := a.fs.RemoveAll(a.dir); err != nil {
			a.err = fmt.Errorf("remove scratch directory %s: %w", a.dir, err)
			a.logger.WithError(err).WithField("dir", a.dir).Warn("Failed to release scratch area")
			return
		}
		a.logger.WithField("dir", a.dir).Debug("Scratch area released")
	})
	return a.err
}
