// Package afero wraps spf13's afero with the handful of helpers fastcopy
// needs, so callers can swap the OS filesystem for an in-mem one in tests.
package afero

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sgl-project/fastcopy/pkg/logging"
)

type Fs = afero.Fs

type File = afero.File

func NewOsFs() Fs {
	return afero.NewOsFs()
}

func NewMemMapFs() Fs {
	return afero.NewMemMapFs()
}

func TempDir(fs Fs, dir, prefix string) (name string, err error) {
	return afero.TempDir(fs, dir, prefix)
}

func TempFile(fs Fs, dir, prefix string) (f File, err error) {
	return afero.TempFile(fs, dir, prefix)
}

func WriteFile(fs Fs, filename string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(fs, filename, data, perm)
}

func ReadFile(fs Fs, filename string) ([]byte, error) {
	return afero.ReadFile(fs, filename)
}

// Exists returns true and nil error if the given path for a file or directory
// exists.
func Exists(fs Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}

// AtomicWrite streams r into destPath through a sibling temp file that is
// renamed over the destination once fully written. A failed copy leaves
// the destination untouched.
func AtomicWrite(
	fs Fs,
	destPath string,
	r io.Reader,
	fileMode os.FileMode,
	log logging.Interface,
) (int64, error) {
	destDir, destFile := filepath.Split(destPath)
	if destDir == "" {
		destDir = "."
	}

	log.WithField("destPath", destPath).
		Debug("Writing file...")

	tmp, err := afero.TempFile(fs, destDir, "."+destFile+"~")
	if err != nil {
		return 0, fmt.Errorf("creating tmp file for atomic write: %w", err)
	}
	defer func() { _ = fs.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, fmt.Errorf("error writing into a temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err := fs.Chmod(tmp.Name(), fileMode); err != nil {
		return n, fmt.Errorf("chmod temp file: %w", err)
	}

	return n, fs.Rename(tmp.Name(), destPath)
}
