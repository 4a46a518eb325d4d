// Package staging owns the scratch directory tree used by one conversion.
//
// An Arena has two areas: the staged tree (Root), which mirrors the install
// root of the package being converted, and an output area where the target
// codec writes the new package before it is published. Nothing else may touch
// an arena while its conversion runs; Close removes it on every exit path.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
)

// Arena is a per-conversion scratch area
type Arena struct {
	dir    string
	root   string
	out    string
	closed bool
}

// New creates an arena below parent, or below the system temp dir when parent is empty.
func New(parent string) (*Arena, error) {
	if parent != "" {
		if err := utils.EnsureDir(parent); err != nil {
			return nil, models.NewIOError("create staging parent", err)
		}
	}

	dir, err := os.MkdirTemp(parent, "pkgconv-")
	if err != nil {
		return nil, models.NewIOError("create staging dir", err)
	}

	a := &Arena{
		dir:  dir,
		root: filepath.Join(dir, "root"),
		out:  filepath.Join(dir, "out"),
	}
	for _, d := range []string{a.root, a.out} {
		if err := os.Mkdir(d, 0755); err != nil {
			os.RemoveAll(dir)
			return nil, models.NewIOError("create staging dir", err)
		}
	}

	logrus.Debugf("Created staging arena %s", dir)
	return a, nil
}

// Dir returns the arena's top-level directory
func (a *Arena) Dir() string { return a.dir }

// Root returns the staged install tree
func (a *Arena) Root() string { return a.root }

// Path maps a manifest path to its location in the staged tree.
func (a *Arena) Path(rel string) (string, error) {
	if a.closed {
		return "", errors.New("staging arena is closed")
	}
	clean, err := models.NormalizePath(rel)
	if err != nil {
		return "", err
	}
	full := filepath.Join(a.root, filepath.FromSlash(clean))
	if full != a.root && !strings.HasPrefix(full, a.root+string(filepath.Separator)) {
		return "", models.ErrPathEscape
	}
	return full, nil
}

// Create opens a staged file for writing, creating parent directories.
// Staged files always get mode 0644: the real mode lives in the manifest.
func (a *Arena) Create(rel string) (*os.File, error) {
	full, err := a.Path(rel)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(filepath.Dir(full)); err != nil {
		return nil, models.NewIOError("stage "+rel, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, models.NewIOError("stage "+rel, err)
	}
	return f, nil
}

// Stage copies r into the staged tree at rel and returns the content's MD5 and size.
func (a *Arena) Stage(rel string, r io.Reader) (string, int64, error) {
	f, err := a.Create(rel)
	if err != nil {
		return "", 0, err
	}
	sum, n, err := utils.HashingCopy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	return sum, n, nil
}

// Mkdir creates a staged directory and its parents.
func (a *Arena) Mkdir(rel string) error {
	full, err := a.Path(rel)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(full); err != nil {
		return models.NewIOError("stage "+rel, err)
	}
	return nil
}

// Open opens a staged file for reading.
func (a *Arena) Open(rel string) (*os.File, error) {
	full, err := a.Path(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, models.NewIOError("open staged "+rel, err)
	}
	return f, nil
}

// ReadFile returns the whole content of a staged file.
func (a *Arena) ReadFile(rel string) ([]byte, error) {
	full, err := a.Path(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, models.NewIOError("read staged "+rel, err)
	}
	return data, nil
}

// Remove deletes a staged file or directory tree.
func (a *Arena) Remove(rel string) error {
	full, err := a.Path(rel)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

// Populated reports whether anything has been staged yet.
func (a *Arena) Populated() (bool, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// CreateOutput opens a file in the output area. Only the bare file name is used.
func (a *Arena) CreateOutput(name string) (*os.File, error) {
	if a.closed {
		return nil, errors.New("staging arena is closed")
	}
	name = filepath.Base(name)
	f, err := os.OpenFile(filepath.Join(a.out, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, models.NewIOError("create output", err)
	}
	return f, nil
}

// OpenOutput opens a finished output file for reading.
func (a *Arena) OpenOutput(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(a.out, filepath.Base(name)))
	if err != nil {
		return nil, models.NewIOError("open output", err)
	}
	return f, nil
}

// Publish moves a finished output file into destDir and returns its final path.
func (a *Arena) Publish(name, destDir string) (string, error) {
	src := filepath.Join(a.out, filepath.Base(name))
	if _, err := os.Stat(src); err != nil {
		return "", models.NewIOError("publish", err)
	}
	if err := utils.EnsureDir(destDir); err != nil {
		return "", models.NewIOError("publish", err)
	}
	dst := filepath.Join(destDir, filepath.Base(name))
	if err := utils.MoveFile(src, dst); err != nil {
		return "", models.NewIOError("publish", fmt.Errorf("%s: %w", dst, err))
	}
	return dst, nil
}

// Close removes the arena. It is safe to call more than once.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := os.RemoveAll(a.dir); err != nil {
		return models.NewIOError("remove staging dir", err)
	}
	logrus.Debugf("Removed staging arena %s", a.dir)
	return nil
}
