// Package storage reads, writes and deletes cache entry files on a
// billy.Filesystem. Every operation on a path holds that path's lock for its
// whole duration, so two callers that reached the same location
// independently still serialize, and a Read that starts after a Write
// returned sees that write or a later one.
//
// Writes overwrite the target in place unless WithAtomicWrites is set; a
// crash in the middle of an in-place write leaves a torn file, which the
// envelope checksum turns into a decode failure on the next read.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/filecache/internal/keylock"
)

const (
	tempPrefix = ".tmp-"

	defaultOSDeleteConcurrency = 8
)

// ErrEnumerate is wrapped by errors returned when a directory cannot be listed.
var ErrEnumerate = errors.New("storage: cannot enumerate directory")

type config struct {
	atomic  bool
	perm    os.FileMode
	deleteN int
}

// Option configures an Engine.
type Option func(*config)

// WithAtomicWrites makes Write go through a temp file and a rename.
func WithAtomicWrites(on bool) Option {
	return func(c *config) { c.atomic = on }
}

// WithFileMode sets the permission bits for newly created files (default 0o644).
func WithFileMode(perm os.FileMode) Option {
	return func(c *config) {
		if perm != 0 {
			c.perm = perm
		}
	}
}

// WithDeleteConcurrency bounds how many files DeleteAll removes at once.
// New defaults to 1 because not every billy.Filesystem tolerates concurrent
// use across paths (memfs does not); NewOS defaults to 8.
func WithDeleteConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.deleteN = n
		}
	}
}

// Engine performs byte-level operations against single files.
type Engine struct {
	fs    billy.Filesystem
	cfg   config
	locks keylock.Table
}

// New wraps an existing filesystem.
func New(bfs billy.Filesystem, opts ...Option) (*Engine, error) {
	if bfs == nil {
		return nil, errors.New("storage: filesystem cannot be nil")
	}
	cfg := config{perm: 0o644, deleteN: 1}
	for _, o := range opts {
		o(&cfg)
	}
	return &Engine{fs: bfs, cfg: cfg}, nil
}

// NewOS roots an Engine at dir on the local filesystem, creating it if needed.
func NewOS(dir string, opts ...Option) (*Engine, error) {
	if dir == "" {
		return nil, errors.New("storage: root path cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %q: %w", dir, err)
	}
	opts = append([]Option{WithDeleteConcurrency(defaultOSDeleteConcurrency)}, opts...)
	return New(osfs.New(dir), opts...)
}

// Filesystem returns the underlying filesystem.
func (e *Engine) Filesystem() billy.Filesystem { return e.fs }

// Init creates dir (relative to the root) if it does not exist.
func (e *Engine) Init(dir string) error {
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %q: %w", dir, err)
	}
	return nil
}

func (e *Engine) lock(path string) func() {
	return e.locks.Lock(filepath.Clean(path))
}

// Read returns the contents of path. A missing file is (nil, false, nil).
func (e *Engine) Read(path string) ([]byte, bool, error) {
	key := filepath.Clean(path)
	unlock := e.lock(key)
	defer unlock()

	b, err := util.ReadFile(e.fs, key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return b, true, nil
}

// Write replaces the contents of path with data.
func (e *Engine) Write(path string, data []byte) error {
	key := filepath.Clean(path)
	unlock := e.lock(key)
	defer unlock()

	if e.cfg.atomic {
		return e.writeAtomic(key, data)
	}
	f, err := e.fs.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, e.cfg.perm)
	if err != nil {
		return fmt.Errorf("storage: open %q: %w", key, err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("storage: write %q: %w", key, werr)
	}
	if cerr != nil {
		return fmt.Errorf("storage: close %q: %w", key, cerr)
	}
	return nil
}

func (e *Engine) writeAtomic(path string, data []byte) error {
	tmp, err := e.fs.TempFile(filepath.Dir(path), tempPrefix)
	if err != nil {
		return fmt.Errorf("storage: temp file for %q: %w", path, err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = e.fs.Remove(name)
		return fmt.Errorf("storage: write %q: %w", path, errors.Join(werr, cerr))
	}
	if err := e.fs.Rename(name, path); err != nil {
		_ = e.fs.Remove(name)
		return fmt.Errorf("storage: rename into %q: %w", path, err)
	}
	return nil
}

// Delete removes path and reports whether a file was actually removed.
func (e *Engine) Delete(path string) (bool, error) {
	key := filepath.Clean(path)
	unlock := e.lock(key)
	defer unlock()

	err := e.fs.Remove(key)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return true, nil
}

// Exists reports whether path is present.
func (e *Engine) Exists(path string) (bool, error) {
	_, err := e.fs.Stat(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %q: %w", path, err)
	}
	return true, nil
}

// List returns the entry file names in dir (temp files and directories are
// skipped). Failure to read dir wraps ErrEnumerate.
func (e *Engine) List(dir string) ([]string, error) {
	infos, err := e.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrEnumerate, dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), tempPrefix) {
			continue
		}
		names = append(names, fi.Name())
	}
	return names, nil
}

// DeleteAll removes every file in dir, temp files included. It returns the
// number of files removed. An enumeration failure is returned before anything
// is deleted; individual delete failures are joined. Files are removed by up
// to WithDeleteConcurrency goroutines, each taking the file's path lock.
func (e *Engine) DeleteAll(dir string) (int, error) {
	infos, err := e.fs.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrEnumerate, dir, err)
	}

	var (
		eg      errgroup.Group
		removed atomic.Int64
		errs    = make([]error, len(infos))
	)
	eg.SetLimit(e.cfg.deleteN)
	for i, fi := range infos {
		if fi.IsDir() {
			continue
		}
		p := e.fs.Join(dir, fi.Name())
		eg.Go(func() error {
			ok, err := e.Delete(p)
			if err != nil {
				errs[i] = err
				return nil
			}
			if ok {
				removed.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return int(removed.Load()), errors.Join(errs...)
}
