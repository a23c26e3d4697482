// Package tempdir provides scoped temporary directories with bounded
// collision retry and guaranteed cleanup.
package tempdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxAttempts bounds the number of names tried before giving up.
const MaxAttempts = 100

// ErrCreate is returned when no collision-free name could be created.
var ErrCreate = errors.New("temporary resource creation failed")

// Dir is a temporary directory owned by one scope.
type Dir struct {
	path   string
	suffix func() string
	closed bool
}

type options struct {
	base   string
	suffix func() string
}

// Option configures New.
type Option func(*options)

// WithBase sets the parent directory. Defaults to os.TempDir().
func WithBase(base string) Option {
	return func(o *options) {
		o.base = base
	}
}

// WithSuffix replaces the random suffix generator.
func WithSuffix(fn func() string) Option {
	return func(o *options) {
		o.suffix = fn
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// New creates <base>/<prefix>_<suffix>, retrying on collision.
func New(prefix string, opts ...Option) (*Dir, error) {
	o := options{base: os.TempDir(), suffix: randomSuffix}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		path := filepath.Join(o.base, name(prefix, o.suffix()))
		err := os.Mkdir(path, 0o750)
		if err == nil {
			return &Dir{path: path, suffix: o.suffix}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCreate, path, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %d attempts collided under %s: %w", ErrCreate, MaxAttempts, o.base, lastErr)
}

func name(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Join joins elem onto the directory path.
func (d *Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}

// CreateFile exclusively creates a new file inside the directory.
// The caller owns the returned file; it is removed with the directory.
func (d *Dir) CreateFile(prefix string) (*os.File, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		path := d.Join(name(prefix, d.suffix()))
		//nolint:gosec // G304: path is inside our own temporary directory
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCreate, path, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %d attempts collided in %s: %w", ErrCreate, MaxAttempts, d.path, lastErr)
}

// Close removes the directory and everything in it. Calling Close more
// than once is a no-op.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("failed to remove temporary directory %s: %w", d.path, err)
	}
	return nil
}

// With runs fn with a fresh temporary directory and removes it on every
// exit path, including panics.
func With(prefix string, fn func(*Dir) error, opts ...Option) (err error) {
	dir, err := New(prefix, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(dir)
}
