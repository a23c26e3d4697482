package mlpackage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/katacoreml/internal/tempdir"
)

// Errors returned by Assemble and ReadManifest.
var (
	ErrCollision      = errors.New("package destination already exists")
	ErrInvalidItem    = errors.New("invalid package item")
	ErrInvalidPackage = errors.New("invalid package")
)

// Item is a file or directory copied into the package.
type Item struct {
	Name        string
	Source      string
	Author      string
	Description string
}

// Options controls Assemble.
type Options struct {
	// Overwrite replaces an existing destination. Without it an existing
	// destination fails with ErrCollision.
	Overwrite bool
}

// Assemble builds a package at dest holding root as the root model and
// items beside it. On failure dest is left as it was.
func Assemble(dest string, root Item, items []Item, opts Options) error {
	dest = filepath.Clean(dest)
	if err := checkItems(root, items); err != nil {
		return err
	}
	parent := filepath.Dir(dest)
	if info, err := os.Stat(parent); err != nil {
		return fmt.Errorf("package destination directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("package destination directory %s is not a directory", parent)
	}
	exists, err := pathExists(dest)
	if err != nil {
		return err
	}
	if exists && !opts.Overwrite {
		return fmt.Errorf("%w: %s", ErrCollision, dest)
	}

	stage, err := tempdir.New("."+filepath.Base(dest), tempdir.WithBase(parent))
	if err != nil {
		return err
	}
	defer func() {
		_ = stage.Close() // Best effort; a successful rename leaves only an empty stage
	}()

	pkg := stage.Join("package")
	if err := build(pkg, root, items); err != nil {
		return err
	}

	if exists {
		previous := stage.Join("previous")
		if err := os.Rename(dest, previous); err != nil {
			return fmt.Errorf("failed to move aside existing package: %w", err)
		}
		if err := os.Rename(pkg, dest); err != nil {
			_ = os.Rename(previous, dest) // Best effort restore
			return fmt.Errorf("failed to move package into place: %w", err)
		}
		return nil
	}
	if err := os.Rename(pkg, dest); err != nil {
		return fmt.Errorf("failed to move package into place: %w", err)
	}
	return nil
}

func build(pkg string, root Item, items []Item) error {
	data := filepath.Join(pkg, DataDir, ItemDir)
	if err := os.MkdirAll(data, 0o750); err != nil {
		return fmt.Errorf("failed to create package directory: %w", err)
	}
	for _, it := range append([]Item{root}, items...) {
		if err := copyPath(it.Source, filepath.Join(data, it.Name)); err != nil {
			return fmt.Errorf("failed to copy item %q: %w", it.Name, err)
		}
	}
	return newManifest(root, items).write(pkg)
}

func checkItems(root Item, items []Item) error {
	seen := make(map[string]bool, len(items)+1)
	for _, it := range append([]Item{root}, items...) {
		switch {
		case it.Name == "" || it.Name == "." || it.Name == "..":
			return fmt.Errorf("%w: name %q", ErrInvalidItem, it.Name)
		case strings.ContainsAny(it.Name, `/\`):
			return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidItem, it.Name)
		case seen[it.Name]:
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidItem, it.Name)
		case it.Source == "":
			return fmt.Errorf("%w: %q has no source", ErrInvalidItem, it.Name)
		}
		seen[it.Name] = true
	}

	info, err := os.Stat(root.Source)
	if err != nil {
		return fmt.Errorf("%w: root model: %w", ErrInvalidItem, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: root model %s is not a regular file", ErrInvalidItem, root.Source)
	}
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

// copyPath copies a regular file or a directory tree from src to dst.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o750)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return fmt.Errorf("%w: %s is not a regular file", ErrInvalidItem, path)
		}
	})
}

func copyFile(src, dst string) error {
	//nolint:gosec // G304: item sources come from the caller
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close() // Best effort close
	}()

	//nolint:gosec // G304: destination is inside our staging directory
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close() // Best effort close on error
		return err
	}
	return out.Close()
}
