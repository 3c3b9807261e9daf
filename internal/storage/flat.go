package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/models"
)

const (
	// Ext is the file extension of stored documents.
	Ext = ".wiki"

	homeFile = "home" + Ext
	pagesDir = "pages"
)

// Flat is the synchronous file-per-document backend. The home document lives
// at <root>/home.wiki and every other key at <root>/pages/<key>.wiki, so no
// user key can collide with the home file.
type Flat struct {
	root string // absolute path
}

var (
	_ Backend = (*Flat)(nil)
	_ Lister  = (*Flat)(nil)
)

// NewFlat creates a Flat store rooted at dir, creating it if needed.
// A root that cannot be used is reported as apperr.ErrUnavailable.
func NewFlat(dir string) (*Flat, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, pagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w: %w", abs, apperr.ErrUnavailable, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w: %w", apperr.ErrUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s: %w", abs, apperr.ErrUnavailable)
	}
	return &Flat{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *Flat) Root() string { return f.root }

// filePath maps a key to its file and rejects anything that escapes the
// pages directory.
func (f *Flat) filePath(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("storage: %q: %w", key, apperr.ErrInvalidKey)
	}
	if key == models.HomeKey {
		return filepath.Join(f.root, homeFile), nil
	}
	base := filepath.Join(f.root, pagesDir)
	abs := filepath.Join(base, filepath.FromSlash(key)+Ext)
	if !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %q escapes root: %w", key, apperr.ErrInvalidKey)
	}
	return abs, nil
}

// KeyOf maps a file path under the root back to its document key.
func (f *Flat) KeyOf(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil || !strings.HasSuffix(abs, Ext) {
		return "", false
	}
	if abs == filepath.Join(f.root, homeFile) {
		return models.HomeKey, true
	}
	rel, err := filepath.Rel(filepath.Join(f.root, pagesDir), abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false
	}
	key := filepath.ToSlash(strings.TrimSuffix(rel, Ext))
	if key == "" || !ValidKey(key) {
		return "", false
	}
	return key, true
}

// Get returns the document at key.
func (f *Flat) Get(_ context.Context, key string) (string, bool, error) {
	abs, err := f.filePath(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return string(data), true, nil
}

// Put atomically writes value: tmp file → fsync → rename.
func (f *Flat) Put(ctx context.Context, key, value string) error {
	if value == "" {
		return f.Delete(ctx, key)
	}
	abs, err := f.filePath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".creolewiki-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(value); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the document at key. Missing documents are ignored.
func (f *Flat) Delete(_ context.Context, key string) error {
	abs, err := f.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// List returns metadata for every stored document, home included.
func (f *Flat) List(_ context.Context) ([]models.PageMeta, error) {
	var out []models.PageMeta
	if info, err := os.Stat(filepath.Join(f.root, homeFile)); err == nil {
		out = append(out, models.PageMeta{Key: models.HomeKey, Size: int(info.Size()), UpdatedAt: info.ModTime()})
	}
	err := filepath.WalkDir(filepath.Join(f.root, pagesDir), func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Ext) {
			return nil
		}
		key, ok := f.KeyOf(p)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, models.PageMeta{Key: key, Size: int(info.Size()), UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}
