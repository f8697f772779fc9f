package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	fileExt    = ".json"
	tempPrefix = ".tmp-"
)

// FileBackend stores one JSON file per user under a directory. File names
// are the path-escaped user id, so ids containing separators stay inside
// the directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("file backend requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create medications directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) Name() string { return "file" }

// Dir returns the directory holding the user files
func (f *FileBackend) Dir() string { return f.dir }

func (f *FileBackend) path(userID string) string {
	return filepath.Join(f.dir, url.PathEscape(userID)+fileExt)
}

func (f *FileBackend) Get(ctx context.Context, userID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes to a temp file in the same directory, syncs it and renames it
// over the previous document. Readers never observe a partial file.
func (f *FileBackend) Put(ctx context.Context, userID string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, f.path(userID)); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace document: %w", err)
	}

	// Persist the rename itself. Not every platform supports syncing a
	// directory, so errors here are ignored.
	if d, err := os.Open(f.dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

func (f *FileBackend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FileBackend) Close() error { return nil }
