// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package local stores the APER lists as flat files in a database directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jeremyhahn/go-aper/pkg/adapters"
	"github.com/jeremyhahn/go-aper/pkg/aper"
)

const (
	// DefaultTempPrefix is the prefix of temporary files created by Replace.
	DefaultTempPrefix = ".aper"

	// defaultFileMode applies to database files that do not exist yet.
	defaultFileMode os.FileMode = 0644
)

// Config describes where the database files live.
type Config struct {
	// DataDir holds the database files. Relative file names resolve against it.
	DataDir string

	// Files maps each list to its file name.
	Files map[aper.List]string

	// TempDir receives temporary files. Empty means the directory of the
	// file being replaced, which keeps the rename on one filesystem.
	TempDir string

	// TempPrefix prefixes temporary file names. Empty means DefaultTempPrefix.
	TempPrefix string
}

// Database is the set of list files in one directory.
type Database struct {
	dir        string
	files      map[aper.List]string
	tempDir    string
	tempPrefix string
	logger     adapters.Logger
}

// New creates a Database from cfg. Every list must have a file name.
func New(cfg Config) (*Database, error) {
	if cfg.DataDir == "" {
		return nil, ErrDataDirNotSet
	}

	files := make(map[aper.List]string, len(aper.Lists))
	for _, list := range aper.Lists {
		name := cfg.Files[list]
		if name == "" {
			return nil, fmt.Errorf("%w: %s", ErrFileNameNotSet, list)
		}
		files[list] = name
	}

	prefix := cfg.TempPrefix
	if prefix == "" {
		prefix = DefaultTempPrefix
	}

	return &Database{
		dir:        cfg.DataDir,
		files:      files,
		tempDir:    cfg.TempDir,
		tempPrefix: prefix,
		logger:     adapters.NewNoOpLogger(),
	}, nil
}

// SetLogger sets the logger used for file operations.
func (d *Database) SetLogger(logger adapters.Logger) {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	d.logger = logger
}

// Dir returns the database directory.
func (d *Database) Dir() string {
	return d.dir
}

// Path returns the file path of list.
func (d *Database) Path(list aper.List) string {
	name := d.files[list]
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.dir, name)
}

// Open opens the database file of list for reading. A missing or
// unreadable file is reported as aper.ErrSourceFileUnreadable.
func (d *Database) Open(ctx context.Context, list aper.List) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path := d.Path(list)
	f, err := os.Open(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", aper.ErrSourceFileUnreadable, path, err)
	}

	if info, err := f.Stat(); err == nil {
		d.logger.Debug(ctx, "opened database file",
			adapters.String("list", list.String()),
			adapters.String("path", path),
			adapters.String("size", formatBytes(info.Size())))
	}
	return f, nil
}

// Create creates an empty database file for list unless one exists. It
// reports whether a file was created.
func (d *Database) Create(ctx context.Context, list aper.List) (bool, error) {
	path := d.Path(list)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return false, err
	}
	if err := d.ReplaceFile(ctx, path, func(io.Writer) error { return nil }); err != nil {
		return false, err
	}
	return true, nil
}

// Replace atomically replaces the database file of list with the output of
// render.
func (d *Database) Replace(ctx context.Context, list aper.List, render func(io.Writer) error) error {
	return d.ReplaceFile(ctx, d.Path(list), render)
}

// ReplaceFile writes the output of render to a temporary file, syncs it and
// renames it over path. The mode of an existing file is kept. On failure
// the temporary file is removed and path is left as it was; a failed
// removal is reported alongside the original error as ErrTempFileRemove.
func (d *Database) ReplaceFile(ctx context.Context, path string, render func(io.Writer) error) (err error) {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dir := d.tempDir
	if dir == "" {
		dir = filepath.Dir(path)
	}

	mode := defaultFileMode
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, d.tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTempFileUnwritable, dir, err)
	}
	tmpPath := tmp.Name()
	closed := false

	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("%w: %s: %v", ErrTempFileRemove, tmpPath, rmErr))
		}
	}()

	cw := &countingWriter{w: tmp}
	if err = render(cw); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTempFileUnwritable, tmpPath, err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTempFileUnwritable, tmpPath, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTempFileUnwritable, tmpPath, err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTempFileUnwritable, tmpPath, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrTempFileRename, tmpPath, path, err)
	}

	d.logger.Debug(ctx, "replaced database file",
		adapters.String("path", path),
		adapters.String("size", formatBytes(cw.n)))
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// formatBytes formats a byte count as a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
