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

// Package watch feeds batch files dropped into a spool directory to a
// processor, one at a time, and files them under done/ or failed/.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-aper/pkg/adapters"
)

const (
	// DoneDir is the spool subdirectory for processed batches.
	DoneDir = "done"
	// FailedDir is the spool subdirectory for rejected batches.
	FailedDir = "failed"

	defaultSettle = 250 * time.Millisecond

	// minTick bounds how often pending files are checked.
	minTick = time.Millisecond
)

// ErrNotDirectory is returned when the spool path is not a directory.
var ErrNotDirectory = errors.New("spool path is not a directory")

// ErrNegativeSettle is returned when Config.Settle is negative.
var ErrNegativeSettle = errors.New("settle time must not be negative")

// Processor handles one batch file. A returned error files the batch
// under failed/.
type Processor func(ctx context.Context, path string) error

// Config contains configuration options for a Spool.
type Config struct {
	// Dir is the spool directory.
	Dir string

	Logger adapters.Logger

	// Settle is how long a file must go without write events before it is
	// processed. Default: 250ms.
	Settle time.Duration

	// MergesPerSecond caps how often batches are processed. Zero means no
	// limit.
	MergesPerSecond float64

	// Burst is the number of batches processed back to back before
	// MergesPerSecond applies. Default: 1.
	Burst int
}

// Spool watches a directory for batch files.
type Spool struct {
	dir       string
	doneDir   string
	failedDir string
	settle    time.Duration
	logger    adapters.Logger
	process   Processor
	limiter   *rate.Limiter
	pending   map[string]time.Time
}

// Error describes a failed spool operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("spool %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a Spool on cfg.Dir, creating its done/ and failed/
// subdirectories.
func New(cfg Config, process Processor) (*Spool, error) {
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, &Error{Op: "stat", Path: cfg.Dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Op: "stat", Path: cfg.Dir, Err: ErrNotDirectory}
	}

	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	if cfg.Settle < 0 {
		return nil, &Error{Op: "config", Path: cfg.Dir, Err: ErrNegativeSettle}
	}
	if cfg.Settle == 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.MergesPerSecond > 0 {
		limit = rate.Limit(cfg.MergesPerSecond)
	}

	s := &Spool{
		dir:       filepath.Clean(cfg.Dir),
		doneDir:   filepath.Join(cfg.Dir, DoneDir),
		failedDir: filepath.Join(cfg.Dir, FailedDir),
		settle:    cfg.Settle,
		logger:    cfg.Logger,
		process:   process,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		pending:   make(map[string]time.Time),
	}

	for _, dir := range []string{s.doneDir, s.failedDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, &Error{Op: "mkdir", Path: dir, Err: err}
		}
	}

	return s, nil
}

// Run processes the files already in the spool, then watches for new ones
// until ctx is cancelled.
func (s *Spool) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &Error{Op: "watch", Path: s.dir, Err: err}
	}
	defer func() { _ = watcher.Close() }()

	// Watch before the initial scan so files dropped in between are seen.
	if err := watcher.Add(s.dir); err != nil {
		return &Error{Op: "watch", Path: s.dir, Err: err}
	}
	s.logger.Info(ctx, "Started watching spool", adapters.String("path", s.dir))

	if err := s.ProcessExisting(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(max(s.settle/2, minTick))
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error(ctx, "Spool watcher error", adapters.Err(err))

		case now := <-ticker.C:
			s.flush(ctx, now)

		case <-ctx.Done():
			s.logger.Info(ctx, "Stopped watching spool", adapters.String("path", s.dir))
			return nil
		}
	}
}

// ProcessExisting processes every batch file currently in the spool in
// name order.
func (s *Spool) ProcessExisting(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &Error{Op: "scan", Path: s.dir, Err: err}
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if !entry.Type().IsRegular() || shouldIgnore(entry.Name()) {
			continue
		}
		s.handle(ctx, filepath.Join(s.dir, entry.Name()))
	}
	return nil
}

func (s *Spool) handleEvent(event fsnotify.Event) {
	if filepath.Dir(event.Name) != s.dir || shouldIgnore(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	s.pending[event.Name] = time.Now()
}

// flush processes pending files that have settled, oldest name first.
func (s *Spool) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, last := range s.pending {
		if now.Sub(last) >= s.settle {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)

	for _, path := range ready {
		delete(s.pending, path)
		if ctx.Err() != nil {
			return
		}

		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		s.handle(ctx, path)
	}
}

func (s *Spool) handle(ctx context.Context, path string) {
	logger := s.logger.WithFields(adapters.String("batch", filepath.Base(path)))

	// Left in the spool for the next run when cancelled.
	if err := s.limiter.Wait(ctx); err != nil {
		logger.Debug(ctx, "Batch deferred", adapters.Err(err))
		return
	}

	dest := s.doneDir
	if err := s.process(ctx, path); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Info(ctx, "Batch interrupted, left in spool", adapters.Err(err))
			return
		}
		logger.Error(ctx, "Batch rejected", adapters.Err(err))
		dest = s.failedDir
	} else {
		logger.Info(ctx, "Batch merged")
	}

	moved, err := move(path, dest)
	if err != nil {
		logger.Error(ctx, "Failed to file batch", adapters.String("dest", dest), adapters.Err(err))
		return
	}
	logger.Debug(ctx, "Filed batch", adapters.String("path", moved))
}

// move renames path into dir, suffixing the name with a timestamp when the
// target already exists.
func move(path, dir string) (string, error) {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Lstat(target); err == nil {
		target += "." + time.Now().UTC().Format("20060102T150405.000000000")
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// shouldIgnore skips hidden, editor backup and temporary files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".tmp")
}
