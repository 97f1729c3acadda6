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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-aper/pkg/adapters"
	"github.com/jeremyhahn/go-aper/pkg/aper"
	"github.com/jeremyhahn/go-aper/pkg/audit"
	"github.com/jeremyhahn/go-aper/pkg/export"
	"github.com/jeremyhahn/go-aper/pkg/local"
	"github.com/jeremyhahn/go-aper/pkg/metrics"
	"github.com/jeremyhahn/go-aper/pkg/watch"
)

// stdinName names standard input in results and diagnostics.
const stdinName = "stdin"

// CommandContext holds the state of one aper invocation.
type CommandContext struct {
	Config  *Config
	DB      *local.Database
	Logger  adapters.Logger
	Metrics *metrics.Recorder
	Audit   audit.Logger

	// Stdin is read when no batch file is named.
	Stdin io.Reader
	// Stdout receives exports written to "-".
	Stdout io.Writer
	// Now is the clock used for export age windows and metrics.
	Now func() time.Time
}

// MergeResult reports one merge or check run.
type MergeResult struct {
	RunID    string          `json:"run_id"`
	List     string          `json:"list"`
	Path     string          `json:"path"`
	Source   string          `json:"source"`
	DryRun   bool            `json:"dry_run"`
	Written  bool            `json:"written"`
	Database aper.MergeStats `json:"database"`
	// ClearedFlags counts cleared list entries applied to a reply database.
	ClearedFlags *aper.MergeStats `json:"cleared_flags,omitempty"`
	Batch        aper.MergeStats  `json:"batch"`
	Records      int              `json:"records"`
	Live         int              `json:"live"`
}

// ExportResult reports one export run.
type ExportResult struct {
	Format  export.Format `json:"format"`
	Output  string        `json:"output"`
	MaxAge  int           `json:"max_age_days"`
	Entries int           `json:"entries"`
}

// NewCommandContext creates a new command context from the configuration.
// Logs go to logOut.
func NewCommandContext(cfg *Config, logOut io.Writer) (*CommandContext, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger(logOut)
	if err != nil {
		return nil, err
	}

	db, err := local.New(cfg.DatabaseConfig())
	if err != nil {
		return nil, err
	}
	db.SetLogger(logger)

	var auditLogger audit.Logger = audit.NewNoOpLogger()
	if cfg.AuditLog != "" {
		if auditLogger, err = audit.OpenFile(cfg.AuditLog, audit.FormatJSON); err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	}

	return &CommandContext{
		Config:  cfg,
		DB:      db,
		Logger:  logger,
		Metrics: metrics.New(),
		Audit:   auditLogger,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Now:     time.Now,
	}, nil
}

// Close writes the run metrics when a metrics textfile is configured and
// closes the audit log.
func (c *CommandContext) Close() error {
	return errors.Join(c.writeMetrics(), c.Audit.Close())
}

func (c *CommandContext) writeMetrics() error {
	if c.Config.MetricsTextfile == "" {
		return nil
	}
	if err := c.Metrics.WriteTextfile(c.Config.MetricsTextfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (c *CommandContext) logAudit(ctx context.Context, event *audit.Event) {
	event.Timestamp = c.Now()
	if err := c.Audit.LogEvent(ctx, event); err != nil {
		c.Logger.Warn(ctx, "Failed to write audit event", adapters.Err(err))
	}
}

// MergeCommand folds the batch at batchPath into list and rewrites the
// database file. An empty batchPath or "-" reads Stdin. Nothing is written
// unless every record of the database and the batch is valid.
func (c *CommandContext) MergeCommand(ctx context.Context, list aper.List, batchPath string) (*MergeResult, error) {
	return c.run(ctx, list, batchPath, false)
}

// CheckCommand validates and merges the batch in memory and reports what a
// merge would do, without writing.
func (c *CommandContext) CheckCommand(ctx context.Context, list aper.List, batchPath string) (*MergeResult, error) {
	return c.run(ctx, list, batchPath, true)
}

func (c *CommandContext) run(ctx context.Context, list aper.List, batchPath string, dryRun bool) (*MergeResult, error) {
	start := c.Now()
	result := &MergeResult{
		RunID:  uuid.NewString(),
		List:   list.String(),
		Path:   c.DB.Path(list),
		Source: batchName(batchPath),
		DryRun: dryRun,
	}
	logger := c.Logger.WithFields(
		adapters.String("run_id", result.RunID),
		adapters.String("list", result.List))

	eventType := audit.EventDatabaseMerged
	if dryRun {
		eventType = audit.EventBatchChecked
	}
	record := func(err error) {
		event := &audit.Event{
			EventType: eventType,
			RunID:     result.RunID,
			List:      result.List,
			Source:    result.Source,
			Path:      result.Path,
			Result:    audit.ResultOf(err),
			Duration:  c.Now().Sub(start),
		}
		if err != nil {
			event.ErrorMessage = err.Error()
		} else {
			event.Stats = &result.Batch
		}
		c.logAudit(ctx, event)
	}

	fail := func(err error) (*MergeResult, error) {
		c.Metrics.ObserveFailure(list, c.Now().Sub(start))
		// The caller reports err; this only ties it to the run.
		logger.Debug(ctx, "Merge failed", adapters.Err(err))
		record(err)
		return nil, err
	}

	store, dbStats, clearedStats, err := c.loadDatabase(ctx, list)
	if err != nil {
		return fail(err)
	}
	result.Database = dbStats
	result.ClearedFlags = clearedStats

	batchStats, err := c.foldBatch(store, batchPath)
	if err != nil {
		return fail(err)
	}
	result.Batch = batchStats
	result.Records = store.Len()
	result.Live = len(store.Live())

	logger.Info(ctx, "Batch folded",
		adapters.String("source", result.Source),
		adapters.Int("records", batchStats.Records),
		adapters.Int("inserted", batchStats.Inserted),
		adapters.Int("updated", batchStats.Updated),
		adapters.Int("reactivated", batchStats.Reactivated))

	if dryRun {
		record(nil)
		return result, nil
	}

	err = c.DB.Replace(ctx, list, func(w io.Writer) error {
		return aper.Write(w, store)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %w", aper.ErrWriteDatabase, err))
	}
	result.Written = true

	now := c.Now()
	c.Metrics.ObserveSuccess(list, batchStats, result.Records, result.Live, now.Sub(start), now)
	record(nil)
	logger.Info(ctx, "Database written", adapters.String("path", result.Path), adapters.Int("live", result.Live))
	return result, nil
}

// LoadStore loads the database of list. A reply store also carries the
// cleared flags of the cleared list.
func (c *CommandContext) LoadStore(ctx context.Context, list aper.List) (*aper.Store, error) {
	store, _, _, err := c.loadDatabase(ctx, list)
	return store, err
}

func (c *CommandContext) loadDatabase(ctx context.Context, list aper.List) (*aper.Store, aper.MergeStats, *aper.MergeStats, error) {
	store := aper.NewStore(list)

	stats, err := c.loadFile(ctx, list, func(r io.Reader, source string) (aper.MergeStats, error) {
		return aper.LoadDatabase(store, r, source)
	})
	if err != nil {
		return nil, stats, nil, err
	}
	if list != aper.Reply {
		return store, stats, nil, nil
	}

	cleared, err := c.loadFile(ctx, aper.Cleared, func(r io.Reader, source string) (aper.MergeStats, error) {
		return aper.LoadClearedFlags(store, r, source)
	})
	if err != nil {
		return nil, stats, nil, err
	}
	return store, stats, &cleared, nil
}

func (c *CommandContext) loadFile(ctx context.Context, list aper.List, load func(io.Reader, string) (aper.MergeStats, error)) (aper.MergeStats, error) {
	rc, err := c.DB.Open(ctx, list)
	if err != nil {
		return aper.MergeStats{}, fmt.Errorf("%w: %w", aper.ErrLoadDatabase, err)
	}
	defer func() { _ = rc.Close() }()

	stats, err := load(rc, c.DB.Path(list))
	if err != nil {
		return stats, fmt.Errorf("%w: %w", aper.ErrLoadDatabase, err)
	}
	return stats, nil
}

func (c *CommandContext) foldBatch(store *aper.Store, batchPath string) (aper.MergeStats, error) {
	var r io.Reader = c.Stdin
	if !isStdin(batchPath) {
		f, err := os.Open(batchPath) // #nosec G304 -- User-provided path for CLI file operations, intended behavior
		if err != nil {
			return aper.MergeStats{}, fmt.Errorf("%w: %w: %s: %v", aper.ErrLoadBatch, aper.ErrBatchInputUnreadable, batchPath, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	stats, err := aper.FoldBatch(store, r, batchName(batchPath))
	if err != nil {
		return stats, fmt.Errorf("%w: %w", aper.ErrLoadBatch, err)
	}
	return stats, nil
}

// ExportCommand renders the live reply list as a Postfix table. An empty
// output or "-" writes to Stdout; anything else is replaced atomically.
func (c *CommandContext) ExportCommand(ctx context.Context, opts export.Options, output string) (*ExportResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if opts.Now.IsZero() {
		opts.Now = c.Now()
	}

	store, err := c.LoadStore(ctx, aper.Reply)
	if err != nil {
		return nil, err
	}
	addresses := export.Select(store, opts.MaxAge, opts.Now)

	result := &ExportResult{
		Format:  opts.Format,
		Output:  output,
		MaxAge:  opts.MaxAge,
		Entries: len(addresses),
	}

	render := func(w io.Writer) error { return export.Render(w, addresses, opts) }
	if isStdin(output) {
		result.Output = "stdout"
		return result, render(c.Stdout)
	}

	err = c.DB.ReplaceFile(ctx, output, render)
	event := &audit.Event{
		EventType: audit.EventMapExported,
		Path:      output,
		Result:    audit.ResultOf(err),
		Entries:   result.Entries,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	c.logAudit(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", output, err)
	}
	c.Logger.Info(ctx, "Exported postfix map",
		adapters.String("format", string(opts.Format)),
		adapters.String("path", output),
		adapters.Int("entries", result.Entries))
	return result, nil
}

// InitCommand creates empty database files for every list that has none.
// It returns the paths it created.
func (c *CommandContext) InitCommand(ctx context.Context) ([]string, error) {
	var created []string
	for _, list := range aper.Lists {
		ok, err := c.DB.Create(ctx, list)
		if err != nil {
			return created, fmt.Errorf("%w: %w", aper.ErrWriteDatabase, err)
		}
		if ok {
			created = append(created, c.DB.Path(list))
			c.logAudit(ctx, &audit.Event{
				EventType: audit.EventDatabaseCreated,
				List:      list.String(),
				Path:      c.DB.Path(list),
				Result:    audit.ResultSuccess,
			})
		}
	}
	return created, nil
}

// WatchOptions tunes the spool watcher.
type WatchOptions struct {
	Settle          time.Duration
	MergesPerSecond float64
}

// WatchCommand merges every batch file dropped into spoolDir into list
// until ctx is cancelled.
func (c *CommandContext) WatchCommand(ctx context.Context, list aper.List, spoolDir string, opts WatchOptions) error {
	if isStdin(spoolDir) {
		return fmt.Errorf("%w: %w", ErrUsage, ErrStdinBatch)
	}
	if opts.Settle < 0 {
		return fmt.Errorf("%w: %w", ErrUsage, watch.ErrNegativeSettle)
	}

	spool, err := watch.New(watch.Config{
		Dir:             spoolDir,
		Logger:          c.Logger.WithFields(adapters.String("list", list.String())),
		Settle:          opts.Settle,
		MergesPerSecond: opts.MergesPerSecond,
	}, func(ctx context.Context, path string) error {
		_, err := c.MergeCommand(ctx, list, path)
		if werr := c.writeMetrics(); werr != nil {
			c.Logger.Warn(ctx, "Failed to write metrics", adapters.Err(werr))
		}
		return err
	})
	if err != nil {
		return err
	}
	return spool.Run(ctx)
}

func isStdin(path string) bool {
	return path == "" || path == "-"
}

func batchName(path string) string {
	if isStdin(path) {
		return stdinName
	}
	return path
}
