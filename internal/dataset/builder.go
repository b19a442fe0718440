package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// Mirror receives every freshly built record set.
type Mirror interface {
	Replace(ctx context.Context, records []core.SearchRecord) error
}

// Builder scans the corpus directories once and serves the resulting records.
// Published record slices are never mutated.
type Builder struct {
	dir     string
	configs []Config
	maxRows int
	workers int
	mirror  Mirror

	group singleflight.Group
	scans atomic.Int64

	mu        sync.RWMutex
	loaded    bool
	loadedAt  time.Time
	records   []core.SearchRecord
	byDataset map[string][]core.SearchRecord

	// beforeScan runs at the start of every pass; tests use it to hold a pass open.
	beforeScan func()
}

// Option configures a Builder.
type Option func(*Builder)

// WithConfigs replaces the default corpus table.
func WithConfigs(configs []Config) Option {
	return func(b *Builder) { b.configs = configs }
}

// WithMaxRows caps rows (or JSON items) read per file.
func WithMaxRows(n int) Option {
	return func(b *Builder) { b.maxRows = n }
}

// WithWorkers bounds how many datasets are read concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithMirror copies each loaded record set to m.
func WithMirror(m Mirror) Option {
	return func(b *Builder) { b.mirror = m }
}

// NewBuilder creates a builder rooted at dir.
func NewBuilder(dir string, opts ...Option) *Builder {
	b := &Builder{
		dir:       dir,
		configs:   DefaultConfigs(),
		maxRows:   1000,
		workers:   4,
		byDataset: make(map[string][]core.SearchRecord),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load scans the corpora unless a scan already completed. Callers arriving
// while a scan is in flight wait for that scan instead of starting another.
func (b *Builder) Load(ctx context.Context) error {
	if b.Loaded() {
		return nil
	}
	_, err, shared := b.group.Do("load", func() (interface{}, error) {
		if b.Loaded() {
			return nil, nil
		}
		return nil, b.scan(context.WithoutCancel(ctx))
	})
	if shared {
		logger.DatasetDebug("Joined in-flight dataset load")
	}
	return err
}

// Reload drops the current records and scans again. A reload that arrives
// during an in-flight scan joins it.
func (b *Builder) Reload(ctx context.Context) error {
	_, err, _ := b.group.Do("load", func() (interface{}, error) {
		return nil, b.scan(context.WithoutCancel(ctx))
	})
	return err
}

// Loaded reports whether a scan has completed.
func (b *Builder) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// ScanCount is the number of filesystem passes performed so far.
func (b *Builder) ScanCount() int64 {
	return b.scans.Load()
}

// Records returns every loaded record.
func (b *Builder) Records() []core.SearchRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.records
}

// DatasetRecords returns the records of one dataset.
func (b *Builder) DatasetRecords(name string) []core.SearchRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byDataset[name]
}

func (b *Builder) scan(ctx context.Context) error {
	b.scans.Add(1)
	if b.beforeScan != nil {
		b.beforeScan()
	}
	started := time.Now()

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", core.ErrMissingCorpus, b.dir, err)
	}

	results := make([][]core.SearchRecord, len(b.configs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, cfg := range b.configs {
		g.Go(func() error {
			recs, err := b.loadOne(cfg)
			if err != nil {
				// one broken corpus must not sink the others
				logger.DatasetError("Error loading %s: %v", cfg.Name, err)
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var all []core.SearchRecord
	byDataset := make(map[string][]core.SearchRecord, len(b.configs))
	for i, recs := range results {
		all = append(all, recs...)
		byDataset[b.configs[i].Name] = recs
	}

	b.mu.Lock()
	b.records = all
	b.byDataset = byDataset
	b.loaded = true
	b.loadedAt = time.Now()
	b.mu.Unlock()

	logger.DatasetInfo("Loaded %d records from %d datasets in %s", len(all), len(b.configs), time.Since(started).Round(time.Millisecond))

	if b.mirror != nil && len(all) > 0 {
		if err := b.mirror.Replace(ctx, all); err != nil {
			logger.DatasetWarn("Mirror update failed: %v", err)
		}
	}
	return nil
}

func (b *Builder) loadOne(cfg Config) ([]core.SearchRecord, error) {
	dir := filepath.Join(b.dir, cfg.Name)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		logger.DatasetWarn("Dataset %s not found at %s; creating it empty", cfg.Name, dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMissingCorpus, err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", core.ErrMissingCorpus, dir)
	}

	recs, err := loadDataset(dir, cfg, b.maxRows)
	if err != nil {
		return nil, err
	}
	logger.DatasetInfo("Loaded %d records from %s", len(recs), cfg.Name)
	return recs, nil
}
