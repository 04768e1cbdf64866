package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the storage directory.
	Dir string

	// InMemory keeps all data in memory (Dir is ignored).
	InMemory bool

	// GCInterval is the interval between value-log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio that triggers a value-log rewrite.
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   64 << 20, // 64MB
	}
}

// BadgerStore implements ResourceStore on Badger v3.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	closed     atomic.Bool

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsGCRuns       prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ ResourceStore = (*BadgerStore)(nil)

// NewBadgerStore opens a Badger database and starts its GC loop.
func NewBadgerStore(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(&badgerLogger{logger: logger})
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}
	if cfg.CacheSize > 0 {
		opts = opts.WithBlockCacheSize(cfg.CacheSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.gcLoop()

	logger.Info("badger store opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "gc_interval", cfg.GCInterval)
	return s, nil
}

// Get implements ResourceStore.
func (s *BadgerStore) Get(ctx context.Context, owner, uri string) (*Resource, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ResourceKey(owner, uri)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeResource(value)
}

// Set implements ResourceStore.
func (s *BadgerStore) Set(ctx context.Context, owner, uri string, r *Resource) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := encodeResource(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(ResourceKey(owner, uri)), data)
	})
}

// Delete implements ResourceStore.
func (s *BadgerStore) Delete(ctx context.Context, owner, uri string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	key := []byte(ResourceKey(owner, uri))
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// List implements ResourceStore.
func (s *BadgerStore) List(ctx context.Context, owner, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	scan := OwnerPrefix(owner)
	if prefix != "" {
		scan = ResourceKey(owner, prefix)
	}

	var uris []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(scan)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			uris = append(uris, URIFromKey(owner, string(it.Item().Key())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(uris)
	return uris, nil
}

// GC rewrites value-log files until nothing is left to reclaim and returns
// the number of rewrites.
func (s *BadgerStore) GC(ctx context.Context) (int, error) {
	runs := 0
	for ctx.Err() == nil {
		if err := s.db.RunValueLogGC(s.cfg.GCThreshold); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}
	s.lastGCTime.Store(time.Now().UnixMilli())
	if s.metricsGCRuns != nil {
		s.metricsGCRuns.Add(float64(runs))
	}
	return runs, nil
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	s.logger.Info("badger store closed")
	return nil
}

// RegisterMetrics registers Badger gauges with registry and starts
// refreshing them.
func (s *BadgerStore) RegisterMetrics(registry prometheus.Registerer) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lime",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lime",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lime",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by garbage collection",
	})
	registry.MustRegister(s.metricsLSMSize, s.metricsValueLogSize, s.metricsGCRuns)
	s.refreshMetrics()
	return s
}

func (s *BadgerStore) refreshMetrics() {
	if s.metricsLSMSize == nil || s.closed.Load() {
		return
	}
	lsm, vlog := s.db.Size()
	s.metricsLSMSize.Set(float64(lsm))
	s.metricsValueLogSize.Set(float64(vlog))
}

// gcLoop runs periodic garbage collection and refreshes metrics.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()
			s.refreshMetrics()
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
