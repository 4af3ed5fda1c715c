// Package engine is the coordinator: the write state machine, role-change
// and recovery replay, background flush loop, and read paths gluing the
// KV store, index and log together for one (collection, partition) pair.
// It is the dominant component of this repository, as it is of the
// system it describes.
package engine

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ansjsun/docengine/internal/config"
	"github.com/ansjsun/docengine/internal/kvstore"
	"github.com/ansjsun/docengine/internal/latch"
	"github.com/ansjsun/docengine/internal/logging"
	"github.com/ansjsun/docengine/internal/metrics"
	"github.com/ansjsun/docengine/internal/replog"
	"github.com/ansjsun/docengine/internal/searchidx"
)

// Engine is the per-partition document engine. One instance exists per
// (collection, partition) pair for the lifetime of the process.
type Engine struct {
	cfg        config.Config
	collection string
	partition  uint32
	serverID   string
	readonly   bool

	logger  *zap.Logger
	metrics *metrics.Metrics
	latches *latch.Table
	log     *replog.Log

	// kv and index are guarded by mu: nil while in follower role (both the KV
	// and index handles are released so a stale follower never serves or
	// accepts writes), non-nil while leading.
	mu    sync.RWMutex
	kv    *kvstore.Store
	index *searchidx.Index

	// maxSN is guarded by its own reader-writer lock, separate from mu:
	// SetSNIfMax takes the write lock (on every committed write and every
	// replayed entry), GetSN takes the read lock.
	snMu  sync.RWMutex
	maxSN uint64

	started  atomic.Bool
	writable atomic.Bool
	stopped  atomic.Bool

	flushStop chan struct{}
	flushDone chan struct{}

	startLatchOnce sync.Once
	startLatch     chan struct{}
}

// New constructs and starts the engine for (collection, partition): it
// opens the log adapter, subscribes to its role-change notifications, and
// (unless readonly) starts the background flush loop. KV and index handles
// are opened lazily, by the first role_change(true) call the log delivers.
func New(cfg config.Config, readonly bool, collection string, partition uint32, serverID string, startLatch chan struct{}) (*Engine, error) {
	logger, err := logging.New(collection, partition, serverID)
	if err != nil {
		return nil, err
	}

	slots := cfg.LatchSlots
	if slots <= 0 {
		slots = latch.DefaultSlots
	}

	partitionDir := cfg.PartitionDir(collection, partition)

	err = os.MkdirAll(partitionDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("engine: create partition dir %s: %w", partitionDir, err)
	}

	logAdapter, err := replog.Open(replog.Options{
		Dir:              partitionDir,
		ServerID:         serverID,
		BindAddr:         cfg.RaftBindAddr,
		HeartbeatTimeout: cfg.RaftHeartbeatTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open log adapter: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		collection: collection,
		partition:  partition,
		serverID:   serverID,
		readonly:   readonly,
		logger:     logger,
		metrics:    metrics.New(collection, partition),
		latches:    latch.New(slots),
		log:        logAdapter,
		flushStop:  make(chan struct{}),
		flushDone:  make(chan struct{}),
		startLatch: startLatch,
	}

	e.started.Store(true)
	e.log.WatchRoleChanges(e)

	if !readonly {
		go e.runFlushLoop()
	} else {
		close(e.flushDone)
	}

	return e, nil
}

func (e *Engine) kvHandle() *kvstore.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.kv
}

func (e *Engine) indexHandle() *searchidx.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.index
}

// GetSN returns the highest sequence number the coordinator has observed.
func (e *Engine) GetSN() uint64 {
	e.snMu.RLock()
	defer e.snMu.RUnlock()

	return e.maxSN
}

// SetSNIfMax performs a CAS-like monotonic update: sn is only adopted if
// it exceeds the currently tracked maximum.
func (e *Engine) SetSNIfMax(sn uint64) {
	e.snMu.Lock()
	defer e.snMu.Unlock()

	if sn > e.maxSN {
		e.maxSN = sn
	}
}

func (e *Engine) signalStartLatch() {
	if e.startLatch == nil {
		return
	}

	e.startLatchOnce.Do(func() {
		close(e.startLatch)
	})
}

// Stop halts the background flush loop. It does not release the KV, index
// or log handles — call Release for that, after Stop returns.
func (e *Engine) Stop() {
	if e.stopped.Swap(true) {
		return
	}

	if !e.readonly {
		close(e.flushStop)
		<-e.flushDone
	}
}

// Release tears down the engine's collaborators. The log adapter is
// stopped first, then the KV/index handles: the log must not be left able
// to call back into a coordinator whose stores are mid-teardown.
func (e *Engine) Release() error {
	logErr := e.log.Release()

	e.mu.Lock()
	kv, idx := e.kv, e.index
	e.kv, e.index = nil, nil
	e.mu.Unlock()

	var kvErr, idxErr error

	if kv != nil {
		kvErr = kv.Release()
	}

	if idx != nil {
		idxErr = idx.Release()
	}

	switch {
	case logErr != nil:
		return fmt.Errorf("engine: release log: %w", logErr)
	case kvErr != nil:
		return fmt.Errorf("engine: release kv: %w", kvErr)
	case idxErr != nil:
		return fmt.Errorf("engine: release index: %w", idxErr)
	default:
		return nil
	}
}

// Count returns the KV's estimated document count and the index's count.
// Callers decide which to trust.
func (e *Engine) Count() (kvCount, indexCount uint64, err error) {
	kv := e.kvHandle()
	idx := e.indexHandle()

	if kv == nil || idx == nil {
		return 0, 0, ErrEngineNotWritable
	}

	kvCount, err = kv.Count()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: kv count: %v", ErrInternal, err)
	}

	indexCount, err = idx.Count()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: index count: %v", ErrInternal, err)
	}

	return kvCount, indexCount, nil
}

// RegisterMetrics registers this engine's Prometheus collectors with reg.
// The caller owns the registry and decides where to serve it.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) {
	e.metrics.MustRegister(reg)
}

func (e *Engine) flushIntervalOrDefault() time.Duration {
	d := e.cfg.FlushSleep()
	if d <= 0 {
		return 3 * time.Second
	}

	return d
}
