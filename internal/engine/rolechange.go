package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ansjsun/docengine/internal/document"
	"github.com/ansjsun/docengine/internal/kvstore"
	"github.com/ansjsun/docengine/internal/replog"
	"github.com/ansjsun/docengine/internal/searchidx"
)

// RoleChange implements replog.RoleSink: the log adapter calls this when
// raft's leadership status for this partition's single-node group
// changes. It is idempotent with respect to the engine's current role.
func (e *Engine) RoleChange(isLeader bool) {
	if isLeader == e.writable.Load() && e.kvHandle() != nil {
		return
	}

	e.latches.BeginTransition()
	defer e.latches.EndTransition()

	if isLeader {
		e.becomeLeader()
	} else {
		e.becomeFollower()
	}

	e.signalStartLatch()
}

func (e *Engine) becomeFollower() {
	e.writable.Store(false)

	e.mu.Lock()
	kv, idx := e.kv, e.index
	e.kv, e.index = nil, nil
	e.mu.Unlock()

	if kv != nil {
		if err := kv.Release(); err != nil {
			e.logger.Warn("release kv on follower transition", zap.Error(err))
		}
	}

	if idx != nil {
		if err := idx.Release(); err != nil {
			e.logger.Warn("release index on follower transition", zap.Error(err))
		}
	}
}

func (e *Engine) becomeLeader() {
	partitionDir := e.cfg.PartitionDir(e.collection, e.partition)

	kv, err := kvstore.Open(partitionDir)
	if err != nil {
		e.logger.Error("open kv on leader transition", zap.Error(err))

		return
	}

	idx, err := searchidx.Open(partitionDir)
	if err != nil {
		e.logger.Error("open index on leader transition", zap.Error(err))
		_ = kv.Release()

		return
	}

	kvSN, err := kv.GetSN()
	if err != nil {
		e.logger.Warn("read kv sn on leader transition", zap.Error(err))
	}

	indexSN, err := idx.GetSN()
	if err != nil {
		e.logger.Warn("read index sn on leader transition", zap.Error(err))
	}

	from := kvSN
	if indexSN < from {
		from = indexSN
	}

	err = e.replay(kv, idx, from+1, kvSN, indexSN)
	if err != nil {
		e.logger.Error("replay on leader transition", zap.Error(err))
		_ = kv.Release()
		_ = idx.Release()

		return
	}

	e.mu.Lock()
	e.kv, e.index = kv, idx
	e.mu.Unlock()

	e.writable.Store(true)

	e.logger.Info("became leader", zap.Uint64("replay_from", from+1))
}

// replay walks the log from fromIndex onward, applying Put and Delete
// entries to both stores. Each store's local watermark (kvSN/indexSN,
// seeded from what it has already persisted) gates whether an entry is
// re-applied, making the replay idempotent. Both Put and Delete entries
// are re-applied under this gating — skipping either branch would leave
// one store out of sync with the other after a partial replay.
func (e *Engine) replay(kv *kvstore.Store, idx *searchidx.Index, fromIndex, kvSN, indexSN uint64) error {
	cursor, err := e.log.BeginReadLog(fromIndex)
	if err != nil {
		return fmt.Errorf("begin read log: %w", err)
	}
	defer cursor.EndReadLog()

	var lastIndex uint64

	for {
		_, index, data, finished, err := cursor.NextLog()
		if err != nil {
			return fmt.Errorf("next log: %w", err)
		}

		if finished {
			break
		}

		lastIndex = index

		if len(data) == 0 {
			continue
		}

		event, err := replog.DecodeEvent(data)
		if err != nil {
			return fmt.Errorf("decode event at index %d: %w", index, err)
		}

		if err := e.applyReplayEvent(kv, idx, event, index, kvSN, indexSN); err != nil {
			return err
		}

		e.SetSNIfMax(index)
		e.metrics.ReplayProgress.Set(float64(index))
	}

	if lastIndex > 0 {
		e.SetSNIfMax(lastIndex)
	}

	return nil
}

func (e *Engine) applyReplayEvent(kv *kvstore.Store, idx *searchidx.Index, event replog.Event, index, kvSN, indexSN uint64) error {
	switch event.Kind {
	case replog.EventPut:
		if kvSN < index {
			if err := kv.Put(event.Key, event.Value); err != nil {
				return fmt.Errorf("replay put at index %d: %w", index, err)
			}
		}

		if indexSN < index {
			doc, err := document.Decode(event.Value)
			if err != nil {
				return fmt.Errorf("replay decode document at index %d: %w", index, err)
			}

			if err := idx.Write(string(event.Key), doc.Source); err != nil {
				return fmt.Errorf("replay index write at index %d: %w", index, err)
			}
		}
	case replog.EventDelete:
		if kvSN < index {
			if err := kv.Delete(event.Key); err != nil {
				return fmt.Errorf("replay delete at index %d: %w", index, err)
			}
		}

		if indexSN < index {
			if err := idx.Delete(string(event.Key)); err != nil {
				return fmt.Errorf("replay index delete at index %d: %w", index, err)
			}
		}
	}

	return nil
}
