// Package replog is the log adapter: append-with-callback, a replay
// cursor, and leader/follower role-change notification, backed by
// github.com/hashicorp/raft with github.com/hashicorp/raft-boltdb as its
// LogStore/StableStore.
//
// Cluster membership and RPC transport are not this package's concern —
// the coordinator only needs append/replay/role-change from it. Log runs
// a single-node raft group per partition over an in-memory transport,
// which is enough to drive the durability and commit-ordering semantics
// the coordinator depends on without building out a multi-node RPC layer
// that belongs to a higher layer.
package replog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// ErrNotLeader reports that Append was called on a node that is not
// currently the raft leader.
var ErrNotLeader = errors.New("replog: not leader")

// EventKind distinguishes the two mutation shapes the coordinator appends.
type EventKind uint8

const (
	// EventPut stores Key/Value.
	EventPut EventKind = iota
	// EventDelete removes Key.
	EventDelete
)

// Event is the payload appended to the log for one document mutation.
type Event struct {
	Kind  EventKind `json:"kind"`
	Key   []byte    `json:"key"`
	Value []byte    `json:"value,omitempty"`
}

// Encode serializes an Event for the raft log.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("replog: encode event: %w", err)
	}

	return b, nil
}

// DecodeEvent parses bytes previously produced by Event.Encode.
func DecodeEvent(b []byte) (Event, error) {
	var e Event

	err := json.Unmarshal(b, &e)
	if err != nil {
		return Event{}, fmt.Errorf("replog: decode event: %w", err)
	}

	return e, nil
}

// RoleSink receives role-change notifications. The coordinator implements
// this; Log holds only this non-owning interface, not a concrete
// *Engine, so the log adapter and the coordinator never import each
// other's concrete types.
type RoleSink interface {
	RoleChange(isLeader bool)
}

// noopFSM satisfies raft.FSM without applying anything: the coordinator
// applies mutations to KV/index itself (on the leader, before appending;
// on replay, by reading the log directly via a ReadCursor), so raft's own
// apply-on-every-node mechanism has no state to drive here.
type noopFSM struct{}

func (noopFSM) Apply(*raft.Log) any { return nil }

func (noopFSM) Snapshot() (raft.FSMSnapshot, error) {
	return noopSnapshot{}, nil
}

func (noopFSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

type noopSnapshot struct{}

func (noopSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (noopSnapshot) Release()                             {}

// Log wraps a single-node raft group for one partition.
type Log struct {
	raft      *raft.Raft
	logStore  *raftboltdb.BoltStore
	transport *raft.InmemTransport

	mu        sync.Mutex
	watching  bool
	stopWatch chan struct{}
}

// Options configures Open.
type Options struct {
	Dir              string
	ServerID         string
	BindAddr         string
	HeartbeatTimeout time.Duration
}

// Open bootstraps (if needed) and starts a single-node raft group rooted
// at Options.Dir.
func Open(opts Options) (*Log, error) {
	boltPath := filepath.Join(opts.Dir, "raft-log.bbolt")

	store, err := raftboltdb.NewBoltStore(boltPath)
	if err != nil {
		return nil, fmt.Errorf("replog: open log store: %w", err)
	}

	snaps := raft.NewInmemSnapshotStore()

	addr := raft.ServerAddress(opts.BindAddr)
	_, transport := raft.NewInmemTransport(addr)

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(opts.ServerID)

	if opts.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = opts.HeartbeatTimeout
		cfg.ElectionTimeout = opts.HeartbeatTimeout * 2
		// raft.ValidateConfig requires LeaderLeaseTimeout <= HeartbeatTimeout;
		// DefaultConfig's 500ms default only satisfies that against its own
		// 1s heartbeat, so a shorter heartbeat must bring this down with it.
		cfg.LeaderLeaseTimeout = opts.HeartbeatTimeout
	}

	hasState, err := raft.HasExistingState(store, store, snaps)
	if err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("replog: check existing state: %w", err)
	}

	r, err := raft.NewRaft(cfg, noopFSM{}, store, store, snaps, transport)
	if err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("replog: start raft: %w", err)
	}

	if !hasState {
		bootstrapCfg := raft.Configuration{
			Servers: []raft.Server{{
				ID:      cfg.LocalID,
				Address: addr,
			}},
		}

		future := r.BootstrapCluster(bootstrapCfg)
		if err := future.Error(); err != nil {
			return nil, fmt.Errorf("replog: bootstrap cluster: %w", err)
		}
	}

	return &Log{raft: r, logStore: store, transport: transport}, nil
}

// Append enqueues event and invokes callback exactly once, when the entry
// is durably committed (or fails). No timeout is applied to the wait for
// commit: a stuck log means a stuck write, and a caller wanting a bound
// must impose it at a higher layer. The returned
// index is the log position assigned to this entry, known as soon as it
// is enqueued, and is the watermark the coordinator compares against
// persisted sequence numbers during replay.
func (l *Log) Append(event Event, callback func(error)) (uint64, error) {
	payload, err := event.Encode()
	if err != nil {
		return 0, err
	}

	future := l.raft.Apply(payload, 10*time.Second)
	index := future.Index()

	go func() {
		callback(future.Error())
	}()

	return index, nil
}

// ReadCursor iterates committed log entries from a starting index,
// reading the local durable log directly — not a consensus read — since
// replay only ever runs against a node's own log.
type ReadCursor struct {
	store *raftboltdb.BoltStore
	next  uint64
	last  uint64
}

// BeginReadLog opens a cursor over entries [fromIndex, lastIndex].
func (l *Log) BeginReadLog(fromIndex uint64) (*ReadCursor, error) {
	last, err := l.logStore.LastIndex()
	if err != nil {
		return nil, fmt.Errorf("replog: last index: %w", err)
	}

	first, err := l.logStore.FirstIndex()
	if err != nil {
		return nil, fmt.Errorf("replog: first index: %w", err)
	}

	start := fromIndex
	if start < first {
		start = first
	}

	return &ReadCursor{store: l.logStore, next: start, last: last}, nil
}

// NextLog returns the next committed entry, or finished=true once the
// cursor has passed the last index captured at BeginReadLog time.
func (c *ReadCursor) NextLog() (term, index uint64, data []byte, finished bool, err error) {
	if c.next > c.last {
		return 0, 0, nil, true, nil
	}

	var entry raft.Log

	err = c.store.GetLog(c.next, &entry)
	if err != nil {
		return 0, 0, nil, false, fmt.Errorf("replog: get log %d: %w", c.next, err)
	}

	idx := c.next
	c.next++

	// Only LogCommand entries carry coordinator payloads; configuration
	// and no-op entries (e.g. the leader's initial empty-entry) have no
	// effect on replay and are skipped by returning empty data for them,
	// which the coordinator's replay loop treats as a no-op.
	if entry.Type != raft.LogCommand {
		return entry.Term, idx, nil, false, nil
	}

	return entry.Term, idx, entry.Data, false, nil
}

// EndReadLog releases the cursor. ReadCursor holds no external resources
// beyond the shared LogStore handle, so this is a no-op kept for parity
// with the spec's described interface.
func (c *ReadCursor) EndReadLog() error {
	return nil
}

// WatchRoleChanges forwards raft's leadership transitions to sink until
// the Log is released. Only one watcher may be active at a time.
func (l *Log) WatchRoleChanges(sink RoleSink) {
	l.mu.Lock()
	if l.watching {
		l.mu.Unlock()

		return
	}

	l.watching = true
	l.stopWatch = make(chan struct{})
	stop := l.stopWatch
	l.mu.Unlock()

	leaderCh := l.raft.LeaderCh()

	go func() {
		for {
			select {
			case isLeader, ok := <-leaderCh:
				if !ok {
					return
				}

				sink.RoleChange(isLeader)
			case <-stop:
				return
			}
		}
	}()
}

// IsLeader reports whether this node currently holds raft leadership.
func (l *Log) IsLeader() bool {
	return l.raft.State() == raft.Leader
}

// Release stops the watcher goroutine, shuts down raft, and closes the
// log store. The coordinator always calls this before releasing its own
// KV/index handles, so the log can never call back into a coordinator
// whose stores are mid-teardown.
func (l *Log) Release() error {
	l.mu.Lock()
	if l.watching {
		close(l.stopWatch)
		l.watching = false
	}
	l.mu.Unlock()

	shutdownErr := l.raft.Shutdown().Error()

	closeErr := l.logStore.Close()

	if shutdownErr != nil {
		return fmt.Errorf("replog: shutdown raft: %w", shutdownErr)
	}

	if closeErr != nil {
		return fmt.Errorf("replog: close log store: %w", closeErr)
	}

	return nil
}
