package replog

import (
	"testing"
	"time"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()

	dir := t.TempDir()

	l, err := Open(Options{
		Dir:              dir,
		ServerID:         "node-1",
		BindAddr:         "node-1",
		HeartbeatTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = l.Release() })

	waitForLeader(t, l)

	return l
}

func waitForLeader(t *testing.T, l *Log) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if l.IsLeader() {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("timed out waiting for single-node raft to elect itself leader")
}

func TestAppendInvokesCallbackOnCommit(t *testing.T) {
	l := openTestLog(t)

	done := make(chan error, 1)

	idx, err := l.Append(Event{Kind: EventPut, Key: []byte("k1"), Value: []byte("v1")}, func(err error) {
		done <- err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if idx == 0 {
		t.Fatal("expected a non-zero log index")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("commit callback error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for commit callback")
	}
}

func TestBeginReadLogReplaysAppendedEvents(t *testing.T) {
	l := openTestLog(t)

	events := []Event{
		{Kind: EventPut, Key: []byte("a"), Value: []byte("1")},
		{Kind: EventPut, Key: []byte("b"), Value: []byte("2")},
		{Kind: EventDelete, Key: []byte("a")},
	}

	for _, e := range events {
		done := make(chan error, 1)

		if _, err := l.Append(e, func(err error) { done <- err }); err != nil {
			t.Fatalf("append: %v", err)
		}

		if err := <-done; err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	cursor, err := l.BeginReadLog(1)
	if err != nil {
		t.Fatalf("begin read log: %v", err)
	}
	defer cursor.EndReadLog()

	var decoded []Event

	for {
		_, _, data, finished, err := cursor.NextLog()
		if err != nil {
			t.Fatalf("next log: %v", err)
		}

		if finished {
			break
		}

		if data == nil {
			continue
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("decode event: %v", err)
		}

		decoded = append(decoded, ev)
	}

	if len(decoded) != len(events) {
		t.Fatalf("expected %d replayed events, got %d", len(events), len(decoded))
	}

	for i, ev := range decoded {
		if ev.Kind != events[i].Kind || string(ev.Key) != string(events[i].Key) {
			t.Fatalf("event %d mismatch: got %+v, want %+v", i, ev, events[i])
		}
	}
}

func TestWatchRoleChangesObservesLeadership(t *testing.T) {
	l := openTestLog(t)

	sink := &recordingSink{changes: make(chan bool, 4)}
	l.WatchRoleChanges(sink)

	select {
	case isLeader := <-sink.changes:
		if !isLeader {
			t.Fatal("expected the bootstrap node to become leader")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a role-change notification")
	}
}

type recordingSink struct {
	changes chan bool
}

func (r *recordingSink) RoleChange(isLeader bool) {
	r.changes <- isLeader
}
