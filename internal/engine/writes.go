package engine

import (
	"errors"
	"fmt"

	"github.com/ansjsun/docengine/internal/docid"
	"github.com/ansjsun/docengine/internal/document"
	"github.com/ansjsun/docengine/internal/kvstore"
	"github.com/ansjsun/docengine/internal/replog"
)

// WriteMode selects one of the five write-state-machine branches.
type WriteMode int

const (
	Overwrite WriteMode = iota
	Create
	Update
	Upsert
	Delete
)

func (m WriteMode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case Create:
		return "create"
	case Update:
		return "update"
	case Upsert:
		return "upsert"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// WriteRequest is the engine's write input.
type WriteRequest struct {
	Doc  document.Document
	Mode WriteMode
}

// Write runs the full write state machine: latch the document's slot,
// check writability, dispatch to the per-mode handler, and commit.
func (e *Engine) Write(req WriteRequest) (err error) {
	defer func() {
		e.metrics.Writes.WithLabelValues(req.Mode.String(), Code(err)).Inc()
	}()

	iid, err := docid.Encode(req.Doc.ID, req.Doc.SortKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	slot := docid.Slot(req.Doc.ID, req.Doc.SortKey)

	guard := e.latches.Lock(slot)
	defer guard.Unlock()

	if e.readonly || !e.writable.Load() {
		return ErrEngineNotWritable
	}

	switch req.Mode {
	case Create:
		return e.handleCreate(iid, req.Doc)
	case Overwrite:
		return e.handleOverwrite(iid, req.Doc)
	case Update:
		return e.handleUpdate(iid, req.Doc)
	case Upsert:
		return e.handleUpsert(iid, req.Doc)
	case Delete:
		return e.commitDelete(iid)
	default:
		return fmt.Errorf("%w: unknown write mode %d", ErrMalformedDocument, req.Mode)
	}
}

// handleCreate fails AlreadyExists if iid is already present. It does not
// alias to Overwrite: the existence check always runs.
func (e *Engine) handleCreate(iid docid.IID, doc document.Document) error {
	kv := e.kvHandle()
	if kv == nil {
		return ErrEngineNotWritable
	}

	_, err := kv.Get(iid)

	switch {
	case err == nil:
		return ErrAlreadyExists
	case errors.Is(err, kvstore.ErrNotFound):
		doc.Version = 1

		return e.commitPut(iid, &doc)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

// handleOverwrite unconditionally resets version to 1.
func (e *Engine) handleOverwrite(iid docid.IID, doc document.Document) error {
	doc.Version = 1

	return e.commitPut(iid, &doc)
}

// handleUpdate requires iid to already exist, enforces an optional
// optimistic-concurrency check, merges source, and bumps version by
// exactly one relative to the stored document's current version.
func (e *Engine) handleUpdate(iid docid.IID, doc document.Document) error {
	kv := e.kvHandle()
	if kv == nil {
		return ErrEngineNotWritable
	}

	raw, err := kv.Get(iid)
	if errors.Is(err, kvstore.ErrNotFound) {
		return ErrNotFound
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	old, err := document.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	if doc.Version > 0 && old.Version != doc.Version {
		return ErrVersionMismatch
	}

	merged, err := document.Merge(old.Source, doc.Source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	doc.Source = merged
	doc.Version = old.Version + 1

	return e.commitPut(iid, &doc)
}

// handleUpsert merges into the existing document if present, otherwise
// behaves like a fresh Create without the existence check.
func (e *Engine) handleUpsert(iid docid.IID, doc document.Document) error {
	kv := e.kvHandle()
	if kv == nil {
		return ErrEngineNotWritable
	}

	raw, err := kv.Get(iid)

	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		doc.Version = 1

		return e.commitPut(iid, &doc)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	old, err := document.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	merged, err := document.Merge(old.Source, doc.Source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	doc.Source = merged
	doc.Version = old.Version + 1

	return e.commitPut(iid, &doc)
}

// commitFuture is the one-shot promise a write blocks on until the log
// adapter's commit callback fires. It is a standalone type so a higher
// layer could later race it against a context deadline without changing
// the coordinator itself.
type commitFuture struct {
	done chan error
}

func newCommitFuture() *commitFuture {
	return &commitFuture{done: make(chan error, 1)}
}

func (f *commitFuture) complete(err error) {
	f.done <- err
}

func (f *commitFuture) wait() error {
	return <-f.done
}

// commitPut runs the commit (put) path: KV, then index, then log-append,
// then block for the commit callback. A KV or index error aborts before
// the log append; a log-append failure is surfaced but does not roll back
// the stores already written — replay on the next leader transition
// reconciles the view.
func (e *Engine) commitPut(iid docid.IID, doc *document.Document) error {
	encoded, err := document.Encode(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	kv := e.kvHandle()
	idx := e.indexHandle()

	if kv == nil || idx == nil {
		return ErrEngineNotWritable
	}

	err = kv.Put(iid, encoded)
	if err != nil {
		return fmt.Errorf("%w: kv put: %v", ErrInternal, err)
	}

	err = idx.Write(string(iid), doc.Source)
	if err != nil {
		return fmt.Errorf("%w: index write: %v", ErrInternal, err)
	}

	return e.appendAndWait(replog.Event{Kind: replog.EventPut, Key: iid, Value: encoded})
}

// commitDelete is the delete counterpart of commitPut.
func (e *Engine) commitDelete(iid docid.IID) error {
	kv := e.kvHandle()
	idx := e.indexHandle()

	if kv == nil || idx == nil {
		return ErrEngineNotWritable
	}

	err := kv.Delete(iid)
	if err != nil {
		return fmt.Errorf("%w: kv delete: %v", ErrInternal, err)
	}

	err = idx.Delete(string(iid))
	if err != nil {
		return fmt.Errorf("%w: index delete: %v", ErrInternal, err)
	}

	return e.appendAndWait(replog.Event{Kind: replog.EventDelete, Key: iid})
}

func (e *Engine) appendAndWait(event replog.Event) error {
	fut := newCommitFuture()

	var committedIndex uint64

	committedIndex, err := e.log.Append(event, func(applyErr error) {
		if applyErr == nil {
			e.SetSNIfMax(committedIndex)
		}

		fut.complete(applyErr)
	})
	if err != nil {
		return fmt.Errorf("%w: log append: %v", ErrInternal, err)
	}

	err = fut.wait()
	if err != nil {
		return fmt.Errorf("%w: log commit: %v", ErrInternal, err)
	}

	return nil
}
