// Package docid derives the internal key (iid) and latch slot for a
// document from its caller-chosen (id, sort_key) pair.
package docid

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyID reports that the caller-chosen id was empty.
var ErrEmptyID = errors.New("docid: id is empty")

// IID is the deterministic byte key derived from (id, sort_key). It is used
// as the KV key and the index document key. Two documents collide on IID
// only if they share the same (id, sort_key) pair.
type IID []byte

// Encode derives the internal id for (id, sortKey). The encoding is a
// length-prefixed concatenation so that ("ab", "c") and ("a", "bc") never
// collide on the resulting key, even though their concatenation alone would.
func Encode(id, sortKey string) (IID, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	buf := make([]byte, 0, 4+len(id)+len(sortKey))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(id)))
	buf = append(buf, id...)
	buf = append(buf, sortKey...)

	return IID(buf), nil
}

// Slot derives the routing/latch-striping slot for an (id, sort_key) pair.
// It is never persisted as document semantics — only used to pick a latch
// stripe — so collisions across unrelated documents are harmless.
func Slot(id, sortKey string) uint32 {
	h := xxhash.New()
	_, _ = h.WriteString(id)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(sortKey)

	return uint32(h.Sum64())
}

// String renders the IID for logging/diagnostics. Not used as a lookup key.
func (i IID) String() string {
	return string(i)
}
