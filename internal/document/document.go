// Package document defines the engine's domain entity and its on-disk
// encoding.
package document

import (
	"encoding/json"
	"fmt"
)

// Document is the engine's domain entity. Source is the only field the
// engine introspects, and only for Update/Upsert's merge step; every other
// field is round-tripped verbatim.
type Document struct {
	ID      string          `json:"id"`
	SortKey string          `json:"sort_key"`
	Slot    uint32          `json:"-"` // routing only, never persisted
	Version uint64          `json:"version"`
	Source  json.RawMessage `json:"source"`
}

// Encode serializes the document to the bytes stored in the KV adapter and
// appended to the replicated log. Slot is intentionally excluded: it is
// derived, not semantic.
func Encode(doc *Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}

	return b, nil
}

// Decode parses bytes previously produced by Encode.
func Decode(b []byte) (*Document, error) {
	var doc Document

	err := json.Unmarshal(b, &doc)
	if err != nil {
		return nil, fmt.Errorf("document: decode: %w", err)
	}

	return &doc, nil
}
