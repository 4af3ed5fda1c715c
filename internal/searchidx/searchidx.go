// Package searchidx is an inverted index over document source, backed by
// github.com/blevesearch/bleve. The index is a derived view: a write
// failure here never rolls back the KV write that already happened.
package searchidx

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve"
)

const snInternalKey = "docengine_sn"

// Index wraps a single bleve index for one partition.
type Index struct {
	bleve bleve.Index
	path  string
}

// Open creates (if needed) and opens the bleve index at <dir>/index.bleve
// using bleve's default dynamic mapping — no schema is enforced on Source
// beyond it being a JSON object.
func Open(dir string) (*Index, error) {
	path := dir + "/index.bleve"

	idx, err := bleve.Open(path)
	if err == nil {
		return &Index{bleve: idx, path: path}, nil
	}

	mapping := bleve.NewIndexMapping()

	idx, err = bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("searchidx: open %s: %w", path, err)
	}

	return &Index{bleve: idx, path: path}, nil
}

// Write decodes the document's source bytes and indexes the resulting
// fields under iid, replacing any prior entry for the same key.
func (x *Index) Write(iid string, sourceJSON []byte) error {
	var fields map[string]any

	err := json.Unmarshal(sourceJSON, &fields)
	if err != nil {
		return fmt.Errorf("searchidx: decode source for %q: %w", iid, err)
	}

	err = x.bleve.Index(iid, fields)
	if err != nil {
		return fmt.Errorf("searchidx: index %q: %w", iid, err)
	}

	return nil
}

// Delete removes iid from the index. Deleting an absent key is not an
// error; bleve treats it as a no-op.
func (x *Index) Delete(iid string) error {
	err := x.bleve.Delete(iid)
	if err != nil {
		return fmt.Errorf("searchidx: delete %q: %w", iid, err)
	}

	return nil
}

// Flush has no batch to force through — bleve commits each Index/Delete
// synchronously — but it is still the durability point the coordinator's
// flush loop calls before persisting sn.
func (x *Index) Flush() error {
	return nil
}

// Count returns the number of documents currently indexed.
func (x *Index) Count() (uint64, error) {
	n, err := x.bleve.DocCount()
	if err != nil {
		return 0, fmt.Errorf("searchidx: count: %w", err)
	}

	return n, nil
}

// SearchRequest is the engine's search input.
type SearchRequest struct {
	Query string
	Size  int
	From  int
}

// Hit is a single search result.
type Hit struct {
	ID    string
	Score float64
}

// SearchResponse is returned verbatim to the caller, even on failure — a
// failed search never propagates as a transport-level error.
type SearchResponse struct {
	Code  string
	Total uint64
	Hits  []Hit
	Info  string
}

// Search delegates to bleve's query string query. On failure it returns a
// structured error response instead of an error.
func (x *Index) Search(req SearchRequest) SearchResponse {
	query := bleve.NewQueryStringQuery(req.Query)
	sr := bleve.NewSearchRequestOptions(query, clampSize(req.Size), req.From, false)

	result, err := x.bleve.Search(sr)
	if err != nil {
		return SearchResponse{
			Code: "INTERNAL",
			Info: fmt.Sprintf("search failed: %v", err),
		}
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}

	return SearchResponse{
		Code:  "OK",
		Total: result.Total,
		Hits:  hits,
	}
}

func clampSize(size int) int {
	if size <= 0 {
		return 10
	}

	return size
}

// WriteSN persists the coordinator-authored sequence number into bleve's
// internal key-value slot, alongside the index's own data.
func (x *Index) WriteSN(sn uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sn)

	err := x.bleve.SetInternal([]byte(snInternalKey), buf[:])
	if err != nil {
		return fmt.Errorf("searchidx: write sn: %w", err)
	}

	return nil
}

// GetSN returns the last persisted sequence number, or 0 if none has ever
// been written.
func (x *Index) GetSN() (uint64, error) {
	v, err := x.bleve.GetInternal([]byte(snInternalKey))
	if err != nil {
		return 0, fmt.Errorf("searchidx: get sn: %w", err)
	}

	if len(v) != 8 {
		return 0, nil
	}

	return binary.BigEndian.Uint64(v), nil
}

// Release closes the underlying bleve index handle.
func (x *Index) Release() error {
	if x.bleve == nil {
		return nil
	}

	err := x.bleve.Close()
	x.bleve = nil

	if err != nil {
		return fmt.Errorf("searchidx: release: %w", err)
	}

	return nil
}
