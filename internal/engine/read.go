package engine

import (
	"errors"
	"fmt"

	"github.com/ansjsun/docengine/internal/docid"
	"github.com/ansjsun/docengine/internal/document"
	"github.com/ansjsun/docengine/internal/kvstore"
	"github.com/ansjsun/docengine/internal/searchidx"
)

// Get looks up a document by (id, sort_key). No merge, no version check.
func (e *Engine) Get(id, sortKey string) (*document.Document, error) {
	iid, err := docid.Encode(id, sortKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	kv := e.kvHandle()
	if kv == nil {
		return nil, ErrEngineNotWritable
	}

	raw, err := kv.Get(iid)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	doc, err := document.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	return doc, nil
}

// Search delegates to the index adapter. Failures never propagate as a Go
// error; they come back as a structured response.
func (e *Engine) Search(req searchidx.SearchRequest) searchidx.SearchResponse {
	idx := e.indexHandle()
	if idx == nil {
		resp := searchidx.SearchResponse{
			Code: "ENGINE_NOT_WRITABLE",
			Info: "index handle is not loaded (follower role)",
		}
		e.metrics.Searches.WithLabelValues(resp.Code).Inc()

		return resp
	}

	resp := idx.Search(req)
	e.metrics.Searches.WithLabelValues(resp.Code).Inc()

	return resp
}
