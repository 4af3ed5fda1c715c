package searchidx

import "testing"

func openTestIndex(t *testing.T) *Index {
	t.Helper()

	dir := t.TempDir()

	idx, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = idx.Release() })

	return idx
}

func TestWriteAndSearch(t *testing.T) {
	idx := openTestIndex(t)

	err := idx.Write("doc-1", []byte(`{"title":"hello world"}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	resp := idx.Search(SearchRequest{Query: "title:hello", Size: 10})
	if resp.Code != "OK" {
		t.Fatalf("expected OK, got %s (%s)", resp.Code, resp.Info)
	}

	if resp.Total == 0 {
		t.Fatalf("expected at least one hit")
	}
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	idx := openTestIndex(t)

	err := idx.Write("doc-1", []byte(`{"title":"hello world"}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = idx.Delete("doc-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, err := idx.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	if n != 0 {
		t.Fatalf("expected 0 documents after delete, got %d", n)
	}
}

func TestSearchErrorReturnsStructuredResponse(t *testing.T) {
	idx := openTestIndex(t)

	// An unbalanced quote is rejected by bleve's query string parser.
	resp := idx.Search(SearchRequest{Query: `title:"unterminated`})
	if resp.Code != "INTERNAL" {
		t.Fatalf("expected INTERNAL code for a malformed query, got %s", resp.Code)
	}

	if resp.Info == "" {
		t.Fatal("expected a diagnostic message in Info")
	}
}

func TestSequenceNumberRoundTrip(t *testing.T) {
	idx := openTestIndex(t)

	sn, err := idx.GetSN()
	if err != nil {
		t.Fatalf("get sn: %v", err)
	}

	if sn != 0 {
		t.Fatalf("expected sn 0 before any write, got %d", sn)
	}

	err = idx.WriteSN(7)
	if err != nil {
		t.Fatalf("write sn: %v", err)
	}

	sn, err = idx.GetSN()
	if err != nil {
		t.Fatalf("get sn: %v", err)
	}

	if sn != 7 {
		t.Fatalf("expected sn 7, got %d", sn)
	}
}
