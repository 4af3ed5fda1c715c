package document

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustMerge(t *testing.T, oldSrc, newSrc string) map[string]any {
	t.Helper()

	merged, err := Merge(json.RawMessage(oldSrc), json.RawMessage(newSrc))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	var out map[string]any

	err = json.Unmarshal(merged, &out)
	if err != nil {
		t.Fatalf("decode merged: %v", err)
	}

	return out
}

func TestMergeDisjointKeysUnion(t *testing.T) {
	out := mustMerge(t, `{"x":1}`, `{"y":2}`)

	if out["x"] != float64(1) || out["y"] != float64(2) {
		t.Fatalf("expected union of disjoint keys, got %v", out)
	}
}

func TestMergeNewWinsOnConflict(t *testing.T) {
	out := mustMerge(t, `{"x":1}`, `{"x":2}`)

	if out["x"] != float64(2) {
		t.Fatalf("expected new value to win, got %v", out["x"])
	}
}

func TestMergeMissingNewKeyKeepsOld(t *testing.T) {
	// This is exactly the bug the spec calls out: a naive merge inserts a
	// null for "x" before recursing because newSource lacks it, which
	// would clobber the old value. The corrected rule keeps it.
	out := mustMerge(t, `{"x":1,"y":2}`, `{"y":3}`)

	if out["x"] != float64(1) {
		t.Fatalf("expected missing-from-new key to be preserved from old, got %v", out["x"])
	}

	if out["y"] != float64(3) {
		t.Fatalf("expected new value for shared key, got %v", out["y"])
	}
}

func TestMergeNestedObjects(t *testing.T) {
	out := mustMerge(t, `{"a":{"x":1,"z":9}}`, `{"a":{"x":2,"y":3}}`)

	want := map[string]any{
		"a": map[string]any{"x": float64(2), "y": float64(3), "z": float64(9)},
	}

	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("nested merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeScalarReplacesObject(t *testing.T) {
	out := mustMerge(t, `{"a":{"x":1}}`, `{"a":5}`)

	if out["a"] != float64(5) {
		t.Fatalf("expected scalar to replace object wholesale, got %v", out["a"])
	}
}

func TestMergeEmptyOldReturnsNew(t *testing.T) {
	merged, err := Merge(nil, json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatal(err)
	}

	if string(merged) != `{"x":1}` {
		t.Fatalf("expected new returned verbatim, got %s", merged)
	}
}
