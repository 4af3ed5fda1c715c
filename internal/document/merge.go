package document

import (
	"encoding/json"
	"fmt"
)

// Merge deep-merges newSource on top of oldSource: for object/object pairs
// it recurses key by key; for any other pair the new value replaces the
// old one. A key present only in oldSource is carried over untouched.
//
// A naive implementation inserts a null for every key the new side lacks
// before recursing, which lets old-side values get clobbered by a
// synthesized null they were never meant to touch. Here, a key missing
// from newSource is left alone — it is read from oldSource, never from a
// synthesized null.
//
// This is implemented directly against encoding/json rather than adapted
// from a generic deep-merge library: dario.cat/mergo's WithOverride merges
// struct fields non-recursively-by-default and has no concept of "new
// wins, but fall back to old for absent keys" over arbitrary JSON trees.
func Merge(oldSource, newSource json.RawMessage) (json.RawMessage, error) {
	if len(oldSource) == 0 {
		return newSource, nil
	}

	if len(newSource) == 0 {
		return oldSource, nil
	}

	var oldVal, newVal any

	err := json.Unmarshal(oldSource, &oldVal)
	if err != nil {
		return nil, fmt.Errorf("document: merge: decode old source: %w", err)
	}

	err = json.Unmarshal(newSource, &newVal)
	if err != nil {
		return nil, fmt.Errorf("document: merge: decode new source: %w", err)
	}

	merged := mergeValue(oldVal, newVal)

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("document: merge: encode result: %w", err)
	}

	return out, nil
}

// mergeValue implements the field-wise recursion. New always wins except
// for keys absent from the new object, which fall back to old.
func mergeValue(oldVal, newVal any) any {
	oldObj, oldIsObj := oldVal.(map[string]any)
	newObj, newIsObj := newVal.(map[string]any)

	if !oldIsObj || !newIsObj {
		return newVal
	}

	merged := make(map[string]any, len(oldObj)+len(newObj))

	for k, v := range oldObj {
		merged[k] = v
	}

	for k, newChild := range newObj {
		oldChild, hadOld := oldObj[k]
		if hadOld {
			merged[k] = mergeValue(oldChild, newChild)
		} else {
			merged[k] = newChild
		}
	}

	return merged
}
