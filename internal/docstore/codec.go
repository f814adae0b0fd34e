package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode marshals a document value. Values must encode to a JSON object.
func Encode(v any) ([]byte, error) {
	if raw, ok := v.([]byte); ok {
		v = json.RawMessage(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, fmt.Errorf("encode document: value is not an object")
	}
	return data, nil
}

// MergeFields overlays the top-level fields of patch onto base. A nil base
// yields patch unchanged.
func MergeFields(base, patch []byte) ([]byte, error) {
	if base == nil {
		return patch, nil
	}
	var dst map[string]json.RawMessage
	if err := json.Unmarshal(base, &dst); err != nil {
		return nil, fmt.Errorf("merge base: %w", err)
	}
	var src map[string]json.RawMessage
	if err := json.Unmarshal(patch, &src); err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}
	if dst == nil {
		dst = make(map[string]json.RawMessage, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return json.Marshal(dst)
}

// Resolve produces the bytes a Write leaves behind given the current data.
// It returns nil for deletes.
func Resolve(w Write, current []byte) ([]byte, error) {
	if w.Delete {
		return nil, nil
	}
	data, err := Encode(w.Value)
	if err != nil {
		return nil, err
	}
	if w.Merge {
		return MergeFields(current, data)
	}
	return data, nil
}

func decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
