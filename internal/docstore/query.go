package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// InCollection reports whether path is a document directly inside collection.
func InCollection(path, collection string) bool {
	parent, _, err := Split(path)
	return err == nil && parent == collection
}

// Apply orders docs per q and truncates to q.Limit. Documents missing the
// order field sort first in ascending order. Ties fall back to document id.
func Apply(docs []Document, q Query) []Document {
	keys := make([]any, len(docs))
	if q.OrderBy != "" {
		for i, d := range docs {
			keys[i] = fieldOf(d.Data, q.OrderBy)
		}
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		da, db := docs[idx[a]], docs[idx[b]]
		c := 0
		if q.OrderBy != "" {
			c = compareValues(keys[idx[a]], keys[idx[b]])
		}
		if c == 0 {
			c = strings.Compare(da.ID, db.ID)
			// ids break ties in a fixed direction regardless of q.Direction
			return c < 0
		}
		if q.Direction == Desc {
			return c > 0
		}
		return c < 0
	})
	out := make([]Document, 0, len(docs))
	for _, i := range idx {
		out = append(out, docs[i])
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func fieldOf(data []byte, field string) any {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	raw, ok := fields[field]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return v
}

// compareValues orders nil < bool < number < time < string.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		return av.Compare(b.(time.Time))
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}
