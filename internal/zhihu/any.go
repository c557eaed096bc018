package zhihu

import (
	"encoding/json"
	"fmt"

	"webdl/internal/archive"
	"webdl/internal/store"
)

// KindAny names the entries of mixed listings. It is not a store kind: every entry is
// stored under its own kind.
const KindAny = "any"

// parseAny decodes a mixed listing entry tagged by its "type" field. Answers and
// articles are archived; any other type is skipped.
func parseAny(data json.RawMessage, raw *store.RawData) (store.Object, error) {
	var tag struct {
		Type string          `json:"type"`
		ID   json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decoding listing entry: %w", err)
	}
	var (
		obj store.Object
		err error
	)
	switch tag.Type {
	case KindAnswer:
		obj, err = parseAnswer(data, raw)
	case KindArticle:
		obj, err = parseArticle(data, raw)
	default:
		return nil, fmt.Errorf("%w: %s %s", archive.ErrSkipEntry, tag.Type, tag.ID)
	}
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// parseCollectionEntry decodes an entry of a collection listing, which wraps the item
// in a "content" field.
func parseCollectionEntry(data json.RawMessage, raw *store.RawData) (store.Object, error) {
	var w struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding collection entry: %w", err)
	}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil, fmt.Errorf("%w: collection entry without content", archive.ErrSkipEntry)
	}
	return parseAny(w.Content, raw)
}
