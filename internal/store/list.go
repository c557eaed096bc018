package store

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ItemKey identifies an item by kind and id.
type ItemKey struct {
	Kind string
	ID   string
}

func (k ItemKey) String() string { return k.Kind + "/" + k.ID }

// ItemList is the unordered set of children a container holds.
// It is persisted as a mapping kind -> sorted ids.
type ItemList struct {
	items map[ItemKey]struct{}
}

// NewItemList returns an empty list.
func NewItemList() *ItemList {
	return &ItemList{items: make(map[ItemKey]struct{})}
}

func (l *ItemList) Add(k ItemKey)      { l.items[k] = struct{}{} }
func (l *ItemList) Remove(k ItemKey)   { delete(l.items, k) }
func (l *ItemList) Len() int           { return len(l.items) }
func (l *ItemList) Has(k ItemKey) bool { _, ok := l.items[k]; return ok }

// Clone returns an independent copy.
func (l *ItemList) Clone() *ItemList {
	c := NewItemList()
	for k := range l.items {
		c.items[k] = struct{}{}
	}
	return c
}

// Keys returns the members ordered by kind, then id.
func (l *ItemList) Keys() []ItemKey {
	keys := make([]ItemKey, 0, len(l.items))
	for k := range l.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// MarshalYAML writes kind: [ids].
func (l *ItemList) MarshalYAML() (interface{}, error) {
	out := make(map[string][]string)
	for _, k := range l.Keys() {
		out[k.Kind] = append(out[k.Kind], k.ID)
	}
	return out, nil
}

// UnmarshalYAML reads kind: [ids].
func (l *ItemList) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string][]string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decoding item list: %w", err)
	}
	l.items = make(map[ItemKey]struct{})
	for kind, ids := range raw {
		for _, id := range ids {
			l.items[ItemKey{Kind: kind, ID: id}] = struct{}{}
		}
	}
	return nil
}
