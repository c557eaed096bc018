package store

import "sort"

// ItemInfo is the per-item status. OnServer false is a tombstone: the item vanished from
// a container listing, its files are kept, and it is never fetched again as missing.
type ItemInfo struct {
	InStore  bool `yaml:"in_store"`
	OnServer bool `yaml:"on_server"`
}

// DefaultItemInfo is the status of an id the store has never seen.
var DefaultItemInfo = ItemInfo{InStore: false, OnServer: true}

// ObjectStatus is an item's status plus a "fetched" flag per associated container.
type ObjectStatus struct {
	ItemInfo   `yaml:",inline"`
	Containers map[string]bool `yaml:"containers,omitempty"`
}

// ObjectInfo maps kind -> id -> status for the whole store.
type ObjectInfo map[string]map[string]*ObjectStatus

func (o ObjectInfo) get(kind, id string) *ObjectStatus {
	return o[kind][id]
}

func (o ObjectInfo) ensure(kind, id string) *ObjectStatus {
	ids, ok := o[kind]
	if !ok {
		ids = make(map[string]*ObjectStatus)
		o[kind] = ids
	}
	st, ok := ids[id]
	if !ok {
		st = &ObjectStatus{ItemInfo: DefaultItemInfo}
		ids[id] = st
	}
	return st
}

// Kinds returns the kinds present, sorted.
func (o ObjectInfo) Kinds() []string {
	kinds := make([]string, 0, len(o))
	for k := range o {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// IDs returns the ids recorded for kind, sorted.
func (o ObjectInfo) IDs(kind string) []string {
	ids := make([]string, 0, len(o[kind]))
	for id := range o[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// KindCounts summarizes one kind for status output.
type KindCounts struct {
	Kind       string
	Total      int
	InStore    int
	Tombstoned int
	Containers int
}
