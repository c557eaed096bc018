package store

import "path/filepath"

// ContainerHandle is one fetch pass over a container's item list.
// It is open after AddContainer and terminal after Finish.
type ContainerHandle struct {
	store    *Store
	kind     string
	id       string
	relation string
	path     string
	items    *ItemList
	// absent starts as the previous list; whatever is not linked again is missing upstream.
	absent   *ItemList
	finished bool
}

// Path returns the container directory.
func (h *ContainerHandle) Path() string { return h.path }

// LinkItem records kind/id as present in this pass and links it under the container as
// <relation>/<kind>/<id>. A previously tombstoned item is marked on server again.
func (h *ContainerHandle) LinkItem(kind, id string) error {
	if h.finished {
		return ErrHandleFinished
	}
	key := ItemKey{Kind: kind, ID: id}
	h.items.Add(key)
	h.absent.Remove(key)
	h.store.SetOnServer(kind, id, true)

	dest := filepath.Join(h.path, kind, id)
	return LinkPath(h.store.ItemPath(kind, id), dest, true)
}

// MarkMissing tombstones every item of the previous list that was not linked in this
// pass. Tombstoned items stay in the list and their files and links are kept.
// It returns the keys that were on the server until now.
func (h *ContainerHandle) MarkMissing() ([]ItemKey, error) {
	if h.finished {
		return nil, ErrHandleFinished
	}
	var tombstoned []ItemKey
	for _, k := range h.absent.Keys() {
		st := h.store.objects.get(k.Kind, k.ID)
		if st == nil || !st.OnServer {
			continue
		}
		h.store.SetOnServer(k.Kind, k.ID, false)
		tombstoned = append(tombstoned, k)
	}
	return tombstoned, nil
}

// Finish persists the item list and marks the container fetched in the info table.
// It returns the container path. The handle cannot be used afterwards.
func (h *ContainerHandle) Finish() (string, error) {
	if h.finished {
		return "", ErrHandleFinished
	}
	d := NewDir(h.path, FormatYAML, CompressionNone)
	if err := d.Put(itemListFile, h.items); err != nil {
		return "", Chain(h.kind+"/"+h.id+"/"+h.relation, err)
	}
	h.store.setContainerFetched(h.kind, h.id, h.relation)
	h.finished = true
	return h.path, nil
}
