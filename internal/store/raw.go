package store

import (
	"encoding/json"
	"time"
)

// RawInfo describes when and through which listing a raw reply was fetched.
type RawInfo struct {
	FetchTime time.Time `yaml:"fetch_time" json:"fetch_time"`
	// Container is the listing the reply came from, empty for a direct fetch.
	Container string `yaml:"container,omitempty" json:"container,omitempty"`
}

// RawData is the unparsed API reply an item was built from.
type RawData struct {
	Info RawInfo
	Data json.RawMessage
}

// NewRawData wraps a reply fetched at t.
func NewRawData(data json.RawMessage, t time.Time, container string) *RawData {
	return &RawData{Info: RawInfo{FetchTime: t.UTC().Truncate(time.Second), Container: container}, Data: data}
}

// Put writes the snapshot into d as info.yaml and data.json.
func (r *RawData) Put(d *Dir) error {
	if err := d.Put("info", r.Info); err != nil {
		return err
	}
	return d.PutBytes("data.json", r.Data)
}

// LoadRawData reads a snapshot written by Put.
func LoadRawData(d *Dir) (*RawData, error) {
	r := &RawData{}
	if err := d.Get("info", &r.Info); err != nil {
		return nil, err
	}
	data, err := d.GetBytes("data.json")
	if err != nil {
		return nil, err
	}
	r.Data = data
	return r, nil
}
