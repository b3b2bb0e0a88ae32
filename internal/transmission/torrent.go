// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Torrent fields requested from the daemon. Nothing else is ever asked for.
const (
	FieldID   = "id"
	FieldName = "name"
)

// RemoteTorrent is one torrent record as reported by the daemon. Only the id
// and name are consumed; every other field lands in Extra untouched.
type RemoteTorrent struct {
	ID    *int64
	Name  *string
	Extra map[string]json.RawMessage
}

func (t *RemoteTorrent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = RemoteTorrent{}

	if value, ok := raw[FieldID]; ok {
		delete(raw, FieldID)
		if !isNull(value) {
			var id int64
			if err := json.Unmarshal(value, &id); err != nil {
				return fmt.Errorf("torrent %s: %w", FieldID, err)
			}
			t.ID = &id
		}
	}

	if value, ok := raw[FieldName]; ok {
		delete(raw, FieldName)
		if !isNull(value) {
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return fmt.Errorf("torrent %s: %w", FieldName, err)
			}
			t.Name = &name
		}
	}

	if len(raw) > 0 {
		t.Extra = raw
	}

	return nil
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// TorrentView is the minimal per-torrent view model. Values are immutable and
// comparable with ==.
type TorrentView struct {
	id      int64
	name    string
	hasID   bool
	hasName bool
}

// NewTorrentView builds a view from optional values; nil means absent.
func NewTorrentView(id *int64, name *string) TorrentView {
	var v TorrentView
	if id != nil {
		v.id, v.hasID = *id, true
	}
	if name != nil {
		v.name, v.hasName = *name, true
	}
	return v
}

func (v TorrentView) ID() (int64, bool) {
	return v.id, v.hasID
}

func (v TorrentView) Name() (string, bool) {
	return v.name, v.hasName
}

// NameOrEmpty treats an absent name as the empty string.
func (v TorrentView) NameOrEmpty() string {
	return v.name
}

type torrentViewJSON struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

func (v TorrentView) MarshalJSON() ([]byte, error) {
	var out torrentViewJSON
	if id, ok := v.ID(); ok {
		out.ID = &id
	}
	if name, ok := v.Name(); ok {
		out.Name = &name
	}
	return json.Marshal(out)
}

func (v *TorrentView) UnmarshalJSON(data []byte) error {
	var in torrentViewJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*v = NewTorrentView(in.ID, in.Name)
	return nil
}

// Normalize keeps the id and name of a remote record and drops everything else.
func Normalize(r RemoteTorrent) TorrentView {
	return NewTorrentView(r.ID, r.Name)
}

// NormalizeAll applies Normalize element-wise, preserving order.
func NormalizeAll(records []RemoteTorrent) []TorrentView {
	views := make([]TorrentView, len(records))
	for i, record := range records {
		views[i] = Normalize(record)
	}
	return views
}
