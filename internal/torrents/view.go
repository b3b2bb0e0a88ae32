// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"

	"github.com/autobrr/trview/internal/transmission"
)

// nameKey is the precomputed sort key of one view.
type nameKey struct {
	present bool
	folded  string
	raw     string
}

// newFolder returns a case folder. Casers keep internal state and are not
// shared between goroutines.
func newFolder() cases.Caser {
	return cases.Fold()
}

func keyOf(folder cases.Caser, v transmission.TorrentView) nameKey {
	name, ok := v.Name()
	if !ok {
		return nameKey{}
	}
	return nameKey{present: true, folded: folder.String(name), raw: name}
}

// Absent names sort first. Present names compare by case folded text, then by
// their raw bytes.
func compareKeys(a, b nameKey) int {
	switch {
	case !a.present && !b.present:
		return 0
	case !a.present:
		return -1
	case !b.present:
		return 1
	}
	if c := strings.Compare(a.folded, b.folded); c != 0 {
		return c
	}
	return strings.Compare(a.raw, b.raw)
}

// CompareNames orders two views by name.
func CompareNames(a, b transmission.TorrentView) int {
	folder := newFolder()
	return compareKeys(keyOf(folder, a), keyOf(folder, b))
}

// SortByName returns a stably sorted copy of views. The input is not modified.
func SortByName(views []transmission.TorrentView) []transmission.TorrentView {
	type keyed struct {
		view transmission.TorrentView
		key  nameKey
	}

	folder := newFolder()
	items := make([]keyed, len(views))
	for i, v := range views {
		items[i] = keyed{view: v, key: keyOf(folder, v)}
	}

	slices.SortStableFunc(items, func(a, b keyed) int {
		return compareKeys(a.key, b.key)
	})

	sorted := make([]transmission.TorrentView, len(items))
	for i, item := range items {
		sorted[i] = item.view
	}
	return sorted
}

type nameMatcher struct {
	folder cases.Caser
	needle string
}

func newNameMatcher(filter string) *nameMatcher {
	folder := newFolder()
	return &nameMatcher{folder: folder, needle: folder.String(filter)}
}

// match treats an absent name as the empty string.
func (m *nameMatcher) match(v transmission.TorrentView) bool {
	if m.needle == "" {
		return true
	}
	return strings.Contains(m.folder.String(v.NameOrEmpty()), m.needle)
}

// FilterByName keeps the views whose name contains filter, ignoring case.
// Order is preserved and an empty filter keeps everything.
func FilterByName(views []transmission.TorrentView, filter string) []transmission.TorrentView {
	matcher := newNameMatcher(filter)
	out := make([]transmission.TorrentView, 0, len(views))
	for _, v := range views {
		if matcher.match(v) {
			out = append(out, v)
		}
	}
	return out
}

// Derive sorts then filters a Ready result. Any other state yields an empty
// list.
func Derive(result FetchResult, filter string) []transmission.TorrentView {
	if !result.Ready() {
		return []transmission.TorrentView{}
	}
	return FilterByName(SortByName(result.Torrents), filter)
}

// RowKeys assigns a stable identity to each element of a sorted payload. The
// n-th repeat of a key gets a "#n" suffix.
func RowKeys(sorted []transmission.TorrentView) []string {
	keys := make([]string, len(sorted))
	seen := make(map[string]int, len(sorted))

	for i, v := range sorted {
		key := baseRowKey(v)
		seen[key]++
		if n := seen[key]; n > 1 {
			key += "#" + strconv.Itoa(n)
		}
		keys[i] = key
	}

	return keys
}

func baseRowKey(v transmission.TorrentView) string {
	if id, ok := v.ID(); ok {
		return "id:" + strconv.FormatInt(id, 10)
	}
	if name, ok := v.Name(); ok {
		return "name:" + strconv.FormatUint(xxhash.Sum64String(name), 16)
	}
	return "anon"
}

// Row is one rendered list entry.
type Row struct {
	Key  string  `json:"key"`
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

type SnapshotError struct {
	Kind    transmission.ErrorKind `json:"kind"`
	Message string                 `json:"message"`
}

// Snapshot is everything the page needs to paint the list.
type Snapshot struct {
	State   State          `json:"state"`
	Filter  string         `json:"filter"`
	Error   *SnapshotError `json:"error,omitempty"`
	Total   int            `json:"total"`
	Visible int            `json:"visible"`
	Rows    []Row          `json:"rows"`
}

// BuildSnapshot derives the rendered list. Row keys are assigned before
// filtering so a row keeps its key while the filter changes.
func BuildSnapshot(result FetchResult, filter string) Snapshot {
	snapshot := Snapshot{
		State:  result.State,
		Filter: filter,
		Rows:   []Row{},
	}

	switch result.State {
	case StateFailed:
		if result.Err != nil {
			snapshot.Error = &SnapshotError{Kind: result.Err.Kind, Message: result.Err.Error()}
		}
		return snapshot
	case StateReady:
	default:
		return snapshot
	}

	sorted := SortByName(result.Torrents)
	keys := RowKeys(sorted)
	matcher := newNameMatcher(filter)

	snapshot.Total = len(sorted)
	for i, v := range sorted {
		if !matcher.match(v) {
			continue
		}
		row := Row{Key: keys[i]}
		if id, ok := v.ID(); ok {
			row.ID = &id
		}
		if name, ok := v.Name(); ok {
			row.Name = &name
		}
		snapshot.Rows = append(snapshot.Rows, row)
	}
	snapshot.Visible = len(snapshot.Rows)

	return snapshot
}

// View holds the filter text for one page and derives the list from its
// resource on every observation.
type View struct {
	resource *Resource

	mu     sync.RWMutex
	filter string
}

func NewView(resource *Resource) *View {
	return &View{resource: resource}
}

// SetFilter replaces the filter text as given.
func (v *View) SetFilter(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = text
}

func (v *View) Filter() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.filter
}

// Derive observes the resource and returns the sorted, filtered list.
func (v *View) Derive() []transmission.TorrentView {
	return Derive(v.resource.Observe(), v.Filter())
}

// Snapshot observes the resource and returns the render model.
func (v *View) Snapshot() Snapshot {
	return BuildSnapshot(v.resource.Observe(), v.Filter())
}
