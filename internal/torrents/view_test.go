// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trview/internal/transmission"
)

func view(id int64, name string) transmission.TorrentView {
	return transmission.NewTorrentView(&id, &name)
}

func nameless(id int64) transmission.TorrentView {
	return transmission.NewTorrentView(&id, nil)
}

func names(views []transmission.TorrentView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		if name, ok := v.Name(); ok {
			out[i] = name
		} else {
			out[i] = "<nil>"
		}
	}
	return out
}

func ids(views []transmission.TorrentView) []int64 {
	out := make([]int64, len(views))
	for i, v := range views {
		out[i], _ = v.ID()
	}
	return out
}

func readyResult(views ...transmission.TorrentView) FetchResult {
	return FetchResult{State: StateReady, Torrents: views}
}

func TestDeriveExample(t *testing.T) {
	result := readyResult(view(1, "Beta"), nameless(2), view(3, "alpha"))

	sorted := Derive(result, "")
	assert.Equal(t, []string{"<nil>", "alpha", "Beta"}, names(sorted))
	assert.Equal(t, []int64{2, 3, 1}, ids(sorted))

	filtered := Derive(result, "a")
	assert.Equal(t, []string{"alpha", "Beta"}, names(filtered))
}

func TestSortByName(t *testing.T) {
	tests := []struct {
		name  string
		input []transmission.TorrentView
		want  []int64
	}{
		{
			name:  "case_insensitive",
			input: []transmission.TorrentView{view(1, "b"), view(2, "A"), view(3, "a"), view(4, "B")},
			want:  []int64{2, 3, 4, 1},
		},
		{
			name:  "absent_first_and_stable",
			input: []transmission.TorrentView{view(1, "x"), nameless(2), nameless(3), view(4, "")},
			want:  []int64{2, 3, 4, 1},
		},
		{
			name:  "equal_names_keep_input_order",
			input: []transmission.TorrentView{view(5, "same"), view(1, "same"), view(3, "same")},
			want:  []int64{5, 1, 3},
		},
		{
			name:  "unicode_folding",
			input: []transmission.TorrentView{view(1, "Zebra"), view(2, "éclair"), view(3, "ÉCLAIR"), view(4, "apple")},
			want:  []int64{4, 1, 3, 2},
		},
		{
			name:  "empty",
			input: nil,
			want:  []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SortByName(tt.input)))
		})
	}
}

func TestSortByNameDoesNotModifyInput(t *testing.T) {
	input := []transmission.TorrentView{view(1, "b"), view(2, "a")}
	_ = SortByName(input)
	assert.Equal(t, []int64{1, 2}, ids(input))
}

func TestSortByNameIsIdempotent(t *testing.T) {
	input := []transmission.TorrentView{
		view(1, "ubuntu.iso"), nameless(2), view(3, "Debian"), view(4, "debian"),
		view(5, "arch"), nameless(6), view(7, "Ubuntu.ISO"), view(8, ""),
	}

	once := SortByName(input)
	assert.Equal(t, once, SortByName(once))
	assert.Len(t, once, len(input))
}

func TestCompareNamesIsTotal(t *testing.T) {
	values := []transmission.TorrentView{
		nameless(1), view(2, ""), view(3, "a"), view(4, "A"), view(5, "b"), view(6, "ß"), view(7, "ss"),
	}

	for _, a := range values {
		assert.Equal(t, 0, CompareNames(a, a))
		for _, b := range values {
			assert.Equal(t, CompareNames(a, b), -CompareNames(b, a))
		}
	}

	assert.Negative(t, CompareNames(nameless(1), view(2, "")))
	assert.Negative(t, CompareNames(view(1, "A"), view(2, "a")))
}

func TestFilterByName(t *testing.T) {
	list := SortByName([]transmission.TorrentView{
		view(1, "ubuntu.iso"), view(2, "Debian Netinst"), nameless(3), view(4, "arch-linux"),
	})

	tests := []struct {
		name   string
		filter string
		want   []int64
	}{
		{name: "empty_keeps_all", filter: "", want: []int64{3, 4, 2, 1}},
		{name: "case_insensitive", filter: "ISO", want: []int64{1}},
		{name: "exact_name", filter: "Debian Netinst", want: []int64{2}},
		{name: "substring", filter: "in", want: []int64{4, 2}},
		{name: "unmatched", filter: "fedora", want: []int64{}},
		{name: "whitespace_is_literal", filter: " ", want: []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterByName(list, tt.filter)))
		})
	}
}

func TestFilterOfSortWithEmptyFilterIsSort(t *testing.T) {
	input := []transmission.TorrentView{view(1, "b"), nameless(2), view(3, "A")}
	sorted := SortByName(input)
	assert.Equal(t, sorted, FilterByName(sorted, ""))
}

func TestDeriveNotReadyIsEmpty(t *testing.T) {
	failed := FetchResult{
		State: StateFailed,
		Err:   &transmission.FetchError{Kind: transmission.KindDecode, Method: transmission.MethodTorrentGet, Err: assert.AnError},
	}

	for _, result := range []FetchResult{{State: StatePending}, failed} {
		derived := Derive(result, "")
		assert.NotNil(t, derived)
		assert.Empty(t, derived)
	}
}

func TestRowKeys(t *testing.T) {
	sorted := []transmission.TorrentView{
		transmission.NewTorrentView(nil, nil),
		transmission.NewTorrentView(nil, nil),
		transmission.NewTorrentView(nil, stringPtr("alpha")),
		transmission.NewTorrentView(nil, stringPtr("alpha")),
		view(1, "alpha"),
		view(1, "beta"),
		view(1, "gamma"),
	}

	keys := RowKeys(sorted)
	assert.Equal(t, "anon", keys[0])
	assert.Equal(t, "anon#2", keys[1])
	assert.True(t, strings.HasPrefix(keys[2], "name:"))
	assert.Equal(t, keys[2]+"#2", keys[3])
	assert.Equal(t, "id:1", keys[4])
	assert.Equal(t, "id:1#2", keys[5])
	assert.Equal(t, "id:1#3", keys[6])

	seen := map[string]bool{}
	for _, key := range keys {
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestBuildSnapshotKeepsKeysWhileFiltering(t *testing.T) {
	result := readyResult(view(1, "Beta"), nameless(2), view(3, "alpha"))

	full := BuildSnapshot(result, "")
	assert.Equal(t, StateReady, full.State)
	assert.Equal(t, 3, full.Total)
	assert.Equal(t, 3, full.Visible)
	require.Len(t, full.Rows, 3)
	assert.Equal(t, []string{"id:2", "id:3", "id:1"}, []string{full.Rows[0].Key, full.Rows[1].Key, full.Rows[2].Key})
	assert.Nil(t, full.Rows[0].Name)

	filtered := BuildSnapshot(result, "BET")
	assert.Equal(t, 3, filtered.Total)
	assert.Equal(t, 1, filtered.Visible)
	require.Len(t, filtered.Rows, 1)
	assert.Equal(t, "id:1", filtered.Rows[0].Key)
	assert.Equal(t, "BET", filtered.Filter)
}

func TestBuildSnapshotStates(t *testing.T) {
	pending := BuildSnapshot(FetchResult{State: StatePending}, "x")
	assert.Equal(t, StatePending, pending.State)
	assert.Nil(t, pending.Error)
	assert.NotNil(t, pending.Rows)
	assert.Empty(t, pending.Rows)

	failed := BuildSnapshot(FetchResult{
		State: StateFailed,
		Err:   &transmission.FetchError{Kind: transmission.KindTransport, Method: transmission.MethodTorrentGet, Err: assert.AnError},
	}, "")
	assert.Equal(t, StateFailed, failed.State)
	require.NotNil(t, failed.Error)
	assert.Equal(t, transmission.KindTransport, failed.Error.Kind)
	assert.Contains(t, failed.Error.Message, "transport")
	assert.Empty(t, failed.Rows)

	data, err := json.Marshal(pending)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"pending","filter":"x","total":0,"visible":0,"rows":[]}`, string(data))
}

func TestViewFilterOnFailedResource(t *testing.T) {
	gateway := &stubGateway{err: &transmission.FetchError{Kind: transmission.KindProtocol, Method: transmission.MethodTorrentGet, Err: assert.AnError}}
	r := NewResource(gateway)
	v := NewView(r)

	waitSettled(t, r)
	v.SetFilter("anything")
	assert.Equal(t, "anything", v.Filter())
	assert.Empty(t, v.Derive())
	assert.Equal(t, StateFailed, v.Snapshot().State)
}

func TestViewDeriveFollowsResource(t *testing.T) {
	gateway := &stubGateway{records: sampleRecords(), release: make(chan struct{})}
	r := NewResource(gateway)
	t.Cleanup(r.Close)
	v := NewView(r)

	v.SetFilter("a")
	assert.Empty(t, v.Derive())
	assert.Equal(t, StatePending, v.Snapshot().State)

	close(gateway.release)
	waitSettled(t, r)

	assert.Equal(t, []string{"alpha", "Beta"}, names(v.Derive()))
	v.SetFilter("")
	assert.Len(t, v.Derive(), 3)
}
