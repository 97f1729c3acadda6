// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package aper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	for _, l := range Lists {
		got, err := ParseList(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}

	got, err := ParseList("REPLY")
	require.NoError(t, err)
	assert.Equal(t, Reply, got)

	_, err = ParseList("spam")
	assert.ErrorIs(t, err, ErrUnknownList)
}

func TestList_Fields(t *testing.T) {
	assert.Equal(t, 3, Reply.fields())
	assert.Equal(t, 2, Links.fields())
	assert.Equal(t, 2, Cleared.fields())
	assert.Equal(t, "list(9)", List(9).String())
}

func TestTypeCodes(t *testing.T) {
	tests := []struct {
		name  string
		codes string
		want  string
	}{
		{"single", "a", "A"},
		{"sorted on render", "ECA", "ACE"},
		{"duplicates collapse", "aAbB", "AB"},
		{"all", "edcba", "ABCDE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := ParseTypeCodes(tt.codes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tc.String())
			assert.False(t, tc.Empty())
		})
	}
}

func TestTypeCodes_Invalid(t *testing.T) {
	for _, codes := range []string{"", "F", "AZ", "A B"} {
		_, err := ParseTypeCodes(codes)
		assert.ErrorIs(t, err, ErrInvalidRecordType, "codes %q", codes)
	}
}

func TestTypeCodes_UnionAndHas(t *testing.T) {
	a, err := ParseTypeCodes("A")
	require.NoError(t, err)
	b, err := ParseTypeCodes("b")
	require.NoError(t, err)

	u := a.Union(b)
	assert.Equal(t, "AB", u.String())
	assert.True(t, u.Has('a'))
	assert.True(t, u.Has('B'))
	assert.False(t, u.Has('C'))
	assert.False(t, u.Has('Z'))

	var empty TypeCodes
	assert.True(t, empty.Empty())
	assert.Equal(t, "", empty.String())
	assert.Equal(t, a, a.Union(empty))
}

func TestRecord_IsNewer(t *testing.T) {
	var r Record = NewLinkRecord("example.com", "20240102")

	assert.True(t, r.IsNewer("20240101"))
	assert.False(t, r.IsNewer("20240102"))
	assert.False(t, r.IsNewer("20240103"))
	assert.Equal(t, "example.com", r.Address())
	assert.Equal(t, "20240102", r.Date())
}

func TestRecord_Variants(t *testing.T) {
	records := []Record{
		NewReplyRecord("a@example.com", 0, "20240101"),
		NewLinkRecord("example.com", "20240101"),
		NewClearedRecord("b@example.com", "20240101"),
	}

	kinds := make([]string, 0, len(records))
	for _, rec := range records {
		switch rec.(type) {
		case *ReplyRecord:
			kinds = append(kinds, "reply")
		case *LinkRecord:
			kinds = append(kinds, "link")
		case *ClearedRecord:
			kinds = append(kinds, "cleared")
		}
	}
	assert.Equal(t, []string{"reply", "link", "cleared"}, kinds)
}
