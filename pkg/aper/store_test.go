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

func codes(t *testing.T, s string) TypeCodes {
	t.Helper()
	tc, err := ParseTypeCodes(s)
	require.NoError(t, err)
	return tc
}

func replyAt(t *testing.T, s *Store, address string) *ReplyRecord {
	t.Helper()
	rec, ok := s.Get(address)
	require.True(t, ok, "missing %s", address)
	r, ok := rec.(*ReplyRecord)
	require.True(t, ok)
	return r
}

func TestStore_KeysSorted(t *testing.T) {
	s := NewStore(Links)
	for _, a := range []string{"c.example.com", "a.example.com", "b.example.com"} {
		s.MergeNewest(a, "20240101")
	}

	assert.Equal(t, []string{"a.example.com", "b.example.com", "c.example.com"}, s.Keys())
	assert.Equal(t, 3, s.Len())

	records := s.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "a.example.com", records[0].Address())
}

func TestStore_MergeNewestKeepsMaxDate(t *testing.T) {
	dates := []string{"19011214", "20000101", "20240229", "20380119"}

	for _, list := range []List{Links, Cleared} {
		for _, d1 := range dates {
			for _, d2 := range dates {
				s := NewStore(list)
				s.MergeNewest("x.example.com", d1)
				s.MergeNewest("x.example.com", d2)

				rec, ok := s.Get("x.example.com")
				require.True(t, ok)
				assert.Equal(t, max(d1, d2), rec.Date(), "%s: %s then %s", list, d1, d2)
			}
		}
	}
}

func TestStore_MergeNewestOutcomes(t *testing.T) {
	s := NewStore(Cleared)

	assert.Equal(t, OutcomeInserted, s.MergeNewest("a@example.com", "20240102"))
	assert.Equal(t, OutcomeUnchanged, s.MergeNewest("a@example.com", "20240102"))
	assert.Equal(t, OutcomeUnchanged, s.MergeNewest("a@example.com", "20240101"))
	assert.Equal(t, OutcomeUpdated, s.MergeNewest("a@example.com", "20240103"))

	rec, _ := s.Get("a@example.com")
	assert.IsType(t, &ClearedRecord{}, rec)
}

func TestStore_ReplyUnionsTypeCodes(t *testing.T) {
	s := NewStore(Reply)
	s.MergeSubmittedReply("a@example.com", codes(t, "A"), "20240101")
	outcome := s.MergeSubmittedReply("a@example.com", codes(t, "B"), "20240201")

	assert.Equal(t, OutcomeUpdated, outcome)
	r := replyAt(t, s, "a@example.com")
	assert.Equal(t, "AB", r.Types().String())
	assert.Equal(t, "20240201", r.Date())

	// Older submissions still contribute their codes.
	s.MergeSubmittedReply("a@example.com", codes(t, "E"), "20230101")
	assert.Equal(t, "ABE", r.Types().String())
	assert.Equal(t, "20240201", r.Date())
}

func TestStore_ReplyMergesKeepMaxDate(t *testing.T) {
	dates := []string{"19700101", "20240101", "20240102"}

	for _, d1 := range dates {
		for _, d2 := range dates {
			loaded := NewStore(Reply)
			loaded.MergeLoadedReply("a@example.com", codes(t, "A"), d1)
			loaded.MergeLoadedReply("a@example.com", codes(t, "A"), d2)
			assert.Equal(t, max(d1, d2), replyAt(t, loaded, "a@example.com").Date())

			submitted := NewStore(Reply)
			submitted.MergeSubmittedReply("a@example.com", codes(t, "A"), d1)
			submitted.MergeSubmittedReply("a@example.com", codes(t, "A"), d2)
			assert.Equal(t, max(d1, d2), replyAt(t, submitted, "a@example.com").Date())
		}
	}
}

func TestStore_ReplyMergeAsymmetry(t *testing.T) {
	// A cleared record on the same date as the incoming one: the batch merge
	// only reacts to strictly newer dates and leaves it cleared.
	s := NewStore(Reply)
	s.MergeLoadedReply("a@example.com", codes(t, "A"), "20240101")
	require.Equal(t, OutcomeCleared, s.ApplyCleared("a@example.com", "20240105"))

	assert.Equal(t, OutcomeUnchanged, s.MergeSubmittedReply("a@example.com", codes(t, "A"), "20240105"))
	assert.True(t, replyAt(t, s, "a@example.com").Cleared())

	// The database merge treats equal dates as an overwrite but never touches
	// the cleared flag.
	assert.Equal(t, OutcomeUnchanged, s.MergeLoadedReply("a@example.com", codes(t, "A"), "20240105"))
	assert.Equal(t, OutcomeUpdated, s.MergeLoadedReply("a@example.com", codes(t, "A"), "20240106"))
	assert.True(t, replyAt(t, s, "a@example.com").Cleared())
}

func TestStore_Reactivation(t *testing.T) {
	s := NewStore(Reply)
	s.MergeLoadedReply("a@example.com", codes(t, "C"), "20240101")
	s.ApplyCleared("a@example.com", "20240201")
	require.Empty(t, s.Live())

	outcome := s.MergeSubmittedReply("a@example.com", codes(t, "A"), "20240301")

	assert.Equal(t, OutcomeReactivated, outcome)
	r := replyAt(t, s, "a@example.com")
	assert.False(t, r.Cleared())
	assert.Equal(t, "20240301", r.Date())
	assert.Equal(t, "AC", r.Types().String())
	assert.Len(t, s.Live(), 1)
}

func TestStore_ApplyCleared(t *testing.T) {
	t.Run("not newer record is cleared", func(t *testing.T) {
		s := NewStore(Reply)
		s.MergeLoadedReply("a@example.com", codes(t, "A"), "20240101")

		assert.Equal(t, OutcomeCleared, s.ApplyCleared("a@example.com", "20240101"))
		r := replyAt(t, s, "a@example.com")
		assert.True(t, r.Cleared())
		assert.Equal(t, "20240101", r.Date())
		assert.False(t, IsLive(r))
	})

	t.Run("newer record stays live", func(t *testing.T) {
		s := NewStore(Reply)
		s.MergeLoadedReply("a@example.com", codes(t, "A"), "20240301")

		assert.Equal(t, OutcomeUnchanged, s.ApplyCleared("a@example.com", "20240101"))
		r := replyAt(t, s, "a@example.com")
		assert.False(t, r.Cleared())
		assert.Equal(t, "20240301", r.Date())
	})

	t.Run("absent address inserted cleared", func(t *testing.T) {
		s := NewStore(Reply)

		assert.Equal(t, OutcomeCleared, s.ApplyCleared("b@example.com", "20240101"))
		r := replyAt(t, s, "b@example.com")
		assert.True(t, r.Cleared())
		assert.True(t, r.Types().Empty())
		assert.Empty(t, s.Live())
		assert.Equal(t, 1, s.Len())
	})
}

func TestStore_Comments(t *testing.T) {
	s := NewStore(Reply)
	s.AddComment("# one")
	s.AddComment("# two")
	assert.Equal(t, []string{"# one", "# two"}, s.Comments())
	assert.Equal(t, Reply, s.List())
}

func TestStore_WrongListPanics(t *testing.T) {
	assert.Panics(t, func() { NewStore(Links).MergeSubmittedReply("a@example.com", 0, "20240101") })
	assert.Panics(t, func() { NewStore(Cleared).ApplyCleared("a@example.com", "20240101") })
	assert.Panics(t, func() { NewStore(Reply).MergeNewest("a@example.com", "20240101") })
}

func TestMergeStats(t *testing.T) {
	var m MergeStats
	assert.False(t, m.Changed())

	m.Add(OutcomeUnchanged)
	assert.False(t, m.Changed())

	m.Add(OutcomeInserted)
	m.Add(OutcomeUpdated)
	m.Add(OutcomeReactivated)
	m.Add(OutcomeCleared)

	assert.True(t, m.Changed())
	assert.Equal(t, MergeStats{Records: 5, Inserted: 1, Updated: 1, Reactivated: 1, Cleared: 1, Unchanged: 1}, m)
	assert.Equal(t, "reactivated", OutcomeReactivated.String())
}
