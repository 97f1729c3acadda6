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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device gone")
}

func TestLoadDatabase_LeadingComments(t *testing.T) {
	input := strings.Join([]string{
		"# APER reply list",
		"  # indented header  ",
		"",
		"a@example.com,A,20240101",
		"# trailing comment is dropped",
		"",
		"b@example.com,b,20240102",
	}, "\n")

	s := NewStore(Reply)
	stats, err := LoadDatabase(s, strings.NewReader(input), "reply")
	require.NoError(t, err)

	assert.Equal(t, []string{"# APER reply list", "# indented header"}, s.Comments())
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, s.Keys())
	assert.Equal(t, "B", replyAt(t, s, "b@example.com").Types().String())
}

func TestLoadDatabase_NormalizesKeys(t *testing.T) {
	s := NewStore(Reply)
	_, err := LoadDatabase(s, strings.NewReader("User@Example.COM , ab , 20240101\nuser@example.com,C,20230101\n"), "reply")
	require.NoError(t, err)

	require.Equal(t, 1, s.Len())
	r := replyAt(t, s, "user@example.com")
	assert.Equal(t, "ABC", r.Types().String())
	assert.Equal(t, "20240101", r.Date())
}

func TestLoadDatabase_Links(t *testing.T) {
	s := NewStore(Links)
	input := "HTTPS://Example.COM/path/,20240101\nexample.com/path,20240301\nhttp://other.example.org,20240201\n"
	stats, err := LoadDatabase(s, strings.NewReader(input), "links")
	require.NoError(t, err)

	assert.Equal(t, []string{"example.com/path", "other.example.org"}, s.Keys())
	rec, _ := s.Get("example.com/path")
	assert.Equal(t, "20240301", rec.Date())
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.Updated)
}

func TestLoadDatabase_StopsAtInvalidRecord(t *testing.T) {
	input := strings.Join([]string{
		"a@example.com,A,20240101",
		"b@example.com,B,20240101",
		"c@example.com,B,20241301",
		"d@example.com,C,20240101",
		"e@example.com,D,20240101",
	}, "\n")

	s := NewStore(Reply)
	stats, err := LoadDatabase(s, strings.NewReader(input), "reply")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInvalidDate)
	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 3, recErr.Line)
	assert.Equal(t, "20241301", recErr.Value)
	assert.Equal(t, "reply: line 3: bad date format: 20241301", err.Error())

	// Earlier lines stay merged in memory.
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, s.Keys())
}

func TestLoadDatabase_ValidationOrder(t *testing.T) {
	tests := []struct {
		name string
		list List
		line string
		kind error
	}{
		{"bad address first", Reply, "nobody,Z,2024", ErrInvalidAddress},
		{"then type codes", Reply, "a@example.com,Z,2024", ErrInvalidRecordType},
		{"then date", Reply, "a@example.com,A,2024", ErrInvalidDate},
		{"missing fields", Reply, "a@example.com", ErrInvalidRecordType},
		{"links address", Links, "ftp://example.com,20240101", ErrInvalidAddress},
		{"links date", Links, "example.com,19011213", ErrInvalidDate},
		{"cleared address", Cleared, "a@.example.com,20240101", ErrInvalidAddress},
		{"cleared date", Cleared, "a@example.com,00000101", ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDatabase(NewStore(tt.list), strings.NewReader(tt.line), "db")
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestLoadDatabase_ExtraFieldsIgnored(t *testing.T) {
	s := NewStore(Cleared)
	_, err := LoadDatabase(s, strings.NewReader("a@example.com,,20240101,extra\n"), "cleared")
	require.NoError(t, err)

	rec, ok := s.Get("a@example.com")
	require.True(t, ok)
	assert.Equal(t, "20240101", rec.Date())
}

func TestLoadDatabase_ReadError(t *testing.T) {
	_, err := LoadDatabase(NewStore(Links), failingReader{}, "links")
	assert.ErrorIs(t, err, ErrSourceFileUnreadable)

	_, err = FoldBatch(NewStore(Links), failingReader{}, "stdin")
	assert.ErrorIs(t, err, ErrBatchInputUnreadable)
}

func TestLoadClearedFlags(t *testing.T) {
	s := NewStore(Reply)
	_, err := LoadDatabase(s, strings.NewReader("a@example.com,A,20240101\nb@example.com,B,20240301\n"), "reply")
	require.NoError(t, err)

	cleared := "# cleared header\nA@Example.com,20240201\nb@example.com,20240201\nc@example.com,20240101\n"
	stats, err := LoadClearedFlags(s, strings.NewReader(cleared), "cleared")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Cleared)
	assert.Equal(t, 1, stats.Unchanged)
	assert.True(t, replyAt(t, s, "a@example.com").Cleared())
	assert.False(t, replyAt(t, s, "b@example.com").Cleared())
	assert.True(t, replyAt(t, s, "c@example.com").Cleared())
	assert.Empty(t, s.Comments())

	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "b@example.com", live[0].Address())
}

func TestFoldBatch_IgnoresComments(t *testing.T) {
	s := NewStore(Reply)
	s.AddComment("# database header")

	batch := "# submitter note\na@example.com,A,20240101\n# another\n"
	stats, err := FoldBatch(s, strings.NewReader(batch), "stdin")
	require.NoError(t, err)

	assert.Equal(t, []string{"# database header"}, s.Comments())
	assert.Equal(t, 1, stats.Inserted)
}

func TestFoldBatch_ReactivatesClearedRecord(t *testing.T) {
	s := NewStore(Reply)
	_, err := LoadDatabase(s, strings.NewReader("a@example.com,A,20240101\n"), "reply")
	require.NoError(t, err)
	_, err = LoadClearedFlags(s, strings.NewReader("a@example.com,20240102\n"), "cleared")
	require.NoError(t, err)

	stats, err := FoldBatch(s, strings.NewReader("a@example.com,b,20240103\n"), "batch")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Reactivated)
	r := replyAt(t, s, "a@example.com")
	assert.False(t, r.Cleared())
	assert.Equal(t, "AB", r.Types().String())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"a@b.com", "AB", "20240101"}, tokenize(" a@b.com ,\tA B, 2024 0101 ", 3))
	assert.Equal(t, []string{"a@b.com", "20240101"}, tokenize("a@b.com,,,20240101", 2))
	assert.Equal(t, []string{"a@b.com", ""}, tokenize("a@b.com", 2))
	assert.Equal(t, []string{"x", "y"}, tokenize("x,y,z", 2))
}
