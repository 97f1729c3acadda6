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
	"fmt"
	"slices"
)

// Outcome describes what a merge did to the store.
type Outcome int

const (
	// OutcomeUnchanged means the incoming record carried nothing new.
	OutcomeUnchanged Outcome = iota
	// OutcomeInserted means a new address was added.
	OutcomeInserted
	// OutcomeUpdated means the date or type codes of an existing record changed.
	OutcomeUpdated
	// OutcomeReactivated means a cleared reply record became live again.
	OutcomeReactivated
	// OutcomeCleared means a reply record was marked cleared.
	OutcomeCleared
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeReactivated:
		return "reactivated"
	case OutcomeCleared:
		return "cleared"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MergeStats counts merge outcomes over a load.
type MergeStats struct {
	Records     int `json:"records"`
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Reactivated int `json:"reactivated"`
	Cleared     int `json:"cleared"`
	Unchanged   int `json:"unchanged"`
}

// Add counts one merged record.
func (m *MergeStats) Add(o Outcome) {
	m.Records++
	switch o {
	case OutcomeInserted:
		m.Inserted++
	case OutcomeUpdated:
		m.Updated++
	case OutcomeReactivated:
		m.Reactivated++
	case OutcomeCleared:
		m.Cleared++
	default:
		m.Unchanged++
	}
}

// Changed reports whether any merge modified the store.
func (m MergeStats) Changed() bool {
	return m.Inserted+m.Updated+m.Reactivated+m.Cleared > 0
}

// Store is the in-memory form of one list: the leading comment block of the
// database file and its records keyed by normalized address. A Store is
// built once per run and is not safe for concurrent use.
type Store struct {
	list     List
	comments []string
	records  map[string]Record
}

// NewStore creates an empty store for list.
func NewStore(list List) *Store {
	return &Store{
		list:    list,
		records: make(map[string]Record),
	}
}

// List returns the list the store holds.
func (s *Store) List() List { return s.list }

// Comments returns the leading comment lines in file order.
func (s *Store) Comments() []string { return s.comments }

// AddComment appends a leading comment line.
func (s *Store) AddComment(line string) {
	s.comments = append(s.comments, line)
}

// Len returns the number of records, cleared ones included.
func (s *Store) Len() int { return len(s.records) }

// Get returns the record stored under address.
func (s *Store) Get(address string) (Record, bool) {
	r, ok := s.records[address]
	return r, ok
}

// Keys returns every address in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Records returns every record in key order, cleared ones included.
func (s *Store) Records() []Record {
	keys := s.Keys()
	records := make([]Record, len(keys))
	for i, k := range keys {
		records[i] = s.records[k]
	}
	return records
}

// Live returns the records that are written out, in key order.
func (s *Store) Live() []Record {
	var live []Record
	for _, r := range s.Records() {
		if IsLive(r) {
			live = append(live, r)
		}
	}
	return live
}

// IsLive reports whether a record belongs in the written database. Only
// cleared reply records are suppressed.
func IsLive(r Record) bool {
	if reply, ok := r.(*ReplyRecord); ok {
		return !reply.cleared
	}
	return true
}

// MergeLoadedReply merges a reply record read from the reply database
// itself. The date is overwritten unless the stored record is newer, type
// codes are unioned and the cleared flag is left alone.
func (s *Store) MergeLoadedReply(address string, types TypeCodes, date string) Outcome {
	s.mustHold(Reply)

	r, ok := s.reply(address)
	if !ok {
		s.records[address] = NewReplyRecord(address, types, date)
		return OutcomeInserted
	}

	changed := false
	if !r.IsNewer(date) && r.date != date {
		r.date = date
		changed = true
	}
	if merged := r.types.Union(types); merged != r.types {
		r.types = merged
		changed = true
	}

	if changed {
		return OutcomeUpdated
	}
	return OutcomeUnchanged
}

// MergeSubmittedReply merges a reply record from a submitted batch. Only a
// strictly newer incoming date replaces the stored one, and doing so
// reactivates a cleared record. Type codes are unioned regardless of date.
//
// The date comparison runs the other way round from MergeLoadedReply; the
// two only differ when dates are equal.
func (s *Store) MergeSubmittedReply(address string, types TypeCodes, date string) Outcome {
	s.mustHold(Reply)

	r, ok := s.reply(address)
	if !ok {
		s.records[address] = NewReplyRecord(address, types, date)
		return OutcomeInserted
	}

	outcome := OutcomeUnchanged
	if date > r.date {
		if r.cleared {
			r.cleared = false
			outcome = OutcomeReactivated
		} else {
			outcome = OutcomeUpdated
		}
		r.date = date
	}
	if merged := r.types.Union(types); merged != r.types {
		r.types = merged
		if outcome == OutcomeUnchanged {
			outcome = OutcomeUpdated
		}
	}

	return outcome
}

// ApplyCleared marks the reply record for address as cleared when it is
// not newer than the cleared list date, taking that date. Addresses not on
// the reply list are added as cleared records without type codes so later
// merges still see them.
func (s *Store) ApplyCleared(address, date string) Outcome {
	s.mustHold(Reply)

	r, ok := s.reply(address)
	if !ok {
		r = NewReplyRecord(address, 0, date)
		r.cleared = true
		s.records[address] = r
		return OutcomeCleared
	}

	if r.IsNewer(date) {
		return OutcomeUnchanged
	}
	r.cleared = true
	r.date = date
	return OutcomeCleared
}

// MergeNewest merges a links or cleared list record, keeping the newest
// date. It is used both when loading the database and when folding a batch.
func (s *Store) MergeNewest(address, date string) Outcome {
	existing, ok := s.records[address]
	if !ok {
		switch s.list {
		case Links:
			s.records[address] = NewLinkRecord(address, date)
		case Cleared:
			s.records[address] = NewClearedRecord(address, date)
		default:
			panic(fmt.Sprintf("aper: MergeNewest on %s store", s.list))
		}
		return OutcomeInserted
	}

	if existing.IsNewer(date) || existing.Date() == date {
		return OutcomeUnchanged
	}

	switch r := existing.(type) {
	case *LinkRecord:
		r.date = date
	case *ClearedRecord:
		r.date = date
	default:
		panic(fmt.Sprintf("aper: MergeNewest on %T", existing))
	}
	return OutcomeUpdated
}

func (s *Store) reply(address string) (*ReplyRecord, bool) {
	existing, ok := s.records[address]
	if !ok {
		return nil, false
	}
	r, ok := existing.(*ReplyRecord)
	if !ok {
		panic(fmt.Sprintf("aper: %T stored on reply list", existing))
	}
	return r, true
}

func (s *Store) mustHold(list List) {
	if s.list != list {
		panic(fmt.Sprintf("aper: %s merge on %s store", list, s.list))
	}
}
