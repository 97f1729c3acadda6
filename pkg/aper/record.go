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
	"strings"
)

// List identifies one of the three APER databases.
type List int

const (
	// Reply is the list of addresses that receive an automated phishing reply.
	Reply List = iota
	// Links is the list of URLs and hosts seen in phishing campaigns.
	Links
	// Cleared is the list of addresses removed from reply eligibility.
	Cleared
)

// Lists holds every list in a stable order.
var Lists = []List{Reply, Links, Cleared}

// String returns the list name as used on the command line.
func (l List) String() string {
	switch l {
	case Reply:
		return "reply"
	case Links:
		return "links"
	case Cleared:
		return "cleared"
	default:
		return fmt.Sprintf("list(%d)", int(l))
	}
}

// ParseList converts a list name into a List.
func ParseList(name string) (List, error) {
	switch strings.ToLower(name) {
	case "reply":
		return Reply, nil
	case "links":
		return Links, nil
	case "cleared":
		return Cleared, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
}

// fields returns how many comma separated fields a line of the list holds.
func (l List) fields() int {
	if l == Reply {
		return 3
	}
	return 2
}

// TypeCodes is the set of reply type codes (A-E) attached to an address.
type TypeCodes uint8

// ParseTypeCodes builds a set from a string of type codes in any case.
func ParseTypeCodes(codes string) (TypeCodes, error) {
	if !ValidTypeCodes(codes) {
		return 0, ErrInvalidRecordType
	}
	var t TypeCodes
	t.Add(codes)
	return t, nil
}

// Add inserts every valid code in codes. Other characters are ignored.
func (t *TypeCodes) Add(codes string) {
	for i := 0; i < len(codes); i++ {
		if p := strings.IndexByte(replyTypes, toUpper(codes[i])); p >= 0 {
			*t |= 1 << uint(p)
		}
	}
}

// Union returns the set holding the codes of both t and other.
func (t TypeCodes) Union(other TypeCodes) TypeCodes {
	return t | other
}

// Has reports whether code is in the set.
func (t TypeCodes) Has(code byte) bool {
	p := strings.IndexByte(replyTypes, toUpper(code))
	return p >= 0 && t&(1<<uint(p)) != 0
}

// Empty reports whether the set holds no codes.
func (t TypeCodes) Empty() bool {
	return t == 0
}

// String renders the codes upper-cased in sorted order, e.g. "ACE".
func (t TypeCodes) String() string {
	var b strings.Builder
	for p := 0; p < len(replyTypes); p++ {
		if t&(1<<uint(p)) != 0 {
			b.WriteByte(replyTypes[p])
		}
	}
	return b.String()
}

// Record is a database entry. The set of implementations is closed:
// *ReplyRecord, *LinkRecord and *ClearedRecord.
type Record interface {
	// Address returns the normalized address, the record's key.
	Address() string

	// Date returns the YYYYMMDD date of the record.
	Date() string

	// IsNewer reports whether the record is newer than date. Dates compare
	// as strings.
	IsNewer(date string) bool

	isRecord()
}

type entry struct {
	address string
	date    string
}

func (e *entry) Address() string { return e.address }
func (e *entry) Date() string    { return e.date }

func (e *entry) IsNewer(date string) bool {
	return e.date > date
}

func (e *entry) isRecord() {}

// ReplyRecord is an entry on the reply list.
type ReplyRecord struct {
	entry
	types   TypeCodes
	cleared bool
}

// NewReplyRecord creates a reply record. The address is expected to be
// lower-cased already.
func NewReplyRecord(address string, types TypeCodes, date string) *ReplyRecord {
	return &ReplyRecord{entry: entry{address: address, date: date}, types: types}
}

// Types returns the type codes of the record.
func (r *ReplyRecord) Types() TypeCodes { return r.types }

// Cleared reports whether the record has been cleared. Cleared records are
// kept in the store but not written.
func (r *ReplyRecord) Cleared() bool { return r.cleared }

// LinkRecord is an entry on the links list.
type LinkRecord struct {
	entry
}

// NewLinkRecord creates a links record for an already cleaned address.
func NewLinkRecord(address, date string) *LinkRecord {
	return &LinkRecord{entry: entry{address: address, date: date}}
}

// ClearedRecord is an entry on the cleared list.
type ClearedRecord struct {
	entry
}

// NewClearedRecord creates a cleared list record.
func NewClearedRecord(address, date string) *ClearedRecord {
	return &ClearedRecord{entry: entry{address: address, date: date}}
}
