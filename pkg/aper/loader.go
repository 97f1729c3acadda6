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
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	commentToken = '#'
	fieldToken   = ','

	// maxLineLength bounds a single database or batch line.
	maxLineLength = 1024 * 1024
)

// scanState tracks where the scanner is within a stream.
type scanState int

const (
	skippingLeadingComments scanState = iota
	parsingRecords
)

// LoadDatabase reads an existing database file into store, keeping its
// leading comment block. Duplicate addresses within the file are merged
// with the database rules (MergeLoadedReply for the reply list,
// MergeNewest otherwise). The first invalid record stops the load.
func LoadDatabase(store *Store, r io.Reader, source string) (MergeStats, error) {
	var stats MergeStats
	list := store.List()

	err := scan(r, list, store.AddComment, ErrSourceFileUnreadable, source, func(p parsedRecord) {
		if list == Reply {
			stats.Add(store.MergeLoadedReply(p.address, p.types, p.date))
		} else {
			stats.Add(store.MergeNewest(p.address, p.date))
		}
	})
	return stats, err
}

// LoadClearedFlags reads the cleared list and applies it to a reply store
// with ApplyCleared. It must run after the reply database is loaded. The
// cleared file's comments are not kept.
func LoadClearedFlags(store *Store, r io.Reader, source string) (MergeStats, error) {
	var stats MergeStats
	store.mustHold(Reply)

	err := scan(r, Cleared, nil, ErrSourceFileUnreadable, source, func(p parsedRecord) {
		stats.Add(store.ApplyCleared(p.address, p.date))
	})
	return stats, err
}

// FoldBatch merges submitted records into store. Comments in the batch are
// ignored. Reply records use MergeSubmittedReply; links and cleared records
// keep the newest date.
func FoldBatch(store *Store, r io.Reader, source string) (MergeStats, error) {
	var stats MergeStats
	list := store.List()

	err := scan(r, list, nil, ErrBatchInputUnreadable, source, func(p parsedRecord) {
		if list == Reply {
			stats.Add(store.MergeSubmittedReply(p.address, p.types, p.date))
		} else {
			stats.Add(store.MergeNewest(p.address, p.date))
		}
	})
	return stats, err
}

type parsedRecord struct {
	address string
	types   TypeCodes
	date    string
}

// scan walks the lines of r. Blank lines are skipped. Comment lines before
// the first record go to collect when it is not nil; comment lines after it
// are dropped. Every other line is parsed as a record of list and handed to
// merge. Read failures are wrapped with readErr.
func scan(r io.Reader, list List, collect func(string), readErr error, source string, merge func(parsedRecord)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	state := skippingLeadingComments
	line := 0
	for scanner.Scan() {
		line++

		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			continue
		}

		if s[0] == commentToken {
			if state == skippingLeadingComments && collect != nil {
				collect(s)
			}
			continue
		}
		state = parsingRecords

		p, err := parseRecord(list, tokenize(s, list.fields()), line, source)
		if err != nil {
			return err
		}
		merge(p)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", readErr, source, err)
	}
	return nil
}

// tokenize drops all whitespace from line, splits it on commas and returns
// exactly n fields. Empty fields collapse, missing fields are empty and
// extra fields are dropped.
func tokenize(line string, n int) []string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, line)

	tokens := strings.FieldsFunc(stripped, func(r rune) bool { return r == fieldToken })

	fields := make([]string, n)
	copy(fields, tokens)
	return fields
}

// parseRecord validates the fields of one line. The address is checked
// first, then the type codes, then the date.
func parseRecord(list List, fields []string, line int, source string) (parsedRecord, error) {
	fail := func(kind error, value string) (parsedRecord, error) {
		return parsedRecord{}, &RecordError{Kind: kind, Value: value, Line: line, Source: source}
	}

	var p parsedRecord
	switch list {
	case Reply:
		address, codes, date := fields[0], fields[1], fields[2]
		if !ValidEmailAddress(address) {
			return fail(ErrInvalidAddress, address)
		}
		if !ValidTypeCodes(codes) {
			return fail(ErrInvalidRecordType, codes)
		}
		if !ValidDate(date) {
			return fail(ErrInvalidDate, date)
		}
		p.address = strings.ToLower(address)
		p.types.Add(codes)
		p.date = date

	case Links:
		address, date := CleanLinkAddress(fields[0]), fields[1]
		if !ValidLinkAddress(address) {
			return fail(ErrInvalidAddress, address)
		}
		if !ValidDate(date) {
			return fail(ErrInvalidDate, date)
		}
		p.address = address
		p.date = date

	case Cleared:
		address, date := fields[0], fields[1]
		if !ValidClearedAddress(address) {
			return fail(ErrInvalidAddress, address)
		}
		if !ValidDate(date) {
			return fail(ErrInvalidDate, date)
		}
		p.address = strings.ToLower(address)
		p.date = date

	default:
		return parsedRecord{}, fmt.Errorf("%w: %s", ErrUnknownList, list)
	}

	return p, nil
}
