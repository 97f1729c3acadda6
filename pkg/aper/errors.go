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
	"fmt"
)

var (
	// Record validation errors

	// ErrInvalidRecordType is returned when reply type codes are not drawn from A-E.
	ErrInvalidRecordType = errors.New("bad record type")

	// ErrInvalidAddress is returned when an address fails validation for its list.
	ErrInvalidAddress = errors.New("bad address format")

	// ErrInvalidDate is returned when a date is not a valid YYYYMMDD value.
	ErrInvalidDate = errors.New("bad date format")

	// Input errors

	// ErrSourceFileUnreadable is returned when an existing database file cannot be read.
	ErrSourceFileUnreadable = errors.New("cannot open database file")

	// ErrBatchInputUnreadable is returned when the submitted batch cannot be read.
	ErrBatchInputUnreadable = errors.New("cannot open new data file")

	// ErrUnknownList is returned for a list name other than reply, cleared or links.
	ErrUnknownList = errors.New("unknown list")

	// Run phase errors

	// ErrLoadDatabase wraps any failure while loading the existing database.
	ErrLoadDatabase = errors.New("cannot load APER database")

	// ErrLoadBatch wraps any failure while folding the submitted batch.
	ErrLoadBatch = errors.New("cannot load user database")

	// ErrWriteDatabase wraps any failure while writing the merged database.
	ErrWriteDatabase = errors.New("cannot write APER database")
)

// RecordError describes a record that failed validation. Kind is one of
// ErrInvalidAddress, ErrInvalidRecordType or ErrInvalidDate.
type RecordError struct {
	Kind   error
	Value  string
	Line   int
	Source string
}

func (e *RecordError) Error() string {
	msg := e.Kind.Error()
	if e.Value != "" {
		msg += ": " + e.Value
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	return msg
}

func (e *RecordError) Unwrap() error {
	return e.Kind
}
