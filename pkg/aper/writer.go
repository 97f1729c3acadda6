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
	"io"
)

// Write renders store in database format: the leading comments in their
// original order, then one line per live record in key order. Reply lines
// are address,TYPES,date; links and cleared lines are address,date.
func Write(w io.Writer, store *Store) error {
	bw := bufio.NewWriter(w)

	for _, c := range store.Comments() {
		if _, err := bw.WriteString(c + "\n"); err != nil {
			return err
		}
	}

	for _, rec := range store.Records() {
		var line string
		switch r := rec.(type) {
		case *ReplyRecord:
			if r.cleared {
				continue
			}
			line = r.address + string(fieldToken) + r.types.String() + string(fieldToken) + r.date
		case *LinkRecord:
			line = r.address + string(fieldToken) + r.date
		case *ClearedRecord:
			line = r.address + string(fieldToken) + r.date
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
