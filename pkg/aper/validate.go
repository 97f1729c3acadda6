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
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// replyTypes are the type codes a reply record may carry.
	replyTypes = "ABCDE"

	// dateLength is the length of a YYYYMMDD date.
	dateLength = 8
)

// ValidDate reports whether date is a YYYYMMDD string naming a day that the
// 32-bit Unix clock can represent. Valid dates fall between 20:45:52 UTC,
// December 13, 1901 and 03:14:07 UTC, January 19, 2038, evaluated at one
// second past midnight UTC.
//
// Month and day are range checked (1-12, 1-31) but not calendar checked, so
// 20200231 is accepted and resolves to March 2. A zero year, month or day is
// rejected.
func ValidDate(date string) bool {
	if len(date) != dateLength {
		return false
	}
	for i := 0; i < len(date); i++ {
		if date[i] < '0' || date[i] > '9' {
			return false
		}
	}

	// All digits, so these cannot fail.
	y, _ := strconv.Atoi(date[0:4]) //nolint:errcheck // digits checked above
	m, _ := strconv.Atoi(date[4:6]) //nolint:errcheck // digits checked above
	d, _ := strconv.Atoi(date[6:8]) //nolint:errcheck // digits checked above

	if y == 0 || m == 0 || d == 0 {
		return false
	}
	if m > 12 || d > 31 {
		return false
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 1, 0, time.UTC).Unix()
	return t >= math.MinInt32 && t <= math.MaxInt32
}

// ValidEmailAddress performs a loose check of an email address. Basically
// something@more.here is good. There are no RFC-compliant checks except that
// the host must start with a letter, digit or hyphen.
//
// Returns false if the address:
//   - Is empty or has no '@'
//   - Has the '@' first or last
//   - Has no '.' in the host, or the first '.' directly follows the '@' or ends the host
//   - Contains ".." in the host
//   - Ends with '.'
//
// A trailing dot is legal FQDN syntax but is nearly always a typo, and
// keeping it would store a@b.c. and a@b.c as different entries.
func ValidEmailAddress(address string) bool {
	at := strings.IndexByte(address, '@')
	if at <= 0 || at >= len(address)-1 {
		return false
	}

	// host keeps the '@' at position 0
	host := address[at:]

	dot := strings.IndexByte(host, '.')
	if dot < 0 {
		return false
	}
	if strings.Contains(host, "..") {
		return false
	}
	if dot <= 1 || dot >= len(host)-1 {
		return false
	}

	if !isAlnum(host[1]) && host[1] != '-' {
		return false
	}

	return host[len(host)-1] != '.'
}

// ValidClearedAddress validates an address on the cleared list. Cleared
// entries are email addresses.
func ValidClearedAddress(address string) bool {
	return ValidEmailAddress(address)
}

// ValidLinkAddress performs a loose check of a web host address that has
// already been through CleanLinkAddress. Only the host part is inspected; the
// path, query and fragment are not validated.
//
// An embedded "://" is rejected. That catches URLs with a scheme other than
// http or https as well as misbehaved cut-and-pastes.
func ValidLinkAddress(address string) bool {
	if address == "" {
		return false
	}
	if strings.Contains(address, "://") {
		return false
	}

	host := linkHost(address)
	if host == "" {
		return false
	}
	if !strings.Contains(host, ".") {
		return false
	}
	if !isAlnum(host[0]) && host[0] != '-' {
		return false
	}
	if strings.Contains(host, "..") {
		return false
	}

	return host[len(host)-1] != '.'
}

// ValidTypeCodes reports whether codes is a non-empty run of reply type
// codes. Case is ignored.
func ValidTypeCodes(codes string) bool {
	if codes == "" {
		return false
	}
	for i := 0; i < len(codes); i++ {
		if strings.IndexByte(replyTypes, toUpper(codes[i])) < 0 {
			return false
		}
	}
	return true
}

// linkHost returns the authority part of a link address: everything before
// the first '/', '?' or '#'.
func linkHost(address string) string {
	if i := strings.IndexAny(address, "/?#"); i >= 0 {
		return address[:i]
	}
	return address
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
