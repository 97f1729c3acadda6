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

// Package export renders the live reply list as Postfix lookup tables.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/jeremyhahn/go-aper/pkg/aper"
)

// Format is a Postfix table layout.
type Format string

const (
	// FormatAccess is an access(5) table rejecting mail to listed addresses.
	FormatAccess Format = "access"
	// FormatVirtual is a virtual(5) table redirecting listed addresses to a trap mailbox.
	FormatVirtual Format = "virtual"
	// FormatHeaderChecks is a header_checks(5) regexp table quarantining
	// messages whose From: or Reply-To: names a listed address.
	FormatHeaderChecks Format = "header-checks"
)

// Formats lists every supported format.
var Formats = []Format{FormatAccess, FormatVirtual, FormatHeaderChecks}

const (
	// DefaultMaxAge is the default age window in days.
	DefaultMaxAge = 30
	// DefaultAction is the access table action.
	DefaultAction = "REJECT"

	dateLayout = "20060102"
)

var (
	// ErrUnknownFormat is returned for a format name other than access, virtual or header-checks.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrTrapAddressRequired is returned when a virtual table is requested without a trap address.
	ErrTrapAddressRequired = errors.New("trap address is required for virtual maps")

	// ErrQuarantineAddressRequired is returned when header checks are requested without a quarantine address.
	ErrQuarantineAddressRequired = errors.New("quarantine address is required for header checks")

	// ErrNegativeMaxAge is returned for a negative age window.
	ErrNegativeMaxAge = errors.New("max age must not be negative")
)

// ParseFormat converts a format name into a Format.
func ParseFormat(name string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(name, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Options controls what is exported and how it is rendered.
type Options struct {
	Format Format

	// MaxAge keeps records dated within this many days before Now. Zero
	// keeps every live record.
	MaxAge int

	// Now is the reference time for MaxAge. The zero value means time.Now.
	Now time.Time

	// Action is the access table action. Empty means DefaultAction.
	Action string

	// TrapAddress receives redirected replies in a virtual table.
	TrapAddress string

	// QuarantineAddress receives messages matched by header checks.
	QuarantineAddress string
}

// Validate checks that opts carries what its format needs.
func (o Options) Validate() error {
	if o.MaxAge < 0 {
		return ErrNegativeMaxAge
	}
	switch o.Format {
	case FormatAccess:
	case FormatVirtual:
		if o.TrapAddress == "" {
			return ErrTrapAddressRequired
		}
	case FormatHeaderChecks:
		if o.QuarantineAddress == "" {
			return ErrQuarantineAddressRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, o.Format)
	}
	return nil
}

// Select returns the live addresses of a reply store dated after the age
// window, in sorted order.
func Select(store *aper.Store, maxAge int, now time.Time) []string {
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := ""
	if maxAge > 0 {
		cutoff = now.AddDate(0, 0, -maxAge).Format(dateLayout)
	}

	var addresses []string
	for _, rec := range store.Live() {
		if _, ok := rec.(*aper.ReplyRecord); !ok {
			continue
		}
		if rec.Date() > cutoff {
			addresses = append(addresses, rec.Address())
		}
	}
	return addresses
}

// Render writes one table line per address in the layout of opts.Format.
func Render(w io.Writer, addresses []string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	action := opts.Action
	if action == "" {
		action = DefaultAction
	}

	bw := bufio.NewWriter(w)
	for _, address := range addresses {
		var line string
		switch opts.Format {
		case FormatAccess:
			line = address + "\t " + action
		case FormatVirtual:
			line = address + "\t" + opts.TrapAddress
		case FormatHeaderChecks:
			line = fmt.Sprintf("/(From:|Reply-To:).*%s/    REDIRECT %s", regexp.QuoteMeta(address), opts.QuarantineAddress)
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
