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

package cli

import (
	"errors"

	"github.com/jeremyhahn/go-aper/pkg/aper"
)

var (
	// Configuration errors

	// ErrDataDirRequired is returned when data-dir is empty.
	ErrDataDirRequired = errors.New("data-dir is required")

	// ErrFileNameRequired is returned when a database file name is empty.
	ErrFileNameRequired = errors.New("reply-file, cleared-file and links-file are required")

	// ErrUnsupportedOutputFormat is returned when an unsupported output format is specified.
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")

	// ErrUnsupportedLogFormat is returned when an unsupported log format is specified.
	ErrUnsupportedLogFormat = errors.New("unsupported log format")

	// Invocation errors

	// ErrUsage is returned for a missing or unknown list or command argument.
	ErrUsage = errors.New("usage error")

	// ErrStdinBatch is returned when a command that needs a named batch file is given stdin.
	ErrStdinBatch = errors.New("batch must be a file")
)

// Exit codes reported by the aper command.
const (
	ExitOK            = 0
	ExitUsage         = 1
	ExitLoadDatabase  = 11
	ExitLoadBatch     = 12
	ExitWriteDatabase = 13
)

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, aper.ErrLoadDatabase):
		return ExitLoadDatabase
	case errors.Is(err, aper.ErrLoadBatch):
		return ExitLoadBatch
	case errors.Is(err, aper.ErrWriteDatabase):
		return ExitWriteDatabase
	default:
		return ExitUsage
	}
}
