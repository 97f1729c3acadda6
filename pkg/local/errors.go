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

package local

import "errors"

var (
	// Configuration errors

	// ErrDataDirNotSet is returned when the database directory is not set.
	ErrDataDirNotSet = errors.New("data directory not set")

	// ErrFileNameNotSet is returned when a list has no database file name.
	ErrFileNameNotSet = errors.New("database file name not set")

	// Replace errors

	// ErrTempFileUnwritable is returned when the temporary file cannot be created or written.
	ErrTempFileUnwritable = errors.New("cannot write temporary file")

	// ErrTempFileRename is returned when the temporary file cannot replace the database file.
	ErrTempFileRename = errors.New("cannot rename temporary file")

	// ErrTempFileRemove is returned when a temporary file left by a failed replace cannot be removed.
	ErrTempFileRemove = errors.New("cannot remove temporary file")
)
