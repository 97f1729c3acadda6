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

import "strings"

// CleanLinkAddress transforms a submitted URL into the form stored on the
// links list:
//
//  1. a leading http:// or https:// scheme is removed (any case). Schemes
//     embedded later in the string are left alone so ValidLinkAddress can
//     flag them.
//  2. the authority, everything before the first '/', '?' or '#', is
//     lower-cased. Path casing is preserved.
//  3. one trailing '/' is removed.
func CleanLinkAddress(url string) string {
	if url == "" {
		return url
	}

	if i := strings.Index(url, "://"); i >= 0 {
		scheme := strings.ToLower(url[:i+3])
		if scheme == "http://" || scheme == "https://" {
			url = url[i+3:]
		}
	}

	if i := strings.IndexAny(url, "/?#"); i >= 0 {
		url = strings.ToLower(url[:i]) + url[i:]
	} else {
		url = strings.ToLower(url)
	}

	return strings.TrimSuffix(url, "/")
}
