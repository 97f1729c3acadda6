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


package version

import "runtime/debug"

// Version is the aper release. Set it at build time with:
//
//	go build -ldflags "-X github.com/jeremyhahn/go-aper/pkg/version.Version=1.0.0"
var Version = ""

const develVersion = "0.1.0-dev"

// Get returns the version set at build time, the module version recorded
// by go install, or a development version.
func Get() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return develVersion
}
