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

// Package aper maintains the APER address databases: the phishing reply
// list, the cleared list and the phishing links list.
//
// Each database is a text file with one record per line and comma
// separated fields. A run loads an existing database into a Store, folds a
// batch of submitted records into it and writes the Store back:
//
//	store := aper.NewStore(aper.Reply)
//	aper.LoadDatabase(store, replyFile, "phishing_reply_addresses")
//	aper.LoadClearedFlags(store, clearedFile, "phishing_cleared_addresses")
//	aper.FoldBatch(store, os.Stdin, "-")
//	aper.Write(out, store)
//
// Any invalid record aborts the run with a *RecordError.
package aper
