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

package local_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-aper/pkg/aper"
	"github.com/jeremyhahn/go-aper/pkg/local"
)

func files() map[aper.List]string {
	return map[aper.List]string{
		aper.Reply:   "phishing_reply_addresses",
		aper.Cleared: "phishing_cleared_addresses",
		aper.Links:   "phishing_links",
	}
}

func newDatabase(t *testing.T) (*local.Database, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := local.New(local.Config{DataDir: dir, Files: files()})
	require.NoError(t, err)
	return db, dir
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, local.DefaultTempPrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestNew(t *testing.T) {
	_, err := local.New(local.Config{Files: files()})
	assert.ErrorIs(t, err, local.ErrDataDirNotSet)

	incomplete := files()
	delete(incomplete, aper.Links)
	_, err = local.New(local.Config{DataDir: t.TempDir(), Files: incomplete})
	assert.ErrorIs(t, err, local.ErrFileNameNotSet)
}

func TestDatabase_Path(t *testing.T) {
	db, dir := newDatabase(t)
	assert.Equal(t, dir, db.Dir())
	assert.Equal(t, filepath.Join(dir, "phishing_links"), db.Path(aper.Links))

	abs := filepath.Join(t.TempDir(), "reply.db")
	f := files()
	f[aper.Reply] = abs
	db, err := local.New(local.Config{DataDir: dir, Files: f})
	require.NoError(t, err)
	assert.Equal(t, abs, db.Path(aper.Reply))
}

func TestDatabase_Open(t *testing.T) {
	db, dir := newDatabase(t)
	ctx := context.Background()

	_, err := db.Open(ctx, aper.Reply)
	assert.ErrorIs(t, err, aper.ErrSourceFileUnreadable)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "phishing_reply_addresses"), []byte("a@example.com,A,20240101\n"), 0644))
	rc, err := db.Open(ctx, aper.Reply)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com,A,20240101\n", string(data))
}

func TestDatabase_OpenCancelled(t *testing.T) {
	db, _ := newDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Open(ctx, aper.Links)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDatabase_Replace(t *testing.T) {
	db, dir := newDatabase(t)
	path := db.Path(aper.Links)
	require.NoError(t, os.WriteFile(path, []byte("old.example.com,20200101\n"), 0640))

	err := db.Replace(context.Background(), aper.Links, writeString("new.example.com,20240101\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com,20240101\n", string(data))
	assert.Empty(t, leftovers(t, dir))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestDatabase_ReplaceRenderFailureKeepsOriginal(t *testing.T) {
	db, dir := newDatabase(t)
	path := db.Path(aper.Cleared)
	original := []byte("# header\na@example.com,20200101\n")
	require.NoError(t, os.WriteFile(path, original, 0644))

	boom := errors.New("render failed")
	err := db.Replace(context.Background(), aper.Cleared, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})

	assert.ErrorIs(t, err, local.ErrTempFileUnwritable)
	assert.ErrorIs(t, err, boom)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, original, data)
	assert.Empty(t, leftovers(t, dir))
}

func TestDatabase_ReplaceRenameFailure(t *testing.T) {
	db, dir := newDatabase(t)

	// A non-empty directory cannot be replaced by a file.
	target := filepath.Join(dir, "occupied")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0750))

	err := db.ReplaceFile(context.Background(), target, writeString("data\n"))
	assert.ErrorIs(t, err, local.ErrTempFileRename)
	assert.NotErrorIs(t, err, local.ErrTempFileRemove)
	assert.Empty(t, leftovers(t, dir))

	info, statErr := os.Stat(target)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestDatabase_ReplaceUnwritableTempDir(t *testing.T) {
	dir := t.TempDir()
	db, err := local.New(local.Config{
		DataDir: dir,
		Files:   files(),
		TempDir: filepath.Join(dir, "missing"),
	})
	require.NoError(t, err)

	err = db.Replace(context.Background(), aper.Reply, writeString(""))
	assert.ErrorIs(t, err, local.ErrTempFileUnwritable)
}

func TestDatabase_ReplaceCustomTempDirAndPrefix(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	require.NoError(t, os.Mkdir(tempDir, 0750))

	db, err := local.New(local.Config{
		DataDir:    dir,
		Files:      files(),
		TempDir:    tempDir,
		TempPrefix: ".custom",
	})
	require.NoError(t, err)

	err = db.Replace(context.Background(), aper.Reply, writeString("a@example.com,A,20240101\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(db.Path(aper.Reply))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com,A,20240101\n", string(data))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDatabase_ReplaceNewFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits differ on windows")
	}
	db, _ := newDatabase(t)

	require.NoError(t, db.Replace(context.Background(), aper.Links, writeString("")))

	info, err := os.Stat(db.Path(aper.Links))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestDatabase_ReplaceCancelled(t *testing.T) {
	db, dir := newDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := db.Replace(ctx, aper.Links, func(w io.Writer) error {
		cancel()
		_, err := io.WriteString(w, "x.example.com,20240101\n")
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, leftovers(t, dir))

	_, statErr := os.Stat(db.Path(aper.Links))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestDatabase_Create(t *testing.T) {
	db, dir := newDatabase(t)
	ctx := context.Background()

	created, err := db.Create(ctx, aper.Reply)
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, os.WriteFile(db.Path(aper.Reply), []byte("# kept\n"), 0644))
	created, err = db.Create(ctx, aper.Reply)
	require.NoError(t, err)
	assert.False(t, created)

	data, err := os.ReadFile(db.Path(aper.Reply))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# kept"))
	assert.Empty(t, leftovers(t, dir))
}
