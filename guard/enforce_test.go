// Copyright 2025 OpenPubkey
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/fsguard/fsguard/stash"
)

type engineFixture struct {
	fs      afero.Fs
	vault   *Vault
	archive *stash.Archive
	engine  *Engine
	events  []Event
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	archive, err := stash.NewArchive(fs, "/stashes/abc123", "/project")
	require.NoError(t, err)

	f := &engineFixture{
		fs:      fs,
		vault:   NewVault(fs),
		archive: archive,
	}
	f.engine = NewEngine(fs, f.vault, archive, DefaultResolvers(), func(e Event) {
		f.events = append(f.events, e)
	})
	f.engine.graceDelay = 0
	return f
}

func (f *engineFixture) stashed(t *testing.T) []stash.Entry {
	t.Helper()
	entries, err := f.archive.List()
	require.NoError(t, err)
	return entries
}

func TestEnforceWriteRevertRestoresBackup(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/src/main.go"
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("good content"), 0o644))
	f.vault.Remember(path, []byte("good content"))

	require.NoError(t, afero.WriteFile(f.fs, path, []byte("sneaky edit"), 0o644))
	f.engine.EnforceWrite(
		SourceEvent{Process: "vim", PID: 42, Op: "write", Path: path},
		Config{BlockMode: Revert, AutoStash: true},
	)

	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	require.Equal(t, "good content", string(content))

	entries := f.stashed(t)
	require.Len(t, entries, 1)
	require.Equal(t, path, entries[0].OriginalPath)
	require.Equal(t, "vim", entries[0].ProcessInfo.Name)
	stashedContent, err := f.archive.Content(entries[0].ID)
	require.NoError(t, err)
	require.Equal(t, "sneaky edit", string(stashedContent))

	require.Len(t, f.events, 2)
	blocked, ok := f.events[0].(BlockedWrite)
	require.True(t, ok)
	require.Equal(t, path, blocked.Path)
	require.Equal(t, 42, blocked.PID)
	stashedEvent, ok := f.events[1].(StashedChange)
	require.True(t, ok)
	require.Equal(t, entries[0].ID, stashedEvent.StashID)
}

func TestEnforceWriteSwapPathResolvesToTarget(t *testing.T) {
	f := newEngineFixture(t)
	target := "/project/notes.md"
	require.NoError(t, afero.WriteFile(f.fs, target, []byte("edited"), 0o644))
	f.vault.Remember(target, []byte("original"))

	f.engine.EnforceWrite(
		SourceEvent{Process: "vim", PID: 1, Op: "write", Path: "/project/.notes.md.swp"},
		Config{BlockMode: Revert, AutoStash: true},
	)

	content, err := afero.ReadFile(f.fs, target)
	require.NoError(t, err)
	require.Equal(t, "original", string(content))
	require.Equal(t, target, f.events[0].(BlockedWrite).Path)
}

func TestEnforceWriteNoBackupLeavesFile(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/new.txt"
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("fresh"), 0o644))

	f.engine.EnforceWrite(
		SourceEvent{Process: "vim", PID: 1, Op: "create", Path: path},
		Config{BlockMode: Revert, AutoStash: true},
	)

	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(content))
	require.Empty(t, f.stashed(t))
	require.Len(t, f.events, 1)
}

func TestEnforceWriteIdenticalContentNotStashed(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/same.txt"
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("unchanged"), 0o644))
	f.vault.Remember(path, []byte("unchanged"))

	f.engine.EnforceWrite(
		SourceEvent{Process: "vim", PID: 1, Op: "WrMeta", Path: path},
		Config{BlockMode: Revert, AutoStash: true},
	)

	require.Empty(t, f.stashed(t))
	require.Len(t, f.events, 1)
}

func TestEnforceWriteAutoStashOffRevertsWithoutStash(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/a.txt"
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("changed"), 0o644))
	f.vault.Remember(path, []byte("kept"))

	f.engine.EnforceWrite(
		SourceEvent{Process: "nvim", PID: 1, Op: "write", Path: path},
		Config{BlockMode: Revert, AutoStash: false},
	)

	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	require.Equal(t, "kept", string(content))
	require.Empty(t, f.stashed(t))
}

func TestEnforceWriteNotifyOnlyTouchesNothing(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/a.txt"
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("changed"), 0o644))
	f.vault.Remember(path, []byte("backup"))

	f.engine.EnforceWrite(
		SourceEvent{Process: "vim", PID: 1, Op: "write", Path: path},
		Config{BlockMode: NotifyOnly, AutoStash: true},
	)

	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	require.Equal(t, "changed", string(content))
	require.Empty(t, f.stashed(t))
	require.Len(t, f.events, 1)
	require.IsType(t, BlockedWrite{}, f.events[0])
}

func TestEnforceWriteStashOnlyKeepsFileAndStashes(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/a.txt"
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("changed"), 0o644))
	f.vault.Remember(path, []byte("backup"))

	f.engine.EnforceWrite(
		SourceEvent{Process: "vim", PID: 7, Op: "write", Path: path},
		Config{BlockMode: StashOnly, AutoStash: true},
	)

	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	require.Equal(t, "changed", string(content), "stash-only must not revert")

	entries := f.stashed(t)
	require.Len(t, entries, 1)
	stashedContent, err := f.archive.Content(entries[0].ID)
	require.NoError(t, err)
	require.Equal(t, "changed", string(stashedContent))
}

func TestEnforceDeleteRecordsDeletion(t *testing.T) {
	f := newEngineFixture(t)
	path := "/project/gone.txt"

	f.engine.EnforceDelete(
		SourceEvent{Process: "claude", PID: 9, Op: "unlink", Path: path},
		Config{BlockMode: Revert, AutoStash: true},
	)

	require.Len(t, f.events, 2)
	require.IsType(t, BlockedDelete{}, f.events[0])

	entries := f.stashed(t)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Metadata.IsDeletion)
	require.Equal(t, path, entries[0].OriginalPath)
	_, err := f.archive.Content(entries[0].ID)
	require.Error(t, err)
}

func TestEnforceDeleteNotifyOnlySkipsStash(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.EnforceDelete(
		SourceEvent{Process: "claude", PID: 9, Op: "unlink", Path: "/project/gone.txt"},
		Config{BlockMode: NotifyOnly, AutoStash: true},
	)

	require.Len(t, f.events, 1)
	require.Empty(t, f.stashed(t))
}
