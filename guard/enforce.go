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
	"bytes"
	"log"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/fsguard/fsguard/stash"
)

// Engine decides and performs the revert / stash / notify action for a
// classified violation. Every fallible step here is caught and logged: a
// failed revert or stash degrades to a no-op for that one event and must
// never propagate into the monitor loop.
type Engine struct {
	fs        afero.Fs
	vault     *Vault
	archive   *stash.Archive
	resolvers ResolverChain
	emit      func(Event)

	// graceDelay is the settle pause before read-and-revert of rename-heavy
	// operations, letting the editor's multi-step save finish first.
	// Lowered to zero in tests.
	graceDelay time.Duration
}

const defaultGraceDelay = 200 * time.Millisecond

// NewEngine wires an enforcement engine. emit receives the events the
// engine produces, in the order it produces them.
func NewEngine(fs afero.Fs, vault *Vault, archive *stash.Archive, resolvers ResolverChain, emit func(Event)) *Engine {
	return &Engine{
		fs:         fs,
		vault:      vault,
		archive:    archive,
		resolvers:  resolvers,
		emit:       emit,
		graceDelay: defaultGraceDelay,
	}
}

// EnforceWrite handles a write-like violation of a locked path. The event
// path is first mapped through the resolver chain so editor indirection
// (swap files, tilde backups) lands on the real target.
func (e *Engine) EnforceWrite(event SourceEvent, cfg Config) {
	path := e.resolvers.Resolve(event.Process, event.Path)

	e.emit(BlockedWrite{
		Path:      path,
		Process:   event.Process,
		PID:       event.PID,
		Timestamp: time.Now().UTC(),
	})

	switch cfg.BlockMode {
	case Revert:
		e.revert(event, path, cfg)
	case StashOnly:
		e.stashCurrent(event, path)
	case NotifyOnly:
		// Event only; nothing is touched.
	}
}

// EnforceDelete handles a delete-like violation. Deletions cannot be
// reverted in place; when auto-stash is on, a metadata-only record is kept.
func (e *Engine) EnforceDelete(event SourceEvent, cfg Config) {
	e.emit(BlockedDelete{
		Path:      event.Path,
		Process:   event.Process,
		PID:       event.PID,
		Timestamp: time.Now().UTC(),
	})

	if cfg.BlockMode == NotifyOnly || !cfg.AutoStash {
		return
	}

	id, err := e.archive.CreateDeletion(event.Path, stash.ProcessInfo{Name: event.Process, PID: event.PID})
	if err != nil {
		log.Printf("enforce: failed to stash deletion of %s: %v", event.Path, err)
		return
	}
	e.emit(StashedChange{StashID: id, Path: event.Path, Operation: "delete"})
}

func (e *Engine) revert(event SourceEvent, path string, cfg Config) {
	// Editors that save via rename need the whole rename dance to finish
	// before the file is worth reading back.
	if strings.Contains(event.Op, "rename") || rewritesViaRename(event.Process) {
		time.Sleep(e.graceDelay)
	}

	backup, ok := e.vault.Get(path)
	if !ok {
		// No revert target. Restoring nothing would truncate a file we have
		// never seen the good content of, so the policy is: log, move on.
		log.Printf("enforce: no backup for %s, leaving file as written", path)
		return
	}

	violating, readErr := afero.ReadFile(e.fs, path)

	if err := afero.WriteFile(e.fs, path, backup, 0o644); err != nil {
		log.Printf("enforce: failed to revert %s: %v", path, err)
		return
	}
	if cfg.Verbose {
		log.Printf("enforce: reverted %s to backup (%d bytes)", path, len(backup))
	}

	if !cfg.AutoStash || readErr != nil {
		return
	}
	if bytes.Equal(violating, backup) {
		// The write happened to land the same bytes; nothing worth keeping.
		return
	}
	id, err := e.archive.Create(path, violating, stash.ProcessInfo{Name: event.Process, PID: event.PID}, event.Op)
	if err != nil {
		log.Printf("enforce: failed to stash reverted content of %s: %v", path, err)
		return
	}
	e.emit(StashedChange{StashID: id, Path: path, Operation: event.Op})
}

func (e *Engine) stashCurrent(event SourceEvent, path string) {
	content, err := afero.ReadFile(e.fs, path)
	if err != nil {
		log.Printf("enforce: failed to read %s for stash: %v", path, err)
		return
	}
	id, err := e.archive.Create(path, content, stash.ProcessInfo{Name: event.Process, PID: event.PID}, event.Op)
	if err != nil {
		log.Printf("enforce: failed to stash %s: %v", path, err)
		return
	}
	e.emit(StashedChange{StashID: id, Path: path, Operation: event.Op})
}

// rewritesViaRename lists editors known to save by writing a temp file and
// renaming it over the target.
func rewritesViaRename(process string) bool {
	return strings.Contains(process, "vim")
}
