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

// Package stash is the durable archive of content an actor was denied from
// writing or deleting. Each stash is one directory holding the archived
// content (absent for deletion records) plus a metadata document. Entries
// are immutable once written; they leave only by explicit delete or
// age-based pruning.
package stash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ErrNotFound marks a stash id with no stored entry.
var ErrNotFound = errors.New("stash not found")

// ErrDeletionRecord marks an attempt to apply a metadata-only deletion stash.
var ErrDeletionRecord = errors.New("stash is a deletion record with no content")

const metadataFile = "metadata.json"

// ProcessInfo identifies the actor whose mutation was denied.
type ProcessInfo struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

// Metadata carries display and dedup hints for a stash. The fingerprint is a
// fast non-cryptographic hash; it is for display and dedup only, never a
// security guarantee.
type Metadata struct {
	Size        int64  `json:"size"`
	Fingerprint string `json:"fingerprint"`
	IsDeletion  bool   `json:"is_deletion"`
}

// Entry is one archived denial.
type Entry struct {
	ID           string      `json:"id"`
	Timestamp    time.Time   `json:"timestamp"`
	OriginalPath string      `json:"original_path"`
	ContentPath  string      `json:"content_path,omitempty"`
	ProcessInfo  ProcessInfo `json:"process_info"`
	Operation    string      `json:"operation"`
	Metadata     Metadata    `json:"metadata"`
}

// Archive stores stashes under one directory, one subdirectory per id.
type Archive struct {
	fs  afero.Fs
	dir string

	mu     sync.Mutex
	lastID string
}

// ProjectDir returns the per-project stash directory under baseDir,
// derived from a short content hash of the project root so distinct
// projects never share stashes.
func ProjectDir(baseDir, projectRoot string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(projectRoot)))
	return filepath.Join(baseDir, hex.EncodeToString(sum[:8]))
}

// NewArchive opens (creating if needed) the archive at dir, and drops a
// project marker so a human browsing the stash tree can tell which project
// a directory belongs to.
func NewArchive(fs afero.Fs, dir, projectRoot string) (*Archive, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stash directory %s: %w", dir, err)
	}

	markerPath := filepath.Join(dir, "project_info.json")
	if exists, _ := afero.Exists(fs, markerPath); !exists {
		marker := map[string]string{
			"project_path": projectRoot,
			"created":      time.Now().UTC().Format(time.RFC3339),
		}
		out, err := json.MarshalIndent(marker, "", "  ")
		if err == nil {
			if err := afero.WriteFile(fs, markerPath, out, 0o644); err != nil {
				return nil, fmt.Errorf("failed to write project marker: %w", err)
			}
		}
	}

	return &Archive{fs: fs, dir: dir}, nil
}

// Dir returns the archive's storage directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Create archives content that was denied from being written to path and
// returns the new stash id.
func (a *Archive) Create(path string, content []byte, info ProcessInfo, operation string) (string, error) {
	id := a.nextID()
	subdir := filepath.Join(a.dir, id)
	if err := a.fs.MkdirAll(subdir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create stash %s: %w", id, err)
	}

	contentPath := filepath.Join(subdir, filepath.Base(path))
	if err := afero.WriteFile(a.fs, contentPath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write stash content for %s: %w", id, err)
	}

	entry := Entry{
		ID:           id,
		Timestamp:    time.Now().UTC(),
		OriginalPath: path,
		ContentPath:  contentPath,
		ProcessInfo:  info,
		Operation:    operation,
		Metadata: Metadata{
			Size:        int64(len(content)),
			Fingerprint: fingerprint(content),
		},
	}
	if err := a.writeMetadata(subdir, entry); err != nil {
		return "", err
	}
	return id, nil
}

// CreateDeletion records a denied deletion of path. Metadata only; there is
// no content to archive.
func (a *Archive) CreateDeletion(path string, info ProcessInfo) (string, error) {
	id := a.nextID()
	subdir := filepath.Join(a.dir, id)
	if err := a.fs.MkdirAll(subdir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create stash %s: %w", id, err)
	}

	entry := Entry{
		ID:           id,
		Timestamp:    time.Now().UTC(),
		OriginalPath: path,
		ProcessInfo:  info,
		Operation:    "delete",
		Metadata:     Metadata{IsDeletion: true},
	}
	if err := a.writeMetadata(subdir, entry); err != nil {
		return "", err
	}
	return id, nil
}

func (a *Archive) writeMetadata(subdir string, entry Entry) error {
	out, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode stash metadata: %w", err)
	}
	if err := afero.WriteFile(a.fs, filepath.Join(subdir, metadataFile), out, 0o644); err != nil {
		return fmt.Errorf("failed to write stash metadata: %w", err)
	}
	return nil
}

// Get loads the entry for id.
func (a *Archive) Get(id string) (Entry, error) {
	metadataPath := filepath.Join(a.dir, id, metadataFile)
	content, err := afero.ReadFile(a.fs, metadataPath)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var entry Entry
	if err := json.Unmarshal(content, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode stash metadata for %s: %w", id, err)
	}
	return entry, nil
}

// Content returns the archived bytes for id.
func (a *Archive) Content(id string) ([]byte, error) {
	entry, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	if entry.Metadata.IsDeletion || entry.ContentPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrDeletionRecord, id)
	}
	content, err := afero.ReadFile(a.fs, entry.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stash content for %s: %w", id, err)
	}
	return content, nil
}

// List returns all entries, newest first.
func (a *Archive) List() ([]Entry, error) {
	dirs, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read stash directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		entry, err := a.Get(d.Name())
		if err != nil {
			// A half-written or foreign directory; skip it.
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Apply writes the archived content back to its original path, recreating
// parent directories as needed. Deletion records cannot be applied.
func (a *Archive) Apply(id string) error {
	entry, err := a.Get(id)
	if err != nil {
		return err
	}
	if entry.Metadata.IsDeletion {
		return fmt.Errorf("%w: %s", ErrDeletionRecord, id)
	}
	content, err := afero.ReadFile(a.fs, entry.ContentPath)
	if err != nil {
		return fmt.Errorf("failed to read stash content for %s: %w", id, err)
	}
	if dir := filepath.Dir(entry.OriginalPath); dir != "" {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to recreate parent directory for %s: %w", entry.OriginalPath, err)
		}
	}
	if err := afero.WriteFile(a.fs, entry.OriginalPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to apply stash %s to %s: %w", id, entry.OriginalPath, err)
	}
	return nil
}

// Delete removes the stash for id. Removing a missing id is not an error.
func (a *Archive) Delete(id string) error {
	subdir := filepath.Join(a.dir, id)
	if exists, _ := afero.DirExists(a.fs, subdir); !exists {
		return nil
	}
	if err := a.fs.RemoveAll(subdir); err != nil {
		return fmt.Errorf("failed to delete stash %s: %w", id, err)
	}
	return nil
}

// Prune deletes entries older than maxAge and returns how many went.
func (a *Archive) Prune(maxAge time.Duration) (int, error) {
	entries, err := a.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			if err := a.Delete(entry.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// Summary renders a one-screen human description of a stash.
func (a *Archive) Summary(id string) (string, error) {
	entry, err := a.Get(id)
	if err != nil {
		return "", err
	}
	if entry.Metadata.IsDeletion {
		return fmt.Sprintf("Deletion attempt of: %s", entry.OriginalPath), nil
	}
	return fmt.Sprintf(
		"Stash: %s\nFile: %s\nOperation: %s\nProcess: %s (PID: %d)\nTime: %s\nSize: %d bytes\nFingerprint: %s",
		entry.ID,
		entry.OriginalPath,
		entry.Operation,
		entry.ProcessInfo.Name,
		entry.ProcessInfo.PID,
		entry.Timestamp.Format("2006-01-02 15:04:05 UTC"),
		entry.Metadata.Size,
		entry.Metadata.Fingerprint,
	), nil
}

// nextID allocates a time-ordered unique id. Two stashes in the same
// millisecond get a numeric suffix so ids stay unique and sortable.
func (a *Archive) nextID() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := fmt.Sprintf("stash_%d", time.Now().UnixMilli())
	exists, _ := afero.DirExists(a.fs, filepath.Join(a.dir, id))
	if exists || id == a.lastID || (len(a.lastID) > len(id) && a.lastID[:len(id)] == id) {
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s_%d", id, n)
			if candidate != a.lastID {
				if exists, _ := afero.DirExists(a.fs, filepath.Join(a.dir, candidate)); !exists {
					id = candidate
					break
				}
			}
		}
	}
	a.lastID = id
	return id
}

func fingerprint(content []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(content)
	return fmt.Sprintf("%016x", h.Sum64())
}
