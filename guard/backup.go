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
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/fsguard/fsguard/tree"
)

// Vault caches the last-known-good content of protected files, the target a
// revert restores to. Seeded by a full snapshot at monitor start, refreshed
// whenever an allowed actor's write completes. Entries never expire; a
// guardian restart replaces the whole cache.
type Vault struct {
	fs afero.Fs

	mu      sync.RWMutex
	content map[string][]byte
}

// NewVault creates an empty vault over fs.
func NewVault(fs afero.Fs) *Vault {
	return &Vault{
		fs:      fs,
		content: make(map[string][]byte),
	}
}

// SnapshotAll recursively records every file under each of the given paths,
// skipping dot entries and paths matching the ignore patterns. Individual
// read failures are logged and skipped so one unreadable file does not leave
// the rest of the tree without a revert target.
func (v *Vault) SnapshotAll(paths []string, ignorePatterns []string) {
	for _, path := range paths {
		if err := v.snapshotPath(path, ignorePatterns); err != nil {
			log.Printf("backup: failed to snapshot %s: %v", path, err)
		}
	}
}

func (v *Vault) snapshotPath(path string, ignorePatterns []string) error {
	info, err := v.fs.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return v.Refresh(path)
	}

	entries, err := afero.ReadDir(v.fs, path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		child := filepath.Join(path, name)
		if tree.Ignored(child, name, ignorePatterns) {
			continue
		}
		if err := v.snapshotPath(child, ignorePatterns); err != nil {
			log.Printf("backup: failed to snapshot %s: %v", child, err)
		}
	}
	return nil
}

// Refresh re-reads path from disk and replaces its entry.
func (v *Vault) Refresh(path string) error {
	content, err := afero.ReadFile(v.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	v.Remember(path, content)
	return nil
}

// Remember stores content as the revert target for path.
func (v *Vault) Remember(path string, content []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.content[filepath.Clean(path)] = append([]byte(nil), content...)
}

// Get returns the stored content for path.
func (v *Vault) Get(path string) ([]byte, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	content, ok := v.content[filepath.Clean(path)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}

// Len returns the number of cached entries.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.content)
}
