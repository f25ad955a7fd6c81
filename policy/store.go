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

package policy

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Store is the authoritative answer to "is this path currently protected".
// It holds two explicit rule sets: paths the operator locked and paths the
// operator unlocked underneath a locked ancestor. Everything else is derived
// per query by walking ancestors; derived state is never stored.
//
// Invariant: a path is never present in both sets after a mutation returns.
type Store struct {
	mu   sync.RWMutex
	fs   afero.Fs
	root string

	locked   map[string]struct{}
	unlocked map[string]struct{}
}

// NewStore creates an empty Store rooted at root. The afero.Fs is only used
// to distinguish files from directories when purging descendant rules and
// when compacting to patterns.
func NewStore(fs afero.Fs, root string) *Store {
	return &Store{
		fs:       fs,
		root:     filepath.Clean(root),
		locked:   make(map[string]struct{}),
		unlocked: make(map[string]struct{}),
	}
}

// Root returns the directory this store's rules are relative to.
func (s *Store) Root() string {
	return s.root
}

// IsLocked reports the effective authorization of path. It walks from path
// itself outward through its ancestors. The first explicit rule found wins,
// with one tie-break: an explicit lock on an ancestor is overridden when an
// explicit unlock lies strictly between that ancestor and path.
func (s *Store) IsLocked(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path = filepath.Clean(path)
	for cur := path; ; {
		if _, ok := s.unlocked[cur]; ok {
			return false
		}
		if _, ok := s.locked[cur]; ok {
			// A closer unlock re-opens the subtree below this lock.
			for u := range s.unlocked {
				if isUnderOrSame(u, cur) && isUnderOrSame(path, u) {
					return false
				}
			}
			return true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return false
		}
		cur = parent
	}
}

// Lock marks path as explicitly protected. Locking a directory makes every
// rule below it redundant, so descendant rules in both sets are purged.
func (s *Store) Lock(path string) {
	path = filepath.Clean(path)
	isDir := s.isDir(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.locked[path] = struct{}{}
	delete(s.unlocked, path)
	if isDir {
		s.purgeDescendantsLocked(path)
	}
}

// Unlock removes protection from path. If path carries an explicit lock the
// lock is removed; otherwise the lock is inherited from an ancestor and an
// explicit unlock override is recorded instead. Either way descendant rules
// are purged when path is a directory, since the new rule now governs them.
func (s *Store) Unlock(path string) {
	path = filepath.Clean(path)
	isDir := s.isDir(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locked[path]; ok {
		delete(s.locked, path)
	} else {
		s.unlocked[path] = struct{}{}
		delete(s.locked, path)
	}
	if isDir {
		s.purgeDescendantsLocked(path)
	}
}

// purgeDescendantsLocked removes every explicit rule strictly below dir.
// Callers must hold the write lock.
func (s *Store) purgeDescendantsLocked(dir string) {
	for p := range s.locked {
		if p != dir && isUnderOrSame(p, dir) {
			delete(s.locked, p)
		}
	}
	for p := range s.unlocked {
		if p != dir && isUnderOrSame(p, dir) {
			delete(s.unlocked, p)
		}
	}
}

// LockedRoots returns the explicitly locked paths, sorted. The monitor uses
// this to seed its backup snapshot at startup.
func (s *Store) LockedRoots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := make([]string, 0, len(s.locked))
	for p := range s.locked {
		roots = append(roots, p)
	}
	sort.Strings(roots)
	return roots
}

// UnlockedRoots returns the explicitly unlocked paths, sorted.
func (s *Store) UnlockedRoots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := make([]string, 0, len(s.unlocked))
	for p := range s.unlocked {
		roots = append(roots, p)
	}
	sort.Strings(roots)
	return roots
}

// HasRule reports whether path carries any explicit rule.
func (s *Store) HasRule(path string) bool {
	path = filepath.Clean(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, l := s.locked[path]
	_, u := s.unlocked[path]
	return l || u
}

// ApplyPatterns replaces the rule sets with the expansion of the given
// compact pattern lists. Used at startup and when switching profiles.
func (s *Store) ApplyPatterns(lockedPatterns, unlockedPatterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locked = make(map[string]struct{})
	s.unlocked = make(map[string]struct{})
	for _, p := range Expand(s.root, lockedPatterns) {
		s.locked[p] = struct{}{}
	}
	for _, p := range Expand(s.root, unlockedPatterns) {
		// Locked wins on a malformed document that lists a path in both.
		if _, ok := s.locked[p]; !ok {
			s.unlocked[p] = struct{}{}
		}
	}
}

// Compact collapses the rule sets into the minimal ordered pattern lists.
// Pure set algebra; it cannot fail.
func (s *Store) Compact() (lockedPatterns, unlockedPatterns []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unlockedPatterns = compactPatterns(s.patternsFor(s.unlocked), nil)
	lockedPatterns = compactPatterns(s.patternsFor(s.locked), unlockedPatterns)
	return lockedPatterns, unlockedPatterns
}

// patternsFor converts a rule set to its raw pattern form: "**" for the root
// itself, "dir/**" for directories, the relative path for files. Callers must
// hold at least the read lock.
func (s *Store) patternsFor(set map[string]struct{}) []string {
	patterns := make([]string, 0, len(set))
	for p := range set {
		patterns = append(patterns, s.pathToPattern(p))
	}
	sort.Strings(patterns)
	return patterns
}

func (s *Store) pathToPattern(path string) string {
	if path == s.root {
		return "**"
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	if s.isDir(path) {
		return rel + "/**"
	}
	return rel
}

func (s *Store) isDir(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && info.IsDir()
}

// isUnderOrSame reports whether path is child itself or lies below child.
func isUnderOrSame(path, ancestor string) bool {
	if path == ancestor {
		return true
	}
	return strings.HasPrefix(path, ancestor+string(filepath.Separator))
}
