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
	"path/filepath"
	"strings"
)

// Editors rarely write the file you asked them to save; they write swap
// files, numbered temp files and tilde backups, then rename. Enforcement
// must map those back to the real target before consulting the vault.
// The conventions are editor-specific and heuristic, so each one lives
// behind PathResolver and new ones can be added without touching the
// enforcement core.

// PathResolver maps an observed event path back to the file the actor is
// really editing. Resolve returns the effective path and whether this
// resolver recognized the convention.
type PathResolver interface {
	// Applies reports whether this resolver understands the given process.
	Applies(process string) bool
	Resolve(path string) (string, bool)
}

// ResolverChain tries each resolver in order; the first recognition wins.
// An empty or non-matching chain leaves the path as observed.
type ResolverChain []PathResolver

// DefaultResolvers covers the vim family conventions: swap files, tilde
// backups and numeric temp files.
func DefaultResolvers() ResolverChain {
	return ResolverChain{
		VimSwapResolver{},
		TildeBackupResolver{},
		NumericTempResolver{},
	}
}

// Resolve maps path through the chain for the given process.
func (c ResolverChain) Resolve(process, path string) string {
	for _, r := range c {
		if !r.Applies(process) {
			continue
		}
		if resolved, ok := r.Resolve(path); ok {
			return resolved
		}
	}
	return path
}

// VimSwapResolver maps vim swap files back to their target:
// ".name.swp" / ".swx" / ".swo" -> "name" in the same directory.
type VimSwapResolver struct{}

func (VimSwapResolver) Applies(process string) bool {
	return strings.Contains(process, "vim")
}

func (VimSwapResolver) Resolve(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, ".") {
		return "", false
	}
	original := name
	for _, ext := range []string{".swp", ".swx", ".swo"} {
		original = strings.TrimSuffix(original, ext)
	}
	if original == name {
		return "", false
	}
	original = strings.TrimPrefix(original, ".")
	return filepath.Join(filepath.Dir(path), original), true
}

// TildeBackupResolver maps "name~" backup files back to "name".
type TildeBackupResolver struct{}

func (TildeBackupResolver) Applies(process string) bool {
	return strings.Contains(process, "vim") || strings.Contains(process, "emacs")
}

func (TildeBackupResolver) Resolve(path string) (string, bool) {
	if !strings.HasSuffix(path, "~") {
		return "", false
	}
	return strings.TrimSuffix(path, "~"), true
}

// NumericTempResolver recognizes vim's all-numeric probe files (the
// well-known "4913" writability check). There is no way to recover the real
// target from the name alone, so recognition deliberately resolves to the
// observed path; it exists so the convention is named and can grow a
// tracking implementation later.
type NumericTempResolver struct{}

func (NumericTempResolver) Applies(process string) bool {
	return strings.Contains(process, "vim")
}

func (NumericTempResolver) Resolve(path string) (string, bool) {
	name := filepath.Base(path)
	if name == "" {
		return "", false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return path, true
}
