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
)

// The compact pattern dialect has exactly three forms: "**" for the root
// itself, "dir/**" for a directory subtree, and a plain relative path for a
// single file. Compaction and expansion are pure transforms and never fail.

// compactPatterns removes patterns already covered by an ancestor pattern in
// the same list. When unlockedContext is non-nil (compacting the locked list)
// a covered pattern is still kept if it falls inside an unlocked pattern:
// it is the rule that re-asserts protection inside an unlocked zone, and
// dropping it would change the effective authorization.
func compactPatterns(patterns []string, unlockedContext []string) []string {
	if len(patterns) == 0 {
		return []string{}
	}

	sorted := append([]string(nil), patterns...)
	sort.Strings(sorted)

	kept := []string{}
	for _, pattern := range sorted {
		redundant := false
		for _, existing := range kept {
			if patternCovers(existing, pattern) {
				if !coveredByAny(pattern, unlockedContext) {
					redundant = true
				}
				break
			}
		}
		if redundant {
			continue
		}
		// The new pattern may subsume earlier keeps, unless they are
		// themselves overrides inside an unlocked zone.
		filtered := kept[:0]
		for _, existing := range kept {
			if patternCovers(pattern, existing) && !coveredByAny(existing, unlockedContext) {
				continue
			}
			filtered = append(filtered, existing)
		}
		kept = append(filtered, pattern)
	}
	sort.Strings(kept)
	return kept
}

func coveredByAny(pattern string, context []string) bool {
	for _, c := range context {
		if patternCovers(c, pattern) {
			return true
		}
	}
	return false
}

// patternCovers reports whether general subsumes specific.
func patternCovers(general, specific string) bool {
	if general == specific {
		return true
	}
	if general == "**" {
		return true
	}
	prefix, ok := strings.CutSuffix(general, "/**")
	if !ok {
		return false
	}
	rest, ok := strings.CutPrefix(specific, prefix)
	if !ok {
		return false
	}
	return rest == "" || strings.HasPrefix(rest, "/")
}

// Expand maps compact patterns back to absolute paths under root.
func Expand(root string, patterns []string) []string {
	paths := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		paths = append(paths, PatternPath(root, pattern))
	}
	return paths
}

// PatternPath resolves a single compact pattern to the path it governs.
func PatternPath(root, pattern string) string {
	if pattern == "**" {
		return filepath.Clean(root)
	}
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
		return filepath.Join(root, filepath.FromSlash(dir))
	}
	return filepath.Join(root, filepath.FromSlash(pattern))
}
