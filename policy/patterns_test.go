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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternCovers(t *testing.T) {
	tests := []struct {
		general  string
		specific string
		expected bool
	}{
		{"**", "src/**", true},
		{"**", "README.md", true},
		{"src/**", "src/core/**", true},
		{"src/**", "src/main.go", true},
		{"src/**", "src/**", true},
		{"src/**", "srcdir/main.go", false},
		{"src/**", "tests/x.go", false},
		{"src/main.go", "src/main.go", true},
		{"src/main.go", "src/main.go.bak", false},
		{"src/core/**", "src/**", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, patternCovers(tt.general, tt.specific),
			"patternCovers(%q, %q)", tt.general, tt.specific)
	}
}

func TestCompactPatternsDropsCovered(t *testing.T) {
	got := compactPatterns([]string{"src/**", "src/core/**", "src/main.go", "README.md"}, nil)
	require.Equal(t, []string{"README.md", "src/**"}, got)
}

func TestCompactPatternsRootSubsumesEverything(t *testing.T) {
	got := compactPatterns([]string{"**", "src/**", "docs/notes.txt"}, nil)
	require.Equal(t, []string{"**"}, got)
}

func TestCompactPatternsKeepsOverrideInsideUnlockedZone(t *testing.T) {
	unlocked := []string{"src/**"}
	got := compactPatterns([]string{"**", "src/core/**"}, unlocked)
	require.Equal(t, []string{"**", "src/core/**"}, got)

	// The same pattern outside any unlocked zone stays redundant.
	got = compactPatterns([]string{"**", "docs/**"}, unlocked)
	require.Equal(t, []string{"**"}, got)
}

func TestCompactPatternsOrderIndependent(t *testing.T) {
	a := compactPatterns([]string{"src/**", "README.md", "src/core/**"}, nil)
	b := compactPatterns([]string{"src/core/**", "src/**", "README.md"}, nil)
	require.Equal(t, a, b)
}

func TestCompactPatternsEmpty(t *testing.T) {
	require.Empty(t, compactPatterns(nil, nil))
}

func TestExpand(t *testing.T) {
	got := Expand("/project", []string{"**", "src/**", "README.md"})
	require.Equal(t, []string{"/project", "/project/src", "/project/README.md"}, got)
}

func TestPatternPath(t *testing.T) {
	require.Equal(t, "/project", PatternPath("/project", "**"))
	require.Equal(t, "/project/src/core", PatternPath("/project", "src/core/**"))
	require.Equal(t, "/project/docs/notes.txt", PatternPath("/project", "docs/notes.txt"))
}
