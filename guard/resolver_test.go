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

	"github.com/stretchr/testify/require"
)

func TestResolverChain(t *testing.T) {
	chain := DefaultResolvers()

	tests := []struct {
		name     string
		process  string
		path     string
		expected string
	}{
		{
			name:     "vim swap file maps to target",
			process:  "vim",
			path:     "/project/src/.main.go.swp",
			expected: "/project/src/main.go",
		},
		{
			name:     "nvim swx file maps to target",
			process:  "nvim",
			path:     "/project/.notes.txt.swx",
			expected: "/project/notes.txt",
		},
		{
			name:     "swo file maps to target",
			process:  "vim",
			path:     "/project/.a.swo",
			expected: "/project/a",
		},
		{
			name:     "tilde backup maps to target",
			process:  "vim",
			path:     "/project/notes.txt~",
			expected: "/project/notes.txt",
		},
		{
			name:     "emacs tilde backup maps to target",
			process:  "emacs",
			path:     "/project/notes.txt~",
			expected: "/project/notes.txt",
		},
		{
			name:     "numeric probe file stays as observed",
			process:  "vim",
			path:     "/project/4913",
			expected: "/project/4913",
		},
		{
			name:     "plain path untouched",
			process:  "vim",
			path:     "/project/src/main.go",
			expected: "/project/src/main.go",
		},
		{
			name:     "hidden non-swap file untouched",
			process:  "vim",
			path:     "/project/.gitignore",
			expected: "/project/.gitignore",
		},
		{
			name:     "other processes bypass vim heuristics",
			process:  "python3",
			path:     "/project/.main.go.swp",
			expected: "/project/.main.go.swp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, chain.Resolve(tt.process, tt.path))
		})
	}
}

func TestVimSwapResolverRejectsNonSwap(t *testing.T) {
	_, ok := VimSwapResolver{}.Resolve("/project/main.go.swp")
	require.False(t, ok, "swap names must start with a dot")

	_, ok = VimSwapResolver{}.Resolve("/project/.bashrc")
	require.False(t, ok)
}
