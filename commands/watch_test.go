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

package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatchModeFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
		wantErr  bool
	}{
		{
			name:     "default is revert",
			args:     nil,
			expected: "revert",
		},
		{
			name:     "canonical id",
			args:     []string{"--mode=stash-only"},
			expected: "stash-only",
		},
		{
			name:     "alias",
			args:     []string{"--mode=notify"},
			expected: "notify-only",
		},
		{
			name:     "case insensitive",
			args:     []string{"--mode=Notify-Only"},
			expected: "notify-only",
		},
		{
			name:    "unknown mode rejected",
			args:    []string{"--mode=shred"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newWatchCmd(func() (*Env, error) { return newTestEnv(t), nil })
			err := cmd.ParseFlags(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, cmd.Flags().Lookup("mode").Value.String())
		})
	}
}
