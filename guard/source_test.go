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
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSourceLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected SourceEvent
		wantErr  bool
	}{
		{
			name: "simple event",
			line: "vim 1234 write /project/src/main.go",
			expected: SourceEvent{
				Process: "vim", PID: 1234, Op: "write", Path: "/project/src/main.go",
			},
		},
		{
			name: "path with spaces",
			line: "claude 99 WrData /project/My Documents/plan.md",
			expected: SourceEvent{
				Process: "claude", PID: 99, Op: "WrData", Path: "/project/My Documents/plan.md",
			},
		},
		{
			name:    "too few fields",
			line:    "vim write /x",
			wantErr: true,
		},
		{
			name:    "bad pid",
			line:    "vim abc write /x",
			wantErr: true,
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseSourceLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, event)
		})
	}
}

func TestExecSourceParsesAndFilters(t *testing.T) {
	output := strings.Join([]string{
		"vim 10 write /project/a.txt",
		"mdworker 11 write /project/b.txt", // indexer noise, dropped at source
		"not a parsable line",
		"claude 12 unlink /project/c.txt",
	}, "\n") + "\n"

	source := NewExecSource("trace --watch /project")
	var gotName string
	var gotArgs []string
	source.StartCmd = func(name string, arg ...string) (io.ReadCloser, func() error, error) {
		gotName = name
		gotArgs = arg
		return io.NopCloser(strings.NewReader(output)), func() error { return nil }, nil
	}

	events, err := source.Start()
	require.NoError(t, err)
	require.Equal(t, "trace", gotName)
	require.Equal(t, []string{"--watch", "/project"}, gotArgs)

	var got []SourceEvent
	for event := range events {
		got = append(got, event)
	}
	require.Equal(t, []SourceEvent{
		{Process: "vim", PID: 10, Op: "write", Path: "/project/a.txt"},
		{Process: "claude", PID: 12, Op: "unlink", Path: "/project/c.txt"},
	}, got)
}

func TestExecSourceStartFailureIsMonitorStartError(t *testing.T) {
	source := NewExecSource("trace")
	source.StartCmd = func(string, ...string) (io.ReadCloser, func() error, error) {
		return nil, nil, errors.New("operation not permitted")
	}
	_, err := source.Start()
	require.ErrorIs(t, err, ErrMonitorStart)
}

func TestExecSourceBadCommandLine(t *testing.T) {
	source := NewExecSource(`trace "unterminated`)
	_, err := source.Start()
	require.ErrorIs(t, err, ErrMonitorStart)

	source = NewExecSource("")
	_, err = source.Start()
	require.ErrorIs(t, err, ErrMonitorStart)
}

func TestChanSourceDelivery(t *testing.T) {
	source := NewChanSource(4)
	events, err := source.Start()
	require.NoError(t, err)

	source.Emit(SourceEvent{Process: "vim", PID: 1, Op: "write", Path: "/a"})
	require.NoError(t, source.Stop())

	select {
	case event := <-events:
		require.Equal(t, "/a", event.Path)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	_, open := <-events
	require.False(t, open, "channel must close on Stop")
}
