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
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrMonitorStart marks an event source that failed to initialize. This is
// fatal to the guardian subsystem only; the host process carries on without
// protection. The usual cause is missing OS privilege for the tracing tool.
var ErrMonitorStart = errors.New("failed to start filesystem event source")

// SourceEvent is one raw mutation notification from the OS-level feed. The
// operation vocabulary is platform- and tool-specific; consumers match it by
// substring, never as a closed enum.
type SourceEvent struct {
	Process string
	PID     int
	Op      string
	Path    string
}

// Source is a push-based feed of raw filesystem mutation events, FIFO per
// source. Start may be called once; the returned channel is closed when the
// feed ends, which the monitor surfaces as a MonitorError.
type Source interface {
	Start() (<-chan SourceEvent, error)
	Stop() error
}

// ChanSource is a Source fed programmatically. Used by tests and by hosts
// that already have their own event tap.
type ChanSource struct {
	ch chan SourceEvent
}

func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{ch: make(chan SourceEvent, buffer)}
}

func (s *ChanSource) Start() (<-chan SourceEvent, error) { return s.ch, nil }

func (s *ChanSource) Stop() error {
	close(s.ch)
	return nil
}

// Emit pushes one event into the feed.
func (s *ChanSource) Emit(e SourceEvent) { s.ch <- e }

// ExecSource runs a tracing command (an fs_usage-style tool) and parses its
// line output into SourceEvents. Expected line format, one event per line:
//
//	<process> <pid> <operation> <path>
//
// where path is the remainder of the line and may contain spaces.
type ExecSource struct {
	// Command is the full tracing command line; it is split with shell
	// quoting rules, so quoted arguments survive.
	Command string
	// ExcludeProcesses drops events from noisy system indexers at the
	// source, before classification.
	ExcludeProcesses []string

	// StartCmd can be replaced in tests. The default launches the command
	// and returns its stdout stream plus a kill func.
	StartCmd func(name string, arg ...string) (io.ReadCloser, func() error, error)

	stop func() error
}

// DefaultExcludeProcesses are macOS indexer daemons that generate constant
// metadata traffic.
func DefaultExcludeProcesses() []string {
	return []string{"mds", "mdworker", "Spotlight"}
}

func NewExecSource(command string) *ExecSource {
	return &ExecSource{
		Command:          command,
		ExcludeProcesses: DefaultExcludeProcesses(),
		StartCmd:         startCmd,
	}
}

func startCmd(name string, arg ...string) (io.ReadCloser, func() error, error) {
	cmd := exec.Command(name, arg...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	kill := func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return cmd.Wait()
	}
	return stdout, kill, nil
}

func (s *ExecSource) Start() (<-chan SourceEvent, error) {
	argv, err := shellquote.Split(s.Command)
	if err != nil || len(argv) == 0 {
		return nil, fmt.Errorf("%w: bad source command %q: %v", ErrMonitorStart, s.Command, err)
	}

	stdout, stop, err := s.StartCmd(argv[0], argv[1:]...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (is the tracing tool runnable with current privileges?)", ErrMonitorStart, err)
	}
	s.stop = stop

	ch := make(chan SourceEvent, 256)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			event, err := ParseSourceLine(scanner.Text())
			if err != nil {
				// One malformed line must not halt the feed.
				log.Printf("source: skipping malformed event line: %v", err)
				continue
			}
			if s.excluded(event.Process) {
				continue
			}
			ch <- event
		}
	}()
	return ch, nil
}

func (s *ExecSource) Stop() error {
	if s.stop == nil {
		return nil
	}
	stop := s.stop
	s.stop = nil
	// The traced command dies by signal when killed; that is expected.
	if err := stop(); err != nil {
		log.Printf("source: tracing command exit: %v", err)
	}
	return nil
}

func (s *ExecSource) excluded(process string) bool {
	for _, ex := range s.ExcludeProcesses {
		if strings.Contains(process, ex) {
			return true
		}
	}
	return false
}

// ParseSourceLine parses one event line of the tracing tool's output.
func ParseSourceLine(line string) (SourceEvent, error) {
	line = strings.TrimSpace(line)
	fields := strings.SplitN(line, " ", 4)
	if len(fields) != 4 {
		return SourceEvent{}, fmt.Errorf("want 4 fields, got %d in %q", len(fields), line)
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return SourceEvent{}, fmt.Errorf("bad pid %q in %q", fields[1], line)
	}
	return SourceEvent{
		Process: fields[0],
		PID:     pid,
		Op:      fields[2],
		Path:    strings.TrimSpace(fields[3]),
	}, nil
}
