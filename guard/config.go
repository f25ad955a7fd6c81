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
	"strings"
	"sync"
	"time"
)

// BlockMode selects what the guardian does about a violation.
type BlockMode int

const (
	// Revert restores the locked file from its backup.
	Revert BlockMode = iota
	// NotifyOnly emits the blocked event and touches nothing.
	NotifyOnly
	// StashOnly archives the violating content and leaves the file as the
	// actor left it.
	StashOnly
)

func (m BlockMode) String() string {
	switch m {
	case Revert:
		return "revert"
	case NotifyOnly:
		return "notify-only"
	case StashOnly:
		return "stash-only"
	default:
		return "unknown"
	}
}

// BlockModeIdentifiers maps each mode to its textual names, canonical first.
// Shared with the CLI's enumflag binding so flag parsing, String and help
// text stay in agreement.
var BlockModeIdentifiers = map[BlockMode][]string{
	Revert:     {"revert"},
	NotifyOnly: {"notify-only", "notify"},
	StashOnly:  {"stash-only", "stash"},
}

// Config is the monitor's runtime configuration. The operator may change it
// at any time; the monitor reads it under a short read lock on every event.
type Config struct {
	Enabled            bool
	BlockTimeout       time.Duration
	AutoStash          bool
	MonitoredProcesses []string
	BlockMode          BlockMode
	Verbose            bool
}

// DefaultConfig watches the editors the guardian was built to fend off.
func DefaultConfig() Config {
	return Config{
		Enabled:            false,
		BlockTimeout:       30 * time.Second,
		AutoStash:          true,
		MonitoredProcesses: []string{"vim", "nvim"},
		BlockMode:          Revert,
	}
}

// configHolder guards a Config for the two execution contexts that touch it.
// Lock order when policy is also needed: config first, then policy.
type configHolder struct {
	mu  sync.RWMutex
	cfg Config
}

func (h *configHolder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cfg := h.cfg
	cfg.MonitoredProcesses = append([]string(nil), h.cfg.MonitoredProcesses...)
	return cfg
}

func (h *configHolder) Set(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

func (h *configHolder) SetMonitoredProcesses(processes []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.MonitoredProcesses = append([]string(nil), processes...)
}

func (h *configHolder) SetEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.Enabled = enabled
}

func (h *configHolder) SetBlockMode(mode BlockMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.BlockMode = mode
}

// monitored reports whether a process is subject to enforcement: substring
// match against the configured list, or everything when the list is empty.
func (c Config) monitored(process string) bool {
	if len(c.MonitoredProcesses) == 0 {
		return true
	}
	for _, p := range c.MonitoredProcesses {
		if strings.Contains(process, p) {
			return true
		}
	}
	return false
}
