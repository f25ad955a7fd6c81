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

// Package guard is the monitor and enforcement subsystem: it consumes raw
// filesystem mutation events, classifies them against the lock policy, and
// blocks violations by reverting, stashing or notifying.
package guard

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/fsguard/fsguard/policy"
	"github.com/fsguard/fsguard/stash"
)

// recvTimeout bounds how long one loop iteration waits for an event, so the
// stop flag is observed within this window during quiet periods.
const recvTimeout = 100 * time.Millisecond

// defaultSettleDelay is the pause before re-reading a file after an allowed
// write, letting a multi-step OS operation finish first.
const defaultSettleDelay = 50 * time.Millisecond

// isWriteLikeOp classifies operation keywords that modify content or
// metadata. Vocabularies vary by platform tool, hence substring matching.
func isWriteLikeOp(op string) bool {
	for _, kw := range []string{"write", "WrData", "WrMeta", "rename", "create", "truncate", "chmod"} {
		if strings.Contains(op, kw) {
			return true
		}
	}
	return false
}

// isDeleteLikeOp classifies operation keywords that remove entries.
func isDeleteLikeOp(op string) bool {
	return strings.Contains(op, "unlink") || strings.Contains(op, "rmdir")
}

// refreshesBackup classifies allowed-actor operations that warrant
// re-reading the file into the vault.
func refreshesBackup(op string) bool {
	for _, kw := range []string{"write", "WrData", "close", "truncate"} {
		if strings.Contains(op, kw) {
			return true
		}
	}
	return false
}

// Monitor owns the subscription to the raw event feed and runs the per-event
// pipeline on a dedicated goroutine: classify, consult policy, enforce.
// Events are handled strictly in arrival order, one at a time; an error on
// one event is logged and the next event is handled, so a single bad event
// never halts protection.
type Monitor struct {
	fs      afero.Fs
	store   *policy.Store
	config  *configHolder
	vault   *Vault
	archive *stash.Archive
	engine  *Engine
	source  Source
	queue   *eventQueue

	// ignorePatterns narrow the startup snapshot the same way they narrow
	// the tree build.
	ignorePatterns []string

	// settleDelay is overridable so tests run without real sleeps.
	settleDelay time.Duration

	mu      sync.RWMutex
	running bool
	done    chan struct{}
}

// NewMonitor assembles a monitor over the given collaborators. The stash
// archive may be shared with the operator-facing stash commands.
func NewMonitor(fs afero.Fs, store *policy.Store, archive *stash.Archive, source Source, cfg Config, ignorePatterns []string) *Monitor {
	m := &Monitor{
		fs:             fs,
		store:          store,
		config:         &configHolder{cfg: cfg},
		vault:          NewVault(fs),
		archive:        archive,
		source:         source,
		queue:          newEventQueue(),
		ignorePatterns: ignorePatterns,
		settleDelay:    defaultSettleDelay,
	}
	m.engine = NewEngine(fs, m.vault, archive, DefaultResolvers(), m.queue.Push)
	return m
}

// Vault exposes the backup cache, mainly so a host can pre-seed single files.
func (m *Monitor) Vault() *Vault {
	return m.vault
}

// SetConfig replaces the runtime configuration.
func (m *Monitor) SetConfig(cfg Config) {
	m.config.Set(cfg)
}

// SetMonitoredProcesses replaces the monitored-process list.
func (m *Monitor) SetMonitoredProcesses(processes []string) {
	m.config.SetMonitoredProcesses(processes)
}

// SetBlockMode replaces the block mode.
func (m *Monitor) SetBlockMode(mode BlockMode) {
	m.config.SetBlockMode(mode)
}

// Poll returns the oldest pending guardian event without blocking.
func (m *Monitor) Poll() (Event, bool) {
	return m.queue.Poll()
}

// DrainEvents returns all pending guardian events.
func (m *Monitor) DrainEvents() []Event {
	return m.queue.Drain()
}

// Running reports whether the monitor loop is active.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// SetEnabled pauses or resumes enforcement without tearing down the feed.
func (m *Monitor) SetEnabled(enabled bool) {
	m.config.SetEnabled(enabled)
}

// Start snapshots every currently locked path into the vault, subscribes to
// the source and launches the monitor goroutine. Starting a running monitor
// is a no-op. A source that fails to initialize is fatal to the guardian
// subsystem only; the error is returned to the caller.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// Snapshot before subscribing, so a revert target exists even for files
	// that predate monitor start.
	roots := m.store.LockedRoots()
	m.vault.SnapshotAll(roots, m.ignorePatterns)
	log.Printf("monitor: backed up %d files under %d locked paths", m.vault.Len(), len(roots))

	events, err := m.source.Start()
	if err != nil {
		return fmt.Errorf("monitor start: %w", err)
	}

	m.mu.Lock()
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.queue.Push(MonitorStarted{})

	go m.loop(events, done)
	return nil
}

// Stop clears the run flag, tears down the source and waits for the loop to
// observe the flag, which it does within the bounded receive timeout.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	done := m.done
	m.mu.Unlock()

	err := m.source.Stop()
	<-done
	m.queue.Push(MonitorStopped{})
	return err
}

// loop consumes source events strictly in arrival order. The stop flag is
// polled between events, never mid-event, so no event is half-processed.
func (m *Monitor) loop(events <-chan SourceEvent, done chan struct{}) {
	defer close(done)
	timeout := time.NewTimer(recvTimeout)
	defer timeout.Stop()

	for {
		if !m.Running() {
			return
		}
		if !timeout.Stop() {
			select {
			case <-timeout.C:
			default:
			}
		}
		timeout.Reset(recvTimeout)

		select {
		case event, ok := <-events:
			if !ok {
				// Feed disconnected underneath us.
				if m.Running() {
					m.queue.Push(MonitorError{Reason: "event source closed"})
					m.mu.Lock()
					m.running = false
					m.mu.Unlock()
				}
				return
			}
			if err := m.handle(event); err != nil {
				log.Printf("monitor: error handling %s %s on %s: %v", event.Process, event.Op, event.Path, err)
			}
		case <-timeout.C:
		}
	}
}

// handle runs the per-event pipeline for one raw event.
func (m *Monitor) handle(event SourceEvent) error {
	cfg := m.config.Get()

	if cfg.Verbose {
		log.Printf("monitor: event %s [%s] %s (pid %d)", event.Process, event.Op, event.Path, event.PID)
	}

	// Protection paused: keep consuming the feed so baselines stay fresh,
	// but enforce nothing.
	if !cfg.Enabled {
		if refreshesBackup(event.Op) {
			m.refreshAfterSettle(event.Path, cfg.Verbose)
		}
		return nil
	}

	if !cfg.monitored(event.Process) {
		// An allowed actor. Its completed writes become the new revert
		// baseline, so a later revert restores the latest legitimate state
		// rather than a stale one. No event is emitted.
		if refreshesBackup(event.Op) {
			m.refreshAfterSettle(event.Path, cfg.Verbose)
		}
		return nil
	}

	if !m.store.IsLocked(event.Path) {
		return nil
	}

	switch {
	case isWriteLikeOp(event.Op):
		m.engine.EnforceWrite(event, cfg)
	case isDeleteLikeOp(event.Op):
		m.engine.EnforceDelete(event, cfg)
	default:
		// Read-only operation; nothing to do.
	}
	return nil
}

func (m *Monitor) refreshAfterSettle(path string, verbose bool) {
	time.Sleep(m.settleDelay)

	info, err := m.fs.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if err := m.vault.Refresh(path); err != nil {
		log.Printf("monitor: failed to refresh backup of %s: %v", path, err)
		return
	}
	if verbose {
		log.Printf("monitor: refreshed backup of %s after allowed write", path)
	}
}
