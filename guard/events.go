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
	"fmt"
	"sync"
	"time"
)

// Event is a guardian notification for an external consumer: a blocked
// mutation, a stashed change, or a monitor lifecycle transition. All
// variants live in this package and implement the marker method.
type Event interface {
	event()
	String() string
}

// BlockedWrite reports a monitored process writing to a locked path.
type BlockedWrite struct {
	Path      string
	Process   string
	PID       int
	Timestamp time.Time
}

// BlockedDelete reports a monitored process deleting a locked path.
type BlockedDelete struct {
	Path      string
	Process   string
	PID       int
	Timestamp time.Time
}

// StashedChange reports denied content archived to the stash.
type StashedChange struct {
	StashID   string
	Path      string
	Operation string
}

// TimeoutExpired reports that a block timeout on a path lapsed.
type TimeoutExpired struct {
	Path string
}

// MonitorStarted, MonitorStopped and MonitorError report monitor lifecycle.
type (
	MonitorStarted struct{}
	MonitorStopped struct{}
	MonitorError   struct{ Reason string }
)

func (BlockedWrite) event()   {}
func (BlockedDelete) event()  {}
func (StashedChange) event()  {}
func (TimeoutExpired) event() {}
func (MonitorStarted) event() {}
func (MonitorStopped) event() {}
func (MonitorError) event()   {}

func (e BlockedWrite) String() string {
	return fmt.Sprintf("blocked write to %s by %s (pid %d)", e.Path, e.Process, e.PID)
}

func (e BlockedDelete) String() string {
	return fmt.Sprintf("blocked delete of %s by %s (pid %d)", e.Path, e.Process, e.PID)
}

func (e StashedChange) String() string {
	return fmt.Sprintf("stashed %s of %s as %s", e.Operation, e.Path, e.StashID)
}

func (e TimeoutExpired) String() string {
	return fmt.Sprintf("block timeout expired for %s", e.Path)
}

func (MonitorStarted) String() string { return "monitor started" }
func (MonitorStopped) String() string { return "monitor stopped" }

func (e MonitorError) String() string {
	return fmt.Sprintf("monitor error: %s", e.Reason)
}

// eventQueue is the outbound unbounded FIFO: many producers (monitor loop,
// enforcement), one consumer polling without blocking. Order is the order
// Push was called in, which is the monitor's processing order.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
}

func newEventQueue() *eventQueue {
	return &eventQueue{}
}

func (q *eventQueue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

// Poll removes and returns the oldest event, without blocking.
func (q *eventQueue) Poll() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// Drain removes and returns all queued events.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}
