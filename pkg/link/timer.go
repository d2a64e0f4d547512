// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
	"time"
)

// Timer is the one-shot response timeout. Expiry marks a timeout on the
// Events mailbox. Every Start or Cancel invalidates the previous arm, so a
// cancelled timer never reports.
type Timer struct {
	events *Events

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewTimer creates a timer reporting to events.
func NewTimer(events *Events) *Timer {
	return &Timer{events: events}
}

// Start arms the timer, cancelling any previous arm and clearing a stale
// timeout flag.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.events.ClearTimeout()
	gen := t.gen
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
}

// Cancel disarms the timer.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		return
	}
	t.gen++
	t.timer = nil
	t.events.MarkTimeout()
}
