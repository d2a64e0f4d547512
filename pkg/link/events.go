// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/mdplink/pkg/esb"
)

// Events is the mailbox between the radio event handler and the main loop.
// Each flag has exactly one writer and one reader context.
type Events struct {
	// rxFrame is written only while rxReady is false and read only while
	// rxReady is true.
	rxFrame esb.Frame
	rxReady atomic.Bool
	lost    atomic.Uint64

	timedOut atomic.Bool

	txBusy   atomic.Bool
	txFailed atomic.Uint64
	txIdle   chan struct{}

	wake chan struct{}
	log  *logrus.Entry
}

// NewEvents creates an empty mailbox. A nil entry uses the standard logger.
func NewEvents(log *logrus.Entry) *Events {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Events{
		txIdle: make(chan struct{}, 1),
		wake:   make(chan struct{}, 1),
		log:    log.WithField("component", "events"),
	}
}

// DeliverFrame stores a received frame for the main loop. If the previous
// frame has not been taken yet the new one is dropped and counted as lost.
func (e *Events) DeliverFrame(f esb.Frame) bool {
	if e.rxReady.Load() {
		n := e.lost.Add(1)
		e.log.WithFields(logrus.Fields{"lost": n, "frame": esb.FormatSummary(f)}).Error("Packet lost")
		e.signal()
		return false
	}
	e.rxFrame = f
	e.rxReady.Store(true)
	e.signal()
	return true
}

// TakeFrame returns the pending frame, if any, and empties the slot.
func (e *Events) TakeFrame() (esb.Frame, bool) {
	if !e.rxReady.Load() {
		return esb.Frame{}, false
	}
	f := e.rxFrame
	e.rxReady.Store(false)
	return f, true
}

// FramePending reports whether a frame is waiting in the slot.
func (e *Events) FramePending() bool {
	return e.rxReady.Load()
}

// Lost returns the number of frames dropped because the slot was full.
func (e *Events) Lost() uint64 {
	return e.lost.Load()
}

// MarkTimeout records a response timeout.
func (e *Events) MarkTimeout() {
	e.timedOut.Store(true)
	e.signal()
}

// TakeTimeout reports and clears a recorded timeout.
func (e *Events) TakeTimeout() bool {
	return e.timedOut.Swap(false)
}

// ClearTimeout drops a recorded timeout without reporting it.
func (e *Events) ClearTimeout() {
	e.timedOut.Store(false)
}

// BeginTx marks a transmission as in flight. It returns false if one
// already is.
func (e *Events) BeginTx() bool {
	return e.txBusy.CompareAndSwap(false, true)
}

// TxBusy reports whether a transmission is in flight.
func (e *Events) TxBusy() bool {
	return e.txBusy.Load()
}

// TxResult completes the in-flight transmission. A result with nothing in
// flight is ignored and TxResult returns false.
func (e *Events) TxResult(success bool) bool {
	if !e.txBusy.CompareAndSwap(true, false) {
		return false
	}
	if !success {
		e.txFailed.Add(1)
	}
	select {
	case e.txIdle <- struct{}{}:
	default:
	}
	e.signal()
	return true
}

// TxFailed returns the number of transmissions the radio reported as failed.
func (e *Events) TxFailed() uint64 {
	return e.txFailed.Load()
}

// WaitTxIdle blocks until no transmission is in flight or ctx is done.
func (e *Events) WaitTxIdle(ctx context.Context) error {
	for e.txBusy.Load() {
		select {
		case <-e.txIdle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Wake is signalled after every handler event so the main loop can sleep
// between ticks.
func (e *Events) Wake() <-chan struct{} {
	return e.wake
}

func (e *Events) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
