// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/mdplink/pkg/esb"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestEventsDropNewest(t *testing.T) {
	e := NewEvents(quietLog())
	first := esb.NewFrame([]byte{0x09, 0x0D}, 0, false, 0)
	second := esb.NewFrame([]byte{0x07, 0x1B}, 0, false, 1)

	if !e.DeliverFrame(first) {
		t.Fatal("first DeliverFrame() should be accepted")
	}
	if e.DeliverFrame(second) {
		t.Fatal("second DeliverFrame() should be dropped while the slot is full")
	}
	if e.Lost() != 1 {
		t.Errorf("Lost() = %d, want 1", e.Lost())
	}

	got, ok := e.TakeFrame()
	if !ok || got != first {
		t.Errorf("TakeFrame() = %+v, %v; want first frame", got, ok)
	}
	if _, ok := e.TakeFrame(); ok {
		t.Error("TakeFrame() on empty slot should report nothing")
	}

	if !e.DeliverFrame(second) {
		t.Error("DeliverFrame() after take should be accepted")
	}
	if !e.FramePending() {
		t.Error("FramePending() = false after delivery")
	}
}

func TestEventsTimeout(t *testing.T) {
	e := NewEvents(quietLog())
	if e.TakeTimeout() {
		t.Fatal("TakeTimeout() reported a timeout on a fresh mailbox")
	}
	e.MarkTimeout()
	if !e.TakeTimeout() {
		t.Fatal("TakeTimeout() missed a timeout")
	}
	if e.TakeTimeout() {
		t.Error("TakeTimeout() should clear the flag")
	}

	e.MarkTimeout()
	e.ClearTimeout()
	if e.TakeTimeout() {
		t.Error("ClearTimeout() did not drop the flag")
	}
}

func TestEventsWake(t *testing.T) {
	e := NewEvents(quietLog())
	e.DeliverFrame(esb.Frame{})
	e.MarkTimeout()

	select {
	case <-e.Wake():
	default:
		t.Fatal("Wake() not signalled")
	}
	select {
	case <-e.Wake():
		t.Error("Wake() should coalesce signals")
	default:
	}
}

func TestEventsTxLifecycle(t *testing.T) {
	e := NewEvents(quietLog())

	if !e.BeginTx() {
		t.Fatal("BeginTx() on idle mailbox failed")
	}
	if e.BeginTx() {
		t.Fatal("BeginTx() while busy should fail")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		e.TxResult(false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.WaitTxIdle(ctx); err != nil {
		t.Fatalf("WaitTxIdle() error = %v", err)
	}
	if e.TxBusy() {
		t.Error("TxBusy() = true after result")
	}
	if e.TxFailed() != 1 {
		t.Errorf("TxFailed() = %d, want 1", e.TxFailed())
	}
}

func TestEventsTxResultWhileIdle(t *testing.T) {
	e := NewEvents(quietLog())

	if e.TxResult(false) {
		t.Error("TxResult() with nothing in flight was accepted")
	}
	if e.TxFailed() != 0 {
		t.Errorf("TxFailed() = %d, want 0", e.TxFailed())
	}

	e.BeginTx()
	if !e.TxResult(true) {
		t.Error("TxResult() for the in-flight transmission was ignored")
	}
	if e.TxResult(true) {
		t.Error("second TxResult() was accepted")
	}
	if e.TxBusy() {
		t.Error("TxBusy() = true after result")
	}
}

func TestEventsWaitTxIdleCancelled(t *testing.T) {
	e := NewEvents(quietLog())
	e.BeginTx()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.WaitTxIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitTxIdle() error = %v, want deadline exceeded", err)
	}
}

func TestTimerFires(t *testing.T) {
	e := NewEvents(quietLog())
	tm := NewTimer(e)
	tm.Start(5 * time.Millisecond)

	select {
	case <-e.Wake():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if !e.TakeTimeout() {
		t.Error("TakeTimeout() = false after expiry")
	}
}

func TestTimerCancelNeverFires(t *testing.T) {
	e := NewEvents(quietLog())
	tm := NewTimer(e)
	tm.Start(5 * time.Millisecond)
	tm.Cancel()

	time.Sleep(30 * time.Millisecond)
	if e.TakeTimeout() {
		t.Error("cancelled timer fired")
	}
}

func TestTimerStaleExpiryIgnored(t *testing.T) {
	e := NewEvents(quietLog())
	tm := NewTimer(e)

	tm.Start(time.Hour)
	stale := tm.gen
	tm.Start(time.Hour)
	current := tm.gen

	// An expiry already in progress when the timer was re-armed.
	tm.fire(stale)
	if e.TakeTimeout() {
		t.Fatal("stale expiry was reported")
	}

	tm.fire(current)
	if !e.TakeTimeout() {
		t.Fatal("current expiry was not reported")
	}

	// Exactly once per arm.
	tm.fire(current)
	if e.TakeTimeout() {
		t.Error("expiry reported twice for one arm")
	}
	tm.Cancel()
}

func TestTimerStartClearsStaleFlag(t *testing.T) {
	e := NewEvents(quietLog())
	tm := NewTimer(e)

	e.MarkTimeout()
	tm.Start(time.Hour)
	defer tm.Cancel()

	if e.TakeTimeout() {
		t.Error("Start() left a stale timeout flag")
	}
}
