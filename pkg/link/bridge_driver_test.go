// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/mdplink/pkg/bridge"
	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/indicator"
)

// fakeBridge answers the host side of a net.Pipe like a bridge dongle.
type fakeBridge struct {
	conn net.Conn

	mu          sync.Mutex
	rejectNext  bool
	silentTx    bool
	txFails     bool
	disables    int
	configs     []bridge.RadioConfig
	transmitted []esb.Frame
}

func newFakeBridge(t *testing.T) (*fakeBridge, net.Conn) {
	t.Helper()
	host, dongle := net.Pipe()
	fb := &fakeBridge{conn: dongle}
	go fb.serve()
	t.Cleanup(func() {
		host.Close()
		dongle.Close()
	})
	return fb, host
}

func (fb *fakeBridge) serve() {
	d := bridge.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := fb.conn.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			msg, _ := d.DecodeByte(buf[i])
			if msg != nil {
				fb.respond(msg)
			}
		}
	}
}

func (fb *fakeBridge) respond(msg *bridge.Message) {
	fb.mu.Lock()
	var reply *bridge.Message
	switch msg.Type() {
	case bridge.MsgConfigure:
		cfg, _ := msg.RadioConfig()
		fb.configs = append(fb.configs, cfg)
		if fb.rejectNext {
			fb.rejectNext = false
			reply = bridge.NewConfigureAck(false, bridge.ErrCodeInvalidParam)
		} else {
			reply = bridge.NewConfigureAck(true, bridge.ErrCodeNone)
		}
	case bridge.MsgTransmit:
		f, _ := msg.Frame()
		fb.transmitted = append(fb.transmitted, f)
		if !fb.silentTx {
			seq, _ := msg.TxSeq()
			reply = bridge.NewTxResult(seq, !fb.txFails)
		}
	case bridge.MsgDisable:
		fb.disables++
	case bridge.MsgPing:
		reply = bridge.NewPong(4200)
	}
	fb.mu.Unlock()

	if reply != nil {
		fb.conn.Write(bridge.MustEncodeMessage(reply))
	}
}

func (fb *fakeBridge) inject(msg *bridge.Message) {
	fb.conn.Write(bridge.MustEncodeMessage(msg))
}

func (fb *fakeBridge) sent() []esb.Frame {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]esb.Frame(nil), fb.transmitted...)
}

func (fb *fakeBridge) set(fn func(fb *fakeBridge)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBridge) configCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.configs)
}

func (fb *fakeBridge) lastConfig() bridge.RadioConfig {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.configs[len(fb.configs)-1]
}

func startDriver(t *testing.T, opts ...Option) (*fakeBridge, *BridgeDriver, *Events) {
	t.Helper()
	fb, host := newFakeBridge(t)
	events := NewEvents(quietLog())
	opts = append([]Option{WithLogger(quietLog()), WithAckTimeout(time.Second)}, opts...)
	d := NewBridgeDriver(host, events, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)
	return fb, d, events
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBridgeDriverReinit(t *testing.T) {
	fb, d, _ := startDriver(t)

	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	cfg := fb.lastConfig()
	if cfg.Mode != bridge.RadioModePRX || cfg.Protocol != bridge.ProtocolESB || cfg.Channel != 78 {
		t.Errorf("configured %+v, want PRX/ESB on channel 78", cfg)
	}
}

func TestBridgeDriverReinitRejected(t *testing.T) {
	fb, d, _ := startDriver(t)
	fb.set(func(fb *fakeBridge) { fb.rejectNext = true })

	if err := d.Reinit(ModeReceive); !errors.Is(err, ErrConfigureRejected) {
		t.Errorf("Reinit() error = %v, want ErrConfigureRejected", err)
	}
}

func TestBridgeDriverSendBeforeConfigure(t *testing.T) {
	_, d, events := startDriver(t)

	err := d.Send(context.Background(), esb.EncodePairingRequest(esb.Serial{}))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send() error = %v, want ErrNotConfigured", err)
	}
	if events.TxBusy() {
		t.Error("failed send left the transmitter busy")
	}
}

func TestBridgeDriverSend(t *testing.T) {
	ind := indicator.NewLog(quietLog())
	fb, d, events := startDriver(t, WithIndicator(ind))
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}

	want := esb.EncodePairingRequest(esb.Serial{0x12, 0x34, 0x56, 0x78})
	if err := d.Send(context.Background(), want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, "TX result", func() bool { return !events.TxBusy() })
	sent := fb.sent()
	if len(sent) != 1 || sent[0] != want {
		t.Fatalf("bridge received %+v, want one pairing request", sent)
	}

	// Reinit, PTX for the send, then back to PRX after the result.
	waitFor(t, "return to PRX", func() bool { return fb.configCount() == 3 })
	if fb.lastConfig().Mode != bridge.RadioModePRX {
		t.Errorf("last configured mode = %d, want PRX", fb.lastConfig().Mode)
	}
	if ind.State(indicator.Error) {
		t.Error("error light on after successful TX")
	}
}

func TestBridgeDriverTxFailureRaisesError(t *testing.T) {
	ind := indicator.NewLog(quietLog())
	fb, d, events := startDriver(t, WithIndicator(ind))
	fb.set(func(fb *fakeBridge) { fb.txFails = true })
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}

	if err := d.Send(context.Background(), esb.EncodeDataRequest(esb.Serial{})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	waitFor(t, "TX failure", func() bool { return events.TxFailed() == 1 })
	if !ind.State(indicator.Error) {
		t.Error("error light off after failed TX")
	}
}

func TestBridgeDriverTrySendBusy(t *testing.T) {
	fb, d, _ := startDriver(t)
	fb.set(func(fb *fakeBridge) { fb.silentTx = true })
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}

	f := esb.EncodeDataRequest(esb.Serial{})
	if err := d.TrySend(f); err != nil {
		t.Fatalf("first TrySend() error = %v", err)
	}
	if err := d.TrySend(f); !errors.Is(err, ErrBusy) {
		t.Errorf("second TrySend() error = %v, want ErrBusy", err)
	}
}

func TestBridgeDriverSendWaitsWhileBusy(t *testing.T) {
	fb, d, events := startDriver(t)
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}

	if !events.BeginTx() {
		t.Fatal("BeginTx() failed")
	}
	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(released)
		events.TxResult(true)
	}()

	if err := d.Send(context.Background(), esb.EncodeDataRequest(esb.Serial{})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case <-released:
	default:
		t.Fatal("Send() did not wait for the previous transmission")
	}
	waitFor(t, "frame at bridge", func() bool { return len(fb.sent()) == 1 })
}

func TestBridgeDriverLateTxResultIgnored(t *testing.T) {
	fb, d, events := startDriver(t, WithAckTimeout(50*time.Millisecond))
	fb.set(func(fb *fakeBridge) { fb.silentTx = true })
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}

	f := esb.EncodeDataRequest(esb.Serial{})
	if err := d.Send(context.Background(), f); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	// No result for the first frame, so this send gives up on it.
	if err := d.Send(context.Background(), f); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if events.TxFailed() != 1 {
		t.Errorf("TxFailed() = %d, want 1", events.TxFailed())
	}

	// The first frame's result finally arrives.
	fb.inject(bridge.NewTxResult(1, true))
	time.Sleep(20 * time.Millisecond)

	if err := d.TrySend(f); !errors.Is(err, ErrBusy) {
		t.Errorf("TrySend() after late result error = %v, want ErrBusy", err)
	}
	if got := len(fb.sent()); got != 2 {
		t.Errorf("bridge received %d frames, want 2", got)
	}

	fb.inject(bridge.NewTxResult(2, true))
	waitFor(t, "second TX result", func() bool { return !events.TxBusy() })
	if events.TxFailed() != 1 {
		t.Errorf("TxFailed() = %d after success, want 1", events.TxFailed())
	}
}

func TestBridgeDriverTxResultWhileIdle(t *testing.T) {
	ind := indicator.NewLog(quietLog())
	fb, d, events := startDriver(t, WithIndicator(ind))
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	configs := fb.configCount()

	fb.inject(bridge.NewTxResult(9, false))
	time.Sleep(20 * time.Millisecond)

	if events.TxFailed() != 0 {
		t.Errorf("TxFailed() = %d, want 0", events.TxFailed())
	}
	if ind.State(indicator.Error) {
		t.Error("error light on after unsolicited TX result")
	}
	if got := fb.configCount(); got != configs {
		t.Errorf("bridge configured %d times, want %d", got, configs)
	}
}

func TestBridgeDriverReceive(t *testing.T) {
	ind := indicator.NewLog(quietLog())
	fb, _, events := startDriver(t, WithIndicator(ind))

	ack := esb.NewFrame([]byte{0x09, 0x0D, 0x01}, 1, false, 2)
	fb.inject(bridge.NewRxReceived(ack))

	waitFor(t, "received frame", events.FramePending)
	got, _ := events.TakeFrame()
	if got != ack {
		t.Errorf("TakeFrame() = %+v, want %+v", got, ack)
	}
	if !ind.State(indicator.Activity) {
		t.Error("activity light not toggled on receive")
	}
}

func TestBridgeDriverPing(t *testing.T) {
	_, d, _ := startDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	uptime, err := d.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if uptime != 4200*time.Millisecond {
		t.Errorf("Ping() = %v, want 4.2s", uptime)
	}
}

func TestBridgeDriverMonitor(t *testing.T) {
	seen := make(chan uint8, 4)
	_, d, _ := startDriver(t, WithMonitor(func(m *bridge.Message) {
		seen <- m.Type()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := d.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	select {
	case got := <-seen:
		if got != bridge.MsgPong {
			t.Errorf("monitor saw 0x%02X, want PONG", got)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor not called")
	}
}

func TestBridgeDriverClosed(t *testing.T) {
	fb, d, _ := startDriver(t)
	fb.conn.Close()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after the connection closed")
	}
	if !errors.Is(d.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", d.Err())
	}
}

func TestBridgeDriverCancelClosesTransport(t *testing.T) {
	host, dongle := net.Pipe()
	defer dongle.Close()
	d := NewBridgeDriver(host, NewEvents(quietLog()), WithLogger(quietLog()))

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancel")
	}
	if !errors.Is(d.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", d.Err())
	}

	// The far end sees the host side go away.
	dongle.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := dongle.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("dongle Read() error = %v, want io.EOF", err)
	}
}

func TestBridgeDriverClose(t *testing.T) {
	fb, d, _ := startDriver(t)
	if err := d.Reinit(ModeReceive); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	waitFor(t, "DISABLE at bridge", func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.disables == 1
	})
	if !errors.Is(d.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", d.Err())
	}
	if err := d.TrySend(esb.EncodeDataRequest(esb.Serial{})); err == nil {
		t.Error("TrySend() after Close() succeeded")
	}
}

func TestBridgeDriverCountsDecodeErrors(t *testing.T) {
	fb, d, events := startDriver(t)

	bad := bridge.MustEncodeMessage(bridge.NewRxReceived(esb.NewFrame([]byte{0x07, 0x1B}, 0, false, 0)))
	bad[2] ^= 0x01 // corrupt the CBOR header, CRC no longer matches
	fb.conn.Write(bad)
	fb.conn.Write([]byte{bridge.StartByte, 0x00})

	waitFor(t, "decode errors", func() bool {
		crc, other := d.DecodeErrors()
		return crc == 1 && other == 1
	})
	if events.FramePending() {
		t.Error("corrupt message delivered a frame")
	}
}
