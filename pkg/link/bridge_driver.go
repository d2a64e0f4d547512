// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/mdplink/pkg/bridge"
	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/indicator"
)

// DefaultAckTimeout bounds how long the driver waits for the bridge to
// answer a CONFIGURE, TRANSMIT or PING.
const DefaultAckTimeout = 500 * time.Millisecond

// BridgeDriver drives an ESB radio through a bridge dongle attached over a
// byte stream (serial port or WebSocket).
//
// A transmission switches the radio to PTX, sends the frame and, once the
// bridge reports the outcome, returns the radio to PRX.
type BridgeDriver struct {
	conn       io.ReadWriter
	events     *Events
	ind        indicator.Indicator
	log        *logrus.Entry
	radio      bridge.RadioConfig
	ackTimeout time.Duration

	writeMu sync.Mutex

	// Number of CONFIGUREs written without a caller waiting for the ack.
	// The bridge answers in order, so these acks are consumed first.
	asyncAcks atomic.Int32
	acks      chan *bridge.Message
	pongs     chan uint64

	configured atomic.Bool

	// Sequence number of the TRANSMIT awaiting a TX_RESULT, zero when none.
	txSeq     atomic.Uint32
	txPending atomic.Uint32

	crcErrors    atomic.Uint64
	decodeErrors atomic.Uint64

	done     chan struct{}
	doneErr  error
	closeErr error
	once     sync.Once

	monitor func(m *bridge.Message)
}

// Option configures a BridgeDriver.
type Option func(*BridgeDriver)

// WithIndicator sets the indicator toggled on radio events.
func WithIndicator(ind indicator.Indicator) Option {
	return func(d *BridgeDriver) { d.ind = ind }
}

// WithLogger sets the log entry used by the driver.
func WithLogger(log *logrus.Entry) Option {
	return func(d *BridgeDriver) { d.log = log }
}

// WithRadioConfig overrides the radio profile.
func WithRadioConfig(cfg bridge.RadioConfig) Option {
	return func(d *BridgeDriver) { d.radio = cfg }
}

// WithMonitor sets a function that receives every decoded bridge message
// on the reader goroutine.
func WithMonitor(fn func(m *bridge.Message)) Option {
	return func(d *BridgeDriver) { d.monitor = fn }
}

// WithAckTimeout overrides DefaultAckTimeout.
func WithAckTimeout(timeout time.Duration) Option {
	return func(d *BridgeDriver) { d.ackTimeout = timeout }
}

// NewBridgeDriver creates a driver over conn delivering radio events to
// events. Call Start before using it.
//
// If conn is also an io.Closer the driver owns it and closes it when the
// driver stops, which unblocks a reader waiting on the transport.
func NewBridgeDriver(conn io.ReadWriter, events *Events, opts ...Option) *BridgeDriver {
	d := &BridgeDriver{
		conn:       conn,
		events:     events,
		ind:        indicator.Nop{},
		radio:      bridge.DefaultRadioConfig(),
		ackTimeout: DefaultAckTimeout,
		acks:       make(chan *bridge.Message, 1),
		pongs:      make(chan uint64, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logrus.NewEntry(logrus.StandardLogger())
	}
	d.log = d.log.WithField("component", "bridge")
	return d
}

// Start launches the reader goroutine. It stops when ctx is cancelled, the
// connection fails or Close is called.
func (d *BridgeDriver) Start(ctx context.Context) {
	go d.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			d.close(ctx.Err())
		case <-d.done:
		}
	}()
}

// DecodeErrors returns the number of bridge messages dropped for a CRC
// mismatch and for any other framing error.
func (d *BridgeDriver) DecodeErrors() (crc, other uint64) {
	return d.crcErrors.Load(), d.decodeErrors.Load()
}

// Done is closed when the reader stops.
func (d *BridgeDriver) Done() <-chan struct{} {
	return d.done
}

// Err returns the reason the reader stopped, or nil while it runs.
func (d *BridgeDriver) Err() error {
	select {
	case <-d.done:
		return d.doneErr
	default:
		return nil
	}
}

// Close disables the radio if the bridge is still reachable, then stops
// the driver and closes the transport.
func (d *BridgeDriver) Close() error {
	var err error
	if d.Err() == nil {
		err = d.Disable()
	}
	d.close(ErrClosed)
	if err != nil {
		return err
	}
	return d.closeErr
}

func (d *BridgeDriver) close(err error) {
	d.once.Do(func() {
		d.doneErr = err
		close(d.done)
		if c, ok := d.conn.(io.Closer); ok {
			d.closeErr = c.Close()
		}
	})
}

func (d *BridgeDriver) readLoop() {
	decoder := bridge.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := d.conn.Read(buf)
		for i := 0; i < n; i++ {
			msg, derr := decoder.DecodeByte(buf[i])
			if derr != nil {
				if errors.Is(derr, bridge.ErrCRCMismatch) {
					d.crcErrors.Add(1)
				} else {
					d.decodeErrors.Add(1)
				}
				d.log.WithError(derr).Debug("Decode error")
				continue
			}
			if msg != nil {
				d.handle(msg)
			}
		}
		if err != nil {
			select {
			case <-d.done:
				// Stopped, the transport was closed under us.
				return
			default:
			}
			if !errors.Is(err, io.EOF) {
				d.log.WithError(err).Error("Read failed")
			}
			d.close(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		select {
		case <-d.done:
			return
		default:
		}
	}
}

// handle is the radio event handler.
func (d *BridgeDriver) handle(msg *bridge.Message) {
	if d.monitor != nil {
		d.monitor(msg)
	}
	if err := msg.ParseError(); err != nil {
		d.log.WithError(err).Warn("Malformed bridge message")
		return
	}

	switch msg.Type() {
	case bridge.MsgRxReceived:
		f, err := msg.Frame()
		if err != nil {
			d.log.WithError(err).Warn("Invalid received frame")
			return
		}
		d.ind.Toggle(indicator.Activity)
		d.events.DeliverFrame(f)

	case bridge.MsgTxResult:
		ok, err := msg.TxSuccess()
		if err != nil {
			d.log.WithError(err).Warn("Invalid TX result")
			return
		}
		if !d.claimTxResult(msg) {
			d.log.WithField("ok", ok).Debug("Discarding stale TX result")
			return
		}
		if ok {
			d.log.Debug("TX success")
			d.ind.Off(indicator.Error)
		} else {
			d.log.Warn("TX failed")
			d.ind.On(indicator.Error)
		}
		d.events.TxResult(ok)
		if err := d.configureAsync(bridge.RadioModePRX); err != nil {
			d.log.WithError(err).Error("Failed to return radio to receive mode")
		}

	case bridge.MsgConfigureAck:
		if d.asyncAcks.Load() > 0 {
			d.asyncAcks.Add(-1)
			if ok, code, _ := msg.ConfigureResult(); !ok {
				d.log.WithField("code", code).Error("Radio configuration rejected")
				d.ind.On(indicator.Error)
			}
			return
		}
		select {
		case d.acks <- msg:
		default:
			d.log.Debug("Dropping unsolicited CONFIGURE_ACK")
		}

	case bridge.MsgPong:
		uptime, _ := bridge.GetMapUint(msg.PayloadMap(), 0)
		select {
		case d.pongs <- uptime:
		default:
		}

	case bridge.MsgError:
		code, _ := bridge.GetMapUint(msg.PayloadMap(), 0)
		text, _ := bridge.GetMapString(msg.PayloadMap(), 1)
		d.log.WithFields(logrus.Fields{"code": code, "message": text}).Warn("Bridge error")
		d.ind.On(indicator.Error)

	default:
		d.log.WithField("type", bridge.FormatMessageType(msg.Type())).Debug("Ignoring bridge message")
	}
}

// claimTxResult reports whether msg answers the TRANSMIT in flight. A
// result without a sequence number answers whatever is pending.
func (d *BridgeDriver) claimTxResult(msg *bridge.Message) bool {
	seq, ok := msg.TxSeq()
	if !ok {
		return d.txPending.Swap(0) != 0
	}
	return seq != 0 && d.txPending.CompareAndSwap(uint32(seq), 0)
}

func (d *BridgeDriver) nextTxSeq() uint16 {
	for {
		if seq := uint16(d.txSeq.Add(1)); seq != 0 {
			return seq
		}
	}
}

// abandonTx fails the transmission in flight without a TX_RESULT.
func (d *BridgeDriver) abandonTx() {
	d.txPending.Store(0)
	d.events.TxResult(false)
}

func (d *BridgeDriver) write(msg *bridge.Message) error {
	data, err := bridge.EncodeMessage(msg)
	if err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	select {
	case <-d.done:
		return d.doneErr
	default:
	}
	if _, err := d.conn.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", bridge.FormatMessageType(msg.Type()), err)
	}
	return nil
}

func (d *BridgeDriver) configureAsync(mode bridge.RadioMode) error {
	d.asyncAcks.Add(1)
	if err := d.write(bridge.NewConfigure(d.radio.WithMode(mode))); err != nil {
		d.asyncAcks.Add(-1)
		return err
	}
	return nil
}

// Send waits for any previous transmission to complete, then transmits f.
func (d *BridgeDriver) Send(ctx context.Context, f esb.Frame) error {
	for {
		wctx, cancel := context.WithTimeout(ctx, d.ackTimeout)
		err := d.events.WaitTxIdle(wctx)
		cancel()
		if err == nil {
			if d.events.BeginTx() {
				break
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The bridge never reported the previous outcome.
		d.log.Warn("No TX result from bridge, assuming failure")
		d.abandonTx()
	}
	return d.transmit(f)
}

// TrySend transmits f, or returns ErrBusy while a transmission is in flight.
func (d *BridgeDriver) TrySend(f esb.Frame) error {
	if !d.events.BeginTx() {
		return ErrBusy
	}
	return d.transmit(f)
}

func (d *BridgeDriver) transmit(f esb.Frame) error {
	if !d.configured.Load() {
		d.abandonTx()
		return ErrNotConfigured
	}
	if err := d.configureAsync(bridge.RadioModePTX); err != nil {
		d.abandonTx()
		return err
	}
	seq := d.nextTxSeq()
	d.txPending.Store(uint32(seq))
	if err := d.write(bridge.NewTransmit(f, seq)); err != nil {
		d.abandonTx()
		return err
	}
	return nil
}

// Reinit reconfigures the radio and waits for the bridge to accept it.
func (d *BridgeDriver) Reinit(mode Mode) error {
	radioMode := bridge.RadioModePRX
	if mode == ModeTransmit {
		radioMode = bridge.RadioModePTX
	}

	// Discard a stale ack from an earlier attempt that timed out.
	select {
	case <-d.acks:
	default:
	}

	if err := d.write(bridge.NewConfigure(d.radio.WithMode(radioMode))); err != nil {
		return err
	}

	timer := time.NewTimer(d.ackTimeout)
	defer timer.Stop()

	select {
	case msg := <-d.acks:
		ok, code, err := msg.ConfigureResult()
		if err != nil {
			return err
		}
		if !ok {
			d.configured.Store(false)
			return fmt.Errorf("%w: code 0x%02X", ErrConfigureRejected, code)
		}
	case <-timer.C:
		return fmt.Errorf("CONFIGURE: %w", ErrAckTimeout)
	case <-d.done:
		return d.doneErr
	}

	d.configured.Store(true)
	d.log.WithField("mode", mode.String()).Debug("Radio configured")
	return nil
}

// Disable stops all radio activity.
func (d *BridgeDriver) Disable() error {
	d.configured.Store(false)
	return d.write(bridge.NewDisable())
}

// Ping asks the bridge for its uptime.
func (d *BridgeDriver) Ping(ctx context.Context) (time.Duration, error) {
	select {
	case <-d.pongs:
	default:
	}
	if err := d.write(bridge.NewPing()); err != nil {
		return 0, err
	}

	select {
	case uptime := <-d.pongs:
		return time.Duration(uptime) * time.Millisecond, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-d.done:
		return 0, d.doneErr
	}
}
