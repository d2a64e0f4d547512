// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/mdplink/pkg/esb"
	"github.com/Thermoquad/mdplink/pkg/indicator"
	"github.com/Thermoquad/mdplink/pkg/link"
)

// Sink receives drained frames in insertion order.
type Sink interface {
	Emit(f esb.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f esb.Frame)

func (fn SinkFunc) Emit(f esb.Frame) { fn(f) }

// Sniffer feeds received frames into a Buffer and flushes it to a Sink
// each time it fills.
type Sniffer struct {
	Buffer    *Buffer
	Driver    link.Driver
	Events    *link.Events
	Sink      Sink
	Indicator indicator.Indicator
	Log       *logrus.Entry

	// OnOffer, if set, is called after every offered frame.
	OnOffer func(stored bool, b *Buffer)

	offered uint64
	skipped uint64
	batches uint64
}

// Step consumes at most one received frame. A full buffer is flushed with
// the radio disabled, then receiving resumes.
func (s *Sniffer) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, ok := s.Events.TakeFrame()
	if !ok {
		return nil
	}

	s.offered++
	stored := s.Buffer.Offer(f)
	if !stored {
		s.skipped++
	}
	if s.OnOffer != nil {
		s.OnOffer(stored, s.Buffer)
	}

	if !s.Buffer.Full() {
		return nil
	}
	return s.flush()
}

func (s *Sniffer) flush() error {
	if err := s.Driver.Disable(); err != nil {
		return fmt.Errorf("failed to disable radio: %w", err)
	}

	s.log().WithField("frames", s.Buffer.Len()).Info("Flushing ...")
	for _, f := range s.Buffer.Drain() {
		s.Sink.Emit(f)
	}
	s.batches++

	if s.Indicator != nil {
		s.Indicator.Toggle(indicator.Error)
	}

	if err := s.Driver.Reinit(link.ModeReceive); err != nil {
		return fmt.Errorf("failed to resume receiving: %w", err)
	}
	return nil
}

// Stats returns frames offered, frames skipped or refused, and batches
// flushed.
func (s *Sniffer) Stats() (offered, skipped, batches uint64) {
	return s.offered, s.skipped, s.batches
}

func (s *Sniffer) log() *logrus.Entry {
	if s.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.Log
}
