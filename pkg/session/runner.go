// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/mdplink/pkg/capture"
	"github.com/Thermoquad/mdplink/pkg/link"
)

// DefaultPollInterval bounds the sleep between loop iterations when no
// radio event arrives.
const DefaultPollInterval = time.Millisecond

// Mode selects what the Runner drives.
type Mode int

const (
	// ModeProtocol runs the pairing and data-request exchange.
	ModeProtocol Mode = iota
	// ModeCapture records received frames instead.
	ModeCapture
)

func (m Mode) String() string {
	switch m {
	case ModeProtocol:
		return "protocol"
	case ModeCapture:
		return "capture"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Runner is the cooperative main loop. Exactly one of Controller and
// Sniffer is driven, chosen by Mode.
type Runner struct {
	Mode         Mode
	Controller   *Controller
	Sniffer      *capture.Sniffer
	Events       *link.Events
	PollInterval time.Duration

	// AfterStep, if set, is called after every loop iteration.
	AfterStep func()
}

// Run loops until ctx is cancelled or a step fails. Cancellation returns nil.
func (r *Runner) Run(ctx context.Context) error {
	step, err := r.stepFunc()
	if err != nil {
		return err
	}

	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if r.AfterStep != nil {
			r.AfterStep()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.Events.Wake():
		case <-ticker.C:
		}
	}
}

func (r *Runner) stepFunc() (func(context.Context) error, error) {
	if r.Events == nil {
		return nil, errors.New("runner has no event mailbox")
	}
	switch r.Mode {
	case ModeProtocol:
		if r.Controller == nil {
			return nil, errors.New("protocol mode requires a controller")
		}
		return r.Controller.Tick, nil
	case ModeCapture:
		if r.Sniffer == nil {
			return nil, errors.New("capture mode requires a sniffer")
		}
		return r.Sniffer.Step, nil
	default:
		return nil, fmt.Errorf("unknown runner mode %s", r.Mode)
	}
}
