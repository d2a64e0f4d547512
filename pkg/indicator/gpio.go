// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indicator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// outPin is the part of gpio.PinOut the indicator needs.
type outPin interface {
	Out(l gpio.Level) error
}

// GPIO drives the lights as output pins on the host (Raspberry Pi and
// similar boards supported by periph.io).
type GPIO struct {
	mu    sync.Mutex
	pins  [numLights]outPin
	state [numLights]bool
	log   *logrus.Entry
}

// NewGPIO opens the named pins in Heartbeat, Error, Activity order.
// An empty name leaves that light unconnected. All pins start low.
func NewGPIO(names []string, log *logrus.Entry) (*GPIO, error) {
	if len(names) > int(numLights) {
		return nil, fmt.Errorf("too many LED pins: %d (max %d)", len(names), numLights)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}

	pins := make([]outPin, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("failed to open LED pin %s", name)
		}
		pins[i] = p
	}

	return newGPIO(pins, log)
}

func newGPIO(pins []outPin, log *logrus.Entry) (*GPIO, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &GPIO{log: log.WithField("component", "gpio")}
	for i, p := range pins {
		if p == nil {
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("failed to drive %s pin low: %w", Light(i), err)
		}
		g.pins[i] = p
	}
	return g, nil
}

func (g *GPIO) On(l Light)     { g.set(l, func(bool) bool { return true }) }
func (g *GPIO) Off(l Light)    { g.set(l, func(bool) bool { return false }) }
func (g *GPIO) Toggle(l Light) { g.set(l, func(v bool) bool { return !v }) }

func (g *GPIO) set(l Light, next func(bool) bool) {
	if l < 0 || l >= numLights {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state[l] = next(g.state[l])
	p := g.pins[l]
	if p == nil {
		return
	}
	if err := p.Out(gpio.Level(g.state[l])); err != nil {
		g.log.WithError(err).WithField("light", l.String()).Warn("Failed to drive LED pin")
	}
}

// State reports whether a light is on.
func (g *GPIO) State(l Light) bool {
	if l < 0 || l >= numLights {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state[l]
}
