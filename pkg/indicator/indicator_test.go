// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indicator

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestLogIndicator(t *testing.T) {
	tests := []struct {
		name  string
		apply func(i *Log)
		want  [numLights]bool
	}{
		{name: "initially off", apply: func(*Log) {}, want: [numLights]bool{}},
		{name: "on", apply: func(i *Log) { i.On(Error) }, want: [numLights]bool{Error: true}},
		{name: "on then off", apply: func(i *Log) { i.On(Error); i.Off(Error) }, want: [numLights]bool{}},
		{name: "toggle once", apply: func(i *Log) { i.Toggle(Heartbeat) }, want: [numLights]bool{Heartbeat: true}},
		{name: "toggle twice", apply: func(i *Log) { i.Toggle(Activity); i.Toggle(Activity) }, want: [numLights]bool{}},
		{name: "out of range ignored", apply: func(i *Log) { i.On(Light(9)) }, want: [numLights]bool{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := NewLog(quietLog())
			tt.apply(ind)
			for _, l := range Lights {
				if got := ind.State(l); got != tt.want[l] {
					t.Errorf("State(%s) = %v, want %v", l, got, tt.want[l])
				}
			}
		})
	}
}

func TestLogStates(t *testing.T) {
	ind := NewLog(quietLog())
	ind.On(Heartbeat)

	states := ind.States()
	if len(states) != 3 {
		t.Fatalf("States() has %d entries, want 3", len(states))
	}
	if !states["heartbeat"] || states["error"] || states["activity"] {
		t.Errorf("States() = %v", states)
	}
}

type fakePin struct {
	levels []gpio.Level
	err    error
}

func (p *fakePin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return p.err
}

func TestGPIODrivesPins(t *testing.T) {
	hb, errPin := &fakePin{}, &fakePin{}
	g, err := newGPIO([]outPin{hb, errPin, nil}, quietLog())
	if err != nil {
		t.Fatalf("newGPIO() error = %v", err)
	}

	g.Toggle(Heartbeat)
	g.Toggle(Heartbeat)
	g.On(Error)
	g.Toggle(Activity) // unconnected

	wantHB := []gpio.Level{gpio.Low, gpio.High, gpio.Low}
	if len(hb.levels) != len(wantHB) {
		t.Fatalf("heartbeat levels = %v, want %v", hb.levels, wantHB)
	}
	for i := range wantHB {
		if hb.levels[i] != wantHB[i] {
			t.Errorf("heartbeat level[%d] = %v, want %v", i, hb.levels[i], wantHB[i])
		}
	}
	if last := errPin.levels[len(errPin.levels)-1]; last != gpio.High {
		t.Errorf("error pin = %v, want High", last)
	}
	if !g.State(Activity) {
		t.Error("unconnected light should still track state")
	}
}

func TestGPIOInitFailure(t *testing.T) {
	_, err := newGPIO([]outPin{&fakePin{err: errors.New("busy")}}, quietLog())
	if err == nil {
		t.Error("expected error when pin cannot be driven low")
	}
}

type countingIndicator struct {
	on, off, toggle int
}

func (c *countingIndicator) On(Light)     { c.on++ }
func (c *countingIndicator) Off(Light)    { c.off++ }
func (c *countingIndicator) Toggle(Light) { c.toggle++ }

func TestMulti(t *testing.T) {
	a, b := &countingIndicator{}, &countingIndicator{}
	m := Multi{a, b, Nop{}}

	m.On(Error)
	m.Off(Error)
	m.Toggle(Heartbeat)
	m.Toggle(Heartbeat)

	for _, c := range []*countingIndicator{a, b} {
		if c.on != 1 || c.off != 1 || c.toggle != 2 {
			t.Errorf("counts = %+v, want on=1 off=1 toggle=2", *c)
		}
	}
}
