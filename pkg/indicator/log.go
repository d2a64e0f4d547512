// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indicator

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Log keeps light states in memory and reports changes at debug level.
type Log struct {
	mu    sync.Mutex
	state [numLights]bool
	log   *logrus.Entry
}

// NewLog creates a Log indicator. A nil entry uses the standard logger.
func NewLog(log *logrus.Entry) *Log {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Log{log: log.WithField("component", "indicator")}
}

func (i *Log) On(l Light)     { i.set(l, func(bool) bool { return true }) }
func (i *Log) Off(l Light)    { i.set(l, func(bool) bool { return false }) }
func (i *Log) Toggle(l Light) { i.set(l, func(v bool) bool { return !v }) }

func (i *Log) set(l Light, next func(bool) bool) {
	if l < 0 || l >= numLights {
		return
	}
	i.mu.Lock()
	old := i.state[l]
	i.state[l] = next(old)
	now := i.state[l]
	i.mu.Unlock()

	if old != now {
		i.log.WithFields(logrus.Fields{"light": l.String(), "on": now}).Debug("Light changed")
	}
}

// State reports whether a light is on.
func (i *Log) State(l Light) bool {
	if l < 0 || l >= numLights {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state[l]
}

// States returns all light states keyed by light name.
func (i *Log) States() map[string]bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]bool, numLights)
	for _, l := range Lights {
		out[l.String()] = i.state[l]
	}
	return out
}
