// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package esb

import (
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// FrameLog writes frame dumps to a logger. The count shown in each dump is
// shared by every frame logged through the same FrameLog.
type FrameLog struct {
	count atomic.Uint64
	log   *logrus.Entry
}

// NewFrameLog creates a FrameLog. A nil entry uses the standard logger.
func NewFrameLog(log *logrus.Entry) *FrameLog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FrameLog{log: log.WithField("component", "frames")}
}

// Emit logs one frame dump, one log line per dump line.
func (l *FrameLog) Emit(f Frame) {
	n := l.count.Add(1) - 1
	for _, line := range strings.Split(FormatFrame(n, f), "\n") {
		if line != "" {
			l.log.Info(line)
		}
	}
}

// Count returns the number of frames logged so far.
func (l *FrameLog) Count() uint64 {
	return l.count.Load()
}
