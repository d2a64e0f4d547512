// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"
)

// Statistics tracks link session counters and rates
type Statistics struct {
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`

	// Counters
	PairingRequests uint64 `json:"pairing_requests"`
	DataRequests    uint64 `json:"data_requests"`
	PairingAcks     uint64 `json:"pairing_acks"`
	DataAcks        uint64 `json:"data_acks"`
	Unexpected      uint64 `json:"unexpected"`
	Timeouts        uint64 `json:"timeouts"`
	Reinits         uint64 `json:"reinits"`
	LostFrames      uint64 `json:"lost_frames"`
	Transitions     uint64 `json:"transitions"`

	// Rates (calculated)
	RequestRate float64 `json:"request_rate"` // requests/sec
	AckRate     float64 `json:"ack_rate"`     // acks/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Requests returns the number of requests sent
func (s *Statistics) Requests() uint64 {
	return s.PairingRequests + s.DataRequests
}

// Acks returns the number of expected responses received
func (s *Statistics) Acks() uint64 {
	return s.PairingAcks + s.DataAcks
}

func (s *Statistics) touch() {
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates request and ack rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.RequestRate = float64(s.Requests()) / elapsed
		s.AckRate = float64(s.Acks()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var ackPercent, timeoutPercent, unexpectedPercent float64
	if requests := s.Requests(); requests > 0 {
		ackPercent = float64(s.Acks()) * 100.0 / float64(requests)
		timeoutPercent = float64(s.Timeouts) * 100.0 / float64(requests)
		unexpectedPercent = float64(s.Unexpected) * 100.0 / float64(requests)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Requests Sent:   %8d\n", s.Requests())
	result += fmt.Sprintf("  Pairing:          %5d\n", s.PairingRequests)
	result += fmt.Sprintf("  Data:             %5d\n", s.DataRequests)
	result += fmt.Sprintf("Acks Received:   %8d (%.1f%%)\n", s.Acks(), ackPercent)
	result += fmt.Sprintf("  Pairing:          %5d\n", s.PairingAcks)
	result += fmt.Sprintf("  Data:             %5d\n", s.DataAcks)

	if s.Unexpected > 0 {
		result += fmt.Sprintf("Unexpected:      %8d (%.1f%%)\n", s.Unexpected, unexpectedPercent)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", s.Timeouts, timeoutPercent)
		result += fmt.Sprintf("  Reinits:          %5d\n", s.Reinits)
	}
	if s.LostFrames > 0 {
		result += fmt.Sprintf("Lost Frames:     %8d\n", s.LostFrames)
	}

	result += fmt.Sprintf("Request Rate:    %8.1f req/sec\n", s.RequestRate)
	result += fmt.Sprintf("Ack Rate:        %8.1f acks/sec\n", s.AckRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
