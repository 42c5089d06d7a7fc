// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package native

import (
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Session is per-worker decode state. It is not safe for concurrent use.
type Session struct {
	buf        []byte
	capRecords int

	n       int
	elapsed time.Duration
	retries int

	totalRetries int
}

// maxInitialRecords caps the up-front buffer. Larger outputs reach their
// size through the BufferTooSmall doubling path.
const maxInitialRecords = 1 << 22

func newSession(capRecords int) *Session {
	capRecords = max(0, min(capRecords, maxInitialRecords))
	s := &Session{capRecords: capRecords}
	if capRecords > 0 {
		s.buf = make([]byte, capRecords*marketdata.RecordSize)
	}
	return s
}

// Count is the number of records produced by the last call.
func (s *Session) Count() int {
	return s.n
}

// Elapsed is the duration of the last successful foreign call.
func (s *Session) Elapsed() time.Duration {
	return s.elapsed
}

// Capacity is the buffer capacity in records.
func (s *Session) Capacity() int {
	return s.capRecords
}

// Retries is the number of buffer growths during the last call.
func (s *Session) Retries() int {
	return s.retries
}

// TotalRetries is the number of buffer growths over the session lifetime.
func (s *Session) TotalRetries() int {
	return s.totalRetries
}

// Output returns the encoded records of the last call. The slice is reused
// by the next call.
func (s *Session) Output() []byte {
	return s.buf[:s.n*marketdata.RecordSize]
}

// Records decodes the output of the last call.
func (s *Session) Records() ([]marketdata.Record, error) {
	return marketdata.ReadRecords(s.buf, s.n)
}

func (s *Session) reset() {
	s.n = 0
	s.elapsed = 0
	s.retries = 0
}

// grow doubles the buffer capacity.
func (s *Session) grow() {
	next := s.capRecords * 2
	if next == 0 {
		next = 1
	}
	s.buf = make([]byte, next*marketdata.RecordSize)
	s.capRecords = next
	s.retries++
	s.totalRetries++
}

// ensure makes room for n records without counting a retry.
func (s *Session) ensure(n int) {
	if n <= s.capRecords {
		return
	}
	s.buf = make([]byte, n*marketdata.RecordSize)
	s.capRecords = n
}
