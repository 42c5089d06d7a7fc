// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a bytes.Buffer for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func forcedSpinner(w *syncBuffer, message string, total int) *Spinner {
	s := NewSpinner(w, message, total)
	s.enabled = true
	s.interval = time.Millisecond
	return s
}

func TestNewSpinner_DisabledOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "decoding", 10)
	assert.False(t, s.Enabled())
	assert.Equal(t, SpinnerDots, s.spinType)

	s.Start()
	s.Add(3)
	s.Stop()
	assert.Empty(t, buf.String())
	assert.Equal(t, 3, s.Current())
}

func TestSpinner_DrawsCounter(t *testing.T) {
	var buf syncBuffer
	s := forcedSpinner(&buf, "measure zero-alloc", 100)
	s.Start()
	s.Add(40)

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "measure zero-alloc [40/100]")
	}, time.Second, time.Millisecond)

	s.Stop()
	assert.True(t, strings.HasSuffix(buf.String(), "\r\033[K"), "stop clears the line")
}

func TestSpinner_ResetAndUpdate(t *testing.T) {
	var buf syncBuffer
	s := forcedSpinner(&buf, "warmup", 5)
	s.Add(5)
	s.Reset("measure", 20)
	assert.Zero(t, s.Current())

	s.UpdateMessage("measure managed")
	s.Start()
	s.Add(1)
	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "measure managed [1/20]")
	}, time.Second, time.Millisecond)
	s.Stop()
}

func TestSpinner_NoTotal(t *testing.T) {
	var buf syncBuffer
	s := forcedSpinner(&buf, "loading", 0).WithType(SpinnerWave)
	s.Start()
	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "loading")
	}, time.Second, time.Millisecond)
	s.Stop()
	assert.NotRegexp(t, `\[\d+/\d+\]`, buf.String(), "no counter without a total")
}

func TestSpinner_StopIdempotent(t *testing.T) {
	var buf syncBuffer
	s := forcedSpinner(&buf, "x", 0)
	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	// Restart after stop.
	s.Start()
	s.Stop()
}

func TestSpinner_ConcurrentAdd(t *testing.T) {
	var buf syncBuffer
	s := forcedSpinner(&buf, "measure", 800)
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, s.Current())
}
