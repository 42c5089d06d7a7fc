// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// SpinnerType defines the animation style
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerWave
	SpinnerCompass
)

var spinnerFrames = map[SpinnerType][]string{
	SpinnerDots:    {"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	SpinnerWave:    {"~", "≈", "≋", "≈"},
	SpinnerCompass: {"◐", "◓", "◑", "◒"},
}

const spinnerInterval = 80 * time.Millisecond

// Spinner shows an animated progress line on a terminal. On anything else
// it writes nothing, so redirected stderr stays clean.
//
// Add is safe to call from many goroutines while the spinner runs.
type Spinner struct {
	w        io.Writer
	enabled  bool
	spinType SpinnerType
	interval time.Duration

	total   int64
	current atomic.Int64

	mu        sync.Mutex
	message   string
	isRunning bool
	stop      chan struct{}
	done      chan struct{}
}

// NewSpinner creates a spinner writing to w. A positive total appends a
// "[current/total]" counter to the message.
func NewSpinner(w io.Writer, message string, total int) *Spinner {
	return &Spinner{
		w:        w,
		enabled:  IsTerminal(w),
		spinType: SpinnerDots,
		interval: spinnerInterval,
		total:    int64(total),
		message:  message,
	}
}

// WithType sets the spinner animation type
func (s *Spinner) WithType(t SpinnerType) *Spinner {
	s.spinType = t
	return s
}

// Enabled reports whether the spinner draws anything.
func (s *Spinner) Enabled() bool {
	return s.enabled
}

// Start begins the animation. It is a no-op when already running or when w
// is not a terminal.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning || !s.enabled {
		return
	}
	s.isRunning = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	frames, ok := spinnerFrames[s.spinType]
	if !ok {
		frames = spinnerFrames[SpinnerDots]
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for frame := 0; ; frame = (frame + 1) % len(frames) {
		select {
		case <-stop:
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprintf(s.w, "\r\033[K%s %s", Styles.Highlight.Render(frames[frame]), s.line())
		}
	}
}

func (s *Spinner) line() string {
	s.mu.Lock()
	msg, total := s.message, s.total
	s.mu.Unlock()
	if total > 0 {
		return fmt.Sprintf("%s [%d/%d]", msg, s.current.Load(), total)
	}
	return msg
}

// Stop halts the animation and clears the line. Safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Reset changes the message and restarts the counter at zero.
func (s *Spinner) Reset(message string, total int) {
	s.mu.Lock()
	s.message = message
	s.total = int64(total)
	s.mu.Unlock()
	s.current.Store(0)
}

// Add advances the counter by n.
func (s *Spinner) Add(n int) {
	s.current.Add(int64(n))
}

// Current returns the counter value.
func (s *Spinner) Current() int {
	return int(s.current.Load())
}
