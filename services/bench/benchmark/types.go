// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package benchmark

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig indicates an invalid benchmark configuration.
	ErrInvalidConfig = errors.New("invalid benchmark configuration")

	// ErrWarmupFailed is matched by DecodeAbortError during warmup.
	ErrWarmupFailed = errors.New("warmup decode failed")

	// ErrMeasurementAborted is matched by DecodeAbortError during measurement.
	ErrMeasurementAborted = errors.New("measurement aborted")
)

// Phase names a stage of a run.
type Phase string

const (
	PhaseWarmup  Phase = "warmup"
	PhaseMeasure Phase = "measure"
)

// DecodeAbortError reports a decode failure that stopped the run.
//
// During warmup any failure is fatal. During measurement only failures the
// backend cannot recover from (buffer growth exhausted, backend closed)
// abort the run; other faults are counted.
type DecodeAbortError struct {
	// Phase is where the failure happened.
	Phase Phase

	// Iteration is the zero-based call number within the phase.
	Iteration int

	// Err is the underlying decode error.
	Err error
}

// Error returns a formatted error message.
func (e *DecodeAbortError) Error() string {
	return fmt.Sprintf("%s iteration %d: %v", e.Phase, e.Iteration, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeAbortError) Unwrap() []error {
	if e.Phase == PhaseWarmup {
		return []error{ErrWarmupFailed, e.Err}
	}
	return []error{ErrMeasurementAborted, e.Err}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds benchmark configuration.
//
// Description:
//
//	Config controls iteration counts, the worker pool and the run-level
//	timeout. Use DefaultConfig() to get defaults, then override fields.
//
// Thread Safety: Safe for concurrent read access after initialization.
type Config struct {
	// Iterations is the number of measured decode calls.
	// Default: 1000
	Iterations int

	// Warmup is the number of unmeasured calls before measurement.
	// Default: 100
	Warmup int

	// Parallelism is the number of concurrent workers.
	// Default: 1 (sequential)
	Parallelism int

	// Timeout is the wall-clock budget for warmup and measurement together.
	// Reaching it stops scheduling calls; in-flight calls finish and every
	// unscheduled measured iteration is counted as skipped. Zero means no
	// limit.
	Timeout time.Duration

	// InitialBufferRecords sizes session buffers. Zero uses the record
	// count from the container header.
	InitialBufferRecords int

	// Observer receives per-call events. Optional.
	Observer Observer

	// Logger receives progress logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Iterations:  1000,
		Warmup:      100,
		Parallelism: 1,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidConfig)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("%w: warmup must be non-negative", ErrInvalidConfig)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("%w: parallelism must be positive", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be non-negative", ErrInvalidConfig)
	}
	if c.InitialBufferRecords < 0 {
		return fmt.Errorf("%w: initial buffer records must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Observer receives measurement events. Implementations must be safe for
// concurrent use.
type Observer interface {
	// Sample is called for every successful measured call.
	Sample(kind native.Kind, d time.Duration, records int)

	// Failure is called for every failed measured call.
	Failure(kind native.Kind, fault native.FaultKind)
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// SampleSet is the outcome of a measurement phase.
//
// Thread Safety: Safe for concurrent read access after creation.
type SampleSet struct {
	// Backend is the variant that was measured.
	Backend native.Kind `json:"backend"`

	// Library is the resolved library path.
	Library string `json:"library"`

	// Samples are the successful call durations in iteration order.
	Samples []time.Duration `json:"-"`

	// Failures is the number of measured calls that failed.
	Failures int `json:"failures"`

	// FaultCounts breaks Failures down by fault kind.
	FaultCounts map[native.FaultKind]int `json:"fault_counts,omitempty"`

	// Skipped is the number of iterations never started because of the
	// run timeout or cancellation.
	Skipped int `json:"skipped"`

	// Records is the record count of the last successful call.
	Records int `json:"records"`

	// PayloadBytes is the compressed payload size decoded per call.
	PayloadBytes int `json:"payload_bytes"`

	// Wall is the wall-clock duration of the measurement phase.
	Wall time.Duration `json:"wall"`

	// Parallelism is the number of workers used.
	Parallelism int `json:"parallelism"`

	// BufferRetries is the number of output buffer growths over the run.
	BufferRetries int `json:"buffer_retries"`
}

// Attempted is the number of measured calls that were started.
func (s *SampleSet) Attempted() int {
	return len(s.Samples) + s.Failures
}
