// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/config"
	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

func TestExitCode(t *testing.T) {
	load := &native.LibraryLoadError{Path: "libx.so", Kind: native.Managed, Stage: "dlopen", Err: errors.New("not found")}
	fault := &native.NativeDecodeFault{Backend: native.ZeroAlloc, Op: "fsb_decode_into", Status: native.StatusCorrupted}
	mismatch := &equivalence.MismatchError{Result: &equivalence.Result{Reference: native.Managed, Candidate: native.ZeroAlloc, TotalMismatches: 1}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", usageErrorf("bad flag"), ExitUsage},
		{"invalid config", fmt.Errorf("%w: Iterations", config.ErrInvalid), ExitUsage},
		{"invalid benchmark config", benchmark.ErrInvalidConfig, ExitUsage},
		{"library load", load, ExitLibraryLoad},
		{"wrapped library load", fmt.Errorf("open: %w", load), ExitLibraryLoad},
		{"format", &container.FormatError{Field: "magic", Reason: "bad"}, ExitContainer},
		{"truncated", &container.TruncatedFileError{Declared: 10, Available: 4}, ExitContainer},
		{"warmup abort", &benchmark.DecodeAbortError{Phase: benchmark.PhaseWarmup, Err: fault}, ExitDecode},
		{"measure abort", &benchmark.DecodeAbortError{Phase: benchmark.PhaseMeasure, Err: marketdata.ErrCorrupted}, ExitDecode},
		{"fault", fault, ExitDecode},
		{"buffer too small", &native.BufferTooSmallError{Capacity: 64, Retries: native.MaxBufferRetries}, ExitDecode},
		{"mismatch", mismatch, ExitEquivalence},
		{"missing file", fmt.Errorf("read: %w", os.ErrNotExist), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWrapCommandError(t *testing.T) {
	assert.Nil(t, WrapCommandError(nil, "decodebench"))

	err := WrapCommandError(&container.FormatError{Field: "codec", Reason: "id 9"}, "decodebench")
	assert.Equal(t, ExitContainer, err.ExitCode)
	assert.Equal(t, "decodebench (exit 3): container: invalid codec: id 9", err.Error())

	var fe *container.FormatError
	assert.True(t, errors.As(err, &fe))

	again := WrapCommandError(fmt.Errorf("outer: %w", err), "other")
	assert.Same(t, err, again)
}

func TestUsageError(t *testing.T) {
	inner := errors.New("bad value")
	err := &UsageError{Err: inner}
	assert.Equal(t, "bad value", err.Error())
	assert.ErrorIs(t, err, inner)
}
