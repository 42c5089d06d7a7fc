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

	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/config"
	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitLibraryLoad = 2
	ExitContainer   = 3
	ExitDecode      = 4
	ExitEquivalence = 5
)

// UsageError marks invalid flags or configuration.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// CommandError wraps a command failure with the process exit code it maps
// to.
//
// # Example
//
//	err := WrapCommandError(runErr, "decodebench")
//	fmt.Println(err.Error()) // "decodebench (exit 3): container ..."
//	os.Exit(err.ExitCode)
type CommandError struct {
	// Command is the command path that failed.
	Command string

	// ExitCode is the process exit code.
	ExitCode int

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// WrapCommandError classifies err into a CommandError. It returns nil for
// a nil err and never double-wraps.
func WrapCommandError(err error, cmd string) *CommandError {
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return &CommandError{Command: cmd, ExitCode: ExitCode(err), Wrapped: err}
}

// ExitCode maps an error to the documented exit code.
//
// Library load failures are checked first because a backend that fails to
// open during a run is still a load failure. Decode aborts come before
// equivalence failures since a mismatch is only reported after every
// decode succeeded.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		usage     *UsageError
		load      *native.LibraryLoadError
		format    *container.FormatError
		truncated *container.TruncatedFileError
		abort     *benchmark.DecodeAbortError
		fault     *native.NativeDecodeFault
		small     *native.BufferTooSmallError
		mismatch  *equivalence.MismatchError
	)
	switch {
	case errors.As(err, &usage), errors.Is(err, config.ErrInvalid), errors.Is(err, benchmark.ErrInvalidConfig):
		return ExitUsage
	case errors.As(err, &load):
		return ExitLibraryLoad
	case errors.As(err, &format), errors.As(err, &truncated):
		return ExitContainer
	case errors.As(err, &abort), errors.As(err, &fault), errors.As(err, &small):
		return ExitDecode
	case errors.As(err, &mismatch):
		return ExitEquivalence
	default:
		return ExitUsage
	}
}
