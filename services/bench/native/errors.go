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
	"errors"
	"fmt"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Status codes returned by the foreign decode entry points. Non-negative
// values are record counts.
const (
	StatusOK               int64 = 0
	StatusFault            int64 = -1
	StatusCorrupted        int64 = -2
	StatusUnexpectedEOF    int64 = -3
	StatusBufferTooSmall   int64 = -4
	StatusUnsupportedCodec int64 = -5
)

// MaxBufferRetries bounds how often one decode call grows the output
// buffer before giving up.
const MaxBufferRetries = 5

// ErrClosed is returned when a closed backend is used.
var ErrClosed = errors.New("backend closed")

// LibraryLoadError reports a library that could not be loaded or opened.
type LibraryLoadError struct {
	// Path is the resolved library path.
	Path string

	// Kind is the requested variant.
	Kind Kind

	// Stage is one of "dlopen", "symbol", "open" or "unsupported".
	Stage string

	// Err is the underlying cause.
	Err error
}

// Error returns a formatted error message.
func (e *LibraryLoadError) Error() string {
	return fmt.Sprintf("load %s backend %q: %s: %v", e.Kind, e.Path, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *LibraryLoadError) Unwrap() error {
	return e.Err
}

// BufferTooSmallError reports an output buffer that was still too small
// after MaxBufferRetries doublings.
type BufferTooSmallError struct {
	// Capacity is the final buffer capacity in records.
	Capacity int

	// Retries is the number of growth attempts made.
	Retries int
}

// Error returns a formatted error message.
func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("output buffer too small after %d retries (capacity %d records)", e.Retries, e.Capacity)
}

// Unwrap returns marketdata.ErrBufferTooSmall.
func (e *BufferTooSmallError) Unwrap() error {
	return marketdata.ErrBufferTooSmall
}

// FaultKind classifies a NativeDecodeFault.
type FaultKind string

const (
	FaultGeneric          FaultKind = "fault"
	FaultCorrupted        FaultKind = "corrupted"
	FaultUnexpectedEOF    FaultKind = "unexpected_eof"
	FaultUnsupportedCodec FaultKind = "unsupported_codec"
	FaultPanic            FaultKind = "panic"
	FaultProtocol         FaultKind = "protocol"
)

// NativeDecodeFault is a failed foreign decode call.
//
// # Description
//
// Produced for negative status codes other than buffer-too-small, for
// panics raised while crossing the boundary, and for replies that break the
// calling contract (for example a managed allocation shorter than the
// record count it claims). Faults are per call; the backend stays usable.
type NativeDecodeFault struct {
	// Backend is the variant that produced the fault.
	Backend Kind

	// Op is the foreign entry point, e.g. "fsb_decode_into".
	Op string

	// Status is the raw status code, zero for panics.
	Status int64

	// FaultCode is the codec-specific code reported by managed libraries.
	FaultCode int32

	// Panic holds the recovered value when the call panicked.
	Panic any

	// Detail describes protocol violations.
	Detail string
}

// Kind classifies the fault.
func (e *NativeDecodeFault) Kind() FaultKind {
	switch {
	case e.Panic != nil:
		return FaultPanic
	case e.Detail != "":
		return FaultProtocol
	}
	switch e.Status {
	case StatusCorrupted:
		return FaultCorrupted
	case StatusUnexpectedEOF:
		return FaultUnexpectedEOF
	case StatusUnsupportedCodec:
		return FaultUnsupportedCodec
	default:
		return FaultGeneric
	}
}

// Error returns a formatted error message.
func (e *NativeDecodeFault) Error() string {
	switch e.Kind() {
	case FaultPanic:
		return fmt.Sprintf("%s %s: panic: %v", e.Backend, e.Op, e.Panic)
	case FaultProtocol:
		return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, e.Detail)
	}
	if e.FaultCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d, fault code %d)", e.Backend, e.Op, e.Kind(), e.Status, e.FaultCode)
	}
	return fmt.Sprintf("%s %s: %s (status %d)", e.Backend, e.Op, e.Kind(), e.Status)
}

// Unwrap maps the fault onto the marketdata sentinel errors where one
// applies.
func (e *NativeDecodeFault) Unwrap() error {
	switch e.Kind() {
	case FaultCorrupted:
		return marketdata.ErrCorrupted
	case FaultUnexpectedEOF:
		return marketdata.ErrUnexpectedEOF
	case FaultUnsupportedCodec:
		return marketdata.ErrUnsupportedCodec
	default:
		return nil
	}
}

// StatusFor maps a decode error onto the foreign status code taxonomy.
func StatusFor(err error) int64 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, marketdata.ErrBufferTooSmall):
		return StatusBufferTooSmall
	case errors.Is(err, marketdata.ErrUnsupportedCodec):
		return StatusUnsupportedCodec
	case errors.Is(err, marketdata.ErrUnexpectedEOF):
		return StatusUnexpectedEOF
	case errors.Is(err, marketdata.ErrCorrupted):
		return StatusCorrupted
	default:
		return StatusFault
	}
}

// IsFatal reports whether err should stop a benchmark run instead of being
// counted as a failed iteration.
func IsFatal(err error) bool {
	var bts *BufferTooSmallError
	return errors.As(err, &bts) || errors.Is(err, ErrClosed)
}
