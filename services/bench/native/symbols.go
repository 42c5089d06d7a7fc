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
	"unsafe"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Handle is an opaque library handle returned by fsb_open.
type Handle struct {
	p unsafe.Pointer
}

// NewHandle wraps a raw handle pointer.
func NewHandle(p unsafe.Pointer) Handle {
	return Handle{p: p}
}

// Pointer returns the raw handle.
func (h Handle) Pointer() unsafe.Pointer {
	return h.p
}

// IsNil reports whether the handle is unset.
func (h Handle) IsNil() bool {
	return h.p == nil
}

// Allocation is a library-owned output buffer returned by fsb_decode_alloc.
type Allocation struct {
	p unsafe.Pointer
	n int
}

// NewAllocation wraps a buffer of n bytes at p.
func NewAllocation(p unsafe.Pointer, n int) Allocation {
	return Allocation{p: p, n: n}
}

// IsNil reports whether the allocation is unset.
func (a Allocation) IsNil() bool {
	return a.p == nil
}

// Len returns the allocation size in bytes.
func (a Allocation) Len() int {
	return a.n
}

// Pointer returns the raw buffer pointer.
func (a Allocation) Pointer() unsafe.Pointer {
	return a.p
}

// Bytes views the allocation. The view is only valid until Free.
func (a Allocation) Bytes() []byte {
	if a.p == nil || a.n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(a.p), a.n)
}

// Symbols is the resolved entry point set of one decode library.
//
// Implementations return raw status codes; translation into Go errors is
// the Backend's job. Entry points a variant does not export may be left
// returning StatusFault.
type Symbols interface {
	// Open is fsb_open. A zero status means h is valid.
	Open() (h Handle, status int32)

	// Close is fsb_close.
	Close(h Handle)

	// ThreadSafe is fsb_thread_safe, false when the symbol is missing.
	ThreadSafe() bool

	// DecodeInto is fsb_decode_into.
	DecodeInto(h Handle, src []byte, codec marketdata.Codec, uncompressed uint64, dst []byte, capRecords uint64) int64

	// DecodeAlloc is fsb_decode_alloc. The allocation may be set even when
	// status is negative and must still be freed.
	DecodeAlloc(h Handle, src []byte, codec marketdata.Codec, uncompressed uint64) (out Allocation, status int64, faultCode int32)

	// Free is fsb_free.
	Free(h Handle, a Allocation)

	// Release unloads the library. Called once, after every handle is closed.
	Release() error
}
