// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nativetest provides fault-injecting decode libraries for tests.
package nativetest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// Fault decides the outcome of one decode call. Returning ok=false passes
// the call through to the wrapped library.
type Fault func(call int64) (status int64, ok bool)

// Faulty wraps a Symbols implementation and injects failures.
//
// Calls are numbered from 1 across DecodeInto and DecodeAlloc.
type Faulty struct {
	native.Symbols

	// Fault overrides selected calls.
	Fault Fault

	// PanicOn makes the given call panic.
	PanicOn int64

	// Delay is added to every decode call.
	Delay time.Duration

	// OpenStatus, when non-zero, makes Open fail.
	OpenStatus int32

	// ForceThreadSafe overrides the wrapped ThreadSafe answer when set.
	ForceThreadSafe *bool

	calls  atomic.Int64
	opens  atomic.Int64
	closes atomic.Int64

	mu         sync.Mutex
	capacities []uint64
}

// Wrap returns a Faulty around syms.
func Wrap(syms native.Symbols) *Faulty {
	return &Faulty{Symbols: syms}
}

// Calls returns the number of decode calls made.
func (f *Faulty) Calls() int64 {
	return f.calls.Load()
}

// Opens returns the number of successful Open calls.
func (f *Faulty) Opens() int64 {
	return f.opens.Load()
}

// Closes returns the number of Close calls.
func (f *Faulty) Closes() int64 {
	return f.closes.Load()
}

// Capacities returns the buffer capacities seen by DecodeInto, in order.
func (f *Faulty) Capacities() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.capacities...)
}

// Open implements native.Symbols.
func (f *Faulty) Open() (native.Handle, int32) {
	if f.OpenStatus != 0 {
		return native.Handle{}, f.OpenStatus
	}
	h, status := f.Symbols.Open()
	if status == 0 {
		f.opens.Add(1)
	}
	return h, status
}

// Close implements native.Symbols.
func (f *Faulty) Close(h native.Handle) {
	f.closes.Add(1)
	f.Symbols.Close(h)
}

// ThreadSafe implements native.Symbols.
func (f *Faulty) ThreadSafe() bool {
	if f.ForceThreadSafe != nil {
		return *f.ForceThreadSafe
	}
	return f.Symbols.ThreadSafe()
}

// DecodeInto implements native.Symbols.
func (f *Faulty) DecodeInto(h native.Handle, src []byte, codec marketdata.Codec, uncompressed uint64, dst []byte, capRecords uint64) int64 {
	call := f.before()
	f.mu.Lock()
	f.capacities = append(f.capacities, capRecords)
	f.mu.Unlock()
	if status, ok := f.inject(call); ok {
		return status
	}
	return f.Symbols.DecodeInto(h, src, codec, uncompressed, dst, capRecords)
}

// DecodeAlloc implements native.Symbols.
func (f *Faulty) DecodeAlloc(h native.Handle, src []byte, codec marketdata.Codec, uncompressed uint64) (native.Allocation, int64, int32) {
	call := f.before()
	if status, ok := f.inject(call); ok {
		// Still allocate, so the free-on-error path is exercised.
		out, _, _ := f.Symbols.DecodeAlloc(h, src, codec, uncompressed)
		return out, status, 777
	}
	return f.Symbols.DecodeAlloc(h, src, codec, uncompressed)
}

func (f *Faulty) before() int64 {
	call := f.calls.Add(1)
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.PanicOn != 0 && call == f.PanicOn {
		panic("injected native panic")
	}
	return call
}

func (f *Faulty) inject(call int64) (int64, bool) {
	if f.Fault == nil {
		return 0, false
	}
	return f.Fault(call)
}

// FailCalls fails exactly the listed calls with status.
func FailCalls(status int64, calls ...int64) Fault {
	set := make(map[int64]bool, len(calls))
	for _, c := range calls {
		set[c] = true
	}
	return func(call int64) (int64, bool) {
		if set[call] {
			return status, true
		}
		return 0, false
	}
}

// FailEvery fails every nth call with status.
func FailEvery(n int64, status int64) Fault {
	return func(call int64) (int64, bool) {
		if n > 0 && call%n == 0 {
			return status, true
		}
		return 0, false
	}
}

// AlwaysFail fails every call with status.
func AlwaysFail(status int64) Fault {
	return func(int64) (int64, bool) {
		return status, true
	}
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
