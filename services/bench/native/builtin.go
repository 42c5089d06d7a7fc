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
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Builtin is the in-process reference library.
//
// The zero-alloc variant keeps one decompressor per handle and is not
// thread safe. The managed variant pools decompressors, allocates a fresh
// output for every call and reports itself thread safe. The two variants
// convert fixed point values differently, so their outputs may differ in
// the last bit.
type Builtin struct {
	kind Kind

	open        atomic.Int64
	outstanding atomic.Int64
	released    atomic.Bool

	mu     sync.Mutex
	live   map[*builtinHandle]struct{}
	pool   sync.Pool
	allocs map[unsafe.Pointer][]byte
}

type builtinHandle struct {
	dec *marketdata.Decompressor
}

// NewBuiltin creates the reference library for kind.
func NewBuiltin(kind Kind) *Builtin {
	return &Builtin{
		kind:   kind,
		live:   make(map[*builtinHandle]struct{}),
		allocs: make(map[unsafe.Pointer][]byte),
		pool: sync.Pool{New: func() any {
			return marketdata.NewDecompressor()
		}},
	}
}

// OpenHandles returns the number of handles not yet closed.
func (b *Builtin) OpenHandles() int64 {
	return b.open.Load()
}

// Outstanding returns the number of managed allocations not yet freed.
func (b *Builtin) Outstanding() int64 {
	return b.outstanding.Load()
}

// Released reports whether Release has been called.
func (b *Builtin) Released() bool {
	return b.released.Load()
}

// Open implements Symbols.
func (b *Builtin) Open() (Handle, int32) {
	h := &builtinHandle{}
	if b.kind == ZeroAlloc {
		h.dec = marketdata.NewDecompressor()
	}
	b.mu.Lock()
	b.live[h] = struct{}{}
	b.mu.Unlock()
	b.open.Add(1)
	return NewHandle(unsafe.Pointer(h)), 0
}

// Close implements Symbols.
func (b *Builtin) Close(h Handle) {
	bh := (*builtinHandle)(h.Pointer())
	b.mu.Lock()
	_, ok := b.live[bh]
	delete(b.live, bh)
	b.mu.Unlock()
	if !ok {
		return
	}
	if bh.dec != nil {
		bh.dec.Close()
	}
	b.open.Add(-1)
}

// ThreadSafe implements Symbols.
func (b *Builtin) ThreadSafe() bool {
	return b.kind == Managed
}

// DecodeInto implements Symbols.
func (b *Builtin) DecodeInto(h Handle, src []byte, codec marketdata.Codec, uncompressed uint64, dst []byte, capRecords uint64) int64 {
	bh := b.handle(h)
	if bh == nil || bh.dec == nil || b.kind != ZeroAlloc {
		return StatusFault
	}
	raw, err := bh.dec.Decompress(codec, src, uncompressed)
	if err != nil {
		return StatusFor(err)
	}
	n, err := marketdata.DecodePayload(raw, dst, int(capRecords), marketdata.RoundMultiply)
	if err != nil {
		return StatusFor(err)
	}
	return int64(n)
}

// DecodeAlloc implements Symbols.
func (b *Builtin) DecodeAlloc(h Handle, src []byte, codec marketdata.Codec, uncompressed uint64) (Allocation, int64, int32) {
	if b.handle(h) == nil || b.kind != Managed {
		return Allocation{}, StatusFault, 0
	}
	dec := b.pool.Get().(*marketdata.Decompressor)
	defer b.pool.Put(dec)

	raw, err := dec.Decompress(codec, src, uncompressed)
	if err != nil {
		return Allocation{}, StatusFor(err), faultCode(codec, err)
	}
	stats, err := marketdata.CountRecords(raw)
	if err != nil {
		return Allocation{}, StatusFor(err), faultCode(codec, err)
	}

	// Always hand out a non-nil allocation, even for zero records, so
	// callers exercise the free path.
	buf := make([]byte, max(stats.Records, 1)*marketdata.RecordSize)
	n, err := marketdata.DecodePayload(raw, buf, stats.Records, marketdata.RoundDivide)
	alloc := b.track(buf)
	if err != nil {
		return alloc, StatusFor(err), faultCode(codec, err)
	}
	return alloc, int64(n), 0
}

// Free implements Symbols.
func (b *Builtin) Free(_ Handle, a Allocation) {
	b.mu.Lock()
	_, ok := b.allocs[a.Pointer()]
	delete(b.allocs, a.Pointer())
	b.mu.Unlock()
	if ok {
		b.outstanding.Add(-1)
	}
}

// Release implements Symbols.
func (b *Builtin) Release() error {
	if b.released.Swap(true) {
		return errors.New("builtin library released twice")
	}
	return nil
}

func (b *Builtin) handle(h Handle) *builtinHandle {
	bh := (*builtinHandle)(h.Pointer())
	b.mu.Lock()
	_, ok := b.live[bh]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return bh
}

func (b *Builtin) track(buf []byte) Allocation {
	p := unsafe.Pointer(unsafe.SliceData(buf))
	b.mu.Lock()
	b.allocs[p] = buf
	b.mu.Unlock()
	b.outstanding.Add(1)
	return NewAllocation(p, len(buf))
}

// faultCode is codec*100 plus a reason: 1 corrupted, 2 truncated,
// 3 unsupported codec, 9 other.
func faultCode(codec marketdata.Codec, err error) int32 {
	reason := int32(9)
	switch StatusFor(err) {
	case StatusCorrupted:
		reason = 1
	case StatusUnexpectedEOF:
		reason = 2
	case StatusUnsupportedCodec:
		reason = 3
	}
	return int32(codec)*100 + reason
}

var _ Symbols = (*Builtin)(nil)
