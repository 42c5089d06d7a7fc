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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Option configures Load and New.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// library is shared by a Backend and its forks. It is released when the
// last user closes.
type library struct {
	syms Symbols
	refs atomic.Int32
	once sync.Once
	err  error
}

func (l *library) acquire() {
	l.refs.Add(1)
}

func (l *library) release() error {
	if l.refs.Add(-1) > 0 {
		return nil
	}
	l.once.Do(func() {
		l.err = l.syms.Release()
	})
	return l.err
}

// Backend is a loaded decode library with one open handle.
type Backend struct {
	desc       Descriptor
	lib        *library
	handle     Handle
	ownsHandle bool
	threadSafe bool
	logger     *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// Load resolves, loads and opens the library described by desc.
//
// # Description
//
// The library path falls back to FASTSTORAGE_NATIVE_PATH and then to the
// platform default name. "builtin" selects the in-process reference
// library. Shared libraries need a cgo build.
//
// # Outputs
//
//   - *Backend: Open backend. The caller must Close it.
//   - error: *LibraryLoadError on any failure.
func Load(desc Descriptor, opts ...Option) (*Backend, error) {
	if !desc.Kind.Valid() {
		return nil, &LibraryLoadError{Path: desc.LibraryPath, Kind: desc.Kind, Stage: "unsupported", Err: errors.New("unknown backend kind")}
	}
	desc.LibraryPath = ResolveLibraryPath(desc.LibraryPath)

	var (
		syms Symbols
		err  error
	)
	if desc.LibraryPath == BuiltinLibrary {
		syms = NewBuiltin(desc.Kind)
	} else {
		syms, err = loadLibrary(desc.LibraryPath, desc.Kind)
		if err != nil {
			return nil, err
		}
	}
	return New(desc, syms, opts...)
}

// New opens a handle on already resolved symbols. It takes ownership of
// syms and releases them if opening fails.
func New(desc Descriptor, syms Symbols, opts ...Option) (*Backend, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	lib := &library{syms: syms}
	lib.acquire()

	b := &Backend{
		desc:       desc,
		lib:        lib,
		ownsHandle: true,
		logger:     o.logger.With("backend", desc.Kind.String(), "library", desc.LibraryPath),
	}
	if err := b.open(); err != nil {
		_ = lib.release()
		return nil, err
	}
	b.threadSafe = b.queryThreadSafe()

	b.logger.Debug("backend loaded", "thread_safe", b.threadSafe)
	return b, nil
}

func (b *Backend) open() error {
	var (
		h      Handle
		status int32
	)
	if err := b.guard("fsb_open", func() { h, status = b.lib.syms.Open() }); err != nil {
		return &LibraryLoadError{Path: b.desc.LibraryPath, Kind: b.desc.Kind, Stage: "open", Err: err}
	}
	if status != 0 || h.IsNil() {
		return &LibraryLoadError{
			Path:  b.desc.LibraryPath,
			Kind:  b.desc.Kind,
			Stage: "open",
			Err:   fmt.Errorf("fsb_open returned status %d", status),
		}
	}
	b.handle = h
	return nil
}

func (b *Backend) queryThreadSafe() bool {
	var safe bool
	if err := b.guard("fsb_thread_safe", func() { safe = b.lib.syms.ThreadSafe() }); err != nil {
		b.logger.Warn("thread safety query failed, assuming unsafe", "error", err)
		return false
	}
	return safe
}

// Descriptor returns the resolved descriptor.
func (b *Backend) Descriptor() Descriptor {
	return b.desc
}

// Kind returns the backend variant.
func (b *Backend) Kind() Kind {
	return b.desc.Kind
}

// ThreadSafe reports whether the handle may be shared across goroutines.
func (b *Backend) ThreadSafe() bool {
	return b.threadSafe
}

// Fork returns a backend for another worker.
//
// Thread-safe backends share the handle; otherwise the fork opens its own
// handle on the same library. Forks must be closed; the library is
// unloaded after the last of the backend and its forks is closed.
func (b *Backend) Fork() (*Backend, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	b.lib.acquire()
	f := &Backend{
		desc:       b.desc,
		lib:        b.lib,
		handle:     b.handle,
		threadSafe: b.threadSafe,
		logger:     b.logger,
	}
	if !b.threadSafe {
		f.ownsHandle = true
		if err := f.open(); err != nil {
			_ = b.lib.release()
			return nil, err
		}
	}
	return f, nil
}

// Close releases the handle and, for the last user, the library. It is
// safe to call more than once.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		if b.ownsHandle {
			if err := b.guard("fsb_close", func() { b.lib.syms.Close(b.handle) }); err != nil {
				b.closeErr = err
			}
		}
		if err := b.lib.release(); err != nil && b.closeErr == nil {
			b.closeErr = fmt.Errorf("release library: %w", err)
		}
		b.logger.Debug("backend closed")
	})
	return b.closeErr
}

// NewSession creates a session whose buffer holds initialRecords records.
// Zero sizes the buffer from the container header.
func (b *Backend) NewSession(f *container.File, initialRecords int) *Session {
	if initialRecords <= 0 && f != nil {
		initialRecords = int(f.Header.RecordCount)
	}
	return newSession(initialRecords)
}

// DecodeInto decodes f into the session buffer and returns the record
// count. Only the foreign call itself is timed; the duration is available
// from s.Elapsed.
func (b *Backend) DecodeInto(f *container.File, s *Session) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	s.reset()

	switch b.desc.Kind {
	case ZeroAlloc:
		return b.decodeInto(f, s)
	case Managed:
		return b.decodeAlloc(f, s)
	default:
		return 0, fmt.Errorf("unsupported backend kind %d", int(b.desc.Kind))
	}
}

// Decode is DecodeInto followed by converting the output to records.
func (b *Backend) Decode(f *container.File, s *Session) ([]marketdata.Record, error) {
	if _, err := b.DecodeInto(f, s); err != nil {
		return nil, err
	}
	return s.Records()
}

func (b *Backend) decodeInto(f *container.File, s *Session) (int, error) {
	h := f.Header
	for {
		var status int64
		start := time.Now()
		err := b.guard("fsb_decode_into", func() {
			status = b.lib.syms.DecodeInto(b.handle, f.Payload, h.Codec, h.UncompressedSize, s.buf, uint64(s.capRecords))
		})
		elapsed := time.Since(start)
		if err != nil {
			return 0, err
		}

		switch {
		case status >= 0:
			if status > int64(s.capRecords) {
				return 0, b.protocolFault("fsb_decode_into",
					fmt.Sprintf("reported %d records for a buffer of %d", status, s.capRecords))
			}
			s.n = int(status)
			s.elapsed = elapsed
			return s.n, nil
		case status == StatusBufferTooSmall:
			if s.retries >= MaxBufferRetries {
				return 0, &BufferTooSmallError{Capacity: s.capRecords, Retries: s.retries}
			}
			s.grow()
			b.logger.Debug("output buffer grown", "capacity_records", s.capRecords, "retry", s.retries)
		default:
			return 0, &NativeDecodeFault{Backend: b.desc.Kind, Op: "fsb_decode_into", Status: status}
		}
	}
}

func (b *Backend) decodeAlloc(f *container.File, s *Session) (n int, err error) {
	h := f.Header
	var (
		out    Allocation
		status int64
		fault  int32
	)
	start := time.Now()
	callErr := b.guard("fsb_decode_alloc", func() {
		out, status, fault = b.lib.syms.DecodeAlloc(b.handle, f.Payload, h.Codec, h.UncompressedSize)
	})
	elapsed := time.Since(start)

	// Every allocation is returned to the library, whatever happened.
	defer func() {
		if out.IsNil() {
			return
		}
		if freeErr := b.guard("fsb_free", func() { b.lib.syms.Free(b.handle, out) }); freeErr != nil && err == nil {
			n, err = 0, freeErr
		}
	}()

	if callErr != nil {
		return 0, callErr
	}
	if status < 0 {
		return 0, &NativeDecodeFault{Backend: b.desc.Kind, Op: "fsb_decode_alloc", Status: status, FaultCode: fault}
	}

	need := int(status) * marketdata.RecordSize
	if status > 0 && out.Len() < need {
		return 0, b.protocolFault("fsb_decode_alloc",
			fmt.Sprintf("reported %d records in a %d byte allocation", status, out.Len()))
	}
	s.ensure(int(status))
	if need > 0 {
		copy(s.buf[:need], out.Bytes()[:need])
	}
	s.n = int(status)
	s.elapsed = elapsed
	return s.n, nil
}

func (b *Backend) protocolFault(op, detail string) error {
	return &NativeDecodeFault{Backend: b.desc.Kind, Op: op, Status: StatusFault, Detail: detail}
}

// guard runs fn and converts a panic into a NativeDecodeFault.
func (b *Backend) guard(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NativeDecodeFault{Backend: b.desc.Kind, Op: op, Panic: r}
		}
	}()
	fn()
	return nil
}
