// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build cgo && (linux || darwin || freebsd)

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef int32_t (*fsb_open_fn)(void **);
typedef void    (*fsb_close_fn)(void *);
typedef int32_t (*fsb_thread_safe_fn)(void);
typedef int64_t (*fsb_decode_into_fn)(void *, const uint8_t *, uint64_t, uint8_t, uint64_t, uint8_t *, uint64_t);
typedef int64_t (*fsb_decode_alloc_fn)(void *, const uint8_t *, uint64_t, uint8_t, uint64_t, uint8_t **, int32_t *);
typedef void    (*fsb_free_fn)(void *, uint8_t *);

static int32_t fsb_call_open(void *fn, void **h) {
	return ((fsb_open_fn)fn)(h);
}

static void fsb_call_close(void *fn, void *h) {
	((fsb_close_fn)fn)(h);
}

static int32_t fsb_call_thread_safe(void *fn) {
	return ((fsb_thread_safe_fn)fn)();
}

static int64_t fsb_call_decode_into(void *fn, void *h, const uint8_t *src, uint64_t src_len,
                                    uint8_t codec, uint64_t uncompressed, uint8_t *dst, uint64_t cap) {
	return ((fsb_decode_into_fn)fn)(h, src, src_len, codec, uncompressed, dst, cap);
}

static int64_t fsb_call_decode_alloc(void *fn, void *h, const uint8_t *src, uint64_t src_len,
                                     uint8_t codec, uint64_t uncompressed, uint8_t **out, int32_t *fault) {
	return ((fsb_decode_alloc_fn)fn)(h, src, src_len, codec, uncompressed, out, fault);
}

static void fsb_call_free(void *fn, void *h, uint8_t *buf) {
	((fsb_free_fn)fn)(h, buf);
}

static const char *fsb_dlerror(void) {
	const char *e = dlerror();
	return e ? e : "unknown dynamic loader error";
}
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// dynamicLibrary is a dlopen'ed decode library.
type dynamicLibrary struct {
	path string
	dl   unsafe.Pointer

	open        unsafe.Pointer
	close       unsafe.Pointer
	threadSafe  unsafe.Pointer
	decodeInto  unsafe.Pointer
	decodeAlloc unsafe.Pointer
	free        unsafe.Pointer
}

func loadLibrary(path string, kind Kind) (Symbols, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	dl := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if dl == nil {
		return nil, &LibraryLoadError{Path: path, Kind: kind, Stage: "dlopen", Err: errors.New(C.GoString(C.fsb_dlerror()))}
	}

	lib := &dynamicLibrary{path: path, dl: dl}
	required := []struct {
		name string
		dst  *unsafe.Pointer
	}{
		{"fsb_open", &lib.open},
		{"fsb_close", &lib.close},
	}
	switch kind {
	case ZeroAlloc:
		required = append(required, struct {
			name string
			dst  *unsafe.Pointer
		}{"fsb_decode_into", &lib.decodeInto})
	case Managed:
		required = append(required,
			struct {
				name string
				dst  *unsafe.Pointer
			}{"fsb_decode_alloc", &lib.decodeAlloc},
			struct {
				name string
				dst  *unsafe.Pointer
			}{"fsb_free", &lib.free},
		)
	}

	for _, sym := range required {
		p, err := lib.lookup(sym.name)
		if err != nil {
			C.dlclose(dl)
			return nil, &LibraryLoadError{Path: path, Kind: kind, Stage: "symbol", Err: err}
		}
		*sym.dst = p
	}
	lib.threadSafe, _ = lib.lookup("fsb_thread_safe")
	return lib, nil
}

func (l *dynamicLibrary) lookup(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	C.dlerror()
	p := C.dlsym(l.dl, cname)
	if p == nil {
		return nil, fmt.Errorf("%s: %s", name, C.GoString(C.fsb_dlerror()))
	}
	return p, nil
}

func (l *dynamicLibrary) Open() (Handle, int32) {
	var h unsafe.Pointer
	status := C.fsb_call_open(l.open, &h)
	return NewHandle(h), int32(status)
}

func (l *dynamicLibrary) Close(h Handle) {
	C.fsb_call_close(l.close, h.Pointer())
}

func (l *dynamicLibrary) ThreadSafe() bool {
	if l.threadSafe == nil {
		return false
	}
	return C.fsb_call_thread_safe(l.threadSafe) == 1
}

func (l *dynamicLibrary) DecodeInto(h Handle, src []byte, codec marketdata.Codec, uncompressed uint64, dst []byte, capRecords uint64) int64 {
	if l.decodeInto == nil {
		return StatusFault
	}
	var pinner runtime.Pinner
	defer pinner.Unpin()

	status := C.fsb_call_decode_into(l.decodeInto, h.Pointer(),
		bytePtr(&pinner, src), C.uint64_t(len(src)),
		C.uint8_t(codec), C.uint64_t(uncompressed),
		bytePtr(&pinner, dst), C.uint64_t(capRecords))
	return int64(status)
}

func (l *dynamicLibrary) DecodeAlloc(h Handle, src []byte, codec marketdata.Codec, uncompressed uint64) (Allocation, int64, int32) {
	if l.decodeAlloc == nil {
		return Allocation{}, StatusFault, 0
	}
	var pinner runtime.Pinner
	defer pinner.Unpin()

	var (
		out   *C.uint8_t
		fault C.int32_t
	)
	status := C.fsb_call_decode_alloc(l.decodeAlloc, h.Pointer(),
		bytePtr(&pinner, src), C.uint64_t(len(src)),
		C.uint8_t(codec), C.uint64_t(uncompressed),
		&out, &fault)

	n := 0
	if status > 0 {
		n = int(status) * marketdata.RecordSize
	}
	return NewAllocation(unsafe.Pointer(out), n), int64(status), int32(fault)
}

func (l *dynamicLibrary) Free(h Handle, a Allocation) {
	if l.free == nil || a.IsNil() {
		return
	}
	C.fsb_call_free(l.free, h.Pointer(), (*C.uint8_t)(a.Pointer()))
}

func (l *dynamicLibrary) Release() error {
	if l.dl == nil {
		return nil
	}
	if C.dlclose(l.dl) != 0 {
		return fmt.Errorf("dlclose %s: %s", l.path, C.GoString(C.fsb_dlerror()))
	}
	l.dl = nil
	return nil
}

func bytePtr(p *runtime.Pinner, b []byte) *C.uint8_t {
	if len(b) == 0 {
		return nil
	}
	data := unsafe.SliceData(b)
	p.Pin(data)
	return (*C.uint8_t)(unsafe.Pointer(data))
}
