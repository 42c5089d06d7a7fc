// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package native adapts FastStorage decode libraries to Go.
//
// # Description
//
// A decode library exposes a small C ABI in one of two variants:
//
//   - zero-alloc: the caller owns the output buffer and passes its
//     capacity; the library reports -4 when it does not fit.
//   - managed: the library allocates the output, returns it through an
//     out-pointer and expects fsb_free to be called for every allocation.
//
// Both variants share fsb_open/fsb_close and the optional fsb_thread_safe.
// A Backend wraps one loaded library and one open handle. Every call into
// the library goes through a guard that turns status codes and panics into
// typed errors, so no foreign failure crosses into the caller unwrapped.
//
// # Libraries
//
// Load resolves the library path in this order: the descriptor, the
// FASTSTORAGE_NATIVE_PATH environment variable, then the platform default
// file name. The path "builtin" selects an in-process Go implementation of
// the same contract. Shared libraries are loaded with dlopen and need cgo;
// builds without cgo can only use "builtin".
//
// # Sessions
//
// A Session is per-worker scratch state: the output buffer, the record
// count and the elapsed time of the last foreign call. The buffer is reused
// across calls and grows by doubling when a zero-alloc library reports it
// too small, at most MaxBufferRetries times per call.
//
// # Thread Safety
//
// Backend methods are safe for concurrent use only when ThreadSafe reports
// true. Otherwise each worker should call Fork to get its own handle.
// Sessions are never safe for concurrent use.
package native
