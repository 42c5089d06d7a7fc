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
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Kind selects the decode calling convention.
type Kind int

const (
	// ZeroAlloc decodes into a caller-owned buffer.
	ZeroAlloc Kind = iota + 1

	// Managed decodes into library-owned memory that must be freed.
	Managed
)

// String returns the flag spelling of k.
func (k Kind) String() string {
	switch k {
	case ZeroAlloc:
		return "zero-alloc"
	case Managed:
		return "managed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	return k == ZeroAlloc || k == Managed
}

// ParseKind converts a backend name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero-alloc", "zeroalloc", "zero_alloc", "rust":
		return ZeroAlloc, nil
	case "managed", "cs", "csharp":
		return Managed, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want zero-alloc or managed)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid backend kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

const (
	// BuiltinLibrary selects the in-process reference library.
	BuiltinLibrary = "builtin"

	// EnvLibraryPath names the environment variable consulted when no
	// library path is given.
	EnvLibraryPath = "FASTSTORAGE_NATIVE_PATH"
)

// Descriptor identifies a backend to load.
type Descriptor struct {
	Kind        Kind
	LibraryPath string
}

// String returns "kind@path".
func (d Descriptor) String() string {
	return d.Kind.String() + "@" + d.LibraryPath
}

// DefaultLibraryName is the platform file name of the native library.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libfaststorage_native.dylib"
	case "windows":
		return "faststorage_native.dll"
	default:
		return "libfaststorage_native.so"
	}
}

// ResolveLibraryPath applies the environment and platform fallbacks to an
// explicitly configured path.
func ResolveLibraryPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvLibraryPath)); p != "" {
		return p
	}
	return DefaultLibraryName()
}
