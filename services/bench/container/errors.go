// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package container

import "fmt"

// FormatError reports a container whose header or checksum is invalid.
//
// # Description
//
// Returned for a bad magic, an unknown version, an unknown codec id or a
// checksum mismatch. Format errors are fatal; the payload is never handed
// to a decoder.
//
// # Example
//
//	var fe *FormatError
//	if errors.As(err, &fe) {
//	    fmt.Println(fe.Field) // "magic"
//	}
type FormatError struct {
	// Path is the file that failed, empty when parsing raw bytes.
	Path string

	// Field names the header field that failed validation.
	Field string

	// Reason is a human-readable description.
	Reason string
}

// Error returns a formatted error message.
func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("container %s: invalid %s: %s", e.Path, e.Field, e.Reason)
	}
	return fmt.Sprintf("container: invalid %s: %s", e.Field, e.Reason)
}

// TruncatedFileError reports a payload whose length disagrees with the
// compressed size declared in the header.
type TruncatedFileError struct {
	// Path is the file that failed, empty when parsing raw bytes.
	Path string

	// Declared is the compressed size from the header.
	Declared uint64

	// Available is the number of payload bytes present after the header.
	Available uint64
}

// Error returns a formatted error message.
func (e *TruncatedFileError) Error() string {
	what := "truncated"
	if e.Available > e.Declared {
		what = "has trailing data"
	}
	name := "container"
	if e.Path != "" {
		name = "container " + e.Path
	}
	return fmt.Sprintf("%s: payload %s: header declares %d bytes, %d available",
		name, what, e.Declared, e.Available)
}

// Trailing reports whether the file is longer than declared rather than
// shorter.
func (e *TruncatedFileError) Trailing() bool {
	return e.Available > e.Declared
}

func withPath(err error, path string) error {
	switch e := err.(type) {
	case *FormatError:
		e.Path = path
	case *TruncatedFileError:
		e.Path = path
	}
	return err
}
