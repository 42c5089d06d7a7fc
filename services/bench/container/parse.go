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

import (
	"fmt"
	"os"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// File is a parsed container. It is immutable after Parse returns and may be
// shared by any number of decode workers.
type File struct {
	// Path is the source path, empty for in-memory containers.
	Path string

	// Header is the validated header.
	Header Header

	// Payload is the compressed payload, exactly Header.CompressedSize bytes.
	Payload []byte
}

// Parse validates a complete container image.
//
// # Description
//
// Checks run in a fixed order: magic, version and codec id first, then the
// declared compressed size against the bytes present, then the CRC-32C of
// the payload. The payload is never decompressed.
//
// # Outputs
//
//   - *File: Header and a payload slice aliasing b.
//   - error: *FormatError or *TruncatedFileError.
func Parse(b []byte) (*File, error) {
	var h Header
	if err := h.UnmarshalBinary(b); err != nil {
		// A file too short for a header is reported on identity if the magic
		// bytes that are present are already wrong.
		if n := min(len(b), len(Magic)); string(b[:n]) != string(Magic[:n]) {
			return nil, &FormatError{Field: "magic", Reason: fmt.Sprintf("got %q, want %q", b[:n], Magic[:])}
		}
		return nil, &TruncatedFileError{Declared: HeaderSize, Available: uint64(len(b))}
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	available := uint64(len(b) - HeaderSize)
	if h.CompressedSize != available {
		return nil, &TruncatedFileError{Declared: h.CompressedSize, Available: available}
	}

	payload := b[HeaderSize:]
	if sum := Checksum(payload); sum != h.Checksum {
		return nil, &FormatError{
			Field:  "checksum",
			Reason: fmt.Sprintf("payload crc32c %08x, header declares %08x", sum, h.Checksum),
		}
	}
	return &File{Header: h, Payload: payload}, nil
}

// ReadFile reads and parses the container at path.
func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, withPath(err, path)
	}
	f.Path = path
	return f, nil
}

// Name returns the path, or "<memory>" for in-memory containers.
func (f *File) Name() string {
	if f.Path == "" {
		return "<memory>"
	}
	return f.Path
}

// Inspection is the result of fully checking a container payload.
type Inspection struct {
	Header   Header                  `json:"header"`
	Stats    marketdata.PayloadStats `json:"stats"`
	Ratio    float64                 `json:"compression_ratio"`
	Problems []string                `json:"problems,omitempty"`
}

// Inspect decompresses the payload once and checks it against the header.
//
// Disagreements between the payload and the declared record count or
// uncompressed size are reported as problems rather than errors so the
// caller can print everything it found.
func (f *File) Inspect() (*Inspection, error) {
	dec := marketdata.NewDecompressor()
	defer dec.Close()

	in := &Inspection{Header: f.Header}
	if f.Header.UncompressedSize > 0 {
		in.Ratio = float64(f.Header.CompressedSize) / float64(f.Header.UncompressedSize)
	}

	raw, err := dec.Decompress(f.Header.Codec, f.Payload, f.Header.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", f.Name(), err)
	}
	stats, err := marketdata.CountRecords(raw)
	in.Stats = stats
	if err != nil {
		in.Problems = append(in.Problems, fmt.Sprintf("payload framing: %v (after %d messages)", err, stats.Messages))
	}
	if uint64(stats.Bytes) != f.Header.UncompressedSize && err == nil {
		in.Problems = append(in.Problems, fmt.Sprintf("messages cover %d bytes, header declares %d", stats.Bytes, f.Header.UncompressedSize))
	}
	if uint32(stats.Records) != f.Header.RecordCount {
		in.Problems = append(in.Problems, fmt.Sprintf("payload holds %d records, header declares %d", stats.Records, f.Header.RecordCount))
	}
	return in, nil
}
