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
	"path/filepath"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Build compresses an uncompressed payload and returns a complete container
// image.
//
// The record count is derived from the payload so the header always agrees
// with it.
func Build(payload []byte, codec marketdata.Codec) ([]byte, Header, error) {
	stats, err := marketdata.CountRecords(payload)
	if err != nil {
		return nil, Header{}, fmt.Errorf("build container: %w", err)
	}
	compressed, err := marketdata.Compress(codec, payload)
	if err != nil {
		return nil, Header{}, fmt.Errorf("build container: %w", err)
	}

	h := Header{
		Magic:            Magic,
		Version:          Version,
		RecordCount:      uint32(stats.Records),
		Codec:            codec,
		UncompressedSize: uint64(len(payload)),
		CompressedSize:   uint64(len(compressed)),
		Checksum:         Checksum(compressed),
	}
	out, _ := h.AppendBinary(make([]byte, 0, HeaderSize+len(compressed)))
	return append(out, compressed...), h, nil
}

// BuildFile is Build followed by Parse.
func BuildFile(payload []byte, codec marketdata.Codec) (*File, error) {
	b, _, err := Build(payload, codec)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// WriteFile builds a container and writes it to path atomically.
func WriteFile(path string, payload []byte, codec marketdata.Codec) (Header, error) {
	b, h, err := Build(payload, codec)
	if err != nil {
		return Header{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".container-*")
	if err != nil {
		return Header{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return Header{}, fmt.Errorf("write container: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Header{}, fmt.Errorf("close container: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Header{}, fmt.Errorf("rename container: %w", err)
	}
	return h, nil
}
