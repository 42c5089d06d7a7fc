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
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// HeaderSize is the encoded header length in bytes.
const HeaderSize = 31

// Version is the only container version this package understands.
const Version uint16 = 1

// Magic identifies a FastStorage container.
var Magic = [4]byte{'F', 'S', 'T', 'B'}

const (
	offMagic        = 0
	offVersion      = 4
	offRecordCount  = 6
	offCodec        = 10
	offUncompressed = 11
	offCompressed   = 19
	offChecksum     = 27
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC-32C of a compressed payload.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoli)
}

// Header is the fixed-size container header.
type Header struct {
	Magic            [4]byte
	Version          uint16
	RecordCount      uint32
	Codec            marketdata.Codec
	UncompressedSize uint64
	CompressedSize   uint64
	Checksum         uint32
}

// MarshalBinary encodes h into its 31 byte wire form.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

// AppendBinary appends the wire form of h to b.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	var buf [HeaderSize]byte
	copy(buf[offMagic:], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offRecordCount:], h.RecordCount)
	buf[offCodec] = byte(h.Codec)
	binary.LittleEndian.PutUint64(buf[offUncompressed:], h.UncompressedSize)
	binary.LittleEndian.PutUint64(buf[offCompressed:], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[offChecksum:], h.Checksum)
	return append(b, buf[:]...), nil
}

// UnmarshalBinary decodes the first HeaderSize bytes of b without
// validating field values.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return &FormatError{
			Field:  "header",
			Reason: fmt.Sprintf("need %d bytes, have %d", HeaderSize, len(b)),
		}
	}
	copy(h.Magic[:], b[offMagic:offMagic+4])
	h.Version = binary.LittleEndian.Uint16(b[offVersion:])
	h.RecordCount = binary.LittleEndian.Uint32(b[offRecordCount:])
	h.Codec = marketdata.Codec(b[offCodec])
	h.UncompressedSize = binary.LittleEndian.Uint64(b[offUncompressed:])
	h.CompressedSize = binary.LittleEndian.Uint64(b[offCompressed:])
	h.Checksum = binary.LittleEndian.Uint32(b[offChecksum:])
	return nil
}

// validate checks the fields that can be checked without the payload.
// Magic and version come first so a foreign file is rejected on identity
// before anything else is reported.
func (h Header) validate() error {
	if h.Magic != Magic {
		return &FormatError{Field: "magic", Reason: fmt.Sprintf("got %q, want %q", h.Magic[:], Magic[:])}
	}
	if h.Version != Version {
		return &FormatError{Field: "version", Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}
	if !h.Codec.Known() {
		return &FormatError{Field: "codec", Reason: fmt.Sprintf("unknown codec id %d", uint8(h.Codec))}
	}
	if h.Codec == marketdata.CodecNone && h.CompressedSize != h.UncompressedSize {
		return &FormatError{
			Field:  "size",
			Reason: fmt.Sprintf("raw payload declares %d compressed and %d uncompressed bytes", h.CompressedSize, h.UncompressedSize),
		}
	}
	if limit := h.Codec.MaxUncompressed(h.CompressedSize); h.UncompressedSize > limit {
		return &FormatError{
			Field:  "uncompressed_size",
			Reason: fmt.Sprintf("%d bytes cannot come from %d %s bytes (limit %d)", h.UncompressedSize, h.CompressedSize, h.Codec, limit),
		}
	}
	// Every record is at least one Depth message.
	if uint64(h.RecordCount)*marketdata.DepthSize > h.UncompressedSize {
		return &FormatError{
			Field:  "record_count",
			Reason: fmt.Sprintf("%d records need at least %d bytes, header declares %d", h.RecordCount, uint64(h.RecordCount)*marketdata.DepthSize, h.UncompressedSize),
		}
	}
	return nil
}
