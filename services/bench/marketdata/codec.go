// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package marketdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression applied to a container payload.
type Codec uint8

const (
	CodecNone     Codec = 0
	CodecLZ4Block Codec = 1
	CodecLZ4Frame Codec = 2
	CodecZstd     Codec = 3
)

// Known reports whether c is a codec this package can decompress.
func (c Codec) Known() bool {
	return c <= CodecZstd
}

// String returns the string representation.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4Block:
		return "lz4-block"
	case CodecLZ4Frame:
		return "lz4-frame"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec converts a codec name into a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "raw":
		return CodecNone, nil
	case "lz4-block", "lz4block", "lz4":
		return CodecLZ4Block, nil
	case "lz4-frame", "lz4frame":
		return CodecLZ4Frame, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCodec, s)
	}
}

// MaxPayloadSize caps the uncompressed payload size a container may
// declare. Decompression buffers are sized from the header, so an
// unchecked size is an allocation of attacker-chosen length.
const MaxPayloadSize = 1 << 30

// lz4MaxRatio bounds LZ4 expansion: a match length byte encodes at most 255
// output bytes.
const lz4MaxRatio = 255

// MaxUncompressed returns the largest payload c can expand n compressed
// bytes into, capped at MaxPayloadSize. Zstd RLE blocks have no useful
// ratio bound, so zstd gets only the cap.
func (c Codec) MaxUncompressed(n uint64) uint64 {
	switch c {
	case CodecNone:
		return min(n, MaxPayloadSize)
	case CodecLZ4Block, CodecLZ4Frame:
		if n > MaxPayloadSize/lz4MaxRatio {
			return MaxPayloadSize
		}
		return n * lz4MaxRatio
	default:
		return MaxPayloadSize
	}
}

// Decompressor turns compressed payloads back into message streams.
//
// A Decompressor keeps its scratch buffer and codec state between calls.
// It is not safe for concurrent use; give each goroutine its own.
type Decompressor struct {
	scratch []byte
	src     bytes.Reader
	frame   *lz4.Reader
	zstd    *zstd.Decoder
}

// NewDecompressor creates a Decompressor with an empty scratch buffer.
func NewDecompressor() *Decompressor {
	return &Decompressor{}
}

// Decompress returns the uncompressed payload for src.
//
// The returned slice aliases either src (CodecNone) or the Decompressor's
// scratch buffer and is only valid until the next call.
func (d *Decompressor) Decompress(codec Codec, src []byte, uncompressed uint64) ([]byte, error) {
	if uncompressed > MaxPayloadSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds %d", ErrCorrupted, uncompressed, uint64(MaxPayloadSize))
	}
	size := int(uncompressed)

	switch codec {
	case CodecNone:
		if len(src) != size {
			return nil, sizeError(len(src), size)
		}
		return src, nil
	case CodecLZ4Block:
		if size == 0 && len(src) == 0 {
			return src[:0], nil
		}
		dst := d.grow(size)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 block: %v", ErrCorrupted, err)
		}
		if n != size {
			return nil, sizeError(n, size)
		}
		return dst[:n], nil
	case CodecLZ4Frame:
		return d.decompressFrame(src, size)
	case CodecZstd:
		return d.decompressZstd(src, size)
	default:
		return nil, ErrUnsupportedCodec
	}
}

func (d *Decompressor) decompressFrame(src []byte, size int) ([]byte, error) {
	d.src.Reset(src)
	if d.frame == nil {
		d.frame = lz4.NewReader(&d.src)
	} else {
		d.frame.Reset(&d.src)
	}

	dst := d.grow(size)
	if _, err := io.ReadFull(d.frame, dst); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: lz4 frame: %v", ErrCorrupted, err)
	}

	var extra [1]byte
	if n, _ := d.frame.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("%w: lz4 frame longer than declared size", ErrCorrupted)
	}
	return dst, nil
}

func (d *Decompressor) decompressZstd(src []byte, size int) ([]byte, error) {
	if d.zstd == nil {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		d.zstd = dec
	}

	dst := d.grow(size)
	out, err := d.zstd.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupted, err)
	}
	if len(out) != size {
		return nil, sizeError(len(out), size)
	}
	return out, nil
}

// Close releases codec state held by the Decompressor.
func (d *Decompressor) Close() {
	if d.zstd != nil {
		d.zstd.Close()
		d.zstd = nil
	}
	d.frame = nil
	d.scratch = nil
}

func (d *Decompressor) grow(size int) []byte {
	if cap(d.scratch) < size {
		d.scratch = make([]byte, size)
	}
	return d.scratch[:size]
}

func sizeError(got, want int) error {
	if got < want {
		return fmt.Errorf("%w: payload has %d bytes, header declares %d", ErrUnexpectedEOF, got, want)
	}
	return fmt.Errorf("%w: payload has %d bytes, header declares %d", ErrCorrupted, got, want)
}

// Compress encodes an uncompressed payload with codec.
func Compress(codec Codec, src []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return append([]byte(nil), src...), nil
	case CodecLZ4Block:
		if len(src) == 0 {
			return []byte{}, nil
		}
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		var c lz4.Compressor
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 block compress: %w", err)
		}
		if n == 0 {
			// Incompressible input is stored as a single literal run.
			return literalBlock(src), nil
		}
		return dst[:n], nil
	case CodecLZ4Frame:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("lz4 frame compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 frame close: %w", err)
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithZeroFrames(true))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
}

// literalBlock encodes src as an LZ4 block holding one literal-only sequence.
func literalBlock(src []byte) []byte {
	n := len(src)
	out := make([]byte, 0, n+n/255+2)
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rem := n - 15
		for rem >= 255 {
			out = append(out, 255)
			rem -= 255
		}
		out = append(out, byte(rem))
	}
	return append(out, src...)
}
