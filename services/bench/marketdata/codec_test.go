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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCodecs = []Codec{CodecNone, CodecLZ4Block, CodecLZ4Frame, CodecZstd}

func TestCompressDecompress(t *testing.T) {
	payload, _, err := Generate(GenerateOptions{Seed: 11, Records: 2_000, Symbols: 5, CandleEvery: 100})
	require.NoError(t, err)

	d := NewDecompressor()
	defer d.Close()

	for _, codec := range allCodecs {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := Compress(codec, payload)
			require.NoError(t, err)

			// Twice, to exercise the reused state.
			for i := 0; i < 2; i++ {
				out, err := d.Decompress(codec, compressed, uint64(len(payload)))
				require.NoError(t, err)
				assert.Equal(t, payload, out)
			}
		})
	}
}

func TestCompress_SmallIncompressibleBlock(t *testing.T) {
	payload := AppendTick(nil, Tick{Time: 1, ID: 2, Price: 3, Volume: 4, Side: SideBuy})

	compressed, err := Compress(CodecLZ4Block, payload)
	require.NoError(t, err)

	out, err := NewDecompressor().Decompress(CodecLZ4Block, compressed, uint64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestLiteralBlock_LongRun(t *testing.T) {
	src := make([]byte, 600)
	for i := range src {
		src[i] = byte(i * 7)
	}
	out, err := NewDecompressor().Decompress(CodecLZ4Block, literalBlock(src), uint64(len(src)))
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestDecompress_EmptyPayload(t *testing.T) {
	d := NewDecompressor()
	for _, codec := range allCodecs {
		compressed, err := Compress(codec, nil)
		require.NoError(t, err, codec.String())

		out, err := d.Decompress(codec, compressed, 0)
		require.NoError(t, err, codec.String())
		assert.Empty(t, out, codec.String())
	}
}

func TestDecompress_SizeMismatch(t *testing.T) {
	payload := samplePayload()
	d := NewDecompressor()

	for _, codec := range allCodecs {
		compressed, err := Compress(codec, payload)
		require.NoError(t, err)

		_, err = d.Decompress(codec, compressed, uint64(len(payload)+10))
		assert.Error(t, err, "%s: declared size larger than payload", codec)
	}

	_, err := d.Decompress(CodecNone, payload, uint64(len(payload)+1))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
	_, err = d.Decompress(CodecNone, payload, uint64(len(payload)-1))
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestDecompress_Garbage(t *testing.T) {
	garbage := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x01, 0x02}
	d := NewDecompressor()

	for _, codec := range []Codec{CodecLZ4Frame, CodecZstd} {
		_, err := d.Decompress(codec, garbage, 64)
		assert.Error(t, err, codec.String())
	}
}

func TestDecompress_DeclaredSizeAboveCap(t *testing.T) {
	d := NewDecompressor()
	for _, codec := range allCodecs {
		_, err := d.Decompress(codec, []byte{0x10, 'a'}, 1<<40)
		assert.ErrorIs(t, err, ErrCorrupted, codec.String())
	}
	assert.Zero(t, cap(d.scratch), "nothing is allocated for a rejected size")
}

func TestDecompress_UnknownCodec(t *testing.T) {
	_, err := NewDecompressor().Decompress(Codec(9), nil, 0)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestParseCodec(t *testing.T) {
	for _, codec := range allCodecs {
		got, err := ParseCodec(codec.String())
		require.NoError(t, err)
		assert.Equal(t, codec, got)
	}
	_, err := ParseCodec("brotli")
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.False(t, Codec(4).Known())
}
