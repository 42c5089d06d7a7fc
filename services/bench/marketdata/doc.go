// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package marketdata defines the FastStorage market-data wire model.
//
// # Payload Messages
//
// The uncompressed payload of a container is a sequence of packed,
// little-endian messages. Every message starts with a 12 byte header:
//
//	[Kind int16][Size uint16][Time int64]
//
// Size is the length of the whole message including the header, so
// unknown or uninteresting kinds can be skipped without understanding them.
//
//	Depth     (29 bytes): header, Price int64, Volume int64, Flags uint8
//	Tick      (37 bytes): header, ID int64, Price int64, Volume int64, Side uint8
//	Symbol    (16 bytes): header, SymbolID uint32
//	Candle    (size-driven, skipped)
//	CandleEnd (size-driven, skipped)
//
// Price and Volume are fixed point with eight decimal places.
//
// # Decoded Records
//
// Decoding turns Depth and Tick messages into fixed 32 byte records:
//
//	[Timestamp int64][SymbolID uint32][Kind u8][Side u8][Flags u8][pad u8]
//	[Price float64][Quantity float64]
//
// This is the layout a decode backend writes into the caller's output
// buffer. Record and the helpers in record.go convert between the two.
//
// # Codecs
//
// Payloads are stored raw, as LZ4 blocks, LZ4 frames, or zstd frames.
// Decompressor reuses its scratch state across calls so the steady-state
// decode path does not allocate.
package marketdata
