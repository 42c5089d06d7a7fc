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
	"encoding/binary"
	"errors"
)

var (
	// ErrCorrupted indicates a structurally invalid payload.
	ErrCorrupted = errors.New("corrupted data block")

	// ErrUnexpectedEOF indicates a message that runs past the payload end.
	ErrUnexpectedEOF = errors.New("unexpected end of data")

	// ErrBufferTooSmall indicates the output buffer cannot hold every record.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrUnsupportedCodec indicates an unknown compression codec id.
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Rounding selects how fixed point values are converted to float.
//
// Implementations are free to pick either; the results can differ in the
// last bit, which is why equivalence uses a tolerance.
type Rounding int

const (
	// RoundMultiply computes raw * 1e-8.
	RoundMultiply Rounding = iota
	// RoundDivide computes raw / 1e8.
	RoundDivide
)

func (r Rounding) scale(raw int64) float64 {
	if r == RoundDivide {
		return float64(raw) / 1e8
	}
	return float64(raw) * PriceScale
}

// PayloadStats summarizes a walk over an uncompressed payload.
type PayloadStats struct {
	Messages int
	Records  int
	Bytes    int
}

// CountRecords walks payload and returns how many records it decodes to,
// validating message framing on the way.
func CountRecords(payload []byte) (PayloadStats, error) {
	var st PayloadStats
	for off := 0; off < len(payload); {
		h, err := ReadMessageHeader(payload[off:])
		if err != nil {
			return st, err
		}
		if err := checkFrame(h, len(payload)-off); err != nil {
			return st, err
		}
		if h.Kind == KindDepth || h.Kind == KindTick {
			st.Records++
		}
		st.Messages++
		off += int(h.Size)
		st.Bytes = off
	}
	return st, nil
}

// DecodePayload decodes payload into dst, which holds capRecords records of
// RecordSize bytes each. It returns the number of records written.
//
// DecodePayload does not allocate. When the payload holds more records than
// capRecords it stops and returns ErrBufferTooSmall.
func DecodePayload(payload, dst []byte, capRecords int, rounding Rounding) (int, error) {
	if capRecords*RecordSize > len(dst) {
		capRecords = len(dst) / RecordSize
	}
	var (
		n      int
		symbol uint32
	)
	for off := 0; off < len(payload); {
		msg := payload[off:]
		h, err := ReadMessageHeader(msg)
		if err != nil {
			return n, err
		}
		if err := checkFrame(h, len(msg)); err != nil {
			return n, err
		}

		switch h.Kind {
		case KindDepth, KindTick:
			if n >= capRecords {
				return n, ErrBufferTooSmall
			}
			PutRecord(dst[n*RecordSize:], decodeMessage(msg, h, symbol, rounding))
			n++
		case KindSymbol:
			symbol = binary.LittleEndian.Uint32(msg[offSymbolID:])
		}
		off += int(h.Size)
	}
	return n, nil
}

func decodeMessage(msg []byte, h MessageHeader, symbol uint32, rounding Rounding) Record {
	r := Record{Timestamp: h.Time, SymbolID: symbol, Kind: h.Kind}
	if h.Kind == KindDepth {
		flags := Flag(msg[offDepthFlags])
		r.Flags = flags
		r.Price = rounding.scale(int64(binary.LittleEndian.Uint64(msg[offDepthPrice:])))
		r.Quantity = rounding.scale(int64(binary.LittleEndian.Uint64(msg[offDepthVolume:])))
		switch {
		case flags.Has(FlagBuy):
			r.Side = SideBuy
		case flags.Has(FlagSell):
			r.Side = SideSell
		}
		return r
	}
	r.Price = rounding.scale(int64(binary.LittleEndian.Uint64(msg[offTickPrice:])))
	r.Quantity = rounding.scale(int64(binary.LittleEndian.Uint64(msg[offTickVolume:])))
	r.Side = Side(msg[offTickSide])
	return r
}

// checkFrame validates a message header against the bytes that remain.
func checkFrame(h MessageHeader, remaining int) error {
	if h.Size < MessageHeaderSize {
		return ErrCorrupted
	}
	switch h.Kind {
	case KindDepth:
		if h.Size != DepthSize {
			return ErrCorrupted
		}
	case KindTick:
		if h.Size != TickSize {
			return ErrCorrupted
		}
	case KindSymbol:
		if h.Size != SymbolSize {
			return ErrCorrupted
		}
	case KindCandle, KindCandleEnd:
	default:
		return ErrCorrupted
	}
	if int(h.Size) > remaining {
		return ErrUnexpectedEOF
	}
	return nil
}
