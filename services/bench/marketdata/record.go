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
	"fmt"
	"math"
)

// RecordSize is the encoded size of a decoded record.
const RecordSize = 32

const (
	offRecTimestamp = 0
	offRecSymbol    = 8
	offRecKind      = 12
	offRecSide      = 13
	offRecFlags     = 14
	offRecPrice     = 16
	offRecQuantity  = 24
)

// Record is one decoded market-data tuple.
//
// Records are produced by decode backends and only used for equivalence
// checks and the replay summary; they are never persisted.
type Record struct {
	Timestamp int64
	SymbolID  uint32
	Kind      Kind
	Side      Side
	Flags     Flag
	Price     float64
	Quantity  float64
}

// String returns a compact representation for diagnostics.
func (r Record) String() string {
	return fmt.Sprintf("%s sym=%d ts=%d side=%s px=%.8f qty=%.8f",
		r.Kind, r.SymbolID, r.Timestamp, r.Side, r.Price, r.Quantity)
}

// PutRecord writes r into b[0:RecordSize].
func PutRecord(b []byte, r Record) {
	_ = b[RecordSize-1]
	binary.LittleEndian.PutUint64(b[offRecTimestamp:], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(b[offRecSymbol:], r.SymbolID)
	b[offRecKind] = byte(r.Kind)
	b[offRecSide] = byte(r.Side)
	b[offRecFlags] = byte(r.Flags)
	b[offRecFlags+1] = 0
	binary.LittleEndian.PutUint64(b[offRecPrice:], math.Float64bits(r.Price))
	binary.LittleEndian.PutUint64(b[offRecQuantity:], math.Float64bits(r.Quantity))
}

// ReadRecord reads the record stored in b[0:RecordSize].
func ReadRecord(b []byte) Record {
	_ = b[RecordSize-1]
	return Record{
		Timestamp: int64(binary.LittleEndian.Uint64(b[offRecTimestamp:])),
		SymbolID:  binary.LittleEndian.Uint32(b[offRecSymbol:]),
		Kind:      Kind(b[offRecKind]),
		Side:      Side(b[offRecSide]),
		Flags:     Flag(b[offRecFlags]),
		Price:     math.Float64frombits(binary.LittleEndian.Uint64(b[offRecPrice:])),
		Quantity:  math.Float64frombits(binary.LittleEndian.Uint64(b[offRecQuantity:])),
	}
}

// ReadRecords decodes the first n records of buf.
func ReadRecords(buf []byte, n int) ([]Record, error) {
	if n < 0 || n*RecordSize > len(buf) {
		return nil, fmt.Errorf("record buffer holds %d bytes, need %d records: %w",
			len(buf), n, ErrBufferTooSmall)
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = ReadRecord(buf[i*RecordSize:])
	}
	return out, nil
}
