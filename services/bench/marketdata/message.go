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
)

// Kind identifies a payload message type.
type Kind int16

const (
	KindDepth     Kind = 0
	KindTick      Kind = 1
	KindSymbol    Kind = 2
	KindCandle    Kind = 3
	KindCandleEnd Kind = 4
)

// String returns the string representation.
func (k Kind) String() string {
	switch k {
	case KindDepth:
		return "depth"
	case KindTick:
		return "tick"
	case KindSymbol:
		return "symbol"
	case KindCandle:
		return "candle"
	case KindCandleEnd:
		return "candle_end"
	default:
		return fmt.Sprintf("kind(%d)", int16(k))
	}
}

// Flag is the bit set carried by Depth messages.
type Flag uint8

const (
	FlagBuy              Flag = 1
	FlagSell             Flag = 2
	FlagClear            Flag = 4
	FlagEndOfTransaction Flag = 8
)

// Has reports whether all bits of f are set.
func (fl Flag) Has(f Flag) bool {
	return fl&f == f
}

// Side is the aggressor side of a trade, or the book side of a depth update.
type Side uint8

const (
	SideUnknown Side = 0
	SideBuy     Side = 1
	SideSell    Side = 2
)

// String returns the string representation.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Message sizes and field offsets. Offsets are relative to the start of the
// message, header included.
const (
	MessageHeaderSize = 12

	DepthSize  = 29
	TickSize   = 37
	SymbolSize = 16

	offKind = 0
	offSize = 2
	offTime = 4

	offDepthPrice  = 12
	offDepthVolume = 20
	offDepthFlags  = 28

	offTickID     = 12
	offTickPrice  = 20
	offTickVolume = 28
	offTickSide   = 36

	offSymbolID = 12
)

// PriceScale converts fixed point wire values to float.
const PriceScale = 1e-8

// MessageHeader is the common prefix of every payload message.
type MessageHeader struct {
	Kind Kind
	Size uint16
	Time int64
}

// ReadMessageHeader reads the header at the start of b.
func ReadMessageHeader(b []byte) (MessageHeader, error) {
	if len(b) < MessageHeaderSize {
		return MessageHeader{}, ErrUnexpectedEOF
	}
	return MessageHeader{
		Kind: Kind(int16(binary.LittleEndian.Uint16(b[offKind:]))),
		Size: binary.LittleEndian.Uint16(b[offSize:]),
		Time: int64(binary.LittleEndian.Uint64(b[offTime:])),
	}, nil
}

func putHeader(b []byte, kind Kind, size uint16, ts int64) {
	binary.LittleEndian.PutUint16(b[offKind:], uint16(kind))
	binary.LittleEndian.PutUint16(b[offSize:], size)
	binary.LittleEndian.PutUint64(b[offTime:], uint64(ts))
}

// Depth is a single order book level update.
type Depth struct {
	Time   int64
	Price  int64
	Volume int64
	Flags  Flag
}

// Tick is a single trade.
type Tick struct {
	Time   int64
	ID     int64
	Price  int64
	Volume int64
	Side   Side
}

// AppendDepth appends the wire encoding of d to dst.
func AppendDepth(dst []byte, d Depth) []byte {
	var b [DepthSize]byte
	putHeader(b[:], KindDepth, DepthSize, d.Time)
	binary.LittleEndian.PutUint64(b[offDepthPrice:], uint64(d.Price))
	binary.LittleEndian.PutUint64(b[offDepthVolume:], uint64(d.Volume))
	b[offDepthFlags] = byte(d.Flags)
	return append(dst, b[:]...)
}

// AppendTick appends the wire encoding of t to dst.
func AppendTick(dst []byte, t Tick) []byte {
	var b [TickSize]byte
	putHeader(b[:], KindTick, TickSize, t.Time)
	binary.LittleEndian.PutUint64(b[offTickID:], uint64(t.ID))
	binary.LittleEndian.PutUint64(b[offTickPrice:], uint64(t.Price))
	binary.LittleEndian.PutUint64(b[offTickVolume:], uint64(t.Volume))
	b[offTickSide] = byte(t.Side)
	return append(dst, b[:]...)
}

// AppendSymbol appends a symbol selection message to dst.
func AppendSymbol(dst []byte, ts int64, symbolID uint32) []byte {
	var b [SymbolSize]byte
	putHeader(b[:], KindSymbol, SymbolSize, ts)
	binary.LittleEndian.PutUint32(b[offSymbolID:], symbolID)
	return append(dst, b[:]...)
}

// AppendOpaque appends a message of the given kind whose body the decoder
// skips. body may be empty.
func AppendOpaque(dst []byte, kind Kind, ts int64, body []byte) []byte {
	size := MessageHeaderSize + len(body)
	var h [MessageHeaderSize]byte
	putHeader(h[:], kind, uint16(size), ts)
	dst = append(dst, h[:]...)
	return append(dst, body...)
}
