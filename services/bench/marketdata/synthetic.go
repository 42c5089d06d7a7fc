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
	"errors"
	"math/rand/v2"
)

// GenerateOptions controls synthetic payload generation.
type GenerateOptions struct {
	// Seed makes the output reproducible.
	Seed uint64

	// Records is the number of Depth and Tick messages to emit.
	Records int

	// Symbols is the number of distinct symbol ids, numbered from 1.
	Symbols int

	// CandleEvery inserts a Candle/CandleEnd pair after every n records.
	// Zero disables candles.
	CandleEvery int

	// StartTime is the timestamp of the first message in nanoseconds.
	StartTime int64
}

// DefaultGenerateOptions returns options for a small mixed stream.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Seed:        1,
		Records:     10_000,
		Symbols:     4,
		CandleEvery: 1_000,
		StartTime:   1_700_000_000_000_000_000,
	}
}

const fixedOne = int64(100_000_000)

// Generate produces a deterministic payload and the number of records it
// decodes to.
func Generate(opts GenerateOptions) ([]byte, uint32, error) {
	if opts.Records < 0 {
		return nil, 0, errors.New("records must not be negative")
	}
	if opts.Symbols <= 0 {
		opts.Symbols = 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	seen := make([]bool, opts.Symbols)
	payload := make([]byte, 0, opts.Records*TickSize)
	ts := opts.StartTime
	current := -1
	var tradeID int64

	for n := 0; n < opts.Records; n++ {
		ts += int64(1 + rng.IntN(1_000_000))

		sym := rng.IntN(opts.Symbols)
		if sym != current {
			payload = AppendSymbol(payload, ts, uint32(sym+1))
			current = sym
		}
		mid := (100 + int64(sym)*10) * fixedOne
		offset := int64(1+rng.IntN(50)) * (fixedOne / 100)

		switch {
		case !seen[sym]:
			seen[sym] = true
			payload = AppendDepth(payload, Depth{
				Time:   ts,
				Price:  mid - offset,
				Volume: int64(1+rng.IntN(1000)) * (fixedOne / 100),
				Flags:  FlagBuy | FlagClear,
			})
		case rng.IntN(10) < 7:
			flags := FlagSell
			price := mid + offset
			if rng.IntN(2) == 0 {
				flags, price = FlagBuy, mid-offset
			}
			if rng.IntN(8) == 0 {
				flags |= FlagEndOfTransaction
			}
			volume := int64(rng.IntN(1000)) * (fixedOne / 100)
			if rng.IntN(10) == 0 {
				volume = 0
			}
			payload = AppendDepth(payload, Depth{Time: ts, Price: price, Volume: volume, Flags: flags})
		default:
			tradeID++
			side := SideBuy
			if rng.IntN(2) == 0 {
				side = SideSell
			}
			payload = AppendTick(payload, Tick{
				Time:   ts,
				ID:     tradeID,
				Price:  mid + int64(rng.IntN(101)-50)*(fixedOne/100),
				Volume: int64(1+rng.IntN(500)) * (fixedOne / 100),
				Side:   side,
			})
		}

		if opts.CandleEvery > 0 && (n+1)%opts.CandleEvery == 0 {
			var body [32]byte
			for i := range body {
				body[i] = byte(rng.Uint32())
			}
			payload = AppendOpaque(payload, KindCandle, ts, body[:])
			payload = AppendOpaque(payload, KindCandleEnd, ts, nil)
		}
	}
	return payload, uint32(opts.Records), nil
}
