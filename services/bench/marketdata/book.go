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

// Trade is a replayed trade.
type Trade struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
}

// Quote is a best bid/ask pair. Zero-valued sides are reported as absent.
type Quote struct {
	BestBid float64 `json:"best_bid"`
	BestAsk float64 `json:"best_ask"`
	HasBid  bool    `json:"has_bid"`
	HasAsk  bool    `json:"has_ask"`
}

// Book replays decoded records into a price-level order book.
//
// Depth records with the Clear flag empty both sides before they are
// applied. A zero quantity removes the level. Depth records without the Buy
// flag update the ask side.
type Book struct {
	bids map[float64]float64
	asks map[float64]float64

	records   int
	trades    int
	lastTrade Trade
	hasTrade  bool

	building  bool
	firstBook *Quote
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		bids:     make(map[float64]float64),
		asks:     make(map[float64]float64),
		building: true,
	}
}

// Apply updates the book with one record.
func (b *Book) Apply(r Record) {
	b.records++
	switch r.Kind {
	case KindDepth:
		if r.Flags.Has(FlagClear) {
			clear(b.bids)
			clear(b.asks)
			b.building = true
		}
		side := b.asks
		if r.Flags.Has(FlagBuy) {
			side = b.bids
		}
		if r.Quantity > 0 {
			side[r.Price] = r.Quantity
		} else {
			delete(side, r.Price)
		}
	case KindTick:
		b.trades++
		b.lastTrade = Trade{Timestamp: r.Timestamp, Price: r.Price, Quantity: r.Quantity}
		b.hasTrade = true
		if b.building {
			b.building = false
			if b.firstBook == nil && len(b.bids) > 0 && len(b.asks) > 0 {
				q := b.Quote()
				b.firstBook = &q
			}
		}
	}
}

// ApplyAll replays records in order.
func (b *Book) ApplyAll(records []Record) {
	for _, r := range records {
		b.Apply(r)
	}
}

// Quote returns the current best bid and ask.
func (b *Book) Quote() Quote {
	var q Quote
	for px := range b.bids {
		if !q.HasBid || px > q.BestBid {
			q.BestBid, q.HasBid = px, true
		}
	}
	for px := range b.asks {
		if !q.HasAsk || px < q.BestAsk {
			q.BestAsk, q.HasAsk = px, true
		}
	}
	return q
}

// ReplaySummary is the end state of a replay.
type ReplaySummary struct {
	Records   int    `json:"records"`
	BidLevels int    `json:"bid_levels"`
	AskLevels int    `json:"ask_levels"`
	Quote     Quote  `json:"quote"`
	Trades    int    `json:"trades"`
	LastTrade *Trade `json:"last_trade,omitempty"`
	FirstBook *Quote `json:"first_complete_book,omitempty"`
}

// Summary returns the replay summary for the records applied so far.
func (b *Book) Summary() ReplaySummary {
	s := ReplaySummary{
		Records:   b.records,
		BidLevels: len(b.bids),
		AskLevels: len(b.asks),
		Quote:     b.Quote(),
		Trades:    b.trades,
		FirstBook: b.firstBook,
	}
	if b.hasTrade {
		t := b.lastTrade
		s.LastTrade = &t
	}
	return s
}

// Replay builds a book from records and returns its summary.
func Replay(records []Record) ReplaySummary {
	b := NewBook()
	b.ApplyAll(records)
	return b.Summary()
}
