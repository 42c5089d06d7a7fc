// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package equivalence checks that two decode backends produce the same
// records for the same input.
package equivalence

import (
	"fmt"
	"math"
	"strconv"

	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

// Default tolerances for price and quantity comparisons.
const (
	DefaultAbsTolerance = 1e-9
	DefaultRelTolerance = 1e-9
)

// Tolerance bounds the allowed difference between two float fields.
//
// Two values a and b are equal when |a-b| <= Abs + Rel*max(|a|, |b|).
type Tolerance struct {
	Abs float64 `yaml:"abs" json:"abs" validate:"gte=0"`
	Rel float64 `yaml:"rel" json:"rel" validate:"gte=0"`
}

// DefaultTolerance returns the default tolerance.
func DefaultTolerance() Tolerance {
	return Tolerance{Abs: DefaultAbsTolerance, Rel: DefaultRelTolerance}
}

// Equal reports whether a and b are within the tolerance. NaN equals NaN
// and infinities must match exactly.
func (t Tolerance) Equal(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= t.Abs+t.Rel*max(math.Abs(a), math.Abs(b))
}

// Field names a compared record field.
type Field string

const (
	FieldCount     Field = "count"
	FieldTimestamp Field = "timestamp"
	FieldSymbolID  Field = "symbol_id"
	FieldKind      Field = "kind"
	FieldSide      Field = "side"
	FieldFlags     Field = "flags"
	FieldPrice     Field = "price"
	FieldQuantity  Field = "quantity"
)

// CountIndex is the Mismatch index used for a record count difference.
const CountIndex = -1

// Mismatch is one difference between the reference and candidate output.
type Mismatch struct {
	// Index is the record position, or CountIndex for a count mismatch.
	Index int `json:"index"`

	// Field is the differing field.
	Field Field `json:"field"`

	// Reference and Candidate are the formatted values.
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
}

// String returns a one-line description.
func (m Mismatch) String() string {
	if m.Index == CountIndex {
		return fmt.Sprintf("record count: reference %s, candidate %s", m.Reference, m.Candidate)
	}
	return fmt.Sprintf("record %d %s: reference %s, candidate %s", m.Index, m.Field, m.Reference, m.Candidate)
}

// Compare compares two decoded record sequences element by element.
//
// # Description
//
// A count difference is reported first, with Index CountIndex, and the
// common prefix is still compared field by field. Integer fields must
// match exactly; price and quantity use tol.
//
// # Outputs
//
//   - bool: True when the sequences are equivalent.
//   - []Mismatch: Every difference found, in record order.
func Compare(ref, cand []marketdata.Record, tol Tolerance) (bool, []Mismatch) {
	c := comparer{tol: tol}
	c.run(ref, cand)
	return c.total == 0, c.mismatches
}

// comparer collects mismatches up to limit. A zero limit keeps all.
type comparer struct {
	tol        Tolerance
	limit      int
	total      int
	mismatches []Mismatch
}

func (c *comparer) add(m Mismatch) {
	c.total++
	if c.limit > 0 && len(c.mismatches) >= c.limit {
		return
	}
	c.mismatches = append(c.mismatches, m)
}

func (c *comparer) run(ref, cand []marketdata.Record) {
	if len(ref) != len(cand) {
		c.add(Mismatch{
			Index:     CountIndex,
			Field:     FieldCount,
			Reference: strconv.Itoa(len(ref)),
			Candidate: strconv.Itoa(len(cand)),
		})
	}
	for i := range min(len(ref), len(cand)) {
		c.record(i, ref[i], cand[i])
	}
}

func (c *comparer) record(i int, a, b marketdata.Record) {
	if a.Timestamp != b.Timestamp {
		c.add(Mismatch{i, FieldTimestamp, strconv.FormatInt(a.Timestamp, 10), strconv.FormatInt(b.Timestamp, 10)})
	}
	if a.SymbolID != b.SymbolID {
		c.add(Mismatch{i, FieldSymbolID, strconv.FormatUint(uint64(a.SymbolID), 10), strconv.FormatUint(uint64(b.SymbolID), 10)})
	}
	if a.Kind != b.Kind {
		c.add(Mismatch{i, FieldKind, a.Kind.String(), b.Kind.String()})
	}
	if a.Side != b.Side {
		c.add(Mismatch{i, FieldSide, a.Side.String(), b.Side.String()})
	}
	if a.Flags != b.Flags {
		c.add(Mismatch{i, FieldFlags, fmt.Sprintf("%#02x", uint8(a.Flags)), fmt.Sprintf("%#02x", uint8(b.Flags))})
	}
	if !c.tol.Equal(a.Price, b.Price) {
		c.add(Mismatch{i, FieldPrice, formatFloat(a.Price), formatFloat(b.Price)})
	}
	if !c.tol.Equal(a.Quantity, b.Quantity) {
		c.add(Mismatch{i, FieldQuantity, formatFloat(a.Quantity), formatFloat(b.Quantity)})
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
