// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		wantErr bool
	}{
		{"simple", "SPY", false},
		{"single char", "A", false},
		{"crypto pair", "BTC-USD", false},
		{"future", "ES.H25", false},
		{"fx", "EUR/USD", false},
		{"underscore", "XBT_PERP", false},
		{"max length", "ABCDEFGHIJKLMNOP", false},

		{"empty", "", true},
		{"lowercase", "spy", true},
		{"too long", "ABCDEFGHIJKLMNOPQ", true},
		{"line protocol injection", "SPY,backend=x", true},
		{"newline", "SPY\nQQQ", true},
		{"space", "SP Y", true},
		{"starts with dot", ".SPY", true},
		{"starts with hyphen", "-SPY", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeSymbol(t *testing.T) {
	got, err := SanitizeSymbol("  btc-usd ")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", got)

	_, err = SanitizeSymbol("bad!")
	assert.Error(t, err)
}

func TestSanitizeSymbols(t *testing.T) {
	got, err := SanitizeSymbols([]string{"spy", "QQQ", "es.h25"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "QQQ", "ES.H25"}, got)

	_, err = SanitizeSymbols([]string{"SPY", "bad!", "??"})
	assert.ErrorContains(t, err, `invalid symbols: ["bad!" "??"]`)

	_, err = SanitizeSymbols([]string{"SPY", "spy"})
	assert.ErrorContains(t, err, `duplicate symbols: ["SPY"]`)

	got, err = SanitizeSymbols(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("measurement", "decode_benchmark"))
	assert.NoError(t, ValidateIdentifier("bucket", "bench-2025.q1"))
	assert.ErrorContains(t, ValidateIdentifier("bucket", ""), "bucket cannot be empty")
	assert.Error(t, ValidateIdentifier("measurement", "decode benchmark"))
	assert.Error(t, ValidateIdentifier("measurement", "1st"))
	assert.Error(t, ValidateIdentifier("org", `a"b`))
}
