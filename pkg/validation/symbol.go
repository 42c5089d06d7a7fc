// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided names before they reach file
// names, InfluxDB line protocol or report output.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolPattern matches instrument symbols.
// Allows: uppercase letters, digits, dots (ES.H25), hyphens (BTC-USD),
// slashes (EUR/USD) and underscores. Max length: 16 characters.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./_\-]{0,15}$`)

// identifierPattern matches InfluxDB measurement names, orgs and buckets.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]{0,63}$`)

// ValidateSymbol validates an instrument symbol.
//
// Valid symbols:
//   - 1-16 characters
//   - Uppercase letters A-Z and digits 0-9
//   - Dots, hyphens, slashes and underscores after the first character
//
// Example:
//
//	if err := validation.ValidateSymbol(sym); err != nil {
//	    return fmt.Errorf("invalid symbol: %w", err)
//	}
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q (must be 1-16 uppercase alphanumeric chars, dots, slashes, underscores or hyphens)", symbol)
	}
	return nil
}

// SanitizeSymbol normalizes and validates a symbol.
// Returns the uppercase symbol if valid.
func SanitizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if err := ValidateSymbol(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizeSymbols normalizes a symbol list and rejects duplicates.
// Returns an error listing every invalid symbol if any fail.
func SanitizeSymbols(symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	var invalid, dup []string
	for _, s := range symbols {
		clean, err := SanitizeSymbol(s)
		if err != nil {
			invalid = append(invalid, s)
			continue
		}
		if seen[clean] {
			dup = append(dup, clean)
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid symbols: %q", invalid)
	}
	if len(dup) > 0 {
		return nil, fmt.Errorf("duplicate symbols: %q", dup)
	}
	return out, nil
}

// ValidateIdentifier validates an InfluxDB measurement, org or bucket name.
// The name is interpolated into line protocol and must not need escaping.
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid %s: %q (must start with a letter or underscore, up to 64 letters, digits, dots, underscores or hyphens)", kind, name)
	}
	return nil
}
