// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package equivalence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// DefaultMaxMismatches caps the mismatches kept in a Result.
const DefaultMaxMismatches = 100

// ErrMismatch is matched by MismatchError.
var ErrMismatch = errors.New("decoded outputs differ")

// Options configures Validate.
type Options struct {
	// Tolerance for price and quantity. The zero value means exact.
	Tolerance Tolerance

	// MaxMismatches caps Result.Mismatches. Zero uses DefaultMaxMismatches.
	MaxMismatches int

	// Logger receives the outcome. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns options with default tolerance and cap.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance(), MaxMismatches: DefaultMaxMismatches}
}

// Result is the outcome of one equivalence check.
type Result struct {
	Reference        native.Kind `json:"reference"`
	Candidate        native.Kind `json:"candidate"`
	Equivalent       bool        `json:"equivalent"`
	ReferenceRecords int         `json:"reference_records"`
	CandidateRecords int         `json:"candidate_records"`
	Tolerance        Tolerance   `json:"tolerance"`

	// Mismatches holds the first MaxMismatches differences.
	Mismatches []Mismatch `json:"mismatches,omitempty"`

	// TotalMismatches counts every difference, kept or not.
	TotalMismatches int `json:"total_mismatches"`

	// Truncated is set when Mismatches was capped.
	Truncated bool `json:"truncated"`

	// Summary replays the reference output. Nil when decoding failed.
	Summary *marketdata.ReplaySummary `json:"summary,omitempty"`
}

// MismatchError reports a failed equivalence check.
type MismatchError struct {
	Result *Result
}

// Error returns a formatted error message.
func (e *MismatchError) Error() string {
	r := e.Result
	msg := fmt.Sprintf("%s and %s outputs differ: %d mismatches", r.Reference, r.Candidate, r.TotalMismatches)
	if len(r.Mismatches) > 0 {
		msg += " (first: " + r.Mismatches[0].String() + ")"
	}
	return msg
}

// Unwrap returns ErrMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}

// Check compares two record sequences and builds a Result. It does not
// fill Reference, Candidate or Summary.
func Check(ref, cand []marketdata.Record, opts Options) *Result {
	limit := opts.MaxMismatches
	if limit <= 0 {
		limit = DefaultMaxMismatches
	}
	c := comparer{tol: opts.Tolerance, limit: limit}
	c.run(ref, cand)
	return &Result{
		Equivalent:       c.total == 0,
		ReferenceRecords: len(ref),
		CandidateRecords: len(cand),
		Tolerance:        opts.Tolerance,
		Mismatches:       c.mismatches,
		TotalMismatches:  c.total,
		Truncated:        c.total > len(c.mismatches),
	}
}

// Validate decodes f once with each backend and compares the outputs.
//
// # Description
//
// The decodes run outside any timed region on fresh sessions. A decode
// failure is returned as is. Differences produce a *MismatchError
// alongside the Result.
//
// # Inputs
//
//   - ctx: Parent context for the bench.compare span.
//   - f: Parsed container.
//   - ref: Reference backend.
//   - cand: Candidate backend.
//   - opts: Tolerance and mismatch cap.
//
// # Outputs
//
//   - *Result: Nil only when a decode failed.
//   - error: Decode error, or *MismatchError when outputs differ.
func Validate(ctx context.Context, f *container.File, ref, cand *native.Backend, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	_, span := otel.Tracer("github.com/AleutianAI/FastStorageBench/services/bench/equivalence").Start(ctx, "bench.compare")
	defer span.End()
	span.SetAttributes(
		attribute.String("bench.reference", ref.Kind().String()),
		attribute.String("bench.candidate", cand.Kind().String()),
		attribute.String("bench.file", f.Name()),
	)

	refRecords, err := ref.Decode(f, ref.NewSession(f, 0))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reference decode failed")
		return nil, fmt.Errorf("reference %s decode: %w", ref.Kind(), err)
	}
	candRecords, err := cand.Decode(f, cand.NewSession(f, 0))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate decode failed")
		return nil, fmt.Errorf("candidate %s decode: %w", cand.Kind(), err)
	}

	res := Check(refRecords, candRecords, opts)
	res.Reference = ref.Kind()
	res.Candidate = cand.Kind()
	summary := marketdata.Replay(refRecords)
	res.Summary = &summary

	span.SetAttributes(
		attribute.Bool("bench.equivalent", res.Equivalent),
		attribute.Int("bench.mismatches", res.TotalMismatches),
	)
	if !res.Equivalent {
		err := &MismatchError{Result: res}
		span.SetStatus(codes.Error, "outputs differ")
		logger.Warn("equivalence check failed",
			"reference", res.Reference.String(),
			"candidate", res.Candidate.String(),
			"mismatches", res.TotalMismatches,
			"truncated", res.Truncated,
		)
		return res, err
	}
	logger.Info("outputs equivalent",
		"reference", res.Reference.String(),
		"candidate", res.Candidate.String(),
		"records", res.ReferenceRecords,
	)
	return res, nil
}
