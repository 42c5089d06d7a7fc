// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report turns SampleSets into statistics and renders them as
// text, CSV or JSON.
package report

import (
	"math"
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// SignificanceLevel is the p-value below which a difference counts.
const SignificanceLevel = 0.05

// EffectSizeCategory buckets Cohen's d using the usual thresholds:
// negligible (<0.2), small (<0.5), medium (<0.8), large.
type EffectSizeCategory int

const (
	EffectNegligible EffectSizeCategory = iota
	EffectSmall
	EffectMedium
	EffectLarge
)

// String returns the string representation.
func (e EffectSizeCategory) String() string {
	switch e {
	case EffectNegligible:
		return "negligible"
	case EffectSmall:
		return "small"
	case EffectMedium:
		return "medium"
	case EffectLarge:
		return "large"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e EffectSizeCategory) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// CategorizeEffectSize returns the category of |d|.
func CategorizeEffectSize(d float64) EffectSizeCategory {
	switch d = math.Abs(d); {
	case d < 0.2:
		return EffectNegligible
	case d < 0.5:
		return EffectSmall
	case d < 0.8:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// Comparison relates a candidate backend to a reference backend.
type Comparison struct {
	Reference native.Kind `json:"reference"`
	Candidate native.Kind `json:"candidate"`

	// Speedup is reference mean over candidate mean. Above 1 means the
	// candidate is faster.
	Speedup float64 `json:"speedup"`

	// Faster names the faster backend when the difference is significant.
	Faster native.Kind `json:"faster,omitempty"`

	TStatistic     float64            `json:"t_statistic"`
	PValue         float64            `json:"p_value"`
	Significant    bool               `json:"significant"`
	EffectSize     float64            `json:"effect_size"`
	EffectCategory EffectSizeCategory `json:"effect_category"`
}

// Compare computes the speedup and significance of cand against ref.
//
// # Description
//
// Significance uses Welch's t-test on the raw samples and the effect size
// is Cohen's d with a pooled standard deviation. Both need at least two
// samples per side; otherwise the p-value is 1.
func Compare(ref, cand Stats) Comparison {
	c := Comparison{Reference: ref.Backend, Candidate: cand.Backend, PValue: 1}
	if cand.Mean > 0 {
		c.Speedup = float64(ref.Mean) / float64(cand.Mean)
	}
	c.TStatistic, c.PValue = welchTTest(ref.samples, cand.samples)
	c.Significant = c.PValue < SignificanceLevel
	c.EffectSize = cohensD(ref.samples, cand.samples)
	c.EffectCategory = CategorizeEffectSize(c.EffectSize)
	if c.Significant {
		if ref.Mean < cand.Mean {
			c.Faster = ref.Backend
		} else {
			c.Faster = cand.Backend
		}
	}
	return c
}

// FileInfo describes the benchmarked container.
type FileInfo struct {
	Path             string  `json:"path"`
	Codec            string  `json:"codec"`
	RecordCount      uint32  `json:"record_count"`
	CompressedSize   uint64  `json:"compressed_size"`
	UncompressedSize uint64  `json:"uncompressed_size"`
	Ratio            float64 `json:"compression_ratio"`
}

// NewFileInfo builds a FileInfo from a parsed container.
func NewFileInfo(f *container.File) FileInfo {
	h := f.Header
	info := FileInfo{
		Path:             f.Name(),
		Codec:            h.Codec.String(),
		RecordCount:      h.RecordCount,
		CompressedSize:   h.CompressedSize,
		UncompressedSize: h.UncompressedSize,
	}
	if h.CompressedSize > 0 {
		info.Ratio = float64(h.UncompressedSize) / float64(h.CompressedSize)
	}
	return info
}

// Report is everything a reporter renders for one invocation.
type Report struct {
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	File        FileInfo  `json:"file"`
	Iterations  int       `json:"iterations"`
	Warmup      int       `json:"warmup"`

	// Backends holds one entry per measured backend, candidate first.
	Backends []Stats `json:"backends"`

	// Comparison is set when a reference backend was measured.
	Comparison *Comparison `json:"comparison,omitempty"`

	// Equivalence is set when outputs were cross-checked.
	Equivalence *equivalence.Result `json:"equivalence,omitempty"`

	// Regressions lists findings against stored history.
	Regressions []Finding `json:"regressions,omitempty"`
}

// Finding is a regression or warning rendered alongside the results.
type Finding struct {
	Backend  native.Kind `json:"backend"`
	Metric   string      `json:"metric"`
	Severity string      `json:"severity"`
	Message  string      `json:"message"`
}

// Equivalent reports whether the outputs matched. It is true when no
// cross-check was run.
func (r *Report) Equivalent() bool {
	return r.Equivalence == nil || r.Equivalence.Equivalent
}
