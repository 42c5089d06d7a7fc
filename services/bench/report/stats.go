// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"math"
	"slices"
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// Stats summarizes one backend's SampleSet.
//
// Description:
//
//	Latency figures cover successful calls only. Throughput is derived from
//	the mean latency of a single call, so it describes the decoder and not
//	the worker pool. Failures and skipped iterations are always reported,
//	even when there are no samples.
//
// Thread Safety: Safe for concurrent read access after creation.
type Stats struct {
	Backend     native.Kind `json:"backend"`
	Library     string      `json:"library"`
	Parallelism int         `json:"parallelism"`

	// Samples is the number of successful measured calls.
	Samples int `json:"samples"`

	// Failures is the number of failed measured calls.
	Failures int `json:"failures"`

	// FaultCounts breaks Failures down by kind.
	FaultCounts map[native.FaultKind]int `json:"fault_counts,omitempty"`

	// Skipped is the number of iterations never started.
	Skipped int `json:"skipped"`

	Min    time.Duration `json:"min_ns"`
	Max    time.Duration `json:"max_ns"`
	Mean   time.Duration `json:"mean_ns"`
	StdDev time.Duration `json:"stddev_ns"`
	P50    time.Duration `json:"p50_ns"`
	P90    time.Duration `json:"p90_ns"`
	P95    time.Duration `json:"p95_ns"`
	P99    time.Duration `json:"p99_ns"`

	// CILower and CIUpper bound the mean at 95% confidence.
	CILower time.Duration `json:"ci95_lower_ns"`
	CIUpper time.Duration `json:"ci95_upper_ns"`

	OpsPerSecond     float64 `json:"ops_per_second"`
	RecordsPerSecond float64 `json:"records_per_second"`
	BytesPerSecond   float64 `json:"bytes_per_second"`

	Records       int           `json:"records"`
	PayloadBytes  int           `json:"payload_bytes"`
	Wall          time.Duration `json:"wall_ns"`
	BufferRetries int           `json:"buffer_retries"`

	samples []time.Duration
}

// FailureRate is Failures over attempted calls.
func (s Stats) FailureRate() float64 {
	attempted := s.Samples + s.Failures
	if attempted == 0 {
		return 0
	}
	return float64(s.Failures) / float64(attempted)
}

// Aggregate computes Stats for a SampleSet.
//
// # Description
//
// Percentiles use linear interpolation over the sorted samples. All
// samples are kept; nothing is trimmed as an outlier.
//
// # Inputs
//
//   - set: Measurement output. Nil returns zero Stats.
//
// # Outputs
//
//   - Stats: Summary. Latency fields are zero when there are no samples.
func Aggregate(set *benchmark.SampleSet) Stats {
	if set == nil {
		return Stats{}
	}
	st := Stats{
		Backend:       set.Backend,
		Library:       set.Library,
		Parallelism:   set.Parallelism,
		Samples:       len(set.Samples),
		Failures:      set.Failures,
		FaultCounts:   set.FaultCounts,
		Skipped:       set.Skipped,
		Records:       set.Records,
		PayloadBytes:  set.PayloadBytes,
		Wall:          set.Wall,
		BufferRetries: set.BufferRetries,
		samples:       set.Samples,
	}
	if len(set.Samples) == 0 {
		return st
	}

	sorted := slices.Clone(set.Samples)
	slices.Sort(sorted)

	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.P50 = percentile(sorted, 0.50)
	st.P90 = percentile(sorted, 0.90)
	st.P95 = percentile(sorted, 0.95)
	st.P99 = percentile(sorted, 0.99)

	mean := durationMean(sorted)
	st.Mean = time.Duration(mean)
	st.StdDev = time.Duration(math.Sqrt(durationVariance(sorted, mean)))
	st.CILower, st.CIUpper = confidenceInterval(sorted, 0.95)

	if mean > 0 {
		st.OpsPerSecond = float64(time.Second) / mean
		st.RecordsPerSecond = st.OpsPerSecond * float64(set.Records)
		st.BytesPerSecond = st.OpsPerSecond * float64(set.PayloadBytes)
	}
	return st
}

// percentile returns the p-th percentile of sorted samples using linear
// interpolation between closest ranks.
func percentile(sorted []time.Duration, p float64) time.Duration {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}

func durationMean(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	return sum / float64(len(samples))
}

// durationVariance is the population variance.
func durationVariance(samples []time.Duration, mean float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sq float64
	for _, s := range samples {
		d := float64(s) - mean
		sq += d * d
	}
	return sq / float64(len(samples))
}

// cohensD is the standardized mean difference using the pooled standard
// deviation. Positive means a is slower than b.
func cohensD(a, b []time.Duration) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	meanA, meanB := durationMean(a), durationMean(b)
	varA, varB := durationVariance(a, meanA), durationVariance(b, meanB)

	na, nb := float64(len(a)), float64(len(b))
	pooled := math.Sqrt(((na-1)*varA + (nb-1)*varB) / (na + nb - 2))
	if pooled == 0 {
		return 0
	}
	return (meanA - meanB) / pooled
}

// welchTTest returns the t statistic and an approximate two-tailed p-value
// for samples with unequal variances. The p-value is 1 when either set has
// fewer than two samples or there is no variance.
func welchTTest(a, b []time.Duration) (t, p float64) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 1
	}
	meanA, meanB := durationMean(a), durationMean(b)
	varA, varB := durationVariance(a, meanA), durationVariance(b, meanB)
	na, nb := float64(len(a)), float64(len(b))

	se := math.Sqrt(varA/na + varB/nb)
	if se == 0 {
		return 0, 1
	}
	t = (meanA - meanB) / se

	// Welch-Satterthwaite degrees of freedom.
	num := math.Pow(varA/na+varB/nb, 2)
	den := math.Pow(varA/na, 2)/(na-1) + math.Pow(varB/nb, 2)/(nb-1)
	if den == 0 {
		return t, 1
	}
	df := num / den

	if df >= 30 || df <= 2 {
		return t, 2 * normalCDF(-math.Abs(t))
	}
	return t, 2 * normalCDF(-math.Abs(t)*math.Sqrt(df/(df-2)))
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// confidenceInterval returns a symmetric interval around the mean. Small
// sets use t critical values, larger ones z scores.
func confidenceInterval(samples []time.Duration, level float64) (lower, upper time.Duration) {
	switch len(samples) {
	case 0:
		return 0, 0
	case 1:
		return samples[0], samples[0]
	}

	mean := durationMean(samples)
	stdErr := math.Sqrt(durationVariance(samples, mean) / float64(len(samples)))
	margin := criticalValue(len(samples)-1, level) * stdErr
	return time.Duration(mean - margin), time.Duration(mean + margin)
}

// Two-tailed t critical values for df 1..30.
var (
	t90 = [...]float64{6.314, 2.920, 2.353, 2.132, 2.015, 1.943, 1.895, 1.860, 1.833, 1.812,
		1.796, 1.782, 1.771, 1.761, 1.753, 1.746, 1.740, 1.734, 1.729, 1.725,
		1.721, 1.717, 1.714, 1.711, 1.708, 1.706, 1.703, 1.701, 1.699, 1.697}
	t95 = [...]float64{12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
		2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
		2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042}
	t99 = [...]float64{63.657, 9.925, 5.841, 4.604, 4.032, 3.707, 3.499, 3.355, 3.250, 3.169,
		3.106, 3.055, 3.012, 2.977, 2.947, 2.921, 2.898, 2.878, 2.861, 2.845,
		2.831, 2.819, 2.807, 2.797, 2.787, 2.779, 2.771, 2.763, 2.756, 2.750}
)

func criticalValue(df int, level float64) float64 {
	df = max(df, 1)
	if df > len(t95) {
		switch {
		case level >= 0.99:
			return 2.576
		case level >= 0.95:
			return 1.96
		default:
			return 1.645
		}
	}
	switch {
	case level >= 0.99:
		return t99[df-1]
	case level >= 0.95:
		return t95[df-1]
	default:
		return t90[df-1]
	}
}
