// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"fmt"
	"time"

	"github.com/AleutianAI/FastStorageBench/services/bench/report"
)

// Metric names used in findings.
const (
	MetricLatencyP50  = "latency_p50"
	MetricLatencyP95  = "latency_p95"
	MetricLatencyP99  = "latency_p99"
	MetricThroughput  = "throughput"
	MetricFailureRate = "failure_rate"
	MetricSamples     = "samples"
)

// Severity levels used in findings.
const (
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Thresholds configures regression detection.
type Thresholds struct {
	// P50, P95 and P99 are allowed relative latency increases
	// (0.05 = 5%).
	P50 float64
	P95 float64
	P99 float64

	// Throughput is the allowed relative ops/s decrease.
	Throughput float64

	// FailureRate is the allowed absolute failure rate increase.
	FailureRate float64

	// WarnRatio is the fraction of a threshold at which to warn.
	WarnRatio float64

	// MinSamples is the sample count below which results are flagged as
	// unreliable.
	MinSamples int
}

// DefaultThresholds returns the default detection thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		P50:         0.05,
		P95:         0.10,
		P99:         0.15,
		Throughput:  0.05,
		FailureRate: 0.01,
		WarnRatio:   0.80,
		MinSamples:  30,
	}
}

// Detector compares a run against its baseline.
//
// Thread Safety: Safe for concurrent use (stateless).
type Detector struct {
	t Thresholds
}

// NewDetector creates a detector. A nil t uses DefaultThresholds.
func NewDetector(t *Thresholds) *Detector {
	if t == nil {
		d := DefaultThresholds()
		t = &d
	}
	return &Detector{t: *t}
}

// Detect returns findings for current against baseline in check order.
// Latency and throughput checks are skipped when
// either side has no successful samples.
func (d *Detector) Detect(baseline, current report.Stats) []report.Finding {
	var out []report.Finding
	add := func(metric, severity, msg string) {
		out = append(out, report.Finding{
			Backend:  current.Backend,
			Metric:   metric,
			Severity: severity,
			Message:  msg,
		})
	}

	if current.Samples < d.t.MinSamples {
		add(MetricSamples, SeverityWarning, fmt.Sprintf("insufficient samples: %d < %d", current.Samples, d.t.MinSamples))
	}

	if baseline.Samples > 0 && current.Samples > 0 {
		d.checkLatency(add, MetricLatencyP50, baseline.P50, current.P50, d.t.P50)
		d.checkLatency(add, MetricLatencyP95, baseline.P95, current.P95, d.t.P95)
		d.checkLatency(add, MetricLatencyP99, baseline.P99, current.P99, d.t.P99)
		d.checkThroughput(add, baseline.OpsPerSecond, current.OpsPerSecond)
	}
	d.checkFailureRate(add, baseline.FailureRate(), current.FailureRate())
	return out
}

func (d *Detector) checkLatency(add func(metric, severity, msg string), metric string, baseline, current time.Duration, threshold float64) {
	if baseline <= 0 {
		return
	}
	change := float64(current-baseline) / float64(baseline)
	switch {
	case change > threshold:
		add(metric, SeverityError, fmt.Sprintf("%s increased by %.1f%% (threshold: %.1f%%)",
			metric, change*100, threshold*100))
	case change > threshold*d.t.WarnRatio:
		add(metric, SeverityWarning, fmt.Sprintf("%s increased by %.1f%% (approaching threshold: %.1f%%)",
			metric, change*100, threshold*100))
	}
}

func (d *Detector) checkThroughput(add func(metric, severity, msg string), baseline, current float64) {
	if baseline <= 0 {
		return
	}
	// Regression is a decrease.
	change := (baseline - current) / baseline
	threshold := d.t.Throughput
	switch {
	case change > threshold:
		add(MetricThroughput, SeverityError, fmt.Sprintf("throughput decreased by %.1f%% (threshold: %.1f%%)",
			change*100, threshold*100))
	case change > threshold*d.t.WarnRatio:
		add(MetricThroughput, SeverityWarning, fmt.Sprintf("throughput decreased by %.1f%% (approaching threshold: %.1f%%)",
			change*100, threshold*100))
	}
}

func (d *Detector) checkFailureRate(add func(metric, severity, msg string), baseline, current float64) {
	change := current - baseline
	threshold := d.t.FailureRate
	switch {
	case change > threshold:
		add(MetricFailureRate, SeverityCritical, fmt.Sprintf("failure rate increased by %.2f%% (threshold: %.2f%%)",
			change*100, threshold*100))
	case change > threshold*d.t.WarnRatio:
		add(MetricFailureRate, SeverityWarning, fmt.Sprintf("failure rate increased by %.2f%% (approaching threshold: %.2f%%)",
			change*100, threshold*100))
	}
}
