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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
	"github.com/AleutianAI/FastStorageBench/services/bench/report"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stats(kind native.Kind, p50 time.Duration) report.Stats {
	return report.Stats{
		Backend:      kind,
		Samples:      100,
		P50:          p50,
		P95:          p50 * 2,
		P99:          p50 * 3,
		OpsPerSecond: float64(time.Second) / float64(p50),
	}
}

func run(file string, kind native.Kind, at time.Time, p50 time.Duration) *Run {
	return &Run{File: file, Time: at, Stats: stats(kind, p50)}
}

func TestStore_SaveAssignsIDAndTime(t *testing.T) {
	s := openTestStore(t)
	r := &Run{File: "a.bin.lz4", Stats: stats(native.ZeroAlloc, time.Millisecond)}
	require.NoError(t, s.Save(r))
	assert.Len(t, r.ID, 36)
	assert.False(t, r.Time.IsZero())
}

func TestStore_Baseline(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Save(run("a.bin.lz4", native.ZeroAlloc, t0, 100*time.Microsecond)))
	require.NoError(t, s.Save(run("a.bin.lz4", native.ZeroAlloc, t0.Add(time.Hour), 110*time.Microsecond)))
	require.NoError(t, s.Save(run("a.bin.lz4", native.Managed, t0.Add(2*time.Hour), 300*time.Microsecond)))
	require.NoError(t, s.Save(run("b.bin.lz4", native.ZeroAlloc, t0.Add(3*time.Hour), 900*time.Microsecond)))

	base, err := s.Baseline("a.bin.lz4", native.ZeroAlloc, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 110*time.Microsecond, base.Stats.P50)
	assert.Equal(t, native.ZeroAlloc, base.Stats.Backend)

	base, err = s.Baseline("a.bin.lz4", native.ZeroAlloc, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 100*time.Microsecond, base.Stats.P50, "baseline is strictly earlier")

	_, err = s.Baseline("a.bin.lz4", native.ZeroAlloc, t0)
	assert.ErrorIs(t, err, ErrNoBaseline)

	_, err = s.Baseline("c.bin.lz4", native.Managed, t0.Add(24*time.Hour))
	assert.ErrorIs(t, err, ErrNoBaseline)
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Save(run("a.bin.lz4", native.ZeroAlloc, t0, time.Millisecond)))
	require.NoError(t, s.Save(run("b.bin.lz4", native.Managed, t0.Add(time.Minute), time.Millisecond)))
	require.NoError(t, s.Save(run("a.bin.lz4", native.Managed, t0.Add(2*time.Minute), time.Millisecond)))

	all, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, t0.Add(2*time.Minute), all[0].Time)
	assert.Equal(t, t0, all[2].Time)

	onlyA, err := s.List("a.bin.lz4", 0)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	limited, err := s.List("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	s, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(run("a.bin.lz4", native.ZeroAlloc, t0, time.Millisecond)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List("", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorContains(t, err, "history directory is required")
}

func TestStore_Record(t *testing.T) {
	s := openTestStore(t)
	d := NewDetector(nil)

	first := &report.Report{
		RunID:       "run-1",
		GeneratedAt: t0,
		File:        report.FileInfo{Path: "a.bin.lz4", Codec: "lz4-block"},
		Iterations:  100,
		Backends:    []report.Stats{stats(native.ZeroAlloc, 100*time.Microsecond)},
		Equivalence: &equivalence.Result{Equivalent: true},
	}
	findings, err := s.Record(first, d)
	require.NoError(t, err)
	assert.Empty(t, findings, "no baseline yet")

	second := *first
	second.RunID = "run-2"
	second.GeneratedAt = t0.Add(time.Hour)
	second.Backends = []report.Stats{stats(native.ZeroAlloc, 130*time.Microsecond)}
	findings, err = s.Record(&second, d)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, MetricLatencyP50, findings[0].Metric)
	assert.Equal(t, SeverityError, findings[0].Severity)

	runs, err := s.List("a.bin.lz4", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, len(findings), runs[0].Regressions)
	require.NotNil(t, runs[0].Equivalent)
	assert.True(t, *runs[0].Equivalent)
}

func TestDetector_Latency(t *testing.T) {
	d := NewDetector(nil)
	base := stats(native.ZeroAlloc, 100*time.Microsecond)

	tests := []struct {
		name     string
		p50      time.Duration
		severity string
	}{
		{"stable", 101 * time.Microsecond, ""},
		{"approaching", 104500 * time.Nanosecond, SeverityWarning},
		{"regressed", 120 * time.Microsecond, SeverityError},
		{"faster", 50 * time.Microsecond, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := base
			cur.P50 = tt.p50
			var got string
			for _, f := range d.Detect(base, cur) {
				if f.Metric == MetricLatencyP50 {
					got = f.Severity
				}
			}
			assert.Equal(t, tt.severity, got)
		})
	}
}

func TestDetector_Throughput(t *testing.T) {
	d := NewDetector(nil)
	base := stats(native.Managed, 100*time.Microsecond)
	cur := base
	cur.OpsPerSecond = base.OpsPerSecond * 0.9

	findings := d.Detect(base, cur)
	require.Len(t, findings, 1)
	assert.Equal(t, MetricThroughput, findings[0].Metric)
	assert.Equal(t, SeverityError, findings[0].Severity)
	assert.Equal(t, native.Managed, findings[0].Backend)
	assert.Contains(t, findings[0].Message, "throughput decreased by 10.0%")
}

func TestDetector_FailureRate(t *testing.T) {
	d := NewDetector(nil)
	base := stats(native.Managed, 100*time.Microsecond)
	cur := base
	cur.Samples = 95
	cur.Failures = 5

	findings := d.Detect(base, cur)
	require.Len(t, findings, 1)
	assert.Equal(t, MetricFailureRate, findings[0].Metric)
	assert.Equal(t, SeverityCritical, findings[0].Severity)
}

func TestDetector_InsufficientSamples(t *testing.T) {
	d := NewDetector(&Thresholds{P50: 0.05, P95: 0.1, P99: 0.15, Throughput: 0.05, FailureRate: 0.01, WarnRatio: 0.8, MinSamples: 500})
	base := stats(native.ZeroAlloc, time.Millisecond)

	findings := d.Detect(base, base)
	require.Len(t, findings, 1)
	assert.Equal(t, MetricSamples, findings[0].Metric)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
}

func TestDetector_NoSamplesSkipsLatency(t *testing.T) {
	d := NewDetector(nil)
	base := stats(native.ZeroAlloc, time.Millisecond)
	cur := report.Stats{Backend: native.ZeroAlloc, Failures: 100}

	for _, f := range d.Detect(base, cur) {
		assert.NotEqual(t, MetricLatencyP50, f.Metric)
		assert.NotEqual(t, MetricThroughput, f.Metric)
	}
}
