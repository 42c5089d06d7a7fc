// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

const instrumentationName = "github.com/AleutianAI/FastStorageBench/services/bench/telemetry"

// latencyBuckets are histogram boundaries in seconds, 1µs to 1s.
var latencyBuckets = []float64{
	1e-6, 2.5e-6, 5e-6, 1e-5, 2.5e-5, 5e-5, 1e-4, 2.5e-4, 5e-4,
	1e-3, 2.5e-3, 5e-3, 1e-2, 2.5e-2, 5e-2, 0.1, 0.25, 0.5, 1,
}

// Recorder records decode metrics. It implements benchmark.Observer.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	latency    metric.Float64Histogram
	iterations metric.Int64Counter
	records    metric.Int64Counter
	failures   metric.Int64Counter
	equivalent metric.Int64Gauge
}

// NewRecorder creates the instruments on mp. A nil mp uses the global
// meter provider.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	r := &Recorder{}
	var err, e error

	r.latency, e = meter.Float64Histogram(
		"decodebench.decode.duration",
		metric.WithDescription("Duration of a measured native decode call"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	err = errors.Join(err, e)

	r.iterations, e = meter.Int64Counter(
		"decodebench.iterations",
		metric.WithDescription("Measured decode calls, successful or not"),
		metric.WithUnit("{iteration}"),
	)
	err = errors.Join(err, e)

	r.records, e = meter.Int64Counter(
		"decodebench.records",
		metric.WithDescription("Records decoded by successful measured calls"),
		metric.WithUnit("{record}"),
	)
	err = errors.Join(err, e)

	r.failures, e = meter.Int64Counter(
		"decodebench.failures",
		metric.WithDescription("Failed measured decode calls by fault kind"),
		metric.WithUnit("{failure}"),
	)
	err = errors.Join(err, e)

	r.equivalent, e = meter.Int64Gauge(
		"decodebench.equivalent",
		metric.WithDescription("1 when two backends decoded identical records, 0 otherwise"),
	)
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return r, nil
}

// Sample records one successful measured call.
func (r *Recorder) Sample(kind native.Kind, d time.Duration, records int) {
	ctx := context.Background()
	backend := attribute.String("backend", kind.String())
	attrs := metric.WithAttributes(backend)
	r.latency.Record(ctx, d.Seconds(), attrs)
	r.iterations.Add(ctx, 1, metric.WithAttributes(backend, attribute.Bool("ok", true)))
	r.records.Add(ctx, int64(records), attrs)
}

// Failure records one failed measured call.
func (r *Recorder) Failure(kind native.Kind, fault native.FaultKind) {
	ctx := context.Background()
	backend := attribute.String("backend", kind.String())
	r.iterations.Add(ctx, 1, metric.WithAttributes(backend, attribute.Bool("ok", false)))
	r.failures.Add(ctx, 1, metric.WithAttributes(backend, attribute.String("fault", string(fault))))
}

// Equivalence records the outcome of an equivalence check.
func (r *Recorder) Equivalence(ctx context.Context, res *equivalence.Result) {
	if res == nil {
		return
	}
	var v int64
	if res.Equivalent {
		v = 1
	}
	r.equivalent.Record(ctx, v, metric.WithAttributes(
		attribute.String("reference", res.Reference.String()),
		attribute.String("candidate", res.Candidate.String()),
	))
}

// LoadBackend loads a backend inside a bench.load span.
func LoadBackend(ctx context.Context, desc native.Descriptor, opts ...native.Option) (*native.Backend, error) {
	_, span := otel.Tracer(instrumentationName).Start(ctx, "bench.load", trace.WithAttributes(
		attribute.String("bench.backend", desc.Kind.String()),
		attribute.String("bench.library", desc.LibraryPath),
	))
	defer span.End()

	b, err := native.Load(desc, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("bench.library.resolved", b.Descriptor().LibraryPath),
		attribute.Bool("bench.thread_safe", b.ThreadSafe()),
	)
	return b, nil
}
