// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package benchmark

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

const instrumentationName = "github.com/AleutianAI/FastStorageBench/services/bench/benchmark"

// Run warms up and then measures decoding of f with b.
//
// # Description
//
// Warmup calls run sequentially on b and any failure aborts the run before
// measurement starts. Measured calls run on Config.Parallelism workers.
// Per-call faults are counted; only fatal adapter errors stop the
// measurement early.
//
// # Inputs
//
//   - ctx: Cancellation aborts warmup and stops scheduling measured
//     iterations.
//   - cfg: Run configuration. Nil uses DefaultConfig().
//   - f: Parsed container, shared read-only by all workers.
//   - b: Loaded backend. Run does not close it.
//
// # Outputs
//
//   - *SampleSet: Never nil. Empty when warmup failed.
//   - error: *DecodeAbortError for warmup or fatal measurement failures,
//     wrapped ErrInvalidConfig for bad configuration.
func Run(ctx context.Context, cfg *Config, f *container.File, b *native.Backend) (*SampleSet, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	set := &SampleSet{
		Backend:      b.Kind(),
		Library:      b.Descriptor().LibraryPath,
		PayloadBytes: len(f.Payload),
		Parallelism:  cfg.Parallelism,
	}
	if err := cfg.Validate(); err != nil {
		return set, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", b.Kind().String(), "file", f.Name())

	tracer := otel.Tracer(instrumentationName)
	attrs := trace.WithAttributes(
		attribute.String("bench.backend", b.Kind().String()),
		attribute.String("bench.file", f.Name()),
	)

	// The budget covers warmup and measurement together.
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	wctx, span := tracer.Start(ctx, "bench.warmup", attrs)
	warmed, err := warmup(wctx, cfg, f, b)
	span.SetAttributes(attribute.Int("bench.warmup_calls", warmed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "warmup failed")
	}
	span.End()
	if err != nil {
		logger.Error("warmup failed", "error", err)
		return set, err
	}
	if warmed < cfg.Warmup {
		logger.Warn("timeout reached during warmup", "calls", warmed, "timeout", cfg.Timeout)
	} else {
		logger.Debug("warmup complete", "calls", warmed)
	}

	mctx, span := tracer.Start(ctx, "bench.measure", attrs)
	defer span.End()

	err = measure(mctx, cfg, f, b, set)
	span.SetAttributes(
		attribute.Int("bench.samples", len(set.Samples)),
		attribute.Int("bench.failures", set.Failures),
		attribute.Int("bench.skipped", set.Skipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "measurement aborted")
		logger.Error("measurement aborted", "error", err, "samples", len(set.Samples))
		return set, err
	}
	if set.Skipped > 0 {
		logger.Warn("iterations skipped", "skipped", set.Skipped, "timeout", cfg.Timeout)
	}
	logger.Info("measurement complete",
		"samples", len(set.Samples),
		"failures", set.Failures,
		"wall", set.Wall,
	)
	return set, nil
}

// warmup returns the number of calls made. An expired deadline ends warmup
// early without an error; measurement then schedules nothing.
func warmup(ctx context.Context, cfg *Config, f *container.File, b *native.Backend) (int, error) {
	if cfg.Warmup == 0 {
		return 0, nil
	}
	s := b.NewSession(f, cfg.InitialBufferRecords)
	for i := 0; i < cfg.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return i, nil
			}
			return i, &DecodeAbortError{Phase: PhaseWarmup, Iteration: i, Err: err}
		}
		if _, err := b.DecodeInto(f, s); err != nil {
			return i, &DecodeAbortError{Phase: PhaseWarmup, Iteration: i, Err: err}
		}
	}
	return cfg.Warmup, nil
}

type sample struct {
	iteration int64
	d         time.Duration
}

type workerResult struct {
	samples  []sample
	failures map[native.FaultKind]int
	records  int
	retries  int
}

func measure(ctx context.Context, cfg *Config, f *container.File, b *native.Backend, set *SampleSet) error {
	workers := min(cfg.Parallelism, cfg.Iterations)
	total := int64(cfg.Iterations)
	results := make([]workerResult, workers)

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			wb := b
			if w > 0 {
				fork, err := b.Fork()
				if err != nil {
					return fmt.Errorf("worker %d: %w", w, err)
				}
				defer fork.Close()
				wb = fork
			}
			return work(gctx, cfg, f, wb, &next, total, &results[w])
		})
	}
	err := g.Wait()
	set.Wall = time.Since(start)

	started := min(next.Load(), total)
	set.Skipped = int(total - started)

	var all []sample
	for _, r := range results {
		all = append(all, r.samples...)
		for kind, n := range r.failures {
			if set.FaultCounts == nil {
				set.FaultCounts = make(map[native.FaultKind]int)
			}
			set.FaultCounts[kind] += n
			set.Failures += n
		}
		if r.records > set.Records {
			set.Records = r.records
		}
		set.BufferRetries += r.retries
	}
	slices.SortFunc(all, func(x, y sample) int {
		return cmp.Compare(x.iteration, y.iteration)
	})
	set.Samples = make([]time.Duration, len(all))
	for i, s := range all {
		set.Samples[i] = s.d
	}

	if err != nil {
		var abort *DecodeAbortError
		if !errors.As(err, &abort) {
			err = &DecodeAbortError{Phase: PhaseMeasure, Iteration: int(started), Err: err}
		}
		return err
	}
	return nil
}

func work(ctx context.Context, cfg *Config, f *container.File, b *native.Backend, next *atomic.Int64, total int64, res *workerResult) error {
	s := b.NewSession(f, cfg.InitialBufferRecords)
	defer func() { res.retries = s.TotalRetries() }()

	for {
		if ctx.Err() != nil {
			return nil
		}
		i := next.Add(1) - 1
		if i >= total {
			return nil
		}

		n, err := b.DecodeInto(f, s)
		if err != nil {
			if native.IsFatal(err) {
				return &DecodeAbortError{Phase: PhaseMeasure, Iteration: int(i), Err: err}
			}
			kind := faultKind(err)
			if res.failures == nil {
				res.failures = make(map[native.FaultKind]int)
			}
			res.failures[kind]++
			if cfg.Observer != nil {
				cfg.Observer.Failure(b.Kind(), kind)
			}
			continue
		}

		res.samples = append(res.samples, sample{iteration: i, d: s.Elapsed()})
		res.records = n
		if cfg.Observer != nil {
			cfg.Observer.Sample(b.Kind(), s.Elapsed(), n)
		}
	}
}

func faultKind(err error) native.FaultKind {
	var fault *native.NativeDecodeFault
	if errors.As(err, &fault) {
		return fault.Kind()
	}
	return native.FaultGeneric
}
