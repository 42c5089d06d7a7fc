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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
	"github.com/AleutianAI/FastStorageBench/services/bench/native/nativetest"
)

func testFile(t testing.TB, records int) *container.File {
	t.Helper()
	payload, _, err := marketdata.Generate(marketdata.GenerateOptions{
		Seed: 21, Records: records, Symbols: 4, CandleEvery: 500,
	})
	require.NoError(t, err)
	f, err := container.BuildFile(payload, marketdata.CodecLZ4Block)
	require.NoError(t, err)
	return f
}

func faultyBackend(t *testing.T, kind native.Kind) (*native.Backend, *nativetest.Faulty) {
	t.Helper()
	faulty := nativetest.Wrap(native.NewBuiltin(kind))
	b, err := native.New(native.Descriptor{Kind: kind, LibraryPath: native.BuiltinLibrary}, faulty)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, faulty
}

type countingObserver struct {
	mu       sync.Mutex
	samples  int
	failures map[native.FaultKind]int
}

func (o *countingObserver) Sample(native.Kind, time.Duration, int) {
	o.mu.Lock()
	o.samples++
	o.mu.Unlock()
}

func (o *countingObserver) Failure(_ native.Kind, kind native.FaultKind) {
	o.mu.Lock()
	if o.failures == nil {
		o.failures = make(map[native.FaultKind]int)
	}
	o.failures[kind]++
	o.mu.Unlock()
}

func TestRun_ZeroAllocScenario(t *testing.T) {
	f := testFile(t, 10_000)
	b, faulty := faultyBackend(t, native.ZeroAlloc)

	set, err := Run(context.Background(), &Config{Iterations: 100, Warmup: 10, Parallelism: 1}, f, b)
	require.NoError(t, err)

	require.Len(t, set.Samples, 100)
	for i, d := range set.Samples {
		assert.Positive(t, d, "sample %d", i)
	}
	assert.Zero(t, set.Failures)
	assert.Zero(t, set.Skipped)
	assert.Equal(t, 10_000, set.Records)
	assert.Equal(t, int64(110), faulty.Calls())
	assert.Equal(t, native.ZeroAlloc, set.Backend)
}

func TestRun_ZeroRecordFile(t *testing.T) {
	f := testFile(t, 0)

	for _, kind := range []native.Kind{native.ZeroAlloc, native.Managed} {
		b, _ := faultyBackend(t, kind)
		set, err := Run(context.Background(), &Config{Iterations: 20, Warmup: 2, Parallelism: 1}, f, b)
		require.NoError(t, err, kind.String())
		assert.Len(t, set.Samples, 20)
		assert.Zero(t, set.Failures)
		assert.Zero(t, set.Records)
	}
}

func TestRun_WarmupFailureAbortsWithNoSamples(t *testing.T) {
	f := testFile(t, 100)
	b, faulty := faultyBackend(t, native.ZeroAlloc)
	faulty.Fault = nativetest.FailCalls(native.StatusCorrupted, 3)

	set, err := Run(context.Background(), &Config{Iterations: 50, Warmup: 5, Parallelism: 1}, f, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWarmupFailed)
	assert.ErrorIs(t, err, marketdata.ErrCorrupted)

	var abort *DecodeAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, PhaseWarmup, abort.Phase)
	assert.Equal(t, 2, abort.Iteration)

	require.NotNil(t, set)
	assert.Empty(t, set.Samples)
	assert.Zero(t, set.Failures)
	assert.Equal(t, int64(3), faulty.Calls(), "measurement must not start")
}

func TestRun_WarmupPanicAborts(t *testing.T) {
	f := testFile(t, 100)
	b, faulty := faultyBackend(t, native.Managed)
	faulty.PanicOn = 1

	set, err := Run(context.Background(), &Config{Iterations: 10, Warmup: 1, Parallelism: 1}, f, b)
	var fault *native.NativeDecodeFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, native.FaultPanic, fault.Kind())
	assert.Empty(t, set.Samples)
}

func TestRun_IterationFaultsAreCounted(t *testing.T) {
	f := testFile(t, 500)
	b, faulty := faultyBackend(t, native.Managed)
	faulty.Fault = nativetest.FailEvery(10, native.StatusCorrupted)
	obs := &countingObserver{}

	set, err := Run(context.Background(), &Config{Iterations: 100, Warmup: 0, Parallelism: 1, Observer: obs}, f, b)
	require.NoError(t, err)

	assert.Len(t, set.Samples, 90)
	assert.Equal(t, 10, set.Failures)
	assert.Equal(t, map[native.FaultKind]int{native.FaultCorrupted: 10}, set.FaultCounts)
	assert.Equal(t, 100, set.Attempted())
	assert.Equal(t, 90, obs.samples)
	assert.Equal(t, 10, obs.failures[native.FaultCorrupted])
}

func TestRun_BufferExhaustionIsFatal(t *testing.T) {
	f := testFile(t, 100)
	b, faulty := faultyBackend(t, native.ZeroAlloc)
	faulty.Fault = func(call int64) (int64, bool) {
		if call > 2 {
			return native.StatusBufferTooSmall, true
		}
		return 0, false
	}

	set, err := Run(context.Background(), &Config{Iterations: 10, Warmup: 1, Parallelism: 1}, f, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMeasurementAborted)

	var bts *native.BufferTooSmallError
	require.ErrorAs(t, err, &bts)
	assert.Len(t, set.Samples, 1)
	assert.Equal(t, int64(2+native.MaxBufferRetries+1), faulty.Calls())
}

func TestRun_ParallelZeroAllocForksHandles(t *testing.T) {
	f := testFile(t, 1_000)
	b, faulty := faultyBackend(t, native.ZeroAlloc)

	set, err := Run(context.Background(), &Config{Iterations: 200, Warmup: 4, Parallelism: 4}, f, b)
	require.NoError(t, err)

	assert.Len(t, set.Samples, 200)
	assert.Zero(t, set.Failures)
	assert.Equal(t, 4, set.Parallelism)
	assert.Equal(t, int64(4), faulty.Opens())
	assert.Equal(t, int64(3), faulty.Closes(), "forked handles are closed when workers finish")
}

func TestRun_ParallelManagedSharesHandle(t *testing.T) {
	f := testFile(t, 1_000)
	b, faulty := faultyBackend(t, native.Managed)

	set, err := Run(context.Background(), &Config{Iterations: 200, Warmup: 4, Parallelism: 8}, f, b)
	require.NoError(t, err)
	assert.Len(t, set.Samples, 200)
	assert.Equal(t, int64(1), faulty.Opens())
}

func TestRun_ParallelismLargerThanIterations(t *testing.T) {
	f := testFile(t, 10)
	b, faulty := faultyBackend(t, native.ZeroAlloc)

	set, err := Run(context.Background(), &Config{Iterations: 2, Parallelism: 8}, f, b)
	require.NoError(t, err)
	assert.Len(t, set.Samples, 2)
	assert.Equal(t, int64(2), faulty.Opens())
}

func TestRun_TimeoutStopsScheduling(t *testing.T) {
	f := testFile(t, 10)
	b, faulty := faultyBackend(t, native.ZeroAlloc)
	faulty.Delay = 5 * time.Millisecond

	set, err := Run(context.Background(), &Config{
		Iterations:  10_000,
		Parallelism: 2,
		Timeout:     60 * time.Millisecond,
	}, f, b)
	require.NoError(t, err)

	assert.Positive(t, set.Skipped)
	assert.NotEmpty(t, set.Samples)
	assert.Equal(t, 10_000, set.Attempted()+set.Skipped)
	assert.Equal(t, int64(set.Attempted()), faulty.Calls(), "in-flight calls complete and are counted")
}

func TestRun_TimeoutCoversWarmup(t *testing.T) {
	f := testFile(t, 10)
	b, faulty := faultyBackend(t, native.ZeroAlloc)
	faulty.Delay = 5 * time.Millisecond

	set, err := Run(context.Background(), &Config{
		Iterations:  50,
		Warmup:      10_000,
		Parallelism: 1,
		Timeout:     40 * time.Millisecond,
	}, f, b)
	require.NoError(t, err, "a spent budget is not a warmup failure")

	assert.Empty(t, set.Samples)
	assert.Equal(t, 50, set.Skipped)
	assert.Less(t, faulty.Calls(), int64(10_000), "warmup stopped at the deadline")
}

func TestRun_CanceledContext(t *testing.T) {
	f := testFile(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("during warmup", func(t *testing.T) {
		b, _ := faultyBackend(t, native.ZeroAlloc)
		_, err := Run(ctx, &Config{Iterations: 10, Warmup: 3, Parallelism: 1}, f, b)
		assert.ErrorIs(t, err, ErrWarmupFailed)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("no warmup", func(t *testing.T) {
		b, faulty := faultyBackend(t, native.ZeroAlloc)
		set, err := Run(ctx, &Config{Iterations: 10, Parallelism: 1}, f, b)
		require.NoError(t, err)
		assert.Equal(t, 10, set.Skipped)
		assert.Zero(t, faulty.Calls())
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	f := testFile(t, 10)
	b, _ := faultyBackend(t, native.ZeroAlloc)

	for _, cfg := range []*Config{
		{Iterations: 0, Parallelism: 1},
		{Iterations: 1, Parallelism: 0},
		{Iterations: 1, Parallelism: 1, Warmup: -1},
		{Iterations: 1, Parallelism: 1, Timeout: -time.Second},
	} {
		_, err := Run(context.Background(), cfg, f, b)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestRun_ClosedBackend(t *testing.T) {
	f := testFile(t, 10)
	b, _ := faultyBackend(t, native.ZeroAlloc)
	require.NoError(t, b.Close())

	_, err := Run(context.Background(), &Config{Iterations: 5, Parallelism: 1}, f, b)
	assert.ErrorIs(t, err, native.ErrClosed)
	assert.ErrorIs(t, err, ErrMeasurementAborted)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.Iterations)
	assert.Equal(t, 100, cfg.Warmup)
	assert.Equal(t, 1, cfg.Parallelism)
	assert.NoError(t, cfg.Validate())
}
