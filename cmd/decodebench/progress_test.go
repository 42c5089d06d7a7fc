// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

type countingObserver struct {
	samples, failures int
}

func (c *countingObserver) Sample(native.Kind, time.Duration, int) { c.samples++ }

func (c *countingObserver) Failure(native.Kind, native.FaultKind) { c.failures++ }

func TestProgressObserver(t *testing.T) {
	var stderr bytes.Buffer
	next := &countingObserver{}
	o := &progressObserver{spin: ux.NewSpinner(&stderr, "", 0), next: next}

	set, err := o.measure(func() (*benchmark.SampleSet, error) {
		o.Sample(native.ZeroAlloc, time.Microsecond, 10)
		o.Sample(native.ZeroAlloc, time.Microsecond, 10)
		o.Failure(native.ZeroAlloc, native.FaultCorrupted)
		return &benchmark.SampleSet{Backend: native.ZeroAlloc}, nil
	}, native.ZeroAlloc, 3)
	require.NoError(t, err)
	assert.Equal(t, native.ZeroAlloc, set.Backend)

	assert.Equal(t, 3, o.spin.Current())
	assert.Equal(t, 2, next.samples)
	assert.Equal(t, 1, next.failures)
	assert.Empty(t, stderr.String(), "no progress drawn off a terminal")
}

func TestProgressObserver_NoNext(t *testing.T) {
	o := &progressObserver{spin: ux.NewSpinner(&bytes.Buffer{}, "", 0)}
	o.Sample(native.Managed, time.Millisecond, 1)
	o.Failure(native.Managed, native.FaultPanic)
	assert.Equal(t, 2, o.spin.Current())
}
