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
	"time"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// progressObserver advances a spinner for every measured call and forwards
// the call to next when set.
type progressObserver struct {
	spin *ux.Spinner
	next benchmark.Observer
}

func (o *progressObserver) Sample(kind native.Kind, d time.Duration, records int) {
	o.spin.Add(1)
	if o.next != nil {
		o.next.Sample(kind, d, records)
	}
}

func (o *progressObserver) Failure(kind native.Kind, fault native.FaultKind) {
	o.spin.Add(1)
	if o.next != nil {
		o.next.Failure(kind, fault)
	}
}

// measure runs one benchmark with the spinner showing measured calls.
func (o *progressObserver) measure(run func() (*benchmark.SampleSet, error), kind native.Kind, iterations int) (*benchmark.SampleSet, error) {
	o.spin.Reset("measure "+kind.String(), iterations)
	o.spin.Start()
	defer o.spin.Stop()
	return run()
}
