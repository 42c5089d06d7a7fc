// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package benchmark drives repeated decode calls against a native backend
// and collects timing samples.
//
// # Overview
//
// A run has two phases that never overlap:
//
//  1. Warmup: Config.Warmup calls whose timings are discarded. Any failure
//     here aborts the run with a *DecodeAbortError and an empty SampleSet.
//  2. Measurement: Config.Iterations calls. Each successful call adds one
//     sample, the duration of the foreign call alone. Failed calls are
//     counted by fault kind and excluded from the samples.
//
// # Parallelism
//
// With Parallelism > 1 a fixed pool of workers pulls iteration numbers
// from a shared counter. Each worker owns a session and, when the backend
// is not thread safe, a forked backend with its own handle. The container
// payload is shared read-only.
//
// # Timeouts
//
// Config.Timeout and context cancellation stop the scheduling of new
// iterations. Calls already in flight finish; the iterations never started
// are reported as skipped.
//
// # Usage
//
//	set, err := benchmark.Run(ctx, cfg, file, backend)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(len(set.Samples), set.Failures)
package benchmark
