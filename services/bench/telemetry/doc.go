// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry traces and metrics for decodebench.
//
// # Description
//
// Setup installs global tracer and meter providers whose exporters are
// chosen by Config:
//
//   - TraceOut: spans as JSON lines written to a file (stdouttrace)
//   - OTLPEndpoint: spans sent to a collector over gRPC (otlptracegrpc)
//   - MetricsFile ending in ".json": metrics as JSON (stdoutmetric)
//   - any other MetricsFile: a Prometheus textfile collector file (.prom)
//
// Files are only complete after Provider.Shutdown returns.
//
// Recorder implements benchmark.Observer and records the decode latency
// histogram, iteration and failure counters and the equivalence gauge.
//
// # Spans
//
//	bench.load     loading a backend library
//	bench.warmup   the unmeasured warmup phase
//	bench.measure  the measured phase
//	bench.compare  the equivalence check
//
// # Thread Safety
//
// Provider and Recorder are safe for concurrent use.
package telemetry
