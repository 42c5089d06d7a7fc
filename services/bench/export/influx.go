// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes benchmark reports to InfluxDB v2.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/FastStorageBench/pkg/validation"
	"github.com/AleutianAI/FastStorageBench/services/bench/report"
)

// DefaultMeasurement is the measurement name used when none is configured.
const DefaultMeasurement = "decode_benchmark"

// Config selects the InfluxDB destination.
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// InfluxExporter writes one point per backend per run.
//
// Thread Safety: Safe for concurrent use.
type InfluxExporter struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	logger      *slog.Logger
}

// NewInfluxExporter validates cfg and creates a client. No connection is
// made until Export.
func NewInfluxExporter(cfg Config, logger *slog.Logger) (*InfluxExporter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influx url is required")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	for _, id := range []struct{ kind, name string }{
		{"influx org", cfg.Org},
		{"influx bucket", cfg.Bucket},
		{"influx measurement", cfg.Measurement},
	} {
		if err := validation.ValidateIdentifier(id.kind, id.name); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxExporter{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		logger:      logger.With("component", "influx", "url", cfg.URL, "bucket", cfg.Bucket),
	}, nil
}

// Points converts rep into line protocol points, one per backend.
func (e *InfluxExporter) Points(rep *report.Report) []*write.Point {
	points := make([]*write.Point, 0, len(rep.Backends))
	for _, st := range rep.Backends {
		tags := map[string]string{
			"backend":     st.Backend.String(),
			"library":     st.Library,
			"file":        filepath.Base(rep.File.Path),
			"codec":       rep.File.Codec,
			"parallelism": strconv.Itoa(st.Parallelism),
		}
		if rep.RunID != "" {
			tags["run_id"] = rep.RunID
		}
		fields := map[string]any{
			"samples":            st.Samples,
			"failures":           st.Failures,
			"skipped":            st.Skipped,
			"min_ns":             st.Min.Nanoseconds(),
			"max_ns":             st.Max.Nanoseconds(),
			"mean_ns":            st.Mean.Nanoseconds(),
			"stddev_ns":          st.StdDev.Nanoseconds(),
			"p50_ns":             st.P50.Nanoseconds(),
			"p90_ns":             st.P90.Nanoseconds(),
			"p95_ns":             st.P95.Nanoseconds(),
			"p99_ns":             st.P99.Nanoseconds(),
			"ops_per_second":     st.OpsPerSecond,
			"records_per_second": st.RecordsPerSecond,
			"bytes_per_second":   st.BytesPerSecond,
			"records":            st.Records,
			"buffer_retries":     st.BufferRetries,
			"equivalent":         rep.Equivalent(),
		}
		if rep.Comparison != nil && rep.Comparison.Candidate == st.Backend {
			fields["speedup"] = rep.Comparison.Speedup
			fields["p_value"] = rep.Comparison.PValue
		}
		points = append(points, influxdb2.NewPoint(e.measurement, tags, fields, rep.GeneratedAt))
	}
	return points
}

// Export writes rep with a blocking write.
func (e *InfluxExporter) Export(ctx context.Context, rep *report.Report) error {
	points := e.Points(rep)
	if len(points) == 0 {
		return nil
	}
	if err := e.writeAPI.WritePoint(ctx, points...); err != nil {
		e.logger.Error("influx write failed", "error", err)
		return fmt.Errorf("write %d points to influx: %w", len(points), err)
	}
	e.logger.Info("exported to influx", "points", len(points), "measurement", e.measurement)
	return nil
}

// Close releases the client.
func (e *InfluxExporter) Close() {
	e.client.Close()
}
