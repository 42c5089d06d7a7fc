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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/FastStorageBench/pkg/logging"
	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/config"
	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/export"
	"github.com/AleutianAI/FastStorageBench/services/bench/history"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
	"github.com/AleutianAI/FastStorageBench/services/bench/report"
	"github.com/AleutianAI/FastStorageBench/services/bench/telemetry"
)

// runBenchmark executes one benchmark invocation.
//
// # Description
//
// Parses the container, loads the backends, measures the candidate and the
// optional reference, cross-checks their output, then reports, records
// history and exports. Every backend handle is closed before returning.
// An equivalence mismatch is returned after the report is written so the
// timings are still visible.
func runBenchmark(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return &UsageError{Err: err}
	}
	log, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "decodebench",
		JSON:    cfg.Logging.JSON,
		Output:  stderr,
	})
	if err != nil {
		return &UsageError{Err: err}
	}
	defer log.Close()
	logger := log.Slog()

	tcfg := telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		TraceOut:     cfg.Telemetry.TraceOut,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		MetricsFile:  cfg.Telemetry.MetricsFile,
	}
	var meters *telemetry.Recorder
	if tcfg.Enabled() {
		provider, err := telemetry.Setup(ctx, tcfg)
		if err != nil {
			return &UsageError{Err: err}
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if serr := provider.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("telemetry shutdown failed", "error", serr)
			}
		}()
		if meters, err = telemetry.NewRecorder(provider.MeterProvider()); err != nil {
			return fmt.Errorf("create metric instruments: %w", err)
		}
	}

	file, err := container.ReadFile(cfg.File)
	if err != nil {
		return err
	}
	logger.Info("container parsed",
		"file", file.Name(),
		"codec", file.Header.Codec.String(),
		"records", file.Header.RecordCount,
		"compressed_bytes", file.Header.CompressedSize,
	)

	candidate, closeCand, err := openBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer closeCand()

	var reference *native.Backend
	if cfg.Reference.Enabled() {
		var closeRef func()
		reference, closeRef, err = openBackend(ctx, cfg.Reference, logger)
		if err != nil {
			return err
		}
		defer closeRef()
	}

	progress := &progressObserver{spin: ux.NewSpinner(stderr, "", 0)}
	if meters != nil {
		progress.next = meters
	}
	bcfg := cfg.BenchmarkConfig()
	bcfg.Logger = logger
	bcfg.Observer = progress
	runOne := func(b *native.Backend) (*benchmark.SampleSet, error) {
		return progress.measure(func() (*benchmark.SampleSet, error) {
			return benchmark.Run(ctx, bcfg, file, b)
		}, b.Descriptor().Kind, cfg.Iterations)
	}

	rep := &report.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		File:        report.NewFileInfo(file),
		Iterations:  cfg.Iterations,
		Warmup:      cfg.Warmup,
	}

	candSet, err := runOne(candidate)
	if err != nil {
		return err
	}
	candStats := report.Aggregate(candSet)
	rep.Backends = append(rep.Backends, candStats)

	var mismatch error
	if reference != nil {
		refSet, err := runOne(reference)
		if err != nil {
			return err
		}
		refStats := report.Aggregate(refSet)
		rep.Backends = append(rep.Backends, refStats)
		cmp := report.Compare(refStats, candStats)
		rep.Comparison = &cmp

		opts := cfg.EquivalenceOptions()
		opts.Logger = logger
		res, err := equivalence.Validate(ctx, file, reference, candidate, opts)
		var mm *equivalence.MismatchError
		switch {
		case errors.As(err, &mm):
			mismatch = err
		case err != nil:
			return err
		}
		rep.Equivalence = res
		if meters != nil {
			meters.Equivalence(ctx, res)
		}
	}

	if cfg.History.Dir != "" {
		findings, err := recordHistory(cfg, rep, logger)
		if err != nil {
			logger.Warn("history not updated", "error", err)
		}
		rep.Regressions = findings
	}

	format, err := report.ParseFormat(cfg.Output)
	if err != nil {
		return &UsageError{Err: err}
	}
	reporter, err := report.New(format, stdout)
	if err != nil {
		return &UsageError{Err: err}
	}
	if err := reporter.Report(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if cfg.Influx.URL != "" {
		if err := exportInflux(ctx, cfg, rep, logger); err != nil {
			logger.Error("influx export failed", "error", err)
		}
	}
	return mismatch
}

// openBackend loads a backend and returns a closer that logs close errors.
func openBackend(ctx context.Context, bc config.BackendConfig, logger *slog.Logger) (*native.Backend, func(), error) {
	desc, err := bc.Descriptor()
	if err != nil {
		return nil, nil, &UsageError{Err: err}
	}
	b, err := telemetry.LoadBackend(ctx, desc, native.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return b, func() {
		if err := b.Close(); err != nil {
			logger.Warn("backend close failed", "backend", desc.Kind.String(), "error", err)
		}
	}, nil
}

func recordHistory(cfg *config.Config, rep *report.Report, logger *slog.Logger) ([]report.Finding, error) {
	store, err := history.Open(history.Config{Dir: cfg.History.Dir, Logger: logger.With("component", "badger")})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	t := history.DefaultThresholds()
	t.P50 = cfg.History.P50Threshold
	t.P95 = cfg.History.P95Threshold
	t.P99 = cfg.History.P99Threshold
	findings, err := store.Record(rep, history.NewDetector(&t))
	for _, f := range findings {
		logger.Warn("regression", "backend", f.Backend.String(), "metric", f.Metric, "severity", f.Severity, "detail", f.Message)
	}
	return findings, err
}

func exportInflux(ctx context.Context, cfg *config.Config, rep *report.Report, logger *slog.Logger) error {
	exp, err := export.NewInfluxExporter(export.Config{
		URL:         cfg.Influx.URL,
		Token:       cfg.Influx.Token,
		Org:         cfg.Influx.Org,
		Bucket:      cfg.Influx.Bucket,
		Measurement: cfg.Influx.Measurement,
	}, logger)
	if err != nil {
		return err
	}
	defer exp.Close()
	return exp.Export(ctx, rep)
}
