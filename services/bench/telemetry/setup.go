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
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilContext is returned when Setup is called with a nil context.
var ErrNilContext = errors.New("context must not be nil")

// Config selects exporters. Empty fields disable the exporter.
type Config struct {
	// ServiceName identifies this process in traces and metrics.
	ServiceName string

	// ServiceVersion is the version string for this process.
	ServiceVersion string

	// TraceOut is a file receiving spans as JSON.
	TraceOut string

	// OTLPEndpoint is a host:port OTLP gRPC receiver.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP connection.
	OTLPInsecure bool

	// MetricsFile receives metrics on shutdown: JSON when it ends in
	// ".json", Prometheus text exposition format otherwise.
	MetricsFile string
}

// Enabled reports whether any exporter is configured.
func (c Config) Enabled() bool {
	return c.TraceOut != "" || c.OTLPEndpoint != "" || c.MetricsFile != ""
}

// Provider owns the tracer and meter providers created by Setup.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	registry    *prometheus.Registry
	metricsFile string

	files []*os.File

	once sync.Once
	err  error
}

// Setup builds the providers for cfg and installs them as the otel globals.
//
// # Inputs
//
//   - ctx: Used for exporter connections. Must not be nil.
//   - cfg: Exporter selection.
//
// # Outputs
//
//   - *Provider: Call Shutdown on exit; it flushes every exporter.
//   - error: An exporter could not be created.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	name := cfg.ServiceName
	if name == "" {
		name = "decodebench"
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	p := &Provider{metricsFile: cfg.MetricsFile}

	topts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if cfg.TraceOut != "" {
		f, err := os.Create(cfg.TraceOut)
		if err != nil {
			return nil, p.abort(fmt.Errorf("create trace file: %w", err))
		}
		p.files = append(p.files, f)
		exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			return nil, p.abort(fmt.Errorf("create trace file exporter: %w", err))
		}
		topts = append(topts, sdktrace.WithBatcher(exp))
	}
	if cfg.OTLPEndpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, p.abort(fmt.Errorf("create otlp exporter: %w", err))
		}
		topts = append(topts, sdktrace.WithBatcher(exp))
	}
	p.tracerProvider = sdktrace.NewTracerProvider(topts...)

	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	switch {
	case cfg.MetricsFile == "":
	case strings.HasSuffix(cfg.MetricsFile, ".json"):
		f, err := os.Create(cfg.MetricsFile)
		if err != nil {
			return nil, p.abort(fmt.Errorf("create metrics file: %w", err))
		}
		p.files = append(p.files, f)
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(f))
		if err != nil {
			return nil, p.abort(fmt.Errorf("create json metric exporter: %w", err))
		}
		// The periodic reader exports once more on shutdown.
		mopts = append(mopts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	default:
		p.registry = prometheus.NewRegistry()
		exp, err := promexporter.New(promexporter.WithRegisterer(p.registry))
		if err != nil {
			return nil, p.abort(fmt.Errorf("create prometheus exporter: %w", err))
		}
		mopts = append(mopts, sdkmetric.WithReader(exp))
	}
	p.meterProvider = sdkmetric.NewMeterProvider(mopts...)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

func (p *Provider) abort(err error) error {
	for _, f := range p.files {
		_ = f.Close()
	}
	return err
}

// TracerProvider returns the trace provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// Shutdown writes the Prometheus textfile, flushes and stops both
// providers and closes output files. Later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		var errs []error
		if p.registry != nil {
			if err := prometheus.WriteToTextfile(p.metricsFile, p.registry); err != nil {
				errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
			}
		}
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
		for _, f := range p.files {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}
