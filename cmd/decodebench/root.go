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
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/FastStorageBench/services/bench/config"
)

// runFlags holds the root command flags. Values only override the config
// file when the flag was set explicitly.
type runFlags struct {
	configPath string

	file             string
	library          string
	backend          string
	referenceLibrary string
	referenceBackend string

	iterations  int
	warmup      int
	parallelism int
	timeout     time.Duration
	output      string

	toleranceAbs float64
	toleranceRel float64

	logLevel string
	logDir   string
	logJSON  bool

	traceOut     string
	otlpEndpoint string
	metricsFile  string

	historyDir string

	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	defaults := config.DefaultConfig()
	f := &runFlags{}

	root := &cobra.Command{
		Use:   "decodebench",
		Short: "Benchmark native decoders of *.bin.lz4 market data containers",
		Long: `decodebench times repeated decodes of one container through a native
decode library, reports latency statistics and, with a reference backend,
checks that both backends decode identical records.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return runBenchmark(cmd.Context(), cfg, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	fs := root.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.file, "file", "", "container file to decode (required)")
	fs.StringVar(&f.library, "library", "", "native library path or \"builtin\" (default $FASTSTORAGE_NATIVE_PATH)")
	fs.StringVar(&f.backend, "backend", "", "adapter variant: zero-alloc or managed (required)")
	fs.StringVar(&f.referenceLibrary, "reference-library", "", "library of the reference backend")
	fs.StringVar(&f.referenceBackend, "reference-backend", "", "reference backend for equivalence and comparison")
	fs.IntVar(&f.iterations, "iterations", defaults.Iterations, "measured decode calls")
	fs.IntVar(&f.warmup, "warmup", defaults.Warmup, "unmeasured warmup calls")
	fs.IntVar(&f.parallelism, "parallelism", defaults.Parallelism, "concurrent decode workers")
	fs.DurationVar(&f.timeout, "timeout", 0, "wall-clock budget for warmup and measurement, 0 for none")
	fs.StringVar(&f.output, "output", defaults.Output, "report format: text, csv or json")
	fs.Float64Var(&f.toleranceAbs, "tolerance-abs", defaults.Tolerance.Abs, "absolute tolerance for price and quantity")
	fs.Float64Var(&f.toleranceRel, "tolerance-rel", defaults.Tolerance.Rel, "relative tolerance for price and quantity")
	fs.StringVar(&f.logLevel, "log-level", defaults.Logging.Level, "log level: debug, info, warn or error")
	fs.StringVar(&f.logDir, "log-dir", "", "directory for JSON log files")
	fs.BoolVar(&f.logJSON, "log-json", false, "log to stderr as JSON")
	fs.StringVar(&f.traceOut, "trace-out", "", "write spans to this file")
	fs.StringVar(&f.otlpEndpoint, "otlp-endpoint", "", "send spans to this OTLP gRPC host:port")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write metrics on exit (.prom textfile or .json)")
	fs.StringVar(&f.historyDir, "history-dir", "", "BadgerDB directory for run history and regression checks")
	fs.StringVar(&f.influxURL, "influx-url", "", "InfluxDB v2 URL for exporting results")
	fs.StringVar(&f.influxToken, "influx-token", "", "InfluxDB token (default $"+config.EnvInfluxToken+")")
	fs.StringVar(&f.influxOrg, "influx-org", "", "InfluxDB organization")
	fs.StringVar(&f.influxBucket, "influx-bucket", "", "InfluxDB bucket")

	root.AddCommand(newInspectCmd(stdout), newGenerateCmd(stdout), newHistoryCmd(stdout))
	return root
}

// resolve loads the config file and applies explicitly set flags.
func (f *runFlags) resolve(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, &UsageError{Err: err}
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("file", func() { cfg.File = f.file })
	set("library", func() { cfg.Backend.Library = f.library })
	set("backend", func() { cfg.Backend.Kind = f.backend })
	set("reference-library", func() { cfg.Reference.Library = f.referenceLibrary })
	set("reference-backend", func() { cfg.Reference.Kind = f.referenceBackend })
	set("iterations", func() { cfg.Iterations = f.iterations })
	set("warmup", func() { cfg.Warmup = f.warmup })
	set("parallelism", func() { cfg.Parallelism = f.parallelism })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("output", func() { cfg.Output = f.output })
	set("tolerance-abs", func() { cfg.Tolerance.Abs = f.toleranceAbs })
	set("tolerance-rel", func() { cfg.Tolerance.Rel = f.toleranceRel })
	set("log-level", func() { cfg.Logging.Level = f.logLevel })
	set("log-dir", func() { cfg.Logging.Dir = f.logDir })
	set("log-json", func() { cfg.Logging.JSON = f.logJSON })
	set("trace-out", func() { cfg.Telemetry.TraceOut = f.traceOut })
	set("otlp-endpoint", func() { cfg.Telemetry.OTLPEndpoint = f.otlpEndpoint })
	set("metrics-file", func() { cfg.Telemetry.MetricsFile = f.metricsFile })
	set("history-dir", func() { cfg.History.Dir = f.historyDir })
	set("influx-url", func() { cfg.Influx.URL = f.influxURL })
	set("influx-token", func() { cfg.Influx.Token = f.influxToken })
	set("influx-org", func() { cfg.Influx.Org = f.influxOrg })
	set("influx-bucket", func() { cfg.Influx.Bucket = f.influxBucket })

	// A reference library alone means "same variant, other library".
	if cfg.Reference.Library != "" && !cfg.Reference.Enabled() {
		cfg.Reference.Kind = cfg.Backend.Kind
	}

	if err := cfg.Validate(); err != nil {
		return nil, &UsageError{Err: err}
	}
	return cfg, nil
}
