// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates decodebench run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/FastStorageBench/services/bench/benchmark"
	"github.com/AleutianAI/FastStorageBench/services/bench/equivalence"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// EnvInfluxToken overrides Influx.Token so tokens stay out of config files.
const EnvInfluxToken = "DECODEBENCH_INFLUX_TOKEN"

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// configValidate is the validator instance for configuration structs.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("backend", validateBackend)
}

// validateBackend accepts any spelling native.ParseKind understands.
func validateBackend(fl validator.FieldLevel) bool {
	_, err := native.ParseKind(fl.Field().String())
	return err == nil
}

// Config is the complete configuration of one decodebench run.
//
// # Description
//
// Zero values are filled from DefaultConfig() when loading a file. CLI
// flags override file values only when set explicitly.
//
// # Validation
//
// Uses go-playground/validator struct tags plus the custom "backend" tag.
// Cross-field rules live in Validate.
type Config struct {
	// File is the container to benchmark.
	File string `yaml:"file" validate:"required"`

	// Backend is the measured backend.
	Backend BackendConfig `yaml:"backend"`

	// Reference is an optional second backend used for equivalence and
	// comparison.
	Reference BackendConfig `yaml:"reference"`

	Iterations           int           `yaml:"iterations" validate:"gt=0"`
	Warmup               int           `yaml:"warmup" validate:"gte=0"`
	Parallelism          int           `yaml:"parallelism" validate:"gte=1,lte=4096"`
	Timeout              time.Duration `yaml:"timeout" validate:"gte=0"`
	InitialBufferRecords int           `yaml:"initial_buffer_records" validate:"gte=0"`

	// Output is the report format.
	Output string `yaml:"output" validate:"oneof=text csv json"`

	Tolerance     equivalence.Tolerance `yaml:"tolerance"`
	MaxMismatches int                   `yaml:"max_mismatches" validate:"gte=0"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	Influx    InfluxConfig    `yaml:"influx"`
}

// BackendConfig selects a backend variant and its library.
type BackendConfig struct {
	// Kind is "zero-alloc" or "managed".
	Kind string `yaml:"kind" validate:"omitempty,backend"`

	// Library is a shared library path or "builtin". Empty falls back to
	// FASTSTORAGE_NATIVE_PATH.
	Library string `yaml:"library"`
}

// Enabled reports whether a backend kind was configured.
func (b BackendConfig) Enabled() bool {
	return strings.TrimSpace(b.Kind) != ""
}

// Descriptor converts the configuration into a native.Descriptor.
func (b BackendConfig) Descriptor() (native.Descriptor, error) {
	kind, err := native.ParseKind(b.Kind)
	if err != nil {
		return native.Descriptor{}, err
	}
	return native.Descriptor{Kind: kind, LibraryPath: b.Library}, nil
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig configures trace and metric export. Empty fields
// disable the corresponding exporter.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	TraceOut     string `yaml:"trace_out"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	MetricsFile  string `yaml:"metrics_file"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	// Dir is the badger directory. Empty disables history.
	Dir string `yaml:"dir"`

	// P50Threshold, P95Threshold and P99Threshold are allowed relative
	// latency increases against the previous run.
	P50Threshold float64 `yaml:"p50_threshold" validate:"gte=0"`
	P95Threshold float64 `yaml:"p95_threshold" validate:"gte=0"`
	P99Threshold float64 `yaml:"p99_threshold" validate:"gte=0"`
}

// InfluxConfig configures InfluxDB export. An empty URL disables it.
type InfluxConfig struct {
	URL         string `yaml:"url" validate:"omitempty,url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org" validate:"required_with=URL"`
	Bucket      string `yaml:"bucket" validate:"required_with=URL"`
	Measurement string `yaml:"measurement"`
}

// DefaultConfig returns the defaults used by decodebench.
func DefaultConfig() *Config {
	bc := benchmark.DefaultConfig()
	return &Config{
		Iterations:    bc.Iterations,
		Warmup:        bc.Warmup,
		Parallelism:   bc.Parallelism,
		Output:        "text",
		Tolerance:     equivalence.DefaultTolerance(),
		MaxMismatches: equivalence.DefaultMaxMismatches,
		Logging:       LoggingConfig{Level: "info"},
		Telemetry:     TelemetryConfig{ServiceName: "decodebench"},
		History: HistoryConfig{
			P50Threshold: 0.05,
			P95Threshold: 0.10,
			P99Threshold: 0.15,
		},
		Influx: InfluxConfig{Measurement: "decode_benchmark"},
	}
}

// Load reads a YAML configuration file on top of DefaultConfig().
//
// # Description
//
// Unknown keys are rejected. The Influx token may come from
// DECODEBENCH_INFLUX_TOKEN. The result is not validated, because CLI flags
// are usually applied afterwards; call Validate once they are.
//
// # Inputs
//
//   - path: YAML file. Empty returns the defaults.
//
// # Outputs
//
//   - *Config: Loaded configuration.
//   - error: Read or parse failure, wrapping ErrInvalid for parse errors.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	if tok := os.Getenv(EnvInfluxToken); tok != "" {
		cfg.Influx.Token = tok
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = describe(fe)
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !c.Backend.Enabled() {
		return fmt.Errorf("%w: backend kind is required", ErrInvalid)
	}
	if !c.Reference.Enabled() && c.Reference.Library != "" {
		return fmt.Errorf("%w: reference library set without reference backend", ErrInvalid)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_with":
		return field + " is required"
	case "backend":
		return fmt.Sprintf("%s: unknown backend %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
	}
}

// BenchmarkConfig converts the run settings into a benchmark.Config.
func (c *Config) BenchmarkConfig() *benchmark.Config {
	return &benchmark.Config{
		Iterations:           c.Iterations,
		Warmup:               c.Warmup,
		Parallelism:          c.Parallelism,
		Timeout:              c.Timeout,
		InitialBufferRecords: c.InitialBufferRecords,
	}
}

// EquivalenceOptions converts the tolerance settings.
func (c *Config) EquivalenceOptions() equivalence.Options {
	return equivalence.Options{Tolerance: c.Tolerance, MaxMismatches: c.MaxMismatches}
}
