// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// Format selects a reporter.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatCSV, FormatJSON}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Formats, f) {
		return "", fmt.Errorf("unknown output format %q (want text, csv or json)", s)
	}
	return f, nil
}

// Reporter renders a Report.
type Reporter interface {
	Report(r *Report) error
}

// New returns the reporter for format writing to w.
func New(format Format, w io.Writer) (Reporter, error) {
	switch format {
	case FormatText, "":
		return NewTextReporter(ux.NewPrinter(w)), nil
	case FormatCSV:
		return NewCSVReporter(w), nil
	case FormatJSON:
		return NewJSONReporter(w, true), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// -----------------------------------------------------------------------------
// Text
// -----------------------------------------------------------------------------

// TextReporter writes a human-readable report, styled on terminals.
type TextReporter struct {
	p *ux.Printer
}

// NewTextReporter creates a text reporter on p.
func NewTextReporter(p *ux.Printer) *TextReporter {
	return &TextReporter{p: p}
}

// Report implements Reporter.
func (t *TextReporter) Report(r *Report) error {
	p := t.p
	p.Title("Decode benchmark")
	p.KeyValues(
		"file", r.File.Path,
		"codec", r.File.Codec,
		"records", strconv.FormatUint(uint64(r.File.RecordCount), 10),
		"payload", fmt.Sprintf("%s compressed, %s raw (%.2fx)",
			humanize.IBytes(r.File.CompressedSize), humanize.IBytes(r.File.UncompressedSize), r.File.Ratio),
		"iterations", fmt.Sprintf("%d (+%d warmup)", r.Iterations, r.Warmup),
	)

	for _, s := range r.Backends {
		fmt.Fprintln(p.Writer())
		fmt.Fprintln(p.Writer(), p.Render(ux.Styles.Subtitle, fmt.Sprintf("%s (%s)", s.Backend, s.Library)))
		if s.Samples == 0 {
			p.Warning(fmt.Sprintf("no successful samples (%d failures, %d skipped)", s.Failures, s.Skipped))
			continue
		}
		p.KeyValues(
			"samples", fmt.Sprintf("%d ok, %d failed, %d skipped", s.Samples, s.Failures, s.Skipped),
			"mean", fmt.Sprintf("%s ± %s", formatDuration(s.Mean), formatDuration(s.StdDev)),
			"min/max", fmt.Sprintf("%s / %s", formatDuration(s.Min), formatDuration(s.Max)),
			"p50/p90", fmt.Sprintf("%s / %s", formatDuration(s.P50), formatDuration(s.P90)),
			"p95/p99", fmt.Sprintf("%s / %s", formatDuration(s.P95), formatDuration(s.P99)),
			"ci95", fmt.Sprintf("[%s, %s]", formatDuration(s.CILower), formatDuration(s.CIUpper)),
			"throughput", fmt.Sprintf("%.0f ops/s, %.0f records/s, %s/s",
				s.OpsPerSecond, s.RecordsPerSecond, humanize.IBytes(uint64(s.BytesPerSecond))),
		)
		if len(s.FaultCounts) > 0 {
			p.Warning("faults: " + formatFaults(s.FaultCounts))
		}
	}

	if c := r.Comparison; c != nil {
		fmt.Fprintln(p.Writer())
		verdict := "no significant difference"
		if c.Significant {
			verdict = fmt.Sprintf("%s is faster", c.Faster)
		}
		p.Info(fmt.Sprintf("%s vs %s: speedup %.2fx, p=%.4f, effect %s (d=%.2f), %s",
			c.Candidate, c.Reference, c.Speedup, c.PValue, c.EffectCategory, c.EffectSize, verdict))
	}

	if e := r.Equivalence; e != nil {
		fmt.Fprintln(p.Writer())
		if e.Equivalent {
			p.Success(fmt.Sprintf("outputs equivalent (%d records)", e.ReferenceRecords))
		} else {
			lines := make([]string, 0, len(e.Mismatches)+1)
			for _, m := range e.Mismatches[:min(len(e.Mismatches), 10)] {
				lines = append(lines, m.String())
			}
			if e.TotalMismatches > len(lines) {
				lines = append(lines, fmt.Sprintf("... %d more", e.TotalMismatches-len(lines)))
			}
			p.Error(fmt.Sprintf("outputs differ: %d mismatches", e.TotalMismatches))
			p.WarningBox("Mismatches", strings.Join(lines, "\n"))
		}
		if s := e.Summary; s != nil {
			book := fmt.Sprintf("%d bid / %d ask levels, %d trades", s.BidLevels, s.AskLevels, s.Trades)
			if s.Quote.HasBid && s.Quote.HasAsk {
				book += fmt.Sprintf(", best %.8g / %.8g", s.Quote.BestBid, s.Quote.BestAsk)
			}
			p.KeyValues("book", book)
		}
	}

	for _, f := range r.Regressions {
		p.Warning(fmt.Sprintf("%s %s: %s", f.Backend, f.Severity, f.Message))
	}
	return nil
}

// -----------------------------------------------------------------------------
// CSV
// -----------------------------------------------------------------------------

// csvHeader is the column order of CSVReporter.
var csvHeader = []string{
	"file", "codec", "backend", "library", "parallelism",
	"samples", "failures", "skipped",
	"mean_ns", "stddev_ns", "min_ns", "max_ns", "p50_ns", "p90_ns", "p95_ns", "p99_ns",
	"ops_per_second", "records_per_second", "bytes_per_second",
	"equivalent",
}

// CSVReporter writes one row per backend.
type CSVReporter struct {
	w io.Writer
}

// NewCSVReporter creates a CSV reporter.
func NewCSVReporter(w io.Writer) *CSVReporter {
	return &CSVReporter{w: w}
}

// Report implements Reporter.
func (c *CSVReporter) Report(r *Report) error {
	cw := csv.NewWriter(c.w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range r.Backends {
		row := []string{
			r.File.Path,
			r.File.Codec,
			s.Backend.String(),
			s.Library,
			strconv.Itoa(s.Parallelism),
			strconv.Itoa(s.Samples),
			strconv.Itoa(s.Failures),
			strconv.Itoa(s.Skipped),
			nanos(s.Mean), nanos(s.StdDev), nanos(s.Min), nanos(s.Max),
			nanos(s.P50), nanos(s.P90), nanos(s.P95), nanos(s.P99),
			strconv.FormatFloat(s.OpsPerSecond, 'f', 2, 64),
			strconv.FormatFloat(s.RecordsPerSecond, 'f', 2, 64),
			strconv.FormatFloat(s.BytesPerSecond, 'f', 2, 64),
			strconv.FormatBool(r.Equivalent()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// -----------------------------------------------------------------------------
// JSON
// -----------------------------------------------------------------------------

// JSONReporter writes the Report as one JSON document.
type JSONReporter struct {
	w      io.Writer
	indent bool
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(w io.Writer, indent bool) *JSONReporter {
	return &JSONReporter{w: w, indent: indent}
}

// Report implements Reporter.
func (j *JSONReporter) Report(r *Report) error {
	enc := json.NewEncoder(j.w)
	if j.indent {
		enc.SetIndent("", "  ")
	}
	doc := struct {
		*Report
		Equivalent bool `json:"equivalent"`
	}{Report: r, Equivalent: r.Equivalent()}
	return enc.Encode(doc)
}

// -----------------------------------------------------------------------------
// Formatting helpers
// -----------------------------------------------------------------------------

func nanos(d time.Duration) string {
	return strconv.FormatInt(d.Nanoseconds(), 10)
}

// formatDuration prints d with a unit suited to its magnitude.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatFaults(counts map[native.FaultKind]int) string {
	kinds := make([]native.FaultKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}
