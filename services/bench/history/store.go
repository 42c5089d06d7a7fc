// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps summaries of past benchmark runs in BadgerDB and
// flags latency regressions against the previous run.
//
// Keys are ordered so one file and backend form a contiguous range sorted
// by time:
//
//	run \x00 <file> \x00 <backend> \x00 <unix nanos, 20 digits> \x00 <uuid>
//
// Values are JSON encoded Run records.
package history

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/FastStorageBench/services/bench/native"
	"github.com/AleutianAI/FastStorageBench/services/bench/report"
)

// ErrNoBaseline is returned when no earlier run exists.
var ErrNoBaseline = errors.New("no baseline run")

const sep = "\x00"

// Run is the stored summary of one backend in one benchmark run.
type Run struct {
	ID          string       `json:"id"`
	Time        time.Time    `json:"time"`
	File        string       `json:"file"`
	Codec       string       `json:"codec"`
	Iterations  int          `json:"iterations"`
	Warmup      int          `json:"warmup"`
	Equivalent  *bool        `json:"equivalent,omitempty"`
	Stats       report.Stats `json:"stats"`
	Regressions int          `json:"regressions"`
}

// RunsFromReport returns one Run per backend in rep, sharing rep's id and
// timestamp.
func RunsFromReport(rep *report.Report) []Run {
	runs := make([]Run, 0, len(rep.Backends))
	for _, st := range rep.Backends {
		run := Run{
			ID:         rep.RunID,
			Time:       rep.GeneratedAt,
			File:       rep.File.Path,
			Codec:      rep.File.Codec,
			Iterations: rep.Iterations,
			Warmup:     rep.Warmup,
			Stats:      st,
		}
		if rep.Equivalence != nil {
			eq := rep.Equivalence.Equivalent
			run.Equivalent = &eq
		}
		runs = append(runs, run)
	}
	return runs
}

// Config configures the store.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Store persists run summaries.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates a store.
//
// # Outputs
//
//   - *Store: The opened store. Caller must Close it.
//   - error: Dir is empty or the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("history directory is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func seriesPrefix(file string, backend native.Kind) []byte {
	return []byte("run" + sep + file + sep + backend.String() + sep)
}

func timeKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func runKey(r *Run) []byte {
	return append(seriesPrefix(r.File, r.Stats.Backend), timeKey(r.Time)+sep+r.ID...)
}

// Save stores r, assigning an id and timestamp when they are unset.
func (s *Store) Save(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(r), data)
	}); err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// Baseline returns the latest run of file and backend strictly before t.
// It returns ErrNoBaseline when there is none.
func (s *Store) Baseline(file string, backend native.Kind, before time.Time) (*Run, error) {
	prefix := seriesPrefix(file, backend)
	seek := append(slices.Clone(prefix), timeKey(before)...)

	var run *Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return ErrNoBaseline
		}
		return it.Item().Value(func(v []byte) error {
			run = &Run{}
			return json.Unmarshal(v, run)
		})
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns stored runs newest first. A non-empty file restricts the
// result to that file. A positive limit caps the number of runs.
func (s *Store) List(file string, limit int) ([]Run, error) {
	prefix := []byte("run" + sep)
	if file != "" {
		prefix = append(prefix, file+sep...)
	}

	var runs []Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r Run
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			}); err != nil {
				return fmt.Errorf("decode %q: %w", it.Item().Key(), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(runs, func(a, b Run) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.Stats.Backend, b.Stats.Backend)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Record compares every backend of rep against its baseline, stores the
// runs and returns the findings. Missing baselines are not findings.
func (s *Store) Record(rep *report.Report, d *Detector) ([]report.Finding, error) {
	var findings []report.Finding
	for _, run := range RunsFromReport(rep) {
		base, err := s.Baseline(run.File, run.Stats.Backend, run.Time)
		switch {
		case errors.Is(err, ErrNoBaseline):
		case err != nil:
			return findings, fmt.Errorf("load baseline: %w", err)
		default:
			found := d.Detect(base.Stats, run.Stats)
			run.Regressions = len(found)
			findings = append(findings, found...)
		}
		if err := s.Save(&run); err != nil {
			return findings, err
		}
	}
	return findings, nil
}
