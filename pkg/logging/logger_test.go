// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("trace")
	assert.ErrorContains(t, err, `unknown log level "trace"`)
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel())
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, Service: "decodebench", Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	logger.Slog().Debug("hidden")
	logger.Slog().Info("run started", "iterations", 10)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"run started\"")
	assert.Contains(t, out, "iterations=10")
	assert.Contains(t, out, "service=decodebench")
	assert.Empty(t, logger.Path())
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, JSON: true, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Debug("decoded", "records", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "decoded", entry["msg"])
	assert.EqualValues(t, 3, entry["records"])
	assert.NotContains(t, entry, "service")
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Quiet: true, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Error("nobody hears this")
	assert.Empty(t, buf.String())
}

func TestNew_LogDir(t *testing.T) {
	var console bytes.Buffer
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger, err := New(Config{Level: LevelWarn, LogDir: dir, Service: "bench", Output: &console})
	require.NoError(t, err)

	logger.Slog().Info("filtered")
	logger.Slog().Warn("slow iteration", "iteration", 7)
	require.NoError(t, logger.Close())

	path := logger.Path()
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "bench_"))
	assert.True(t, strings.HasSuffix(path, ".log"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "slow iteration", entry["msg"])
	assert.Equal(t, "bench", entry["service"])
	assert.Contains(t, console.String(), "slow iteration")
}

func TestNew_LogDirWithoutService(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)
	defer logger.Close()
	assert.True(t, strings.HasPrefix(filepath.Base(logger.Path()), "decodebench_"))
}

func TestNew_LogDirNotCreatable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := New(Config{LogDir: filepath.Join(blocker, "logs")})
	assert.ErrorContains(t, err, "create log directory")
}

func TestDefault(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Slog())
	assert.NoError(t, logger.Close())
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Output: &buf})
	require.NoError(t, err)

	logger.With("component", "benchmark").Info("hello")
	assert.Contains(t, buf.String(), "component=benchmark")
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLogger_ConcurrentUse(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := range 50 {
				logger.Slog().Info("sample", "worker", worker, "iteration", j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "\n"))
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler(t *testing.T) {
	var debug, errs bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	ctx := context.Background()

	assert.True(t, h.Enabled(ctx, slog.LevelDebug))

	logger := slog.New(h).With("run", "r1").WithGroup("stats")
	logger.Info("aggregate", "p99", 12)
	logger.Error("abort")

	assert.Contains(t, debug.String(), "run=r1")
	assert.Contains(t, debug.String(), "stats.p99=12")
	assert.Contains(t, debug.String(), "abort")
	assert.NotContains(t, errs.String(), "aggregate")
	assert.Contains(t, errs.String(), "abort")
}

func TestMultiHandler_NoneEnabled(t *testing.T) {
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log/bench", expandPath("/var/log/bench"))
	assert.Equal(t, "relative", expandPath("relative"))
}
