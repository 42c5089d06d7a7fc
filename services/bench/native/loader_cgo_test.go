// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build cgo && (linux || darwin || freebsd)

package native_test

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
	"github.com/AleutianAI/FastStorageBench/services/bench/native"
)

// buildFixture compiles testdata/fixture.c into a shared library.
func buildFixture(t *testing.T, defines ...string) string {
	t.Helper()
	cc := strings.Fields(os.Getenv("CC"))
	if len(cc) == 0 {
		cc = []string{"cc"}
	}
	if _, err := exec.LookPath(cc[0]); err != nil {
		t.Skipf("no C compiler: %v", err)
	}

	lib := filepath.Join(t.TempDir(), "libfsbfixture.so")
	args := append(cc[1:], "-shared", "-fPIC", "-o", lib)
	args = append(args, defines...)
	args = append(args, filepath.Join("testdata", "fixture.c"))
	out, err := exec.Command(cc[0], args...).CombinedOutput()
	require.NoError(t, err, "compile fixture: %s", out)
	return lib
}

// fixtureEnv points the fixture at the builtin decode of f and returns the
// call log path and the expected record image.
func fixtureEnv(t *testing.T, f *container.File) (string, []byte) {
	t.Helper()
	ref := newBackend(t, native.ZeroAlloc, native.NewBuiltin(native.ZeroAlloc))
	s := ref.NewSession(f, 0)
	_, err := ref.DecodeInto(f, s)
	require.NoError(t, err)
	want := bytes.Clone(s.Output())

	dir := t.TempDir()
	records := filepath.Join(dir, "records.bin")
	require.NoError(t, os.WriteFile(records, want, 0o644))
	logPath := filepath.Join(dir, "calls.log")

	t.Setenv("FSB_FIXTURE_RECORDS", records)
	t.Setenv("FSB_FIXTURE_LOG", logPath)
	t.Setenv("FSB_FIXTURE_MODE", "")
	return logPath, want
}

func fixtureCalls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(strings.ReplaceAll(string(data), " ", "_"))
}

func countCalls(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func loadFixture(t *testing.T, kind native.Kind, lib string) *native.Backend {
	t.Helper()
	b, err := native.Load(native.Descriptor{Kind: kind, LibraryPath: lib})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func payloadSum(p []byte) uint32 {
	var sum uint32
	for _, c := range p {
		sum += uint32(c)
	}
	return sum
}

func TestDynamicLibrary_MatchesBuiltin(t *testing.T) {
	lib := buildFixture(t)
	f := testFile(t, 500, marketdata.CodecLZ4Block)
	h := f.Header

	for _, kind := range []native.Kind{native.ZeroAlloc, native.Managed} {
		t.Run(kind.String(), func(t *testing.T) {
			logPath, want := fixtureEnv(t, f)
			b := loadFixture(t, kind, lib)
			assert.False(t, b.ThreadSafe())

			s := b.NewSession(f, 0)
			n, err := b.DecodeInto(f, s)
			require.NoError(t, err)
			assert.Equal(t, 500, n)
			assert.Equal(t, want, s.Output(), "records match the builtin decode")

			got, err := s.Records()
			require.NoError(t, err)
			ref := newBackend(t, kind, native.NewBuiltin(kind))
			expected, err := ref.Decode(f, ref.NewSession(f, 0))
			require.NoError(t, err)
			assert.Equal(t, expected, got)

			require.NoError(t, b.Close())

			args := fmt.Sprintf("src_len=%d_src_sum=%d_codec=%d_uncompressed=%d",
				len(f.Payload), payloadSum(f.Payload), uint8(h.Codec), h.UncompressedSize)
			calls := fixtureCalls(t, logPath)
			require.NotEmpty(t, calls)
			assert.Equal(t, "open", calls[0])
			assert.Equal(t, "close", calls[len(calls)-1])
			if kind == native.ZeroAlloc {
				assert.Contains(t, calls, fmt.Sprintf("decode_into_%s_cap=%d", args, 500))
			} else {
				assert.Contains(t, calls, "decode_alloc_"+args)
				assert.Equal(t, 1, countCalls(calls, "alloc"))
				assert.Equal(t, 1, countCalls(calls, "free"))
			}
		})
	}
}

func TestDynamicLibrary_ForkOpensOwnHandle(t *testing.T) {
	lib := buildFixture(t)
	f := testFile(t, 50, marketdata.CodecNone)
	logPath, want := fixtureEnv(t, f)

	b := loadFixture(t, native.ZeroAlloc, lib)
	fork, err := b.Fork()
	require.NoError(t, err)

	s := fork.NewSession(f, 0)
	_, err = fork.DecodeInto(f, s)
	require.NoError(t, err)
	assert.Equal(t, want, s.Output())

	require.NoError(t, fork.Close())
	require.NoError(t, b.Close())

	calls := fixtureCalls(t, logPath)
	assert.Equal(t, 2, countCalls(calls, "open"))
	assert.Equal(t, 2, countCalls(calls, "close"))
}

func TestDynamicLibrary_CorruptedStatus(t *testing.T) {
	lib := buildFixture(t)
	f := testFile(t, 20, marketdata.CodecZstd)

	for _, kind := range []native.Kind{native.ZeroAlloc, native.Managed} {
		t.Run(kind.String(), func(t *testing.T) {
			logPath, want := fixtureEnv(t, f)
			b := loadFixture(t, kind, lib)
			s := b.NewSession(f, 0)

			t.Setenv("FSB_FIXTURE_MODE", "corrupt")
			_, err := b.DecodeInto(f, s)
			var fault *native.NativeDecodeFault
			require.ErrorAs(t, err, &fault)
			assert.Equal(t, native.FaultCorrupted, fault.Kind())
			assert.Equal(t, native.StatusCorrupted, fault.Status)
			assert.ErrorIs(t, err, marketdata.ErrCorrupted)
			assert.False(t, native.IsFatal(err))
			if kind == native.Managed {
				assert.Equal(t, int32(7), fault.FaultCode)
				calls := fixtureCalls(t, logPath)
				assert.Equal(t, 1, countCalls(calls, "alloc"))
				assert.Equal(t, 1, countCalls(calls, "free"), "allocation returned on error")
			}

			// The handle stays usable.
			t.Setenv("FSB_FIXTURE_MODE", "")
			_, err = b.DecodeInto(f, s)
			require.NoError(t, err)
			assert.Equal(t, want, s.Output())
		})
	}
}

func TestDynamicLibrary_BufferGrowth(t *testing.T) {
	lib := buildFixture(t)
	f := testFile(t, 12, marketdata.CodecLZ4Frame)
	logPath, want := fixtureEnv(t, f)
	b := loadFixture(t, native.ZeroAlloc, lib)

	s := b.NewSession(f, 1)
	n, err := b.DecodeInto(f, s)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, 4, s.Retries())
	assert.Equal(t, 16, s.Capacity())
	assert.Equal(t, want, s.Output())

	var caps []string
	for _, c := range fixtureCalls(t, logPath) {
		if i := strings.LastIndex(c, "_cap="); i >= 0 {
			caps = append(caps, c[i+len("_cap="):])
		}
	}
	assert.Equal(t, []string{"1", "2", "4", "8", "16"}, caps)
}

func TestDynamicLibrary_BufferTooSmall(t *testing.T) {
	lib := buildFixture(t)
	f := testFile(t, 12, marketdata.CodecNone)
	logPath, _ := fixtureEnv(t, f)
	b := loadFixture(t, native.ZeroAlloc, lib)

	t.Setenv("FSB_FIXTURE_MODE", "small")
	_, err := b.DecodeInto(f, b.NewSession(f, 0))
	var bts *native.BufferTooSmallError
	require.ErrorAs(t, err, &bts)
	assert.Equal(t, native.MaxBufferRetries, bts.Retries)
	assert.True(t, native.IsFatal(err))
	assert.Equal(t, native.MaxBufferRetries+1, countCalls(fixtureCalls(t, logPath), "decode_into"))
}

func TestDynamicLibrary_MissingSymbol(t *testing.T) {
	lib := buildFixture(t, "-DFIXTURE_NO_FREE")
	f := testFile(t, 10, marketdata.CodecNone)
	fixtureEnv(t, f)

	_, err := native.Load(native.Descriptor{Kind: native.Managed, LibraryPath: lib})
	var le *native.LibraryLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "symbol", le.Stage)
	assert.Contains(t, err.Error(), "fsb_free")

	// Zero-alloc does not need fsb_free.
	b := loadFixture(t, native.ZeroAlloc, lib)
	_, err = b.DecodeInto(f, b.NewSession(f, 0))
	assert.NoError(t, err)
}

func TestDynamicLibrary_OpenFailure(t *testing.T) {
	lib := buildFixture(t)
	t.Setenv("FSB_FIXTURE_RECORDS", filepath.Join(t.TempDir(), "missing.bin"))

	_, err := native.Load(native.Descriptor{Kind: native.ZeroAlloc, LibraryPath: lib})
	var le *native.LibraryLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "open", le.Stage)
	assert.Contains(t, err.Error(), "status -1")
}
