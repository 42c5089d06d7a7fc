// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		assert.Contains(t, icon.Render(), string(icon))
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f), "regular files are not terminals")
}

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	assert.False(t, p.Styled())
}

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("Decode benchmark")
	p.Success("outputs equivalent")
	p.Warning("3 iterations skipped")
	p.Error("warmup failed")
	p.Info("file: ticks.bin.lz4")

	assert.Equal(t, strings.Join([]string{
		"== Decode benchmark ==",
		"OK: outputs equivalent",
		"WARN: 3 iterations skipped",
		"ERROR: warmup failed",
		"file: ticks.bin.lz4",
		"",
	}, "\n"), buf.String())
}

func TestPrinter_KeyValuesAligned(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.KeyValues("mean", "1.2ms", "p99", "3.4ms", "failures", "0")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "  mean:     1.2ms", lines[0])
	assert.Equal(t, "  p99:      3.4ms", lines[1])
	assert.Equal(t, "  failures: 0", lines[2])
}

func TestPrinter_KeyValuesIgnoresDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).KeyValues("a", "1", "b")
	assert.Equal(t, "  a: 1\n", buf.String())
}

func TestPrinter_RenderPlainIsIdentity(t *testing.T) {
	p := NewPlainPrinter(&bytes.Buffer{})
	assert.Equal(t, "text", p.Render(Styles.Error, "text"))
}

func TestPrinter_Boxes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Box("Summary", "all good")
	p.WarningBox("Regression", "p99 +20%")

	assert.Equal(t, "Summary:\nall good\nWARN Regression:\np99 +20%\n", buf.String())
}

func TestPrinter_StyledContainsText(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf, styled: true}

	p.Success("done")
	p.Box("Title", "body")

	out := buf.String()
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body")
}
