// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the decodebench CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - headings
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes status lines to w. Styled printers use colors and icons;
// plain printers emit prefixed lines suitable for scripts.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter returns a Printer that styles output only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styled: IsTerminal(w)}
}

// NewPlainPrinter returns a Printer that never styles output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Styled reports whether the printer emits styled output.
func (p *Printer) Styled() bool {
	return p.styled
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Render applies style to text when the printer is styled.
func (p *Printer) Render(style lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return style.Render(text)
}

// Title prints a styled title
func (p *Printer) Title(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "== %s ==\n", text)
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if !p.styled {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// KeyValues prints aligned key/value rows. Pairs are key, value, key, ...
func (p *Printer) KeyValues(pairs ...string) {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i] + ":" + strings.Repeat(" ", width-len(pairs[i]))
		fmt.Fprintf(p.w, "  %s %s\n", p.Render(Styles.Muted, key), pairs[i+1])
	}
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	if !p.styled {
		fmt.Fprintf(p.w, "%s:\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints text in a warning-styled box
func (p *Printer) WarningBox(title, content string) {
	if !p.styled {
		fmt.Fprintf(p.w, "WARN %s:\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.WarningBox.Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}
