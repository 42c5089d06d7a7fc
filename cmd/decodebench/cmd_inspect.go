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
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/services/bench/container"
)

func newInspectCmd(stdout io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Validate a container and print its header and payload statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runInspect(args[0], asJSON, stdout)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func runInspect(path string, asJSON bool, stdout io.Writer) error {
	f, err := container.ReadFile(path)
	if err != nil {
		return err
	}
	in, err := f.Inspect()
	if err != nil {
		return &container.FormatError{Path: path, Field: "payload", Reason: err.Error()}
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(in); err != nil {
			return fmt.Errorf("write inspection: %w", err)
		}
	} else {
		p := ux.NewPrinter(stdout)
		h := in.Header
		p.Title("Container " + path)
		p.KeyValues(
			"version", strconv.Itoa(int(h.Version)),
			"codec", h.Codec.String(),
			"records", strconv.FormatUint(uint64(h.RecordCount), 10),
			"compressed", strconv.FormatUint(h.CompressedSize, 10)+" bytes",
			"uncompressed", strconv.FormatUint(h.UncompressedSize, 10)+" bytes",
			"ratio", fmt.Sprintf("%.3f", in.Ratio),
			"checksum", fmt.Sprintf("%08x", h.Checksum),
			"messages", strconv.Itoa(in.Stats.Messages),
		)
		for _, problem := range in.Problems {
			p.Warning(problem)
		}
		if len(in.Problems) == 0 {
			p.Success("payload matches header")
		}
	}

	if len(in.Problems) > 0 {
		return &container.FormatError{Path: path, Field: "payload", Reason: in.Problems[0]}
	}
	return nil
}
