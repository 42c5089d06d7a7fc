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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/services/bench/history"
)

func newHistoryCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored benchmark runs",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newHistoryListCmd(stdout))
	return cmd
}

func newHistoryListCmd(stdout io.Writer) *cobra.Command {
	var (
		dir    string
		file   string
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			switch output {
			case "text", "json":
			default:
				return usageErrorf("unknown --output %q (want text or json)", output)
			}

			store, err := history.Open(history.Config{Dir: dir})
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(file, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if output == "json" {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			printRuns(ux.NewPrinter(stdout), runs)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&dir, "history-dir", "", "history database directory (required)")
	fs.StringVar(&file, "file", "", "only runs of this container path")
	fs.IntVar(&limit, "limit", 20, "maximum runs to list, 0 for all")
	fs.StringVar(&output, "output", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("history-dir")
	return cmd
}

func printRuns(p *ux.Printer, runs []history.Run) {
	if len(runs) == 0 {
		p.Info("no runs recorded")
		return
	}
	p.Title(fmt.Sprintf("%d runs", len(runs)))
	for _, r := range runs {
		eq := "-"
		if r.Equivalent != nil {
			eq = fmt.Sprint(*r.Equivalent)
		}
		line := strings.Join([]string{
			r.Time.Local().Format(time.DateTime),
			r.Stats.Backend.String(),
			r.File,
			fmt.Sprintf("p50=%s p99=%s", r.Stats.P50, r.Stats.P99),
			fmt.Sprintf("ok=%d failed=%d", r.Stats.Samples, r.Stats.Failures),
			"equivalent=" + eq,
		}, "  ")
		if r.Regressions > 0 {
			p.Warning(fmt.Sprintf("%s  regressions=%d", line, r.Regressions))
			continue
		}
		p.Info(line)
	}
}
