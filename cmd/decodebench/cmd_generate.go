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
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
	"github.com/AleutianAI/FastStorageBench/pkg/validation"
	"github.com/AleutianAI/FastStorageBench/services/bench/container"
	"github.com/AleutianAI/FastStorageBench/services/bench/marketdata"
)

type generateFlags struct {
	out         string
	records     int
	seed        uint64
	codec       string
	symbols     []string
	candleEvery int
}

func newGenerateCmd(stdout io.Writer) *cobra.Command {
	defaults := marketdata.DefaultGenerateOptions()
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a deterministic synthetic container",
		Long: `generate writes a container of synthetic depth and tick messages.
The same seed, record count, codec and symbol list always produce the same
file. Symbols are numbered from 1 in the order given.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runGenerate(f, stdout)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.out, "out", "", "output path (required)")
	fs.IntVar(&f.records, "records", defaults.Records, "depth and tick messages to write")
	fs.Uint64Var(&f.seed, "seed", defaults.Seed, "random seed")
	fs.StringVar(&f.codec, "codec", marketdata.CodecLZ4Block.String(), "payload codec: none, lz4-block, lz4-frame or zstd")
	fs.StringSliceVar(&f.symbols, "symbols", []string{"BTC-USD", "ETH-USD", "ES.H25", "EUR/USD"}, "instrument symbols")
	fs.IntVar(&f.candleEvery, "candle-every", defaults.CandleEvery, "insert a candle pair every n messages, 0 for none")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runGenerate(f *generateFlags, stdout io.Writer) error {
	if f.records < 0 {
		return usageErrorf("--records must not be negative")
	}
	codec, err := marketdata.ParseCodec(f.codec)
	if err != nil {
		return &UsageError{Err: err}
	}
	symbols, err := validation.SanitizeSymbols(f.symbols)
	if err != nil {
		return &UsageError{Err: err}
	}
	if len(symbols) == 0 {
		return usageErrorf("at least one symbol is required")
	}

	opts := marketdata.DefaultGenerateOptions()
	opts.Seed = f.seed
	opts.Records = f.records
	opts.Symbols = len(symbols)
	opts.CandleEvery = f.candleEvery

	payload, _, err := marketdata.Generate(opts)
	if err != nil {
		return &UsageError{Err: err}
	}
	h, err := container.WriteFile(f.out, payload, codec)
	if err != nil {
		return err
	}

	p := ux.NewPrinter(stdout)
	p.Success("wrote " + f.out)
	p.KeyValues(
		"codec", h.Codec.String(),
		"records", strconv.FormatUint(uint64(h.RecordCount), 10),
		"compressed", strconv.FormatUint(h.CompressedSize, 10)+" bytes",
		"uncompressed", strconv.FormatUint(h.UncompressedSize, 10)+" bytes",
	)
	pairs := make([]string, 0, 2*len(symbols))
	for i, s := range symbols {
		pairs = append(pairs, fmt.Sprintf("symbol %d", i+1), s)
	}
	p.KeyValues(pairs...)
	return nil
}
