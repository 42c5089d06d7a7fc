// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command decodebench measures native decoders of *.bin.lz4 market data
// containers and cross-checks their output.
//
// Exit codes:
//
//	0  success
//	1  usage or configuration error
//	2  native library failed to load
//	3  container format or validation error
//	4  decode failure during warmup or an unrecoverable decode failure
//	5  backends decoded different records
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/FastStorageBench/pkg/ux"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitOK
	}
	cmdErr := WrapCommandError(err, cmd.CommandPath())
	ux.NewPrinter(stderr).Error(cmdErr.Wrapped.Error())
	return cmdErr.ExitCode
}
