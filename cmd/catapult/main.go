// Package main provides the catapult CLI entrypoint.
//
// catapult uploads archives to a LANraragi server: single files, whole
// directories, or downloader libraries with database-backed metadata.
//
// Usage:
//
//	catapult <command> [subcommand] [options]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/cli/cmd"
	"github.com/okdomo/catapult/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:           "catapult",
		Usage:          "LANraragi bulk upload client",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CheckCommand(),
			cmd.ValidateCommand(),
			cmd.UploadCommand(),
			cmd.BatchCommand(),
			cmd.CacheCommand(),
			cmd.ReportCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler already handled cli.ExitCoder errors; this branch
		// covers unexpected errors that were not wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
