// Package cli implements the eventload command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	elerrors "github.com/eventload/eventload/internal/errors"
)

// Options carries process-level inputs into the command tree.
type Options struct {
	// Now supplies the clock for default year/month and provenance stamps.
	Now func() time.Time
	// Version is reported by the version command.
	Version string
}

// root holds the global flags and the streams shared by every command.
type root struct {
	cmd    *cobra.Command
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	opts   Options

	configPath string
	debug      bool
	trace      bool
	cacheDir   string

	// verboseErrors is set once configuration resolves debug mode.
	verboseErrors bool
}

// NewRootCommand builds the eventload command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer, opts Options) *cobra.Command {
	return newRoot(stdin, stdout, stderr, opts).cmd
}

func newRoot(stdin io.Reader, stdout, stderr io.Writer, opts Options) *root {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	r := &root{stdin: stdin, stdout: stdout, stderr: stderr, opts: opts}
	rc := &cobra.Command{
		Use:   "eventload",
		Short: "Load monthly CSV event logs from object storage into a relational store.",
		Long: `eventload fetches {host}/{year}/{month}/{filename} event logs, optionally
aggregates duplicate rows into a count, and appends them to a SQLite or
PostgreSQL store. Every loaded file is recorded in the files table, so
running the same load twice appends nothing the second time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rc.PersistentFlags()
	flags.StringVarP(&r.configPath, "config", "c", "", "Configuration file to read from (YAML or JSON).")
	flags.BoolVar(&r.debug, "debug", false, "Enable debug logging and full error traces.")
	flags.BoolVar(&r.trace, "trace", false, "Export OpenTelemetry spans to stderr.")
	flags.StringVar(&r.cacheDir, "cache-dir", "", "Keep compressed copies of fetched files in this directory.")

	rc.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return elerrors.Wrap(elerrors.ErrCategoryValidation, elerrors.CodeInvalidConfig, "invalid arguments", err)
	})

	rc.AddCommand(r.newLoadCommand())
	rc.AddCommand(r.newDownloadCommand())
	rc.AddCommand(r.newCheckStoreCommand())
	rc.AddCommand(r.newFilesCommand())
	rc.AddCommand(r.newVersionCommand())

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	r.cmd = rc
	return r
}

// Execute runs the command line and returns the process exit status. Errors
// are printed to stderr on one line, or with their stack trace in debug mode.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, opts Options) int {
	r := newRoot(stdin, stdout, stderr, opts)
	r.cmd.SetArgs(args)

	err := r.cmd.ExecuteContext(ctx)
	if err == nil {
		return elerrors.ExitOK
	}
	if r.verboseErrors || r.debug {
		fmt.Fprintf(stderr, "Error: %+v\n", err)
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return elerrors.ExitCode(err)
}
