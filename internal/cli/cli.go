package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alecthomas/kong"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	VersionFlag kong.VersionFlag `name:"version" help:"Show version information and exit."`

	Run      RunCmd      `cmd:"" help:"Build the graph, apply properties and print the result."`
	Edges    EdgesCmd    `cmd:"" help:"Build the graph and list its edges."`
	Watch    WatchCmd    `cmd:"" help:"Run the graph and reapply properties when the description changes."`
	Snapshot SnapshotCmd `cmd:"" help:"Save, restore or list stored property values."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

// Env is bound into every command's Run method.
type Env struct {
	Out io.Writer
}

// exitCode carries a kong exit request out of the parser.
type exitCode int

// Execute parses args and runs the selected command. Help and version output
// return nil; usage errors are reported as an ExitError with code 2.
func Execute(ctx context.Context, args []string, out io.Writer) (err error) {
	var c CLI
	parser, err := kong.New(&c,
		kong.Name("rfnoc"),
		kong.Description("Property propagation engine for RFNoC block graphs."),
		kong.Writers(out, out),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return fmt.Errorf("building command line parser: %w", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		code, ok := r.(exitCode)
		if !ok {
			panic(r)
		}
		if code != 0 {
			err = &ExitError{Code: int(code), Message: fmt.Sprintf("exited with code %d", code)}
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		var parseErr *kong.ParseError
		if errors.As(err, &parseErr) && parseErr.Context != nil {
			_ = parseErr.Context.PrintUsage(true)
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}

	return kctx.Run(&c.Globals, &Env{Out: out})
}
