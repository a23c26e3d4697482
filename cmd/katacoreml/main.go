// Command katacoreml converts KataGo network descriptions into Core ML
// model packages.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// version is set at link time.
var version = "dev"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run dispatches a subcommand. Output goes to outW, logs to errW.
func run(outW, errW io.Writer, args []string) error {
	if len(args) == 0 {
		usage(outW)
		return &ExitError{Code: 2}
	}

	switch args[0] {
	case "build":
		return runBuild(outW, errW, args[1:])
	case "inspect":
		return runInspect(outW, args[1:])
	case "template":
		return runTemplate(outW, errW, args[1:])
	case "version":
		fmt.Fprintf(outW, "katacoreml %s\n", version)
		return nil
	case "help", "-h", "-help", "--help":
		usage(outW)
		return nil
	default:
		usage(outW)
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", args[0])}
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `
katacoreml - KataGo network to Core ML package converter.

Usage:
  katacoreml build    [options] BUILD_FILE
  katacoreml inspect  [options] PACKAGE
  katacoreml template [options] BUILD_FILE
  katacoreml version

Run "katacoreml <command> -h" for command options.
`)
}
