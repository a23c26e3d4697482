package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/katacoreml/coreml"
)

// ExitError carries a process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

// varsFlag collects repeated -var name=value flags.
type varsFlag []string

func (v *varsFlag) String() string {
	return strings.Join(*v, ",")
}

func (v *varsFlag) Set(s string) error {
	*v = append(*v, s)
	return nil
}

// logFlags are shared by commands that log.
type logFlags struct {
	level  string
	format string
}

func (l *logFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&l.level, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&l.format, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
}

func (l *logFlags) validate() error {
	l.format = strings.ToLower(l.format)
	if l.format != "text" && l.format != "json" {
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	l.level = strings.ToLower(l.level)
	switch l.level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
}

// parse runs fs over args. It reports help as done=true.
func parse(fs *flag.FlagSet, args []string) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return true, nil
		}
		return false, &ExitError{Code: 2, Message: err.Error()}
	}
	return false, nil
}

func newFlagSet(name, synopsis string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("katacoreml "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "\nUsage:\n  katacoreml %s %s\n\nOptions:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// exitCode maps pipeline errors onto process exit codes.
func exitCode(err error) int {
	switch {
	case isAny(err, coreml.ErrInvalidConfig):
		return 2
	case isAny(err, coreml.ErrUnsupportedVersion, coreml.ErrInconsistent):
		return 3
	case isAny(err, coreml.ErrPackageCollision):
		return 4
	default:
		return 1
	}
}
