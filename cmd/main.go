// Package main is the command-line tool for the ad blocking filters: it checks
// URLs against filter lists, updates the subscriptions, and runs a filtering
// proxy.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	goFlags "github.com/jessevdk/go-flags"
)

// options are the console arguments.
type options struct {
	// Check is the "check" command.
	Check checkCommand `command:"check" description:"Classify URLs with the rules from filter list files."`

	// Update is the "update" command.
	Update updateCommand `command:"update" description:"Download the updates of the subscriptions."`

	// Add is the "add" command.
	Add addCommand `command:"add" description:"Subscribe to a filter list."`

	// Catalog is the "catalog" command.
	Catalog catalogCommand `command:"catalog" description:"Print the predefined subscriptions."`

	// Proxy is the "proxy" command.
	Proxy proxyCommand `command:"proxy" description:"Run the filtering MITM proxy."`

	// LogOutput is the path to the log file.
	LogOutput string `short:"o" long:"output" description:"Path to the log file. If not set, it writes to stderr." default:""`

	// DataDir is the directory with the subscriptions and the state.
	DataDir string `short:"d" long:"data-dir" description:"Directory with the subscriptions and the state. Overrides ADBLOCK_DATA_DIR."`

	// Verbose defines whether debug-level log should be written.
	Verbose bool `short:"v" long:"verbose" description:"Verbose output (optional)." optional:"yes" optional-value:"true"`
}

// newOptions returns the options with the commands bound to them.
func newOptions() (opts *options) {
	opts = &options{}
	opts.Check.opts = opts
	opts.Update.opts = opts
	opts.Add.opts = opts
	opts.Proxy.opts = opts

	return opts
}

func main() {
	opts := newOptions()
	parser := goFlags.NewParser(opts, goFlags.Default)

	_, err := parser.Parse()
	if err == nil {
		os.Exit(osutil.ExitCodeSuccess)
	}

	var flagsErr *goFlags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == goFlags.ErrHelp {
		os.Exit(osutil.ExitCodeSuccess)
	}

	os.Exit(osutil.ExitCodeFailure)
}

// setup reads and validates the environment and creates the base logger.
// closeLog must be called when the logger is no longer used.
func (opts *options) setup() (envs *environment, logger *slog.Logger, closeLog func() (err error), err error) {
	envs, err = parseEnvironment()
	if err != nil {
		return nil, nil, nil, err
	}

	if opts.DataDir != "" {
		envs.DataDir = opts.DataDir
	}

	err = envs.Validate()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("validating environment: %w", err)
	}

	var out io.Writer = os.Stderr
	closeLog = func() (err error) { return nil }
	if opts.LogOutput != "" {
		// #nosec G302 G304 -- The log file is set by the user and may be read
		// by other users.
		f, fErr := os.OpenFile(opts.LogOutput, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if fErr != nil {
			return nil, nil, nil, fmt.Errorf("opening log file: %w", fErr)
		}

		out, closeLog = f, f.Close
	}

	lvl := slog.LevelInfo
	if opts.Verbose {
		lvl = slog.LevelDebug
	}

	logger = slogutil.New(&slogutil.Config{
		Output: out,
		// Don't use [slogutil.NewFormat] here, because the value is validated.
		Format:       slogutil.Format(envs.LogFormat),
		AddTimestamp: bool(envs.LogTimestamp),
		Level:        lvl,
	})

	return envs, logger, closeLog, nil
}
