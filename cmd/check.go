package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/rules"
	"golang.org/x/sys/unix"
)

// checkCommand classifies the URLs given as the arguments.
type checkCommand struct {
	opts *options

	// Filters are the paths to the filter lists.
	Filters []string `short:"f" long:"filter" description:"Path to the filter list. Can be specified multiple times." required:"true"`

	// Referer is the hostname of the page making the requests.
	Referer string `short:"r" long:"referer" description:"Hostname of the page that makes the requests."`

	// Type is the name of the type of the requested resources.
	Type string `short:"t" long:"type" description:"Type of the requested resources, for example script or image." default:"other"`

	// CSS is the hostname to print the element hiding style sheet for.
	CSS string `long:"css" description:"Print the element hiding style sheet for the page with this hostname."`

	Args struct {
		URLs []string `positional-arg-name:"url"`
	} `positional-args:"yes"`
}

// Execute implements the [goFlags.Commander] interface for *checkCommand.
func (c *checkCommand) Execute(_ []string) (err error) {
	_, logger, closeLog, err := c.opts.setup()
	if err != nil {
		return err
	}
	defer func() { err = closeWithLog(err, closeLog) }()

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	requestType, err := rules.ParseRequestType(c.Type)
	if err != nil {
		return fmt.Errorf("type: %w", err)
	}

	idx, err := buildIndex(ctx, logger, c.Filters)
	if err != nil {
		return err
	}

	matcher := adblock.NewMatcher(&adblock.MatcherConfig{
		Logger: logger.With(slogutil.KeyPrefix, "matcher"),
	})
	matcher.SetIndex(ctx, idx)

	for _, u := range c.Args.URLs {
		fc := &adblock.FilterContext{
			URL:            u,
			DocumentDomain: c.Referer,
			ResourceType:   requestType,
		}

		res := matcher.ClassifyResult(ctx, fc)
		matcher.LogResult(ctx, fc, res)
		printResult(os.Stdout, u, res)
	}

	if c.CSS != "" {
		_, _ = io.WriteString(os.Stdout, matcher.ElementHidingCSS(c.CSS))
	}

	return nil
}

// buildIndex parses the filter list files at paths and builds the merged
// index of them.
func buildIndex(ctx context.Context, logger *slog.Logger, paths []string) (idx *adblock.Index, err error) {
	indexes := make([]*adblock.Index, 0, len(paths))
	for i, path := range paths {
		var list *filterlist.RuleList
		list, err = parseFile(i+1, path)
		if err != nil {
			return nil, err
		}

		logger.InfoContext(
			ctx,
			"parsed filter list",
			"path", path,
			"title", list.Metadata().Title,
			"rules", list.Len(),
			"parse_errors", list.ParseErrors(),
		)

		for _, parseErr := range list.Errors() {
			logger.DebugContext(ctx, "bad rule", "path", path, slogutil.KeyError, parseErr)
		}

		indexes = append(indexes, adblock.Build(list))
	}

	idx, err = adblock.Merge(indexes...)
	if err != nil {
		return nil, fmt.Errorf("merging indexes: %w", err)
	}

	return idx, nil
}

// parseFile parses the filter list file at path.
func parseFile(id int, path string) (list *filterlist.RuleList, err error) {
	// #nosec G304 -- The path is set by the user.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening filter list: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	list, err = filterlist.ParseReader(id, f, &filterlist.Config{})
	if err != nil {
		return nil, fmt.Errorf("parsing filter list %q: %w", path, err)
	}

	return list, nil
}

// printResult writes the result of the classification of rawURL to w.
func printResult(w io.Writer, rawURL string, res adblock.Result) {
	ruleText := "-"
	if res.ExceptionRule != nil {
		ruleText = res.ExceptionRule.Text()
	} else if res.BlockRule != nil {
		ruleText = res.BlockRule.Text()
	}

	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", res.Decision, rawURL, ruleText)
}
