package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quiterss/adblock/subscription"
	"golang.org/x/sys/unix"
)

// updateCommand downloads the updates of all enabled subscriptions.
type updateCommand struct {
	opts *options
}

// Execute implements the [goFlags.Commander] interface for *updateCommand.
func (c *updateCommand) Execute(_ []string) (err error) {
	envs, logger, closeLog, err := c.opts.setup()
	if err != nil {
		return err
	}
	defer func() { err = closeWithLog(err, closeLog) }()

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	f, err := newFiltering(logger, envs, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	err = f.manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.manager.Shutdown(context.WithoutCancel(ctx))) }()

	err = f.manager.UpdateAll(ctx)
	printStatuses(logger, f.manager)

	return err
}

// addCommand subscribes to a filter list and downloads it.
type addCommand struct {
	opts *options

	// Title is the title of the subscription.
	Title string `long:"title" description:"Title of the subscription. If not set, the hostname of the URL is used."`

	Args struct {
		URL string `positional-arg-name:"url" required:"yes"`
	} `positional-args:"yes"`
}

// Execute implements the [goFlags.Commander] interface for *addCommand.
func (c *addCommand) Execute(_ []string) (err error) {
	envs, logger, closeLog, err := c.opts.setup()
	if err != nil {
		return err
	}
	defer func() { err = closeWithLog(err, closeLog) }()

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	f, err := newFiltering(logger, envs, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	err = f.manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}

	_, err = f.manager.Add(ctx, c.Args.URL, c.Title)

	// Shutdown waits for the download of the new subscription.
	err = errors.WithDeferred(err, f.manager.Shutdown(context.WithoutCancel(ctx)))
	printStatuses(logger, f.manager)

	return err
}

// catalogCommand prints the predefined subscriptions.
type catalogCommand struct{}

// Execute implements the [goFlags.Commander] interface for *catalogCommand.
func (c *catalogCommand) Execute(_ []string) (err error) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range subscription.Catalog() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Title, e.Language, e.URL)
	}

	return w.Flush()
}
