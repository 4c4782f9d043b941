// Command marl prints a current Deezer ARL scraped from a public, community
// maintained document, caching the extracted tokens between runs.
//
// Logging:
//   - The base logger is built once in PersistentPreRunE, after flags are parsed
//   - Output goes to stderr; stdout carries only command output
//   - Components scope the logger with their own "component" attribute
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"marl/internal/cache"
	"marl/internal/extract"
	"marl/internal/fetch"
	"marl/internal/home"
	"marl/internal/logging"
	"marl/internal/session"

	"github.com/spf13/cobra"
)

var version = "dev"

// app carries the parsed persistent flags and the per-invocation state
// shared by every subcommand.
type app struct {
	// now is fixed at process start for every expiry comparison in this run.
	now    time.Time
	logger *slog.Logger

	homeFlag string
	url      string
	region   string
	logLevel string
	debug    []string
	timeout  time.Duration

	boundaryLimit int
}

func main() {
	a := &app{now: time.Now(), logger: logging.Discard()}

	rootCmd := &cobra.Command{
		Use:           "marl",
		Short:         "Deezer ARL manager",
		Long:          "Print a current Deezer ARL, optionally for a specific region. Tokens are scraped from a public document and cached for a day.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogging()
		},
		RunE: a.runGet,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.homeFlag, "home", "", "state directory (default: platform data dir)")
	flags.StringVar(&a.url, "url", fetch.DefaultURL, "URL of the raw markdown document")
	flags.StringVarP(&a.region, "region", "r", "", "region to select (default: first available)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.StringSliceVar(&a.debug, "debug", nil, "enable debug logging for components (fetch, cache, session, watch)")
	flags.DurationVar(&a.timeout, "timeout", 60*time.Second, "overall timeout for fetching the document")
	flags.IntVar(&a.boundaryLimit, "boundary-limit", extract.DefaultBoundaryLimit, "stop extracting after this many table boundary rows")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(
		newInvalidateCmd(a),
		newRegionsCmd(a),
		newConfigCmd(a),
		newWatchCmd(a),
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging builds the base logger from the parsed flags.
func (a *app) setupLogging() error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // filtering done by ComponentFilterHandler
	})
	filter := logging.NewComponentFilterHandler(baseHandler, level)
	for _, component := range a.debug {
		filter.SetLevel(component, slog.LevelDebug)
	}
	a.logger = slog.New(filter)
	return nil
}

// store opens the cache store in the resolved state directory.
func (a *app) store() (*cache.Store, error) {
	hd, err := home.Resolve(a.homeFlag)
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	a.logger.With("component", "home").Debug("state directory", "path", hd.Root())
	return cache.NewStore(hd.CachePath(), a.logger, extract.WithBoundaryLimit(a.boundaryLimit)), nil
}

func (a *app) fetcher() *fetch.Client {
	return fetch.New(fetch.Config{
		URL:       a.url,
		UserAgent: "marl/" + version,
		Logger:    a.logger,
	})
}

// openSession loads the cache, fetching the document if it has expired.
func (a *app) openSession(ctx context.Context) (*session.Session, error) {
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	return session.Open(ctx, session.Config{
		Store:   store,
		Fetcher: a.fetcher(),
		Now:     a.now,
		Logger:  a.logger,
	})
}
