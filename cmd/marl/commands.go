package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"marl/internal/arl"
	"marl/internal/streamrip"
	"marl/internal/watch"

	"github.com/spf13/cobra"
)

// runGet prints the selected token and persists the cache.
func (a *app) runGet(cmd *cobra.Command, args []string) error {
	s, err := a.openSession(cmd.Context())
	if err != nil {
		return err
	}
	rec, getErr := s.Directory().Get(a.region)
	if err := s.Save(); err != nil {
		return err
	}
	if getErr != nil {
		return getErr
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), rec.Value)
	return nil
}

func newInvalidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate [region]",
		Short: "Drop a token that no longer works",
		Long:  "Remove the default token, or the first token for region, from the cache so the next invocation selects another one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			region := a.region
			if len(args) == 1 {
				region = args[0]
			}
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			if removed, ok := s.Directory().Invalidate(region); ok {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "invalidated %s token (expires %s), %d left\n",
					removed.Region, removed.Expiry, s.Directory().Len())
			}
			return s.Save()
		},
	}
}

func newRegionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List regions with a cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Save(); err != nil {
				return err
			}

			p := newPrinter(format, cmd.OutOrStdout())
			summaries := summarize(s.Directory().Records())
			switch format {
			case formatJSON:
				return p.json(summaries)
			case formatTable:
				rows := make([][]string, 0, len(summaries))
				for _, sum := range summaries {
					rows = append(rows, []string{sum.Region, strconv.Itoa(sum.Tokens), sum.Expiry.String()})
				}
				p.table([]string{"REGION", "TOKENS", "EXPIRY"}, rows)
			default:
				regions := make([]string, 0, len(summaries))
				for _, sum := range summaries {
					regions = append(regions, sum.Region)
				}
				p.lines(regions)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "output format: table, json or plain (default: table on a terminal)")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write the selected token into other tools' configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "streamrip [path]",
		Short: "Set deezer.arl in streamrip's config.toml",
		Long:  "Set deezer.arl in streamrip's config.toml. path may name the file, its directory, or a glob matching exactly one file; it defaults to streamrip's platform config location.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var override string
			if len(args) == 1 {
				override = args[0]
			}
			path, err := streamrip.Resolve(override)
			if err != nil {
				return err
			}
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			rec, getErr := s.Directory().Get(a.region)
			if err := s.Save(); err != nil {
				return err
			}
			if getErr != nil {
				return getErr
			}
			if cur, err := streamrip.Current(path); err == nil && cur == rec.Value {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s already has the %s token\n", path, rec.Region)
				return nil
			}
			if err := streamrip.Patch(path, rec.Value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "updated %s with %s token\n", path, rec.Region)
			return nil
		},
	})
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		schedule      string
		withStreamrip bool
		streamripPath string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache fresh in the foreground",
		Long:  "Refresh the cache on a cron schedule (or on SIGHUP) and, with --streamrip, keep streamrip's config patched with the selected token, including after invalidations from other invocations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			var path string
			if withStreamrip || streamripPath != "" {
				if path, err = streamrip.Resolve(streamripPath); err != nil {
					return err
				}
			}
			reload := make(chan os.Signal, 1)
			signal.Notify(reload, syscall.SIGHUP)
			defer signal.Stop(reload)

			w, err := watch.New(watch.Config{
				Store:         store,
				Fetcher:       a.fetcher(),
				Schedule:      schedule,
				StreamripPath: path,
				Region:        a.region,
				Reload:        reload,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", watch.DefaultSchedule, "cron expression for scheduled refreshes")
	cmd.Flags().BoolVar(&withStreamrip, "streamrip", false, "keep streamrip's config patched")
	cmd.Flags().StringVar(&streamripPath, "streamrip-path", "", "streamrip config file, directory or glob (implies --streamrip)")
	return cmd
}

// regionSummary describes the cached tokens of one region.
type regionSummary struct {
	Region string   `json:"region"`
	Tokens int      `json:"tokens"`
	Expiry arl.Date `json:"expiry"` // latest
}

// summarize groups records by region in first-occurrence order.
func summarize(records []arl.Record) []regionSummary {
	out := []regionSummary{}
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.Region]
		if !ok {
			i = len(out)
			index[r.Region] = i
			out = append(out, regionSummary{Region: r.Region, Expiry: r.Expiry})
		}
		out[i].Tokens++
		if r.Expiry.After(out[i].Expiry) {
			out[i].Expiry = r.Expiry
		}
	}
	return out
}
