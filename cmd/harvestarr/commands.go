package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/harvestarr/internal/api"
	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/progress"
)

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "harvestarr",
		Short:         "Download images and videos attached to Twitter/X posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 0, "maximum concurrent transfers (1-10)")

	root.AddCommand(
		newResolveCmd(&opts),
		newDownloadCmd(&opts),
		newEnqueueCmd(&opts),
		newHistoryCmd(&opts),
		newServeCmd(&opts),
	)
	return root
}

// withApp wires the application for one command run
func withApp(opts *options, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(*opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

func parseQuality(s string) (models.QualityTier, error) {
	if s == "" {
		return "", nil
	}
	tier, ok := models.ParseQualityTier(s)
	if !ok {
		return "", fmt.Errorf("quality must be one of low, medium, high (got %q)", s)
	}
	return tier, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newResolveCmd(opts *options) *cobra.Command {
	var quality string

	cmd := &cobra.Command{
		Use:   "resolve <post-url>",
		Short: "List the media attached to a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := parseQuality(quality)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				items, err := a.resolver.Resolve(ctx, args[0], tier)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "quality tier: low, medium or high")
	return cmd
}

func newDownloadCmd(opts *options) *cobra.Command {
	var (
		quality string
		dir     string
		items   []string
	)

	cmd := &cobra.Command{
		Use:   "download <post-url>",
		Short: "Download the media of a post now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := parseQuality(quality)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				if tier == "" {
					tier = a.cfg.DefaultQualityTier
				}

				resolved, err := a.resolver.Resolve(ctx, args[0], tier)
				if err != nil {
					return err
				}
				selected := controllers.SelectItems(resolved, items)
				if len(selected) == 0 {
					return errors.New("no media to download")
				}

				// Interrupt stops admission; transfers already running finish
				done := make(chan struct{})
				defer close(done)
				go func() {
					select {
					case <-ctx.Done():
						a.transfers.CancelAll()
					case <-done:
					}
				}()

				bars := progress.NewBars(cmd.ErrOrStderr())
				result, err := a.transfers.RunBatch(context.Background(), selected, tier, dir, bars.Update)
				bars.Wait()

				fmt.Fprintf(cmd.OutOrStdout(), "%d downloaded, %d failed\n", len(result.CompletedIDs), len(result.FailedIDs))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "quality tier: low, medium or high")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "target directory (default: per-kind folder under SAVE_LOCATION)")
	cmd.Flags().StringSliceVar(&items, "items", nil, "media item IDs to download (default: all)")
	return cmd
}

func newEnqueueCmd(opts *options) *cobra.Command {
	var (
		quality string
		dir     string
		items   []string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <post-url>",
		Short: "Queue the media of a post for background download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := parseQuality(quality)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				if tier == "" {
					tier = a.cfg.DefaultQualityTier
				}

				resolved, err := a.resolver.Resolve(ctx, args[0], tier)
				if err != nil {
					return err
				}
				selected := controllers.SelectItems(resolved, items)
				if len(selected) == 0 {
					return errors.New("no media to enqueue")
				}

				for _, desc := range controllers.JobDescriptors(selected, tier, dir, a.cfg.SaveLocation, time.Now()) {
					job, err := a.jobs.Enqueue(desc)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.ID, desc.FileName)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "quality tier: low, medium or high")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "target directory (default: per-kind folder under SAVE_LOCATION)")
	cmd.Flags().StringSliceVar(&items, "items", nil, "media item IDs to enqueue (default: all)")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage the download history",
	}

	var (
		kind   string
		author string
		since  time.Duration
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List downloads, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.HistoryFilter{Kind: models.MediaKind(kind), Author: author}
			if kind != "" && !filter.Kind.Valid() {
				return fmt.Errorf("kind must be one of image, video, animated_image (got %q)", kind)
			}
			if since > 0 {
				filter.SinceMs = time.Now().Add(-since).UnixMilli()
			}

			return withApp(opts, func(ctx context.Context, a *app) error {
				records := a.history.Filter(filter)
				if asJSON {
					return printJSON(cmd.OutOrStdout(), records)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tQUALITY\tSIZE\tDOWNLOADED\tFILE")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.Kind, r.Quality, r.FileSize,
						time.UnixMilli(r.DownloadedAtMs).Format(time.DateTime), r.FilePath)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "only this media kind")
	list.Flags().StringVar(&author, "author", "", "only this post author")
	list.Flags().DurationVar(&since, "since", 0, "only downloads newer than this (e.g. 24h)")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show download statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.history.Stats())
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one history record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				return a.history.Delete(args[0])
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every history record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				return a.history.Clear()
			})
		},
	}

	cmd.AddCommand(list, stats, del, clearCmd)
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background job host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				a.logger.Info("Starting Harvestarr")

				if err := a.jobs.Start(); err != nil {
					return fmt.Errorf("failed to start job host: %w", err)
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					a.jobs.Stop(stopCtx)
				}()

				server := api.NewServer(a.cfg, a.resolver, a.history, a.jobs, a.metrics, a.logger)

				a.logger.Info("Harvestarr is running")
				if err := server.Start(ctx); err != nil {
					return err
				}

				a.logger.Info("Harvestarr stopped")
				return nil
			})
		},
	}
}
