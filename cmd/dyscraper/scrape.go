package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"dyscraper/internal/worker"
	"dyscraper/pkg/config"
	"dyscraper/pkg/scraper"
	"dyscraper/pkg/ui"
	"dyscraper/pkg/ui/tui"

	"github.com/spf13/cobra"
)

var (
	// Scrape command flags
	useTUI bool
	notify bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <reference>...",
	Short: "Download every video of one or more creators",
	Long: `Download all videos published by each referenced creator.

A reference is a profile URL (https://www.douyin.com/user/<sec_uid>) or a
share link (https://v.douyin.com/<code>/). Every reference becomes one run;
runs for different creators can execute concurrently with --concurrent, each
run stays strictly sequential.

Videos already present in the output directory are skipped. Interrupting the
command stops all runs; partial files are removed on the next run.`,
	Example: `  # Download one creator using default settings
  dyscraper scrape https://www.douyin.com/user/MS4wLjABAAAA

  # Resolve a share link and download to a specific directory
  dyscraper scrape https://v.douyin.com/iRNBho6/ --output ./videos

  # Harvest three creators, two at a time, with a dashboard
  dyscraper scrape ref1 ref2 ref3 --concurrent 2 --tui

  # Only look at the first five listing pages
  dyscraper scrape ref1 --max-pages 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringP("output", "o", "", "output directory for downloads")
	scrapeCmd.Flags().Int("concurrent", 1, "number of creators harvested concurrently")
	scrapeCmd.Flags().Int("max-pages", 0, "stop after this many listing pages (0 means no limit)")
	scrapeCmd.Flags().Int("max-retries", 3, "retries after a transient failure")
	scrapeCmd.Flags().Duration("min-delay", time.Second, "minimum pause before each request")
	scrapeCmd.Flags().Duration("max-delay", 3*time.Second, "maximum pause before each request")
	scrapeCmd.Flags().Bool("no-metadata", false, "do not write metadata.json")
	addSessionFlags(scrapeCmd)
	scrapeCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	scrapeCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the batch ends")
}

// addSessionFlags registers the flags shared by every network command
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("proxy", "", "proxy URL for all requests")
	cmd.Flags().String("cookie-file", "", "cookie jar location")
	cmd.Flags().String("cookie-store", "", "cookie backend (file, encrypted, keyring, memory)")
}

func runScrape(cmd *cobra.Command, args []string) error {
	refs := cleanReferences(args)
	if len(refs) == 0 {
		return fmt.Errorf("no reference given")
	}

	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if useTUI {
		return scrapeWithTUI(ctx, cfg, refs)
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	var out io.Writer = ui.Output
	if ui.IsQuietMode() {
		out = io.Discard
	}
	display := ui.NewProgressDisplay(out, cfg.Logging.Level == "debug")

	s, err := scraper.New(cfg, a.session, scraper.WithLogger(a.log), scraper.WithObserver(display))
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	a.log.InfoWithFields("Starting batch", map[string]interface{}{
		"references": len(refs),
		"concurrent": cfg.Download.ConcurrentAccounts,
		"output":     s.Storage().BaseDir(),
	})

	tracker := ui.NewStatusTracker()
	worker.Stream(ctx, s, refs, cfg.Download.ConcurrentAccounts, a.log, func(r worker.Result) {
		display.Complete(r.Job.Reference)
		tracker.Add(r.Report)
		if r.Err != nil {
			ui.PrintReport(ui.Errors, r.Report, verbose)
		} else if !ui.IsQuietMode() {
			ui.PrintReport(ui.Output, r.Report, verbose)
		}
	})

	return finishBatch(ctx, tracker)
}

// scrapeWithTUI runs the batch behind the dashboard. Logs go to the logs
// panel; quitting the dashboard cancels the runs.
func scrapeWithTUI(ctx context.Context, cfg *config.Config, refs []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := tui.NewTUI(cfg.Download.ConcurrentAccounts, cancel)
	a, err := newApp(cfg, terminal)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := scraper.New(cfg, a.session, scraper.WithLogger(a.log), scraper.WithObserver(terminal))
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	tracker := ui.NewStatusTracker()
	var results []worker.Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		results = worker.Stream(runCtx, s, refs, cfg.Download.ConcurrentAccounts, a.log, func(r worker.Result) {
			tracker.Add(r.Report)
		})
		terminal.Finish()
	}()

	tuiErr := terminal.Start()
	cancel()
	<-done
	if tuiErr != nil {
		return fmt.Errorf("terminal UI failed: %w", tuiErr)
	}

	if !ui.IsQuietMode() {
		for _, r := range results {
			ui.PrintReport(ui.Output, r.Report, verbose)
		}
	}
	return finishBatch(ctx, tracker)
}

// finishBatch prints the totals and turns aborted runs into an error
func finishBatch(ctx context.Context, tracker *ui.StatusTracker) error {
	if !ui.IsQuietMode() {
		tracker.PrintSummary(ui.Output)
	}
	if notify {
		ui.NewNotifier().NotifyBatch(tracker)
	}

	total, aborted := tracker.Runs()
	if aborted == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return fmt.Errorf("%d of %d %w", aborted, total, errRunsAborted)
}
