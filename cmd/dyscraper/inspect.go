package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"dyscraper/pkg/douyin"
	"dyscraper/pkg/downloader"
	"dyscraper/pkg/listing"
	"dyscraper/pkg/metadata"
	"dyscraper/pkg/profile"
	"dyscraper/pkg/ratelimit"
	"dyscraper/pkg/resolver"
	"dyscraper/pkg/storage"
	"dyscraper/pkg/ui"

	"github.com/spf13/cobra"
)

// resolveCmd prints the canonical profile URL of references
var resolveCmd = &cobra.Command{
	Use:   "resolve <reference>...",
	Short: "Print the canonical profile URL behind each reference",
	Long: `Resolve profile URLs and share links to canonical profile URLs.

Share links are expanded with a single request that does not follow the
redirect. Each line of output is "<canonical url>\t<account id>".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

// profileCmd prints the extracted profile of a reference
var profileCmd = &cobra.Command{
	Use:   "profile <reference>",
	Short: "Print the profile data of a creator as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfile,
}

// listCmd prints the listing of a creator without downloading
var listCmd = &cobra.Command{
	Use:   "list <reference>",
	Short: "List the videos of a creator without downloading them",
	Long: `Walk the video listing of a creator and print one line per video:
"<id>\t<state>\t<title>", where state is "downloaded" when the video is
already in the output directory and "new" otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

// fetchCmd downloads a single asset
var fetchCmd = &cobra.Command{
	Use:   "fetch <url> <dest>",
	Short: "Download a single asset URL to a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runFetch,
}

var listPages int

func init() {
	for _, cmd := range []*cobra.Command{resolveCmd, profileCmd, listCmd, fetchCmd} {
		addSessionFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	listCmd.Flags().IntVar(&listPages, "pages", 0, "stop after this many pages (0 means no limit)")
	listCmd.Flags().StringP("output", "o", "", "output directory checked for existing videos")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	r, err := resolver.New(a.session, a.cfg.Platform, a.log)
	if err != nil {
		return err
	}

	var failed error
	for _, ref := range cleanReferences(args) {
		canonical, err := r.Resolve(ctx, ref)
		if err != nil {
			ui.PrintError(ref, err)
			failed = err
			continue
		}
		id, _ := r.AccountID(canonical)
		fmt.Fprintf(ui.Output, "%s\t%s\n", canonical, id)
	}
	return failed
}

func runProfile(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	r, err := resolver.New(a.session, a.cfg.Platform, a.log)
	if err != nil {
		return err
	}
	canonical, err := r.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	account, err := profile.New(a.session, a.log).Extract(ctx, canonical)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format profile: %w", err)
	}
	fmt.Fprintln(ui.Output, string(data))
	if account.Degraded {
		ui.PrintWarning("Profile data unavailable, identity taken from the URL")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	r, err := resolver.New(a.session, a.cfg.Platform, a.log)
	if err != nil {
		return err
	}
	canonical, err := r.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	account, err := profile.New(a.session, a.log).Extract(ctx, canonical)
	if err != nil {
		return err
	}

	store, err := storage.NewManager(a.cfg.Output, a.cfg.Download)
	if err != nil {
		return err
	}
	existing, err := store.ScanExisting(filepath.Join(store.BaseDir(), storage.DirName(account.DisplayName, account.ID)))
	if err != nil {
		return err
	}

	source := listing.NewHTTPSource(a.session, douyin.NewEndpoints(a.cfg.Platform, a.cfg.Listing), a.log)
	it := listing.NewPaginator(source,
		listing.WithPacer(ratelimit.New(a.cfg.RateLimit.PageMinDelay, a.cfg.RateLimit.PageMaxDelay, 0)),
		listing.WithMaxPages(listPages),
		listing.WithLogger(a.log),
	).Iterate(listing.TargetOf(account))

	count := 0
	for it.Next(ctx) {
		for _, item := range it.Batch().Items {
			state := "new"
			if _, ok := existing[item.ID]; ok {
				state = "downloaded"
			}
			fmt.Fprintf(ui.Output, "%s\t%s\t%s\n", item.ID, state, metadata.Shorten(item.Title, 80))
			count++
		}
	}
	if err := it.Err(); err != nil {
		ui.PrintWarning("Listing ended early", err)
	}
	a.log.InfoWithFields("Listing finished", map[string]interface{}{
		"account_id": account.ID,
		"pages":      it.Pages(),
		"items":      count,
		"downloaded": len(existing),
	})
	return ctx.Err()
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	res, err := downloader.New(a.session, a.cfg.Download.ChunkSize, a.log).Fetch(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Saved %s (%s in %s)", res.Path, ui.FormatBytes(res.Bytes), ui.FormatDuration(res.Duration)))
	return nil
}
