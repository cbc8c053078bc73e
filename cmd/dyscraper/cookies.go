package main

import (
	"fmt"
	"time"

	"dyscraper/pkg/cookiestore"
	"dyscraper/pkg/session"
	"dyscraper/pkg/ui"

	"github.com/spf13/cobra"
)

// cookiesCmd represents the cookies command
var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect or clear the persisted cookie jar",
	Long: `Inspect or clear the cookies kept between runs.

Cookies are stored in the backend selected by session.cookie_store:
  - file: a JSON snapshot (default)
  - encrypted: an AES-GCM sealed snapshot keyed by a passphrase
  - keyring: the system keychain
  - memory: nothing is persisted

Cookies in DYSCRAPER_COOKIES seed the jar read only in every mode.`,
}

// cookiesShowCmd prints the persisted cookies with masked values
var cookiesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted cookies with masked values",
	RunE:  runCookiesShow,
}

// cookiesClearCmd removes the persisted snapshot
var cookiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the persisted cookies",
	RunE:  runCookiesClear,
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesShowCmd)
	cookiesCmd.AddCommand(cookiesClearCmd)
	addSessionFlags(cookiesShowCmd)
	addSessionFlags(cookiesClearCmd)
}

func openCookieStore(cmd *cobra.Command) (cookiestore.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := cookiestore.New(cfg.Session, session.CookieDomain(cfg.Platform.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie store: %w", err)
	}
	return store, nil
}

func runCookiesShow(cmd *cobra.Command, args []string) error {
	store, err := openCookieStore(cmd)
	if err != nil {
		return err
	}
	cookies, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load cookies from %s: %w", store.Name(), err)
	}
	if len(cookies) == 0 {
		ui.PrintWarning("No cookies stored in " + store.Name())
		return nil
	}

	now := time.Now()
	for _, c := range cookies {
		expires := "session"
		switch {
		case c.Expired(now):
			expires = "expired"
		case !c.Expires.IsZero():
			expires = c.Expires.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(ui.Output, "%s\t%s\t%s\t%s\n", c.Domain, c.Name, cookiestore.Mask(c.Value), expires)
	}
	return nil
}

func runCookiesClear(cmd *cobra.Command, args []string) error {
	store, err := openCookieStore(cmd)
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear cookies in %s: %w", store.Name(), err)
	}
	ui.PrintSuccess("Cookies cleared from " + store.Name())
	return nil
}
