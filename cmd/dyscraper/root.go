package main

import (
	"fmt"
	"os"
	"runtime"

	"dyscraper/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dyscraper",
	Short: "Download every video published by a Douyin creator",
	Long: `dyscraper harvests the public videos of Douyin creators.

Given a profile URL or a v.douyin.com share link it:
  - resolves the link to the canonical profile
  - extracts the creator's profile data
  - walks the paginated video listing
  - streams every video to <output>/<creator>/<title>_<id>.mp4
  - writes a metadata.json manifest next to the videos

Videos already on disk are skipped, so a run can simply be repeated to pick
up new uploads. Cookies issued by the site are kept between runs.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}

		// Machine readable commands stay logo free
		switch cmd.Name() {
		case "version", "help", "show", "resolve", "profile", "list":
		default:
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.dyscraper.yaml or ~/.config/dyscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "list every video in run reports")

	rootCmd.SetVersionTemplate(`dyscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
