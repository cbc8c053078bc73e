package main

import (
	"fmt"
	"os"
	"path/filepath"

	"dyscraper/pkg/config"
	"dyscraper/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage dyscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (DYSCRAPER_*)
  - .env files (./.env and ~/.dyscraper.env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file holding the defaults",
	Long: `Write a configuration file with every option set to its default.

The file is created as '.dyscraper.yaml' in the current directory unless a
different path is given with the --config flag. An existing file is never
overwritten.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source.

Secrets such as the cookie passphrase and fingerprint tokens are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the merged configuration.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Path accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".dyscraper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s (remove it first to start over)", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	if !ui.IsQuietMode() {
		fmt.Fprintln(ui.Output, "\nNext steps:")
		fmt.Fprintln(ui.Output, "1. Adjust the output directory and pacing to taste")
		fmt.Fprintln(ui.Output, "2. Run 'dyscraper config validate' to check the configuration")
		fmt.Fprintln(ui.Output, "3. Start downloading with 'dyscraper scrape <profile url>'")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Fprint(ui.Output, string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none found)"
	}
	fmt.Fprintln(ui.Errors, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(ui.Errors, "1. Command line flags")
	fmt.Fprintln(ui.Errors, "2. Environment variables (DYSCRAPER_*)")
	fmt.Fprintln(ui.Errors, "3. .env files")
	fmt.Fprintf(ui.Errors, "4. Configuration file: %s\n", source)
	fmt.Fprintln(ui.Errors, "5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source != "" {
		ui.PrintInfo("Validating configuration", source)
	} else {
		ui.PrintInfo("Validating configuration", "defaults and environment")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var problems []string
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if cfg.Session.CookieFile != "" && cfg.Session.CookieStore != "memory" && cfg.Session.CookieStore != "keyring" {
		if err := os.MkdirAll(filepath.Dir(cfg.Session.CookieFile), 0700); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create cookie directory: %v", err))
		}
	}

	var warnings []string
	if len(cfg.Platform.ListingParams) == 0 {
		warnings = append(warnings, "no listing_params configured, the listing endpoint may answer with empty pages")
	}
	if cfg.RateLimit.MaxDelay == 0 && cfg.RateLimit.RequestsPerMinute == 0 {
		warnings = append(warnings, "request pacing is disabled")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Fprintf(ui.Errors, "  - %s\n", p)
		}
		return fmt.Errorf("%d configuration errors", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			ui.PrintWarning("  - " + w)
		}
	}

	ui.PrintSuccess("Configuration is valid")
	if ui.IsQuietMode() {
		return nil
	}
	fmt.Fprintln(ui.Output, "\nConfiguration summary:")
	fmt.Fprintf(ui.Output, "  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Fprintf(ui.Output, "  Cookie store: %s\n", cfg.Session.CookieStore)
	fmt.Fprintf(ui.Output, "  Concurrent accounts: %d\n", cfg.Download.ConcurrentAccounts)
	fmt.Fprintf(ui.Output, "  Request delay: %s - %s\n", cfg.RateLimit.MinDelay, cfg.RateLimit.MaxDelay)
	fmt.Fprintf(ui.Output, "  Page delay: %s - %s\n", cfg.RateLimit.PageMinDelay, cfg.RateLimit.PageMaxDelay)
	fmt.Fprintf(ui.Output, "  Max retries: %d\n", cfg.Retry.MaxRetries)
	fmt.Fprintf(ui.Output, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
