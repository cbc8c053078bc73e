package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dyscraper/pkg/config"
	"dyscraper/pkg/cookiestore"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errRunsAborted is returned when at least one run of a batch aborted
var errRunsAborted = errors.New("runs aborted")

// app bundles what every network command needs
type app struct {
	cfg     *config.Config
	log     logger.Logger
	session *session.Session
}

// commandFlags collects the flags the user actually set on cmd, keyed the
// way config.MergeCommandLineFlags expects
func commandFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()

	for _, name := range []string{"output", "proxy", "cookie-file", "cookie-store", "log-level"} {
		if fs.Changed(name) {
			if v, err := fs.GetString(name); err == nil {
				flags[name] = v
			}
		}
	}
	for _, name := range []string{"max-retries", "max-pages", "concurrent"} {
		if fs.Changed(name) {
			if v, err := fs.GetInt(name); err == nil {
				flags[name] = v
			}
		}
	}
	for _, name := range []string{"min-delay", "max-delay"} {
		if fs.Changed(name) {
			if v, err := fs.GetDuration(name); err == nil {
				flags[name] = v
			}
		}
	}
	if fs.Changed("no-metadata") {
		if v, err := fs.GetBool("no-metadata"); err == nil {
			flags["no-metadata"] = v
		}
	}
	return flags
}

// loadConfig layers defaults, file, environment and flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadWithHook(configFile, commandFlags(cmd), ensurePassphrase)
}

// newApp sets up logging and the shared session. When logOut is set, log
// events go there instead of the console.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	if logOut != nil {
		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		logger.SetLogger(logger.NewWithWriter(logOut, level))
	} else if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("dyscraper starting")

	sess, err := session.New(cfg, session.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &app{cfg: cfg, log: log, session: sess}, nil
}

// setup is loadConfig followed by newApp with console logging
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, nil)
}

// close persists the cookie jar
func (a *app) close() {
	if err := a.session.Flush(); err != nil {
		a.log.WithError(err).Warn("Failed to persist cookies")
	}
}

// signalContext is cancelled on interrupt or termination
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ensurePassphrase prompts for the cookie passphrase when the encrypted
// store is selected and none is configured
func ensurePassphrase(cfg *config.Config) error {
	if !strings.EqualFold(cfg.Session.CookieStore, "encrypted") {
		return nil
	}
	if cfg.Session.CookiePassphrase != "" {
		return nil
	}
	if env := os.Getenv(cookiestore.EnvPassphrase); env != "" {
		cfg.Session.CookiePassphrase = env
		return nil
	}

	fmt.Fprint(os.Stderr, "Cookie store passphrase: ")
	passphrase, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return errors.New("encrypted cookie store requires a passphrase")
	}
	cfg.Session.CookiePassphrase = passphrase
	return nil
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// cleanReferences trims the arguments and drops empty ones
func cleanReferences(args []string) []string {
	refs := make([]string, 0, len(args))
	for _, arg := range args {
		if ref := strings.TrimSpace(arg); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case errs.IsType(err, errs.ErrorTypeInvalidReference):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
