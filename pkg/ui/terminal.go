package ui

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/term"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔══════════════════════════════════════════════════════════╗
    ║ ██████╗ ██╗   ██╗███████╗ ██████╗██████╗  █████╗ ██████╗  ║
    ║ ██╔══██╗╚██╗ ██╔╝██╔════╝██╔════╝██╔══██╗██╔══██╗██╔══██╗ ║
    ║ ██║  ██║ ╚████╔╝ ███████╗██║     ██████╔╝███████║██████╔╝ ║
    ║ ██║  ██║  ╚██╔╝  ╚════██║██║     ██╔══██╗██╔══██║██╔═══╝  ║
    ║ ██████╔╝   ██║   ███████║╚██████╗██║  ██║██║  ██║██║      ║
    ║ ╚═════╝    ╚═╝   ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝      ║
    ║            CREATOR VIDEO HARVESTER                         ║
    ╚══════════════════════════════════════════════════════════╝
`

var (
	colorEnabled atomic.Bool
	quietMode    atomic.Bool

	// Output receives regular messages, Errors receives error messages
	Output io.Writer = os.Stdout
	Errors io.Writer = os.Stderr
)

func init() {
	colorEnabled.Store(DetectColor(os.Stdout))
}

// DetectColor reports whether f is a terminal that should get ANSI colors.
// NO_COLOR disables colors regardless.
func DetectColor(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// SetColor enables or disables ANSI colors
func SetColor(enabled bool) {
	colorEnabled.Store(enabled)
}

// ColorEnabled reports whether colors are on
func ColorEnabled() bool {
	return colorEnabled.Load()
}

// SetQuietMode suppresses everything but errors
func SetQuietMode(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	return quietMode.Load()
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colorEnabled.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if IsQuietMode() {
		return
	}
	fmt.Fprint(Output, Cyan(ASCIILogo))
}

// PrintError prints an error message in red. It is shown in quiet mode too.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		fmt.Fprintln(Errors, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Errors, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(Output, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(Output, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(Output, Magenta(msg))
}
