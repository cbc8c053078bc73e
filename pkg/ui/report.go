package ui

import (
	"fmt"
	"io"

	"dyscraper/pkg/metadata"
	"dyscraper/pkg/models"
)

// PrintReport writes a human readable summary of one run. With verbose set
// every outcome is listed, otherwise only failures.
func PrintReport(w io.Writer, report *models.Report, verbose bool) {
	if report == nil {
		return
	}

	name := report.Reference
	if report.Account != nil {
		name = report.Account.DisplayName
		if name == "" {
			name = report.Account.ID
		}
	}

	c := report.Counts()
	switch {
	case report.Aborted():
		fmt.Fprintf(w, "%s %s aborted while %s\n", Red("✗"), name, stageOf(report))
		if report.Err != "" {
			fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(report.Err))
		}
	case c.Failed > 0:
		fmt.Fprintf(w, "%s %s finished with failures\n", Yellow("!"), name)
	default:
		fmt.Fprintf(w, "%s %s finished\n", Green("✓"), name)
	}

	if report.Account != nil && report.Account.Degraded {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Yellow("profile data unavailable, identity taken from the URL"))
	}
	fmt.Fprintf(w, "  %s %d downloaded, %d skipped, %d failed in %s\n",
		Dim("•"), c.Success, c.Skipped, c.Failed, FormatDuration(report.Duration()))
	if report.ListingErr != "" {
		fmt.Fprintf(w, "  %s listing ended early: %s\n", Dim("•"), Yellow(report.ListingErr))
	}

	for _, o := range report.Outcomes {
		if !verbose && o.Status != models.StatusFailed {
			continue
		}
		title := metadata.Shorten(o.Title, 40)
		switch o.Status {
		case models.StatusSuccess:
			fmt.Fprintf(w, "    %s %s %s %s\n", Green("✓"), o.ItemID, Dim(title), Dim(FormatBytes(o.Bytes)))
		case models.StatusSkipped:
			fmt.Fprintf(w, "    %s %s %s\n", Dim("="), o.ItemID, Dim(title))
		default:
			fmt.Fprintf(w, "    %s %s %s %s\n", Red("✗"), o.ItemID, Dim(title), Red(o.Error))
		}
	}
}

// stageOf names the step an aborted run stopped at
func stageOf(report *models.Report) string {
	switch {
	case report.CanonicalURL == "":
		return "resolving the reference"
	case report.Account == nil:
		return "extracting the profile"
	default:
		return "harvesting"
	}
}
