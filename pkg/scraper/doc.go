// Package scraper runs the harvest pipeline for a creator reference.
//
// A run moves through a fixed sequence of states:
//
//	resolving -> extracting_profile -> paginating -> done | aborted
//
// Resolving turns a profile URL or short link into the canonical profile
// URL. Extracting the profile yields the account identity, degraded to the
// URL id when the page carries no usable data. Paginating walks the listing
// and downloads each item as its page arrives.
//
// Only an unusable reference, an unreachable profile page or a held account
// lock abort a run. A listing failure ends pagination early and is recorded
// in Report.ListingErr; a download failure marks that one item failed.
//
// Storage:
//
// Files are written to
//
//	<output.base_directory>/<display name or id>/<title>_<id>.mp4
//
// and an item whose file already exists is reported as skipped. The account
// directory is locked for the duration of a run and a metadata.json manifest
// is merged into it when the run ends.
package scraper
