// Package downloader streams one asset to a destination path.
//
// Fetch is unconditional: it always downloads and replaces the destination.
// Skipping files that already exist is the caller's decision.
package downloader
