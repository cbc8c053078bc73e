// Package logger provides the structured logging interface used across the
// harvester.
//
// It wraps zerolog. Console output is colored and human readable on stderr;
// when a log file is configured every event is also appended there as a JSON
// line. Components receive a Logger by injection and fall back to the global
// logger when handed nil:
//
//	log := logger.Component(cfgLogger, "downloader")
//	log.InfoWithFields("Download completed", map[string]interface{}{
//	    "path":  dest,
//	    "bytes": n,
//	})
//
// NewNopLogger discards everything. NewTestLogger captures messages so tests
// can assert on what was logged.
package logger
