package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/session"
)

const (
	// DefaultChunkSize is the copy buffer size
	DefaultChunkSize = 1 << 20

	partialSuffix = ".part"
)

// Result describes a completed download
type Result struct {
	Path     string
	Bytes    int64
	Declared int64
	Status   int
	Duration time.Duration
}

// Downloader streams assets to disk through a Session
type Downloader struct {
	sender    session.Sender
	chunkSize int
	logger    logger.Logger
}

// New creates a Downloader. chunkSize <= 0 selects DefaultChunkSize.
func New(sender session.Sender, chunkSize int, log logger.Logger) *Downloader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Downloader{
		sender:    sender,
		chunkSize: chunkSize,
		logger:    logger.Component(log, "downloader"),
	}
}

// Fetch downloads assetURL to dest, replacing any existing file. Data is
// written to dest+".part" and renamed into place only after the declared
// length checks out; on failure nothing is left at either path.
func (d *Downloader) Fetch(ctx context.Context, assetURL, dest string) (*Result, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errs.Download(errs.KindIO, "failed to create destination directory", 0, err)
	}

	resp, err := d.sender.Send(ctx, http.MethodGet, assetURL, session.Options{
		Stream: true,
		Header: http.Header{"Accept": []string{"*/*"}},
	})
	if err != nil {
		return nil, errs.Download(errs.KindNetwork, "asset request failed", errs.StatusOf(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, errs.Download(errs.KindBadStatus,
			fmt.Sprintf("asset returned status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	declared := declaredLength(resp)
	partial := dest + partialSuffix

	written, err := d.write(ctx, resp.Body, partial)
	if err != nil {
		os.Remove(partial)
		return nil, err
	}

	if declared >= 0 && written != declared {
		os.Remove(partial)
		return nil, errs.Download(errs.KindSizeMismatch,
			fmt.Sprintf("wrote %d bytes, server declared %d", written, declared), resp.StatusCode, nil)
	}

	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return nil, errs.Download(errs.KindIO, "failed to move download into place", 0, err)
	}

	result := &Result{
		Path:     dest,
		Bytes:    written,
		Declared: declared,
		Status:   resp.StatusCode,
		Duration: time.Since(start),
	}

	d.logger.DebugWithFields("Asset stored", map[string]interface{}{
		"path":        dest,
		"bytes":       written,
		"status_code": resp.StatusCode,
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result, nil
}

// write copies body to path with a fixed buffer, checking ctx between
// chunks
func (d *Downloader) write(ctx context.Context, body io.Reader, path string) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, errs.Download(errs.KindIO, "failed to create partial file", 0, err)
	}

	buf := make([]byte, d.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return written, errs.Download(errs.KindNetwork, "download interrupted", 0, err)
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			w, writeErr := out.Write(buf[:n])
			written += int64(w)
			if writeErr != nil {
				out.Close()
				return written, errs.Download(errs.KindIO, "failed to write asset data", 0, writeErr)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			out.Close()
			return written, errs.Download(errs.KindNetwork, "asset stream broke", 0, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return written, errs.Download(errs.KindIO, "failed to close partial file", 0, err)
	}
	return written, nil
}

// declaredLength returns the body length the server announced, or -1
func declaredLength(resp *http.Response) int64 {
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return -1
}
