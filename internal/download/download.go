// Package download implements the atomic, crash-safe file download used
// for every mirrored object: stream to a temp file beside the final path,
// stamp its mtime, then rename it into place.
package download

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// ProgressReporter is notified of download progress; cmd/mirrorctl backs
// this with a cheggaaa/pb bar, but internal/download itself never imports
// a rendering library.
type ProgressReporter interface {
	// Add reports n additional bytes written.
	Add(n int64)
}

type noopReporter struct{}

func (noopReporter) Add(int64) {}

// NoopReporter discards progress reports.
var NoopReporter ProgressReporter = noopReporter{}

// Options controls one download.
type Options struct {
	// Progress receives byte-count updates; nil behaves like NoopReporter.
	Progress ProgressReporter
	// AllowMTimeFromParser permits falling back to the listing item's own
	// (possibly timezone-naive) mtime when the response carries no
	// Last-Modified header, instead of treating that as a failure.
	AllowMTimeFromParser bool
	// RemoteTimezone is applied to item.MTime when falling back to it.
	RemoteTimezone *time.Location
}

// File streams item's URL to destPath atomically: the body lands in a
// sibling temp file first, which is renamed into place only once fully
// written and its mtime set. A failure at any point leaves destPath
// untouched.
func File(ctx context.Context, client *httpx.Client, item listing.Item, destPath string, opts Options) error {
	progress := opts.Progress
	if progress == nil {
		progress = NoopReporter
	}

	resp, err := client.GetStream(ctx, item.URL.String())
	if err != nil {
		return errors.Wrapf(err, "GET %s", item.URL)
	}
	defer resp.Body.Close()

	mtime, err := resolveMTime(resp, item, opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrapf(err, "mkdir for %s", destPath)
	}

	tmpPath := filepath.Join(filepath.Dir(destPath), ".tmp."+filepath.Base(destPath))
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", destPath)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmp, &progressReader{r: resp.Body, report: progress.Add})
	if err != nil {
		return errors.Wrapf(err, "download %s", item.URL)
	}
	if item.Size != nil && item.Size.Kind == listing.Precise && uint64(n) != item.Size.Exact {
		return errors.Newf("download %s: got %d bytes, expected %d", item.URL, n, item.Size.Exact)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync temp file for %s", destPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close temp file for %s", destPath)
	}

	if err := os.Chtimes(tmpPath, mtime, mtime); err != nil {
		return errors.Wrapf(err, "set mtime for %s", destPath)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return errors.Wrapf(err, "rename into place %s", destPath)
	}
	return nil
}

// resolveMTime prefers the response's own Last-Modified header; when
// absent it falls back to the listing item's naive mtime, interpreted in
// opts.RemoteTimezone, but only when the caller opted in — otherwise a
// missing header is a download failure, since local files would otherwise
// silently inherit the download instant as their mtime.
func resolveMTime(resp *http.Response, item listing.Item, opts Options) (time.Time, error) {
	mtime, err := httpx.MTime(resp)
	if err == nil {
		return mtime, nil
	}
	if !errors.Is(err, httpx.ErrMissingMTime) {
		return time.Time{}, err
	}
	if !opts.AllowMTimeFromParser {
		return time.Time{}, errors.Wrapf(err, "no mtime fallback enabled for %s", item.URL)
	}
	loc := opts.RemoteTimezone
	if loc == nil {
		loc = time.UTC
	}
	naive := item.MTime
	return time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), loc).UTC(), nil
}

type progressReader struct {
	r      io.Reader
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.report(int64(n))
	}
	return n, err
}

// Symlink materializes a redirect as target -> dest, replacing dest
// atomically if it already exists.
func Symlink(targetName, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "mkdir for symlink %s", dest)
	}
	tmp := dest + ".tmp-symlink"
	os.Remove(tmp)
	if err := os.Symlink(targetName, tmp); err != nil {
		return errors.Wrapf(err, "create symlink %s -> %s", dest, targetName)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errors.Wrapf(err, "rename symlink into place %s", dest)
	}
	return nil
}

// TargetNameFromRedirect derives the symlink target name the way the
// crawler does: the penultimate path segment of the redirect URL (the
// directory a trailing-slash listing URL redirected to).
func TargetNameFromRedirect(redirectTo string) (string, error) {
	u, err := url.Parse(redirectTo)
	if err != nil {
		return "", errors.Wrapf(err, "parse redirect target %q", redirectTo)
	}
	segments := splitNonEmpty(u.Path)
	if len(segments) == 0 {
		return "", errors.Newf("redirect target %q has no path segments", redirectTo)
	}
	return segments[len(segments)-1], nil
}

func splitNonEmpty(p string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				out = append(out, p[start:i])
			}
			start = i + 1
		}
	}
	return out
}
