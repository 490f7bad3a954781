// Package freshness decides whether a locally stored file is still an
// acceptable stand-in for a remote listing entry, or whether it must be
// re-downloaded.
package freshness

import (
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// sizeTolerance is the maximum allowed discrepancy, in humanised units,
// between a local file's exact size and the remote's humanised figure —
// servers round when rendering index pages, so an exact match is not
// expected.
const sizeTolerance = 2.0

// Options controls the comparison beyond what a single listing.Item carries.
type Options struct {
	// RemoteTimezone is the offset to apply to a naive remote mtime before
	// comparing it to the local file's UTC mtime. Nil means "unknown":
	// the naive value is assumed already UTC, and a wide tolerance applies.
	RemoteTimezone *time.Location
	// SkipIfExists short-circuits the comparison: local existence alone is
	// enough, regardless of size or mtime.
	SkipIfExists bool
	// SizeOnly stops the comparison after the size check, ignoring mtime.
	SizeOnly bool
}

// ShouldDownload reports whether path must be (re)downloaded to match
// remote, given a previous stat of path. A nil statErr with a nil info is
// invalid; pass the result of os.Stat directly.
func ShouldDownload(path string, info os.FileInfo, statErr error, remote listing.Item, opts Options) bool {
	if statErr != nil {
		return true
	}
	if opts.SkipIfExists || remote.SkipCheck {
		return false
	}
	if !typeMatches(info, remote.Type) {
		return true
	}
	localSize := uint64(info.Size())
	if !sizeMatches(localSize, remote.Size) {
		return true
	}
	if opts.SizeOnly {
		return false
	}

	localMTime := info.ModTime().UTC()
	remoteMTime := toUTC(remote.MTime, opts.RemoteTimezone)
	offset := remoteMTime.Sub(localMTime)
	if opts.RemoteTimezone == nil {
		return math.Abs(offset.Hours()) > 24
	}
	return math.Abs(offset.Minutes()) > 1
}

func typeMatches(info os.FileInfo, want listing.FileType) bool {
	if want == listing.Directory {
		return info.IsDir()
	}
	return !info.IsDir()
}

func sizeMatches(localSize uint64, remote *listing.FileSize) bool {
	if remote == nil {
		return localSize == 0
	}
	switch remote.Kind {
	case listing.Precise:
		return localSize == remote.Exact
	case listing.HumanizedBinary:
		base := math.Pow(1024, float64(remote.Unit.Exp()))
		return math.Abs(float64(localSize)/base-remote.Value) < sizeTolerance
	case listing.HumanizedDecimal:
		base := math.Pow(1000, float64(remote.Unit.Exp()))
		return math.Abs(float64(localSize)/base-remote.Value) < sizeTolerance
	}
	return false
}

// toUTC interprets a naive timestamp in loc (or as already UTC, if loc is
// nil) and returns the equivalent instant in UTC.
func toUTC(naive time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return time.Date(naive.Year(), naive.Month(), naive.Day(),
			naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), time.UTC)
	}
	local := time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), loc)
	return local.UTC()
}

// ShouldDownloadByHead builds a synthetic listing.Item from a HEAD response
// and re-runs the same comparison, the way a refinement pass resolves a
// size/mtime mismatch seen during listing before committing to a download.
// The refinement always treats the HEAD's Last-Modified as UTC, the way
// the upstream server reports it for that single request.
func ShouldDownloadByHead(path string, info os.FileInfo, statErr error, resp *http.Response) (bool, error) {
	mtime, err := httpx.MTime(resp)
	if err != nil {
		return false, err
	}
	n, err := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return false, err
	}
	size := listing.NewPrecise(n)
	fileType := listing.File
	if resp.Request != nil && resp.Request.URL != nil && strings.HasSuffix(resp.Request.URL.Path, "/") {
		fileType = listing.Directory
	}
	item := listing.Item{
		URL:   responseURL(resp),
		Name:  "",
		Type:  fileType,
		Size:  &size,
		MTime: mtime,
	}
	utc := time.UTC
	return ShouldDownload(path, info, statErr, item, Options{RemoteTimezone: utc}), nil
}

func responseURL(resp *http.Response) *url.URL {
	if resp.Request != nil {
		return resp.Request.URL
	}
	return nil
}
