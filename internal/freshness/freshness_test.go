package freshness_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorctl/httpmirror/internal/freshness"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

func writeFile(t *testing.T, dir, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes fixture: %v", err)
	}
	return path
}

func TestShouldDownloadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing")
	info, err := os.Stat(path)
	if !freshness.ShouldDownload(path, info, err, listing.Item{}, freshness.Options{}) {
		t.Fatalf("missing file should require download")
	}
}

func TestShouldDownloadSkipIfExists(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, dir, "f", 100, mtime)
	info, err := os.Stat(path)
	remote := listing.Item{Type: listing.File, MTime: mtime.Add(48 * time.Hour)}
	if freshness.ShouldDownload(path, info, err, remote, freshness.Options{SkipIfExists: true}) {
		t.Fatalf("skip-if-exists should never require download")
	}
}

func TestShouldDownloadPreciseSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, dir, "f", 100, mtime)
	info, err := os.Stat(path)
	size := listing.NewPrecise(200)
	remote := listing.Item{Type: listing.File, Size: &size, MTime: mtime}
	if !freshness.ShouldDownload(path, info, err, remote, freshness.Options{}) {
		t.Fatalf("size mismatch should require download")
	}
}

func TestShouldDownloadHumanizedTolerance(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 1.0 K humanised binary, local file within the 2.0-unit tolerance band.
	path := writeFile(t, dir, "f", 1024+1500, mtime)
	info, err := os.Stat(path)
	size := listing.NewHumanizedBinary(1.0, listing.UnitK)
	remote := listing.Item{Type: listing.File, Size: &size, MTime: mtime}
	if freshness.ShouldDownload(path, info, err, remote, freshness.Options{}) {
		t.Fatalf("humanised size within tolerance should not require download")
	}
}

func TestShouldDownloadMTimeUnknownTimezoneTolerance(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, dir, "f", 10, mtime)
	info, err := os.Stat(path)
	size := listing.NewPrecise(10)

	within := listing.Item{Type: listing.File, Size: &size, MTime: mtime.Add(20 * time.Hour)}
	if freshness.ShouldDownload(path, info, err, within, freshness.Options{}) {
		t.Fatalf("mtime within 24h tolerance (unknown timezone) should not require download")
	}

	beyond := listing.Item{Type: listing.File, Size: &size, MTime: mtime.Add(30 * time.Hour)}
	if !freshness.ShouldDownload(path, info, err, beyond, freshness.Options{}) {
		t.Fatalf("mtime beyond 24h tolerance (unknown timezone) should require download")
	}
}

func TestShouldDownloadMTimeKnownTimezoneTolerance(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, dir, "f", 10, mtime)
	info, err := os.Stat(path)
	size := listing.NewPrecise(10)

	within := listing.Item{Type: listing.File, Size: &size, MTime: mtime.Add(30 * time.Second)}
	if freshness.ShouldDownload(path, info, err, within, freshness.Options{RemoteTimezone: time.UTC}) {
		t.Fatalf("mtime within 1min tolerance (known timezone) should not require download")
	}

	beyond := listing.Item{Type: listing.File, Size: &size, MTime: mtime.Add(5 * time.Minute)}
	if !freshness.ShouldDownload(path, info, err, beyond, freshness.Options{RemoteTimezone: time.UTC}) {
		t.Fatalf("mtime beyond 1min tolerance (known timezone) should require download")
	}
}

func TestShouldDownloadSizeOnlySkipsMTime(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, dir, "f", 10, mtime)
	info, err := os.Stat(path)
	size := listing.NewPrecise(10)
	remote := listing.Item{Type: listing.File, Size: &size, MTime: mtime.Add(365 * 24 * time.Hour)}
	if freshness.ShouldDownload(path, info, err, remote, freshness.Options{SizeOnly: true}) {
		t.Fatalf("size-only comparison should ignore mtime drift")
	}
}

func TestShouldDownloadTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeFile(t, dir, "f", 10, mtime)
	info, err := os.Stat(path)
	remote := listing.Item{Type: listing.Directory, MTime: mtime}
	if !freshness.ShouldDownload(path, info, err, remote, freshness.Options{}) {
		t.Fatalf("type mismatch should require download")
	}
}
