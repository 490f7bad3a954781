package expand

import (
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
)

// IsYumPrimaryXML reports whether path is an RPM repository's compressed
// primary metadata file.
func IsYumPrimaryXML(path string) bool {
	return strings.HasSuffix(path, "primary.xml.gz")
}

var primaryXMLLocationRe = regexp.MustCompile(`<location href="(.+?)"\s*/>`)

// readPrimaryXMLLocations decompresses a primary.xml.gz file and extracts
// every package-relative href it references.
func readPrimaryXMLLocations(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open primary.xml.gz")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "decompress primary.xml.gz")
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrap(err, "read primary.xml.gz")
	}

	var hrefs []string
	for _, line := range strings.Split(string(data), "\n") {
		m := primaryXMLLocationRe.FindStringSubmatch(line)
		if m != nil {
			hrefs = append(hrefs, m[1])
		}
	}
	return hrefs, nil
}

// ParseYumPackages reads a downloaded primary.xml.gz and returns the
// packages it references. The repository root is two path segments above
// the metadata file itself (typically "<repo>/repodata/primary.xml.gz"),
// so the package hrefs — which are relative to that root, not to
// repodata/ — resolve correctly against it.
func ParseYumPackages(metadataPath string, relative []string, metadataURL *url.URL) ([]Package, error) {
	hrefs, err := readPrimaryXMLLocations(metadataPath)
	if err != nil {
		return nil, err
	}

	pathSegs := splitSegments(metadataPath)
	urlSegs := splitSegments(metadataURL.Path)
	rootRelative := append([]string(nil), relative...)
	// Drop the filename itself (not part of relative), then "repodata/".
	pathSegs, urlSegs, _, err = popSegments(pathSegs, urlSegs, nil, false)
	if err != nil {
		return nil, errors.Wrap(err, "find repository root")
	}
	pathSegs, urlSegs, rootRelative, err = popSegments(pathSegs, urlSegs, rootRelative, true)
	if err != nil {
		return nil, errors.Wrap(err, "find repository root")
	}
	rootURL := cloneURLWithSegments(metadataURL, urlSegs)

	result := make([]Package, 0, len(hrefs))
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			return nil, errors.Wrapf(err, "parse package href %q", href)
		}
		pkgURL := rootURL.ResolveReference(ref)

		segs := strings.Split(href, "/")
		rel := append(append([]string(nil), rootRelative...), segs...)
		basename := rel[len(rel)-1]
		rel = rel[:len(rel)-1]

		result = append(result, Package{
			URL:      pkgURL,
			Relative: rel,
			Filename: basename,
		})
	}
	return result, nil
}

// YumExpander adapts ParseYumPackages to the Expander signature, gated by
// IsYumPrimaryXML so it can sit unconditionally in a crawler's expander chain.
func YumExpander(localPath string, relative []string, fileURL *url.URL) ([]Package, error) {
	if !IsYumPrimaryXML(localPath) {
		return nil, nil
	}
	return ParseYumPackages(localPath, relative, fileURL)
}
