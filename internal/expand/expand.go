// Package expand implements the optional post-download extension hooks
// that turn one downloaded metadata file (a Debian Packages index, or an
// RPM repository's primary.xml.gz) into a batch of additional download
// tasks for the packages it references.
package expand

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/listing"
)

// Package is one file an extension hook wants the crawler to additionally
// fetch: an absolute URL, the local path components relative to the
// mirror root, and its final path segment.
type Package struct {
	URL      *url.URL
	Relative []string
	Filename string
	Size     uint64
}

// Expander inspects one just-downloaded file and returns the packages it
// references, or (nil, nil) if this file isn't one it handles.
type Expander func(localPath string, relative []string, fileURL *url.URL) ([]Package, error)

// ToItem converts a Package into a synthetic listing.Item for injection
// back into the crawl queue. Extension-derived downloads skip the
// freshness check by existence alone (SkipCheck) since neither an exact
// size nor a reliable mtime is available for the referenced file from the
// index alone in the YUM case, and the Debian case intentionally reuses
// the same conservative path for symmetry.
func (p Package) ToItem() listing.Item {
	var size *listing.FileSize
	if p.Size > 0 {
		s := listing.NewPrecise(p.Size)
		size = &s
	}
	return listing.Item{
		URL:       p.URL,
		Name:      p.Filename,
		Type:      listing.File,
		Size:      size,
		SkipCheck: true,
	}
}

// popSegments pops one segment off each of a local-path segment slice, a
// URL-path segment slice, and (optionally) a relative-path segment slice,
// moving all three one level toward the filesystem/URL root in lockstep.
// It mirrors the "pop path, relative and URL together" walk the Debian and
// RPM repository layouts both need to find their root.
func popSegments(pathSegs, urlSegs, rel []string, popRelative bool) ([]string, []string, []string, error) {
	if len(pathSegs) == 0 {
		return nil, nil, nil, errors.New("expand: cannot pop local path further")
	}
	if len(urlSegs) == 0 {
		return nil, nil, nil, errors.New("expand: cannot pop URL path further")
	}
	pathSegs = pathSegs[:len(pathSegs)-1]
	urlSegs = urlSegs[:len(urlSegs)-1]
	if popRelative {
		if len(rel) == 0 {
			return nil, nil, nil, errors.New("expand: cannot pop relative path further")
		}
		rel = rel[:len(rel)-1]
	}
	return pathSegs, urlSegs, rel, nil
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func joinLocalPath(segs []string) string {
	return "/" + strings.Join(segs, "/") + "/"
}

func cloneURLWithSegments(base *url.URL, segs []string) *url.URL {
	u := *base
	if len(segs) == 0 {
		u.Path = "/"
	} else {
		u.Path = "/" + strings.Join(segs, "/") + "/"
	}
	return &u
}
