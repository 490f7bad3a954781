package expand

import (
	"bufio"
	"compress/gzip"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
)

// IsAptPackage reports whether path is a Debian Packages index: its
// basename is "Packages" (optionally ".gz"/".xz" compressed), and one of
// its ancestor directories is named "dists".
func IsAptPackage(path string) bool {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".xz")
	if base != "Packages" {
		return false
	}
	for dir := filepath.Dir(path); ; {
		parent := filepath.Dir(dir)
		if filepath.Base(dir) == "dists" {
			return true
		}
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// getDebianRoot walks packagesPath, relative, and packagesURL up together
// until it finds the "dists" directory shared by all three, then returns
// the mirror root one level above "dists" in each coordinate space.
func getDebianRoot(packagesPath string, relative []string, packagesURL *url.URL) (string, []string, *url.URL, error) {
	pathSegs := splitSegments(packagesPath)
	urlSegs := splitSegments(packagesURL.Path)
	rel := append([]string(nil), relative...)

	var err error
	// Drop the filename itself; it never participates in the relative walk.
	pathSegs, urlSegs, _, err = popSegments(pathSegs, urlSegs, nil, false)
	if err != nil {
		return "", nil, nil, err
	}

	for {
		if len(pathSegs) == 0 || len(urlSegs) == 0 {
			return "", nil, nil, errors.New("expand: cannot find debian root")
		}
		basename := pathSegs[len(pathSegs)-1]
		urlBasename := urlSegs[len(urlSegs)-1]
		if basename == "dists" && urlBasename == "dists" {
			pathSegs, urlSegs, rel, err = popSegments(pathSegs, urlSegs, rel, true)
			if err != nil {
				return "", nil, nil, err
			}
			return joinLocalPath(pathSegs), rel, cloneURLWithSegments(packagesURL, urlSegs), nil
		}
		pathSegs, urlSegs, rel, err = popSegments(pathSegs, urlSegs, rel, true)
		if err != nil {
			return "", nil, nil, err
		}
	}
}

func decompressReader(path string, raw io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return gzip.NewReader(raw)
	case strings.HasSuffix(path, ".xz"):
		return xz.NewReader(raw)
	default:
		return raw, nil
	}
}

// aptStanza is the subset of a Packages control stanza this expander
// needs: the pool-relative filename and the declared size.
type aptStanza struct {
	filename string
	size     uint64
}

func scanAptStanzas(r io.Reader) ([]aptStanza, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var stanzas []aptStanza
	var cur aptStanza
	flush := func() {
		if cur.filename != "" {
			stanzas = append(stanzas, cur)
		}
		cur = aptStanza{}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "Filename:"):
			cur.filename = strings.TrimSpace(strings.TrimPrefix(line, "Filename:"))
		case strings.HasPrefix(line, "Size:"):
			n, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "Size:")), 10, 64)
			if err == nil {
				cur.size = n
			}
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan Packages stanzas")
	}
	return stanzas, nil
}

// ParseAptPackages reads a downloaded Packages(.gz/.xz) file and returns
// the package files it references, resolved to absolute URLs and to paths
// relative to the mirror root.
func ParseAptPackages(packagesPath string, relative []string, packagesURL *url.URL) ([]Package, error) {
	f, err := os.Open(packagesPath)
	if err != nil {
		return nil, errors.Wrap(err, "open Packages file")
	}
	defer f.Close()

	dr, err := decompressReader(packagesPath, f)
	if err != nil {
		return nil, errors.Wrap(err, "decompress Packages file")
	}
	stanzas, err := scanAptStanzas(dr)
	if err != nil {
		return nil, err
	}

	_, rootRelative, debianRootURL, err := getDebianRoot(packagesPath, relative, packagesURL)
	if err != nil {
		return nil, err
	}

	result := make([]Package, 0, len(stanzas))
	for _, s := range stanzas {
		if s.filename == "" {
			continue
		}
		ref, err := url.Parse(s.filename)
		if err != nil {
			return nil, errors.Wrapf(err, "parse pool filename %q", s.filename)
		}
		pkgURL := debianRootURL.ResolveReference(ref)

		segs := strings.Split(s.filename, "/")
		rel := append(append([]string(nil), rootRelative...), segs...)
		basename := rel[len(rel)-1]
		rel = rel[:len(rel)-1]

		result = append(result, Package{
			URL:      pkgURL,
			Relative: rel,
			Filename: basename,
			Size:     s.size,
		})
	}
	return result, nil
}

// AptExpander adapts ParseAptPackages to the Expander signature, gated by
// IsAptPackage so it can sit unconditionally in a crawler's expander chain.
func AptExpander(localPath string, relative []string, fileURL *url.URL) ([]Package, error) {
	if !IsAptPackage(localPath) {
		return nil, nil
	}
	return ParseAptPackages(localPath, relative, fileURL)
}
