package indexpage

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// dockerMetadataRe pulls "<date> <time>[:ss]  <size-or-dash>" off the text
// node following each anchor in the static registry's plain index.
var dockerMetadataRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}(:\d{2})?)\s+([\d \w.-]+)$`)

// DockerParser handles download.docker.com's static index, which answers
// a plain nginx-style autoindex at most paths but replies with a raw
// redirect (never transparently followed) at a few, which the crawler
// turns into a symlink.
type DockerParser struct{}

func (DockerParser) FollowsRedirect() bool { return false }

func (DockerParser) GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error) {
	resp, err := client.Get(ctx, pageURL.String())
	if err != nil {
		return listing.Result{}, err
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); loc != "" {
		if strings.HasSuffix(loc, "/index.html") {
			loc = strings.TrimSuffix(loc, "/index.html") + "/"
		}
		return listing.Result{RedirectTo: loc}, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return listing.Result{}, errors.Wrap(err, "parse docker listing")
	}

	var items []listing.Item
	var outerErr error
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		name := getRealNameFromHref(href)
		if name == ".." {
			return true
		}
		itemURL, err := resolveHref(pageURL, href)
		if err != nil {
			outerErr = err
			return false
		}
		displayedName := a.Text()

		var fileType listing.FileType
		var size *listing.FileSize
		var mtime time.Time

		isDir := strings.HasSuffix(itemURL.String(), "/") || strings.HasSuffix(displayedName, "/")
		if isDir {
			fileType = listing.Directory
		} else {
			metadataRaw := strings.TrimSpace(nextSiblingText(a))
			m := dockerMetadataRe.FindStringSubmatch(metadataRaw)
			if m == nil {
				outerErr = errors.Newf("docker listing: cannot find metadata for %q", name)
				return false
			}
			mtime, err = time.Parse("2006-01-02 15:04:05", m[1])
			if err != nil {
				mtime, err = time.Parse("2006-01-02 15:04", m[1])
				if err != nil {
					outerErr = errors.Wrapf(err, "parse docker mtime %q", m[1])
					return false
				}
			}
			sizeText := strings.TrimSpace(m[3])
			if sizeText == "-" {
				fileType = listing.Directory
			} else {
				fileType = listing.File
				v, unit, err := listing.ParseHumanizedSize(sizeText)
				if err != nil {
					outerErr = err
					return false
				}
				s := listing.NewHumanizedBinary(v, unit)
				size = &s
			}
		}

		if fileType == listing.Directory && !strings.HasSuffix(itemURL.Path, "/") {
			itemURL.Path += "/"
		}

		items = append(items, listing.Item{
			URL:   itemURL,
			Name:  name,
			Type:  fileType,
			Size:  size,
			MTime: mtime,
		})
		return true
	})
	if outerErr != nil {
		return listing.Result{}, outerErr
	}
	return listing.Result{Items: items}, nil
}
