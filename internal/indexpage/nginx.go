package indexpage

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// nginxMetadataRe pulls the trailing "DD-Mon-YYYY HH:MM  <size>" column off
// the text node that follows each anchor in the plain autoindex table
// nginx and bare Apache (F=0/F=1) both emit.
var nginxMetadataRe = regexp.MustCompile(`(\d{2}-\w{3}-\d{4} \d{2}:\d{2})\s+([\d-]+)$`)

// NginxParser handles the bare nginx/Apache autoindex table: one <a> per
// row, followed by a text node holding "<date> <time> <size-or-dash>".
type NginxParser struct{}

func (NginxParser) FollowsRedirect() bool { return true }

func (NginxParser) GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error) {
	resp, err := client.Get(ctx, pageURL.String())
	if err != nil {
		return listing.Result{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return listing.Result{}, errors.Wrap(err, "parse nginx listing")
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

		metadataRaw := strings.TrimSpace(nextSiblingText(a))
		m := nginxMetadataRe.FindStringSubmatch(metadataRaw)
		if m == nil {
			outerErr = errors.Newf("nginx listing: cannot find metadata for %q", name)
			return false
		}
		mtime, err := time.Parse("02-Jan-2006 15:04", m[1])
		if err != nil {
			outerErr = errors.Wrap(err, "parse nginx mtime")
			return false
		}

		fileType := listing.File
		if strings.HasSuffix(itemURL.String(), "/") {
			fileType = listing.Directory
		}

		var size *listing.FileSize
		if m[2] != "-" {
			n, err := strconv.ParseUint(m[2], 10, 64)
			if err != nil {
				outerErr = errors.Wrap(err, "parse nginx size")
				return false
			}
			s := listing.NewPrecise(n)
			size = &s
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

// nextSiblingText returns the text of the DOM node immediately following
// sel, mirroring scraper's next_sibling().value().as_text() traversal.
func nextSiblingText(sel *goquery.Selection) string {
	node := sel.Get(0)
	if node == nil || node.NextSibling == nil {
		return ""
	}
	return nodeText(node.NextSibling)
}
