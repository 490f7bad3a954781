package indexpage

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// ApacheFancyParser handles Apache's F=2 ("HTMLTable FancyIndexed") layout:
// a #indexlist table with tr.odd/tr.even rows, each carrying
// td.indexcolname, td.indexcollastmod, td.indexcolsize cells.
type ApacheFancyParser struct{}

func (ApacheFancyParser) FollowsRedirect() bool { return true }

func (ApacheFancyParser) GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error) {
	resp, err := client.Get(ctx, pageURL.String())
	if err != nil {
		return listing.Result{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return listing.Result{}, errors.Wrap(err, "parse apache-f2 listing")
	}

	indexlist := doc.Find("#indexlist").First()
	if indexlist.Length() == 0 {
		return listing.Result{}, errors.New("apache-f2 listing: cannot find #indexlist")
	}

	var items []listing.Item
	var outerErr error
	indexlist.Find("tr.odd, tr.even").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		a := row.Find("td.indexcolname a").First()
		if a.Length() == 0 {
			outerErr = errors.New("apache-f2 listing: row missing td.indexcolname a")
			return false
		}
		if strings.TrimSpace(a.Text()) == "Parent Directory" {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			outerErr = errors.New("apache-f2 listing: anchor missing href")
			return false
		}
		name := getRealNameFromHref(href)
		itemURL, err := resolveHref(pageURL, href)
		if err != nil {
			outerErr = err
			return false
		}
		fileType := listing.File
		if strings.HasSuffix(itemURL.String(), "/") {
			fileType = listing.Directory
		}

		lastmod := strings.TrimSpace(row.Find("td.indexcollastmod").First().Text())
		mtime, err := time.Parse("2006-01-02 15:04", lastmod)
		if err != nil {
			outerErr = errors.Wrapf(err, "parse apache-f2 mtime %q", lastmod)
			return false
		}

		sizeText := strings.TrimSpace(row.Find("td.indexcolsize").First().Text())
		var size *listing.FileSize
		if sizeText != "-" {
			v, unit, err := listing.ParseHumanizedSize(sizeText)
			if err != nil {
				outerErr = err
				return false
			}
			s := listing.NewHumanizedBinary(v, unit)
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
