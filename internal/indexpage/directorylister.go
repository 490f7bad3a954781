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

// DirectoryListerParser handles the DirectoryLister PHP project's Tailwind
// based layout: a <ul>, whose second <li> holds one <a> per entry, each
// carrying a name div, a size div (em dash for directories), and an mtime
// div.
type DirectoryListerParser struct{}

func (DirectoryListerParser) FollowsRedirect() bool { return true }

func (DirectoryListerParser) GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error) {
	resp, err := client.Get(ctx, pageURL.String())
	if err != nil {
		return listing.Result{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return listing.Result{}, errors.Wrap(err, "parse directorylister listing")
	}

	lis := doc.Find("ul").First().Find("li")
	if lis.Length() < 2 {
		return listing.Result{}, errors.New("directorylister listing: fewer than 2 <li> elements")
	}
	indexlist := lis.Eq(1)

	var items []listing.Item
	var outerErr error
	indexlist.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			outerErr = errors.New("directorylister listing: anchor missing href")
			return false
		}
		itemURL, err := resolveHref(pageURL, href)
		if err != nil {
			outerErr = err
			return false
		}

		name := strings.TrimSpace(a.Find("div.flex-1.truncate").First().Text())
		if name == ".." {
			return true
		}
		sizeText := strings.TrimSpace(a.Find("div.hidden.whitespace-nowrap.text-right.mx-2").First().Text())
		mtimeText := strings.TrimSpace(a.Find("div.hidden.whitespace-nowrap.text-right.truncate.ml-2").First().Text())

		mtime, err := time.Parse("2006-01-02 15:04:05", mtimeText)
		if err != nil {
			outerErr = errors.Wrapf(err, "parse directorylister mtime %q", mtimeText)
			return false
		}

		fileType := listing.File
		var size *listing.FileSize
		if sizeText == "—" {
			fileType = listing.Directory
		} else {
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
