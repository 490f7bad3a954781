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

// LighttpdParser handles lighttpd's mod_dirlisting table: a <tbody> of <tr>
// rows, each with an <a>, a ".m" mtime cell, and a ".s" size cell.
type LighttpdParser struct{}

func (LighttpdParser) FollowsRedirect() bool { return true }

func (LighttpdParser) GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error) {
	resp, err := client.Get(ctx, pageURL.String())
	if err != nil {
		return listing.Result{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return listing.Result{}, errors.Wrap(err, "parse lighttpd listing")
	}

	tbody := doc.Find("tbody").First()
	if tbody.Length() == 0 {
		return listing.Result{}, errors.New("lighttpd listing: cannot find <tbody>")
	}

	var items []listing.Item
	var outerErr error
	tbody.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		a := row.Find("a").First()
		if a.Length() == 0 {
			outerErr = errors.New("lighttpd listing: row missing <a>")
			return false
		}
		mtimeCell := row.Find(".m").First()
		if mtimeCell.Length() == 0 {
			outerErr = errors.New("lighttpd listing: row missing .m")
			return false
		}
		sizeCell := row.Find(".s").First()
		if sizeCell.Length() == 0 {
			outerErr = errors.New("lighttpd listing: row missing .s")
			return false
		}

		if strings.TrimSpace(a.Text()) == ".." {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			outerErr = errors.New("lighttpd listing: anchor missing href")
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

		mtimeText := strings.TrimSpace(mtimeCell.Text())
		mtime, err := time.Parse("2006-Jan-02 15:04:05", mtimeText)
		if err != nil {
			outerErr = errors.Wrapf(err, "parse lighttpd mtime %q", mtimeText)
			return false
		}

		sizeText := strings.TrimSpace(strings.ReplaceAll(sizeCell.Text(), " ", ""))
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
