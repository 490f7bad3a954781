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

// CaddyParser handles Caddy's built-in file_server browse template: one
// tr.file per entry, with a td.size/div.sizebar-text and a td.timestamp
// time[datetime] carrying an RFC3339-ish stamp.
type CaddyParser struct{}

func (CaddyParser) FollowsRedirect() bool { return true }

func (CaddyParser) GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error) {
	resp, err := client.Get(ctx, pageURL.String())
	if err != nil {
		return listing.Result{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return listing.Result{}, errors.Wrap(err, "parse caddy listing")
	}

	var items []listing.Item
	var outerErr error
	doc.Find("tr.file").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		a := row.Find("td a").First()
		if a.Length() == 0 {
			outerErr = errors.New("caddy listing: row missing td a")
			return false
		}
		href, ok := a.Attr("href")
		if !ok {
			outerErr = errors.New("caddy listing: anchor missing href")
			return false
		}
		// Caddy's file_server prefixes every href with "./".
		name := strings.TrimPrefix(getRealNameFromHref(href), "./")
		itemURL, err := resolveHref(pageURL, href)
		if err != nil {
			outerErr = err
			return false
		}
		fileType := listing.File
		if strings.HasSuffix(itemURL.String(), "/") {
			fileType = listing.Directory
		}

		var size *listing.FileSize
		if sizeCell := row.Find("td.size div.sizebar div.sizebar-text").First(); sizeCell.Length() > 0 {
			v, unit, err := listing.ParseHumanizedSize(strings.TrimSpace(sizeCell.Text()))
			if err != nil {
				outerErr = err
				return false
			}
			s := listing.NewHumanizedBinary(v, unit)
			size = &s
		}

		timeEl := row.Find("td.timestamp time").First()
		if timeEl.Length() == 0 {
			outerErr = errors.New("caddy listing: row missing td.timestamp time")
			return false
		}
		datetime, ok := timeEl.Attr("datetime")
		if !ok {
			outerErr = errors.New("caddy listing: time element missing datetime attribute")
			return false
		}
		mtime, err := time.Parse(time.RFC3339, strings.TrimSpace(datetime))
		if err != nil {
			outerErr = errors.Wrapf(err, "parse caddy mtime %q", datetime)
			return false
		}

		items = append(items, listing.Item{
			URL:   itemURL,
			Name:  name,
			Type:  fileType,
			Size:  size,
			MTime: mtime.UTC(),
		})
		return true
	})
	if outerErr != nil {
		return listing.Result{}, outerErr
	}
	return listing.Result{Items: items}, nil
}
