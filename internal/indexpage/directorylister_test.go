package indexpage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/indexpage"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

const directoryListerFixture = `<html><body>
<ul>
<li><a href="?dir=..">..</a></li>
<li>
<a href="?dir=repositories/current/dists/current/main">
<div class="flex-1 truncate">main</div>
<div class="hidden whitespace-nowrap text-right mx-2">&mdash;</div>
<div class="hidden whitespace-nowrap text-right truncate ml-2">2023-08-07 21:11:02</div>
</a>
<a href="Contents-amd64.gz">
<div class="flex-1 truncate">Contents-amd64.gz</div>
<div class="hidden whitespace-nowrap text-right mx-2">1.80M</div>
<div class="hidden whitespace-nowrap text-right truncate ml-2">2023-08-07 21:10:57</div>
</a>
</li>
</ul>
</body></html>`

func TestDirectoryListerParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(directoryListerFixture))
	}))
	defer srv.Close()

	client := httpx.New(srv.Client(), "httpmirror-test", 0)
	pageURL, _ := url.Parse(srv.URL + "/vyos/")

	result, err := indexpage.DirectoryListerParser{}.GetList(context.Background(), client, pageURL)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if result.Items[0].Name != "main" || result.Items[0].Type != listing.Directory {
		t.Fatalf("item 0 = %+v", result.Items[0])
	}
	if result.Items[1].Name != "Contents-amd64.gz" || result.Items[1].Type != listing.File {
		t.Fatalf("item 1 = %+v", result.Items[1])
	}
	if result.Items[1].Size == nil || result.Items[1].Size.Value != 1.80 || result.Items[1].Size.Unit != listing.UnitM {
		t.Fatalf("item 1 size = %v", result.Items[1].Size)
	}
}
