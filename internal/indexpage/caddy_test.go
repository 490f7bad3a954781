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

const caddyFixture = `<html><body><table>
<tr class="file"><td><a href="./.trace/">.trace</a></td><td class="timestamp"><time datetime="2023-07-10T13:07:52Z"></time></td></tr>
<tr class="file"><td><a href="./ls-lR.gz">ls-lR.gz</a></td><td class="size"><div class="sizebar"><div class="sizebar-text">26.0M</div></div></td><td class="timestamp"><time datetime="2024-03-10T04:45:24Z"></time></td></tr>
</table></body></html>`

func TestCaddyParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(caddyFixture))
	}))
	defer srv.Close()

	client := httpx.New(srv.Client(), "httpmirror-test", 0)
	pageURL, _ := url.Parse(srv.URL + "/sdumirror-ubuntu/")

	result, err := indexpage.CaddyParser{}.GetList(context.Background(), client, pageURL)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if result.Items[0].Name != ".trace" || result.Items[0].Type != listing.Directory {
		t.Fatalf("item 0 = %+v", result.Items[0])
	}
	if result.Items[1].Name != "ls-lR.gz" || result.Items[1].Type != listing.File {
		t.Fatalf("item 1 = %+v", result.Items[1])
	}
	if result.Items[1].Size == nil || result.Items[1].Size.Value != 26.0 || result.Items[1].Size.Unit != listing.UnitM {
		t.Fatalf("item 1 size = %v", result.Items[1].Size)
	}
}
