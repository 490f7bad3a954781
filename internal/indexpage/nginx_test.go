package indexpage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/indexpage"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

const nginxFixture = `<html><body>
<pre>
<a href="../">../</a>
<a href="archive/">archive/</a>                                           09-Oct-2015 16:12    -
<a href="monitoring-plugins-2.0.tar.gz">monitoring-plugins-2.0.tar.gz</a>  11-Jul-2014 23:17  2610000
</pre>
</body></html>`

func TestNginxParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nginxFixture))
	}))
	defer srv.Close()

	client := httpx.New(srv.Client(), "httpmirror-test", 0)
	pageURL, _ := url.Parse(srv.URL + "/monitoring-plugins/")

	result, err := indexpage.NginxParser{}.GetList(context.Background(), client, pageURL)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if got := result.Items[0].Name; got != "archive" {
		t.Fatalf("item 0 name = %q, want archive", got)
	}
	if result.Items[0].Type != listing.Directory {
		t.Fatalf("item 0 type = %v, want Directory", result.Items[0].Type)
	}
	if result.Items[0].Size != nil {
		t.Fatalf("item 0 size = %v, want nil", result.Items[0].Size)
	}
	wantMTime, _ := time.Parse("02-Jan-2006 15:04", "09-Oct-2015 16:12")
	if !result.Items[0].MTime.Equal(wantMTime) {
		t.Fatalf("item 0 mtime = %v, want %v", result.Items[0].MTime, wantMTime)
	}

	item := result.Items[1]
	if item.Name != "monitoring-plugins-2.0.tar.gz" {
		t.Fatalf("item 1 name = %q", item.Name)
	}
	if item.Type != listing.File {
		t.Fatalf("item 1 type = %v, want File", item.Type)
	}
	if item.Size == nil || item.Size.Exact != 2610000 {
		t.Fatalf("item 1 size = %v, want 2610000", item.Size)
	}
}
