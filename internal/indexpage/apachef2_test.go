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

const apacheF2Fixture = `<html><body>
<table id="indexlist">
<tr class="odd"><td class="indexcolname"><a href="/wine-builds/">Parent Directory</a></td><td class="indexcollastmod"></td><td class="indexcolsize">-</td></tr>
<tr class="even"><td class="indexcolname"><a href="android/">android/</a></td><td class="indexcollastmod">2022-01-18 15:14</td><td class="indexcolsize">-</td></tr>
<tr class="odd"><td class="indexcolname"><a href="Release.key">Release.key</a></td><td class="indexcollastmod">2017-03-28 14:54</td><td class="indexcolsize">3.0K</td></tr>
</table>
</body></html>`

func TestApacheFancyParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(apacheF2Fixture))
	}))
	defer srv.Close()

	client := httpx.New(srv.Client(), "httpmirror-test", 0)
	pageURL, _ := url.Parse(srv.URL + "/wine-builds/")

	result, err := indexpage.ApacheFancyParser{}.GetList(context.Background(), client, pageURL)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if result.Items[0].Name != "android" || result.Items[0].Type != listing.Directory {
		t.Fatalf("item 0 = %+v", result.Items[0])
	}
	if result.Items[1].Name != "Release.key" || result.Items[1].Type != listing.File {
		t.Fatalf("item 1 = %+v", result.Items[1])
	}
	if result.Items[1].Size == nil || result.Items[1].Size.Value != 3.0 || result.Items[1].Size.Unit != listing.UnitK {
		t.Fatalf("item 1 size = %v", result.Items[1].Size)
	}
}
