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

const dockerFixture = `<html><body>
<pre>
<a href="../">../</a>
<a href="7.0/">7.0/</a>
<a href="docker-ce-staging.repo">docker-ce-staging.repo</a>  2023-07-07 20:20:56  2.0K
</pre>
</body></html>`

func TestDockerParserList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dockerFixture))
	}))
	defer srv.Close()

	client := httpx.New(srv.Client(), "httpmirror-test", 0)
	pageURL, _ := url.Parse(srv.URL + "/docker/")

	result, err := indexpage.DockerParser{}.GetList(context.Background(), client, pageURL)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if result.IsRedirect() {
		t.Fatalf("unexpected redirect")
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if result.Items[0].Name != "7.0" || result.Items[0].Type != listing.Directory {
		t.Fatalf("item 0 = %+v", result.Items[0])
	}
	if result.Items[1].Name != "docker-ce-staging.repo" || result.Items[1].Type != listing.File {
		t.Fatalf("item 1 = %+v", result.Items[1])
	}
	if result.Items[1].Size == nil || result.Items[1].Size.Value != 2.0 || result.Items[1].Size.Unit != listing.UnitK {
		t.Fatalf("item 1 size = %v", result.Items[1].Size)
	}
}

func TestDockerParserRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/docker/armv7l/index.html")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	// DockerParser.FollowsRedirect() is false: the caller is responsible
	// for building a non-following client for this dialect.
	noRedirect := *srv.Client()
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	client := httpx.New(&noRedirect, "httpmirror-test", 0)
	pageURL, _ := url.Parse(srv.URL + "/docker/armv7l/")

	result, err := indexpage.DockerParser{}.GetList(context.Background(), client, pageURL)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if !result.IsRedirect() {
		t.Fatalf("expected redirect")
	}
	if result.RedirectTo != "/docker/armv7l/" {
		t.Fatalf("redirect target = %q, want /docker/armv7l/", result.RedirectTo)
	}
}
