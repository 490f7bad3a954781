// Package indexpage parses the HTML directory-index pages produced by
// several common web servers into a dialect-neutral listing.Result.
package indexpage

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"

	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// Parser knows how to fetch and decode one directory-index dialect.
type Parser interface {
	// GetList fetches pageURL and decodes its listing, or reports a redirect.
	GetList(ctx context.Context, client *httpx.Client, pageURL *url.URL) (listing.Result, error)
	// FollowsRedirect reports whether the HTTP client should transparently
	// follow redirects for this dialect. Docker's static registry index is
	// the one dialect that wants the raw redirect instead (it becomes a
	// symlink), so it returns false.
	FollowsRedirect() bool
}

func resolveHref(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, errors.Wrapf(err, "parse href %q", href)
	}
	return base.ResolveReference(ref), nil
}

// decodedName percent-decodes an href's path component, the way the
// original dialects build a displayable name straight from the href
// rather than the anchor text (which nginx/Apache truncate when long).
func decodedName(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.Path
}

// getRealNameFromHref returns the final path segment of an href, decoded
// and with any trailing slash removed.
func getRealNameFromHref(href string) string {
	name := strings.TrimSuffix(decodedName(href), "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// nodeText returns the raw character data of a single text node; non-text
// nodes yield an empty string.
func nodeText(n *html.Node) string {
	if n == nil || n.Type != html.TextNode {
		return ""
	}
	return n.Data
}

// ByName resolves a dialect name, as given on the command line or in a
// mirror target's config, to its Parser.
func ByName(name string) (Parser, error) {
	switch name {
	case "nginx", "":
		return NginxParser{}, nil
	case "apache-f2":
		return ApacheFancyParser{}, nil
	case "lighttpd":
		return LighttpdParser{}, nil
	case "directorylister":
		return DirectoryListerParser{}, nil
	case "caddy":
		return CaddyParser{}, nil
	case "docker":
		return DockerParser{}, nil
	}
	return nil, errors.Newf("indexpage: unknown parser %q", name)
}
