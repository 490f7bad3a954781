package crawl

import (
	"net/url"

	"github.com/mirrorctl/httpmirror/internal/listing"
)

// TaskKind distinguishes the two shapes of work the scheduler moves around.
type TaskKind int

const (
	// KindListing fetches a directory index and enqueues its children.
	KindListing TaskKind = iota
	// KindDownload fetches one file into place.
	KindDownload
)

// Task is one unit of work in the queue: either list a directory or
// download one file, at a path relative to the mirror root.
type Task struct {
	Kind TaskKind
	// Relative is the ordered path segments from the mirror root to the
	// directory this task concerns (for KindDownload, the containing
	// directory, not the file itself).
	Relative []string
	URL      *url.URL
	// Item is populated for KindDownload: the listing entry to fetch.
	Item listing.Item
}
