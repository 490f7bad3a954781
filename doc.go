/*
Package httpmirror mirrors a remote file tree exposed as HTTP directory-index
pages into a local filesystem directory, keeping the local copy consistent
with the remote: new and modified files are downloaded, vanished files are
deleted, and directories are created or symlinked as needed.

httpmirror provides:
  - A pluggable parser for several common directory-index dialects (nginx/Apache
    autoindex, Apache fancy indexing, lighttpd, DirectoryLister, Caddy, Docker's
    static registry index).
  - A work-stealing crawler that lists and downloads concurrently.
  - A freshness comparator tolerant of humanised sizes and unknown timezones.
  - An atomic, temp-file-then-rename downloader.
  - A three-valued include/exclude policy engine.
  - A bounded-damage reconciler that deletes local paths no longer present
    remotely.
  - Extension hooks that expand Debian Packages and RPM primary.xml.gz files
    into additional download tasks.

The main packages are:

	github.com/mirrorctl/httpmirror/internal/listing    - shared list-item/size data model
	github.com/mirrorctl/httpmirror/internal/httpx      - HTTP GET/HEAD with retry
	github.com/mirrorctl/httpmirror/internal/indexpage  - directory-index parser dialects
	github.com/mirrorctl/httpmirror/internal/freshness  - download-or-skip comparator
	github.com/mirrorctl/httpmirror/internal/exclude    - include/exclude policy engine
	github.com/mirrorctl/httpmirror/internal/expand     - Debian/RPM extension hooks
	github.com/mirrorctl/httpmirror/internal/crawl      - work-stealing scheduler
	github.com/mirrorctl/httpmirror/internal/download   - atomic streaming downloader
	github.com/mirrorctl/httpmirror/internal/reconcile  - post-pass deletion
	github.com/mirrorctl/httpmirror/internal/mirrorcfg  - TOML config + flag overrides
	github.com/mirrorctl/httpmirror/cmd/mirrorctl       - command-line interface
*/
package httpmirror
