// Package crawl implements the parallel directory-tree walker: a fixed
// pool of worker goroutines, each with a FIFO local deque, a global
// injector for overflow and initial work, and work stealing between
// peers. It drains when every worker agrees the queue is empty, the
// quiescence protocol implemented by runWorker and sleepUntilWoken below.
package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/download"
	"github.com/mirrorctl/httpmirror/internal/exclude"
	"github.com/mirrorctl/httpmirror/internal/expand"
	"github.com/mirrorctl/httpmirror/internal/freshness"
	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/indexpage"
	"github.com/mirrorctl/httpmirror/internal/listing"
)

// sleepInterval is how long an idle worker waits between checks of the
// wake counter once the pool isn't fully quiescent yet.
const sleepInterval = 100 * time.Millisecond

// Options configures one crawl run.
type Options struct {
	Client   *httpx.Client
	Parser   indexpage.Parser
	Workers  int
	// MirrorRoot is the local directory the remote tree is mirrored into.
	MirrorRoot string
	// Upstream is the root URL to list first.
	Upstream *url.URL

	Policy    *exclude.Policy
	Freshness freshness.Options

	// SkipIfExists and SizeOnly are compiled from the --skip-if-exists and
	// --compare-size-only regex lists (§4.F): a download task whose
	// relative path matches gets that bit set on its per-task
	// freshness.Options, overriding the zero value carried on Freshness.
	SkipIfExists []*regexp.Regexp
	SizeOnly     []*regexp.Regexp

	HeadBeforeGet        bool
	DryRun               bool
	AllowMTimeFromParser bool
	RemoteTimezone       *time.Location

	// Expanders runs, in order, after every successful download; each may
	// enqueue further download tasks (§4.E / §6.5).
	Expanders []expand.Expander

	// NewProgress builds a progress sink for one download. Nil means no
	// progress reporting; internal/crawl never constructs one itself.
	NewProgress func(item listing.Item) download.ProgressReporter

	Logger *slog.Logger
}

// Result summarises one completed crawl.
type Result struct {
	Observed           *ObservedSet
	FailureListing     bool
	FailureDownloading bool
	Objects            uint64
	Size               uint64
}

type crawler struct {
	opts Options
	log  *slog.Logger

	workers  []*deque
	stealers []*deque
	global   *deque

	active atomic.Int64
	wake   atomic.Int64

	observed *ObservedSet

	statObjects atomic.Uint64
	statSize    atomic.Uint64

	failureListing     atomic.Bool
	failureDownloading atomic.Bool
}

// Run crawls Upstream into MirrorRoot and returns once the pool has
// quiesced: every worker found both its own deque and every peer's
// (including the global injector) empty.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &crawler{
		opts:     opts,
		log:      log,
		observed: NewObservedSet(),
		global:   newDeque(),
	}
	for i := 0; i < opts.Workers; i++ {
		c.workers = append(c.workers, newDeque())
	}
	c.stealers = c.workers

	if !opts.DryRun {
		if err := os.MkdirAll(opts.MirrorRoot, 0o755); err != nil {
			return nil, errors.Wrap(err, "create mirror root")
		}
	}

	c.global.push(Task{Kind: KindListing, URL: opts.Upstream})

	var wg sync.WaitGroup
	wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					// A worker panic aborts the whole process with exit
					// code 3, the code cmd/mirrorctl reserves for it.
					log.Error("worker panicked", "worker", idx, "panic", r)
					os.Exit(3)
				}
			}()
			c.runWorker(ctx, idx)
		}()
	}
	wg.Wait()

	return &Result{
		Observed:           c.observed,
		FailureListing:     c.failureListing.Load(),
		FailureDownloading: c.failureDownloading.Load(),
		Objects:            c.statObjects.Load(),
		Size:               c.statSize.Load(),
	}, nil
}

func (c *crawler) runWorker(ctx context.Context, idx int) {
	own := c.workers[idx]
	for {
		c.active.Add(1)
		for {
			task, ok := c.nextTask(own)
			if !ok {
				break
			}
			c.runTask(ctx, own, task)
		}
		if c.active.Add(-1) == 0 {
			// Every worker, including this one, is now idle with both
			// deques and the injector empty: the crawl is done.
			return
		}
		c.sleepUntilWoken()
	}
}

// nextTask implements the popping order: own deque, then a batch steal
// from the global injector, then single steals from peers.
func (c *crawler) nextTask(own *deque) (Task, bool) {
	if t, ok := own.popOwn(); ok {
		return t, true
	}
	if c.global.stealBatchInto(own) {
		if t, ok := own.popOwn(); ok {
			return t, true
		}
	}
	for _, peer := range c.stealers {
		if peer == own {
			continue
		}
		if t, ok := peer.steal(); ok {
			return t, true
		}
	}
	return Task{}, false
}

// sleepUntilWoken returns once it claims a wake token, or once no worker
// is active any more; in the latter case the caller's next empty pop
// brings active back to zero and lets it exit too.
func (c *crawler) sleepUntilWoken() {
	for {
		time.Sleep(sleepInterval)
		old := c.wake.Load()
		if old > 0 && c.wake.CompareAndSwap(old, old-1) {
			return
		}
		if c.active.Load() == 0 {
			return
		}
	}
}

func (c *crawler) runTask(ctx context.Context, own *deque, task Task) {
	relPath := strings.Join(task.Relative, "/")
	cwd := filepath.Join(c.opts.MirrorRoot, filepath.FromSlash(relPath))

	verdict := exclude.Ok
	if c.opts.Policy != nil {
		verdict = c.opts.Policy.Match(relPath)
	}
	if verdict == exclude.Stop {
		c.log.Info("skipping excluded path", "path", relPath)
		return
	}
	if verdict == exclude.ListOnly {
		c.log.Debug("list only", "path", relPath)
	}

	switch task.Kind {
	case KindListing:
		c.runListing(ctx, own, task, cwd, relPath, verdict)
	case KindDownload:
		c.runDownload(ctx, own, task, cwd, relPath)
	}
}

func (c *crawler) runListing(ctx context.Context, own *deque, task Task, cwd, relPath string, verdict exclude.Verdict) {
	c.observed.Insert(cwd)

	if relPath != "" && isSymlink(cwd) {
		c.log.Info("directory is a symlink, not descending", "path", cwd)
		return
	}

	result, err := c.opts.Parser.GetList(ctx, c.opts.Client, task.URL)
	if err != nil {
		c.log.Error("failed to list", "url", task.URL.String(), "error", err)
		c.failureListing.Store(true)
		return
	}

	if result.IsRedirect() {
		c.handleRedirect(task, cwd, result.RedirectTo)
		return
	}

	for _, item := range result.Items {
		if item.Type == listing.Directory {
			childRelative := appendRelative(task.Relative, item.Name)
			own.push(Task{Kind: KindListing, Relative: childRelative, URL: item.URL})
			c.wake.Add(1)
		} else {
			if verdict == exclude.ListOnly {
				// The file's own verdict decides: only a file that is Ok at
				// its full relative path is downloaded from a list-only
				// directory.
				relativeFile := item.Name
				if relPath != "" {
					relativeFile = relPath + "/" + item.Name
				}
				if c.opts.Policy.Match(relativeFile) != exclude.Ok {
					c.log.Info("skipping (by list only)", "url", item.URL.String())
					continue
				}
			}
			own.push(Task{Kind: KindDownload, Relative: appendRelative(task.Relative), URL: item.URL, Item: item})
			c.wake.Add(1)
			if item.Size != nil {
				c.statSize.Add(item.Size.EstimatedBytes())
			}
		}
		c.statObjects.Add(1)
	}
}

func (c *crawler) handleRedirect(task Task, cwd, redirectTo string) {
	c.log.Info("redirected, materialising symlink", "url", task.URL.String(), "target", redirectTo)
	if _, err := os.Lstat(cwd); err == nil {
		c.log.Warn("skipping symlink creation, path already exists", "path", cwd)
		return
	}
	targetName, err := download.TargetNameFromRedirect(redirectTo)
	if err != nil {
		c.log.Error("failed to derive symlink target name", "target", redirectTo, "error", err)
		return
	}
	if err := download.Symlink(targetName, cwd); err != nil {
		c.log.Error("failed to create symlink", "path", cwd, "target", targetName, "error", err)
	}
}

func (c *crawler) runDownload(ctx context.Context, own *deque, task Task, cwd, relPath string) {
	if !c.opts.DryRun {
		if err := os.MkdirAll(cwd, 0o755); err != nil {
			c.log.Error("failed to create directory", "path", cwd, "error", err)
			c.failureDownloading.Store(true)
			return
		}
	}

	item := task.Item
	expectedPath := filepath.Join(cwd, item.Name)
	relativeFile := item.Name
	if relPath != "" {
		relativeFile = relPath + "/" + item.Name
	}

	if c.opts.Policy != nil && c.opts.Policy.Match(relativeFile) == exclude.Stop {
		// Checked before the observed-set insert below, so the file
		// remains eligible for the reconciler to delete later.
		c.log.Info("skipping excluded file", "path", relativeFile)
		return
	}

	if !c.observed.Insert(expectedPath) {
		// Another task already claimed this exact path.
		return
	}

	freshOpts := c.opts.Freshness
	freshOpts.SkipIfExists = matchesAny(c.opts.SkipIfExists, relativeFile)
	freshOpts.SizeOnly = matchesAny(c.opts.SizeOnly, relativeFile)

	info, statErr := os.Stat(expectedPath)
	if !freshness.ShouldDownload(expectedPath, info, statErr, item, freshOpts) {
		c.log.Info("skipping, already fresh", "url", task.URL.String())
		return
	}

	if c.opts.HeadBeforeGet {
		resp, err := c.opts.Client.Head(ctx, item.URL.String())
		if err != nil {
			c.log.Error("failed to HEAD", "url", task.URL.String(), "error", err)
			c.failureDownloading.Store(true)
			return
		}
		shouldDownload, err := freshness.ShouldDownloadByHead(expectedPath, info, statErr, resp)
		resp.Body.Close()
		if err != nil {
			c.log.Error("failed to evaluate HEAD response", "url", task.URL.String(), "error", err)
			c.failureDownloading.Store(true)
			return
		}
		if !shouldDownload {
			c.log.Info("skipping (by HEAD)", "url", task.URL.String())
			return
		}
	}

	if c.opts.DryRun {
		return
	}

	var progress download.ProgressReporter
	if c.opts.NewProgress != nil {
		progress = c.opts.NewProgress(item)
	}
	downloadOpts := download.Options{
		Progress:             progress,
		AllowMTimeFromParser: c.opts.AllowMTimeFromParser,
		RemoteTimezone:       c.opts.RemoteTimezone,
	}
	if err := download.File(ctx, c.opts.Client, item, expectedPath, downloadOpts); err != nil {
		c.log.Error("failed to download", "url", task.URL.String(), "error", err)
		c.failureDownloading.Store(true)
		return
	}

	c.runExpanders(own, expectedPath, task.Relative, item.URL)
}

// runExpanders offers a just-downloaded file to the extension chain.
// Expander failures are logged and never mark the parent download as
// failed (§4.E: "Expanders are purely additive"). Tasks they enqueue do
// not contribute to the crawl's object/size statistics, since those
// counters already accounted for the parent download.
func (c *crawler) runExpanders(own *deque, localPath string, relative []string, fileURL *url.URL) {
	for _, expander := range c.opts.Expanders {
		packages, err := expander(localPath, relative, fileURL)
		if err != nil {
			c.log.Warn("extension hook failed", "path", localPath, "error", err)
			continue
		}
		for _, pkg := range packages {
			own.push(Task{Kind: KindDownload, Relative: pkg.Relative, URL: pkg.URL, Item: pkg.ToItem()})
			c.wake.Add(1)
		}
	}
}

func appendRelative(relative []string, next ...string) []string {
	out := make([]string, 0, len(relative)+len(next))
	out = append(out, relative...)
	out = append(out, next...)
	return out
}

func matchesAny(patterns []*regexp.Regexp, path string) bool {
	for _, p := range patterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
