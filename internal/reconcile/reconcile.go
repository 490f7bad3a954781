// Package reconcile implements the deletion pass that runs after a crawl:
// a depth-first, children-first walk of the mirror root that removes any
// path the crawl never touched.
package reconcile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/httpmirror/internal/crawl"
)

// Options controls one reconciliation pass.
type Options struct {
	MirrorRoot     string
	Observed       *crawl.ObservedSet
	FailureListing bool
	NoDelete       bool
	MaxDelete      int
	DryRun         bool
	Logger         *slog.Logger
}

// Result summarises one reconciliation pass.
type Result struct {
	Deleted           int
	FSRemovalFailed   bool
	MaxDeleteExceeded bool
}

// Run walks MirrorRoot and deletes every entry absent from Observed,
// subject to the gates in Options. Under dry-run, or when the crawl's
// listing failed, the walk is skipped entirely: dry-run never previews
// deletions, and a failed listing makes "absent from Observed" unsafe to
// trust (§4.H / §9 Open Question: "dry-run skips the walk, not just the
// removals").
func Run(opts Options) Result {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if opts.DryRun {
		log.Info("dry run: skipping reconciliation")
		return Result{}
	}
	if opts.FailureListing {
		log.Error("listing failed during crawl, not deleting anything")
		return Result{}
	}

	r := &reconciler{opts: opts, log: log, root: filepath.Clean(opts.MirrorRoot)}
	if err := r.walk(r.root); err != nil {
		log.Error("reconciliation walk failed", "error", err)
	}
	return r.result
}

type reconciler struct {
	opts    Options
	log     *slog.Logger
	root    string
	result  Result
	aborted bool
}

func (r *reconciler) walk(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read dir %s", dir)
	}

	for _, entry := range entries {
		if r.aborted {
			return nil
		}
		child := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := r.walk(child); err != nil {
				return err
			}
			if r.aborted {
				return nil
			}
		}

		if r.opts.Observed.Contains(child) {
			continue
		}
		r.removeOne(child)
	}
	return nil
}

func (r *reconciler) removeOne(path string) {
	if r.opts.NoDelete {
		r.log.Info("not in remote", "path", path)
		return
	}
	if r.result.Deleted >= r.opts.MaxDelete {
		r.log.Info("exceeding max delete count, aborting")
		r.result.MaxDeleteExceeded = true
		r.aborted = true
		return
	}
	r.result.Deleted++

	// Invariant: every candidate path is derived by walking down from
	// root, so it must live under it; a violation here is a logic bug in
	// the walk above, not a runtime condition to recover from.
	if !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
		panic("reconcile: candidate path escaped mirror root: " + path)
	}

	r.log.Info("deleting", "path", path)
	// os.Remove refuses a non-empty directory, which is exactly right
	// here: a directory still holding observed children must survive.
	if err := os.Remove(path); err != nil {
		r.log.Error("failed to remove", "path", path, "error", err)
		r.result.FSRemovalFailed = true
	}
}
