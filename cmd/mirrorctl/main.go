// Package main implements the mirrorctl command-line tool for mirroring
// HTTP directory indexes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mirrorctl/httpmirror/internal/crawl"
	"github.com/mirrorctl/httpmirror/internal/download"
	"github.com/mirrorctl/httpmirror/internal/exclude"
	"github.com/mirrorctl/httpmirror/internal/expand"
	"github.com/mirrorctl/httpmirror/internal/freshness"
	"github.com/mirrorctl/httpmirror/internal/httpx"
	"github.com/mirrorctl/httpmirror/internal/indexpage"
	"github.com/mirrorctl/httpmirror/internal/listing"
	"github.com/mirrorctl/httpmirror/internal/mirrorcfg"
	"github.com/mirrorctl/httpmirror/internal/reconcile"
)

// Exit codes (§6.3); finalExitCode documents the order in which they are
// assigned.
const (
	exitSuccess           = 0
	exitListingFailed     = 1
	exitDownloadsFailed   = 2
	exitWorkerPanicked    = 3
	exitRemovalFailed     = 4
	exitMaxDeleteExceeded = 25
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	logLevel   string

	userAgent            string
	dryRun               bool
	workers              int
	noDelete             bool
	maxDelete            int
	timezoneOffsetHours  int
	timezoneProbeURL     string
	retries              int
	headBeforeGet        bool
	parserName           string
	includePatterns      []string
	excludePatterns      []string
	skipIfExistsPatterns []string
	sizeOnlyPatterns     []string
	allowMTimeFromParser bool
	aptPackages          bool
	yumPackages          bool

	// exitCode is set by the dispatched subcommand before it returns, since
	// cobra's Execute only distinguishes "errored" from "didn't".
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "mirrorctl",
	Short: "Mirror HTTP directory indexes",
	Long: `mirrorctl crawls a remote HTTP directory listing and keeps a local
directory tree in sync with it: new and changed files are downloaded,
vanished ones are deleted, and redirected directories are materialised
as symlinks.`,
}

var syncCmd = &cobra.Command{
	Use:   "sync <upstream-url> <local-dir>",
	Short: "Mirror an upstream directory index into a local directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runSync,
}

var listCmd = &cobra.Command{
	Use:   "list <upstream-folder-url>",
	Short: "List a single remote directory without downloading anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("mirrorctl %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML file providing defaults for any flag below")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&parserName, "parser", "nginx", "index page dialect (nginx, apache-f2, lighttpd, directorylister, caddy, docker)")
	rootCmd.PersistentFlags().StringArrayVar(&includePatterns, "include", nil, "include regex (repeatable)")
	rootCmd.PersistentFlags().StringArrayVar(&excludePatterns, "exclude", nil, "exclude regex (repeatable)")

	syncCmd.Flags().StringVar(&userAgent, "user-agent", "", "User-Agent header sent with every request")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be downloaded without writing anything")
	syncCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent crawl workers (default 2)")
	syncCmd.Flags().BoolVar(&noDelete, "disable-delete", false, "never delete local paths absent from the remote listing")
	syncCmd.Flags().IntVar(&maxDelete, "max-delete", 0, "abort if more than this many paths would be deleted (default 100)")
	syncCmd.Flags().IntVar(&timezoneOffsetHours, "timezone-offset-hours", 0, "hour offset to apply to naive remote mtimes")
	syncCmd.Flags().StringVar(&timezoneProbeURL, "timezone-probe-url", "", "URL to probe for the remote server's UTC offset (mutually exclusive with --timezone-offset-hours)")
	syncCmd.Flags().IntVar(&retries, "retries", 0, "HTTP retry count (default 3)")
	syncCmd.Flags().BoolVar(&headBeforeGet, "head-before-get", false, "issue a HEAD request to re-check freshness immediately before GET")
	syncCmd.Flags().StringArrayVar(&skipIfExistsPatterns, "skip-if-exists", nil, "regex: local existence alone is sufficient (repeatable)")
	syncCmd.Flags().StringArrayVar(&sizeOnlyPatterns, "compare-size-only", nil, "regex: skip the mtime comparison, size alone decides freshness (repeatable)")
	syncCmd.Flags().BoolVar(&allowMTimeFromParser, "allow-mtime-from-parser", false, "fall back to a listing's own mtime column when the GET response has no Last-Modified")
	syncCmd.Flags().BoolVar(&aptPackages, "apt-packages", false, "expand Packages(.gz/.xz) files into per-package download tasks")
	syncCmd.Flags().BoolVar(&yumPackages, "yum-packages", false, "expand primary.xml.gz files into per-package download tasks")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	os.Exit(run())
}

// run dispatches the command tree and recovers a panic on the command
// goroutine into exit code 3 (§5). Crawl workers run on their own
// goroutines; crawl.Run recovers a panic there and exits with the same
// code itself.
func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panicked", "panic", r)
			code = exitWorkerPanicked
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitListingFailed
	}
	return exitCode
}

func setupLogging() {
	level := os.Getenv("MIRRORCTL_LOG")
	if logLevel != "" {
		level = logLevel
	}
	lc := mirrorcfg.LogConfig{Level: level}
	if err := lc.Apply(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// loadTarget resolves a sync target from --config (if given) overlaid with
// CLI flags, or from CLI flags alone (§2.1's file-then-flag override
// discipline).
func loadTarget(upstream, local string) (mirrorcfg.Target, error) {
	target := mirrorcfg.WithDefaults()

	if configPath != "" {
		cfg, err := mirrorcfg.Load(configPath)
		if err != nil {
			return mirrorcfg.Target{}, err
		}
		if logLevel == "" {
			if err := cfg.Log.Apply(); err != nil {
				return mirrorcfg.Target{}, err
			}
		}
		if t, ok := cfg.Targets[upstream]; ok {
			target = *t
		} else if len(cfg.Targets) == 1 {
			for _, t := range cfg.Targets {
				target = *t
			}
		}
	}

	flags := syncCmd.Flags()
	o := mirrorcfg.Overrides{
		Upstream:             strPtr(upstream),
		Local:                strPtr(local),
		Parser:               strPtrIfSet(flags, "parser", parserName),
		UserAgent:            strPtrIfSet(flags, "user-agent", userAgent),
		Workers:              intPtrIfSet(flags, "workers", workers),
		Retries:              intPtrIfSet(flags, "retries", retries),
		MaxDelete:            intPtrIfSet(flags, "max-delete", maxDelete),
		NoDelete:             boolPtrIfSet(flags, "disable-delete", noDelete),
		DryRun:               boolPtrIfSet(flags, "dry-run", dryRun),
		HeadBeforeGet:        boolPtrIfSet(flags, "head-before-get", headBeforeGet),
		AllowMTimeFromParser: boolPtrIfSet(flags, "allow-mtime-from-parser", allowMTimeFromParser),
		Include:              includePatterns,
		Exclude:              excludePatterns,
		SkipIfExists:         skipIfExistsPatterns,
		SizeOnly:             sizeOnlyPatterns,
		AptPackages:          boolPtrIfSet(flags, "apt-packages", aptPackages),
		YumPackages:          boolPtrIfSet(flags, "yum-packages", yumPackages),
	}
	if flags.Changed("timezone-offset-hours") {
		o.TimezoneOffsetHours = &timezoneOffsetHours
	}
	if timezoneProbeURL != "" {
		o.TimezoneProbeURL = &timezoneProbeURL
	}
	target.Apply(o)

	if err := target.Check(); err != nil {
		return mirrorcfg.Target{}, err
	}
	return target, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	setupLogging()

	target, err := loadTarget(args[0], args[1])
	if err != nil {
		exitCode = exitListingFailed
		return err
	}

	upstream, err := url.Parse(target.Upstream)
	if err != nil {
		exitCode = exitListingFailed
		return errors.Wrap(err, "parse upstream URL")
	}

	parser, err := indexpage.ByName(target.Parser)
	if err != nil {
		exitCode = exitListingFailed
		return err
	}

	policy, err := exclude.NewPolicy(target.Exclude, target.Include)
	if err != nil {
		exitCode = exitListingFailed
		return errors.Wrap(err, "build exclusion policy")
	}

	remoteTZ, err := resolveTimezone(cmd.Context(), target)
	if err != nil {
		exitCode = exitListingFailed
		return err
	}

	skipIfExists, err := compilePatterns(target.SkipIfExists)
	if err != nil {
		exitCode = exitListingFailed
		return errors.Wrap(err, "compile --skip-if-exists patterns")
	}
	sizeOnly, err := compilePatterns(target.SizeOnly)
	if err != nil {
		exitCode = exitListingFailed
		return errors.Wrap(err, "compile --compare-size-only patterns")
	}

	client := httpx.New(buildHTTPClient(target, parser.FollowsRedirect()), target.UserAgent, target.Retries)

	var expanders []expand.Expander
	if target.AptPackages {
		expanders = append(expanders, expand.AptExpander)
	}
	if target.YumPackages {
		expanders = append(expanders, expand.YumExpander)
	}

	var bar *pb.ProgressBar
	if !target.DryRun {
		bar = pb.New64(0).Set(pb.Bytes, true).
			SetTemplateString(`{{ "Downloaded:" }} {{counters . }} {{speed . "%s/s"}} {{etime .}}`)
		bar.Start()
	}

	opts := crawl.Options{
		Client:               client,
		Parser:               parser,
		Workers:              target.Workers,
		MirrorRoot:           target.Local,
		Upstream:             upstream,
		Policy:               policy,
		Freshness:            freshness.Options{RemoteTimezone: remoteTZ},
		SkipIfExists:         skipIfExists,
		SizeOnly:             sizeOnly,
		HeadBeforeGet:        target.HeadBeforeGet,
		DryRun:               target.DryRun,
		AllowMTimeFromParser: target.AllowMTimeFromParser,
		RemoteTimezone:       remoteTZ,
		Expanders:            expanders,
		Logger:               slog.Default(),
	}
	if bar != nil {
		opts.NewProgress = func(listing.Item) download.ProgressReporter {
			return barReporter{bar}
		}
	}

	result, err := crawl.Run(cmd.Context(), opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		exitCode = exitListingFailed
		return err
	}

	slog.Info("crawl complete", "objects", result.Objects, "bytes", result.Size,
		"listing_failed", result.FailureListing, "download_failed", result.FailureDownloading)

	reconcileResult := reconcile.Run(reconcile.Options{
		MirrorRoot:     target.Local,
		Observed:       result.Observed,
		FailureListing: result.FailureListing,
		NoDelete:       target.NoDelete,
		MaxDelete:      target.MaxDelete,
		DryRun:         target.DryRun,
		Logger:         slog.Default(),
	})

	exitCode = finalExitCode(result, reconcileResult)
	return nil
}

// compilePatterns compiles a --skip-if-exists/--compare-size-only regex
// list; nil input compiles to a nil (never-matching) slice.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", p)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// barReporter adapts a shared *pb.ProgressBar, ticking for every download
// on the run, to download.ProgressReporter.
type barReporter struct {
	bar *pb.ProgressBar
}

func (r barReporter) Add(n int64) {
	r.bar.Add64(n)
}

// finalExitCode applies the original's evaluation order (sync.rs: listing
// failure, then the reconciler block, then download failure last), so each
// later check overwrites the exit code set by an earlier one. Download
// failure is checked last and therefore wins over a reconciler-set code in
// a combined download-failure + max-delete-exceeded run, matching the
// original's exit code 2 rather than 25 for that combination (see
// DESIGN.md's Open Question resolutions).
func finalExitCode(crawlResult *crawl.Result, reconcileResult reconcile.Result) int {
	code := exitSuccess
	if crawlResult.FailureListing {
		code = exitListingFailed
	}
	if reconcileResult.FSRemovalFailed {
		code = exitRemovalFailed
	}
	if reconcileResult.MaxDeleteExceeded {
		code = exitMaxDeleteExceeded
	}
	if crawlResult.FailureDownloading {
		code = exitDownloadsFailed
	}
	return code
}

func runList(cmd *cobra.Command, args []string) error {
	setupLogging()

	upstream, err := url.Parse(args[0])
	if err != nil {
		exitCode = exitListingFailed
		return errors.Wrap(err, "parse upstream URL")
	}

	parser, err := indexpage.ByName(parserName)
	if err != nil {
		exitCode = exitListingFailed
		return err
	}

	policy, err := exclude.NewPolicy(excludePatterns, includePatterns)
	if err != nil {
		exitCode = exitListingFailed
		return errors.Wrap(err, "build exclusion policy")
	}

	listClient := &http.Client{Timeout: 30 * time.Second}
	if !parser.FollowsRedirect() {
		listClient.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	client := httpx.New(listClient, userAgent, 3)

	result, err := parser.GetList(cmd.Context(), client, upstream)
	if err != nil {
		exitCode = exitListingFailed
		return err
	}
	if result.IsRedirect() {
		fmt.Printf("redirect -> %s\n", result.RedirectTo)
		exitCode = exitSuccess
		return nil
	}

	for _, item := range result.Items {
		relative := strings.TrimPrefix(item.URL.String(), upstream.String())
		fmt.Printf("%s\t%s\t%s\n", policy.Match(relative), item, relative)
	}

	exitCode = exitSuccess
	return nil
}

// resolveTimezone turns the mutually-exclusive timezone options into a
// single *time.Location, probing the remote server's own Date header when
// a probe URL was given (§6.1).
func resolveTimezone(ctx context.Context, target mirrorcfg.Target) (*time.Location, error) {
	if target.TimezoneOffsetHours != nil {
		return time.FixedZone("", *target.TimezoneOffsetHours*3600), nil
	}
	if target.TimezoneProbeURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.TimezoneProbeURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build timezone probe request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "probe timezone")
	}
	defer resp.Body.Close()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return nil, errors.New("timezone probe response had no Date header")
	}
	t, err := time.Parse(time.RFC1123, dateHeader)
	if err != nil {
		return nil, errors.Wrap(err, "parse timezone probe Date header")
	}
	_, offset := t.Zone()
	return time.FixedZone("", offset), nil
}

// buildHTTPClient sizes the connection pool off the worker count, matching
// the teacher's transport.MaxIdleConnsPerHost = config.MaxConns pattern,
// and honours BIND_ADDRESS for the outbound local address (§6.2). When the
// active dialect doesn't follow redirects itself (the docker dialect;
// §4.B, §4.F "On Redirect"), the client must not auto-follow either, or
// the dialect's parser never sees the Location header it needs to
// materialise a symlink (§6.4) instead of descending into the target.
func buildHTTPClient(target mirrorcfg.Target, followsRedirect bool) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = target.Workers

	if bind := os.Getenv("BIND_ADDRESS"); bind != "" {
		localAddr := &net.TCPAddr{IP: net.ParseIP(bind)}
		dialer := &net.Dialer{LocalAddr: localAddr, Timeout: 30 * time.Second}
		tr.DialContext = dialer.DialContext
	}

	client := &http.Client{Transport: tr}
	if !followsRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func strPtr(s string) *string { return &s }

// strPtrIfSet/intPtrIfSet/boolPtrIfSet return a pointer to the bound flag
// value only when the operator actually set that flag, preserving
// Overrides' "nil means untouched" contract.

func strPtrIfSet(flags *pflag.FlagSet, name, value string) *string {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}

func intPtrIfSet(flags *pflag.FlagSet, name string, value int) *int {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}

func boolPtrIfSet(flags *pflag.FlagSet, name string, value bool) *bool {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}
