// Package mirrorcfg loads the TOML configuration file that supplies
// defaults for one or more named mirror targets, and merges CLI flag
// overrides on top of it field-by-field.
package mirrorcfg

import (
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

const (
	defaultWorkers   = 2
	defaultRetries   = 3
	defaultMaxDelete = 100
)

// LogConfig mirrors the teacher's slog-level configuration block.
type LogConfig struct {
	Level string `toml:"level"`
}

// Apply configures the global slog logger from Level ("debug", "info",
// "warn", "error"; empty means "info").
func (lc LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.Newf("invalid log level: %q", lc.Level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// Target is one named mirror job: an upstream index to crawl and the
// local directory to keep in sync with it, plus every sync option the CLI
// also exposes.
type Target struct {
	Upstream  string `toml:"upstream"`
	Local     string `toml:"local"`
	Parser    string `toml:"parser"`
	UserAgent string `toml:"user_agent"`

	Workers   int `toml:"workers"`
	Retries   int `toml:"retries"`
	MaxDelete int `toml:"max_delete"`

	NoDelete             bool `toml:"no_delete"`
	DryRun               bool `toml:"dry_run"`
	HeadBeforeGet        bool `toml:"head_before_get"`
	AllowMTimeFromParser bool `toml:"allow_mtime_from_parser"`

	TimezoneOffsetHours *int   `toml:"timezone_offset_hours,omitempty"`
	TimezoneProbeURL    string `toml:"timezone_probe_url,omitempty"`

	Include      []string `toml:"include,omitempty"`
	Exclude      []string `toml:"exclude,omitempty"`
	SkipIfExists []string `toml:"skip_if_exists,omitempty"`
	SizeOnly     []string `toml:"size_only,omitempty"`

	AptPackages bool `toml:"apt_packages,omitempty"`
	YumPackages bool `toml:"yum_packages,omitempty"`
}

// WithDefaults returns a Target pre-populated with the CLI's documented
// defaults (§6.1), before any file or flag values are applied.
func WithDefaults() Target {
	return Target{
		Workers:   defaultWorkers,
		Retries:   defaultRetries,
		MaxDelete: defaultMaxDelete,
	}
}

// Check validates a fully-resolved Target the way the teacher's
// MirrorConfig.Check validates one mirror's settings: required fields
// present, mutually exclusive options not both set.
func (t *Target) Check() error {
	if t.Upstream == "" {
		return errors.New("upstream is not set")
	}
	if t.Local == "" {
		return errors.New("local is not set")
	}
	if t.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if t.MaxDelete < 0 {
		return errors.New("max_delete must not be negative")
	}
	if t.TimezoneOffsetHours != nil && t.TimezoneProbeURL != "" {
		return errors.New("timezone_offset_hours and timezone_probe_url are mutually exclusive")
	}
	return nil
}

// Config is the top-level shape of a --config TOML file: ambient logging
// settings plus any number of named targets.
type Config struct {
	Log     LogConfig          `toml:"log"`
	Targets map[string]*Target `toml:"targets"`
}

// Load reads and decodes a TOML config file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, nil
}

// Overrides holds CLI flag values destined to replace a Target's fields.
// A nil pointer means "flag not given on the command line"; a non-nil
// pointer, even to a zero value, means the operator explicitly set it.
// This is the flag-override analogue of the teacher's env-tag overrides
// in internal/mirror/config.go, adapted to a CLI-first surface.
type Overrides struct {
	Upstream  *string
	Local     *string
	Parser    *string
	UserAgent *string

	Workers   *int
	Retries   *int
	MaxDelete *int

	NoDelete             *bool
	DryRun               *bool
	HeadBeforeGet        *bool
	AllowMTimeFromParser *bool

	TimezoneOffsetHours *int
	TimezoneProbeURL    *string

	Include      []string
	Exclude      []string
	SkipIfExists []string
	SizeOnly     []string

	AptPackages *bool
	YumPackages *bool
}

// Apply overlays o onto t, field by field; unset (nil) fields leave t
// unchanged, and repeatable list flags are appended rather than replacing
// the file's list outright.
func (t *Target) Apply(o Overrides) {
	if o.Upstream != nil {
		t.Upstream = *o.Upstream
	}
	if o.Local != nil {
		t.Local = *o.Local
	}
	if o.Parser != nil {
		t.Parser = *o.Parser
	}
	if o.UserAgent != nil {
		t.UserAgent = *o.UserAgent
	}
	if o.Workers != nil {
		t.Workers = *o.Workers
	}
	if o.Retries != nil {
		t.Retries = *o.Retries
	}
	if o.MaxDelete != nil {
		t.MaxDelete = *o.MaxDelete
	}
	if o.NoDelete != nil {
		t.NoDelete = *o.NoDelete
	}
	if o.DryRun != nil {
		t.DryRun = *o.DryRun
	}
	if o.HeadBeforeGet != nil {
		t.HeadBeforeGet = *o.HeadBeforeGet
	}
	if o.AllowMTimeFromParser != nil {
		t.AllowMTimeFromParser = *o.AllowMTimeFromParser
	}
	if o.TimezoneOffsetHours != nil {
		t.TimezoneOffsetHours = o.TimezoneOffsetHours
		t.TimezoneProbeURL = ""
	}
	if o.TimezoneProbeURL != nil {
		t.TimezoneProbeURL = *o.TimezoneProbeURL
		t.TimezoneOffsetHours = nil
	}
	if o.AptPackages != nil {
		t.AptPackages = *o.AptPackages
	}
	if o.YumPackages != nil {
		t.YumPackages = *o.YumPackages
	}
	t.Include = append(t.Include, o.Include...)
	t.Exclude = append(t.Exclude, o.Exclude...)
	t.SkipIfExists = append(t.SkipIfExists, o.SkipIfExists...)
	t.SizeOnly = append(t.SizeOnly, o.SizeOnly...)
}
