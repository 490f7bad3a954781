// Package listing holds the shared data model for one observed remote
// directory entry: its type, size, and naive (timezone-less) modification
// time, as rendered by whatever web server generated the index page.
package listing

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FileType is the kind of a remote entry.
type FileType int

const (
	// File is a regular, downloadable entry.
	File FileType = iota
	// Directory is an entry the crawler should recurse into.
	Directory
)

func (t FileType) String() string {
	if t == Directory {
		return "Directory"
	}
	return "File"
}

// SizeUnit is one of the humanised size suffixes a dialect may report.
type SizeUnit int

const (
	UnitB SizeUnit = iota
	UnitK
	UnitM
	UnitG
	UnitT
	UnitP
)

// Exp returns the power the unit represents: K=1, M=2, and so on.
func (u SizeUnit) Exp() int {
	return int(u)
}

func (u SizeUnit) String() string {
	switch u {
	case UnitB:
		return "B"
	case UnitK:
		return "K"
	case UnitM:
		return "M"
	case UnitG:
		return "G"
	case UnitT:
		return "T"
	case UnitP:
		return "P"
	}
	return "?"
}

func unitFromString(s string) (SizeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return UnitB, nil
	case "b":
		return UnitB, nil
	case "k":
		return UnitK, nil
	case "m":
		return UnitM, nil
	case "g":
		return UnitG, nil
	case "t":
		return UnitT, nil
	case "p":
		return UnitP, nil
	}
	return UnitB, fmt.Errorf("unknown size unit: %q", s)
}

// SizeKind distinguishes how a FileSize's numeric value should be interpreted.
type SizeKind int

const (
	// Precise is an exact byte count.
	Precise SizeKind = iota
	// HumanizedBinary is a (value, unit) pair in base-1024.
	HumanizedBinary
	// HumanizedDecimal is a (value, unit) pair in base-1000.
	HumanizedDecimal
)

// FileSize is a remote-reported size, either an exact byte count or a
// humanised (number, unit) pair in a binary or decimal base.
type FileSize struct {
	Kind  SizeKind
	Exact uint64
	Value float64
	Unit  SizeUnit
}

// NewPrecise builds an exact-byte-count FileSize.
func NewPrecise(n uint64) FileSize {
	return FileSize{Kind: Precise, Exact: n}
}

// NewHumanizedBinary builds a base-1024 humanised FileSize.
func NewHumanizedBinary(v float64, u SizeUnit) FileSize {
	return FileSize{Kind: HumanizedBinary, Value: v, Unit: u}
}

// NewHumanizedDecimal builds a base-1000 humanised FileSize.
func NewHumanizedDecimal(v float64, u SizeUnit) FileSize {
	return FileSize{Kind: HumanizedDecimal, Value: v, Unit: u}
}

func (s FileSize) String() string {
	switch s.Kind {
	case Precise:
		return fmt.Sprintf("%d", s.Exact)
	default:
		return fmt.Sprintf("%.1f %s", s.Value, s.Unit)
	}
}

// EstimatedBytes returns a best-effort byte count, used only for progress
// statistics (never for the freshness comparison itself).
func (s FileSize) EstimatedBytes() uint64 {
	switch s.Kind {
	case Precise:
		return s.Exact
	case HumanizedBinary:
		return uint64(s.Value * pow(1024, s.Unit.Exp()))
	case HumanizedDecimal:
		return uint64(s.Value * pow(1000, s.Unit.Exp()))
	}
	return 0
}

func pow(base float64, exp int) float64 {
	r := 1.0
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}

// ParseHumanizedSize splits a token like "3.0K" or "262.1 K" into its numeric
// value and unit. The unit letter is matched case-insensitively.
func ParseHumanizedSize(s string) (float64, SizeUnit, error) {
	var numeric, unit strings.Builder
	for _, c := range s {
		if (c >= '0' && c <= '9') || c == '.' {
			numeric.WriteRune(c)
		} else {
			unit.WriteRune(c)
		}
	}
	var n float64
	if _, err := fmt.Sscanf(numeric.String(), "%g", &n); err != nil {
		return 0, UnitB, fmt.Errorf("parse humanized size %q: %w", s, err)
	}
	u, err := unitFromString(unit.String())
	if err != nil {
		return 0, UnitB, err
	}
	return n, u, nil
}

// Item is one entry observed in a remote index.
type Item struct {
	URL    *url.URL
	Name   string
	Type   FileType
	Size   *FileSize // nil means "unknown"
	MTime  time.Time // naive: as rendered, no timezone attached
	// SkipCheck, when set, tells the freshness comparator that "exists
	// locally" is sufficient grounds to skip re-downloading.
	SkipCheck bool
}

func (i Item) String() string {
	size := "(none)"
	if i.Size != nil {
		size = i.Size.String()
	}
	return fmt.Sprintf("%s %s %s %s %s", i.URL, i.Type, size, i.MTime.Format("2006-01-02 15:04:05"), i.Name)
}

// Result is the outcome of one listing request: a page of items, or a
// redirect the crawler should turn into a local symlink.
type Result struct {
	// Items holds the entries of a normal listing; it is nil for a redirect
	// and may also be nil for a listing with no entries.
	Items []Item
	// RedirectTo is non-empty when the remote replied with a relocation.
	RedirectTo string
}

// IsRedirect reports whether this Result represents a redirect rather than
// a page of items.
func (r Result) IsRedirect() bool {
	return r.RedirectTo != ""
}
