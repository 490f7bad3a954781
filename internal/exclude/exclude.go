// Package exclude implements the three-valued include/exclude policy that
// decides, for each remote path, whether the crawler should mirror it,
// merely list it without downloading, or stop recursing into it entirely.
package exclude

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// distroVarReplacements expands the spec's named release-train shorthands
// into the concrete regex alternation of their current members. Keep this
// in sync with upstream release schedules; it is deliberately a small,
// explicit table rather than a live lookup, matching how short-lived
// mirroring tools pin this kind of thing.
var distroVarReplacements = []struct {
	from string
	to   string
}{
	{"${DEBIAN_CURRENT}", "(?P<distro_ver>buster|bullseye|bookworm)"},
	{"${UBUNTU_LTS}", "(?P<distro_ver>bionic|focal|jammy)"},
	{"${UBUNTU_NONLTS}", "(?P<distro_ver>lunar|mantic)"},
	{"${FEDORA_CURRENT}", "(?P<distro_ver>37|38|39|40)"},
	{"${CENTOS_CURRENT}", "(?P<distro_ver>7)"},
	{"${RHEL_CURRENT}", "(?P<distro_ver>7|8|9)"},
	{"${OPENSUSE_CURRENT}", "(?P<distro_ver>15.4|15.5)"},
}

// ExpandedRegex is a user-supplied pattern, compiled twice: once with its
// release-train variables expanded to their real members, and once with
// every such variable replaced by a wildcard. The second form lets the
// exclusion manager recognise "a sibling value that isn't one of the named
// members" without enumerating every possible sibling.
type ExpandedRegex struct {
	inner    *regexp.Regexp
	wildcard *regexp.Regexp
}

// Compile builds an ExpandedRegex from a pattern that may reference the
// release-train variables above.
func Compile(pattern string) (ExpandedRegex, error) {
	expanded := pattern
	for _, r := range distroVarReplacements {
		expanded = strings.ReplaceAll(expanded, r.from, r.to)
	}
	wildcarded := pattern
	for i := len(distroVarReplacements) - 1; i >= 0; i-- {
		wildcarded = strings.ReplaceAll(wildcarded, distroVarReplacements[i].from, "(?P<distro_ver>.+)")
	}

	inner, err := regexp.Compile(expanded)
	if err != nil {
		return ExpandedRegex{}, errors.Wrapf(err, "compile %q", expanded)
	}
	wildcard, err := regexp.Compile(wildcarded)
	if err != nil {
		return ExpandedRegex{}, errors.Wrapf(err, "compile %q", wildcarded)
	}
	return ExpandedRegex{inner: inner, wildcard: wildcard}, nil
}

// MustCompile is Compile but panics on error, for static patterns.
func MustCompile(pattern string) ExpandedRegex {
	r, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the pattern as compiled (post variable expansion).
func (r ExpandedRegex) String() string {
	return r.inner.String()
}

// IsMatch reports whether text matches the expanded pattern.
func (r ExpandedRegex) IsMatch(text string) bool {
	return r.inner.MatchString(text)
}

// IsOthersMatch reports whether text matches the wildcard form but not the
// expanded form: a sibling value sharing the same shape as the variable
// but not one of its named members.
func (r ExpandedRegex) IsOthersMatch(text string) bool {
	return !r.inner.MatchString(text) && r.wildcard.MatchString(text)
}

// Verdict is the outcome of checking one remote path against a policy.
type Verdict int

const (
	// Ok means mirror this path normally.
	Ok Verdict = iota
	// ListOnly means list the directory's contents (so children can still
	// be matched against include rules) but never download from it directly.
	ListOnly
	// Stop means do not recurse into or download this path at all.
	Stop
)

func (v Verdict) String() string {
	switch v {
	case Ok:
		return "Ok"
	case ListOnly:
		return "ListOnly"
	case Stop:
		return "Stop"
	}
	return "Unknown"
}

// Policy partitions a set of exclude patterns into "stop instantly" and
// "list only" buckets at construction time, and evaluates paths against
// them plus a set of include patterns.
type Policy struct {
	instantStop []ExpandedRegex
	listOnly    []ExpandedRegex
	include     []ExpandedRegex
}

// NewPolicy builds a Policy from raw exclude/include patterns. An exclude
// pattern whose text is a prefix of some include pattern's text is demoted
// to "list only": the operator presumably wants to exclude the parent
// listing but still reach the included child through it.
func NewPolicy(excludePatterns, includePatterns []string) (*Policy, error) {
	includes := make([]ExpandedRegex, 0, len(includePatterns))
	for _, p := range includePatterns {
		r, err := Compile(p)
		if err != nil {
			return nil, err
		}
		includes = append(includes, r)
	}

	var instantStop, listOnly []ExpandedRegex
	for _, p := range excludePatterns {
		r, err := Compile(p)
		if err != nil {
			return nil, err
		}
		demoted := false
		for _, inc := range includes {
			if strings.HasPrefix(inc.String(), r.String()) {
				listOnly = append(listOnly, r)
				demoted = true
				break
			}
		}
		if !demoted {
			instantStop = append(instantStop, r)
		}
	}

	return &Policy{instantStop: instantStop, listOnly: listOnly, include: includes}, nil
}

// Match evaluates text (a remote path) against the policy.
func (p *Policy) Match(text string) Verdict {
	for _, r := range p.include {
		if r.IsMatch(text) {
			return Ok
		}
	}
	for _, r := range p.instantStop {
		if r.IsMatch(text) {
			return Stop
		}
	}
	// An include pattern naming a fixed set of sibling values (e.g. a
	// distro-version alternation) implies everything else under the same
	// parent is out of scope; this shortcut stops recursion into those
	// siblings without needing an explicit exclude rule for each of them.
	for _, r := range p.include {
		if r.IsOthersMatch(text) {
			return Stop
		}
	}
	for _, r := range p.listOnly {
		if r.IsMatch(text) {
			return ListOnly
		}
	}
	return Ok
}
