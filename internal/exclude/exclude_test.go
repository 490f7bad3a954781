package exclude_test

import (
	"testing"

	"github.com/mirrorctl/httpmirror/internal/exclude"
)

func TestExpandedRegexVariableExpansion(t *testing.T) {
	r, err := exclude.Compile(`^/deb/dists/${DEBIAN_CURRENT}`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !r.IsMatch("/deb/dists/bookworm/Release") {
		t.Fatalf("expected match on bookworm")
	}
	if r.IsMatch("/deb/dists/wheezy/Release") {
		t.Fatalf("expected no match on wheezy")
	}
}

func TestExpandedRegexOthersMatchShortcut(t *testing.T) {
	r, err := exclude.Compile(`^/deb/dists/${DEBIAN_CURRENT}`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !r.IsOthersMatch("/deb/dists/wheezy/Release") {
		t.Fatalf("expected wheezy to be an 'others' match (not in DEBIAN_CURRENT, but same shape)")
	}
	if r.IsOthersMatch("/deb/dists/bookworm/Release") {
		t.Fatalf("bookworm is a named member, not an 'others' match")
	}
	if r.IsOthersMatch("/completely/unrelated/path") {
		t.Fatalf("unrelated path should not match the wildcard form at all")
	}
}

func TestPolicyInstantStop(t *testing.T) {
	target := "/debian/pmg/dists/stretch/pmgtest/binary-amd64/grub-efi-amd64-bin_2.02-pve6.changelog"
	policy, err := exclude.NewPolicy([]string{`pmg/dists/.+/pmgtest/.+changelog$`}, nil)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if got := policy.Match(target); got != exclude.Stop {
		t.Fatalf("Match() = %v, want Stop", got)
	}
}

func TestPolicyIncludeWins(t *testing.T) {
	policy, err := exclude.NewPolicy([]string{`^/debian`}, []string{`^/debian/pool`})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if got := policy.Match("/debian/pool/main/a.deb"); got != exclude.Ok {
		t.Fatalf("Match() = %v, want Ok (include overrides exclude)", got)
	}
}

func TestPolicyExcludeDemotedToListOnly(t *testing.T) {
	// Exclude is a textual prefix of the include pattern: the exclude should
	// be demoted to ListOnly so traversal can still reach the include.
	policy, err := exclude.NewPolicy([]string{`^/debian/dists`}, []string{`^/debian/dists/stable/main`})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if got := policy.Match("/debian/dists/oldstable/contrib"); got != exclude.ListOnly {
		t.Fatalf("Match() = %v, want ListOnly", got)
	}
	if got := policy.Match("/debian/dists/stable/main/a.deb"); got != exclude.Ok {
		t.Fatalf("Match() = %v, want Ok", got)
	}
}

func TestPolicyOthersMatchShortcutStopsSiblingRecursion(t *testing.T) {
	policy, err := exclude.NewPolicy(nil, []string{`^/fedora/${FEDORA_CURRENT}/`})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if got := policy.Match("/fedora/30/"); got != exclude.Stop {
		t.Fatalf("Match() = %v, want Stop (fedora/30 is not a current release)", got)
	}
	if got := policy.Match("/fedora/39/"); got != exclude.Ok {
		t.Fatalf("Match() = %v, want Ok (fedora/39 is a current release)", got)
	}
}

func TestPolicyDefaultOk(t *testing.T) {
	policy, err := exclude.NewPolicy(nil, nil)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if got := policy.Match("/anything"); got != exclude.Ok {
		t.Fatalf("Match() = %v, want Ok", got)
	}
}
