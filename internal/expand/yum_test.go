package expand_test

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mirrorctl/httpmirror/internal/expand"
)

func TestIsYumPrimaryXML(t *testing.T) {
	if !expand.IsYumPrimaryXML("/repo/repodata/abcdef-primary.xml.gz") {
		t.Fatalf("expected primary.xml.gz to be recognised")
	}
	if expand.IsYumPrimaryXML("/repo/repodata/abcdef-other.xml.gz") {
		t.Fatalf("non-primary metadata should not be recognised")
	}
}

const primaryXMLFixture = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
<package type="rpm">
<location href="Packages/g/grub2-efi-x64-2.06-10.el9.x86_64.rpm" />
</package>
<package type="rpm">
<location href="Packages/v/vim-enhanced-8.2.2637-20.el9.x86_64.rpm" />
</package>
</metadata>
`

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("write gzip fixture: %v", err)
	}
}

func TestParseYumPackages(t *testing.T) {
	dir := t.TempDir()
	repoDir := filepath.Join(dir, "rockylinux", "9", "BaseOS", "x86_64", "os")
	repodataDir := filepath.Join(repoDir, "repodata")
	if err := os.MkdirAll(repodataDir, 0o755); err != nil {
		t.Fatalf("mkdir fixture tree: %v", err)
	}
	metadataPath := filepath.Join(repodataDir, "abcdef-primary.xml.gz")
	writeGzip(t, metadataPath, primaryXMLFixture)

	relative := []string{"rockylinux", "9", "BaseOS", "x86_64", "os", "repodata"}
	metadataURL := mustParseURL(t, "https://dl.rockylinux.org/pub/rocky/9/BaseOS/x86_64/os/repodata/abcdef-primary.xml.gz")

	packages, err := expand.ParseYumPackages(metadataPath, relative, metadataURL)
	if err != nil {
		t.Fatalf("ParseYumPackages: %v", err)
	}
	if len(packages) != 2 {
		t.Fatalf("got %d packages, want 2", len(packages))
	}
	first := packages[0]
	if first.Filename != "grub2-efi-x64-2.06-10.el9.x86_64.rpm" {
		t.Fatalf("first.Filename = %q", first.Filename)
	}
	wantRelative := []string{"rockylinux", "9", "BaseOS", "x86_64", "os", "Packages", "g"}
	if strings.Join(first.Relative, "/") != strings.Join(wantRelative, "/") {
		t.Fatalf("first.Relative = %v, want %v", first.Relative, wantRelative)
	}
	wantURL := "https://dl.rockylinux.org/pub/rocky/9/BaseOS/x86_64/os/Packages/g/grub2-efi-x64-2.06-10.el9.x86_64.rpm"
	if first.URL.String() != wantURL {
		t.Fatalf("first.URL = %q, want %q", first.URL.String(), wantURL)
	}
}
