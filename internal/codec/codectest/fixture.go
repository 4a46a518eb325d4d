// Package codectest builds staged sample packages for codec and pipeline tests.
package codectest

import (
	"strings"
	"testing"
	"time"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/staging"
)

// BuildTime is the fixed timestamp of sample packages
var BuildTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewArena creates an arena below t.TempDir that is closed with the test.
func NewArena(t *testing.T) *staging.Arena {
	t.Helper()
	arena, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create arena: %v", err)
	}
	t.Cleanup(func() { arena.Close() })
	return arena
}

// StageFile stages content at path and returns its manifest entry.
func StageFile(t *testing.T, arena *staging.Arena, path string, mode uint32, kind models.FileKind, content string) models.FileEntry {
	t.Helper()
	sum, n, err := arena.Stage(path, strings.NewReader(content))
	if err != nil {
		t.Fatalf("Failed to stage %s: %v", path, err)
	}
	return models.FileEntry{
		Path:    path,
		Mode:    mode,
		Owner:   "root",
		Group:   "root",
		Size:    n,
		Kind:    kind,
		Digest:  sum,
		ModTime: BuildTime,
	}
}

// Dir returns a directory entry and creates it in the arena.
func Dir(t *testing.T, arena *staging.Arena, path string) models.FileEntry {
	t.Helper()
	if err := arena.Mkdir(path); err != nil {
		t.Fatalf("Failed to stage %s: %v", path, err)
	}
	return models.FileEntry{Path: path, Mode: 0755, Owner: "root", Group: "root", Kind: models.KindDirectory, ModTime: BuildTime}
}

// Symlink returns a symlink entry; symlinks have no staged body.
func Symlink(path, target string) models.FileEntry {
	return models.FileEntry{Path: path, Mode: 0777, Owner: "root", Group: "root", Kind: models.KindSymlink, LinkTarget: target, ModTime: BuildTime}
}

// SamplePackage stages a small package with a binary, a conffile, a doc file,
// a symlink and all four scripts.
func SamplePackage(t *testing.T, arena *staging.Arena) *models.Package {
	t.Helper()
	pkg := &models.Package{
		Name:         "hello",
		Version:      "2.10",
		Release:      "3",
		Architecture: "amd64",
		Summary:      "friendly greeter",
		Description:  "Prints a greeting.\n\nUseful for testing.",
		Maintainer:   "Jane Doe <jane@example.com>",
		Homepage:     "https://example.com/hello",
		License:      "GPL-3.0",
		Group:        "utils",
		BuildTime:    BuildTime,
		SourceFormat: "deb",
		Files: []models.FileEntry{
			Dir(t, arena, "etc"),
			StageFile(t, arena, "etc/hello.conf", 0644, models.KindConfFile, "greeting=hi\n"),
			Dir(t, arena, "usr"),
			Dir(t, arena, "usr/bin"),
			StageFile(t, arena, "usr/bin/hello", 0755, models.KindRegular, "#!/bin/sh\necho hello\n"),
			Symlink("usr/bin/hi", "hello"),
			Dir(t, arena, "usr/share"),
			Dir(t, arena, "usr/share/doc"),
			Dir(t, arena, "usr/share/doc/hello"),
			StageFile(t, arena, "usr/share/doc/hello/README", 0644, models.KindDocFile, "read me\n"),
		},
	}
	pkg.SetScript(models.PreInstall, models.NewScript("#!/bin/sh\necho preinst\n", "/bin/sh"))
	pkg.SetScript(models.PostInstall, models.NewScript("#!/bin/sh\necho postinst\n", "/bin/sh"))
	pkg.SetScript(models.PreRemove, models.NewScript("#!/bin/sh\necho prerm\n", "/bin/sh"))
	pkg.SetScript(models.PostRemove, models.NewScript("#!/bin/sh\necho postrm\n", "/bin/sh"))
	pkg.SortFiles()
	return pkg
}

// Paths lists manifest paths in order.
func Paths(pkg *models.Package) []string {
	out := make([]string, 0, len(pkg.Files))
	for _, f := range pkg.Files {
		out = append(out, f.Path)
	}
	return out
}
