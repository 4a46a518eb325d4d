package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/codec/codectest"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/utils"
)

func TestRoundTrip(t *testing.T) {
	for _, compression := range []string{"gzip", "xz", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			c := New(codec.WriteOptions{Compression: compression})
			arena := codectest.NewArena(t)
			want := codectest.SamplePackage(t, arena)
			want.Epoch = models.IntPtr(1)

			path := filepath.Join(t.TempDir(), c.Filename(want))
			f, err := os.Create(path)
			if err != nil {
				t.Fatalf("Failed to create output: %v", err)
			}
			if err := c.Write(context.Background(), want, arena, f); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			f.Close()

			readArena := codectest.NewArena(t)
			got, err := c.Read(context.Background(), path, readArena)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}

			if got.Name != want.Name || got.Version != want.Version || got.Release != want.Release {
				t.Errorf("Identity = %s %s-%s, want %s %s-%s", got.Name, got.Version, got.Release, want.Name, want.Version, want.Release)
			}
			if got.Epoch == nil || *got.Epoch != 1 {
				t.Errorf("Epoch = %v, want 1", got.Epoch)
			}
			if got.Summary != want.Summary || got.Description != want.Description {
				t.Errorf("Description = %q/%q, want %q/%q", got.Summary, got.Description, want.Summary, want.Description)
			}
			if !reflect.DeepEqual(codectest.Paths(got), codectest.Paths(want)) {
				t.Errorf("Paths = %v, want %v", codectest.Paths(got), codectest.Paths(want))
			}
			for _, w := range want.Files {
				g, ok := got.File(w.Path)
				if !ok {
					continue
				}
				if g.Kind != w.Kind || g.Mode != w.Mode || g.Digest != w.Digest || g.LinkTarget != w.LinkTarget {
					t.Errorf("File %s = %+v, want %+v", w.Path, g, w)
				}
			}
			for _, kind := range models.ScriptKinds {
				ws, _ := want.Script(kind)
				gs, ok := got.Script(kind)
				if !ok || gs.Body != ws.Body {
					t.Errorf("Script %s = %q, want %q", kind, gs.Body, ws.Body)
				}
			}

			content, err := readArena.ReadFile("usr/bin/hello")
			if err != nil {
				t.Fatalf("Staged file missing: %v", err)
			}
			if string(content) != "#!/bin/sh\necho hello\n" {
				t.Errorf("Staged content = %q", content)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	c := New(codec.WriteOptions{})
	pkg := &models.Package{Name: "hello", Version: "2.10", Release: "3", Epoch: models.IntPtr(2), Architecture: "amd64"}
	if got := c.Filename(pkg); got != "hello_2.10-3_amd64.deb" {
		t.Errorf("Filename = %s", got)
	}
	pkg.Release = ""
	if got := c.Filename(pkg); got != "hello_2.10_amd64.deb" {
		t.Errorf("Filename = %s", got)
	}
}

func TestWriteRequiresMaintainer(t *testing.T) {
	c := New(codec.WriteOptions{})
	arena := codectest.NewArena(t)
	pkg := codectest.SamplePackage(t, arena)
	pkg.Maintainer = ""

	err := c.Write(context.Background(), pkg, arena, &bytes.Buffer{})
	if !models.IsErrorType(err, models.ErrEncoding) {
		t.Errorf("Expected encoding error, got %v", err)
	}
}

func TestChangelogGenerated(t *testing.T) {
	c := New(codec.WriteOptions{Changelog: true})
	arena := codectest.NewArena(t)
	pkg := codectest.SamplePackage(t, arena)
	pkg.Changelog = []models.ChangelogEntry{{
		Version: "2.10-3",
		Author:  "Jane Doe <jane@example.com>",
		Date:    time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Text:    "* New upstream release",
	}}

	path := filepath.Join(t.TempDir(), c.Filename(pkg))
	f, _ := os.Create(path)
	if err := c.Write(context.Background(), pkg, arena, f); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.Close()

	got, err := c.Read(context.Background(), path, codectest.NewArena(t))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if _, ok := got.File(ChangelogPath("hello")); !ok {
		t.Fatalf("changelog.Debian.gz not shipped")
	}
	if len(got.Changelog) != 1 || got.Changelog[0].Version != "2.10-3" || got.Changelog[0].Author != "Jane Doe <jane@example.com>" {
		t.Errorf("Changelog = %+v", got.Changelog)
	}
	if got.Changelog[0].Text != "* New upstream release" {
		t.Errorf("Changelog text = %q", got.Changelog[0].Text)
	}
}

// buildDeb assembles a .deb by hand so tests can corrupt individual members
func buildDeb(t *testing.T, version string, control, md5sums string, files map[string]string) string {
	t.Helper()
	tarball := func(entries map[string]string) []byte {
		var buf bytes.Buffer
		gz, _ := utils.NewCompressWriter(utils.CompressionGzip, &buf)
		tw := tar.NewWriter(gz)
		for name, body := range entries {
			tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Size: int64(len(body)), Mode: 0644})
			tw.Write([]byte(body))
		}
		tw.Close()
		gz.Close()
		return buf.Bytes()
	}

	ctrl := map[string]string{"./control": control}
	if md5sums != "" {
		ctrl["./md5sums"] = md5sums
	}

	var out bytes.Buffer
	w := ar.NewWriter(&out)
	w.WriteGlobalHeader()
	now := time.Now()
	for _, m := range []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte(version)},
		{"control.tar.gz", tarball(ctrl)},
		{"data.tar.gz", tarball(files)},
	} {
		if err := addBufferToAr(w, m.name, m.body, now); err != nil {
			t.Fatalf("Failed to build deb: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "test.deb")
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write deb: %v", err)
	}
	return path
}

const minimalControl = "Package: foo\nVersion: 1.0-1\nArchitecture: all\nMaintainer: A <a@b>\nDescription: foo tool\n"

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		version string
		control string
		md5sums string
		errType models.ErrorType
		field   string
	}{
		{
			name:    "bad format version",
			version: "3.0\n",
			control: minimalControl,
			errType: models.ErrFormat,
			field:   "debian-binary",
		},
		{
			name:    "missing description",
			version: "2.0\n",
			control: "Package: foo\nVersion: 1.0\nArchitecture: all\n",
			errType: models.ErrFormat,
			field:   "Description",
		},
		{
			name:    "checksum mismatch",
			version: "2.0\n",
			control: minimalControl,
			md5sums: "00000000000000000000000000000000  usr/bin/foo\n",
			errType: models.ErrFormat,
			field:   "md5sums",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := buildDeb(t, tt.version, tt.control, tt.md5sums, map[string]string{"./usr/bin/foo": "foo"})
			_, err := New(codec.WriteOptions{}).Read(context.Background(), path, codectest.NewArena(t))
			if !models.IsErrorType(err, tt.errType) {
				t.Fatalf("Expected %s error, got %v", tt.errType, err)
			}
			ce := err.(*models.ConversionError)
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestReadNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.deb")
	os.WriteFile(path, []byte("definitely not an ar archive"), 0644)

	_, err := New(codec.WriteOptions{}).Read(context.Background(), path, codectest.NewArena(t))
	if !models.IsErrorType(err, models.ErrFormat) {
		t.Fatalf("Expected format error, got %v", err)
	}
	if ce := err.(*models.ConversionError); ce.Offset != 0 {
		t.Errorf("Offset = %d, want 0", ce.Offset)
	}
}

func TestReadRelations(t *testing.T) {
	control := "Package: foo\nVersion: 2:1.0\nArchitecture: amd64\nMaintainer: A <a@b>\n" +
		"Pre-Depends: dpkg (>= 1.15)\nDepends: libc6 (>= 2.31), awk:any, mail-transport-agent | postfix\n" +
		"Breaks: old-foo (< 0.9)\nDescription: foo tool\n extended\n .\n more\n"
	path := buildDeb(t, "2.0\n", control, "", map[string]string{"./usr/bin/foo": "foo"})

	pkg, err := New(codec.WriteOptions{}).Read(context.Background(), path, codectest.NewArena(t))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	wantDepends := []models.Relation{
		{Name: "dpkg", Op: models.OpGreaterEqual, Version: "1.15"},
		{Name: "libc6", Op: models.OpGreaterEqual, Version: "2.31"},
		{Name: "awk"},
		{Name: "mail-transport-agent | postfix", Informational: true},
	}
	if !reflect.DeepEqual(pkg.Depends, wantDepends) {
		t.Errorf("Depends = %+v, want %+v", pkg.Depends, wantDepends)
	}
	wantConflicts := []models.Relation{{Name: "old-foo", Op: models.OpLessEqual, Version: "0.9"}}
	if !reflect.DeepEqual(pkg.Conflicts, wantConflicts) {
		t.Errorf("Conflicts = %+v, want %+v", pkg.Conflicts, wantConflicts)
	}
	if pkg.Epoch == nil || *pkg.Epoch != 2 || pkg.Release != "" {
		t.Errorf("Version = %v:%s-%s", pkg.Epoch, pkg.Version, pkg.Release)
	}
	if pkg.Description != "extended\n\nmore" {
		t.Errorf("Description = %q", pkg.Description)
	}
}

func TestFormatDescription(t *testing.T) {
	got := formatDescription("tool", "line one\n\n\tindented  \n")
	want := "tool\n line one\n .\n         indented"
	if got != want {
		t.Errorf("formatDescription = %q, want %q", got, want)
	}
	if got := formatDescription("tool", ""); got != "tool" {
		t.Errorf("formatDescription without body = %q", got)
	}
}

func TestControlInformationalRelations(t *testing.T) {
	pkg := &models.Package{
		Name:         "foo",
		Version:      "1.0",
		Architecture: "amd64",
		Maintainer:   "A <a@b>",
		Summary:      "foo tool",
		Depends: []models.Relation{
			{Name: "libc6"},
			{Name: "mail-transport-agent | postfix", Informational: true},
			{Name: "/bin/sh", Informational: true},
		},
	}

	control := string(renderControl(pkg, "1.0"))
	if !strings.Contains(control, "Depends: libc6, mail-transport-agent | postfix\n") {
		t.Errorf("control lacks the alternative:\n%s", control)
	}
	if strings.Contains(control, "/bin/sh") {
		t.Errorf("control carries a non-Debian relation:\n%s", control)
	}
}
