package tgz

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/codec/codectest"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/utils"
)

func TestRoundTrip(t *testing.T) {
	arena := codectest.NewArena(t)
	want := codectest.SamplePackage(t, arena)
	c := New(codec.WriteOptions{})

	path := filepath.Join(t.TempDir(), c.Filename(want))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create output: %v", err)
	}
	if err := c.Write(context.Background(), want, arena, f); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.Close()

	got, err := c.Read(context.Background(), path, codectest.NewArena(t))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got.Name != "hello" || got.Version != "2.10" || got.Release != "3" || got.Architecture != "amd64" {
		t.Errorf("Identity = %s %s-%s %s", got.Name, got.Version, got.Release, got.Architecture)
	}
	if got.Summary != want.Summary {
		t.Errorf("Summary = %q, want %q", got.Summary, want.Summary)
	}
	if got.Description != want.Description {
		t.Errorf("Description = %q, want %q", got.Description, want.Description)
	}
	if !reflect.DeepEqual(codectest.Paths(got), codectest.Paths(want)) {
		t.Errorf("Paths = %v, want %v", codectest.Paths(got), codectest.Paths(want))
	}
	for _, w := range want.Files {
		g, _ := got.File(w.Path)
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
	if len(got.Depends)+len(got.Conflicts)+len(got.Provides)+len(got.Replaces) != 0 {
		t.Errorf("Slackware packages carry no relations")
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		base string
		want nameInfo
	}{
		{"hello-2.10-x86_64-3.tgz", nameInfo{"hello", "2.10", "x86_64", "3"}},
		{"gtk-doc-tools-1.33-noarch-1_slack15.0.txz", nameInfo{"gtk-doc-tools", "1.33", "noarch", "1_slack15.0"}},
		{"hello-2.10.tar.gz", nameInfo{"hello", "2.10", "noarch", "1"}},
		{"my-tool-0.1.tgz", nameInfo{"my-tool", "0.1", "noarch", "1"}},
		{"hello.tgz", nameInfo{"hello", "1", "noarch", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			if got := parseFilename(tt.base); got != tt.want {
				t.Errorf("parseFilename(%q) = %+v, want %+v", tt.base, got, tt.want)
			}
		})
	}
}

type member struct {
	name string
	body string
	dir  bool
}

func buildTgz(t *testing.T, base string, members []member) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), base)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create fixture: %v", err)
	}
	defer f.Close()

	zw, err := utils.NewCompressWriter(utils.CompressionFromName(base), f)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	tw := tar.NewWriter(zw)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: 0644, Size: int64(len(m.body)), Typeflag: tar.TypeReg}
		if m.dir {
			hdr = &tar.Header{Name: m.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to write header: %v", err)
		}
		if _, err := tw.Write([]byte(m.body)); err != nil {
			t.Fatalf("Failed to write body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close compressor: %v", err)
	}
	return path
}

func TestReadWithoutSlackDesc(t *testing.T) {
	path := buildTgz(t, "tool-1.0.txz", []member{
		{name: "./", dir: true},
		{name: "install/", dir: true},
		{name: "install/doinst.sh", body: "ldconfig\n"},
		{name: "install/README.slack", body: "ignored\n"},
		{name: "usr/", dir: true},
		{name: "usr/bin/", dir: true},
		{name: "usr/bin/tool", body: "binary"},
		{name: "usr/doc/tool-1.0/NEWS", body: "news"},
	})

	pkg, err := New(codec.WriteOptions{}).Read(context.Background(), path, codectest.NewArena(t))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if pkg.Summary != "Converted tgz package" || pkg.Description != "Converted tgz package" {
		t.Errorf("Default text = %q / %q", pkg.Summary, pkg.Description)
	}
	if pkg.Architecture != "all" || pkg.Release != "1" {
		t.Errorf("Architecture/Release = %s/%s", pkg.Architecture, pkg.Release)
	}
	for _, p := range codectest.Paths(pkg) {
		if strings.HasPrefix(p, "install") {
			t.Errorf("install/ leaked into the manifest: %s", p)
		}
	}
	post, ok := pkg.Script(models.PostInstall)
	if !ok || post.Body != "ldconfig\n" || post.Interpreter != "/bin/sh" {
		t.Errorf("PostInstall = %+v", post)
	}
	if f, _ := pkg.File("usr/doc/tool-1.0/NEWS"); f.Kind != models.KindDocFile {
		t.Errorf("NEWS kind = %s, want docfile", f.Kind)
	}
}

func TestReadCorruptStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken-1.0-noarch-1.tgz")
	if err := os.WriteFile(path, []byte("definitely not gzip"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	_, err := New(codec.WriteOptions{}).Read(context.Background(), path, codectest.NewArena(t))
	if !models.IsErrorType(err, models.ErrFormat) {
		t.Errorf("Expected format error, got %v", err)
	}
}

func TestWriteRejectsInstallPaths(t *testing.T) {
	arena := codectest.NewArena(t)
	pkg := &models.Package{
		Name:    "clash",
		Version: "1",
		Files:   []models.FileEntry{codectest.StageFile(t, arena, "install/doinst.sh", 0755, models.KindRegular, "x")},
	}
	err := New(codec.WriteOptions{}).Write(context.Background(), pkg, arena, &strings.Builder{})
	if !models.IsErrorType(err, models.ErrEncoding) {
		t.Errorf("Expected encoding error, got %v", err)
	}
}

func TestSlackDesc(t *testing.T) {
	data := renderSlackDesc("hello", "friendly greeter", "Line one.\n\nLine three.")

	var lines int
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "hello:") {
			lines++
		}
	}
	if lines != slackDescLines {
		t.Errorf("slack-desc has %d lines, want %d", lines, slackDescLines)
	}
	if !strings.Contains(string(data), "hello: hello (friendly greeter)\n") {
		t.Errorf("Missing title line in:\n%s", data)
	}

	summary, description := parseSlackDesc("hello", data)
	if summary != "friendly greeter" {
		t.Errorf("summary = %q", summary)
	}
	if description != "Line one.\n\nLine three." {
		t.Errorf("description = %q", description)
	}
}

func TestFilename(t *testing.T) {
	pkg := &models.Package{Name: "hello", Version: "2.10", Architecture: "i386"}
	if got := New(codec.WriteOptions{}).Filename(pkg); got != "hello-2.10-i586-1.tgz" {
		t.Errorf("Filename = %s", got)
	}
}

func TestSlackDescOverflow(t *testing.T) {
	tests := []struct {
		description string
		kept, total int
	}{
		{"One line.", 1, 1},
		{"a\nb\nc\nd\ne\nf\ng\nh\ni", 9, 9},
		{"a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk", 9, 11},
		{"\n\ntrimmed\n\n", 1, 1},
	}
	for _, tt := range tests {
		kept, total := SlackDescOverflow(tt.description)
		if kept != tt.kept || total != tt.total {
			t.Errorf("SlackDescOverflow(%q) = %d, %d; want %d, %d", tt.description, kept, total, tt.kept, tt.total)
		}
	}

	data := renderSlackDesc("hello", "s", "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk")
	if _, description := parseSlackDesc("hello", data); description != "a\nb\nc\nd\ne\nf\ng\nh\ni" {
		t.Errorf("rendered description = %q, want the first 9 lines", description)
	}
}
