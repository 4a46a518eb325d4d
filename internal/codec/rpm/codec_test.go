package rpm

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/codec/codectest"
	"github.com/ralt/pkgconv/internal/models"
)

func roundTrip(t *testing.T, c *Codec, mutate func(*models.Package)) (*models.Package, *models.Package) {
	t.Helper()
	arena := codectest.NewArena(t)
	want := codectest.SamplePackage(t, arena)
	if mutate != nil {
		mutate(want)
	}

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
	return want, got
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []string{"gzip", "xz", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			want, got := roundTrip(t, New(codec.WriteOptions{Compression: compression}), func(p *models.Package) {
				p.Epoch = models.IntPtr(3)
				p.Depends = []models.Relation{{Name: "libfoo", Op: models.OpGreaterEqual, Version: "2.0"}}
				p.Conflicts = []models.Relation{{Name: "oldhello", Op: models.OpLess, Version: "1.0"}}
			})

			if got.Name != want.Name || got.Version != want.Version || got.Release != want.Release {
				t.Errorf("Identity = %s %s-%s", got.Name, got.Version, got.Release)
			}
			if got.Epoch == nil || *got.Epoch != 3 {
				t.Errorf("Epoch = %v, want 3", got.Epoch)
			}
			if got.Architecture != "amd64" {
				t.Errorf("Architecture = %s, want amd64", got.Architecture)
			}
			if got.Summary != want.Summary || got.License != want.License || got.Homepage != want.Homepage {
				t.Errorf("Metadata = %q %q %q", got.Summary, got.License, got.Homepage)
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

			wantDepends := []models.Relation{{Name: "libfoo", Op: models.OpGreaterEqual, Version: "2.0"}}
			if !reflect.DeepEqual(got.Depends, wantDepends) {
				t.Errorf("Depends = %+v, want %+v", got.Depends, wantDepends)
			}
			wantConflicts := []models.Relation{{Name: "oldhello", Op: models.OpLess, Version: "1.0"}}
			if !reflect.DeepEqual(got.Conflicts, wantConflicts) {
				t.Errorf("Conflicts = %+v, want %+v", got.Conflicts, wantConflicts)
			}
		})
	}
}

func TestInformationalRelationsBecomeSuggests(t *testing.T) {
	_, got := roundTrip(t, New(codec.WriteOptions{}), func(p *models.Package) {
		p.Depends = []models.Relation{
			{Name: "bash"},
			{Name: "mail-transport-agent", Informational: true},
		}
		p.Conflicts = []models.Relation{
			{Name: "hello-legacy"},
			{Name: "oldhello", Informational: true},
		}
		p.Provides = []models.Relation{{Name: "hello-bin", Informational: true}}
		p.Replaces = []models.Relation{{Name: "perl(Old)", Informational: true}}
	})

	want := []models.Relation{
		{Name: "bash"},
		{Name: "mail-transport-agent", Informational: true},
	}
	if !reflect.DeepEqual(got.Depends, want) {
		t.Errorf("Depends = %+v, want %+v", got.Depends, want)
	}
	wantConflicts := []models.Relation{{Name: "hello-legacy"}}
	if !reflect.DeepEqual(got.Conflicts, wantConflicts) {
		t.Errorf("Conflicts = %+v, want %+v", got.Conflicts, wantConflicts)
	}
	if len(got.Provides) != 0 || len(got.Replaces) != 0 {
		t.Errorf("informational provides or replaces written: %+v %+v", got.Provides, got.Replaces)
	}
}

func TestLSBSource(t *testing.T) {
	_, got := roundTrip(t, NewLSB(codec.WriteOptions{}), func(p *models.Package) {
		p.Name = "lsb-hello"
	})
	if got.SourceFormat != "lsb" {
		t.Errorf("SourceFormat = %s, want lsb", got.SourceFormat)
	}
}

func TestFilename(t *testing.T) {
	pkg := &models.Package{Name: "hello", Version: "2.10", Release: "3", Architecture: "amd64"}
	if got := New(codec.WriteOptions{}).Filename(pkg); got != "hello-2.10-3.x86_64.rpm" {
		t.Errorf("Filename = %s", got)
	}
	pkg.Architecture = "all"
	if got := New(codec.WriteOptions{}).Filename(pkg); got != "hello-2.10-3.noarch.rpm" {
		t.Errorf("Filename = %s", got)
	}
}

func TestBadLead(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		errType models.ErrorType
	}{
		{"empty", nil, models.ErrFormat},
		{"bad magic", append([]byte("not an rpm at all"), make([]byte, 96)...), models.ErrFormat},
		{"bad version", append([]byte{0xed, 0xab, 0xee, 0xdb, 9, 0, 0, 0}, make([]byte, 88)...), models.ErrFormat},
		{"source package", append([]byte{0xed, 0xab, 0xee, 0xdb, 3, 0, 0, 1}, make([]byte, 88)...), models.ErrUnsupportedFeature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.rpm")
			if err := os.WriteFile(path, tt.data, 0644); err != nil {
				t.Fatalf("Failed to write fixture: %v", err)
			}
			arena := codectest.NewArena(t)

			_, err := New(codec.WriteOptions{}).Read(context.Background(), path, arena)
			if !models.IsErrorType(err, tt.errType) {
				t.Fatalf("Expected %s error, got %v", tt.errType, err)
			}
			if tt.errType == models.ErrFormat {
				if ce := err.(*models.ConversionError); ce.Offset != 0 {
					t.Errorf("Offset = %d, want 0", ce.Offset)
				}
			}
			populated, err := arena.Populated()
			if err != nil {
				t.Fatalf("Populated failed: %v", err)
			}
			if populated {
				t.Errorf("Arena populated after a lead failure")
			}
		})
	}
}

func TestApplyPrefixes(t *testing.T) {
	pkg := &models.Package{Name: "reloc"}
	pkg.SetScript(models.PostInstall, models.Script{Interpreter: "/bin/sh", Body: "#!/bin/sh\necho $RPM_INSTALL_PREFIX\n"})
	pkg.SetScript(models.PreRemove, models.Script{Interpreter: "/bin/sh", Body: "echo bye\n"})

	if err := applyPrefixes([]string{"/opt/app"}, pkg); err != nil {
		t.Fatalf("applyPrefixes failed: %v", err)
	}

	post, _ := pkg.Script(models.PostInstall)
	if !strings.HasPrefix(post.Body, "#!/bin/sh\nRPM_INSTALL_PREFIX=") {
		t.Errorf("Shebang must stay first, got %q", post.Body)
	}
	pre, _ := pkg.Script(models.PreRemove)
	if !strings.HasPrefix(pre.Body, "RPM_INSTALL_PREFIX=") || !strings.Contains(pre.Body, "/opt/app") {
		t.Errorf("PreRemove = %q", pre.Body)
	}
	if !strings.Contains(pre.Body, "export RPM_INSTALL_PREFIX0\n") {
		t.Errorf("Missing RPM_INSTALL_PREFIX0 export in %q", pre.Body)
	}
}

func TestApplyPrefixesRejectsConffiles(t *testing.T) {
	pkg := &models.Package{
		Name:  "reloc",
		Files: []models.FileEntry{{Path: "etc/reloc.conf", Kind: models.KindConfFile}},
	}
	err := applyPrefixes([]string{"/opt"}, pkg)
	if !models.IsErrorType(err, models.ErrUnsupportedFeature) {
		t.Errorf("Expected unsupported feature error, got %v", err)
	}
}

func TestSenseToOperator(t *testing.T) {
	tests := []struct {
		flags int64
		want  models.Operator
	}{
		{0, models.OpAny},
		{senseLess, models.OpLess},
		{senseLess | senseEqual, models.OpLessEqual},
		{senseEqual, models.OpEqual},
		{senseGreater | senseEqual, models.OpGreaterEqual},
		{senseGreater, models.OpGreater},
		// RPMSENSE_INTERP and friends live in the higher bits
		{senseGreater | senseEqual | 1<<8, models.OpGreaterEqual},
	}
	for _, tt := range tests {
		if got := senseToOperator(tt.flags); got != tt.want {
			t.Errorf("senseToOperator(%#x) = %s, want %s", tt.flags, got, tt.want)
		}
	}
}
