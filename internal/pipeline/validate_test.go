package pipeline

import (
	"testing"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

func validPackage() *models.Package {
	return &models.Package{
		Name:         "hello",
		Version:      "2.10",
		Release:      "1",
		Architecture: "amd64",
		Summary:      "greeter",
		Maintainer:   "Jane <jane@example.com>",
		Files: []models.FileEntry{
			{Path: "usr/bin/hello", Kind: models.KindRegular},
			{Path: "usr/bin/hi", Kind: models.KindSymlink, LinkTarget: "hello"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  scanner.PackageType
		mutate  func(*models.Package)
		wantErr string
	}{
		{"valid deb", scanner.TypeDeb, nil, ""},
		{"valid rpm", scanner.TypeRpm, nil, ""},
		{"valid tgz", scanner.TypeTgz, nil, ""},
		{"valid pkg", scanner.TypePkg, nil, ""},
		{"no name", scanner.TypeRpm, func(p *models.Package) { p.Name = "" }, "name"},
		{"no version", scanner.TypeRpm, func(p *models.Package) { p.Version = "" }, "version"},
		{"no architecture", scanner.TypeRpm, func(p *models.Package) { p.Architecture = "" }, "architecture"},
		{"unnormalized path", scanner.TypeRpm, func(p *models.Package) { p.Files[0].Path = "/usr/bin/hello" }, "path"},
		{"escaping path", scanner.TypeRpm, func(p *models.Package) { p.Files[0].Path = "usr/../../etc" }, "path"},
		{"duplicate path", scanner.TypeRpm, func(p *models.Package) { p.Files[1].Path = "usr/bin/hello" }, "path"},
		{"dangling symlink", scanner.TypeRpm, func(p *models.Package) { p.Files[1].LinkTarget = "" }, "symlink"},
		{"deb uppercase", scanner.TypeDeb, func(p *models.Package) { p.Name = "Hello" }, "name"},
		{"deb hyphen without revision", scanner.TypeDeb, func(p *models.Package) { p.Version = "2-10"; p.Release = "" }, "version"},
		{"deb bad revision", scanner.TypeDeb, func(p *models.Package) { p.Release = "1-2" }, "release"},
		{"deb no maintainer", scanner.TypeDeb, func(p *models.Package) { p.Maintainer = "" }, "maintainer"},
		{"deb no summary", scanner.TypeDeb, func(p *models.Package) { p.Summary = "" }, "summary"},
		{"rpm hyphen in version", scanner.TypeRpm, func(p *models.Package) { p.Version = "2.10-1" }, "version"},
		{"rpm space in name", scanner.TypeRpm, func(p *models.Package) { p.Name = "my tool" }, "name"},
		{"tgz hyphen in version", scanner.TypeTgz, func(p *models.Package) { p.Version = "2.10-1" }, "version"},
		{"pkg long abbreviation", scanner.TypePkg, func(p *models.Package) { p.Name = "averyveryveryverylongpackagenamethatgoesonandon" }, "name"},
		{"pkg quoted version", scanner.TypePkg, func(p *models.Package) { p.Version = `2"10` }, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := validPackage()
			if tt.mutate != nil {
				tt.mutate(pkg)
			}
			err := validate(pkg, tt.target)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validate succeeded, want a %s error", tt.wantErr)
			}
			ce, ok := err.(*models.ConversionError)
			if !ok || ce.Type != models.ErrEncoding || ce.Field != tt.wantErr {
				t.Errorf("error = %#v, want Encoding error on %s", err, tt.wantErr)
			}
		})
	}
}
