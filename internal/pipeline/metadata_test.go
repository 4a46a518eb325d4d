package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

func fakeHost(t *testing.T, email, user, host string) {
	t.Helper()
	oldEnv, oldUser, oldHost := getenv, username, hostname
	getenv = func(key string) string {
		if key == "EMAIL" {
			return email
		}
		return ""
	}
	username = func() string { return user }
	hostname = func() (string, error) {
		if host == "" {
			return "", errors.New("no hostname")
		}
		return host, nil
	}
	t.Cleanup(func() { getenv, username, hostname = oldEnv, oldUser, oldHost })
}

func TestApplyMetadataMaintainer(t *testing.T) {
	tests := []struct {
		name       string
		existing   string
		opts       models.ConversionOptions
		target     scanner.PackageType
		email      string
		want       string
		wantWarned bool
	}{
		{"configured wins", "Jane <jane@example.com>", models.ConversionOptions{Maintainer: "Ops <ops@example.com>"}, scanner.TypeRpm, "", "Ops <ops@example.com>", false},
		{"existing kept", "Jane <jane@example.com>", models.ConversionOptions{}, scanner.TypeDeb, "me@example.com", "Jane <jane@example.com>", false},
		{"email for deb", "", models.ConversionOptions{}, scanner.TypeDeb, "me@example.com", "me@example.com", true},
		{"user at host", "", models.ConversionOptions{Generate: []string{models.GenerateMaintainer}}, scanner.TypeRpm, "", "builder@buildhost", true},
		{"not generated for rpm", "", models.ConversionOptions{}, scanner.TypeRpm, "me@example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeHost(t, tt.email, "builder", "buildhost")
			pkg := &models.Package{Name: "hello", Maintainer: tt.existing, Summary: "s"}

			got, warnings := applyMetadata(pkg, scanner.TypeRpm, tt.target, tt.opts)
			if got.Maintainer != tt.want {
				t.Errorf("Maintainer = %q, want %q", got.Maintainer, tt.want)
			}
			if warned := hasWarning(warnings, metadataStage, "maintainer"); warned != tt.wantWarned {
				t.Errorf("maintainer warning = %v, want %v", warned, tt.wantWarned)
			}
			if pkg.Maintainer != tt.existing {
				t.Errorf("input mutated: Maintainer = %q", pkg.Maintainer)
			}
		})
	}
}

func TestApplyMetadataDescription(t *testing.T) {
	fakeHost(t, "me@example.com", "builder", "")
	note := "(Converted from a rpm package by pkgconv)"

	tests := []struct {
		name        string
		pkg         models.Package
		opts        models.ConversionOptions
		wantSummary string
		wantDesc    string
	}{
		{
			name:        "note appended",
			pkg:         models.Package{Summary: "s", Description: "Long text.\n"},
			wantSummary: "s",
			wantDesc:    "Long text.\n\n" + note,
		},
		{
			name:        "note not repeated",
			pkg:         models.Package{Summary: "s", Description: "Long text.\n\n" + note},
			wantSummary: "s",
			wantDesc:    "Long text.\n\n" + note,
		},
		{
			name:        "override suppresses note",
			pkg:         models.Package{Summary: "s", Description: "Long text."},
			opts:        models.ConversionOptions{Description: "Replacement"},
			wantSummary: "s",
			wantDesc:    "Replacement",
		},
		{
			name:        "summary from description",
			pkg:         models.Package{Description: "First line\nSecond line"},
			opts:        models.ConversionOptions{Generate: []string{models.GenerateSummary}},
			wantSummary: "First line",
			wantDesc:    "First line\nSecond line\n\n" + note,
		},
		{
			name:        "description from summary",
			pkg:         models.Package{Summary: "Short"},
			opts:        models.ConversionOptions{Generate: []string{models.GenerateDescription}},
			wantSummary: "Short",
			wantDesc:    "Short\n\n" + note,
		},
		{
			name:        "empty description becomes note",
			pkg:         models.Package{Summary: "Short"},
			wantSummary: "Short",
			wantDesc:    note,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := tt.pkg
			pkg.Name = "hello"
			pkg.SourceFormat = "rpm"

			got, _ := applyMetadata(&pkg, scanner.TypeRpm, scanner.TypeRpm, tt.opts)
			if got.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", got.Summary, tt.wantSummary)
			}
			if got.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", got.Description, tt.wantDesc)
			}
		})
	}
}

func TestAddChangelogEntry(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	pkg := &models.Package{
		Name:         "hello",
		Version:      "2.10",
		Release:      "4",
		Epoch:        models.IntPtr(1),
		Maintainer:   "Jane <jane@example.com>",
		SourceFormat: "pkg",
		Changelog:    []models.ChangelogEntry{{Version: "1:2.10-3", Text: "* older"}},
	}

	got := addChangelogEntry(pkg, scanner.TypePkg, now)
	if len(got.Changelog) != 2 || len(pkg.Changelog) != 1 {
		t.Fatalf("Changelog lengths = %d (input %d), want 2 (input 1)", len(got.Changelog), len(pkg.Changelog))
	}
	entry := got.Changelog[0]
	if entry.Version != "1:2.10-4" || entry.Author != pkg.Maintainer || !entry.Date.Equal(now) {
		t.Errorf("entry = %+v", entry)
	}
	if !strings.HasPrefix(entry.Text, "* Converted from a pkg package") {
		t.Errorf("entry text = %q", entry.Text)
	}
}

func TestApplyMetadataSlackDescOverflow(t *testing.T) {
	fakeHost(t, "me@example.com", "builder", "")
	var long []string
	for i := 1; i <= 12; i++ {
		long = append(long, fmt.Sprintf("line %d", i))
	}

	tests := []struct {
		name        string
		description string
		target      scanner.PackageType
		want        string
	}{
		{"long for tgz", strings.Join(long, "\n"), scanner.TypeTgz, "slack-desc keeps 9 of 14 description lines"},
		{"short for tgz", "One line.", scanner.TypeTgz, ""},
		{"long for rpm", strings.Join(long, "\n"), scanner.TypeRpm, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := &models.Package{Name: "hello", Summary: "s", Maintainer: "m", Description: tt.description}
			_, warnings := applyMetadata(pkg, scanner.TypeRpm, tt.target, models.ConversionOptions{})
			warned := hasWarning(warnings, metadataStage, "slack-desc")
			if tt.want == "" {
				if warned {
					t.Errorf("unexpected slack-desc warning: %v", warnings)
				}
				return
			}
			if !hasWarning(warnings, metadataStage, tt.want) {
				t.Errorf("warnings = %v, want %q", warnings, tt.want)
			}
		})
	}
}
