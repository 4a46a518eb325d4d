package pipeline

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/ralt/pkgconv/internal/codec/tgz"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

const metadataStage = "metadata"

// Host lookups used for maintainer synthesis, replaced in tests.
var (
	getenv   = os.Getenv
	hostname = os.Hostname
	username = func() string {
		if u, err := user.Current(); err == nil && u.Username != "" {
			return u.Username
		}
		return getenv("USER")
	}
)

// conversionNote is appended to converted descriptions
func conversionNote(source string) string {
	return fmt.Sprintf("(Converted from a %s package by pkgconv)", source)
}

// applyMetadata synthesizes the generate fields, applies the description
// override and appends the conversion note.
func applyMetadata(pkg *models.Package, source, target scanner.PackageType, opts models.ConversionOptions) (*models.Package, []models.Warning) {
	out := pkg.Clone()
	var warnings []models.Warning

	switch {
	case opts.Maintainer != "":
		out.Maintainer = opts.Maintainer
	case out.Maintainer == "" && (opts.Generates(models.GenerateMaintainer) || target == scanner.TypeDeb):
		out.Maintainer = synthesizeMaintainer()
		warnings = append(warnings, models.Warnf(metadataStage, "no maintainer, using %q", out.Maintainer))
	}

	if opts.Description != "" {
		out.Description = opts.Description
	}

	if out.Summary == "" && (opts.Generates(models.GenerateSummary) || target == scanner.TypeDeb) {
		out.Summary = out.SummaryLine()
		if out.Summary == "" {
			out.Summary = fmt.Sprintf("Converted %s package", sourceName(out, source))
		}
		warnings = append(warnings, models.Warnf(metadataStage, "no summary, using %q", out.Summary))
	}
	if out.Description == "" && opts.Generates(models.GenerateDescription) {
		out.Description = out.Summary
	}

	if opts.Description == "" {
		note := conversionNote(sourceName(out, source))
		switch {
		case strings.Contains(out.Description, note):
		case strings.TrimSpace(out.Description) == "":
			out.Description = note
		default:
			out.Description = strings.TrimRight(out.Description, "\n") + "\n\n" + note
		}
	}

	if target == scanner.TypeTgz {
		if kept, total := tgz.SlackDescOverflow(out.Description); kept < total {
			warnings = append(warnings, models.Warnf(metadataStage, "slack-desc keeps %d of %d description lines", kept, total))
		}
	}

	return out, warnings
}

// addChangelogEntry records the conversion as the newest changelog entry.
// It runs after name and version mapping so the entry carries the target version.
func addChangelogEntry(pkg *models.Package, source scanner.PackageType, now time.Time) *models.Package {
	out := pkg.Clone()
	entry := models.ChangelogEntry{
		Version: mapping.FormatDebVersion(out.Epoch, out.Version, out.Release),
		Author:  out.Maintainer,
		Date:    now,
		Text:    "* " + strings.Trim(conversionNote(sourceName(out, source)), "()"),
	}
	out.Changelog = append([]models.ChangelogEntry{entry}, out.Changelog...)
	return out
}

func sourceName(pkg *models.Package, source scanner.PackageType) string {
	if pkg.SourceFormat != "" {
		return pkg.SourceFormat
	}
	return source.String()
}

// synthesizeMaintainer prefers $EMAIL, then user@host
func synthesizeMaintainer() string {
	if email := strings.TrimSpace(getenv("EMAIL")); email != "" {
		return email
	}
	name := username()
	if name == "" {
		name = "root"
	}
	host, err := hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}
