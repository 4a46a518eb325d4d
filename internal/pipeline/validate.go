package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	pkgfmt "github.com/ralt/pkgconv/internal/codec/pkg"
	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

var (
	debName     = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)
	debVersion  = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z.+~-]*$`)
	debRevision = regexp.MustCompile(`^[0-9A-Za-z.+~]+$`)
	rpmVersion  = regexp.MustCompile(`^[^\s-]+$`)
)

// validate checks that pkg can be written as target
func validate(pkg *models.Package, target scanner.PackageType) error {
	switch {
	case pkg.Name == "":
		return models.NewEncodingError("name", fmt.Errorf("package name is empty"))
	case pkg.Version == "":
		return models.NewEncodingError("version", fmt.Errorf("package version is empty"))
	case pkg.Architecture == "":
		return models.NewEncodingError("architecture", fmt.Errorf("package architecture is empty"))
	}

	seen := make(map[string]bool, len(pkg.Files))
	for _, f := range pkg.Files {
		normalized, err := models.NormalizePath(f.Path)
		if err != nil || normalized != f.Path || f.Path == "" {
			return models.NewEncodingError("path", fmt.Errorf("%q is not a normalized package path", f.Path))
		}
		if seen[f.Path] {
			return models.NewEncodingError("path", fmt.Errorf("%q is listed twice", f.Path))
		}
		seen[f.Path] = true
		if f.Kind == models.KindSymlink && f.LinkTarget == "" {
			return models.NewEncodingError("symlink", fmt.Errorf("%q has no target", f.Path))
		}
	}

	switch target {
	case scanner.TypeDeb:
		if !debName.MatchString(pkg.Name) {
			return models.NewEncodingError("name", fmt.Errorf("%q is not a valid Debian package name", pkg.Name))
		}
		if !debVersion.MatchString(pkg.Version) || (pkg.Release == "" && strings.Contains(pkg.Version, "-")) {
			return models.NewEncodingError("version", fmt.Errorf("%q is not a valid Debian version", pkg.Version))
		}
		if pkg.Release != "" && !debRevision.MatchString(pkg.Release) {
			return models.NewEncodingError("release", fmt.Errorf("%q is not a valid Debian revision", pkg.Release))
		}
		if pkg.Maintainer == "" {
			return models.NewEncodingError("maintainer", fmt.Errorf("Debian packages need a maintainer"))
		}
		if pkg.Summary == "" {
			return models.NewEncodingError("summary", fmt.Errorf("Debian packages need a summary"))
		}
	case scanner.TypeRpm, scanner.TypeLsb:
		if strings.ContainsAny(pkg.Name, " \t\n/") {
			return models.NewEncodingError("name", fmt.Errorf("%q is not a valid RPM package name", pkg.Name))
		}
		if !rpmVersion.MatchString(pkg.Version) {
			return models.NewEncodingError("version", fmt.Errorf("%q is not a valid RPM version", pkg.Version))
		}
		if pkg.Release != "" && !rpmVersion.MatchString(pkg.Release) {
			return models.NewEncodingError("release", fmt.Errorf("%q is not a valid RPM release", pkg.Release))
		}
	case scanner.TypeTgz:
		if strings.ContainsAny(pkg.Name, " \t\n/") {
			return models.NewEncodingError("name", fmt.Errorf("%q is not a valid Slackware package name", pkg.Name))
		}
		if strings.ContainsAny(pkg.Version, "- \t\n/") {
			return models.NewEncodingError("version", fmt.Errorf("%q is not a valid Slackware version", pkg.Version))
		}
	case scanner.TypePkg:
		if abbr := mapping.PkgAbbreviation(pkg.Name); len(abbr) > mapping.MaxPkgAbbreviation {
			return models.NewEncodingError("name", fmt.Errorf("PKG abbreviation %q is longer than %d characters", abbr, mapping.MaxPkgAbbreviation))
		}
		if pkgfmt.Abbreviation(pkg.Name) == "" {
			return models.NewEncodingError("name", fmt.Errorf("%q has no PKG abbreviation", pkg.Name))
		}
		if strings.ContainsAny(pkg.Version, " \t\n\"") {
			return models.NewEncodingError("version", fmt.Errorf("%q is not a valid pkginfo version", pkg.Version))
		}
	}
	return nil
}
