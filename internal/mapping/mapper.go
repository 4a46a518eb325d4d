// Package mapping translates names, versions, architectures and relations
// between the conventions of the supported package formats.
package mapping

import (
	"strings"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

const nameVersionStage = "name-version"

// NameVersionMapper normalizes name, version, release, epoch and architecture
// for one target format.
type NameVersionMapper struct {
	Target scanner.PackageType
	// Architecture overrides the canonical architecture when set
	Architecture string
	// Bump is added to the release; LSB sources are never bumped
	Bump int
}

// Apply returns a mapped copy of pkg and any warnings about lost information.
func (m NameVersionMapper) Apply(pkg *models.Package) (*models.Package, []models.Warning, error) {
	out := pkg.Clone()
	var warnings []models.Warning

	name, err := MapName(pkg.Name, m.Target)
	if err != nil {
		return nil, nil, models.NewEncodingError("name", err)
	}
	if name != pkg.Name {
		warnings = append(warnings, models.Warnf(nameVersionStage, "renamed %q to %q for %s", pkg.Name, name, m.Target))
	}
	out.Name = name

	if m.Architecture != "" {
		out.Architecture = m.Architecture
	}
	if out.Architecture == "" {
		out.Architecture = "all"
	}

	if m.Bump != 0 && pkg.SourceFormat != scanner.TypeLsb.String() {
		out.Release = BumpRelease(out.Release, m.Bump)
	}

	switch m.Target {
	case scanner.TypeDeb:
		out.Version = debUpstream(out.Version)
		out.Release = debRevision(out.Release)
		if out.Release == "" && strings.Contains(out.Version, "-") {
			out.Release = "1"
		}
	case scanner.TypeRpm, scanner.TypeLsb:
		out.Version = rpmField(out.Version)
		out.Release = rpmField(out.Release)
		if out.Release == "" {
			out.Release = "1"
		}
	case scanner.TypeTgz:
		out.Version = strings.ReplaceAll(out.Version, "-", "_")
		out.Release = strings.ReplaceAll(out.Release, "-", "_")
		if out.Release == "" {
			out.Release = "1"
		}
		warnings = m.dropEpoch(out, warnings)
	case scanner.TypePkg:
		warnings = m.dropEpoch(out, warnings)
	}

	return out, warnings, nil
}

func (m NameVersionMapper) dropEpoch(pkg *models.Package, warnings []models.Warning) []models.Warning {
	if pkg.Epoch == nil {
		return warnings
	}
	warnings = append(warnings, models.Warnf(nameVersionStage, "epoch %d dropped: %s has no epoch", *pkg.Epoch, m.Target))
	pkg.Epoch = nil
	return warnings
}

// rpmField makes a version or release legal for RPM, which reserves "-" and ":".
func rpmField(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Map(func(r rune) rune {
		if r == ':' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}
