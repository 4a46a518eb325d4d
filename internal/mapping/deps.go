package mapping

import (
	"strings"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

const dependencyStage = "dependencies"

// debToRpm renames well-known packages between the Debian and RPM families.
// Names not listed pass through unchanged.
var debToRpm = map[string]string{
	"libc6":        "glibc",
	"zlib1g":       "zlib",
	"libstdc++6":   "libstdc++",
	"libgcc-s1":    "libgcc",
	"libgcc1":      "libgcc",
	"libssl3":      "openssl-libs",
	"libssl1.1":    "openssl-libs",
	"libbz2-1.0":   "bzip2-libs",
	"liblzma5":     "xz-libs",
	"libncurses6":  "ncurses-libs",
	"libtinfo6":    "ncurses-libs",
	"libreadline8": "readline",
	"libexpat1":    "expat",
	"libffi8":      "libffi",
	"libcurl4":     "libcurl",
}

// rpmToDeb is the reverse table; where several Debian names collapse onto
// one RPM name, the current Debian spelling is used.
var rpmToDeb = map[string]string{
	"glibc":        "libc6",
	"zlib":         "zlib1g",
	"libstdc++":    "libstdc++6",
	"libgcc":       "libgcc-s1",
	"openssl-libs": "libssl3",
	"bzip2-libs":   "libbz2-1.0",
	"xz-libs":      "liblzma5",
	"ncurses-libs": "libncurses6",
	"readline":     "libreadline8",
	"expat":        "libexpat1",
	"libffi":       "libffi8",
	"libcurl":      "libcurl4",
}

// DependencyMapper translates relations from one format family to another.
type DependencyMapper struct {
	Source scanner.PackageType
	Target scanner.PackageType
}

// Apply returns a copy of pkg with its relations mapped to the target format.
func (m DependencyMapper) Apply(pkg *models.Package) (*models.Package, []models.Warning) {
	out := pkg.Clone()
	var warnings []models.Warning

	if m.Target == scanner.TypeTgz {
		total := 0
		for _, set := range pkg.AllRelations() {
			total += len(set.Relations)
			out.SetRelations(set.Kind, nil)
		}
		if total > 0 {
			warnings = append(warnings, models.Warnf(dependencyStage,
				"dropped %d relations: Slackware packages have no dependency mechanism", total))
		}
		return out, warnings
	}

	for _, set := range pkg.AllRelations() {
		var mapped []models.Relation
		for _, rel := range set.Relations {
			r, ok, w := m.mapRelation(set.Kind, rel)
			if w != "" {
				warnings = append(warnings, models.Warning{Stage: dependencyStage, Message: w})
			}
			if ok && !containsRelation(mapped, r) {
				mapped = append(mapped, r)
			}
		}
		out.SetRelations(set.Kind, mapped)
	}

	if m.Target == scanner.TypeLsb && !hasRelationNamed(out.Depends, "lsb") {
		out.Depends = append(out.Depends, models.Relation{Name: "lsb"})
	}

	return out, warnings
}

// mapRelation maps one relation. It returns the new relation, whether to keep
// it, and a warning message when information was lost.
func (m DependencyMapper) mapRelation(kind models.RelationKind, rel models.Relation) (models.Relation, bool, string) {
	crossFamily := m.Source.Family() != m.Target.Family()

	if crossFamily {
		if first, ok := firstAlternative(rel.Name); ok {
			rel = first
			rel.Informational = true
		}
		rel.Name = m.renameAcross(rel.Name)
		if !rel.Informational && !m.translatable(rel.Name) {
			rel.Informational = true
		}
	}

	// Solaris has neither provides nor replaces
	if m.Target == scanner.TypePkg && (kind == models.RelProvides || kind == models.RelReplaces) && !rel.Informational {
		rel.Informational = true
	}

	var warning string
	if rel.Versioned() && !m.operatorSupported(kind, rel) {
		if kind == models.RelDepends || kind == models.RelProvides {
			warning = "widened " + kind.String() + " " + rel.String() + " to an unversioned relation"
			rel.Op = models.OpAny
			rel.Version = ""
		} else if !rel.Informational {
			// dropping the version would make a conflict or replacement stricter
			warning = "kept " + kind.String() + " " + rel.String() + " as informational: " + m.Target.String() + " cannot express its version"
			rel.Informational = true
		}
	}

	if rel.Informational && !m.keepsInformational(kind) {
		return rel, false, "dropped informational " + kind.String() + " " + rel.String() + ": " + m.Target.String() + " has no equivalent"
	}

	if !rel.Versioned() {
		rel.Op = models.OpAny
		rel.Version = ""
	}
	return rel, true, warning
}

// keepsInformational reports whether the target can carry an unenforced
// relation of this kind: RPM as Suggests, Solaris as commented depend lines.
// Informational conflicts, provides and replaces never become Suggests.
func (m DependencyMapper) keepsInformational(kind models.RelationKind) bool {
	switch m.Target.Family() {
	case scanner.TypeDeb:
		// Debian can only write back its own alternatives and substitutions
		return m.Source.Family() == scanner.TypeDeb
	case scanner.TypeRpm:
		return kind == models.RelDepends
	case scanner.TypePkg:
		return true
	}
	return false
}

func (m DependencyMapper) renameAcross(name string) string {
	switch {
	case m.Source.Family() == scanner.TypeDeb && m.Target.Family() == scanner.TypeRpm:
		if n, ok := debToRpm[name]; ok {
			return n
		}
	case m.Source.Family() == scanner.TypeRpm && m.Target.Family() == scanner.TypeDeb:
		if n, ok := rpmToDeb[name]; ok {
			return n
		}
	}
	return name
}

// translatable reports whether a name from another family can be used as a
// plain package name in the target.
func (m DependencyMapper) translatable(name string) bool {
	switch {
	case strings.HasPrefix(name, "/"):
		// RPM file dependency
		return false
	case strings.ContainsAny(name, "()"):
		// RPM capability such as libc.so.6()(64bit) or perl(Foo)
		return false
	case strings.Contains(name, "|"):
		// Debian alternatives
		return false
	case strings.Contains(name, "${"):
		// unexpanded substitution variable
		return false
	}
	return name != ""
}

// operatorSupported reports whether the target can express rel's operator for
// this relation kind without tightening it.
func (m DependencyMapper) operatorSupported(kind models.RelationKind, rel models.Relation) bool {
	switch m.Target {
	case scanner.TypePkg:
		return rel.Op == models.OpEqual
	case scanner.TypeDeb, scanner.TypeRpm, scanner.TypeLsb:
		if kind == models.RelProvides {
			return rel.Op == models.OpEqual
		}
		return true
	}
	return false
}

func containsRelation(rels []models.Relation, r models.Relation) bool {
	for _, existing := range rels {
		if existing == r {
			return true
		}
	}
	return false
}

func hasRelationNamed(rels []models.Relation, name string) bool {
	for _, r := range rels {
		if r.Name == name {
			return true
		}
	}
	return false
}
