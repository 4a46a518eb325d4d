package utils

import (
	"fmt"
	"strconv"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

// PackageIdentity returns a unique identifier for a package based on format
func PackageIdentity(pkg *models.Package, pkgType scanner.PackageType) string {
	switch pkgType {
	case scanner.TypeRpm, scanner.TypeLsb:
		epoch := ""
		if pkg.Epoch != nil {
			epoch = strconv.Itoa(*pkg.Epoch) + ":"
		}
		return fmt.Sprintf("%s:%s%s:%s:%s", pkg.Name, epoch, pkg.Version, pkg.Release, pkg.Architecture)
	case scanner.TypeDeb, scanner.TypeTgz:
		return fmt.Sprintf("%s:%s:%s:%s", pkg.Name, pkg.Version, pkg.Release, pkg.Architecture)
	case scanner.TypePkg:
		// Solaris datastream file names carry no architecture
		return fmt.Sprintf("%s:%s:%s", pkg.Name, pkg.Version, pkg.Release)
	default:
		return fmt.Sprintf("%s:%s", pkg.Name, pkg.Version)
	}
}

// DetectConflicts returns the identities that occur more than once in pkgs.
func DetectConflicts(pkgs []*models.Package, pkgType scanner.PackageType) []string {
	seen := make(map[string]int)
	var conflicts []string
	for _, pkg := range pkgs {
		id := PackageIdentity(pkg, pkgType)
		seen[id]++
		if seen[id] == 2 {
			conflicts = append(conflicts, id)
		}
	}
	return conflicts
}
