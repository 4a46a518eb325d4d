package scanner

import (
	"context"
	"fmt"
	"strings"
)

// PackageType represents the type of package
type PackageType int

const (
	TypeUnknown PackageType = iota
	TypeDeb
	TypeRpm
	TypeLsb
	TypeTgz
	TypePkg
)

// String returns the string representation of PackageType
func (pt PackageType) String() string {
	switch pt {
	case TypeDeb:
		return "deb"
	case TypeRpm:
		return "rpm"
	case TypeLsb:
		return "lsb"
	case TypeTgz:
		return "tgz"
	case TypePkg:
		return "pkg"
	default:
		return "unknown"
	}
}

// Family groups formats that share naming and dependency conventions.
// RPM and LSB packages are the same family.
func (pt PackageType) Family() PackageType {
	if pt == TypeLsb {
		return TypeRpm
	}
	return pt
}

// ParsePackageType parses a format name as accepted on the command line.
func ParsePackageType(s string) (PackageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deb", "debian":
		return TypeDeb, nil
	case "rpm":
		return TypeRpm, nil
	case "lsb":
		return TypeLsb, nil
	case "tgz", "slp", "slackware":
		return TypeTgz, nil
	case "pkg", "solaris":
		return TypePkg, nil
	}
	return TypeUnknown, fmt.Errorf("unknown package format %q", s)
}

// ScannedPackage represents a package file found during scanning
type ScannedPackage struct {
	Path string
	Type PackageType
	Size int64
}

// Scanner interface for detecting and scanning packages
type Scanner interface {
	// Scan recursively scans a directory for packages
	Scan(ctx context.Context, dir string) ([]ScannedPackage, error)

	// DetectType determines the package type of a file
	DetectType(path string) (PackageType, error)
}
